package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)

	// Unregistered collectors must still count.
	m.ReadTimeouts.Inc()
	m.ReadTimeouts.Inc()

	if got := testutil.ToFloat64(m.ReadTimeouts); got != 2 {
		t.Errorf("read timeouts = %f, want 2", got)
	}
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FramesProduced.Inc()
	m.OffsetKHz.Set(50)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{"beacon_frames_produced_total", "beacon_offset_khz", "beacon_read_timeouts_total"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}
