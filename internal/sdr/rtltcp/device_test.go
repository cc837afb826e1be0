package rtltcp

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/roman-kulish/beacon-surveillance/internal/sdr"
)

const testTimeout = 2 * time.Second

// fakeServer accepts one connection, answers the handshake with the given
// magic and hands the connection to serve.
func fakeServer(t *testing.T, magic string, serve func(conn net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		header := make([]byte, 0, 12)
		header = append(header, magic...)
		header = binary.BigEndian.AppendUint32(header, 5) // R820T
		header = binary.BigEndian.AppendUint32(header, 29)
		if _, err := conn.Write(header); err != nil {
			return
		}

		if serve != nil {
			serve(conn)
		}
	}()

	return ln.Addr().String()
}

// captureCommands runs a fake server that reads exactly n command bytes
// from the client and delivers them on the returned channel.
func captureCommands(t *testing.T, n int) (string, chan []byte) {
	t.Helper()

	got := make(chan []byte, 1)
	addr := fakeServer(t, dongleMagic, func(conn net.Conn) {
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		got <- buf
	})

	return addr, got
}

func waitCommands(t *testing.T, got chan []byte) []byte {
	t.Helper()

	select {
	case buf := <-got:
		return buf
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for command bytes")
		return nil
	}
}

func TestProbe(t *testing.T) {
	addr := fakeServer(t, dongleMagic, nil)

	front, err := Probe(addr, "rtlsdr", testTimeout)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}

	want := sdr.Frontend{Kind: "rtlsdr", Address: addr, Tuner: "R820T"}
	if front != want {
		t.Errorf("Probe() = %+v, want %+v", front, want)
	}
}

func TestProbeBadMagic(t *testing.T) {
	addr := fakeServer(t, "HTTP", nil)

	if _, err := Probe(addr, "rtlsdr", testTimeout); err == nil {
		t.Error("Probe() expected error for bad handshake magic")
	}
}

func TestOpenBadMagic(t *testing.T) {
	addr := fakeServer(t, "XXXX", nil)

	if _, err := Open(addr); !errors.Is(err, sdr.ErrStreamOpen) {
		t.Errorf("Open() error = %v, want %v", err, sdr.ErrStreamOpen)
	}
}

func TestSetSampleRateWire(t *testing.T) {
	addr, got := captureCommands(t, 5)

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if err := d.SetSampleRate(2.4e6); err != nil {
		t.Fatalf("SetSampleRate() error = %v", err)
	}

	want := binary.BigEndian.AppendUint32([]byte{0x02}, 2400000)
	if buf := waitCommands(t, got); string(buf) != string(want) {
		t.Errorf("wire bytes = %v, want %v", buf, want)
	}
}

func TestSetCenterFrequencyWire(t *testing.T) {
	addr, got := captureCommands(t, 5)

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if err := d.SetCenterFrequency(739.75e6); err != nil {
		t.Fatalf("SetCenterFrequency() error = %v", err)
	}

	want := binary.BigEndian.AppendUint32([]byte{0x01}, 739750000)
	if buf := waitCommands(t, got); string(buf) != string(want) {
		t.Errorf("wire bytes = %v, want %v", buf, want)
	}
}

func TestSetFrequencyCorrectionWire(t *testing.T) {
	addr, got := captureCommands(t, 5)

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if err := d.SetFrequencyCorrection(-2); err != nil {
		t.Fatalf("SetFrequencyCorrection() error = %v", err)
	}

	buf := waitCommands(t, got)
	if buf[0] != 0x05 {
		t.Errorf("command = %#x, want 0x05", buf[0])
	}
	if ppm := int32(binary.BigEndian.Uint32(buf[1:])); ppm != -2 {
		t.Errorf("correction = %d, want -2", ppm)
	}
}

func TestSetGainWire(t *testing.T) {
	addr, got := captureCommands(t, 10)

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if err := d.SetGain("TUNER", 21); err != nil {
		t.Fatalf("SetGain() error = %v", err)
	}

	buf := waitCommands(t, got)
	if buf[0] != 0x03 {
		t.Errorf("first command = %#x, want gain mode 0x03", buf[0])
	}
	if mode := binary.BigEndian.Uint32(buf[1:5]); mode != 1 {
		t.Errorf("gain mode parameter = %d, want 1 (manual)", mode)
	}
	if buf[5] != 0x04 {
		t.Errorf("second command = %#x, want gain 0x04", buf[5])
	}
	if gain := binary.BigEndian.Uint32(buf[6:]); gain != 210 {
		t.Errorf("gain = %d tenths dB, want 210", gain)
	}
}

func TestSetGainUnsupportedStage(t *testing.T) {
	addr := fakeServer(t, dongleMagic, nil)

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	if err := d.SetGain("LNA", 12); !errors.Is(err, sdr.ErrGainUnsupported) {
		t.Errorf("SetGain() error = %v, want %v", err, sdr.ErrGainUnsupported)
	}
}

func TestStreamRead(t *testing.T) {
	addr := fakeServer(t, dongleMagic, func(conn net.Conn) {
		if _, err := conn.Write([]byte{255, 127, 0, 127}); err != nil {
			return
		}
		time.Sleep(200 * time.Millisecond)
	})

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	stream, err := d.StartStream()
	if err != nil {
		t.Fatalf("StartStream() error = %v", err)
	}

	buf := make([]complex64, 2)
	n, err := stream.Read(buf, testTimeout)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("Read() = %d samples, want 2", n)
	}

	want := []complex64{complex(1, 0), complex(-0.9921875, 0)}
	for i, sample := range buf {
		if sample != want[i] {
			t.Errorf("sample %d = %v, want %v", i, sample, want[i])
		}
	}
}

func TestStreamReadTimeout(t *testing.T) {
	addr := fakeServer(t, dongleMagic, func(conn net.Conn) {
		time.Sleep(300 * time.Millisecond)
	})

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	stream, err := d.StartStream()
	if err != nil {
		t.Fatalf("StartStream() error = %v", err)
	}

	n, err := stream.Read(make([]complex64, 4), 50*time.Millisecond)
	if !errors.Is(err, sdr.ErrReadTimeout) {
		t.Errorf("Read() error = %v, want %v", err, sdr.ErrReadTimeout)
	}
	if n != 0 {
		t.Errorf("Read() = %d samples, want 0", n)
	}
}

func TestStreamShortReadOnTimeout(t *testing.T) {
	addr := fakeServer(t, dongleMagic, func(conn net.Conn) {
		if _, err := conn.Write([]byte{255, 127}); err != nil {
			return
		}
		time.Sleep(400 * time.Millisecond)
	})

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	stream, err := d.StartStream()
	if err != nil {
		t.Fatalf("StartStream() error = %v", err)
	}

	buf := make([]complex64, 4)
	n, err := stream.Read(buf, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Read() error = %v, want short block", err)
	}
	if n != 1 {
		t.Fatalf("Read() = %d samples, want 1", n)
	}
	if buf[0] != complex(1, 0) {
		t.Errorf("sample = %v, want (1+0i)", buf[0])
	}
}

func TestStreamTerminalError(t *testing.T) {
	addr := fakeServer(t, dongleMagic, func(conn net.Conn) {
		conn.Write([]byte{255, 127})
	})

	d, err := Open(addr)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	stream, err := d.StartStream()
	if err != nil {
		t.Fatalf("StartStream() error = %v", err)
	}

	n, err := stream.Read(make([]complex64, 4), testTimeout)
	if err == nil {
		t.Fatal("Read() expected error after server close")
	}
	if errors.Is(err, sdr.ErrReadTimeout) {
		t.Errorf("Read() error = %v, want terminal error", err)
	}
	if n != 1 {
		t.Errorf("Read() = %d samples, want 1 converted before failure", n)
	}
}
