package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	j := New(filepath.Join(t.TempDir(), "sessions.db"))
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return j
}

func floatp(v float64) *float64 { return &v }

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	id, err := j.CreateSession(ctx, SessionMeta{
		Mode:           "wideband",
		Driver:         "airspy",
		Serial:         "0001",
		SampleRate:     6e6,
		FFTSize:        40960,
		CenterHz:       741.5e6,
		LOMHz:          9750,
		ReadoutBaseMHz: 10000,
		Config:         map[string]int{"frames": 14},
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if id == "" {
		t.Fatal("CreateSession() returned empty ID")
	}

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	frames := []FrameRecord{
		{Seq: 1, Timestamp: base, OffsetKHz: 50, Power: []float64{-50.5, -48.25, -60}},
		{Seq: 2, Timestamp: base.Add(500 * time.Millisecond), NoiseRef: floatp(-102.5), Plateau: floatp(8.5), PlateauMin: floatp(8), PlateauMax: floatp(9), OffsetKHz: 50.1, Power: []float64{-49, -47.5, -58.75}},
		{Seq: 3, Timestamp: base.Add(time.Second), NoiseRef: floatp(-102.5), Plateau: floatp(8.75), PlateauMin: floatp(8), PlateauMax: floatp(9), OffsetKHz: 50.1, Power: []float64{-49.5, -47, -59.25}},
	}
	if err := j.Append(ctx, id, frames); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	sess, err := j.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sess.Mode != "wideband" || sess.Driver != "airspy" {
		t.Errorf("session mode/driver = %s/%s, want wideband/airspy", sess.Mode, sess.Driver)
	}
	if sess.Serial == nil || *sess.Serial != "0001" {
		t.Errorf("Serial = %v, want 0001", sess.Serial)
	}
	if sess.SampleRate != 6e6 || sess.FFTSize != 40960 {
		t.Errorf("sample rate/FFT size = %v/%d, want 6e6/40960", sess.SampleRate, sess.FFTSize)
	}
	if sess.CenterHz != 741.5e6 || sess.LOMHz != 9750 || sess.ReadoutBaseMHz != 10000 {
		t.Errorf("tuning = %v/%v/%v, want 741.5e6/9750/10000", sess.CenterHz, sess.LOMHz, sess.ReadoutBaseMHz)
	}
	if sess.Config == nil || *sess.Config != `{"frames":14}` {
		t.Errorf("Config = %v, want frames JSON", sess.Config)
	}

	r, err := j.Frames(ctx, id)
	if err != nil {
		t.Fatalf("Frames() error = %v", err)
	}
	defer r.Close()

	var got []*FrameRecord
	for r.Next(ctx) {
		got = append(got, r.Current())
	}
	if err := r.Error(); err != nil {
		t.Fatalf("iteration error = %v", err)
	}
	if len(got) != len(frames) {
		t.Fatalf("read %d frames, want %d", len(got), len(frames))
	}

	if got[0].NoiseRef != nil {
		t.Error("frame 1 NoiseRef = non-nil, want nil while calibrating")
	}
	if got[1].NoiseRef == nil || *got[1].NoiseRef != -102.5 {
		t.Errorf("frame 2 NoiseRef = %v, want -102.5", got[1].NoiseRef)
	}
	if got[2].Plateau == nil || *got[2].Plateau != 8.75 {
		t.Errorf("frame 3 Plateau = %v, want 8.75", got[2].Plateau)
	}

	for i, frame := range got {
		if frame.Seq != frames[i].Seq {
			t.Errorf("frame %d Seq = %d, want %d", i, frame.Seq, frames[i].Seq)
		}
		if !frame.Timestamp.Equal(frames[i].Timestamp) {
			t.Errorf("frame %d Timestamp = %v, want %v", i, frame.Timestamp, frames[i].Timestamp)
		}
		if frame.OffsetKHz != frames[i].OffsetKHz {
			t.Errorf("frame %d OffsetKHz = %v, want %v", i, frame.OffsetKHz, frames[i].OffsetKHz)
		}
		if len(frame.Power) != len(frames[i].Power) {
			t.Fatalf("frame %d has %d bins, want %d", i, len(frame.Power), len(frames[i].Power))
		}
		for k, v := range frame.Power {
			if v != frames[i].Power[k] {
				t.Errorf("frame %d bin %d = %v, want %v", i, k, v, frames[i].Power[k])
			}
		}
	}
}

func TestFramesSeqRange(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	id, err := j.CreateSession(ctx, SessionMeta{Mode: "narrowband", Driver: "rtlsdr", SampleRate: 2.4e6, FFTSize: 8})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	var frames []FrameRecord
	for seq := uint64(1); seq <= 5; seq++ {
		frames = append(frames, FrameRecord{
			Seq:       seq,
			Timestamp: base.Add(time.Duration(seq) * time.Second),
			OffsetKHz: 50,
			Power:     []float64{float64(seq)},
		})
	}
	if err := j.Append(ctx, id, frames); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	r, err := j.Frames(ctx, id, WithSeqRange(2, 4))
	if err != nil {
		t.Fatalf("Frames() error = %v", err)
	}
	defer r.Close()

	var seqs []uint64
	for r.Next(ctx) {
		seqs = append(seqs, r.Current().Seq)
	}
	if err := r.Error(); err != nil {
		t.Fatalf("iteration error = %v", err)
	}

	want := []uint64{2, 3, 4}
	if len(seqs) != len(want) {
		t.Fatalf("read %d frames, want %d", len(seqs), len(want))
	}
	for i, seq := range seqs {
		if seq != want[i] {
			t.Errorf("frame %d Seq = %d, want %d", i, seq, want[i])
		}
	}
}

func TestFramesStartTime(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	id, err := j.CreateSession(ctx, SessionMeta{Mode: "narrowband", Driver: "rtlsdr", SampleRate: 2.4e6, FFTSize: 8})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	var frames []FrameRecord
	for seq := uint64(1); seq <= 4; seq++ {
		frames = append(frames, FrameRecord{
			Seq:       seq,
			Timestamp: base.Add(time.Duration(seq) * time.Second),
			OffsetKHz: 50,
			Power:     []float64{float64(seq)},
		})
	}
	if err := j.Append(ctx, id, frames); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	r, err := j.Frames(ctx, id, WithStartTime(base.Add(3*time.Second)))
	if err != nil {
		t.Fatalf("Frames() error = %v", err)
	}
	defer r.Close()

	var seqs []uint64
	for r.Next(ctx) {
		seqs = append(seqs, r.Current().Seq)
	}
	if err := r.Error(); err != nil {
		t.Fatalf("iteration error = %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 3 || seqs[1] != 4 {
		t.Errorf("seqs = %v, want [3 4]", seqs)
	}
}

func TestFramesNoData(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	id, err := j.CreateSession(ctx, SessionMeta{Mode: "narrowband", Driver: "rtlsdr", SampleRate: 2.4e6, FFTSize: 8})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if _, err := j.Frames(ctx, id); !errors.Is(err, ErrNoData) {
		t.Errorf("Frames() error = %v, want %v", err, ErrNoData)
	}
}

func TestSessionNotFound(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	// Open the write side so the database file exists for the reader.
	if _, err := j.CreateSession(ctx, SessionMeta{Mode: "narrowband", Driver: "rtlsdr", SampleRate: 2.4e6, FFTSize: 8}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if _, err := j.Session(ctx, "no-such-session"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Session() error = %v, want %v", err, sql.ErrNoRows)
	}
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	first, err := j.CreateSession(ctx, SessionMeta{Mode: "narrowband", Driver: "rtlsdr", SampleRate: 2.4e6, FFTSize: 8})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	second, err := j.CreateSession(ctx, SessionMeta{Mode: "wideband", Driver: "airspy", SampleRate: 6e6, FFTSize: 16})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	sessions, err := j.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Sessions() returned %d rows, want 2", len(sessions))
	}

	seen := map[string]bool{}
	for _, sess := range sessions {
		seen[sess.ID] = true
	}
	if !seen[first] || !seen[second] {
		t.Errorf("Sessions() IDs = %v, want both %s and %s", seen, first, second)
	}
}

func TestDecodePowerRejectsGarbage(t *testing.T) {
	if _, err := decodePower([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("decodePower() expected error for invalid blob")
	}

	// A valid compressed blob whose payload is not whole float32 bins.
	blob := encoder.EncodeAll([]byte{0x01, 0x02, 0x03}, nil)
	if _, err := decodePower(blob); err == nil {
		t.Error("decodePower() expected error for truncated payload")
	}
}
