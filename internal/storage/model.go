package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Session describes one recorded monitoring run. The tuning fields let a
// reader rebuild the display frequency axis without the live pipeline: bin
// i sits at (CenterHz - SampleRate/2 + i*SampleRate/FFTSize)/1e6 shifted
// by LOMHz - ReadoutBaseMHz + offsetKHz/1000.
type Session struct {
	ID             string
	StartedAt      time.Time
	Mode           string
	Driver         string
	Serial         *string
	SampleRate     float64
	FFTSize        int
	CenterHz       float64
	LOMHz          float64
	ReadoutBaseMHz float64
	Config         *string
}

// SessionMeta carries the session attributes written at creation time.
// Config may be a string, raw JSON bytes or any JSON-marshalable value.
type SessionMeta struct {
	Mode           string
	Driver         string
	Serial         string
	SampleRate     float64
	FFTSize        int
	CenterHz       float64
	LOMHz          float64
	ReadoutBaseMHz float64
	Config         any
}

// FrameRecord is one journaled spectrum frame. The estimator fields are nil
// for frames captured while the noise reference was still calibrating.
type FrameRecord struct {
	Seq        uint64
	Timestamp  time.Time
	NoiseRef   *float64
	Plateau    *float64
	PlateauMin *float64
	PlateauMax *float64
	OffsetKHz  float64
	Power      []float64
}

type frameRow struct {
	Seq        int64
	Timestamp  time.Time
	NoiseRef   sql.NullFloat64
	Plateau    sql.NullFloat64
	PlateauMin sql.NullFloat64
	PlateauMax sql.NullFloat64
	OffsetKHz  float64
	Power      []byte
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

// sqliteTime scans DATETIME values that reach the driver without a declared
// column type, as happens with MIN and MAX aggregates.
type sqliteTime struct {
	Time time.Time
}

var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	time.RFC3339Nano,
}

func (t *sqliteTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into datetime", src)
	}
}

func (t *sqliteTime) parse(s string) error {
	for _, format := range sqliteTimeFormats {
		if parsed, err := time.Parse(format, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized datetime %q", s)
}
