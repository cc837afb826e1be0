package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ErrNoData indicates that no frames exist for the given parameters.
var ErrNoData = fmt.Errorf("no data available")

const (
	selectFrameBoundsSQL = `
SELECT
    MIN(seq),
    MAX(seq),
    MIN(timestamp),
    MAX(timestamp)
FROM frames
WHERE session_id = ?`

	selectFramesSQL = `
SELECT
    seq,
    timestamp,
    noise_ref,
    plateau,
    plateau_min,
    plateau_max,
    offset_khz,
    power
FROM frames
WHERE
    session_id = ?
    AND seq BETWEEN ? AND ?
    AND timestamp BETWEEN ? AND ?
ORDER BY seq`
)

// ReaderOption configures a FrameReader with filtering criteria.
type ReaderOption func(r *FrameReader)

// WithTimeRange restricts iteration to frames inside the inclusive range.
func WithTimeRange(start, end time.Time) ReaderOption {
	return func(r *FrameReader) {
		r.startTime = &start
		r.endTime = &end
	}
}

// WithStartTime restricts iteration to frames at or after start.
func WithStartTime(start time.Time) ReaderOption {
	return func(r *FrameReader) {
		r.startTime = &start
	}
}

// WithEndTime restricts iteration to frames at or before end.
func WithEndTime(end time.Time) ReaderOption {
	return func(r *FrameReader) {
		r.endTime = &end
	}
}

// WithSeqRange restricts iteration to the inclusive sequence range.
func WithSeqRange(first, last uint64) ReaderOption {
	return func(r *FrameReader) {
		f, l := int64(first), int64(last)
		r.firstSeq = &f
		r.lastSeq = &l
	}
}

// FrameReader iterates the journaled frames of one session in sequence
// order. It must be closed after use; each instance belongs to a single
// goroutine.
type FrameReader struct {
	rows *sql.Rows

	startTime *time.Time
	endTime   *time.Time
	firstSeq  *int64
	lastSeq   *int64

	current *FrameRecord
	err     error
}

// Frames returns an iterator over the session's journaled frames. It
// returns ErrNoData when the session has no frames at all.
func (j *Journal) Frames(ctx context.Context, sessionID string, opts ...ReaderOption) (*FrameReader, error) {
	db, err := j.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	r := &FrameReader{}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.init(ctx, db, sessionID); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FrameReader) init(ctx context.Context, db *sql.DB, sessionID string) (err error) {
	bounds, err := db.PrepareContext(ctx, selectFrameBoundsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(bounds, &err)

	var minSeq, maxSeq sql.NullInt64
	var minTime, maxTime sqliteTime
	if err = bounds.QueryRowContext(ctx, sessionID).Scan(&minSeq, &maxSeq, &minTime, &maxTime); err != nil {
		return fmt.Errorf("scanning frame bounds: %w", err)
	}
	if !minSeq.Valid {
		return ErrNoData
	}

	if r.firstSeq == nil {
		r.firstSeq = &minSeq.Int64
	}
	if r.lastSeq == nil {
		r.lastSeq = &maxSeq.Int64
	}
	if r.startTime == nil {
		r.startTime = &minTime.Time
	}
	if r.endTime == nil {
		r.endTime = &maxTime.Time
	}

	stmt, err := db.PrepareContext(ctx, selectFramesSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if r.rows, err = stmt.QueryContext(ctx, sessionID, r.firstSeq, r.lastSeq, r.startTime, r.endTime); err != nil {
		return fmt.Errorf("querying frames: %w", err)
	}
	return nil
}

// Next advances the iterator. It returns false when iteration is complete
// or an error occurred; Error distinguishes the two.
func (r *FrameReader) Next(ctx context.Context) bool {
	if r.err != nil || r.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		r.err = ctx.Err()
		return false
	default:
	}

	if !r.rows.Next() {
		return false
	}

	var row frameRow
	if r.err = r.rows.Scan(&row.Seq, &row.Timestamp, &row.NoiseRef, &row.Plateau, &row.PlateauMin, &row.PlateauMax, &row.OffsetKHz, &row.Power); r.err != nil {
		r.err = fmt.Errorf("scanning frame: %w", r.err)
		return false
	}

	power, err := decodePower(row.Power)
	if err != nil {
		r.err = fmt.Errorf("decoding frame %d: %w", row.Seq, err)
		return false
	}

	r.current = &FrameRecord{
		Seq:        uint64(row.Seq),
		Timestamp:  row.Timestamp,
		NoiseRef:   floatPtr(row.NoiseRef),
		Plateau:    floatPtr(row.Plateau),
		PlateauMin: floatPtr(row.PlateauMin),
		PlateauMax: floatPtr(row.PlateauMax),
		OffsetKHz:  row.OffsetKHz,
		Power:      power,
	}
	return true
}

// Current returns the frame read by the last successful Next.
func (r *FrameReader) Current() *FrameRecord {
	return r.current
}

// Error returns the error that stopped iteration, if any.
func (r *FrameReader) Error() error {
	if r.err != nil {
		return r.err
	}
	if r.rows != nil {
		return r.rows.Err()
	}
	return nil
}

// Close releases the reader's database resources.
func (r *FrameReader) Close() error {
	if r.rows != nil {
		err := r.rows.Close()
		r.current = nil
		r.rows = nil
		return err
	}
	return nil
}
