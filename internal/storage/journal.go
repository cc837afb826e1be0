// Package storage journals monitoring sessions and their spectrum frames to
// an SQLite database, and reads them back for offline rendering.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      id,
                      mode,
                      driver,
                      serial,
                      sample_rate,
                      fft_size,
                      center_hz,
                      lo_mhz,
                      readout_base_mhz,
                      config)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertFrameSQL = `
INSERT INTO frames (
                    session_id,
                    seq,
                    timestamp,
                    noise_ref,
                    plateau,
                    plateau_min,
                    plateau_max,
                    offset_khz,
                    power)
VALUES `

	selectSessionSQL = `
SELECT
    id,
    started_at,
    mode,
    driver,
    serial,
    sample_rate,
    fft_size,
    center_hz,
    lo_mhz,
    readout_base_mhz,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    started_at,
    mode,
    driver,
    serial,
    sample_rate,
    fft_size,
    center_hz,
    lo_mhz,
    readout_base_mhz,
    config
FROM sessions
ORDER BY started_at`
)

// Journal handles database operations
type Journal struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// New creates a journal backed by the SQLite database at dbPath. Connections
// open lazily; the schema is initialized with the first write.
func New(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (j *Journal) getWriteDB() (*sql.DB, error) {
	j.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", j.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			j.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			j.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		j.writeDB = db
	})

	return j.writeDB, j.writeDBErr
}

func (j *Journal) getReadDB() (*sql.DB, error) {
	j.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", j.dbPath, "mode=ro"))
		if err != nil {
			j.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		j.readDB = db
	})

	return j.readDB, j.readDBErr
}

// CreateSession inserts a session row and returns its generated ID.
func (j *Journal) CreateSession(ctx context.Context, meta SessionMeta) (sessionID string, err error) {
	var configData sql.NullString

	if meta.Config != nil {
		switch c := meta.Config.(type) {
		case string:
			configData.Valid = true
			configData.String = c

		case []byte:
			configData.Valid = true
			configData.String = string(c)

		default:
			var p []byte
			if p, err = json.Marshal(meta.Config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	var serial sql.NullString
	if meta.Serial != "" {
		serial.Valid = true
		serial.String = meta.Serial
	}

	db, err := j.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	sessionID = uuid.NewString()
	if _, err = stmt.ExecContext(ctx, sessionID, meta.Mode, meta.Driver, serial, meta.SampleRate, meta.FFTSize,
		meta.CenterHz, meta.LOMHz, meta.ReadoutBaseMHz, configData); err != nil {
		sessionID = ""
		err = fmt.Errorf("inserting session: %w", err)
	}
	return
}

// Append journals a batch of frames for the session in one transaction.
func (j *Journal) Append(ctx context.Context, sessionID string, frames []FrameRecord) (err error) {
	if len(frames) == 0 {
		return
	}

	db, err := j.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]interface{}, 0, len(frames)*9)
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder
	sb.WriteString(insertFrameSQL)

	for i, frame := range frames {
		values = append(values,
			sessionID,
			int64(frame.Seq),
			frame.Timestamp.UTC(),
			nullFloat(frame.NoiseRef),
			nullFloat(frame.Plateau),
			nullFloat(frame.PlateauMin),
			nullFloat(frame.PlateauMax),
			frame.OffsetKHz,
			encodePower(frame.Power),
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting frames: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Session returns the session row with the given ID.
func (j *Journal) Session(ctx context.Context, id string) (session *Session, err error) {
	db, err := j.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	sess, err := scanSession(stmt.QueryRowContext(ctx, id))
	if err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}

	return sess, nil
}

// Sessions returns all recorded sessions in start order.
func (j *Journal) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := j.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	if err = rows.Err(); err != nil {
		return
	}
	return
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var serial, config sql.NullString
	if err := row.Scan(&sess.ID, &sess.StartedAt, &sess.Mode, &sess.Driver, &serial, &sess.SampleRate, &sess.FFTSize,
		&sess.CenterHz, &sess.LOMHz, &sess.ReadoutBaseMHz, &config); err != nil {
		return nil, err
	}
	if serial.Valid {
		sess.Serial = &serial.String
	}
	if config.Valid {
		sess.Config = &config.String
	}
	return &sess, nil
}

// Close releases both database connections.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() {
		var writeErr, readErr error

		if j.writeDB != nil {
			writeErr = j.writeDB.Close()
			j.writeDB = nil
		}

		if j.readDB != nil {
			readErr = j.readDB.Close()
			j.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			j.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			j.closeErr = writeErr
		case readErr != nil:
			j.closeErr = readErr
		}
	})

	return j.closeErr
}
