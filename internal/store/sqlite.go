package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sweeney/study-station/internal/logic"
)

// SQLite is the primary device's persistent store.
type SQLite struct {
	db       *sql.DB
	deviceID string
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(ctx context.Context, path, deviceID string) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One writer; the HTTP API and the controller share it.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("store: opened %s", path)
	return &SQLite{db: db, deviceID: deviceID}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new active session and returns its id.
func (s *SQLite) CreateSession(ctx context.Context, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, device_id, started_at, status) VALUES (?, ?, ?, ?)`,
		id, s.deviceID, startedAt.UnixMilli(), string(logic.SessionActive))
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// UpdatePhase appends a phase signal. A Cancelled signal also marks the
// session cancelled.
func (s *SQLite) UpdatePhase(ctx context.Context, sig logic.SyncSignal) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO signals (session_id, phase, pause_count, updated_at) VALUES (?, ?, ?, ?)`,
		sig.SessionID, string(sig.Phase), sig.PauseCount, sig.UpdatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	if sig.Phase == logic.PhaseCancelled {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET status = ?, ended_at = ? WHERE id = ? AND status = ?`,
			string(logic.SessionCancelled), sig.UpdatedAt.UnixMilli(), sig.SessionID, string(logic.SessionActive)); err != nil {
			return fmt.Errorf("cancel session: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	return nil
}

// LatestSignal returns the most recently written signal.
func (s *SQLite) LatestSignal(ctx context.Context) (logic.SyncSignal, error) {
	var (
		sig     logic.SyncSignal
		phase   string
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, phase, pause_count, updated_at FROM signals ORDER BY id DESC LIMIT 1`,
	).Scan(&sig.SessionID, &phase, &sig.PauseCount, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return logic.SyncSignal{}, ErrNotFound
	}
	if err != nil {
		return logic.SyncSignal{}, fmt.Errorf("latest signal: %w", err)
	}
	sig.Phase = logic.Phase(phase)
	sig.UpdatedAt = time.UnixMilli(updated).UTC()
	return sig, nil
}

// AppendMeasurement stores one measurement.
func (s *SQLite) AppendMeasurement(ctx context.Context, m logic.Measurement) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO measurements (session_id, kind, value, alarm, pause_number, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		m.SessionID, m.Kind, m.Value, m.Alarm, m.PauseNumber, m.Time.UnixMilli())
	if err != nil {
		return fmt.Errorf("append %s measurement: %w", m.Kind, err)
	}
	return nil
}

// Measurements returns the measurements of a session in insertion order.
func (s *SQLite) Measurements(ctx context.Context, sessionID string) ([]logic.Measurement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, value, alarm, pause_number, recorded_at FROM measurements WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("measurements: %w", err)
	}
	defer rows.Close()

	var out []logic.Measurement
	for rows.Next() {
		m := logic.Measurement{SessionID: sessionID}
		var recorded int64
		if err := rows.Scan(&m.Kind, &m.Value, &m.Alarm, &m.PauseNumber, &recorded); err != nil {
			return nil, fmt.Errorf("measurements: %w", err)
		}
		m.Time = time.UnixMilli(recorded).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("measurements: %w", err)
	}
	return out, nil
}

// Session loads one session.
func (s *SQLite) Session(ctx context.Context, id string) (logic.Session, error) {
	var (
		sess            logic.Session
		status          string
		started         int64
		ended           sql.NullInt64
		workMs, breakMs int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, device_id, started_at, ended_at, status, pause_count, work_ms, break_ms FROM sessions WHERE id = ?`,
		id,
	).Scan(&sess.ID, &sess.DeviceID, &started, &ended, &status, &sess.Totals.PauseCount, &workMs, &breakMs)
	if errors.Is(err, sql.ErrNoRows) {
		return logic.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return logic.Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	sess.Status = logic.SessionStatus(status)
	sess.StartedAt = time.UnixMilli(started).UTC()
	if ended.Valid {
		sess.EndedAt = time.UnixMilli(ended.Int64).UTC()
	}
	sess.Totals.WorkTime = time.Duration(workMs) * time.Millisecond
	sess.Totals.BreakTime = time.Duration(breakMs) * time.Millisecond
	return sess, nil
}

// FinalizeSession closes a session with its totals and returns the report
// over everything recorded for it.
func (s *SQLite) FinalizeSession(ctx context.Context, id string, totals logic.Totals, endedAt time.Time) (logic.Report, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, ended_at = ?, pause_count = ?, work_ms = ?, break_ms = ? WHERE id = ?`,
		string(logic.SessionEnded), endedAt.UnixMilli(), totals.PauseCount,
		totals.WorkTime.Milliseconds(), totals.BreakTime.Milliseconds(), id)
	if err != nil {
		return logic.Report{}, fmt.Errorf("finalize session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return logic.Report{}, fmt.Errorf("finalize session %s: %w", id, ErrNotFound)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		return logic.Report{}, err
	}
	ms, err := s.Measurements(ctx, id)
	if err != nil {
		return logic.Report{}, err
	}
	return logic.BuildReport(sess, ms), nil
}
