// Package store persists detector runs and their fire events in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Geocene/firefinder/internal/logic"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is a stored detector invocation.
type Run struct {
	ID        string
	Source    string
	Params    logic.Params
	Stats     logic.Stats
	Events    []logic.EventInterval
	CreatedAt time.Time
}

// Store provides access to the result database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens or creates the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		params TEXT NOT NULL,
		samples INTEGER NOT NULL,
		readings INTEGER NOT NULL,
		missing INTEGER NOT NULL,
		interval_ms INTEGER NOT NULL,
		raw_event_samples INTEGER NOT NULL,
		smoothed_event_samples INTEGER NOT NULL,
		final_event_samples INTEGER NOT NULL,
		events INTEGER NOT NULL,
		open_ended_runs INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		start_ms INTEGER NOT NULL,
		stop_ms INTEGER NOT NULL,
		duration_minutes INTEGER NOT NULL,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts run and its events in one transaction. An empty ID is
// replaced by a new UUID and a zero CreatedAt by the current time.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	st := run.Stats
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, params, samples, readings, missing, interval_ms,
			raw_event_samples, smoothed_event_samples, final_event_samples, events, open_ended_runs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, string(params), st.Samples, st.Readings, st.Missing, st.SampleInterval.Milliseconds(),
		st.RawEventSamples, st.SmoothedEventSamples, st.FinalEventSamples, len(run.Events), st.OpenEndedRuns,
		run.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for i, ev := range run.Events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (run_id, seq, start_ms, stop_ms, duration_minutes) VALUES (?, ?, ?, ?, ?)`,
			run.ID, i, ev.Start.UnixMilli(), ev.Stop.UnixMilli(), ev.DurationMinutes,
		)
		if err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const runColumns = `id, source, params, samples, readings, missing, interval_ms,
	raw_event_samples, smoothed_event_samples, final_event_samples, events, open_ended_runs, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run       Run
		params    string
		interval  int64
		createdAt int64
	)
	st := &run.Stats
	err := row.Scan(&run.ID, &run.Source, &params, &st.Samples, &st.Readings, &st.Missing, &interval,
		&st.RawEventSamples, &st.SmoothedEventSamples, &st.FinalEventSamples, &st.Events, &st.OpenEndedRuns,
		&createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("decode params of run %s: %w", run.ID, err)
	}
	st.SampleInterval = time.Duration(interval) * time.Millisecond
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &run, nil
}

// GetRun returns a run with its events.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	if run.Events, err = s.ListEvents(ctx, id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first, without their events.
// A limit of zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListEvents returns the events of a run in time order.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]logic.EventInterval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT start_ms, stop_ms, duration_minutes FROM events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []logic.EventInterval{}
	for rows.Next() {
		var start, stop int64
		var ev logic.EventInterval
		if err := rows.Scan(&start, &stop, &ev.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Start = time.UnixMilli(start).UTC()
		ev.Stop = time.UnixMilli(stop).UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteRun removes a run and its events.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
