package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/ossim/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection to ":memory:" is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

const runColumns = `id, state, config, started_at, finished_at, admitted, terminated, dispatches,
	messages, final_seconds, final_nanos, exit_reason, error_kind`

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.State), string(configJSON),
		run.StartedAt.Format(time.RFC3339Nano), formatTimePtr(run.FinishedAt),
		run.Admitted, run.Terminated, run.Dispatches, run.Messages,
		int64(run.FinalClock.Seconds), int64(run.FinalClock.Nanoseconds),
		run.ExitReason, string(run.ErrorKind),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := ""
	var args []any
	if opts.State != "" {
		where = " WHERE state = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs`+where+` ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, finished_at = ?, admitted = ?, terminated = ?, dispatches = ?,
		 messages = ?, final_seconds = ?, final_nanos = ?, exit_reason = ?, error_kind = ?
		 WHERE id = ?`,
		string(run.State), formatTimePtr(run.FinishedAt),
		run.Admitted, run.Terminated, run.Dispatches, run.Messages,
		int64(run.FinalClock.Seconds), int64(run.FinalClock.Nanoseconds),
		run.ExitReason, string(run.ErrorKind), run.ID,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var state, configJSON, startedAt, errorKind string
	var finishedAt sql.NullString
	var secs, nanos int64

	if err := row.Scan(&run.ID, &state, &configJSON, &startedAt, &finishedAt,
		&run.Admitted, &run.Terminated, &run.Dispatches, &run.Messages,
		&secs, &nanos, &run.ExitReason, &errorKind); err != nil {
		return nil, err
	}

	run.State = model.RunState(state)
	run.ErrorKind = model.ErrorKind(errorKind)
	run.FinalClock = model.SimTime{Seconds: uint64(secs), Nanoseconds: uint64(nanos)}
	if configJSON != "" && configJSON != "null" {
		if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	run.FinishedAt = parseTimePtr(finishedAt)
	return &run, nil
}

// --- Events ---

func (s *SQLiteStore) AppendEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert", "table", "events", "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, kind, pid, level, quantum_ns, outcome, clock_seconds, clock_nanos, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			ev.RunID, ev.Seq, string(ev.Kind), int(ev.PID), ev.Level, int64(ev.Quantum), string(ev.Outcome),
			int64(ev.Clock.Seconds), int64(ev.Clock.Nanoseconds), ev.Detail,
		); err != nil {
			return fmt.Errorf("insert event %s/%d: %w", ev.RunID, ev.Seq, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]*model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID, "kind", opts.State)
	opts.Clamp()

	where := " WHERE run_id = ?"
	args := []any{runID}
	if opts.State != "" {
		where += " AND kind = ?"
		args = append(args, opts.State)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, kind, pid, level, quantum_ns, outcome, clock_seconds, clock_nanos, detail
		 FROM events`+where+` ORDER BY seq ASC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var ev model.Event
		var kind, outcome string
		var pid int
		var quantum, secs, nanos int64
		if err := rows.Scan(&ev.RunID, &ev.Seq, &kind, &pid, &ev.Level, &quantum, &outcome,
			&secs, &nanos, &ev.Detail); err != nil {
			return nil, 0, err
		}
		ev.Kind = model.EventKind(kind)
		ev.PID = model.ProcessID(pid)
		ev.Quantum = time.Duration(quantum)
		ev.Outcome = model.Outcome(outcome)
		ev.Clock = model.SimTime{Seconds: uint64(secs), Nanoseconds: uint64(nanos)}
		events = append(events, &ev)
	}
	return events, total, rows.Err()
}

// --- Snapshots ---

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, runID string, seq int64, snap *model.Snapshot) error {
	s.logger.Debug("sql", "op", "insert", "table", "snapshots", "run_id", runID, "seq", seq)

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (run_id, seq, clock_seconds, clock_nanos, body) VALUES (?, ?, ?, ?, ?)`,
		runID, seq, int64(snap.Clock.Seconds), int64(snap.Clock.Nanoseconds), string(body),
	)
	return err
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, runID string) (*model.Snapshot, error) {
	s.logger.Debug("sql", "op", "select_latest", "table", "snapshots", "run_id", runID)

	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM snapshots WHERE run_id = ? ORDER BY seq DESC LIMIT 1`, runID,
	).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap model.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// --- Helpers ---

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
