package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		state         TEXT NOT NULL DEFAULT 'RUNNING',
		config        TEXT NOT NULL DEFAULT '{}',
		started_at    TEXT NOT NULL,
		finished_at   TEXT,
		admitted      INTEGER NOT NULL DEFAULT 0,
		terminated    INTEGER NOT NULL DEFAULT 0,
		dispatches    INTEGER NOT NULL DEFAULT 0,
		messages      INTEGER NOT NULL DEFAULT 0,
		final_seconds INTEGER NOT NULL DEFAULT 0,
		final_nanos   INTEGER NOT NULL DEFAULT 0,
		exit_reason   TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		run_id        TEXT NOT NULL,
		seq           INTEGER NOT NULL,
		kind          TEXT NOT NULL,
		pid           INTEGER NOT NULL DEFAULT 0,
		level         INTEGER NOT NULL DEFAULT 0,
		quantum_ns    INTEGER NOT NULL DEFAULT 0,
		outcome       TEXT NOT NULL DEFAULT '',
		clock_seconds INTEGER NOT NULL,
		clock_nanos   INTEGER NOT NULL,
		detail        TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		run_id        TEXT NOT NULL,
		seq           INTEGER NOT NULL,
		clock_seconds INTEGER NOT NULL,
		clock_nanos   INTEGER NOT NULL,
		body          TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_run_kind ON events(run_id, kind)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "runs",
		column:   "error_kind",
		alterSQL: "ALTER TABLE runs ADD COLUMN error_kind TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_runs_error_kind ON runs(error_kind) WHERE error_kind != ''",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
