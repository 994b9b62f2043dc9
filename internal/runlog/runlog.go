package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS prediction_runs (
	run_id              TEXT PRIMARY KEY,
	ensemble            TEXT,
	column_name         TEXT NOT NULL,
	folds               INTEGER NOT NULL,
	events              INTEGER NOT NULL,
	members             INTEGER NOT NULL,
	aug_multiplicity    INTEGER NOT NULL,
	mean_event_latency_ns  INTEGER NOT NULL,
	stderr_event_latency_ns INTEGER NOT NULL,
	created_at          TEXT NOT NULL
);
`

// #endregion schema

// #region log
// Log records prediction runs in a SQLite database, typically the fold
// store's own (see folds.SQLiteStore.DB).
type Log struct {
	db       *sql.DB
	ensemble string
}

// New creates the prediction_runs table if needed. ensemble labels every
// entry that does not name one.
func New(db *sql.DB, ensemble string) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create prediction_runs table: %w", err)
	}
	return &Log{db: db, ensemble: ensemble}, nil
}

// #endregion log

// #region record
// Record writes one entry. Empty RunID and zero CreatedAt are filled in.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		e.RunID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Ensemble == "" {
		e.Ensemble = l.ensemble
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO prediction_runs (run_id, ensemble, column_name, folds, events, members,
			aug_multiplicity, mean_event_latency_ns, stderr_event_latency_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID,
		nullIfEmpty(e.Ensemble),
		e.Column,
		e.Folds,
		e.Events,
		e.Members,
		e.AugMultiplicity,
		e.MeanEventLatency.Nanoseconds(),
		e.StdErrLatency.Nanoseconds(),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// #endregion record

// #region recent
// Recent returns the latest entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, ensemble, column_name, folds, events, members, aug_multiplicity,
			mean_event_latency_ns, stderr_event_latency_ns, created_at
		 FROM prediction_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ensemble sql.NullString
		var meanNs, stderrNs int64
		var createdStr string
		if err := rows.Scan(&e.RunID, &ensemble, &e.Column, &e.Folds, &e.Events, &e.Members,
			&e.AugMultiplicity, &meanNs, &stderrNs, &createdStr); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if ensemble.Valid {
			e.Ensemble = ensemble.String
		}
		e.MeanEventLatency = time.Duration(meanNs)
		e.StdErrLatency = time.Duration(stderrNs)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion recent

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
