package folds

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kiryteo/lumin/internal/tensor"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS fold_columns (
	fold_id    INTEGER NOT NULL,
	name       TEXT NOT NULL,
	rows       INTEGER NOT NULL,
	cols       INTEGER NOT NULL,
	squeezed   INTEGER NOT NULL DEFAULT 0,
	data       BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (fold_id, name)
);
`

// #endregion schema

// #region store-struct
// SQLiteStore keeps fold columns in SQLite, one row per (fold, column).
type SQLiteStore struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// OpenSQLite opens a SQLite database and runs migrations.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. runlog).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region fold-count
// FoldCount returns the number of folds, taken as one past the highest fold id.
func (s *SQLiteStore) FoldCount(ctx context.Context) (int, error) {
	var maxID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(fold_id) FROM fold_columns`).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("count folds: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return int(maxID.Int64) + 1, nil
}

// #endregion fold-count

// #region read-column
// ReadColumn loads one column of one fold. The bool is false when the column
// does not exist.
func (s *SQLiteStore) ReadColumn(ctx context.Context, foldID int, name string) (tensor.Matrix, bool, error) {
	var m tensor.Matrix
	var squeezed int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT rows, cols, squeezed, data FROM fold_columns WHERE fold_id = ? AND name = ?`,
		foldID, name,
	).Scan(&m.Rows, &m.Cols, &squeezed, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return tensor.Matrix{}, false, nil
	}
	if err != nil {
		return tensor.Matrix{}, false, fmt.Errorf("read fold %d column %s: %w", foldID, name, err)
	}
	m.Squeezed = squeezed != 0
	m.Data = decodeFloats(blob)
	if err := m.Validate(); err != nil {
		return tensor.Matrix{}, false, fmt.Errorf("fold %d column %s: %w", foldID, name, err)
	}
	return m, true, nil
}

// #endregion read-column

// #region write-column
// WriteColumn creates the column or overwrites it in place. Overwrites must
// keep the stored row and column counts.
func (s *SQLiteStore) WriteColumn(ctx context.Context, foldID int, name string, m tensor.Matrix) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("write fold %d column %s: %w", foldID, name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var rows, cols int
	err = tx.QueryRowContext(ctx,
		`SELECT rows, cols FROM fold_columns WHERE fold_id = ? AND name = ?`, foldID, name,
	).Scan(&rows, &cols)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("check column: %w", err)
	case rows != m.Rows || cols != m.Cols:
		return fmt.Errorf("fold %d column %s is %dx%d, got %dx%d: %w",
			foldID, name, rows, cols, m.Rows, m.Cols, ErrShapeMismatch)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO fold_columns (fold_id, name, rows, cols, squeezed, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(fold_id, name) DO UPDATE SET
			squeezed = excluded.squeezed,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		foldID, name, m.Rows, m.Cols, boolInt(m.Squeezed), encodeFloats(m.Data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert column: %w", err)
	}
	return tx.Commit()
}

// #endregion write-column

// #region list-columns
// ListColumns describes every stored column, ordered by fold then name.
func (s *SQLiteStore) ListColumns(ctx context.Context) ([]ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fold_id, name, rows, cols, squeezed FROM fold_columns ORDER BY fold_id, name`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var infos []ColumnInfo
	for rows.Next() {
		var ci ColumnInfo
		var squeezed int
		if err := rows.Scan(&ci.FoldID, &ci.Name, &ci.Rows, &ci.Cols, &squeezed); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		ci.Squeezed = squeezed != 0
		infos = append(infos, ci)
	}
	return infos, rows.Err()
}

// #endregion list-columns

// #region encoding
func encodeFloats(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeFloats(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion encoding
