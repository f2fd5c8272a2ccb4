// Package sqlite implements internal/repo's Executor port over
// modernc.org/sqlite (pure Go, no CGO), grounded on
// internal/store.SQLiteBM25Index's connection setup: WAL journal mode, a
// single writer connection, and a busy timeout to ride out lock
// contention, per spec.md §4.8.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/marlonsc/mcbgo/internal/repo"
	"github.com/marlonsc/mcbgo/internal/repo/schema"
)

// Store is a repo.Executor and repo.TxBeginner backed by a SQLite database.
type Store struct {
	db *sql.DB
}

var (
	_ repo.Executor   = (*Store)(nil)
	_ repo.TxBeginner = (*Store)(nil)
)

// Open opens (creating if necessary) the SQLite database at path. An empty
// path opens a private in-memory database, matching the teacher's
// test-mode convention.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only tolerates one writer at a time; serialize through a
	// single connection so WAL mode handles reader concurrency instead.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

// Migrate applies the DDL for s, in order, creating any tables/indexes/FTS
// mirrors/triggers that don't already exist. Safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context, sch schema.Schema) error {
	for _, stmt := range schema.SQLiteDDL(sch) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w\n%s", err, stmt)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Execute(ctx context.Context, query string, params ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) QueryOne(ctx context.Context, query string, params ...any) (repo.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return firstRow(rows)
}

func (s *Store) QueryAll(ctx context.Context, query string, params ...any) ([]repo.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return allRows(rows)
}

// BeginTx starts a transaction; statements run against it via the returned
// repo.Tx don't commit until Commit is called.
func (s *Store) BeginTx(ctx context.Context) (repo.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Execute(ctx context.Context, query string, params ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *sqlTx) QueryOne(ctx context.Context, query string, params ...any) (repo.Row, error) {
	rows, err := t.tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return firstRow(rows)
}

func (t *sqlTx) QueryAll(ctx context.Context, query string, params ...any) ([]repo.Row, error) {
	rows, err := t.tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return allRows(rows)
}

func (t *sqlTx) Commit() error   { return t.tx.Commit() }
func (t *sqlTx) Rollback() error { return t.tx.Rollback() }

// row is a repo.Row backed by a single decoded result row, keyed by
// column name so GetString/GetInt64/... never panic on a missing or
// mistyped column — they report ok=false instead.
type row struct {
	values map[string]any
}

func (r *row) GetString(col string) (string, bool) {
	v, ok := r.values[col]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}

func (r *row) GetInt64(col string) (int64, bool) {
	v, ok := r.values[col]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

func (r *row) GetFloat64(col string) (float64, bool) {
	v, ok := r.values[col]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func (r *row) GetBool(col string) (bool, bool) {
	v, ok := r.values[col]
	if !ok || v == nil {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case int64:
		return t != 0, true
	default:
		return false, false
	}
}

func firstRow(rows *sql.Rows) (repo.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRow(rows, cols)
	if err != nil {
		return nil, err
	}
	return r, rows.Err()
}

func allRows(rows *sql.Rows) ([]repo.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []repo.Row
	for rows.Next() {
		r, err := scanRow(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRow(rows *sql.Rows, cols []string) (*row, error) {
	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	values := make(map[string]any, len(cols))
	for i, c := range cols {
		values[c] = dest[i]
	}
	return &row{values: values}, nil
}
