// Package repo declares the narrow SQL executor port (spec.md §4.8) that
// every repository implementation (internal/observation, internal/session,
// …) is built against, plus the canonical schema model in its schema
// sub-package and a SQLite-backed implementation in its sqlite sub-package.
package repo

import "context"

// Row exposes typed column getters that never panic on a type mismatch or a
// missing column — they report ok=false instead.
type Row interface {
	GetString(col string) (string, bool)
	GetInt64(col string) (int64, bool)
	GetFloat64(col string) (float64, bool)
	GetBool(col string) (bool, bool)
}

// Executor is the narrow SQL port every backend dialect implements.
type Executor interface {
	// Execute runs a statement with no expected result rows (INSERT/UPDATE/
	// DELETE/DDL) and returns the number of affected rows where the
	// underlying driver reports one.
	Execute(ctx context.Context, sql string, params ...any) (int64, error)

	// QueryOne returns the first row of a result set, or (nil, nil) when
	// the query matches no rows.
	QueryOne(ctx context.Context, sql string, params ...any) (Row, error)

	// QueryAll returns every row of a result set.
	QueryAll(ctx context.Context, sql string, params ...any) ([]Row, error)
}

// Tx is an Executor scoped to a single transaction; Commit/Rollback finalise
// it. Repositories use this for the insert + FTS-mirror atomic boundary
// spec.md §4.5/§5 requires.
type Tx interface {
	Executor
	Commit() error
	Rollback() error
}

// TxBeginner is implemented by executors that support explicit transaction
// boundaries.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}
