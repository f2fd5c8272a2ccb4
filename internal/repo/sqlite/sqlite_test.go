package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marlonsc/mcbgo/internal/repo/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx, schema.Default()))
	require.NoError(t, s.Migrate(ctx, schema.Default()))
}

func TestStore_ExecuteAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx, schema.Default()))

	_, err := s.Execute(ctx,
		`INSERT INTO organisations (id, name, created_at) VALUES (?, ?, ?)`,
		"org-1", "acme", "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	row, err := s.QueryOne(ctx, `SELECT id, name FROM organisations WHERE id = ?`, "org-1")
	require.NoError(t, err)
	require.NotNil(t, row)

	name, ok := row.GetString("name")
	require.True(t, ok)
	assert.Equal(t, "acme", name)

	missing, err := s.QueryOne(ctx, `SELECT id FROM organisations WHERE id = ?`, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_QueryAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx, schema.Default()))

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Execute(ctx,
			`INSERT INTO organisations (id, name, created_at) VALUES (?, ?, ?)`,
			id, id, "2026-01-01T00:00:00Z")
		require.NoError(t, err)
	}

	rows, err := s.QueryAll(ctx, `SELECT id FROM organisations ORDER BY id`)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestStore_TransactionRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx, schema.Default()))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)

	_, err = tx.Execute(ctx,
		`INSERT INTO organisations (id, name, created_at) VALUES (?, ?, ?)`,
		"org-x", "rollback-me", "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	row, err := s.QueryOne(ctx, `SELECT id FROM organisations WHERE id = ?`, "org-x")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestStore_FTSMirrorStaysInSync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx, schema.Default()))

	_, err := s.Execute(ctx,
		`INSERT INTO organisations (id, name, created_at) VALUES ('org-1', 'acme', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = s.Execute(ctx,
		`INSERT INTO projects (id, organisation_id, name, created_at) VALUES ('proj-1', 'org-1', 'demo', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)

	_, err = s.Execute(ctx,
		`INSERT INTO observations (id, project_id, content, content_hash, observation_type, tags, created_at)
		 VALUES ('obs-1', 'proj-1', 'hello world', 'hash-1', 'note', '[]', 1)`)
	require.NoError(t, err)

	rows, err := s.QueryAll(ctx,
		`SELECT o.id AS id FROM observations o
		 JOIN observations_fts ON observations_fts.rowid = o.rowid
		 WHERE observations_fts MATCH 'hello'`)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
