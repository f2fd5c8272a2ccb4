package mcptransport

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marlonsc/mcbgo/internal/collection"
	"github.com/marlonsc/mcbgo/internal/observation"
	"github.com/marlonsc/mcbgo/internal/repo/schema"
	"github.com/marlonsc/mcbgo/internal/repo/sqlite"
	"github.com/marlonsc/mcbgo/internal/search"
	"github.com/marlonsc/mcbgo/internal/session"
	"github.com/marlonsc/mcbgo/internal/store"
	"github.com/marlonsc/mcbgo/internal/tool"
	"github.com/marlonsc/mcbgo/internal/vcsinfo"
	"github.com/marlonsc/mcbgo/internal/vectorstore"
)

// stubEngine is a minimal in-memory search.SearchEngine for exercising the
// search/index handlers without standing up the full hybrid pipeline.
type stubEngine struct {
	results []*search.SearchResult
}

func (s *stubEngine) Search(_ context.Context, _ string, _ search.SearchOptions) ([]*search.SearchResult, error) {
	return s.results, nil
}
func (s *stubEngine) Index(_ context.Context, _ []*store.Chunk) error { return nil }
func (s *stubEngine) Delete(_ context.Context, _ []string) error      { return nil }
func (s *stubEngine) Stats() *search.EngineStats                     { return &search.EngineStats{VectorCount: len(s.results)} }
func (s *stubEngine) Close() error                                   { return nil }

func newTestComposition(t *testing.T) *Composition {
	t.Helper()
	db, err := sqlite.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background(), schema.Default()))

	_, err = db.Execute(context.Background(), `INSERT INTO organisations (id, name, created_at) VALUES ('org1', 'Org', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	_, err = db.Execute(context.Background(), `INSERT INTO projects (id, organisation_id, name, created_at) VALUES ('proj1', 'org1', 'Proj', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)

	obsStore := observation.NewStore(db, vectorstore.NewMemoryStore(), nil, "observations", slog.Default())
	sessions := session.NewManager(session.NewSQLStorage(db))
	mapper := collection.NewMapper(t.TempDir() + "/collections.json")

	return NewComposition(db, obsStore, sessions, mapper, vcsinfo.NewResolver(), &stubEngine{}, nil, nil, slog.Default())
}

func TestComposition_BuildRouterRegistersAllTools(t *testing.T) {
	comp := newTestComposition(t)
	router := comp.BuildRouter()
	require.NotNil(t, router)
}

func TestHandleMemory_Write(t *testing.T) {
	comp := newTestComposition(t)
	router := comp.BuildRouter()
	ctx := context.Background()
	exec := tool.ExecutionContext{Flow: tool.FlowStdioOnly}

	res, err := router.Dispatch(ctx, tool.ToolMemory, map[string]any{
		"action":     "write",
		"project_id": "proj1",
		"content":    "hello world",
		"type":       "code",
	}, exec)
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestHandleSession_Start(t *testing.T) {
	comp := newTestComposition(t)
	router := comp.BuildRouter()
	ctx := context.Background()
	exec := tool.ExecutionContext{Flow: tool.FlowStdioOnly}

	res, err := router.Dispatch(ctx, tool.ToolSession, map[string]any{
		"action":     "start",
		"project_id": "proj1",
	}, exec)
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestHandleSearch_ReturnsStubResults(t *testing.T) {
	comp := newTestComposition(t)
	router := comp.BuildRouter()
	ctx := context.Background()
	exec := tool.ExecutionContext{Flow: tool.FlowStdioOnly}

	res, err := router.Dispatch(ctx, tool.ToolSearch, map[string]any{
		"query": "hello",
	}, exec)
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestHandleValidate_AllowedUnderStdio(t *testing.T) {
	comp := newTestComposition(t)
	router := comp.BuildRouter()
	ctx := context.Background()
	exec := tool.ExecutionContext{Flow: tool.FlowStdioOnly}

	res, err := router.Dispatch(ctx, tool.ToolValidate, map[string]any{}, exec)
	require.NoError(t, err)
	require.False(t, res.IsError)
}
