package cmd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marlonsc/mcbgo/internal/async"
	"github.com/marlonsc/mcbgo/internal/chunk"
	"github.com/marlonsc/mcbgo/internal/collection"
	"github.com/marlonsc/mcbgo/internal/config"
	"github.com/marlonsc/mcbgo/internal/embed"
	"github.com/marlonsc/mcbgo/internal/index"
	"github.com/marlonsc/mcbgo/internal/mcptransport"
	"github.com/marlonsc/mcbgo/internal/metrics"
	"github.com/marlonsc/mcbgo/internal/observation"
	"github.com/marlonsc/mcbgo/internal/preflight"
	"github.com/marlonsc/mcbgo/internal/repo/schema"
	"github.com/marlonsc/mcbgo/internal/repo/sqlite"
	"github.com/marlonsc/mcbgo/internal/scanner"
	"github.com/marlonsc/mcbgo/internal/search"
	"github.com/marlonsc/mcbgo/internal/session"
	"github.com/marlonsc/mcbgo/internal/store"
	"github.com/marlonsc/mcbgo/internal/telemetry"
	"github.com/marlonsc/mcbgo/internal/vcsinfo"
	"github.com/marlonsc/mcbgo/internal/vectorstore"
	"github.com/marlonsc/mcbgo/internal/watcher"
)

// newServeCmd wires the composition root and runs it over stdio or HTTP,
// per spec.md §6's transport split and SPEC_FULL.md §7.
func newServeCmd() *cobra.Command {
	var transportOverride string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP tool server (stdio or HTTP)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if transportOverride != "" {
				cfg.Server.Transport = transportOverride
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&transportOverride, "transport", "", "Override server.transport (stdio|http)")
	return cmd
}

// runServe builds the composition root from cfg and serves it until ctx is
// cancelled or a termination signal arrives.
func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runPreflight(cfg, logger); err != nil {
		return fmt.Errorf("preflight check: %w", err)
	}

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx, schema.Default()); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	vectors, err := newVectorStore(ctx, cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("open vector store: %w", err)
	}

	embedder := newEmbedder(cfg.Embeddings, cfg.Cache, logger)

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.New(cfg.Metrics.Namespace)
	}

	var obsEmbedder observation.Embedder
	if cfg.Embeddings.Provider != "null" {
		obsEmbedder = embedder
	}
	obsStore := observation.NewStore(db, vectors, obsEmbedder, "observations", logger).
		WithErrorPatterns(observation.NewErrorPatternMatcher(db)).
		WithMetrics(reg)
	sessions := session.NewManager(session.NewSQLStorage(db)).WithMetrics(reg)
	mapper := collection.NewMapper(cfg.Collection.MappingPath)
	vcs := vcsinfo.NewResolver()

	engine, coordinator, background, err := newHybridIndex(ctx, cfg, embedder, logger)
	if err != nil {
		return fmt.Errorf("build hybrid index: %w", err)
	}

	comp := mcptransport.NewComposition(db, obsStore, sessions, mapper, vcs, engine, coordinator, background, logger).
		WithMetrics(reg)

	if coordinator != nil {
		if err := coordinator.ReconcileOnStartup(ctx); err != nil {
			logger.Warn("startup gitignore reconciliation failed", slog.String("error", err.Error()))
		}
		if err := coordinator.ReconcileFilesOnStartup(ctx); err != nil {
			logger.Warn("startup file reconciliation failed", slog.String("error", err.Error()))
		}
		root, rootErr := os.Getwd()
		if rootErr == nil {
			go watchForChanges(ctx, root, coordinator, logger)
		}
	}

	if reg != nil {
		go serveMetrics(cfg.Metrics.Addr, reg, logger)
	}

	switch cfg.Server.Transport {
	case "http":
		handler := mcptransport.NewHTTPHandler(comp)
		srv := &http.Server{Addr: cfg.Server.HTTPAddr, Handler: handler}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		logger.Info("serving mcp over http", slog.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case "stdio", "":
		return mcptransport.NewStdioServer(comp).Run(ctx)
	default:
		return fmt.Errorf("unsupported transport %q", cfg.Server.Transport)
	}
}

// runPreflight validates disk space, memory, file descriptor limits, and
// directory write access before the server opens its database or starts
// indexing, skipping the checks entirely once they have already passed
// for this data directory (preflight.NeedsCheck / MarkPassed). Only a
// critical (required) check failing aborts startup; warnings are logged
// and ignored, matching the teacher's non-critical embedder-model checks.
func runPreflight(cfg *config.Config, logger *slog.Logger) error {
	dataDir := filepath.Dir(cfg.Database.Path)
	if !preflight.NeedsCheck(dataDir) {
		return nil
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	checker := preflight.New()
	results := checker.RunAll(context.Background(), dataDir)
	for _, r := range results {
		if r.Status == preflight.StatusFail {
			logger.Warn("preflight check failed", slog.String("check", r.Name), slog.String("message", r.Message))
		} else if r.Status == preflight.StatusWarn {
			logger.Warn("preflight check warning", slog.String("check", r.Name), slog.String("message", r.Message))
		}
	}
	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("preflight checks failed: %s", checker.SummaryStatus(results))
	}

	return preflight.MarkPassed(dataDir)
}

// newVectorStore selects a backend per cfg.Backend. "pgvector" requires a
// live Postgres; falling back to an in-process store when it cannot be
// reached is out of scope here, so that failure surfaces immediately.
func newVectorStore(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.VectorStore, error) {
	switch cfg.Backend {
	case "pgvector":
		return vectorstore.NewPGVectorStore(ctx, cfg.PGDSN)
	case "memory", "":
		return vectorstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported vector store backend %q", cfg.Backend)
	}
}

// newEmbedder bridges EmbeddingsConfig's provider names ("null", "remote",
// "fastembed") onto internal/embed's provider set (ollama, mlx, static),
// which predates this config schema. There is no RemoteEmbedder
// implementation yet (SPEC_FULL.md's Open Questions), so "remote" falls
// back to the static embedder with a log line rather than failing startup.
// The result is wrapped with a process-local LRU and, when cache.RedisAddr
// is set, a shared Redis tier (internal/embed.TieredCachedEmbedder). A
// "null" provider still returns a usable (static) embedder here, since the
// hybrid search engine requires a non-nil embed.Embedder; observation
// recall's opt-out of embeddings for "null" is applied by the caller,
// which substitutes a nil observation.Embedder instead of calling this
// with a special case.
func newEmbedder(cfg config.EmbeddingsConfig, cache config.CacheConfig, logger *slog.Logger) embed.Embedder {
	var base embed.Embedder
	switch cfg.Provider {
	case "remote":
		logger.Warn("embeddings.provider=remote has no dedicated client yet; using static embedder",
			slog.String("remote_endpoint", cfg.RemoteEndpoint))
		base = embed.NewStaticEmbedder768()
	case "null", "fastembed", "":
		base = embed.NewStaticEmbedder768()
	default:
		logger.Warn("unknown embeddings provider, using static embedder", slog.String("provider", cfg.Provider))
		base = embed.NewStaticEmbedder768()
	}

	var remote *embed.RedisCache
	if cache.RedisAddr != "" {
		remote = embed.NewRedisCache(cache.RedisAddr, cache.RedisDB, cache.TTL)
		logger.Info("layering redis embedding cache", slog.String("addr", cache.RedisAddr))
	}
	return embed.NewTieredCachedEmbedder(base, cache.LRUSize, remote)
}

// newHybridIndex builds the code-search hybrid engine (BM25 + HNSW vector
// search, fused by RRF), the incremental index coordinator that feeds it,
// and a background indexer that lets the `index` tool trigger a
// reconciliation pass without blocking the calling RPC, grounded on the
// teacher's internal/search.Engine, internal/index.Coordinator, and
// internal/async.BackgroundIndexer respectively. The metadata/bm25/vector
// stores live beside cfg.Database.Path rather than sharing its SQLite
// file: the metadata store owns its own project/file/chunk schema
// (internal/store.SQLiteStore), distinct from the repo.Executor schema
// backing observations and sessions.
func newHybridIndex(ctx context.Context, cfg *config.Config, embedder embed.Embedder, logger *slog.Logger) (search.SearchEngine, *index.Coordinator, *async.BackgroundIndexer, error) {
	dataDir := filepath.Dir(cfg.Database.Path)

	metadata, err := store.NewSQLiteStore(filepath.Join(dataDir, "metadata.db"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open metadata store: %w", err)
	}

	vector, err := store.NewHNSWStore(store.VectorStoreConfig{Dimensions: embedder.Dimensions()})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open hnsw vector store: %w", err)
	}

	bm25, err := store.NewBM25IndexWithBackend(filepath.Join(dataDir, "bm25"), store.BM25Config{}, string(store.BM25BackendSQLite))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open bm25 index: %w", err)
	}

	queryMetrics := telemetry.NewQueryMetrics(nil)
	engine, err := search.NewEngine(bm25, vector, embedder, metadata, search.EngineConfig{RRFConstant: cfg.Search.RRFConstant},
		search.WithMetrics(queryMetrics))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build search engine: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolve project root: %w", err)
	}
	scan, err := scanner.New()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build scanner: %w", err)
	}

	coordinator := index.NewCoordinator(index.CoordinatorConfig{
		ProjectID:       hashPath(root),
		RootPath:        root,
		DataDir:         dataDir,
		Engine:          engine,
		Metadata:        metadata,
		CodeChunker:     chunk.NewCodeChunker(),
		MDChunker:       chunk.NewMarkdownChunker(),
		Scanner:         scan,
		ExcludePatterns: cfg.Paths.Exclude,
	})

	if err := metadata.SaveProject(ctx, &store.Project{
		ID:       hashPath(root),
		Name:     filepath.Base(root),
		RootPath: root,
	}); err != nil {
		logger.Warn("failed to seed project record", slog.String("error", err.Error()))
	}

	background := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: dataDir})
	background.IndexFunc = func(runCtx context.Context, progress *async.IndexProgress) error {
		progress.SetStage(async.StageIndexing, 0)
		return coordinator.ReconcileFilesOnStartup(runCtx)
	}

	return engine, coordinator, background, nil
}

// hashPath derives a stable project identifier from an absolute path.
func hashPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// watchForChanges starts a filesystem watcher on root and forwards batched
// events to coordinator until ctx is cancelled, keeping the hybrid index in
// sync with edits made while the server is running. Watch failures are
// logged and treated as non-fatal: the server still answers `index
// action=run` reconciliation requests on demand.
func watchForChanges(ctx context.Context, root string, coordinator *index.Coordinator, logger *slog.Logger) {
	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		logger.Warn("failed to start filesystem watcher", slog.String("error", err.Error()))
		return
	}
	if err := w.Start(ctx, root); err != nil {
		logger.Warn("failed to watch project root", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-w.Events():
			if !ok {
				return
			}
			if err := coordinator.HandleEvents(ctx, events); err != nil {
				logger.Warn("failed to apply file events", slog.String("error", err.Error()))
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			logger.Warn("filesystem watcher error", slog.String("error", err.Error()))
		}
	}
}

func serveMetrics(addr string, reg *metrics.Registry, logger *slog.Logger) {
	logger.Info("serving metrics", slog.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: reg.Handler()}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", slog.String("error", err.Error()))
	}
}
