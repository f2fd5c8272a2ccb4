// Package mcptransport wires internal/tool's Router onto the process's
// concrete ports (internal/observation, internal/session,
// internal/collection, internal/vcsinfo, internal/search) and exposes it
// over both stdio (modelcontextprotocol/go-sdk/mcp, matching the
// teacher's internal/mcp.Server.Serve) and a minimal net/http binding for
// server-hybrid deployments (spec.md §6), reading `X-*` provenance
// headers into the same ExecutionContext the stdio path builds from
// JSON-RPC request metadata.
package mcptransport

import (
	"log/slog"

	"github.com/marlonsc/mcbgo/internal/async"
	"github.com/marlonsc/mcbgo/internal/collection"
	"github.com/marlonsc/mcbgo/internal/index"
	"github.com/marlonsc/mcbgo/internal/metrics"
	"github.com/marlonsc/mcbgo/internal/observation"
	"github.com/marlonsc/mcbgo/internal/repo"
	"github.com/marlonsc/mcbgo/internal/search"
	"github.com/marlonsc/mcbgo/internal/session"
	"github.com/marlonsc/mcbgo/internal/tool"
	"github.com/marlonsc/mcbgo/internal/vcsinfo"
)

// Composition bundles the concrete ports backing the tool surface.
type Composition struct {
	DB           repo.Executor
	Observations *observation.Store
	Sessions     *session.Manager
	Collections  *collection.Mapper
	VCS          *vcsinfo.Resolver
	Search       search.SearchEngine
	Indexer      *index.Coordinator
	Background   *async.BackgroundIndexer
	Delegations  *tool.DelegationSigner
	Logger       *slog.Logger
	Metrics      *metrics.Registry
}

// NewComposition wires a Composition from already-constructed ports. db is
// used directly by handlers that need ad hoc queries outside the
// observation/session abstractions (e.g. the agent tool's delegation log).
// indexer and background may both be nil when the hybrid index was not
// configured (e.g. tests), in which case the `index` tool only reports
// engine stats.
func NewComposition(db repo.Executor, obs *observation.Store, sessions *session.Manager, collections *collection.Mapper, vcs *vcsinfo.Resolver, eng search.SearchEngine, indexer *index.Coordinator, background *async.BackgroundIndexer, logger *slog.Logger) *Composition {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composition{
		DB:           db,
		Observations: obs,
		Sessions:     sessions,
		Collections:  collections,
		VCS:          vcs,
		Search:       eng,
		Indexer:      indexer,
		Background:   background,
		Delegations:  tool.NewDelegationSigner(nil, 0),
		Logger:       logger,
	}
}

// WithDelegationSigner overrides the default (zero-secret) delegation token
// signer, for deployments that configure a real HMAC secret. Returns c for
// chaining.
func (c *Composition) WithDelegationSigner(s *tool.DelegationSigner) *Composition {
	c.Delegations = s
	return c
}

// WithMetrics attaches a metrics.Registry so BuildRouter records a
// tool_calls_total/tool_call_duration sample per dispatch. Returns c for
// chaining.
func (c *Composition) WithMetrics(reg *metrics.Registry) *Composition {
	c.Metrics = reg
	return c
}

// BuildRouter registers every spec.md §4.7 tool's handler on a fresh
// Router.
func (c *Composition) BuildRouter() *tool.Router {
	r := tool.NewRouter()
	r.Register(tool.ToolSearch, c.handleSearch)
	r.Register(tool.ToolMemory, c.handleMemory)
	r.Register(tool.ToolSession, c.handleSession)
	r.Register(tool.ToolProject, c.handleProject)
	r.Register(tool.ToolVCS, c.handleVCS)
	r.Register(tool.ToolEntity, c.handleEntity)
	r.Register(tool.ToolAgent, c.handleAgent)
	r.Register(tool.ToolValidate, c.handleValidate)
	r.Register(tool.ToolIndex, c.handleIndex)

	r.OnPostExecution(func(event tool.PostExecutionEvent) {
		c.Logger.Info("tool_call_completed",
			slog.String("tool", string(event.Tool)),
			slog.Bool("success", event.Success))
	})
	if c.Metrics != nil {
		r.OnPostExecution(func(event tool.PostExecutionEvent) {
			outcome := "success"
			if !event.Success {
				outcome = "error"
			}
			c.Metrics.ObserveToolCall(string(event.Tool), outcome, event.Duration.Seconds())
		})
	}
	return r
}
