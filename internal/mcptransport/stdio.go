package mcptransport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/marlonsc/mcbgo/internal/tool"
	"github.com/marlonsc/mcbgo/pkg/version"
)

// toolDescriptions mirrors the teacher's ListTools-style catalogue: one
// human-facing description per dispatch-table entry.
var toolDescriptions = map[tool.Name]string{
	tool.ToolSearch:   "Hybrid BM25 + vector search over the indexed codebase.",
	tool.ToolIndex:    "Report hybrid search index stats (action=status) or trigger a reconciliation pass over the project tree (action=run).",
	tool.ToolMemory:   "Write, fetch, or list durable observations scoped to a project.",
	tool.ToolSession:  "Start or advance an agent session's task-execution state machine.",
	tool.ToolAgent:    "Record a parent-to-child session delegation.",
	tool.ToolProject:  "Resolve, list, or forget project-name-to-collection mappings.",
	tool.ToolVCS:      "Resolve the current branch, commit, and dirty status of a repository.",
	tool.ToolEntity:   "Resolve VCS entity metadata for provenance attachment.",
	tool.ToolValidate: "Run a stdio/client-hybrid-only consistency check.",
}

// StdioServer exposes a Composition's Router over the MCP stdio transport,
// matching the teacher's internal/mcp.Server.Serve("stdio", ...) shape.
type StdioServer struct {
	router *tool.Router
	mcp    *mcp.Server
	logger *slog.Logger
}

// NewStdioServer builds an MCP server with one generic tool registered per
// entry in router's dispatch table.
func NewStdioServer(comp *Composition) *StdioServer {
	router := comp.BuildRouter()
	srv := &StdioServer{
		router: router,
		logger: comp.Logger,
	}

	srv.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "mcbgo",
		Version: version.Version,
	}, nil)

	for name, desc := range toolDescriptions {
		name := name
		mcp.AddTool(srv.mcp, &mcp.Tool{
			Name:        string(name),
			Description: desc,
		}, srv.handlerFor(name))
	}

	return srv
}

// handlerFor adapts a tool.Name dispatch into the go-sdk's generic
// (ctx, *CallToolRequest, map[string]any) -> (*CallToolResult, map[string]any, error)
// signature. Provenance arrives embedded in the arguments under "_provenance"
// since stdio JSON-RPC carries no out-of-band header channel; the
// server-hybrid HTTP binding (http.go) builds it from request headers
// instead.
func (s *StdioServer) handlerFor(name tool.Name) func(context.Context, *mcp.CallToolRequest, map[string]any) (*mcp.CallToolResult, map[string]any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input map[string]any) (*mcp.CallToolResult, map[string]any, error) {
		exec := tool.ExecutionContext{
			Flow:       tool.FlowStdioOnly,
			Provenance: provenanceFromArgs(input),
		}

		result, err := s.router.Dispatch(ctx, name, input, exec)
		if err != nil {
			return nil, nil, err
		}

		out := map[string]any{
			"is_error": result.IsError,
		}
		if len(result.Content) > 0 {
			out["text"] = result.Content[0].Text
		}
		return nil, out, nil
	}
}

func provenanceFromArgs(args map[string]any) *tool.Provenance {
	raw, ok := args["_provenance"].(map[string]any)
	if !ok {
		return nil
	}
	get := func(k string) string {
		v, _ := raw[k].(string)
		return v
	}
	delegated, _ := raw["delegated"].(bool)
	return &tool.Provenance{
		SessionID:       get("session_id"),
		RepoID:          get("repo_id"),
		RepoPath:        get("repo_path"),
		OperatorID:      get("operator_id"),
		MachineID:       get("machine_id"),
		AgentProgram:    get("agent_program"),
		ModelID:         get("model_id"),
		Delegated:       delegated,
		ParentSessionID: get("parent_session_id"),
		Timestamp:       time.Now().UTC(),
	}
}

// Run blocks serving the MCP stdio transport until ctx is cancelled.
func (s *StdioServer) Run(ctx context.Context) error {
	s.logger.Info("starting mcp stdio transport")
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		return fmt.Errorf("mcp stdio transport stopped: %w", err)
	}
	return nil
}
