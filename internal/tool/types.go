// Package tool implements the tool dispatch router and provenance gate
// (spec.md §4.7): a static handler table keyed by tool name, an
// execution-flow admissibility matrix, and a provenance validator for
// tools that touch indices or memory. Grounded on the teacher's
// internal/mcp.Server.CallTool dispatch switch, generalized from a
// four-tool switch into a registration map because spec.md names nine
// tools rather than four.
package tool

import "time"

// Flow is the closed set of execution-flow modes a tool call declares.
type Flow string

const (
	FlowStdioOnly    Flow = "stdio-only"
	FlowClientHybrid Flow = "client-hybrid"
	FlowServerHybrid Flow = "server-hybrid"
)

// Name is the closed set of tool names spec.md §4.7 lists.
type Name string

const (
	ToolIndex    Name = "index"
	ToolSearch   Name = "search"
	ToolMemory   Name = "memory"
	ToolSession  Name = "session"
	ToolAgent    Name = "agent"
	ToolProject  Name = "project"
	ToolVCS      Name = "vcs"
	ToolEntity   Name = "entity"
	ToolValidate Name = "validate"
)

// Provenance carries the identity fields spec.md §4.7 requires for
// gated tools. ParentSessionID is only required when Delegated is true.
type Provenance struct {
	SessionID       string
	RepoID          string
	RepoPath        string
	OperatorID      string
	MachineID       string
	AgentProgram    string
	ModelID         string
	Delegated       bool
	Timestamp       time.Time
	ParentSessionID string
}

// ExecutionContext is the enriched context a Handler receives: the
// declared execution flow and, for gated tools, a validated Provenance.
type ExecutionContext struct {
	Flow       Flow
	Provenance *Provenance
}

// ContentFragment is one piece of a ToolCallResult's content list.
type ContentFragment struct {
	Type string // "text", matching the teacher's MCP content-fragment shape
	Text string
}

// Result is the structured outcome of a tool invocation (spec.md §4.7
// step 5).
type Result struct {
	Content []ContentFragment
	IsError bool
}

// TextResult builds a single-fragment success Result.
func TextResult(text string) Result {
	return Result{Content: []ContentFragment{{Type: "text", Text: text}}}
}

// ErrorResult builds a single-fragment error Result.
func ErrorResult(text string) Result {
	return Result{Content: []ContentFragment{{Type: "text", Text: text}}, IsError: true}
}

// Handler processes one parsed tool call.
type Handler func(ctx ExecutionHandlerContext) (Result, error)

// ExecutionHandlerContext bundles everything a Handler needs: the
// standard context.Context is carried by the caller's ambient Go context;
// this struct is the spec-domain payload.
type ExecutionHandlerContext struct {
	Name Name
	Args map[string]any
	Exec ExecutionContext
}

// PostExecutionEvent is emitted after a successful dispatch (spec.md
// §4.7 step 4), e.g. for downstream automatic observation capture.
type PostExecutionEvent struct {
	Tool       Name
	Success    bool
	Duration   time.Duration
	Provenance *Provenance
}

// PostExecutionHook observes PostExecutionEvents. Hooks run synchronously
// and in registration order; the teacher has no hook system, this is
// grounded on the dispatch-then-notify shape of internal/mcp/server.go's
// CallTool -> result-conversion flow.
type PostExecutionHook func(event PostExecutionEvent)
