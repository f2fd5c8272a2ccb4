// Package observation implements the memory store (spec.md §4.5): a
// content-hash-deduplicated, append-only record of agent-produced
// knowledge, built in the teacher's MetadataStore idiom over the
// internal/repo SQL executor port.
package observation

// Type is the closed set of observation kinds spec.md §3 names. It
// deserialises from the short snake_case strings the wire protocol uses,
// per spec.md §9's "trait objects -> tagged variants for closed sets".
type Type string

const (
	TypeCode        Type = "code"
	TypeDecision    Type = "decision"
	TypeContext     Type = "context"
	TypeError       Type = "error"
	TypeSummary     Type = "summary"
	TypeExecution   Type = "execution"
	TypeQualityGate Type = "quality_gate"
)

// ParseType validates s against the closed set of observation types.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeCode, TypeDecision, TypeContext, TypeError, TypeSummary, TypeExecution, TypeQualityGate:
		return Type(s), true
	default:
		return "", false
	}
}

func (t Type) String() string { return string(t) }

// ExecutionMetadata records a single command invocation (spec.md §3).
type ExecutionMetadata struct {
	Command         string   `json:"command"`
	ExitCode        int      `json:"exit_code"`
	DurationMillis  int64    `json:"duration_ms"`
	Success         bool     `json:"success"`
	Kind            string   `json:"kind"` // test, build, lint, ...
	CoveragePercent *float64 `json:"coverage_percent,omitempty"`
	AffectedFiles   []string `json:"affected_files,omitempty"`
	OutputSummary   string   `json:"output_summary,omitempty"`
	WarningCount    int      `json:"warning_count"`
	ErrorCount      int      `json:"error_count"`
}

// QualityGateMetadata records a single quality-gate verdict (spec.md §3).
type QualityGateMetadata struct {
	GateID   string `json:"gate_id"`
	Passed   bool   `json:"passed"`
	Severity string `json:"severity"`
	Details  string `json:"details,omitempty"`
}

// OriginContext captures who/what produced an observation (spec.md §3).
type OriginContext struct {
	OperatorID      string `json:"operator_id"`
	MachineID       string `json:"machine_id"`
	AgentProgram    string `json:"agent_program"`
	ModelID         string `json:"model_id"`
	Delegated       bool   `json:"delegated"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	WorktreeID      string `json:"worktree_id,omitempty"`
}

// Observation is one immutable unit of agent-produced knowledge.
type Observation struct {
	ID          string
	ProjectID   string
	Content     string
	ContentHash string
	Tags        []string
	Type        Type
	SessionID   string
	RepoID      string
	FilePath    string
	Branch      string
	CommitSHA   string
	Execution   *ExecutionMetadata
	QualityGate *QualityGateMetadata
	Origin      *OriginContext
	EmbeddingID string
	CreatedAt   int64 // epoch seconds
}

// WriteInput is the caller-supplied content for a new observation; ID,
// ContentHash, and CreatedAt are computed by the store.
type WriteInput struct {
	ProjectID   string
	Content     string
	Tags        []string
	Type        Type
	SessionID   string
	RepoID      string
	FilePath    string
	Branch      string
	CommitSHA   string
	Execution   *ExecutionMetadata
	QualityGate *QualityGateMetadata
	Origin      *OriginContext
}

// WriteResult reports the outcome of Store.Write.
type WriteResult struct {
	ID           string
	Deduplicated bool
}

// ListFilter selects observations for Store.List. A zero value field
// means "unconstrained" for that dimension; Tags is set-containment
// (all-of), not substring.
type ListFilter struct {
	ProjectID  string
	Type       Type
	Tags       []string
	SessionID  string
	RepoID     string
	Branch     string
	CommitSHA  string
	CreatedFrom int64 // epoch seconds, inclusive; 0 = unbounded
	CreatedTo   int64 // epoch seconds, inclusive; 0 = unbounded
	Limit       int
}
