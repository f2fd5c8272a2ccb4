package tool

import mcberrors "github.com/marlonsc/mcbgo/internal/errors"

// modeMatrix lists, per tool, the execution flows under which it may run.
// Absence of a tool from this map means "all flows admissible" (spec.md
// §4.7's "all others" row).
var modeMatrix = map[Name][]Flow{
	ToolValidate: {FlowStdioOnly, FlowClientHybrid},
}

// checkModeMatrix enforces spec.md §4.7's execution-flow admissibility
// table, rejecting before any handler runs.
func checkModeMatrix(name Name, flow Flow) error {
	allowed, restricted := modeMatrix[name]
	if !restricted {
		return nil
	}
	for _, f := range allowed {
		if f == flow {
			return nil
		}
	}
	return mcberrors.ModeMatrixViolationError(string(name), string(flow))
}

// gatedTools require a validated Provenance (spec.md §4.7's "tools that
// touch indices or memory").
var gatedTools = map[Name]bool{
	ToolIndex:  true,
	ToolSearch: true,
	ToolMemory: true,
}

// checkProvenance validates that p carries every field spec.md §4.7
// requires for a gated tool, collecting every missing field name into one
// MissingProvenance error.
func checkProvenance(name Name, p *Provenance) error {
	if !gatedTools[name] {
		return nil
	}
	if p == nil {
		return mcberrors.MissingProvenanceError([]string{
			"session_id", "repo_id", "repo_path", "operator_id",
			"machine_id", "agent_program", "model_id", "timestamp",
		})
	}

	var missing []string
	if p.SessionID == "" {
		missing = append(missing, "session_id")
	}
	if p.RepoID == "" {
		missing = append(missing, "repo_id")
	}
	if p.RepoPath == "" {
		missing = append(missing, "repo_path")
	}
	if p.OperatorID == "" {
		missing = append(missing, "operator_id")
	}
	if p.MachineID == "" {
		missing = append(missing, "machine_id")
	}
	if p.AgentProgram == "" {
		missing = append(missing, "agent_program")
	}
	if p.ModelID == "" {
		missing = append(missing, "model_id")
	}
	if p.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if p.Delegated && p.ParentSessionID == "" {
		missing = append(missing, "parent_session_id")
	}

	if len(missing) > 0 {
		return mcberrors.MissingProvenanceError(missing)
	}
	return nil
}
