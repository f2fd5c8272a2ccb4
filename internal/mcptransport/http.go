package mcptransport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/marlonsc/mcbgo/internal/tool"
)

// HTTPHandler serves the tool surface over a minimal net/http binding for
// server-hybrid deployments (spec.md §4.7's server-hybrid flow, §6): the
// stdio transport carries provenance embedded in JSON-RPC arguments, this
// one reads it from X-Mcbgo-* request headers instead, since server-hybrid
// callers are reverse-proxied clients that cannot easily inject a sibling
// JSON field into every tool call.
type HTTPHandler struct {
	router      *tool.Router
	delegations *tool.DelegationSigner
}

// NewHTTPHandler builds an http.Handler dispatching POST /tools/{name}
// requests onto comp's Router under FlowServerHybrid.
func NewHTTPHandler(comp *Composition) *HTTPHandler {
	return &HTTPHandler{router: comp.BuildRouter(), delegations: comp.Delegations}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/tools/")
	if name == "" || name == r.URL.Path {
		http.Error(w, "missing tool name", http.StatusBadRequest)
		return
	}

	var args map[string]any
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil && err.Error() != "EOF" {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	prov := provenanceFromHeaders(r.Header)
	if prov != nil && prov.Delegated && h.delegations != nil {
		if _, err := h.delegations.Validate(r.Header.Get("X-Mcbgo-Delegation-Token"), prov.SessionID); err != nil {
			http.Error(w, "invalid delegation token", http.StatusForbidden)
			return
		}
	}

	exec := tool.ExecutionContext{
		Flow:       tool.FlowServerHybrid,
		Provenance: prov,
	}

	result, err := h.router.Dispatch(r.Context(), tool.Name(name), args, exec)
	if err != nil {
		writeToolError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if result.IsError {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	_ = json.NewEncoder(w).Encode(result)
}

func provenanceFromHeaders(h http.Header) *tool.Provenance {
	sessionID := h.Get("X-Mcbgo-Session-Id")
	if sessionID == "" && h.Get("X-Mcbgo-Operator-Id") == "" {
		return nil
	}
	return &tool.Provenance{
		SessionID:       sessionID,
		RepoID:          h.Get("X-Mcbgo-Repo-Id"),
		RepoPath:        h.Get("X-Mcbgo-Repo-Path"),
		OperatorID:      h.Get("X-Mcbgo-Operator-Id"),
		MachineID:       h.Get("X-Mcbgo-Machine-Id"),
		AgentProgram:    h.Get("X-Mcbgo-Agent-Program"),
		ModelID:         h.Get("X-Mcbgo-Model-Id"),
		Delegated:       h.Get("X-Mcbgo-Delegated") == "true",
		ParentSessionID: h.Get("X-Mcbgo-Parent-Session-Id"),
		Timestamp:       time.Now().UTC(),
	}
}

func writeToolError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if strings.Contains(err.Error(), "canceled") {
		status = http.StatusRequestTimeout
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
