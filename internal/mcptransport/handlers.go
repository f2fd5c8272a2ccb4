package mcptransport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
	"github.com/marlonsc/mcbgo/internal/mcp"
	"github.com/marlonsc/mcbgo/internal/observation"
	"github.com/marlonsc/mcbgo/internal/search"
	"github.com/marlonsc/mcbgo/internal/session"
	"github.com/marlonsc/mcbgo/internal/tool"
)

func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func argStrings(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// handleSearch dispatches the hybrid search engine for the `search` tool.
func (c *Composition) handleSearch(h tool.ExecutionHandlerContext) (tool.Result, error) {
	if c.Search == nil {
		return tool.Result{}, mcberrors.InternalError("search engine not configured", nil)
	}
	query := argString(h.Args, "query")
	if query == "" {
		return tool.Result{}, mcberrors.InvalidArgumentError("query", "must be a non-empty string")
	}
	limit := argInt(h.Args, "limit", 10)

	results, err := c.Search.Search(context.Background(), query, search.SearchOptions{Limit: limit})
	if err != nil {
		return tool.Result{}, mcberrors.New(mcberrors.ErrCodeSearchFailed, "search failed", err)
	}

	return tool.TextResult(mcp.FormatSearchResults(query, results)), nil
}

// handleIndex reports hybrid index stats (action="status", the default) or
// starts a reconciliation pass over the project tree (action="run"),
// delegating chunk production and embedding to internal/index.Coordinator.
// When a background indexer is configured, "run" is non-blocking and
// "status" reports its live progress while a run is in flight; otherwise
// "run" falls back to a synchronous reconciliation.
func (c *Composition) handleIndex(h tool.ExecutionHandlerContext) (tool.Result, error) {
	if c.Search == nil {
		return tool.Result{}, mcberrors.InternalError("search engine not configured", nil)
	}
	action := argString(h.Args, "action")
	if action == "" {
		action = "status"
	}

	switch action {
	case "status":
		if c.Background != nil && c.Background.IsRunning() {
			return tool.TextResult(fmt.Sprintf("reconciliation in progress: %+v", c.Background.Progress().Snapshot())), nil
		}
		stats := c.Search.Stats()
		return tool.TextResult(fmt.Sprintf("index ready: %+v", stats)), nil

	case "run":
		if c.Indexer == nil {
			return tool.Result{}, mcberrors.InternalError("index coordinator not configured", nil)
		}
		if c.Background != nil {
			if c.Background.IsRunning() {
				return tool.TextResult("reconciliation already in progress"), nil
			}
			c.Background.Start(context.Background())
			return tool.TextResult("reconciliation started"), nil
		}
		if err := c.Indexer.ReconcileFilesOnStartup(context.Background()); err != nil {
			return tool.Result{}, mcberrors.New(mcberrors.ErrCodeInternal, "reconciliation failed", err)
		}
		stats := c.Search.Stats()
		return tool.TextResult(fmt.Sprintf("reconciliation complete: %+v", stats)), nil

	default:
		return tool.Result{}, mcberrors.InvalidArgumentError("action", "must be one of status, run")
	}
}

// handleMemory implements the `memory` tool's write/get/list actions over
// internal/observation.Store.
func (c *Composition) handleMemory(h tool.ExecutionHandlerContext) (tool.Result, error) {
	if c.Observations == nil {
		return tool.Result{}, mcberrors.InternalError("observation store not configured", nil)
	}
	ctx := context.Background()
	action := argString(h.Args, "action")
	projectID := argString(h.Args, "project_id")
	if projectID == "" && h.Exec.Provenance != nil {
		projectID = h.Exec.Provenance.RepoID
	}

	switch action {
	case "write":
		typ, ok := observation.ParseType(argString(h.Args, "type"))
		if !ok {
			return tool.Result{}, mcberrors.InvalidArgumentError("type", "must be one of the closed observation types")
		}
		in := observation.WriteInput{
			ProjectID: projectID,
			Content:   argString(h.Args, "content"),
			Tags:      argStrings(h.Args, "tags"),
			Type:      typ,
			SessionID: provenanceOr(h.Exec, argString(h.Args, "session_id"), func(p *tool.Provenance) string { return p.SessionID }),
			RepoID:    projectID,
		}
		res, err := c.Observations.Write(ctx, in)
		if err != nil {
			return tool.Result{}, err
		}
		return tool.TextResult(fmt.Sprintf("id=%s deduplicated=%v", res.ID, res.Deduplicated)), nil

	case "get":
		obs, err := c.Observations.GetByID(ctx, projectID, argString(h.Args, "id"))
		if err != nil {
			return tool.Result{}, err
		}
		return tool.TextResult(obs.Content), nil

	case "list":
		typ, _ := observation.ParseType(argString(h.Args, "type"))
		results, err := c.Observations.List(ctx, observation.ListFilter{
			ProjectID: projectID,
			Type:      typ,
			Tags:      argStrings(h.Args, "tags"),
			Limit:     argInt(h.Args, "limit", 20),
		})
		if err != nil {
			return tool.Result{}, err
		}
		return tool.TextResult(fmt.Sprintf("%d observations", len(results))), nil

	default:
		return tool.Result{}, mcberrors.InvalidArgumentError("action", "must be one of write, get, list")
	}
}

func provenanceOr(exec tool.ExecutionContext, fallback string, get func(*tool.Provenance) string) string {
	if fallback != "" {
		return fallback
	}
	if exec.Provenance != nil {
		return get(exec.Provenance)
	}
	return ""
}

// handleSession implements the `session` tool's start/apply actions over
// internal/session.Manager.
func (c *Composition) handleSession(h tool.ExecutionHandlerContext) (tool.Result, error) {
	if c.Sessions == nil {
		return tool.Result{}, mcberrors.InternalError("session manager not configured", nil)
	}
	ctx := context.Background()
	action := argString(h.Args, "action")

	switch action {
	case "start":
		sess, err := c.Sessions.Start(ctx, argString(h.Args, "project_id"))
		if err != nil {
			return tool.Result{}, err
		}
		return tool.TextResult(fmt.Sprintf("session_id=%s state=%s version=%d", sess.ID, sess.State, sess.Version)), nil

	case "apply":
		trig, err := parseTrigger(h.Args)
		if err != nil {
			return tool.Result{}, err
		}
		sess, err := c.Sessions.Apply(ctx, argString(h.Args, "session_id"), argInt(h.Args, "expected_version", 0), trig)
		if err != nil {
			return tool.Result{}, err
		}
		return tool.TextResult(fmt.Sprintf("state=%s version=%d", sess.State, sess.Version)), nil

	default:
		return tool.Result{}, mcberrors.InvalidArgumentError("action", "must be one of start, apply")
	}
}

func parseTrigger(args map[string]any) (session.Trigger, error) {
	switch session.TriggerKind(argString(args, "trigger")) {
	case session.TriggerContextDiscovered:
		return session.ContextDiscovered(argString(args, "context_id")), nil
	case session.TriggerStartPlanning:
		return session.StartPlanning(argString(args, "phase_id")), nil
	case session.TriggerStartExecution:
		return session.StartExecution(argString(args, "phase_id")), nil
	case session.TriggerClaimTask:
		return session.ClaimTask(argString(args, "task_id")), nil
	case session.TriggerCompleteTask:
		return session.CompleteTask(argString(args, "task_id")), nil
	case session.TriggerStartVerification:
		return session.StartVerification(), nil
	case session.TriggerVerificationPassed:
		return session.VerificationPassed(), nil
	case session.TriggerVerificationFailed:
		return session.VerificationFailed(argString(args, "reason")), nil
	case session.TriggerCompletePhase:
		return session.CompletePhase(), nil
	case session.TriggerError:
		return session.ErrorTrigger(argString(args, "reason")), nil
	case session.TriggerRecover:
		return session.Recover(), nil
	case session.TriggerEndSession:
		return session.EndSession(), nil
	default:
		return session.Trigger{}, mcberrors.InvalidArgumentError("trigger", "unrecognized trigger name")
	}
}

// handleProject implements the `project` tool's collection name resolution
// over internal/collection.Mapper.
func (c *Composition) handleProject(h tool.ExecutionHandlerContext) (tool.Result, error) {
	if c.Collections == nil {
		return tool.Result{}, mcberrors.InternalError("collection mapper not configured", nil)
	}
	action := argString(h.Args, "action")
	name := argString(h.Args, "name")

	switch action {
	case "resolve":
		id, err := c.Collections.Resolve(name)
		if err != nil {
			return tool.Result{}, err
		}
		return tool.TextResult(id), nil
	case "forget":
		if err := c.Collections.Forget(name); err != nil {
			return tool.Result{}, err
		}
		return tool.TextResult("forgotten"), nil
	case "list":
		entries, err := c.Collections.List()
		if err != nil {
			return tool.Result{}, err
		}
		return tool.TextResult(fmt.Sprintf("%d collections", len(entries))), nil
	default:
		return tool.Result{}, mcberrors.InvalidArgumentError("action", "must be one of resolve, forget, list")
	}
}

// handleVCS implements the `vcs` tool's branch/commit resolution over
// internal/vcsinfo.Resolver.
func (c *Composition) handleVCS(h tool.ExecutionHandlerContext) (tool.Result, error) {
	if c.VCS == nil {
		return tool.Result{}, mcberrors.InternalError("vcs resolver not configured", nil)
	}
	repoPath := argString(h.Args, "repo_path")
	if repoPath == "" && h.Exec.Provenance != nil {
		repoPath = h.Exec.Provenance.RepoPath
	}
	info, err := c.VCS.Resolve(repoPath)
	if err != nil {
		return tool.Result{}, err
	}
	return tool.TextResult(fmt.Sprintf("branch=%s commit=%s dirty=%v", info.Branch, info.CommitSHA, info.Dirty)), nil
}

// handleEntity implements the `entity` tool. spec.md §9's open-question
// log notes this overlaps in purpose with `vcs` (the source names both
// `entity` and `vcs_entity` independently); both are kept as distinct
// dispatch-table entries rather than unified, per that note.
func (c *Composition) handleEntity(h tool.ExecutionHandlerContext) (tool.Result, error) {
	return c.handleVCS(h)
}

// handleAgent implements the `agent` tool's delegation bookkeeping: a
// parent session records a child session it spawned.
func (c *Composition) handleAgent(h tool.ExecutionHandlerContext) (tool.Result, error) {
	if c.DB == nil {
		return tool.Result{}, mcberrors.InternalError("repository executor not configured", nil)
	}
	action := argString(h.Args, "action")
	if action != "delegate" {
		return tool.Result{}, mcberrors.InvalidArgumentError("action", "must be delegate")
	}

	parent := argString(h.Args, "parent_session_id")
	child := argString(h.Args, "child_session_id")
	if parent == "" || child == "" {
		return tool.Result{}, mcberrors.InvalidArgumentError("parent_session_id/child_session_id", "both are required")
	}

	_, err := c.DB.Execute(context.Background(), `
		INSERT INTO delegations (id, parent_session_id, child_session_id, created_at)
		VALUES (?, ?, ?, ?)`, uuid.NewString(), parent, child, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return tool.Result{}, mcberrors.New(mcberrors.ErrCodeDatabase, "failed to record delegation", err)
	}

	token := ""
	if c.Delegations != nil {
		token, err = c.Delegations.Issue(parent, child)
		if err != nil {
			return tool.Result{}, mcberrors.New(mcberrors.ErrCodeInternal, "failed to issue delegation token", err)
		}
	}
	return tool.TextResult(fmt.Sprintf("delegation recorded token=%s", token)), nil
}

// handleValidate is a stdio/client-hybrid-only no-op check tool (spec.md
// §4.7's mode-matrix example); it exists primarily to exercise the mode
// matrix gate and always succeeds once dispatched.
func (c *Composition) handleValidate(h tool.ExecutionHandlerContext) (tool.Result, error) {
	return tool.TextResult("ok"), nil
}
