package tool

import (
	"context"
	"sync"
	"time"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
)

// Router holds the static tool dispatch table and the post-execution hook
// list, and enforces the mode matrix and provenance gates before every
// handler invocation (spec.md §4.7's "Dispatch" steps).
type Router struct {
	mu       sync.RWMutex
	handlers map[Name]Handler
	hooks    []PostExecutionHook
}

// NewRouter builds an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[Name]Handler)}
}

// Register adds (or replaces) the handler for name in the static dispatch
// table.
func (r *Router) Register(name Name, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// OnPostExecution appends a hook invoked after every successful dispatch.
func (r *Router) OnPostExecution(hook PostExecutionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// Dispatch runs spec.md §4.7's full dispatch sequence: mode-matrix gate,
// provenance gate, handler lookup/invoke, post-execution hook emission,
// and conversion into a structured Result. Cancellation of ctx propagates
// to the handler and is never masked.
func (r *Router) Dispatch(ctx context.Context, name Name, args map[string]any, exec ExecutionContext) (Result, error) {
	if err := checkModeMatrix(name, exec.Flow); err != nil {
		return Result{}, err
	}
	if err := checkProvenance(name, exec.Provenance); err != nil {
		return Result{}, err
	}

	r.mu.RLock()
	handler, ok := r.handlers[name]
	hooks := append([]PostExecutionHook(nil), r.hooks...)
	r.mu.RUnlock()

	if !ok {
		return Result{}, mcberrors.New(mcberrors.ErrCodeUnknownTool, "no handler registered for tool \""+string(name)+"\"", nil)
	}

	started := time.Now()
	result, err := handler(ExecutionHandlerContext{Name: name, Args: args, Exec: exec})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		result = ErrorResult(err.Error())
	}

	event := PostExecutionEvent{Tool: name, Success: !result.IsError, Duration: time.Since(started), Provenance: exec.Provenance}
	for _, hook := range hooks {
		hook(event)
	}

	return result, nil
}
