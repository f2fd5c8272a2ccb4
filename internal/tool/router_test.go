package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
)

func validProvenance() *Provenance {
	return &Provenance{
		SessionID: "s1", RepoID: "r1", RepoPath: "/repo", OperatorID: "op1",
		MachineID: "m1", AgentProgram: "agent", ModelID: "model-x", Timestamp: time.Now(),
	}
}

func TestRouter_ValidateToolRejectsServerHybrid(t *testing.T) {
	r := NewRouter()
	r.Register(ToolValidate, func(ExecutionHandlerContext) (Result, error) { return TextResult("ok"), nil })

	_, err := r.Dispatch(context.Background(), ToolValidate, nil, ExecutionContext{Flow: FlowServerHybrid})
	require.Error(t, err)
	assert.Equal(t, mcberrors.ErrCodeModeMatrixViolation, mcberrors.GetCode(err))
	assert.Contains(t, err.Error(), "server-hybrid")
}

func TestRouter_ValidateToolAllowsStdioAndClientHybrid(t *testing.T) {
	r := NewRouter()
	r.Register(ToolValidate, func(ExecutionHandlerContext) (Result, error) { return TextResult("ok"), nil })

	for _, flow := range []Flow{FlowStdioOnly, FlowClientHybrid} {
		_, err := r.Dispatch(context.Background(), ToolValidate, nil, ExecutionContext{Flow: flow})
		require.NoError(t, err)
	}
}

func TestRouter_GatedToolMissingProvenance(t *testing.T) {
	r := NewRouter()
	r.Register(ToolMemory, func(ExecutionHandlerContext) (Result, error) { return TextResult("ok"), nil })

	_, err := r.Dispatch(context.Background(), ToolMemory, nil, ExecutionContext{Flow: FlowStdioOnly})
	require.Error(t, err)
	assert.Equal(t, mcberrors.ErrCodeMissingProvenance, mcberrors.GetCode(err))

	mcbErr, ok := err.(*mcberrors.McbError)
	require.True(t, ok)
	for _, field := range []string{"session_id", "repo_id", "repo_path", "operator_id", "machine_id", "agent_program", "model_id", "timestamp"} {
		assert.Contains(t, mcbErr.Details, "missing_"+field)
	}
}

func TestRouter_GatedToolDelegatedRequiresParentSession(t *testing.T) {
	r := NewRouter()
	r.Register(ToolSearch, func(ExecutionHandlerContext) (Result, error) { return TextResult("ok"), nil })

	p := validProvenance()
	p.Delegated = true

	_, err := r.Dispatch(context.Background(), ToolSearch, nil, ExecutionContext{Flow: FlowStdioOnly, Provenance: p})
	require.Error(t, err)
	mcbErr, ok := err.(*mcberrors.McbError)
	require.True(t, ok)
	assert.Contains(t, mcbErr.Details, "missing_parent_session_id")

	p.ParentSessionID = "parent-1"
	_, err = r.Dispatch(context.Background(), ToolSearch, nil, ExecutionContext{Flow: FlowStdioOnly, Provenance: p})
	require.NoError(t, err)
}

func TestRouter_UngatedToolPassesWithoutProvenance(t *testing.T) {
	r := NewRouter()
	r.Register(ToolProject, func(ExecutionHandlerContext) (Result, error) { return TextResult("ok"), nil })

	_, err := r.Dispatch(context.Background(), ToolProject, nil, ExecutionContext{Flow: FlowServerHybrid})
	require.NoError(t, err)
}

func TestRouter_UnknownToolFails(t *testing.T) {
	r := NewRouter()
	_, err := r.Dispatch(context.Background(), Name("nonexistent"), nil, ExecutionContext{Flow: FlowStdioOnly})
	require.Error(t, err)
	assert.Equal(t, mcberrors.ErrCodeUnknownTool, mcberrors.GetCode(err))
}

func TestRouter_PostExecutionHookFiresOnSuccess(t *testing.T) {
	r := NewRouter()
	r.Register(ToolSearch, func(ExecutionHandlerContext) (Result, error) { return TextResult("ok"), nil })

	var captured PostExecutionEvent
	r.OnPostExecution(func(e PostExecutionEvent) { captured = e })

	p := validProvenance()
	_, err := r.Dispatch(context.Background(), ToolSearch, nil, ExecutionContext{Flow: FlowStdioOnly, Provenance: p})
	require.NoError(t, err)

	assert.Equal(t, ToolSearch, captured.Tool)
	assert.True(t, captured.Success)
	assert.Equal(t, p, captured.Provenance)
}

func TestRouter_HandlerErrorBecomesErrorResult(t *testing.T) {
	r := NewRouter()
	r.Register(ToolProject, func(ExecutionHandlerContext) (Result, error) {
		return Result{}, errors.New("handler exploded")
	})

	result, err := r.Dispatch(context.Background(), ToolProject, nil, ExecutionContext{Flow: FlowStdioOnly})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "handler exploded")
}

func TestRouter_CancelledContextPropagates(t *testing.T) {
	r := NewRouter()
	r.Register(ToolProject, func(ExecutionHandlerContext) (Result, error) {
		return Result{}, errors.New("some failure")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Dispatch(ctx, ToolProject, nil, ExecutionContext{Flow: FlowStdioOnly})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
