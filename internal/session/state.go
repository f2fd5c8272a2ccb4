// Package session implements the agent workflow finite-state machine
// (spec.md §4.6): a closed tagged-union State, a closed Trigger enum, the
// exact transition table spec.md names, an audit Transition log, and
// optimistic-concurrency version checking. Split into state.go for the
// value type, manager.go for lifecycle operations, and storage.go for
// persistence.
package session

import "fmt"

// Kind identifies a State's tagged-union variant.
type Kind string

const (
	KindInitializing  Kind = "initializing"
	KindReady         Kind = "ready"
	KindPlanning      Kind = "planning"
	KindExecuting     Kind = "executing"
	KindVerifying     Kind = "verifying"
	KindPhaseComplete Kind = "phase_complete"
	KindCompleted     Kind = "completed"
	KindFailed        Kind = "failed"
)

// State is the closed tagged union spec.md §3/§4.6 describes. Each
// variant carries only the fields meaningful to it; String renders a
// stable, human-readable form used in Transition records.
type State struct {
	Kind Kind

	ContextID string // Ready
	PhaseID   string // Planning, Executing, Verifying, PhaseComplete
	TaskID    string // Executing; empty means "no current task"

	Error       string // Failed
	Recoverable bool   // Failed
}

func Initializing() State { return State{Kind: KindInitializing} }
func Ready(contextID string) State { return State{Kind: KindReady, ContextID: contextID} }
func Planning(phaseID string) State { return State{Kind: KindPlanning, PhaseID: phaseID} }
func Executing(phaseID, taskID string) State {
	return State{Kind: KindExecuting, PhaseID: phaseID, TaskID: taskID}
}
func Verifying(phaseID string) State { return State{Kind: KindVerifying, PhaseID: phaseID} }
func PhaseComplete(phaseID string) State {
	return State{Kind: KindPhaseComplete, PhaseID: phaseID}
}
func Completed() State { return State{Kind: KindCompleted} }
func Failed(errMsg string, recoverable bool) State {
	return State{Kind: KindFailed, Error: errMsg, Recoverable: recoverable}
}

// IsTerminal reports whether no trigger (other than idempotent no-ops) is
// accepted from this state.
func (s State) IsTerminal() bool { return s.Kind == KindCompleted }

// String renders a stable representation for audit logging and errors.
func (s State) String() string {
	switch s.Kind {
	case KindReady:
		return fmt.Sprintf("ready{%s}", s.ContextID)
	case KindPlanning:
		return fmt.Sprintf("planning{%s}", s.PhaseID)
	case KindExecuting:
		task := s.TaskID
		if task == "" {
			task = "none"
		}
		return fmt.Sprintf("executing{%s,%s}", s.PhaseID, task)
	case KindVerifying:
		return fmt.Sprintf("verifying{%s}", s.PhaseID)
	case KindPhaseComplete:
		return fmt.Sprintf("phase_complete{%s}", s.PhaseID)
	case KindFailed:
		return fmt.Sprintf("failed{%s,recoverable=%v}", s.Error, s.Recoverable)
	default:
		return string(s.Kind)
	}
}

// TriggerKind identifies a Trigger's variant.
type TriggerKind string

const (
	TriggerContextDiscovered  TriggerKind = "context_discovered"
	TriggerStartPlanning      TriggerKind = "start_planning"
	TriggerStartExecution     TriggerKind = "start_execution"
	TriggerClaimTask          TriggerKind = "claim_task"
	TriggerCompleteTask       TriggerKind = "complete_task"
	TriggerStartVerification  TriggerKind = "start_verification"
	TriggerVerificationPassed TriggerKind = "verification_passed"
	TriggerVerificationFailed TriggerKind = "verification_failed"
	TriggerCompletePhase      TriggerKind = "complete_phase"
	TriggerError              TriggerKind = "error"
	TriggerRecover            TriggerKind = "recover"
	TriggerEndSession         TriggerKind = "end_session"
)

// Trigger is the closed enum of session events spec.md §4.6 names.
type Trigger struct {
	Kind TriggerKind

	ContextID string // ContextDiscovered
	PhaseID   string // StartPlanning, StartExecution
	TaskID    string // ClaimTask, CompleteTask
	Reason    string // VerificationFailed, Error
}

func ContextDiscovered(contextID string) Trigger {
	return Trigger{Kind: TriggerContextDiscovered, ContextID: contextID}
}
func StartPlanning(phaseID string) Trigger { return Trigger{Kind: TriggerStartPlanning, PhaseID: phaseID} }
func StartExecution(phaseID string) Trigger {
	return Trigger{Kind: TriggerStartExecution, PhaseID: phaseID}
}
func ClaimTask(taskID string) Trigger    { return Trigger{Kind: TriggerClaimTask, TaskID: taskID} }
func CompleteTask(taskID string) Trigger { return Trigger{Kind: TriggerCompleteTask, TaskID: taskID} }
func StartVerification() Trigger         { return Trigger{Kind: TriggerStartVerification} }
func VerificationPassed() Trigger        { return Trigger{Kind: TriggerVerificationPassed} }
func VerificationFailed(reason string) Trigger {
	return Trigger{Kind: TriggerVerificationFailed, Reason: reason}
}
func CompletePhase() Trigger         { return Trigger{Kind: TriggerCompletePhase} }
func ErrorTrigger(msg string) Trigger { return Trigger{Kind: TriggerError, Reason: msg} }
func Recover() Trigger                { return Trigger{Kind: TriggerRecover} }
func EndSession() Trigger             { return Trigger{Kind: TriggerEndSession} }

func (t Trigger) String() string { return string(t.Kind) }
