package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
	"github.com/marlonsc/mcbgo/internal/metrics"
)

// Session is the persisted workflow-session record (spec.md §3).
type Session struct {
	ID        string
	ProjectID string
	State     State
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time

	// preFailure is the state to restore on Recover; it is not persisted
	// as a distinct column, it lives inside Failed's StateData in storage.
	preFailure *State
}

// Transition is one audit-log record spec.md §4.6 requires: appended on
// every accepted transition, never on a rejected one.
type Transition struct {
	ID              string
	SessionID       string
	FromState       string
	ToState         string
	Trigger         string
	GuardDiagnostic string
	OccurredAt      time.Time
}

// Manager owns the FSM transition table and version-checked persistence.
type Manager struct {
	store   Storage
	metrics *metrics.Registry
}

// NewManager builds a Manager backed by store.
func NewManager(store Storage) *Manager {
	return &Manager{store: store}
}

// WithMetrics attaches a metrics.Registry so every accepted transition
// records a session_transitions_total sample. Returns m for chaining.
func (m *Manager) WithMetrics(reg *metrics.Registry) *Manager {
	m.metrics = reg
	return m
}

// Start creates a new session in Initializing for projectID.
func (m *Manager) Start(ctx context.Context, projectID string) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		State:     Initializing(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply applies trigger to the session identified by sessionID, enforcing
// the optimistic version check: expectedVersion must equal the persisted
// version or the call fails with VersionConflict. On success the new
// state, bumped version, and an audit Transition record are persisted
// atomically.
func (m *Manager) Apply(ctx context.Context, sessionID string, expectedVersion int, trigger Trigger) (*Session, error) {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Version != expectedVersion {
		return nil, mcberrors.VersionConflictError(sessionID, expectedVersion, s.Version)
	}

	next, guardDiag, err := transition(*s, trigger)
	if err != nil {
		return nil, err
	}

	transitionRecord := Transition{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		FromState:       s.State.String(),
		ToState:         next.String(),
		Trigger:         trigger.String(),
		GuardDiagnostic: guardDiag,
		OccurredAt:      time.Now(),
	}

	preFailure := s.preFailure
	if trigger.Kind == TriggerError {
		snapshot := s.State
		preFailure = &snapshot
	} else if next.Kind != KindFailed {
		preFailure = nil
	}

	updated := &Session{
		ID:         s.ID,
		ProjectID:  s.ProjectID,
		State:      next,
		Version:    s.Version + 1,
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  time.Now(),
		preFailure: preFailure,
	}

	if err := m.store.Update(ctx, updated, transitionRecord); err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.ObserveSessionTransition(trigger.String())
	}
	return updated, nil
}

// transition implements the spec.md §4.6 table. It returns the next state,
// an optional guard diagnostic for the audit record, or a rejection error.
func transition(s Session, t Trigger) (State, string, error) {
	if s.State.IsTerminal() {
		if t.Kind == TriggerEndSession {
			return s.State, "", nil // idempotent no-op on an already-Completed session
		}
		return State{}, "", mcberrors.TerminalStateError(s.State.String())
	}

	// Error is accepted from any non-terminal state; recoverable unless
	// the source state was itself terminal (handled above).
	if t.Kind == TriggerError {
		return Failed(t.Reason, true), "", nil
	}

	switch s.State.Kind {
	case KindInitializing:
		if t.Kind == TriggerContextDiscovered {
			return Ready(t.ContextID), "", nil
		}

	case KindReady:
		switch t.Kind {
		case TriggerStartPlanning:
			return Planning(t.PhaseID), "", nil
		case TriggerEndSession:
			return Completed(), "", nil
		}

	case KindPlanning:
		if t.Kind == TriggerStartExecution {
			return Executing(s.State.PhaseID, ""), "", nil
		}

	case KindExecuting:
		switch t.Kind {
		case TriggerClaimTask:
			if s.State.TaskID != "" {
				return State{}, "current task is not None", mcberrors.InvalidTransitionError(s.State.String(), t.String())
			}
			return Executing(s.State.PhaseID, t.TaskID), "", nil
		case TriggerCompleteTask:
			if s.State.TaskID != t.TaskID {
				return State{}, "current task does not match", mcberrors.InvalidTransitionError(s.State.String(), t.String())
			}
			return Executing(s.State.PhaseID, ""), "", nil
		case TriggerStartVerification:
			if s.State.TaskID != "" {
				return State{}, "current task is not None", mcberrors.InvalidTransitionError(s.State.String(), t.String())
			}
			return Verifying(s.State.PhaseID), "", nil
		}

	case KindVerifying:
		switch t.Kind {
		case TriggerVerificationPassed:
			return PhaseComplete(s.State.PhaseID), "", nil
		case TriggerVerificationFailed:
			return Executing(s.State.PhaseID, ""), t.Reason, nil
		}

	case KindPhaseComplete:
		if t.Kind == TriggerCompletePhase {
			// spec.md §4.6's table names the resulting state "Ready{pid}"
			// verbatim; Ready's sole field is reused here as the context id.
			return Ready(s.State.PhaseID), "", nil
		}

	case KindFailed:
		if t.Kind == TriggerRecover && s.State.Recoverable {
			if s.preFailure != nil {
				return *s.preFailure, "", nil
			}
			return Initializing(), "", nil
		}
	}

	return State{}, "", mcberrors.InvalidTransitionError(s.State.String(), t.String())
}
