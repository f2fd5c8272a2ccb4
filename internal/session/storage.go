package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
	"github.com/marlonsc/mcbgo/internal/repo"
)

// Storage persists Sessions and their Transition audit trail.
type Storage interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Update persists s (whose Version has already been incremented by the
	// caller) and appends t to the audit log, atomically.
	Update(ctx context.Context, s *Session, t Transition) error
	Transitions(ctx context.Context, sessionID string) ([]Transition, error)
}

// stateData is the JSON shape stored in agent_sessions.state_data.
type stateData struct {
	ContextID   string `json:"context_id,omitempty"`
	PhaseID     string `json:"phase_id,omitempty"`
	TaskID      string `json:"task_id,omitempty"`
	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
	PreFailure  *State `json:"pre_failure,omitempty"`
}

// SQLStorage implements Storage over the internal/repo SQL executor port.
type SQLStorage struct {
	db repo.TxBeginner
}

// NewSQLStorage builds a SQLStorage backed by db.
func NewSQLStorage(db repo.TxBeginner) *SQLStorage {
	return &SQLStorage{db: db}
}

func (s *SQLStorage) Create(ctx context.Context, sess *Session) error {
	ex, ok := s.db.(repo.Executor)
	if !ok {
		return mcberrors.InternalError("session storage requires an Executor", nil)
	}
	data, err := encodeState(sess.State, nil)
	if err != nil {
		return err
	}
	_, err = ex.Execute(ctx, `
		INSERT INTO agent_sessions (id, project_id, state_kind, state_data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ProjectID, string(sess.State.Kind), data, sess.Version,
		sess.CreatedAt.UTC().Format(time.RFC3339), sess.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return mcberrors.New(mcberrors.ErrCodeDatabase, "failed to create session", err)
	}
	return nil
}

func (s *SQLStorage) Get(ctx context.Context, id string) (*Session, error) {
	ex, ok := s.db.(repo.Executor)
	if !ok {
		return nil, mcberrors.InternalError("session storage requires an Executor", nil)
	}
	row, err := ex.QueryOne(ctx, `
		SELECT id, project_id, state_kind, state_data, version, created_at, updated_at
		FROM agent_sessions WHERE id = ?`, id)
	if err != nil {
		return nil, mcberrors.New(mcberrors.ErrCodeDatabase, "failed to query session", err)
	}
	if row == nil {
		return nil, mcberrors.NotFoundError("session", id)
	}
	return scanSession(row)
}

func (s *SQLStorage) Update(ctx context.Context, sess *Session, t Transition) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return mcberrors.New(mcberrors.ErrCodeDatabase, "failed to begin session update", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	data, err := encodeState(sess.State, sess.preFailure)
	if err != nil {
		return err
	}
	if _, err := tx.Execute(ctx, `
		UPDATE agent_sessions SET state_kind = ?, state_data = ?, version = ?, updated_at = ?
		WHERE id = ?`,
		string(sess.State.Kind), data, sess.Version, sess.UpdatedAt.UTC().Format(time.RFC3339), sess.ID); err != nil {
		return mcberrors.New(mcberrors.ErrCodeDatabase, "failed to update session", err)
	}

	if _, err := tx.Execute(ctx, `
		INSERT INTO session_transitions (id, session_id, from_state, to_state, trigger, guard_diagnostic, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), t.SessionID, t.FromState, t.ToState, t.Trigger, t.GuardDiagnostic,
		t.OccurredAt.UTC().Format(time.RFC3339)); err != nil {
		return mcberrors.New(mcberrors.ErrCodeDatabase, "failed to append session transition", err)
	}

	if err := tx.Commit(); err != nil {
		return mcberrors.New(mcberrors.ErrCodeDatabase, "failed to commit session update", err)
	}
	committed = true
	return nil
}

func (s *SQLStorage) Transitions(ctx context.Context, sessionID string) ([]Transition, error) {
	ex, ok := s.db.(repo.Executor)
	if !ok {
		return nil, mcberrors.InternalError("session storage requires an Executor", nil)
	}
	rows, err := ex.QueryAll(ctx, `
		SELECT id, session_id, from_state, to_state, trigger, guard_diagnostic, occurred_at
		FROM session_transitions WHERE session_id = ? ORDER BY occurred_at ASC`, sessionID)
	if err != nil {
		return nil, mcberrors.New(mcberrors.ErrCodeDatabase, "failed to list session transitions", err)
	}
	out := make([]Transition, 0, len(rows))
	for _, row := range rows {
		tr := Transition{}
		tr.ID, _ = row.GetString("id")
		tr.SessionID, _ = row.GetString("session_id")
		tr.FromState, _ = row.GetString("from_state")
		tr.ToState, _ = row.GetString("to_state")
		tr.Trigger, _ = row.GetString("trigger")
		tr.GuardDiagnostic, _ = row.GetString("guard_diagnostic")
		if occurred, ok := row.GetString("occurred_at"); ok {
			tr.OccurredAt, _ = time.Parse(time.RFC3339, occurred)
		}
		out = append(out, tr)
	}
	return out, nil
}

func encodeState(st State, preFailure *State) (string, error) {
	data := stateData{
		ContextID:   st.ContextID,
		PhaseID:     st.PhaseID,
		TaskID:      st.TaskID,
		Error:       st.Error,
		Recoverable: st.Recoverable,
		PreFailure:  preFailure,
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", mcberrors.New(mcberrors.ErrCodeJSON, "failed to marshal session state", err)
	}
	return string(raw), nil
}

func scanSession(row repo.Row) (*Session, error) {
	sess := &Session{}
	sess.ID, _ = row.GetString("id")
	sess.ProjectID, _ = row.GetString("project_id")
	kind, _ := row.GetString("state_kind")

	raw, _ := row.GetString("state_data")
	var data stateData
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, mcberrors.New(mcberrors.ErrCodeJSON, "failed to unmarshal session state", err)
		}
	}
	sess.State = State{
		Kind:        Kind(kind),
		ContextID:   data.ContextID,
		PhaseID:     data.PhaseID,
		TaskID:      data.TaskID,
		Error:       data.Error,
		Recoverable: data.Recoverable,
	}
	sess.preFailure = data.PreFailure

	if v, ok := row.GetInt64("version"); ok {
		sess.Version = int(v)
	}
	if createdAt, ok := row.GetString("created_at"); ok {
		sess.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	}
	if updatedAt, ok := row.GetString("updated_at"); ok {
		sess.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	}
	return sess, nil
}

// MemoryStorage is an in-process Storage implementation for tests and for
// stdio-only deployments that don't need durability across restarts.
type MemoryStorage struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	transitions map[string][]Transition
}

// NewMemoryStorage builds an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sessions:    make(map[string]*Session),
		transitions: make(map[string][]Transition),
	}
}

func (m *MemoryStorage) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStorage) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, mcberrors.NotFoundError("session", id)
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStorage) Update(_ context.Context, s *Session, t Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	m.transitions[s.ID] = append(m.transitions[s.ID], t)
	return nil
}

func (m *MemoryStorage) Transitions(_ context.Context, sessionID string) ([]Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.transitions[sessionID]))
	copy(out, m.transitions[sessionID])
	return out, nil
}
