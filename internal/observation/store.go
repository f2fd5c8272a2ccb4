package observation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
	"github.com/marlonsc/mcbgo/internal/metrics"
	"github.com/marlonsc/mcbgo/internal/repo"
	"github.com/marlonsc/mcbgo/internal/vectorstore"
)

// Embedder is the narrow slice of internal/embed.Embedder the store
// needs; declared locally so this package does not import internal/embed
// just for a single method.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store persists observations over a repo.Executor, mirrors writes into a
// full-text index, and best-effort upserts an embedding per spec.md §4.5.
type Store struct {
	db         repo.TxBeginner
	vectors    vectorstore.VectorStore
	embedder   Embedder
	collection string
	logger     *slog.Logger
	patterns   *ErrorPatternMatcher
	metrics    *metrics.Registry
}

// NewStore builds an observation Store. vectors/embedder may be nil to run
// lexical-only (embedding upsert is then skipped).
func NewStore(db repo.TxBeginner, vectors vectorstore.VectorStore, embedder Embedder, collection string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, vectors: vectors, embedder: embedder, collection: collection, logger: logger}
}

// WithErrorPatterns attaches an ErrorPatternMatcher so that TypeError writes
// are classified against registered patterns. Returns s for chaining.
func (s *Store) WithErrorPatterns(m *ErrorPatternMatcher) *Store {
	s.patterns = m
	return s
}

// WithMetrics attaches a metrics.Registry so every write records an
// observation_writes_total sample. Returns s for chaining.
func (s *Store) WithMetrics(reg *metrics.Registry) *Store {
	s.metrics = reg
	return s
}

// ContentHash computes the spec.md §4.5 step-1 content hash: SHA-256 hex,
// matching the teacher's chunk-id hashing convention.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Write implements spec.md §4.5's write path: dedup check, row insert, FTS
// mirror (via trigger, already wired by internal/repo/schema), and a
// best-effort embedding upsert after commit.
func (s *Store) Write(ctx context.Context, in WriteInput) (WriteResult, error) {
	hash := ContentHash(in.Content)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return WriteResult{}, mcberrors.New(mcberrors.ErrCodeObservationStorage, "failed to begin observation write", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existing, err := tx.QueryOne(ctx,
		`SELECT id FROM observations WHERE project_id = ? AND content_hash = ?`,
		in.ProjectID, hash)
	if err != nil {
		return WriteResult{}, mcberrors.New(mcberrors.ErrCodeObservationStorage, "dedup lookup failed", err)
	}
	if existing != nil {
		id, _ := existing.GetString("id")
		if err := tx.Commit(); err != nil {
			return WriteResult{}, mcberrors.New(mcberrors.ErrCodeObservationStorage, "failed to commit dedup read", err)
		}
		committed = true
		if s.metrics != nil {
			s.metrics.ObserveObservationWrite(true)
		}
		return WriteResult{ID: id, Deduplicated: true}, nil
	}

	id := uuid.NewString()
	createdAt := time.Now().Unix()

	tagsJSON, err := json.Marshal(in.Tags)
	if err != nil {
		return WriteResult{}, mcberrors.New(mcberrors.ErrCodeJSON, "failed to marshal tags", err)
	}
	var execJSON, gateJSON, originJSON any
	if in.Execution != nil {
		if execJSON, err = marshalOptional(in.Execution); err != nil {
			return WriteResult{}, err
		}
	}
	if in.QualityGate != nil {
		if gateJSON, err = marshalOptional(in.QualityGate); err != nil {
			return WriteResult{}, err
		}
	}
	if in.Origin != nil {
		if originJSON, err = marshalOptional(in.Origin); err != nil {
			return WriteResult{}, err
		}
	}

	_, err = tx.Execute(ctx, `
		INSERT INTO observations (
			id, project_id, content, content_hash, observation_type, tags,
			session_id, repo_id, file_path, branch, commit_sha,
			execution_metadata, quality_gate_metadata, origin_context, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.ProjectID, in.Content, hash, string(in.Type), string(tagsJSON),
		nullIfEmpty(in.SessionID), nullIfEmpty(in.RepoID), nullIfEmpty(in.FilePath),
		nullIfEmpty(in.Branch), nullIfEmpty(in.CommitSHA),
		execJSON, gateJSON, originJSON, createdAt,
	)
	if err != nil {
		return WriteResult{}, mcberrors.New(mcberrors.ErrCodeObservationStorage, "failed to insert observation", err)
	}

	if err := tx.Commit(); err != nil {
		return WriteResult{}, mcberrors.New(mcberrors.ErrCodeObservationStorage, "failed to commit observation write", err)
	}
	committed = true
	if s.metrics != nil {
		s.metrics.ObserveObservationWrite(false)
	}

	// Embedding upsert is best-effort: failure is logged, never rolls
	// back the already-committed observation (spec.md §4.5 step 2).
	s.upsertEmbedding(ctx, id, in.Content)

	if s.patterns != nil {
		if _, err := s.patterns.ClassifyIfError(ctx, in.Type, id, in.Content); err != nil {
			s.logger.Warn("error_pattern_classification_failed", slog.String("observation_id", id), slog.String("error", err.Error()))
		}
	}

	return WriteResult{ID: id, Deduplicated: false}, nil
}

func (s *Store) upsertEmbedding(ctx context.Context, observationID, content string) {
	if s.vectors == nil || s.embedder == nil {
		return
	}
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.logger.Warn("observation_embedding_failed", slog.String("observation_id", observationID), slog.String("error", err.Error()))
		return
	}
	ids, err := s.vectors.InsertVectors(ctx, s.collection,
		[][]float32{vec},
		[]map[string]string{{"observation_id": observationID}})
	if err != nil || len(ids) == 0 {
		s.logger.Warn("observation_embedding_upsert_failed", slog.String("observation_id", observationID), slog.String("error", errString(err)))
		return
	}

	ex, ok := s.db.(repo.Executor)
	if !ok {
		return
	}
	if _, err := ex.Execute(ctx, `UPDATE observations SET embedding_id = ? WHERE id = ?`, ids[0], observationID); err != nil {
		s.logger.Warn("observation_embedding_link_failed", slog.String("observation_id", observationID), slog.String("error", err.Error()))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// GetByID returns the observation with id, scoped to projectID.
func (s *Store) GetByID(ctx context.Context, projectID, id string) (*Observation, error) {
	ex, ok := s.db.(repo.Executor)
	if !ok {
		return nil, mcberrors.InternalError("observation store requires an Executor", nil)
	}
	row, err := ex.QueryOne(ctx, observationSelectSQL+` WHERE project_id = ? AND id = ?`, projectID, id)
	if err != nil {
		return nil, mcberrors.New(mcberrors.ErrCodeObservationStorage, "failed to query observation", err)
	}
	if row == nil {
		return nil, mcberrors.ObservationNotFoundError(id)
	}
	return scanObservation(row)
}

// List returns observations matching filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Observation, error) {
	ex, ok := s.db.(repo.Executor)
	if !ok {
		return nil, mcberrors.InternalError("observation store requires an Executor", nil)
	}

	where := []string{"project_id = ?"}
	params := []any{filter.ProjectID}

	if filter.Type != "" {
		where = append(where, "observation_type = ?")
		params = append(params, string(filter.Type))
	}
	if filter.SessionID != "" {
		where = append(where, "session_id = ?")
		params = append(params, filter.SessionID)
	}
	if filter.RepoID != "" {
		where = append(where, "repo_id = ?")
		params = append(params, filter.RepoID)
	}
	if filter.Branch != "" {
		where = append(where, "branch = ?")
		params = append(params, filter.Branch)
	}
	if filter.CommitSHA != "" {
		where = append(where, "commit_sha = ?")
		params = append(params, filter.CommitSHA)
	}
	if filter.CreatedFrom > 0 {
		where = append(where, "created_at >= ?")
		params = append(params, filter.CreatedFrom)
	}
	if filter.CreatedTo > 0 {
		where = append(where, "created_at <= ?")
		params = append(params, filter.CreatedTo)
	}

	query := observationSelectSQL + " WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at DESC"
	rows, err := ex.QueryAll(ctx, query, params...)
	if err != nil {
		return nil, mcberrors.New(mcberrors.ErrCodeObservationStorage, "failed to list observations", err)
	}

	var out []*Observation
	for _, row := range rows {
		obs, err := scanObservation(row)
		if err != nil {
			return nil, err
		}
		if !hasAllTags(obs.Tags, filter.Tags) {
			continue
		}
		out = append(out, obs)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// hasAllTags implements spec.md §4.5's "tag filtering is set-containment,
// not substring": every tag in want must appear verbatim in have.
func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

const observationSelectSQL = `
	SELECT id, project_id, content, content_hash, observation_type, tags,
	       session_id, repo_id, file_path, branch, commit_sha,
	       execution_metadata, quality_gate_metadata, origin_context,
	       embedding_id, created_at
	FROM observations`

func scanObservation(row repo.Row) (*Observation, error) {
	obs := &Observation{}
	obs.ID, _ = row.GetString("id")
	obs.ProjectID, _ = row.GetString("project_id")
	obs.Content, _ = row.GetString("content")
	obs.ContentHash, _ = row.GetString("content_hash")
	typ, _ := row.GetString("observation_type")
	obs.Type = Type(typ)
	obs.SessionID, _ = row.GetString("session_id")
	obs.RepoID, _ = row.GetString("repo_id")
	obs.FilePath, _ = row.GetString("file_path")
	obs.Branch, _ = row.GetString("branch")
	obs.CommitSHA, _ = row.GetString("commit_sha")
	obs.EmbeddingID, _ = row.GetString("embedding_id")
	if createdAt, ok := row.GetInt64("created_at"); ok {
		obs.CreatedAt = createdAt
	}

	if tagsJSON, ok := row.GetString("tags"); ok && tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &obs.Tags); err != nil {
			return nil, mcberrors.New(mcberrors.ErrCodeJSON, "failed to unmarshal observation tags", err)
		}
	}
	if raw, ok := row.GetString("execution_metadata"); ok && raw != "" {
		obs.Execution = &ExecutionMetadata{}
		if err := json.Unmarshal([]byte(raw), obs.Execution); err != nil {
			return nil, mcberrors.New(mcberrors.ErrCodeJSON, "failed to unmarshal execution metadata", err)
		}
	}
	if raw, ok := row.GetString("quality_gate_metadata"); ok && raw != "" {
		obs.QualityGate = &QualityGateMetadata{}
		if err := json.Unmarshal([]byte(raw), obs.QualityGate); err != nil {
			return nil, mcberrors.New(mcberrors.ErrCodeJSON, "failed to unmarshal quality gate metadata", err)
		}
	}
	if raw, ok := row.GetString("origin_context"); ok && raw != "" {
		obs.Origin = &OriginContext{}
		if err := json.Unmarshal([]byte(raw), obs.Origin); err != nil {
			return nil, mcberrors.New(mcberrors.ErrCodeJSON, "failed to unmarshal origin context", err)
		}
	}
	return obs, nil
}

func marshalOptional(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, mcberrors.New(mcberrors.ErrCodeJSON, fmt.Sprintf("failed to marshal %T", v), err)
	}
	return string(data), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
