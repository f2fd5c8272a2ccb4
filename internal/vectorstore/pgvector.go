package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	mcberrors "github.com/marlonsc/mcbgo/internal/errors"
)

// collectionNameRE restricts collection names used as SQL identifiers to a
// safe subset — the collection-name-mapping layer (internal/collection)
// already guarantees this shape for backend ids.
var collectionNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// PGVectorStore is the Postgres-backed vector store, one table per
// collection, grounded on the seanblong/reposearch pgxpool + pgvector
// migration pattern.
type PGVectorStore struct {
	pool *pgxpool.Pool
}

// NewPGVectorStore connects to dsn and returns a ready PGVectorStore.
func NewPGVectorStore(ctx context.Context, dsn string) (*PGVectorStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, mcberrors.VectorDBError("failed to connect to pgvector backend", err)
	}
	return &PGVectorStore{pool: pool}, nil
}

// Close releases the connection pool.
func (p *PGVectorStore) Close() {
	p.pool.Close()
}

func tableName(collection string) (string, error) {
	if !collectionNameRE.MatchString(collection) {
		return "", mcberrors.InvalidArgumentError("name", "collection name must be lowercase letters, digits, or underscores")
	}
	return "vs_" + collection, nil
}

func (p *PGVectorStore) CreateCollection(ctx context.Context, name string, dimensions int) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}

	var existingDims int
	err = p.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute a
		JOIN pg_class c ON a.attrelid = c.oid
		WHERE c.relname = $1 AND a.attname = 'embedding'`, table).Scan(&existingDims)
	if err == nil && existingDims > 0 && existingDims != dimensions {
		return mcberrors.DimensionMismatchError(existingDims, dimensions)
	}

	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			id        UUID PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}'::jsonb
		);
		CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
	`, table, dimensions, table, table)
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return mcberrors.VectorDBError("failed to create collection "+name, err)
	}
	return nil
}

func (p *PGVectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	table, err := tableName(name)
	if err != nil {
		return false, err
	}
	var exists bool
	err = p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
	if err != nil {
		return false, mcberrors.VectorDBError("failed to check collection existence", err)
	}
	return exists, nil
}

func (p *PGVectorStore) DeleteCollection(ctx context.Context, name string) error {
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return mcberrors.VectorDBError("failed to delete collection "+name, err)
	}
	return nil
}

func (p *PGVectorStore) InsertVectors(ctx context.Context, name string, vectors [][]float32, metadata []map[string]string) ([]string, error) {
	if len(vectors) != len(metadata) {
		return nil, mcberrors.InvalidArgumentError("vectors", "must have the same length as metadata")
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(vectors))
	for start := 0; start < len(vectors); start += MaxInsertBatch {
		end := start + MaxInsertBatch
		if end > len(vectors) {
			end = len(vectors)
		}

		batch := &pgx.Batch{}
		batchIDs := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			id := uuid.NewString()
			batchIDs = append(batchIDs, id)
			md, _ := json.Marshal(metadata[i])
			batch.Queue(fmt.Sprintf(`INSERT INTO %s (id, embedding, metadata) VALUES ($1, $2, $3)`, table),
				id, pgvector.NewVector(vectors[i]), md)
		}

		br := p.pool.SendBatch(ctx, batch)
		for range batchIDs {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return ids, mcberrors.VectorDBError("failed to insert vectors", err)
			}
		}
		if err := br.Close(); err != nil {
			return ids, mcberrors.VectorDBError("failed to insert vectors", err)
		}
		ids = append(ids, batchIDs...)
	}
	return ids, nil
}

func (p *PGVectorStore) SearchSimilar(ctx context.Context, name string, query []float32, limit int, filter string) ([]SearchResult, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []SearchResult{}, nil
	}

	sql := fmt.Sprintf(`
		SELECT id, embedding, metadata, 1 - (embedding <=> $1) AS score
		FROM %s`, table)
	args := []any{pgvector.NewVector(query)}
	if want := parseFilter(filter); len(want) > 0 {
		md, _ := json.Marshal(want)
		sql += fmt.Sprintf(" WHERE metadata @> $%d::jsonb", len(args)+1)
		args = append(args, md)
	}
	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mcberrors.VectorDBError("failed to search collection "+name, err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var id string
		var emb pgvector.Vector
		var metaRaw []byte
		var score float64
		if err := rows.Scan(&id, &emb, &metaRaw, &score); err != nil {
			return nil, mcberrors.VectorDBError("failed to scan search row", err)
		}
		meta := map[string]string{}
		_ = json.Unmarshal(metaRaw, &meta)
		out = append(out, SearchResult{
			Record: Record{ID: id, Vector: emb.Slice(), Metadata: meta},
			Score:  clamp01(score),
		})
	}
	return out, rows.Err()
}

func (p *PGVectorStore) DeleteVectors(ctx context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	table, err := tableName(name)
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, table), ids); err != nil {
		return mcberrors.VectorDBError("failed to delete vectors", err)
	}
	return nil
}

func (p *PGVectorStore) GetVectorsByIDs(ctx context.Context, name string, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT id, embedding, metadata FROM %s WHERE id = ANY($1)`, table), ids)
	if err != nil {
		return nil, mcberrors.VectorDBError("failed to fetch vectors", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *PGVectorStore) ListVectors(ctx context.Context, name string, limit int) ([]Record, error) {
	table, err := tableName(name)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []Record{}, nil
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`SELECT id, embedding, metadata FROM %s ORDER BY id LIMIT $1`, table), limit)
	if err != nil {
		return nil, mcberrors.VectorDBError("failed to list vectors", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *PGVectorStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT table_name FROM information_schema.tables WHERE table_name LIKE 'vs_%' ORDER BY table_name`)
	if err != nil {
		return nil, mcberrors.VectorDBError("failed to list collections", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var table string
		if err := rows.Scan(&table); err != nil {
			return nil, err
		}
		names = append(names, table[len("vs_"):])
	}
	return names, rows.Err()
}

func (p *PGVectorStore) GetStats(ctx context.Context, name string) (CollectionStats, error) {
	table, err := tableName(name)
	if err != nil {
		return CollectionStats{}, err
	}
	var count int
	if err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&count); err != nil {
		return CollectionStats{}, mcberrors.CollectionNotFoundError(name)
	}
	return CollectionStats{Name: name, VectorsCount: count}, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var id string
		var emb pgvector.Vector
		var metaRaw []byte
		if err := rows.Scan(&id, &emb, &metaRaw); err != nil {
			return nil, mcberrors.VectorDBError("failed to scan vector row", err)
		}
		meta := map[string]string{}
		_ = json.Unmarshal(metaRaw, &meta)
		out = append(out, Record{ID: id, Vector: emb.Slice(), Metadata: meta})
	}
	return out, rows.Err()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
