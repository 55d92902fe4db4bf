package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
	pgvector "github.com/pgvector/pgvector-go"
)

// PgvectorSemanticStore keeps records in a postgres table with a vector column.
type PgvectorSemanticStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPgvectorSemanticStore creates the extension and table if needed.
func NewPgvectorSemanticStore(ctx context.Context, pool *pgxpool.Pool, table string, dimensions int) (*PgvectorSemanticStore, error) {
	s := &PgvectorSemanticStore{pool: pool, table: pgx.Identifier{table}.Sanitize()}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL DEFAULT '',
			type       TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			metadata   JSONB NOT NULL DEFAULT '{}',
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, dimensions),
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, errx.WrapStore(fmt.Errorf("pgvector migrate: %w", err))
		}
	}
	return s, nil
}

func (s *PgvectorSemanticStore) EmbedAndStore(ctx context.Context, id string, vector []float32, metadata map[string]string, content string) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, user_id, type, content, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`, s.table),
		id, metadata[model.MetaUserID], metadata[model.MetaType], content, meta, pgvector.NewVector(vector),
	)
	if err != nil {
		return errx.WrapStore(fmt.Errorf("inserting record: %w", err))
	}
	return nil
}

func (s *PgvectorSemanticStore) SimilaritySearch(ctx context.Context, vector []float32, filter model.Filter, limit int) ([]model.Record, error) {
	if limit <= 0 {
		return []model.Record{}, nil
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		 FROM %s
		 WHERE ($2::text = '' OR user_id = $2::text) AND ($3::text = '' OR type = $3::text)
		 ORDER BY embedding <=> $1
		 LIMIT $4`, s.table),
		pgvector.NewVector(vector), filter.UserID, filter.Type, limit,
	)
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("searching similar records: %w", err))
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		var (
			id, content string
			raw         []byte
			similarity  float64
		)
		if err := rows.Scan(&id, &content, &raw, &similarity); err != nil {
			return nil, errx.WrapStore(fmt.Errorf("scanning search result: %w", err))
		}
		meta := map[string]string{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &meta); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", id, err)
			}
		}
		records = append(records, recordFromMetadata(id, content, meta, float32(similarity)))
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapStore(err)
	}
	return records, nil
}

// Close releases the pool. Callers sharing the pool should close it themselves instead.
func (s *PgvectorSemanticStore) Close() error {
	s.pool.Close()
	return nil
}
