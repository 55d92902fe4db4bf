package store

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
	chromem "github.com/philippgille/chromem-go"
)

var errNoEmbeddingFunc = errors.New("chromem: documents must carry precomputed embeddings")

// ChromemSemanticStore is an in-process collection backed by chromem-go.
type ChromemSemanticStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	name       string
}

// NewChromemDB opens a persistent database when path is set, an in-memory one otherwise.
func NewChromemDB(path string) (*chromem.DB, error) {
	if path == "" {
		return chromem.NewDB(), nil
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("open chromem db %q: %w", path, err))
	}
	return db, nil
}

func NewChromemSemanticStore(db *chromem.DB, collection string) (*ChromemSemanticStore, error) {
	// Embeddings always come from our own embedder; refuse to call out for them.
	noEmbed := func(context.Context, string) ([]float32, error) { return nil, errNoEmbeddingFunc }

	col, err := db.GetOrCreateCollection(collection, nil, noEmbed)
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("create collection %q: %w", collection, err))
	}
	return &ChromemSemanticStore{db: db, collection: col, name: collection}, nil
}

func (s *ChromemSemanticStore) EmbedAndStore(ctx context.Context, id string, vector []float32, metadata map[string]string, content string) error {
	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: vector,
		Metadata:  maps.Clone(metadata),
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return errx.WrapStore(fmt.Errorf("chromem add document: %w", err))
	}
	logx.Debug().Str("collection", s.name).Str("id", id).Msg("Record stored")
	return nil
}

func (s *ChromemSemanticStore) SimilaritySearch(ctx context.Context, vector []float32, filter model.Filter, limit int) ([]model.Record, error) {
	// chromem requires nResults <= collection size
	n := min(limit, s.collection.Count())
	if n <= 0 {
		return []model.Record{}, nil
	}

	var where map[string]string
	if eq := filter.Equals(); len(eq) > 0 {
		where = eq
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("chromem query: %w", err))
	}

	records := make([]model.Record, 0, len(results))
	for _, r := range results {
		records = append(records, recordFromMetadata(r.ID, r.Content, r.Metadata, r.Similarity))
	}
	return records, nil
}

// Close is a no-op; persistent databases write through on every add.
func (s *ChromemSemanticStore) Close() error {
	return nil
}

// Count returns the number of stored records.
func (s *ChromemSemanticStore) Count() int {
	return s.collection.Count()
}
