// Package store adapts storage engines to the two capability sets the memory
// layer needs: a key-value store for core memory documents and a semantic
// store for embedded recall and knowledge records.
package store

import (
	"context"
	"strconv"
	"time"

	"github.com/memgraph-agent/server/internal/agent/model"
)

// KeyValueStore holds one opaque payload per key.
type KeyValueStore interface {
	// GetValue returns ok=false when the key does not exist.
	GetValue(ctx context.Context, key string) (payload []byte, ok bool, err error)
	UpsertValue(ctx context.Context, key string, payload []byte) error
}

// SemanticStore stores embedded records and searches them by similarity.
type SemanticStore interface {
	// EmbedAndStore writes a record under id. Writing the same id twice replaces it.
	EmbedAndStore(ctx context.Context, id string, vector []float32, metadata map[string]string, content string) error
	// SimilaritySearch returns records ordered by decreasing similarity.
	// No match is an empty result, not an error.
	SimilaritySearch(ctx context.Context, vector []float32, filter model.Filter, limit int) ([]model.Record, error)
	Close() error
}

func recordFromMetadata(id, content string, meta map[string]string, score float32) model.Record {
	rec := model.Record{
		ID:       id,
		Content:  content,
		UserID:   meta[model.MetaUserID],
		Type:     meta[model.MetaType],
		Metadata: meta,
		Score:    score,
	}
	rec.CreatedAt = parseTimestamp(meta[model.MetaTimestamp])
	return rec
}

// parseTimestamp accepts RFC3339 or unix seconds. Anything else is the zero time.
func parseTimestamp(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return ts
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}
