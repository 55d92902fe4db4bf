package embedder

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	logx "github.com/memgraph-agent/server/pkg/logger"
)

// CachedEmbedder memoizes vectors per text in a ristretto cache.
type CachedEmbedder struct {
	next  Embedder
	cache *ristretto.Cache
}

// NewCachedEmbedder bounds the cache to maxEntries vectors.
func NewCachedEmbedder(next Embedder, maxEntries int64) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return append([]float32(nil), vec...), nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if !e.cache.Set(text, append([]float32(nil), vec...), 1) {
		logx.Debug().Msg("Embedding cache rejected entry")
	}
	return vec, nil
}

func (e *CachedEmbedder) Dimensions() int {
	return e.next.Dimensions()
}

// Wait blocks until buffered cache writes are applied.
func (e *CachedEmbedder) Wait() {
	e.cache.Wait()
}

func (e *CachedEmbedder) Close() {
	e.cache.Close()
}
