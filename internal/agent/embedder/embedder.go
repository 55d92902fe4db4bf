// Package embedder turns text into fixed-dimension vectors.
package embedder

import (
	"context"
	"math"
)

// Embedder produces vectors of Dimensions() length.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// normalize scales vec to unit length in place.
func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}

// IsZero reports whether vec has no direction. Such vectors carry no meaning
// for cosine similarity.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
