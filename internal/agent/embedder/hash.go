package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a deterministic bag-of-words embedder. Each lowercased token is
// hashed into a bucket, so texts sharing words score as similar. It needs no
// network and is used for local runs and tests.
type HashEmbedder struct {
	dimensions int
}

func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dimensions)]++
	}
	return normalize(vec), nil
}

func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
