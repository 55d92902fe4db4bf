package embedder

import (
	"context"
	"fmt"

	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
	"google.golang.org/genai"
)

// GeminiEmbedder calls the Gemini embedContent endpoint.
type GeminiEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

func NewGeminiEmbedder(client *genai.Client, model string, dimensions int) *GeminiEmbedder {
	return &GeminiEmbedder{client: client, model: model, dimensions: dimensions}
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(e.dimensions)),
	})
	if err != nil {
		logx.Error().Err(err).Str("model", e.model).Msg("Embedding request failed")
		return nil, errx.WrapModel(fmt.Errorf("embed content: %w", err))
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, errx.WrapModel(fmt.Errorf("embed content: empty embedding from %s", e.model))
	}

	values := res.Embeddings[0].Values
	if len(values) != e.dimensions {
		return nil, errx.WrapModel(fmt.Errorf("embed content: got %d dimensions, want %d", len(values), e.dimensions))
	}
	// truncated outputs are not unit length
	return normalize(values), nil
}

func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}
