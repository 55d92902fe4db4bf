package store

import (
	"context"
	"fmt"

	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
	"github.com/qdrant/go-client/qdrant"
)

const qdrantContentKey = "content"

// QdrantSemanticStore keeps one qdrant collection with cosine distance.
type QdrantSemanticStore struct {
	client     *qdrant.Client
	collection string
}

// NewQdrantSemanticStore creates the collection on first use.
func NewQdrantSemanticStore(ctx context.Context, client *qdrant.Client, collection string, dimensions int) (*QdrantSemanticStore, error) {
	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("qdrant collection exists: %w", err))
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, errx.WrapStore(fmt.Errorf("qdrant create collection: %w", err))
		}
		logx.Info().Str("collection", collection).Int("dimensions", dimensions).Msg("Qdrant collection created")
	}
	return &QdrantSemanticStore{client: client, collection: collection}, nil
}

func (s *QdrantSemanticStore) EmbedAndStore(ctx context.Context, id string, vector []float32, metadata map[string]string, content string) error {
	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(qdrantPayload(metadata, content)),
		}},
	})
	if err != nil {
		return errx.WrapStore(fmt.Errorf("qdrant upsert: %w", err))
	}
	return nil
}

func (s *QdrantSemanticStore) SimilaritySearch(ctx context.Context, vector []float32, filter model.Filter, limit int) ([]model.Record, error) {
	if limit <= 0 {
		return []model.Record{}, nil
	}
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, errx.WrapStore(fmt.Errorf("qdrant query: %w", err))
	}

	records := make([]model.Record, 0, len(points))
	for _, p := range points {
		meta := map[string]string{}
		for k, v := range p.GetPayload() {
			meta[k] = v.GetStringValue()
		}
		content := meta[qdrantContentKey]
		delete(meta, qdrantContentKey)
		records = append(records, recordFromMetadata(p.GetId().GetUuid(), content, meta, p.GetScore()))
	}
	return records, nil
}

func (s *QdrantSemanticStore) Close() error {
	return s.client.Close()
}

func qdrantPayload(metadata map[string]string, content string) map[string]any {
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[qdrantContentKey] = content
	return payload
}

func qdrantFilter(filter model.Filter) *qdrant.Filter {
	eq := filter.Equals()
	if len(eq) == 0 {
		return nil
	}
	f := &qdrant.Filter{}
	for k, v := range eq {
		f.Must = append(f.Must, qdrant.NewMatch(k, v))
	}
	return f
}
