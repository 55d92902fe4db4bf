package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/memgraph-agent/server/internal/agent/embedder"
	"github.com/memgraph-agent/server/internal/agent/model"
	"github.com/memgraph-agent/server/internal/agent/store"
	logx "github.com/memgraph-agent/server/pkg/logger"
	"github.com/rs/zerolog"
)

const DefaultKnowledgeTopK = 5

// knowledgeNamespace derives document ids from content, so reseeding replaces
// documents instead of duplicating them.
var knowledgeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("memgraph-agent/knowledge"))

// KnowledgeBase is a shared document collection not owned by any user.
type KnowledgeBase struct {
	store    store.SemanticStore
	embedder embedder.Embedder
	topK     int
	log      zerolog.Logger
}

func NewKnowledgeBase(s store.SemanticStore, emb embedder.Embedder, topK int) *KnowledgeBase {
	if topK <= 0 {
		topK = DefaultKnowledgeTopK
	}
	return &KnowledgeBase{store: s, embedder: emb, topK: topK, log: logx.With("knowledge")}
}

// Ask returns the closest documents joined by a blank line.
func (k *KnowledgeBase) Ask(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	vector, err := k.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed knowledge query: %w", err)
	}
	if embedder.IsZero(vector) {
		return "", nil
	}

	records, err := k.store.SimilaritySearch(ctx, vector, model.Filter{Type: model.KnowledgeType}, k.topK)
	if err != nil {
		return "", fmt.Errorf("search knowledge base: %w", err)
	}

	docs := make([]string, 0, len(records))
	for _, r := range records {
		docs = append(docs, r.Content)
	}
	return strings.Join(docs, "\n\n"), nil
}

// AddDocuments embeds and stores each non-blank document.
func (k *KnowledgeBase) AddDocuments(ctx context.Context, docs []string) error {
	stored := 0
	for _, doc := range docs {
		if strings.TrimSpace(doc) == "" {
			continue
		}
		vector, err := k.embedder.Embed(ctx, doc)
		if err != nil {
			return fmt.Errorf("embed document: %w", err)
		}
		if embedder.IsZero(vector) {
			k.log.Warn().Str("document", doc).Msg("Skipping document with no searchable content")
			continue
		}
		metadata := map[string]string{
			model.MetaType:      model.KnowledgeType,
			model.MetaTimestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := k.store.EmbedAndStore(ctx, documentID(doc), vector, metadata, doc); err != nil {
			return fmt.Errorf("store document: %w", err)
		}
		stored++
	}
	k.log.Info().Int("documents", stored).Msg("Knowledge base seeded")
	return nil
}

func documentID(doc string) string {
	return uuid.NewSHA1(knowledgeNamespace, []byte(doc)).String()
}
