// Package memory implements the memory access functions used by the turn graph
// and its tools: core memories (one key-value document per user) and recall
// memories (embedded free-text records searched by similarity).
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/memgraph-agent/server/internal/agent/embedder"
	"github.com/memgraph-agent/server/internal/agent/model"
	"github.com/memgraph-agent/server/internal/agent/store"
	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
	"github.com/rs/zerolog"
)

const DefaultRecallTopK = 5

var errCorruptCore = errors.New("core memory document is not valid JSON")

// Service orchestrates core memory documents and recall records for users.
//
// SaveCoreMemory is a read-modify-write of the whole document with no version
// check: two concurrent saves for the same user can lose one update.
type Service struct {
	kv         store.KeyValueStore
	recall     store.SemanticStore
	embedder   embedder.Embedder
	recallTopK int
	now        func() time.Time
	newID      func() string
	log        zerolog.Logger
}

type Option func(*Service)

// WithRecallTopK sets the default number of recall hits.
func WithRecallTopK(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.recallTopK = k
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(kv store.KeyValueStore, recall store.SemanticStore, emb embedder.Embedder, opts ...Option) *Service {
	s := &Service{
		kv:         kv,
		recall:     recall,
		embedder:   emb,
		recallTopK: DefaultRecallTopK,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		log:        logx.With("memory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadCoreMemories returns the user's core memories, or an empty mapping when
// none were saved yet. Only store failures are errors.
func (s *Service) LoadCoreMemories(ctx context.Context, userID string) (model.CoreMemories, error) {
	doc, err := s.readCore(ctx, userID)
	if err != nil {
		if !errors.Is(err, errCorruptCore) {
			return nil, err
		}
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Core memory document unreadable, treating as empty")
		return model.CoreMemories{}, nil
	}
	return doc.Memories, nil
}

// SaveCoreMemory sets key to value and writes the whole mapping back.
func (s *Service) SaveCoreMemory(ctx context.Context, userID, key, value string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: core memory key is empty", errx.ErrInvalidToolArgs)
	}

	doc, err := s.readCore(ctx, userID)
	if err != nil {
		return "", err
	}
	doc.Memories[key] = value
	doc.UpdatedAt = s.now().UTC()

	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode core memories: %w", err)
	}

	// a cancelled turn must not write
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.kv.UpsertValue(ctx, model.CoreMemoryPath(userID), payload); err != nil {
		return "", fmt.Errorf("save core memory: %w", err)
	}

	s.log.Info().Str("user_id", userID).Str("memory_key", key).Int("count", len(doc.Memories)).Msg("Core memory saved")
	return fmt.Sprintf("Memory stored: %s = %s", key, value), nil
}

// SaveRecallMemory embeds text and stores it as a new recall record. Saving the
// same text twice creates two records.
func (s *Service) SaveRecallMemory(ctx context.Context, userID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: recall memory is empty", errx.ErrInvalidToolArgs)
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("embed recall memory: %w", err)
	}
	if embedder.IsZero(vector) {
		return "", fmt.Errorf("%w: recall memory has no searchable content", errx.ErrInvalidToolArgs)
	}

	id := s.newID()
	metadata := map[string]string{
		model.MetaUserID:    userID,
		model.MetaType:      model.RecallType,
		model.MetaTimestamp: s.now().UTC().Format(time.RFC3339Nano),
		model.MetaPath:      model.RecallMemoryPath(userID, id),
	}
	if err := s.recall.EmbedAndStore(ctx, id, vector, metadata, text); err != nil {
		return "", fmt.Errorf("save recall memory: %w", err)
	}

	s.log.Info().Str("user_id", userID).Str("id", id).Msg("Recall memory saved")
	return text, nil
}

// SearchRecallMemories returns the content of the user's closest recall records.
// It is best-effort: failures are logged and yield an empty result.
func (s *Service) SearchRecallMemories(ctx context.Context, userID, query string, topK int) []string {
	out := []string{}
	if strings.TrimSpace(query) == "" {
		return out
	}
	if topK <= 0 {
		topK = s.recallTopK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Recall search skipped: embedding failed")
		return out
	}
	if embedder.IsZero(vector) {
		s.log.Debug().Str("user_id", userID).Msg("Recall search skipped: query has no searchable content")
		return out
	}

	records, err := s.recall.SimilaritySearch(ctx, vector, model.Filter{UserID: userID, Type: model.RecallType}, topK)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Recall search failed")
		return out
	}

	for _, r := range records {
		out = append(out, r.Content)
	}
	s.log.Debug().Str("user_id", userID).Int("hits", len(out)).Msg("Recall memories retrieved")
	return out
}

func (s *Service) readCore(ctx context.Context, userID string) (*model.CoreMemoryDocument, error) {
	payload, ok, err := s.kv.GetValue(ctx, model.CoreMemoryPath(userID))
	if err != nil {
		return nil, fmt.Errorf("load core memories: %w", err)
	}

	doc := &model.CoreMemoryDocument{Memories: model.CoreMemories{}}
	if !ok {
		return doc, nil
	}
	if err := json.Unmarshal(payload, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorruptCore, err)
	}
	if doc.Memories == nil {
		doc.Memories = model.CoreMemories{}
	}
	return doc, nil
}
