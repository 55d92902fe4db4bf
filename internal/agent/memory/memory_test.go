package memory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/memgraph-agent/server/internal/agent/embedder"
	"github.com/memgraph-agent/server/internal/agent/model"
	"github.com/memgraph-agent/server/internal/agent/store"
	errx "github.com/memgraph-agent/server/internal/core/error"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc    *Service
	mr     *miniredis.Miniredis
	recall *store.ChromemSemanticStore
	emb    embedder.Embedder
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db, err := store.NewChromemDB("")
	require.NoError(t, err)
	recall, err := store.NewChromemSemanticStore(db, "recall")
	require.NoError(t, err)

	emb := embedder.NewHashEmbedder(1024)
	return &fixture{
		svc:    NewService(store.NewRedisKeyValueStore(client, ""), recall, emb, opts...),
		mr:     mr,
		recall: recall,
		emb:    emb,
	}
}

func TestLoadCoreMemories_NoRecord(t *testing.T) {
	f := setup(t)
	mem, err := f.svc.LoadCoreMemories(context.Background(), "new-user")
	require.NoError(t, err)
	assert.NotNil(t, mem)
	assert.Empty(t, mem)
}

func TestSaveCoreMemory_ThenLoad(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	msg, err := f.svc.SaveCoreMemory(ctx, "u1", "name", "Spot")
	require.NoError(t, err)
	assert.Equal(t, "Memory stored: name = Spot", msg)

	mem, err := f.svc.LoadCoreMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Spot", mem["name"])
}

func TestSaveCoreMemory_LastWriteWinsAndKeepsOtherKeys(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SaveCoreMemory(ctx, "u1", "preference.food", "pizza")
	require.NoError(t, err)
	_, err = f.svc.SaveCoreMemory(ctx, "u1", "name", "Ana")
	require.NoError(t, err)
	_, err = f.svc.SaveCoreMemory(ctx, "u1", "preference.food", "ramen")
	require.NoError(t, err)

	mem, err := f.svc.LoadCoreMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.CoreMemories{"preference.food": "ramen", "name": "Ana"}, mem)
}

func TestSaveCoreMemory_DocumentLayout(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := setup(t, WithClock(func() time.Time { return now }))

	_, err := f.svc.SaveCoreMemory(context.Background(), "u1", "name", "Ana")
	require.NoError(t, err)

	raw, err := f.mr.Get("user/u1/core")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, map[string]any{"name": "Ana"}, doc["memories"])
	assert.Equal(t, "2024-03-01T12:00:00Z", doc["updated_at"])
}

func TestSaveCoreMemory_Validation(t *testing.T) {
	f := setup(t)
	_, err := f.svc.SaveCoreMemory(context.Background(), "u1", "  ", "v")
	assert.True(t, errors.Is(err, errx.ErrInvalidToolArgs))
}

func TestSaveCoreMemory_CancelledDoesNotWrite(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.SaveCoreMemory(ctx, "u1", "name", "Ana")
	require.Error(t, err)
	assert.False(t, f.mr.Exists("user/u1/core"))
}

func TestLoadCoreMemories_CorruptDocument(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.mr.Set("user/u1/core", "{not json"))

	mem, err := f.svc.LoadCoreMemories(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, mem)

	_, err = f.svc.SaveCoreMemory(context.Background(), "u1", "name", "Ana")
	assert.Error(t, err, "a corrupt document must not be overwritten blindly")
}

func TestLoadCoreMemories_StoreDown(t *testing.T) {
	f := setup(t)
	f.mr.Close()

	_, err := f.svc.LoadCoreMemories(context.Background(), "u1")
	assert.True(t, errors.Is(err, errx.ErrStoreUnavailable))
}

func TestRecall_SaveThenSearch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SaveRecallMemory(ctx, "u1", "My favourite colour is green")
	require.NoError(t, err)
	got, err := f.svc.SaveRecallMemory(ctx, "u1", "I went to the beach")
	require.NoError(t, err)
	assert.Equal(t, "I went to the beach", got)

	hits := f.svc.SearchRecallMemories(ctx, "u1", "beach trip", 1)
	assert.Equal(t, []string{"I went to the beach"}, hits)

	hits = f.svc.SearchRecallMemories(ctx, "u1", "beach trip", 0)
	assert.Contains(t, hits, "I went to the beach")
}

func TestRecall_FilterIsolation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SaveRecallMemory(ctx, "u1", "I went to the beach")
	require.NoError(t, err)

	assert.Empty(t, f.svc.SearchRecallMemories(ctx, "u2", "beach trip", 5))
}

func TestRecall_DuplicatesAreDistinctRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.SaveRecallMemory(ctx, "u1", "I went to the beach")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.recall.Count())
	assert.Len(t, f.svc.SearchRecallMemories(ctx, "u1", "beach", 5), 2)
}

func TestRecall_EmptyInputs(t *testing.T) {
	f := setup(t)
	_, err := f.svc.SaveRecallMemory(context.Background(), "u1", " ")
	assert.True(t, errors.Is(err, errx.ErrInvalidToolArgs))
	assert.Empty(t, f.svc.SearchRecallMemories(context.Background(), "u1", "", 5))
}

type brokenStore struct{ store.SemanticStore }

func (brokenStore) SimilaritySearch(context.Context, []float32, model.Filter, int) ([]model.Record, error) {
	return nil, errx.WrapStore(errors.New("connection refused"))
}

func TestRecall_SearchIsBestEffort(t *testing.T) {
	f := setup(t)
	svc := NewService(nil, brokenStore{}, f.emb)

	hits := svc.SearchRecallMemories(context.Background(), "u1", "anything", 5)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestKnowledgeBase(t *testing.T) {
	db, err := store.NewChromemDB("")
	require.NoError(t, err)
	kbStore, err := store.NewChromemSemanticStore(db, "wisdom")
	require.NoError(t, err)
	kb := NewKnowledgeBase(kbStore, embedder.NewHashEmbedder(128), 2)
	ctx := context.Background()

	answer, err := kb.Ask(ctx, "patience")
	require.NoError(t, err)
	assert.Empty(t, answer)

	require.NoError(t, kb.AddDocuments(ctx, []string{
		"Patience is bitter, but its fruit is sweet.",
		"",
		"Knowing yourself is the beginning of all wisdom.",
		"The journey of a thousand miles begins with one step.",
	}))
	assert.Equal(t, 3, kbStore.Count())

	answer, err = kb.Ask(ctx, "what is patience")
	require.NoError(t, err)
	assert.Contains(t, answer, "Patience is bitter")
	assert.Contains(t, answer, "\n\n")
}

func TestRecall_NoSearchableContent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SaveRecallMemory(ctx, "u1", "I went to the beach")
	require.NoError(t, err)

	_, err = f.svc.SaveRecallMemory(ctx, "u1", "!!! ???")
	assert.ErrorIs(t, err, errx.ErrInvalidToolArgs)
	assert.Equal(t, 1, f.recall.Count())

	assert.Empty(t, f.svc.SearchRecallMemories(ctx, "u1", "...", 5))
	assert.Equal(t, []string{"I went to the beach"}, f.svc.SearchRecallMemories(ctx, "u1", "beach", 5))
}

func TestKnowledgeBase_ReseedDoesNotDuplicate(t *testing.T) {
	db, err := store.NewChromemDB("")
	require.NoError(t, err)
	kbStore, err := store.NewChromemSemanticStore(db, "wisdom")
	require.NoError(t, err)
	kb := NewKnowledgeBase(kbStore, embedder.NewHashEmbedder(128), 5)
	ctx := context.Background()

	docs := []string{
		"Patience is bitter, but its fruit is sweet.",
		"Knowing yourself is the beginning of all wisdom.",
		"???",
	}
	require.NoError(t, kb.AddDocuments(ctx, docs))
	require.NoError(t, kb.AddDocuments(ctx, docs))
	assert.Equal(t, 2, kbStore.Count())

	answer, err := kb.Ask(ctx, "patience")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(answer, "Patience is bitter"))

	answer, err = kb.Ask(ctx, "?!")
	require.NoError(t, err)
	assert.Empty(t, answer)
}
