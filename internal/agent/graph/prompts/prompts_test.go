package prompts

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/memgraph-agent/server/internal/agent/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func TestRenderAgentMessages(t *testing.T) {
	history := []*schema.Message{schema.UserMessage("I had a dog named {{Spot}}")}
	msgs, err := RenderAgentMessages(context.Background(), MemoryContext{
		CoreMemories:   model.CoreMemories{"name": "Ana", "preference.food": "ramen"},
		RecallMemories: []string{"Went hiking last week"},
		Now:            fixedNow,
	}, history)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	sys := msgs[0]
	assert.Equal(t, schema.System, sys.Role)
	assert.Contains(t, sys.Content, "<core_memory>\nname: Ana\npreference.food: ramen\n</core_memory>")
	assert.Contains(t, sys.Content, "Went hiking last week")
	assert.Contains(t, sys.Content, "Current time: 2024-06-01T09:30:00Z")
	assert.Contains(t, sys.Content, model.ToolNameSaveCore)
	assert.NotContains(t, sys.Content, "{{")

	// history is passed through untouched
	assert.Equal(t, "I had a dog named {{Spot}}", msgs[1].Content)
}

func TestRenderResponseMessages(t *testing.T) {
	msgs, err := RenderResponseMessages(context.Background(), MemoryContext{Now: fixedNow}, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "less than 10 words")
	assert.Contains(t, msgs[0].Content, "<core_memory>\n</core_memory>")
	assert.Contains(t, msgs[0].Content, "<recall_memory>\n</recall_memory>")
}

func TestRenderSummaryMessages(t *testing.T) {
	msgs, err := RenderSummaryMessages(context.Background(), "Human: hi\nAI: hello")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "concise summary")
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, "Human: hi\nAI: hello", msgs[1].Content)
}
