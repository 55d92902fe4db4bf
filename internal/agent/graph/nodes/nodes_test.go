package nodes

import (
	"context"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgraph-agent/server/internal/agent/graph/conversations"
	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
)

func newManager() *conversations.MessagesManager {
	cfg := model.ConversationConfig{TokenBudget: 6000, RecallQueryMessages: 5}
	cfg.Summary.Threshold = 10
	cfg.Summary.Keep = 2
	return conversations.NewMessagesManager(cfg)
}

type chunkModel struct {
	chunks []string
}

func (m *chunkModel) Generate(context.Context, []*schema.Message, ...einomodel.Option) (*schema.Message, error) {
	return schema.AssistantMessage(strings.Join(m.chunks, ""), nil), nil
}

func (m *chunkModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msgs := make([]*schema.Message, 0, len(m.chunks))
	for _, c := range m.chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func TestLoadMemoriesPreHandler(t *testing.T) {
	pre := NewLoadMemoriesPreHandler()

	t.Run("seeds state and resets per-turn fields", func(t *testing.T) {
		final := "old"
		st := &model.ConversationState{
			CoreMemories:        model.CoreMemories{"stale": "x"},
			RecallMemories:      []string{"stale"},
			FinalResponse:       &final,
			PendingSummaryBatch: []*schema.Message{schema.UserMessage("x")},
			Summary:             "old summary",
			ToolCallCount:       3,
			TotalCostUSD:        1.5,
		}
		in := model.TurnInput{
			UserID:   "u1",
			ThreadID: "t1",
			History:  []*schema.Message{schema.UserMessage("hi"), schema.AssistantMessage("hello", nil)},
			Message:  "my dog is Spot",
		}

		_, err := pre(context.Background(), in, st)
		require.NoError(t, err)

		assert.Equal(t, "u1", st.UserID)
		assert.Equal(t, "t1", st.ThreadID)
		require.Len(t, st.Messages, 3)
		assert.Equal(t, schema.User, st.Messages[2].Role)
		assert.Equal(t, "my dog is Spot", st.Messages[2].Content)
		assert.Empty(t, st.CoreMemories)
		assert.Empty(t, st.RecallMemories)
		assert.Nil(t, st.FinalResponse)
		assert.Nil(t, st.PendingSummaryBatch)
		assert.Empty(t, st.Summary)
		assert.Zero(t, st.ToolCallCount)
		assert.Zero(t, st.TotalCostUSD)
		assert.Len(t, in.History, 2, "input history must not be mutated")
	})

	t.Run("empty message", func(t *testing.T) {
		_, err := pre(context.Background(), model.TurnInput{UserID: "u1", Message: "   "}, &model.ConversationState{})
		assert.ErrorIs(t, err, errx.ErrEmptyMessage)
	})
}

func TestAgentPostHandler(t *testing.T) {
	post := NewAgentPostHandler("gemini-2.5-flash")

	t.Run("fills missing tool call ids and appends", func(t *testing.T) {
		st := &model.ConversationState{}
		msg := schema.AssistantMessage("", []schema.ToolCall{
			{Function: schema.FunctionCall{Name: model.ToolNameSaveCore, Arguments: `{}`}},
			{ID: "given", Function: schema.FunctionCall{Name: model.ToolNameSaveRecall, Arguments: `{}`}},
			{Function: schema.FunctionCall{Name: model.ToolNameWebSearch, Arguments: `{}`}},
		})
		msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1000, CompletionTokens: 100, TotalTokens: 1100}}

		out, err := post(context.Background(), msg, st)
		require.NoError(t, err)

		assert.Equal(t, "call_1", out.ToolCalls[0].ID)
		assert.Equal(t, "given", out.ToolCalls[1].ID)
		assert.Equal(t, "call_2", out.ToolCalls[2].ID)
		require.Len(t, st.Messages, 1)
		assert.Same(t, msg, st.Messages[0])
		assert.Greater(t, st.TotalCostUSD, 0.0)
		assert.Contains(t, out.Extra, "usage_cost")
	})

	t.Run("nil message", func(t *testing.T) {
		_, err := post(context.Background(), nil, &model.ConversationState{})
		assert.ErrorIs(t, err, errx.ErrModelUnavailable)
	})
}

func TestRouteAfterAgent(t *testing.T) {
	withTools := schema.AssistantMessage("", []schema.ToolCall{{ID: "1"}})
	assert.Equal(t, NodeTools, RouteAfterAgent(withTools))
	assert.Equal(t, NodeResponse, RouteAfterAgent(schema.AssistantMessage("hi", nil)))
	assert.Equal(t, NodeResponse, RouteAfterAgent(nil))

	next, err := NewAgentCondition()(context.Background(), withTools)
	require.NoError(t, err)
	assert.Equal(t, NodeTools, next)
}

func TestSummarizeCondition(t *testing.T) {
	cond := NewSummarizeCondition(newManager())

	msgs := func(n int) []*schema.Message {
		out := make([]*schema.Message, n)
		for i := range out {
			out[i] = schema.UserMessage("m")
		}
		return out
	}

	next, err := cond(context.Background(), &model.TurnResult{Messages: msgs(9)})
	require.NoError(t, err)
	assert.Equal(t, compose.END, next)

	next, err = cond(context.Background(), &model.TurnResult{Messages: msgs(10)})
	require.NoError(t, err)
	assert.Equal(t, NodeSummarize, next)

	next, err = cond(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, compose.END, next)
}

func TestStreamInto(t *testing.T) {
	var got []string
	sink := func(s string) { got = append(got, s) }

	out, err := streamInto(context.Background(), &chunkModel{chunks: []string{"Nice ", "", "dog!"}}, nil, sink)
	require.NoError(t, err)
	assert.Equal(t, "Nice dog!", out.Content)
	assert.Equal(t, []string{"Nice ", "dog!"}, got)

	out, err = streamInto(context.Background(), &chunkModel{}, nil, sink)
	require.NoError(t, err)
	assert.Equal(t, "", out.Content)
}

func TestFragmentSinkFromContext(t *testing.T) {
	assert.Nil(t, fragmentSinkFrom(context.Background()))

	called := false
	ctx := WithFragmentSink(context.Background(), func(string) { called = true })
	sink := fragmentSinkFrom(ctx)
	require.NotNil(t, sink)
	sink("x")
	assert.True(t, called)
}

func TestRecordUsage(t *testing.T) {
	st := &model.ConversationState{ThreadID: "t1"}

	recordUsage(st, NodeAgent, "gemini-2.5-flash", schema.AssistantMessage("no usage", nil))
	assert.Zero(t, st.TotalCostUSD)

	msg := schema.AssistantMessage("x", nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1_000_000, TotalTokens: 1_000_000}}
	recordUsage(st, NodeAgent, "gemini-2.5-flash", msg)
	first := st.TotalCostUSD
	assert.Greater(t, first, 0.0)

	recordUsage(st, NodeResponse, "gemini-2.5-flash", msg)
	assert.InDelta(t, 2*first, st.TotalCostUSD, 1e-9)
	assert.InDelta(t, st.TotalCostUSD, msg.Extra["usage_cost_total_usd"], 1e-9)
}

func TestToolCallIDsContinueAcrossTurns(t *testing.T) {
	history := []*schema.Message{
		schema.UserMessage("my dog is Spot"),
		schema.AssistantMessage("", []schema.ToolCall{
			{ID: "call_3", Function: schema.FunctionCall{Name: model.ToolNameSaveCore}},
			{ID: "provider-id", Function: schema.FunctionCall{Name: model.ToolNameSaveRecall}},
		}),
		schema.ToolMessage("Memory stored: pet.dog.name = Spot", "call_3"),
		schema.ToolMessage("my dog is Spot", "provider-id"),
		schema.AssistantMessage("Nice!", nil),
	}
	assert.Equal(t, 3, lastSyntheticCallID(history))
	assert.Zero(t, lastSyntheticCallID(nil))
	assert.Zero(t, lastSyntheticCallID([]*schema.Message{
		schema.AssistantMessage("", []schema.ToolCall{{ID: "call_x"}}),
	}))

	st := &model.ConversationState{}
	_, err := NewLoadMemoriesPreHandler()(context.Background(), model.TurnInput{
		UserID: "u1", ThreadID: "t1", History: history, Message: "I also had a cat",
	}, st)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ToolCallIDSeq)

	msg := schema.AssistantMessage("", []schema.ToolCall{{Function: schema.FunctionCall{Name: model.ToolNameSaveCore}}})
	out, err := NewAgentPostHandler("gemini-2.5-flash")(context.Background(), msg, st)
	require.NoError(t, err)
	assert.Equal(t, "call_4", out.ToolCalls[0].ID)
}
