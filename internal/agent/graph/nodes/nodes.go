package nodes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/memgraph-agent/server/internal/agent/graph/conversations"
	"github.com/memgraph-agent/server/internal/agent/graph/prompts"
	"github.com/memgraph-agent/server/internal/agent/graph/tools"
	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
)

// syntheticCallIDPrefix names tool calls the provider left without an id.
const syntheticCallIDPrefix = "call_"

// MemoryLoader reads the memories a turn is grounded in.
type MemoryLoader interface {
	LoadCoreMemories(ctx context.Context, userID string) (model.CoreMemories, error)
	SearchRecallMemories(ctx context.Context, userID, query string, topK int) []string
}

// RecallSaver persists conversation summaries.
type RecallSaver interface {
	SaveRecallMemory(ctx context.Context, userID, text string) (string, error)
}

// ================ load_memories ================

// NewLoadMemoriesPreHandler seeds the turn state from the input.
func NewLoadMemoriesPreHandler() func(context.Context, model.TurnInput, *model.ConversationState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.ConversationState) (model.TurnInput, error) {
		if strings.TrimSpace(in.Message) == "" {
			return in, errx.ErrEmptyMessage
		}
		s.UserID = in.UserID
		s.ThreadID = in.ThreadID
		s.Messages = make([]*schema.Message, 0, len(in.History)+1)
		s.Messages = append(s.Messages, in.History...)
		s.Messages = append(s.Messages, schema.UserMessage(in.Message))

		// Reset per-turn fields
		s.CoreMemories = model.CoreMemories{}
		s.RecallMemories = []string{}
		s.FinalResponse = nil
		s.PendingSummaryBatch = nil
		s.Summary = ""
		s.ToolCallCount = 0
		s.ToolCallIDSeq = lastSyntheticCallID(in.History)
		s.TotalCostUSD = 0
		return in, nil
	}
}

// NewLoadMemoriesNode loads core and recall memories concurrently and renders the agent prompt.
// A core memory failure fails the turn; recall search is best-effort.
func NewLoadMemoriesNode(mm *conversations.MessagesManager, mem MemoryLoader, recallTopK int) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.TurnInput) ([]*schema.Message, error) {
		var (
			userID string
			window []*schema.Message
		)
		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			userID = s.UserID
			window = mm.Window(s.Messages)
			return nil
		})
		query := mm.RecallQuery(window)

		var (
			core   model.CoreMemories
			recall []string
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			core, err = mem.LoadCoreMemories(gctx, userID)
			return err
		})
		g.Go(func() error {
			recall = mem.SearchRecallMemories(gctx, userID, query, recallTopK)
			return nil
		})
		if err := g.Wait(); err != nil {
			logx.Error().Err(err).Str("user_id", userID).Str("node", NodeLoadMemories).Msg("Failed to load memories")
			return nil, fmt.Errorf("load memories: %w", err)
		}

		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			s.CoreMemories = core
			s.RecallMemories = recall
			s.FinalResponse = nil
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().
			Str("user_id", userID).
			Int("core_memories", len(core)).
			Int("recall_memories", len(recall)).
			Int("window", len(window)).
			Msg("Memories loaded")

		return prompts.RenderAgentMessages(ctx, prompts.MemoryContext{
			CoreMemories:   core,
			RecallMemories: recall,
			Now:            time.Now(),
		}, window)
	})
}

// ================ agent ================

// NewAgentPostHandler records usage, fills missing tool call ids and appends the reply to state.
func NewAgentPostHandler(modelName string) func(context.Context, *schema.Message, *model.ConversationState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, state *model.ConversationState) (*schema.Message, error) {
		if out == nil {
			return nil, errx.WrapModel(errors.New("agent model returned no message"))
		}
		recordUsage(state, NodeAgent, modelName, out)

		// Some providers omit tool call ids.
		for i := range out.ToolCalls {
			if strings.TrimSpace(out.ToolCalls[i].ID) == "" {
				state.ToolCallIDSeq++
				out.ToolCalls[i].ID = fmt.Sprintf("%s%d", syntheticCallIDPrefix, state.ToolCallIDSeq)
			}
		}

		state.Messages = append(state.Messages, out)

		if len(out.ToolCalls) > 0 {
			logx.Debug().Str("thread_id", state.ThreadID).Int("tool_count", len(out.ToolCalls)).Msg("Agent requested tools")
		} else {
			logx.Debug().Str("thread_id", state.ThreadID).Msg("Agent answered without tools")
		}
		return out, nil
	}
}

// RouteAfterAgent is the only routing decision after the agent step.
func RouteAfterAgent(msg *schema.Message) string {
	if msg != nil && len(msg.ToolCalls) > 0 {
		return NodeTools
	}
	return NodeResponse
}

// NewAgentCondition creates the branch condition following the agent node.
func NewAgentCondition() func(context.Context, *schema.Message) (string, error) {
	return func(ctx context.Context, in *schema.Message) (string, error) {
		next := RouteAfterAgent(in)
		logx.Debug().Str("next", next).Msg("Routing after agent")
		return next, nil
	}
}

// ================ tools ================

// NewToolsNode executes every requested tool call and appends the results to state.
// The agent message passes through unchanged.
func NewToolsNode(executor *tools.Executor) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *schema.Message) (*schema.Message, error) {
		var (
			userID   string
			executed int
		)
		_ = compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			userID = s.UserID
			executed = s.ToolCallCount
			return nil
		})

		results, executed := executor.Run(ctx, userID, in.ToolCalls, executed)

		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			s.Messages = append(s.Messages, results...)
			s.ToolCallCount = executed
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Debug().Str("user_id", userID).Int("tool_results", len(results)).Int("tool_call_count", executed).Msg("Tools executed")
		return in, nil
	})
}

// ================ response ================

// NewResponseNode generates the final reply with the tools-free model. When the
// context carries a FragmentSink the reply is streamed into it.
func NewResponseNode(mm *conversations.MessagesManager, chatModel einomodel.BaseChatModel, modelName string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ *schema.Message) (*model.TurnResult, error) {
		var (
			history []*schema.Message
			memCtx  prompts.MemoryContext
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			// A draft answer from the agent is internal; the response step replaces it.
			if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == schema.Assistant {
				s.Messages = s.Messages[:n-1]
			}
			history = mm.Window(s.Messages)
			memCtx = prompts.MemoryContext{CoreMemories: s.CoreMemories, RecallMemories: s.RecallMemories, Now: time.Now()}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		input, err := prompts.RenderResponseMessages(ctx, memCtx, history)
		if err != nil {
			return nil, err
		}

		ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
			Name:      NodeResponse,
			Type:      "ResponseModel",
			Component: components.ComponentOfChatModel,
		})

		var out *schema.Message
		if sink := fragmentSinkFrom(ctx); sink != nil {
			out, err = streamInto(ctx, chatModel, input, sink)
		} else {
			out, err = chatModel.Generate(ctx, input)
		}
		if err != nil {
			logx.Error().Err(err).Str("node", NodeResponse).Msg("Response model failed")
			return nil, errx.WrapModel(err)
		}
		if out == nil {
			return nil, errx.WrapModel(errors.New("response model returned no message"))
		}
		final := strings.TrimSpace(out.Content)
		if final == "" {
			logx.Error().Str("node", NodeResponse).Msg("Response model returned empty text")
			return nil, errx.WrapModel(errors.New("response model returned empty text"))
		}

		var result *model.TurnResult
		err = compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			recordUsage(s, NodeResponse, modelName, out)
			s.Messages = append(s.Messages, schema.AssistantMessage(final, nil))
			s.FinalResponse = &final
			result = model.ResultFromState(s)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		return result, nil
	})
}

func streamInto(ctx context.Context, chatModel einomodel.BaseChatModel, input []*schema.Message, sink FragmentSink) (*schema.Message, error) {
	sr, err := chatModel.Stream(ctx, input)
	if err != nil {
		return nil, err
	}
	defer sr.Close()

	var chunks []*schema.Message
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			sink(chunk.Content)
		}
	}
	if len(chunks) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	return schema.ConcatMessages(chunks)
}

// ================ summarize ================

// NewSummarizeCondition routes to summarization once the thread reaches the threshold.
func NewSummarizeCondition(mm *conversations.MessagesManager) func(context.Context, *model.TurnResult) (string, error) {
	return func(ctx context.Context, in *model.TurnResult) (string, error) {
		if in != nil && mm.ShouldSummarize(len(in.Messages)) {
			logx.Debug().Int("messages", len(in.Messages)).Msg("Routing to summarize")
			return NodeSummarize, nil
		}
		return compose.END, nil
	}
}

// NewSummarizeNode condenses everything but the newest messages into one recall
// memory and prunes them from the active state.
func NewSummarizeNode(mm *conversations.MessagesManager, chatModel einomodel.BaseChatModel, modelName string, saver RecallSaver) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *model.TurnResult) (*model.TurnResult, error) {
		var (
			userID string
			batch  []*schema.Message
			keep   []*schema.Message
		)
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			userID = s.UserID
			batch, keep = mm.SplitForSummary(s.Messages)
			s.PendingSummaryBatch = batch
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if len(batch) == 0 {
			return in, nil
		}

		input, err := prompts.RenderSummaryMessages(ctx, conversations.BufferString(batch))
		if err != nil {
			return nil, err
		}

		sctx := callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
			Name:      NodeSummarize,
			Type:      "SummaryModel",
			Component: components.ComponentOfChatModel,
		})
		out, err := chatModel.Generate(sctx, input)
		if err != nil {
			logx.Error().Err(err).Str("node", NodeSummarize).Msg("Summary model failed")
			return nil, errx.WrapModel(err)
		}
		summary := ""
		if out != nil {
			summary = strings.TrimSpace(out.Content)
		}
		if summary == "" {
			return nil, errx.WrapModel(errors.New("summary model returned empty text"))
		}

		if _, err := saver.SaveRecallMemory(ctx, userID, summary); err != nil {
			return nil, fmt.Errorf("persist summary: %w", err)
		}

		var result *model.TurnResult
		err = compose.ProcessState(ctx, func(_ context.Context, s *model.ConversationState) error {
			recordUsage(s, NodeSummarize, modelName, out)
			s.Messages = keep
			s.PendingSummaryBatch = nil
			s.Summary = summary
			result = model.ResultFromState(s)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		logx.Info().
			Str("user_id", userID).
			Int("summarized", len(batch)).
			Int("retained", len(keep)).
			Msg("Conversation summarized into recall memory")
		return result, nil
	})
}

// ====================== Helper function ======================
// lastSyntheticCallID returns the highest n of "call_<n>" ids in history, so ids
// synthesized this turn stay unique within the thread checkpoint.
func lastSyntheticCallID(history []*schema.Message) int {
	highest := 0
	for _, m := range history {
		if m == nil {
			continue
		}
		for _, tc := range m.ToolCalls {
			rest, ok := strings.CutPrefix(tc.ID, syntheticCallIDPrefix)
			if !ok {
				continue
			}
			if n, err := strconv.Atoi(rest); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest
}

// recordUsage prices the token usage of out and accumulates it into state.
func recordUsage(state *model.ConversationState, node, modelName string, out *schema.Message) {
	if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	state.TotalCostUSD += totalC

	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	out.Extra["usage_cost"] = map[string]any{
		"currency":          "USD",
		"model":             modelName,
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
		"input_cost":        inC,
		"output_cost":       outC,
		"total_cost":        totalC,
	}
	out.Extra["usage_cost_total_usd"] = state.TotalCostUSD

	logx.Debug().
		Str("thread_id", state.ThreadID).
		Str("node", node).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
}
