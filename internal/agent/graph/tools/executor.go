package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	logx "github.com/memgraph-agent/server/pkg/logger"
)

const DefaultMaxToolCalls = 10

var errToolLimit = errors.New("tool call limit reached")

// MemoryService is the part of the memory layer the tools act on.
type MemoryService interface {
	SaveCoreMemory(ctx context.Context, userID, key, value string) (string, error)
	SaveRecallMemory(ctx context.Context, userID, text string) (string, error)
	SearchRecallMemories(ctx context.Context, userID, query string, topK int) []string
}

type KnowledgeBase interface {
	Ask(ctx context.Context, query string) (string, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Executor runs decoded tool calls one at a time, in request order.
type Executor struct {
	memory    MemoryService
	knowledge KnowledgeBase
	web       WebSearcher
	maxCalls  int
}

func NewExecutor(memory MemoryService, knowledge KnowledgeBase, web WebSearcher, maxCalls int) *Executor {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxToolCalls
	}
	return &Executor{memory: memory, knowledge: knowledge, web: web, maxCalls: maxCalls}
}

// Run executes calls for userID and returns one tool message per call. Failures
// never abort the batch: they come back as "Error performing ..." results.
// executed is the number of calls already run this turn; the updated count is returned.
func (e *Executor) Run(ctx context.Context, userID string, calls []schema.ToolCall, executed int) ([]*schema.Message, int) {
	out := make([]*schema.Message, 0, len(calls))
	for _, tc := range calls {
		var result string
		if executed >= e.maxCalls {
			logx.Warn().Str("user_id", userID).Str("tool_name", tc.Function.Name).Int("max_tool_calls", e.maxCalls).
				Msg("Tool call limit exceeded - skipping")
			result = errorResult(tc.Function.Name, fmt.Errorf("%w (%d)", errToolLimit, e.maxCalls))
		} else {
			executed++
			result = e.execute(ctx, userID, tc)
		}
		out = append(out, schema.ToolMessage(result, tc.ID, schema.WithToolName(tc.Function.Name)))
	}
	return out, executed
}

func (e *Executor) execute(ctx context.Context, userID string, tc schema.ToolCall) string {
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      tc.Function.Name,
		Type:      "MemoryAgentTool",
		Component: components.ComponentOfTool,
	})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: tc.Function.Arguments})

	result, err := e.dispatch(ctx, userID, tc)
	if err != nil {
		callbacks.OnError(ctx, err)
		logx.Warn().Err(err).Str("user_id", userID).Str("tool_name", tc.Function.Name).Msg("Tool execution failed")
		return errorResult(tc.Function.Name, err)
	}

	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: result})
	return result
}

func (e *Executor) dispatch(ctx context.Context, userID string, tc schema.ToolCall) (string, error) {
	call, err := Decode(tc)
	if err != nil {
		return "", err
	}

	switch c := call.(type) {
	case SaveCore:
		return e.memory.SaveCoreMemory(ctx, userID, c.Args.Key, c.Args.Value)
	case SaveRecall:
		return e.memory.SaveRecallMemory(ctx, userID, c.Args.Memory)
	case SearchRecall:
		hits := e.memory.SearchRecallMemories(ctx, userID, c.Args.Query, c.Args.TopK)
		b, err := json.Marshal(hits)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case AskKnowledgeBase:
		if e.knowledge == nil {
			return "", errors.New("knowledge base is not configured")
		}
		return e.knowledge.Ask(ctx, c.Args.Query)
	case WebSearch:
		if e.web == nil {
			return "", errors.New("web search is not configured")
		}
		return e.web.Search(ctx, c.Args.Query)
	default:
		return "", fmt.Errorf("no handler for %s", call.Kind())
	}
}

func errorResult(name string, err error) string {
	return fmt.Sprintf("Error performing %s: %v", name, err)
}
