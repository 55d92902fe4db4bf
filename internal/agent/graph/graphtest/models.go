// Package graphtest provides deterministic chat models for exercising the turn graph.
package graphtest

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/memgraph-agent/server/internal/agent/graph/nodes"
	"github.com/memgraph-agent/server/internal/agent/model"
)

// DefaultReply is what ScriptedAgent answers when no rule matches.
const DefaultReply = "Tell me more!"

// ScriptedAgent is a tool-calling model driven by keywords in the latest user message:
// "Spot" saves the dog's name as a core memory, "beach" saves the message as a recall memory.
type ScriptedAgent struct {
	Calls atomic.Int32
	tools []*schema.ToolInfo
}

func (a *ScriptedAgent) Generate(_ context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	a.Calls.Add(1)
	user := lastUser(input)

	switch {
	case strings.Contains(user, "Spot"):
		return toolCallMessage(model.ToolNameSaveCore, model.SaveCoreArgs{Key: "pet.dog.name", Value: "Spot"}), nil
	case strings.Contains(strings.ToLower(user), "beach"):
		return toolCallMessage(model.ToolNameSaveRecall, model.SaveRecallArgs{Memory: user}), nil
	default:
		return withUsage(schema.AssistantMessage(DefaultReply, nil)), nil
	}
}

func (a *ScriptedAgent) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := a.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (a *ScriptedAgent) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	a.tools = tools
	return a, nil
}

// BoundTools returns the tool schemas the agent was bound to.
func (a *ScriptedAgent) BoundTools() []*schema.ToolInfo { return a.tools }

// StaticModel always answers Text. Stream emits it word by word.
type StaticModel struct {
	Text  string
	Calls atomic.Int32
}

func (m *StaticModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.Calls.Add(1)
	return withUsage(schema.AssistantMessage(m.Text, nil)), nil
}

func (m *StaticModel) Stream(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	m.Calls.Add(1)
	words := strings.SplitAfter(m.Text, " ")
	chunks := make([]*schema.Message, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		chunks = append(chunks, schema.AssistantMessage(w, nil))
	}
	return schema.StreamReaderFromArray(chunks), nil
}

// FailingModel returns Err from every call.
type FailingModel struct {
	Err error
}

// ErrModelOffline is the default FailingModel error.
var ErrModelOffline = errors.New("model offline")

func (m *FailingModel) err() error {
	if m.Err != nil {
		return m.Err
	}
	return ErrModelOffline
}

func (m *FailingModel) Generate(context.Context, []*schema.Message, ...einomodel.Option) (*schema.Message, error) {
	return nil, m.err()
}

func (m *FailingModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, m.err()
}

func (m *FailingModel) WithTools([]*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return m, nil
}

// Models bundles the fakes into a ChatModels value.
type Models struct {
	Agent    *ScriptedAgent
	Response *StaticModel
	Summary  *StaticModel
}

// NewModels returns fresh fakes with the given response and summary texts.
func NewModels(response, summary string) *Models {
	return &Models{
		Agent:    &ScriptedAgent{},
		Response: &StaticModel{Text: response},
		Summary:  &StaticModel{Text: summary},
	}
}

// ChatModels adapts the fakes for graph construction.
func (m *Models) ChatModels() *nodes.ChatModels {
	return &nodes.ChatModels{
		Agent:             m.Agent,
		Response:          m.Response,
		Summary:           m.Summary,
		AgentModelName:    "gemini-2.5-flash",
		ResponseModelName: "gemini-2.5-flash",
		SummaryModelName:  "gemini-2.5-flash-lite",
	}
}

func lastUser(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i] != nil && msgs[i].Role == schema.User {
			return msgs[i].Content
		}
	}
	return ""
}

func toolCallMessage(name string, args any) *schema.Message {
	b, _ := json.Marshal(args)
	return withUsage(schema.AssistantMessage("", []schema.ToolCall{{
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: string(b)},
	}}))
}

func withUsage(m *schema.Message) *schema.Message {
	m.ResponseMeta = &schema.ResponseMeta{
		Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}
	return m
}
