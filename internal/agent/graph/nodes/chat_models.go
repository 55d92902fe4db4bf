package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
	logx "github.com/memgraph-agent/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	Client        *genai.Client
	AgentConfig   *model.AgentModelConfig
	RespConfig    *model.ResponseModelConfig
	SummaryConfig *model.SummaryModelConfig
}

// ChatModels holds the three models a turn uses. Agent is the only one bound to tools.
type ChatModels struct {
	Agent             einomodel.ToolCallingChatModel
	Response          einomodel.BaseChatModel
	Summary           einomodel.BaseChatModel
	AgentModelName    string
	ResponseModelName string
	SummaryModelName  string
}

// NewGeminiClient creates the shared genai client used by chat models and embeddings.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates the agent, response and summary chat models.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Client == nil || config.AgentConfig == nil || config.RespConfig == nil || config.SummaryConfig == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

	agent, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.AgentConfig.Model,
		Temperature: &config.AgentConfig.Temperature,
		MaxTokens:   &config.AgentConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	response, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.RespConfig.Model,
		Temperature: &config.RespConfig.Temperature,
		MaxTokens:   &config.RespConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	summary, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.SummaryConfig.Model,
		Temperature: &config.SummaryConfig.Temperature,
		MaxTokens:   &config.SummaryConfig.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating summary model")
		return nil, fmt.Errorf("error creating summary model: %w", err)
	}

	return &ChatModels{
		Agent:             agent,
		Response:          response,
		Summary:           summary,
		AgentModelName:    config.AgentConfig.Model,
		ResponseModelName: config.RespConfig.Model,
		SummaryModelName:  config.SummaryConfig.Model,
	}, nil
}

// BindToolsToAgentModel binds tools to the agent chat model
func (cm *ChatModels) BindToolsToAgentModel(tools []*schema.ToolInfo) error {
	bound, err := cm.Agent.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return fmt.Errorf("failed to bind tools: %w", err)
	}
	cm.Agent = bound

	logx.Debug().Int("tools", len(tools)).Msg("Successfully bound tools to agent model")
	return nil
}

// NewAgentChatModelNode wraps the agent model so its failures carry errx.ErrModelUnavailable.
func NewAgentChatModelNode(chatModel einomodel.ToolCallingChatModel) einomodel.ToolCallingChatModel {
	return &modelErrorWrapper{inner: chatModel}
}

type modelErrorWrapper struct {
	inner einomodel.ToolCallingChatModel
}

func (w *modelErrorWrapper) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	out, err := w.inner.Generate(ctx, input, opts...)
	if err != nil {
		return nil, errx.WrapModel(err)
	}
	return out, nil
}

func (w *modelErrorWrapper) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := w.inner.Stream(ctx, input, opts...)
	if err != nil {
		return nil, errx.WrapModel(err)
	}
	return out, nil
}

func (w *modelErrorWrapper) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := w.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &modelErrorWrapper{inner: bound}, nil
}

// IsCallbacksEnabled defers to the wrapped model so callbacks fire exactly once.
func (w *modelErrorWrapper) IsCallbacksEnabled() bool {
	return components.IsCallbacksEnabled(w.inner)
}

func (w *modelErrorWrapper) GetType() string {
	if typ, ok := components.GetType(w.inner); ok {
		return typ
	}
	return "ChatModel"
}
