package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/memgraph-agent/server/pkg/logger"
)

// newModelHandler logs the latest user input and the assistant output around model calls.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ev := logx.Debug().Str("node", info.Name).Str("type", info.Type)
			if input != nil {
				ev = ev.Int("messages", len(input.Messages)).
					Str("user", preview(lastUserContent(input.Messages)))
				if len(input.Tools) > 0 {
					ev = ev.Int("tools", len(input.Tools))
				}
			}
			ev.Msg("Model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("node", info.Name).Str("type", info.Type)
			if output != nil && output.Message != nil {
				ev = ev.Str("assistant", preview(strings.TrimSpace(output.Message.Content))).
					Int("tool_calls", len(output.Message.ToolCalls))
			}
			if output != nil && output.TokenUsage != nil {
				ev = ev.Int("prompt_tokens", output.TokenUsage.PromptTokens).
					Int("completion_tokens", output.TokenUsage.CompletionTokens)
			}
			ev.Msg("Model call finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("node", info.Name).Str("type", info.Type).Msg("Model call failed")
			return ctx
		},
	}
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}
