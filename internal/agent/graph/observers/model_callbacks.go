package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/sdg-insight/server/pkg/logger"
)

// newModelHandler builds a typed ModelCallbackHandler to log the request context and answer around model calls.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			if input == nil {
				return ctx
			}
			ev := logx.Debug().
				Str("node", info.Name).
				Str("type", info.Type).
				Int("messages", len(input.Messages)).
				Int("tools", len(input.Tools))
			if um := lastUserContent(input.Messages); um != "" {
				ev = ev.Str("user", um)
			}
			ev.Msg("Model call started")

			for i, m := range input.Messages {
				if m == nil {
					continue
				}
				content := strings.TrimSpace(m.Content)
				if content == "" && len(m.ToolCalls) == 0 {
					continue
				}
				logx.Debug().
					Int("index", i).
					Str("role", string(m.Role)).
					Int("tool_calls", len(m.ToolCalls)).
					Str("content", content).
					Msg("Model context message")
			}
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			ev := logx.Debug().Str("node", info.Name).Str("type", info.Type)
			if output != nil && output.Message != nil {
				ev = ev.
					Str("assistant", strings.TrimSpace(output.Message.Content)).
					Int("tool_calls", len(output.Message.ToolCalls))
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
