package nodes

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/sdg-insight/server/internal/agent/graph/observers"
	"github.com/sdg-insight/server/internal/agent/model"
	errx "github.com/sdg-insight/server/internal/core/error"
	logx "github.com/sdg-insight/server/pkg/logger"
)

// ResilientChatModel bounds every attempt with a timeout and retries
// transient provider failures with exponential backoff. Failures leave as
// ModelAPI errors.
type ResilientChatModel struct {
	inner einomodel.ToolCallingChatModel
	name  string
	cfg   model.RetryConfig
}

var _ einomodel.ToolCallingChatModel = (*ResilientChatModel)(nil)

func NewResilientChatModel(inner einomodel.ToolCallingChatModel, name string, cfg model.RetryConfig) *ResilientChatModel {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	return &ResilientChatModel{inner: inner, name: name, cfg: cfg}
}

func (m *ResilientChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := m.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &ResilientChatModel{inner: bound, name: m.name, cfg: m.cfg}, nil
}

func (m *ResilientChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	return retry(ctx, m, func(callCtx context.Context) (*schema.Message, error) {
		out, err := m.inner.Generate(callCtx, input, opts...)
		if err == nil && out != nil && out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			observers.ObserveTokens(m.name, out.ResponseMeta.Usage.PromptTokens, out.ResponseMeta.Usage.CompletionTokens)
		}
		return out, err
	})
}

// Stream retries opening the stream only; errors inside an open stream reach
// the reader as they are.
func (m *ResilientChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return retry(ctx, m, func(callCtx context.Context) (*schema.StreamReader[*schema.Message], error) {
		return m.inner.Stream(callCtx, input, opts...)
	})
}

func retry[T any](ctx context.Context, m *ResilientChatModel, call func(context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		if attempt > 1 {
			observers.ObserveRetry(m.name)
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if m.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		}
		defer cancel()

		start := time.Now()
		out, err := call(callCtx)
		observers.ObserveModelCall(m.name, time.Since(start), err)
		if err == nil {
			return out, nil
		}

		if !IsTransient(err) || ctx.Err() != nil {
			return out, backoff.Permanent(err)
		}
		logx.Warn().
			Err(err).
			Str("model", m.name).
			Int("attempt", attempt).
			Uint("max_attempts", m.cfg.MaxAttempts).
			Msg("Chat model call failed; retrying")
		return out, err
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(m.newBackOff()),
		backoff.WithMaxTries(m.cfg.MaxAttempts),
	)
	if err != nil {
		var zero T
		logx.Error().Err(err).Str("model", m.name).Int("attempts", attempt).Msg("Chat model call failed")
		return zero, errx.ModelAPI(err, IsTransient(err))
	}
	return out, nil
}

func (m *ResilientChatModel) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if m.cfg.InitialInterval > 0 {
		b.InitialInterval = m.cfg.InitialInterval
	}
	if m.cfg.MaxInterval > 0 {
		b.MaxInterval = m.cfg.MaxInterval
	}
	return b
}

// IsTransient reports whether a provider error is worth retrying: rate limits,
// server errors, timeouts and network failures. Cancellation and client
// errors are not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return transientStatus(genaiErr.Code)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}
