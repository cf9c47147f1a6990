package nodes

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdg-insight/server/internal/agent/model"
	errx "github.com/sdg-insight/server/internal/core/error"
)

type flakyModel struct {
	calls    atomic.Int32
	failures int32
	err      error
	tools    int
}

func (f *flakyModel) Generate(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return nil, f.err
	}
	return schema.AssistantMessage(fmt.Sprintf("ok after %d", n), nil), nil
}

func (f *flakyModel) Stream(ctx context.Context, in []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *flakyModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return &flakyModel{failures: f.failures, err: f.err, tools: len(tools)}, nil
}

func fastRetry() model.RetryConfig {
	return model.RetryConfig{
		Timeout:         time.Second,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestResilientRetriesTransientFailures(t *testing.T) {
	inner := &flakyModel{failures: 2, err: &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "overloaded"}}
	m := NewResilientChatModel(inner, "gpt-4o", fastRetry())

	out, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok after 3", out.Content)
	assert.EqualValues(t, 3, inner.calls.Load())
}

func TestResilientStopsOnPermanentFailure(t *testing.T) {
	inner := &flakyModel{failures: 5, err: &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}}
	m := NewResilientChatModel(inner, "gpt-4o", fastRetry())

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.EqualValues(t, 1, inner.calls.Load())
	assert.Equal(t, errx.KindModelAPI, errx.KindOf(err))
	assert.False(t, errx.IsRetryable(err))
}

func TestResilientGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyModel{failures: 10, err: &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}}
	m := NewResilientChatModel(inner, "gpt-4o", fastRetry())

	_, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.EqualValues(t, 3, inner.calls.Load())
	assert.Equal(t, errx.KindModelAPI, errx.KindOf(err))
	assert.True(t, errx.IsRetryable(err))

	var apiErr *openai.APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestResilientWithToolsKeepsWrapping(t *testing.T) {
	m := NewResilientChatModel(&flakyModel{}, "gpt-4o", fastRetry())

	bound, err := m.WithTools([]*schema.ToolInfo{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)

	rm, ok := bound.(*ResilientChatModel)
	require.True(t, ok)
	assert.Equal(t, 2, rm.inner.(*flakyModel).tools)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", fmt.Errorf("wrapped: %w", &openai.APIError{HTTPStatusCode: 502}), true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"request error 500", &openai.RequestError{HTTPStatusCode: 500, Err: errors.New("boom")}, true},
		{"plain", errors.New("something else"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
