package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI chat completions adapter.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
}

// OpenAIChatModel adapts the OpenAI chat completions API to eino's
// ToolCallingChatModel. Instances are immutable; WithTools returns a copy.
type OpenAIChatModel struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	tools       []openai.Tool
}

var _ einomodel.ToolCallingChatModel = (*OpenAIChatModel)(nil)

func NewOpenAIChatModel(cfg OpenAIConfig) (*OpenAIChatModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai provider requires OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai provider requires a model name")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIChatModel{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	converted, err := toOpenAITools(tools)
	if err != nil {
		return nil, err
	}
	clone := *m
	clone.tools = converted
	return &clone, nil
}

func (m *OpenAIChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	req, err := m.request(input, opts)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices returned")
	}

	choice := resp.Choices[0]
	out := fromOpenAIMessage(choice.Message)
	out.ResponseMeta = &schema.ResponseMeta{
		FinishReason: string(choice.FinishReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	return out, nil
}

func (m *OpenAIChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	req, err := m.request(input, opts)
	if err != nil {
		return nil, err
	}
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := m.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion stream: %w", err)
	}

	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		defer stream.Close()
		defer sw.Close()
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sw.Send(nil, fmt.Errorf("openai chat completion stream: %w", err))
				return
			}

			msg := &schema.Message{Role: schema.Assistant}
			if len(chunk.Choices) > 0 {
				choice := chunk.Choices[0]
				msg.Content = choice.Delta.Content
				msg.ToolCalls = fromOpenAIToolCalls(choice.Delta.ToolCalls)
				if choice.FinishReason != "" {
					msg.ResponseMeta = &schema.ResponseMeta{FinishReason: string(choice.FinishReason)}
				}
			}
			if chunk.Usage != nil {
				if msg.ResponseMeta == nil {
					msg.ResponseMeta = &schema.ResponseMeta{}
				}
				msg.ResponseMeta.Usage = &schema.TokenUsage{
					PromptTokens:     chunk.Usage.PromptTokens,
					CompletionTokens: chunk.Usage.CompletionTokens,
					TotalTokens:      chunk.Usage.TotalTokens,
				}
			}
			if closed := sw.Send(msg, nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

func (m *OpenAIChatModel) request(input []*schema.Message, opts []einomodel.Option) (openai.ChatCompletionRequest, error) {
	o := einomodel.GetCommonOptions(&einomodel.Options{
		Model:       &m.model,
		MaxTokens:   &m.maxTokens,
		Temperature: &m.temperature,
	}, opts...)

	req := openai.ChatCompletionRequest{
		Messages: toOpenAIMessages(input),
		Tools:    m.tools,
	}
	if o.Model != nil {
		req.Model = *o.Model
	}
	if o.MaxTokens != nil && *o.MaxTokens > 0 {
		req.MaxTokens = *o.MaxTokens
	}
	if o.Temperature != nil {
		req.Temperature = *o.Temperature
	}
	if o.Tools != nil {
		tools, err := toOpenAITools(o.Tools)
		if err != nil {
			return req, err
		}
		req.Tools = tools
	}
	return req, nil
}

func toOpenAIMessages(in []*schema.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(in))
	for _, m := range in {
		if m == nil {
			continue
		}
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) *schema.Message {
	return &schema.Message{
		Role:      schema.Assistant,
		Content:   m.Content,
		ToolCalls: fromOpenAIToolCalls(m.ToolCalls),
	}
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []schema.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]schema.ToolCall, 0, len(calls))
	for _, tc := range calls {
		out = append(out, schema.ToolCall{
			Index: tc.Index,
			ID:    tc.ID,
			Type:  string(tc.Type),
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

var emptyParameters = json.RawMessage(`{"type":"object","properties":{}}`)

func toOpenAITools(infos []*schema.ToolInfo) ([]openai.Tool, error) {
	if len(infos) == 0 {
		return nil, nil
	}
	out := make([]openai.Tool, 0, len(infos))
	for _, ti := range infos {
		if ti == nil {
			continue
		}
		params := emptyParameters
		if ti.ParamsOneOf != nil {
			js, err := ti.ParamsOneOf.ToJSONSchema()
			if err != nil {
				return nil, fmt.Errorf("tool %s: convert parameters: %w", ti.Name, err)
			}
			if js != nil {
				b, err := json.Marshal(js)
				if err != nil {
					return nil, fmt.Errorf("tool %s: marshal parameters: %w", ti.Name, err)
				}
				params = b
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ti.Name,
				Description: ti.Desc,
				Parameters:  params,
			},
		})
	}
	return out, nil
}
