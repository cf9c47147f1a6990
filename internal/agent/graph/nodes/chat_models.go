package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/sdg-insight/server/internal/agent/model"
	logx "github.com/sdg-insight/server/pkg/logger"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	LLM   model.LLMConfig
	Retry model.RetryConfig
}

// ChatModels holds the chat model shared by both model nodes. The tool node
// binds the catalog to its own copy; the synthesis node uses Base unbound.
type ChatModels struct {
	Base      einomodel.ToolCallingChatModel
	ModelName string
}

// NewChatModels creates the configured provider's chat model wrapped with
// timeouts and retries.
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	var (
		base einomodel.ToolCallingChatModel
		err  error
	)

	switch provider := strings.ToLower(strings.TrimSpace(config.LLM.Provider)); provider {
	case ProviderOpenAI, "":
		base, err = NewOpenAIChatModel(OpenAIConfig{
			APIKey:      config.LLM.OpenAIKey,
			BaseURL:     config.LLM.OpenAIURL,
			Model:       config.LLM.Model,
			MaxTokens:   config.LLM.MaxTokens,
			Temperature: config.LLM.Temperature,
		})
	case ProviderGemini:
		base, err = newGeminiChatModel(ctx, config.LLM)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", provider)
	}
	if err != nil {
		return nil, err
	}

	logx.Debug().
		Str("provider", config.LLM.Provider).
		Str("model", config.LLM.Model).
		Msg("Chat model created")

	return &ChatModels{
		Base:      NewResilientChatModel(base, config.LLM.Model, config.Retry),
		ModelName: config.LLM.Model,
	}, nil
}

func newGeminiChatModel(ctx context.Context, config model.LLMConfig) (*gemini.ChatModel, error) {
	if config.GeminiKey == "" {
		return nil, fmt.Errorf("gemini provider requires GEMINI_API_KEY")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.GeminiURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.GeminiURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cfg := &gemini.Config{
		Client:      client,
		Model:       config.Model,
		Temperature: &config.Temperature,
		MaxTokens:   &config.MaxTokens,
	}
	if config.ThinkingBudget > 0 {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(config.ThinkingBudget),
		}
	}

	cm, err := gemini.NewChatModel(ctx, cfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}
	return cm, nil
}
