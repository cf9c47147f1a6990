package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	SessionIdleTTL      time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	SessionSweepEvery   time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
	DefaultMapType      string        `envconfig:"CONVERSATION_DEFAULT_MAP_TYPE" default:"sdg_analysis"`
	StoredResponseLimit int           `envconfig:"CONVERSATION_STORED_RESPONSE_LIMIT" default:"2500"`
	StoredResponseKeep  int           `envconfig:"CONVERSATION_STORED_RESPONSE_KEEP" default:"2000"`
	Tools               struct {
		MaxCalls    int `envconfig:"CONVERSATION_TOOL_MAX_CALLS" default:"10"`
		Concurrency int `envconfig:"CONVERSATION_TOOL_CONCURRENCY" default:"4"`
	}
}

type HistoryConfig struct {
	MaxTokens  int     `envconfig:"HISTORY_MAX_TOKENS" default:"128000"`
	SafeRatio  float64 `envconfig:"HISTORY_SAFE_RATIO" default:"0.4"`
	TokenModel string  `envconfig:"HISTORY_TOKEN_MODEL" default:"gpt-4o"`
}

// SafeTokenLimit is the input budget: floor(MaxTokens * SafeRatio).
func (c HistoryConfig) SafeTokenLimit() int {
	return int(float64(c.MaxTokens) * c.SafeRatio)
}

type LLMConfig struct {
	Provider       string  `envconfig:"LLM_PROVIDER" default:"openai"`
	Model          string  `envconfig:"LLM_MODEL" default:"gpt-4o"`
	MaxTokens      int     `envconfig:"LLM_MAX_TOKENS" default:"2000"`
	Temperature    float32 `envconfig:"LLM_TEMPERATURE" default:"0.2"`
	OpenAIKey      string  `envconfig:"OPENAI_API_KEY"`
	OpenAIURL      string  `envconfig:"OPENAI_BASE_URL"`
	GeminiKey      string  `envconfig:"GEMINI_API_KEY"`
	GeminiURL      string  `envconfig:"GEMINI_BASE_URL"`
	ThinkingBudget int32   `envconfig:"GEMINI_THINKING_BUDGET" default:"0"`
}

type RetryConfig struct {
	Timeout         time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
	MaxAttempts     uint          `envconfig:"LLM_RETRY_MAX_ATTEMPTS" default:"3"`
	InitialInterval time.Duration `envconfig:"LLM_RETRY_INITIAL_INTERVAL" default:"500ms"`
	MaxInterval     time.Duration `envconfig:"LLM_RETRY_MAX_INTERVAL" default:"8s"`
}

type CacheConfig struct {
	Enabled bool          `envconfig:"RESULT_CACHE_ENABLED" default:"true"`
	TTL     time.Duration `envconfig:"RESULT_CACHE_TTL" default:"1h"`
	Prefix  string        `envconfig:"RESULT_CACHE_PREFIX" default:"sdg:result"`
}

// ================ Domain constants ================
const (
	DefaultYear = 2021
	DefaultTopN = 5
)

var SupportedYears = []int{2016, 2021}

// AvailableGoals are the SDGs with district-level indicator coverage.
var AvailableGoals = []int{1, 2, 3, 5, 6, 7, 8, 16, 17}

var GoalNames = map[int]string{
	1:  "No Poverty",
	2:  "Zero Hunger",
	3:  "Good Health and Well-being",
	4:  "Quality Education",
	5:  "Gender Equality",
	6:  "Clean Water and Sanitation",
	7:  "Affordable and Clean Energy",
	8:  "Decent Work and Economic Growth",
	9:  "Industry, Innovation and Infrastructure",
	10: "Reduced Inequalities",
	11: "Sustainable Cities and Communities",
	12: "Responsible Consumption and Production",
	13: "Climate Action",
	14: "Life Below Water",
	15: "Life on Land",
	16: "Peace, Justice and Strong Institutions",
	17: "Partnerships for the Goals",
}
