package observers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// modelCallDuration measures chat model calls per graph node.
	modelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sdg_chatbot",
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "Duration of chat model calls in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"model", "status"},
	)

	modelTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdg_chatbot",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens consumed by chat model calls.",
		},
		[]string{"model", "direction"},
	)

	modelRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdg_chatbot",
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Chat model attempts that were retried.",
		},
		[]string{"model"},
	)

	// toolCallDuration measures analysis function calls.
	//
	// Labels:
	//   - function: catalog function name
	//   - outcome: "ok", "error", "unknown", "cached"
	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sdg_chatbot",
			Subsystem: "tools",
			Name:      "call_duration_seconds",
			Help:      "Duration of analysis function calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"function", "outcome"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdg_chatbot",
			Subsystem: "tools",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sdg_chatbot",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "User turns by path and outcome.",
		},
		[]string{"path", "outcome"},
	)
)

// ObserveModelCall records one chat model call.
func ObserveModelCall(model string, d time.Duration, err error) {
	modelCallDuration.WithLabelValues(model, status(err)).Observe(d.Seconds())
}

// ObserveTokens records token usage reported by the provider.
func ObserveTokens(model string, prompt, completion int) {
	modelTokensTotal.WithLabelValues(model, "input").Add(float64(prompt))
	modelTokensTotal.WithLabelValues(model, "output").Add(float64(completion))
}

// ObserveRetry counts a retried model attempt.
func ObserveRetry(model string) {
	modelRetriesTotal.WithLabelValues(model).Inc()
}

// ObserveToolCall records one analysis function call.
func ObserveToolCall(function, outcome string, d time.Duration) {
	toolCallDuration.WithLabelValues(function, outcome).Observe(d.Seconds())
}

// ObserveCacheLookup counts a result cache lookup: "hit", "miss" or "error".
func ObserveCacheLookup(outcome string) {
	cacheLookupsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTurn counts a finished user turn. path is "direct" or "tools".
func ObserveTurn(path string, err error) {
	turnsTotal.WithLabelValues(path, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
