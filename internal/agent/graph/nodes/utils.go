package nodes

import (
	"github.com/sdg-insight/server/internal/agent/model"
)

const (
	NodeInputConverter     = "InputConverter"
	NodeToolChatModel      = "ToolChatModel"
	NodeToolDispatcher     = "ToolDispatcher"
	NodeSynthesisChatModel = "SynthesisChatModel"
	NodeFinalizer          = "Finalizer"
)

const (
	DefaultMaxToolCalls = 10

	storedResponseMarker = "... [Response truncated for conversation history]"
)

// ===== Small helpers to keep handlers simple/readable =====
// normalizeMaxToolCalls returns a sane default when the provided value is invalid.
func normalizeMaxToolCalls(n int) int {
	if n <= 0 {
		return DefaultMaxToolCalls
	}
	return n
}

// storedResponse is the copy of an answer kept in session history. Answers
// longer than limit runes are cut to keep runes plus a marker.
func storedResponse(answer string, limit, keep int) string {
	if limit <= 0 || keep <= 0 {
		return answer
	}
	runes := []rune(answer)
	if len(runes) <= limit {
		return answer
	}
	if keep > len(runes) {
		keep = len(runes)
	}
	return string(runes[:keep]) + storedResponseMarker
}

// responseMapType uses the map type of a lone result, or the default otherwise.
func responseMapType(calls []model.FunctionCall, fallback string) string {
	if len(calls) == 1 && calls[0].Result.MapType != "" {
		return calls[0].Result.MapType
	}
	return fallback
}
