package model

import (
	"github.com/cloudwego/eino/schema"
)

// TurnState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - Nodes read and write it only inside state handlers or compose.ProcessState.
//   - The runner reads it after Invoke returns, when no node is running.
type TurnState struct {
	Turn      SessionTurn
	SessionID string
	Query     string
	Intent    QueryIntent

	// Working is the trimmed history plus the new user message, sent to the first model call.
	Working []*schema.Message
	// ToolRequest is the assistant message that asked for tools, if any.
	ToolRequest *schema.Message
	Calls       []FunctionCall
	Boundaries  []BoundaryPayload

	ToolCallIDSeq int
	TotalCostUSD  float64

	Response *ChatResponse
}

// QueryInput represents the input for processing user queries.
type QueryInput struct {
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query"`
}

// SessionTurn is exclusive access to one session's history for a single turn.
type SessionTurn interface {
	SessionID() string
	History() []*schema.Message
	AppendAndTrim(msg *schema.Message) []*schema.Message
}
