package model

import (
	"encoding/json"
)

// BoundaryPayload is one district geometry collected for map rendering.
type BoundaryPayload = json.RawMessage

// FunctionCall records one executed tool call and its full result.
type FunctionCall struct {
	Function  string         `json:"function"`
	Arguments map[string]any `json:"arguments"`
	Result    Result         `json:"result"`
}

// FunctionCallSummary is the lightweight view of a call listed in responses.
type FunctionCallSummary struct {
	Function  string         `json:"function"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is what one user turn produces. The tool fields are empty on
// the direct-answer path and are then left out of the JSON form.
type ChatResponse struct {
	SessionID     string                `json:"session_id"`
	Response      string                `json:"response"`
	MapType       string                `json:"map_type"`
	FunctionCalls []FunctionCallSummary `json:"function_calls"`
	Data          []FunctionCall        `json:"data"`
	Boundary      []BoundaryPayload     `json:"boundary"`
	CostUSD       float64               `json:"-"`
}

// UsedTools reports whether the turn went through tool execution.
func (r ChatResponse) UsedTools() bool {
	return len(r.FunctionCalls) > 0
}

func (r ChatResponse) MarshalJSON() ([]byte, error) {
	if !r.UsedTools() {
		return json.Marshal(struct {
			SessionID string `json:"session_id"`
			Response  string `json:"response"`
		}{r.SessionID, r.Response})
	}
	type wire ChatResponse
	w := wire(r)
	if w.Boundary == nil {
		w.Boundary = []BoundaryPayload{}
	}
	return json.Marshal(w)
}
