package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one free-form record produced by an analysis function.
type Row = map[string]any

// ErrorKind tells recovered tool failures apart. Both kinds are data, not Go errors.
type ErrorKind string

const (
	ErrCollaborator     ErrorKind = "collaborator"
	ErrUnknownFunction  ErrorKind = "unknown_function"
	ErrToolLimitReached ErrorKind = "tool_limit"
)

// Result is the envelope every analysis function returns.
//
// The well-known keys are typed fields; anything else a function emits is kept
// in Fields and written back at the top level on marshal.
type Result struct {
	QueryType        string
	MapType          string
	Data             Data
	Boundary         []json.RawMessage
	EnhancedAnalysis string
	// HasAnalysis marks an enhanced_analysis key that was present, even empty.
	HasAnalysis      bool
	DataSummary      any
	Error            string
	ErrKind          ErrorKind
	Fields           Row
}

// Failure builds an error-shaped result.
func Failure(kind ErrorKind, format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...), ErrKind: kind}
}

// AnalysisPresent reports whether the result carries an enhanced_analysis entry.
func (r Result) AnalysisPresent() bool {
	return r.HasAnalysis || r.EnhancedAnalysis != ""
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Clone returns a copy whose Fields and Boundary can be modified freely.
func (r Result) Clone() Result {
	c := r
	if r.Fields != nil {
		c.Fields = make(Row, len(r.Fields))
		for k, v := range r.Fields {
			c.Fields[k] = v
		}
	}
	if r.Boundary != nil {
		c.Boundary = append([]json.RawMessage(nil), r.Boundary...)
	}
	return c
}

var envelopeKeys = map[string]struct{}{
	"query_type":        {},
	"map_type":          {},
	"data":              {},
	"boundary":          {},
	"boundary_data":     {},
	"enhanced_analysis": {},
	"data_summary":      {},
	"error":             {},
}

// Flatten returns the result as one flat object, the shape the model and API see.
func (r Result) Flatten() Row {
	out := make(Row, len(r.Fields)+6)
	for k, v := range r.Fields {
		out[k] = v
	}
	if r.QueryType != "" {
		out["query_type"] = r.QueryType
	}
	if r.MapType != "" {
		out["map_type"] = r.MapType
	}
	if !r.Data.IsZero() {
		out["data"] = r.Data
	}
	if len(r.Boundary) > 0 {
		out["boundary"] = r.Boundary
	}
	if r.AnalysisPresent() {
		out["enhanced_analysis"] = r.EnhancedAnalysis
	}
	if r.DataSummary != nil {
		out["data_summary"] = r.DataSummary
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Flatten())
}

func (r *Result) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*r = Result{}
	str := func(key string) (string, error) {
		v, ok := raw[key]
		if !ok || isNull(v) {
			return "", nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", fmt.Errorf("result field %s: %w", key, err)
		}
		return s, nil
	}

	var err error
	if r.QueryType, err = str("query_type"); err != nil {
		return err
	}
	if r.MapType, err = str("map_type"); err != nil {
		return err
	}
	if r.EnhancedAnalysis, err = str("enhanced_analysis"); err != nil {
		return err
	}
	_, r.HasAnalysis = raw["enhanced_analysis"]
	if r.Error, err = str("error"); err != nil {
		return err
	}
	if r.Error != "" {
		r.ErrKind = ErrCollaborator
	}
	if v, ok := raw["data"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &r.Data); err != nil {
			return fmt.Errorf("result field data: %w", err)
		}
	}
	if v, ok := raw["data_summary"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &r.DataSummary); err != nil {
			return fmt.Errorf("result field data_summary: %w", err)
		}
	}
	for _, key := range []string{"boundary", "boundary_data"} {
		if v, ok := raw[key]; ok && !isNull(v) {
			r.Boundary = append(r.Boundary, splitBoundary(v)...)
		}
	}

	for k, v := range raw {
		if _, known := envelopeKeys[k]; known {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return fmt.Errorf("result field %s: %w", k, err)
		}
		if r.Fields == nil {
			r.Fields = Row{}
		}
		r.Fields[k] = val
	}
	return nil
}

// splitBoundary turns a list payload into its items and a single payload into one item.
func splitBoundary(v json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(v)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			return items
		}
	}
	return []json.RawMessage{append(json.RawMessage(nil), trimmed...)}
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// Data is the primary payload of a Result. At most one variant is set.
// Rows holds lists of objects; List holds any other list.
type Data struct {
	Rows   []Row
	List   []any
	Trend  *TrendData
	Object Row
	Other  json.RawMessage
}

// Len returns the number of items of a list payload, or -1 for other shapes.
func (d Data) Len() int {
	switch {
	case d.Rows != nil:
		return len(d.Rows)
	case d.List != nil:
		return len(d.List)
	default:
		return -1
	}
}

// Head keeps the first n items of a list payload.
func (d Data) Head(n int) Data {
	switch {
	case len(d.Rows) > n:
		d.Rows = d.Rows[:n]
	case len(d.List) > n:
		d.List = d.List[:n]
	}
	return d
}

// IsZero reports whether no variant is set.
func (d Data) IsZero() bool {
	return d.Rows == nil && d.List == nil && d.Trend == nil && d.Object == nil && d.Other == nil
}

func (d Data) MarshalJSON() ([]byte, error) {
	switch {
	case d.Trend != nil:
		return json.Marshal(d.Trend)
	case d.Rows != nil:
		return json.Marshal(d.Rows)
	case d.List != nil:
		return json.Marshal(d.List)
	case d.Object != nil:
		return json.Marshal(d.Object)
	case d.Other != nil:
		return d.Other, nil
	default:
		return []byte("null"), nil
	}
}

func (d *Data) UnmarshalJSON(b []byte) error {
	*d = Data{}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || isNull(trimmed) {
		return nil
	}

	switch trimmed[0] {
	case '[':
		var rows []Row
		if err := json.Unmarshal(trimmed, &rows); err == nil {
			if rows == nil {
				rows = []Row{}
			}
			d.Rows = rows
			return nil
		}
		var list []any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		d.List = list
		return nil
	case '{':
		var obj Row
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		if trend, ok := trendFrom(obj); ok {
			d.Trend = trend
			return nil
		}
		d.Object = obj
		return nil
	}
	d.Other = append(json.RawMessage(nil), trimmed...)
	return nil
}

// TrendData is the payload of trend queries: both ends of a ranking.
type TrendData struct {
	TopPerformers    []Row
	BottomPerformers []Row
	Extra            Row
}

func (t TrendData) MarshalJSON() ([]byte, error) {
	out := make(Row, len(t.Extra)+2)
	for k, v := range t.Extra {
		out[k] = v
	}
	out["top_performers"] = nonNilRows(t.TopPerformers)
	out["bottom_performers"] = nonNilRows(t.BottomPerformers)
	return json.Marshal(out)
}

func trendFrom(obj Row) (*TrendData, bool) {
	top, okTop := rowsFrom(obj["top_performers"])
	bottom, okBottom := rowsFrom(obj["bottom_performers"])
	if !okTop || !okBottom {
		return nil, false
	}
	t := &TrendData{TopPerformers: top, BottomPerformers: bottom}
	for k, v := range obj {
		if k == "top_performers" || k == "bottom_performers" {
			continue
		}
		if t.Extra == nil {
			t.Extra = Row{}
		}
		t.Extra[k] = v
	}
	return t, true
}

func rowsFrom(v any) ([]Row, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	rows := make([]Row, 0, len(list))
	for _, item := range list {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, true
}

func nonNilRows(rows []Row) []Row {
	if rows == nil {
		return []Row{}
	}
	return rows
}
