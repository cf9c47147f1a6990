package tools

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sdg-insight/server/internal/agent/model"
)

// ParamType is the JSON type the model must supply for a parameter.
type ParamType string

const (
	TypeInteger      ParamType = "integer"
	TypeNumber       ParamType = "number"
	TypeString       ParamType = "string"
	TypeBoolean      ParamType = "boolean"
	TypeStringArray  ParamType = "string_array"
	TypeIntegerArray ParamType = "integer_array"
)

// Param describes one argument of a catalog function and how it reaches the collaborator.
type Param struct {
	Name     string
	Type     ParamType
	Desc     string
	Enum     []string
	Required bool
	// Default is used when neither the model nor the intent supplies a value.
	Default any
	// Target is the collaborator argument name; empty means Name.
	Target string
	// Min and Max clamp integers and numbers when Max > Min.
	Min, Max float64
	// Normalize runs after coercion, e.g. to title-case state names.
	Normalize func(any) any
}

func (p Param) target() string {
	if p.Target != "" {
		return p.Target
	}
	return p.Name
}

// Function is one callable analysis exposed to the model.
type Function struct {
	Name   string
	Desc   string
	Params []Param
	// UseIntentFallback fills query_type, top_n and state_name from the
	// analyzed query when the model leaves them out.
	UseIntentFallback bool
}

// Catalog is the registry of functions, built once at startup.
type Catalog struct {
	order []string
	byKey map[string]*Function
}

// NewCatalog registers fns in order and validates them.
func NewCatalog(fns ...*Function) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]*Function, len(fns))}
	for _, fn := range fns {
		if fn == nil || fn.Name == "" {
			return nil, errors.New("catalog: function without a name")
		}
		if _, dup := c.byKey[fn.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate function %q", fn.Name)
		}
		c.byKey[fn.Name] = fn
		c.order = append(c.order, fn.Name)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Lookup returns the function registered under name.
func (c *Catalog) Lookup(name string) (*Function, bool) {
	fn, ok := c.byKey[name]
	return fn, ok
}

// Names returns function names in registration order.
func (c *Catalog) Names() []string {
	return slices.Clone(c.order)
}

// Validate checks every function's parameter table for internal consistency.
func (c *Catalog) Validate() error {
	var errs []error
	for _, name := range c.order {
		fn := c.byKey[name]
		if strings.TrimSpace(fn.Desc) == "" {
			errs = append(errs, fmt.Errorf("%s: missing description", name))
		}
		seen := map[string]bool{}
		targets := map[string]bool{}
		for _, p := range fn.Params {
			switch {
			case p.Name == "":
				errs = append(errs, fmt.Errorf("%s: parameter without a name", name))
				continue
			case seen[p.Name]:
				errs = append(errs, fmt.Errorf("%s: duplicate parameter %q", name, p.Name))
			case targets[p.target()]:
				errs = append(errs, fmt.Errorf("%s: two parameters map to %q", name, p.target()))
			}
			seen[p.Name] = true
			targets[p.target()] = true

			if p.Default != nil {
				v, ok := coerce(p.Type, p.Default)
				if !ok {
					errs = append(errs, fmt.Errorf("%s.%s: default %v is not %s", name, p.Name, p.Default, p.Type))
				} else if len(p.Enum) > 0 && !slices.Contains(p.Enum, fmt.Sprint(v)) {
					errs = append(errs, fmt.Errorf("%s.%s: default %v not in enum", name, p.Name, p.Default))
				}
			}
			if p.Required && p.Default != nil {
				errs = append(errs, fmt.Errorf("%s.%s: required parameter with a default", name, p.Name))
			}
		}
		if fn.UseIntentFallback {
			for _, key := range intentFields {
				if !seen[key] {
					errs = append(errs, fmt.Errorf("%s: intent fallback needs parameter %q", name, key))
				}
			}
		}
	}
	return errors.Join(errs...)
}

// ToolInfos renders the catalog as tool descriptions for the chat model.
func (c *Catalog) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(c.order))
	for _, name := range c.order {
		fn := c.byKey[name]
		params := make(map[string]*schema.ParameterInfo, len(fn.Params))
		for _, p := range fn.Params {
			params[p.Name] = p.info()
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        fn.Name,
			Desc:        fn.Desc,
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func (p Param) info() *schema.ParameterInfo {
	pi := &schema.ParameterInfo{Desc: p.Desc, Required: p.Required}
	switch p.Type {
	case TypeInteger:
		pi.Type = schema.Integer
	case TypeNumber:
		pi.Type = schema.Number
	case TypeBoolean:
		pi.Type = schema.Boolean
	case TypeStringArray:
		pi.Type = schema.Array
		pi.ElemInfo = &schema.ParameterInfo{Type: schema.String}
	case TypeIntegerArray:
		pi.Type = schema.Array
		pi.ElemInfo = &schema.ParameterInfo{Type: schema.Integer}
	default:
		pi.Type = schema.String
		pi.Enum = p.Enum
	}
	return pi
}

// intentFields are the parameters the analyzed query can supply.
var intentFields = []string{"query_type", "top_n", "state_name"}

// Translate merges the model's arguments with intent values and defaults and
// renames them for the collaborator. Precedence per field: model value, then
// intent (only with UseIntentFallback), then the declared default.
func (f *Function) Translate(raw map[string]any, in model.QueryIntent) (map[string]any, error) {
	out := make(map[string]any, len(f.Params))
	var missing []string

	for _, p := range f.Params {
		v, ok := present(raw, p.Name)
		if ok {
			v, ok = coerce(p.Type, v)
		}
		if ok && !p.allows(v) {
			ok = false
		}
		if !ok && f.UseIntentFallback {
			v, ok = intentValue(p.Name, in)
		}
		if !ok && p.Default != nil {
			v, ok = coerce(p.Type, p.Default)
		}
		if !ok {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}

		if p.Max > p.Min {
			v = clamp(v, p.Min, p.Max)
		}
		if p.Normalize != nil {
			v = p.Normalize(v)
		}
		out[p.target()] = v
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// allows reports whether v is one of the declared enum values.
func (p Param) allows(v any) bool {
	s, isString := v.(string)
	return len(p.Enum) == 0 || !isString || slices.Contains(p.Enum, s)
}

// keyedFields keep any explicit non-null value from the model, zero included.
var keyedFields = map[string]bool{"query_type": true, "top_n": true}

// present reports whether the model supplied key. For keyedFields only the
// key matters; everything else treats null, "" and 0 as absent, the way an
// "or" fallback would.
func present(raw map[string]any, key string) (any, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, false
	}
	if keyedFields[key] {
		return v, true
	}
	switch vv := v.(type) {
	case string:
		return vv, strings.TrimSpace(vv) != ""
	case float64:
		return vv, vv != 0
	case []any:
		return vv, len(vv) > 0
	}
	return v, true
}

func intentValue(name string, in model.QueryIntent) (any, bool) {
	switch name {
	case "query_type":
		return string(in.QueryType), in.QueryType != ""
	case "top_n":
		return in.TopN, in.TopN != 0
	case "state_name":
		return in.StateName, in.StateName != ""
	}
	return nil, false
}

// coerce converts JSON-decoded values to the declared type.
func coerce(t ParamType, v any) (any, bool) {
	switch t {
	case TypeInteger:
		return toInt(v)
	case TypeNumber:
		return toFloat(v)
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, true
		case string:
			parsed, err := strconv.ParseBool(strings.TrimSpace(b))
			return parsed, err == nil
		}
		return nil, false
	case TypeStringArray:
		switch list := v.(type) {
		case []string:
			return list, true
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, false
				}
				out = append(out, strings.TrimSpace(s))
			}
			return out, true
		case string:
			return []string{strings.TrimSpace(list)}, true
		}
		return nil, false
	case TypeIntegerArray:
		switch list := v.(type) {
		case []int:
			return list, true
		case []any:
			out := make([]int, 0, len(list))
			for _, item := range list {
				n, ok := toInt(item)
				if !ok {
					return nil, false
				}
				out = append(out, n.(int))
			}
			return out, true
		}
		return nil, false
	default:
		switch s := v.(type) {
		case string:
			return strings.TrimSpace(s), true
		case float64, int, bool:
			return fmt.Sprint(s), true
		}
		return nil, false
	}
}

func toInt(v any) (any, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), n == float64(int(n))
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		return parsed, err == nil
	}
	return nil, false
}

func toFloat(v any) (any, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return parsed, err == nil
	}
	return nil, false
}

func clamp(v any, lo, hi float64) any {
	switch n := v.(type) {
	case int:
		return max(int(lo), min(int(hi), n))
	case float64:
		return max(lo, min(hi, n))
	}
	return v
}

// TitleCase renders state names with canonical casing ("tamil nadu" -> "Tamil Nadu").
func TitleCase(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	return cases.Title(language.English).String(strings.ToLower(s))
}
