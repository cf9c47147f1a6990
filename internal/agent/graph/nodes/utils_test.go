package nodes

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdg-insight/server/internal/agent/model"
)

func TestStoredResponse(t *testing.T) {
	short := strings.Repeat("x", 2500)
	assert.Equal(t, short, storedResponse(short, 2500, 2000))

	long := strings.Repeat("अ", 2501)
	got := storedResponse(long, 2500, 2000)
	require.True(t, strings.HasSuffix(got, storedResponseMarker))
	assert.Equal(t, 2000, utf8.RuneCountInString(strings.TrimSuffix(got, storedResponseMarker)))

	assert.Equal(t, long, storedResponse(long, 0, 0))
}

func TestResponseMapType(t *testing.T) {
	one := []model.FunctionCall{{Result: model.Result{MapType: "neighbor_comparison"}}}
	assert.Equal(t, "neighbor_comparison", responseMapType(one, "sdg_analysis"))

	unset := []model.FunctionCall{{Result: model.Result{}}}
	assert.Equal(t, "sdg_analysis", responseMapType(unset, "sdg_analysis"))

	two := []model.FunctionCall{
		{Result: model.Result{MapType: "a"}},
		{Result: model.Result{MapType: "b"}},
	}
	assert.Equal(t, "sdg_analysis", responseMapType(two, "sdg_analysis"))
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
	}{
		{name: "object", raw: `{"sdg_goal_number": 3, "state_name": "Bihar"}`, want: map[string]any{"sdg_goal_number": 3.0, "state_name": "Bihar"}},
		{name: "empty", raw: "  ", want: map[string]any{}},
		{name: "null", raw: "null", want: map[string]any{}},
		{name: "truncated", raw: `{"sdg_goal_number": `, wantErr: true},
		{name: "array", raw: `[1]`, wantErr: true},
		{name: "string", raw: `"sdg 3"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArguments(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeMaxToolCalls(t *testing.T) {
	assert.Equal(t, DefaultMaxToolCalls, normalizeMaxToolCalls(0))
	assert.Equal(t, DefaultMaxToolCalls, normalizeMaxToolCalls(-3))
	assert.Equal(t, 4, normalizeMaxToolCalls(4))
}
