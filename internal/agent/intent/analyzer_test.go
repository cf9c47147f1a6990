package intent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sdg-insight/server/internal/agent/model"
)

type stubLookup map[string]string

func (s stubLookup) MatchDistrict(_ context.Context, query string) (string, bool) {
	q := strings.ToLower(query)
	for needle, district := range s {
		if strings.Contains(q, needle) {
			return district, true
		}
	}
	return "", false
}

func TestAnalyze(t *testing.T) {
	a := NewAnalyzer(stubLookup{"wayanad": "Wayanad", "pune": "Pune"})
	ctx := context.Background()

	tests := []struct {
		name      string
		query     string
		queryType model.QueryType
		topN      int
		state     string
		district  string
	}{
		{"best worst beats top keyword", "best performing district in Gujarat for SDG 3", model.QueryBestDistrict, 5, "gujarat", ""},
		{"worst district phrase", "Which is the worst district in Bihar for SDG 6?", model.QueryWorstDistrict, 5, "bihar", ""},
		{"bottom with count", "Worst 3 districts in Kerala for SDG 1", model.QueryBottomPerformers, 3, "kerala", ""},
		{"top count", "show top 12 districts", model.QueryTopPerformers, 12, "", ""},
		{"list all", "list all districts", model.QueryTopPerformers, 10, "", ""},
		{"no number", "districts in SDG 5", model.QueryTopPerformers, 5, "", ""},
		{"comparison beats bottom", "compare top and bottom districts of Odisha for SDG 2", model.QueryTrend, 5, "odisha", ""},
		{"plural trend", "SDG 7 trends across Rajasthan", model.QueryTrend, 5, "rajasthan", ""},
		{"specific district", "How is Wayanad doing on SDG 3?", model.QueryIndividualDistrict, 5, "", "Wayanad"},
		{"best worst beats district", "best performing district near Pune", model.QueryBestDistrict, 5, "", "Pune"},
		{"lagging", "which districts are lagging on SDG 8 in orissa", model.QueryBottomPerformers, 5, "odisha", ""},
		{"bottom n", "bottom 7 for SDG 16", model.QueryBottomPerformers, 7, "", ""},
		{"n best", "give me 4 best districts", model.QueryBestDistrict, 4, "", ""},
		{"n top", "name 6 top scorers", model.QueryTopPerformers, 5, "", ""},
		{"default", "tell me about poverty", model.QueryTopPerformers, 5, "", ""},
		{"word start only", "hyderabad ranking", model.QueryTopPerformers, 5, "", ""},
		{"tamilnadu alias", "top districts in tamilnadu", model.QueryTopPerformers, 5, "tamil nadu", ""},
		{"up alias", "SDG 1 status in UP", model.QueryTopPerformers, 5, "uttar pradesh", ""},
		{"up inside word", "group the districts by support", model.QueryTopPerformers, 5, "", ""},
		{"bengal alias", "lowest districts in Bengal", model.QueryBottomPerformers, 5, "west bengal", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(ctx, tt.query)
			assert.Equal(t, tt.queryType, got.QueryType)
			assert.Equal(t, tt.topN, got.TopN)
			assert.Equal(t, tt.state, got.StateName)
			assert.Equal(t, tt.district, got.DetectedDistrict)
			assert.Equal(t, tt.district != "", got.HasSpecificDistrict)
		})
	}
}

func TestAnalyzeFlags(t *testing.T) {
	a := NewAnalyzer(nil)

	got := a.Analyze(context.Background(), "best district for SDG 2")
	assert.True(t, got.IsBestWorstQuery)
	assert.True(t, got.HasDistrictPattern)

	got = a.Analyze(context.Background(), "poverty")
	assert.False(t, got.IsBestWorstQuery)
	assert.False(t, got.HasDistrictPattern)
}
