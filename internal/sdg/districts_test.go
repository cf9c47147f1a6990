package sdg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestMatcher(names ...string) *DistrictMatcher {
	m := NewDistrictMatcher(&fakeQuerier{}, "")
	m.SetNames(names)
	return m
}

func TestMatchDistrict(t *testing.T) {
	m := newTestMatcher("Ernakulam", "North Goa", "Y.S.R.", "Pune", "Bengaluru Urban")

	cases := []struct {
		query string
		want  string
		found bool
	}{
		{"How is Ernakulam doing on SDG 3?", "Ernakulam", true},
		{"show me north goa", "North Goa", true},
		{"Compare Bengaluru Urban with others", "Bengaluru Urban", true},
		{"what about pune?", "Pune", true},
		{"poverty in Ernakulum district", "Ernakulam", true},
		{"YSR district trends", "", false},
		{"top districts in Kerala", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			got, ok := m.MatchDistrict(context.Background(), tc.query)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMatchPrefersLongestExactGram(t *testing.T) {
	m := newTestMatcher("Goa", "North Goa")

	got, ok := m.MatchDistrict(context.Background(), "trend for north goa since 2016")
	assert.True(t, ok)
	assert.Equal(t, "North Goa", got)
}

func TestShortNamesNeverFuzzyMatch(t *testing.T) {
	m := newTestMatcher("Puri")

	_, ok := m.MatchDistrict(context.Background(), "pure water access")
	assert.False(t, ok)
}

func TestFailedLoadIsNotCached(t *testing.T) {
	m := NewDistrictMatcher(&fakeQuerier{}, "")

	_, ok := m.MatchDistrict(context.Background(), "Ernakulam")
	assert.False(t, ok)
	assert.False(t, m.loaded)

	m.SetNames([]string{"Ernakulam"})
	got, ok := m.MatchDistrict(context.Background(), "Ernakulam")
	assert.True(t, ok)
	assert.Equal(t, "Ernakulam", got)
}

func TestNGramsLongestFirst(t *testing.T) {
	assert.Equal(t, []string{"a b c", "a b", "b c", "a", "b", "c"}, ngrams([]string{"a", "b", "c"}, 3))
	assert.Nil(t, ngrams(nil, 3))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("pune", "pune"), 1e-9)
	assert.InDelta(t, 8.0/9.0, similarity("ernakulum", "ernakulam"), 1e-9)
	assert.Zero(t, similarity("", ""))
}
