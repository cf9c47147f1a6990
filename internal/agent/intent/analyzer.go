package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sdg-insight/server/internal/agent/model"
	logx "github.com/sdg-insight/server/pkg/logger"
)

// DistrictLookup finds the district a query mentions: best fuzzy match or none.
type DistrictLookup interface {
	MatchDistrict(ctx context.Context, query string) (string, bool)
}

type keywordSet []*regexp.Regexp

// prefixSet matches each phrase at the start of a word, so "trend" also finds
// "trends" while "bad" stays silent inside "hyderabad".
func prefixSet(phrases ...string) keywordSet {
	set := make(keywordSet, len(phrases))
	for i, p := range phrases {
		set[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p))
	}
	return set
}

func (s keywordSet) any(text string) bool {
	for _, re := range s {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

var (
	topKeywords        = prefixSet("top", "best", "highest", "leading", "superior", "good", "better", "performing well")
	bottomKeywords     = prefixSet("bottom", "worst", "lowest", "poorest", "lagging", "bad", "worse", "performing poorly")
	comparisonKeywords = prefixSet("compare", "comparison", "trend", "both", "top and bottom", "versus", "vs")
	bestWorstPhrases   = prefixSet("best performing", "worst performing", "top performing", "bottom performing", "best district", "worst district")
	bestDirection      = prefixSet("best", "top", "highest", "leading")
	listingWords       = prefixSet("districts", "list", "ranking", "performance", "status")
	manyWords          = prefixSet("many", "all", "list")
	districtPatterns   = []string{"district", "city", "area", "region", "place", "in ", "of ", "for "}
)

// countPatterns are tried in order; the first match wins.
var countPatterns = []*regexp.Regexp{
	regexp.MustCompile(`top\s+(\d+)`),
	regexp.MustCompile(`bottom\s+(\d+)`),
	regexp.MustCompile(`(\d+)\s+best`),
	regexp.MustCompile(`(\d+)\s+worst`),
	regexp.MustCompile(`(\d+)\s+districts`),
	regexp.MustCompile(`show\s+(\d+)`),
	regexp.MustCompile(`list\s+(\d+)`),
	regexp.MustCompile(`first\s+(\d+)`),
}

type stateAliases struct {
	name    string
	aliases []*regexp.Regexp
}

func state(name string, aliases ...string) stateAliases {
	if len(aliases) == 0 {
		aliases = []string{name}
	}
	s := stateAliases{name: name}
	for _, a := range aliases {
		s.aliases = append(s.aliases, regexp.MustCompile(`\b`+regexp.QuoteMeta(a)+`\b`))
	}
	return s
}

// states is ordered; the first state with a matching alias wins.
var states = []stateAliases{
	state("rajasthan"),
	state("gujarat"),
	state("maharashtra"),
	state("karnataka"),
	state("kerala"),
	state("tamil nadu", "tamil nadu", "tamilnadu"),
	state("west bengal", "west bengal", "bengal"),
	state("uttar pradesh", "uttar pradesh", "up"),
	state("bihar"),
	state("odisha", "odisha", "orissa"),
}

const (
	defaultTopN = model.DefaultTopN
	manyTopN    = 10
)

// Analyzer infers ranking direction, count, state and district from raw text.
type Analyzer struct {
	districts DistrictLookup
}

// NewAnalyzer builds an analyzer. districts may be nil, which disables
// district detection.
func NewAnalyzer(districts DistrictLookup) *Analyzer {
	return &Analyzer{districts: districts}
}

// Analyze classifies query. It never fails; absent signals fall back to
// top performers, five results and no state.
func (a *Analyzer) Analyze(ctx context.Context, query string) model.QueryIntent {
	text := strings.ToLower(query)

	in := model.QueryIntent{
		TopN:               extractCount(text),
		StateName:          extractState(text),
		IsBestWorstQuery:   bestWorstPhrases.any(text),
		HasDistrictPattern: hasDistrictPattern(text),
	}

	if a.districts != nil {
		if district, ok := a.districts.MatchDistrict(ctx, query); ok {
			in.HasSpecificDistrict = true
			in.DetectedDistrict = district
		}
	}

	in.QueryType = classify(text, in)

	logx.Debug().
		Str("query_type", string(in.QueryType)).
		Int("top_n", in.TopN).
		Str("state", in.StateName).
		Str("district", in.DetectedDistrict).
		Msg("Query intent analyzed")
	return in
}

// classify applies the precedence: best/worst district, specific district,
// comparison, bottom, top, generic listing, default.
func classify(text string, in model.QueryIntent) model.QueryType {
	switch {
	case in.IsBestWorstQuery:
		if bestDirection.any(text) {
			return model.QueryBestDistrict
		}
		return model.QueryWorstDistrict
	case in.HasSpecificDistrict:
		return model.QueryIndividualDistrict
	case comparisonKeywords.any(text):
		return model.QueryTrend
	case bottomKeywords.any(text):
		return model.QueryBottomPerformers
	case topKeywords.any(text), listingWords.any(text):
		return model.QueryTopPerformers
	default:
		return model.QueryTopPerformers
	}
}

func extractCount(text string) int {
	for _, re := range countPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
	}
	if manyWords.any(text) {
		return manyTopN
	}
	return defaultTopN
}

func extractState(text string) string {
	for _, s := range states {
		for _, re := range s.aliases {
			if re.MatchString(text) {
				return s.name
			}
		}
	}
	return ""
}

func hasDistrictPattern(text string) bool {
	for _, p := range districtPatterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
