package sdg

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/jackc/pgx/v5"

	errx "github.com/sdg-insight/server/internal/core/error"
	logx "github.com/sdg-insight/server/pkg/logger"
)

const (
	maxNGram          = 3
	minFuzzyLength    = 5
	defaultSimilarity = 0.85
)

// DistrictMatcher finds a known district name inside free text. Names are
// loaded from the store on first use; a failed load is retried on the next call.
type DistrictMatcher struct {
	db        Querier
	schema    string
	threshold float64

	mu     sync.Mutex
	loaded bool
	exact  map[string]string
	names  []string
}

func NewDistrictMatcher(db Querier, schema string) *DistrictMatcher {
	if schema == "" {
		schema = DefaultSchema
	}
	return &DistrictMatcher{db: db, schema: schema, threshold: defaultSimilarity}
}

// MatchDistrict returns the canonical name of the district mentioned in query.
func (m *DistrictMatcher) MatchDistrict(ctx context.Context, query string) (string, bool) {
	if err := m.load(ctx); err != nil {
		logx.Warn().Err(err).Msg("District names unavailable; skipping district detection")
		return "", false
	}
	return m.match(query)
}

// SetNames replaces the known names without touching the store.
func (m *DistrictMatcher) SetNames(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index(names)
}

func (m *DistrictMatcher) load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}

	sql := fmt.Sprintf("SELECT DISTINCT district_name FROM %s WHERE district_name IS NOT NULL ORDER BY 1",
		pgx.Identifier{m.schema, "districts"}.Sanitize())
	rows, err := m.db.Query(ctx, sql)
	if err != nil {
		return errx.WrapPostgres(err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return errx.WrapPostgres(err)
	}

	m.index(names)
	logx.Debug().Int("districts", len(names)).Msg("District names loaded")
	return nil
}

func (m *DistrictMatcher) index(names []string) {
	m.exact = make(map[string]string, len(names))
	m.names = m.names[:0]
	for _, name := range names {
		key := normalize(name)
		if key == "" {
			continue
		}
		if _, dup := m.exact[key]; !dup {
			m.exact[key] = name
			m.names = append(m.names, key)
		}
	}
	m.loaded = true
}

// match tries exact n-grams first, longest first, then the closest fuzzy
// candidate above the similarity threshold.
func (m *DistrictMatcher) match(query string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	grams := ngrams(tokenize(query), maxNGram)
	for _, g := range grams {
		if name, ok := m.exact[g]; ok {
			return name, true
		}
	}

	best, bestScore := "", 0.0
	for _, g := range grams {
		if utf8.RuneCountInString(g) < minFuzzyLength {
			continue
		}
		for _, key := range m.names {
			if utf8.RuneCountInString(key) < minFuzzyLength {
				continue
			}
			if score := similarity(g, key); score >= m.threshold && score > bestScore {
				best, bestScore = key, score
			}
		}
	}
	if best == "" {
		return "", false
	}
	return m.exact[best], true
}

func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func normalize(s string) string {
	return strings.Join(tokenize(s), " ")
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ngrams lists word n-grams from the longest size down to single words.
func ngrams(words []string, maxN int) []string {
	var out []string
	for n := min(maxN, len(words)); n >= 1; n-- {
		for i := 0; i+n <= len(words); i++ {
			out = append(out, strings.Join(words[i:i+n], " "))
		}
	}
	return out
}
