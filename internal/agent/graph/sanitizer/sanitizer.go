package sanitizer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sdg-insight/server/internal/agent/model"
	logx "github.com/sdg-insight/server/pkg/logger"
)

const (
	maxResultChars   = 4000
	otherDataKeep    = 1000
	plainResultKeep  = 3800
	listPreviewLimit = 10
	trendPreviewSize = 3

	analysisLabel  = "ENHANCED_ANALYSIS:"
	otherDataLabel = "OTHER_DATA:"

	otherDataTruncated = "... [Other data truncated]"
	resultTruncated    = "... [Result truncated for token limit]"
)

// Clean prepares a function result for the model. Geometry is removed, large
// payloads are summarized and the text is capped so the analysis narrative
// survives while raw data is cut first. The input is not modified.
func Clean(r model.Result) (model.Result, string) {
	c := r.Clone()

	c.Boundary = nil
	delete(c.Fields, "boundary")
	delete(c.Fields, "boundary_data")

	// Trend results with an analysis never go through the list cap.
	if c.QueryType == string(model.QueryTrend) && c.AnalysisPresent() {
		if c.Data.Trend != nil {
			c.DataSummary = summarizeTrend(c.Data.Trend)
			c.Data = model.Data{}
		}
	} else if total := c.Data.Len(); total > listPreviewLimit {
		c.Data = c.Data.Head(listPreviewLimit)
		c.DataSummary = fmt.Sprintf("Showing first %d of %d total districts", listPreviewLimit, total)
	}

	text := serialize(c)
	if runeLen(text) > maxResultChars {
		text = capLength(text)
	}
	return c, text
}

func summarizeTrend(t *model.TrendData) model.Row {
	return model.Row{
		"top_performers":    preview(t.TopPerformers),
		"bottom_performers": preview(t.BottomPerformers),
		"total_top":         len(t.TopPerformers),
		"total_bottom":      len(t.BottomPerformers),
	}
}

func preview(rows []model.Row) []model.Row {
	n := min(trendPreviewSize, len(rows))
	out := make([]model.Row, 0, n)
	for _, row := range rows[:n] {
		out = append(out, model.Row{
			"district":      row["district"],
			"state":         row["state"],
			"performance":   row["performance_percentile"],
			"annual_change": row["annual_change"],
		})
	}
	return out
}

func serialize(c model.Result) string {
	if !c.AnalysisPresent() {
		return marshal(c.Flatten())
	}
	rest := c.Flatten()
	delete(rest, "enhanced_analysis")
	return analysisLabel + " " + c.EnhancedAnalysis + "\n\n" + otherDataLabel + " " + marshal(rest)
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		logx.Warn().Err(err).Msg("Result is not serializable; sending placeholder")
		return fmt.Sprintf(`{"error":"result could not be serialized: %s"}`, err)
	}
	return string(b)
}

// capLength keeps the analysis block whole and trims the data block, or trims
// the whole text when there is no analysis block.
func capLength(text string) string {
	if strings.Contains(text, analysisLabel) {
		analysis, other, found := strings.Cut(text, otherDataLabel)
		if !found {
			return text
		}
		return analysis + otherDataLabel + truncateRunes(other, otherDataKeep) + otherDataTruncated
	}
	return truncateRunes(text, plainResultKeep) + resultTruncated
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func runeLen(s string) int {
	return len([]rune(s))
}
