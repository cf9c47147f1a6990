package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/sdg-insight/server/internal/agent/graph/tools"
	"github.com/sdg-insight/server/internal/agent/model"
)

//go:embed template/system_prompt.txt
var coreSystemPrompt string

type goalLine struct {
	Number int
	Name   string
}

// RenderSystemPrompt renders the analyst system prompt and triggers prompt callbacks.
func RenderSystemPrompt(ctx context.Context) (string, error) {
	goals := make([]goalLine, 0, len(model.AvailableGoals))
	for _, n := range model.AvailableGoals {
		goals = append(goals, goalLine{Number: n, Name: model.GoalNames[n]})
	}
	years := slices.Clone(model.SupportedYears)
	slices.Sort(years)
	yearNames := make([]string, 0, len(years))
	for _, y := range years {
		yearNames = append(yearNames, strconv.Itoa(y))
	}

	// Render via Eino prompt component (Go template) to both format and emit callbacks
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(coreSystemPrompt),
	)
	vars := map[string]any{
		"SupportedYears":  strings.Join(yearNames, ", "),
		"FirstYear":       years[0],
		"DefaultYear":     model.DefaultYear,
		"Goals":           goals,
		"RankingTool":     tools.FnSDGGoalData,
		"DistrictTool":    tools.FnIndividualDistrict,
		"ImprovementTool": tools.FnMostLeastImproved,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
