package tools

import (
	"fmt"

	"github.com/sdg-insight/server/internal/agent/model"
)

// Function names exposed to the model.
const (
	FnSDGGoalData             = "get_sdg_goal_data"
	FnIndicatorsByGoal        = "get_indicators_by_sdg_goal"
	FnGoalClassification      = "get_sdg_goal_classification"
	FnIndividualDistrict      = "get_individual_district_sdg_data"
	FnDistrictIndicatorPrompt = "get_district_indicator_selection_prompt"
	FnBestWorstForIndicator   = "get_best_worst_district_for_indicator"
	FnAACClassification       = "get_aac_classification"
	FnStateWiseSummary        = "get_state_wise_summary"
	FnTimeSeriesComparison    = "get_time_series_comparison"
	FnAspirationalTracking    = "get_aspirational_district_tracking"
	FnCrossSDGAnalysis        = "get_cross_sdg_analysis"
	FnNeighboringDistricts    = "get_neighboring_districts_comparison"
	FnStateIndicatorExtremes  = "get_state_wise_indicator_extremes"
	FnMostLeastImproved       = "get_most_least_improved_districts"
	FnBorderDistricts         = "get_border_districts"
	FnDistrictsWithinRadius   = "get_districts_within_radius"
)

func goalParam(required bool) Param {
	return Param{
		Name:     "sdg_goal_number",
		Type:     TypeInteger,
		Desc:     fmt.Sprintf("SDG goal number. District data exists for goals %v.", model.AvailableGoals),
		Required: required,
		Min:      1,
		Max:      17,
	}
}

func yearParam(withDefault bool) Param {
	p := Param{
		Name: "year",
		Type: TypeInteger,
		Desc: "Survey year: 2016 (NFHS-4) or 2021 (NFHS-5).",
	}
	if withDefault {
		p.Default = model.DefaultYear
	}
	return p
}

func stateParam(desc string) Param {
	if desc == "" {
		desc = "Optional state filter, e.g. Kerala or Uttar Pradesh."
	}
	return Param{Name: "state_name", Type: TypeString, Desc: desc, Normalize: TitleCase}
}

func topNParam(def, lo, hi int) Param {
	p := Param{
		Name: "top_n",
		Type: TypeInteger,
		Desc: fmt.Sprintf("Number of districts or states to return (%d-%d).", lo, hi),
		Min:  float64(lo),
		Max:  float64(hi),
	}
	if def > 0 {
		p.Default = def
	}
	return p
}

var (
	indicatorsParam = Param{
		Name: "indicator_names",
		Type: TypeStringArray,
		Desc: "Indicator names or short names to analyze. Omit to use every indicator of the goal.",
	}
	indicatorParam = Param{
		Name: "indicator_name",
		Type: TypeString,
		Desc: "A single indicator name or short name.",
	}
	districtParam = Param{
		Name:     "district_name",
		Type:     TypeString,
		Desc:     "District name; spelling variants are matched approximately.",
		Required: true,
	}
	boundaryParam = Param{
		Name:    "include_boundary_data",
		Type:    TypeBoolean,
		Desc:    "Attach district geometry for map rendering.",
		Default: true,
	}
)

// DefaultFunctions returns the full analysis catalog.
func DefaultFunctions() []*Function {
	return []*Function{
		{
			Name: FnSDGGoalData,
			Desc: "Rank districts on an SDG goal or on selected indicators. Use for top/bottom performer lists, " +
				"trend comparisons across both ends of the ranking, and state-filtered rankings.",
			UseIntentFallback: true,
			Params: []Param{
				goalParam(true),
				indicatorsParam,
				yearParam(true),
				{
					Name: "query_type",
					Type: TypeString,
					Desc: "Shape of the answer.",
					Enum: []string{"individual", "top_performers", "bottom_performers", "trend"},
				},
				topNParam(0, 1, 20),
				{Name: "district_name", Type: TypeString, Desc: "Restrict to one district."},
				stateParam(""),
				{Name: "include_labels", Type: TypeBoolean, Desc: "Include indicator labels.", Default: true},
			},
		},
		{
			Name:   FnIndicatorsByGoal,
			Desc:   "List the indicators tracked under an SDG goal, with descriptions and direction (higher or lower is better).",
			Params: []Param{goalParam(true)},
		},
		{
			Name: FnGoalClassification,
			Desc: "Classify districts into achievement bands (Achieved, On-Target, Off-Target) for a goal, optionally within one state.",
			Params: []Param{
				goalParam(true),
				yearParam(true),
				stateParam(""),
				{
					Name:    "classification_type",
					Type:    TypeString,
					Desc:    "Classification basis.",
					Enum:    []string{"status", "performance"},
					Default: "status",
				},
				{Name: "default_indicator", Type: TypeString, Desc: "Indicator used when the goal has several."},
			},
		},
		{
			Name: FnIndividualDistrict,
			Desc: "Full SDG profile of one named district: indicator values for both survey rounds, change and national context.",
			Params: []Param{
				districtParam,
				goalParam(false),
				indicatorsParam,
				yearParam(true),
				stateParam("State of the district, to disambiguate duplicates."),
			},
		},
		{
			Name: FnDistrictIndicatorPrompt,
			Desc: "When a user asks about a district without naming indicators, list the goal's indicators so they can pick.",
			Params: []Param{
				districtParam,
				goalParam(true),
			},
		},
		{
			Name: FnBestWorstForIndicator,
			Desc: "Find the single best or worst district for one indicator, nationally or within a state.",
			Params: []Param{
				goalParam(true),
				indicatorParam,
				{
					Name:    "query_type",
					Type:    TypeString,
					Desc:    "Which end of the ranking.",
					Enum:    []string{"best", "worst"},
					Default: "best",
				},
				yearParam(true),
				stateParam(""),
			},
		},
		{
			Name: FnAACClassification,
			Desc: "Classify districts by annual average change (AAC) between 2016 and 2021 into improvement bands.",
			Params: []Param{
				goalParam(true),
				yearParam(true),
				stateParam(""),
				{
					Name:    "classification_method",
					Type:    TypeString,
					Desc:    "How bands are cut.",
					Enum:    []string{"quantile", "fixed"},
					Default: "quantile",
				},
				{Name: "default_indicator", Type: TypeString, Desc: "Indicator used when the goal has several."},
			},
		},
		{
			Name: FnStateWiseSummary,
			Desc: "Aggregate district results per state: average performance, improvement rate and district counts.",
			Params: []Param{
				goalParam(false),
				indicatorsParam,
				yearParam(false),
				topNParam(10, 1, 36),
				{
					Name: "sort_by",
					Type: TypeString,
					Desc: "Ordering of states.",
					Enum: []string{"average_performance", "improvement_rate", "district_count"},
				},
			},
		},
		{
			Name: FnTimeSeriesComparison,
			Desc: "Compare 2016 and 2021 values to show how districts or states moved over time.",
			Params: []Param{
				goalParam(false),
				indicatorsParam,
				{
					Name: "analysis_type",
					Type: TypeString,
					Desc: "Kind of time comparison.",
					Enum: []string{"district_trends", "state_trends", "top_improvers", "top_decliners"},
				},
				topNParam(10, 1, 50),
				stateParam(""),
			},
		},
		{
			Name: FnAspirationalTracking,
			Desc: "Track the government-designated aspirational districts against the rest of the country.",
			Params: []Param{
				goalParam(false),
				indicatorsParam,
				{
					Name: "analysis_type",
					Type: TypeString,
					Desc: "Kind of tracking summary.",
					Enum: []string{"performance_summary", "top_performers", "most_improved", "needs_attention"},
				},
				yearParam(false),
				topNParam(15, 1, 50),
				stateParam(""),
			},
		},
		{
			Name: FnCrossSDGAnalysis,
			Desc: "Relate several SDG goals: correlations, multi-goal performance and goal synergies across districts.",
			Params: []Param{
				{
					Name:     "sdg_goals",
					Type:     TypeIntegerArray,
					Desc:     "Two or more SDG goal numbers.",
					Required: true,
				},
				{
					Name: "analysis_type",
					Type: TypeString,
					Desc: "Kind of cross-goal analysis.",
					Enum: []string{"correlation", "multi_goal_performance", "goal_synergies", "best_worst_performers"},
				},
				yearParam(false),
				topNParam(10, 1, 50),
				stateParam(""),
			},
		},
		{
			Name: FnNeighboringDistricts,
			Desc: "Compare a district with its geographic neighbors on the same indicators.",
			Params: []Param{
				districtParam,
				goalParam(false),
				indicatorsParam,
				yearParam(false),
				{
					Name: "neighbor_method",
					Type: TypeString,
					Desc: "How neighbors are found.",
					Enum: []string{"distance", "touching", "closest"},
				},
				{Name: "max_distance_km", Type: TypeNumber, Desc: "Search radius in km for the distance method.", Default: 100.0, Min: 1, Max: 1000},
				{Name: "max_neighbors", Type: TypeInteger, Desc: "Maximum neighbors to compare.", Default: 10, Min: 1, Max: 50},
			},
		},
		{
			Name: FnStateIndicatorExtremes,
			Desc: "For one indicator, the best and worst district inside every state.",
			Params: []Param{
				{Name: "indicator_name", Type: TypeString, Desc: "Indicator name or short name.", Required: true},
				yearParam(false),
				{Name: "include_aac", Type: TypeBoolean, Desc: "Include annual average change.", Default: true},
				{Name: "min_districts_per_state", Type: TypeInteger, Desc: "Skip states with fewer districts.", Default: 3, Min: 1, Max: 100},
			},
		},
		{
			Name: FnMostLeastImproved,
			Desc: "Districts with the largest or smallest improvement between 2016 and 2021 on a goal or indicator.",
			Params: []Param{
				goalParam(true),
				indicatorParam,
				{
					Name:    "query_type",
					Type:    TypeString,
					Desc:    "Direction of change.",
					Enum:    []string{"most_improved", "least_improved"},
					Default: "most_improved",
				},
				topNParam(5, 1, 20),
				stateParam(""),
			},
		},
		{
			Name: FnBorderDistricts,
			Desc: "Districts along the border of a state, optionally only the border shared with a second state.",
			Params: []Param{
				{Name: "state1", Type: TypeString, Desc: "State whose border is analyzed.", Required: true, Normalize: TitleCase},
				{Name: "state2", Type: TypeString, Desc: "Neighboring state to restrict to.", Normalize: TitleCase},
				goalParam(false),
				indicatorsParam,
				yearParam(true),
				boundaryParam,
			},
		},
		{
			Name: FnDistrictsWithinRadius,
			Desc: "Districts within a radius of a district or a \"lat,lng\" point, with their SDG values.",
			Params: []Param{
				{Name: "center_point", Type: TypeString, Desc: "District name or \"lat,lng\" coordinates.", Required: true},
				{Name: "radius_km", Type: TypeNumber, Desc: "Radius in km (1-1000).", Required: true, Min: 1, Max: 1000},
				goalParam(false),
				indicatorsParam,
				{Name: "max_districts", Type: TypeInteger, Desc: "Maximum districts to return (5-100).", Default: 50, Min: 5, Max: 100},
				boundaryParam,
			},
		},
	}
}

// DefaultCatalog builds and validates the full analysis catalog.
func DefaultCatalog() (*Catalog, error) {
	return NewCatalog(DefaultFunctions()...)
}
