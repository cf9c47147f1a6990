package model

// QueryType is the ranking shape inferred from a user question.
type QueryType string

const (
	QueryTopPerformers      QueryType = "top_performers"
	QueryBottomPerformers   QueryType = "bottom_performers"
	QueryTrend              QueryType = "trend"
	QueryBestDistrict       QueryType = "best_district"
	QueryWorstDistrict      QueryType = "worst_district"
	QueryIndividualDistrict QueryType = "individual_district"
)

// QueryIntent is derived from the raw query text on every turn and never stored.
type QueryIntent struct {
	QueryType           QueryType `json:"query_type"`
	TopN                int       `json:"top_n"`
	StateName           string    `json:"state_name,omitempty"`
	HasSpecificDistrict bool      `json:"has_specific_district"`
	DetectedDistrict    string    `json:"detected_district,omitempty"`
	IsBestWorstQuery    bool      `json:"is_best_worst_query"`
	HasDistrictPattern  bool      `json:"has_district_pattern"`
}
