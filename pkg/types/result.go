package types

// MatchType records which search path produced a result.
type MatchType string

const (
	MatchLexical  MatchType = "lexical"
	MatchSemantic MatchType = "semantic"
)

// Search method names reported in SearchResponse.SearchMethods.
const (
	MethodSQL      = "sql"
	MethodSemantic = "semantic"
)

// SearchResult represents a single scene or bible chunk matched by a search.
type SearchResult struct {
	// Identification. Kind distinguishes scene rows from bible-chunk rows;
	// SceneID carries the chunk id for bible results.
	Kind        EntityType `json:"kind"`
	ScriptID    int64      `json:"script_id"`
	SceneID     int64      `json:"scene_id"`
	SceneNumber int        `json:"scene_number,omitempty"`

	// Scene metadata
	Heading   string `json:"heading"`
	Location  string `json:"location,omitempty"`
	TimeOfDay string `json:"time_of_day,omitempty"`
	Content   string `json:"content,omitempty"`

	// Scoring. RelevanceScore is nil for lexical-only matches, which keep
	// their (script_id, scene_number) ordering instead.
	RelevanceScore *float64  `json:"relevance_score,omitempty"`
	MatchType      MatchType `json:"match_type"`
}

// SearchResponse groups a page of results with pagination and diagnostics.
type SearchResponse struct {
	Results         []SearchResult `json:"results"`
	TotalCount      int            `json:"total_count"`
	HasMore         bool           `json:"has_more"`
	ExecutionTimeMs float64        `json:"execution_time_ms"`
	SearchMethods   []string       `json:"search_methods"` // Subset of {"sql", "semantic"}, "sql" always present
}

// UsedSemantic reports whether the semantic path contributed to this response.
func (r *SearchResponse) UsedSemantic() bool {
	for _, m := range r.SearchMethods {
		if m == MethodSemantic {
			return true
		}
	}
	return false
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.SceneID == 0 {
		return ErrInvalidSceneID
	}

	if sr.RelevanceScore != nil && (*sr.RelevanceScore < 0 || *sr.RelevanceScore > 1) {
		return ErrInvalidRelevanceScore
	}

	if sr.Heading == "" {
		return ErrEmptyHeading
	}

	switch sr.MatchType {
	case MatchLexical, MatchSemantic:
	default:
		return ErrInvalidMatchType
	}

	return nil
}
