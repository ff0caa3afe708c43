package models

// MatchType identifies which strategy produced an entity match
type MatchType string

const (
	MatchTypeExactHash    MatchType = "exact_hash"
	MatchTypeProximity    MatchType = "proximity"
	MatchTypeContactMatch MatchType = "contact_match"
)

// EntityMatch is a proposed correspondence between a location candidate and an
// existing business entity. Matches are derived per resolution request and
// never stored.
type EntityMatch struct {
	EntityType LinkedEntityType `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	MatchType  MatchType        `json:"match_type"`
	Confidence float64          `json:"confidence"` // 0.0-1.0
	Label      string           `json:"label"`
	// DistanceMeters is set for proximity matches only
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
}
