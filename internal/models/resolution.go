package models

import "time"

// ResolutionStrategy enumerates the fixed set of repair techniques.
type ResolutionStrategy string

const (
	StrategyTimeShift         ResolutionStrategy = "TIME_SHIFT"
	StrategyVenueSwap         ResolutionStrategy = "VENUE_SWAP"
	StrategyDateSwap          ResolutionStrategy = "DATE_SWAP"
	StrategyGameSwap          ResolutionStrategy = "GAME_SWAP"
	StrategyReschedule        ResolutionStrategy = "RESCHEDULE"
	StrategySplitDoubleheader ResolutionStrategy = "SPLIT_DOUBLEHEADER"
	StrategyAlternativeVenue  ResolutionStrategy = "ALTERNATIVE_VENUE"
	StrategyWaiverRequest     ResolutionStrategy = "WAIVER_REQUEST"
	StrategyManualOverride    ResolutionStrategy = "MANUAL_OVERRIDE"
)

// ResolutionStatus tracks a resolution through its lifecycle.
type ResolutionStatus string

const (
	ResolutionProposed    ResolutionStatus = "PROPOSED"
	ResolutionAccepted    ResolutionStatus = "ACCEPTED"
	ResolutionImplemented ResolutionStatus = "IMPLEMENTED"
)

// Modification is a single field change against a target game. Modifications
// within one resolution apply in list order.
type Modification struct {
	TargetGameID string `json:"target_game_id"`
	Field        string `json:"field"`
	NewValue     any    `json:"new_value"`
}

// ResolutionImpact summarises the side effects of applying a resolution.
type ResolutionImpact struct {
	FanImpact          float64  `json:"fan_impact"`
	TravelDelta        float64  `json:"travel_delta"`
	CompetitiveBalance float64  `json:"competitive_balance"`
	TeamsAffected      []string `json:"teams_affected,omitempty"`
	VenuesAffected     []string `json:"venues_affected,omitempty"`
}

// Resolution is a proposed, scored set of schedule modifications intended to
// eliminate one conflict. The caller owns an accepted resolution; the resolver
// only ever mutates validation clones.
type Resolution struct {
	ID                  string             `json:"id"`
	ConflictID          string             `json:"conflict_id"`
	Strategy            ResolutionStrategy `json:"strategy"`
	Modifications       []Modification     `json:"modifications"`
	Feasibility         float64            `json:"feasibility"`
	RecommendationScore float64            `json:"recommendation_score"`
	Status              ResolutionStatus   `json:"status"`
	Impact              ResolutionImpact   `json:"impact"`
	Notes               string             `json:"notes,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
}

// Game fields addressable by resolution modifications.
const (
	GameFieldDate     = "date"
	GameFieldVenue    = "venue_id"
	GameFieldHomeTeam = "home_team_id"
	GameFieldAwayTeam = "away_team_id"
	GameFieldMetadata = "metadata"
)
