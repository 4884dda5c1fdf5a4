package models

import (
	"sort"
	"time"
)

// ConflictType classifies detected scheduling conflicts by rule family.
type ConflictType string

const (
	ConflictVenueDoubleBooking ConflictType = "VENUE_DOUBLE_BOOKING"
	ConflictRestViolation      ConflictType = "REST_VIOLATION"
	ConflictTravelBurden       ConflictType = "TRAVEL_BURDEN"
	ConflictChampionshipDate   ConflictType = "CHAMPIONSHIP_DATE"
	ConflictTVSlot             ConflictType = "TV_SLOT"
	ConflictWeather            ConflictType = "WEATHER"
	ConflictAcademicCalendar   ConflictType = "ACADEMIC_CALENDAR"
	ConflictHomeAwayImbalance  ConflictType = "HOME_AWAY_IMBALANCE"
	ConflictBackToBack         ConflictType = "BACK_TO_BACK"
	ConflictSundayRestriction  ConflictType = "SUNDAY_RESTRICTION"
)

// ConflictSeverity ranks how damaging a conflict is.
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "CRITICAL"
	SeverityMajor    ConflictSeverity = "MAJOR"
	SeverityMinor    ConflictSeverity = "MINOR"
)

// Rank maps severities onto a strict ordering (critical=3 > major=2 > minor=1).
func (s ConflictSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMajor:
		return 2
	case SeverityMinor:
		return 1
	default:
		return 0
	}
}

// ConflictMetadata carries scoring inputs computed by the analyzer.
type ConflictMetadata struct {
	CascadeRisk         float64 `json:"cascade_risk"`
	HistoricalFrequency float64 `json:"historical_frequency"`
	ConflictScore       float64 `json:"conflict_score"`
}

// Conflict is a detected rule violation in a schedule. A conflict exists from
// detection until a resolution for it is accepted.
type Conflict struct {
	ID           string           `json:"id"`
	Type         ConflictType     `json:"type"`
	Severity     ConflictSeverity `json:"severity"`
	Description  string           `json:"description"`
	ConstraintID string           `json:"constraint_id,omitempty"`
	GameIDs      []string         `json:"game_ids,omitempty"`
	TeamIDs      []string         `json:"team_ids,omitempty"`
	Metadata     ConflictMetadata `json:"metadata"`
	DetectedAt   time.Time        `json:"detected_at"`
}

// Key identifies a conflict independent of its generated ID, so re-detection
// on a cloned schedule can be compared against the original set. Game order
// does not matter: the same games in conflict are the same conflict.
func (c Conflict) Key() string {
	ids := make([]string, len(c.GameIDs))
	copy(ids, c.GameIDs)
	sort.Strings(ids)
	key := string(c.Type)
	for _, id := range ids {
		key += "|" + id
	}
	return key
}

// RiskAssessment flags downstream risks used in strategy scoring.
type RiskAssessment struct {
	ComplianceRisk bool    `json:"compliance_risk"`
	ReputationRisk bool    `json:"reputation_risk"`
	CascadeRisk    float64 `json:"cascade_risk"`
}

// ConflictAnalysis is the analyzer's deep-dive on a single conflict.
type ConflictAnalysis struct {
	ConflictID string         `json:"conflict_id"`
	Patterns   []string       `json:"patterns"`
	Risk       RiskAssessment `json:"risk_assessment"`
}
