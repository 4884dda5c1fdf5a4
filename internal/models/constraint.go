package models

import "time"

// ConstraintType categorises what a constraint governs.
type ConstraintType string

const (
	ConstraintTypeTemporal    ConstraintType = "TEMPORAL"
	ConstraintTypeVenue       ConstraintType = "VENUE"
	ConstraintTypeTeam        ConstraintType = "TEAM"
	ConstraintTypeTravel      ConstraintType = "TRAVEL"
	ConstraintTypeBroadcast   ConstraintType = "BROADCAST"
	ConstraintTypeAcademic    ConstraintType = "ACADEMIC"
	ConstraintTypeCompliance  ConstraintType = "COMPLIANCE"
	ConstraintTypeCompetitive ConstraintType = "COMPETITIVE"
)

// Hardness separates mandatory rules from weighted preferences.
type Hardness string

const (
	HardnessHard Hardness = "HARD"
	HardnessSoft Hardness = "SOFT"
)

// DateRange bounds constraint applicability in time.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range (inclusive).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ConstraintScope limits which parts of a schedule a constraint applies to.
// Empty lists mean unrestricted.
type ConstraintScope struct {
	Sports      []string   `json:"sports,omitempty"`
	Teams       []string   `json:"teams,omitempty"`
	Venues      []string   `json:"venues,omitempty"`
	Conferences []string   `json:"conferences,omitempty"`
	DateRange   *DateRange `json:"date_range,omitempty"`
}

// ConstraintEvaluator checks a schedule snapshot against parameterised rules.
type ConstraintEvaluator func(slot ScheduleSlot, params map[string]any) ConstraintResult

// UnifiedConstraint is the engine's executable rule unit.
type UnifiedConstraint struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Type           ConstraintType      `json:"type"`
	Hardness       Hardness            `json:"hardness"`
	Weight         float64             `json:"weight"`
	Priority       int                 `json:"priority"`
	Scope          ConstraintScope     `json:"scope"`
	Parameters     map[string]any      `json:"parameters,omitempty"`
	Evaluator      ConstraintEvaluator `json:"-"`
	DependsOn      []string            `json:"depends_on,omitempty"`
	ConflictsWith  []string            `json:"conflicts_with,omitempty"`
	Cacheable      bool                `json:"cacheable"`
	Parallelizable bool                `json:"parallelizable"`
}

// AppliesTo reports whether the constraint's scope covers the given game.
func (c *UnifiedConstraint) AppliesTo(slot ScheduleSlot, game Game) bool {
	if len(c.Scope.Sports) > 0 && !containsString(c.Scope.Sports, game.Sport) {
		return false
	}
	if len(c.Scope.Teams) > 0 &&
		!containsString(c.Scope.Teams, game.HomeTeamID) &&
		!containsString(c.Scope.Teams, game.AwayTeamID) {
		return false
	}
	if len(c.Scope.Venues) > 0 && !containsString(c.Scope.Venues, game.VenueID) {
		return false
	}
	if c.Scope.DateRange != nil && !c.Scope.DateRange.Contains(game.Date) {
		return false
	}
	return true
}

// Violation describes a single rule breach found by an evaluator.
type Violation struct {
	Description string           `json:"description"`
	Type        ConflictType     `json:"type,omitempty"`
	Severity    ConflictSeverity `json:"severity,omitempty"`
	GameIDs     []string         `json:"game_ids,omitempty"`
	TeamIDs     []string         `json:"team_ids,omitempty"`
}

// EvaluationMetrics captures optional per-evaluation performance data.
type EvaluationMetrics struct {
	EvaluationTime time.Duration `json:"evaluation_time"`
	MemoryBytes    int64         `json:"memory_bytes,omitempty"`
}

// ConstraintResult is the verdict of a single constraint evaluation.
type ConstraintResult struct {
	Valid       bool               `json:"valid"`
	Score       float64            `json:"score"`
	Violations  []Violation        `json:"violations,omitempty"`
	Suggestions []string           `json:"suggestions,omitempty"`
	Metrics     *EvaluationMetrics `json:"metrics,omitempty"`
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
