package models

import "time"

// SatisfactionFeedback is optional stakeholder feedback on an applied
// resolution.
type SatisfactionFeedback struct {
	Rating   int      `json:"rating"`
	Comments string   `json:"comments,omitempty"`
	Issues   []string `json:"issues,omitempty"`
}

// ResolutionRecord is one append-only ledger entry: a resolution snapshot plus
// its observed outcome.
type ResolutionRecord struct {
	ID                  string                `json:"id" db:"id"`
	ConflictID          string                `json:"conflict_id" db:"conflict_id"`
	ConflictType        ConflictType          `json:"conflict_type" db:"conflict_type"`
	Strategy            ResolutionStrategy    `json:"strategy" db:"strategy"`
	Modifications       []Modification        `json:"modifications"`
	Impact              ResolutionImpact      `json:"impact"`
	Feasibility         float64               `json:"feasibility" db:"feasibility"`
	RecommendationScore float64               `json:"recommendation_score" db:"recommendation_score"`
	Status              ResolutionStatus      `json:"status" db:"status"`
	Success             bool                  `json:"success" db:"success"`
	Feedback            *SatisfactionFeedback `json:"feedback,omitempty"`
	RecordedAt          time.Time             `json:"recorded_at" db:"recorded_at"`
}

// TrainingRow is a flattened feature/label row exported for offline analysis.
type TrainingRow struct {
	ConflictType        string  `json:"conflict_type"`
	Strategy            string  `json:"strategy"`
	Feasibility         float64 `json:"feasibility"`
	RecommendationScore float64 `json:"recommendation_score"`
	TravelDelta         float64 `json:"travel_delta"`
	FanImpact           float64 `json:"fan_impact"`
	CompetitiveBalance  float64 `json:"competitive_balance"`
	Implemented         bool    `json:"implemented"`
	Label               float64 `json:"label"`
}
