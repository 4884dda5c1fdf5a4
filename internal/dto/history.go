package dto

import "github.com/flexsched/engine/internal/models"

// RecommendationsResponse lists strategies ordered by empirical success.
type RecommendationsResponse struct {
	ConflictType string                      `json:"conflict_type"`
	Strategies   []models.ResolutionStrategy `json:"strategies"`
}

// TrainingDataResponse carries the flattened ledger for ML pipelines.
type TrainingDataResponse struct {
	Rows  []models.TrainingRow `json:"rows"`
	Count int                  `json:"count"`
}
