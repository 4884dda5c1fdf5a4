package models

import "time"

// EngineSystemMetrics aggregates engine-wide counters for the metrics API.
type EngineSystemMetrics struct {
	EvaluationsTotal         uint64    `json:"evaluations_total"`
	EvaluationFailures       uint64    `json:"evaluation_failures"`
	AverageEvaluationMs      float64   `json:"average_evaluation_ms"`
	ResolutionsProposed      uint64    `json:"resolutions_proposed"`
	ResolutionsRejected      uint64    `json:"resolutions_rejected"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
