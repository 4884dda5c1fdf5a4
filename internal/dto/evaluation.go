package dto

import "github.com/flexsched/engine/internal/models"

// EvaluateScheduleRequest asks the engine to score a schedule.
type EvaluateScheduleRequest struct {
	Schedule      models.Schedule `json:"schedule" validate:"required"`
	ConstraintIDs []string        `json:"constraint_ids,omitempty"`
	Mode          string          `json:"mode,omitempty" validate:"omitempty,oneof=quick full parallel"`
}

// EvaluatorMetricsResponse reports worker pool utilization.
type EvaluatorMetricsResponse struct {
	TotalEvaluations    int64   `json:"total_evaluations"`
	AverageEvaluationMs float64 `json:"average_evaluation_ms"`
	WorkerUtilization   float64 `json:"worker_utilization"`
}
