package dto

import "github.com/flexsched/engine/internal/models"

// DetectConflictsRequest asks for a full conflict scan of a schedule.
type DetectConflictsRequest struct {
	Schedule models.Schedule `json:"schedule" validate:"required"`
}

// AnalyzeConflictRequest asks for a deep analysis of one detected conflict.
type AnalyzeConflictRequest struct {
	Schedule models.Schedule `json:"schedule" validate:"required"`
	Conflict models.Conflict `json:"conflict" validate:"required"`
}

// ResolveConflictsRequest runs the resolver over a schedule. When the
// conflict list is empty the engine detects conflicts first.
type ResolveConflictsRequest struct {
	Schedule  models.Schedule   `json:"schedule" validate:"required"`
	Conflicts []models.Conflict `json:"conflicts,omitempty"`
}

// ResolveConflictsResponse maps conflict ids to accepted resolutions.
type ResolveConflictsResponse struct {
	Resolutions map[string]models.Resolution `json:"resolutions"`
	Resolved    int                          `json:"resolved"`
	Unresolved  int                          `json:"unresolved"`
}

// RecordOutcomeRequest reports the real-world result of an implemented
// resolution back to the learning ledger.
type RecordOutcomeRequest struct {
	Resolution   models.Resolution            `json:"resolution" validate:"required"`
	ConflictType string                       `json:"conflict_type" validate:"required"`
	Success      *bool                        `json:"success" validate:"required"`
	Feedback     *models.SatisfactionFeedback `json:"feedback,omitempty"`
}
