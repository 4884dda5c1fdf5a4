package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/flexsched/engine/internal/dto"
	"github.com/flexsched/engine/internal/models"
	appErrors "github.com/flexsched/engine/pkg/errors"
	"github.com/flexsched/engine/pkg/response"
)

type conflictDetector interface {
	DetectConflicts(ctx context.Context, schedule *models.Schedule) ([]models.Conflict, error)
	AnalyzeConflict(ctx context.Context, conflict models.Conflict, schedule *models.Schedule) models.ConflictAnalysis
}

type conflictResolver interface {
	ResolveConflicts(ctx context.Context, schedule *models.Schedule, conflicts []models.Conflict) (map[string]models.Resolution, error)
	RecordOutcome(ctx context.Context, resolution models.Resolution, conflictType models.ConflictType, success bool, feedback *models.SatisfactionFeedback) error
}

// ResolutionHandler exposes conflict detection and resolution endpoints.
type ResolutionHandler struct {
	analyzer conflictDetector
	resolver conflictResolver
	validate *validator.Validate
}

// NewResolutionHandler builds a new handler.
func NewResolutionHandler(analyzer conflictDetector, resolver conflictResolver, validate *validator.Validate) *ResolutionHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ResolutionHandler{analyzer: analyzer, resolver: resolver, validate: validate}
}

// Detect scans a schedule for conflicts.
func (h *ResolutionHandler) Detect(c *gin.Context) {
	var req dto.DetectConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid detection payload"))
		return
	}

	conflicts, err := h.analyzer.DetectConflicts(c.Request.Context(), &req.Schedule)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conflicts, map[string]interface{}{"count": len(conflicts)})
}

// Analyze produces patterns and a risk assessment for one conflict.
func (h *ResolutionHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid analysis payload"))
		return
	}

	analysis := h.analyzer.AnalyzeConflict(c.Request.Context(), req.Conflict, &req.Schedule)
	response.JSON(c, http.StatusOK, analysis)
}

// Resolve runs the resolver over a schedule. Conflicts are detected first
// when the request does not supply them.
func (h *ResolutionHandler) Resolve(c *gin.Context) {
	var req dto.ResolveConflictsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolution payload"))
		return
	}

	conflicts := req.Conflicts
	if len(conflicts) == 0 {
		detected, err := h.analyzer.DetectConflicts(c.Request.Context(), &req.Schedule)
		if err != nil {
			response.Error(c, err)
			return
		}
		conflicts = detected
	}

	resolutions, err := h.resolver.ResolveConflicts(c.Request.Context(), &req.Schedule, conflicts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ResolveConflictsResponse{
		Resolutions: resolutions,
		Resolved:    len(resolutions),
		Unresolved:  len(conflicts) - len(resolutions),
	})
}

// RecordOutcome feeds an observed resolution outcome into the ledger.
func (h *ResolutionHandler) RecordOutcome(c *gin.Context) {
	var req dto.RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid outcome payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "outcome payload failed validation"))
		return
	}

	err := h.resolver.RecordOutcome(c.Request.Context(), req.Resolution,
		models.ConflictType(req.ConflictType), *req.Success, req.Feedback)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
