package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/flexsched/engine/internal/dto"
	"github.com/flexsched/engine/internal/service"
	appErrors "github.com/flexsched/engine/pkg/errors"
	"github.com/flexsched/engine/pkg/response"
)

type evaluationService interface {
	EvaluateSchedule(ctx context.Context, req service.EvaluateRequest) (*service.EvaluationReport, error)
	InvalidateSchedule(ctx context.Context, scheduleID string) error
}

type evaluatorPool interface {
	Metrics() service.EvaluatorMetrics
	ResetMetrics()
}

// EvaluationHandler exposes schedule evaluation endpoints.
type EvaluationHandler struct {
	service  evaluationService
	pool     evaluatorPool
	validate *validator.Validate
}

// NewEvaluationHandler builds a new handler.
func NewEvaluationHandler(svc evaluationService, pool evaluatorPool, validate *validator.Validate) *EvaluationHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &EvaluationHandler{service: svc, pool: pool, validate: validate}
}

// Evaluate scores a schedule against its constraints.
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	var req dto.EvaluateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid evaluation payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "evaluation payload failed validation"))
		return
	}

	report, err := h.service.EvaluateSchedule(c.Request.Context(), service.EvaluateRequest{
		Schedule:      &req.Schedule,
		ConstraintIDs: req.ConstraintIDs,
		Mode:          req.Mode,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// InvalidateCache drops cached verdicts for a schedule.
func (h *EvaluationHandler) InvalidateCache(c *gin.Context) {
	if err := h.service.InvalidateSchedule(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PoolMetrics reports worker pool utilization since the last reset.
func (h *EvaluationHandler) PoolMetrics(c *gin.Context) {
	m := h.pool.Metrics()
	response.JSON(c, http.StatusOK, dto.EvaluatorMetricsResponse{
		TotalEvaluations:    m.TotalEvaluations,
		AverageEvaluationMs: float64(m.AverageEvaluationTime.Microseconds()) / 1000,
		WorkerUtilization:   m.WorkerUtilization,
	})
}

// ResetPoolMetrics clears the worker pool counters.
func (h *EvaluationHandler) ResetPoolMetrics(c *gin.Context) {
	h.pool.ResetMetrics()
	response.NoContent(c)
}
