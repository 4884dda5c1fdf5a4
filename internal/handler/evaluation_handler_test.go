package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexsched/engine/internal/dto"
	"github.com/flexsched/engine/internal/models"
	"github.com/flexsched/engine/internal/service"
)

type evaluationServiceMock struct {
	report      *service.EvaluationReport
	evaluateErr error
	invalidated []string
}

func (m *evaluationServiceMock) EvaluateSchedule(ctx context.Context, req service.EvaluateRequest) (*service.EvaluationReport, error) {
	if m.evaluateErr != nil {
		return nil, m.evaluateErr
	}
	return m.report, nil
}

func (m *evaluationServiceMock) InvalidateSchedule(ctx context.Context, scheduleID string) error {
	m.invalidated = append(m.invalidated, scheduleID)
	return nil
}

type evaluatorPoolMock struct {
	metrics service.EvaluatorMetrics
	resets  int
}

func (m *evaluatorPoolMock) Metrics() service.EvaluatorMetrics { return m.metrics }
func (m *evaluatorPoolMock) ResetMetrics()                     { m.resets++ }

func TestEvaluationHandlerEvaluate(t *testing.T) {
	svc := &evaluationServiceMock{report: &service.EvaluationReport{
		ScheduleID: "sched-1",
		Mode:       service.ModeFull,
		Satisfied:  true,
		Score:      0.95,
	}}
	handler := NewEvaluationHandler(svc, &evaluatorPoolMock{}, nil)

	w, c := postJSON(t, dto.EvaluateScheduleRequest{Schedule: models.Schedule{ID: "sched-1"}})
	handler.Evaluate(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data service.EvaluationReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "sched-1", envelope.Data.ScheduleID)
	assert.Equal(t, 0.95, envelope.Data.Score)
}

func TestEvaluationHandlerEvaluateRejectsUnknownMode(t *testing.T) {
	handler := NewEvaluationHandler(&evaluationServiceMock{}, &evaluatorPoolMock{}, nil)

	w, c := postJSON(t, dto.EvaluateScheduleRequest{
		Schedule: models.Schedule{ID: "sched-1"},
		Mode:     "turbo",
	})
	handler.Evaluate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvaluationHandlerInvalidateCache(t *testing.T) {
	svc := &evaluationServiceMock{}
	handler := NewEvaluationHandler(svc, &evaluatorPoolMock{}, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodDelete, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: "sched-1"}}
	handler.InvalidateCache(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"sched-1"}, svc.invalidated)
}

func TestEvaluationHandlerPoolMetrics(t *testing.T) {
	pool := &evaluatorPoolMock{metrics: service.EvaluatorMetrics{
		TotalEvaluations:      40,
		AverageEvaluationTime: 2500 * time.Microsecond,
		WorkerUtilization:     0.5,
	}}
	handler := NewEvaluationHandler(&evaluationServiceMock{}, pool, nil)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	handler.PoolMetrics(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data dto.EvaluatorMetricsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, int64(40), envelope.Data.TotalEvaluations)
	assert.InDelta(t, 2.5, envelope.Data.AverageEvaluationMs, 1e-9)
	assert.Equal(t, 0.5, envelope.Data.WorkerUtilization)

	w = httptest.NewRecorder()
	resetCtx, _ := gin.CreateTestContext(w)
	resetCtx.Request, _ = http.NewRequest(http.MethodPost, "/", nil)
	handler.ResetPoolMetrics(resetCtx)
	resetCtx.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, pool.resets)
}
