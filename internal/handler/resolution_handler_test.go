package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexsched/engine/internal/dto"
	"github.com/flexsched/engine/internal/models"
	appErrors "github.com/flexsched/engine/pkg/errors"
	"github.com/flexsched/engine/pkg/response"
)

type conflictDetectorMock struct {
	conflicts  []models.Conflict
	detectErr  error
	analysis   models.ConflictAnalysis
	detectHits int
}

func (m *conflictDetectorMock) DetectConflicts(ctx context.Context, schedule *models.Schedule) ([]models.Conflict, error) {
	m.detectHits++
	if m.detectErr != nil {
		return nil, m.detectErr
	}
	return m.conflicts, nil
}

func (m *conflictDetectorMock) AnalyzeConflict(ctx context.Context, conflict models.Conflict, schedule *models.Schedule) models.ConflictAnalysis {
	return m.analysis
}

type conflictResolverMock struct {
	resolutions map[string]models.Resolution
	resolveErr  error
	outcomeErr  error
	recorded    []models.ConflictType
}

func (m *conflictResolverMock) ResolveConflicts(ctx context.Context, schedule *models.Schedule, conflicts []models.Conflict) (map[string]models.Resolution, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.resolutions, nil
}

func (m *conflictResolverMock) RecordOutcome(ctx context.Context, resolution models.Resolution, conflictType models.ConflictType, success bool, feedback *models.SatisfactionFeedback) error {
	m.recorded = append(m.recorded, conflictType)
	return m.outcomeErr
}

func postJSON(t *testing.T, payload any) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return w, c
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

func TestResolutionHandlerDetect(t *testing.T) {
	detector := &conflictDetectorMock{conflicts: []models.Conflict{
		{ID: "c1", Type: models.ConflictVenueDoubleBooking, Severity: models.SeverityCritical},
		{ID: "c2", Type: models.ConflictTVSlot, Severity: models.SeverityMinor},
	}}
	handler := NewResolutionHandler(detector, &conflictResolverMock{}, nil)

	w, c := postJSON(t, dto.DetectConflictsRequest{Schedule: models.Schedule{ID: "sched-1"}})
	handler.Detect(c)

	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, float64(2), envelope.Meta["count"])
}

func TestResolutionHandlerDetectInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewResolutionHandler(&conflictDetectorMock{}, &conflictResolverMock{}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Detect(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolutionHandlerResolveDetectsWhenConflictsOmitted(t *testing.T) {
	detector := &conflictDetectorMock{conflicts: []models.Conflict{
		{ID: "c1", Type: models.ConflictVenueDoubleBooking},
		{ID: "c2", Type: models.ConflictTVSlot},
	}}
	resolver := &conflictResolverMock{resolutions: map[string]models.Resolution{
		"c1": {ID: "r1", ConflictID: "c1", Strategy: models.StrategyTimeShift},
	}}
	handler := NewResolutionHandler(detector, resolver, nil)

	w, c := postJSON(t, dto.ResolveConflictsRequest{Schedule: models.Schedule{ID: "sched-1"}})
	handler.Resolve(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, detector.detectHits)

	var envelope struct {
		Data dto.ResolveConflictsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.Resolved)
	assert.Equal(t, 1, envelope.Data.Unresolved)
	assert.Contains(t, envelope.Data.Resolutions, "c1")
}

func TestResolutionHandlerResolveSkipsDetectionWithConflicts(t *testing.T) {
	detector := &conflictDetectorMock{}
	resolver := &conflictResolverMock{resolutions: map[string]models.Resolution{}}
	handler := NewResolutionHandler(detector, resolver, nil)

	w, c := postJSON(t, dto.ResolveConflictsRequest{
		Schedule:  models.Schedule{ID: "sched-1"},
		Conflicts: []models.Conflict{{ID: "c1", Type: models.ConflictTVSlot}},
	})
	handler.Resolve(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, detector.detectHits)
}

func TestResolutionHandlerResolveError(t *testing.T) {
	resolver := &conflictResolverMock{resolveErr: appErrors.ErrUnresolvable}
	handler := NewResolutionHandler(&conflictDetectorMock{}, resolver, nil)

	w, c := postJSON(t, dto.ResolveConflictsRequest{
		Schedule:  models.Schedule{ID: "sched-1"},
		Conflicts: []models.Conflict{{ID: "c1"}},
	})
	handler.Resolve(c)

	require.Equal(t, http.StatusConflict, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "UNRESOLVABLE", envelope.Error.Code)
}

func TestResolutionHandlerRecordOutcome(t *testing.T) {
	resolver := &conflictResolverMock{}
	handler := NewResolutionHandler(&conflictDetectorMock{}, resolver, nil)

	success := true
	w, c := postJSON(t, dto.RecordOutcomeRequest{
		Resolution:   models.Resolution{ID: "r1", Strategy: models.StrategyTimeShift},
		ConflictType: "TV_SLOT",
		Success:      &success,
	})
	handler.RecordOutcome(c)
	c.Writer.WriteHeaderNow()

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, resolver.recorded, 1)
	assert.Equal(t, models.ConflictTVSlot, resolver.recorded[0])
}

func TestResolutionHandlerRecordOutcomeMissingFields(t *testing.T) {
	resolver := &conflictResolverMock{}
	handler := NewResolutionHandler(&conflictDetectorMock{}, resolver, nil)

	// No success flag and no conflict type.
	w, c := postJSON(t, map[string]any{"resolution": models.Resolution{ID: "r1"}})
	handler.RecordOutcome(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, resolver.recorded)
}
