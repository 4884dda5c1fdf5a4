package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexsched/engine/internal/dto"
	"github.com/flexsched/engine/internal/models"
	"github.com/flexsched/engine/pkg/export"
)

type historyServiceMock struct {
	report     string
	dataset    export.Dataset
	rows       []models.TrainingRow
	strategies []models.ResolutionStrategy
}

func (m *historyServiceMock) GenerateLearningReport() string { return m.report }
func (m *historyServiceMock) ReportDataset() export.Dataset  { return m.dataset }
func (m *historyServiceMock) ExportForMLTraining() []models.TrainingRow {
	return m.rows
}
func (m *historyServiceMock) RecommendedStrategies(conflictType models.ConflictType) []models.ResolutionStrategy {
	return m.strategies
}

func getRequest(t *testing.T, target string) (*httptest.ResponseRecorder, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	c.Request = req
	return w, c
}

func TestHistoryHandlerReport(t *testing.T) {
	handler := NewHistoryHandler(&historyServiceMock{report: "Resolution learning report (3 records)"})

	w, c := getRequest(t, "/history/report")
	handler.Report(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "3 records")
}

func TestHistoryHandlerReportCSV(t *testing.T) {
	handler := NewHistoryHandler(&historyServiceMock{dataset: export.Dataset{
		Headers: []string{"conflict_type", "strategy", "attempts"},
		Rows: []map[string]string{
			{"conflict_type": "TV_SLOT", "strategy": "TIME_SHIFT", "attempts": "4"},
		},
	}})

	w, c := getRequest(t, "/history/report.csv")
	handler.ReportCSV(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "learning_report.csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "conflict_type,strategy,attempts", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "TV_SLOT")
}

func TestHistoryHandlerReportPDF(t *testing.T) {
	handler := NewHistoryHandler(&historyServiceMock{dataset: export.Dataset{
		Headers: []string{"conflict_type", "attempts"},
		Rows:    []map[string]string{{"conflict_type": "TV_SLOT", "attempts": "4"}},
	}})

	w, c := getRequest(t, "/history/report.pdf")
	handler.ReportPDF(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "learning_report.pdf")
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF"))
}

func TestHistoryHandlerTrainingData(t *testing.T) {
	handler := NewHistoryHandler(&historyServiceMock{rows: []models.TrainingRow{
		{ConflictType: "TV_SLOT", Strategy: "TIME_SHIFT", Label: 1},
		{ConflictType: "WEATHER", Strategy: "RESCHEDULE", Label: 0},
	}})

	w, c := getRequest(t, "/history/training-data")
	handler.TrainingData(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data dto.TrainingDataResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Data.Count)
	require.Len(t, envelope.Data.Rows, 2)
	assert.Equal(t, "TV_SLOT", envelope.Data.Rows[0].ConflictType)
}

func TestHistoryHandlerRecommendations(t *testing.T) {
	handler := NewHistoryHandler(&historyServiceMock{strategies: []models.ResolutionStrategy{
		models.StrategyDateSwap,
		models.StrategyReschedule,
	}})

	w, c := getRequest(t, "/history/recommendations?conflict_type=BACK_TO_BACK")
	handler.Recommendations(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope struct {
		Data dto.RecommendationsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "BACK_TO_BACK", envelope.Data.ConflictType)
	assert.Equal(t, models.StrategyDateSwap, envelope.Data.Strategies[0])
}

func TestHistoryHandlerRecommendationsRequiresConflictType(t *testing.T) {
	handler := NewHistoryHandler(&historyServiceMock{})

	w, c := getRequest(t, "/history/recommendations")
	handler.Recommendations(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
