package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flexsched/engine/internal/dto"
	"github.com/flexsched/engine/internal/models"
	appErrors "github.com/flexsched/engine/pkg/errors"
	"github.com/flexsched/engine/pkg/export"
	"github.com/flexsched/engine/pkg/response"
)

type historyService interface {
	GenerateLearningReport() string
	ReportDataset() export.Dataset
	ExportForMLTraining() []models.TrainingRow
	RecommendedStrategies(conflictType models.ConflictType) []models.ResolutionStrategy
}

// HistoryHandler exposes the resolution ledger and learning reports.
type HistoryHandler struct {
	service historyService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewHistoryHandler builds a new handler.
func NewHistoryHandler(svc historyService) *HistoryHandler {
	return &HistoryHandler{
		service: svc,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

// Report renders the learning report as plain text.
func (h *HistoryHandler) Report(c *gin.Context) {
	c.String(http.StatusOK, h.service.GenerateLearningReport())
}

// ReportCSV renders the per-strategy statistics as CSV.
func (h *HistoryHandler) ReportCSV(c *gin.Context) {
	data, err := h.csv.Render(h.service.ReportDataset())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "csv export failed"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="learning_report.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// ReportPDF renders the per-strategy statistics as a PDF document.
func (h *HistoryHandler) ReportPDF(c *gin.Context) {
	data, err := h.pdf.Render(h.service.ReportDataset(), "Resolution Learning Report")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "pdf export failed"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="learning_report.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

// TrainingData exports the flattened ledger for ML pipelines.
func (h *HistoryHandler) TrainingData(c *gin.Context) {
	rows := h.service.ExportForMLTraining()
	response.JSON(c, http.StatusOK, dto.TrainingDataResponse{Rows: rows, Count: len(rows)})
}

// Recommendations lists strategies for a conflict type ordered by empirical
// success rate.
func (h *HistoryHandler) Recommendations(c *gin.Context) {
	conflictType := c.Query("conflict_type")
	if conflictType == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "conflict_type query parameter is required"))
		return
	}
	strategies := h.service.RecommendedStrategies(models.ConflictType(conflictType))
	response.JSON(c, http.StatusOK, dto.RecommendationsResponse{
		ConflictType: conflictType,
		Strategies:   strategies,
	})
}
