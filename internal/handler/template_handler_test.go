package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexsched/engine/internal/dto"
	"github.com/flexsched/engine/internal/models"
	"github.com/flexsched/engine/internal/service"
)

func newTemplateHandler() (*TemplateHandler, *service.ConstraintTemplateSystem) {
	system := service.NewConstraintTemplateSystem(nil)
	return NewTemplateHandler(system, nil), system
}

func dayTemplate() models.TemplateDefinition {
	return models.TemplateDefinition{
		ID:       "tpl-day",
		Name:     "Day restriction",
		Type:     models.ConstraintTypeTemporal,
		Hardness: models.HardnessSoft,
		Parameters: []models.ParameterDef{
			{Name: "blocked_day", Type: models.ParamString, Required: true},
		},
		EvaluatorTemplate: "game.day_of_week != {{blocked_day}}",
	}
}

func TestTemplateHandlerRegisterAndGet(t *testing.T) {
	handler, system := newTemplateHandler()

	w, c := postJSON(t, dayTemplate())
	handler.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)

	_, err := system.GetTemplate("tpl-day")
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	w = httptest.NewRecorder()
	getCtx, _ := gin.CreateTestContext(w)
	getCtx.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	getCtx.Params = gin.Params{{Key: "id", Value: "tpl-day"}}
	handler.Get(getCtx)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	missingCtx, _ := gin.CreateTestContext(w)
	missingCtx.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	missingCtx.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(missingCtx)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplateHandlerRegisterRejectsInvalidDefinition(t *testing.T) {
	handler, _ := newTemplateHandler()

	def := dayTemplate()
	def.EvaluatorTemplate = "eval('true')"
	w, c := postJSON(t, def)
	handler.Register(c)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	envelope := decodeEnvelope(t, w)
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "TEMPLATE_INVALID", envelope.Error.Code)
}

func TestTemplateHandlerInstantiate(t *testing.T) {
	handler, system := newTemplateHandler()
	require.NoError(t, system.RegisterTemplate(dayTemplate()))

	w, c := postJSON(t, dto.InstantiateTemplateRequest{
		Name:       "No Sunday games",
		Parameters: map[string]any{"blocked_day": "sunday"},
	})
	c.Params = gin.Params{{Key: "id", Value: "tpl-day"}}
	handler.Instantiate(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var envelope struct {
		Data models.UnifiedConstraint `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "No Sunday games", envelope.Data.Name)
	assert.NotEmpty(t, envelope.Data.ID)
}

func TestTemplateHandlerInstantiateRejectsOutOfRangeWeight(t *testing.T) {
	handler, system := newTemplateHandler()
	require.NoError(t, system.RegisterTemplate(dayTemplate()))

	weight := 99.0
	w, c := postJSON(t, dto.InstantiateTemplateRequest{
		Parameters: map[string]any{"blocked_day": "sunday"},
		Weight:     &weight,
	})
	c.Params = gin.Params{{Key: "id", Value: "tpl-day"}}
	handler.Instantiate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplateHandlerVariations(t *testing.T) {
	handler, system := newTemplateHandler()
	require.NoError(t, system.RegisterTemplate(dayTemplate()))

	w, c := postJSON(t, dto.TemplateVariationsRequest{
		Base: dto.InstantiateTemplateRequest{
			Parameters: map[string]any{"blocked_day": "sunday"},
		},
		Variations: []map[string]any{
			{"blocked_day": "saturday"},
			{"blocked_day": "friday"},
		},
	})
	c.Params = gin.Params{{Key: "id", Value: "tpl-day"}}
	handler.Variations(c)

	require.Equal(t, http.StatusCreated, w.Code)
	var envelope struct {
		Data []models.UnifiedConstraint `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Len(t, envelope.Data, 2)
}

func TestTemplateHandlerVariationsRequiresAtLeastOne(t *testing.T) {
	handler, system := newTemplateHandler()
	require.NoError(t, system.RegisterTemplate(dayTemplate()))

	w, c := postJSON(t, dto.TemplateVariationsRequest{
		Base: dto.InstantiateTemplateRequest{
			Parameters: map[string]any{"blocked_day": "sunday"},
		},
	})
	c.Params = gin.Params{{Key: "id", Value: "tpl-day"}}
	handler.Variations(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTemplateHandlerCloneAndList(t *testing.T) {
	handler, system := newTemplateHandler()
	require.NoError(t, system.RegisterTemplate(dayTemplate()))

	w, c := postJSON(t, dto.CloneTemplateRequest{NewID: "tpl-copy", NewName: "Copied"})
	c.Params = gin.Params{{Key: "id", Value: "tpl-day"}}
	handler.Clone(c)
	require.Equal(t, http.StatusCreated, w.Code)

	gin.SetMode(gin.TestMode)
	w = httptest.NewRecorder()
	listCtx, _ := gin.CreateTestContext(w)
	listCtx.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	handler.List(listCtx)
	require.Equal(t, http.StatusOK, w.Code)
	envelope := decodeEnvelope(t, w)
	assert.Equal(t, float64(2), envelope.Meta["count"])
}

func TestTemplateHandlerExportImportRoundTrip(t *testing.T) {
	handler, system := newTemplateHandler()
	require.NoError(t, system.RegisterTemplate(dayTemplate()))

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	exportCtx, _ := gin.CreateTestContext(w)
	exportCtx.Request, _ = http.NewRequest(http.MethodGet, "/", nil)
	exportCtx.Params = gin.Params{{Key: "id", Value: "tpl-day"}}
	handler.Export(exportCtx)
	require.Equal(t, http.StatusOK, w.Code)
	exported := w.Body.Bytes()

	freshHandler, freshSystem := newTemplateHandler()
	w = httptest.NewRecorder()
	importCtx, _ := gin.CreateTestContext(w)
	importCtx.Request, _ = http.NewRequest(http.MethodPost, "/", bytes.NewReader(exported))
	importCtx.Request.Header.Set("Content-Type", "application/json")
	freshHandler.Import(importCtx)
	require.Equal(t, http.StatusCreated, w.Code)

	_, err := freshSystem.GetTemplate("tpl-day")
	require.NoError(t, err)
}
