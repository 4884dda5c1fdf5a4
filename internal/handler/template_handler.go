package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/flexsched/engine/internal/dto"
	"github.com/flexsched/engine/internal/models"
	appErrors "github.com/flexsched/engine/pkg/errors"
	"github.com/flexsched/engine/pkg/response"
)

type templateService interface {
	RegisterTemplate(def models.TemplateDefinition) error
	GetTemplate(id string) (models.TemplateDefinition, error)
	ListTemplates() []models.TemplateDefinition
	CreateConstraintFromTemplate(instance models.TemplateInstance) (models.UnifiedConstraint, error)
	CreateConstraintVariations(base models.TemplateInstance, variations []map[string]any) ([]models.UnifiedConstraint, error)
	CloneTemplate(sourceID, newID, newName string) (models.TemplateDefinition, error)
	ExportTemplate(id string) ([]byte, error)
	ImportTemplate(data []byte) (models.TemplateDefinition, error)
}

// TemplateHandler exposes the constraint template registry.
type TemplateHandler struct {
	service  templateService
	validate *validator.Validate
}

// NewTemplateHandler builds a new handler.
func NewTemplateHandler(svc templateService, validate *validator.Validate) *TemplateHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &TemplateHandler{service: svc, validate: validate}
}

// Register stores a new template definition.
func (h *TemplateHandler) Register(c *gin.Context) {
	var def models.TemplateDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid template payload"))
		return
	}
	if err := h.service.RegisterTemplate(def); err != nil {
		response.Error(c, err)
		return
	}
	registered, err := h.service.GetTemplate(def.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, registered)
}

// List returns all registered templates.
func (h *TemplateHandler) List(c *gin.Context) {
	templates := h.service.ListTemplates()
	response.JSON(c, http.StatusOK, templates, map[string]interface{}{"count": len(templates)})
}

// Get returns one template by id.
func (h *TemplateHandler) Get(c *gin.Context) {
	def, err := h.service.GetTemplate(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, def)
}

// Instantiate materialises a constraint from a template.
func (h *TemplateHandler) Instantiate(c *gin.Context) {
	var req dto.InstantiateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid instance payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "instance payload failed validation"))
		return
	}

	constraint, err := h.service.CreateConstraintFromTemplate(instanceFromRequest(c.Param("id"), req))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, constraint)
}

// Variations materialises several constraints from one template.
func (h *TemplateHandler) Variations(c *gin.Context) {
	var req dto.TemplateVariationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid variations payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "variations payload failed validation"))
		return
	}

	constraints, err := h.service.CreateConstraintVariations(instanceFromRequest(c.Param("id"), req.Base), req.Variations)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, constraints)
}

// Clone copies a template under a new identity.
func (h *TemplateHandler) Clone(c *gin.Context) {
	var req dto.CloneTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clone payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "clone payload failed validation"))
		return
	}

	def, err := h.service.CloneTemplate(c.Param("id"), req.NewID, req.NewName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, def)
}

// Export serialises a template as a portable JSON document.
func (h *TemplateHandler) Export(c *gin.Context) {
	data, err := h.service.ExportTemplate(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// Import registers a template from an exported document.
func (h *TemplateHandler) Import(c *gin.Context) {
	data, err := c.GetRawData()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "cannot read template document"))
		return
	}
	def, err := h.service.ImportTemplate(data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, def)
}

func instanceFromRequest(templateID string, req dto.InstantiateTemplateRequest) models.TemplateInstance {
	return models.TemplateInstance{
		TemplateID: templateID,
		Name:       req.Name,
		Parameters: req.Parameters,
		Scope:      req.Scope,
		Hardness:   req.Hardness,
		Weight:     req.Weight,
	}
}
