package dto

import "github.com/flexsched/engine/internal/models"

// InstantiateTemplateRequest binds parameters and scope to a template.
type InstantiateTemplateRequest struct {
	Name       string                 `json:"name,omitempty"`
	Parameters map[string]any         `json:"parameters,omitempty"`
	Scope      models.ConstraintScope `json:"scope,omitempty"`
	Hardness   *models.Hardness       `json:"hardness,omitempty" validate:"omitempty,oneof=HARD SOFT"`
	Weight     *float64               `json:"weight,omitempty" validate:"omitempty,gte=0,lte=10"`
}

// TemplateVariationsRequest instantiates several parameter sets at once.
type TemplateVariationsRequest struct {
	Base       InstantiateTemplateRequest `json:"base"`
	Variations []map[string]any           `json:"variations" validate:"required,min=1"`
}

// CloneTemplateRequest copies a template under a new identity.
type CloneTemplateRequest struct {
	NewID   string `json:"new_id" validate:"required"`
	NewName string `json:"new_name,omitempty"`
}
