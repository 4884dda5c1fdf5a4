package models

import "time"

// ParameterType constrains what a template parameter accepts.
type ParameterType string

const (
	ParamNumber   ParameterType = "NUMBER"
	ParamString   ParameterType = "STRING"
	ParamBool     ParameterType = "BOOL"
	ParamDate     ParameterType = "DATE"
	ParamList     ParameterType = "LIST"
	ParamDuration ParameterType = "DURATION"
)

// ParameterDef declares one template parameter with bounds and a default.
type ParameterDef struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Required    bool          `json:"required"`
	Default     any           `json:"default,omitempty"`
	Min         *float64      `json:"min,omitempty"`
	Max         *float64      `json:"max,omitempty"`
	Enum        []string      `json:"enum,omitempty"`
	Description string        `json:"description,omitempty"`
}

// ScopeRequirements state which scope dimensions an instance must supply.
type ScopeRequirements struct {
	RequiresSports bool `json:"requires_sports"`
	RequiresTeams  bool `json:"requires_teams"`
	RequiresVenues bool `json:"requires_venues"`
}

// TemplateExample documents a sample instantiation.
type TemplateExample struct {
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// TemplateDefinition is a reusable, parameterised constraint definition. The
// evaluator body is an expression over games and parameters; {{name}} tokens
// reference parameters.
type TemplateDefinition struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Type              ConstraintType    `json:"type"`
	Hardness          Hardness          `json:"hardness"`
	DefaultWeight     float64           `json:"default_weight"`
	Parameters        []ParameterDef    `json:"parameters"`
	ScopeRequirements ScopeRequirements `json:"scope_requirements"`
	EvaluatorTemplate string            `json:"evaluator_template"`
	Examples          []TemplateExample `json:"examples,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// TemplateInstance supplies concrete values for a template, producing a
// UnifiedConstraint when compiled.
type TemplateInstance struct {
	TemplateID string          `json:"template_id"`
	Name       string          `json:"name"`
	Parameters map[string]any  `json:"parameters"`
	Scope      ConstraintScope `json:"scope"`
	Hardness   *Hardness       `json:"hardness,omitempty"`
	Weight     *float64        `json:"weight,omitempty"`
}
