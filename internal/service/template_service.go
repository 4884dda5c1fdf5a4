package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/models"
	appErrors "github.com/flexsched/engine/pkg/errors"
)

var paramTokenPattern = "{{"

// ConstraintTemplateSystem registers parameterised constraint templates and
// instantiates executable constraints from them. Template bodies are compiled
// once into sandboxed expression trees; identical (template, parameters)
// pairs share one evaluator instance.
type ConstraintTemplateSystem struct {
	logger *zap.Logger

	mu        sync.RWMutex
	templates map[string]models.TemplateDefinition
	compiled  map[string]models.ConstraintEvaluator
}

// NewConstraintTemplateSystem returns an empty registry.
func NewConstraintTemplateSystem(logger *zap.Logger) *ConstraintTemplateSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConstraintTemplateSystem{
		logger:    logger,
		templates: make(map[string]models.TemplateDefinition),
		compiled:  make(map[string]models.ConstraintEvaluator),
	}
}

// RegisterTemplate validates and stores a template definition. All structural
// problems are reported together in a single error.
func (s *ConstraintTemplateSystem) RegisterTemplate(def models.TemplateDefinition) error {
	problems := validateTemplateDefinition(def)
	if len(problems) == 0 {
		// Compiling the substituted body here surfaces sandbox violations
		// at registration time rather than first use.
		if _, err := CompileExpr(substituteParams(def.EvaluatorTemplate)); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if len(problems) > 0 {
		return appErrors.Clone(appErrors.ErrTemplateInvalid,
			fmt.Sprintf("template %q rejected: %s", def.ID, strings.Join(problems, "; ")))
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[def.ID] = def
	s.logger.Sugar().Infow("template registered", "template_id", def.ID, "name", def.Name)
	return nil
}

// GetTemplate returns the template with the given id.
func (s *ConstraintTemplateSystem) GetTemplate(id string) (models.TemplateDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.templates[id]
	if !ok {
		return models.TemplateDefinition{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("template %q not found", id))
	}
	return def, nil
}

// ListTemplates returns all registered templates sorted by id.
func (s *ConstraintTemplateSystem) ListTemplates() []models.TemplateDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TemplateDefinition, 0, len(s.templates))
	for _, def := range s.templates {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CreateConstraintFromTemplate resolves an instance against its template and
// returns an executable constraint. Equal parameter sets against the same
// template share the compiled evaluator.
func (s *ConstraintTemplateSystem) CreateConstraintFromTemplate(instance models.TemplateInstance) (models.UnifiedConstraint, error) {
	def, err := s.GetTemplate(instance.TemplateID)
	if err != nil {
		return models.UnifiedConstraint{}, err
	}

	params, problems := resolveParameters(def, instance.Parameters)
	problems = append(problems, validateScope(def.ScopeRequirements, instance.Scope)...)
	if len(problems) > 0 {
		return models.UnifiedConstraint{}, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("instance of template %q rejected: %s", def.ID, strings.Join(problems, "; ")))
	}

	evaluator, err := s.evaluatorFor(def, params)
	if err != nil {
		return models.UnifiedConstraint{}, err
	}

	hardness := def.Hardness
	if instance.Hardness != nil {
		hardness = *instance.Hardness
	}
	weight := def.DefaultWeight
	if instance.Weight != nil {
		weight = *instance.Weight
	}
	name := instance.Name
	if name == "" {
		name = def.Name
	}

	return models.UnifiedConstraint{
		ID:             uuid.NewString(),
		Name:           name,
		Type:           def.Type,
		Hardness:       hardness,
		Weight:         weight,
		Priority:       derivePriority(hardness, weight),
		Scope:          instance.Scope,
		Parameters:     params,
		Evaluator:      evaluator,
		Cacheable:      true,
		Parallelizable: true,
	}, nil
}

// CreateConstraintVariations instantiates one constraint per parameter
// override set, sharing the base instance's scope and settings.
func (s *ConstraintTemplateSystem) CreateConstraintVariations(base models.TemplateInstance, variations []map[string]any) ([]models.UnifiedConstraint, error) {
	out := make([]models.UnifiedConstraint, 0, len(variations))
	for i, variation := range variations {
		merged := make(map[string]any, len(base.Parameters)+len(variation))
		for k, v := range base.Parameters {
			merged[k] = v
		}
		for k, v := range variation {
			merged[k] = v
		}
		inst := base
		inst.Parameters = merged
		if inst.Name != "" {
			inst.Name = fmt.Sprintf("%s #%d", base.Name, i+1)
		}
		c, err := s.CreateConstraintFromTemplate(inst)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status,
				fmt.Sprintf("variation %d invalid", i+1))
		}
		out = append(out, c)
	}
	return out, nil
}

// CloneTemplate copies an existing template under a new identity.
func (s *ConstraintTemplateSystem) CloneTemplate(sourceID, newID, newName string) (models.TemplateDefinition, error) {
	def, err := s.GetTemplate(sourceID)
	if err != nil {
		return models.TemplateDefinition{}, err
	}
	def.ID = newID
	if newName != "" {
		def.Name = newName
	}
	def.CreatedAt = time.Time{}
	if err := s.RegisterTemplate(def); err != nil {
		return models.TemplateDefinition{}, err
	}
	return s.GetTemplate(newID)
}

// ExportTemplate serialises a template to portable JSON. Dates inside
// parameter defaults are normalised to ISO-8601 strings by encoding/json.
func (s *ConstraintTemplateSystem) ExportTemplate(id string) ([]byte, error) {
	def, err := s.GetTemplate(id)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(def, "", "  ")
}

// ImportTemplate registers a template from exported JSON.
func (s *ConstraintTemplateSystem) ImportTemplate(data []byte) (models.TemplateDefinition, error) {
	var def models.TemplateDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return models.TemplateDefinition{}, appErrors.Wrap(err,
			appErrors.ErrTemplateInvalid.Code, appErrors.ErrTemplateInvalid.Status, "malformed template document")
	}
	if err := s.RegisterTemplate(def); err != nil {
		return models.TemplateDefinition{}, err
	}
	return s.GetTemplate(def.ID)
}

// evaluatorFor returns the cached evaluator for (template, params) or builds
// and caches a new one.
func (s *ConstraintTemplateSystem) evaluatorFor(def models.TemplateDefinition, params map[string]any) (models.ConstraintEvaluator, error) {
	key := def.ID + "|" + parameterSignature(params)

	s.mu.RLock()
	cached, ok := s.compiled[key]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	expr, err := CompileExpr(substituteParams(def.EvaluatorTemplate))
	if err != nil {
		return nil, err
	}
	evaluator := buildTemplateEvaluator(def, expr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.compiled[key]; ok {
		return existing, nil
	}
	s.compiled[key] = evaluator
	return evaluator, nil
}

// buildTemplateEvaluator wraps a compiled expression as a per-game constraint
// evaluator. The expression must hold for every in-scope game; each failing
// game becomes a violation.
func buildTemplateEvaluator(def models.TemplateDefinition, expr *CompiledExpr) models.ConstraintEvaluator {
	return func(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
		var violations []models.Violation
		total := 0
		for _, game := range slot.Games {
			total++
			env := map[string]any{
				"game":   gameEnv(game),
				"params": params,
				"schedule": map[string]any{
					"sport":      slot.Sport,
					"game_count": float64(len(slot.Games)),
				},
			}
			ok, err := expr.EvalBool(env)
			if err != nil {
				return models.ConstraintResult{
					Valid: false,
					Score: 0,
					Violations: []models.Violation{{
						Description: fmt.Sprintf("Evaluation error: %v", err),
						Type:        models.ConflictType(def.Type),
					}},
				}
			}
			if !ok {
				violations = append(violations, models.Violation{
					Description: fmt.Sprintf("%s: game %s violates %s", def.Name, game.ID, def.ID),
					GameIDs:     []string{game.ID},
					TeamIDs:     []string{game.HomeTeamID, game.AwayTeamID},
					Severity:    models.SeverityMinor,
				})
			}
		}
		score := 1.0
		if total > 0 {
			score = 1 - float64(len(violations))/float64(total)
		}
		return models.ConstraintResult{
			Valid:      len(violations) == 0,
			Score:      score,
			Violations: violations,
		}
	}
}

// substituteParams rewrites {{name}} tokens as params.name references so a
// template body compiles once regardless of bound values.
func substituteParams(body string) string {
	out := body
	for strings.Contains(out, paramTokenPattern) {
		start := strings.Index(out, "{{")
		end := strings.Index(out[start:], "}}")
		if end < 0 {
			return out
		}
		name := strings.TrimSpace(out[start+2 : start+end])
		out = out[:start] + "params." + name + out[start+end+2:]
	}
	return out
}

func parameterSignature(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		raw, _ := json.Marshal(params[k])
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(raw)
		b.WriteByte(';')
	}
	return b.String()
}

func validateTemplateDefinition(def models.TemplateDefinition) []string {
	var problems []string
	if def.ID == "" {
		problems = append(problems, "id is required")
	}
	if def.Name == "" {
		problems = append(problems, "name is required")
	}
	if !validConstraintType(def.Type) {
		problems = append(problems, fmt.Sprintf("unknown constraint type %q", def.Type))
	}
	if def.Hardness != models.HardnessHard && def.Hardness != models.HardnessSoft {
		problems = append(problems, fmt.Sprintf("unknown hardness %q", def.Hardness))
	}
	if def.EvaluatorTemplate == "" {
		problems = append(problems, "evaluator template body is required")
	}
	declared := map[string]struct{}{}
	for _, p := range def.Parameters {
		if p.Name == "" {
			problems = append(problems, "parameter with empty name")
			continue
		}
		if _, dup := declared[p.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate parameter %q", p.Name))
		}
		declared[p.Name] = struct{}{}
		if !validParameterType(p.Type) {
			problems = append(problems, fmt.Sprintf("parameter %q has unknown type %q", p.Name, p.Type))
		}
		if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
			problems = append(problems, fmt.Sprintf("parameter %q has min above max", p.Name))
		}
	}
	for _, token := range paramTokens(def.EvaluatorTemplate) {
		if _, ok := declared[token]; !ok {
			problems = append(problems, fmt.Sprintf("body references undeclared parameter %q", token))
		}
	}
	return problems
}

func paramTokens(body string) []string {
	var tokens []string
	rest := body
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			return tokens
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			return tokens
		}
		tokens = append(tokens, strings.TrimSpace(rest[start+2:start+end]))
		rest = rest[start+end+2:]
	}
}

// resolveParameters merges supplied values with declared defaults, validating
// types and bounds. All violations are reported together.
func resolveParameters(def models.TemplateDefinition, supplied map[string]any) (map[string]any, []string) {
	var problems []string
	resolved := make(map[string]any, len(def.Parameters))
	declared := map[string]models.ParameterDef{}
	for _, p := range def.Parameters {
		declared[p.Name] = p
		value, present := supplied[p.Name]
		if !present {
			if p.Default != nil {
				value = p.Default
			} else if p.Required {
				problems = append(problems, fmt.Sprintf("required parameter %q missing", p.Name))
				continue
			} else {
				continue
			}
		}
		coerced, err := coerceParameter(p, value)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		resolved[p.Name] = coerced
	}
	for name := range supplied {
		if _, ok := declared[name]; !ok {
			problems = append(problems, fmt.Sprintf("parameter %q is not declared by the template", name))
		}
	}
	return resolved, problems
}

func coerceParameter(p models.ParameterDef, value any) (any, error) {
	switch p.Type {
	case models.ParamNumber:
		n, err := toNumber(value)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %v", p.Name, err)
		}
		if p.Min != nil && n < *p.Min {
			return nil, fmt.Errorf("parameter %q below minimum %v", p.Name, *p.Min)
		}
		if p.Max != nil && n > *p.Max {
			return nil, fmt.Errorf("parameter %q above maximum %v", p.Name, *p.Max)
		}
		return n, nil
	case models.ParamString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string, got %T", p.Name, value)
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return s, nil
				}
			}
			return nil, fmt.Errorf("parameter %q must be one of %v", p.Name, p.Enum)
		}
		return s, nil
	case models.ParamBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a boolean, got %T", p.Name, value)
		}
		return b, nil
	case models.ParamDate:
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t, nil
			}
			if t, err := time.Parse("2006-01-02", v); err == nil {
				return t, nil
			}
			return nil, fmt.Errorf("parameter %q is not a valid date: %q", p.Name, v)
		default:
			return nil, fmt.Errorf("parameter %q must be a date, got %T", p.Name, value)
		}
	case models.ParamDuration:
		switch v := value.(type) {
		case time.Duration:
			return v.Hours(), nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %q is not a valid duration: %q", p.Name, v)
			}
			return d.Hours(), nil
		default:
			n, err := toNumber(v)
			if err != nil {
				return nil, fmt.Errorf("parameter %q must be a duration, got %T", p.Name, value)
			}
			return n, nil
		}
	case models.ParamList:
		switch v := value.(type) {
		case []any:
			return v, nil
		case []string:
			out := make([]any, len(v))
			for i, s := range v {
				out[i] = s
			}
			return out, nil
		default:
			return nil, fmt.Errorf("parameter %q must be a list, got %T", p.Name, value)
		}
	}
	return nil, fmt.Errorf("parameter %q has unsupported type %q", p.Name, p.Type)
}

func validateScope(req models.ScopeRequirements, scope models.ConstraintScope) []string {
	var problems []string
	if req.RequiresSports && len(scope.Sports) == 0 {
		problems = append(problems, "scope must name at least one sport")
	}
	if req.RequiresTeams && len(scope.Teams) == 0 {
		problems = append(problems, "scope must name at least one team")
	}
	if req.RequiresVenues && len(scope.Venues) == 0 {
		problems = append(problems, "scope must name at least one venue")
	}
	return problems
}

func validConstraintType(t models.ConstraintType) bool {
	switch t {
	case models.ConstraintTypeTemporal, models.ConstraintTypeVenue, models.ConstraintTypeTeam,
		models.ConstraintTypeTravel, models.ConstraintTypeBroadcast, models.ConstraintTypeAcademic,
		models.ConstraintTypeCompliance, models.ConstraintTypeCompetitive:
		return true
	}
	return false
}

func validParameterType(t models.ParameterType) bool {
	switch t {
	case models.ParamNumber, models.ParamString, models.ParamBool,
		models.ParamDate, models.ParamList, models.ParamDuration:
		return true
	}
	return false
}

func derivePriority(hardness models.Hardness, weight float64) int {
	base := 0
	if hardness == models.HardnessHard {
		base = 100
	}
	return base + int(weight*10)
}

func gameEnv(g models.Game) map[string]any {
	meta := make(map[string]any, len(g.Metadata))
	for k, v := range g.Metadata {
		meta[k] = v
	}
	return map[string]any{
		"id":           g.ID,
		"home_team_id": g.HomeTeamID,
		"away_team_id": g.AwayTeamID,
		"venue_id":     g.VenueID,
		"sport":        g.Sport,
		"date":         g.Date,
		"day_of_week":  strings.ToLower(g.Date.Weekday().String()),
		"tv_network":   g.TVNetwork,
		"metadata":     meta,
	}
}
