package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/models"
	"github.com/flexsched/engine/internal/repository"
	appErrors "github.com/flexsched/engine/pkg/errors"
)

// Evaluation modes. Quick checks hard constraints only, full walks everything
// sequentially, parallel fans out across the worker pool.
const (
	ModeQuick    = "quick"
	ModeFull     = "full"
	ModeParallel = "parallel"
)

// EvaluateRequest selects what to evaluate and how.
type EvaluateRequest struct {
	Schedule      *models.Schedule
	ConstraintIDs []string
	Mode          string
}

// EvaluationReport is the aggregate verdict for one schedule evaluation.
type EvaluationReport struct {
	ScheduleID      string              `json:"schedule_id"`
	Mode            string              `json:"mode"`
	Satisfied       bool                `json:"satisfied"`
	Score           float64             `json:"score"`
	ConstraintCount int                 `json:"constraint_count"`
	HardViolations  int                 `json:"hard_violations"`
	SoftViolations  int                 `json:"soft_violations"`
	Violations      []models.Violation  `json:"violations,omitempty"`
	Suggestions     []string            `json:"suggestions,omitempty"`
	Outcomes        []EvaluationOutcome `json:"outcomes"`
	Duration        time.Duration       `json:"duration"`
	FromCache       bool                `json:"from_cache"`
}

// EvaluationService is the engine's front door for schedule scoring. Verdicts
// for unchanged schedule versions are served from cache when available.
type EvaluationService struct {
	evaluator    *ParallelEvaluator
	cache        *repository.CacheRepository
	metrics      *MetricsService
	logger       *zap.Logger
	cacheTTL     time.Duration
	cacheEnabled bool
}

// EvaluationConfig wires the service's collaborators.
type EvaluationConfig struct {
	Evaluator    *ParallelEvaluator
	Cache        *repository.CacheRepository
	Metrics      *MetricsService
	Logger       *zap.Logger
	CacheTTL     time.Duration
	CacheEnabled bool
}

// NewEvaluationService builds the service.
func NewEvaluationService(cfg EvaluationConfig) *EvaluationService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &EvaluationService{
		evaluator:    cfg.Evaluator,
		cache:        cfg.Cache,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		cacheTTL:     cfg.CacheTTL,
		cacheEnabled: cfg.CacheEnabled,
	}
}

// EvaluateSchedule runs the requested evaluation mode over the schedule's
// constraints and aggregates a weighted verdict. Cache failures other than a
// miss are logged and the evaluation computed anyway.
func (s *EvaluationService) EvaluateSchedule(ctx context.Context, req EvaluateRequest) (*EvaluationReport, error) {
	if req.Schedule == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule is required")
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeFull
	}

	constraints, err := s.selectConstraints(req)
	if err != nil {
		return nil, err
	}

	cacheKey := s.cacheKey(req.Schedule, mode, constraints)
	if s.cacheUsable() {
		start := time.Now()
		var cached EvaluationReport
		err := s.cache.Get(ctx, cacheKey, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true, time.Since(start))
			cached.FromCache = true
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("evaluation cache lookup failed", "key", cacheKey, "error", err)
		}
	}

	start := time.Now()
	slot := req.Schedule.Slot()

	var outcomes []EvaluationOutcome
	switch mode {
	case ModeQuick:
		outcomes = evaluateSequential(filterHard(constraints), slot)
	case ModeFull:
		outcomes = evaluateSequential(constraints, slot)
	case ModeParallel:
		if s.evaluator == nil {
			return nil, appErrors.Clone(appErrors.ErrInternal, "parallel evaluation unavailable")
		}
		outcomes, err = s.evaluator.EvaluateBatch(ctx, constraints, slot)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrEvaluation.Code, appErrors.ErrEvaluation.Status, "parallel evaluation failed")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown evaluation mode %q", mode))
	}

	report := buildReport(req.Schedule.ID, mode, constraints, outcomes)
	report.Duration = time.Since(start)

	if s.cacheUsable() {
		if err := s.cache.Set(ctx, cacheKey, report, s.cacheTTL); err != nil {
			s.logger.Sugar().Warnw("evaluation cache store failed", "key", cacheKey, "error", err)
		}
	}
	return report, nil
}

// InvalidateSchedule drops cached verdicts after a schedule mutates.
func (s *EvaluationService) InvalidateSchedule(ctx context.Context, scheduleID string) error {
	if !s.cacheUsable() {
		return nil
	}
	return s.cache.InvalidateSchedule(ctx, scheduleID)
}

func (s *EvaluationService) cacheUsable() bool {
	return s.cacheEnabled && s.cache != nil
}

func (s *EvaluationService) selectConstraints(req EvaluateRequest) ([]models.UnifiedConstraint, error) {
	pool := req.Schedule.Constraints
	if len(pool) == 0 {
		pool = BuiltinConstraints()
	}
	if len(req.ConstraintIDs) == 0 {
		return pool, nil
	}
	byID := make(map[string]models.UnifiedConstraint, len(pool))
	for _, c := range pool {
		byID[c.ID] = c
	}
	out := make([]models.UnifiedConstraint, 0, len(req.ConstraintIDs))
	for _, id := range req.ConstraintIDs {
		c, ok := byID[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("constraint %q not found", id))
		}
		out = append(out, c)
	}
	return out, nil
}

// cacheKey identifies one (schedule version, mode, constraint set) verdict.
func (s *EvaluationService) cacheKey(schedule *models.Schedule, mode string, constraints []models.UnifiedConstraint) string {
	ids := make([]string, len(constraints))
	for i, c := range constraints {
		ids[i] = c.ID
	}
	sort.Strings(ids)
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.Join(ids, ",")))
	return fmt.Sprintf("eval:%s:v%d:%s:%x", schedule.ID, schedule.Version, mode, h.Sum64())
}

func evaluateSequential(constraints []models.UnifiedConstraint, slot models.ScheduleSlot) []EvaluationOutcome {
	outcomes := make([]EvaluationOutcome, len(constraints))
	for i, c := range constraints {
		outcomes[i] = evaluateInline(c, slot)
	}
	return outcomes
}

func filterHard(constraints []models.UnifiedConstraint) []models.UnifiedConstraint {
	out := make([]models.UnifiedConstraint, 0, len(constraints))
	for _, c := range constraints {
		if c.Hardness == models.HardnessHard {
			out = append(out, c)
		}
	}
	return out
}

func buildReport(scheduleID, mode string, constraints []models.UnifiedConstraint, outcomes []EvaluationOutcome) *EvaluationReport {
	report := &EvaluationReport{
		ScheduleID:      scheduleID,
		Mode:            mode,
		Satisfied:       true,
		ConstraintCount: len(outcomes),
		Outcomes:        outcomes,
	}

	byID := make(map[string]models.UnifiedConstraint, len(constraints))
	for _, c := range constraints {
		byID[c.ID] = c
	}

	var weightedSum, weightTotal float64
	seenSuggestions := map[string]struct{}{}
	for _, out := range outcomes {
		c := byID[out.ConstraintID]
		weight := c.Weight
		if weight <= 0 {
			weight = 1
		}
		weightedSum += out.Result.Score * weight
		weightTotal += weight

		if !out.Result.Valid {
			if c.Hardness == models.HardnessHard {
				report.Satisfied = false
				report.HardViolations += len(out.Result.Violations)
			} else {
				report.SoftViolations += len(out.Result.Violations)
			}
			report.Violations = append(report.Violations, out.Result.Violations...)
		}
		for _, suggestion := range out.Result.Suggestions {
			if _, dup := seenSuggestions[suggestion]; dup {
				continue
			}
			seenSuggestions[suggestion] = struct{}{}
			report.Suggestions = append(report.Suggestions, suggestion)
		}
	}
	if weightTotal > 0 {
		report.Score = weightedSum / weightTotal
	} else {
		report.Score = 1
	}
	return report
}
