package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/models"
)

type conflictFrequencySource interface {
	FrequencyFor(conflictType models.ConflictType) float64
}

// ConflictAnalyzer runs constraint evaluators against a schedule and turns
// their violations into classified, scored conflicts.
type ConflictAnalyzer struct {
	evaluator *ParallelEvaluator
	frequency conflictFrequencySource
	logger    *zap.Logger
}

// NewConflictAnalyzer wires analyzer dependencies.
func NewConflictAnalyzer(evaluator *ParallelEvaluator, frequency conflictFrequencySource, logger *zap.Logger) *ConflictAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictAnalyzer{evaluator: evaluator, frequency: frequency, logger: logger}
}

// DetectConflicts evaluates the schedule's active constraints (built-in rules
// plus any attached constraints) and groups violations into conflicts.
// Parallelizable constraints go through the worker pool; the rest run inline.
func (a *ConflictAnalyzer) DetectConflicts(ctx context.Context, schedule *models.Schedule) ([]models.Conflict, error) {
	constraints := a.activeConstraints(schedule)
	slot := schedule.Slot()

	var parallel, serial []models.UnifiedConstraint
	for _, c := range constraints {
		if c.Parallelizable && a.evaluator != nil {
			parallel = append(parallel, c)
		} else {
			serial = append(serial, c)
		}
	}

	outcomes := make([]EvaluationOutcome, 0, len(constraints))
	if len(parallel) > 0 {
		batch, err := a.evaluator.EvaluateBatch(ctx, parallel, slot)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, batch...)
	}
	for _, c := range serial {
		outcomes = append(outcomes, evaluateInline(c, slot))
	}

	var conflicts []models.Conflict
	total := len(schedule.Games)
	for _, outcome := range outcomes {
		if outcome.Error != "" {
			a.logger.Sugar().Warnw("constraint evaluation failed during detection",
				"constraint_id", outcome.ConstraintID, "error", outcome.Error)
			continue
		}
		for _, v := range outcome.Result.Violations {
			conflicts = append(conflicts, a.buildConflict(outcome.ConstraintID, v, total))
		}
	}
	return conflicts, nil
}

// AnalyzeConflict produces pattern observations and a risk assessment for a
// single conflict.
func (a *ConflictAnalyzer) AnalyzeConflict(ctx context.Context, conflict models.Conflict, schedule *models.Schedule) models.ConflictAnalysis {
	var patterns []string
	if conflict.Metadata.HistoricalFrequency >= 0.5 {
		patterns = append(patterns, fmt.Sprintf("recurring %s conflicts in recent seasons", conflict.Type))
	}
	if conflict.Metadata.CascadeRisk >= 0.6 {
		patterns = append(patterns, "high cascade potential across dependent games")
	}
	if len(conflict.TeamIDs) > 1 {
		patterns = append(patterns, "multi-team impact")
	}
	if conflict.Type == models.ConflictVenueDoubleBooking && len(conflict.GameIDs) > 0 {
		if g := schedule.GameByID(conflict.GameIDs[0]); g != nil {
			patterns = append(patterns, fmt.Sprintf("venue hotspot %s", g.VenueID))
		}
	}

	return models.ConflictAnalysis{
		ConflictID: conflict.ID,
		Patterns:   patterns,
		Risk: models.RiskAssessment{
			ComplianceRisk: isComplianceType(conflict.Type),
			ReputationRisk: conflict.Severity == models.SeverityCritical || conflict.Type == models.ConflictTVSlot,
			CascadeRisk:    conflict.Metadata.CascadeRisk,
		},
	}
}

func (a *ConflictAnalyzer) activeConstraints(schedule *models.Schedule) []models.UnifiedConstraint {
	if len(schedule.Constraints) > 0 {
		return schedule.Constraints
	}
	return BuiltinConstraints()
}

func (a *ConflictAnalyzer) buildConflict(constraintID string, v models.Violation, totalGames int) models.Conflict {
	severity := v.Severity
	if severity == "" {
		severity = models.SeverityMinor
	}
	cascade := cascadeRisk(severity, len(v.GameIDs), totalGames)
	frequency := a.frequencyFor(v.Type)

	return models.Conflict{
		ID:           uuid.NewString(),
		Type:         v.Type,
		Severity:     severity,
		Description:  v.Description,
		ConstraintID: constraintID,
		GameIDs:      v.GameIDs,
		TeamIDs:      v.TeamIDs,
		Metadata: models.ConflictMetadata{
			CascadeRisk:         cascade,
			HistoricalFrequency: frequency,
			ConflictScore:       conflictScore(severity, cascade, frequency),
		},
		DetectedAt: time.Now().UTC(),
	}
}

func (a *ConflictAnalyzer) frequencyFor(conflictType models.ConflictType) float64 {
	if a.frequency != nil {
		return a.frequency.FrequencyFor(conflictType)
	}
	return defaultFrequency(conflictType)
}

// evaluateInline mirrors the worker-side error envelope for constraints
// executed on the caller's goroutine.
func evaluateInline(c models.UnifiedConstraint, slot models.ScheduleSlot) (outcome EvaluationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = errorOutcome(c.ID, fmt.Sprintf("Evaluation error: %v", r))
		}
	}()
	if c.Evaluator == nil {
		return errorOutcome(c.ID, "Evaluation error: constraint has no evaluator")
	}
	return EvaluationOutcome{ConstraintID: c.ID, Result: c.Evaluator(slot, c.Parameters)}
}

func cascadeRisk(severity models.ConflictSeverity, affectedGames, totalGames int) float64 {
	base := float64(severity.Rank()) / 6
	if totalGames > 0 {
		base += 0.5 * float64(affectedGames) / float64(totalGames)
	}
	if base > 1 {
		base = 1
	}
	return base
}

func conflictScore(severity models.ConflictSeverity, cascade, frequency float64) float64 {
	score := 0.4*(float64(severity.Rank())/3) + 0.3*cascade + 0.3*frequency
	if score > 1 {
		score = 1
	}
	return score
}

func isComplianceType(t models.ConflictType) bool {
	switch t {
	case models.ConflictSundayRestriction, models.ConflictAcademicCalendar, models.ConflictChampionshipDate:
		return true
	default:
		return false
	}
}

// defaultFrequency is the static prior used when no history is available.
func defaultFrequency(t models.ConflictType) float64 {
	switch t {
	case models.ConflictVenueDoubleBooking, models.ConflictRestViolation:
		return 0.6
	case models.ConflictTVSlot, models.ConflictBackToBack:
		return 0.5
	case models.ConflictTravelBurden, models.ConflictHomeAwayImbalance:
		return 0.4
	default:
		return 0.3
	}
}
