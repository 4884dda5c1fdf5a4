package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexsched/engine/internal/models"
)

func newEvaluationService(t *testing.T, withPool bool) *EvaluationService {
	t.Helper()
	cfg := EvaluationConfig{}
	if withPool {
		cfg.Evaluator = startedEvaluator(t, EvaluatorConfig{Workers: 2})
	}
	return NewEvaluationService(cfg)
}

func scoredConstraint(id string, hardness models.Hardness, weight, score float64) models.UnifiedConstraint {
	valid := score >= 1
	return models.UnifiedConstraint{
		ID:       id,
		Name:     id,
		Type:     models.ConstraintTypeTemporal,
		Hardness: hardness,
		Weight:   weight,
		Evaluator: func(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
			result := models.ConstraintResult{Valid: valid, Score: score}
			if !valid {
				result.Violations = []models.Violation{{Description: id + " violated"}}
				result.Suggestions = []string{"move a game off the blocked slot"}
			}
			return result
		},
	}
}

func TestEvaluateScheduleFullUsesBuiltins(t *testing.T) {
	s := newEvaluationService(t, false)
	sched := fixtureSchedule()

	report, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{Schedule: sched})
	require.NoError(t, err)

	assert.Equal(t, "sched-1", report.ScheduleID)
	assert.Equal(t, ModeFull, report.Mode)
	assert.Equal(t, len(BuiltinConstraints()), report.ConstraintCount)
	assert.True(t, report.Satisfied)
	assert.Equal(t, 1.0, report.Score)
	assert.Zero(t, report.HardViolations)
	assert.False(t, report.FromCache)
}

func TestEvaluateScheduleQuickSkipsSoftConstraints(t *testing.T) {
	s := newEvaluationService(t, false)
	sched := fixtureSchedule()
	sched.Constraints = []models.UnifiedConstraint{
		scoredConstraint("hard-ok", models.HardnessHard, 1, 1),
		scoredConstraint("soft-broken", models.HardnessSoft, 1, 0.5),
	}

	report, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{Schedule: sched, Mode: ModeQuick})
	require.NoError(t, err)

	assert.Equal(t, 1, report.ConstraintCount)
	assert.True(t, report.Satisfied)
	assert.Zero(t, report.SoftViolations, "soft constraints are skipped in quick mode")
}

func TestEvaluateScheduleWeightedScore(t *testing.T) {
	s := newEvaluationService(t, false)
	sched := fixtureSchedule()
	sched.Constraints = []models.UnifiedConstraint{
		scoredConstraint("heavy", models.HardnessSoft, 3, 1),
		scoredConstraint("light", models.HardnessSoft, 1, 0),
	}

	report, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{Schedule: sched})
	require.NoError(t, err)

	assert.InDelta(t, 0.75, report.Score, 1e-9)
	assert.True(t, report.Satisfied, "soft violations alone leave the schedule satisfied")
	assert.Equal(t, 1, report.SoftViolations)
	assert.Equal(t, []string{"move a game off the blocked slot"}, report.Suggestions)
}

func TestEvaluateScheduleHardViolationUnsatisfied(t *testing.T) {
	s := newEvaluationService(t, false)
	sched := fixtureDoubleBooking()

	report, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{
		Schedule:      sched,
		ConstraintIDs: []string{"builtin-venue-double-booking"},
	})
	require.NoError(t, err)

	assert.False(t, report.Satisfied)
	assert.Equal(t, 1, report.ConstraintCount)
	assert.NotZero(t, report.HardViolations)
	assert.Less(t, report.Score, 1.0)
}

func TestEvaluateScheduleParallelMatchesSequential(t *testing.T) {
	s := newEvaluationService(t, true)
	sched := fixtureDoubleBooking()

	parallel, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{Schedule: sched, Mode: ModeParallel})
	require.NoError(t, err)
	sequential, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{Schedule: sched, Mode: ModeFull})
	require.NoError(t, err)

	assert.Equal(t, sequential.Satisfied, parallel.Satisfied)
	assert.InDelta(t, sequential.Score, parallel.Score, 1e-9)
	assert.Equal(t, sequential.HardViolations, parallel.HardViolations)
	assert.Equal(t, sequential.ConstraintCount, parallel.ConstraintCount)
}

func TestEvaluateScheduleParallelWithoutPool(t *testing.T) {
	s := newEvaluationService(t, false)
	_, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{
		Schedule: fixtureSchedule(),
		Mode:     ModeParallel,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallel evaluation unavailable")
}

func TestEvaluateScheduleInputErrors(t *testing.T) {
	s := newEvaluationService(t, false)

	_, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule is required")

	_, err = s.EvaluateSchedule(context.Background(), EvaluateRequest{
		Schedule: fixtureSchedule(),
		Mode:     "turbo",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown evaluation mode "turbo"`)

	_, err = s.EvaluateSchedule(context.Background(), EvaluateRequest{
		Schedule:      fixtureSchedule(),
		ConstraintIDs: []string{"no-such-constraint"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `constraint "no-such-constraint" not found`)
}

func TestEvaluateScheduleErroredConstraintCountsAgainstScore(t *testing.T) {
	s := newEvaluationService(t, false)
	sched := fixtureSchedule()
	sched.Constraints = []models.UnifiedConstraint{
		{ID: "no-evaluator", Hardness: models.HardnessHard, Weight: 1},
		scoredConstraint("fine", models.HardnessSoft, 1, 1),
	}

	report, err := s.EvaluateSchedule(context.Background(), EvaluateRequest{Schedule: sched})
	require.NoError(t, err)

	assert.False(t, report.Satisfied)
	assert.InDelta(t, 0.5, report.Score, 1e-9)
}

func TestCacheKeyIgnoresConstraintOrder(t *testing.T) {
	s := newEvaluationService(t, false)
	sched := fixtureSchedule()
	a := scoredConstraint("a", models.HardnessSoft, 1, 1)
	b := scoredConstraint("b", models.HardnessSoft, 1, 1)

	ab := s.cacheKey(sched, ModeFull, []models.UnifiedConstraint{a, b})
	ba := s.cacheKey(sched, ModeFull, []models.UnifiedConstraint{b, a})
	assert.Equal(t, ab, ba)

	sched.Version++
	bumped := s.cacheKey(sched, ModeFull, []models.UnifiedConstraint{a, b})
	assert.NotEqual(t, ab, bumped, "version bump changes the key")

	quick := s.cacheKey(sched, ModeQuick, []models.UnifiedConstraint{a, b})
	assert.NotEqual(t, bumped, quick, "mode is part of the key")
}

func TestInvalidateScheduleWithoutCache(t *testing.T) {
	s := newEvaluationService(t, false)
	assert.NoError(t, s.InvalidateSchedule(context.Background(), "sched-1"))
}
