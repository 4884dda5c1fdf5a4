package service

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/models"
)

// Feature names for the resolver's scoring vector.
const (
	featSeverity        = "severity"
	featCascadeRisk     = "cascade_risk"
	featAffectedGames   = "affected_games"
	featAffectedTeams   = "affected_teams"
	featComplexity      = "strategy_complexity"
	featFrequency       = "historical_frequency"
	featDensity         = "schedule_density"
	featFlexibility     = "remaining_flexibility"
	featPatternMatch    = "pattern_match"
	featComplianceRisk  = "compliance_risk"
	featReputationRisk  = "reputation_risk"
	historyScoreBlend   = 0.3
	featureScoreBlend   = 0.7
	learningStepFactor  = 0.01
	maxNewConflictScore = 0.5
)

func defaultFeatureWeights() map[string]float64 {
	return map[string]float64{
		featSeverity:       0.15,
		featCascadeRisk:    0.12,
		featAffectedGames:  0.08,
		featAffectedTeams:  0.05,
		featComplexity:     -0.10,
		featFrequency:      0.08,
		featDensity:        -0.05,
		featFlexibility:    0.12,
		featPatternMatch:   0.10,
		featComplianceRisk: 0.15,
		featReputationRisk: 0.10,
	}
}

// ResolverConfig tunes acceptance behaviour.
type ResolverConfig struct {
	ConfidenceThreshold float64
	Logger              *zap.Logger
	Metrics             *MetricsService
}

// SmartConflictResolver selects, validates and emits resolutions for detected
// conflicts. Conflicts are resolved sequentially in priority order so later
// resolutions see the effects of earlier ones; per-conflict strategy scoring
// is a pure function of features and history.
type SmartConflictResolver struct {
	analyzer   *ConflictAnalyzer
	strategies *ResolutionStrategies
	history    *ResolutionHistoryService
	threshold  float64
	logger     *zap.Logger
	metrics    *MetricsService

	// The weight table is owned by this resolver instance and guarded for
	// concurrent callers of RecordOutcome.
	weightsMu sync.Mutex
	weights   map[string]float64
}

// NewSmartConflictResolver wires resolver dependencies.
func NewSmartConflictResolver(analyzer *ConflictAnalyzer, strategies *ResolutionStrategies, history *ResolutionHistoryService, cfg ResolverConfig) *SmartConflictResolver {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &SmartConflictResolver{
		analyzer:   analyzer,
		strategies: strategies,
		history:    history,
		threshold:  cfg.ConfidenceThreshold,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		weights:    defaultFeatureWeights(),
	}
}

// ResolveConflicts processes conflicts in strict priority order and returns
// accepted resolutions keyed by conflict id. Conflicts with no valid
// resolution are absent from the map, never an error.
func (r *SmartConflictResolver) ResolveConflicts(ctx context.Context, schedule *models.Schedule, conflicts []models.Conflict) (map[string]models.Resolution, error) {
	ordered := prioritizeConflicts(conflicts)
	working := schedule.Clone()
	out := make(map[string]models.Resolution, len(ordered))

	for _, conflict := range ordered {
		resolution, next := r.resolveOne(ctx, working, conflict)
		if resolution == nil {
			r.logger.Sugar().Infow("conflict left unresolved",
				"conflict_id", conflict.ID, "type", conflict.Type, "severity", conflict.Severity)
			if r.metrics != nil {
				r.metrics.ObserveResolution(string(conflict.Type), "", false)
			}
			continue
		}
		out[conflict.ID] = *resolution
		working = next
		if r.metrics != nil {
			r.metrics.ObserveResolution(string(conflict.Type), string(resolution.Strategy), true)
		}

		if r.history != nil {
			if err := r.history.RecordResolution(ctx, *resolution, conflict.Type, true, nil); err != nil {
				r.logger.Sugar().Warnw("failed to record resolution", "resolution_id", resolution.ID, "error", err)
			}
		}
	}
	return out, nil
}

// RecordOutcome feeds an observed real-world outcome back into the ledger.
// For implemented resolutions the feature weights receive the competitive
// balance nudge; the rule is a deliberate placeholder heuristic, not a
// gradient step.
func (r *SmartConflictResolver) RecordOutcome(ctx context.Context, resolution models.Resolution, conflictType models.ConflictType, success bool, feedback *models.SatisfactionFeedback) error {
	if r.history != nil {
		if err := r.history.RecordResolution(ctx, resolution, conflictType, success, feedback); err != nil {
			return err
		}
	}
	if resolution.Status == models.ResolutionImplemented {
		r.adjustWeights(resolution.Impact.CompetitiveBalance * learningStepFactor)
	}
	return nil
}

// WeightSnapshot returns a copy of the current feature weights.
func (r *SmartConflictResolver) WeightSnapshot() map[string]float64 {
	r.weightsMu.Lock()
	defer r.weightsMu.Unlock()
	out := make(map[string]float64, len(r.weights))
	for k, v := range r.weights {
		out[k] = v
	}
	return out
}

// resolveOne walks the scored candidate strategies for one conflict and
// returns the first resolution that validates, plus the advanced working
// schedule. A panic during generation is contained to this conflict.
func (r *SmartConflictResolver) resolveOne(ctx context.Context, working *models.Schedule, conflict models.Conflict) (resolution *models.Resolution, next *models.Schedule) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Sugar().Errorw("strategy generation panicked",
				"conflict_id", conflict.ID, "panic", rec)
			resolution, next = nil, nil
		}
	}()

	analysis := r.analyzer.AnalyzeConflict(ctx, conflict, working)
	ranked := r.rankStrategies(conflict, analysis, working)

	baseline, err := r.analyzer.DetectConflicts(ctx, working)
	if err != nil {
		r.logger.Sugar().Warnw("baseline detection failed", "conflict_id", conflict.ID, "error", err)
		return nil, nil
	}
	baselineKeys := conflictKeySet(baseline)
	baselineKeys[conflict.Key()] = struct{}{}

	for _, candidate := range ranked {
		generated := r.strategies.Generate(candidate.strategy, conflict, working)
		if generated == nil {
			continue
		}
		if generated.Feasibility < r.threshold {
			continue
		}

		clone := working.Clone()
		if err := ApplyResolution(clone, *generated); err != nil {
			r.logger.Sugar().Warnw("resolution failed to apply",
				"conflict_id", conflict.ID, "strategy", candidate.strategy, "error", err)
			continue
		}

		detected, err := r.analyzer.DetectConflicts(ctx, clone)
		if err != nil {
			r.logger.Sugar().Warnw("validation detection failed",
				"conflict_id", conflict.ID, "strategy", candidate.strategy, "error", err)
			continue
		}
		if !validAfterApply(detected, baselineKeys) {
			continue
		}

		generated.RecommendationScore = candidate.score
		generated.Status = models.ResolutionAccepted
		return generated, clone
	}
	return nil, nil
}

type scoredStrategy struct {
	strategy models.ResolutionStrategy
	score    float64
}

// rankStrategies scores every candidate and sorts descending. The sort is
// stable, so candidate-list order breaks ties.
func (r *SmartConflictResolver) rankStrategies(conflict models.Conflict, analysis models.ConflictAnalysis, schedule *models.Schedule) []scoredStrategy {
	candidates := CandidateStrategies(conflict.Type)
	scored := make([]scoredStrategy, 0, len(candidates))
	for i, strategy := range candidates {
		features := r.extractFeatures(conflict, analysis, schedule, strategy, i == 0)
		featureScore := r.weightedScore(features)
		empirical := 0.5
		if r.history != nil {
			empirical = r.history.SuccessRate(conflict.Type, strategy)
		}
		score := featureScoreBlend*featureScore + historyScoreBlend*empirical
		scored = append(scored, scoredStrategy{strategy: strategy, score: clamp01(score)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	return scored
}

// extractFeatures builds the 11-dimensional vector for one (conflict,
// strategy) pair.
func (r *SmartConflictResolver) extractFeatures(conflict models.Conflict, analysis models.ConflictAnalysis, schedule *models.Schedule, strategy models.ResolutionStrategy, topCandidate bool) map[string]float64 {
	density := scheduleDensity(schedule)
	patternMatch := 0.5
	if topCandidate {
		patternMatch += 0.2
	}
	if len(analysis.Patterns) > 2 {
		patternMatch += 0.1
	}

	features := map[string]float64{
		featSeverity:       float64(conflict.Severity.Rank()) / 3,
		featCascadeRisk:    conflict.Metadata.CascadeRisk,
		featAffectedGames:  normalizeCount(len(conflict.GameIDs)),
		featAffectedTeams:  normalizeCount(len(conflict.TeamIDs)),
		featComplexity:     strategyComplexity[strategy],
		featFrequency:      conflict.Metadata.HistoricalFrequency,
		featDensity:        density,
		featFlexibility:    1 - density,
		featPatternMatch:   clamp01(patternMatch),
		featComplianceRisk: boolFeature(analysis.Risk.ComplianceRisk),
		featReputationRisk: boolFeature(analysis.Risk.ReputationRisk),
	}
	return features
}

func (r *SmartConflictResolver) weightedScore(features map[string]float64) float64 {
	r.weightsMu.Lock()
	defer r.weightsMu.Unlock()
	var sum float64
	for name, value := range features {
		sum += value * r.weights[name]
	}
	return clamp01(sum + 0.35)
}

func (r *SmartConflictResolver) adjustWeights(delta float64) {
	r.weightsMu.Lock()
	defer r.weightsMu.Unlock()
	for name := range r.weights {
		w := r.weights[name] + delta
		if w > 1 {
			w = 1
		}
		if w < -1 {
			w = -1
		}
		r.weights[name] = w
	}
}

// prioritizeConflicts orders conflicts by severity, then cascade risk, then
// affected-game count. The order is total for any two conflicts differing on
// at least one key.
func prioritizeConflicts(conflicts []models.Conflict) []models.Conflict {
	ordered := make([]models.Conflict, len(conflicts))
	copy(ordered, conflicts)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.Metadata.CascadeRisk != b.Metadata.CascadeRisk {
			return a.Metadata.CascadeRisk > b.Metadata.CascadeRisk
		}
		return len(a.GameIDs) > len(b.GameIDs)
	})
	return ordered
}

// validAfterApply accepts a candidate iff re-detection produced no new
// critical conflict and every new conflict scores below the acceptance bar.
func validAfterApply(detected []models.Conflict, baselineKeys map[string]struct{}) bool {
	for _, c := range detected {
		if _, existed := baselineKeys[c.Key()]; existed {
			continue
		}
		if c.Severity == models.SeverityCritical {
			return false
		}
		if c.Metadata.ConflictScore >= maxNewConflictScore {
			return false
		}
	}
	return true
}

func conflictKeySet(conflicts []models.Conflict) map[string]struct{} {
	keys := make(map[string]struct{}, len(conflicts))
	for _, c := range conflicts {
		keys[c.Key()] = struct{}{}
	}
	return keys
}

func scheduleDensity(schedule *models.Schedule) float64 {
	if len(schedule.Games) == 0 || len(schedule.Venues) == 0 {
		return 0
	}
	days := map[string]struct{}{}
	for _, g := range schedule.Games {
		days[g.Date.Format("2006-01-02")] = struct{}{}
	}
	capacity := float64(len(days) * len(schedule.Venues))
	if capacity == 0 {
		return 0
	}
	return clamp01(float64(len(schedule.Games)) / capacity)
}

func normalizeCount(n int) float64 {
	return clamp01(float64(n) / 10)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
