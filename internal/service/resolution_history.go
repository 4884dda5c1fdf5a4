package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/models"
	"github.com/flexsched/engine/pkg/export"
)

// HistoryStore persists ledger entries.
type HistoryStore interface {
	Append(ctx context.Context, record models.ResolutionRecord) error
	List(ctx context.Context) ([]models.ResolutionRecord, error)
}

type strategyStats struct {
	Attempts  int
	Successes int
}

// ResolutionHistoryService is the append-only outcome ledger. Aggregates are
// kept in memory, keyed by (conflictType, strategy); the backing store only
// grows.
type ResolutionHistoryService struct {
	store  HistoryStore
	logger *zap.Logger

	mu      sync.RWMutex
	stats   map[string]*strategyStats
	byType  map[models.ConflictType]int
	records []models.ResolutionRecord
}

// NewResolutionHistoryService loads existing ledger entries. A malformed or
// unreadable ledger fails closed: the service starts empty with neutral
// priors instead of crashing the resolver.
func NewResolutionHistoryService(store HistoryStore, logger *zap.Logger) *ResolutionHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ResolutionHistoryService{
		store:  store,
		logger: logger,
		stats:  make(map[string]*strategyStats),
		byType: make(map[models.ConflictType]int),
	}
	if store != nil {
		records, err := store.List(context.Background())
		if err != nil {
			logger.Sugar().Warnw("history ledger unreadable, starting with neutral priors", "error", err)
			return s
		}
		for _, record := range records {
			s.absorb(record)
		}
	}
	return s
}

// RecordResolution appends one outcome to the ledger.
func (s *ResolutionHistoryService) RecordResolution(ctx context.Context, resolution models.Resolution, conflictType models.ConflictType, success bool, feedback *models.SatisfactionFeedback) error {
	record := models.ResolutionRecord{
		ID:                  resolution.ID,
		ConflictID:          resolution.ConflictID,
		ConflictType:        conflictType,
		Strategy:            resolution.Strategy,
		Modifications:       resolution.Modifications,
		Impact:              resolution.Impact,
		Feasibility:         resolution.Feasibility,
		RecommendationScore: resolution.RecommendationScore,
		Status:              resolution.Status,
		Success:             success,
		Feedback:            feedback,
		RecordedAt:          time.Now().UTC(),
	}

	if s.store != nil {
		if err := s.store.Append(ctx, record); err != nil {
			return fmt.Errorf("append history record: %w", err)
		}
	}

	s.mu.Lock()
	s.absorbLocked(record)
	s.mu.Unlock()
	return nil
}

// SuccessRate returns the empirical success ratio for the key, defaulting to
// a neutral 0.5 prior when no data exists.
func (s *ResolutionHistoryService) SuccessRate(conflictType models.ConflictType, strategy models.ResolutionStrategy) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.stats[historyKey(conflictType, strategy)]
	if !ok || stats.Attempts == 0 {
		return 0.5
	}
	return float64(stats.Successes) / float64(stats.Attempts)
}

// FrequencyFor reports how often this conflict type shows up in the ledger,
// as a share of all recorded conflicts. Falls back to static priors when the
// ledger is empty.
func (s *ResolutionHistoryService) FrequencyFor(conflictType models.ConflictType) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.records)
	if total == 0 {
		return defaultFrequency(conflictType)
	}
	return float64(s.byType[conflictType]) / float64(total)
}

// RecommendedStrategies orders the conflict type's candidate strategies by
// empirical success rate, highest first. Candidate order breaks ties.
func (s *ResolutionHistoryService) RecommendedStrategies(conflictType models.ConflictType) []models.ResolutionStrategy {
	candidates := CandidateStrategies(conflictType)
	sort.SliceStable(candidates, func(i, j int) bool {
		return s.SuccessRate(conflictType, candidates[i]) > s.SuccessRate(conflictType, candidates[j])
	})
	return candidates
}

// ExportForMLTraining flattens the ledger into feature/label rows.
func (s *ResolutionHistoryService) ExportForMLTraining() []models.TrainingRow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]models.TrainingRow, 0, len(s.records))
	for _, record := range s.records {
		label := 0.0
		if record.Success {
			label = 1.0
		}
		rows = append(rows, models.TrainingRow{
			ConflictType:        string(record.ConflictType),
			Strategy:            string(record.Strategy),
			Feasibility:         record.Feasibility,
			RecommendationScore: record.RecommendationScore,
			TravelDelta:         record.Impact.TravelDelta,
			FanImpact:           record.Impact.FanImpact,
			CompetitiveBalance:  record.Impact.CompetitiveBalance,
			Implemented:         record.Status == models.ResolutionImplemented,
			Label:               label,
		})
	}
	return rows
}

// GenerateLearningReport summarises per-key success rates as readable text.
func (s *ResolutionHistoryService) GenerateLearningReport() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Resolution learning report (%d records)\n", len(s.records))

	keys := make([]string, 0, len(s.stats))
	for key := range s.stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		stats := s.stats[key]
		rate := float64(stats.Successes) / float64(stats.Attempts)
		fmt.Fprintf(&b, "  %-60s attempts=%-4d success_rate=%.2f\n", key, stats.Attempts, rate)
	}
	if len(keys) == 0 {
		b.WriteString("  no outcomes recorded yet\n")
	}
	return b.String()
}

// ReportDataset exposes the aggregates as a tabular dataset for CSV/PDF
// export.
func (s *ResolutionHistoryService) ReportDataset() export.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	headers := []string{"conflict_type", "strategy", "attempts", "successes", "success_rate"}
	keys := make([]string, 0, len(s.stats))
	for key := range s.stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		stats := s.stats[key]
		parts := strings.SplitN(key, "|", 2)
		rows = append(rows, map[string]string{
			"conflict_type": parts[0],
			"strategy":      parts[1],
			"attempts":      fmt.Sprintf("%d", stats.Attempts),
			"successes":     fmt.Sprintf("%d", stats.Successes),
			"success_rate":  fmt.Sprintf("%.2f", float64(stats.Successes)/float64(stats.Attempts)),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func (s *ResolutionHistoryService) absorb(record models.ResolutionRecord) {
	s.mu.Lock()
	s.absorbLocked(record)
	s.mu.Unlock()
}

func (s *ResolutionHistoryService) absorbLocked(record models.ResolutionRecord) {
	key := historyKey(record.ConflictType, record.Strategy)
	stats, ok := s.stats[key]
	if !ok {
		stats = &strategyStats{}
		s.stats[key] = stats
	}
	stats.Attempts++
	if record.Success {
		stats.Successes++
	}
	s.byType[record.ConflictType]++
	s.records = append(s.records, record)
}

func historyKey(conflictType models.ConflictType, strategy models.ResolutionStrategy) string {
	return string(conflictType) + "|" + string(strategy)
}
