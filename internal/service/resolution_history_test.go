package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexsched/engine/internal/models"
)

type memoryHistoryStore struct {
	records []models.ResolutionRecord
	listErr error
}

func (m *memoryHistoryStore) Append(ctx context.Context, record models.ResolutionRecord) error {
	m.records = append(m.records, record)
	return nil
}

func (m *memoryHistoryStore) List(ctx context.Context) ([]models.ResolutionRecord, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.records, nil
}

func record(conflictType models.ConflictType, strategy models.ResolutionStrategy, success bool) models.ResolutionRecord {
	return models.ResolutionRecord{
		ID:           "rec",
		ConflictType: conflictType,
		Strategy:     strategy,
		Success:      success,
	}
}

func TestSuccessRateNeutralPrior(t *testing.T) {
	s := NewResolutionHistoryService(nil, nil)
	assert.Equal(t, 0.5, s.SuccessRate(models.ConflictTVSlot, models.StrategyTimeShift))
}

func TestSuccessRateFromRecords(t *testing.T) {
	store := &memoryHistoryStore{records: []models.ResolutionRecord{
		record(models.ConflictTVSlot, models.StrategyTimeShift, true),
		record(models.ConflictTVSlot, models.StrategyTimeShift, true),
		record(models.ConflictTVSlot, models.StrategyTimeShift, false),
		record(models.ConflictTVSlot, models.StrategyDateSwap, false),
	}}
	s := NewResolutionHistoryService(store, nil)

	assert.InDelta(t, 2.0/3.0, s.SuccessRate(models.ConflictTVSlot, models.StrategyTimeShift), 1e-9)
	assert.Equal(t, 0.0, s.SuccessRate(models.ConflictTVSlot, models.StrategyDateSwap))
	// Unknown pairs keep the neutral prior.
	assert.Equal(t, 0.5, s.SuccessRate(models.ConflictWeather, models.StrategyReschedule))
}

func TestUnreadableLedgerFailsClosed(t *testing.T) {
	store := &memoryHistoryStore{listErr: errors.New("disk gone")}
	s := NewResolutionHistoryService(store, nil)
	assert.Equal(t, 0.5, s.SuccessRate(models.ConflictTVSlot, models.StrategyTimeShift))
	assert.Empty(t, s.ExportForMLTraining())
}

func TestRecordResolutionAppendsToStore(t *testing.T) {
	store := &memoryHistoryStore{}
	s := NewResolutionHistoryService(store, nil)

	res := models.Resolution{
		ID:          "r1",
		ConflictID:  "c1",
		Strategy:    models.StrategyVenueSwap,
		Feasibility: 0.78,
		Status:      models.ResolutionAccepted,
	}
	require.NoError(t, s.RecordResolution(context.Background(), res, models.ConflictVenueDoubleBooking, true, nil))

	require.Len(t, store.records, 1)
	assert.Equal(t, "r1", store.records[0].ID)
	assert.Equal(t, models.ConflictVenueDoubleBooking, store.records[0].ConflictType)
	assert.True(t, store.records[0].Success)
	assert.False(t, store.records[0].RecordedAt.IsZero())
}

func TestFrequencyForUsesLedgerShare(t *testing.T) {
	store := &memoryHistoryStore{records: []models.ResolutionRecord{
		record(models.ConflictTVSlot, models.StrategyTimeShift, true),
		record(models.ConflictTVSlot, models.StrategyTimeShift, false),
		record(models.ConflictWeather, models.StrategyReschedule, true),
		record(models.ConflictRestViolation, models.StrategyDateSwap, true),
	}}
	s := NewResolutionHistoryService(store, nil)

	assert.InDelta(t, 0.5, s.FrequencyFor(models.ConflictTVSlot), 1e-9)
	assert.InDelta(t, 0.25, s.FrequencyFor(models.ConflictWeather), 1e-9)
	assert.Zero(t, s.FrequencyFor(models.ConflictBackToBack))
}

func TestFrequencyForEmptyLedgerUsesPriors(t *testing.T) {
	s := NewResolutionHistoryService(nil, nil)
	assert.Equal(t, 0.6, s.FrequencyFor(models.ConflictVenueDoubleBooking))
	assert.Equal(t, 0.3, s.FrequencyFor(models.ConflictWeather))
}

func TestRecommendedStrategiesOrderedBySuccess(t *testing.T) {
	store := &memoryHistoryStore{records: []models.ResolutionRecord{
		record(models.ConflictBackToBack, models.StrategyDateSwap, false),
		record(models.ConflictBackToBack, models.StrategyDateSwap, false),
		record(models.ConflictBackToBack, models.StrategySplitDoubleheader, true),
	}}
	s := NewResolutionHistoryService(store, nil)

	ordered := s.RecommendedStrategies(models.ConflictBackToBack)
	require.Len(t, ordered, 3)
	assert.Equal(t, models.StrategySplitDoubleheader, ordered[0])
	// Untried reschedule keeps its neutral prior and beats the failing swap.
	assert.Equal(t, models.StrategyReschedule, ordered[1])
	assert.Equal(t, models.StrategyDateSwap, ordered[2])
}

func TestExportForMLTraining(t *testing.T) {
	s := NewResolutionHistoryService(nil, nil)
	res := models.Resolution{
		ID:                  "r1",
		Strategy:            models.StrategyGameSwap,
		Feasibility:         0.68,
		RecommendationScore: 0.81,
		Status:              models.ResolutionImplemented,
		Impact:              models.ResolutionImpact{FanImpact: 0.35, CompetitiveBalance: 0.2},
	}
	require.NoError(t, s.RecordResolution(context.Background(), res, models.ConflictTravelBurden, true, nil))

	rows := s.ExportForMLTraining()
	require.Len(t, rows, 1)
	assert.Equal(t, "TRAVEL_BURDEN", rows[0].ConflictType)
	assert.Equal(t, "GAME_SWAP", rows[0].Strategy)
	assert.Equal(t, 0.68, rows[0].Feasibility)
	assert.Equal(t, 1.0, rows[0].Label)
	assert.True(t, rows[0].Implemented)
}

func TestGenerateLearningReport(t *testing.T) {
	s := NewResolutionHistoryService(nil, nil)
	assert.Contains(t, s.GenerateLearningReport(), "no outcomes recorded yet")

	require.NoError(t, s.RecordResolution(context.Background(),
		models.Resolution{ID: "r1", Strategy: models.StrategyTimeShift},
		models.ConflictTVSlot, true, nil))

	report := s.GenerateLearningReport()
	assert.Contains(t, report, "TV_SLOT|TIME_SHIFT")
	assert.Contains(t, report, "success_rate=1.00")
}

func TestReportDataset(t *testing.T) {
	s := NewResolutionHistoryService(nil, nil)
	require.NoError(t, s.RecordResolution(context.Background(),
		models.Resolution{ID: "r1", Strategy: models.StrategyTimeShift},
		models.ConflictTVSlot, false, nil))

	ds := s.ReportDataset()
	assert.Equal(t, []string{"conflict_type", "strategy", "attempts", "successes", "success_rate"}, ds.Headers)
	require.Len(t, ds.Rows, 1)
	assert.Equal(t, "TV_SLOT", ds.Rows[0]["conflict_type"])
	assert.Equal(t, "TIME_SHIFT", ds.Rows[0]["strategy"])
	assert.Equal(t, "1", ds.Rows[0]["attempts"])
	assert.Equal(t, "0", ds.Rows[0]["successes"])
}
