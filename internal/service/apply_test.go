package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexsched/engine/internal/models"
)

func TestApplyResolutionDateAndVenue(t *testing.T) {
	schedule := fixtureSchedule()
	newDate := fixtureSaturday.AddDate(0, 0, 3)

	err := ApplyResolution(schedule, models.Resolution{
		ID: "r1",
		Modifications: []models.Modification{
			{TargetGameID: "g1", Field: models.GameFieldDate, NewValue: newDate},
			{TargetGameID: "g1", Field: models.GameFieldVenue, NewValue: "joel"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, newDate, schedule.GameByID("g1").Date)
	assert.Equal(t, "joel", schedule.GameByID("g1").VenueID)
}

func TestApplyResolutionAcceptsRFC3339Dates(t *testing.T) {
	schedule := fixtureSchedule()
	err := ApplyResolution(schedule, models.Resolution{
		Modifications: []models.Modification{
			{TargetGameID: "g2", Field: models.GameFieldDate, NewValue: "2026-02-01T18:00:00Z"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC), schedule.GameByID("g2").Date)
}

func TestApplyResolutionMergesMetadata(t *testing.T) {
	schedule := fixtureSchedule()
	schedule.Games[0].Metadata = map[string]string{"existing": "yes"}

	err := ApplyResolution(schedule, models.Resolution{
		Modifications: []models.Modification{
			{TargetGameID: "g1", Field: models.GameFieldMetadata, NewValue: map[string]string{"waiver": "granted"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "yes", schedule.GameByID("g1").Metadata["existing"])
	assert.Equal(t, "granted", schedule.GameByID("g1").Metadata["waiver"])
}

func TestApplyResolutionErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  models.Modification
	}{
		{"unknown game", models.Modification{TargetGameID: "ghost", Field: models.GameFieldDate, NewValue: fixtureSaturday}},
		{"bad date type", models.Modification{TargetGameID: "g1", Field: models.GameFieldDate, NewValue: 42}},
		{"bad venue type", models.Modification{TargetGameID: "g1", Field: models.GameFieldVenue, NewValue: 42}},
		{"unsupported field", models.Modification{TargetGameID: "g1", Field: "score", NewValue: "3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			schedule := fixtureSchedule()
			err := ApplyResolution(schedule, models.Resolution{Modifications: []models.Modification{tc.mod}})
			require.Error(t, err)
		})
	}
}

func TestApplyResolutionLeavesOriginalUntouchedWhenCloned(t *testing.T) {
	schedule := fixtureSchedule()
	clone := schedule.Clone()

	err := ApplyResolution(clone, models.Resolution{
		Modifications: []models.Modification{
			{TargetGameID: "g1", Field: models.GameFieldVenue, NewValue: "joel"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "cameron", schedule.GameByID("g1").VenueID)
	assert.Equal(t, "joel", clone.GameByID("g1").VenueID)
}
