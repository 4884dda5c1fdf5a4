package service

import (
	"time"

	"github.com/flexsched/engine/internal/models"
)

// Fixtures shared by the service tests. Dates are fixed so weekday-sensitive
// rules behave deterministically: 2026-01-10 is a Saturday.
var fixtureSaturday = time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC)

func fixtureSchedule() *models.Schedule {
	return &models.Schedule{
		ID:      "sched-1",
		Sport:   "basketball",
		Season:  "2025-26",
		Status:  "draft",
		Version: 1,
		Teams: []models.Team{
			{ID: "duke", Name: "Duke", Latitude: 36.0, Longitude: -78.9},
			{ID: "unc", Name: "North Carolina", Latitude: 35.9, Longitude: -79.0},
			{ID: "wake", Name: "Wake Forest", Latitude: 36.1, Longitude: -80.3},
			{ID: "nova", Name: "Villanova", Latitude: 40.0, Longitude: -75.3},
		},
		Venues: []models.Venue{
			{ID: "cameron", Name: "Cameron Indoor", Indoor: true, Latitude: 36.0, Longitude: -78.9},
			{ID: "dean-dome", Name: "Dean Smith Center", Indoor: true, Latitude: 35.9, Longitude: -79.0},
			{ID: "joel", Name: "Joel Coliseum", Indoor: true, Latitude: 36.1, Longitude: -80.3},
		},
		Games: []models.Game{
			{ID: "g1", HomeTeamID: "duke", AwayTeamID: "unc", VenueID: "cameron", Sport: "basketball", Date: fixtureSaturday},
			{ID: "g2", HomeTeamID: "wake", AwayTeamID: "nova", VenueID: "joel", Sport: "basketball", Date: fixtureSaturday.AddDate(0, 0, 7)},
			{ID: "g3", HomeTeamID: "unc", AwayTeamID: "wake", VenueID: "dean-dome", Sport: "basketball", Date: fixtureSaturday.AddDate(0, 0, 14)},
		},
	}
}

// fixtureDoubleBooking puts two games in the same venue an hour apart.
func fixtureDoubleBooking() *models.Schedule {
	s := fixtureSchedule()
	s.Games = append(s.Games, models.Game{
		ID: "g4", HomeTeamID: "duke", AwayTeamID: "wake", VenueID: "cameron",
		Sport: "basketball", Date: fixtureSaturday.Add(time.Hour),
	})
	return s
}

func fixtureConflict(conflictType models.ConflictType, severity models.ConflictSeverity, gameIDs []string) models.Conflict {
	return models.Conflict{
		ID:          "conf-" + string(conflictType),
		Type:        conflictType,
		Severity:    severity,
		Description: "test conflict",
		GameIDs:     gameIDs,
		Metadata: models.ConflictMetadata{
			CascadeRisk:         0.5,
			HistoricalFrequency: 0.4,
			ConflictScore:       0.6,
		},
		DetectedAt: fixtureSaturday,
	}
}

func alwaysValidConstraint(id string) models.UnifiedConstraint {
	return models.UnifiedConstraint{
		ID: id, Name: id, Type: models.ConstraintTypeTemporal,
		Hardness: models.HardnessSoft, Weight: 1, Parallelizable: true,
		Evaluator: func(models.ScheduleSlot, map[string]any) models.ConstraintResult {
			return models.ConstraintResult{Valid: true, Score: 1}
		},
	}
}
