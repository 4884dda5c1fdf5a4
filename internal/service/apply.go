package service

import (
	"fmt"
	"time"

	"github.com/flexsched/engine/internal/models"

	appErrors "github.com/flexsched/engine/pkg/errors"
)

// ApplyResolution mutates only the named fields on the target games, in
// modification list order. Callers validating speculatively must pass a clone.
func ApplyResolution(schedule *models.Schedule, resolution models.Resolution) error {
	for _, mod := range resolution.Modifications {
		game := schedule.GameByID(mod.TargetGameID)
		if game == nil {
			return appErrors.Clone(appErrors.ErrNotFound,
				fmt.Sprintf("resolution %s targets unknown game %s", resolution.ID, mod.TargetGameID))
		}
		if err := applyModification(game, mod); err != nil {
			return err
		}
	}
	schedule.UpdatedAt = time.Now().UTC()
	return nil
}

func applyModification(game *models.Game, mod models.Modification) error {
	switch mod.Field {
	case models.GameFieldDate:
		date, err := coerceTime(mod.NewValue)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("modification on game %s: %v", game.ID, err))
		}
		game.Date = date
	case models.GameFieldVenue:
		venue, ok := mod.NewValue.(string)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("modification on game %s: venue_id must be a string", game.ID))
		}
		game.VenueID = venue
	case models.GameFieldHomeTeam:
		team, ok := mod.NewValue.(string)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("modification on game %s: home_team_id must be a string", game.ID))
		}
		game.HomeTeamID = team
	case models.GameFieldAwayTeam:
		team, ok := mod.NewValue.(string)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("modification on game %s: away_team_id must be a string", game.ID))
		}
		game.AwayTeamID = team
	case models.GameFieldMetadata:
		entries, err := coerceStringMap(mod.NewValue)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("modification on game %s: %v", game.ID, err))
		}
		if game.Metadata == nil {
			game.Metadata = make(map[string]string, len(entries))
		}
		for k, v := range entries {
			game.Metadata[k] = v
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("modification on game %s: unsupported field %q", game.ID, mod.Field))
	}
	return nil
}

func coerceTime(v any) (time.Time, error) {
	switch value := v.(type) {
	case time.Time:
		return value, nil
	case string:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q is not RFC3339", value)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("date value has unsupported type %T", v)
	}
}

func coerceStringMap(v any) (map[string]string, error) {
	switch value := v.(type) {
	case map[string]string:
		return value, nil
	case map[string]any:
		out := make(map[string]string, len(value))
		for k, item := range value {
			out[k] = fmt.Sprintf("%v", item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("metadata value has unsupported type %T", v)
	}
}
