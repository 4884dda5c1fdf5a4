package service

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/flexsched/engine/internal/models"
)

// Built-in rule evaluators covering the conflict families the engine detects.
// Each evaluator is a pure function of the schedule slot and its parameters;
// they are safe to run on any worker.

// BuiltinConstraints returns the engine's standard rule set. Parameters carry
// defaults and can be overridden per deployment.
func BuiltinConstraints() []models.UnifiedConstraint {
	return []models.UnifiedConstraint{
		{
			ID: "builtin-venue-double-booking", Name: "Venue double booking",
			Type: models.ConstraintTypeVenue, Hardness: models.HardnessHard, Weight: 100,
			Evaluator: EvalVenueDoubleBooking, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-rest-period", Name: "Minimum rest period",
			Type: models.ConstraintTypeTeam, Hardness: models.HardnessHard, Weight: 90,
			Parameters: map[string]any{"minRestHours": 48.0},
			Evaluator:  EvalRestPeriod, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-travel-burden", Name: "Travel burden",
			Type: models.ConstraintTypeTravel, Hardness: models.HardnessSoft, Weight: 60,
			Parameters: map[string]any{"maxTripKm": 2500.0},
			Evaluator:  EvalTravelBurden, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-championship-date", Name: "Championship date clash",
			Type: models.ConstraintTypeTemporal, Hardness: models.HardnessHard, Weight: 95,
			Evaluator: EvalChampionshipDate, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-tv-slot", Name: "Broadcast slot clash",
			Type: models.ConstraintTypeBroadcast, Hardness: models.HardnessSoft, Weight: 70,
			Evaluator: EvalTVSlot, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-weather-window", Name: "Weather window",
			Type: models.ConstraintTypeVenue, Hardness: models.HardnessSoft, Weight: 40,
			Parameters: map[string]any{"coldMonths": []any{"12", "1", "2"}},
			Evaluator:  EvalWeatherWindow, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-academic-calendar", Name: "Academic calendar blackout",
			Type: models.ConstraintTypeAcademic, Hardness: models.HardnessHard, Weight: 85,
			Evaluator: EvalAcademicCalendar, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-home-away-balance", Name: "Home/away balance",
			Type: models.ConstraintTypeCompetitive, Hardness: models.HardnessSoft, Weight: 50,
			Parameters: map[string]any{"maxImbalance": 2.0},
			Evaluator:  EvalHomeAwayBalance, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-back-to-back", Name: "Back-to-back games",
			Type: models.ConstraintTypeTeam, Hardness: models.HardnessSoft, Weight: 55,
			Evaluator: EvalBackToBack, Cacheable: true, Parallelizable: true,
		},
		{
			ID: "builtin-sunday-restriction", Name: "Sunday play restriction",
			Type: models.ConstraintTypeCompliance, Hardness: models.HardnessHard, Weight: 100,
			Parameters: map[string]any{"teams": []any{}},
			Evaluator:  EvalSundayRestriction, Cacheable: true, Parallelizable: true,
		},
	}
}

// EvalVenueDoubleBooking flags two games sharing a venue inside the same
// four-hour window.
func EvalVenueDoubleBooking(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	windowHours := paramFloat(params, "windowHours", 4)
	var violations []models.Violation
	for i := 0; i < len(slot.Games); i++ {
		for j := i + 1; j < len(slot.Games); j++ {
			a, b := slot.Games[i], slot.Games[j]
			if a.VenueID == "" || a.VenueID != b.VenueID {
				continue
			}
			gap := a.Date.Sub(b.Date)
			if gap < 0 {
				gap = -gap
			}
			if gap < time.Duration(windowHours)*time.Hour {
				violations = append(violations, models.Violation{
					Description: fmt.Sprintf("venue %s double-booked: games %s and %s overlap", a.VenueID, a.ID, b.ID),
					Type:        models.ConflictVenueDoubleBooking,
					Severity:    models.SeverityCritical,
					GameIDs:     []string{a.ID, b.ID},
					TeamIDs:     []string{a.HomeTeamID, a.AwayTeamID, b.HomeTeamID, b.AwayTeamID},
				})
			}
		}
	}
	return resultFromViolations(slot, violations, "spread games at shared venues across separate windows")
}

// EvalRestPeriod enforces a minimum number of rest hours between consecutive
// games for each team.
func EvalRestPeriod(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	minRest := time.Duration(paramFloat(params, "minRestHours", 48)) * time.Hour
	var violations []models.Violation
	for team, games := range gamesByTeam(slot) {
		for i := 0; i < len(games)-1; i++ {
			gap := games[i+1].Date.Sub(games[i].Date)
			if gap < minRest {
				violations = append(violations, models.Violation{
					Description: fmt.Sprintf("team %s has %.0fh rest between games %s and %s (minimum %.0fh)",
						team, gap.Hours(), games[i].ID, games[i+1].ID, minRest.Hours()),
					Type:     models.ConflictRestViolation,
					Severity: models.SeverityMajor,
					GameIDs:  []string{games[i].ID, games[i+1].ID},
					TeamIDs:  []string{team},
				})
			}
		}
	}
	return resultFromViolations(slot, violations, "insert rest days between consecutive games")
}

// EvalTravelBurden flags consecutive road trips longer than maxTripKm.
func EvalTravelBurden(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	maxKm := paramFloat(params, "maxTripKm", 2500)
	venues := make(map[string]models.Venue, len(slot.Venues))
	for _, v := range slot.Venues {
		venues[v.ID] = v
	}
	var violations []models.Violation
	for team, games := range gamesByTeam(slot) {
		for i := 0; i < len(games)-1; i++ {
			from, okFrom := venues[games[i].VenueID]
			to, okTo := venues[games[i+1].VenueID]
			if !okFrom || !okTo {
				continue
			}
			km := haversineKm(from.Latitude, from.Longitude, to.Latitude, to.Longitude)
			if km > maxKm {
				violations = append(violations, models.Violation{
					Description: fmt.Sprintf("team %s travels %.0fkm between games %s and %s (cap %.0fkm)",
						team, km, games[i].ID, games[i+1].ID, maxKm),
					Type:     models.ConflictTravelBurden,
					Severity: models.SeverityMinor,
					GameIDs:  []string{games[i].ID, games[i+1].ID},
					TeamIDs:  []string{team},
				})
			}
		}
	}
	return resultFromViolations(slot, violations, "reorder road trips to shorten travel legs")
}

// EvalChampionshipDate blocks regular games inside a championship window.
func EvalChampionshipDate(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	start, okStart := paramTime(params, "windowStart")
	end, okEnd := paramTime(params, "windowEnd")
	if !okStart || !okEnd {
		return models.ConstraintResult{Valid: true, Score: 1}
	}
	var violations []models.Violation
	for _, g := range slot.Games {
		if g.Metadata["championship"] == "true" {
			continue
		}
		if !g.Date.Before(start) && !g.Date.After(end) {
			violations = append(violations, models.Violation{
				Description: fmt.Sprintf("game %s falls inside the championship window", g.ID),
				Type:        models.ConflictChampionshipDate,
				Severity:    models.SeverityCritical,
				GameIDs:     []string{g.ID},
				TeamIDs:     []string{g.HomeTeamID, g.AwayTeamID},
			})
		}
	}
	return resultFromViolations(slot, violations, "move regular-season games outside the championship window")
}

// EvalTVSlot flags two games claiming the same network and broadcast window.
func EvalTVSlot(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	windowHours := paramFloat(params, "windowHours", 3)
	var violations []models.Violation
	for i := 0; i < len(slot.Games); i++ {
		for j := i + 1; j < len(slot.Games); j++ {
			a, b := slot.Games[i], slot.Games[j]
			if a.TVNetwork == "" || a.TVNetwork != b.TVNetwork {
				continue
			}
			gap := a.Date.Sub(b.Date)
			if gap < 0 {
				gap = -gap
			}
			if gap < time.Duration(windowHours)*time.Hour {
				violations = append(violations, models.Violation{
					Description: fmt.Sprintf("games %s and %s share the %s broadcast window", a.ID, b.ID, a.TVNetwork),
					Type:        models.ConflictTVSlot,
					Severity:    models.SeverityMajor,
					GameIDs:     []string{a.ID, b.ID},
				})
			}
		}
	}
	return resultFromViolations(slot, violations, "stagger games sharing a broadcast network")
}

// EvalWeatherWindow discourages outdoor games during configured cold months.
func EvalWeatherWindow(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	months := paramStrings(params, "coldMonths")
	if len(months) == 0 {
		return models.ConstraintResult{Valid: true, Score: 1}
	}
	monthSet := make(map[string]struct{}, len(months))
	for _, m := range months {
		monthSet[m] = struct{}{}
	}
	indoor := make(map[string]bool, len(slot.Venues))
	for _, v := range slot.Venues {
		indoor[v.ID] = v.Indoor
	}
	var violations []models.Violation
	for _, g := range slot.Games {
		if indoor[g.VenueID] {
			continue
		}
		if _, cold := monthSet[fmt.Sprintf("%d", int(g.Date.Month()))]; cold {
			violations = append(violations, models.Violation{
				Description: fmt.Sprintf("game %s is outdoors in a weather-risk month", g.ID),
				Type:        models.ConflictWeather,
				Severity:    models.SeverityMinor,
				GameIDs:     []string{g.ID},
			})
		}
	}
	return resultFromViolations(slot, violations, "move weather-exposed games indoors or to milder months")
}

// EvalAcademicCalendar blocks games during exam blackout periods.
func EvalAcademicCalendar(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	start, okStart := paramTime(params, "examStart")
	end, okEnd := paramTime(params, "examEnd")
	if !okStart || !okEnd {
		return models.ConstraintResult{Valid: true, Score: 1}
	}
	var violations []models.Violation
	for _, g := range slot.Games {
		if !g.Date.Before(start) && !g.Date.After(end) {
			violations = append(violations, models.Violation{
				Description: fmt.Sprintf("game %s falls inside the exam blackout", g.ID),
				Type:        models.ConflictAcademicCalendar,
				Severity:    models.SeverityMajor,
				GameIDs:     []string{g.ID},
				TeamIDs:     []string{g.HomeTeamID, g.AwayTeamID},
			})
		}
	}
	return resultFromViolations(slot, violations, "avoid exam blackout dates")
}

// EvalHomeAwayBalance flags teams whose home/away split exceeds maxImbalance.
func EvalHomeAwayBalance(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	maxImbalance := int(paramFloat(params, "maxImbalance", 2))
	home := map[string]int{}
	away := map[string]int{}
	for _, g := range slot.Games {
		home[g.HomeTeamID]++
		away[g.AwayTeamID]++
	}
	var teams []string
	for team := range home {
		teams = append(teams, team)
	}
	for team := range away {
		if _, seen := home[team]; !seen {
			teams = append(teams, team)
		}
	}
	sort.Strings(teams)

	var violations []models.Violation
	for _, team := range teams {
		diff := home[team] - away[team]
		if diff < 0 {
			diff = -diff
		}
		if diff > maxImbalance {
			violations = append(violations, models.Violation{
				Description: fmt.Sprintf("team %s home/away split is %d-%d", team, home[team], away[team]),
				Type:        models.ConflictHomeAwayImbalance,
				Severity:    models.SeverityMinor,
				TeamIDs:     []string{team},
			})
		}
	}
	return resultFromViolations(slot, violations, "swap home designations to even out the split")
}

// EvalBackToBack flags a team playing on consecutive calendar days.
func EvalBackToBack(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	var violations []models.Violation
	for team, games := range gamesByTeam(slot) {
		for i := 0; i < len(games)-1; i++ {
			d1 := games[i].Date.Truncate(24 * time.Hour)
			d2 := games[i+1].Date.Truncate(24 * time.Hour)
			if d2.Sub(d1) == 24*time.Hour {
				violations = append(violations, models.Violation{
					Description: fmt.Sprintf("team %s plays back-to-back games %s and %s", team, games[i].ID, games[i+1].ID),
					Type:        models.ConflictBackToBack,
					Severity:    models.SeverityMinor,
					GameIDs:     []string{games[i].ID, games[i+1].ID},
					TeamIDs:     []string{team},
				})
			}
		}
	}
	return resultFromViolations(slot, violations, "separate consecutive game days")
}

// EvalSundayRestriction blocks Sunday games for teams with a no-Sunday-play
// policy (params["teams"]). A game carrying a waiver in its metadata passes.
func EvalSundayRestriction(slot models.ScheduleSlot, params map[string]any) models.ConstraintResult {
	restricted := paramStrings(params, "teams")
	if len(restricted) == 0 {
		return models.ConstraintResult{Valid: true, Score: 1}
	}
	restrictedSet := make(map[string]struct{}, len(restricted))
	for _, t := range restricted {
		restrictedSet[t] = struct{}{}
	}
	var violations []models.Violation
	for _, g := range slot.Games {
		if g.Date.Weekday() != time.Sunday {
			continue
		}
		if g.Metadata["waiver"] != "" {
			continue
		}
		for _, team := range []string{g.HomeTeamID, g.AwayTeamID} {
			if _, ok := restrictedSet[team]; ok {
				violations = append(violations, models.Violation{
					Description: fmt.Sprintf("game %s is scheduled on Sunday for restricted team %s", g.ID, team),
					Type:        models.ConflictSundayRestriction,
					Severity:    models.SeverityCritical,
					GameIDs:     []string{g.ID},
					TeamIDs:     []string{team},
				})
				break
			}
		}
	}
	return resultFromViolations(slot, violations, "move the game off Sunday or file a waiver")
}

// --- shared helpers ---

func resultFromViolations(slot models.ScheduleSlot, violations []models.Violation, suggestion string) models.ConstraintResult {
	result := models.ConstraintResult{Valid: len(violations) == 0, Violations: violations}
	if len(slot.Games) == 0 || len(violations) == 0 {
		result.Score = 1
	} else {
		score := 1 - float64(len(violations))/float64(len(slot.Games))
		if score < 0 {
			score = 0
		}
		result.Score = score
	}
	if len(violations) > 0 && suggestion != "" {
		result.Suggestions = []string{suggestion}
	}
	return result
}

// gamesByTeam returns each team's games sorted by date.
func gamesByTeam(slot models.ScheduleSlot) map[string][]models.Game {
	byTeam := make(map[string][]models.Game)
	for _, g := range slot.Games {
		byTeam[g.HomeTeamID] = append(byTeam[g.HomeTeamID], g)
		byTeam[g.AwayTeamID] = append(byTeam[g.AwayTeamID], g)
	}
	for team := range byTeam {
		games := byTeam[team]
		sort.Slice(games, func(i, j int) bool { return games[i].Date.Before(games[j].Date) })
		byTeam[team] = games
	}
	return byTeam
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func paramFloat(params map[string]any, key string, fallback float64) float64 {
	if params == nil {
		return fallback
	}
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return fallback
}

func paramStrings(params map[string]any, key string) []string {
	if params == nil {
		return nil
	}
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return nil
}

func paramTime(params map[string]any, key string) (time.Time, bool) {
	if params == nil {
		return time.Time{}, false
	}
	switch v := params[key].(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
