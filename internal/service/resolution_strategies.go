package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flexsched/engine/internal/models"
)

// strategyCandidates maps each conflict type onto its ordered candidate
// strategies. Types without an entry fall back to manual override.
var strategyCandidates = map[models.ConflictType][]models.ResolutionStrategy{
	models.ConflictVenueDoubleBooking: {
		models.StrategyTimeShift, models.StrategyVenueSwap,
		models.StrategyAlternativeVenue, models.StrategyDateSwap,
	},
	models.ConflictRestViolation: {
		models.StrategyDateSwap, models.StrategyReschedule, models.StrategyTimeShift,
	},
	models.ConflictTravelBurden: {
		models.StrategyGameSwap, models.StrategyDateSwap, models.StrategyReschedule,
	},
	models.ConflictChampionshipDate: {
		models.StrategyReschedule, models.StrategyDateSwap,
	},
	models.ConflictTVSlot: {
		models.StrategyTimeShift, models.StrategyDateSwap, models.StrategyReschedule,
	},
	models.ConflictWeather: {
		models.StrategyAlternativeVenue, models.StrategyReschedule,
	},
	models.ConflictAcademicCalendar: {
		models.StrategyReschedule, models.StrategyDateSwap, models.StrategyWaiverRequest,
	},
	models.ConflictHomeAwayImbalance: {
		models.StrategyGameSwap, models.StrategyVenueSwap,
	},
	models.ConflictBackToBack: {
		models.StrategyDateSwap, models.StrategyReschedule, models.StrategySplitDoubleheader,
	},
	models.ConflictSundayRestriction: {
		models.StrategyReschedule, models.StrategyDateSwap, models.StrategyWaiverRequest,
	},
}

// CandidateStrategies returns the ordered strategy list for a conflict type.
func CandidateStrategies(t models.ConflictType) []models.ResolutionStrategy {
	if candidates, ok := strategyCandidates[t]; ok {
		out := make([]models.ResolutionStrategy, len(candidates))
		copy(out, candidates)
		return out
	}
	return []models.ResolutionStrategy{models.StrategyManualOverride}
}

// strategyComplexity feeds the resolver's feature vector; higher means harder
// to implement operationally.
var strategyComplexity = map[models.ResolutionStrategy]float64{
	models.StrategyTimeShift:         0.2,
	models.StrategyWaiverRequest:     0.3,
	models.StrategyAlternativeVenue:  0.4,
	models.StrategyVenueSwap:         0.4,
	models.StrategyDateSwap:          0.5,
	models.StrategyReschedule:        0.6,
	models.StrategyGameSwap:          0.7,
	models.StrategySplitDoubleheader: 0.8,
	models.StrategyManualOverride:    0.9,
}

var strategyFeasibility = map[models.ResolutionStrategy]float64{
	models.StrategyTimeShift:         0.9,
	models.StrategyVenueSwap:         0.78,
	models.StrategyDateSwap:          0.8,
	models.StrategyGameSwap:          0.68,
	models.StrategyReschedule:        0.72,
	models.StrategySplitDoubleheader: 0.55,
	models.StrategyAlternativeVenue:  0.75,
	models.StrategyWaiverRequest:     0.74,
	models.StrategyManualOverride:    1.0,
}

// ResolutionStrategies generates strategy-specific schedule mutations.
type ResolutionStrategies struct {
	logger *zap.Logger
}

// NewResolutionStrategies constructs the generator set.
func NewResolutionStrategies(logger *zap.Logger) *ResolutionStrategies {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolutionStrategies{logger: logger}
}

// Generate produces a resolution for the conflict using the given strategy, or
// nil when the strategy is not applicable to this conflict's games.
func (s *ResolutionStrategies) Generate(strategy models.ResolutionStrategy, conflict models.Conflict, schedule *models.Schedule) *models.Resolution {
	var mods []models.Modification
	notes := ""

	switch strategy {
	case models.StrategyTimeShift:
		mods = s.timeShift(conflict, schedule)
	case models.StrategyVenueSwap:
		mods = s.venueSwap(conflict, schedule)
	case models.StrategyDateSwap:
		mods = s.dateSwap(conflict, schedule)
	case models.StrategyGameSwap:
		mods = s.gameSwap(conflict, schedule)
	case models.StrategyReschedule:
		mods = s.reschedule(conflict, schedule)
	case models.StrategySplitDoubleheader:
		mods = s.splitDoubleheader(conflict, schedule)
	case models.StrategyAlternativeVenue:
		mods = s.alternativeVenue(conflict, schedule)
	case models.StrategyWaiverRequest:
		mods = s.waiverRequest(conflict, schedule)
		notes = "waiver request leaves the schedule untouched pending approval"
	case models.StrategyManualOverride:
		notes = "manual review required; no automatic modification generated"
	default:
		return nil
	}

	if strategy != models.StrategyManualOverride && len(mods) == 0 {
		return nil
	}

	return &models.Resolution{
		ID:            uuid.NewString(),
		ConflictID:    conflict.ID,
		Strategy:      strategy,
		Modifications: mods,
		Feasibility:   s.feasibility(strategy, conflict),
		Status:        models.ResolutionProposed,
		Impact:        s.impact(strategy, conflict, schedule, mods),
		Notes:         notes,
		CreatedAt:     time.Now().UTC(),
	}
}

func (s *ResolutionStrategies) feasibility(strategy models.ResolutionStrategy, conflict models.Conflict) float64 {
	f := strategyFeasibility[strategy]
	if conflict.Metadata.CascadeRisk > 0.8 {
		f -= 0.05
	}
	if f < 0 {
		f = 0
	}
	return f
}

func (s *ResolutionStrategies) impact(strategy models.ResolutionStrategy, conflict models.Conflict, schedule *models.Schedule, mods []models.Modification) models.ResolutionImpact {
	impact := models.ResolutionImpact{}
	venues := map[string]struct{}{}
	teams := map[string]struct{}{}
	for _, m := range mods {
		if g := schedule.GameByID(m.TargetGameID); g != nil {
			teams[g.HomeTeamID] = struct{}{}
			teams[g.AwayTeamID] = struct{}{}
			venues[g.VenueID] = struct{}{}
		}
	}
	for t := range teams {
		impact.TeamsAffected = append(impact.TeamsAffected, t)
	}
	for v := range venues {
		impact.VenuesAffected = append(impact.VenuesAffected, v)
	}

	switch strategy {
	case models.StrategyTimeShift:
		impact.FanImpact = 0.1
	case models.StrategyVenueSwap, models.StrategyAlternativeVenue:
		impact.FanImpact = 0.3
		impact.TravelDelta = 50
	case models.StrategyDateSwap:
		impact.FanImpact = 0.25
	case models.StrategyGameSwap:
		impact.FanImpact = 0.35
		impact.CompetitiveBalance = 0.2
	case models.StrategyReschedule:
		impact.FanImpact = 0.4
	case models.StrategySplitDoubleheader:
		impact.FanImpact = 0.2
		impact.CompetitiveBalance = 0.1
	case models.StrategyWaiverRequest, models.StrategyManualOverride:
		impact.FanImpact = 0.05
	}
	return impact
}

// --- modification generators ---

func (s *ResolutionStrategies) timeShift(conflict models.Conflict, schedule *models.Schedule) []models.Modification {
	game := firstConflictGame(conflict, schedule)
	if game == nil {
		return nil
	}
	return []models.Modification{{
		TargetGameID: game.ID,
		Field:        models.GameFieldDate,
		NewValue:     game.Date.Add(4 * time.Hour),
	}}
}

func (s *ResolutionStrategies) venueSwap(conflict models.Conflict, schedule *models.Schedule) []models.Modification {
	if len(conflict.GameIDs) < 2 {
		return nil
	}
	a := schedule.GameByID(conflict.GameIDs[0])
	b := schedule.GameByID(conflict.GameIDs[1])
	if a == nil || b == nil {
		return nil
	}
	other := otherVenue(schedule, a.VenueID, a.Date)
	if other == "" {
		return nil
	}
	return []models.Modification{{
		TargetGameID: b.ID,
		Field:        models.GameFieldVenue,
		NewValue:     other,
	}}
}

func (s *ResolutionStrategies) dateSwap(conflict models.Conflict, schedule *models.Schedule) []models.Modification {
	game := firstConflictGame(conflict, schedule)
	if game == nil {
		return nil
	}
	skipSunday := conflict.Type == models.ConflictSundayRestriction
	for i := range schedule.Games {
		candidate := &schedule.Games[i]
		if candidate.ID == game.ID || candidate.Date.Equal(game.Date) {
			continue
		}
		if inConflict(conflict, candidate.ID) {
			continue
		}
		if skipSunday && candidate.Date.Weekday() == time.Sunday {
			continue
		}
		return []models.Modification{
			{TargetGameID: game.ID, Field: models.GameFieldDate, NewValue: candidate.Date},
			{TargetGameID: candidate.ID, Field: models.GameFieldDate, NewValue: game.Date},
		}
	}
	return nil
}

func (s *ResolutionStrategies) gameSwap(conflict models.Conflict, schedule *models.Schedule) []models.Modification {
	if len(conflict.GameIDs) < 2 {
		return nil
	}
	a := schedule.GameByID(conflict.GameIDs[0])
	b := schedule.GameByID(conflict.GameIDs[1])
	if a == nil || b == nil {
		return nil
	}
	return []models.Modification{
		{TargetGameID: a.ID, Field: models.GameFieldDate, NewValue: b.Date},
		{TargetGameID: a.ID, Field: models.GameFieldVenue, NewValue: b.VenueID},
		{TargetGameID: b.ID, Field: models.GameFieldDate, NewValue: a.Date},
		{TargetGameID: b.ID, Field: models.GameFieldVenue, NewValue: a.VenueID},
	}
}

func (s *ResolutionStrategies) reschedule(conflict models.Conflict, schedule *models.Schedule) []models.Modification {
	game := firstConflictGame(conflict, schedule)
	if game == nil {
		return nil
	}
	avoidSunday := conflict.Type == models.ConflictSundayRestriction
	candidate := game.Date.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ {
		if avoidSunday && candidate.Weekday() == time.Sunday {
			candidate = candidate.AddDate(0, 0, 1)
			continue
		}
		if dayIsFree(schedule, game, candidate) {
			return []models.Modification{{
				TargetGameID: game.ID,
				Field:        models.GameFieldDate,
				NewValue:     candidate,
			}}
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return nil
}

func (s *ResolutionStrategies) splitDoubleheader(conflict models.Conflict, schedule *models.Schedule) []models.Modification {
	if len(conflict.GameIDs) < 2 {
		return nil
	}
	a := schedule.GameByID(conflict.GameIDs[0])
	b := schedule.GameByID(conflict.GameIDs[1])
	if a == nil || b == nil {
		return nil
	}
	return []models.Modification{
		{TargetGameID: a.ID, Field: models.GameFieldMetadata, NewValue: map[string]string{"doubleheader": "true"}},
		{TargetGameID: b.ID, Field: models.GameFieldMetadata, NewValue: map[string]string{"doubleheader": "true"}},
		{TargetGameID: b.ID, Field: models.GameFieldDate, NewValue: a.Date.Add(4 * time.Hour)},
	}
}

func (s *ResolutionStrategies) alternativeVenue(conflict models.Conflict, schedule *models.Schedule) []models.Modification {
	game := firstConflictGame(conflict, schedule)
	if game == nil {
		return nil
	}
	other := otherVenue(schedule, game.VenueID, game.Date)
	if other == "" {
		return nil
	}
	return []models.Modification{{
		TargetGameID: game.ID,
		Field:        models.GameFieldVenue,
		NewValue:     other,
	}}
}

func (s *ResolutionStrategies) waiverRequest(conflict models.Conflict, schedule *models.Schedule) []models.Modification {
	game := firstConflictGame(conflict, schedule)
	if game == nil {
		return nil
	}
	// Date stays unchanged; the waiver is recorded on the game itself.
	return []models.Modification{{
		TargetGameID: game.ID,
		Field:        models.GameFieldMetadata,
		NewValue:     map[string]string{"waiver": fmt.Sprintf("requested for %s", conflict.Type)},
	}}
}

// --- lookup helpers ---

func firstConflictGame(conflict models.Conflict, schedule *models.Schedule) *models.Game {
	for _, id := range conflict.GameIDs {
		if g := schedule.GameByID(id); g != nil {
			return g
		}
	}
	return nil
}

func inConflict(conflict models.Conflict, gameID string) bool {
	for _, id := range conflict.GameIDs {
		if id == gameID {
			return true
		}
	}
	return false
}

// otherVenue returns a venue with no game scheduled on the given day,
// excluding the current one.
func otherVenue(schedule *models.Schedule, currentVenueID string, date time.Time) string {
	day := date.Format("2006-01-02")
	occupied := map[string]bool{}
	for _, g := range schedule.Games {
		if g.Date.Format("2006-01-02") == day {
			occupied[g.VenueID] = true
		}
	}
	for _, v := range schedule.Venues {
		if v.ID != currentVenueID && !occupied[v.ID] {
			return v.ID
		}
	}
	return ""
}

// dayIsFree reports whether neither participant team nor the venue already
// has a game on the candidate day.
func dayIsFree(schedule *models.Schedule, game *models.Game, date time.Time) bool {
	day := date.Format("2006-01-02")
	for _, g := range schedule.Games {
		if g.ID == game.ID || g.Date.Format("2006-01-02") != day {
			continue
		}
		if g.VenueID == game.VenueID {
			return false
		}
		for _, team := range []string{game.HomeTeamID, game.AwayTeamID} {
			if g.HomeTeamID == team || g.AwayTeamID == team {
				return false
			}
		}
	}
	return true
}
