package models

import "time"

// ScheduleStatus represents lifecycle phases for a schedule under validation.
type ScheduleStatus string

const (
	ScheduleStatusDraft     ScheduleStatus = "DRAFT"
	ScheduleStatusProposed  ScheduleStatus = "PROPOSED"
	ScheduleStatusPublished ScheduleStatus = "PUBLISHED"
	ScheduleStatusArchived  ScheduleStatus = "ARCHIVED"
)

// Schedule is the unit of work the engine validates and repairs.
type Schedule struct {
	ID          string              `json:"id"`
	Sport       string              `json:"sport"`
	Season      string              `json:"season"`
	Status      ScheduleStatus      `json:"status"`
	Version     int                 `json:"version"`
	Author      string              `json:"author,omitempty"`
	Games       []Game              `json:"games"`
	Teams       []Team              `json:"teams"`
	Venues      []Venue             `json:"venues"`
	Constraints []UnifiedConstraint `json:"constraints,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Game is a single scheduled contest. Fields are only mutated through
// resolver-applied modifications.
type Game struct {
	ID         string            `json:"id"`
	HomeTeamID string            `json:"home_team_id"`
	AwayTeamID string            `json:"away_team_id"`
	VenueID    string            `json:"venue_id"`
	Sport      string            `json:"sport"`
	Date       time.Time         `json:"date"`
	TVNetwork  string            `json:"tv_network,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Team identifies a participating program.
type Team struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Conference  string  `json:"conference,omitempty"`
	HomeVenueID string  `json:"home_venue_id,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

// Venue is a playable location.
type Venue struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	City      string  `json:"city,omitempty"`
	Capacity  int     `json:"capacity,omitempty"`
	Indoor    bool    `json:"indoor,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// ScheduleSlot is the serializable snapshot handed to constraint evaluators.
// It carries plain data only; live evaluator closures never cross a worker
// boundary.
type ScheduleSlot struct {
	ScheduleID string  `json:"schedule_id"`
	Sport      string  `json:"sport"`
	Games      []Game  `json:"games"`
	Teams      []Team  `json:"teams"`
	Venues     []Venue `json:"venues"`
}

// Slot produces an independent evaluation snapshot of the schedule.
func (s *Schedule) Slot() ScheduleSlot {
	slot := ScheduleSlot{
		ScheduleID: s.ID,
		Sport:      s.Sport,
		Games:      make([]Game, len(s.Games)),
		Teams:      make([]Team, len(s.Teams)),
		Venues:     make([]Venue, len(s.Venues)),
	}
	for i, g := range s.Games {
		slot.Games[i] = cloneGame(g)
	}
	copy(slot.Teams, s.Teams)
	copy(slot.Venues, s.Venues)
	return slot
}

// Clone returns a deep, independent copy used for speculative validation.
// The live schedule is never mutated by the resolver.
func (s *Schedule) Clone() *Schedule {
	out := *s
	out.Games = make([]Game, len(s.Games))
	for i, g := range s.Games {
		out.Games[i] = cloneGame(g)
	}
	out.Teams = make([]Team, len(s.Teams))
	copy(out.Teams, s.Teams)
	out.Venues = make([]Venue, len(s.Venues))
	copy(out.Venues, s.Venues)
	out.Constraints = make([]UnifiedConstraint, len(s.Constraints))
	copy(out.Constraints, s.Constraints)
	return &out
}

// GameByID returns a pointer into the schedule's game list, or nil.
func (s *Schedule) GameByID(id string) *Game {
	for i := range s.Games {
		if s.Games[i].ID == id {
			return &s.Games[i]
		}
	}
	return nil
}

// TeamByID returns the team with the given id, or nil.
func (s *Schedule) TeamByID(id string) *Team {
	for i := range s.Teams {
		if s.Teams[i].ID == id {
			return &s.Teams[i]
		}
	}
	return nil
}

// VenueByID returns the venue with the given id, or nil.
func (s *Schedule) VenueByID(id string) *Venue {
	for i := range s.Venues {
		if s.Venues[i].ID == id {
			return &s.Venues[i]
		}
	}
	return nil
}

func cloneGame(g Game) Game {
	out := g
	if g.Metadata != nil {
		out.Metadata = make(map[string]string, len(g.Metadata))
		for k, v := range g.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
