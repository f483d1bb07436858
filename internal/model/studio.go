package model

import (
	"fmt"
	"time"

	"studiorent/internal/schedule"
)

// DefaultSlotStepMinutes is used when settings carry no valid step.
const DefaultSlotStepMinutes = 60

// Studio is a rentable venue with one weekly schedule shared by its rooms.
type Studio struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	Name         string        `json:"name"`
	Province     string        `json:"province,omitempty"`
	District     string        `json:"district,omitempty"`
	OpeningHours schedule.Week `json:"opening_hours"`
	IsActive     bool          `json:"is_active"`
	Rooms        []Room        `json:"rooms,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Room is a bookable space inside a studio.
type Room struct {
	ID       string `json:"id"`
	StudioID string `json:"studio_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// CalendarSettings is the per-studio scheduling configuration.
type CalendarSettings struct {
	StudioID         string         `json:"studio_id"`
	DayCutoffHour    int            `json:"day_cutoff_hour"`
	Timezone         string         `json:"timezone"`
	SlotStepMinutes  int            `json:"slot_step_minutes"`
	HappyHourEnabled bool           `json:"happy_hour_enabled"`
	WeeklyHours      *schedule.Week `json:"weekly_hours,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DefaultCalendarSettings returns the settings assumed for studios without a row.
func DefaultCalendarSettings(studioID string) *CalendarSettings {
	return &CalendarSettings{
		StudioID:        studioID,
		DayCutoffHour:   schedule.DefaultCutoffHour,
		Timezone:        schedule.DefaultTimezone,
		SlotStepMinutes: DefaultSlotStepMinutes,
	}
}

// ValidSlotStep reports whether minutes is an accepted calendar step.
func ValidSlotStep(minutes int) bool {
	switch minutes {
	case 30, 60, 90, 120:
		return true
	}
	return false
}

// Validate checks settings submitted by a studio owner.
func (s *CalendarSettings) Validate() error {
	if s.DayCutoffHour < 0 || s.DayCutoffHour > schedule.MaxCutoffHour {
		return fmt.Errorf("day_cutoff_hour must be between 0 and %d", schedule.MaxCutoffHour)
	}
	if !ValidSlotStep(s.SlotStepMinutes) {
		return fmt.Errorf("slot_step_minutes must be one of 30, 60, 90, 120")
	}
	if _, err := schedule.LoadLocation(s.Timezone); err != nil {
		return err
	}
	return nil
}

// StudioCalendar bundles a studio with its optional settings row.
type StudioCalendar struct {
	Studio   Studio
	Settings *CalendarSettings
}

// EffectiveSettings returns the settings row or defaults when absent.
func (c *StudioCalendar) EffectiveSettings() *CalendarSettings {
	if c.Settings != nil {
		return c.Settings
	}
	return DefaultCalendarSettings(c.Studio.ID)
}

// Calendar resolves the effective week, cutoff and zone. Settings override
// the studio's own opening hours; an unknown zone is returned as an error.
// The "Local" timezone selects the server-local naive rules.
func (c *StudioCalendar) Calendar() (schedule.Calendar, error) {
	week := c.Studio.OpeningHours
	cutoff := schedule.DefaultCutoffHour
	zone := schedule.DefaultTimezone
	if c.Settings != nil {
		cutoff = schedule.NormalizeCutoff(c.Settings.DayCutoffHour)
		zone = c.Settings.Timezone
		if c.Settings.WeeklyHours != nil {
			week = *c.Settings.WeeklyHours
		}
	}
	loc, err := schedule.LoadLocation(zone)
	if err != nil {
		return schedule.Calendar{}, fmt.Errorf("studio %s: %w", c.Studio.ID, err)
	}
	return schedule.Calendar{
		Week:        week,
		CutoffHour:  cutoff,
		Location:    loc,
		ServerLocal: zone == schedule.ServerLocalTimezone,
	}, nil
}

// RoomIDs lists the ids of the studio's rooms.
func (s *Studio) RoomIDs() []string {
	ids := make([]string, 0, len(s.Rooms))
	for _, r := range s.Rooms {
		ids = append(ids, r.ID)
	}
	return ids
}

// Room returns the room with the given id, or nil.
func (s *Studio) Room(id string) *Room {
	for i := range s.Rooms {
		if s.Rooms[i].ID == id {
			return &s.Rooms[i]
		}
	}
	return nil
}
