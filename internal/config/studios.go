package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"studiorent/internal/model"
	"studiorent/internal/schedule"
)

// RoomConfig is a room entry of studios.yaml.
type RoomConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// StudioConfig is a studio entry of studios.yaml. Unset calendar fields fall
// back to the file's defaults section.
type StudioConfig struct {
	ID            string              `yaml:"id"`
	OwnerID       string              `yaml:"owner_id"`
	Name          string              `yaml:"name"`
	Province      string              `yaml:"province"`
	District      string              `yaml:"district"`
	IsActive      bool                `yaml:"is_active"`
	Timezone      string              `yaml:"timezone,omitempty"`
	DayCutoffHour *int                `yaml:"day_cutoff_hour,omitempty"`
	OpeningHours  []schedule.DayHours `yaml:"opening_hours,omitempty"`
	Rooms         []RoomConfig        `yaml:"rooms"`
}

// StudioDefaults holds calendar values shared by all studios.
type StudioDefaults struct {
	Timezone        string              `yaml:"timezone"`
	DayCutoffHour   *int                `yaml:"day_cutoff_hour"`
	SlotStepMinutes int                 `yaml:"slot_step_minutes"`
	OpeningHours    []schedule.DayHours `yaml:"opening_hours"`
}

// StudiosConfig is the root of studios.yaml.
type StudiosConfig struct {
	Defaults StudioDefaults `yaml:"defaults"`
	Studios  []StudioConfig `yaml:"studios"`
}

// LoadStudiosConfig loads and validates studios.yaml.
func LoadStudiosConfig(path string) (*StudiosConfig, error) {
	if path == "" {
		path = "configs/studios.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read studios config: %w", err)
	}

	var cfg StudiosConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse studios config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate studios config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *StudiosConfig) Validate() error {
	if len(c.Studios) == 0 {
		return fmt.Errorf("no studios defined")
	}

	if err := validateCalendar(c.Defaults.Timezone, c.Defaults.DayCutoffHour, c.Defaults.OpeningHours, "defaults"); err != nil {
		return err
	}
	if c.Defaults.SlotStepMinutes != 0 && !model.ValidSlotStep(c.Defaults.SlotStepMinutes) {
		return fmt.Errorf("defaults.slot_step_minutes: %d is not one of 30, 60, 90, 120", c.Defaults.SlotStepMinutes)
	}

	ids := make(map[string]bool)
	roomIDs := make(map[string]bool)

	for i, st := range c.Studios {
		if st.ID == "" {
			return fmt.Errorf("studio[%d]: id is required", i)
		}
		if ids[st.ID] {
			return fmt.Errorf("studio[%d]: duplicate id '%s'", i, st.ID)
		}
		ids[st.ID] = true

		if st.Name == "" {
			return fmt.Errorf("studio[%d]: name is required", i)
		}
		if st.OwnerID == "" {
			return fmt.Errorf("studio[%d]: owner_id is required", i)
		}

		prefix := fmt.Sprintf("studio[%d]", i)
		if err := validateCalendar(st.Timezone, st.DayCutoffHour, st.OpeningHours, prefix); err != nil {
			return err
		}

		for j, room := range st.Rooms {
			if room.ID == "" {
				return fmt.Errorf("%s.rooms[%d]: id is required", prefix, j)
			}
			if roomIDs[room.ID] {
				return fmt.Errorf("%s.rooms[%d]: duplicate room id '%s'", prefix, j, room.ID)
			}
			roomIDs[room.ID] = true
		}
	}

	return nil
}

func validateCalendar(tz string, cutoff *int, hours []schedule.DayHours, prefix string) error {
	if tz != "" {
		if _, err := schedule.LoadLocation(tz); err != nil {
			return fmt.Errorf("%s.timezone: %w", prefix, err)
		}
	}
	if cutoff != nil && (*cutoff < 0 || *cutoff > schedule.MaxCutoffHour) {
		return fmt.Errorf("%s.day_cutoff_hour: must be between 0 and %d, got %d", prefix, schedule.MaxCutoffHour, *cutoff)
	}
	if hours == nil {
		return nil
	}
	if len(hours) != 7 {
		return fmt.Errorf("%s.opening_hours: need 7 entries (Monday first), got %d", prefix, len(hours))
	}
	for d, day := range hours {
		if !day.Open {
			continue
		}
		if _, err := schedule.ParseClock(day.OpenTime); err != nil {
			return fmt.Errorf("%s.opening_hours[%d].open_time: %w", prefix, d, err)
		}
		if _, err := schedule.ParseClock(day.CloseTime); err != nil {
			return fmt.Errorf("%s.opening_hours[%d].close_time: %w", prefix, d, err)
		}
	}
	return nil
}

// applyDefaults fills unset studio calendar fields from the defaults section.
func (c *StudiosConfig) applyDefaults() {
	if c.Defaults.Timezone == "" {
		c.Defaults.Timezone = schedule.DefaultTimezone
	}
	if c.Defaults.DayCutoffHour == nil {
		cutoff := schedule.DefaultCutoffHour
		c.Defaults.DayCutoffHour = &cutoff
	}
	if c.Defaults.SlotStepMinutes == 0 {
		c.Defaults.SlotStepMinutes = model.DefaultSlotStepMinutes
	}

	for i := range c.Studios {
		st := &c.Studios[i]
		if st.Timezone == "" {
			st.Timezone = c.Defaults.Timezone
		}
		if st.DayCutoffHour == nil {
			cutoff := *c.Defaults.DayCutoffHour
			st.DayCutoffHour = &cutoff
		}
		if st.OpeningHours == nil {
			st.OpeningHours = c.Defaults.OpeningHours
		}
	}
}

// Week returns the studio's normalized opening hours.
func (s *StudioConfig) Week() schedule.Week {
	return schedule.Normalize(s.OpeningHours)
}

// Studio converts the entry to the domain model.
func (s *StudioConfig) Studio() model.Studio {
	st := model.Studio{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		Name:         s.Name,
		Province:     s.Province,
		District:     s.District,
		OpeningHours: s.Week(),
		IsActive:     s.IsActive,
	}
	for _, r := range s.Rooms {
		st.Rooms = append(st.Rooms, model.Room{
			ID:       r.ID,
			StudioID: s.ID,
			Name:     r.Name,
			Type:     model.NormalizeRoomType(r.Type),
		})
	}
	return st
}

// Settings returns the initial calendar settings seeded for the studio.
func (s *StudioConfig) Settings(defaults StudioDefaults) model.CalendarSettings {
	settings := model.DefaultCalendarSettings(s.ID)
	settings.Timezone = s.Timezone
	if s.DayCutoffHour != nil {
		settings.DayCutoffHour = *s.DayCutoffHour
	}
	if defaults.SlotStepMinutes != 0 {
		settings.SlotStepMinutes = defaults.SlotStepMinutes
	}
	return *settings
}
