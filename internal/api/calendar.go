package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"studiorent/internal/blocks"
	"studiorent/internal/events"
	"studiorent/internal/export"
	"studiorent/internal/happyhour"
	"studiorent/internal/metrics"
	"studiorent/internal/model"
	"studiorent/internal/schedule"
)

// CalendarResponse is one studio's calendar over [start, end).
type CalendarResponse struct {
	StudioID   string                 `json:"studio_id"`
	Timezone   string                 `json:"timezone"`
	Start      time.Time              `json:"start"`
	End        time.Time              `json:"end"`
	Blocks     []model.CalendarBlock  `json:"blocks"`
	HappyHours []happyhour.Occurrence `json:"happy_hours"`
}

// CalendarSettingsResponse is the owner-facing settings view.
type CalendarSettingsResponse struct {
	StudioID         string                  `json:"studio_id"`
	DayCutoffHour    int                     `json:"day_cutoff_hour"`
	Timezone         string                  `json:"timezone"`
	SlotStepMinutes  int                     `json:"slot_step_minutes"`
	HappyHourEnabled bool                    `json:"happy_hour_enabled"`
	WeeklyHours      schedule.Week           `json:"weekly_hours"`
	HappyHourDays    [7]happyhour.DaySummary `json:"happy_hour_days"`
}

// CalendarSettingsRequest is the body of PUT /api/studios/{id}/calendar-settings.
// Omitted fields keep their current values.
type CalendarSettingsRequest struct {
	DayCutoffHour    *int                   `json:"day_cutoff_hour,omitempty"`
	Timezone         string                 `json:"timezone,omitempty"`
	SlotStepMinutes  int                    `json:"slot_step_minutes,omitempty"`
	HappyHourEnabled *bool                  `json:"happy_hour_enabled,omitempty"`
	WeeklyHours      []schedule.DayHours    `json:"weekly_hours,omitempty"`
	HappyHourDays    []happyhour.DaySummary `json:"happy_hour_days,omitempty"`
}

// handleCalendar returns blocks and happy hours overlapping the range.
// GET /api/studios/{id}/calendar?start=...&end=...
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar")

	studioID := r.PathValue("id")
	start, end, ok := s.parseRange(w, r)
	if !ok {
		return
	}

	var cached CalendarResponse
	if s.cache.readCache(r.Context(), studioID, start, end, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	view, _, _, err := s.loadCalendar(r.Context(), studioID, start, end)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.cache.writeCache(r.Context(), studioID, start, end, view)
	writeJSON(w, http.StatusOK, view)
}

// handleCalendarExport returns the calendar view as an Excel workbook.
// GET /api/studios/{id}/calendar.xlsx?start=...&end=...
func (s *HTTPServer) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar_export")

	studioID := r.PathValue("id")
	start, end, ok := s.parseRange(w, r)
	if !ok {
		return
	}

	view, sc, cal, err := s.loadCalendar(r.Context(), studioID, start, end)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	loc := cal.Zone()

	var buf bytes.Buffer
	err = export.WriteCalendar(&buf, export.Calendar{
		Studio:     sc.Studio,
		Location:   loc,
		Start:      start,
		End:        end,
		Blocks:     view.Blocks,
		HappyHours: view.HappyHours,
	})
	if err != nil {
		s.writeDomainError(w, fmt.Errorf("export calendar: %w", err))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(studioID, start, end, loc)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// parseRange reads RFC3339 start and end query parameters and enforces the
// configured maximum span. It writes the error response itself.
func (s *HTTPServer) parseRange(w http.ResponseWriter, r *http.Request) (start, end time.Time, ok bool) {
	q := r.URL.Query()
	if q.Get("start") == "" || q.Get("end") == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "start and end are required")
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid start format; expected RFC3339")
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid end format; expected RFC3339")
		return time.Time{}, time.Time{}, false
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, CodeInvalidRange, "end must be after start")
		return time.Time{}, time.Time{}, false
	}
	if end.Sub(start) > s.opts.MaxRange {
		writeError(w, http.StatusBadRequest, CodeInvalidRange,
			fmt.Sprintf("range exceeds maximum of %d days", int(s.opts.MaxRange/(24*time.Hour))))
		return time.Time{}, time.Time{}, false
	}
	return start.UTC(), end.UTC(), true
}

// loadCalendar builds the public calendar view. Happy hours use the loose
// anchor and are only shown while the studio has them enabled.
func (s *HTTPServer) loadCalendar(ctx context.Context, studioID string, start, end time.Time) (*CalendarResponse, *model.StudioCalendar, schedule.Calendar, error) {
	sc, err := s.store.GetStudioCalendar(ctx, studioID)
	if err != nil {
		return nil, nil, schedule.Calendar{}, err
	}
	if sc == nil {
		return nil, nil, schedule.Calendar{}, fmt.Errorf("studio %s: %w", studioID, blocks.ErrNotFound)
	}
	cal, err := sc.Calendar()
	if err != nil {
		return nil, nil, schedule.Calendar{}, err
	}

	stored, err := s.store.BlocksOverlapping(ctx, sc.Studio.RoomIDs(), start, end)
	if err != nil {
		return nil, nil, schedule.Calendar{}, err
	}

	view := &CalendarResponse{
		StudioID:   studioID,
		Timezone:   sc.EffectiveSettings().Timezone,
		Start:      start,
		End:        end,
		Blocks:     make([]model.CalendarBlock, 0, len(stored)),
		HappyHours: make([]happyhour.Occurrence, 0),
	}
	view.Blocks = append(view.Blocks, stored...)

	if sc.EffectiveSettings().HappyHourEnabled {
		slots, err := s.store.ListHappyHourSlots(ctx, studioID)
		if err != nil {
			return nil, nil, schedule.Calendar{}, err
		}
		templates := happyhour.BuildTemplates(slots, cal, happyhour.AnchorObserved)
		for _, occ := range happyhour.Expand(templates, start, end, cal.Zone()) {
			occ.StartAt = occ.StartAt.UTC()
			occ.EndAt = occ.EndAt.UTC()
			view.HappyHours = append(view.HappyHours, occ)
		}
	}
	return view, sc, cal, nil
}

// handleGetCalendarSettings returns the effective settings and the
// per-weekday happy-hour summary.
// GET /api/studios/{id}/calendar-settings
func (s *HTTPServer) handleGetCalendarSettings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar_settings_get")

	sc, err := s.studio(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	resp, err := s.settingsResponse(r.Context(), sc)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePutCalendarSettings saves the studio's settings. When happy hours are
// enabled and days are supplied, the stored occurrences are regenerated for
// the current business week in the same transaction.
// PUT /api/studios/{id}/calendar-settings
func (s *HTTPServer) handlePutCalendarSettings(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("calendar_settings_put")

	var req CalendarSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid JSON body")
		return
	}

	sc, err := s.studio(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	ownerID := r.Header.Get("X-Owner-ID")
	if ownerID == "" || ownerID != sc.Studio.OwnerID {
		s.writeDomainError(w, blocks.ErrForbidden)
		return
	}

	settings, err := mergeSettings(sc, &req)
	if err != nil {
		if errors.Is(err, schedule.ErrUnknownTimezone) {
			s.writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	updated := *sc
	updated.Settings = settings

	// Occurrences are generated before anything is written so that settings
	// and happy hours are stored together or not at all.
	var happyHours []model.HappyHourSlot
	regenerate := settings.HappyHourEnabled && len(req.HappyHourDays) == 7
	if regenerate {
		happyHours, err = s.generateHappyHours(&updated, req.HappyHourDays)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	if err := s.store.SaveCalendarSettings(r.Context(), settings, happyHours); err != nil {
		s.writeDomainError(w, err)
		return
	}
	sc = &updated
	s.publish(events.CalendarSettingsSaved, sc.Studio.ID)
	if regenerate {
		metrics.IncHappyHourRegeneration()
		s.publish(events.HappyHoursReplaced, sc.Studio.ID)
		s.logger.Info().
			Str("studio_id", sc.Studio.ID).
			Int("slots", len(happyHours)).
			Msg("Happy hours regenerated")
	}

	resp, err := s.settingsResponse(r.Context(), sc)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) studio(ctx context.Context, studioID string) (*model.StudioCalendar, error) {
	sc, err := s.store.GetStudioCalendar(ctx, studioID)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, fmt.Errorf("studio %s: %w", studioID, blocks.ErrNotFound)
	}
	return sc, nil
}

// settingsResponse uses the strict anchor: only occurrences starting at the
// day's opening time count as a configured happy hour.
func (s *HTTPServer) settingsResponse(ctx context.Context, sc *model.StudioCalendar) (*CalendarSettingsResponse, error) {
	cal, err := sc.Calendar()
	if err != nil {
		return nil, err
	}
	slots, err := s.store.ListHappyHourSlots(ctx, sc.Studio.ID)
	if err != nil {
		return nil, err
	}
	settings := sc.EffectiveSettings()
	return &CalendarSettingsResponse{
		StudioID:         sc.Studio.ID,
		DayCutoffHour:    cal.CutoffHour,
		Timezone:         settings.Timezone,
		SlotStepMinutes:  settings.SlotStepMinutes,
		HappyHourEnabled: settings.HappyHourEnabled,
		WeeklyHours:      cal.Week,
		HappyHourDays:    happyhour.BuildDays(slots, cal),
	}, nil
}

func mergeSettings(sc *model.StudioCalendar, req *CalendarSettingsRequest) (*model.CalendarSettings, error) {
	current := *sc.EffectiveSettings()
	current.StudioID = sc.Studio.ID
	current.UpdatedAt = time.Time{}

	if req.DayCutoffHour != nil {
		current.DayCutoffHour = *req.DayCutoffHour
	}
	if req.Timezone != "" {
		current.Timezone = req.Timezone
	}
	if req.SlotStepMinutes != 0 {
		current.SlotStepMinutes = req.SlotStepMinutes
	}
	if req.HappyHourEnabled != nil {
		current.HappyHourEnabled = *req.HappyHourEnabled
	}
	if req.WeeklyHours != nil {
		week, err := validateWeek(req.WeeklyHours)
		if err != nil {
			return nil, err
		}
		current.WeeklyHours = &week
	}
	if req.HappyHourDays != nil {
		if err := validateHappyHourDays(req.HappyHourDays); err != nil {
			return nil, err
		}
	}
	if err := current.Validate(); err != nil {
		return nil, err
	}
	return &current, nil
}

// validateWeek rejects submitted weeks that queries would silently degrade.
func validateWeek(days []schedule.DayHours) (schedule.Week, error) {
	var week schedule.Week
	if len(days) != len(week) {
		return week, fmt.Errorf("weekly_hours: need 7 entries, got %d", len(days))
	}
	for i, d := range days {
		if d.Open {
			if _, err := schedule.ParseClock(d.OpenTime); err != nil {
				return week, fmt.Errorf("weekly_hours[%d].open_time: %w", i, err)
			}
			if _, err := schedule.ParseClock(d.CloseTime); err != nil {
				return week, fmt.Errorf("weekly_hours[%d].close_time: %w", i, err)
			}
		}
		week[i] = d
	}
	return week, nil
}

func validateHappyHourDays(days []happyhour.DaySummary) error {
	if len(days) != 7 {
		return fmt.Errorf("happy_hour_days: need 7 entries, got %d", len(days))
	}
	for i, d := range days {
		if !d.Enabled {
			continue
		}
		if _, err := schedule.ParseClock(d.EndTime); err != nil {
			return fmt.Errorf("happy_hour_days[%d].end_time: %w", i, err)
		}
	}
	return nil
}

// generateHappyHours builds the current business week's occurrences. The
// result is never nil so that an all-disabled week clears the stored ones.
func (s *HTTPServer) generateHappyHours(sc *model.StudioCalendar, submitted []happyhour.DaySummary) ([]model.HappyHourSlot, error) {
	cal, err := sc.Calendar()
	if err != nil {
		return nil, err
	}
	var days [7]happyhour.DaySummary
	copy(days[:], submitted)

	slots, err := happyhour.GenerateWeek(sc.Studio.RoomIDs(), cal, days, s.now())
	if err != nil {
		return nil, err
	}
	if slots == nil {
		slots = []model.HappyHourSlot{}
	}
	return slots, nil
}

func (s *HTTPServer) publish(eventType, studioID string) {
	if err := s.bus.Publish(events.Event{Type: eventType, StudioID: studioID}); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Event handler failed")
	}
}
