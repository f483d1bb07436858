package happyhour

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"studiorent/internal/model"
	"studiorent/internal/schedule"
)

// DaySummary is the per-weekday happy-hour setting shown to studio owners.
type DaySummary struct {
	Enabled bool   `json:"enabled"`
	EndTime string `json:"end_time"` // "HH:mm"
}

// BuildDays derives one summary per weekday (Monday first) from stored slots,
// using opening-anchored templates. Days without a template fall back to the
// day's closing time.
func BuildDays(slots []model.HappyHourSlot, cal schedule.Calendar) [7]DaySummary {
	var days [7]DaySummary
	for i := range days {
		days[i].EndTime = cal.Week[i].CloseTime
	}

	longest := [7]int{}
	for _, templates := range BuildTemplates(slots, cal, AnchorOpening) {
		for _, tpl := range templates {
			if !days[tpl.Weekday].Enabled || tpl.EndMinutes > longest[tpl.Weekday] {
				days[tpl.Weekday].Enabled = true
				longest[tpl.Weekday] = tpl.EndMinutes
			}
		}
	}
	for i := range days {
		if days[i].Enabled {
			days[i].EndTime = schedule.FormatClock(longest[i])
		}
	}
	return days
}

// GenerateWeek materialises the literal occurrences for the business week
// containing weekStart: one slot per room and enabled weekday, starting at
// opening time and ending at the requested end time (capped at closing time).
func GenerateWeek(roomIDs []string, cal schedule.Calendar, days [7]DaySummary, weekStart time.Time) ([]model.HappyHourSlot, error) {
	dayStart := cal.BusinessDayStart(weekStart)
	y, m, d := dayStart.Date()
	base := time.Date(y, m, d-schedule.WeekdayIndex(dayStart), 0, 0, 0, 0, time.UTC)

	var slots []model.HappyHourSlot
	for weekday, day := range days {
		if !day.Enabled {
			continue
		}
		rng, ok := schedule.OpenRange(cal.Week, weekday)
		if !ok {
			continue
		}
		end, err := schedule.ParseClock(day.EndTime)
		if err != nil {
			return nil, fmt.Errorf("day %d end time: %w", weekday, err)
		}
		if end <= rng.Start {
			end += 24 * 60
		}
		if end > rng.End {
			end = rng.End
		}

		date := base.AddDate(0, 0, weekday)
		midnight := schedule.LocalMidnight(date.Year(), date.Month(), date.Day(), cal.Zone())
		for _, roomID := range roomIDs {
			slots = append(slots, model.HappyHourSlot{
				ID:      uuid.New().String(),
				RoomID:  roomID,
				StartAt: midnight.Add(time.Duration(rng.Start) * time.Minute).UTC(),
				EndAt:   midnight.Add(time.Duration(end) * time.Minute).UTC(),
			})
		}
	}
	return slots, nil
}
