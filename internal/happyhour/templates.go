// Package happyhour infers weekly happy-hour windows from the literal
// occurrences stored per room and projects them over arbitrary date ranges.
package happyhour

import (
	"sort"
	"time"

	"studiorent/internal/model"
	"studiorent/internal/schedule"
)

// Anchor selects which stored occurrences may define a template.
type Anchor int

const (
	// AnchorOpening only accepts occurrences that start at the room's opening
	// time for that weekday. Used by the calendar-settings read path.
	AnchorOpening Anchor = iota
	// AnchorObserved accepts any observed start offset. Used by the public
	// calendar view.
	AnchorObserved
)

// Template is a weekly window in minutes from the business-day start.
type Template struct {
	Weekday      int `json:"weekday"` // 0 = Monday
	StartMinutes int `json:"start_minutes"`
	EndMinutes   int `json:"end_minutes"`
}

type templateKey struct {
	roomID  string
	weekday int
	start   int
}

// BuildTemplates groups stored occurrences by room, business weekday and start
// offset. Repeated keys keep the longest window seen, so a single truncated
// record cannot shorten the recurrence.
func BuildTemplates(slots []model.HappyHourSlot, cal schedule.Calendar, anchor Anchor) map[string][]Template {
	longest := make(map[templateKey]int)
	for _, slot := range slots {
		dayStart := cal.BusinessDayStart(slot.StartAt)
		weekday := schedule.WeekdayIndex(dayStart)
		start := minutesSince(dayStart, slot.StartAt)
		end := minutesSince(dayStart, slot.EndAt)
		if end <= start {
			end += 24 * 60
		}

		if anchor == AnchorOpening {
			rng, ok := schedule.OpenRange(cal.Week, weekday)
			if !ok || rng.Start != start {
				continue
			}
		}

		key := templateKey{roomID: slot.RoomID, weekday: weekday, start: start}
		if cur, ok := longest[key]; !ok || end > cur {
			longest[key] = end
		}
	}

	result := make(map[string][]Template)
	for key, end := range longest {
		result[key.roomID] = append(result[key.roomID], Template{
			Weekday:      key.weekday,
			StartMinutes: key.start,
			EndMinutes:   end,
		})
	}
	for _, templates := range result {
		sort.Slice(templates, func(i, j int) bool {
			if templates[i].Weekday != templates[j].Weekday {
				return templates[i].Weekday < templates[j].Weekday
			}
			return templates[i].StartMinutes < templates[j].StartMinutes
		})
	}
	return result
}

func minutesSince(from, to time.Time) int {
	return int(to.Sub(from) / time.Minute)
}
