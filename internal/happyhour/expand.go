package happyhour

import (
	"sort"
	"time"

	"studiorent/internal/schedule"
)

// Occurrence is one concrete happy-hour window.
type Occurrence struct {
	RoomID  string    `json:"room_id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

// Expand walks every local date touched by [rangeStart, rangeEnd) and emits
// the template windows that overlap the range. The walk starts one day early
// so windows wrapping past midnight into the range are kept. The whole range
// is materialised; callers bound it to calendar-view spans.
func Expand(templates map[string][]Template, rangeStart, rangeEnd time.Time, loc *time.Location) []Occurrence {
	if !rangeEnd.After(rangeStart) || len(templates) == 0 {
		return nil
	}

	rooms := make([]string, 0, len(templates))
	for roomID := range templates {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)

	fy, fm, fd := rangeStart.In(loc).Date()
	ly, lm, ld := rangeEnd.In(loc).Date()
	last := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)

	var out []Occurrence
	for day := time.Date(fy, fm, fd-1, 0, 0, 0, 0, time.UTC); !day.After(last); day = day.AddDate(0, 0, 1) {
		midnight := schedule.LocalMidnight(day.Year(), day.Month(), day.Day(), loc)
		weekday := schedule.WeekdayIndex(midnight)

		for _, roomID := range rooms {
			for _, tpl := range templates[roomID] {
				if tpl.Weekday != weekday {
					continue
				}
				start := midnight.Add(time.Duration(tpl.StartMinutes) * time.Minute)
				end := midnight.Add(time.Duration(tpl.EndMinutes) * time.Minute)
				if start.Before(rangeEnd) && end.After(rangeStart) {
					out = append(out, Occurrence{RoomID: roomID, StartAt: start, EndAt: end})
				}
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartAt.Before(out[j].StartAt)
	})
	return out
}
