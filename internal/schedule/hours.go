package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// DefaultOpenTime and DefaultCloseTime describe the fallback week.
const (
	DefaultOpenTime  = "09:00"
	DefaultCloseTime = "21:00"
)

// ErrMalformedTime is returned by ParseClock for anything that is not HH:mm.
var ErrMalformedTime = errors.New("malformed time string")

// DayHours is one weekday entry of an opening-hours week.
type DayHours struct {
	Open      bool   `json:"open" yaml:"open"`
	OpenTime  string `json:"open_time" yaml:"open_time"`   // "09:00"
	CloseTime string `json:"close_time" yaml:"close_time"` // "21:00"
}

// Week is a Monday-first weekly schedule.
type Week [7]DayHours

// Range is an open window in minutes from local midnight of the business day.
// End may exceed 1440 when the window rolls past midnight.
type Range struct {
	Start int
	End   int
}

// DefaultWeek returns every day open from 09:00 to 21:00.
func DefaultWeek() Week {
	var w Week
	for i := range w {
		w[i] = DayHours{Open: true, OpenTime: DefaultOpenTime, CloseTime: DefaultCloseTime}
	}
	return w
}

// Normalize returns raw as a Week when it has exactly seven entries,
// otherwise the default week.
func Normalize(raw []DayHours) Week {
	if len(raw) != len(Week{}) {
		return DefaultWeek()
	}
	var w Week
	copy(w[:], raw)
	return w
}

// DecodeWeek parses a stored JSON week. Malformed payloads yield the default week.
func DecodeWeek(data []byte) Week {
	if len(data) == 0 {
		return DefaultWeek()
	}
	var raw []DayHours
	if err := json.Unmarshal(data, &raw); err != nil {
		return DefaultWeek()
	}
	return Normalize(raw)
}

// ParseClock converts "HH:mm" to minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || !isDigits(parts[0]) || !isDigits(parts[1]) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	hour, _ := strconv.Atoi(parts[0])
	minute, _ := strconv.Atoi(parts[1])
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedTime, s)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes from midnight as "HH:mm", wrapping past 24h.
func FormatClock(minutes int) string {
	m := ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// OpenRange returns the open window for a Monday-first weekday index.
// Closed days and unparsable entries report false.
func OpenRange(w Week, weekday int) (Range, bool) {
	if weekday < 0 || weekday >= len(w) {
		return Range{}, false
	}
	day := w[weekday]
	if !day.Open {
		return Range{}, false
	}
	start, err := ParseClock(day.OpenTime)
	if err != nil {
		return Range{}, false
	}
	end, err := ParseClock(day.CloseTime)
	if err != nil {
		return Range{}, false
	}
	if end <= start {
		end += minutesPerDay
	}
	return Range{Start: start, End: end}, true
}

func isDigits(s string) bool {
	if s == "" || len(s) > 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
