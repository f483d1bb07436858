// Package schedule holds the opening-hours model and the business-day rules
// shared by availability checks and happy-hour expansion.
package schedule

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

const (
	// DefaultTimezone is used when a studio has no calendar settings.
	DefaultTimezone = "Europe/Istanbul"
	// DefaultCutoffHour is the local hour at which a business day rolls over.
	DefaultCutoffHour = 4
	// MaxCutoffHour is the latest allowed cutoff hour.
	MaxCutoffHour = 6
)

// ErrUnknownTimezone is returned for IANA zone names that cannot be loaded.
var ErrUnknownTimezone = errors.New("unknown timezone")

// LoadLocation resolves an IANA zone name. Empty name means DefaultTimezone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTimezone, name)
	}
	return loc, nil
}

// NormalizeCutoff clamps invalid cutoff hours to DefaultCutoffHour.
func NormalizeCutoff(hour int) int {
	if hour < 0 || hour > MaxCutoffHour {
		return DefaultCutoffHour
	}
	return hour
}

// ZoneOffset returns the UTC offset in effect in loc at the given instant.
func ZoneOffset(instant time.Time, loc *time.Location) time.Duration {
	_, offset := instant.In(loc).Zone()
	return time.Duration(offset) * time.Second
}

// LocalMidnight returns the first instant of the given calendar date in loc.
// The offset is looked up twice: once for the UTC-constructed date and once
// for the corrected guess, so dates next to a DST switch land on the right hour.
// When the switch happens at 00:00 local, midnight does not exist and the day
// starts at the transition (01:00 on the new offset).
func LocalMidnight(year int, month time.Month, day int, loc *time.Location) time.Time {
	naive := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	guess := naive.Add(-ZoneOffset(naive, loc))
	midnight := naive.Add(-ZoneOffset(guess, loc)).In(loc)
	if sameDate(midnight, naive) {
		return midnight
	}
	// The corrected guess used the post-switch offset and fell back into the
	// previous date; the pre-switch offset lands exactly on the transition.
	start := naive.Add(-ZoneOffset(midnight, loc)).In(loc)
	if sameDate(start, naive) {
		return start
	}
	return midnight
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// BusinessDayStart returns local midnight of the business date containing t.
// Instants before cutoffHour belong to the previous calendar date.
func BusinessDayStart(t time.Time, cutoffHour int, loc *time.Location) time.Time {
	local := t.In(loc)
	year, month, day := local.Date()
	if beforeCutoff(local, cutoffHour) {
		year, month, day = time.Date(year, month, day-1, 0, 0, 0, 0, time.UTC).Date()
	}
	return LocalMidnight(year, month, day, loc)
}

// BusinessDayStartNaive applies the same rule on t's own wall clock,
// assuming a fixed offset for the whole day.
// Calendars with ServerLocal set use it.
func BusinessDayStartNaive(t time.Time, cutoffHour int) time.Time {
	elapsed := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	start := t.Add(-elapsed)
	if beforeCutoff(t, cutoffHour) {
		start = start.Add(-24 * time.Hour)
	}
	return start
}

// WeekdayIndex maps t's weekday to the Monday-first index used by Week.
func WeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func beforeCutoff(local time.Time, cutoffHour int) bool {
	return local.Hour()*60+local.Minute() < cutoffHour*60
}
