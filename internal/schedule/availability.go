package schedule

import "time"

// Calendar is the effective scheduling configuration of one studio.
// ServerLocal calendars run on the server's own clock and skip the offset
// round-trip.
type Calendar struct {
	Week        Week
	CutoffHour  int
	Location    *time.Location
	ServerLocal bool
}

// ServerLocalTimezone is the settings value selecting a server-local calendar.
const ServerLocalTimezone = "Local"

// BusinessDayStart resolves the business day of t for this calendar.
func (c Calendar) BusinessDayStart(t time.Time) time.Time {
	if c.ServerLocal {
		return BusinessDayStartNaive(t.In(c.Zone()), c.CutoffHour)
	}
	return BusinessDayStart(t, c.CutoffHour, c.Zone())
}

// Contains reports whether [start, end) lies inside opening hours.
func (c Calendar) Contains(start, end time.Time) bool {
	if c.ServerLocal {
		return IsWithinOpeningHoursNaive(start.In(c.Zone()), end, c.Week, c.CutoffHour)
	}
	return IsWithinOpeningHours(start, end, c.Week, c.CutoffHour, c.Zone())
}

// Zone returns the calendar location, UTC when unset.
func (c Calendar) Zone() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// IsWithinOpeningHours judges [start, end) against the opening hours of the
// business day start belongs to. The interval may run past local midnight as
// long as it ends before that day's (possibly wrapped) closing time.
func IsWithinOpeningHours(start, end time.Time, week Week, cutoffHour int, loc *time.Location) bool {
	return withinDay(start, end, week, BusinessDayStart(start, cutoffHour, loc))
}

// IsWithinOpeningHoursNaive is IsWithinOpeningHours on start's own wall clock.
// Calendars with ServerLocal set use it.
func IsWithinOpeningHoursNaive(start, end time.Time, week Week, cutoffHour int) bool {
	return withinDay(start, end, week, BusinessDayStartNaive(start, cutoffHour))
}

func withinDay(start, end time.Time, week Week, dayStart time.Time) bool {
	rng, ok := OpenRange(week, WeekdayIndex(dayStart))
	if !ok {
		return false
	}
	startMinutes := start.Sub(dayStart).Minutes()
	endMinutes := end.Sub(dayStart).Minutes()
	return startMinutes >= float64(rng.Start) && endMinutes <= float64(rng.End)
}

// Overlaps reports whether half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
