package scheduler

import "time"

// NextBoundary returns the next wall-clock instant strictly after now whose local time
// of day is a whole multiple of stagger counted from midnight. Every node configured
// with the same stagger reports on the same grid, however long its own cycle took.
// The grid is read off the wall clock, so it survives daylight saving shifts that are
// not a multiple of the stagger.
func NextBoundary(now time.Time, stagger time.Duration) time.Time {
	if stagger <= 0 {
		return now
	}
	y, mo, d := now.Date()
	loc := now.Location()
	elapsed := wallOfDay(now)
	slot := (elapsed/stagger + 1) * stagger

	// the last slot of the day is cut short by midnight; the next day restarts the grid
	if slot >= 24*time.Hour {
		return time.Date(y, mo, d+1, 0, 0, 0, 0, loc)
	}

	h := slot / time.Hour
	m := (slot % time.Hour) / time.Minute
	s := (slot % time.Minute) / time.Second
	ns := slot % time.Second
	next := time.Date(y, mo, d, int(h), int(m), int(s), int(ns), loc)
	if !next.After(now) {
		// the wall time repeats when clocks fall back; step forward by wall distance
		next = now.Add(slot - elapsed)
	}
	return next
}

// NextDelay is the wait until NextBoundary. It is always in (0, stagger] outside a
// daylight saving transition.
func NextDelay(now time.Time, stagger time.Duration) time.Duration {
	return NextBoundary(now, stagger).Sub(now)
}

func wallOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
