package domain

import "time"

// Clock supplies the current time to the engine so timers can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Elapsed returns to - from, never negative.
func Elapsed(from, to time.Time) time.Duration {
	if to.Before(from) {
		return 0
	}
	return to.Sub(from)
}

// PercentElapsed reports how much of the start..due window has been consumed at now,
// clamped to [0, 100].
func PercentElapsed(start, due, now time.Time) float64 {
	window := due.Sub(start)
	if window <= 0 {
		if now.Before(due) {
			return 0
		}
		return 100
	}

	pct := 100 * float64(now.Sub(start)) / float64(window)
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}
