package domain

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can freeze "today" via
// SetClock. Production code uses the real clock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Yesterday returns the UTC calendar day before the current clock time. It
// is the default end of the archive range, since the current day's analysis
// is not yet published.
func Yesterday() Date {
	return DateOf(clock.Now()).AddDays(-1)
}
