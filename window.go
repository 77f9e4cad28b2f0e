package apiwatch

import (
	"math"
	"time"

	"github.com/ryhazerus/apiwatch/store"
)

// ApplyIncrement adds amount to a quota counter, starting a fresh window at
// now when the period's bucket has rolled over since the counter's window
// start. It never rejects usage beyond the limit.
func ApplyIncrement(c store.Counter, p Period, amount int64, now time.Time) (next store.Counter, reset bool) {
	if p.Rolled(c.WindowStart, now) {
		return store.Counter{Usage: amount, WindowStart: now, Version: c.Version}, true
	}
	return store.Counter{Usage: c.Usage + amount, WindowStart: c.WindowStart, Version: c.Version}, false
}

// EffectiveUsage returns the usage a read path should report: the stored
// counter, or zero when its window is stale at now.
func EffectiveUsage(c store.Counter, p Period, now time.Time) int64 {
	if p.Rolled(c.WindowStart, now) {
		return 0
	}
	return c.Usage
}

// fitsIncrement reports whether ApplyIncrement can add amount to the counter
// at now without overflowing.
func fitsIncrement(c store.Counter, p Period, amount int64, now time.Time) bool {
	return p.Rolled(c.WindowStart, now) || c.Usage <= math.MaxInt64-amount
}
