package apiwatch

import (
	"log/slog"
	"time"

	"github.com/ryhazerus/apiwatch/notify"
	"github.com/ryhazerus/apiwatch/store"
)

// Option configures the Tracker.
type Option func(*Tracker)

// WithStore sets the backing store for resources, rules and samples.
// If not provided, an in-memory store is used by default.
func WithStore(s store.Store) Option {
	return func(t *Tracker) {
		t.store = s
	}
}

// WithQueue sets where alert notifications are delivered.
// If not provided, an in-memory queue is used by default.
func WithQueue(q notify.Queue) Option {
	return func(t *Tracker) {
		t.queue = q
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLocation sets the time zone whose calendar decides window rollovers
// and history dates. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(t *Tracker) {
		t.loc = loc
	}
}

// WithAlertCooldown sets the minimum time between two firings of one rule.
func WithAlertCooldown(d time.Duration) Option {
	return func(t *Tracker) {
		t.cooldown = d
	}
}

// WithMaxAttempts bounds how often a counter update is tried when it races
// with another writer or the store is busy.
func WithMaxAttempts(n uint) Option {
	return func(t *Tracker) {
		t.maxAttempts = n
	}
}

// WithGranularityFunc overrides how usage samples are labelled.
func WithGranularityFunc(fn GranularityFunc) Option {
	return func(t *Tracker) {
		t.granularity = fn
	}
}
