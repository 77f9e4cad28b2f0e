package apiwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/ryhazerus/apiwatch/notify"
	"github.com/ryhazerus/apiwatch/store"
)

const (
	// DefaultMaxAttempts bounds counter update attempts per RecordUsage.
	DefaultMaxAttempts = 5
	// DetailHistoryRows is how many recent samples GetResourceDetail returns.
	DetailHistoryRows = 30
)

// Tracker is the main entry point for apiwatch. It records usage against
// tracked resources, derives their status, forecasts exhaustion and fires
// threshold alerts.
type Tracker struct {
	store       store.Store
	queue       notify.Queue
	ledger      *Ledger
	alerts      *AlertEvaluator
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time
	loc         *time.Location
	cooldown    time.Duration
	maxAttempts uint
	granularity GranularityFunc
}

// New creates a new Tracker with the given options.
// If no store or queue is provided, in-memory ones are used.
func New(opts ...Option) *Tracker {
	t := &Tracker{}
	for _, o := range opts {
		o(t)
	}
	if t.store == nil {
		t.store = store.NewMemoryStore()
	}
	if t.queue == nil {
		t.queue = notify.NewMemoryQueue(0)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.logger = t.logger.With("component", "apiwatch.tracker")
	if t.now == nil {
		t.now = time.Now
	}
	if t.loc == nil {
		t.loc = time.UTC
	}
	if t.cooldown <= 0 {
		t.cooldown = DefaultAlertCooldown
	}
	if t.maxAttempts == 0 {
		t.maxAttempts = DefaultMaxAttempts
	}
	t.ledger = NewLedger(t.store, t.granularity)
	t.alerts = &AlertEvaluator{
		store:    t.store,
		queue:    t.queue,
		cooldown: t.cooldown,
		logger:   t.logger,
		metrics:  t.metrics,
		newID:    uuid.NewString,
	}
	return t
}

func (t *Tracker) clock() time.Time {
	return t.now().In(t.loc)
}

// RecordUsage adds count requests to a resource's current window, resetting
// the window first if its period has rolled over, then appends a ledger
// sample and evaluates the resource's alert rules.
//
// Only the counter update must succeed. If it cannot be confirmed after
// the configured attempts RecordUsage returns ErrTransient and nothing was
// counted. Ledger and alert failures are logged and do not fail the call.
func (t *Tracker) RecordUsage(ctx context.Context, userID, resourceID string, count int64) (UsageResult, error) {
	if count < 1 {
		return UsageResult{}, &ValidationError{Field: "count", Reason: "must be a positive integer"}
	}

	start := time.Now()
	now := t.clock()

	var (
		res      store.Resource
		period   Period
		reset    bool
		badState error
		overflow bool
		attempts int
	)
	update := func(r store.Resource) store.Counter {
		res = r
		overflow = false
		p, err := ParsePeriod(r.Period)
		if err != nil {
			badState = err
			return r.Counter
		}
		badState = nil
		period = p
		overflow = !fitsIncrement(r.Counter, p, count, now)
		if overflow {
			return r.Counter
		}
		next, rolled := ApplyIncrement(r.Counter, p, count, now)
		reset = rolled
		return next
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	counter, err := backoff.Retry(ctx, func() (store.Counter, error) {
		attempts++
		c, err := t.store.UpdateCounter(ctx, userID, resourceID, update)
		if err == nil || errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrTransient) {
			return c, err
		}
		return c, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(t.maxAttempts))
	if err != nil {
		err = translate(err)
		if errors.Is(err, ErrTransient) {
			t.metrics.recordIncrementFailure()
			t.logger.Error("usage not recorded",
				"resource_id", resourceID,
				"attempts", attempts,
				"error", err,
			)
		}
		return UsageResult{}, err
	}
	if overflow {
		return UsageResult{}, &ValidationError{Field: "count", Reason: "would overflow the usage counter"}
	}
	if badState != nil {
		return UsageResult{}, fmt.Errorf("%w: resource %s: %v", ErrInternal, resourceID, badState)
	}
	res.Counter = counter

	if reset {
		t.logger.Info("quota window reset",
			"resource_id", resourceID,
			"period", period.String(),
			"window_start", counter.WindowStart,
		)
	}

	// The counter is committed; the remaining steps run even if the caller
	// goes away.
	side := context.WithoutCancel(ctx)

	if _, err := t.ledger.Append(side, resourceID, count, now); err != nil {
		t.logger.Warn("usage sample not recorded",
			"resource_id", resourceID,
			"count", count,
			"error", err,
		)
		t.metrics.recordSideChannelError("ledger")
	}

	pct, status := Classify(counter.Usage, res.Limit)

	var fired int
	rules, err := t.store.ResourceRules(side, resourceID)
	if err != nil {
		t.logger.Warn("alert rules unavailable",
			"resource_id", resourceID,
			"error", err,
		)
		t.metrics.recordSideChannelError("alert")
	} else {
		fired = len(t.alerts.Evaluate(side, res, rules, pct, now))
	}

	t.metrics.recordUsage(period, count, reset, attempts, time.Since(start))
	t.logger.Debug("usage recorded",
		"resource_id", resourceID,
		"user_id", userID,
		"count", count,
		"usage", counter.Usage,
		"percentage", pct,
	)

	return UsageResult{
		ResourceID: resourceID,
		Usage:      counter.Usage,
		Limit:      res.Limit,
		Percentage: pct,
		Status:     status,
		Reset:      reset,
		Alerts:     fired,
	}, nil
}

// summarize derives the read-side view of a resource at now.
func (t *Tracker) summarize(r store.Resource, rules []RuleView, now time.Time) ResourceSummary {
	s := ResourceSummary{
		ID:              r.ID,
		ServiceName:     r.Name,
		Pattern:         r.Pattern,
		RateLimit:       r.Limit,
		RateLimitPeriod: r.Period,
		CurrentUsage:    r.Counter.Usage,
		LastReset:       r.Counter.WindowStart,
		CreatedAt:       r.CreatedAt,
		Alerts:          rules,
		TimeUntilReset:  ResettingLabel,
	}
	if s.Alerts == nil {
		s.Alerts = []RuleView{}
	}
	if p, err := ParsePeriod(r.Period); err == nil {
		s.CurrentUsage = EffectiveUsage(r.Counter, p, now)
		s.TimeUntilReset = TimeUntilReset(r.Counter.WindowStart.In(t.loc), p, now)
	}
	s.UsagePercentage, s.Status = Classify(s.CurrentUsage, r.Limit)
	return s
}

// ListResources returns the user's resources, newest first, with status,
// percentage and time until reset computed at call time.
func (t *Tracker) ListResources(ctx context.Context, userID string) ([]ResourceSummary, error) {
	resources, err := t.store.ListResources(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	rules, err := t.store.ListRules(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}

	byResource := make(map[string][]RuleView)
	for _, rule := range rules {
		byResource[rule.ResourceID] = append(byResource[rule.ResourceID], ruleView(rule))
	}

	now := t.clock()
	out := make([]ResourceSummary, 0, len(resources))
	for _, r := range resources {
		out = append(out, t.summarize(r, byResource[r.ID], now))
	}
	return out, nil
}

// GetResourceDetail returns one resource with its alert rules, its most
// recent usage samples and a forecast.
func (t *Tracker) GetResourceDetail(ctx context.Context, userID, resourceID string) (ResourceDetail, error) {
	r, err := t.store.GetResource(ctx, userID, resourceID)
	if err != nil {
		return ResourceDetail{}, translate(err)
	}
	rules, err := t.store.ResourceRules(ctx, resourceID)
	if err != nil {
		return ResourceDetail{}, translate(err)
	}
	recent, err := t.store.RecentSamples(ctx, resourceID, DetailHistoryRows)
	if err != nil {
		return ResourceDetail{}, translate(err)
	}

	views := make([]RuleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, ruleView(rule))
	}
	history := make([]SampleView, 0, len(recent))
	for _, s := range recent {
		history = append(history, SampleView{
			ID:            s.ID,
			RequestsCount: s.Count,
			Period:        s.Granularity,
			Timestamp:     s.RecordedAt,
		})
	}

	now := t.clock()
	summary := t.summarize(r, views, now)
	return ResourceDetail{
		ResourceSummary: summary,
		UsageHistory:    history,
		Forecast:        t.forecast(ctx, r, summary.CurrentUsage, now),
	}, nil
}

// GetHistory returns the requests recorded for a resource per date over the
// selected range, restricted to samples with the given granularity label.
func (t *Tracker) GetHistory(ctx context.Context, userID, resourceID string, rng HistoryRange, g Granularity) ([]HistoryPoint, error) {
	if _, err := ParseHistoryRange(string(rng)); err != nil {
		return nil, err
	}
	if _, err := ParseGranularity(string(g)); err != nil {
		return nil, err
	}
	if _, err := t.store.GetResource(ctx, userID, resourceID); err != nil {
		return nil, translate(err)
	}

	since := t.clock().AddDate(0, 0, -rng.days())
	points, err := AggregateByDate(t.ledger.Query(ctx, resourceID, since, g), t.loc)
	if err != nil {
		return nil, translate(err)
	}
	if points == nil {
		points = []HistoryPoint{}
	}
	return points, nil
}

// PruneSamples deletes ledger samples older than the given age.
func (t *Tracker) PruneSamples(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := t.store.PruneSamples(ctx, t.clock().Add(-olderThan))
	if err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// Close releases resources held by the tracker's store.
func (t *Tracker) Close() error {
	return t.store.Close()
}
