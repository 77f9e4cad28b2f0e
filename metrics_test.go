package apiwatch

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/ryhazerus/apiwatch/store"
)

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	fs := &faultyStore{Store: store.NewMemoryStore()}
	tr, clock := newTestTracker(t, WithStore(fs), WithMetrics(m), WithMaxAttempts(2))
	res := mustCreate(t, tr, "u1", ResourceSpec{Name: "openai", Limit: 10, Period: "hour"})
	ctx := context.Background()

	if _, err := tr.CreateAlertRule(ctx, "u1", res.ID, 50); err != nil {
		t.Fatal(err)
	}
	for _, n := range []int64{3, 4} {
		if _, err := tr.RecordUsage(ctx, "u1", res.ID, n); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(time.Hour)
	if _, err := tr.RecordUsage(ctx, "u1", res.ID, 1); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.usageRecorded.WithLabelValues("hour")); got != 8 {
		t.Errorf("usage recorded = %v, want 8", got)
	}
	if got := testutil.ToFloat64(m.windowResets.WithLabelValues("hour")); got != 1 {
		t.Errorf("window resets = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.alertsFired); got != 1 {
		t.Errorf("alerts fired = %v, want 1", got)
	}

	fs.appendErr = store.ErrTransient
	fs.counterFailures, fs.counterErr = 2, store.ErrConflict
	if _, err := tr.RecordUsage(ctx, "u1", res.ID, 1); err == nil {
		t.Fatal("expected the increment to fail")
	}
	if got := testutil.ToFloat64(m.incrementFailures); got != 1 {
		t.Errorf("increment failures = %v, want 1", got)
	}
	if _, err := tr.RecordUsage(ctx, "u1", res.ID, 1); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.sideChannelErrors.WithLabelValues("ledger")); got != 1 {
		t.Errorf("ledger errors = %v, want 1", got)
	}

	if n, err := testutil.GatherAndCount(reg, "apiwatch_record_usage_duration_seconds"); err != nil || n != 1 {
		t.Errorf("duration histogram count = %d, %v", n, err)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.recordUsage(PerDay, 1, true, 1, 0)
	m.recordIncrementFailure()
	m.recordAlertFired()
	m.recordSideChannelError("ledger")
}
