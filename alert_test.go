package apiwatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ryhazerus/apiwatch/notify"
	"github.com/ryhazerus/apiwatch/store"
)

func TestShouldFire(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		at := now.Add(-d)
		return &at
	}

	tests := []struct {
		name string
		rule store.AlertRule
		pct  float64
		want bool
	}{
		{"never fired", store.AlertRule{Threshold: 80, Active: true}, 80, true},
		{"below threshold", store.AlertRule{Threshold: 80, Active: true}, 79.9, false},
		{"inactive", store.AlertRule{Threshold: 80, Active: false}, 95, false},
		{"within cooldown", store.AlertRule{Threshold: 80, Active: true, LastTriggered: ago(30 * time.Minute)}, 95, false},
		{"exactly cooldown", store.AlertRule{Threshold: 80, Active: true, LastTriggered: ago(time.Hour)}, 95, false},
		{"after cooldown", store.AlertRule{Threshold: 80, Active: true, LastTriggered: ago(61 * time.Minute)}, 95, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldFire(tt.rule, tt.pct, now, time.Hour); got != tt.want {
				t.Errorf("ShouldFire = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlertFiresOncePerCooldown(t *testing.T) {
	tr, clock := newTestTracker(t)
	res := mustCreate(t, tr, "u1", ResourceSpec{Name: "openai", Limit: 100, Period: "day"})
	ctx := context.Background()

	rule, err := tr.CreateAlertRule(ctx, "u1", res.ID, 80)
	if err != nil {
		t.Fatal(err)
	}

	u, err := tr.RecordUsage(ctx, "u1", res.ID, 85)
	if err != nil {
		t.Fatal(err)
	}
	if u.Alerts != 1 {
		t.Fatalf("first crossing fired %d alerts, want 1", u.Alerts)
	}

	clock.Advance(5 * time.Minute)
	u, err = tr.RecordUsage(ctx, "u1", res.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if u.Alerts != 0 {
		t.Errorf("second crossing within cooldown fired %d alerts", u.Alerts)
	}

	list, err := tr.Notifications(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("notifications = %d, want 1", len(list))
	}
	n := list[0]
	if n.Title != "Rate Limit Alert: openai" {
		t.Errorf("Title = %q", n.Title)
	}
	if n.Message != "Usage has reached 85% of your 80% threshold" {
		t.Errorf("Message = %q", n.Message)
	}
	if n.ResourceID != res.ID || n.Threshold != 80 || n.CurrentPercentage != 85 || n.Read {
		t.Errorf("notification = %+v", n)
	}

	rules, err := tr.ListAlertRules(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if rules[0].ID != rule.ID || rules[0].LastTriggered == nil || !rules[0].LastTriggered.Equal(t0) {
		t.Errorf("LastTriggered = %v, want %v", rules[0].LastTriggered, t0)
	}

	clock.Advance(time.Hour)
	u, err = tr.RecordUsage(ctx, "u1", res.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if u.Alerts != 1 {
		t.Errorf("after cooldown fired %d alerts, want 1", u.Alerts)
	}
}

func TestAlertUsesRoundedPercentage(t *testing.T) {
	tr, _ := newTestTracker(t)
	res := mustCreate(t, tr, "u1", ResourceSpec{Name: "openai", Limit: 10000, Period: "day"})
	ctx := context.Background()

	if _, err := tr.CreateAlertRule(ctx, "u1", res.ID, 80); err != nil {
		t.Fatal(err)
	}

	u, err := tr.RecordUsage(ctx, "u1", res.ID, 7996)
	if err != nil {
		t.Fatal(err)
	}
	if u.Percentage != 80.0 || u.Alerts != 1 {
		t.Errorf("79.96%%: got %.1f with %d alerts, want 80.0 with 1", u.Percentage, u.Alerts)
	}
}

func TestAlertSkipsInactiveAndHigherRules(t *testing.T) {
	tr, _ := newTestTracker(t)
	res := mustCreate(t, tr, "u1", ResourceSpec{Name: "openai", Limit: 100, Period: "day"})
	ctx := context.Background()

	low, err := tr.CreateAlertRule(ctx, "u1", res.ID, 50)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.CreateAlertRule(ctx, "u1", res.ID, 90); err != nil {
		t.Fatal(err)
	}
	off := false
	if _, err := tr.UpdateAlertRule(ctx, "u1", low.ID, RuleUpdate{Active: &off}); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.CreateAlertRule(ctx, "u1", res.ID, 60); err != nil {
		t.Fatal(err)
	}

	u, err := tr.RecordUsage(ctx, "u1", res.ID, 75)
	if err != nil {
		t.Fatal(err)
	}
	if u.Alerts != 1 {
		t.Errorf("fired %d alerts, want only the 60%% rule", u.Alerts)
	}
}

func TestAlertConcurrentEvaluatorsFireOnce(t *testing.T) {
	s := store.NewMemoryStore()
	q := notify.NewMemoryQueue(0)
	ctx := context.Background()

	r := store.Resource{ID: "r1", UserID: "u1", Name: "api", Limit: 100, Period: "day"}
	if err := s.CreateResource(ctx, r); err != nil {
		t.Fatal(err)
	}
	rule := store.AlertRule{ID: "a1", UserID: "u1", ResourceID: "r1", Threshold: 80, Active: true}
	if err := s.CreateRule(ctx, rule); err != nil {
		t.Fatal(err)
	}

	tr := New(WithStore(s), WithQueue(q))
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	// Every evaluator saw the same snapshot of the rule.
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.alerts.Evaluate(ctx, r, []store.AlertRule{rule}, 85, now)
		}()
	}
	wg.Wait()

	list, err := q.List(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("notifications = %d, want 1", len(list))
	}
}

type failingQueue struct{ notify.Queue }

func (failingQueue) Push(context.Context, string, notify.Notification) error {
	return errors.New("queue down")
}

func TestAlertQueueFailureDoesNotFailUsage(t *testing.T) {
	tr, _ := newTestTracker(t, WithQueue(failingQueue{notify.NewMemoryQueue(0)}))
	res := mustCreate(t, tr, "u1", ResourceSpec{Name: "openai", Limit: 10, Period: "day"})
	ctx := context.Background()
	if _, err := tr.CreateAlertRule(ctx, "u1", res.ID, 50); err != nil {
		t.Fatal(err)
	}

	u, err := tr.RecordUsage(ctx, "u1", res.ID, 9)
	if err != nil {
		t.Fatal(err)
	}
	if u.Usage != 9 || u.Alerts != 0 {
		t.Errorf("got usage %d alerts %d, want 9 0", u.Usage, u.Alerts)
	}
}

func TestNotificationLifecycle(t *testing.T) {
	tr, clock := newTestTracker(t)
	ctx := context.Background()
	a := mustCreate(t, tr, "u1", ResourceSpec{Name: "a", Limit: 10, Period: "day"})
	b := mustCreate(t, tr, "u1", ResourceSpec{Name: "b", Limit: 10, Period: "day"})
	for _, id := range []string{a.ID, b.ID} {
		if _, err := tr.CreateAlertRule(ctx, "u1", id, 50); err != nil {
			t.Fatal(err)
		}
		if _, err := tr.RecordUsage(ctx, "u1", id, 6); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Second)
	}

	list, err := tr.Notifications(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ServiceName != "a" {
		t.Fatalf("notifications = %+v", list)
	}

	if err := tr.MarkNotificationRead(ctx, "u1", list[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := tr.AckNotification(ctx, "u1", list[1].ID); err != nil {
		t.Fatal(err)
	}
	list, _ = tr.Notifications(ctx, "u1")
	if len(list) != 1 || !list[0].Read {
		t.Errorf("after read+ack: %+v", list)
	}

	if err := tr.AckNotification(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ack unknown: expected ErrNotFound, got %v", err)
	}
	if other, _ := tr.Notifications(ctx, "u2"); len(other) != 0 {
		t.Errorf("u2 sees %d notifications", len(other))
	}

	if err := tr.ClearNotifications(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	list, _ = tr.Notifications(ctx, "u1")
	if list == nil || len(list) != 0 {
		t.Errorf("after clear: %#v, want empty non-nil", list)
	}
}
