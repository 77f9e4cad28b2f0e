package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

func testResource(id, user, name string) Resource {
	return Resource{
		ID:         id,
		UserID:     user,
		Name:       name,
		Pattern:    "api.example.com/*",
		Credential: []byte("sealed"),
		Limit:      100,
		Period:     "hour",
		Counter:    Counter{WindowStart: t0},
		CreatedAt:  t0,
	}
}

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("ResourceCRUD", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.CreateResource(ctx, testResource("r1", "u1", "stripe")); err != nil {
			t.Fatal(err)
		}
		second := testResource("r2", "u1", "github")
		second.CreatedAt = t0.Add(time.Minute)
		if err := s.CreateResource(ctx, second); err != nil {
			t.Fatal(err)
		}

		got, err := s.GetResource(ctx, "u1", "r1")
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "stripe" || got.Limit != 100 || got.Period != "hour" || string(got.Credential) != "sealed" {
			t.Errorf("got %+v", got)
		}
		if !got.Counter.WindowStart.Equal(t0) {
			t.Errorf("window start = %v, want %v", got.Counter.WindowStart, t0)
		}

		list, err := s.ListResources(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(list) != 2 || list[0].ID != "r2" || list[1].ID != "r1" {
			t.Errorf("list order = %v, want newest first", ids(list))
		}

		got.Name = "stripe-live"
		got.Limit = 500
		if err := s.UpdateResource(ctx, got); err != nil {
			t.Fatal(err)
		}
		got, _ = s.GetResource(ctx, "u1", "r1")
		if got.Name != "stripe-live" || got.Limit != 500 {
			t.Errorf("after update: %+v", got)
		}
	})

	t.Run("Ownership", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.CreateResource(ctx, testResource("r1", "u1", "stripe"))

		if _, err := s.GetResource(ctx, "u2", "r1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("foreign get: got %v, want ErrNotFound", err)
		}
		if err := s.DeleteResource(ctx, "u2", "r1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("foreign delete: got %v, want ErrNotFound", err)
		}
		_, err := s.UpdateCounter(ctx, "u2", "r1", func(r Resource) Counter { return r.Counter })
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("foreign counter update: got %v, want ErrNotFound", err)
		}
		if list, _ := s.ListResources(ctx, "u2"); len(list) != 0 {
			t.Errorf("u2 sees %d resources", len(list))
		}
	})

	t.Run("DuplicateName", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.CreateResource(ctx, testResource("r1", "u1", "stripe"))

		err := s.CreateResource(ctx, testResource("r2", "u1", "stripe"))
		if !errors.Is(err, ErrDuplicate) {
			t.Errorf("got %v, want ErrDuplicate", err)
		}
		// Same name for another user is fine.
		if err := s.CreateResource(ctx, testResource("r3", "u2", "stripe")); err != nil {
			t.Errorf("other user: %v", err)
		}
	})

	t.Run("UpdateCounter", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.CreateResource(ctx, testResource("r1", "u1", "stripe"))

		for i := int64(1); i <= 5; i++ {
			c, err := s.UpdateCounter(ctx, "u1", "r1", func(r Resource) Counter {
				next := r.Counter
				next.Usage++
				return next
			})
			if err != nil {
				t.Fatal(err)
			}
			if c.Usage != i || c.Version != i {
				t.Errorf("update %d: usage=%d version=%d", i, c.Usage, c.Version)
			}
		}

		later := t0.Add(time.Hour)
		c, err := s.UpdateCounter(ctx, "u1", "r1", func(Resource) Counter {
			return Counter{Usage: 1, WindowStart: later}
		})
		if err != nil {
			t.Fatal(err)
		}
		got, _ := s.GetResource(ctx, "u1", "r1")
		if got.Counter.Usage != 1 || !got.Counter.WindowStart.Equal(later) || got.Counter.Version != c.Version {
			t.Errorf("after reset: %+v", got.Counter)
		}
	})

	t.Run("UpdateCounterConcurrent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.CreateResource(ctx, testResource("r1", "u1", "stripe"))

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.UpdateCounter(ctx, "u1", "r1", func(r Resource) Counter {
					next := r.Counter
					next.Usage++
					return next
				})
				if err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()

		got, _ := s.GetResource(ctx, "u1", "r1")
		if got.Counter.Usage != 50 {
			t.Errorf("usage = %d, want 50", got.Counter.Usage)
		}
	})

	t.Run("Rules", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.CreateResource(ctx, testResource("r1", "u1", "stripe"))

		rule := AlertRule{ID: "a1", UserID: "u1", ResourceID: "r1", Threshold: 80, Active: true, CreatedAt: t0}
		if err := s.CreateRule(ctx, rule); err != nil {
			t.Fatal(err)
		}
		second := AlertRule{ID: "a2", UserID: "u1", ResourceID: "r1", Threshold: 95, Active: false, CreatedAt: t0.Add(time.Second)}
		if err := s.CreateRule(ctx, second); err != nil {
			t.Fatal(err)
		}

		foreign := AlertRule{ID: "a3", UserID: "u2", ResourceID: "r1", Threshold: 60, CreatedAt: t0}
		if err := s.CreateRule(ctx, foreign); !errors.Is(err, ErrNotFound) {
			t.Errorf("rule on foreign resource: got %v, want ErrNotFound", err)
		}

		rules, err := s.ResourceRules(ctx, "r1")
		if err != nil {
			t.Fatal(err)
		}
		if len(rules) != 2 || rules[0].ID != "a1" {
			t.Fatalf("resource rules = %+v", rules)
		}
		if rules[0].LastTriggered != nil {
			t.Error("fresh rule has LastTriggered set")
		}

		list, _ := s.ListRules(ctx, "u1")
		if len(list) != 2 || list[0].ID != "a2" {
			t.Errorf("ListRules order wrong: %+v", list)
		}

		rule.Threshold = 90
		rule.Active = false
		if err := s.UpdateRule(ctx, rule); err != nil {
			t.Fatal(err)
		}
		got, _ := s.GetRule(ctx, "u1", "a1")
		if got.Threshold != 90 || got.Active {
			t.Errorf("after update: %+v", got)
		}

		if err := s.DeleteRule(ctx, "u2", "a1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("foreign delete: got %v", err)
		}
		if err := s.DeleteRule(ctx, "u1", "a1"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetRule(ctx, "u1", "a1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("deleted rule: got %v", err)
		}
	})

	t.Run("MarkRuleTriggered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.CreateResource(ctx, testResource("r1", "u1", "stripe"))
		s.CreateRule(ctx, AlertRule{ID: "a1", UserID: "u1", ResourceID: "r1", Threshold: 80, Active: true, CreatedAt: t0})

		first := t0.Add(time.Minute)
		ok, err := s.MarkRuleTriggered(ctx, "a1", nil, first)
		if err != nil || !ok {
			t.Fatalf("first swap: ok=%v err=%v", ok, err)
		}

		// A second writer still holding the nil snapshot loses.
		ok, err = s.MarkRuleTriggered(ctx, "a1", nil, first.Add(time.Second))
		if err != nil || ok {
			t.Fatalf("stale swap: ok=%v err=%v", ok, err)
		}

		second := first.Add(2 * time.Hour)
		ok, err = s.MarkRuleTriggered(ctx, "a1", &first, second)
		if err != nil || !ok {
			t.Fatalf("second swap: ok=%v err=%v", ok, err)
		}

		got, _ := s.GetRule(ctx, "u1", "a1")
		if got.LastTriggered == nil || !got.LastTriggered.Equal(second) {
			t.Errorf("LastTriggered = %v, want %v", got.LastTriggered, second)
		}

		if _, err := s.MarkRuleTriggered(ctx, "missing", nil, first); !errors.Is(err, ErrNotFound) {
			t.Errorf("missing rule: got %v", err)
		}
	})

	t.Run("Samples", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.CreateResource(ctx, testResource("r1", "u1", "stripe"))

		for i, g := range []string{"hourly", "daily", "hourly", "hourly"} {
			_, err := s.AppendSample(ctx, Sample{
				ResourceID:  "r1",
				Count:       int64(i + 1),
				Granularity: g,
				RecordedAt:  t0.Add(time.Duration(i) * time.Hour),
			})
			if err != nil {
				t.Fatal(err)
			}
		}

		if _, err := s.AppendSample(ctx, Sample{ResourceID: "missing", Count: 1, RecordedAt: t0}); !errors.Is(err, ErrNotFound) {
			t.Errorf("sample for missing resource: got %v", err)
		}

		all, err := s.Samples(ctx, "r1", t0.Add(time.Hour), "")
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 || all[0].Count != 2 || all[2].Count != 4 {
			t.Errorf("since filter: %+v", all)
		}

		hourly, _ := s.Samples(ctx, "r1", time.Time{}, "hourly")
		if len(hourly) != 3 {
			t.Errorf("hourly samples = %d, want 3", len(hourly))
		}

		recent, _ := s.RecentSamples(ctx, "r1", 2)
		if len(recent) != 2 || recent[0].Count != 4 || recent[1].Count != 3 {
			t.Errorf("recent = %+v", recent)
		}

		n, err := s.PruneSamples(ctx, t0.Add(2*time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("pruned %d, want 2", n)
		}
		left, _ := s.Samples(ctx, "r1", time.Time{}, "")
		if len(left) != 2 {
			t.Errorf("left %d samples, want 2", len(left))
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		s.CreateResource(ctx, testResource("r1", "u1", "stripe"))
		s.CreateRule(ctx, AlertRule{ID: "a1", UserID: "u1", ResourceID: "r1", Threshold: 80, Active: true, CreatedAt: t0})
		s.AppendSample(ctx, Sample{ResourceID: "r1", Count: 3, Granularity: "hourly", RecordedAt: t0})

		if err := s.DeleteResource(ctx, "u1", "r1"); err != nil {
			t.Fatal(err)
		}
		if rules, _ := s.ResourceRules(ctx, "r1"); len(rules) != 0 {
			t.Errorf("%d rules survived delete", len(rules))
		}
		if samples, _ := s.Samples(ctx, "r1", time.Time{}, ""); len(samples) != 0 {
			t.Errorf("%d samples survived delete", len(samples))
		}
	})
}

func ids(rs []Resource) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}
