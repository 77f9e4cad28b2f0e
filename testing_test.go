package apiwatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ryhazerus/apiwatch/store"
)

var t0 = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: t0}
	tr := New(append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(func() { tr.Close() })
	return tr, clock
}

func mustCreate(t *testing.T, tr *Tracker, user string, spec ResourceSpec) ResourceSummary {
	t.Helper()
	if spec.Credential == nil {
		spec.Credential = []byte("sealed")
	}
	res, err := tr.CreateResource(context.Background(), user, spec)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

// faultyStore fails selected operations of an otherwise working store.
type faultyStore struct {
	store.Store
	mu              sync.Mutex
	counterFailures int   // remaining UpdateCounter calls to fail
	counterErr      error // error returned by the failing calls
	counterCalls    int
	appendErr       error
	rulesErr        error
}

func (f *faultyStore) UpdateCounter(ctx context.Context, userID, id string, fn func(store.Resource) store.Counter) (store.Counter, error) {
	f.mu.Lock()
	f.counterCalls++
	if f.counterFailures != 0 {
		f.counterFailures--
		err := f.counterErr
		f.mu.Unlock()
		return store.Counter{}, err
	}
	f.mu.Unlock()
	return f.Store.UpdateCounter(ctx, userID, id, fn)
}

func (f *faultyStore) AppendSample(ctx context.Context, s store.Sample) (store.Sample, error) {
	if f.appendErr != nil {
		return store.Sample{}, f.appendErr
	}
	return f.Store.AppendSample(ctx, s)
}

func (f *faultyStore) ResourceRules(ctx context.Context, resourceID string) ([]store.AlertRule, error) {
	if f.rulesErr != nil {
		return nil, f.rulesErr
	}
	return f.Store.ResourceRules(ctx, resourceID)
}
