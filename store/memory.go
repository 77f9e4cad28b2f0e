package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation.
// It is safe for concurrent use. Everything is lost on process restart.
type MemoryStore struct {
	mu        sync.Mutex
	resources map[string]*Resource
	rules     map[string]*AlertRule
	samples   []Sample
	nextID    int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		resources: make(map[string]*Resource),
		rules:     make(map[string]*AlertRule),
	}
}

func cloneResource(r *Resource) Resource {
	out := *r
	out.Credential = slices.Clone(r.Credential)
	return out
}

func cloneRule(r *AlertRule) AlertRule {
	out := *r
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		out.LastTriggered = &t
	}
	return out
}

func (m *MemoryStore) owned(userID, id string) (*Resource, bool) {
	r, ok := m.resources[id]
	if !ok || r.UserID != userID {
		return nil, false
	}
	return r, true
}

// CreateResource inserts a new resource.
func (m *MemoryStore) CreateResource(_ context.Context, r Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[r.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.resources {
		if existing.UserID == r.UserID && existing.Name == r.Name {
			return ErrDuplicate
		}
	}
	stored := cloneResource(&r)
	m.resources[r.ID] = &stored
	return nil
}

// GetResource returns an owned resource.
func (m *MemoryStore) GetResource(_ context.Context, userID, id string) (Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.owned(userID, id)
	if !ok {
		return Resource{}, ErrNotFound
	}
	return cloneResource(r), nil
}

// ListResources returns all resources of a user, newest first.
func (m *MemoryStore) ListResources(_ context.Context, userID string) ([]Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Resource
	for _, r := range m.resources {
		if r.UserID == userID {
			out = append(out, cloneResource(r))
		}
	}
	slices.SortFunc(out, func(a, b Resource) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// UpdateResource overwrites the descriptive fields of an owned resource.
func (m *MemoryStore) UpdateResource(_ context.Context, r Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.owned(r.UserID, r.ID)
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.resources {
		if other.ID != r.ID && other.UserID == r.UserID && other.Name == r.Name {
			return ErrDuplicate
		}
	}
	existing.Name = r.Name
	existing.Pattern = r.Pattern
	existing.Credential = slices.Clone(r.Credential)
	existing.Limit = r.Limit
	existing.Period = r.Period
	return nil
}

// DeleteResource removes an owned resource with its rules and samples.
func (m *MemoryStore) DeleteResource(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owned(userID, id); !ok {
		return ErrNotFound
	}
	delete(m.resources, id)
	for ruleID, rule := range m.rules {
		if rule.ResourceID == id {
			delete(m.rules, ruleID)
		}
	}
	m.samples = slices.DeleteFunc(m.samples, func(s Sample) bool {
		return s.ResourceID == id
	})
	return nil
}

// UpdateCounter applies fn to the counter under the store lock.
func (m *MemoryStore) UpdateCounter(ctx context.Context, userID, id string, fn func(Resource) Counter) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Counter{}, err
	}

	r, ok := m.owned(userID, id)
	if !ok {
		return Counter{}, ErrNotFound
	}

	next := fn(cloneResource(r))
	next.Version = r.Counter.Version + 1
	r.Counter = next
	return next, nil
}

// CreateRule inserts an alert rule.
func (m *MemoryStore) CreateRule(_ context.Context, rule AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.owned(rule.UserID, rule.ResourceID); !ok {
		return ErrNotFound
	}
	if _, ok := m.rules[rule.ID]; ok {
		return ErrDuplicate
	}
	stored := cloneRule(&rule)
	m.rules[rule.ID] = &stored
	return nil
}

// GetRule returns an owned rule.
func (m *MemoryStore) GetRule(_ context.Context, userID, id string) (AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok || rule.UserID != userID {
		return AlertRule{}, ErrNotFound
	}
	return cloneRule(rule), nil
}

// ListRules returns all rules of a user, newest first.
func (m *MemoryStore) ListRules(_ context.Context, userID string) ([]AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AlertRule
	for _, rule := range m.rules {
		if rule.UserID == userID {
			out = append(out, cloneRule(rule))
		}
	}
	slices.SortFunc(out, func(a, b AlertRule) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

// ResourceRules returns the rules of a resource, oldest first.
func (m *MemoryStore) ResourceRules(_ context.Context, resourceID string) ([]AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []AlertRule
	for _, rule := range m.rules {
		if rule.ResourceID == resourceID {
			out = append(out, cloneRule(rule))
		}
	}
	slices.SortFunc(out, func(a, b AlertRule) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// UpdateRule overwrites the threshold and active flag of an owned rule.
func (m *MemoryStore) UpdateRule(_ context.Context, rule AlertRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok || existing.UserID != rule.UserID {
		return ErrNotFound
	}
	existing.Threshold = rule.Threshold
	existing.Active = rule.Active
	return nil
}

// DeleteRule removes an owned rule.
func (m *MemoryStore) DeleteRule(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[id]
	if !ok || rule.UserID != userID {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

// MarkRuleTriggered swaps LastTriggered from prev to at.
func (m *MemoryStore) MarkRuleTriggered(_ context.Context, ruleID string, prev *time.Time, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule, ok := m.rules[ruleID]
	if !ok {
		return false, ErrNotFound
	}
	if !sameInstant(rule.LastTriggered, prev) {
		return false, nil
	}
	rule.LastTriggered = &at
	return true, nil
}

// AppendSample adds a ledger row.
func (m *MemoryStore) AppendSample(_ context.Context, s Sample) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.resources[s.ResourceID]; !ok {
		return Sample{}, ErrNotFound
	}
	m.nextID++
	s.ID = m.nextID
	m.samples = append(m.samples, s)
	return s, nil
}

// Samples returns the samples of a resource since the given instant,
// oldest first.
func (m *MemoryStore) Samples(_ context.Context, resourceID string, since time.Time, granularity string) ([]Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Sample
	for _, s := range m.samples {
		if s.ResourceID != resourceID || s.RecordedAt.Before(since) {
			continue
		}
		if granularity != "" && s.Granularity != granularity {
			continue
		}
		out = append(out, s)
	}
	slices.SortStableFunc(out, func(a, b Sample) int {
		if c := a.RecordedAt.Compare(b.RecordedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// RecentSamples returns up to n samples of a resource, newest first.
func (m *MemoryStore) RecentSamples(ctx context.Context, resourceID string, n int) ([]Sample, error) {
	all, err := m.Samples(ctx, resourceID, time.Time{}, "")
	if err != nil {
		return nil, err
	}
	slices.Reverse(all)
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// PruneSamples deletes samples recorded before the given instant.
func (m *MemoryStore) PruneSamples(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.samples)
	m.samples = slices.DeleteFunc(m.samples, func(s Sample) bool {
		return s.RecordedAt.Before(before)
	})
	return int64(n - len(m.samples)), nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
