package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist or is not owned
	// by the requesting user.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrConflict is returned when a compare-and-swap lost against a
	// concurrent writer. The caller may re-read and retry.
	ErrConflict = errors.New("store: concurrent modification")
	// ErrTransient is returned when the backend is temporarily unable to
	// serve the request (locked, busy, unreachable).
	ErrTransient = errors.New("store: transient failure")
)

// Resource is one user's tracked external API. Period is stored as its
// string name ("minute", "hour", "day", "month") so the store package
// doesn't import the parent.
type Resource struct {
	ID         string
	UserID     string
	Name       string
	Pattern    string // optional host/path glob, e.g. "api.stripe.com/*"
	Credential []byte // opaque, sealed by the caller
	Limit      int64
	Period     string
	Counter    Counter
	CreatedAt  time.Time
}

// Counter is the mutable part of a Resource. Version increases by one on
// every successful update and is the compare-and-swap token.
type Counter struct {
	Usage       int64
	WindowStart time.Time
	Version     int64
}

// AlertRule is a per-resource threshold subscription.
type AlertRule struct {
	ID            string
	UserID        string
	ResourceID    string
	Threshold     int
	Active        bool
	LastTriggered *time.Time
	CreatedAt     time.Time
}

// Sample is one immutable ledger row: Count requests observed at RecordedAt.
type Sample struct {
	ID          int64
	ResourceID  string
	Count       int64
	Granularity string
	RecordedAt  time.Time
}

// Store defines the persistence contract for tracked resources, their
// alert rules and their usage ledger.
type Store interface {
	// CreateResource inserts a new resource. A resource with the same
	// (UserID, Name) yields ErrDuplicate.
	CreateResource(ctx context.Context, r Resource) error

	// GetResource returns the resource if it exists and belongs to userID.
	GetResource(ctx context.Context, userID, id string) (Resource, error)

	// ListResources returns all resources of a user, newest first.
	ListResources(ctx context.Context, userID string) ([]Resource, error)

	// UpdateResource overwrites the descriptive fields (name, pattern,
	// credential, limit, period) of an owned resource. The counter is left
	// untouched.
	UpdateResource(ctx context.Context, r Resource) error

	// DeleteResource removes an owned resource together with its alert
	// rules and samples.
	DeleteResource(ctx context.Context, userID, id string) error

	// UpdateCounter atomically reads the counter of an owned resource,
	// passes it to fn and writes the result back, provided no other writer
	// changed it in between. fn may be called with the same input more than
	// once and must be free of side effects.
	UpdateCounter(ctx context.Context, userID, id string, fn func(Resource) Counter) (Counter, error)

	// CreateRule inserts an alert rule.
	CreateRule(ctx context.Context, rule AlertRule) error

	// GetRule returns the rule if it exists and belongs to userID.
	GetRule(ctx context.Context, userID, id string) (AlertRule, error)

	// ListRules returns all rules of a user, newest first.
	ListRules(ctx context.Context, userID string) ([]AlertRule, error)

	// ResourceRules returns the rules attached to a resource, oldest first.
	ResourceRules(ctx context.Context, resourceID string) ([]AlertRule, error)

	// UpdateRule overwrites the threshold and active flag of an owned rule.
	UpdateRule(ctx context.Context, rule AlertRule) error

	// DeleteRule removes an owned rule.
	DeleteRule(ctx context.Context, userID, id string) error

	// MarkRuleTriggered sets LastTriggered to at if it still equals prev
	// (nil meaning never triggered). It reports whether the swap happened.
	MarkRuleTriggered(ctx context.Context, ruleID string, prev *time.Time, at time.Time) (bool, error)

	// AppendSample adds a ledger row and returns it with its ID assigned.
	AppendSample(ctx context.Context, s Sample) (Sample, error)

	// Samples returns the samples of a resource recorded at or after since,
	// ordered by RecordedAt ascending. An empty granularity matches all.
	Samples(ctx context.Context, resourceID string, since time.Time, granularity string) ([]Sample, error)

	// RecentSamples returns up to n samples of a resource, newest first.
	RecentSamples(ctx context.Context, resourceID string, n int) ([]Sample, error)

	// PruneSamples deletes samples recorded before the given instant and
	// returns the number of rows removed.
	PruneSamples(ctx context.Context, before time.Time) (int64, error)

	// Close releases any resources held by the store.
	Close() error
}
