// Package notify holds alert notifications until the user reads or
// acknowledges them.
//
// A [Queue] is injected into the tracker instead of living in a global
// map, so the same process can serve many users and several processes can
// share one queue. [MemoryQueue] keeps notifications in process memory; the
// redis subpackage provides a shared, durable implementation.
package notify

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned when a notification id is unknown for the user.
var ErrNotFound = errors.New("notify: notification not found")

// DefaultMaxPerUser bounds how many notifications a queue keeps per user.
// The oldest are dropped first.
const DefaultMaxPerUser = 100

// Notification is one alert delivered to a user.
type Notification struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	ResourceID        string    `json:"resourceId"`
	ServiceName       string    `json:"serviceName"`
	Threshold         int       `json:"thresholdPercentage"`
	CurrentPercentage int       `json:"currentPercentage"`
	Timestamp         time.Time `json:"timestamp"`
	Read              bool      `json:"read"`
}

// Queue stores notifications per user.
type Queue interface {
	// Push appends a notification to the user's queue.
	Push(ctx context.Context, userID string, n Notification) error
	// List returns the user's notifications, oldest first.
	List(ctx context.Context, userID string) ([]Notification, error)
	// MarkRead flags one notification as read.
	MarkRead(ctx context.Context, userID, id string) error
	// Ack removes one notification.
	Ack(ctx context.Context, userID, id string) error
	// Clear removes all of the user's notifications.
	Clear(ctx context.Context, userID string) error
}

// Compile-time interface check.
var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is an in-process Queue. It is safe for concurrent use.
type MemoryQueue struct {
	mu         sync.Mutex
	maxPerUser int
	byUser     map[string][]Notification
}

// NewMemoryQueue creates a queue keeping at most maxPerUser notifications
// per user. A non-positive value selects DefaultMaxPerUser.
func NewMemoryQueue(maxPerUser int) *MemoryQueue {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &MemoryQueue{
		maxPerUser: maxPerUser,
		byUser:     make(map[string][]Notification),
	}
}

func (q *MemoryQueue) Push(_ context.Context, userID string, n Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := append(q.byUser[userID], n)
	if over := len(list) - q.maxPerUser; over > 0 {
		list = slices.Clone(list[over:])
	}
	q.byUser[userID] = list
	return nil
}

func (q *MemoryQueue) List(_ context.Context, userID string) ([]Notification, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Clone(q.byUser[userID]), nil
}

func (q *MemoryQueue) MarkRead(_ context.Context, userID, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.byUser[userID]
	i := slices.IndexFunc(list, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	list[i].Read = true
	return nil
}

func (q *MemoryQueue) Ack(_ context.Context, userID, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.byUser[userID]
	i := slices.IndexFunc(list, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		return ErrNotFound
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(q.byUser, userID)
		return nil
	}
	q.byUser[userID] = list
	return nil
}

func (q *MemoryQueue) Clear(_ context.Context, userID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.byUser, userID)
	return nil
}
