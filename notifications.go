package apiwatch

import (
	"context"

	"github.com/ryhazerus/apiwatch/notify"
)

// Notifications returns the user's pending alert notifications, oldest
// first.
func (t *Tracker) Notifications(ctx context.Context, userID string) ([]notify.Notification, error) {
	list, err := t.queue.List(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	if list == nil {
		list = []notify.Notification{}
	}
	return list, nil
}

// MarkNotificationRead flags one notification as read without removing it.
func (t *Tracker) MarkNotificationRead(ctx context.Context, userID, id string) error {
	return translate(t.queue.MarkRead(ctx, userID, id))
}

// AckNotification removes one notification.
func (t *Tracker) AckNotification(ctx context.Context, userID, id string) error {
	return translate(t.queue.Ack(ctx, userID, id))
}

// ClearNotifications removes all of the user's notifications.
func (t *Tracker) ClearNotifications(ctx context.Context, userID string) error {
	return translate(t.queue.Clear(ctx, userID))
}
