package apiwatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ryhazerus/apiwatch/notify"
	"github.com/ryhazerus/apiwatch/store"
)

// DefaultAlertCooldown is the minimum time between two firings of one rule.
const DefaultAlertCooldown = time.Hour

// Threshold bounds for alert rules, inclusive.
const (
	MinThreshold = 50
	MaxThreshold = 99
)

// ShouldFire reports whether rule fires at the given percentage: the rule is
// active, the percentage reached its threshold and the rule has not fired
// within cooldown before now.
func ShouldFire(rule store.AlertRule, percentage float64, now time.Time, cooldown time.Duration) bool {
	if !rule.Active || percentage < float64(rule.Threshold) {
		return false
	}
	return rule.LastTriggered == nil || rule.LastTriggered.Before(now.Add(-cooldown))
}

// AlertEvaluator decides which threshold rules fire after a usage change
// and records each firing.
type AlertEvaluator struct {
	store    store.Store
	queue    notify.Queue
	cooldown time.Duration
	logger   *slog.Logger
	metrics  *Metrics
	newID    func() string
}

// Evaluate checks rules against percentage and returns the notifications it
// produced. A rule fires at most once per cooldown even when several
// processes evaluate it concurrently: the LastTriggered swap is claimed
// before the notification is queued. Failures are logged and skipped.
//
// percentage is the one-decimal value from Percentage, so 79.96% already
// reaches an 80% threshold.
func (e *AlertEvaluator) Evaluate(ctx context.Context, r store.Resource, rules []store.AlertRule, percentage float64, now time.Time) []notify.Notification {
	var fired []notify.Notification
	for _, rule := range rules {
		if !ShouldFire(rule, percentage, now, e.cooldown) {
			continue
		}

		claimed, err := e.store.MarkRuleTriggered(ctx, rule.ID, rule.LastTriggered, now)
		if err != nil {
			e.logger.Warn("alert rule update failed",
				"rule_id", rule.ID,
				"resource_id", r.ID,
				"error", err,
			)
			e.metrics.recordSideChannelError("alert")
			continue
		}
		if !claimed {
			e.logger.Debug("alert already fired by another writer", "rule_id", rule.ID)
			continue
		}

		n := e.notification(r, rule, percentage, now)
		if err := e.queue.Push(ctx, r.UserID, n); err != nil {
			e.logger.Warn("notification enqueue failed",
				"rule_id", rule.ID,
				"user_id", r.UserID,
				"error", err,
			)
			e.metrics.recordSideChannelError("notify")
			continue
		}

		e.logger.Info("alert fired",
			"rule_id", rule.ID,
			"resource_id", r.ID,
			"threshold", rule.Threshold,
			"percentage", percentage,
		)
		e.metrics.recordAlertFired()
		fired = append(fired, n)
	}
	return fired
}

func (e *AlertEvaluator) notification(r store.Resource, rule store.AlertRule, percentage float64, now time.Time) notify.Notification {
	rounded := int(math.Round(percentage))
	return notify.Notification{
		ID:                e.newID(),
		Type:              "alert",
		Title:             "Rate Limit Alert: " + r.Name,
		Message:           fmt.Sprintf("Usage has reached %d%% of your %d%% threshold", rounded, rule.Threshold),
		ResourceID:        r.ID,
		ServiceName:       r.Name,
		Threshold:         rule.Threshold,
		CurrentPercentage: rounded,
		Timestamp:         now,
	}
}
