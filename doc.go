// Package apiwatch tracks how much of each external API quota a user has
// consumed, classifies it, forecasts when it will run out and fires
// threshold alerts.
//
// # Key Concepts
//
//   - A tracked resource is one user's external API with a request limit
//     and a [Period] (per-minute, per-hour, per-day or per-month). Its
//     counter resets when the period's calendar bucket changes.
//   - [Tracker.RecordUsage] applies an increment atomically, appends a
//     sample to the usage [Ledger] and evaluates alert rules.
//   - [Classify] maps usage to a percentage and a [Status] (safe, warning,
//     critical). Usage beyond the limit is recorded, never rejected.
//   - [ComputeForecast] projects time to exhaustion from the last 24 hours
//     of samples.
//   - An [AlertEvaluator] fires a rule at most once per cooldown and queues
//     a [notify.Notification] for the user.
//   - [store.Store] is the persistence backend. An in-memory store is used
//     by default; a SQLite-backed store is available for persistence.
//
// # Quick Start
//
//	tracker := apiwatch.New()
//	res, _ := tracker.CreateResource(ctx, "user-1", apiwatch.ResourceSpec{
//		Name:       "stripe",
//		Pattern:    "api.stripe.com/*",
//		Credential: sealedKey,
//		Limit:      1000,
//		Period:     "day",
//	})
//	tracker.CreateAlertRule(ctx, "user-1", res.ID, 80)
//
//	// Count requests automatically.
//	client := &http.Client{
//		Transport: tracker.Transport("user-1", nil),
//	}
//
// See the [Tracker] documentation for the full API.
package apiwatch
