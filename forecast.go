package apiwatch

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ryhazerus/apiwatch/store"
)

// ForecastWindow is how far back the forecast looks for usage samples.
const ForecastWindow = 24 * time.Hour

// Forecast messages and the estimate reported once the limit is reached.
const (
	MsgInsufficientData = "Insufficient data for forecast"
	MsgNoUsage          = "No significant usage detected"
	MsgLimitReached     = "Rate limit already reached"
	MsgUnavailable      = "Unable to generate forecast"

	EstimateLimitReached = "Limit reached"
)

// Recommendation is the advisory tier attached to a forecast.
type Recommendation string

const (
	RecommendUrgent  Recommendation = "urgent"
	RecommendWarning Recommendation = "warning"
	RecommendMonitor Recommendation = "monitor"
	RecommendOnTrack Recommendation = "on_track"
)

// Message returns the human advice for the tier.
func (r Recommendation) Message() string {
	switch r {
	case RecommendUrgent:
		return "URGENT: Slow down API usage immediately or upgrade your plan"
	case RecommendWarning:
		return "WARNING: Consider reducing API calls or upgrading plan soon"
	case RecommendMonitor:
		return "Monitor usage closely - limit approaching within 12 hours"
	case RecommendOnTrack:
		return "Usage on track - no action needed"
	default:
		return ""
	}
}

// Forecast projects when a resource will exhaust its quota. It is computed
// on read and never stored.
type Forecast struct {
	EstimatedTimeToLimit *string        `json:"estimatedTimeToLimit"`
	AverageUsagePerHour  *int64         `json:"averageUsagePerHour"`
	Message              string         `json:"message,omitempty"`
	Recommendation       Recommendation `json:"recommendation,omitempty"`
	Advice               string         `json:"advice,omitempty"`
}

func recommend(percentage, hoursUntilLimit float64) Recommendation {
	switch {
	case percentage >= 90:
		return RecommendUrgent
	case percentage >= 80:
		return RecommendWarning
	case hoursUntilLimit < 12:
		return RecommendMonitor
	default:
		return RecommendOnTrack
	}
}

// ComputeForecast derives a forecast from the samples recorded in the
// trailing ForecastWindow. The samples may be in any order.
func ComputeForecast(samples []store.Sample, currentUsage, limit int64, now time.Time) Forecast {
	if len(samples) == 0 || limit <= 0 {
		return Forecast{Message: MsgInsufficientData}
	}

	var total float64
	oldest := samples[0].RecordedAt
	for _, s := range samples {
		total += float64(s.Count)
		if s.RecordedAt.Before(oldest) {
			oldest = s.RecordedAt
		}
	}

	hours := math.Max(1, now.Sub(oldest).Hours())
	avg := int64(math.MaxInt64)
	if rate := math.Round(total / hours); rate < math.MaxInt64 {
		avg = int64(rate)
	}
	if avg == 0 {
		return Forecast{AverageUsagePerHour: &avg, Message: MsgNoUsage}
	}

	pct := Percentage(currentUsage, limit)
	remaining := limit - currentUsage
	if remaining <= 0 {
		est := EstimateLimitReached
		rec := recommend(pct, 0)
		return Forecast{
			EstimatedTimeToLimit: &est,
			AverageUsagePerHour:  &avg,
			Message:              MsgLimitReached,
			Recommendation:       rec,
			Advice:               rec.Message(),
		}
	}

	hoursUntilLimit := float64(remaining) / float64(avg)
	est := formatHours(hoursUntilLimit)
	rec := recommend(pct, hoursUntilLimit)
	return Forecast{
		EstimatedTimeToLimit: &est,
		AverageUsagePerHour:  &avg,
		Recommendation:       rec,
		Advice:               rec.Message(),
	}
}

// formatHours renders a duration given in hours as minutes below one hour,
// "{h}h {m}m" below a day and "{d}d {h}h" beyond.
func formatHours(h float64) string {
	switch {
	case h < 1:
		return fmt.Sprintf("%d minutes", int(math.Round(h*60)))
	case h < 24:
		hours := int(math.Floor(h))
		minutes := int(math.Round((h - float64(hours)) * 60))
		if minutes == 60 {
			hours, minutes = hours+1, 0
		}
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%d hours", hours)
	default:
		days := int(math.Floor(h / 24))
		hours := int(math.Floor(math.Mod(h, 24)))
		if hours > 0 {
			return fmt.Sprintf("%dd %dh", days, hours)
		}
		return fmt.Sprintf("%d days", days)
	}
}

// forecast loads the trailing samples of r and computes its forecast. Any
// failure degrades to an empty forecast; it never blocks the caller.
func (t *Tracker) forecast(ctx context.Context, r store.Resource, usage int64, now time.Time) Forecast {
	var samples []store.Sample
	for s, err := range t.ledger.Query(ctx, r.ID, now.Add(-ForecastWindow), "") {
		if err != nil {
			t.logger.Warn("forecast unavailable",
				"resource_id", r.ID,
				"error", err,
			)
			t.metrics.recordSideChannelError("forecast")
			return Forecast{Message: MsgUnavailable}
		}
		samples = append(samples, s)
	}
	return ComputeForecast(samples, usage, r.Limit, now)
}
