package apiwatch

import (
	"fmt"
	"math"
	"time"
)

// Status is the severity of a resource's current usage.
type Status string

const (
	StatusSafe     Status = "safe"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

const (
	warningPercentage  = 70.0
	criticalPercentage = 90.0
)

// ResettingLabel is reported by TimeUntilReset once the reset instant has
// passed.
const ResettingLabel = "Resetting..."

// Percentage returns usage as a share of limit, rounded to one decimal.
func Percentage(usage, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return math.Round(float64(usage)*1000/float64(limit)) / 10
}

// StatusFor classifies a percentage. The lower bound of each band is
// inclusive: 70.0 is warning and 90.0 is critical.
func StatusFor(percentage float64) Status {
	switch {
	case percentage >= criticalPercentage:
		return StatusCritical
	case percentage >= warningPercentage:
		return StatusWarning
	default:
		return StatusSafe
	}
}

// Classify returns the rounded percentage and the status derived from it.
func Classify(usage, limit int64) (float64, Status) {
	pct := Percentage(usage, limit)
	return pct, StatusFor(pct)
}

// TimeUntilReset formats the time left until start plus one period as
// "{m}m" or "{h}h {m}m".
func TimeUntilReset(start time.Time, p Period, now time.Time) string {
	diff := p.NextReset(start).Sub(now)
	if diff <= 0 {
		return ResettingLabel
	}
	hours := int(diff / time.Hour)
	minutes := int((diff % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
