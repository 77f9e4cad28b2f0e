package apiwatch

import (
	"time"

	"github.com/ryhazerus/apiwatch/store"
)

// ResourceSpec describes a resource to create.
type ResourceSpec struct {
	Name       string
	Pattern    string
	Credential []byte // already sealed by the caller; stored as-is
	Limit      int64
	Period     string
}

// ResourceUpdate changes selected fields of a resource. Nil fields are left
// untouched; at least one field must be set.
type ResourceUpdate struct {
	Name       *string
	Pattern    *string
	Credential []byte
	Limit      *int64
	Period     *string
}

// RuleUpdate changes selected fields of an alert rule.
type RuleUpdate struct {
	Threshold *int
	Active    *bool
}

// RuleView is the outward representation of an alert rule.
type RuleView struct {
	ID            string     `json:"id"`
	ResourceID    string     `json:"apiId"`
	ServiceName   string     `json:"serviceName,omitempty"`
	Threshold     int        `json:"thresholdPercentage"`
	Active        bool       `json:"isActive"`
	LastTriggered *time.Time `json:"lastTriggered"`
	CurrentUsage  *int64     `json:"currentUsage,omitempty"`
	RateLimit     *int64     `json:"rateLimit,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func ruleView(rule store.AlertRule) RuleView {
	return RuleView{
		ID:            rule.ID,
		ResourceID:    rule.ResourceID,
		Threshold:     rule.Threshold,
		Active:        rule.Active,
		LastTriggered: rule.LastTriggered,
		CreatedAt:     rule.CreatedAt,
	}
}

// ResourceSummary is a resource with its derived status. The credential is
// never included.
type ResourceSummary struct {
	ID              string     `json:"id"`
	ServiceName     string     `json:"serviceName"`
	Pattern         string     `json:"pattern,omitempty"`
	RateLimit       int64      `json:"rateLimit"`
	RateLimitPeriod string     `json:"rateLimitPeriod"`
	CurrentUsage    int64      `json:"currentUsage"`
	UsagePercentage float64    `json:"usagePercentage"`
	Status          Status     `json:"status"`
	TimeUntilReset  string     `json:"timeUntilReset"`
	LastReset       time.Time  `json:"lastReset"`
	CreatedAt       time.Time  `json:"createdAt"`
	Alerts          []RuleView `json:"alerts"`
}

// SampleView is one ledger row as shown in a resource's detail.
type SampleView struct {
	ID            int64     `json:"id"`
	RequestsCount int64     `json:"requestsCount"`
	Period        string    `json:"period"`
	Timestamp     time.Time `json:"timestamp"`
}

// ResourceDetail is a resource with its rules, recent samples and forecast.
type ResourceDetail struct {
	ResourceSummary
	UsageHistory []SampleView `json:"usageHistory"`
	Forecast     Forecast     `json:"forecast"`
}

// UsageResult is returned by RecordUsage.
type UsageResult struct {
	ResourceID string  `json:"apiId"`
	Usage      int64   `json:"currentUsage"`
	Limit      int64   `json:"rateLimit"`
	Percentage float64 `json:"percentage"`
	Status     Status  `json:"status"`
	Reset      bool    `json:"windowReset"`
	Alerts     int     `json:"alertsTriggered"`
}

// HistoryRange selects how far back GetHistory looks.
type HistoryRange string

const (
	Last7Days  HistoryRange = "7d"
	Last30Days HistoryRange = "30d"
)

// ParseHistoryRange accepts "7d" or "30d".
func ParseHistoryRange(s string) (HistoryRange, error) {
	switch r := HistoryRange(s); r {
	case Last7Days, Last30Days:
		return r, nil
	default:
		return "", &ValidationError{Field: "period", Reason: "must be 7d or 30d"}
	}
}

func (r HistoryRange) days() int {
	if r == Last30Days {
		return 30
	}
	return 7
}
