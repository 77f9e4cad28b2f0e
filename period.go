package apiwatch

import (
	"fmt"
	"time"
)

// Period is the recurring calendar bucket a quota accumulates over.
type Period int

const (
	// PerMinute resets when the minute, hour or day of month changes.
	PerMinute Period = iota
	// PerHour resets when the hour or day of month changes.
	PerHour
	// PerDay resets when the day of month or month changes.
	PerDay
	// PerMonth resets when the month or year changes.
	PerMonth
)

// ParsePeriod converts "minute", "hour", "day" or "month" into a Period.
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "minute":
		return PerMinute, nil
	case "hour":
		return PerHour, nil
	case "day":
		return PerDay, nil
	case "month":
		return PerMonth, nil
	default:
		return 0, &ValidationError{Field: "period", Reason: fmt.Sprintf("unknown period %q", s)}
	}
}

func (p Period) String() string {
	switch p {
	case PerMinute:
		return "minute"
	case PerHour:
		return "hour"
	case PerDay:
		return "day"
	case PerMonth:
		return "month"
	default:
		return fmt.Sprintf("Period(%d)", int(p))
	}
}

// Rolled reports whether now falls in a different bucket than start.
//
// Buckets are compared field by field on the calendar, not by elapsed
// time: a day window started at 23:59 rolls over at 00:00, and a minute
// window checked exactly one month later on the same day, hour and minute
// does not. Both instants are read in now's location.
func (p Period) Rolled(start, now time.Time) bool {
	start = start.In(now.Location())
	switch p {
	case PerMinute:
		return now.Minute() != start.Minute() ||
			now.Hour() != start.Hour() ||
			now.Day() != start.Day()
	case PerHour:
		return now.Hour() != start.Hour() ||
			now.Day() != start.Day()
	case PerDay:
		return now.Day() != start.Day() ||
			now.Month() != start.Month()
	case PerMonth:
		return now.Month() != start.Month() ||
			now.Year() != start.Year()
	default:
		return false
	}
}

// NextReset returns start advanced by one period unit. Day and month
// arithmetic follows the calendar of start's location.
func (p Period) NextReset(start time.Time) time.Time {
	switch p {
	case PerMinute:
		return start.Add(time.Minute)
	case PerHour:
		return start.Add(time.Hour)
	case PerDay:
		return start.AddDate(0, 0, 1)
	case PerMonth:
		return start.AddDate(0, 1, 0)
	default:
		return start
	}
}
