package apiwatch

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"time"

	"github.com/ryhazerus/apiwatch/store"
)

// Granularity is the bucket label a usage sample is tagged with.
type Granularity string

const (
	Hourly Granularity = "hourly"
	Daily  Granularity = "daily"
)

// ParseGranularity accepts "hourly" or "daily".
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Hourly, Daily:
		return g, nil
	default:
		return "", &ValidationError{Field: "granularity", Reason: "must be hourly or daily"}
	}
}

// GranularityFunc picks the label for a sample recorded at t.
type GranularityFunc func(t time.Time) Granularity

// HourOfDayGranularity labels samples recorded during hour 0 as daily and
// all others as hourly.
func HourOfDayGranularity(t time.Time) Granularity {
	if t.Hour() == 0 {
		return Daily
	}
	return Hourly
}

// Ledger is the append-only log of usage samples.
type Ledger struct {
	store store.Store
	tag   GranularityFunc
}

// NewLedger creates a ledger over s. A nil tag selects HourOfDayGranularity.
func NewLedger(s store.Store, tag GranularityFunc) *Ledger {
	if tag == nil {
		tag = HourOfDayGranularity
	}
	return &Ledger{store: s, tag: tag}
}

// Append records count requests for a resource at now.
func (l *Ledger) Append(ctx context.Context, resourceID string, count int64, now time.Time) (store.Sample, error) {
	return l.store.AppendSample(ctx, store.Sample{
		ResourceID:  resourceID,
		Count:       count,
		Granularity: string(l.tag(now)),
		RecordedAt:  now,
	})
}

// Query returns the samples of a resource recorded at or after since,
// oldest first. An empty granularity matches every sample. The sequence
// reads from the store each time it is ranged over; a store error is
// yielded once and ends the sequence.
func (l *Ledger) Query(ctx context.Context, resourceID string, since time.Time, g Granularity) iter.Seq2[store.Sample, error] {
	return func(yield func(store.Sample, error) bool) {
		samples, err := l.store.Samples(ctx, resourceID, since, string(g))
		if err != nil {
			yield(store.Sample{}, err)
			return
		}
		for _, s := range samples {
			if !yield(s, nil) {
				return
			}
		}
	}
}

// HistoryPoint is the total number of requests recorded on one date.
type HistoryPoint struct {
	Date          string `json:"date"`
	RequestsCount int64  `json:"requestsCount"`
}

// AggregateByDate sums samples per calendar date in loc and returns the
// dates in ascending order.
func AggregateByDate(samples iter.Seq2[store.Sample, error], loc *time.Location) ([]HistoryPoint, error) {
	var out []HistoryPoint
	index := make(map[string]int)
	for s, err := range samples {
		if err != nil {
			return nil, err
		}
		date := s.RecordedAt.In(loc).Format(time.DateOnly)
		i, ok := index[date]
		if !ok {
			i = len(out)
			index[date] = i
			out = append(out, HistoryPoint{Date: date})
		}
		out[i].RequestsCount += s.Count
	}
	slices.SortFunc(out, func(a, b HistoryPoint) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return out, nil
}
