package apiwatch

import (
	"math"
	"testing"
	"time"

	"github.com/ryhazerus/apiwatch/store"
)

func TestFormatHours(t *testing.T) {
	tests := []struct {
		hours float64
		want  string
	}{
		{0.5, "30 minutes"},
		{0.01, "1 minutes"},
		{1, "1 hours"},
		{1.5, "1h 30m"},
		{2, "2 hours"},
		{1.999, "2 hours"},
		{13.2857, "13h 17m"},
		{24, "1 days"},
		{48, "2 days"},
		{50, "2d 2h"},
		{75.9, "3d 3h"},
	}
	for _, tt := range tests {
		if got := formatHours(tt.hours); got != tt.want {
			t.Errorf("formatHours(%v) = %q, want %q", tt.hours, got, tt.want)
		}
	}
}

func samplesAt(now time.Time, counts map[time.Duration]int64) []store.Sample {
	var out []store.Sample
	for ago, n := range counts {
		out = append(out, store.Sample{Count: n, RecordedAt: now.Add(-ago)})
	}
	return out
}

func TestComputeForecast(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		samples []store.Sample
		usage   int64
		limit   int64
		wantMsg string
		wantAvg int64 // -1 means nil
		wantEst string
		wantRec Recommendation
	}{
		{
			name:    "no samples",
			usage:   10,
			limit:   100,
			wantMsg: MsgInsufficientData,
			wantAvg: -1,
		},
		{
			name:    "negligible usage",
			samples: samplesAt(now, map[time.Duration]int64{20 * time.Hour: 5}),
			usage:   5,
			limit:   100,
			wantMsg: MsgNoUsage,
			wantAvg: 0,
		},
		{
			name:    "steady usage on track",
			samples: samplesAt(now, map[time.Duration]int64{2 * time.Hour: 100, time.Hour: 100}),
			usage:   200,
			limit:   10000,
			wantAvg: 100,
			wantEst: "4d 2h",
			wantRec: RecommendOnTrack,
		},
		{
			name:    "limit within half a day",
			samples: samplesAt(now, map[time.Duration]int64{2 * time.Hour: 100, time.Hour: 100}),
			usage:   200,
			limit:   1000,
			wantAvg: 100,
			wantEst: "8 hours",
			wantRec: RecommendMonitor,
		},
		{
			name:    "warning tier",
			samples: samplesAt(now, map[time.Duration]int64{4 * time.Hour: 10}),
			usage:   85,
			limit:   100,
			wantAvg: 3,
			wantEst: "5 hours",
			wantRec: RecommendWarning,
		},
		{
			name:    "urgent tier",
			samples: samplesAt(now, map[time.Duration]int64{time.Hour: 30}),
			usage:   95,
			limit:   100,
			wantAvg: 30,
			wantEst: "10 minutes",
			wantRec: RecommendUrgent,
		},
		{
			name:    "already reached",
			samples: samplesAt(now, map[time.Duration]int64{time.Hour: 120}),
			usage:   120,
			limit:   100,
			wantMsg: MsgLimitReached,
			wantAvg: 120,
			wantEst: EstimateLimitReached,
			wantRec: RecommendUrgent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ComputeForecast(tt.samples, tt.usage, tt.limit, now)
			if f.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", f.Message, tt.wantMsg)
			}
			switch {
			case tt.wantAvg < 0 && f.AverageUsagePerHour != nil:
				t.Errorf("AverageUsagePerHour = %d, want nil", *f.AverageUsagePerHour)
			case tt.wantAvg >= 0 && (f.AverageUsagePerHour == nil || *f.AverageUsagePerHour != tt.wantAvg):
				t.Errorf("AverageUsagePerHour = %v, want %d", f.AverageUsagePerHour, tt.wantAvg)
			}
			switch {
			case tt.wantEst == "" && f.EstimatedTimeToLimit != nil:
				t.Errorf("EstimatedTimeToLimit = %q, want nil", *f.EstimatedTimeToLimit)
			case tt.wantEst != "" && (f.EstimatedTimeToLimit == nil || *f.EstimatedTimeToLimit != tt.wantEst):
				t.Errorf("EstimatedTimeToLimit = %v, want %q", f.EstimatedTimeToLimit, tt.wantEst)
			}
			if f.Recommendation != tt.wantRec {
				t.Errorf("Recommendation = %q, want %q", f.Recommendation, tt.wantRec)
			}
			if f.Advice != tt.wantRec.Message() {
				t.Errorf("Advice = %q, want %q", f.Advice, tt.wantRec.Message())
			}
		})
	}
}

func TestComputeForecastSaturatesRate(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	samples := samplesAt(now, map[time.Duration]int64{
		3 * time.Hour: math.MaxInt64,
		2 * time.Hour: math.MaxInt64,
		time.Hour:     math.MaxInt64,
	})

	f := ComputeForecast(samples, math.MaxInt64, 10, now)
	if f.AverageUsagePerHour == nil || *f.AverageUsagePerHour <= 0 {
		t.Fatalf("average = %v, want a positive rate", f.AverageUsagePerHour)
	}
	if f.Message != MsgLimitReached {
		t.Errorf("message = %q, want %q", f.Message, MsgLimitReached)
	}
}
