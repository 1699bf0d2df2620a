// Package aggregate turns derived activity records into the dashboard's
// time-bucketed totals, trend lines, streaks and summary figures.
package aggregate

import (
	"sort"
	"time"

	"github.com/lucasjlepore/training-report/pipeline"
)

const (
	// WeeklyRollingWindow is the trailing window, in weekly buckets, of the trend line.
	WeeklyRollingWindow = 8
	// MonthlyRollingWindow is the trailing window, in monthly buckets, of the trend line.
	MonthlyRollingWindow = 2
)

// Bucket is one calendar period's load.
type Bucket struct {
	Start           time.Time          `json:"start"`
	Label           string             `json:"label"`
	Total           float64            `json:"total"`
	ByCategory      map[string]float64 `json:"by_category"`
	Count           int                `json:"count"`
	CountByCategory map[string]int     `json:"count_by_category"`
	RollingAvg      float64            `json:"rolling_avg"`
}

// Rollup is a series of buckets in ascending order.
type Rollup struct {
	Period  string   `json:"period"`
	Window  int      `json:"window"`
	Buckets []Bucket `json:"buckets"`
}

// AverageTotal is the mean of bucket totals, 0 for an empty rollup.
func (r Rollup) AverageTotal() float64 {
	if len(r.Buckets) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range r.Buckets {
		sum += b.Total
	}
	return sum / float64(len(r.Buckets))
}

// WeekStart returns midnight on the Monday of t's calendar week.
func WeekStart(t time.Time) time.Time {
	day := dayOf(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// MonthStart returns midnight on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Weekly sums TRIMP per Monday-based week with an 8-week trailing mean.
func Weekly(records []pipeline.DerivedRecord) Rollup {
	return rollup("week", records, WeekStart, WeeklyRollingWindow, func(t time.Time) string {
		return t.Format("2006-01-02")
	})
}

// Monthly sums TRIMP per calendar month with a 2-month trailing mean.
func Monthly(records []pipeline.DerivedRecord) Rollup {
	return rollup("month", records, MonthStart, MonthlyRollingWindow, func(t time.Time) string {
		return t.Format("Jan 2006")
	})
}

func rollup(
	period string,
	records []pipeline.DerivedRecord,
	bucketOf func(time.Time) time.Time,
	window int,
	label func(time.Time) string,
) Rollup {
	byStart := make(map[int64]*Bucket)
	for _, r := range records {
		start := bucketOf(r.StartDateLocal)
		key := start.Unix()
		b, ok := byStart[key]
		if !ok {
			b = &Bucket{
				Start:           start,
				Label:           label(start),
				ByCategory:      make(map[string]float64),
				CountByCategory: make(map[string]int),
			}
			byStart[key] = b
		}
		b.Total += r.TRIMP
		b.ByCategory[r.SportType] += r.TRIMP
		b.Count++
		b.CountByCategory[r.SportType]++
	}

	buckets := make([]Bucket, 0, len(byStart))
	for _, b := range byStart {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})

	totals := make([]float64, len(buckets))
	for i, b := range buckets {
		totals[i] = b.Total
	}
	for i, avg := range RollingMean(totals, window) {
		buckets[i].RollingAvg = avg
	}
	return Rollup{Period: period, Window: window, Buckets: buckets}
}

// RollingMean returns the trailing mean over up to window values ending at
// each position, so the first positions average fewer values.
func RollingMean(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}
