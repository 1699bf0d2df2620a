package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/training-report/pipeline"
)

func rec(day time.Time, sport string, trimp float64) pipeline.DerivedRecord {
	return pipeline.DerivedRecord{
		StartDateLocal: day,
		SportType:      sport,
		TRIMP:          trimp,
		ID:             day.Format(time.RFC3339) + sport,
	}
}

func date(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestStreaksSeriesWithGap(t *testing.T) {
	d := date(2024, 3, 10, 8)
	records := []pipeline.DerivedRecord{
		rec(d.AddDate(0, 0, 5), "Run", 1),
		rec(d, "Run", 1),
		rec(d.AddDate(0, 0, 3), "Ride", 1),
		rec(d.AddDate(0, 0, 1), "Run", 1),
		rec(d.AddDate(0, 0, 4), "Run", 1),
		// same day twice counts once
		rec(d.AddDate(0, 0, 4).Add(5*time.Hour), "Walk", 1),
	}
	current, longest := Streaks(records)
	assert.Equal(t, 3, current)
	assert.Equal(t, 3, longest)
}

func TestStreaksResetToOneAfterGap(t *testing.T) {
	d := date(2024, 1, 1, 9)
	records := []pipeline.DerivedRecord{
		rec(d, "Run", 1),
		rec(d.AddDate(0, 0, 1), "Run", 1),
		rec(d.AddDate(0, 0, 2), "Run", 1),
		rec(d.AddDate(0, 0, 10), "Run", 1),
	}
	current, longest := Streaks(records)
	assert.Equal(t, 1, current)
	assert.Equal(t, 3, longest)
}

func TestStreaksEmpty(t *testing.T) {
	current, longest := Streaks(nil)
	assert.Zero(t, current)
	assert.Zero(t, longest)
}

func TestWeekStartIsMonday(t *testing.T) {
	// 2024-05-05 is a Sunday, 2024-05-06 a Monday
	assert.Equal(t, date(2024, 4, 29, 0), WeekStart(date(2024, 5, 5, 23)))
	assert.Equal(t, date(2024, 5, 6, 0), WeekStart(date(2024, 5, 6, 1)))
	assert.Equal(t, date(2024, 5, 6, 0), WeekStart(date(2024, 5, 8, 12)))
	assert.Equal(t, date(2024, 5, 1, 0), MonthStart(date(2024, 5, 31, 12)))
}

func TestWeeklyRollupSumsAndRollingMean(t *testing.T) {
	records := []pipeline.DerivedRecord{
		rec(date(2024, 5, 6, 7), "Run", 10),
		rec(date(2024, 5, 8, 7), "Ride", 20),
		rec(date(2024, 5, 14, 7), "Run", 40),
		rec(date(2024, 5, 28, 7), "Run", 60),
	}
	r := Weekly(records)
	require.Len(t, r.Buckets, 3, "weeks without activity are not materialized")
	assert.Equal(t, "week", r.Period)
	assert.Equal(t, WeeklyRollingWindow, r.Window)

	first := r.Buckets[0]
	assert.Equal(t, date(2024, 5, 6, 0), first.Start)
	assert.Equal(t, "2024-05-06", first.Label)
	assert.InDelta(t, 30, first.Total, 1e-9)
	assert.InDelta(t, 10, first.ByCategory["Run"], 1e-9)
	assert.InDelta(t, 20, first.ByCategory["Ride"], 1e-9)
	assert.Equal(t, 2, first.Count)
	assert.Equal(t, 1, first.CountByCategory["Ride"])

	assert.InDelta(t, 30, r.Buckets[0].RollingAvg, 1e-9)
	assert.InDelta(t, 35, r.Buckets[1].RollingAvg, 1e-9)
	assert.InDelta(t, 130.0/3, r.Buckets[2].RollingAvg, 1e-9)
	assert.InDelta(t, 130.0/3, r.AverageTotal(), 1e-9)
}

func TestMonthlyRollupTwoMonthWindow(t *testing.T) {
	records := []pipeline.DerivedRecord{
		rec(date(2024, 1, 15, 7), "Run", 100),
		rec(date(2024, 2, 1, 7), "Run", 50),
		rec(date(2024, 3, 31, 7), "Ride", 10),
	}
	r := Monthly(records)
	require.Len(t, r.Buckets, 3)
	assert.Equal(t, "Jan 2024", r.Buckets[0].Label)
	assert.InDelta(t, 100, r.Buckets[0].RollingAvg, 1e-9)
	assert.InDelta(t, 75, r.Buckets[1].RollingAvg, 1e-9)
	assert.InDelta(t, 30, r.Buckets[2].RollingAvg, 1e-9)
}

func TestRollingMean(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 2.5, 3.5}, RollingMean([]float64{1, 2, 3, 4}, 2))
	assert.Empty(t, RollingMean(nil, 8))
	assert.Equal(t, []float64{4, 8}, RollingMean([]float64{4, 8}, 0))
}

func TestFilterApply(t *testing.T) {
	records := []pipeline.DerivedRecord{
		rec(date(2024, 5, 1, 6), "Run", 1),
		rec(date(2024, 5, 10, 23), "Ride", 1),
		rec(date(2024, 5, 11, 0), "Run", 1),
	}
	f := Filter{Types: []string{"Run"}, Start: date(2024, 5, 1, 0), End: date(2024, 5, 10, 0)}
	out := f.Apply(records)
	require.Len(t, out, 1)
	assert.Equal(t, "Run", out[0].SportType)

	f = Filter{Start: date(2024, 5, 2, 0), End: date(2024, 5, 10, 0)}
	out = f.Apply(records)
	require.Len(t, out, 1, "the whole end day is included, the next day is not")
	assert.Equal(t, "Ride", out[0].SportType)

	assert.Len(t, Filter{}.Apply(records), 3)
}

func TestDefaultFilterLastEightWeeks(t *testing.T) {
	records := []pipeline.DerivedRecord{
		rec(date(2024, 6, 30, 18), "Run", 1),
		rec(date(2024, 1, 1, 8), "Swim", 1),
	}
	f := DefaultFilter(records)
	assert.Equal(t, []string{"Run", "Swim"}, f.Types)
	assert.Equal(t, date(2024, 5, 5, 0), f.Start)
	assert.Equal(t, date(2024, 6, 30, 0), f.End)
	assert.Len(t, f.Apply(records), 1)

	assert.Equal(t, Filter{}, DefaultFilter(nil))
}

func TestSummarize(t *testing.T) {
	dist := 13.14
	r1 := rec(date(2024, 5, 6, 7), "Run", 50.04)
	r1.DistanceMiles = &dist
	records := []pipeline.DerivedRecord{
		r1,
		rec(date(2024, 5, 7, 7), "Ride", 100),
		rec(date(2024, 5, 20, 7), "Run", 30),
	}
	s := Summarize(records)
	assert.Equal(t, 3, s.TotalWorkouts)
	assert.InDelta(t, 180.0, s.TotalTRIMP, 1e-9)
	assert.InDelta(t, 60.0, s.AverageTRIMP, 1e-9)
	assert.InDelta(t, 90.0, s.AverageWeeklyTRIMP, 1e-9)
	assert.InDelta(t, 100.0, s.MaxTRIMP, 1e-9)
	assert.InDelta(t, 13.1, s.LongestDistance, 1e-9)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 2, s.MaxStreak)

	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestBreakdownAndCategories(t *testing.T) {
	records := []pipeline.DerivedRecord{
		rec(date(2024, 5, 6, 7), "Run", 10),
		rec(date(2024, 5, 7, 7), "Ride", 30),
		rec(date(2024, 5, 8, 7), "Run", 5),
	}
	assert.Equal(t, []string{"Run", "Ride"}, Categories(records))
	assert.Equal(t, []CategoryTotal{
		{SportType: "Ride", TRIMP: 30, Count: 1},
		{SportType: "Run", TRIMP: 15, Count: 2},
	}, Breakdown(records))
}

func TestHeatmap(t *testing.T) {
	records := []pipeline.DerivedRecord{
		rec(date(2024, 3, 31, 7), "Run", 10),
		rec(date(2024, 1, 1, 7), "Run", 5),
		rec(date(2024, 1, 1, 18), "Ride", 7),
	}
	rows := Heatmap(records)
	require.Len(t, rows, 2)
	assert.Equal(t, "Jan", rows[0].Month)
	assert.InDelta(t, 12, rows[0].Days[0], 1e-9)
	assert.Equal(t, "Mar", rows[1].Month)
	assert.InDelta(t, 10, rows[1].Days[30], 1e-9)
}
