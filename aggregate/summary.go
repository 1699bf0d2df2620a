package aggregate

import (
	"math"
	"sort"
	"time"

	"github.com/lucasjlepore/training-report/pipeline"
)

// DefaultWindowDays is the default dashboard date range, ending at the most
// recent activity.
const DefaultWindowDays = 56

// Filter selects records by sport type and an inclusive day range.
type Filter struct {
	Types []string
	Start time.Time
	End   time.Time
}

// DefaultFilter covers every sport type and the 56 days up to the latest
// activity.
func DefaultFilter(records []pipeline.DerivedRecord) Filter {
	var latest time.Time
	for _, r := range records {
		if r.StartDateLocal.After(latest) {
			latest = r.StartDateLocal
		}
	}
	if latest.IsZero() {
		return Filter{}
	}
	return Filter{
		Types: Categories(records),
		Start: dayOf(latest.AddDate(0, 0, -DefaultWindowDays)),
		End:   dayOf(latest),
	}
}

// Apply keeps records of a selected type starting on or after Start and
// before the day after End. Empty Types and zero bounds do not filter.
func (f Filter) Apply(records []pipeline.DerivedRecord) []pipeline.DerivedRecord {
	var types map[string]struct{}
	if len(f.Types) > 0 {
		types = make(map[string]struct{}, len(f.Types))
		for _, t := range f.Types {
			types[t] = struct{}{}
		}
	}
	var endExclusive time.Time
	if !f.End.IsZero() {
		endExclusive = dayOf(f.End).AddDate(0, 0, 1)
	}

	out := make([]pipeline.DerivedRecord, 0, len(records))
	for _, r := range records {
		if types != nil {
			if _, ok := types[r.SportType]; !ok {
				continue
			}
		}
		if !f.Start.IsZero() && r.StartDateLocal.Before(dayOf(f.Start)) {
			continue
		}
		if !endExclusive.IsZero() && !r.StartDateLocal.Before(endExclusive) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Categories lists distinct sport types in first-seen order.
func Categories(records []pipeline.DerivedRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range records {
		if _, ok := seen[r.SportType]; ok {
			continue
		}
		seen[r.SportType] = struct{}{}
		out = append(out, r.SportType)
	}
	return out
}

// Streaks counts consecutive calendar days with at least one activity. A gap
// of more than one day restarts the count at 1. current is the run ending at
// the last activity date.
func Streaks(records []pipeline.DerivedRecord) (current, longest int) {
	days := distinctDays(records)
	var last time.Time
	for i, d := range days {
		if i > 0 && daysBetween(last, d) == 1 {
			current++
		} else {
			current = 1
		}
		if current > longest {
			longest = current
		}
		last = d
	}
	return current, longest
}

func distinctDays(records []pipeline.DerivedRecord) []time.Time {
	seen := make(map[string]struct{}, len(records))
	days := make([]time.Time, 0, len(records))
	for _, r := range records {
		d := dayOf(r.StartDateLocal)
		key := d.Format("2006-01-02")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// daysBetween counts calendar days from a to b, ignoring DST length changes.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// Summary holds the dashboard's headline figures.
type Summary struct {
	TotalWorkouts      int     `json:"total_workouts"`
	AverageTRIMP       float64 `json:"average_trimp"`
	AverageWeeklyTRIMP float64 `json:"average_weekly_trimp"`
	TotalTRIMP         float64 `json:"total_trimp"`
	MaxTRIMP           float64 `json:"max_trimp"`
	LongestDistance    float64 `json:"longest_distance_miles"`
	CurrentStreak      int     `json:"current_streak"`
	MaxStreak          int     `json:"max_streak"`
}

// Summarize computes headline figures rounded to one decimal.
func Summarize(records []pipeline.DerivedRecord) Summary {
	s := Summary{TotalWorkouts: len(records)}
	if len(records) == 0 {
		return s
	}
	total := 0.0
	for i, r := range records {
		total += r.TRIMP
		if i == 0 || r.TRIMP > s.MaxTRIMP {
			s.MaxTRIMP = r.TRIMP
		}
		if r.DistanceMiles != nil && *r.DistanceMiles > s.LongestDistance {
			s.LongestDistance = *r.DistanceMiles
		}
	}
	s.TotalTRIMP = round1(total)
	s.AverageTRIMP = round1(total / float64(len(records)))
	s.AverageWeeklyTRIMP = round1(Weekly(records).AverageTotal())
	s.MaxTRIMP = round1(s.MaxTRIMP)
	s.LongestDistance = round1(s.LongestDistance)
	s.CurrentStreak, s.MaxStreak = Streaks(records)
	return s
}

// CategoryTotal is one sport type's share of the load.
type CategoryTotal struct {
	SportType string  `json:"sport_type"`
	TRIMP     float64 `json:"trimp"`
	Count     int     `json:"count"`
}

// Breakdown totals TRIMP per sport type, largest first.
func Breakdown(records []pipeline.DerivedRecord) []CategoryTotal {
	idx := make(map[string]int)
	var out []CategoryTotal
	for _, r := range records {
		i, ok := idx[r.SportType]
		if !ok {
			i = len(out)
			idx[r.SportType] = i
			out = append(out, CategoryTotal{SportType: r.SportType})
		}
		out[i].TRIMP += r.TRIMP
		out[i].Count++
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TRIMP > out[j].TRIMP })
	return out
}

// HeatmapRow is one month's TRIMP per day of month; Days[0] is day 1.
type HeatmapRow struct {
	Month string      `json:"month"`
	Days  [31]float64 `json:"days"`
}

// Heatmap sums TRIMP by month name and day of month. Months appear in
// calendar order and only when they contain an activity; the same month of
// different years shares a row.
func Heatmap(records []pipeline.DerivedRecord) []HeatmapRow {
	var rows [12]*HeatmapRow
	for _, r := range records {
		m := r.StartDateLocal.Month()
		if rows[m-1] == nil {
			rows[m-1] = &HeatmapRow{Month: m.String()[:3]}
		}
		rows[m-1].Days[r.StartDateLocal.Day()-1] += r.TRIMP
	}
	var out []HeatmapRow
	for _, row := range rows {
		if row != nil {
			out = append(out, *row)
		}
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
