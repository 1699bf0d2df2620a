package trainingreport

import (
	"fmt"
	"strings"

	"github.com/lucasjlepore/training-report/aggregate"
)

// recentBuckets is how many of the latest weeks and months the notes list.
const recentBuckets = 4

// BuildSummaryNotes renders headline figures, the latest weekly and monthly
// load with its trend, and the per-type breakdown as plain text.
func BuildSummaryNotes(s aggregate.Summary, weekly, monthly aggregate.Rollup, breakdown []aggregate.CategoryTotal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Workouts: %d | TRIMP %.1f total / %.1f avg / %.1f max\n",
		s.TotalWorkouts,
		s.TotalTRIMP,
		s.AverageTRIMP,
		s.MaxTRIMP,
	)
	fmt.Fprintf(&b, "Weekly TRIMP avg: %.1f | Longest distance: %.1f mi\n",
		s.AverageWeeklyTRIMP,
		s.LongestDistance,
	)
	fmt.Fprintf(&b, "Streak: %d current / %d longest days\n", s.CurrentStreak, s.MaxStreak)
	if s.TotalWorkouts == 0 {
		b.WriteString("No activities in range.\n")
		return b.String()
	}

	writeRollup(&b, "Weekly load", "week", weekly)
	writeRollup(&b, "Monthly load", "month", monthly)

	if len(breakdown) > 0 {
		b.WriteString("\nBy activity type\n")
		for _, c := range breakdown {
			share := 0.0
			if s.TotalTRIMP > 0 {
				share = c.TRIMP / s.TotalTRIMP * 100
			}
			fmt.Fprintf(&b, "- %-12s %3d workouts | TRIMP %7.1f (%4.1f%%)\n", c.SportType, c.Count, c.TRIMP, share)
		}
	}
	return b.String()
}

func writeRollup(b *strings.Builder, title, unit string, r aggregate.Rollup) {
	if len(r.Buckets) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d-%s rolling average)\n", title, r.Window, unit)
	from := len(r.Buckets) - recentBuckets
	if from < 0 {
		from = 0
	}
	for _, bucket := range r.Buckets[from:] {
		fmt.Fprintf(b, "- %-10s %3d workouts | TRIMP %7.1f | avg %7.1f\n",
			bucket.Label, bucket.Count, bucket.Total, bucket.RollingAvg)
	}

	last := r.Buckets[len(r.Buckets)-1]
	switch {
	case last.RollingAvg == 0:
	case last.Total > last.RollingAvg*1.2:
		fmt.Fprintf(b, "Latest %s is %.0f%% above its rolling average.\n", unit, (last.Total/last.RollingAvg-1)*100)
	case last.Total < last.RollingAvg*0.8:
		fmt.Fprintf(b, "Latest %s is %.0f%% below its rolling average.\n", unit, (1-last.Total/last.RollingAvg)*100)
	}
}
