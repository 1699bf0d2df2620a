package dashboard

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/aggregate"
	"github.com/lucasjlepore/training-report/pipeline"
)

// recentLimit caps the activity table on the page; the JSON API returns all.
const recentLimit = 50

type typeOption struct {
	Name     string
	Selected bool
}

type pageData struct {
	LastModified string
	Start        string
	End          string
	Types        []typeOption
	Summary      aggregate.Summary
	Weekly       aggregate.Rollup
	Monthly      aggregate.Rollup
	Breakdown    []aggregate.CategoryTotal
	Heatmap      []aggregate.HeatmapRow
	Days         []int
	Recent       []pipeline.DerivedRecord
	ExportURL    template.URL
}

var funcs = template.FuncMap{
	"f1": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"opt1": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.1f", *v)
	},
	"optString": func(v *string) string {
		if v == nil {
			return "-"
		}
		return *v
	},
	"optInt": func(v *int) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprint(*v)
	},
}

var pageTemplate = template.Must(template.New("page").Funcs(funcs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Training Load Dashboard</title>
<style>
body { font-family: sans-serif; margin: 2rem; color: #222; }
.cards { display: flex; gap: 1rem; flex-wrap: wrap; }
.card { border: 1px solid #ccc; border-radius: 6px; padding: .75rem 1rem; min-width: 9rem; }
.card b { display: block; font-size: 1.4rem; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #ddd; padding: .25rem .5rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
.muted { color: #777; font-size: .85rem; }
</style>
</head>
<body>
<h1>Training Load Dashboard</h1>
<p class="muted">Data last updated {{.LastModified}}</p>

<form method="get" action="/">
  {{range .Types}}<label><input type="checkbox" name="type" value="{{.Name}}"{{if .Selected}} checked{{end}}> {{.Name}}</label> {{end}}
  <label>From <input type="date" name="start" value="{{.Start}}"></label>
  <label>To <input type="date" name="end" value="{{.End}}"></label>
  <button type="submit">Apply</button>
  <a href="{{.ExportURL}}">Download xlsx</a>
</form>

<div class="cards">
  <div class="card">Workouts<b>{{.Summary.TotalWorkouts}}</b></div>
  <div class="card">Avg TRIMP<b>{{f1 .Summary.AverageTRIMP}}</b></div>
  <div class="card">Avg weekly TRIMP<b>{{f1 .Summary.AverageWeeklyTRIMP}}</b></div>
  <div class="card">Total TRIMP<b>{{f1 .Summary.TotalTRIMP}}</b></div>
  <div class="card">Max TRIMP<b>{{f1 .Summary.MaxTRIMP}}</b></div>
  <div class="card">Longest (mi)<b>{{f1 .Summary.LongestDistance}}</b></div>
  <div class="card">Current streak<b>{{.Summary.CurrentStreak}}</b></div>
  <div class="card">Max streak<b>{{.Summary.MaxStreak}}</b></div>
</div>

<h2>Weekly TRIMP</h2>
<table>
<tr><th>Week of</th><th>Workouts</th><th>TRIMP</th><th>{{.Weekly.Window}}-week avg</th></tr>
{{range .Weekly.Buckets}}<tr><td>{{.Label}}</td><td>{{.Count}}</td><td>{{f1 .Total}}</td><td>{{f1 .RollingAvg}}</td></tr>
{{end}}</table>

<h2>Monthly TRIMP</h2>
<table>
<tr><th>Month</th><th>Workouts</th><th>TRIMP</th><th>{{.Monthly.Window}}-month avg</th></tr>
{{range .Monthly.Buckets}}<tr><td>{{.Label}}</td><td>{{.Count}}</td><td>{{f1 .Total}}</td><td>{{f1 .RollingAvg}}</td></tr>
{{end}}</table>

<h2>By activity type</h2>
<table>
<tr><th>Type</th><th>Workouts</th><th>TRIMP</th></tr>
{{range .Breakdown}}<tr><td>{{.SportType}}</td><td>{{.Count}}</td><td>{{f1 .TRIMP}}</td></tr>
{{end}}</table>

<h2>Daily TRIMP by month</h2>
<table>
<tr><th>Month</th>{{range .Days}}<th>{{.}}</th>{{end}}</tr>
{{range .Heatmap}}<tr><td>{{.Month}}</td>{{range .Days}}<td>{{if .}}{{f1 .}}{{end}}</td>{{end}}</tr>
{{end}}</table>

<h2>Recent activities</h2>
<table>
<tr><th>Date</th><th>Name</th><th>Type</th><th>Miles</th><th>Minutes</th><th>Avg HR</th><th>Zone</th><th>TRIMP</th><th>Pace</th></tr>
{{range .Recent}}<tr><td>{{.StartDateLocalFormatted}}</td><td>{{.Name}}</td><td>{{.SportType}}</td><td>{{opt1 .DistanceMiles}}</td><td>{{f1 .MovingTimeMinutes}}</td><td>{{f1 .AverageHeartrate}}</td><td>{{optInt .HRZone}}</td><td>{{f1 .TRIMP}}</td><td>{{optString .PaceFormatted}}</td></tr>
{{end}}</table>
</body>
</html>
`))

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	v, err := s.load(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	selected := make(map[string]bool, len(v.filter.Types))
	for _, t := range v.filter.Types {
		selected[t] = true
	}
	data := pageData{
		LastModified: v.lastModified.Format(time.RFC1123),
		Summary:      aggregate.Summarize(v.records),
		Weekly:       aggregate.Weekly(v.records),
		Monthly:      aggregate.Monthly(v.records),
		Breakdown:    aggregate.Breakdown(v.records),
		Heatmap:      aggregate.Heatmap(v.records),
		Recent:       v.records,
		ExportURL:    template.URL("/api/export.xlsx?" + r.URL.Query().Encode()),
	}
	for d := 1; d <= len(aggregate.HeatmapRow{}.Days); d++ {
		data.Days = append(data.Days, d)
	}
	if len(data.Recent) > recentLimit {
		data.Recent = data.Recent[:recentLimit]
	}
	for _, c := range v.categories {
		data.Types = append(data.Types, typeOption{Name: c, Selected: selected[c]})
	}
	if !v.filter.Start.IsZero() {
		data.Start = v.filter.Start.Format(dateLayout)
	}
	if !v.filter.End.IsZero() {
		data.End = v.filter.End.Format(dateLayout)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.logger.Error("render dashboard page", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Last-Modified", v.lastModified.UTC().Format(http.TimeFormat))
	_, _ = buf.WriteTo(w)
}
