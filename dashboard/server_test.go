package dashboard

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lucasjlepore/training-report/metrics"
	"github.com/lucasjlepore/training-report/pipeline"
)

func record(id string, start time.Time, sport string, trimp float64) pipeline.DerivedRecord {
	miles := 3.1
	return pipeline.DerivedRecord{
		StartDateLocal:          start,
		StartDateLocalFormatted: start.Format(pipeline.StartLayout),
		Name:                    sport + " " + id,
		SportType:               sport,
		DistanceMiles:           &miles,
		MovingTimeMinutes:       30,
		AverageHeartrate:        150,
		HRRatio:                 0.7,
		TRIMP:                   trimp,
		ID:                      id,
	}
}

func writeDerived(t *testing.T) string {
	t.Helper()
	records := []pipeline.DerivedRecord{
		record("4", time.Date(2024, 6, 30, 7, 0, 0, 0, time.UTC), "Run", 60),
		record("3", time.Date(2024, 6, 29, 7, 0, 0, 0, time.UTC), "Ride", 40),
		record("2", time.Date(2024, 6, 28, 7, 0, 0, 0, time.UTC), "Run", 20),
		// outside the default 56-day window
		record("1", time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC), "Swim", 10),
	}
	var buf bytes.Buffer
	require.NoError(t, pipeline.EncodeDerivedCSV(&buf, records))
	path := filepath.Join(t.TempDir(), "activity_data_with_intensity.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

type summaryEnvelope struct {
	LastModified time.Time `json:"last_modified"`
	Filter       struct {
		Types []string `json:"types"`
		Start string   `json:"start"`
		End   string   `json:"end"`
	} `json:"filter"`
	Categories []string `json:"categories"`
	Data       struct {
		TotalWorkouts int     `json:"total_workouts"`
		TotalTRIMP    float64 `json:"total_trimp"`
		CurrentStreak int     `json:"current_streak"`
	} `json:"data"`
}

func TestRoutesAreRegistered(t *testing.T) {
	s := NewServer(Options{DerivedPath: "unused"})
	for name, path := range map[string]string{
		"page":       "/",
		"summary":    "/api/summary",
		"weekly":     "/api/weekly",
		"monthly":    "/api/monthly",
		"activities": "/api/activities",
		"heatmap":    "/api/heatmap",
		"breakdown":  "/api/breakdown",
		"export":     "/api/export.xlsx",
		"metrics":    "/metrics",
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, path, nil)
			require.NoError(t, err)
			route := s.Router().Get(name)
			require.NotNil(t, route)
			assert.True(t, route.Match(req, &mux.RouteMatch{}))
		})
	}
}

func TestMissingArtifactIsServiceUnavailable(t *testing.T) {
	s := NewServer(Options{DerivedPath: filepath.Join(t.TempDir(), "missing.csv")})
	for _, target := range []string{"/", "/api/summary", "/api/export.xlsx"} {
		rec := get(t, s.Handler(), target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
		assert.Contains(t, rec.Body.String(), "compute_intensity", target)
	}
}

func TestSummaryUsesDefaultWindow(t *testing.T) {
	path := writeDerived(t)
	rec := get(t, NewServer(Options{DerivedPath: path}).Handler(), "/api/summary")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))

	var env summaryEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "2024-05-05", env.Filter.Start)
	assert.Equal(t, "2024-06-30", env.Filter.End)
	assert.Equal(t, []string{"Run", "Ride", "Swim"}, env.Categories)
	assert.Equal(t, 3, env.Data.TotalWorkouts)
	assert.InDelta(t, 120.0, env.Data.TotalTRIMP, 1e-9)
	assert.Equal(t, 3, env.Data.CurrentStreak)
	assert.False(t, env.LastModified.IsZero())
}

func TestQueryFilters(t *testing.T) {
	h := NewServer(Options{DerivedPath: writeDerived(t)}).Handler()

	rec := get(t, h, "/api/summary?type=Run&start=2024-01-01&end=2024-12-31")
	require.Equal(t, http.StatusOK, rec.Code)
	var env summaryEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 2, env.Data.TotalWorkouts)
	assert.Equal(t, []string{"Run"}, env.Filter.Types)

	rec = get(t, h, "/api/activities?type=Swim,Ride&start=2024-01-01")
	require.Equal(t, http.StatusOK, rec.Code)
	var acts struct {
		Data []pipeline.DerivedRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acts))
	require.Len(t, acts.Data, 2)
	assert.Equal(t, "3", acts.Data[0].ID)
	assert.Equal(t, "1", acts.Data[1].ID)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/weekly?start=06/01/2024").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/weekly?start=2024-06-02&end=2024-06-01").Code)
}

func TestWeeklyAndBreakdown(t *testing.T) {
	h := NewServer(Options{DerivedPath: writeDerived(t)}).Handler()

	rec := get(t, h, "/api/weekly")
	require.Equal(t, http.StatusOK, rec.Code)
	var weekly struct {
		Data struct {
			Window  int `json:"window"`
			Buckets []struct {
				Label string  `json:"label"`
				Total float64 `json:"total"`
			} `json:"buckets"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &weekly))
	assert.Equal(t, 8, weekly.Data.Window)
	// Jun 28 to Jun 30 2024 fall in the week of Monday Jun 24
	require.Len(t, weekly.Data.Buckets, 1)
	assert.Equal(t, "2024-06-24", weekly.Data.Buckets[0].Label)
	assert.InDelta(t, 120, weekly.Data.Buckets[0].Total, 1e-9)

	rec = get(t, h, "/api/breakdown")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sport_type":"Run","trimp":80,"count":2`)
}

func TestPageRendersFilterControls(t *testing.T) {
	rec := get(t, NewServer(Options{DerivedPath: writeDerived(t)}).Handler(), "/?type=Run")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Training Load Dashboard")
	assert.Contains(t, body, `value="Run" checked`)
	assert.Contains(t, body, `value="Ride">`)
	assert.Contains(t, body, `/api/export.xlsx?type=Run`)
	assert.Contains(t, body, "Run 4")
}

func TestExportWorkbook(t *testing.T) {
	rec := get(t, NewServer(Options{DerivedPath: writeDerived(t)}).Handler(), "/api/export.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "training_load.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Activities", "Weekly", "Monthly", "Summary"}, f.GetSheetList())

	rows, err := f.GetRows("Activities")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, pipeline.DerivedColumns, rows[0])

	v, err := f.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "3", v)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	m, reg := metrics.NewTestManagerAndRegistry()
	h := NewServer(Options{DerivedPath: writeDerived(t), Metrics: m, Gatherer: reg}).Handler()

	get(t, h, "/api/summary")
	get(t, h, "/api/summary?start=bad")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterRequests.WithLabelValues("summary", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CounterRequests.WithLabelValues("summary", "400")))

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "training_report_test_http_requests_total"))
}
