package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/activity"
	"github.com/lucasjlepore/training-report/intensity"
	"github.com/lucasjlepore/training-report/strava"
)

// Sample table columns.
const (
	ColActivityID    = "activity_id"
	ColStreamSport   = "sport_type"
	ColTime          = "time"
	ColDistanceMiles = "distance_miles"
	ColElevationFeet = "elevation_feet"
	ColHeartrate     = "heartrate"
	ColGrade         = "grade"
	ColPace          = "pace"
)

// StreamColumns is the header of a new sample table.
var StreamColumns = []string{
	ColActivityID, ColStreamSport, ColTime, ColDistanceMiles,
	ColElevationFeet, ColHeartrate, ColGrade, ColPace,
}

// DefaultStreamTypes are the activity types likely to carry heart rate.
var DefaultStreamTypes = []string{"Run", "Ride", "Hike", "Walk", "Elliptical", "Rowing", "NordicSki", "Yoga", "Tennis"}

// StreamResult counts one sample-stream pass.
type StreamResult struct {
	Activities int `json:"activities"`
	Samples    int `json:"samples"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

// StreamRows converts one activity's streams into sample rows: miles, feet,
// grade as rise over run in feet, and pace in minutes per mile between
// consecutive samples. An activity without a time stream yields no rows.
func StreamRows(activityID, sportType string, s strava.Streams) [][]string {
	times := s.Series("time")
	if len(times) == 0 {
		return nil
	}
	dist := s.Series("distance")
	alt := s.Series("altitude")
	hr := s.Series("heartrate")

	rows := make([][]string, 0, len(times))
	var prevMiles, prevFeet float64
	for i, sec := range times {
		miles := intensity.MetersToMiles(at(dist, i))
		feet := intensity.MetersToFeet(at(alt, i))
		grade, pace := "0", "0"
		if i > 0 {
			dMiles := miles - prevMiles
			grade = sampleFloat((feet - prevFeet) / (dMiles * 5280))
			pace = sampleFloat((sec - times[i-1]) / dMiles / 60)
		}
		heart := ""
		if i < len(hr) {
			heart = activity.FormatFloat(hr[i])
		}
		rows = append(rows, []string{
			activityID,
			sportType,
			activity.FormatFloat(sec),
			strconv.FormatFloat(miles, 'f', 6, 64),
			strconv.FormatFloat(feet, 'f', 6, 64),
			heart,
			grade,
			pace,
		})
		prevMiles, prevFeet = miles, feet
	}
	return rows
}

func at(series []float64, i int) float64 {
	if i < len(series) {
		return series[i]
	}
	return 0
}

// sampleFloat renders 0/0 as 0 and a division by zero as missing.
func sampleFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "0"
	case math.IsInf(v, 0):
		return ""
	default:
		return strconv.FormatFloat(v, 'f', 6, 64)
	}
}

// ReadStreamTable reads the sample table at path, or starts an empty one.
func ReadStreamTable(path string) (*activity.Table, error) {
	t, err := activity.ReadTable(path)
	if errors.Is(err, activity.ErrNoTable) {
		return activity.NewTable(StreamColumns), nil
	}
	if err != nil {
		return nil, err
	}
	if err := t.RequireColumns(ColActivityID); err != nil {
		return nil, err
	}
	return t, nil
}

// streamCandidates picks non-manual activities of the listed types whose
// samples are not yet in the table, keeping fetch order.
func streamCandidates(rows []map[string]string, types []string, have map[string]struct{}) []map[string]string {
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	var out []map[string]string
	for _, r := range rows {
		if _, ok := allowed[activityType(r)]; !ok {
			continue
		}
		if activity.IsTrue(activity.ParseBool(r[activity.ColManual])) {
			continue
		}
		id := activity.NormalizeID(r[activity.ColID])
		if id == "" {
			continue
		}
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}
		out = append(out, r)
	}
	return out
}

// activityType prefers the legacy type field and falls back to sport_type.
func activityType(r map[string]string) string {
	if t := r[activity.ColType]; t != "" {
		return t
	}
	return r[activity.ColSportType]
}

// appendStreams fetches samples for every new candidate and appends them to
// the sample table. A failed activity is logged and skipped; the table is only
// rewritten when samples were added.
func (f *Fetcher) appendStreams(ctx context.Context, token string, rows []map[string]string, logger *zap.Logger) (*StreamResult, error) {
	t, err := ReadStreamTable(f.StreamsPath)
	if err != nil {
		return nil, err
	}
	types := f.StreamTypes
	if len(types) == 0 {
		types = DefaultStreamTypes
	}
	candidates := streamCandidates(rows, types, t.Keys(ColActivityID))
	logger.Info("fetching sample streams", zap.Int("activities", len(candidates)))

	res := &StreamResult{}
	width := len(t.Header)
	for i, r := range candidates {
		if i > 0 && f.StreamPause > 0 {
			if err := pause(ctx, f.StreamPause); err != nil {
				return nil, err
			}
		}
		id := activity.NormalizeID(r[activity.ColID])
		streams, err := f.Source.GetActivityStreams(ctx, token, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Failed++
			logger.Warn("sample streams not fetched", zap.String("activity_id", id), zap.Error(err))
			continue
		}
		samples := StreamRows(id, activityType(r), streams)
		if len(samples) == 0 {
			continue
		}
		for _, s := range samples {
			t.Rows = append(t.Rows, placeRow(t, s, width))
		}
		res.Activities++
		res.Samples += len(samples)
		logger.Debug("processed sample streams",
			zap.String("activity_id", id),
			zap.Int("samples", len(samples)),
			zap.Int("done", i+1),
			zap.Int("of", len(candidates)),
		)
	}
	res.Total = len(t.Rows)

	if res.Samples > 0 {
		if err := activity.WriteTable(f.StreamsPath, t); err != nil {
			return nil, fmt.Errorf("write sample table: %w", err)
		}
		logger.Info("appended sample streams",
			zap.Int("activities", res.Activities),
			zap.Int("samples", res.Samples),
			zap.Int("total", res.Total),
			zap.String("path", f.StreamsPath),
		)
	} else {
		logger.Info("no new sample streams")
	}
	return res, nil
}

// placeRow maps a StreamColumns-ordered row onto the table's header, which
// may order or extend the columns differently.
func placeRow(t *activity.Table, sample []string, width int) []string {
	row := make([]string, width)
	for j, col := range StreamColumns {
		if i := t.ColumnIndex(col); i >= 0 {
			row[i] = sample[j]
		}
	}
	return row
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
