package trainingreport

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/tormoder/fit"

	"github.com/lucasjlepore/training-report/activity"
)

// localLayout matches how the provider renders start_date_local.
const localLayout = "2006-01-02T15:04:05Z"

// FitActivity is the raw-table view of one device-recorded FIT activity.
type FitActivity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	SportType      string    `json:"sport_type"`
	StartTime      time.Time `json:"start_time"`
	StartLocal     time.Time `json:"start_date_local"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	MovingSeconds  float64   `json:"moving_seconds"`
	DistanceMeters float64   `json:"distance_meters"`
	ElevationGainM float64   `json:"elevation_gain_m"`
	AvgHeartRate   float64   `json:"avg_heart_rate_bpm"`
	MaxHeartRate   float64   `json:"max_heart_rate_bpm"`
	HasHeartRate   bool      `json:"has_heartrate"`
}

type recordSeries struct {
	start       time.Time
	end         time.Time
	durationSec float64
	hrSamples   []float64

	lastDistanceMeters float64
}

// DecodeActivityFile decodes the FIT file at path.
func DecodeActivityFile(path string) (*FitActivity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open FIT file: %w", err)
	}
	defer f.Close()
	return DecodeActivity(f)
}

// DecodeActivity reads an activity FIT stream. Session totals win; the
// per-second records fill in whatever the session leaves invalid.
func DecodeActivity(r io.Reader) (*FitActivity, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode FIT file: %w", err)
	}

	act, err := decoded.Activity()
	if err != nil {
		return nil, fmt.Errorf("activity FIT expected: %w", err)
	}
	if len(act.Sessions) == 0 {
		return nil, fmt.Errorf("activity file has no session message")
	}

	series := buildRecordSeries(act.Records)
	session := act.Sessions[0]

	out := &FitActivity{
		SportType: sportType(session.Sport, session.SubSport),
	}

	out.StartTime = validTimeOrZero(session.StartTime)
	if out.StartTime.IsZero() {
		out.StartTime = series.start
	}
	if out.StartTime.IsZero() {
		return nil, fmt.Errorf("activity file has no valid start time")
	}
	out.StartLocal = localStart(out.StartTime, act.Activity)

	out.ElapsedSeconds = safePositive(session.GetTotalElapsedTimeScaled())
	if out.ElapsedSeconds == 0 {
		out.ElapsedSeconds = safePositive(session.GetTotalTimerTimeScaled())
	}
	if out.ElapsedSeconds == 0 {
		out.ElapsedSeconds = series.durationSec
	}
	out.MovingSeconds = safePositive(session.GetTotalMovingTimeScaled())
	if out.MovingSeconds == 0 {
		out.MovingSeconds = safePositive(session.GetTotalTimerTimeScaled())
	}
	if out.MovingSeconds == 0 {
		out.MovingSeconds = out.ElapsedSeconds
	}
	out.DistanceMeters = safePositive(session.GetTotalDistanceScaled())
	if out.DistanceMeters == 0 {
		out.DistanceMeters = series.lastDistanceMeters
	}
	out.ElevationGainM = safePositive(float64(validUint16(session.TotalAscent)))

	out.AvgHeartRate = float64(validUint8(session.AvgHeartRate))
	if out.AvgHeartRate == 0 {
		out.AvgHeartRate = average(series.hrSamples)
	}
	out.MaxHeartRate = float64(validUint8(session.MaxHeartRate))
	if out.MaxHeartRate == 0 {
		out.MaxHeartRate = maxValue(series.hrSamples)
	}
	out.HasHeartRate = out.AvgHeartRate > 0

	out.ID = activityID(decoded.FileId, out.StartTime)
	out.Name = defaultName(out.StartLocal, out.SportType)
	return out, nil
}

// Row renders the activity under the raw table's columns. Values the file
// does not carry stay empty.
func (a *FitActivity) Row() map[string]string {
	row := map[string]string{
		activity.ColID:                 a.ID,
		activity.ColName:               a.Name,
		activity.ColStartDateLocal:     a.StartLocal.Format(localLayout),
		activity.ColSportType:          a.SportType,
		activity.ColType:               a.SportType,
		activity.ColDistance:           activity.FormatFloat(a.DistanceMeters),
		activity.ColMovingTime:         strconv.Itoa(int(math.Round(a.MovingSeconds))),
		activity.ColElapsedTime:        strconv.Itoa(int(math.Round(a.ElapsedSeconds))),
		activity.ColTotalElevationGain: activity.FormatFloat(a.ElevationGainM),
		activity.ColManual:             "false",
		activity.ColHasHeartrate:       strconv.FormatBool(a.HasHeartRate),
	}
	if a.HasHeartRate {
		row[activity.ColAverageHeartrate] = activity.FormatFloat(math.Round(a.AvgHeartRate*10) / 10)
		if a.MaxHeartRate > 0 {
			row[activity.ColMaxHeartrate] = activity.FormatFloat(a.MaxHeartRate)
		}
	} else {
		row[activity.ColAverageHeartrate] = ""
		row[activity.ColMaxHeartrate] = ""
	}
	return row
}

// activityID is stable per device recording, so importing the same file
// twice is a no-op.
func activityID(id fit.FileIdMsg, start time.Time) string {
	created := validTimeOrZero(id.TimeCreated)
	if created.IsZero() {
		created = start
	}
	serial := uint32(0)
	if id.SerialNumber != math.MaxUint32 {
		serial = id.SerialNumber
	}
	return fmt.Sprintf("fit-%d-%d", serial, created.Unix())
}

// localStart shifts the UTC start by the device's local offset when the
// activity message records one.
func localStart(start time.Time, msg *fit.ActivityMsg) time.Time {
	utc := start.UTC()
	if msg == nil {
		return utc
	}
	ts := validTimeOrZero(msg.Timestamp)
	local := validTimeOrZero(msg.LocalTimestamp)
	if ts.IsZero() || local.IsZero() {
		return utc
	}
	// the decoder keeps the UTC instant and carries the device offset in
	// the zone, so compare wall clocks
	wall := time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), 0, time.UTC)
	return utc.Add(wall.Sub(ts.UTC()).Round(time.Second))
}

func sportType(sport fit.Sport, sub fit.SubSport) string {
	switch sport {
	case fit.SportRunning:
		if sub == fit.SubSportTrail {
			return "TrailRun"
		}
		return "Run"
	case fit.SportCycling:
		if sub == fit.SubSportIndoorCycling || sub == fit.SubSportVirtualActivity {
			return "VirtualRide"
		}
		return "Ride"
	case fit.SportSwimming:
		return "Swim"
	case fit.SportWalking:
		return "Walk"
	case fit.SportHiking:
		return "Hike"
	case fit.SportRowing:
		return "Rowing"
	case fit.SportCrossCountrySkiing:
		return "NordicSki"
	case fit.SportAlpineSkiing:
		return "AlpineSki"
	case fit.SportTraining, fit.SportGeneric:
		return "Workout"
	default:
		return fmt.Sprint(sport)
	}
}

func defaultName(local time.Time, sport string) string {
	part := "Night"
	switch h := local.Hour(); {
	case h >= 4 && h < 12:
		part = "Morning"
	case h >= 12 && h < 17:
		part = "Afternoon"
	case h >= 17 && h < 21:
		part = "Evening"
	}
	return part + " " + sport
}

func buildRecordSeries(records []*fit.RecordMsg) recordSeries {
	rs := recordSeries{}
	if len(records) == 0 {
		return rs
	}

	sorted := make([]*fit.RecordMsg, 0, len(records))
	for _, rec := range records {
		if rec != nil {
			sorted = append(sorted, rec)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for _, rec := range sorted {
		if ts := validTimeOrZero(rec.Timestamp); !ts.IsZero() {
			if rs.start.IsZero() {
				rs.start = ts
			}
			rs.end = ts
		}
		if hr, ok := extractHeartRate(rec); ok && hr > 0 {
			rs.hrSamples = append(rs.hrSamples, hr)
		}
		if d := safePositive(rec.GetDistanceScaled()); d > 0 {
			rs.lastDistanceMeters = d
		}
	}
	if !rs.start.IsZero() && rs.end.After(rs.start) {
		rs.durationSec = rs.end.Sub(rs.start).Seconds()
	}
	return rs
}

func extractHeartRate(rec *fit.RecordMsg) (float64, bool) {
	if rec.HeartRate == math.MaxUint8 {
		return 0, false
	}
	return float64(rec.HeartRate), true
}

func validTimeOrZero(t time.Time) time.Time {
	if t.IsZero() || fit.IsBaseTime(t) {
		return time.Time{}
	}
	return t
}

func validUint8(v uint8) uint8 {
	if v == math.MaxUint8 {
		return 0
	}
	return v
}

func validUint16(v uint16) uint16 {
	if v == math.MaxUint16 {
		return 0
	}
	return v
}

func average(values []float64) float64 {
	total := 0.0
	count := 0
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func maxValue(values []float64) float64 {
	best := 0.0
	for _, v := range values {
		if isFinite(v) && v > best {
			best = v
		}
	}
	return best
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		return 0
	}
	return v
}
