// Package activity holds the raw, append-only activity table fetched from the
// tracking provider, and its typed view.
package activity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Raw table column names.
const (
	ColID                 = "id"
	ColName               = "name"
	ColStartDateLocal     = "start_date_local"
	ColSportType          = "sport_type"
	ColType               = "type"
	ColDistance           = "distance"
	ColMovingTime         = "moving_time"
	ColElapsedTime        = "elapsed_time"
	ColTotalElevationGain = "total_elevation_gain"
	ColAverageHeartrate   = "average_heartrate"
	ColMaxHeartrate       = "max_heartrate"
	ColManual             = "manual"
	ColHasHeartrate       = "has_heartrate"
)

// Columns is the header written for a new raw table.
var Columns = []string{
	ColID, ColName, ColStartDateLocal, ColSportType, ColType,
	ColDistance, ColMovingTime, ColElapsedTime, ColTotalElevationGain,
	ColAverageHeartrate, ColMaxHeartrate, ColManual, ColHasHeartrate,
}

// RequiredColumns must be present for intensity computation.
var RequiredColumns = []string{
	ColID, ColStartDateLocal, ColSportType,
	ColDistance, ColMovingTime, ColTotalElevationGain,
	ColAverageHeartrate, ColMaxHeartrate, ColManual, ColHasHeartrate,
}

// Activity is one workout row. Nil pointers mean the value was empty or
// malformed in the raw table.
type Activity struct {
	ID                 string
	Name               string
	StartDateLocal     time.Time
	StartDateRaw       string
	SportType          string
	Distance           *float64 // meters
	MovingTime         *float64 // seconds
	TotalElevationGain *float64 // meters
	AverageHeartrate   *float64
	MaxHeartrate       *float64
	Manual             *bool
	HasHeartrate       *bool
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// ParseTimestamp parses the provider's local start time. The provider marks
// local times with a trailing Z; the wall clock is kept as-is.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ParseFloat coerces a cell to a number; empty, malformed and non-finite
// values are missing.
func ParseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ParseBool accepts the spellings written by the provider export and by
// dataframe tooling.
func ParseBool(s string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "1.0", "yes":
		v = true
	case "false", "0", "0.0", "no":
		v = false
	default:
		return nil
	}
	return &v
}

// IsTrue reports whether b is present and true.
func IsTrue(b *bool) bool { return b != nil && *b }

// IsFalse reports whether b is present and false.
func IsFalse(b *bool) bool { return b != nil && !*b }

// FormatFloat renders a number the way new raw rows are written.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
