package pipeline

import (
	"time"

	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/intensity"
	"github.com/lucasjlepore/training-report/metrics"
)

// Options configures the compute_intensity pipeline.
type Options struct {
	RawPath string
	OutPath string
	Format  string // csv|parquet
	Params  intensity.Params
	Logger  *zap.Logger
	// Metrics is optional.
	Metrics *metrics.Manager
}

// Result summarizes one pipeline run.
type Result struct {
	OutputPath  string  `json:"output_path"`
	Format      string  `json:"format"`
	MaxHR       float64 `json:"hr_max"`
	RawRows     int     `json:"raw_rows"`
	DerivedRows int     `json:"derived_rows"`
	Excluded    int     `json:"excluded"`
}

// DerivedRecord is one valid activity with its computed training load.
type DerivedRecord struct {
	StartDateLocal          time.Time `json:"-"`
	StartDateLocalFormatted string    `json:"start_date_local_formatted"`
	Name                    string    `json:"name"`
	SportType               string    `json:"sport_type"`
	DistanceMiles           *float64  `json:"distance_miles,omitempty"`
	MovingTimeMinutes       float64   `json:"moving_time_minutes"`
	ElevationGainFeet       *float64  `json:"elevation_gain_feet,omitempty"`
	AverageHeartrate        float64   `json:"average_heartrate"`
	MaxHeartrate            *float64  `json:"max_heartrate,omitempty"`
	HRRatio                 float64   `json:"hr_ratio"`
	HRZone                  *int      `json:"hr_zone,omitempty"`
	TRIMP                   float64   `json:"trimp"`
	PaceMinPerMile          *float64  `json:"pace_min_per_mile,omitempty"`
	PaceFormatted           *string   `json:"pace_formatted,omitempty"`
	ID                      string    `json:"id"`
}

// Derived table columns, in output order.
const (
	ColStartFormatted = "start_date_local_formatted"
	ColName           = "name"
	ColSportType      = "sport_type"
	ColDistanceMiles  = "distance (miles)"
	ColMovingMinutes  = "moving_time (minutes)"
	ColElevationFeet  = "elevation_gain (feet)"
	ColAverageHR      = "average_heartrate"
	ColMaxHR          = "max_heartrate"
	ColHRRatio        = "hr_ratio (0-1)"
	ColHRZone         = "hr_zone (1-5)"
	ColTRIMP          = "trimp (score)"
	ColPace           = "pace (min/mi)"
	ColPaceFormatted  = "pace (min:sec/mi)"
	ColID             = "id"
)

// DerivedColumns is the fixed derived table header.
var DerivedColumns = []string{
	ColStartFormatted, ColName, ColSportType,
	ColDistanceMiles, ColMovingMinutes, ColElevationFeet,
	ColAverageHR, ColMaxHR, ColHRRatio, ColHRZone,
	ColTRIMP, ColPace, ColPaceFormatted, ColID,
}

// StartLayout formats start_date_local_formatted, e.g. "May 01, 2024 07:00 AM".
const StartLayout = "Jan 02, 2006 03:04 PM"
