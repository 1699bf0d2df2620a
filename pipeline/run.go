package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/activity"
	"github.com/lucasjlepore/training-report/artifact"
	"github.com/lucasjlepore/training-report/intensity"
)

// Run reads the raw activity table, computes the derived intensity table and
// replaces the output artifact with it.
func Run(opts Options) (*Result, error) {
	if strings.TrimSpace(opts.RawPath) == "" {
		return nil, fmt.Errorf("raw table path is required")
	}
	if strings.TrimSpace(opts.OutPath) == "" {
		return nil, fmt.Errorf("output path is required")
	}
	format, err := normalizeFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid personalization: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	table, err := activity.ReadTable(opts.RawPath)
	if err != nil {
		return nil, err
	}
	if err := table.RequireColumns(activity.RequiredColumns...); err != nil {
		return nil, err
	}

	log.Info("computing personalized intensity",
		zap.Float64("hr_max", opts.Params.MaxHR()),
		zap.Float64("hr_rest", opts.Params.RestingHR),
		zap.Int("raw_rows", len(table.Rows)),
	)

	records, err := Compute(table.Activities(), opts.Params)
	if err != nil {
		return nil, fmt.Errorf("compute intensity: %w", err)
	}

	switch format {
	case "csv":
		if err := artifact.WriteFileAtomic(opts.OutPath, func(w io.Writer) error {
			return EncodeDerivedCSV(w, records)
		}); err != nil {
			return nil, fmt.Errorf("write derived csv: %w", err)
		}
	case "parquet":
		data, err := marshalDerivedParquet(records)
		if err != nil {
			return nil, fmt.Errorf("encode derived parquet: %w", err)
		}
		if err := artifact.WriteBytesAtomic(opts.OutPath, data); err != nil {
			return nil, fmt.Errorf("write derived parquet: %w", err)
		}
	}

	res := &Result{
		OutputPath:  opts.OutPath,
		Format:      format,
		MaxHR:       opts.Params.MaxHR(),
		RawRows:     len(table.Rows),
		DerivedRows: len(records),
		Excluded:    len(table.Rows) - len(records),
	}
	if opts.Metrics != nil {
		opts.Metrics.GaugeDerivedRows.Set(float64(res.DerivedRows))
		opts.Metrics.GaugeExcludedRows.Set(float64(res.Excluded))
	}
	log.Info("saved derived activity table",
		zap.String("path", res.OutputPath),
		zap.String("format", res.Format),
		zap.Int("derived_rows", res.DerivedRows),
		zap.Int("excluded", res.Excluded),
	)
	return res, nil
}

func normalizeFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "parquet" {
		return "", fmt.Errorf("unsupported format %q (expected csv|parquet)", format)
	}
	return format, nil
}

// Valid reports whether an activity takes part in load computation: recorded
// (not manual), with heart-rate data and a positive moving time.
func Valid(a activity.Activity) bool {
	return activity.IsFalse(a.Manual) &&
		activity.IsTrue(a.HasHeartrate) &&
		a.AverageHeartrate != nil &&
		a.MovingTime != nil && *a.MovingTime > 0
}

// Compute derives one record per valid activity, newest first. Invalid rows
// are dropped without error; a valid row with an unreadable start time fails.
func Compute(acts []activity.Activity, p intensity.Params) ([]DerivedRecord, error) {
	out := make([]DerivedRecord, 0, len(acts))
	for _, a := range acts {
		if !Valid(a) {
			continue
		}
		if a.StartDateLocal.IsZero() {
			return nil, fmt.Errorf("activity %s: unparsable start_date_local %q", a.ID, a.StartDateRaw)
		}

		minutes := intensity.SecondsToMinutes(*a.MovingTime)
		ratio := intensity.HRRatio(*a.AverageHeartrate, p)
		rec := DerivedRecord{
			StartDateLocal:          a.StartDateLocal,
			StartDateLocalFormatted: a.StartDateLocal.Format(StartLayout),
			Name:                    a.Name,
			SportType:               a.SportType,
			MovingTimeMinutes:       minutes,
			AverageHeartrate:        *a.AverageHeartrate,
			MaxHeartrate:            a.MaxHeartrate,
			HRRatio:                 ratio,
			HRZone:                  intensity.Zone(a.AverageHeartrate, p),
			TRIMP:                   intensity.TRIMP(minutes, ratio),
			ID:                      a.ID,
		}
		if a.Distance != nil {
			rec.DistanceMiles = floatPtr(intensity.MetersToMiles(*a.Distance))
		}
		if a.TotalElevationGain != nil {
			rec.ElevationGainFeet = floatPtr(intensity.MetersToFeet(*a.TotalElevationGain))
		}
		rec.PaceMinPerMile = intensity.Pace(minutes, rec.DistanceMiles)
		rec.PaceFormatted = intensity.FormatPace(rec.PaceMinPerMile)
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartDateLocal.Equal(out[j].StartDateLocal) {
			return out[i].StartDateLocal.After(out[j].StartDateLocal)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// EncodeDerivedCSV writes records under DerivedColumns.
func EncodeDerivedCSV(w io.Writer, records []DerivedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DerivedColumns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.StartDateLocalFormatted,
			r.Name,
			r.SportType,
			formatFloatPtr(r.DistanceMiles),
			formatFloat(r.MovingTimeMinutes),
			formatFloatPtr(r.ElevationGainFeet),
			formatFloat(r.AverageHeartrate),
			formatFloatPtr(r.MaxHeartrate),
			formatFloat(r.HRRatio),
			formatIntPtr(r.HRZone),
			formatFloat(r.TRIMP),
			formatFloatPtr(r.PaceMinPerMile),
			stringOrEmpty(r.PaceFormatted),
			r.ID,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadDerived loads a derived table written by Run. Files ending in
// .parquet are read as parquet, everything else as CSV.
func ReadDerived(path string) ([]DerivedRecord, error) {
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open derived table: %w", err)
		}
		records, err := unmarshalDerivedParquet(data)
		if err != nil {
			return nil, fmt.Errorf("read derived table %s: %w", path, err)
		}
		return records, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open derived table: %w", err)
	}
	defer f.Close()

	records, err := DecodeDerivedCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read derived table %s: %w", path, err)
	}
	return records, nil
}

// DecodeDerivedCSV parses the derived table. Only the start time, sport type
// and TRIMP columns are required.
func DecodeDerivedCSV(r io.Reader) ([]DerivedRecord, error) {
	tbl, err := activity.DecodeTable(r)
	if err != nil {
		return nil, err
	}
	if err := tbl.RequireColumns(ColStartFormatted, ColSportType, ColTRIMP); err != nil {
		return nil, err
	}

	out := make([]DerivedRecord, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		raw := tbl.Cell(row, ColStartFormatted)
		ts, err := time.Parse(StartLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse %s %q: %w", i+1, ColStartFormatted, raw, err)
		}
		rec := DerivedRecord{
			StartDateLocal:          ts,
			StartDateLocalFormatted: raw,
			Name:                    tbl.Cell(row, ColName),
			SportType:               tbl.Cell(row, ColSportType),
			DistanceMiles:           activity.ParseFloat(tbl.Cell(row, ColDistanceMiles)),
			MovingTimeMinutes:       valueOrZero(activity.ParseFloat(tbl.Cell(row, ColMovingMinutes))),
			ElevationGainFeet:       activity.ParseFloat(tbl.Cell(row, ColElevationFeet)),
			AverageHeartrate:        valueOrZero(activity.ParseFloat(tbl.Cell(row, ColAverageHR))),
			MaxHeartrate:            activity.ParseFloat(tbl.Cell(row, ColMaxHR)),
			HRRatio:                 valueOrZero(activity.ParseFloat(tbl.Cell(row, ColHRRatio))),
			TRIMP:                   valueOrZero(activity.ParseFloat(tbl.Cell(row, ColTRIMP))),
			PaceMinPerMile:          activity.ParseFloat(tbl.Cell(row, ColPace)),
			ID:                      tbl.Cell(row, ColID),
		}
		if z := activity.ParseFloat(tbl.Cell(row, ColHRZone)); z != nil {
			zone := int(*z)
			rec.HRZone = &zone
		}
		if s := strings.TrimSpace(tbl.Cell(row, ColPaceFormatted)); s != "" {
			rec.PaceFormatted = &s
		}
		out = append(out, rec)
	}
	return out, nil
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func floatPtr(v float64) *float64 {
	out := v
	return &out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatIntPtr(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
