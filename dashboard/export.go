package dashboard

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/xuri/excelize/v2"

	"github.com/lucasjlepore/training-report/aggregate"
	"github.com/lucasjlepore/training-report/pipeline"
)

const (
	sheetActivities = "Activities"
	sheetWeekly     = "Weekly"
	sheetMonthly    = "Monthly"
	sheetSummary    = "Summary"
)

// BuildWorkbook renders the filtered records, their rollups and the summary
// as an xlsx workbook.
func BuildWorkbook(records []pipeline.DerivedRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetActivities); err != nil {
		return nil, fmt.Errorf("rename default sheet: %w", err)
	}
	for _, name := range []string{sheetWeekly, sheetMonthly, sheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	activityRows := make([][]any, 0, len(records))
	for _, r := range records {
		activityRows = append(activityRows, []any{
			r.StartDateLocalFormatted, r.Name, r.SportType,
			optional(r.DistanceMiles), r.MovingTimeMinutes, optional(r.ElevationGainFeet),
			r.AverageHeartrate, optional(r.MaxHeartrate), r.HRRatio, optionalInt(r.HRZone),
			r.TRIMP, optional(r.PaceMinPerMile), optionalString(r.PaceFormatted), r.ID,
		})
	}
	if err := writeSheet(f, sheetActivities, headerStyle, toAny(pipeline.DerivedColumns), activityRows); err != nil {
		return nil, err
	}

	for _, s := range []struct {
		sheet  string
		rollup aggregate.Rollup
	}{
		{sheetWeekly, aggregate.Weekly(records)},
		{sheetMonthly, aggregate.Monthly(records)},
	} {
		rows := make([][]any, 0, len(s.rollup.Buckets))
		for _, b := range s.rollup.Buckets {
			rows = append(rows, []any{b.Label, b.Count, b.Total, b.RollingAvg})
		}
		header := []any{"period", "workouts", "trimp", fmt.Sprintf("rolling_avg_%d", s.rollup.Window)}
		if err := writeSheet(f, s.sheet, headerStyle, header, rows); err != nil {
			return nil, err
		}
	}

	sum := aggregate.Summarize(records)
	summaryRows := [][]any{
		{"total_workouts", sum.TotalWorkouts},
		{"average_trimp", sum.AverageTRIMP},
		{"average_weekly_trimp", sum.AverageWeeklyTRIMP},
		{"total_trimp", sum.TotalTRIMP},
		{"max_trimp", sum.MaxTRIMP},
		{"longest_distance_miles", sum.LongestDistance},
		{"current_streak", sum.CurrentStreak},
		{"max_streak", sum.MaxStreak},
	}
	if err := writeSheet(f, sheetSummary, headerStyle, []any{"metric", "value"}, summaryRows); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// optional cells stay empty instead of showing 0.
func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	v, err := s.load(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data, err := BuildWorkbook(v.records)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="training_load.xlsx"`)
	w.Header().Set("Last-Modified", v.lastModified.UTC().Format(http.TimeFormat))
	_, _ = w.Write(data)
}
