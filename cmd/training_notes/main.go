package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	trainingreport "github.com/lucasjlepore/training-report"
	"github.com/lucasjlepore/training-report/aggregate"
	"github.com/lucasjlepore/training-report/config"
	"github.com/lucasjlepore/training-report/pipeline"
)

type report struct {
	Start     string                    `json:"start"`
	End       string                    `json:"end"`
	Types     []string                  `json:"types"`
	Summary   aggregate.Summary         `json:"summary"`
	Weekly    aggregate.Rollup          `json:"weekly"`
	Monthly   aggregate.Rollup          `json:"monthly"`
	Breakdown []aggregate.CategoryTotal `json:"breakdown"`
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML config file")
		derived    = flag.String("derived", "", "Derived table (default from config)")
		types      = flag.String("type", "", "Comma-separated sport types to include (default all)")
		start      = flag.String("start", "", "First day, YYYY-MM-DD (default 56 days before the latest activity)")
		end        = flag.String("end", "", "Last day, YYYY-MM-DD (default the latest activity)")
		jsonOut    = flag.Bool("json", false, "Emit the figures as JSON")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *derived == "" {
		*derived = cfg.DerivedTablePath()
	}

	records, err := pipeline.ReadDerived(*derived)
	if err != nil {
		fail(fmt.Errorf("%w (run compute_intensity first)", err))
	}

	filter := aggregate.DefaultFilter(records)
	if *types != "" {
		filter.Types = nil
		for _, t := range strings.Split(*types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, t)
			}
		}
	}
	if filter.Start, err = parseDay(*start, filter.Start); err != nil {
		fail(err)
	}
	if filter.End, err = parseDay(*end, filter.End); err != nil {
		fail(err)
	}
	if !filter.Start.IsZero() && !filter.End.IsZero() && filter.End.Before(filter.Start) {
		fail(fmt.Errorf("end %s is before start %s", *end, *start))
	}

	selected := filter.Apply(records)
	out := report{
		Start:     formatDay(filter.Start),
		End:       formatDay(filter.End),
		Types:     filter.Types,
		Summary:   aggregate.Summarize(selected),
		Weekly:    aggregate.Weekly(selected),
		Monthly:   aggregate.Monthly(selected),
		Breakdown: aggregate.Breakdown(selected),
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "json encode failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Training load %s to %s\n\n", out.Start, out.End)
	fmt.Print(trainingreport.BuildSummaryNotes(out.Summary, out.Weekly, out.Monthly, out.Breakdown))
}

func parseDay(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", value)
	}
	return day, nil
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "training_notes failed: %v\n", err)
	os.Exit(1)
}
