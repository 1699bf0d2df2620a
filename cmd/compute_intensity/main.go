package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lucasjlepore/training-report/config"
	"github.com/lucasjlepore/training-report/logging"
	"github.com/lucasjlepore/training-report/pipeline"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML config file")
		rawPath    = flag.String("raw", "", "Raw activity table (default <data_dir>/all_activities_rawdata.csv)")
		outPath    = flag.String("out", "", "Derived table output path (default <data_dir>/activity_data_with_intensity.<format>)")
		format     = flag.String("format", "", "Derived table format override: csv|parquet")
		age        = flag.Float64("age", 0, "Athlete age override in years")
		restingHR  = flag.Float64("resting-hr", 0, "Resting heart rate override in bpm")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [--config report.toml] [--format csv|parquet] [--age 27] [--resting-hr 57]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *format != "" {
		cfg.Derived.Format = *format
	}
	if *age > 0 {
		cfg.Athlete.Age = *age
	}
	if *restingHR > 0 {
		cfg.Athlete.RestingHR = *restingHR
	}
	if *rawPath == "" {
		*rawPath = cfg.RawTablePath()
	}
	if *outPath == "" {
		*outPath = cfg.DerivedTablePath()
	}

	logger := logging.FromConfig(cfg.Logging, "compute_intensity")
	defer logger.Sync()

	result, err := pipeline.Run(pipeline.Options{
		RawPath: *rawPath,
		OutPath: *outPath,
		Format:  cfg.Derived.Format,
		Params:  cfg.Athlete,
		Logger:  logger,
	})
	if err != nil {
		fail(err)
	}

	fmt.Printf("compute_intensity complete\n")
	fmt.Printf("Derived table:   %s (%s)\n", result.OutputPath, result.Format)
	fmt.Printf("HR max:          %.1f bpm\n", result.MaxHR)
	fmt.Printf("Raw rows:        %d\n", result.RawRows)
	fmt.Printf("Derived rows:    %d\n", result.DerivedRows)
	fmt.Printf("Excluded rows:   %d\n", result.Excluded)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "compute_intensity failed: %v\n", err)
	os.Exit(1)
}
