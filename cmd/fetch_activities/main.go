package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lucasjlepore/training-report/config"
	"github.com/lucasjlepore/training-report/ingest"
	"github.com/lucasjlepore/training-report/logging"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a TOML config file")
		skipAthlete = flag.Bool("skip-athlete", false, "Do not refresh the athlete profile table")
		streams     = flag.Bool("streams", false, "Also pull per-sample streams of new activities (same as [streams] enabled)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [--config report.toml] [--skip-athlete] [--streams]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	logger := logging.FromConfig(cfg.Logging, "fetch_activities")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher, err := ingest.NewFetcher(cfg, os.LookupEnv, logger, nil)
	if err != nil {
		fail(err)
	}
	if *skipAthlete {
		fetcher.AthletePath = ""
	}
	if *streams && fetcher.StreamsPath == "" {
		fetcher.StreamsPath = cfg.StreamsPath()
		fetcher.StreamTypes = cfg.Streams.Types
		fetcher.StreamPause = cfg.Streams.Pause.Duration
	}

	result, err := fetcher.Run(ctx)
	if err != nil {
		fail(err)
	}
	fmt.Printf("fetch_activities complete\n")
	fmt.Printf("Raw table:   %s\n", fetcher.RawPath)
	fmt.Printf("Fetched:     %d\n", result.Fetched)
	fmt.Printf("Added:       %d\n", result.Added)
	fmt.Printf("Total:       %d\n", result.Total)
	if s := result.Streams; s != nil {
		fmt.Printf("Streams:     %s\n", fetcher.StreamsPath)
		fmt.Printf("  activities %d, samples %d, failed %d, total rows %d\n", s.Activities, s.Samples, s.Failed, s.Total)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "fetch_activities failed: %v\n", err)
	os.Exit(1)
}
