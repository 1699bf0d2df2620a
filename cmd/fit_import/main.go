package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	trainingreport "github.com/lucasjlepore/training-report"
	"github.com/lucasjlepore/training-report/config"
	"github.com/lucasjlepore/training-report/ingest"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a TOML config file")
		rawPath    = flag.String("raw", "", "Raw activity table (default <data_dir>/all_activities_rawdata.csv)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [--config report.toml] <activity.fit>...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if *rawPath == "" {
		*rawPath = cfg.RawTablePath()
	}

	rows := make([]map[string]string, 0, flag.NArg())
	for _, path := range flag.Args() {
		act, err := trainingreport.DecodeActivityFile(path)
		if err != nil {
			fail(fmt.Errorf("%s: %w", path, err))
		}
		fmt.Printf("- %-28s %-18s %s %6.1f min\n", act.ID, act.Name, act.StartLocal.Format("2006-01-02 15:04"), act.MovingSeconds/60)
		rows = append(rows, act.Row())
	}

	added, total, err := ingest.AppendActivities(*rawPath, rows)
	if err != nil {
		fail(err)
	}
	fmt.Printf("fit_import complete\n")
	fmt.Printf("Raw table:   %s\n", *rawPath)
	fmt.Printf("Added:       %d of %d\n", added, len(rows))
	fmt.Printf("Total:       %d\n", total)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "fit_import failed: %v\n", err)
	os.Exit(1)
}
