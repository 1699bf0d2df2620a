// Package ingest appends newly fetched activities to the raw activity table
// and their per-sample streams to the sample table.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lucasjlepore/training-report/activity"
	"github.com/lucasjlepore/training-report/artifact"
	"github.com/lucasjlepore/training-report/config"
	"github.com/lucasjlepore/training-report/metrics"
	"github.com/lucasjlepore/training-report/strava"
)

// Source is the provider API the fetcher depends on.
type Source interface {
	RefreshAccessToken(ctx context.Context, creds config.Credentials) (string, error)
	ListActivities(ctx context.Context, token string, perPage int) ([]map[string]any, error)
	GetAthlete(ctx context.Context, token string) (*strava.Athlete, error)
	GetActivityStreams(ctx context.Context, token, activityID string) (strava.Streams, error)
}

// Result counts one fetch.
type Result struct {
	Fetched int `json:"fetched"`
	Added   int `json:"added"`
	Total   int `json:"total"`
	// Streams is set when the sample stream pass ran.
	Streams *StreamResult `json:"streams,omitempty"`
}

// Fetcher pulls activities from a Source into the raw table.
type Fetcher struct {
	Source      Source
	Credentials config.Credentials
	RawPath     string
	// AthletePath is optional; when set the profile is refreshed too.
	AthletePath string
	// StreamsPath is optional; when set new activities' sample streams are
	// appended there.
	StreamsPath string
	StreamTypes []string
	StreamPause time.Duration
	PerPage     int
	Logger      *zap.Logger
	Metrics     *metrics.Manager
}

// NewFetcher resolves credentials and builds a fetcher over the provider
// client described by cfg. Skipped credential sources are logged.
func NewFetcher(cfg *config.Config, lookupEnv func(string) (string, bool), logger *zap.Logger, m *metrics.Manager) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	creds, err := config.ResolveCredentials(lookupEnv, cfg.Paths.CredentialsFile)
	if err != nil {
		return nil, err
	}
	for _, w := range creds.Warnings {
		logger.Warn("credential source skipped", zap.String("reason", w))
	}
	logger.Info("loaded credentials", zap.String("source", creds.Source))

	f := &Fetcher{
		Source:      strava.NewClient(strava.OptionsFromConfig(cfg.Strava, logger)),
		Credentials: creds.Credentials,
		RawPath:     cfg.RawTablePath(),
		AthletePath: cfg.AthletePath(),
		PerPage:     cfg.Strava.PerPage,
		Logger:      logger,
		Metrics:     m,
	}
	if cfg.Streams.Enabled {
		f.StreamsPath = cfg.StreamsPath()
		f.StreamTypes = cfg.Streams.Types
		f.StreamPause = cfg.Streams.Pause.Duration
	}
	return f, nil
}

// Run refreshes the access token, pulls every activity and appends the ones
// not yet in the raw table.
func (f *Fetcher) Run(ctx context.Context) (*Result, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if f.RawPath == "" {
		return nil, fmt.Errorf("raw table path is required")
	}

	token, err := f.Source.RefreshAccessToken(ctx, f.Credentials)
	if err != nil {
		return nil, err
	}

	raw, err := f.Source.ListActivities(ctx, token, f.PerPage)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(raw))
	for _, a := range raw {
		rows = append(rows, strava.FlattenActivity(a))
	}

	res := &Result{Fetched: len(rows)}
	res.Added, res.Total, err = AppendActivities(f.RawPath, rows)
	if err != nil {
		return nil, err
	}
	if f.Metrics != nil {
		f.Metrics.CounterFetched.Add(float64(res.Fetched))
		f.Metrics.CounterAdded.Add(float64(res.Added))
	}

	switch {
	case res.Fetched == 0:
		logger.Info("no new data fetched")
	case res.Added == 0:
		logger.Info("no new activities to append", zap.Int("fetched", res.Fetched), zap.Int("total", res.Total))
	default:
		logger.Info("appended new activities",
			zap.Int("fetched", res.Fetched),
			zap.Int("added", res.Added),
			zap.Int("total", res.Total),
			zap.String("path", f.RawPath),
		)
	}

	if f.AthletePath != "" {
		f.refreshAthlete(ctx, token, logger)
	}
	if f.StreamsPath != "" {
		res.Streams, err = f.appendStreams(ctx, token, rows, logger)
		if err != nil {
			return nil, err
		}
		if f.Metrics != nil {
			f.Metrics.CounterSamples.Add(float64(res.Streams.Samples))
		}
	}
	return res, nil
}

// refreshAthlete rewrites the athlete table; failures only warn.
func (f *Fetcher) refreshAthlete(ctx context.Context, token string, logger *zap.Logger) {
	athlete, err := f.Source.GetAthlete(ctx, token)
	if err != nil {
		logger.Warn("athlete profile not refreshed", zap.Error(err))
		return
	}
	if err := WriteAthlete(f.AthletePath, athlete); err != nil {
		logger.Warn("athlete profile not written", zap.Error(err))
	}
}

// AppendActivities merges rows into the table at path, skipping ids already
// present. The file is only rewritten when something was added.
func AppendActivities(path string, rows []map[string]string) (added, total int, err error) {
	t, err := activity.ReadTableOrEmpty(path)
	if err != nil {
		return 0, 0, err
	}
	added = t.Append(rows)
	if added > 0 {
		if err := activity.WriteTable(path, t); err != nil {
			return 0, 0, fmt.Errorf("write raw activity table: %w", err)
		}
	}
	return added, len(t.Rows), nil
}

var athleteColumns = []string{"id", "username", "firstname", "lastname", "weight", "city", "country", "sex", "bio"}

// WriteAthlete replaces the athlete table with a single profile row.
func WriteAthlete(path string, a *strava.Athlete) error {
	if a == nil {
		return fmt.Errorf("athlete is nil")
	}
	weight := ""
	if a.Weight != nil {
		weight = strconv.FormatFloat(*a.Weight, 'f', -1, 64)
	}
	row := []string{
		strconv.FormatInt(a.ID, 10), a.Username, a.Firstname, a.Lastname,
		weight, a.City, a.Country, a.Sex, a.Bio,
	}
	return artifact.WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(athleteColumns); err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}
