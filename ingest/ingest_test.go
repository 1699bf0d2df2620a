package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/training-report/activity"
	"github.com/lucasjlepore/training-report/config"
	"github.com/lucasjlepore/training-report/metrics"
	"github.com/lucasjlepore/training-report/strava"
)

type fakeSource struct {
	token      string
	tokenErr   error
	activities []map[string]any
	athlete    *strava.Athlete
	athleteErr error
	streams    map[string]strava.Streams
	streamErr  map[string]error

	gotCreds    config.Credentials
	gotToken    string
	streamCalls []string
}

func (f *fakeSource) RefreshAccessToken(_ context.Context, creds config.Credentials) (string, error) {
	f.gotCreds = creds
	return f.token, f.tokenErr
}

func (f *fakeSource) ListActivities(_ context.Context, token string, _ int) ([]map[string]any, error) {
	f.gotToken = token
	return f.activities, nil
}

func (f *fakeSource) GetAthlete(context.Context, string) (*strava.Athlete, error) {
	return f.athlete, f.athleteErr
}

func (f *fakeSource) GetActivityStreams(_ context.Context, _ string, id string) (strava.Streams, error) {
	f.streamCalls = append(f.streamCalls, id)
	if err := f.streamErr[id]; err != nil {
		return nil, err
	}
	return f.streams[id], nil
}

func apiActivity(id int64, name string) map[string]any {
	return map[string]any{
		"id":                   json.Number(strconv.FormatInt(id, 10)),
		"name":                 name,
		"start_date_local":     "2024-05-06T07:00:00Z",
		"sport_type":           "Run",
		"distance":             json.Number("5000"),
		"moving_time":          json.Number("1500"),
		"elapsed_time":         json.Number("1600"),
		"total_elevation_gain": json.Number("12.5"),
		"average_heartrate":    json.Number("150"),
		"max_heartrate":        json.Number("171"),
		"manual":               false,
		"has_heartrate":        true,
		"athlete":              map[string]any{"id": json.Number("7")},
	}
}

func TestFetcherAppendsOnlyNewActivities(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "all_activities_rawdata.csv")
	athletePath := filepath.Join(dir, "athlete_data.csv")

	src := &fakeSource{
		token:      "at-1",
		activities: []map[string]any{apiActivity(1, "first"), apiActivity(2, "second")},
		athlete:    &strava.Athlete{ID: 7, Firstname: "Marianne", City: "Leeds"},
	}
	m := metrics.NewTestManager()
	f := &Fetcher{
		Source:      src,
		Credentials: config.Credentials{ClientID: "42", ClientSecret: "s", RefreshToken: "rt"},
		RawPath:     rawPath,
		AthletePath: athletePath,
		Metrics:     m,
	}

	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Fetched: 2, Added: 2, Total: 2}, *res)
	assert.Equal(t, "rt", src.gotCreds.RefreshToken)
	assert.Equal(t, "at-1", src.gotToken)

	table, err := activity.ReadTable(rawPath)
	require.NoError(t, err)
	require.NoError(t, table.RequireColumns(activity.RequiredColumns...))
	assert.Contains(t, table.Header, "athlete.id")
	acts := table.Activities()
	require.Len(t, acts, 2)
	assert.Equal(t, "1", acts[0].ID)
	assert.True(t, activity.IsTrue(acts[0].HasHeartrate))
	assert.True(t, activity.IsFalse(acts[0].Manual))

	// second run: one known, one new
	src.activities = []map[string]any{apiActivity(2, "second"), apiActivity(3, "third")}
	res, err = f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Fetched: 2, Added: 1, Total: 3}, *res)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CounterFetched))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CounterAdded))

	athlete, err := os.ReadFile(athletePath)
	require.NoError(t, err)
	assert.Equal(t, "id,username,firstname,lastname,weight,city,country,sex,bio\n7,,Marianne,,,Leeds,,,\n", string(athlete))
}

func TestFetcherLeavesTableUntouchedWhenNothingIsNew(t *testing.T) {
	rawPath := filepath.Join(t.TempDir(), "raw.csv")
	added, total, err := AppendActivities(rawPath, nil)
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Zero(t, total)
	_, err = os.Stat(rawPath)
	assert.True(t, errors.Is(err, os.ErrNotExist), "empty fetch must not create the table")
}

func TestFetcherTokenFailureAborts(t *testing.T) {
	rawPath := filepath.Join(t.TempDir(), "raw.csv")
	f := &Fetcher{Source: &fakeSource{tokenErr: errors.New("401 unauthorized")}, RawPath: rawPath}
	_, err := f.Run(context.Background())
	require.Error(t, err)
	_, statErr := os.Stat(rawPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetcherAthleteFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	f := &Fetcher{
		Source: &fakeSource{
			token:      "at",
			activities: []map[string]any{apiActivity(9, "x")},
			athleteErr: errors.New("boom"),
		},
		RawPath:     filepath.Join(dir, "raw.csv"),
		AthletePath: filepath.Join(dir, "athlete.csv"),
	}
	res, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
}

func TestNewFetcherFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.CredentialsFile = filepath.Join(t.TempDir(), "missing.json")

	noEnv := func(string) (string, bool) { return "", false }
	_, err := NewFetcher(&cfg, noEnv, nil, nil)
	assert.ErrorIs(t, err, config.ErrNoCredentials)

	env := func(key string) (string, bool) {
		if key == config.CredentialsEnv {
			return `{"client_id":"1","client_secret":"s","refresh_token":"r"}`, true
		}
		return "", false
	}
	f, err := NewFetcher(&cfg, env, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "r", f.Credentials.RefreshToken)
	assert.Equal(t, cfg.RawTablePath(), f.RawPath)
	assert.Equal(t, cfg.AthletePath(), f.AthletePath)
	assert.Equal(t, 175, f.PerPage)
	assert.IsType(t, &strava.Client{}, f.Source)
	assert.Empty(t, f.StreamsPath)

	cfg.Streams.Enabled = true
	cfg.Streams.Types = []string{"Run"}
	f, err = NewFetcher(&cfg, env, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg.StreamsPath(), f.StreamsPath)
	assert.Equal(t, []string{"Run"}, f.StreamTypes)
	assert.Equal(t, cfg.Streams.Pause.Duration, f.StreamPause)
}
