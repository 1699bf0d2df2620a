// Package config loads the TOML configuration and resolves provider
// credentials once at process start.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lucasjlepore/training-report/intensity"
)

const (
	RawTableFile     = "all_activities_rawdata.csv"
	DerivedTableFile = "activity_data_with_intensity"
	AthleteFile      = "athlete_data.csv"
	StreamsFile      = "all_hr_activities.csv"
)

// Config is the full set of settings shared by the command-line tools.
type Config struct {
	Athlete   intensity.Params `toml:"athlete"`
	Paths     Paths            `toml:"paths"`
	Strava    Strava           `toml:"strava"`
	Derived   Derived          `toml:"derived"`
	Streams   Streams          `toml:"streams"`
	Refresh   Refresh          `toml:"refresh"`
	Dashboard Dashboard        `toml:"dashboard"`
	Logging   Logging          `toml:"logging"`
}

// Paths locates the data directory and the credentials file.
type Paths struct {
	DataDir         string `toml:"data_dir"`
	CredentialsFile string `toml:"credentials_file"`
}

// Strava configures the provider API client.
type Strava struct {
	BaseURL  string   `toml:"base_url"`
	TokenURL string   `toml:"token_url"`
	PerPage  int      `toml:"per_page"`
	Timeout  Duration `toml:"timeout"`
	Retries  int      `toml:"retries"`
}

// Derived selects the derived table format.
type Derived struct {
	// csv|parquet
	Format string `toml:"format"`
}

// Streams controls the per-sample stream pull that runs after a fetch.
type Streams struct {
	Enabled bool     `toml:"enabled"`
	Types   []string `toml:"types"` // empty uses the built-in list
	Pause   Duration `toml:"pause"` // wait between activities
}

// Refresh sets the refresh loop interval.
type Refresh struct {
	Interval Duration `toml:"interval"`
}

// Dashboard holds the HTTP listen address.
type Dashboard struct {
	Addr string `toml:"addr"`
}

// Logging mirrors logging.Params.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
	Stdout bool   `toml:"stdout"`
}

// Duration decodes TOML strings such as "4h" or "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Athlete: intensity.Params{Age: 27, RestingHR: 57},
		Paths: Paths{
			DataDir:         "data",
			CredentialsFile: filepath.Join("config", "credentials.json"),
		},
		Strava: Strava{
			BaseURL:  "https://www.strava.com/api/v3",
			TokenURL: "https://www.strava.com/oauth/token",
			PerPage:  175,
			Timeout:  Duration{30 * time.Second},
			Retries:  3,
		},
		Derived:   Derived{Format: "csv"},
		Streams:   Streams{Pause: Duration{500 * time.Millisecond}},
		Refresh:   Refresh{Interval: Duration{4 * time.Hour}},
		Dashboard: Dashboard{Addr: ":8501"},
		Logging:   Logging{Level: "info", Format: "console", Stdout: true},
	}
}

// Load reads path over the defaults, then applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("TRAINING_REPORT_DATA_DIR"); ok && v != "" {
		cfg.Paths.DataDir = v
	}
	if v, ok := lookup("TRAINING_REPORT_CREDENTIALS_FILE"); ok && v != "" {
		cfg.Paths.CredentialsFile = v
	}
	if v, ok := lookup("TRAINING_REPORT_AGE"); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Athlete.Age = parsed
		}
	}
	if v, ok := lookup("TRAINING_REPORT_RESTING_HR"); ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Athlete.RestingHR = parsed
		}
	}
	if v, ok := lookup("TRAINING_REPORT_LOG_LEVEL"); ok && v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks ranges and enumerations that decoding cannot.
func (c *Config) Validate() error {
	if err := c.Athlete.Validate(); err != nil {
		return fmt.Errorf("athlete: %w", err)
	}
	switch strings.ToLower(c.Derived.Format) {
	case "csv", "parquet":
	default:
		return fmt.Errorf("derived.format must be csv or parquet, got %q", c.Derived.Format)
	}
	if c.Strava.PerPage <= 0 || c.Strava.PerPage > 200 {
		return fmt.Errorf("strava.per_page must be in 1..200, got %d", c.Strava.PerPage)
	}
	if c.Streams.Pause.Duration < 0 {
		return fmt.Errorf("streams.pause must not be negative")
	}
	if c.Refresh.Interval.Duration <= 0 {
		return fmt.Errorf("refresh.interval must be positive")
	}
	return nil
}

// RawTablePath is the raw activity table inside the data directory.
func (c *Config) RawTablePath() string {
	return filepath.Join(c.Paths.DataDir, RawTableFile)
}

// DerivedTablePath carries the extension of the configured format.
func (c *Config) DerivedTablePath() string {
	return filepath.Join(c.Paths.DataDir, DerivedTableFile+"."+strings.ToLower(c.Derived.Format))
}

// AthletePath is the single-row athlete profile table.
func (c *Config) AthletePath() string {
	return filepath.Join(c.Paths.DataDir, AthleteFile)
}

// StreamsPath is the per-sample stream table.
func (c *Config) StreamsPath() string {
	return filepath.Join(c.Paths.DataDir, StreamsFile)
}
