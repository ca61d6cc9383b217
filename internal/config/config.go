// ABOUTME: Pulse configuration: YAML file under XDG config, env overlay
// ABOUTME: for credentials, validated eagerly so bad config fails fast.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/pulse/internal/store"
)

// Duration is a time.Duration that unmarshals from "90s"-style YAML
// strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText lets envconfig parse duration overrides.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full pulse configuration. Every recognized field is
// enumerated here; unknown YAML keys are rejected on load.
type Config struct {
	// DataDir is the root for the database and lock files. Supports
	// ~ expansion. Defaults to the standard XDG data directory.
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`

	// OpTimeout bounds any single store or fetch operation.
	OpTimeout Duration `yaml:"op_timeout" envconfig:"OP_TIMEOUT"`

	// CacheTTL bounds staleness of the computed load series cache.
	CacheTTL Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`

	Engine   EngineConfig   `yaml:"engine"`
	Strava   StravaConfig   `yaml:"strava"`
	Fitbit   FitbitConfig   `yaml:"fitbit"`
	Import   ImportConfig   `yaml:"import"`
	Priority PriorityConfig `yaml:"priority"`
}

// EngineConfig holds the recurrence and scoring parameters. The tuner
// writes here with --apply.
type EngineConfig struct {
	TauLongDays  float64 `yaml:"tau_long_days" validate:"gte=30,lte=50"`
	TauShortDays float64 `yaml:"tau_short_days" validate:"gte=4,lte=10"`
	LoadScale    float64 `yaml:"load_scale" validate:"gte=0.8,lte=1.8"`

	WeightHRV           float64 `yaml:"weight_hrv" validate:"gte=0,lte=1"`
	WeightSleep         float64 `yaml:"weight_sleep" validate:"gte=0,lte=1"`
	WeightRestingHR     float64 `yaml:"weight_resting_hr" validate:"gte=0,lte=1"`
	WeightStrainRecency float64 `yaml:"weight_strain_recency" validate:"gte=0,lte=1"`
}

// StravaConfig configures the Strava source adapter.
type StravaConfig struct {
	AccessToken       string `yaml:"access_token" envconfig:"STRAVA_ACCESS_TOKEN"`
	RequestsPerMinute int    `yaml:"requests_per_minute" validate:"gte=0,lte=60"`
}

// FitbitConfig configures the Fitbit source adapter.
type FitbitConfig struct {
	ClientID     string `yaml:"client_id" envconfig:"FITBIT_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" envconfig:"FITBIT_CLIENT_SECRET"`
	TokenFile    string `yaml:"token_file" envconfig:"FITBIT_TOKEN_FILE"`
}

// ImportConfig configures the file importer.
type ImportConfig struct {
	SourceName string `yaml:"source_name"`
	EnableFIT  bool   `yaml:"enable_fit"`
}

// PriorityConfig is the cross-source merge priority table: which
// source wins per daily metric field. Pure data, no code dispatch.
type PriorityConfig struct {
	Default []string            `yaml:"default"`
	Fields  map[string][]string `yaml:"fields"`
}

// ValidationError means the configuration is unusable. The run fails
// before touching any data.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		OpTimeout: Duration(2 * time.Minute),
		CacheTTL:  Duration(30 * time.Second),
		Engine: EngineConfig{
			TauLongDays:         42,
			TauShortDays:        7,
			LoadScale:           1.0,
			WeightHRV:           0.35,
			WeightSleep:         0.30,
			WeightRestingHR:     0.20,
			WeightStrainRecency: 0.15,
		},
		Strava: StravaConfig{RequestsPerMinute: 6},
		Priority: PriorityConfig{
			Default: []string{"fitbit", "strava", "export"},
			Fields: map[string][]string{
				"hrv_avg":    {"export", "fitbit"},
				"resting_hr": {"fitbit", "export"},
			},
		},
	}
}

// Path returns the config file path.
func Path() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "pulse", "config.yaml")
}

// Load reads the config file, overlays environment variables for
// credentials, and validates. A missing file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err == nil {
		dec := yaml.NewDecoder(strings.NewReader(string(data)))
		dec.KnownFields(true)
		if derr := dec.Decode(cfg); derr != nil {
			return nil, fmt.Errorf("parsing %s: %w", Path(), derr)
		}
	}

	// PULSE_STRAVA_ACCESS_TOKEN etc. override the file.
	if err := envconfig.Process("pulse", cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = store.DataDir()
	} else {
		cfg.DataDir = ExpandPath(cfg.DataDir)
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = Duration(2 * time.Minute)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = Duration(30 * time.Second)
	}
	if cfg.Fitbit.TokenFile == "" {
		cfg.Fitbit.TokenFile = filepath.Join(cfg.DataDir, "fitbit-token.json")
	} else {
		cfg.Fitbit.TokenFile = ExpandPath(cfg.Fitbit.TokenFile)
	}
	if cfg.Import.SourceName == "" {
		cfg.Import.SourceName = "export"
	}
	if len(cfg.Priority.Default) == 0 {
		cfg.Priority.Default = Default().Priority.Default
	}
}

// Validate checks field bounds and cross-field constraints.
func (c *Config) Validate() error {
	var problems []string

	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s fails %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	weights := c.Engine.WeightHRV + c.Engine.WeightSleep +
		c.Engine.WeightRestingHR + c.Engine.WeightStrainRecency
	if weights < 0.999 || weights > 1.001 {
		problems = append(problems, fmt.Sprintf("score weights sum to %.3f, want 1", weights))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Save writes the config back to disk. Used by `pulse tune --apply`.
func (c *Config) Save() error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// DBPath returns the SQLite database path under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "pulse.db")
}

// LockDir returns the run-lock directory.
func (c *Config) LockDir() string {
	return filepath.Join(c.DataDir, "locks")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
