// Package config assembles and validates the run configuration before the
// pipeline is constructed. Precedence: flags > environment > config file >
// defaults; validation failures surface here, not at first use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Error reports an invalid or missing configuration setting.
type Error struct {
	Setting string
	Reason  string
}

func (e *Error) Error() string {
	if e == nil {
		return "config error"
	}
	return fmt.Sprintf("config: %s %s", e.Setting, e.Reason)
}

// Config is the explicit run configuration handed to the orchestrator.
type Config struct {
	// APIKey is the weather API credential. Env only; never read from the
	// config file so it cannot end up committed alongside one.
	APIKey string

	BaseURL string
	Units   string

	InputPath string
	DBPath    string
	Table     string

	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64

	LogLevel  string
	LogFormat string
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Units:          "metric",
		Table:          "merged_data",
		Workers:        5,
		MaxRetries:     0,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load builds the configuration from an optional YAML file and the process
// environment. filePath may be empty.
func Load(filePath string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(filePath) != "" {
		if err := cfg.applyFile(filePath); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors Config for YAML decoding; durations are strings so
// the file can say "30s" rather than nanosecond counts.
type fileConfig struct {
	BaseURL        *string  `yaml:"base_url"`
	Units          *string  `yaml:"units"`
	InputPath      *string  `yaml:"input"`
	DBPath         *string  `yaml:"db_path"`
	Table          *string  `yaml:"table"`
	Workers        *int     `yaml:"workers"`
	MaxRetries     *int     `yaml:"max_retries"`
	RequestTimeout *string  `yaml:"request_timeout"`
	RateLimitRPS   *float64 `yaml:"rate_limit_rps"`
	LogLevel       *string  `yaml:"log_level"`
	LogFormat      *string  `yaml:"log_format"`
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return &Error{Setting: "config file", Reason: err.Error()}
	}
	var fc fileConfig
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		return &Error{Setting: "config file", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.Units, fc.Units)
	setString(&c.InputPath, fc.InputPath)
	setString(&c.DBPath, fc.DBPath)
	setString(&c.Table, fc.Table)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if fc.Workers != nil {
		c.Workers = *fc.Workers
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.RateLimitRPS != nil {
		c.RateLimitRPS = *fc.RateLimitRPS
	}
	if fc.RequestTimeout != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*fc.RequestTimeout))
		if err != nil {
			return &Error{Setting: "request_timeout", Reason: "must be a duration (e.g. 30s)"}
		}
		c.RequestTimeout = d
	}
	return nil
}

// ApplyEnv overlays environment variables onto the config.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("OPENWEATHER_API_KEY"); ok {
		c.APIKey = strings.TrimSpace(v)
	}
	if v, ok := lookup("WEATHER_BASE_URL"); ok {
		c.BaseURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("WEATHER_UNITS"); ok {
		c.Units = strings.TrimSpace(v)
	}
	if v, ok := lookup("WEATHER_DB_PATH"); ok {
		c.DBPath = strings.TrimSpace(v)
	}
	if v, ok := lookup("WEATHER_TABLE"); ok {
		c.Table = strings.TrimSpace(v)
	}
	if v, ok := lookup("WORKERS"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Setting: "WORKERS", Reason: "must be an integer"}
		}
		c.Workers = n
	}
	if v, ok := lookup("MAX_RETRIES"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &Error{Setting: "MAX_RETRIES", Reason: "must be an integer"}
		}
		c.MaxRetries = n
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return &Error{Setting: "REQUEST_TIMEOUT", Reason: "must be a duration (e.g. 30s)"}
		}
		c.RequestTimeout = d
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return &Error{Setting: "RATE_LIMIT_RPS", Reason: "must be a number"}
		}
		c.RateLimitRPS = f
	}
	return nil
}

// Validate checks the assembled config before anything runs.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &Error{Setting: "OPENWEATHER_API_KEY", Reason: "is required"}
	}
	if strings.TrimSpace(c.InputPath) == "" {
		return &Error{Setting: "input", Reason: "path is required"}
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return &Error{Setting: "db_path", Reason: "is required"}
	}
	if strings.TrimSpace(c.Table) == "" {
		return &Error{Setting: "table", Reason: "is required"}
	}
	if c.Workers <= 0 {
		return &Error{Setting: "workers", Reason: "must be positive"}
	}
	if c.MaxRetries < 0 {
		return &Error{Setting: "max_retries", Reason: "must not be negative"}
	}
	return nil
}
