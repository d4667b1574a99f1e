package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skyward-data/weatherpipe/internal/config"
	"github.com/skyward-data/weatherpipe/internal/fetch"
	"github.com/skyward-data/weatherpipe/internal/notify"
	"github.com/skyward-data/weatherpipe/internal/pipeline"
	"github.com/skyward-data/weatherpipe/internal/reference"
	"github.com/skyward-data/weatherpipe/internal/sink"
	"github.com/skyward-data/weatherpipe/internal/version"
	"github.com/skyward-data/weatherpipe/internal/weather"
	"github.com/skyward-data/weatherpipe/pkg/pipeline/redact"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		fmt.Println(version.Current)
		return
	case "run":
		os.Exit(runPipeline(ctx, os.Args[2:]))
	case "fetch":
		os.Exit(runFetch(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runPipeline(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Optional YAML config file path")
	if err := fs.Parse(peekConfigFlag(args)); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return configError(err)
	}

	fs = flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.String("config", *configPath, "Optional YAML config file path")
	fs.StringVar(&cfg.InputPath, "input", cfg.InputPath, "Input CSV file path (must include a 'city' column)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "DuckDB database file path (env: WEATHER_DB_PATH)")
	fs.StringVar(&cfg.Table, "table", cfg.Table, "Target table name (env: WEATHER_TABLE)")
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Weather API base URL override (env: WEATHER_BASE_URL)")
	fs.StringVar(&cfg.Units, "units", cfg.Units, "Measurement units: metric, imperial or standard (env: WEATHER_UNITS)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent fetch workers (env: WORKERS)")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Max retries per city for transient failures (env: MAX_RETRIES)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per-city request timeout (env: REQUEST_TIMEOUT)")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", cfg.RateLimitRPS, "Global request rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := cfg.Validate(); err != nil {
		return configError(err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	client, err := weather.NewClient(weather.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Units:   cfg.Units,
	})
	if err != nil {
		return configError(err)
	}

	db, err := sink.Open(cfg.DBPath, cfg.Table)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "sink error: %s\n", redact.Secrets(err.Error()))
		return 1
	}

	p := pipeline.New(reference.FileSource{Path: cfg.InputPath}, client, db, fetch.Options{
		Workers:        cfg.Workers,
		MaxRetries:     cfg.MaxRetries,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
	}, logger)
	p.AddCleanup(db.Close)

	res := p.Run(ctx)

	// The notification boundary runs regardless of outcome. Use a fresh
	// context: the run's cancellation must not silence its own report.
	notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var notifier notify.Notifier = notify.LogNotifier{Logger: logger}
	if err := notifier.Notify(notifyCtx, res); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "notify failed: %s\n", redact.Secrets(err.Error()))
	}

	if !res.Succeeded() {
		return 1
	}
	return 0
}

func runFetch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "", "Optional YAML config file path")
	city := fs.String("city", "", "City name to fetch")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *city == "" {
		_, _ = fmt.Fprintln(os.Stderr, "fetch requires --city")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return configError(err)
	}
	if cfg.APIKey == "" {
		return configError(&config.Error{Setting: "OPENWEATHER_API_KEY", Reason: "is required"})
	}

	client, err := weather.NewClient(weather.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Units:   cfg.Units,
	})
	if err != nil {
		return configError(err)
	}

	obs, err := client.Observe(ctx, *city)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "fetch failed: %s\n", redact.Secrets(err.Error()))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(obs)
	return 0
}

// peekConfigFlag extracts only --config from args so the config file can be
// loaded before the full flag set (whose defaults come from it) is built.
func peekConfigFlag(args []string) []string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				return []string{a, args[i+1]}
			}
		case strings.HasPrefix(a, "--config=") || strings.HasPrefix(a, "-config="):
			return []string{a}
		}
	}
	return nil
}

func configError(err error) int {
	_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
	return 2
}

func newLogger(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, `weatherpipe %s - city weather enrichment pipeline

Usage:
  weatherpipe run --input cities.csv --db weather.db [flags]
  weatherpipe fetch --city Paris
  weatherpipe version

Commands:
  run      Load the city reference CSV, fetch current weather for each city,
           inner-join the two, and replace the target table with the result.
  fetch    Fetch and print the current observation for a single city.
  version  Print the build version.

The API key is read from OPENWEATHER_API_KEY. Run "weatherpipe run -h" for
all flags and their environment variable equivalents.
`, version.Current)
}
