package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-data/weatherpipe/internal/config"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, "merged_data", cfg.Table)
	assert.Equal(t, "metric", cfg.Units)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{
		"OPENWEATHER_API_KEY": "secret",
		"WEATHER_BASE_URL":    "http://localhost:9000",
		"WORKERS":             "8",
		"REQUEST_TIMEOUT":     "5s",
		"RATE_LIMIT_RPS":      "2.5",
	}))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "http://localhost:9000", cfg.BaseURL)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0.001)
}

func TestApplyEnv_BadInteger(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := cfg.ApplyEnv(lookupFrom(map[string]string{"WORKERS": "many"}))
	var ce *config.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "WORKERS", ce.Setting)
}

func TestConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "weatherpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"input: cities.csv\ndb_path: weather.db\nworkers: 3\nrequest_timeout: 10s\n",
	), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cities.csv", cfg.InputPath)
	assert.Equal(t, "weather.db", cfg.DBPath)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestConfigFile_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "weatherpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: sneaky\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.InputPath = "cities.csv"
	cfg.DBPath = "weather.db"

	err := cfg.Validate()
	var ce *config.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "OPENWEATHER_API_KEY", ce.Setting)
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.APIKey = "k"
	cfg.InputPath = "cities.csv"
	cfg.DBPath = "weather.db"
	require.NoError(t, cfg.Validate())
}
