package pipeline_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyward-data/weatherpipe/internal/fetch"
	"github.com/skyward-data/weatherpipe/internal/merge"
	"github.com/skyward-data/weatherpipe/internal/mockweather"
	"github.com/skyward-data/weatherpipe/internal/pipeline"
	"github.com/skyward-data/weatherpipe/internal/reference"
	"github.com/skyward-data/weatherpipe/internal/sink"
	"github.com/skyward-data/weatherpipe/internal/weather"
)

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cities.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o600))
	return path
}

func newUpstream(t *testing.T) (*mockweather.Server, *weather.Client) {
	t.Helper()
	mock := mockweather.New()
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)

	client, err := weather.NewClient(weather.Config{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	return mock, client
}

type recordingSink struct {
	stored [][]merge.Row
	err    error
}

func (s *recordingSink) Store(_ context.Context, rows []merge.Row) error {
	if s.err != nil {
		return s.err
	}
	s.stored = append(s.stored, rows)
	return nil
}

func TestRun_SingleCityEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock, client := newUpstream(t)
	mock.SetCity("Paris", mockweather.Conditions{
		Description: "light rain",
		Temperature: 17.4,
		Humidity:    81,
		Pressure:    1012,
		WindSpeed:   4.6,
		Clouds:      90,
	})

	csvPath := writeCSV(t, "city,country\nParis,FR\n")
	db, err := sink.Open("", "merged_data")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := pipeline.New(reference.FileSource{Path: csvPath}, client, db, fetch.Options{Workers: 2}, nil)

	res := p.Run(ctx)
	require.True(t, res.Succeeded(), "run failed: %v", res.Err)
	assert.Equal(t, 1, res.Requested)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Persisted)
	assert.Empty(t, res.Dropped)

	var city, country, desc string
	var temp float64
	require.NoError(t, db.DB().QueryRowContext(ctx,
		"SELECT city, country, temperature, weather_description FROM merged_data",
	).Scan(&city, &country, &temp, &desc))
	assert.Equal(t, "Paris", city)
	assert.Equal(t, "FR", country)
	assert.InDelta(t, 17.4, temp, 0.001)
	assert.Equal(t, "light rain", desc)
}

func TestRun_PartialFetchFailureStillSucceeds(t *testing.T) {
	t.Parallel()

	mock, client := newUpstream(t)
	mock.SetCity("Paris", mockweather.Conditions{Description: "mist", Temperature: 12})
	// Atlantis is not registered: the mock answers 404.

	csvPath := writeCSV(t, "city\nParis\nAtlantis\n")
	snk := &recordingSink{}

	p := pipeline.New(reference.FileSource{Path: csvPath}, client, snk, fetch.Options{Workers: 2}, nil)
	res := p.Run(context.Background())

	require.True(t, res.Succeeded())
	assert.Equal(t, 2, res.Requested)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Persisted)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "Atlantis", res.Dropped[0].Key)
	assert.Equal(t, merge.DropFetchFailed, res.Dropped[0].Reason)
	assert.Error(t, res.FetchErr)

	require.Len(t, snk.stored, 1)
	require.Len(t, snk.stored[0], 1)
	assert.Equal(t, "Paris", snk.stored[0][0].City)
}

func TestRun_LoadFailureNeverFetches(t *testing.T) {
	t.Parallel()

	mock, client := newUpstream(t)
	missing := filepath.Join(t.TempDir(), "nope.csv")

	p := pipeline.New(reference.FileSource{Path: missing}, client, &recordingSink{}, fetch.Options{}, nil)
	res := p.Run(context.Background())

	require.False(t, res.Succeeded())
	assert.Equal(t, pipeline.StageLoad, res.FailedStage)
	var dse *reference.DataSourceError
	assert.True(t, errors.As(res.Err, &dse))
	assert.Empty(t, mock.Calls(), "no fetch may be issued after a failed load")
}

func TestRun_PersistFailureReportsStageAndKeepsPriorSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	mock, client := newUpstream(t)
	for _, city := range []string{"Paris", "Oslo", "Lima"} {
		mock.SetCity(city, mockweather.Conditions{Description: "clear", Temperature: 20})
	}

	db, err := sink.Open("", "merged_data")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// Seed a prior snapshot.
	prior := "x"
	require.NoError(t, db.Store(ctx, []merge.Row{{City: "Old", Country: &prior}}))

	csvPath := writeCSV(t, "city\nParis\nOslo\nLima\n")

	// Cancel only the persist stage.
	persistCtx, cancelPersist := context.WithCancel(ctx)
	cancelPersist()
	failing := &stageSink{inner: db, ctx: persistCtx}

	p := pipeline.New(reference.FileSource{Path: csvPath}, client, failing, fetch.Options{Workers: 3}, nil)
	res := p.Run(ctx)

	require.False(t, res.Succeeded())
	assert.Equal(t, pipeline.StagePersist, res.FailedStage)
	var pe *sink.PersistenceError
	assert.True(t, errors.As(res.Err, &pe))

	n, err := db.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "prior table must remain queryable unchanged")
}

// stageSink forces Store to run under a pre-cancelled context, simulating a
// write that dies partway through.
type stageSink struct {
	inner *sink.DuckDB
	ctx   context.Context
}

func (s *stageSink) Store(_ context.Context, rows []merge.Row) error {
	return s.inner.Store(s.ctx, rows)
}

func TestRun_CancellationFailsFetchStage(t *testing.T) {
	t.Parallel()

	mock, client := newUpstream(t)
	_ = mock

	csvPath := writeCSV(t, "city\nParis\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := pipeline.New(reference.FileSource{Path: csvPath}, client, &recordingSink{}, fetch.Options{Workers: 1}, nil)
	res := p.Run(ctx)

	require.False(t, res.Succeeded())
	assert.Equal(t, pipeline.StageFetch, res.FailedStage)
	assert.True(t, res.Cancelled())
}

func TestRun_ZeroSuccessfulFetchesIsNotAnError(t *testing.T) {
	t.Parallel()

	_, client := newUpstream(t) // every city 404s
	csvPath := writeCSV(t, "city\nNowhere\nNoplace\n")
	snk := &recordingSink{}

	p := pipeline.New(reference.FileSource{Path: csvPath}, client, snk, fetch.Options{Workers: 2}, nil)
	res := p.Run(context.Background())

	require.True(t, res.Succeeded())
	assert.Equal(t, 2, res.Requested)
	assert.Equal(t, 0, res.Fetched)
	assert.Equal(t, 0, res.Persisted)
	require.Len(t, snk.stored, 1)
	assert.Empty(t, snk.stored[0])
}

func TestRun_DeduplicatesReferenceKeys(t *testing.T) {
	t.Parallel()

	mock, client := newUpstream(t)
	mock.SetCity("Paris", mockweather.Conditions{Description: "clear", Temperature: 21})

	csvPath := writeCSV(t, "city\nParis\nparis\nParis\n")
	p := pipeline.New(reference.FileSource{Path: csvPath}, client, &recordingSink{}, fetch.Options{Workers: 4}, nil)
	res := p.Run(context.Background())

	require.True(t, res.Succeeded())
	assert.Equal(t, 1, res.Requested)
	assert.Equal(t, 1, mock.CallsFor("Paris"))
}

func TestRun_WorkerCapHoldsUnderLoad(t *testing.T) {
	t.Parallel()

	mock, client := newUpstream(t)
	cities := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	csv := "city\n"
	for _, c := range cities {
		mock.SetCity(c, mockweather.Conditions{Description: "clear", Temperature: 20})
		csv += c + "\n"
	}

	csvPath := writeCSV(t, csv)
	p := pipeline.New(reference.FileSource{Path: csvPath}, client, &recordingSink{}, fetch.Options{Workers: 3}, nil)
	res := p.Run(context.Background())

	require.True(t, res.Succeeded())
	assert.Equal(t, len(cities), res.Fetched)
	assert.LessOrEqual(t, mock.MaxInFlight(), 3)
}

func TestRun_CleanupAlwaysRuns(t *testing.T) {
	t.Parallel()

	_, client := newUpstream(t)
	missing := filepath.Join(t.TempDir(), "nope.csv")

	cleaned := false
	p := pipeline.New(reference.FileSource{Path: missing}, client, &recordingSink{}, fetch.Options{}, nil)
	p.AddCleanup(func() error {
		cleaned = true
		return nil
	})

	res := p.Run(context.Background())
	require.False(t, res.Succeeded())
	assert.True(t, cleaned, "cleanup must run on failure too")
}

func TestResultSummary(t *testing.T) {
	t.Parallel()

	ok := pipeline.Result{RunID: "r1", Status: pipeline.StatusSucceeded, Requested: 2, Fetched: 1, Persisted: 1}
	assert.Contains(t, ok.Summary(), "succeeded")
	assert.Contains(t, ok.Summary(), "fetched=1")

	failed := pipeline.Result{
		RunID:       "r2",
		Status:      pipeline.StatusFailed,
		FailedStage: pipeline.StageFetch,
		Err:         context.Canceled,
	}
	assert.Contains(t, failed.Summary(), "fetch")
	assert.Contains(t, failed.Summary(), "cancelled")

	// Summaries reach external channels; they must never carry the key.
	leaky := pipeline.Result{
		RunID:       "r3",
		Status:      pipeline.StatusFailed,
		FailedStage: pipeline.StagePersist,
		Err:         errors.New("write failed after GET ?appid=topsecret"),
	}
	assert.NotContains(t, leaky.Summary(), "topsecret")
}

func TestRun_RequestTimeoutOptionIsHonored(t *testing.T) {
	t.Parallel()

	mock, client := newUpstream(t)
	mock.SetCity("Paris", mockweather.Conditions{Description: "clear", Temperature: 20})

	csvPath := writeCSV(t, "city\nParis\n")
	p := pipeline.New(reference.FileSource{Path: csvPath}, client, &recordingSink{}, fetch.Options{
		Workers:        1,
		RequestTimeout: 5 * time.Second,
	}, nil)
	res := p.Run(context.Background())
	require.True(t, res.Succeeded())
}
