// Package fetch fans weather lookups out over a bounded worker pool and
// collects one outcome per distinct city.
package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/skyward-data/weatherpipe/internal/weather"
	"github.com/skyward-data/weatherpipe/pkg/pipeline/worker"
)

// Outcome is the per-city result of one enrichment attempt: either a
// populated observation or a typed failure. Consumers must treat a slice of
// outcomes as a set keyed by Key; collection order is completion order.
type Outcome struct {
	Key         string
	Observation weather.Observation
	Err         error
}

// Success reports whether the fetch produced a usable observation.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Options bounds the fan-out.
type Options struct {
	// Workers caps simultaneously in-flight API calls. Defaults to 5.
	Workers int

	// MaxRetries is the transient-retry budget per city. Default 0: one
	// best-effort attempt per city per run.
	MaxRetries int

	RequestTimeout time.Duration
	RateLimitRPS   float64
}

// All requests one observation per distinct key and blocks until every
// dispatched fetch has completed.
//
// Individual failures never abort the batch; they come back as failed
// Outcomes. All itself returns an error only on external cancellation, and
// then no partial outcome set is returned. An empty key set yields an empty
// outcome set.
func All(ctx context.Context, keys []string, obs weather.Observer, opts Options) ([]Outcome, error) {
	keys = Dedupe(keys)
	if len(keys) == 0 {
		return []Outcome{}, nil
	}

	results, err := worker.ProcessAll(ctx, keys, obs.Observe, worker.Options{
		Workers:        opts.Workers,
		MaxRetries:     opts.MaxRetries,
		RequestTimeout: opts.RequestTimeout,
		RateLimitRPS:   opts.RateLimitRPS,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Outcome, 0, len(results))
	for _, r := range results {
		out = append(out, Outcome{
			Key:         r.Input,
			Observation: r.Output,
			Err:         r.Err,
		})
	}
	return out, nil
}

// Dedupe trims keys and drops empties and case-insensitive duplicates,
// keeping the first spelling in input order. Duplicate fetches would waste
// API quota and double-count in the join.
func Dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		norm := strings.ToLower(k)
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, k)
	}
	return out
}
