// Package pipeline orchestrates one enrichment run: load the reference
// table, fetch weather concurrently, inner-join, persist the snapshot.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/skyward-data/weatherpipe/internal/fetch"
	"github.com/skyward-data/weatherpipe/internal/merge"
	"github.com/skyward-data/weatherpipe/internal/reference"
	"github.com/skyward-data/weatherpipe/internal/weather"
	"github.com/skyward-data/weatherpipe/pkg/pipeline/core"
	"github.com/skyward-data/weatherpipe/pkg/pipeline/redact"
)

// Pipeline wires the four stages together. Construct with New; run once
// per invocation with Run.
type Pipeline struct {
	source   core.Source[reference.Record]
	observer weather.Observer
	sink     core.Sink[merge.Row]
	opts     fetch.Options
	log      *slog.Logger

	cleanups []func() error
}

// New constructs a pipeline over explicit collaborators.
func New(
	source core.Source[reference.Record],
	observer weather.Observer,
	sink core.Sink[merge.Row],
	opts fetch.Options,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:   source,
		observer: observer,
		sink:     sink,
		opts:     opts,
		log:      logger,
	}
}

// AddCleanup registers a best-effort release step that runs when the run
// finishes, success or failure, in registration order.
func (p *Pipeline) AddCleanup(fn func() error) {
	p.cleanups = append(p.cleanups, fn)
}

// Run executes one full pipeline pass. Stage errors short-circuit the
// remaining stages; per-key fetch failures do not. The returned Result is
// terminal either way.
func (p *Pipeline) Run(ctx context.Context) Result {
	runID := uuid.NewString()
	log := p.log.With("run", runID)
	start := time.Now()

	defer p.runCleanups(log)

	log.Info("pipeline start",
		"workers", p.opts.Workers,
		"maxRetries", p.opts.MaxRetries,
		"requestTimeout", p.opts.RequestTimeout,
		"rateLimitRPS", p.opts.RateLimitRPS,
	)

	fail := func(stage Stage, err error) Result {
		log.Error("pipeline failed",
			"stage", string(stage),
			"error", redact.Secrets(err.Error()),
			"duration", time.Since(start).Round(time.Millisecond),
		)
		return Result{
			RunID:       runID,
			Status:      StatusFailed,
			FailedStage: stage,
			Err:         err,
		}
	}

	loadStart := time.Now()
	refs, err := p.source.Load(ctx)
	if err != nil {
		return fail(StageLoad, err)
	}
	log.Info("reference loaded", "rows", len(refs), "duration", time.Since(loadStart).Round(time.Millisecond))

	keys := fetch.Dedupe(reference.Keys(refs))

	fetchStart := time.Now()
	outcomes, err := fetch.All(ctx, keys, p.observer, p.opts)
	if err != nil {
		return fail(StageFetch, err)
	}

	fetched := 0
	var fetchErr *multierror.Error
	for _, o := range outcomes {
		if o.Success() {
			fetched++
			continue
		}
		fetchErr = multierror.Append(fetchErr, o.Err)
		log.Warn("fetch failed", "city", o.Key, "error", redact.Secrets(o.Err.Error()))
	}
	log.Info("fetch complete",
		"requested", len(keys),
		"fetched", fetched,
		"failed", len(keys)-fetched,
		"duration", time.Since(fetchStart).Round(time.Millisecond),
	)

	rows, dropped := merge.Merge(refs, outcomes)
	for _, d := range dropped {
		log.Debug("dropped from join", "city", d.Key, "reason", string(d.Reason))
	}
	log.Info("merge complete", "rows", len(rows), "dropped", len(dropped))

	persistStart := time.Now()
	if err := p.sink.Store(ctx, rows); err != nil {
		return fail(StagePersist, err)
	}
	log.Info("persist complete", "rows", len(rows), "duration", time.Since(persistStart).Round(time.Millisecond))

	log.Info("pipeline done",
		"requested", len(keys),
		"fetched", fetched,
		"persisted", len(rows),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return Result{
		RunID:     runID,
		Status:    StatusSucceeded,
		Requested: len(keys),
		Fetched:   fetched,
		Persisted: len(rows),
		Dropped:   dropped,
		FetchErr:  fetchErr.ErrorOrNil(),
	}
}

func (p *Pipeline) runCleanups(log *slog.Logger) {
	for _, fn := range p.cleanups {
		if err := fn(); err != nil {
			log.Warn("cleanup failed", "error", redact.Secrets(err.Error()))
		}
	}
}
