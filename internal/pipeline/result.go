package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/skyward-data/weatherpipe/internal/merge"
	"github.com/skyward-data/weatherpipe/pkg/pipeline/redact"
)

// Stage identifies where in the run a failure happened.
type Stage string

const (
	StageLoad    Stage = "load"
	StageFetch   Stage = "fetch"
	StageMerge   Stage = "merge"
	StagePersist Stage = "persist"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is what a finished run hands to the notification boundary. It is
// never persisted by the pipeline itself.
type Result struct {
	RunID  string
	Status Status

	// FailedStage and Err are set only on failure.
	FailedStage Stage
	Err         error

	// Requested counts distinct keys dispatched to the fetch stage;
	// Fetched counts successful outcomes; Persisted counts rows written.
	Requested int
	Fetched   int
	Persisted int

	// Dropped lists keys excluded from the join, as run-quality detail.
	Dropped []merge.Dropped

	// FetchErr aggregates per-key fetch failures. Diagnostic only; per-key
	// failures never fail the run.
	FetchErr error
}

// Succeeded reports whether the run reached the end of the persist stage.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Cancelled reports whether the run failed due to external cancellation.
func (r Result) Cancelled() bool {
	return r.Err != nil &&
		(errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded))
}

// Summary renders a one-line, secret-free description for the notifier.
func (r Result) Summary() string {
	if r.Succeeded() {
		return fmt.Sprintf(
			"run %s succeeded: requested=%d fetched=%d persisted=%d dropped=%d",
			r.RunID, r.Requested, r.Fetched, r.Persisted, len(r.Dropped),
		)
	}
	cause := "unknown"
	if r.Err != nil {
		cause = redact.Secrets(r.Err.Error())
	}
	if r.Cancelled() {
		cause = "cancelled: " + cause
	}
	return fmt.Sprintf("run %s failed at %s stage: %s", r.RunID, r.FailedStage, cause)
}
