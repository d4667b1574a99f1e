// Package notify is the status boundary between the pipeline and whatever
// external channel (email, chat, pager) delivers run outcomes. Delivery
// formatting is out of scope here; implementations receive the terminal
// result and decide the rest.
package notify

import (
	"context"
	"log/slog"

	"github.com/skyward-data/weatherpipe/internal/pipeline"
)

// Notifier receives the terminal result of a run. Callers invoke it
// unconditionally after the pipeline finishes, regardless of outcome.
type Notifier interface {
	Notify(ctx context.Context, res pipeline.Result) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, res pipeline.Result) error

func (f Func) Notify(ctx context.Context, res pipeline.Result) error {
	return f(ctx, res)
}

// LogNotifier reports run outcomes to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, res pipeline.Result) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"run", res.RunID,
		"status", string(res.Status),
		"requested", res.Requested,
		"fetched", res.Fetched,
		"persisted", res.Persisted,
		"dropped", len(res.Dropped),
	}
	if res.Succeeded() {
		logger.Info(res.Summary(), attrs...)
	} else {
		logger.Error(res.Summary(), attrs...)
	}
	return nil
}
