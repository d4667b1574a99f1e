package core

import "context"

// Source loads the input records for a pipeline run.
type Source[T any] interface {
	Load(ctx context.Context) ([]T, error)
}

// Sink persists the output records produced by a pipeline run.
type Sink[T any] interface {
	Store(ctx context.Context, rows []T) error
}

// Processor transforms one input item into one output item.
type Processor[In any, Out any] interface {
	Process(ctx context.Context, in In) (Out, error)
}

// ProcessFunc adapts a function to the Processor interface.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

func (f ProcessFunc[In, Out]) Process(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}

// TransientError marks an error as retryable by worker implementations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LimitedTransientError is a retryable error that caps its own retry budget
// below the pool-wide default. Useful for upstreams that signal throttling
// with an explicit remaining budget.
type LimitedTransientError struct {
	Err     error
	Retries int
}

func (e *LimitedTransientError) Error() string {
	if e == nil || e.Err == nil {
		return "limited transient error"
	}
	return e.Err.Error()
}

func (e *LimitedTransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MaxExtraRetries reports the per-error retry cap.
func (e *LimitedTransientError) MaxExtraRetries() int {
	if e == nil || e.Retries < 0 {
		return 0
	}
	return e.Retries
}
