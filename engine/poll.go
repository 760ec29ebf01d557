package engine

import (
	"context"
	"errors"
	"time"
)

// ErrPollExhausted is returned by Poll when the attempt bound is reached
// without a done or fatal outcome.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// PollDecision is what one attempt concluded.
type PollDecision int

const (
	// PollRetry means "not ready yet", wait one interval and try again.
	PollRetry PollDecision = iota
	// PollDone stops polling and returns the attempt's value.
	PollDone
	// PollFatal stops polling and returns the attempt's error.
	PollFatal
)

// Poll runs fn once per interval until it reports done or fatal, the attempt
// bound is exhausted, or the context is canceled. The first attempt runs
// immediately. attempt is 1-based for log lines.
func Poll[T any](ctx context.Context, interval time.Duration, maxAttempts int, fn func(ctx context.Context, attempt int) (T, PollDecision, error)) (T, error) {
	var zero T
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, decision, err := fn(ctx, attempt)
		switch decision {
		case PollDone:
			return v, nil
		case PollFatal:
			return zero, err
		}

		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(interval):
		}
	}
	return zero, ErrPollExhausted
}
