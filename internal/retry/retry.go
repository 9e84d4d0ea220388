// Package retry drives units of work that may need several attempts to
// converge, typically optimistic-lock commits that lost a race.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var ErrRetryExhausted = errors.New("retry exhausted")

// errNotDone marks an attempt that finished cleanly but did not converge.
var errNotDone = errors.New("not done")

// Task is one retryable unit of work. Run reports done=false to ask for
// another attempt; a non-nil error stops the loop immediately.
type Task[T any] struct {
	Run         func(ctx context.Context) (done bool, value T, err error)
	Description string
}

type Options struct {
	MaxTries int
	Interval time.Duration
}

// ExhaustedError is returned when every attempt reported "not done".
type ExhaustedError struct {
	Description string
	Attempts    int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed to %s after %d attempts", e.Description, e.Attempts)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// Do runs task until it reports done or opts.MaxTries attempts were made,
// sleeping opts.Interval between attempts.
func Do[T any](ctx context.Context, task Task[T], opts Options) (T, error) {
	var (
		zero     T
		value    T
		attempts int
	)
	if opts.MaxTries < 1 {
		opts.MaxTries = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(opts.Interval), uint64(opts.MaxTries-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		attempts++
		done, v, err := task.Run(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			return errNotDone
		}
		value = v
		return nil
	}, b)

	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, errNotDone):
		return zero, &ExhaustedError{Description: task.Description, Attempts: attempts}
	default:
		return zero, err
	}
}
