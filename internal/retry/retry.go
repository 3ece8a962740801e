// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds how often an operation is attempted.
type Policy struct {
	// MaxAttempts is the number of attempts. Values below 1 mean 1.
	MaxAttempts int
	// Interval is the pause between attempts.
	Interval time.Duration
	// Stop is checked before every attempt. A non-nil error ends the loop
	// and is returned as is.
	Stop func() error
}

// ExhaustedError is returned when every attempt failed.
// Last is the error of the final failing attempt and may be nil.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("gave up after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do calls fn until it returns nil, Stop reports an error, ctx is done or
// the attempts run out.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for i := 0; i < attempts; i++ {
		if p.Stop != nil {
			if err := p.Stop(); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Interval):
			// retry
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: last}
}
