// Package attempt runs an ordered list of fallback strategies until one succeeds.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// ErrExhausted matches any ExhaustedError via errors.Is
var ErrExhausted = errors.New("all attempts failed")

// ErrImplausibleOutput is returned by MinSize when the output is missing or too small
var ErrImplausibleOutput = errors.New("output missing or too small")

// Attempt is one named strategy. Invoke runs under Timeout; Verify decides
// whether the attempt really succeeded once Invoke returned nil.
type Attempt struct {
	Name    string
	Timeout time.Duration
	Invoke  func(ctx context.Context) error
	Verify  func() error
}

// Chain tries Attempts in order. Prepare runs before every attempt and
// Observe after it (err is nil on success).
type Chain struct {
	Attempts []Attempt
	Prepare  func(a Attempt)
	Observe  func(a Attempt, err error)
}

// ExhaustedError reports every attempt failing, keeping the last cause
type ExhaustedError struct {
	Attempts []string
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s (%s)", ErrExhausted, strings.Join(e.Attempts, ", "))
	}
	return fmt.Sprintf("%s (%s): %v", ErrExhausted, strings.Join(e.Attempts, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Run returns the name of the first attempt that succeeds. A cancelled ctx
// stops the chain at once and returns the context error.
func (c Chain) Run(ctx context.Context) (string, error) {
	exhausted := &ExhaustedError{}

	for _, a := range c.Attempts {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if c.Prepare != nil {
			c.Prepare(a)
		}

		err := c.try(ctx, a)
		if c.Observe != nil {
			c.Observe(a, err)
		}
		if err == nil {
			return a.Name, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		exhausted.Attempts = append(exhausted.Attempts, a.Name)
		exhausted.Last = fmt.Errorf("%s: %w", a.Name, err)
	}

	return "", exhausted
}

func (c Chain) try(ctx context.Context, a Attempt) error {
	runCtx := ctx
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	if err := a.Invoke(runCtx); err != nil {
		return err
	}
	if a.Verify != nil {
		return a.Verify()
	}
	return nil
}

// MinSize verifies that path exists and is strictly larger than minBytes
func MinSize(path string, minBytes int64) func() error {
	return func() error {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrImplausibleOutput, err)
		}
		if info.Size() <= minBytes {
			return fmt.Errorf("%w: %s is %d bytes", ErrImplausibleOutput, path, info.Size())
		}
		return nil
	}
}
