// Package toolexectest provides a scripted toolexec.Runner for tests.
package toolexectest

import (
	"context"
	"sync"

	"github.com/tendant/print-preflight/internal/toolexec"
)

// HandlerFunc produces the result of one scripted command
type HandlerFunc func(ctx context.Context, cmd toolexec.Command) ([]byte, error)

// Runner records every command and answers with Handler
type Runner struct {
	Handler HandlerFunc

	mu    sync.Mutex
	calls []toolexec.Command
}

// New creates a scripted runner
func New(h HandlerFunc) *Runner {
	return &Runner{Handler: h}
}

// Run implements toolexec.Runner
func (r *Runner) Run(ctx context.Context, cmd toolexec.Command) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Handler == nil {
		return nil, nil
	}
	return r.Handler(ctx, cmd)
}

// Calls returns a copy of the recorded commands
func (r *Runner) Calls() []toolexec.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]toolexec.Command, len(r.calls))
	copy(out, r.calls)
	return out
}
