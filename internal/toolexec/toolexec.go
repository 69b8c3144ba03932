// Package toolexec runs external inspection and conversion tools under a hard timeout.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a command runs past its timeout
	ErrTimeout = errors.New("command timed out")

	// ErrToolFailed is returned when a command exits non-zero or cannot start
	ErrToolFailed = errors.New("command failed")
)

// Command is one external tool invocation
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
	Env     []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// MagickLimits caps the memory and pixel area ImageMagick may use for one
// image. They go before the input on every identify and convert call.
var MagickLimits = []string{
	"-limit", "memory", "256MiB",
	"-limit", "map", "512MiB",
	"-limit", "area", "64MP",
	"-limit", "width", "32KP",
	"-limit", "height", "32KP",
}

// PathArg returns path in a form no tool can read as an option: absolute
// when possible, otherwise prefixed with "./".
func PathArg(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	if strings.HasPrefix(path, "-") {
		return "./" + path
	}
	return path
}

// Runner executes commands and returns their stdout
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands with os/exec. The process is killed when the
// timeout elapses or ctx is cancelled.
type ExecRunner struct {
	// WaitDelay bounds how long to wait for output pipes after the kill
	WaitDelay time.Duration
}

// NewExecRunner creates a runner backed by real processes
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: 2 * time.Second}
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.WaitDelay = r.WaitDelay
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), nil
	}

	// parent cancellation wins over our own deadline
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", c.Name, ctxErr)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s after %s: %w", c.Name, c.Timeout, ErrTimeout)
	}

	msg := strings.TrimSpace(stderr.String())
	if len(msg) > 512 {
		msg = msg[:512]
	}
	if msg != "" {
		return nil, fmt.Errorf("%s: %w: %v: %s", c.Name, ErrToolFailed, err, msg)
	}
	return nil, fmt.Errorf("%s: %w: %v", c.Name, ErrToolFailed, err)
}
