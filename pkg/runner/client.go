package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/print-preflight/internal/dbosruntime"
	"github.com/tendant/print-preflight/internal/workflows"
)

// Client enqueues preflight runs without executing them. Workers must be
// running separately to pick up the enqueued runs.
type Client struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// NewClient creates a client that can start workflows but doesn't execute them
func NewClient(cfg Config) (*Client, error) {
	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	// No workflows registered: client mode
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)

	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Client{
		runtime: dbosRuntime,
		runner:  workflowRunner,
	}, nil
}

// RunPreflight enqueues a preflight for workers to execute
func (c *Client) RunPreflight(ctx context.Context, contentID, tier string) (string, error) {
	return c.runner.RunAsync(ctx, preflightRequest(contentID, tier))
}

// Status returns the state of a run
func (c *Client) Status(ctx context.Context, runID string) (*workflows.WorkflowStatus, error) {
	return c.runner.GetStatus(ctx, runID)
}

// Shutdown gracefully shuts down the client
func (c *Client) Shutdown(timeoutSeconds int) {
	if c.runtime != nil {
		c.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
}
