// Package runner embeds a DBOS-backed preflight worker in another
// application, or enqueues preflight runs for separate workers.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/print-preflight/internal/config"
	"github.com/tendant/print-preflight/internal/dbosruntime"
	"github.com/tendant/print-preflight/internal/storage"
	"github.com/tendant/print-preflight/internal/workflows"
	"github.com/tendant/print-preflight/pkg/preflight"
)

// Config holds the configuration for initializing the preflight runner
type Config struct {
	DatabaseURL        string // DBOS PostgreSQL connection string
	AppName            string // Application name for DBOS
	QueueName          string // DBOS queue name
	Concurrency        int    // Number of concurrent preflight runs
	ContentAPIURL      string // URL of the content API server
	ApplicationVersion string // Optional: Override binary hash for version matching

	WorkDir     string // Optional: staging and per-run directories
	DefaultTier string // Optional: tier for requests that name none
}

// Runner executes preflight workflows in-process via DBOS
type Runner struct {
	runtime *dbosruntime.Runtime
	runner  *workflows.WorkflowRunner
}

// New creates and initializes a new preflight runner with DBOS integration
func New(cfg Config) (*Runner, error) {
	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		Concurrency:        cfg.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)

	settings := config.Config{WorkDir: cfg.WorkDir, DefaultTier: cfg.DefaultTier}
	settings.WithDefaults()

	contentReader := storage.NewHTTPContentReader(cfg.ContentAPIURL)
	derivedWriter := storage.NewHTTPDerivedWriter(cfg.ContentAPIURL)

	preflightWorkflow := workflows.NewPreflightWorkflow(contentReader, derivedWriter,
		settings.Engine(nil, nil, nil), settings.Resolver()).
		WithDefaultTier(settings.DefaultTier).
		WithWorkDir(settings.WorkDir)
	workflowRunner.Register(preflight.JobPreflight, preflightWorkflow)

	// Launch DBOS (must be after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Runner{
		runtime: dbosRuntime,
		runner:  workflowRunner,
	}, nil
}

// RunPreflight enqueues a preflight of stored content
func (r *Runner) RunPreflight(ctx context.Context, contentID, tier string) (string, error) {
	return r.runner.RunAsync(ctx, preflightRequest(contentID, tier))
}

// Status returns the state of a run
func (r *Runner) Status(ctx context.Context, runID string) (*workflows.WorkflowStatus, error) {
	return r.runner.GetStatus(ctx, runID)
}

// Shutdown gracefully shuts down the preflight runner
func (r *Runner) Shutdown(timeoutSeconds int) {
	if r.runtime != nil {
		r.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
}

func preflightRequest(contentID, tier string) preflight.ProcessRequest {
	return preflight.ProcessRequest{
		ContentID: contentID,
		Job:       preflight.JobPreflight,
		Tier:      tier,
		Versions: map[string]int{
			preflight.DerivedTypeThumbnail: 1,
			preflight.DerivedTypeRaster:    1,
		},
	}
}
