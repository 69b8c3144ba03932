package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/tendant/simple-content/pkg/simplecontent/presets"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/print-preflight/internal/config"
	"github.com/tendant/print-preflight/internal/dbosruntime"
	"github.com/tendant/print-preflight/internal/dedupe"
	"github.com/tendant/print-preflight/internal/handlers"
	"github.com/tendant/print-preflight/internal/metrics"
	"github.com/tendant/print-preflight/internal/storage"
	"github.com/tendant/print-preflight/internal/workflows"
	"github.com/tendant/print-preflight/pkg/preflight"
)

func main() {
	cfg := config.Load()

	// Use HTTP API if CONTENT_API_URL is set, otherwise use embedded service
	var contentReader workflows.ContentReader
	var derivedWriter workflows.DerivedWriter
	if cfg.ContentAPIURL != "" {
		log.Printf("Using simple-content HTTP API at: %s", cfg.ContentAPIURL)
		contentReader = storage.NewHTTPContentReader(cfg.ContentAPIURL)
		derivedWriter = storage.NewHTTPDerivedWriter(cfg.ContentAPIURL)
	} else {
		log.Printf("Using embedded simple-content service (development preset)")
		svc, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(cfg.StorageDir))
		if err != nil {
			log.Fatalf("Failed to initialize simple-content service: %v", err)
		}
		defer cleanup()
		store := storage.NewContentService(svc)
		contentReader = store
		derivedWriter = store
	}

	// Initialize DBOS runtime (required)
	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), cfg.DBOS("preflight-worker"))
	if err != nil {
		log.Fatalf("Failed to initialize DBOS: %v", err)
	}

	ledger, err := dedupe.NewTracker(dbosRuntime.DB())
	if err != nil {
		log.Fatalf("Failed to initialize dedupe ledger: %v", err)
	}

	m := metrics.New()
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)
	preflightWorkflow := workflows.NewPreflightWorkflow(contentReader, derivedWriter, cfg.Engine(nil, m, m), cfg.Resolver()).
		WithLedger(ledger).
		WithDefaultTier(cfg.DefaultTier).
		WithWorkDir(cfg.WorkDir)
	workflowRunner.Register(preflight.JobPreflight, preflightWorkflow)
	log.Printf("✓ Registered workflow: %s for job: %s", preflightWorkflow.Name(), preflight.JobPreflight)

	// Launch DBOS (must be done after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		log.Fatalf("Failed to launch DBOS: %v", err)
	}
	defer dbosRuntime.Shutdown(cfg.ShutdownTimeout)

	log.Printf("✓ DBOS runtime initialized")
	log.Printf("  Queue: %s", dbosRuntime.QueueName())
	log.Printf("  Concurrency: %d", dbosRuntime.Concurrency())

	asyncHandler := handlers.NewAsyncHandler(workflowRunner, ledger)
	syncHandler := handlers.NewSyncHandler(workflowRunner)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.Health("worker"))
	mux.HandleFunc("/v1/process", asyncHandler.HandleProcessAsync)
	mux.HandleFunc("/v1/runs/", asyncHandler.HandleStatus)
	mux.HandleFunc("/v1/preflight", syncHandler.HandlePreflight)
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Preflight worker starting on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
		return
	}
	log.Println("Server stopped")
}
