package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"

	"github.com/tendant/print-preflight/internal/config"
	"github.com/tendant/print-preflight/internal/handlers"
	"github.com/tendant/print-preflight/internal/metrics"
	"github.com/tendant/print-preflight/internal/storage"
	"github.com/tendant/print-preflight/internal/workflows"
	"github.com/tendant/print-preflight/pkg/preflight"
)

// Standalone preflight server for quick testing
// Uses in-memory repository + filesystem storage (./dev-data)
// No external simple-content server or Postgres needed
func main() {
	cfg := config.Load()

	log.Printf("Preflight Standalone Server")
	log.Printf("  Mode: Embedded (in-memory DB + filesystem storage)")
	log.Printf("  Storage directory: %s", cfg.StorageDir)
	log.Printf("  Work directory: %s", cfg.WorkDir)
	log.Printf("  HTTP address: %s", cfg.HTTPAddr)

	// Initialize simple-content service with development preset
	svc, cleanup, err := presets.NewDevelopment(
		presets.WithDevStorage(cfg.StorageDir),
	)
	if err != nil {
		log.Fatalf("Failed to initialize simple-content service: %v", err)
	}
	defer cleanup()

	log.Printf("✓ simple-content service initialized")

	m := metrics.New()
	eng := cfg.Engine(nil, m, m)
	store := storage.NewContentService(svc)

	// Synchronous runner, no DBOS
	workflowRunner := workflows.NewWorkflowRunner(nil)
	preflightWorkflow := workflows.NewPreflightWorkflow(
		store,
		store,
		eng,
		cfg.Resolver(),
	).WithDefaultTier(cfg.DefaultTier).WithWorkDir(cfg.WorkDir)
	workflowRunner.Register(preflight.JobPreflight, preflightWorkflow)
	log.Printf("✓ Registered workflow: %s for job: %s", preflightWorkflow.Name(), preflight.JobPreflight)

	syncHandler := handlers.NewSyncHandler(workflowRunner)
	testHandler := &testHandler{workflowRunner: workflowRunner, service: svc, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.Health("standalone"))
	mux.HandleFunc("/v1/preflight", syncHandler.HandlePreflight)
	mux.HandleFunc("/v1/test", testHandler.handleTest)
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	// Start server in goroutine
	go func() {
		log.Printf("✓ Preflight server ready on %s", cfg.HTTPAddr)
		log.Printf("")
		log.Printf("Quick test:")
		log.Printf("  curl http://localhost%s/v1/test", cfg.HTTPAddr)
		log.Printf("")
		log.Printf("Available endpoints:")
		log.Printf("  GET  /health           - Health check")
		log.Printf("  POST /v1/preflight     - Preflight stored content (requires existing content_id)")
		log.Printf("  GET  /v1/test          - Upload a generated image and preflight it")
		log.Printf("  GET  /metrics          - Prometheus metrics")
		log.Printf("")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// testHandler runs an end-to-end preflight against the embedded service
type testHandler struct {
	workflowRunner *workflows.WorkflowRunner
	service        simplecontent.Service
	store          *storage.ContentService
}

func (h *testHandler) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed (use GET or POST)", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	tier := r.URL.Query().Get("tier")
	log.Println("=== Running End-to-End Test ===")

	// Step 1: Upload a generated image
	log.Println("Step 1: Uploading test artwork...")
	data, err := testArtwork()
	if err != nil {
		http.Error(w, fmt.Sprintf("Encode failed: %v", err), http.StatusInternalServerError)
		return
	}

	content, err := h.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      uuid.MustParse("00000000-0000-0000-0000-000000000001"),
		TenantID:     uuid.MustParse("00000000-0000-0000-0000-000000000002"),
		Name:         "Test Artwork",
		DocumentType: "image/png",
		Reader:       bytes.NewReader(data),
		FileName:     "test-artwork.png",
		Tags:         []string{"test", "preflight"},
	})
	if err != nil {
		log.Printf("Failed to upload content: %v", err)
		http.Error(w, fmt.Sprintf("Upload failed: %v", err), http.StatusInternalServerError)
		return
	}
	log.Printf("✓ Content uploaded: %s (status: %s)", content.ID, content.Status)

	// Step 2: Preflight it
	log.Println("Step 2: Running preflight...")
	runID := uuid.New().String()
	result, err := h.workflowRunner.Run(&workflows.WorkflowContext{
		Ctx: ctx,
		Request: preflight.ProcessRequest{
			ContentID:    content.ID.String(),
			Job:          preflight.JobPreflight,
			Tier:         tier,
			DeclaredMIME: "image/png",
		},
		RunID: runID,
	})
	if err != nil {
		log.Printf("Workflow execution failed: %v", err)
		http.Error(w, fmt.Sprintf("Workflow failed: %v", err), http.StatusInternalServerError)
		return
	}
	log.Printf("✓ Preflight completed (run_id: %s, overall: %s)", runID, result.Result.Overall)

	// Step 3: List derived content
	log.Println("Step 3: Checking derived content...")
	derived, err := h.store.DerivedVariants(ctx, content.ID.String(), "")
	if err != nil {
		log.Printf("Failed to list derived content: %v", err)
		http.Error(w, fmt.Sprintf("List derived failed: %v", err), http.StatusInternalServerError)
		return
	}
	log.Printf("✓ Found %d derived content(s)", len(derived))
	log.Println("=== Test Complete ===")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"test_status":      "success",
		"content_id":       content.ID.String(),
		"run_id":           runID,
		"result":           result.Result,
		"derived_ids":      result.DerivedIDs,
		"derived_count":    len(derived),
		"derived_variants": derived,
	})
}

// testArtwork draws a gradient to upload
func testArtwork() ([]byte, error) {
	img := imaging.New(600, 400, color.White)
	for y := 0; y < 400; y++ {
		for x := 0; x < 600; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / 600), G: uint8(y * 255 / 400), B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
