package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/tendant/print-preflight/internal/workflows"
	"github.com/tendant/print-preflight/pkg/preflight"
)

// AsyncRunner enqueues workflows and reports on them
type AsyncRunner interface {
	RunAsync(ctx context.Context, req preflight.ProcessRequest) (string, error)
	GetStatus(ctx context.Context, runID string) (*workflows.WorkflowStatus, error)
}

// SeenCounter reports how often content has already been preflighted
type SeenCounter interface {
	SeenCountForContent(ctx context.Context, contentID string) (int, error)
}

// AsyncHandler handles asynchronous workflow requests
type AsyncHandler struct {
	workflowRunner AsyncRunner
	seen           SeenCounter
}

// NewAsyncHandler creates a new async handler. seen may be nil.
func NewAsyncHandler(runner AsyncRunner, seen SeenCounter) *AsyncHandler {
	return &AsyncHandler{
		workflowRunner: runner,
		seen:           seen,
	}
}

// HandleProcessAsync handles POST /v1/process - enqueues workflow and returns immediately
func (h *AsyncHandler) HandleProcessAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeProcessRequest(w, r)
	if !ok {
		return
	}

	log.Printf("Enqueueing workflow: content_id=%s, job=%s, tier=%s", req.ContentID, req.Job, req.Tier)

	runID, err := h.workflowRunner.RunAsync(r.Context(), req)
	if err != nil {
		log.Printf("Failed to enqueue workflow: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, workflows.ErrWorkflowNotFound) {
			status = http.StatusBadRequest
		}
		http.Error(w, fmt.Sprintf("Failed to enqueue workflow: %v", err), status)
		return
	}

	log.Printf("Workflow enqueued successfully: run_id=%s", runID)

	resp := preflight.ProcessResponse{RunID: runID}
	if h.seen != nil {
		count, err := h.seen.SeenCountForContent(r.Context(), req.ContentID)
		if err != nil {
			log.Printf("[%s] Failed to read dedupe count: %v", runID, err)
		}
		resp.DedupeSeenCount = count
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// HandleStatus handles GET /v1/runs/{runID} - returns workflow status
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "run_id is required", http.StatusBadRequest)
		return
	}

	status, err := h.workflowRunner.GetStatus(r.Context(), runID)
	if err != nil {
		log.Printf("Failed to get workflow status: %v", err)
		if errors.Is(err, workflows.ErrWorkflowNotFound) {
			http.Error(w, "Workflow not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get workflow status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// decodeProcessRequest parses and validates a ProcessRequest, writing the
// error response itself when it returns false
func decodeProcessRequest(w http.ResponseWriter, r *http.Request) (preflight.ProcessRequest, bool) {
	var req preflight.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return req, false
	}
	if req.ContentID == "" {
		http.Error(w, "content_id is required", http.StatusBadRequest)
		return req, false
	}
	if req.Job == "" {
		req.Job = preflight.JobPreflight
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
