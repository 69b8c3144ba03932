package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/tendant/print-preflight/internal/workflows"
	"github.com/tendant/print-preflight/pkg/preflight"
)

// SyncRunner runs a workflow to completion
type SyncRunner interface {
	Run(wctx *workflows.WorkflowContext) (*workflows.WorkflowResult, error)
}

// SyncHandler runs preflight within the request
type SyncHandler struct {
	workflowRunner SyncRunner
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(runner SyncRunner) *SyncHandler {
	return &SyncHandler{workflowRunner: runner}
}

// HandlePreflight handles POST /v1/preflight and returns the full result.
// A file that fails checks is still a 200; only a file that cannot be
// rendered at all is a 422.
func (h *SyncHandler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := decodeProcessRequest(w, r)
	if !ok {
		return
	}

	runID := uuid.New().String()
	log.Printf("[%s] Preflight request: content_id=%s, tier=%s", runID, req.ContentID, req.Tier)

	// Client disconnect cancels the context and kills running tools
	result, err := h.workflowRunner.Run(&workflows.WorkflowContext{
		Ctx:     r.Context(),
		Request: req,
		RunID:   runID,
	})
	if err != nil {
		log.Printf("[%s] Workflow execution failed: %v", runID, err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, preflight.ProcessResponse{
		RunID:           runID,
		DedupeSeenCount: result.DedupeSeenCount,
		Result:          result.Result,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, workflows.ErrInvalidRequest), errors.Is(err, workflows.ErrWorkflowNotFound):
		return http.StatusBadRequest
	case errors.Is(err, workflows.ErrContentNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflows.ErrUnrenderable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// Health returns a health check handler reporting mode
func Health(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"mode":   mode,
		})
	}
}
