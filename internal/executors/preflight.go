package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	simpleworkflow "github.com/tendant/simple-workflow"

	"github.com/tendant/print-preflight/internal/workflows"
	"github.com/tendant/print-preflight/pkg/preflight"
)

// PreflightExecutor implements simpleworkflow.WorkflowExecutor for preflight runs
type PreflightExecutor struct {
	workflow workflows.Workflow
}

// NewPreflightExecutor creates a new preflight executor
func NewPreflightExecutor(workflow workflows.Workflow) *PreflightExecutor {
	return &PreflightExecutor{workflow: workflow}
}

// Payload is the JSON body of a preflight workflow run
type Payload struct {
	ContentID    string `json:"content_id"`
	Tier         string `json:"tier"`
	DeclaredMIME string `json:"declared_mime"`
	ObjectKey    string `json:"object_key"`
	// ThumbnailVersion defaults to 1
	ThumbnailVersion int `json:"thumbnail_version"`
}

// Execute implements simpleworkflow.WorkflowExecutor
func (e *PreflightExecutor) Execute(ctx context.Context, run *simpleworkflow.WorkflowRun) (interface{}, error) {
	var params Payload
	if err := json.Unmarshal(run.Payload, &params); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	if params.ThumbnailVersion == 0 {
		params.ThumbnailVersion = 1
	}

	runID := uuid.New().String()
	log.Printf("[%s] Executing preflight workflow for content_id=%s tier=%s", runID, params.ContentID, params.Tier)

	wctx := &workflows.WorkflowContext{
		Ctx: ctx,
		Request: preflight.ProcessRequest{
			ContentID:    params.ContentID,
			ObjectKey:    params.ObjectKey,
			Job:          preflight.JobPreflight,
			Tier:         params.Tier,
			DeclaredMIME: params.DeclaredMIME,
			Versions: map[string]int{
				preflight.DerivedTypeThumbnail: params.ThumbnailVersion,
			},
		},
		RunID: runID,
	}

	result, err := e.workflow.Execute(wctx)
	if err != nil {
		return nil, fmt.Errorf("preflight workflow failed: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("preflight workflow returned failure: %s", result.Error)
	}

	log.Printf("[%s] Preflight workflow completed: overall=%s", runID, result.Result.Overall)

	return map[string]interface{}{
		"run_id":            runID,
		"content_id":        params.ContentID,
		"overall":           result.Result.Overall,
		"result":            result.Result,
		"derived_ids":       result.DerivedIDs,
		"dedupe_seen_count": result.DedupeSeenCount,
	}, nil
}
