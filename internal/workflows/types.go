package workflows

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/tendant/print-preflight/internal/dbosruntime"
	"github.com/tendant/print-preflight/pkg/preflight"
)

func init() {
	// Check values and details are carried through the durable queue
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
}

// WorkflowContext contains context for workflow execution
type WorkflowContext struct {
	Ctx     context.Context
	Request preflight.ProcessRequest
	RunID   string
}

// WorkflowResult contains the result of workflow execution. Success means the
// workflow ran to completion; the preflight verdict is in Result.
type WorkflowResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Result          *preflight.Result `json:"result,omitempty"`
	DerivedIDs      map[string]string `json:"derived_ids,omitempty"`
	DedupeSeenCount int               `json:"dedupe_seen_count"`
}

func failed(err error) *WorkflowResult {
	return &WorkflowResult{Success: false, Error: err.Error()}
}

// Workflow defines the interface for processing workflows
type Workflow interface {
	// Execute runs the workflow
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)

	// Name returns the workflow name
	Name() string
}

// WorkflowRunner executes workflows
type WorkflowRunner struct {
	workflows   map[string]Workflow
	dbosRuntime *dbosruntime.Runtime
}

// NewWorkflowRunner creates a workflow runner. A nil runtime gives a
// synchronous-only runner.
func NewWorkflowRunner(dbosRuntime *dbosruntime.Runtime) *WorkflowRunner {
	runner := &WorkflowRunner{
		workflows:   make(map[string]Workflow),
		dbosRuntime: dbosRuntime,
	}

	// Register the DBOS workflow function
	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.executeWorkflowDBOS)
	}

	return runner
}

// Register registers a workflow
func (r *WorkflowRunner) Register(job string, workflow Workflow) {
	r.workflows[job] = workflow
}

// Run executes a workflow for the given job type synchronously
func (r *WorkflowRunner) Run(wctx *WorkflowContext) (*WorkflowResult, error) {
	workflow, ok := r.workflows[wctx.Request.Job]
	if !ok {
		return failed(ErrWorkflowNotFound), ErrWorkflowNotFound
	}

	return workflow.Execute(wctx)
}

// RunAsync enqueues a workflow for async execution via DBOS
func (r *WorkflowRunner) RunAsync(ctx context.Context, req preflight.ProcessRequest) (string, error) {
	if r.dbosRuntime == nil {
		return "", errors.New("DBOS runtime not initialized")
	}
	// A client-only runner registers nothing and leaves the check to workers
	if _, ok := r.workflows[req.Job]; !ok && len(r.workflows) > 0 {
		return "", fmt.Errorf("%w: %s", ErrWorkflowNotFound, req.Job)
	}

	workflowID := fmt.Sprintf("%s-%s-%d", req.Job, req.ContentID, time.Now().UnixNano())

	handle, err := dbos.RunWorkflow[preflight.ProcessRequest, *WorkflowResult](
		r.dbosRuntime.Context(),
		r.executeWorkflowDBOS,
		req,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.dbosRuntime.QueueName()),
	)
	if err != nil {
		return "", err
	}

	return handle.GetWorkflowID(), nil
}

// executeWorkflowDBOS is the DBOS workflow function that wraps registered workflows
func (r *WorkflowRunner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, req preflight.ProcessRequest) (*WorkflowResult, error) {
	workflow, ok := r.workflows[req.Job]
	if !ok {
		return failed(ErrWorkflowNotFound), ErrWorkflowNotFound
	}

	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return failed(err), err
	}

	// DBOSContext implements context.Context
	wctx := &WorkflowContext{
		Ctx:     dbosCtx,
		Request: req,
		RunID:   workflowID,
	}

	return workflow.Execute(wctx)
}

// Workflow states reported by GetStatus
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// WorkflowStatus represents the status of a workflow execution
type WorkflowStatus struct {
	RunID      string     `json:"run_id"`
	Name       string     `json:"name"`
	State      string     `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Output is the encoded result as stored by DBOS
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// GetStatus reads the status of a workflow execution from DBOS
func (r *WorkflowRunner) GetStatus(ctx context.Context, runID string) (*WorkflowStatus, error) {
	if r.dbosRuntime == nil {
		return nil, errors.New("status tracking requires DBOS runtime")
	}

	info, err := r.dbosRuntime.GetWorkflowStatus(ctx, runID)
	if err != nil {
		if errors.Is(err, dbosruntime.ErrWorkflowStatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, runID)
		}
		return nil, err
	}

	return statusFromInfo(info), nil
}

func statusFromInfo(info *dbosruntime.WorkflowStatusInfo) *WorkflowStatus {
	status := &WorkflowStatus{
		RunID:     info.WorkflowUUID,
		Name:      info.Name,
		State:     stateFromDBOS(info.Status),
		StartedAt: time.UnixMilli(info.CreatedAt),
		Output:    info.Output,
		Error:     info.Error,
	}
	switch status.State {
	case StateSucceeded, StateFailed, StateCancelled:
		finished := time.UnixMilli(info.UpdatedAt)
		status.FinishedAt = &finished
	}
	return status
}

func stateFromDBOS(s string) string {
	switch strings.ToUpper(s) {
	case "ENQUEUED":
		return StatePending
	case "PENDING":
		return StateRunning
	case "SUCCESS":
		return StateSucceeded
	case "CANCELLED":
		return StateCancelled
	case "ERROR", "MAX_RECOVERY_ATTEMPTS_EXCEEDED", "RETRIES_EXCEEDED":
		return StateFailed
	}
	return strings.ToLower(s)
}
