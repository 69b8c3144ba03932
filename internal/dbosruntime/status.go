package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrWorkflowStatusNotFound is returned for unknown workflow IDs
var ErrWorkflowStatusNotFound = errors.New("workflow status not found")

// WorkflowStatusInfo is a row of the DBOS status table
type WorkflowStatusInfo struct {
	WorkflowUUID string
	Status       string
	Name         string
	// Output and Error hold the encoded workflow result, when finished
	Output    string
	Error     string
	CreatedAt int64
	UpdatedAt int64
}

// GetWorkflowStatus retrieves the status of a workflow from the DBOS status table
func (r *Runtime) GetWorkflowStatus(ctx context.Context, workflowUUID string) (*WorkflowStatusInfo, error) {
	query := `
		SELECT workflow_uuid, status, name, output, error, created_at, updated_at
		FROM dbos.workflow_status
		WHERE workflow_uuid = $1
	`

	var (
		info        WorkflowStatusInfo
		output, msg sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, workflowUUID).Scan(
		&info.WorkflowUUID,
		&info.Status,
		&info.Name,
		&output,
		&msg,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowStatusNotFound, workflowUUID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow status: %w", err)
	}

	info.Output = output.String
	info.Error = msg.String
	return &info, nil
}
