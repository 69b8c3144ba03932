package workflows

import "errors"

var (
	// ErrWorkflowNotFound is returned when a workflow is not registered
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrStepFailed is returned when a workflow step fails
	ErrStepFailed = errors.New("workflow step failed")

	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid workflow request")

	// ErrContentNotFound is returned when the source content does not exist
	ErrContentNotFound = errors.New("source content not found")

	// ErrUnrenderable is returned when no conversion strategy could produce a
	// raster. Callers should report the file as unreadable or corrupt.
	ErrUnrenderable = errors.New("file could not be rendered")
)
