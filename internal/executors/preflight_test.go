package executors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	simpleworkflow "github.com/tendant/simple-workflow"

	"github.com/tendant/print-preflight/internal/workflows"
	"github.com/tendant/print-preflight/pkg/preflight"
)

type stubWorkflow struct {
	got    preflight.ProcessRequest
	result *workflows.WorkflowResult
	err    error
}

func (s *stubWorkflow) Name() string { return "stub" }

func (s *stubWorkflow) Execute(wctx *workflows.WorkflowContext) (*workflows.WorkflowResult, error) {
	s.got = wctx.Request
	return s.result, s.err
}

func TestPreflightExecutor_BuildsRequest(t *testing.T) {
	wf := &stubWorkflow{result: &workflows.WorkflowResult{
		Success: true,
		Result:  &preflight.Result{Overall: preflight.StatusOK},
	}}
	ex := NewPreflightExecutor(wf)

	out, err := ex.Execute(context.Background(), &simpleworkflow.WorkflowRun{
		Payload: []byte(`{"content_id":"c1","tier":"business","declared_mime":"application/pdf"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "c1", wf.got.ContentID)
	assert.Equal(t, "business", wf.got.Tier)
	assert.Equal(t, "application/pdf", wf.got.DeclaredMIME)
	assert.Equal(t, preflight.JobPreflight, wf.got.Job)
	assert.Equal(t, 1, wf.got.Versions[preflight.DerivedTypeThumbnail])

	m, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, preflight.StatusOK, m["overall"])
}

func TestPreflightExecutor_Failures(t *testing.T) {
	ex := NewPreflightExecutor(&stubWorkflow{})
	_, err := ex.Execute(context.Background(), &simpleworkflow.WorkflowRun{Payload: []byte(`{`)})
	assert.Error(t, err)

	cause := errors.New("boom")
	ex = NewPreflightExecutor(&stubWorkflow{result: &workflows.WorkflowResult{Error: "boom"}, err: cause})
	_, err = ex.Execute(context.Background(), &simpleworkflow.WorkflowRun{Payload: []byte(`{"content_id":"c1"}`)})
	assert.ErrorIs(t, err, cause)
}
