package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/print-preflight/internal/workflows"
	"github.com/tendant/print-preflight/pkg/preflight"
)

type fakeRunner struct {
	lastReq preflight.ProcessRequest
	result  *workflows.WorkflowResult
	err     error
	status  *workflows.WorkflowStatus
}

func (f *fakeRunner) Run(wctx *workflows.WorkflowContext) (*workflows.WorkflowResult, error) {
	f.lastReq = wctx.Request
	return f.result, f.err
}

func (f *fakeRunner) RunAsync(ctx context.Context, req preflight.ProcessRequest) (string, error) {
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return "preflight-" + req.ContentID + "-1", nil
}

func (f *fakeRunner) GetStatus(ctx context.Context, runID string) (*workflows.WorkflowStatus, error) {
	if f.status == nil {
		return nil, fmt.Errorf("%w: %s", workflows.ErrWorkflowNotFound, runID)
	}
	return f.status, nil
}

type fixedSeen int

func (s fixedSeen) SeenCountForContent(ctx context.Context, contentID string) (int, error) {
	return int(s), nil
}

func post(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestHandlePreflight_ReturnsResult(t *testing.T) {
	runner := &fakeRunner{result: &workflows.WorkflowResult{
		Success:         true,
		DedupeSeenCount: 3,
		Result: &preflight.Result{
			Overall: preflight.StatusWarning,
			Checks:  []preflight.CheckResult{{Name: preflight.CheckDPI, Status: preflight.StatusWarning}},
		},
	}}
	h := NewSyncHandler(runner)

	rec := post(h.HandlePreflight, "/v1/preflight", `{"content_id":"c1","tier":"pro"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp preflight.ProcessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 3, resp.DedupeSeenCount)
	require.NotNil(t, resp.Result)
	assert.Equal(t, preflight.StatusWarning, resp.Result.Overall)

	assert.Equal(t, preflight.JobPreflight, runner.lastReq.Job)
	assert.Equal(t, "pro", runner.lastReq.Tier)
}

func TestHandlePreflight_ErrorStatuses(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: render", workflows.ErrUnrenderable), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: c1", workflows.ErrContentNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad version", workflows.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: disk full", workflows.ErrStepFailed), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			h := NewSyncHandler(&fakeRunner{err: tt.err, result: &workflows.WorkflowResult{}})
			rec := post(h.HandlePreflight, "/v1/preflight", `{"content_id":"c1"}`)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestHandlePreflight_BadRequests(t *testing.T) {
	h := NewSyncHandler(&fakeRunner{})

	assert.Equal(t, http.StatusBadRequest, post(h.HandlePreflight, "/v1/preflight", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, post(h.HandlePreflight, "/v1/preflight", `{}`).Code)

	rec := httptest.NewRecorder()
	h.HandlePreflight(rec, httptest.NewRequest(http.MethodGet, "/v1/preflight", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleProcessAsync(t *testing.T) {
	runner := &fakeRunner{}
	h := NewAsyncHandler(runner, fixedSeen(2))

	rec := post(h.HandleProcessAsync, "/v1/process", `{"content_id":"c1","job":"preflight"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp preflight.ProcessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "preflight-c1-1", resp.RunID)
	assert.Equal(t, 2, resp.DedupeSeenCount)
	assert.Nil(t, resp.Result)
}

func TestHandleProcessAsync_UnknownJob(t *testing.T) {
	h := NewAsyncHandler(&fakeRunner{err: workflows.ErrWorkflowNotFound}, nil)
	rec := post(h.HandleProcessAsync, "/v1/process", `{"content_id":"c1","job":"ocr"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	runner := &fakeRunner{status: &workflows.WorkflowStatus{RunID: "r1", State: workflows.StateSucceeded}}
	h := NewAsyncHandler(runner, nil)

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/r1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"succeeded"`)

	missing := NewAsyncHandler(&fakeRunner{}, nil)
	rec = httptest.NewRecorder()
	missing.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/r2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	missing.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health("worker")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","mode":"worker"}`, rec.Body.String())
}
