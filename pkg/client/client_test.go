package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/print-preflight/pkg/preflight"
)

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/preflight", func(w http.ResponseWriter, r *http.Request) {
		var req preflight.ProcessRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, preflight.JobPreflight, req.Job)
		if req.ContentID == "corrupt" {
			http.Error(w, "file could not be rendered", http.StatusUnprocessableEntity)
			return
		}
		json.NewEncoder(w).Encode(preflight.ProcessResponse{
			RunID:  "r1",
			Result: &preflight.Result{Overall: preflight.StatusOK},
		})
	})
	mux.HandleFunc("/v1/process", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(preflight.ProcessResponse{RunID: "r2", DedupeSeenCount: 4})
	})
	mux.HandleFunc("/v1/runs/r2", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"run_id": "r2", "state": "running"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	resp, err := c.Preflight(ctx, preflight.ProcessRequest{ContentID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, preflight.StatusOK, resp.Result.Overall)

	_, err = c.Preflight(ctx, preflight.ProcessRequest{ContentID: "corrupt"})
	assert.ErrorIs(t, err, ErrUnrenderable)

	resp, err = c.Process(ctx, preflight.ProcessRequest{ContentID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "r2", resp.RunID)
	assert.Equal(t, 4, resp.DedupeSeenCount)

	status, err := c.Status(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, "running", status.State)

	_, err = c.Status(ctx, "missing")
	assert.Error(t, err)
}
