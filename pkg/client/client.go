// Package client is an HTTP client for the preflight service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tendant/print-preflight/pkg/preflight"
)

// ErrUnrenderable is returned when the service could not render the file
// at all; present it to users as an unreadable or corrupt file
var ErrUnrenderable = errors.New("file could not be rendered")

// Client is an HTTP client for triggering preflight runs
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new preflight client
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Synchronous preflight renders PDFs; allow for the slowest strategy chain
			Timeout: 5 * time.Minute,
		},
	}
}

// NewWithHTTPClient creates a new preflight client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Preflight runs a synchronous preflight and returns the full result
func (c *Client) Preflight(ctx context.Context, req preflight.ProcessRequest) (*preflight.ProcessResponse, error) {
	return c.post(ctx, "/v1/preflight", req, http.StatusOK)
}

// Process enqueues an asynchronous preflight
func (c *Client) Process(ctx context.Context, req preflight.ProcessRequest) (*preflight.ProcessResponse, error) {
	return c.post(ctx, "/v1/process", req, http.StatusAccepted)
}

// RunStatus is the state of an asynchronous run
type RunStatus struct {
	RunID  string `json:"run_id"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Status fetches the state of an asynchronous run
func (c *Client) Status(ctx context.Context, runID string) (*RunStatus, error) {
	url := fmt.Sprintf("%s/v1/runs/%s", c.baseURL, runID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var status RunStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &status, nil
}

func (c *Client) post(ctx context.Context, path string, req preflight.ProcessRequest, want int) (*preflight.ProcessResponse, error) {
	if req.Job == "" {
		req.Job = preflight.JobPreflight
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrUnrenderable, bytes.TrimSpace(bodyBytes))
	}
	if resp.StatusCode != want {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var processResp preflight.ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&processResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &processResp, nil
}
