package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPContentReader provides read access to content via simple-content HTTP API
type HTTPContentReader struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPContentReader creates a new HTTP-based content reader
func NewHTTPContentReader(baseURL string) *HTTPContentReader {
	return &HTTPContentReader{
		baseURL: baseURL,
		// Downloads of large print files can be slow; no overall timeout
		httpClient: &http.Client{},
	}
}

// GetReaderByContentID returns a reader for content by content ID via HTTP API
func (cr *HTTPContentReader) GetReaderByContentID(ctx context.Context, contentID string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/api/v1/contents/%s/download", cr.baseURL, contentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cr.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download content: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// GetReader implements Reader
func (cr *HTTPContentReader) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	return cr.GetReaderByContentID(ctx, key)
}

// Exists checks if content exists by content ID via HTTP API
func (cr *HTTPContentReader) Exists(ctx context.Context, key string) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/contents/%s", cr.baseURL, key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cr.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to check content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return true, nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

// GetMetadata returns size and MIME type from the content details endpoint
func (cr *HTTPContentReader) GetMetadata(ctx context.Context, key string) (*Metadata, error) {
	url := fmt.Sprintf("%s/api/v1/contents/%s/details", cr.baseURL, key)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := cr.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get content details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("details failed with status %d", resp.StatusCode)
	}

	var details struct {
		FileName string `json:"file_name"`
		FileSize int64  `json:"file_size"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("failed to decode details: %w", err)
	}

	return &Metadata{
		Size:        details.FileSize,
		ContentType: details.MimeType,
		FileName:    details.FileName,
	}, nil
}
