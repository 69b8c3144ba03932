package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// HTTPDerivedWriter provides write access for derived content via simple-content HTTP API
type HTTPDerivedWriter struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPDerivedWriter creates a new HTTP-based derived content writer
func NewHTTPDerivedWriter(baseURL string) *HTTPDerivedWriter {
	return &HTTPDerivedWriter{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// HasDerived lists the parent's derived content and looks for the variant
func (dw *HTTPDerivedWriter) HasDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int) (bool, error) {
	u := fmt.Sprintf("%s/api/v1/contents/%s/derived?derivation_type=%s",
		dw.baseURL, contentID, url.QueryEscape(derivedType))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := dw.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to list derived content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("list derived failed with status %d", resp.StatusCode)
	}

	var derived []struct {
		DerivationType string `json:"derivation_type"`
		Variant        string `json:"variant"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&derived); err != nil {
		return false, fmt.Errorf("failed to decode derived list: %w", err)
	}

	variant := Variant(derivedType, derivedVersion)
	for _, d := range derived {
		if d.DerivationType == derivedType && d.Variant == variant {
			return true, nil
		}
	}
	return false, nil
}

// PutDerived uploads derived content as a multipart form, so binary rasters
// survive the trip
func (dw *HTTPDerivedWriter) PutDerived(ctx context.Context, contentID string, derivedType string, derivedVersion int, r io.Reader, meta map[string]string) (string, error) {
	variant := Variant(derivedType, derivedVersion)

	fileName := meta["file_name"]
	if fileName == "" {
		fileName = fmt.Sprintf("derived_%s.dat", derivedType)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"parent_id":       contentID,
		"derivation_type": derivedType,
		"variant":         variant,
	}
	for k, v := range meta {
		if _, taken := fields[k]; !taken {
			fields[k] = v
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	u := fmt.Sprintf("%s/api/v1/contents/%s/derived", dw.baseURL, contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := dw.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create derived content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("create derived failed with status %d: %s", resp.StatusCode, string(b))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("no ID in response")
	}

	return result.ID, nil
}
