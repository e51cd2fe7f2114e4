package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPStore implements ArtifactStore against an S3-compatible or plain
// HTTP object endpoint: PUT to write, HEAD to check, DELETE to remove.
// Objects are served from a separate public base URL (typically a CDN).
type HTTPStore struct {
	uploadURL  string
	publicURL  string
	authHeader string
	authValue  string
	httpClient *http.Client
}

// HTTPConfig holds connection settings for the artifact endpoint.
type HTTPConfig struct {
	// UploadURL is the write endpoint base, e.g. "http://localhost:9000/fable".
	UploadURL string
	// PublicURL is the read base the stored URLs point at. Defaults to
	// UploadURL when empty.
	PublicURL string
	// AuthHeader/AuthValue set a static auth header on writes, e.g.
	// "Authorization", "Bearer ...". Optional.
	AuthHeader string
	AuthValue  string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional (tests)
}

// NewHTTPStore creates a new HTTP artifact store.
func NewHTTPStore(cfg HTTPConfig) *HTTPStore {
	if cfg.PublicURL == "" {
		cfg.PublicURL = cfg.UploadURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPStore{
		uploadURL:  strings.TrimSuffix(cfg.UploadURL, "/"),
		publicURL:  strings.TrimSuffix(cfg.PublicURL, "/"),
		authHeader: cfg.AuthHeader,
		authValue:  cfg.AuthValue,
		httpClient: httpClient,
	}
}

// Put stores data at path and returns its public URL.
func (s *HTTPStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "PUT", s.uploadURL+"/"+path, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", CacheControl)
	if s.authHeader != "" {
		req.Header.Set(s.authHeader, s.authValue)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, string(body))
	}
	return s.PublicURL(path), nil
}

// Exists reports whether an artifact is stored at path.
func (s *HTTPStore) Exists(ctx context.Context, path string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, "HEAD", s.uploadURL+"/"+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if s.authHeader != "" {
		req.Header.Set(s.authHeader, s.authValue)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected status %d checking %s", resp.StatusCode, path)
	}
}

// Delete removes the artifact at path.
func (s *HTTPStore) Delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE", s.uploadURL+"/"+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if s.authHeader != "" {
		req.Header.Set(s.authHeader, s.authValue)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete failed (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// PublicURL returns the read URL for path.
func (s *HTTPStore) PublicURL(path string) string {
	return s.publicURL + "/" + path
}

var _ ArtifactStore = (*HTTPStore)(nil)
