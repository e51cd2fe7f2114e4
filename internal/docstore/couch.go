package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CouchClient is a CouchDB HTTP client implementing Store. Each collection
// maps to one database; the document revision is CouchDB's _rev, which
// gives compare-and-swap semantics on every write.
type CouchClient struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
}

// CouchConfig holds connection settings for CouchDB.
type CouchConfig struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

// NewCouchClient creates a new CouchDB client.
func NewCouchClient(cfg CouchConfig) *CouchClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CouchClient{
		url:      strings.TrimSuffix(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// HealthCheck checks if CouchDB is up.
func (c *CouchClient) HealthCheck(ctx context.Context) error {
	resp, err := c.do(ctx, "GET", "/_up", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// EnsureCollection creates the database if it does not exist.
func (c *CouchClient) EnsureCollection(ctx context.Context, collection string) error {
	resp, err := c.do(ctx, "PUT", "/"+url.PathEscape(collection), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 201 created, 412 already exists.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusPreconditionFailed {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to create database %s (status %d): %s", collection, resp.StatusCode, string(body))
	}
	return nil
}

// Get fetches a document and returns its revision.
func (c *CouchClient) Get(ctx context.Context, collection, id string, out any) (string, error) {
	resp, err := c.do(ctx, "GET", c.docPath(collection, id), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", ErrNotFound
	default:
		return "", couchError(resp.StatusCode, body)
	}

	var meta struct {
		Rev string `json:"_rev"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("failed to unmarshal document metadata: %w", err)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return "", fmt.Errorf("failed to unmarshal document: %w", err)
		}
	}
	return meta.Rev, nil
}

// Put writes a document. An empty rev creates; a non-empty rev must match
// the stored revision or ErrConflict is returned.
func (c *CouchClient) Put(ctx context.Context, collection, id, rev string, doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	// Inject _id and _rev without requiring them on the caller's type.
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("document must be a JSON object: %w", err)
	}
	fields["_id"] = id
	if rev != "" {
		fields["_rev"] = rev
	} else {
		delete(fields, "_rev")
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document: %w", err)
	}

	resp, err := c.do(ctx, "PUT", c.docPath(collection, id), bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusAccepted:
	case http.StatusConflict:
		return "", ErrConflict
	case http.StatusNotFound:
		return "", ErrNotFound
	default:
		return "", couchError(resp.StatusCode, body)
	}

	var result struct {
		Rev string `json:"rev"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal write result: %w", err)
	}
	return result.Rev, nil
}

// Delete removes a document at the given revision.
func (c *CouchClient) Delete(ctx context.Context, collection, id, rev string) error {
	path := c.docPath(collection, id) + "?rev=" + url.QueryEscape(rev)
	resp, err := c.do(ctx, "DELETE", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		body, _ := io.ReadAll(resp.Body)
		return couchError(resp.StatusCode, body)
	}
}

// List pages through all documents in a collection in _id order.
func (c *CouchClient) List(ctx context.Context, collection string, opts ListOptions) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("include_docs", "true")
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Skip > 0 {
		q.Set("skip", fmt.Sprintf("%d", opts.Skip))
	}
	if opts.Descending {
		q.Set("descending", "true")
	}

	path := "/" + url.PathEscape(collection) + "/_all_docs?" + q.Encode()
	resp, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, couchError(resp.StatusCode, body)
	}

	var result struct {
		Rows []struct {
			ID  string          `json:"id"`
			Doc json.RawMessage `json:"doc"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal list result: %w", err)
	}

	docs := make([]json.RawMessage, 0, len(result.Rows))
	for _, row := range result.Rows {
		// Skip design documents.
		if strings.HasPrefix(row.ID, "_design/") || len(row.Doc) == 0 {
			continue
		}
		docs = append(docs, row.Doc)
	}
	return docs, nil
}

// Find runs a mango selector query.
func (c *CouchClient) Find(ctx context.Context, collection string, q FindQuery) ([]json.RawMessage, error) {
	reqBody := map[string]any{
		"selector": q.Selector,
	}
	if q.Limit > 0 {
		reqBody["limit"] = q.Limit
	}
	if q.Skip > 0 {
		reqBody["skip"] = q.Skip
	}
	if len(q.Sort) > 0 {
		reqBody["sort"] = q.Sort
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	resp, err := c.do(ctx, "POST", "/"+url.PathEscape(collection)+"/_find", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, couchError(resp.StatusCode, body)
	}

	var result struct {
		Docs []json.RawMessage `json:"docs"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal find result: %w", err)
	}
	return result.Docs, nil
}

func (c *CouchClient) docPath(collection, id string) string {
	return "/" + url.PathEscape(collection) + "/" + url.PathEscape(id)
}

func (c *CouchClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func couchError(status int, body []byte) error {
	var errResp struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("couchdb error (status %d): %s: %s", status, errResp.Error, errResp.Reason)
	}
	return fmt.Errorf("couchdb error (status %d): %s", status, string(body))
}

var _ Store = (*CouchClient)(nil)
