package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// revisionHeader carries the revision token: the current revision on
// responses, the expected revision on PUT requests.
const revisionHeader = "X-Trellis-Revision"

// APIError captures error responses returned by a remote document host.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("document host returned status %d", e.Status)
}

// Remote is a Gateway backed by a vined document host (or any admin endpoint
// serving GET/PUT /v1/document with revision headers).
type Remote struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

var _ Gateway = (*Remote)(nil)

// NewRemote creates a configured remote gateway.
func NewRemote(endpoint, apiKey string, client *http.Client) (*Remote, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("document host endpoint is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse document host endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("document host endpoint must include scheme and host")
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	base := *parsed
	base.Path = strings.TrimRight(parsed.Path, "/")
	return &Remote{baseURL: &base, apiKey: strings.TrimSpace(apiKey), httpClient: client}, nil
}

// Fetch implements Gateway.
func (r *Remote) Fetch(ctx context.Context) (gatewaycfg.Document, string, error) {
	req, err := r.newRequest(ctx, http.MethodGet, "/v1/document", nil)
	if err != nil {
		return gatewaycfg.Document{}, "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return gatewaycfg.Document{}, "", fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gatewaycfg.Document{}, "", decodeError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gatewaycfg.Document{}, "", fmt.Errorf("read document: %w", err)
	}
	doc, err := gatewaycfg.Unmarshal(body)
	if err != nil {
		return gatewaycfg.Document{}, "", err
	}
	return doc, resp.Header.Get(revisionHeader), nil
}

// Persist implements Gateway.
func (r *Remote) Persist(ctx context.Context, doc gatewaycfg.Document, expectedRevision string) (string, error) {
	payload, err := gatewaycfg.Marshal(doc)
	if err != nil {
		return "", err
	}
	req, err := r.newRequest(ctx, http.MethodPut, "/v1/document", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(revisionHeader, expectedRevision)
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("persist document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	revision := resp.Header.Get(revisionHeader)
	if revision == "" {
		return "", fmt.Errorf("document host response missing %s header", revisionHeader)
	}
	return revision, nil
}

func (r *Remote) newRequest(ctx context.Context, method, suffix string, body io.Reader) (*http.Request, error) {
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}
	full := *r.baseURL
	full.Path = path.Clean(r.baseURL.Path + suffix)
	req, err := http.NewRequestWithContext(ctx, method, full.String(), body)
	if err != nil {
		return nil, err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("%s: %w", apiErr.Error(), ErrRevisionConflict)
	}
	return apiErr
}
