package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trellisgw/trellis/internal/console/docstore"
	"github.com/trellisgw/trellis/internal/console/events"
	"github.com/trellisgw/trellis/internal/console/hierarchy"
	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// revisionHeader mirrors the console API's revision header.
const revisionHeader = "X-Trellis-Revision"

// Client wraps REST access to the trellisd console API.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// New creates a client with the provided base URL (e.g. http://127.0.0.1:7070).
func New(rawURL, apiKey string) (*Client, error) {
	if rawURL == "" {
		rawURL = "http://127.0.0.1:7070"
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	return &Client{
		baseURL: parsed,
		apiKey:  strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Snapshot mirrors the hierarchy response: the rebuilt tree plus the document
// revision it reflects.
type Snapshot struct {
	Tree     hierarchy.Tree `json:"tree"`
	Revision string         `json:"revision"`
}

// StatsResult mirrors the stats response.
type StatsResult struct {
	Revision string          `json:"revision"`
	Stats    hierarchy.Stats `json:"stats"`
}

// EditResult acknowledges a committed mutation.
type EditResult struct {
	Revision string          `json:"revision"`
	Stats    hierarchy.Stats `json:"stats"`
}

// ResolveRequest mirrors the schema resolve request body.
type ResolveRequest struct {
	Pointer   string `json:"pointer,omitempty"`
	Value     any    `json:"value,omitempty"`
	Selection *int   `json:"selection,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// DocumentEvent is a document change event streamed from the console.
type DocumentEvent = events.DocumentEvent

// HistoryEntry is one persisted document revision.
type HistoryEntry = docstore.HistoryEntry

func (c *Client) Hierarchy(ctx context.Context) (*Snapshot, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/hierarchy", nil)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if _, err := c.do(req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Stats(ctx context.Context) (*StatsResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/stats", nil)
	if err != nil {
		return nil, err
	}
	var result StatsResult
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Document fetches the whole configuration document and its revision.
func (c *Client) Document(ctx context.Context) (gatewaycfg.Document, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/document", nil)
	if err != nil {
		return gatewaycfg.Document{}, "", err
	}
	var doc gatewaycfg.Document
	header, err := c.do(req, &doc)
	if err != nil {
		return gatewaycfg.Document{}, "", err
	}
	return doc, header.Get(revisionHeader), nil
}

// ReplaceDocument swaps the whole document. A non-empty revision makes the
// replace conditional on the server still being at that revision.
func (c *Client) ReplaceDocument(ctx context.Context, doc gatewaycfg.Document, revision string) (*EditResult, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/v1/document", doc)
	if err != nil {
		return nil, err
	}
	setRevision(req, revision)
	var result EditResult
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	target := "/api/v1/document/history"
	if limit > 0 {
		target = fmt.Sprintf("%s?limit=%d", target, limit)
	}
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	var entries []HistoryEntry
	if _, err := c.do(req, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// HistorySnapshot fetches one historical revision of the document.
func (c *Client) HistorySnapshot(ctx context.Context, revision string) (*HistoryEntry, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/document/history/"+url.PathEscape(revision), nil)
	if err != nil {
		return nil, err
	}
	var entry HistoryEntry
	if _, err := c.do(req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateNode appends a node to the collection the address points into. The
// address's index component is ignored; for routes and backends its route
// kind selects the collection.
func (c *Client) CreateNode(ctx context.Context, addr gatewaycfg.Address, value map[string]any, keep []string, revision string) (*EditResult, error) {
	return c.edit(ctx, http.MethodPost, nodePath(addr, true), value, keep, revision)
}

// UpdateNode replaces the node at the address.
func (c *Client) UpdateNode(ctx context.Context, addr gatewaycfg.Address, value map[string]any, keep []string, revision string) (*EditResult, error) {
	return c.edit(ctx, http.MethodPut, nodePath(addr, false), value, keep, revision)
}

// DeleteNode removes the node at the address and its subtree.
func (c *Client) DeleteNode(ctx context.Context, addr gatewaycfg.Address, revision string) (*EditResult, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, nodePath(addr, false), nil)
	if err != nil {
		return nil, err
	}
	setRevision(req, revision)
	var result EditResult
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Backends(ctx context.Context) ([]gatewaycfg.NamedBackend, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/backends", nil)
	if err != nil {
		return nil, err
	}
	var backends []gatewaycfg.NamedBackend
	if _, err := c.do(req, &backends); err != nil {
		return nil, err
	}
	return backends, nil
}

func (c *Client) UpsertBackend(ctx context.Context, name string, value map[string]any, revision string) (*EditResult, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/v1/backends/"+url.PathEscape(name), value)
	if err != nil {
		return nil, err
	}
	setRevision(req, revision)
	var result EditResult
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteBackend(ctx context.Context, name, revision string) (*EditResult, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/backends/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	setRevision(req, revision)
	var result EditResult
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Policies(ctx context.Context) ([]gatewaycfg.Policy, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/policies", nil)
	if err != nil {
		return nil, err
	}
	var policies []gatewaycfg.Policy
	if _, err := c.do(req, &policies); err != nil {
		return nil, err
	}
	return policies, nil
}

func (c *Client) UpsertPolicy(ctx context.Context, name string, value map[string]any, revision string) (*EditResult, error) {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/v1/policies/"+url.PathEscape(name), value)
	if err != nil {
		return nil, err
	}
	setRevision(req, revision)
	var result EditResult
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeletePolicy(ctx context.Context, name, revision string) (*EditResult, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/policies/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	setRevision(req, revision)
	var result EditResult
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Categories(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/schemas", nil)
	if err != nil {
		return nil, err
	}
	var listing struct {
		Categories []string `json:"categories"`
	}
	if _, err := c.do(req, &listing); err != nil {
		return nil, err
	}
	return listing.Categories, nil
}

func (c *Client) Schema(ctx context.Context, category string) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/schemas/"+url.PathEscape(category), nil)
	if err != nil {
		return nil, err
	}
	var schema json.RawMessage
	if _, err := c.do(req, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (c *Client) Resolve(ctx context.Context, category string, payload ResolveRequest) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/schemas/"+url.PathEscape(category)+"/resolve", payload)
	if err != nil {
		return nil, err
	}
	var result json.RawMessage
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// OpenAPIDocument fetches the console's OpenAPI description as raw JSON.
func (c *Client) OpenAPIDocument(ctx context.Context) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/openapi.json", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: fetch openapi: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: fetch openapi http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: read openapi: %w", err)
	}
	return data, nil
}

// WatchDocumentEvents streams document change events and invokes handler for
// each payload until the context is cancelled or the server closes the
// connection.
func (c *Client) WatchDocumentEvents(ctx context.Context, handler func(DocumentEvent)) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/events/document", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: watch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: watch events http %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event DocumentEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return fmt.Errorf("client: decode event: %w", err)
		}
		if handler != nil {
			handler(event)
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return fmt.Errorf("client: event stream error: %w", err)
		}
	}

	return nil
}

func (c *Client) edit(ctx context.Context, method, path string, value map[string]any, keep []string, revision string) (*EditResult, error) {
	body := struct {
		Value map[string]any `json:"value"`
		Keep  []string       `json:"keep,omitempty"`
	}{Value: value, Keep: keep}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	setRevision(req, revision)
	var result EditResult
	if _, err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// nodePath maps an address to its REST path. For creates the address names
// the collection to append into and its last index is ignored.
func nodePath(addr gatewaycfg.Address, create bool) string {
	switch addr.NodeType() {
	case gatewaycfg.NodeListener:
		if create {
			return fmt.Sprintf("/api/v1/binds/%d/listeners", addr.Port)
		}
		return fmt.Sprintf("/api/v1/binds/%d/listeners/%d", addr.Port, addr.Listener)
	case gatewaycfg.NodeRoute:
		if create {
			return fmt.Sprintf("/api/v1/binds/%d/listeners/%d/routes/%s", addr.Port, addr.Listener, addr.RouteKind)
		}
		return fmt.Sprintf("/api/v1/binds/%d/listeners/%d/routes/%s/%d", addr.Port, addr.Listener, addr.RouteKind, addr.Route)
	case gatewaycfg.NodeBackend:
		if create {
			return fmt.Sprintf("/api/v1/binds/%d/listeners/%d/routes/%s/%d/backends", addr.Port, addr.Listener, addr.RouteKind, addr.Route)
		}
		return fmt.Sprintf("/api/v1/binds/%d/listeners/%d/routes/%s/%d/backends/%d", addr.Port, addr.Listener, addr.RouteKind, addr.Route, addr.Backend)
	default:
		if create {
			return "/api/v1/binds"
		}
		return fmt.Sprintf("/api/v1/binds/%d", addr.Port)
	}
}

func setRevision(req *http.Request, revision string) {
	if revision != "" {
		req.Header.Set(revisionHeader, revision)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	ref := &url.URL{Path: path}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		ref.Path = path[:i]
		ref.RawQuery = path[i+1:]
	}
	resolved := c.baseURL.ResolveReference(ref)
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, resolved.String(), &buf)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Trellis-API-Key", c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) (http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return nil, fmt.Errorf("client: http %d", resp.StatusCode)
		}
		if msg, ok := apiErr["error"].(string); ok {
			return nil, fmt.Errorf("client: http %d: %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("client: http %d", resp.StatusCode)
	}

	if out == nil {
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("client: decode response: %w", err)
	}
	return resp.Header, nil
}
