package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trellisgw/trellis/internal/console/docstore"
	"github.com/trellisgw/trellis/internal/console/engine"
	"github.com/trellisgw/trellis/internal/console/eventbus"
	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedDocument() gatewaycfg.Document {
	return gatewaycfg.Document{
		Binds: []gatewaycfg.Bind{
			{
				Port: 8080,
				Listeners: []gatewaycfg.Listener{
					{
						Name:     "web",
						Protocol: gatewaycfg.ProtocolHTTP,
						Routes: []gatewaycfg.Route{
							{
								Name:     "default",
								Backends: []gatewaycfg.Backend{{Ref: "billing"}},
							},
						},
					},
				},
			},
		},
		Backends: []gatewaycfg.NamedBackend{
			{
				Name:    "billing",
				Backend: gatewaycfg.Backend{Host: &gatewaycfg.HostBackend{Hostname: "billing.internal", Port: 8443}},
			},
		},
	}
}

func newTestAPI(t *testing.T) (http.Handler, string) {
	t.Helper()
	gw := docstore.NewMemory()
	rev, err := gw.Persist(context.Background(), seedDocument(), "")
	if err != nil {
		t.Fatalf("seed document: %v", err)
	}
	eng, err := engine.New(engine.Params{Gateway: gw, Bus: eventbus.NewMemory(), Logger: testLogger()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return New(testLogger(), eng, eventbus.NewMemory()), rev
}

func doJSON(t *testing.T, handler http.Handler, method, target, revision string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if revision != "" {
		req.Header.Set(revisionHeader, revision)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEditResponse(t *testing.T, rec *httptest.ResponseRecorder) editResponse {
	t.Helper()
	var resp editResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode edit response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func editBody(value map[string]any) map[string]any {
	return map[string]any{"value": value}
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestAPI(t)
	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestHierarchyEndpoint(t *testing.T) {
	handler, rev := newTestAPI(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/hierarchy", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("hierarchy status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(revisionHeader); got != rev {
		t.Fatalf("revision header = %q, want %q", got, rev)
	}
	var snap engine.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Revision != rev {
		t.Fatalf("snapshot revision = %q, want %q", snap.Revision, rev)
	}
	if snap.Tree.Stats.Binds != 1 || snap.Tree.Stats.Listeners != 1 || snap.Tree.Stats.Routes != 1 {
		t.Fatalf("unexpected stats %+v", snap.Tree.Stats)
	}
}

func TestStatsEndpoint(t *testing.T) {
	handler, rev := newTestAPI(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/stats", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if resp.Revision != rev {
		t.Fatalf("stats revision = %q, want %q", resp.Revision, rev)
	}
	if resp.Stats.Backends != 1 {
		t.Fatalf("stats backends = %d, want 1", resp.Stats.Backends)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	handler, rev := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/document", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get document status = %d", rec.Code)
	}
	if got := rec.Header().Get(revisionHeader); got != rev {
		t.Fatalf("revision header = %q, want %q", got, rev)
	}
	var doc gatewaycfg.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if len(doc.Binds) != 1 || doc.Binds[0].Port != 8080 {
		t.Fatalf("unexpected document %+v", doc)
	}

	replacement := seedDocument()
	replacement.Binds[0].Port = 9443
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/document", rev, replacement)
	if rec.Code != http.StatusOK {
		t.Fatalf("put document status = %d body %s", rec.Code, rec.Body.String())
	}
	resp := decodeEditResponse(t, rec)
	if resp.Revision == "" || resp.Revision == rev {
		t.Fatalf("put document revision = %q", resp.Revision)
	}

	// The first revision is stale now.
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/document", rev, seedDocument())
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale put status = %d, want 409", rec.Code)
	}

	bad := seedDocument()
	bad.Binds[0].Port = 0
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/document", "", bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid put status = %d, want 400", rec.Code)
	}
}

func TestNodeEditFlow(t *testing.T) {
	handler, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/binds", "", editBody(map[string]any{"port": 9090}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bind status = %d body %s", rec.Code, rec.Body.String())
	}
	resp := decodeEditResponse(t, rec)
	if resp.Stats.Binds != 2 {
		t.Fatalf("binds after create = %d, want 2", resp.Stats.Binds)
	}
	if rec.Header().Get(revisionHeader) != resp.Revision {
		t.Fatalf("revision header %q != body revision %q", rec.Header().Get(revisionHeader), resp.Revision)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/binds/9090/listeners", "", editBody(map[string]any{"name": "metrics", "protocol": "HTTP"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create listener status = %d body %s", rec.Code, rec.Body.String())
	}
	if resp = decodeEditResponse(t, rec); resp.Stats.Listeners != 2 {
		t.Fatalf("listeners after create = %d, want 2", resp.Stats.Listeners)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/binds/9090/listeners/0/routes/http", "", editBody(map[string]any{"name": "scrape"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create route status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/binds/9090/listeners/0/routes/http/0/backends", "",
		editBody(map[string]any{"host": map[string]any{"hostname": "prom.internal", "port": 9100}}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create backend status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/binds/9090/listeners/0/routes/http/0/backends/0", "",
		editBody(map[string]any{"host": map[string]any{"hostname": "prom.internal", "port": 9200}}))
	if rec.Code != http.StatusOK {
		t.Fatalf("update backend status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/binds/9090/listeners/0/routes/http/0/backends/0", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete backend status = %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/binds/9090", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete bind status = %d body %s", rec.Code, rec.Body.String())
	}
	if resp = decodeEditResponse(t, rec); resp.Stats.Binds != 1 {
		t.Fatalf("binds after delete = %d, want 1", resp.Stats.Binds)
	}
}

func TestEditRejections(t *testing.T) {
	handler, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/binds", "", map[string]any{"keep": []string{"port"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing value status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/binds/abc", "", editBody(map[string]any{"port": 8080}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad port segment status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/binds/8080/listeners/0/routes/grpc", "", editBody(map[string]any{"name": "x"}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad route kind status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/binds/9999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown bind delete status = %d, want 404", rec.Code)
	}

	// The seed listener already carries HTTP routes, so a TCP route is refused.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/binds/8080/listeners/0/routes/tcp", "",
		editBody(map[string]any{"name": "raw", "backends": []map[string]any{{"host": map[string]any{"hostname": "db.internal", "port": 5432}}}}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("mixed route kinds status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestStaleRevisionGuard(t *testing.T) {
	handler, seedRev := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/binds", seedRev, editBody(map[string]any{"port": 9090}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first edit status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/binds", seedRev, editBody(map[string]any{"port": 9091}))
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale edit status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestNamedBackendEndpoints(t *testing.T) {
	handler, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/backends", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list backends status = %d", rec.Code)
	}
	var backends []gatewaycfg.NamedBackend
	if err := json.Unmarshal(rec.Body.Bytes(), &backends); err != nil {
		t.Fatalf("decode backends: %v", err)
	}
	if len(backends) != 1 || backends[0].Name != "billing" {
		t.Fatalf("unexpected backends %+v", backends)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/backends/ledger", "",
		map[string]any{"service": map[string]any{"name": "ledger", "namespace": "payments", "port": 7070}})
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert backend status = %d body %s", rec.Code, rec.Body.String())
	}
	if resp := decodeEditResponse(t, rec); resp.Stats.Backends != 2 {
		t.Fatalf("backends after upsert = %d, want 2", resp.Stats.Backends)
	}

	// A named backend must be concrete.
	rec = doJSON(t, handler, http.MethodPut, "/api/v1/backends/alias", "", map[string]any{"backend": "ledger"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reference upsert status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/backends/billing", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete backend status = %d", rec.Code)
	}
	if resp := decodeEditResponse(t, rec); resp.Stats.BrokenBackendRefs != 1 {
		t.Fatalf("broken refs after delete = %d, want 1", resp.Stats.BrokenBackendRefs)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/backends/billing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestPolicyEndpoints(t *testing.T) {
	handler, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPut, "/api/v1/policies/cors-default", "",
		map[string]any{"kind": "cors", "rules": map[string]any{"allowOrigins": []string{"*"}}})
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert policy status = %d body %s", rec.Code, rec.Body.String())
	}
	if resp := decodeEditResponse(t, rec); resp.Stats.Policies != 1 {
		t.Fatalf("policies after upsert = %d, want 1", resp.Stats.Policies)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/policies", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list policies status = %d", rec.Code)
	}
	var policies []gatewaycfg.Policy
	if err := json.Unmarshal(rec.Body.Bytes(), &policies); err != nil {
		t.Fatalf("decode policies: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "cors-default" {
		t.Fatalf("unexpected policies %+v", policies)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/policies/cors-default", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete policy status = %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/policies/cors-default", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestSchemaEndpoints(t *testing.T) {
	handler, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/schemas", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list schemas status = %d", rec.Code)
	}
	var listing struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode categories: %v", err)
	}
	found := false
	for _, c := range listing.Categories {
		if c == "backend" {
			found = true
		}
	}
	if !found {
		t.Fatalf("backend category missing from %v", listing.Categories)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/schemas/backend", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get schema status = %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/schemas/bogus", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown schema status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/schemas/backend/resolve", "",
		map[string]any{"value": map[string]any{"host": map[string]any{"hostname": "a.internal", "port": 80}}})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve status = %d body %s", rec.Code, rec.Body.String())
	}
	var result engine.ResolveResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode resolve result: %v", err)
	}
	if result.Resolution.Shape != "alternatives" {
		t.Fatalf("resolution shape = %q, want alternatives", result.Resolution.Shape)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/schemas/bogus/resolve", "", map[string]any{"value": map[string]any{}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("resolve unknown category status = %d, want 404", rec.Code)
	}

	selection := 1
	enabled := true
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/schemas/backend/resolve", "",
		map[string]any{"value": map[string]any{}, "selection": selection, "enabled": enabled})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("selection+enabled status = %d, want 400", rec.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	handler, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/binds", "", editBody(map[string]any{"port": 9090}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("edit status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/document/history?limit=10", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d body %s", rec.Code, rec.Body.String())
	}
	var entries []docstore.HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}
	if len(entries[0].Document.Binds) != 2 {
		t.Fatalf("newest entry binds = %d, want 2", len(entries[0].Document.Binds))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/document/history?limit=oops", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/document/history/"+entries[1].Revision, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d body %s", rec.Code, rec.Body.String())
	}
	var entry docstore.HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(entry.Document.Binds) != 1 {
		t.Fatalf("oldest snapshot binds = %d, want 1", len(entry.Document.Binds))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/document/history/not-a-revision", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown revision status = %d, want 404", rec.Code)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	handler, _ := newTestAPI(t)
	rec := doJSON(t, handler, http.MethodGet, "/openapi.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("openapi status = %d", rec.Code)
	}
	var spec struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &spec); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	if spec.OpenAPI != "3.0.3" {
		t.Fatalf("openapi version = %q", spec.OpenAPI)
	}
	for _, path := range []string{"/api/v1/hierarchy", "/api/v1/document", "/api/v1/binds", "/api/v1/backends/{name}"} {
		if _, ok := spec.Paths[path]; !ok {
			t.Fatalf("openapi paths missing %s", path)
		}
	}
}

func TestAPIKeyGuard(t *testing.T) {
	t.Setenv("TRELLIS_API_KEY", "sekrit")
	handler, _ := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/stats", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("X-Trellis-API-Key", "sekrit")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("header key status = %d, want 200", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stats?api_key=sekrit", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("query key status = %d, want 200", rec.Code)
	}
}

func TestCIDRGuard(t *testing.T) {
	// httptest requests originate from 192.0.2.1.
	t.Setenv("TRELLIS_API_ALLOW_CIDR", "10.0.0.0/8")
	blocked, _ := newTestAPI(t)
	rec := doJSON(t, blocked, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("blocked status = %d, want 403", rec.Code)
	}

	t.Setenv("TRELLIS_API_ALLOW_CIDR", "192.0.2.0/24")
	allowed, _ := newTestAPI(t)
	rec = doJSON(t, allowed, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed status = %d, want 200", rec.Code)
	}
}

func TestEventStreamRequiresBus(t *testing.T) {
	gw := docstore.NewMemory()
	eng, err := engine.New(engine.Params{Gateway: gw, Logger: testLogger()})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	handler := New(testLogger(), eng, nil)
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/events/document", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("sse without bus status = %d, want 503", rec.Code)
	}
}
