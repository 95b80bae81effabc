package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/trellisgw/trellis/internal/console/db/sqlite"
	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

func sampleDocument(port int) gatewaycfg.Document {
	return gatewaycfg.Document{
		Binds: []gatewaycfg.Bind{
			{
				Port: port,
				Listeners: []gatewaycfg.Listener{
					{
						Name:     "web",
						Protocol: gatewaycfg.ProtocolHTTP,
						Routes: []gatewaycfg.Route{
							{
								Name: "default",
								Backends: []gatewaycfg.Backend{
									{Host: &gatewaycfg.HostBackend{Hostname: "upstream.internal", Port: 8080}},
								},
							},
						},
					},
				},
			},
		},
	}
}

func testGateways(t *testing.T) map[string]Gateway {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "console.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(context.Background()); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return map[string]Gateway{
		"memory": NewMemory(),
		"store":  NewStore(store),
	}
}

func TestGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, gw := range testGateways(t) {
		t.Run(name, func(t *testing.T) {
			doc, revision, err := gw.Fetch(ctx)
			if err != nil {
				t.Fatalf("fetch empty: %v", err)
			}
			if revision != "" || len(doc.Binds) != 0 {
				t.Fatalf("expected empty store, got revision %q doc %+v", revision, doc)
			}

			rev1, err := gw.Persist(ctx, sampleDocument(8080), "")
			if err != nil {
				t.Fatalf("persist: %v", err)
			}
			if rev1 == "" {
				t.Fatal("expected non-empty revision")
			}

			doc, revision, err = gw.Fetch(ctx)
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if revision != rev1 {
				t.Fatalf("revision = %q, want %q", revision, rev1)
			}
			if len(doc.Binds) != 1 || doc.Binds[0].Port != 8080 {
				t.Fatalf("unexpected document: %+v", doc)
			}

			rev2, err := gw.Persist(ctx, sampleDocument(9090), rev1)
			if err != nil {
				t.Fatalf("persist update: %v", err)
			}
			if rev2 == rev1 {
				t.Fatal("expected a fresh revision")
			}
		})
	}
}

func TestGatewayRejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	for name, gw := range testGateways(t) {
		t.Run(name, func(t *testing.T) {
			rev1, err := gw.Persist(ctx, sampleDocument(8080), "")
			if err != nil {
				t.Fatalf("persist: %v", err)
			}
			if _, err := gw.Persist(ctx, sampleDocument(9090), rev1); err != nil {
				t.Fatalf("persist update: %v", err)
			}

			_, err = gw.Persist(ctx, sampleDocument(7070), rev1)
			if !errors.Is(err, ErrRevisionConflict) {
				t.Fatalf("expected ErrRevisionConflict, got %v", err)
			}

			doc, _, err := gw.Fetch(ctx)
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if doc.Binds[0].Port != 9090 {
				t.Fatalf("stale write mutated document: %+v", doc)
			}
		})
	}
}

func TestGatewayRejectsInvalidDocument(t *testing.T) {
	ctx := context.Background()
	for name, gw := range testGateways(t) {
		t.Run(name, func(t *testing.T) {
			bad := sampleDocument(8080)
			bad.Binds[0].Port = 0
			if _, err := gw.Persist(ctx, bad, ""); err == nil {
				t.Fatal("expected validation error")
			}
			_, revision, err := gw.Fetch(ctx)
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if revision != "" {
				t.Fatalf("rejected write left revision %q", revision)
			}
		})
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, gw := range testGateways(t) {
		t.Run(name, func(t *testing.T) {
			historian, ok := gw.(Historian)
			if !ok {
				t.Fatalf("%T does not retain history", gw)
			}
			revision := ""
			ports := []int{8080, 9090, 7070}
			revisions := make([]string, 0, len(ports))
			for _, port := range ports {
				next, err := gw.Persist(ctx, sampleDocument(port), revision)
				if err != nil {
					t.Fatalf("persist %d: %v", port, err)
				}
				revision = next
				revisions = append(revisions, next)
			}

			entries, err := historian.History(ctx, 2)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("history returned %d entries, want 2", len(entries))
			}
			if entries[0].Revision != revisions[2] || entries[1].Revision != revisions[1] {
				t.Fatalf("unexpected order: %+v", entries)
			}
			if entries[0].Document.Binds[0].Port != 7070 {
				t.Fatalf("newest snapshot port = %d", entries[0].Document.Binds[0].Port)
			}
			if entries[0].Summary == "" {
				t.Fatal("expected a summary")
			}

			snap, err := historian.Snapshot(ctx, revisions[0])
			if err != nil {
				t.Fatalf("snapshot: %v", err)
			}
			if snap == nil || snap.Document.Binds[0].Port != 8080 {
				t.Fatalf("unexpected snapshot: %+v", snap)
			}

			missing, err := historian.Snapshot(ctx, "not-a-revision")
			if err != nil {
				t.Fatalf("snapshot missing: %v", err)
			}
			if missing != nil {
				t.Fatalf("expected nil for unknown revision, got %+v", missing)
			}
		})
	}
}

func TestHistoryRetentionCap(t *testing.T) {
	ctx := context.Background()
	for name, gw := range testGateways(t) {
		t.Run(name, func(t *testing.T) {
			historian := gw.(Historian)
			revision := ""
			for i := 0; i < historyKeep+5; i++ {
				next, err := gw.Persist(ctx, sampleDocument(8080), revision)
				if err != nil {
					t.Fatalf("persist %d: %v", i, err)
				}
				revision = next
			}
			entries, err := historian.History(ctx, 0)
			if err != nil {
				t.Fatalf("history: %v", err)
			}
			if len(entries) != historyKeep {
				t.Fatalf("retained %d entries, want %d", len(entries), historyKeep)
			}
			if entries[0].Revision != revision {
				t.Fatalf("newest entry %q, want %q", entries[0].Revision, revision)
			}
		})
	}
}

func TestMemoryFetchIsolation(t *testing.T) {
	ctx := context.Background()
	gw := NewMemory()
	if _, err := gw.Persist(ctx, sampleDocument(8080), ""); err != nil {
		t.Fatalf("persist: %v", err)
	}
	doc, _, err := gw.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	doc.Binds[0].Listeners[0].Name = "tampered"

	doc, _, err = gw.Fetch(ctx)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if doc.Binds[0].Listeners[0].Name != "web" {
		t.Fatal("fetch leaked internal state")
	}
}

type documentHost struct {
	mu       sync.Mutex
	payload  []byte
	revision string
	writes   int
	authSeen string
}

func (h *documentHost) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/document", func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.authSeen = r.Header.Get("Authorization")
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("X-Trellis-Revision", h.revision)
			w.Header().Set("Content-Type", "application/json")
			if len(h.payload) == 0 {
				w.Write([]byte(`{}`))
				return
			}
			w.Write(h.payload)
		case http.MethodPut:
			if r.Header.Get("X-Trellis-Revision") != h.revision {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				fmt.Fprintf(w, `{"error":"revision conflict"}`)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			h.writes++
			h.payload = body
			h.revision = fmt.Sprintf("host-rev-%d", h.writes)
			w.Header().Set("X-Trellis-Revision", h.revision)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func (h *documentHost) auth() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.authSeen
}

func TestRemoteGateway(t *testing.T) {
	ctx := context.Background()
	host := &documentHost{}
	srv := httptest.NewServer(host.handler())
	t.Cleanup(srv.Close)

	gw, err := NewRemote(srv.URL, "secret", srv.Client())
	if err != nil {
		t.Fatalf("new remote: %v", err)
	}

	doc, revision, err := gw.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch empty: %v", err)
	}
	if revision != "" || len(doc.Binds) != 0 {
		t.Fatalf("expected empty host, got %q %+v", revision, doc)
	}
	if got := host.auth(); got != "Bearer secret" {
		t.Fatalf("authorization header = %q", got)
	}

	rev1, err := gw.Persist(ctx, sampleDocument(8080), "")
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if rev1 != "host-rev-1" {
		t.Fatalf("revision = %q", rev1)
	}

	doc, revision, err = gw.Fetch(ctx)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if revision != rev1 || len(doc.Binds) != 1 {
		t.Fatalf("unexpected fetch: %q %+v", revision, doc)
	}

	_, err = gw.Persist(ctx, sampleDocument(9090), "stale")
	if !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("expected ErrRevisionConflict, got %v", err)
	}
}

func TestRemoteRejectsBadEndpoint(t *testing.T) {
	if _, err := NewRemote("", "", nil); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewRemote("not-a-url", "", nil); err == nil {
		t.Fatal("expected error for endpoint without scheme")
	}
}
