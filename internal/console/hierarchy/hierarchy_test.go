package hierarchy

import (
	"testing"

	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

func testDocument() gatewaycfg.Document {
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
								Name: "api",
								Backends: []gatewaycfg.Backend{
									{Host: &gatewaycfg.HostBackend{Hostname: "10.0.0.5", Port: 3000}},
									{Ref: "billing"},
								},
							},
							{Name: "static"},
						},
					},
				},
			},
			{
				Port: 9443,
				Listeners: []gatewaycfg.Listener{
					{
						Name:     "db",
						Protocol: gatewaycfg.ProtocolTLS,
						TCPRoutes: []gatewaycfg.TCPRoute{
							{Name: "postgres", Backends: []gatewaycfg.Backend{{Service: &gatewaycfg.ServiceBackend{Name: "pg", Namespace: "prod", Port: 5432}}}},
						},
					},
				},
			},
		},
		Backends: []gatewaycfg.NamedBackend{
			{Name: "billing", Backend: gatewaycfg.Backend{Host: &gatewaycfg.HostBackend{Hostname: "billing.internal", Port: 8443}}},
		},
		Policies: []gatewaycfg.Policy{{Name: "cors"}},
	}
}

func TestBuildEmptyDocument(t *testing.T) {
	tree := Build(gatewaycfg.Document{})
	if len(tree.Binds) != 0 {
		t.Fatalf("expected no binds, got %d", len(tree.Binds))
	}
	if tree.Stats != (Stats{}) {
		t.Fatalf("expected zero stats, got %+v", tree.Stats)
	}
}

func TestBuildStats(t *testing.T) {
	tree := Build(testDocument())
	want := Stats{Binds: 2, Listeners: 2, Routes: 3, Backends: 1, Policies: 1}
	if tree.Stats != want {
		t.Fatalf("stats = %+v, want %+v", tree.Stats, want)
	}
}

func TestRouteTotalsMatchDocument(t *testing.T) {
	doc := testDocument()
	tree := Build(doc)
	sum := 0
	for _, bind := range doc.Binds {
		for _, l := range bind.Listeners {
			sum += len(l.Routes) + len(l.TCPRoutes)
		}
	}
	if tree.Stats.Routes != sum {
		t.Fatalf("stats.Routes = %d, want %d", tree.Stats.Routes, sum)
	}
}

func TestRouteOrderingAndIndexSpaces(t *testing.T) {
	doc := gatewaycfg.Document{Binds: []gatewaycfg.Bind{{
		Port: 80,
		Listeners: []gatewaycfg.Listener{{
			Routes:    []gatewaycfg.Route{{Name: "h0"}, {Name: "h1"}},
			TCPRoutes: []gatewaycfg.TCPRoute{{Name: "t0"}},
		}},
	}}}
	routes := Build(doc).Binds[0].Listeners[0].Routes
	if len(routes) != 3 {
		t.Fatalf("expected 3 route nodes, got %d", len(routes))
	}
	if routes[0].Kind != gatewaycfg.RouteKindHTTP || routes[0].Index != 0 {
		t.Fatalf("route 0 = %s:%d", routes[0].Kind, routes[0].Index)
	}
	if routes[1].Kind != gatewaycfg.RouteKindHTTP || routes[1].Index != 1 {
		t.Fatalf("route 1 = %s:%d", routes[1].Kind, routes[1].Index)
	}
	if routes[2].Kind != gatewaycfg.RouteKindTCP || routes[2].Index != 0 {
		t.Fatalf("route 2 = %s:%d", routes[2].Kind, routes[2].Index)
	}
	if routes[2].Address != "bind:80/listener:0/tcp:0" {
		t.Fatalf("tcp route address = %q", routes[2].Address)
	}
}

func TestSharedHostnameWarnsOnEveryListener(t *testing.T) {
	doc := gatewaycfg.Document{Binds: []gatewaycfg.Bind{{
		Port: 9090,
		Listeners: []gatewaycfg.Listener{
			{Name: "a", Hostname: "api.example.com"},
			{Name: "b", Hostname: "api.example.com"},
			{Name: "c", Hostname: "other.example.com"},
		},
	}}}
	tree := Build(doc)
	for i := 0; i < 2; i++ {
		diags := tree.Binds[0].Listeners[i].Diagnostics
		if len(diags) != 1 || diags[0].Level != LevelWarning {
			t.Fatalf("listener %d diagnostics = %+v", i, diags)
		}
	}
	if len(tree.Binds[0].Listeners[2].Diagnostics) != 0 {
		t.Fatalf("unique hostname flagged: %+v", tree.Binds[0].Listeners[2].Diagnostics)
	}
	if tree.Stats.Diagnostics != 2 {
		t.Fatalf("stats.Diagnostics = %d, want 2", tree.Stats.Diagnostics)
	}
}

func TestWildcardHostnameNotFlagged(t *testing.T) {
	doc := gatewaycfg.Document{Binds: []gatewaycfg.Bind{{
		Port:      443,
		Listeners: []gatewaycfg.Listener{{Hostname: "*"}, {Hostname: "*"}, {}, {}},
	}}}
	tree := Build(doc)
	if tree.Stats.Diagnostics != 0 {
		t.Fatalf("wildcard or empty hostnames flagged: %d diagnostics", tree.Stats.Diagnostics)
	}
}

func TestHTTPListenerWithTCPRoutesWarns(t *testing.T) {
	doc := gatewaycfg.Document{Binds: []gatewaycfg.Bind{{
		Port: 80,
		Listeners: []gatewaycfg.Listener{{
			Protocol:  gatewaycfg.ProtocolHTTP,
			TCPRoutes: []gatewaycfg.TCPRoute{{Name: "t"}},
		}},
	}}}
	diags := Build(doc).Binds[0].Listeners[0].Diagnostics
	if len(diags) != 1 || diags[0].Level != LevelWarning {
		t.Fatalf("diagnostics = %+v", diags)
	}
}

func TestMatchesOnTCPListenerWarn(t *testing.T) {
	doc := gatewaycfg.Document{Binds: []gatewaycfg.Bind{{
		Port: 80,
		Listeners: []gatewaycfg.Listener{{
			Protocol: gatewaycfg.ProtocolTCP,
			Routes: []gatewaycfg.Route{{
				Matches: []gatewaycfg.Match{{Path: &gatewaycfg.PathMatch{PathPrefix: "/"}}},
			}},
		}},
	}}}
	diags := Build(doc).Binds[0].Listeners[0].Routes[0].Diagnostics
	if len(diags) != 1 || diags[0].Level != LevelWarning {
		t.Fatalf("diagnostics = %+v", diags)
	}
}

func TestBrokenBackendReference(t *testing.T) {
	doc := gatewaycfg.Document{
		Binds: []gatewaycfg.Bind{{
			Port: 8080,
			Listeners: []gatewaycfg.Listener{{
				Routes: []gatewaycfg.Route{{Backends: []gatewaycfg.Backend{{Ref: "svc-x"}}}},
			}},
		}},
	}
	tree := Build(doc)
	node := tree.Binds[0].Listeners[0].Routes[0].Backends[0]
	if len(node.Diagnostics) != 1 || node.Diagnostics[0].Level != LevelError {
		t.Fatalf("backend diagnostics = %+v", node.Diagnostics)
	}
	if tree.Stats.BrokenBackendRefs != 1 {
		t.Fatalf("stats.BrokenBackendRefs = %d, want 1", tree.Stats.BrokenBackendRefs)
	}
	if tree.Stats.Diagnostics != 1 {
		t.Fatalf("stats.Diagnostics = %d, want 1", tree.Stats.Diagnostics)
	}
}

func TestResolvedBackendReferenceClean(t *testing.T) {
	doc := testDocument()
	tree := Build(doc)
	node := tree.Binds[0].Listeners[0].Routes[0].Backends[1]
	if node.Kind != gatewaycfg.BackendKindRef {
		t.Fatalf("kind = %q", node.Kind)
	}
	if len(node.Diagnostics) != 0 {
		t.Fatalf("resolved reference flagged: %+v", node.Diagnostics)
	}
	if tree.Stats.BrokenBackendRefs != 0 {
		t.Fatalf("stats.BrokenBackendRefs = %d", tree.Stats.BrokenBackendRefs)
	}
}

func TestBrokenReferenceCheckedOnTCPRoutes(t *testing.T) {
	doc := gatewaycfg.Document{Binds: []gatewaycfg.Bind{{
		Port: 443,
		Listeners: []gatewaycfg.Listener{{
			Protocol:  gatewaycfg.ProtocolTLS,
			TCPRoutes: []gatewaycfg.TCPRoute{{Backends: []gatewaycfg.Backend{{Ref: "gone"}}}},
		}},
	}}}
	tree := Build(doc)
	if tree.Stats.BrokenBackendRefs != 1 {
		t.Fatalf("stats.BrokenBackendRefs = %d, want 1", tree.Stats.BrokenBackendRefs)
	}
}

func TestNodeAddresses(t *testing.T) {
	tree := Build(testDocument())
	if got := tree.Binds[0].Address; got != "bind:8080" {
		t.Fatalf("bind address = %q", got)
	}
	if got := tree.Binds[0].Listeners[0].Address; got != "bind:8080/listener:0" {
		t.Fatalf("listener address = %q", got)
	}
	if got := tree.Binds[0].Listeners[0].Routes[1].Address; got != "bind:8080/listener:0/http:1" {
		t.Fatalf("route address = %q", got)
	}
	if got := tree.Binds[0].Listeners[0].Routes[0].Backends[1].Address; got != "bind:8080/listener:0/http:0/backend:1" {
		t.Fatalf("backend address = %q", got)
	}
}

func TestTargetSummary(t *testing.T) {
	cases := []struct {
		backend gatewaycfg.Backend
		want    string
	}{
		{gatewaycfg.Backend{Host: &gatewaycfg.HostBackend{Hostname: "h", Port: 80}}, "h:80"},
		{gatewaycfg.Backend{Service: &gatewaycfg.ServiceBackend{Name: "svc", Namespace: "ns", Port: 81}}, "svc.ns:81"},
		{gatewaycfg.Backend{Service: &gatewaycfg.ServiceBackend{Name: "svc", Port: 81}}, "svc:81"},
		{gatewaycfg.Backend{AI: &gatewaycfg.AIBackend{Provider: "openai", Model: "gpt-4o"}}, "openai/gpt-4o"},
		{gatewaycfg.Backend{MCP: &gatewaycfg.MCPBackend{Targets: []gatewaycfg.MCPTarget{{Name: "a"}, {Name: "b"}}}}, "mcp(2 targets)"},
		{gatewaycfg.Backend{Dynamic: &gatewaycfg.DynamicBackend{}}, "dynamic"},
		{gatewaycfg.Backend{Ref: "billing"}, "-> billing"},
		{gatewaycfg.Backend{}, "unset"},
	}
	for _, tc := range cases {
		if got := TargetSummary(tc.backend); got != tc.want {
			t.Fatalf("TargetSummary = %q, want %q", got, tc.want)
		}
	}
}
