package gatewaycfg

import (
	"encoding/json"
	"strings"
	"testing"
)

func sampleDocument() Document {
	return Document{
		Binds: []Bind{
			{
				Port: 8080,
				Listeners: []Listener{
					{
						Name:     "web",
						Protocol: ProtocolHTTP,
						Routes: []Route{
							{
								Name:      "api",
								Hostnames: []string{"api.example.com"},
								Matches:   []Match{{Path: &PathMatch{PathPrefix: "/v1"}}},
								Backends: []Backend{
									{Host: &HostBackend{Hostname: "10.0.0.5", Port: 3000}},
									{Ref: "billing", Weight: 2},
								},
							},
						},
					},
				},
			},
			{
				Port: 9443,
				Listeners: []Listener{
					{
						Name:     "passthrough",
						Protocol: ProtocolTLS,
						TCPRoutes: []TCPRoute{
							{
								Name:     "sni",
								Backends: []Backend{{Service: &ServiceBackend{Name: "db", Namespace: "prod", Port: 5432}}},
							},
						},
					},
				},
			},
		},
		Backends: []NamedBackend{
			{Name: "billing", Backend: Backend{Host: &HostBackend{Hostname: "billing.internal", Port: 8443}}},
		},
		Policies: []Policy{
			{Name: "cors-default", Kind: "cors", Rules: map[string]any{"allowOrigins": []any{"*"}}},
		},
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := sampleDocument()
	clone := doc.Clone()

	clone.Binds[0].Listeners[0].Routes[0].Backends[0].Host.Port = 9999
	clone.Binds[0].Listeners[0].Routes[0].Hostnames[0] = "evil.example.com"
	clone.Backends[0].Host.Hostname = "elsewhere"
	clone.Policies[0].Rules["allowOrigins"].([]any)[0] = "https://only.example.com"

	if got := doc.Binds[0].Listeners[0].Routes[0].Backends[0].Host.Port; got != 3000 {
		t.Fatalf("clone mutation leaked into original backend port: %d", got)
	}
	if got := doc.Binds[0].Listeners[0].Routes[0].Hostnames[0]; got != "api.example.com" {
		t.Fatalf("clone mutation leaked into original hostnames: %s", got)
	}
	if got := doc.Backends[0].Host.Hostname; got != "billing.internal" {
		t.Fatalf("clone mutation leaked into named backend: %s", got)
	}
	if got := doc.Policies[0].Rules["allowOrigins"].([]any)[0]; got != "*" {
		t.Fatalf("clone mutation leaked into policy rules: %v", got)
	}
}

func TestBackendKind(t *testing.T) {
	cases := []struct {
		backend Backend
		want    BackendKind
	}{
		{Backend{Host: &HostBackend{Hostname: "h", Port: 1}}, BackendKindHost},
		{Backend{Service: &ServiceBackend{Name: "s", Port: 1}}, BackendKindService},
		{Backend{AI: &AIBackend{Provider: "openai"}}, BackendKindAI},
		{Backend{MCP: &MCPBackend{}}, BackendKindMCP},
		{Backend{Dynamic: &DynamicBackend{}}, BackendKindDynamic},
		{Backend{Ref: "billing"}, BackendKindRef},
		{Backend{}, BackendKindUnknown},
	}
	for _, tc := range cases {
		if got := tc.backend.Kind(); got != tc.want {
			t.Fatalf("Kind() = %q, want %q", got, tc.want)
		}
	}
}

func TestBackendValidateArity(t *testing.T) {
	if err := (Backend{}).Validate(); err == nil {
		t.Fatal("expected error for empty backend")
	}
	two := Backend{Host: &HostBackend{Hostname: "h", Port: 1}, Ref: "x"}
	if err := two.Validate(); err == nil {
		t.Fatal("expected error for backend with two variants")
	}
	one := Backend{Dynamic: &DynamicBackend{}}
	if err := one.Validate(); err != nil {
		t.Fatalf("single-variant backend rejected: %v", err)
	}
}

func TestDocumentValidate(t *testing.T) {
	doc := sampleDocument()
	if err := doc.Validate(); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	bad := doc.Clone()
	bad.Binds[0].Port = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for port 0")
	}

	bad = doc.Clone()
	bad.Binds[0].Listeners[0].TCPRoutes = []TCPRoute{{Name: "x"}}
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Fatalf("expected mutual-exclusion error, got %v", err)
	}

	bad = doc.Clone()
	bad.Binds[0].Listeners[0].Protocol = "GOPHER"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown protocol")
	}

	bad = doc.Clone()
	bad.Binds[0].Listeners[0].Routes[0].Matches[0].Path.Exact = "/both"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for path match with two criteria")
	}

	bad = doc.Clone()
	bad.Backends[0] = NamedBackend{Name: "loop", Backend: Backend{Ref: "other"}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for reference-typed named backend")
	}

	bad = doc.Clone()
	bad.Policies[0].Name = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unnamed policy")
	}
}

func TestNormalizeCanonicalizesEnums(t *testing.T) {
	doc := Document{
		Binds: []Bind{{
			Port: 80,
			Listeners: []Listener{{
				Name:     "  edge  ",
				Protocol: Protocol(" http "),
				Hostname: " example.com ",
			}},
		}},
	}
	doc.Normalize()
	l := doc.Binds[0].Listeners[0]
	if l.Protocol != ProtocolHTTP {
		t.Fatalf("protocol not canonicalized: %q", l.Protocol)
	}
	if l.Name != "edge" || l.Hostname != "example.com" {
		t.Fatalf("fields not trimmed: %q %q", l.Name, l.Hostname)
	}
}

func TestMarshalElidesEmptyCollections(t *testing.T) {
	doc := Document{
		Binds: []Bind{{
			Port:      8080,
			Listeners: []Listener{{Name: "web", Protocol: ProtocolHTTP, Routes: []Route{}}},
		}},
		Backends: []NamedBackend{},
	}
	data, err := Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw := string(data)
	if strings.Contains(raw, "routes") {
		t.Fatalf("empty routes not elided: %s", raw)
	}
	if strings.Contains(raw, `"backends"`) {
		t.Fatalf("empty top-level backends not elided: %s", raw)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	doc := sampleDocument()
	data, err := Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	a, _ := json.Marshal(doc)
	b, _ := json.Marshal(back)
	if string(a) != string(b) {
		t.Fatalf("round trip drift:\n%s\n%s", a, b)
	}
}

func TestUnmarshalEmptyIsEmptyDocument(t *testing.T) {
	doc, err := Unmarshal(nil)
	if err != nil {
		t.Fatalf("unmarshal nil: %v", err)
	}
	if len(doc.Binds) != 0 || len(doc.Backends) != 0 || len(doc.Policies) != 0 {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}

func TestUnmarshalTolerantOfInvalidStructure(t *testing.T) {
	// Both route collections populated: rejected on write, displayed on read.
	raw := `{"binds":[{"port":80,"listeners":[{"routes":[{"name":"a"}],"tcpRoutes":[{"name":"b"}]}]}]}`
	doc, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Binds[0].Listeners[0].Routes) != 1 || len(doc.Binds[0].Listeners[0].TCPRoutes) != 1 {
		t.Fatal("tolerant decode dropped data")
	}
	if err := doc.Validate(); err == nil {
		t.Fatal("expected validation failure on write path")
	}
}
