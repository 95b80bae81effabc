// Package gatewaycfg defines the gateway configuration document: the single
// hierarchical structure describing port binds, their listeners, the HTTP/TCP
// routes attached to each listener, and the backends traffic is forwarded to.
// The console never edits this structure in place; every mutation works on a
// clone and replaces the whole document at the gateway.
package gatewaycfg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Protocol enumerates the listener protocols understood by the gateway.
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolTCP   Protocol = "TCP"
	ProtocolTLS   Protocol = "TLS"
	ProtocolHBONE Protocol = "HBONE"
)

// Valid reports whether the protocol is one of the known enum values.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolTCP, ProtocolTLS, ProtocolHBONE:
		return true
	}
	return false
}

// TunnelProtocol enumerates bind-level tunneling modes.
type TunnelProtocol string

const (
	TunnelNone  TunnelProtocol = "none"
	TunnelProxy TunnelProtocol = "PROXY"
	TunnelHBONE TunnelProtocol = "HBONE"
)

// Document is the root configuration object. Binds, top-level named backends,
// and top-level policies are ordered sequences; order is preserved across
// edits because the gateway evaluates them positionally.
type Document struct {
	Binds    []Bind         `json:"binds,omitempty"`
	Backends []NamedBackend `json:"backends,omitempty"`
	Policies []Policy       `json:"policies,omitempty"`
}

// Bind attaches a set of listeners to a port. Port is the bind's identity in
// node addresses; duplicate ports are tolerated (first match wins) but produce
// ambiguous addressing and should be avoided.
type Bind struct {
	Port           int            `json:"port"`
	Listeners      []Listener     `json:"listeners"`
	TunnelProtocol TunnelProtocol `json:"tunnelProtocol,omitempty"`
}

// Listener is a protocol-specific endpoint under a bind. Routes and TCPRoutes
// are mutually exclusive: at most one of the two collections may be non-empty.
// Listeners are addressed by index; names are informational and not unique.
type Listener struct {
	Name      string     `json:"name,omitempty"`
	Hostname  string     `json:"hostname,omitempty"`
	Protocol  Protocol   `json:"protocol,omitempty"`
	TLS       *TLSConfig `json:"tls,omitempty"`
	Routes    []Route    `json:"routes,omitempty"`
	TCPRoutes []TCPRoute `json:"tcpRoutes,omitempty"`
}

// TLSConfig carries the certificate material for HTTPS/TLS listeners.
type TLSConfig struct {
	Cert string `json:"cert"`
	Key  string `json:"key"`
}

// Route is an HTTP routing rule: match conditions plus an ordered backend set.
type Route struct {
	Name      string    `json:"name,omitempty"`
	Hostnames []string  `json:"hostnames,omitempty"`
	Matches   []Match   `json:"matches,omitempty"`
	Backends  []Backend `json:"backends,omitempty"`
}

// TCPRoute is a passthrough rule for TCP/TLS listeners. TCP routes carry no
// match conditions beyond SNI hostnames.
type TCPRoute struct {
	Name      string    `json:"name,omitempty"`
	Hostnames []string  `json:"hostnames,omitempty"`
	Backends  []Backend `json:"backends,omitempty"`
}

// Match is a single HTTP match condition. All populated criteria must hold.
type Match struct {
	Path    *PathMatch    `json:"path,omitempty"`
	Method  string        `json:"method,omitempty"`
	Headers []HeaderMatch `json:"headers,omitempty"`
}

// PathMatch matches the request path. Exactly one field may be set.
type PathMatch struct {
	Exact      string `json:"exact,omitempty"`
	PathPrefix string `json:"pathPrefix,omitempty"`
	Regex      string `json:"regex,omitempty"`
}

// HeaderMatch matches a request header by exact value.
type HeaderMatch struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BackendKind identifies which variant of the backend union is populated.
type BackendKind string

const (
	BackendKindHost    BackendKind = "host"
	BackendKindService BackendKind = "service"
	BackendKindAI      BackendKind = "ai"
	BackendKindMCP     BackendKind = "mcp"
	BackendKindDynamic BackendKind = "dynamic"
	BackendKindRef     BackendKind = "backend"
	BackendKindUnknown BackendKind = ""
)

// Backend is a discriminated union over forwarding targets. Exactly one
// variant field may be populated; the populated field is the discriminant.
// Ref points at a top-level NamedBackend by name.
type Backend struct {
	Weight  int             `json:"weight,omitempty"`
	Host    *HostBackend    `json:"host,omitempty"`
	Service *ServiceBackend `json:"service,omitempty"`
	AI      *AIBackend      `json:"ai,omitempty"`
	MCP     *MCPBackend     `json:"mcp,omitempty"`
	Dynamic *DynamicBackend `json:"dynamic,omitempty"`
	Ref     string          `json:"backend,omitempty"`
}

// HostBackend forwards to a static hostname/port pair.
type HostBackend struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

// ServiceBackend forwards to a discovered service.
type ServiceBackend struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
	Port      int    `json:"port"`
}

// AIBackend forwards to an LLM provider endpoint.
type AIBackend struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// MCPBackend aggregates one or more MCP targets behind a single route.
type MCPBackend struct {
	Targets []MCPTarget `json:"targets,omitempty"`
}

// MCPTarget names a single MCP server endpoint.
type MCPTarget struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// DynamicBackend resolves its target per request from the request itself.
type DynamicBackend struct{}

// Kind returns the populated variant, or BackendKindUnknown when none is set.
func (b Backend) Kind() BackendKind {
	switch {
	case b.Host != nil:
		return BackendKindHost
	case b.Service != nil:
		return BackendKindService
	case b.AI != nil:
		return BackendKindAI
	case b.MCP != nil:
		return BackendKindMCP
	case b.Dynamic != nil:
		return BackendKindDynamic
	case b.Ref != "":
		return BackendKindRef
	}
	return BackendKindUnknown
}

// Validate rejects backends with zero or multiple populated variants.
func (b Backend) Validate() error {
	if err := b.validate(); err != nil {
		return ValidationError{Err: err}
	}
	return nil
}

func (b Backend) validate() error {
	count := 0
	if b.Host != nil {
		count++
	}
	if b.Service != nil {
		count++
	}
	if b.AI != nil {
		count++
	}
	if b.MCP != nil {
		count++
	}
	if b.Dynamic != nil {
		count++
	}
	if b.Ref != "" {
		count++
	}
	switch count {
	case 0:
		return fmt.Errorf("gatewaycfg: backend must set exactly one of host, service, ai, mcp, dynamic, backend")
	case 1:
		return nil
	default:
		return fmt.Errorf("gatewaycfg: backend sets %d variants, want exactly one", count)
	}
}

// NamedBackend is a top-level backend definition that routes reference by
// name. The embedded variant must be concrete, never itself a reference.
type NamedBackend struct {
	Name string `json:"name"`
	Backend
}

// Policy is a top-level named policy. The console treats the rule body as
// opaque; it is authored and interpreted by the gateway.
type Policy struct {
	Name  string         `json:"name"`
	Kind  string         `json:"kind,omitempty"`
	Rules map[string]any `json:"rules,omitempty"`
}

// Clone returns a deep copy of the document. Mutating the copy never touches
// the receiver.
func (d Document) Clone() Document {
	out := Document{}
	if d.Binds != nil {
		out.Binds = make([]Bind, len(d.Binds))
		for i := range d.Binds {
			out.Binds[i] = d.Binds[i].Clone()
		}
	}
	if d.Backends != nil {
		out.Backends = make([]NamedBackend, len(d.Backends))
		for i := range d.Backends {
			out.Backends[i] = NamedBackend{Name: d.Backends[i].Name, Backend: d.Backends[i].Backend.Clone()}
		}
	}
	if d.Policies != nil {
		out.Policies = make([]Policy, len(d.Policies))
		for i := range d.Policies {
			out.Policies[i] = d.Policies[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the bind and everything beneath it.
func (b Bind) Clone() Bind {
	out := b
	if b.Listeners != nil {
		out.Listeners = make([]Listener, len(b.Listeners))
		for i := range b.Listeners {
			out.Listeners[i] = b.Listeners[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the listener and its route collections.
func (l Listener) Clone() Listener {
	out := l
	if l.TLS != nil {
		tls := *l.TLS
		out.TLS = &tls
	}
	if l.Routes != nil {
		out.Routes = make([]Route, len(l.Routes))
		for i := range l.Routes {
			out.Routes[i] = l.Routes[i].Clone()
		}
	}
	if l.TCPRoutes != nil {
		out.TCPRoutes = make([]TCPRoute, len(l.TCPRoutes))
		for i := range l.TCPRoutes {
			out.TCPRoutes[i] = l.TCPRoutes[i].Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the route.
func (r Route) Clone() Route {
	out := r
	out.Hostnames = cloneStrings(r.Hostnames)
	if r.Matches != nil {
		out.Matches = make([]Match, len(r.Matches))
		for i := range r.Matches {
			out.Matches[i] = r.Matches[i].Clone()
		}
	}
	out.Backends = cloneBackends(r.Backends)
	return out
}

// Clone returns a deep copy of the TCP route.
func (r TCPRoute) Clone() TCPRoute {
	out := r
	out.Hostnames = cloneStrings(r.Hostnames)
	out.Backends = cloneBackends(r.Backends)
	return out
}

// Clone returns a deep copy of the match.
func (m Match) Clone() Match {
	out := m
	if m.Path != nil {
		path := *m.Path
		out.Path = &path
	}
	if m.Headers != nil {
		out.Headers = make([]HeaderMatch, len(m.Headers))
		copy(out.Headers, m.Headers)
	}
	return out
}

// Clone returns a deep copy of the backend variant.
func (b Backend) Clone() Backend {
	out := b
	if b.Host != nil {
		host := *b.Host
		out.Host = &host
	}
	if b.Service != nil {
		svc := *b.Service
		out.Service = &svc
	}
	if b.AI != nil {
		ai := *b.AI
		out.AI = &ai
	}
	if b.MCP != nil {
		mcp := MCPBackend{}
		if b.MCP.Targets != nil {
			mcp.Targets = make([]MCPTarget, len(b.MCP.Targets))
			copy(mcp.Targets, b.MCP.Targets)
		}
		out.MCP = &mcp
	}
	if b.Dynamic != nil {
		dyn := *b.Dynamic
		out.Dynamic = &dyn
	}
	return out
}

// Clone returns a deep copy of the policy, including its opaque rule body.
func (p Policy) Clone() Policy {
	out := p
	out.Rules = cloneAnyMap(p.Rules)
	return out
}

// Normalize trims free-text fields and canonicalizes enum casing in place.
func (d *Document) Normalize() {
	if d == nil {
		return
	}
	for i := range d.Binds {
		bind := &d.Binds[i]
		bind.TunnelProtocol = TunnelProtocol(strings.TrimSpace(string(bind.TunnelProtocol)))
		for j := range bind.Listeners {
			bind.Listeners[j].Normalize()
		}
	}
	for i := range d.Backends {
		d.Backends[i].Name = strings.TrimSpace(d.Backends[i].Name)
	}
	for i := range d.Policies {
		d.Policies[i].Name = strings.TrimSpace(d.Policies[i].Name)
		d.Policies[i].Kind = strings.TrimSpace(d.Policies[i].Kind)
	}
}

// Normalize trims listener fields and upcases the protocol enum.
func (l *Listener) Normalize() {
	if l == nil {
		return
	}
	l.Name = strings.TrimSpace(l.Name)
	l.Hostname = strings.TrimSpace(l.Hostname)
	l.Protocol = Protocol(strings.ToUpper(strings.TrimSpace(string(l.Protocol))))
	for i := range l.Routes {
		l.Routes[i].Name = strings.TrimSpace(l.Routes[i].Name)
	}
	for i := range l.TCPRoutes {
		l.TCPRoutes[i].Name = strings.TrimSpace(l.TCPRoutes[i].Name)
	}
}

// ValidationError marks semantic validation failures of document content.
// Transport layers map it to a client error.
type ValidationError struct{ Err error }

func (e ValidationError) Error() string { return e.Err.Error() }
func (e ValidationError) Unwrap() error { return e.Err }

// Validate performs structural validation of the whole document: port ranges,
// enum membership, backend variant arity, the route/tcpRoute mutual-exclusion
// invariant, and named-backend shape. Cross-node semantic checks (duplicate
// hostnames, dangling references) are the hierarchy validator's job and are
// reported as diagnostics, not errors. Failures are reported as
// ValidationError.
func (d Document) Validate() error {
	if err := d.validate(); err != nil {
		return ValidationError{Err: err}
	}
	return nil
}

func (d Document) validate() error {
	for i, bind := range d.Binds {
		if bind.Port <= 0 || bind.Port > 65535 {
			return fmt.Errorf("gatewaycfg: bind %d: port %d out of range", i, bind.Port)
		}
		for j, listener := range bind.Listeners {
			if listener.Protocol != "" && !listener.Protocol.Valid() {
				return fmt.Errorf("gatewaycfg: bind %d listener %d: unknown protocol %q", bind.Port, j, listener.Protocol)
			}
			if len(listener.Routes) > 0 && len(listener.TCPRoutes) > 0 {
				return fmt.Errorf("gatewaycfg: bind %d listener %d: routes and tcpRoutes are mutually exclusive", bind.Port, j)
			}
			for k, route := range listener.Routes {
				if err := validateMatches(route.Matches); err != nil {
					return fmt.Errorf("gatewaycfg: bind %d listener %d route %d: %w", bind.Port, j, k, err)
				}
				if err := validateBackends(route.Backends); err != nil {
					return fmt.Errorf("gatewaycfg: bind %d listener %d route %d: %w", bind.Port, j, k, err)
				}
			}
			for k, route := range listener.TCPRoutes {
				if err := validateBackends(route.Backends); err != nil {
					return fmt.Errorf("gatewaycfg: bind %d listener %d tcp route %d: %w", bind.Port, j, k, err)
				}
			}
		}
	}
	for i, backend := range d.Backends {
		if backend.Name == "" {
			return fmt.Errorf("gatewaycfg: top-level backend %d: name required", i)
		}
		if backend.Kind() == BackendKindRef {
			return fmt.Errorf("gatewaycfg: top-level backend %q: must be concrete, not a reference", backend.Name)
		}
		if err := backend.Backend.validate(); err != nil {
			return fmt.Errorf("gatewaycfg: top-level backend %q: %w", backend.Name, err)
		}
	}
	for i, policy := range d.Policies {
		if policy.Name == "" {
			return fmt.Errorf("gatewaycfg: policy %d: name required", i)
		}
	}
	return nil
}

func validateMatches(matches []Match) error {
	for i, m := range matches {
		if m.Path == nil {
			continue
		}
		set := 0
		if m.Path.Exact != "" {
			set++
		}
		if m.Path.PathPrefix != "" {
			set++
		}
		if m.Path.Regex != "" {
			set++
		}
		if set > 1 {
			return fmt.Errorf("match %d: path match sets %d criteria, want at most one", i, set)
		}
	}
	return nil
}

func validateBackends(backends []Backend) error {
	for i, b := range backends {
		if err := b.validate(); err != nil {
			return fmt.Errorf("backend %d: %w", i, err)
		}
	}
	return nil
}

// Marshal serializes the document to canonical JSON after normalization and
// validation. Empty collections are elided; absent and empty collections are
// treated identically by every consumer.
func Marshal(d Document) ([]byte, error) {
	clone := d.Clone()
	clone.Normalize()
	if err := clone.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(clone)
}

// Unmarshal decodes a document, normalizing on the way in. Decoding is
// deliberately tolerant: structural validation is only enforced on writes, so
// a document persisted by an older or foreign writer can still be displayed.
func Unmarshal(data []byte) (Document, error) {
	if len(data) == 0 {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("gatewaycfg: decode: %w", err)
	}
	doc.Normalize()
	return doc, nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneBackends(in []Backend) []Backend {
	if in == nil {
		return nil
	}
	out := make([]Backend, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func cloneAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneAnyValue(v)
	}
	return out
}

func cloneAnyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneAnyMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i := range tv {
			out[i] = cloneAnyValue(tv[i])
		}
		return out
	default:
		return v
	}
}
