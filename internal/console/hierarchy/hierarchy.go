// Package hierarchy projects a gateway configuration document into a typed,
// addressable tree annotated with validation diagnostics and aggregate
// statistics. The projection is pure and cheap: it is recomputed from scratch
// on every read of the document and holds no state across calls. Nodes are
// read-only views; they are valid only for the document snapshot they were
// built from and carry canonical addresses for targeting later edits.
package hierarchy

import (
	"fmt"

	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// Level grades a diagnostic. Diagnostics are advisory: they never block a
// save and the builder never fails on a structurally valid document.
type Level string

const (
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Diagnostic is a single validation finding attached to a node.
type Diagnostic struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Tree is the full projection of one document snapshot.
type Tree struct {
	Binds    []BindNode                `json:"binds"`
	Backends []gatewaycfg.NamedBackend `json:"backends,omitempty"`
	Policies []gatewaycfg.Policy       `json:"policies,omitempty"`
	Stats    Stats                     `json:"stats"`
}

// Stats aggregates counts over the whole tree. Routes covers HTTP and TCP
// routes combined; Backends counts top-level named backends only.
type Stats struct {
	Binds             int `json:"binds"`
	Listeners         int `json:"listeners"`
	Routes            int `json:"routes"`
	Backends          int `json:"backends"`
	Policies          int `json:"policies"`
	BrokenBackendRefs int `json:"brokenBackendRefs"`
	Diagnostics       int `json:"diagnostics"`
}

// BindNode is the projection of a port bind.
type BindNode struct {
	Address        string                    `json:"address"`
	Port           int                       `json:"port"`
	TunnelProtocol gatewaycfg.TunnelProtocol `json:"tunnelProtocol,omitempty"`
	Listeners      []ListenerNode            `json:"listeners"`
	Diagnostics    []Diagnostic              `json:"diagnostics,omitempty"`
}

// ListenerNode is the projection of a listener, carrying its bind port as
// inherited context.
type ListenerNode struct {
	Address     string              `json:"address"`
	Index       int                 `json:"index"`
	Port        int                 `json:"port"`
	Name        string              `json:"name,omitempty"`
	Hostname    string              `json:"hostname,omitempty"`
	Protocol    gatewaycfg.Protocol `json:"protocol,omitempty"`
	TLS         bool                `json:"tls,omitempty"`
	Routes      []RouteNode         `json:"routes"`
	Diagnostics []Diagnostic        `json:"diagnostics,omitempty"`
}

// RouteNode is the projection of an HTTP or TCP route. HTTP routes come
// first in the Routes sequence, then TCP routes; the two kinds keep
// independent index spaces, so Kind+Index together identify the route.
type RouteNode struct {
	Address          string               `json:"address"`
	Kind             gatewaycfg.RouteKind `json:"kind"`
	Index            int                  `json:"index"`
	Port             int                  `json:"port"`
	ListenerName     string               `json:"listenerName,omitempty"`
	ListenerProtocol gatewaycfg.Protocol  `json:"listenerProtocol,omitempty"`
	Name             string               `json:"name,omitempty"`
	Hostnames        []string             `json:"hostnames,omitempty"`
	Matches          []gatewaycfg.Match   `json:"matches,omitempty"`
	Backends         []BackendNode        `json:"backends"`
	Diagnostics      []Diagnostic         `json:"diagnostics,omitempty"`
}

// BackendNode is the projection of one backend entry under a route. Target
// is a display summary of the active variant.
type BackendNode struct {
	Address      string                 `json:"address"`
	Index        int                    `json:"index"`
	Port         int                    `json:"port"`
	ListenerName string                 `json:"listenerName,omitempty"`
	Kind         gatewaycfg.BackendKind `json:"kind"`
	Target       string                 `json:"target,omitempty"`
	Weight       int                    `json:"weight,omitempty"`
	Diagnostics  []Diagnostic           `json:"diagnostics,omitempty"`
}

// Build projects the document into a tree. It never fails: structural
// problems become diagnostics on the offending nodes, and an empty document
// yields an empty tree with zeroed stats.
func Build(doc gatewaycfg.Document) Tree {
	b := &builder{refs: make(map[string]struct{}, len(doc.Backends))}
	for _, nb := range doc.Backends {
		b.refs[nb.Name] = struct{}{}
	}

	tree := Tree{
		Binds:    make([]BindNode, 0, len(doc.Binds)),
		Backends: doc.Backends,
		Policies: doc.Policies,
	}
	for _, bind := range doc.Binds {
		tree.Binds = append(tree.Binds, b.buildBind(bind))
	}

	b.stats.Binds = len(doc.Binds)
	b.stats.Backends = len(doc.Backends)
	b.stats.Policies = len(doc.Policies)
	tree.Stats = b.stats
	return tree
}

type builder struct {
	refs  map[string]struct{}
	stats Stats
}

func (b *builder) diag(level Level, format string, args ...any) Diagnostic {
	b.stats.Diagnostics++
	return Diagnostic{Level: level, Message: fmt.Sprintf(format, args...)}
}

func (b *builder) buildBind(bind gatewaycfg.Bind) BindNode {
	node := BindNode{
		Address:        gatewaycfg.BindAddress(bind.Port).String(),
		Port:           bind.Port,
		TunnelProtocol: bind.TunnelProtocol,
		Listeners:      make([]ListenerNode, 0, len(bind.Listeners)),
	}

	// Hostname collisions are only meaningful between listeners sharing a
	// port, so the count is scoped to this bind. The wildcard hostname is
	// expected to repeat and is excluded.
	hostCounts := make(map[string]int)
	for _, l := range bind.Listeners {
		if l.Hostname != "" && l.Hostname != "*" {
			hostCounts[l.Hostname]++
		}
	}

	for i, l := range bind.Listeners {
		node.Listeners = append(node.Listeners, b.buildListener(bind.Port, i, l, hostCounts))
	}
	b.stats.Listeners += len(bind.Listeners)
	return node
}

func (b *builder) buildListener(port, index int, l gatewaycfg.Listener, hostCounts map[string]int) ListenerNode {
	node := ListenerNode{
		Address:  gatewaycfg.ListenerAddress(port, index).String(),
		Index:    index,
		Port:     port,
		Name:     l.Name,
		Hostname: l.Hostname,
		Protocol: l.Protocol,
		TLS:      l.TLS != nil,
		Routes:   make([]RouteNode, 0, len(l.Routes)+len(l.TCPRoutes)),
	}

	if n := hostCounts[l.Hostname]; l.Hostname != "" && l.Hostname != "*" && n >= 2 {
		node.Diagnostics = append(node.Diagnostics,
			b.diag(LevelWarning, "hostname %q is shared by %d listeners on port %d", l.Hostname, n, port))
	}
	if (l.Protocol == gatewaycfg.ProtocolHTTP || l.Protocol == gatewaycfg.ProtocolHTTPS) && len(l.TCPRoutes) > 0 {
		node.Diagnostics = append(node.Diagnostics,
			b.diag(LevelWarning, "listener protocol %s conflicts with tcpRoutes", l.Protocol))
	}

	for i, r := range l.Routes {
		node.Routes = append(node.Routes, b.buildHTTPRoute(port, index, i, l, r))
	}
	for i, r := range l.TCPRoutes {
		node.Routes = append(node.Routes, b.buildTCPRoute(port, index, i, l, r))
	}
	b.stats.Routes += len(l.Routes) + len(l.TCPRoutes)
	return node
}

func (b *builder) buildHTTPRoute(port, listener, index int, l gatewaycfg.Listener, r gatewaycfg.Route) RouteNode {
	node := RouteNode{
		Address:          gatewaycfg.RouteAddress(port, listener, gatewaycfg.RouteKindHTTP, index).String(),
		Kind:             gatewaycfg.RouteKindHTTP,
		Index:            index,
		Port:             port,
		ListenerName:     l.Name,
		ListenerProtocol: l.Protocol,
		Name:             r.Name,
		Hostnames:        r.Hostnames,
		Matches:          r.Matches,
		Backends:         make([]BackendNode, 0, len(r.Backends)),
	}
	if l.Protocol == gatewaycfg.ProtocolTCP && len(r.Matches) > 0 {
		node.Diagnostics = append(node.Diagnostics,
			b.diag(LevelWarning, "HTTP match conditions have no effect on a TCP listener"))
	}
	for i, backend := range r.Backends {
		addr := gatewaycfg.BackendAddress(port, listener, gatewaycfg.RouteKindHTTP, index, i)
		node.Backends = append(node.Backends, b.buildBackend(addr, l.Name, backend))
	}
	return node
}

func (b *builder) buildTCPRoute(port, listener, index int, l gatewaycfg.Listener, r gatewaycfg.TCPRoute) RouteNode {
	node := RouteNode{
		Address:          gatewaycfg.RouteAddress(port, listener, gatewaycfg.RouteKindTCP, index).String(),
		Kind:             gatewaycfg.RouteKindTCP,
		Index:            index,
		Port:             port,
		ListenerName:     l.Name,
		ListenerProtocol: l.Protocol,
		Name:             r.Name,
		Hostnames:        r.Hostnames,
		Backends:         make([]BackendNode, 0, len(r.Backends)),
	}
	for i, backend := range r.Backends {
		addr := gatewaycfg.BackendAddress(port, listener, gatewaycfg.RouteKindTCP, index, i)
		node.Backends = append(node.Backends, b.buildBackend(addr, l.Name, backend))
	}
	return node
}

func (b *builder) buildBackend(addr gatewaycfg.Address, listenerName string, backend gatewaycfg.Backend) BackendNode {
	node := BackendNode{
		Address:      addr.String(),
		Index:        addr.Backend,
		Port:         addr.Port,
		ListenerName: listenerName,
		Kind:         backend.Kind(),
		Target:       TargetSummary(backend),
		Weight:       backend.Weight,
	}
	if backend.Kind() == gatewaycfg.BackendKindRef {
		if _, ok := b.refs[backend.Ref]; !ok {
			b.stats.BrokenBackendRefs++
			node.Diagnostics = append(node.Diagnostics,
				b.diag(LevelError, "backend reference %q does not resolve to a top-level backend", backend.Ref))
		}
	}
	return node
}

// TargetSummary renders a one-line display label for the backend's active
// variant. Used by the tree view and the CLI.
func TargetSummary(b gatewaycfg.Backend) string {
	switch b.Kind() {
	case gatewaycfg.BackendKindHost:
		return fmt.Sprintf("%s:%d", b.Host.Hostname, b.Host.Port)
	case gatewaycfg.BackendKindService:
		if b.Service.Namespace != "" {
			return fmt.Sprintf("%s.%s:%d", b.Service.Name, b.Service.Namespace, b.Service.Port)
		}
		return fmt.Sprintf("%s:%d", b.Service.Name, b.Service.Port)
	case gatewaycfg.BackendKindAI:
		if b.AI.Model != "" {
			return fmt.Sprintf("%s/%s", b.AI.Provider, b.AI.Model)
		}
		return b.AI.Provider
	case gatewaycfg.BackendKindMCP:
		return fmt.Sprintf("mcp(%d targets)", len(b.MCP.Targets))
	case gatewaycfg.BackendKindDynamic:
		return "dynamic"
	case gatewaycfg.BackendKindRef:
		return "-> " + b.Ref
	}
	return "unset"
}
