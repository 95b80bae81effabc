package gatewaycfg

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeType identifies a level of the configuration hierarchy.
type NodeType string

const (
	NodeBind     NodeType = "bind"
	NodeListener NodeType = "listener"
	NodeRoute    NodeType = "route"
	NodeBackend  NodeType = "backend"
)

// RouteKind distinguishes the two route collections on a listener.
type RouteKind string

const (
	RouteKindHTTP RouteKind = "http"
	RouteKindTCP  RouteKind = "tcp"
)

// Address locates a node inside a document by position. Port is the bind's
// port number; the remaining components are zero-based indexes into their
// parent's collection, -1 when the address stops above that level. RouteKind
// selects which route collection the route index refers to and is meaningful
// only when Route >= 0.
//
// Addresses are positional, so they are only stable against the document
// revision they were read from. After any edit the tree must be re-fetched
// and addresses re-derived.
type Address struct {
	Port      int
	Listener  int
	Route     int
	Backend   int
	RouteKind RouteKind
}

// BindAddress returns the address of the bind with the given port.
func BindAddress(port int) Address {
	return Address{Port: port, Listener: -1, Route: -1, Backend: -1}
}

// ListenerAddress returns the address of listener index under the bind.
func ListenerAddress(port, listener int) Address {
	return Address{Port: port, Listener: listener, Route: -1, Backend: -1}
}

// RouteAddress returns the address of a route under a listener. kind selects
// the HTTP or TCP route collection.
func RouteAddress(port, listener int, kind RouteKind, route int) Address {
	return Address{Port: port, Listener: listener, Route: route, Backend: -1, RouteKind: kind}
}

// BackendAddress returns the address of a backend under a route.
func BackendAddress(port, listener int, kind RouteKind, route, backend int) Address {
	return Address{Port: port, Listener: listener, Route: route, Backend: backend, RouteKind: kind}
}

// NodeType reports the hierarchy level the address points at, derived from
// its deepest populated component.
func (a Address) NodeType() NodeType {
	switch {
	case a.Backend >= 0:
		return NodeBackend
	case a.Route >= 0:
		return NodeRoute
	case a.Listener >= 0:
		return NodeListener
	default:
		return NodeBind
	}
}

// Validate checks internal consistency: no gaps in the component chain, a
// route kind present exactly when a route index is, and a sane port.
func (a Address) Validate() error {
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("gatewaycfg: address port %d out of range", a.Port)
	}
	if a.Backend >= 0 && a.Route < 0 {
		return fmt.Errorf("gatewaycfg: address has backend index without route index")
	}
	if a.Route >= 0 && a.Listener < 0 {
		return fmt.Errorf("gatewaycfg: address has route index without listener index")
	}
	if a.Route >= 0 {
		if a.RouteKind != RouteKindHTTP && a.RouteKind != RouteKindTCP {
			return fmt.Errorf("gatewaycfg: address route kind %q invalid", a.RouteKind)
		}
	} else if a.RouteKind != "" {
		return fmt.Errorf("gatewaycfg: address has route kind without route index")
	}
	return nil
}

// String renders the address in its canonical path form, e.g.
// "bind:8080/listener:0/http:2/backend:1".
func (a Address) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "bind:%d", a.Port)
	if a.Listener < 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "/listener:%d", a.Listener)
	if a.Route < 0 {
		return b.String()
	}
	kind := a.RouteKind
	if kind == "" {
		kind = RouteKindHTTP
	}
	fmt.Fprintf(&b, "/%s:%d", kind, a.Route)
	if a.Backend < 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "/backend:%d", a.Backend)
	return b.String()
}

// ParseAddress parses the canonical path form produced by String. Segments
// must appear in hierarchy order and every segment is "label:number".
func ParseAddress(s string) (Address, error) {
	addr := Address{Listener: -1, Route: -1, Backend: -1}
	if strings.TrimSpace(s) == "" {
		return addr, fmt.Errorf("gatewaycfg: empty address")
	}
	segments := strings.Split(s, "/")
	if len(segments) > 4 {
		return addr, fmt.Errorf("gatewaycfg: address %q has too many segments", s)
	}
	for i, seg := range segments {
		label, value, ok := strings.Cut(seg, ":")
		if !ok {
			return addr, fmt.Errorf("gatewaycfg: address segment %q missing ':'", seg)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return addr, fmt.Errorf("gatewaycfg: address segment %q: bad index", seg)
		}
		switch {
		case i == 0 && label == "bind":
			addr.Port = n
		case i == 1 && label == "listener":
			addr.Listener = n
		case i == 2 && (label == string(RouteKindHTTP) || label == string(RouteKindTCP)):
			addr.Route = n
			addr.RouteKind = RouteKind(label)
		case i == 3 && label == "backend":
			addr.Backend = n
		default:
			return addr, fmt.Errorf("gatewaycfg: address segment %q unexpected at position %d", seg, i)
		}
	}
	if err := addr.Validate(); err != nil {
		return Address{Listener: -1, Route: -1, Backend: -1}, err
	}
	return addr, nil
}
