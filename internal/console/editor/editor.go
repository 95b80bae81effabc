// Package editor applies structural mutations to a gateway configuration
// document. Every operation is a pure (previous document) -> (next document)
// transform: the input is never modified, the mutated path is rebuilt by
// shallow copy from the root down to the touched node, and siblings outside
// that path are carried over by reference. Callers are responsible for the
// fetch-then-apply-then-persist sequencing; the editor itself performs no
// I/O and either returns a fully applied next document or an error with no
// partial application.
package editor

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// Operation selects the mutation performed by Apply.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

var (
	// ErrAddressNotFound marks operations whose address does not resolve to
	// an existing node, either because the path is malformed or because the
	// document changed since the address was derived.
	ErrAddressNotFound = errors.New("address not found")

	// ErrInvariantViolation marks operations that would leave the document
	// structurally invalid. The document is left untouched.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Apply decodes raw (a form-produced JSON object) into the entity named by
// nodeType and creates or updates it at addr. Null and empty-array entries
// in raw are stripped first, except for keys listed in keep; update
// operations re-attach the child collections the form does not carry, so a
// parent update never discards its children.
//
// Create operations address the parent: a listener create targets a bind
// address, a route create targets a listener plus a route kind, a backend
// create targets a route. A bind create ignores addr entirely; the port
// comes from the form value. A listener create on a port with no bind
// creates the bind as well.
func Apply(doc gatewaycfg.Document, addr gatewaycfg.Address, nodeType gatewaycfg.NodeType, op Operation, raw map[string]any, keep []string) (gatewaycfg.Document, error) {
	if op != OpCreate && op != OpUpdate {
		return gatewaycfg.Document{}, fmt.Errorf("editor: unknown operation %q", op)
	}
	if op == OpUpdate {
		if err := checkAddress(addr, nodeType); err != nil {
			return gatewaycfg.Document{}, err
		}
	}
	cleaned := StripDefaults(raw, keep)
	switch nodeType {
	case gatewaycfg.NodeBind:
		return applyBind(doc, addr, op, cleaned)
	case gatewaycfg.NodeListener:
		return applyListener(doc, addr, op, cleaned)
	case gatewaycfg.NodeRoute:
		return applyRoute(doc, addr, op, cleaned)
	case gatewaycfg.NodeBackend:
		return applyBackend(doc, addr, op, cleaned)
	default:
		return gatewaycfg.Document{}, fmt.Errorf("editor: unknown node type %q", nodeType)
	}
}

// Delete removes the node at addr together with everything beneath it.
func Delete(doc gatewaycfg.Document, addr gatewaycfg.Address, nodeType gatewaycfg.NodeType) (gatewaycfg.Document, error) {
	if err := checkAddress(addr, nodeType); err != nil {
		return gatewaycfg.Document{}, err
	}
	switch nodeType {
	case gatewaycfg.NodeBind:
		idx, err := findBind(doc, addr)
		if err != nil {
			return gatewaycfg.Document{}, err
		}
		next := doc
		next.Binds = removeAt(doc.Binds, idx)
		return next, nil
	case gatewaycfg.NodeListener:
		bi, err := findBind(doc, addr)
		if err != nil {
			return gatewaycfg.Document{}, err
		}
		bind := doc.Binds[bi]
		if addr.Listener >= len(bind.Listeners) {
			return gatewaycfg.Document{}, notFound(addr)
		}
		bind.Listeners = removeAt(bind.Listeners, addr.Listener)
		return withBind(doc, bi, bind), nil
	case gatewaycfg.NodeRoute:
		bi, li, err := findListener(doc, addr)
		if err != nil {
			return gatewaycfg.Document{}, err
		}
		listener := doc.Binds[bi].Listeners[li]
		switch addr.RouteKind {
		case gatewaycfg.RouteKindHTTP:
			if addr.Route >= len(listener.Routes) {
				return gatewaycfg.Document{}, notFound(addr)
			}
			listener.Routes = removeAt(listener.Routes, addr.Route)
		case gatewaycfg.RouteKindTCP:
			if addr.Route >= len(listener.TCPRoutes) {
				return gatewaycfg.Document{}, notFound(addr)
			}
			listener.TCPRoutes = removeAt(listener.TCPRoutes, addr.Route)
		}
		return withListener(doc, bi, li, listener), nil
	case gatewaycfg.NodeBackend:
		bi, li, err := findListener(doc, addr)
		if err != nil {
			return gatewaycfg.Document{}, err
		}
		listener := doc.Binds[bi].Listeners[li]
		switch addr.RouteKind {
		case gatewaycfg.RouteKindHTTP:
			if addr.Route >= len(listener.Routes) {
				return gatewaycfg.Document{}, notFound(addr)
			}
			route := listener.Routes[addr.Route]
			if addr.Backend >= len(route.Backends) {
				return gatewaycfg.Document{}, notFound(addr)
			}
			route.Backends = removeAt(route.Backends, addr.Backend)
			listener.Routes = replaceAt(listener.Routes, addr.Route, route)
		case gatewaycfg.RouteKindTCP:
			if addr.Route >= len(listener.TCPRoutes) {
				return gatewaycfg.Document{}, notFound(addr)
			}
			route := listener.TCPRoutes[addr.Route]
			if addr.Backend >= len(route.Backends) {
				return gatewaycfg.Document{}, notFound(addr)
			}
			route.Backends = removeAt(route.Backends, addr.Backend)
			listener.TCPRoutes = replaceAt(listener.TCPRoutes, addr.Route, route)
		}
		return withListener(doc, bi, li, listener), nil
	default:
		return gatewaycfg.Document{}, fmt.Errorf("editor: unknown node type %q", nodeType)
	}
}

func applyBind(doc gatewaycfg.Document, addr gatewaycfg.Address, op Operation, raw map[string]any) (gatewaycfg.Document, error) {
	var bind gatewaycfg.Bind
	if err := decodeInto(raw, &bind); err != nil {
		return gatewaycfg.Document{}, err
	}
	if op == OpCreate {
		if bind.Port <= 0 || bind.Port > 65535 {
			return gatewaycfg.Document{}, fmt.Errorf("editor: new bind port %d out of range", bind.Port)
		}
		if bind.Listeners == nil {
			// Listener operations and the tree builder expect the
			// collection to exist.
			bind.Listeners = []gatewaycfg.Listener{}
		}
		next := doc
		next.Binds = appendCopy(doc.Binds, bind)
		return next, nil
	}
	idx, err := findBind(doc, addr)
	if err != nil {
		return gatewaycfg.Document{}, err
	}
	if bind.Port == 0 {
		bind.Port = addr.Port
	}
	bind.Listeners = doc.Binds[idx].Listeners
	return withBind(doc, idx, bind), nil
}

func applyListener(doc gatewaycfg.Document, addr gatewaycfg.Address, op Operation, raw map[string]any) (gatewaycfg.Document, error) {
	var listener gatewaycfg.Listener
	if err := decodeInto(raw, &listener); err != nil {
		return gatewaycfg.Document{}, err
	}
	if op == OpCreate {
		if addr.Port <= 0 || addr.Port > 65535 {
			return gatewaycfg.Document{}, fmt.Errorf("editor: listener create needs a bind port, got %d", addr.Port)
		}
		if len(listener.Routes) > 0 && len(listener.TCPRoutes) > 0 {
			return gatewaycfg.Document{}, fmt.Errorf("editor: %s: a listener cannot carry both HTTP and TCP routes: %w",
				gatewaycfg.BindAddress(addr.Port), ErrInvariantViolation)
		}
		idx, err := findBind(doc, addr)
		if errors.Is(err, ErrAddressNotFound) {
			// No bind on this port yet: create it around the listener.
			bind := gatewaycfg.Bind{Port: addr.Port, Listeners: []gatewaycfg.Listener{listener}}
			next := doc
			next.Binds = appendCopy(doc.Binds, bind)
			return next, nil
		}
		if err != nil {
			return gatewaycfg.Document{}, err
		}
		bind := doc.Binds[idx]
		bind.Listeners = appendCopy(bind.Listeners, listener)
		return withBind(doc, idx, bind), nil
	}
	idx, err := findBind(doc, addr)
	if err != nil {
		return gatewaycfg.Document{}, err
	}
	bind := doc.Binds[idx]
	if addr.Listener >= len(bind.Listeners) {
		return gatewaycfg.Document{}, notFound(addr)
	}
	existing := bind.Listeners[addr.Listener]
	listener.Routes = existing.Routes
	listener.TCPRoutes = existing.TCPRoutes
	bind.Listeners = replaceAt(bind.Listeners, addr.Listener, listener)
	return withBind(doc, idx, bind), nil
}

func applyRoute(doc gatewaycfg.Document, addr gatewaycfg.Address, op Operation, raw map[string]any) (gatewaycfg.Document, error) {
	kind := addr.RouteKind
	if kind != gatewaycfg.RouteKindHTTP && kind != gatewaycfg.RouteKindTCP {
		return gatewaycfg.Document{}, fmt.Errorf("editor: route operations need a route kind, got %q", kind)
	}
	bi, li, err := findListener(doc, addr)
	if err != nil {
		return gatewaycfg.Document{}, err
	}
	listener := doc.Binds[bi].Listeners[li]
	laddr := gatewaycfg.ListenerAddress(addr.Port, addr.Listener)

	// Adding or keeping a route of one kind requires the opposite
	// collection to be empty.
	if kind == gatewaycfg.RouteKindHTTP && len(listener.TCPRoutes) > 0 {
		return gatewaycfg.Document{}, fmt.Errorf("editor: %s has %d TCP routes; remove them before adding HTTP routes: %w",
			laddr, len(listener.TCPRoutes), ErrInvariantViolation)
	}
	if kind == gatewaycfg.RouteKindTCP && len(listener.Routes) > 0 {
		return gatewaycfg.Document{}, fmt.Errorf("editor: %s has %d HTTP routes; remove them before adding TCP routes: %w",
			laddr, len(listener.Routes), ErrInvariantViolation)
	}

	switch kind {
	case gatewaycfg.RouteKindHTTP:
		var route gatewaycfg.Route
		if err := decodeInto(raw, &route); err != nil {
			return gatewaycfg.Document{}, err
		}
		if op == OpCreate {
			listener.Routes = appendCopy(listener.Routes, route)
			break
		}
		if addr.Route >= len(listener.Routes) {
			return gatewaycfg.Document{}, notFound(addr)
		}
		route.Backends = listener.Routes[addr.Route].Backends
		listener.Routes = replaceAt(listener.Routes, addr.Route, route)
	case gatewaycfg.RouteKindTCP:
		var route gatewaycfg.TCPRoute
		if err := decodeInto(raw, &route); err != nil {
			return gatewaycfg.Document{}, err
		}
		if op == OpCreate {
			listener.TCPRoutes = appendCopy(listener.TCPRoutes, route)
			break
		}
		if addr.Route >= len(listener.TCPRoutes) {
			return gatewaycfg.Document{}, notFound(addr)
		}
		route.Backends = listener.TCPRoutes[addr.Route].Backends
		listener.TCPRoutes = replaceAt(listener.TCPRoutes, addr.Route, route)
	}
	return withListener(doc, bi, li, listener), nil
}

func applyBackend(doc gatewaycfg.Document, addr gatewaycfg.Address, op Operation, raw map[string]any) (gatewaycfg.Document, error) {
	kind := addr.RouteKind
	if kind != gatewaycfg.RouteKindHTTP && kind != gatewaycfg.RouteKindTCP {
		return gatewaycfg.Document{}, fmt.Errorf("editor: backend operations need a route kind, got %q", kind)
	}
	var backend gatewaycfg.Backend
	if err := decodeInto(raw, &backend); err != nil {
		return gatewaycfg.Document{}, err
	}
	if err := backend.Validate(); err != nil {
		return gatewaycfg.Document{}, fmt.Errorf("editor: invalid backend: %w", err)
	}
	bi, li, err := findListener(doc, addr)
	if err != nil {
		return gatewaycfg.Document{}, err
	}
	listener := doc.Binds[bi].Listeners[li]

	switch kind {
	case gatewaycfg.RouteKindHTTP:
		if addr.Route >= len(listener.Routes) {
			return gatewaycfg.Document{}, notFound(addr)
		}
		route := listener.Routes[addr.Route]
		route.Backends, err = mutateBackends(route.Backends, addr, op, backend)
		if err != nil {
			return gatewaycfg.Document{}, err
		}
		listener.Routes = replaceAt(listener.Routes, addr.Route, route)
	case gatewaycfg.RouteKindTCP:
		if addr.Route >= len(listener.TCPRoutes) {
			return gatewaycfg.Document{}, notFound(addr)
		}
		route := listener.TCPRoutes[addr.Route]
		route.Backends, err = mutateBackends(route.Backends, addr, op, backend)
		if err != nil {
			return gatewaycfg.Document{}, err
		}
		listener.TCPRoutes = replaceAt(listener.TCPRoutes, addr.Route, route)
	}
	return withListener(doc, bi, li, listener), nil
}

func mutateBackends(backends []gatewaycfg.Backend, addr gatewaycfg.Address, op Operation, backend gatewaycfg.Backend) ([]gatewaycfg.Backend, error) {
	if op == OpCreate {
		return appendCopy(backends, backend), nil
	}
	if addr.Backend < 0 || addr.Backend >= len(backends) {
		return nil, notFound(addr)
	}
	return replaceAt(backends, addr.Backend, backend), nil
}

// checkAddress rejects malformed addresses and addresses whose depth does
// not match the node type being operated on.
func checkAddress(addr gatewaycfg.Address, nodeType gatewaycfg.NodeType) error {
	if err := addr.Validate(); err != nil {
		return fmt.Errorf("editor: %v: %w", err, ErrAddressNotFound)
	}
	if addr.NodeType() != nodeType {
		return fmt.Errorf("editor: address %s targets a %s, not a %s: %w",
			addr, addr.NodeType(), nodeType, ErrAddressNotFound)
	}
	return nil
}

// findBind resolves a port to a bind index. With duplicate ports the first
// match wins; port uniqueness is not enforced.
func findBind(doc gatewaycfg.Document, addr gatewaycfg.Address) (int, error) {
	for i, bind := range doc.Binds {
		if bind.Port == addr.Port {
			return i, nil
		}
	}
	return 0, fmt.Errorf("editor: no bind on port %d: %w", addr.Port, ErrAddressNotFound)
}

func findListener(doc gatewaycfg.Document, addr gatewaycfg.Address) (int, int, error) {
	bi, err := findBind(doc, addr)
	if err != nil {
		return 0, 0, err
	}
	if addr.Listener < 0 || addr.Listener >= len(doc.Binds[bi].Listeners) {
		return 0, 0, notFound(addr)
	}
	return bi, addr.Listener, nil
}

func notFound(addr gatewaycfg.Address) error {
	return fmt.Errorf("editor: %s: %w", addr, ErrAddressNotFound)
}

// withBind rebuilds the document with the bind at index replaced. The binds
// slice is copied; untouched binds keep their original backing data.
func withBind(doc gatewaycfg.Document, index int, bind gatewaycfg.Bind) gatewaycfg.Document {
	next := doc
	next.Binds = replaceAt(doc.Binds, index, bind)
	return next
}

func withListener(doc gatewaycfg.Document, bindIndex, listenerIndex int, listener gatewaycfg.Listener) gatewaycfg.Document {
	bind := doc.Binds[bindIndex]
	bind.Listeners = replaceAt(bind.Listeners, listenerIndex, listener)
	return withBind(doc, bindIndex, bind)
}

func decodeInto(raw map[string]any, target any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("editor: encode form value: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return gatewaycfg.ValidationError{Err: fmt.Errorf("editor: decode form value: %w", err)}
	}
	return nil
}

func replaceAt[T any](in []T, index int, v T) []T {
	out := make([]T, len(in))
	copy(out, in)
	out[index] = v
	return out
}

func removeAt[T any](in []T, index int) []T {
	out := make([]T, 0, len(in)-1)
	out = append(out, in[:index]...)
	return append(out, in[index+1:]...)
}

func appendCopy[T any](in []T, v T) []T {
	out := make([]T, len(in), len(in)+1)
	copy(out, in)
	return append(out, v)
}
