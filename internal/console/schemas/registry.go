// Package schemas is the console's schema source: per-node-type JSON Schema
// fragments that drive form rendering and union-field resolution. Fragments
// deliberately omit nothing the form machinery needs — child collections the
// forms hide (a listener's routes, a route's backends) are still declared so
// key-ownership and presence-discrimination logic can see them.
package schemas

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// Category groups schema fragments by the node type they describe.
type Category string

const (
	CategoryBind     Category = "bind"
	CategoryListener Category = "listener"
	CategoryRoute    Category = "route"
	CategoryTCPRoute Category = "tcpRoute"
	CategoryBackend  Category = "backend"
	CategoryPolicy   Category = "policy"
)

// ErrNotFound marks lookups for categories the registry does not hold.
var ErrNotFound = errors.New("schema not found")

// Registry holds the schema fragments at runtime. The built-in fragments can
// be overridden, e.g. when the gateway ships newer definitions.
type Registry struct {
	mu        sync.RWMutex
	fragments map[Category]*openapi3.Schema
}

// NewRegistry returns a registry seeded with the built-in fragments for
// every category.
func NewRegistry() *Registry {
	r := &Registry{fragments: make(map[Category]*openapi3.Schema)}
	r.Register(CategoryBind, bindSchema())
	r.Register(CategoryListener, listenerSchema())
	r.Register(CategoryRoute, routeSchema())
	r.Register(CategoryTCPRoute, tcpRouteSchema())
	r.Register(CategoryBackend, BackendSchema())
	r.Register(CategoryPolicy, policySchema())
	return r
}

// Register stores or replaces the fragment for a category.
func (r *Registry) Register(category Category, schema *openapi3.Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fragments[category] = schema
}

// Get returns a deep copy of the fragment for a category, so callers can
// never corrupt registry state through the shared pointer graph.
func (r *Registry) Get(category Category) (*openapi3.Schema, error) {
	r.mu.RLock()
	schema, ok := r.fragments[category]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("schemas: category %q: %w", category, ErrNotFound)
	}
	return cloneSchema(schema)
}

// Categories lists the registered categories in stable order.
func (r *Registry) Categories() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Category, 0, len(r.fragments))
	for c := range r.fragments {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func cloneSchema(s *openapi3.Schema) (*openapi3.Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("schemas: encode fragment: %w", err)
	}
	out := &openapi3.Schema{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("schemas: decode fragment: %w", err)
	}
	return out, nil
}
