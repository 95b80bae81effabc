// Package engine is the console core. Every operation works on the latest
// persisted document: reads fetch and rebuild the hierarchy from scratch,
// mutations fetch, apply exactly one pure transform, persist against the
// fetched revision, and publish a change event. The engine holds no document
// state between calls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/trellisgw/trellis/internal/console/docstore"
	"github.com/trellisgw/trellis/internal/console/editor"
	"github.com/trellisgw/trellis/internal/console/eventbus"
	"github.com/trellisgw/trellis/internal/console/events"
	"github.com/trellisgw/trellis/internal/console/hierarchy"
	"github.com/trellisgw/trellis/internal/console/schemas"
	"github.com/trellisgw/trellis/internal/console/unionform"
	"github.com/trellisgw/trellis/internal/gatewaycfg"
)

// Engine exposes the console operations.
type Engine interface {
	Hierarchy(ctx context.Context) (*Snapshot, error)
	Document(ctx context.Context) (gatewaycfg.Document, string, error)
	History(ctx context.Context, limit int) ([]docstore.HistoryEntry, error)
	HistorySnapshot(ctx context.Context, revision string) (*docstore.HistoryEntry, error)
	Schema(category schemas.Category) (*openapi3.Schema, error)
	Categories() []schemas.Category
	ResolveUnion(req ResolveRequest) (ResolveResult, error)

	ApplyEdit(ctx context.Context, req EditRequest) (*Snapshot, error)
	ApplyDelete(ctx context.Context, req DeleteRequest) (*Snapshot, error)
	ReplaceDocument(ctx context.Context, doc gatewaycfg.Document, expectedRevision string) (*Snapshot, error)
	UpsertNamedBackend(ctx context.Context, backend gatewaycfg.NamedBackend, revision string) (*Snapshot, error)
	DeleteNamedBackend(ctx context.Context, name, revision string) (*Snapshot, error)
	UpsertPolicy(ctx context.Context, policy gatewaycfg.Policy, revision string) (*Snapshot, error)
	DeletePolicy(ctx context.Context, name, revision string) (*Snapshot, error)
}

// Snapshot pairs a freshly rebuilt hierarchy with the revision it reflects.
type Snapshot struct {
	Tree     hierarchy.Tree `json:"tree"`
	Revision string         `json:"revision"`
}

// EditRequest describes a node create or update. For creates the address
// names the parent node; for updates it names the node itself. Revision, when
// set, guards against edits based on a stale view.
type EditRequest struct {
	Address  gatewaycfg.Address
	NodeType gatewaycfg.NodeType
	Op       editor.Operation
	Value    map[string]any
	Keep     []string
	Revision string
}

// DeleteRequest describes a node removal.
type DeleteRequest struct {
	Address  gatewaycfg.Address
	NodeType gatewaycfg.NodeType
	Revision string
}

// ResolveRequest locates a union schema inside a category fragment and
// optionally transitions the supplied value: Selection switches between
// alternatives, Enabled toggles an optional wrapper.
type ResolveRequest struct {
	Category  schemas.Category
	Pointer   string
	Value     any
	Selection *int
	Enabled   *bool
}

// ResolveResult carries the union resolution and the (possibly transitioned)
// value.
type ResolveResult struct {
	Resolution unionform.Resolution `json:"resolution"`
	Value      any                  `json:"value"`
}

// Params wires dependencies for the console engine.
type Params struct {
	Gateway docstore.Gateway
	Schemas *schemas.Registry
	Bus     eventbus.Bus
	Logger  *slog.Logger
}

// New constructs the console engine.
func New(params Params) (Engine, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("engine: gateway is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("engine: logger is required")
	}
	if params.Schemas == nil {
		params.Schemas = schemas.NewRegistry()
	}
	return &engine{
		gateway: params.Gateway,
		schemas: params.Schemas,
		bus:     params.Bus,
		logger:  params.Logger.With("component", "engine"),
	}, nil
}

type engine struct {
	gateway docstore.Gateway
	schemas *schemas.Registry
	bus     eventbus.Bus
	logger  *slog.Logger
}

var (
	// ErrBackendNotFound indicates the named top-level backend does not exist.
	ErrBackendNotFound = errors.New("engine: named backend not found")
	// ErrPolicyNotFound indicates the named policy does not exist.
	ErrPolicyNotFound = errors.New("engine: policy not found")
)

func (e *engine) Hierarchy(ctx context.Context) (*Snapshot, error) {
	doc, revision, err := e.gateway.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	tree := hierarchy.Build(doc)
	return &Snapshot{Tree: tree, Revision: revision}, nil
}

func (e *engine) Document(ctx context.Context) (gatewaycfg.Document, string, error) {
	return e.gateway.Fetch(ctx)
}

func (e *engine) History(ctx context.Context, limit int) ([]docstore.HistoryEntry, error) {
	historian, ok := e.gateway.(docstore.Historian)
	if !ok {
		return nil, docstore.ErrNoHistory
	}
	return historian.History(ctx, limit)
}

func (e *engine) HistorySnapshot(ctx context.Context, revision string) (*docstore.HistoryEntry, error) {
	historian, ok := e.gateway.(docstore.Historian)
	if !ok {
		return nil, docstore.ErrNoHistory
	}
	return historian.Snapshot(ctx, revision)
}

func (e *engine) Schema(category schemas.Category) (*openapi3.Schema, error) {
	return e.schemas.Get(category)
}

func (e *engine) Categories() []schemas.Category {
	return e.schemas.Categories()
}

func (e *engine) ResolveUnion(req ResolveRequest) (ResolveResult, error) {
	if req.Selection != nil && req.Enabled != nil {
		return ResolveResult{}, fmt.Errorf("selection and enabled are mutually exclusive")
	}
	fragment, err := e.schemas.Get(req.Category)
	if err != nil {
		return ResolveResult{}, err
	}
	target, err := schemaAtPointer(fragment, req.Pointer)
	if err != nil {
		return ResolveResult{}, err
	}
	value := req.Value
	switch {
	case req.Selection != nil:
		value, err = unionform.Switch(target, value, *req.Selection)
	case req.Enabled != nil:
		value, err = unionform.Toggle(target, value, *req.Enabled)
	default:
		// Plain resolution doubles as form mount: stale keys from previously
		// selected alternatives are stripped, but no defaults are seeded.
		value = unionform.Sanitize(target, value)
	}
	if err != nil {
		return ResolveResult{}, err
	}
	return ResolveResult{Resolution: unionform.Resolve(target, value), Value: value}, nil
}

func (e *engine) ApplyEdit(ctx context.Context, req EditRequest) (*Snapshot, error) {
	return e.mutate(ctx, req.Revision, func(doc gatewaycfg.Document) (gatewaycfg.Document, *change, error) {
		next, err := editor.Apply(doc, req.Address, req.NodeType, req.Op, req.Value, req.Keep)
		if err != nil {
			return gatewaycfg.Document{}, nil, err
		}
		ch := &change{typ: events.TypeNodeCreated, address: req.Address.String(), nodeType: string(req.NodeType), message: "node created"}
		if req.Op == editor.OpUpdate {
			ch.typ = events.TypeNodeUpdated
			ch.message = "node updated"
		}
		return next, ch, nil
	})
}

func (e *engine) ApplyDelete(ctx context.Context, req DeleteRequest) (*Snapshot, error) {
	return e.mutate(ctx, req.Revision, func(doc gatewaycfg.Document) (gatewaycfg.Document, *change, error) {
		next, err := editor.Delete(doc, req.Address, req.NodeType)
		if err != nil {
			return gatewaycfg.Document{}, nil, err
		}
		return next, &change{typ: events.TypeNodeDeleted, address: req.Address.String(), nodeType: string(req.NodeType), message: "node deleted"}, nil
	})
}

// ReplaceDocument swaps in a whole new document. An empty expectedRevision
// replaces whatever is current; a non-empty one must match it.
func (e *engine) ReplaceDocument(ctx context.Context, doc gatewaycfg.Document, expectedRevision string) (*Snapshot, error) {
	incoming := doc.Clone()
	incoming.Normalize()
	if err := incoming.Validate(); err != nil {
		return nil, err
	}
	return e.mutate(ctx, expectedRevision, func(gatewaycfg.Document) (gatewaycfg.Document, *change, error) {
		return incoming, &change{typ: events.TypeDocumentReplaced, nodeType: "document", message: "document replaced"}, nil
	})
}

func (e *engine) UpsertNamedBackend(ctx context.Context, backend gatewaycfg.NamedBackend, revision string) (*Snapshot, error) {
	name := strings.TrimSpace(backend.Name)
	if name == "" {
		return nil, fmt.Errorf("backend name is required")
	}
	if backend.Ref != "" {
		return nil, fmt.Errorf("named backend %q cannot reference another backend", name)
	}
	if err := backend.Backend.Validate(); err != nil {
		return nil, err
	}
	backend.Name = name
	return e.mutate(ctx, revision, func(doc gatewaycfg.Document) (gatewaycfg.Document, *change, error) {
		next := doc.Clone()
		ch := &change{typ: events.TypeNodeCreated, address: "backends/" + name, nodeType: "backend", message: "named backend created"}
		replaced := false
		for i := range next.Backends {
			if next.Backends[i].Name == name {
				next.Backends[i] = backend
				replaced = true
				break
			}
		}
		if !replaced {
			next.Backends = append(next.Backends, backend)
		} else {
			ch.typ = events.TypeNodeUpdated
			ch.message = "named backend updated"
		}
		return next, ch, nil
	})
}

// DeleteNamedBackend removes a top-level backend. Routes that still reference
// it keep their refs; the rebuilt tree reports them as broken.
func (e *engine) DeleteNamedBackend(ctx context.Context, name, revision string) (*Snapshot, error) {
	name = strings.TrimSpace(name)
	return e.mutate(ctx, revision, func(doc gatewaycfg.Document) (gatewaycfg.Document, *change, error) {
		next := doc.Clone()
		idx := -1
		for i := range next.Backends {
			if next.Backends[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return gatewaycfg.Document{}, nil, fmt.Errorf("named backend %q: %w", name, ErrBackendNotFound)
		}
		next.Backends = append(next.Backends[:idx], next.Backends[idx+1:]...)
		return next, &change{typ: events.TypeNodeDeleted, address: "backends/" + name, nodeType: "backend", message: "named backend deleted"}, nil
	})
}

func (e *engine) UpsertPolicy(ctx context.Context, policy gatewaycfg.Policy, revision string) (*Snapshot, error) {
	name := strings.TrimSpace(policy.Name)
	if name == "" {
		return nil, fmt.Errorf("policy name is required")
	}
	if strings.TrimSpace(policy.Kind) == "" {
		return nil, fmt.Errorf("policy %q: kind is required", name)
	}
	policy.Name = name
	return e.mutate(ctx, revision, func(doc gatewaycfg.Document) (gatewaycfg.Document, *change, error) {
		next := doc.Clone()
		ch := &change{typ: events.TypeNodeCreated, address: "policies/" + name, nodeType: "policy", message: "policy created"}
		replaced := false
		for i := range next.Policies {
			if next.Policies[i].Name == name {
				next.Policies[i] = policy
				replaced = true
				break
			}
		}
		if !replaced {
			next.Policies = append(next.Policies, policy)
		} else {
			ch.typ = events.TypeNodeUpdated
			ch.message = "policy updated"
		}
		return next, ch, nil
	})
}

func (e *engine) DeletePolicy(ctx context.Context, name, revision string) (*Snapshot, error) {
	name = strings.TrimSpace(name)
	return e.mutate(ctx, revision, func(doc gatewaycfg.Document) (gatewaycfg.Document, *change, error) {
		next := doc.Clone()
		idx := -1
		for i := range next.Policies {
			if next.Policies[i].Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return gatewaycfg.Document{}, nil, fmt.Errorf("policy %q: %w", name, ErrPolicyNotFound)
		}
		next.Policies = append(next.Policies[:idx], next.Policies[idx+1:]...)
		return next, &change{typ: events.TypeNodeDeleted, address: "policies/" + name, nodeType: "policy", message: "policy deleted"}, nil
	})
}

type change struct {
	typ      string
	address  string
	nodeType string
	message  string
}

// mutate runs one read-transform-persist cycle. guard, when non-empty, must
// match the fetched revision or the edit is rejected as stale before the
// transform runs.
func (e *engine) mutate(ctx context.Context, guard string, fn func(doc gatewaycfg.Document) (gatewaycfg.Document, *change, error)) (*Snapshot, error) {
	doc, revision, err := e.gateway.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if guard != "" && guard != revision {
		return nil, fmt.Errorf("edit is based on revision %q (current %q): %w", guard, revision, docstore.ErrRevisionConflict)
	}
	next, ch, err := fn(doc)
	if err != nil {
		return nil, err
	}
	next.Normalize()
	newRevision, err := e.gateway.Persist(ctx, next, revision)
	if err != nil {
		return nil, err
	}
	tree := hierarchy.Build(next)
	e.publishEvent(ctx, ch, newRevision, tree)
	return &Snapshot{Tree: tree, Revision: newRevision}, nil
}

func (e *engine) publishEvent(ctx context.Context, ch *change, revision string, tree hierarchy.Tree) {
	if e.bus == nil || ch == nil {
		return
	}
	event := events.DocumentEvent{
		Type:      ch.typ,
		Address:   ch.address,
		NodeType:  ch.nodeType,
		Revision:  revision,
		Stats:     tree.Stats,
		Timestamp: time.Now().UTC(),
		Message:   ch.message,
	}
	if err := e.bus.Publish(ctx, events.TopicDocumentEvents, event); err != nil {
		e.logger.Error("publish document event", "type", ch.typ, "address", ch.address, "error", err)
	}
}

// schemaAtPointer walks a slash-separated path into a schema fragment.
// "properties" and "items" segments are honored; a bare segment is shorthand
// for a property name. The empty pointer returns the fragment itself.
func schemaAtPointer(root *openapi3.Schema, pointer string) (*openapi3.Schema, error) {
	trimmed := strings.Trim(strings.TrimSpace(pointer), "/")
	if trimmed == "" {
		return root, nil
	}
	current := root
	segments := strings.Split(trimmed, "/")
	for i := 0; i < len(segments); i++ {
		segment := segments[i]
		switch segment {
		case "properties":
			i++
			if i >= len(segments) {
				return nil, fmt.Errorf("schema pointer %q: properties requires a name", pointer)
			}
			next, err := property(current, pointer, segments[i])
			if err != nil {
				return nil, err
			}
			current = next
		case "items":
			if current.Items == nil || current.Items.Value == nil {
				return nil, fmt.Errorf("schema pointer %q: schema has no items", pointer)
			}
			current = current.Items.Value
		default:
			next, err := property(current, pointer, segment)
			if err != nil {
				return nil, err
			}
			current = next
		}
	}
	return current, nil
}

func property(s *openapi3.Schema, pointer, name string) (*openapi3.Schema, error) {
	ref, ok := s.Properties[name]
	if !ok || ref == nil || ref.Value == nil {
		return nil, fmt.Errorf("schema pointer %q: unknown property %q", pointer, name)
	}
	return ref.Value, nil
}
