package unionform

import (
	"reflect"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

func backendUnion() *openapi3.Schema {
	host := &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Title:    "host",
		Required: []string{"hostname", "port"},
		Properties: map[string]*openapi3.SchemaRef{
			"hostname": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"port":     openapi3.NewSchemaRef("", openapi3.NewIntegerSchema()),
		},
	}
	service := &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Title:    "service",
		Required: []string{"name", "port"},
		Properties: map[string]*openapi3.SchemaRef{
			"name":      openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"namespace": openapi3.NewSchemaRef("", openapi3.NewStringSchema().WithDefault("default")),
			"port":      openapi3.NewSchemaRef("", openapi3.NewIntegerSchema()),
		},
	}
	ai := &openapi3.Schema{
		Type:     &openapi3.Types{openapi3.TypeObject},
		Title:    "ai",
		Required: []string{"provider"},
		Properties: map[string]*openapi3.SchemaRef{
			"provider": openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"model":    openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	}
	return &openapi3.Schema{OneOf: openapi3.SchemaRefs{
		openapi3.NewSchemaRef("", host),
		openapi3.NewSchemaRef("", service),
		openapi3.NewSchemaRef("", ai),
	}}
}

func tlsWrapper() *openapi3.Schema {
	tls := &openapi3.Schema{
		Type:  &openapi3.Types{openapi3.TypeObject},
		Title: "tls",
		Properties: map[string]*openapi3.SchemaRef{
			"cert":   openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"key":    openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
			"verify": openapi3.NewSchemaRef("", openapi3.NewBoolSchema().WithDefault(true)),
		},
	}
	null := &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeNull}}
	return &openapi3.Schema{OneOf: openapi3.SchemaRefs{
		openapi3.NewSchemaRef("", null),
		openapi3.NewSchemaRef("", tls),
	}}
}

func TestResolveWrapperShape(t *testing.T) {
	schema := tlsWrapper()

	res := Resolve(schema, nil)
	if res.Shape != ShapeOptionalWrapper {
		t.Fatalf("shape = %q", res.Shape)
	}
	if res.Enabled || res.Active != 0 {
		t.Fatalf("nil value resolved to active=%d enabled=%v", res.Active, res.Enabled)
	}

	res = Resolve(schema, map[string]any{"cert": "/etc/tls/cert.pem"})
	if !res.Enabled || res.Active != 1 {
		t.Fatalf("object value resolved to active=%d enabled=%v", res.Active, res.Enabled)
	}
}

func TestToggleSeedsAndClears(t *testing.T) {
	schema := tlsWrapper()

	on, err := Toggle(schema, nil, true)
	if err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	want := map[string]any{"verify": true}
	if !reflect.DeepEqual(on, want) {
		t.Fatalf("toggle on = %#v, want %#v", on, want)
	}

	off, err := Toggle(schema, on, false)
	if err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	if off != nil {
		t.Fatalf("toggle off = %#v, want nil", off)
	}
}

func TestToggleOnExistingValueIsNoOp(t *testing.T) {
	schema := tlsWrapper()
	existing := map[string]any{"cert": "/a", "key": "/b"}
	out, err := Toggle(schema, existing, true)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	// Already enabled: keep the value as is, no default seeding.
	if !reflect.DeepEqual(out, existing) {
		t.Fatalf("toggle altered existing value: %#v", out)
	}
}

func TestToggleRejectsNonWrapper(t *testing.T) {
	if _, err := Toggle(backendUnion(), nil, true); err == nil {
		t.Fatal("expected error toggling a true alternative set")
	}
}

func TestDetectActiveByRequiredKeys(t *testing.T) {
	schema := backendUnion()

	res := Resolve(schema, map[string]any{"hostname": "h", "port": float64(80)})
	if res.Shape != ShapeAlternatives || res.Active != 0 || res.Ambiguous {
		t.Fatalf("host value: %+v", res)
	}

	res = Resolve(schema, map[string]any{"name": "svc", "port": float64(80)})
	if res.Active != 1 || res.Ambiguous {
		t.Fatalf("service value: %+v", res)
	}

	res = Resolve(schema, map[string]any{"provider": "openai"})
	if res.Active != 2 || res.Ambiguous {
		t.Fatalf("ai value: %+v", res)
	}
}

func TestDetectFallbackIsAmbiguous(t *testing.T) {
	res := Resolve(backendUnion(), map[string]any{"unrelated": float64(1)})
	if res.Active != 0 || !res.Ambiguous {
		t.Fatalf("fallback: %+v", res)
	}
}

func TestFallbackSkipsNonObjectFirstEntry(t *testing.T) {
	sentinel := openapi3.NewStringSchema()
	sentinel.Enum = []any{"auto"}
	obj := &openapi3.Schema{
		Type:       &openapi3.Types{openapi3.TypeObject},
		Required:   []string{"target"},
		Properties: map[string]*openapi3.SchemaRef{"target": openapi3.NewSchemaRef("", openapi3.NewStringSchema())},
	}
	schema := &openapi3.Schema{OneOf: openapi3.SchemaRefs{
		openapi3.NewSchemaRef("", sentinel),
		openapi3.NewSchemaRef("", obj),
	}}

	res := Resolve(schema, map[string]any{"mystery": true})
	if res.Active != 1 || !res.Ambiguous {
		t.Fatalf("fallback onto sentinel: %+v", res)
	}
	// The sentinel still matches its own literal.
	res = Resolve(schema, "auto")
	if res.Active != 0 || res.Ambiguous {
		t.Fatalf("enum literal: %+v", res)
	}
}

func TestSwitchStripsStaleKeysAndSeedsDefaults(t *testing.T) {
	schema := backendUnion()
	value := map[string]any{"hostname": "h", "port": float64(80)}

	out, err := Switch(schema, value, 1)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	want := map[string]any{"port": float64(80), "namespace": "default"}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("switch = %#v, want %#v", out, want)
	}
	// The input is untouched.
	if _, ok := value["hostname"]; !ok {
		t.Fatal("input value was mutated")
	}
}

func TestSwitchIsIdempotent(t *testing.T) {
	schema := backendUnion()
	value := map[string]any{"hostname": "h", "port": float64(80)}

	once, err := Switch(schema, value, 2)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	twice, err := Switch(schema, once, 2)
	if err != nil {
		t.Fatalf("switch again: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("switch not idempotent:\n%#v\n%#v", once, twice)
	}
}

func TestSwitchKeepsUnownedKeys(t *testing.T) {
	schema := backendUnion()
	value := map[string]any{"hostname": "h", "port": float64(80), "weight": float64(3)}

	out, err := Switch(schema, value, 1)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("switch returned %T", out)
	}
	if m["weight"] != float64(3) {
		t.Fatalf("unowned key dropped: %#v", m)
	}
	if _, ok := m["hostname"]; ok {
		t.Fatalf("stale key kept: %#v", m)
	}
}

func TestSwitchToNullBranchYieldsNil(t *testing.T) {
	out, err := Switch(tlsWrapper(), map[string]any{"cert": "/a"}, 0)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if out != nil {
		t.Fatalf("switch to null = %#v", out)
	}
}

func TestSwitchRangeErrors(t *testing.T) {
	if _, err := Switch(backendUnion(), nil, 7); err == nil {
		t.Fatal("expected out-of-range error")
	}
	if _, err := Switch(openapi3.NewObjectSchema(), nil, 0); err == nil {
		t.Fatal("expected no-alternatives error")
	}
}

func TestSanitizeStripsWithoutSeeding(t *testing.T) {
	schema := backendUnion()
	value := map[string]any{"name": "svc", "port": float64(80), "provider": "stale"}

	out := Sanitize(schema, value)
	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("sanitize returned %T", out)
	}
	if _, present := m["provider"]; present {
		t.Fatalf("stale key survived: %#v", m)
	}
	if _, present := m["namespace"]; present {
		t.Fatalf("sanitize seeded defaults: %#v", m)
	}
	if m["name"] != "svc" || m["port"] != float64(80) {
		t.Fatalf("active keys lost: %#v", m)
	}
}

func TestSanitizePassThrough(t *testing.T) {
	if out := Sanitize(backendUnion(), nil); out != nil {
		t.Fatalf("nil value: %#v", out)
	}
	if out := Sanitize(nil, map[string]any{"a": float64(1)}); out.(map[string]any)["a"] != float64(1) {
		t.Fatalf("nil schema: %#v", out)
	}
	if out := Sanitize(openapi3.NewObjectSchema(), map[string]any{"a": float64(1)}); out.(map[string]any)["a"] != float64(1) {
		t.Fatalf("non-union schema: %#v", out)
	}
}

func TestEmptyAlternativeMetadataTolerated(t *testing.T) {
	schema := &openapi3.Schema{OneOf: openapi3.SchemaRefs{
		openapi3.NewSchemaRef("", &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeObject}}),
		openapi3.NewSchemaRef("", &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeObject}}),
	}}
	value := map[string]any{"anything": "stays"}
	out, err := Switch(schema, value, 1)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !reflect.DeepEqual(out, value) {
		t.Fatalf("keys dropped despite empty ownership: %#v", out)
	}
}

func TestDefaults(t *testing.T) {
	schema := &openapi3.Schema{
		Type: &openapi3.Types{openapi3.TypeObject},
		Properties: map[string]*openapi3.SchemaRef{
			"verify": openapi3.NewSchemaRef("", openapi3.NewBoolSchema().WithDefault(true)),
			"cert":   openapi3.NewSchemaRef("", openapi3.NewStringSchema()),
		},
	}
	out := Defaults(schema)
	want := map[string]any{"verify": true}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("Defaults = %#v, want %#v", out, want)
	}
	if Defaults(nil) != nil {
		t.Fatal("Defaults(nil) should be nil")
	}
	if Defaults(openapi3.NewStringSchema()) != nil {
		t.Fatal("non-object without default should be nil")
	}
}
