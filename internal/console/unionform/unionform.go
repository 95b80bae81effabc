// Package unionform resolves schema-declared union fields for form editing.
// A union field is a oneOf fragment whose alternatives are mutually exclusive
// shapes; forms need to know which alternative a value currently inhabits,
// and switching alternatives must strip keys owned by the abandoned branch
// and seed defaults for the new one so stale properties never reach the
// persisted document.
//
// Two shapes are recognized. An optional wrapper has exactly two branches,
// one of them null: it renders as an on/off toggle around a single concrete
// type. Everything else with two or more branches is a true alternative set
// rendered as a selector. Resolution state lives in the editing session only;
// it is never part of the document.
package unionform

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// Shape classifies a union fragment.
type Shape string

const (
	// ShapeNone marks fragments with fewer than two branches; they are not
	// unions and are rendered as plain fields.
	ShapeNone Shape = "none"
	// ShapeOptionalWrapper is a two-branch union where one branch is null.
	ShapeOptionalWrapper Shape = "optionalWrapper"
	// ShapeAlternatives is a union of two or more concrete branches.
	ShapeAlternatives Shape = "alternatives"
)

// Alternative describes one branch of a union fragment.
type Alternative struct {
	Index  int              `json:"index"`
	Title  string           `json:"title"`
	Null   bool             `json:"null,omitempty"`
	Schema *openapi3.Schema `json:"-"`
}

// Resolution reports the detected shape of a fragment and which branch the
// current value inhabits. Ambiguous is set when no branch matched
// structurally and the resolver fell back to a deterministic default; this
// is advisory, never an error.
type Resolution struct {
	Shape        Shape         `json:"shape"`
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Active       int           `json:"active"`
	Enabled      bool          `json:"enabled"`
	Ambiguous    bool          `json:"ambiguous,omitempty"`
}

// Resolve classifies the fragment and detects the active branch for value.
// It never fails: absent or partial schema metadata is treated as empty.
func Resolve(schema *openapi3.Schema, value any) Resolution {
	alts := alternatives(schema)
	switch {
	case len(alts) < 2:
		return Resolution{Shape: ShapeNone, Active: -1}
	case isOptionalWrapper(alts):
		res := Resolution{Shape: ShapeOptionalWrapper, Alternatives: alts}
		concrete := concreteIndex(alts)
		if value == nil {
			res.Active = nullIndex(alts)
			res.Enabled = false
		} else {
			res.Active = concrete
			res.Enabled = true
		}
		return res
	default:
		res := Resolution{Shape: ShapeAlternatives, Alternatives: alts}
		res.Active, res.Ambiguous = detectActive(alts, value)
		return res
	}
}

// Switch moves value onto the branch at target: keys owned by any branch but
// not by the target are removed, and the target's declared defaults are
// merged in for keys currently absent. Switching to the already-active
// branch is a no-op, so the operation is idempotent. The input value is
// never mutated.
func Switch(schema *openapi3.Schema, value any, target int) (any, error) {
	alts := alternatives(schema)
	if len(alts) < 2 {
		return nil, fmt.Errorf("unionform: fragment has no alternatives")
	}
	if target < 0 || target >= len(alts) {
		return nil, fmt.Errorf("unionform: alternative %d out of range (have %d)", target, len(alts))
	}
	chosen := alts[target]
	if chosen.Null {
		return nil, nil
	}

	out := copyObject(value)
	stripForeignKeys(out, alts, chosen)
	seedDefaults(out, chosen.Schema)
	return out, nil
}

// Toggle drives an optional-wrapper fragment. Enabling seeds the concrete
// branch's defaults when the value is not already an object; disabling
// returns the null sentinel. The input value is never mutated.
func Toggle(schema *openapi3.Schema, value any, enabled bool) (any, error) {
	alts := alternatives(schema)
	if !isOptionalWrapper(alts) {
		return nil, fmt.Errorf("unionform: fragment is not an optional wrapper")
	}
	if !enabled {
		return nil, nil
	}
	concrete := alts[concreteIndex(alts)]
	if existing, ok := value.(map[string]any); ok {
		return copyMap(existing), nil
	}
	out := map[string]any{}
	seedDefaults(out, concrete.Schema)
	return out, nil
}

// Sanitize strips keys owned by non-active branches from an existing value
// without seeding any defaults. It is applied when a form mounts over a
// value read from the document, so residue from an earlier branch switch
// made by another writer cannot survive a save. Fresh (nil) values and
// non-union fragments pass through unchanged.
func Sanitize(schema *openapi3.Schema, value any) any {
	alts := alternatives(schema)
	if len(alts) < 2 || value == nil {
		return value
	}
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	active, _ := detectActive(alts, value)
	if active < 0 || alts[active].Null {
		return value
	}
	out := copyMap(m)
	stripForeignKeys(out, alts, alts[active])
	return out
}

// Defaults builds the schema-derived default value for a fragment: the
// declared default when present, otherwise an object assembled from its
// properties' defaults. Non-object fragments without a declared default
// yield nil.
func Defaults(schema *openapi3.Schema) any {
	if schema == nil {
		return nil
	}
	if schema.Default != nil {
		return copyValue(schema.Default)
	}
	if isObjectSchema(schema) {
		out := map[string]any{}
		seedDefaults(out, schema)
		return out
	}
	return nil
}

func alternatives(schema *openapi3.Schema) []Alternative {
	if schema == nil {
		return nil
	}
	refs := schema.OneOf
	if len(refs) == 0 {
		refs = schema.AnyOf
	}
	if len(refs) == 0 {
		return nil
	}
	alts := make([]Alternative, 0, len(refs))
	for i, ref := range refs {
		var sub *openapi3.Schema
		if ref != nil {
			sub = ref.Value
		}
		if sub == nil {
			sub = &openapi3.Schema{}
		}
		alts = append(alts, Alternative{
			Index:  i,
			Title:  altTitle(i, sub),
			Null:   sub.Type.Is(openapi3.TypeNull),
			Schema: sub,
		})
	}
	return alts
}

func altTitle(index int, s *openapi3.Schema) string {
	switch {
	case s.Title != "":
		return s.Title
	case s.Type.Is(openapi3.TypeNull):
		return "none"
	case len(s.Required) > 0:
		return s.Required[0]
	default:
		return fmt.Sprintf("alternative %d", index)
	}
}

func isOptionalWrapper(alts []Alternative) bool {
	if len(alts) != 2 {
		return false
	}
	return alts[0].Null != alts[1].Null
}

func nullIndex(alts []Alternative) int {
	for i, a := range alts {
		if a.Null {
			return i
		}
	}
	return -1
}

func concreteIndex(alts []Alternative) int {
	for i, a := range alts {
		if !a.Null {
			return i
		}
	}
	return -1
}

// detectActive tests value against each branch in declaration order and
// returns the first structural match. With no match it falls back to the
// first branch, or to the first object-typed branch when the first entry is
// a non-object sentinel, and reports the fallback as ambiguous.
func detectActive(alts []Alternative, value any) (int, bool) {
	for i, a := range alts {
		if matchesSchema(a.Schema, value) {
			return i, false
		}
	}
	if !alts[0].Null && isObjectSchema(alts[0].Schema) {
		return 0, true
	}
	for i, a := range alts {
		if !a.Null && isObjectSchema(a.Schema) {
			return i, true
		}
	}
	return 0, true
}

func matchesSchema(s *openapi3.Schema, value any) bool {
	if s == nil {
		return false
	}
	if s.Type.Is(openapi3.TypeNull) {
		return value == nil
	}
	if value == nil {
		return false
	}
	if isObjectSchema(s) {
		m, ok := value.(map[string]any)
		if !ok {
			return false
		}
		if len(s.Required) > 0 {
			for _, key := range s.Required {
				if _, present := m[key]; !present {
					return false
				}
			}
			return true
		}
		if len(s.Properties) > 0 {
			for key := range s.Properties {
				if _, present := m[key]; present {
					return true
				}
			}
			return false
		}
		return true
	}
	switch {
	case s.Type.Is(openapi3.TypeString):
		str, ok := value.(string)
		if !ok {
			return false
		}
		if len(s.Enum) == 0 {
			return true
		}
		for _, e := range s.Enum {
			if e == str {
				return true
			}
		}
		return false
	case s.Type.Is(openapi3.TypeBoolean):
		_, ok := value.(bool)
		return ok
	case s.Type.Is(openapi3.TypeInteger), s.Type.Is(openapi3.TypeNumber):
		switch value.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case s.Type.Is(openapi3.TypeArray):
		_, ok := value.([]any)
		return ok
	}
	return false
}

func isObjectSchema(s *openapi3.Schema) bool {
	if s == nil {
		return false
	}
	if s.Type.Includes(openapi3.TypeObject) {
		return true
	}
	return (s.Type == nil || len(*s.Type) == 0) && len(s.Properties) > 0
}

// stripForeignKeys removes from m every key owned by some branch but not by
// keep. Ownership is a branch's declared properties plus its required names.
func stripForeignKeys(m map[string]any, alts []Alternative, keep Alternative) {
	keepOwned := ownedKeys(keep.Schema)
	for _, a := range alts {
		if a.Index == keep.Index {
			continue
		}
		for key := range ownedKeys(a.Schema) {
			if _, ok := keepOwned[key]; ok {
				continue
			}
			delete(m, key)
		}
	}
}

func ownedKeys(s *openapi3.Schema) map[string]struct{} {
	owned := map[string]struct{}{}
	if s == nil {
		return owned
	}
	for key := range s.Properties {
		owned[key] = struct{}{}
	}
	for _, key := range s.Required {
		owned[key] = struct{}{}
	}
	return owned
}

// seedDefaults merges declared property defaults into m for keys that are
// absent. Properties without a usable default stay absent.
func seedDefaults(m map[string]any, s *openapi3.Schema) {
	if s == nil {
		return
	}
	for key, ref := range s.Properties {
		if _, present := m[key]; present {
			continue
		}
		if ref == nil || ref.Value == nil {
			continue
		}
		if d := propertyDefault(ref.Value); d != nil {
			m[key] = d
		}
	}
}

// propertyDefault resolves the seed value for one property: its declared
// default, or for object-typed properties the non-empty map of nested
// defaults. Anything else yields nil so the key is omitted rather than
// seeded with a meaningless zero.
func propertyDefault(s *openapi3.Schema) any {
	if s.Default != nil {
		return copyValue(s.Default)
	}
	if isObjectSchema(s) {
		nested := map[string]any{}
		seedDefaults(nested, s)
		if len(nested) > 0 {
			return nested
		}
	}
	return nil
}

func copyObject(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return copyMap(m)
	}
	return map[string]any{}
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return copyMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i := range tv {
			out[i] = copyValue(tv[i])
		}
		return out
	default:
		return v
	}
}
