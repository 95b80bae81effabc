package editor

// StripDefaults returns a copy of a form-produced JSON object with the
// placeholder values the form layer emits for untouched optional fields
// removed: null entries and empty-array entries, at any depth. Keys named in
// keep survive even when null or empty, because for union and
// mutual-exclusion groups the presence of the active branch's key is itself
// the discriminator downstream consumers rely on. Empty objects are kept for
// the same reason. The input is never mutated, and stripping already-clean
// data returns an equal value.
func StripDefaults(value map[string]any, keep []string) map[string]any {
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}
	return stripMap(value, keepSet)
}

func stripMap(in map[string]any, keep map[string]struct{}) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		_, kept := keep[k]
		switch tv := v.(type) {
		case nil:
			if kept {
				out[k] = nil
			}
		case []any:
			arr := stripSlice(tv, keep)
			if len(arr) == 0 && !kept {
				continue
			}
			out[k] = arr
		case map[string]any:
			out[k] = stripMap(tv, keep)
		default:
			out[k] = v
		}
	}
	return out
}

// stripSlice cleans object elements in place of dropping them: stripping
// applies to object properties, never to array membership.
func stripSlice(in []any, keep map[string]struct{}) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		switch tv := v.(type) {
		case map[string]any:
			out = append(out, stripMap(tv, keep))
		case []any:
			out = append(out, stripSlice(tv, keep))
		default:
			out = append(out, v)
		}
	}
	return out
}
