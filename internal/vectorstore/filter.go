package vectorstore

import "encoding/json"

// parseFilter decodes an opaque filter string into a flat string-keyed
// equality map. An empty filter matches everything. Malformed JSON is
// treated as "no filter" rather than an error — filter is documented as
// best-effort/backend-parsed in spec.md §4.3.
func parseFilter(filter string) map[string]string {
	if filter == "" {
		return nil
	}
	raw := map[string]any{}
	if err := json.Unmarshal([]byte(filter), &raw); err != nil {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			if b, err := json.Marshal(val); err == nil {
				out[k] = string(b)
			}
		}
	}
	return out
}

// matchesFilter reports whether metadata satisfies every key/value pair in
// want (exact string match). An empty want always matches.
func matchesFilter(metadata map[string]string, want map[string]string) bool {
	for k, v := range want {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
