package strava

import (
	"encoding/json"
	"sort"
	"strconv"
)

// FlattenActivity turns one decoded activity into a raw-table row. Nested
// objects become dotted columns ("athlete.id", "map.summary_polyline"), lists
// are kept as JSON text and null becomes an empty cell.
func FlattenActivity(activity map[string]any) map[string]string {
	out := make(map[string]string, len(activity))
	flatten("", activity, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		switch v := m[k].(type) {
		case map[string]any:
			flatten(name, v, out)
		default:
			out[name] = cell(v)
		}
	}
}

func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
