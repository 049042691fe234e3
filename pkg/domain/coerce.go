package domain

import "time"

// Coerce restores properties decoded from JSON (where every value comes
// back as string/float64/bool/[]any) to the concrete Go type its
// declared Kind expects, so Load can hand a usable map to Entity and the
// typed accessors (Mail.Date, Resource.Port, ...) work without every
// caller re-implementing this conversion.
func Coerce(typ Type, properties map[string]any) map[string]any {
	schema := Schema[typ]
	out := make(map[string]any, len(properties))
	for k, v := range properties {
		kind, known := schema[k]
		if !known {
			out[k] = v
			continue
		}
		out[k] = coerceOne(kind, v)
	}
	return out
}

func coerceOne(kind Kind, v any) any {
	switch kind {
	case KindTime:
		if s, ok := v.(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
		return v
	case KindInt:
		if f, ok := v.(float64); ok {
			return int(f)
		}
		return v
	case KindStringSlice:
		if raw, ok := v.([]any); ok {
			out := make([]string, 0, len(raw))
			for _, e := range raw {
				if s, ok := e.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
		return v
	default:
		return v
	}
}
