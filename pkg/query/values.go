package query

import (
	"fmt"
	"strings"
	"time"
)

func valueEquals(a, b any) bool {
	return compareAny(a, b) == 0
}

func valueIn(value any, values []any) bool {
	for _, v := range values {
		if valueEquals(value, v) {
			return true
		}
	}
	return false
}

func contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

// compareAny orders two property values. A nil operand (the selector
// property absent on a candidate) sorts as the minimum possible value,
// so an absent selector never wins a max-reduce and always loses a
// min-reduce. time.Time compares chronologically, numeric kinds compare
// numerically, everything else falls back to a string comparison —
// sufficient for every property kind the declared schemas in pkg/domain
// use.
func compareAny(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
