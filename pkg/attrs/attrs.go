// Package attrs reads values back out of slog-style key/value lists so the
// same list can feed both a log line and an audit event.
package attrs

import "fmt"

// ExtractString returns the value paired with key in kv. Strings are
// returned as-is, fmt.Stringer values (typed ids, roles) are rendered, and
// anything else yields "". The first occurrence of key wins.
func ExtractString(kv []any, key string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); !ok || k != key {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		default:
			return ""
		}
	}
	return ""
}
