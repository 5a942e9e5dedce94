package conditions

import (
	"strconv"
	"strings"
)

// Lookup resolves a dotted field path inside a payload map. Numeric segments
// index into sequences ("items.0.quantity"). The second return reports
// presence: a path that resolves to an explicit nil is present.
func Lookup(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = payload

	for _, segment := range strings.Split(path, ".") {
		switch container := current.(type) {
		case map[string]any:
			value, ok := container[segment]
			if !ok {
				return nil, false
			}

			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(container) {
				return nil, false
			}

			current = container[index]
		default:
			return nil, false
		}
	}

	return current, true
}
