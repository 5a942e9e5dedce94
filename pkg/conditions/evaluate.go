package conditions

import "strings"

// Evaluate walks the tree against a payload field map and returns whether it
// matches. It is pure: no side effects, deterministic, and it never panics on
// well-formed trees (see Validate). A nil tree matches everything. A leaf
// addressing an absent field evaluates exists/not_exists normally and every
// other operator to false; absence is data, not an error.
func Evaluate(root *Node, payload map[string]any) bool {
	if root == nil {
		return true
	}

	return eval(root, payload)
}

// eval assumes a validated tree: children are non-nil and groups are
// non-empty. Group evaluation short-circuits, AND at the first false and OR at
// the first true.
func eval(node *Node, payload map[string]any) bool {
	if node.IsGroup() {
		if node.Combinator == CombinatorOr {
			for _, child := range node.Children {
				if eval(child, payload) {
					return true
				}
			}

			return false
		}

		for _, child := range node.Children {
			if !eval(child, payload) {
				return false
			}
		}

		return true
	}

	return evalLeaf(node, payload)
}

func evalLeaf(node *Node, payload map[string]any) bool {
	value, present := Lookup(payload, node.Field)

	switch node.Operator {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	}

	if !present {
		return false
	}

	switch node.Operator {
	case OpEquals:
		return valuesEqual(value, node.Value)
	case OpNotEquals:
		return !valuesEqual(value, node.Value)
	case OpGreaterThan:
		left, right, ok := numericPair(value, node.Value)

		return ok && left > right
	case OpLessThan:
		left, right, ok := numericPair(value, node.Value)

		return ok && left < right
	case OpContains:
		return contains(value, node.Value)
	case OpNotContains:
		return !contains(value, node.Value)
	default:
		// Unknown operators are rejected by Validate; treat as non-matching
		// rather than failing the dispatch.
		return false
	}
}

// valuesEqual compares after normalizing numeric types; there is no implicit
// string coercion.
func valuesEqual(left, right any) bool {
	leftNum, leftOK := asNumber(left)
	rightNum, rightOK := asNumber(right)

	if leftOK || rightOK {
		return leftOK && rightOK && leftNum == rightNum
	}

	switch l := left.(type) {
	case string:
		r, ok := right.(string)

		return ok && l == r
	case bool:
		r, ok := right.(bool)

		return ok && l == r
	case nil:
		return right == nil
	default:
		return false
	}
}

func numericPair(left, right any) (float64, float64, bool) {
	leftNum, leftOK := asNumber(left)
	rightNum, rightOK := asNumber(right)

	return leftNum, rightNum, leftOK && rightOK
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

// contains is substring match for strings and membership for sequences. Any
// other field type does not match. An empty-string needle is treated as a
// misconfigured condition and never matches, diverging from strings.Contains
// on purpose (see the Operator doc).
func contains(value, needle any) bool {
	switch v := value.(type) {
	case string:
		n, ok := needle.(string)

		return ok && n != "" && strings.Contains(v, n)
	case []any:
		for _, item := range v {
			if valuesEqual(item, needle) {
				return true
			}
		}

		return false
	default:
		return false
	}
}
