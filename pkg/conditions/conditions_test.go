package conditions

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderPayload() map[string]any {
	return map[string]any{
		"orderId":     "ord_1",
		"totalAmount": float64(5000),
		"currency":    "USD",
		"customer": map[string]any{
			"email": "ada@example.com",
			"vip":   true,
		},
		"tags": []any{"priority", "gift"},
		"items": []any{
			map[string]any{"productId": "p1", "quantity": float64(2)},
			map[string]any{"productId": "p2", "quantity": float64(1)},
		},
		"couponCode": nil,
	}
}

func TestEvaluateNilTreeMatchesEverything(t *testing.T) {
	assert.True(t, Evaluate(nil, orderPayload()))
	assert.True(t, Evaluate(nil, nil))
	assert.True(t, Evaluate(nil, map[string]any{}))
}

func TestEvaluateLeafOperators(t *testing.T) {
	tests := []struct {
		name string
		node *Node
		want bool
	}{
		{"equals string", &Node{Field: "currency", Operator: OpEquals, Value: "USD"}, true},
		{"equals string mismatch", &Node{Field: "currency", Operator: OpEquals, Value: "EUR"}, false},
		{"equals normalizes numerics", &Node{Field: "totalAmount", Operator: OpEquals, Value: 5000}, true},
		{"equals no string coercion", &Node{Field: "totalAmount", Operator: OpEquals, Value: "5000"}, false},
		{"equals bool", &Node{Field: "customer.vip", Operator: OpEquals, Value: true}, true},
		{"not_equals", &Node{Field: "currency", Operator: OpNotEquals, Value: "EUR"}, true},
		{"greater_than", &Node{Field: "totalAmount", Operator: OpGreaterThan, Value: 1000}, true},
		{"greater_than boundary", &Node{Field: "totalAmount", Operator: OpGreaterThan, Value: 5000}, false},
		{"greater_than non-numeric field", &Node{Field: "currency", Operator: OpGreaterThan, Value: 1000}, false},
		{"greater_than non-numeric value", &Node{Field: "totalAmount", Operator: OpGreaterThan, Value: "low"}, false},
		{"less_than", &Node{Field: "items.0.quantity", Operator: OpLessThan, Value: 3}, true},
		{"contains substring", &Node{Field: "customer.email", Operator: OpContains, Value: "@example."}, true},
		{"contains sequence membership", &Node{Field: "tags", Operator: OpContains, Value: "gift"}, true},
		{"contains sequence non-member", &Node{Field: "tags", Operator: OpContains, Value: "sale"}, false},
		{"not_contains", &Node{Field: "customer.email", Operator: OpNotContains, Value: "@spam."}, true},
		{"contains empty needle never matches", &Node{Field: "customer.email", Operator: OpContains, Value: ""}, false},
		{"not_contains empty needle", &Node{Field: "customer.email", Operator: OpNotContains, Value: ""}, true},
		{"contains on non-sequence", &Node{Field: "totalAmount", Operator: OpContains, Value: 5}, false},
		{"exists", &Node{Field: "customer.email", Operator: OpExists}, true},
		{"exists on explicit null", &Node{Field: "couponCode", Operator: OpExists}, true},
		{"not_exists on absent", &Node{Field: "shippingMethod", Operator: OpNotExists}, true},
		{"not_exists on present", &Node{Field: "currency", Operator: OpNotExists}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.node, orderPayload()))
		})
	}
}

func TestEvaluateAbsentFieldNeverMatchesNeverPanics(t *testing.T) {
	operators := []Operator{OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpNotContains}

	for _, op := range operators {
		t.Run(string(op), func(t *testing.T) {
			node := &Node{Field: "shipping.address.zip", Operator: op, Value: "anything"}

			assert.NotPanics(t, func() {
				assert.False(t, Evaluate(node, orderPayload()))
			})
		})
	}
}

func TestEvaluateGroups(t *testing.T) {
	trueLeaf := &Node{Field: "currency", Operator: OpEquals, Value: "USD"}
	falseLeaf := &Node{Field: "currency", Operator: OpEquals, Value: "EUR"}

	tests := []struct {
		name string
		node *Node
		want bool
	}{
		{"and all true", &Node{Combinator: CombinatorAnd, Children: []*Node{trueLeaf, trueLeaf}}, true},
		{"and one false", &Node{Combinator: CombinatorAnd, Children: []*Node{trueLeaf, falseLeaf}}, false},
		{"or one true", &Node{Combinator: CombinatorOr, Children: []*Node{falseLeaf, trueLeaf}}, true},
		{"or all false", &Node{Combinator: CombinatorOr, Children: []*Node{falseLeaf, falseLeaf}}, false},
		{
			"nested groups",
			&Node{Combinator: CombinatorAnd, Children: []*Node{
				trueLeaf,
				{Combinator: CombinatorOr, Children: []*Node{falseLeaf, trueLeaf}},
			}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.node, orderPayload()))
		})
	}
}

// A nil child panics if evaluated, so these trees only return cleanly when the
// combinator stops at the first decisive child.
func TestEvaluateShortCircuits(t *testing.T) {
	trueLeaf := &Node{Field: "currency", Operator: OpEquals, Value: "USD"}
	falseLeaf := &Node{Field: "currency", Operator: OpEquals, Value: "EUR"}

	andTree := &Node{Combinator: CombinatorAnd, Children: []*Node{falseLeaf, nil}}
	orTree := &Node{Combinator: CombinatorOr, Children: []*Node{trueLeaf, nil}}

	assert.NotPanics(t, func() {
		assert.False(t, Evaluate(andTree, orderPayload()))
	})
	assert.NotPanics(t, func() {
		assert.True(t, Evaluate(orTree, orderPayload()))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		node    *Node
		wantErr error
	}{
		{"nil tree", nil, nil},
		{"valid leaf", &Node{Field: "currency", Operator: OpEquals, Value: "USD"}, nil},
		{"leaf without field", &Node{Operator: OpEquals, Value: "USD"}, ErrMissingField},
		{"leaf with unknown operator", &Node{Field: "currency", Operator: "matches"}, ErrUnknownOperator},
		{"empty group", &Node{Combinator: CombinatorAnd}, ErrEmptyGroup},
		{"unknown combinator", &Node{Combinator: "xor", Children: []*Node{{Field: "a", Operator: OpExists}}}, ErrUnknownCombinator},
		{"nil child", &Node{Combinator: CombinatorAnd, Children: []*Node{nil}}, ErrNilChild},
		{
			"valid group",
			&Node{Combinator: CombinatorOr, Children: []*Node{
				{Field: "currency", Operator: OpEquals, Value: "USD"},
				{Field: "totalAmount", Operator: OpGreaterThan, Value: 100},
			}},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.node, 0)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateDepthBound(t *testing.T) {
	leaf := &Node{Field: "currency", Operator: OpExists}

	root := leaf
	for range 5 {
		root = &Node{Combinator: CombinatorAnd, Children: []*Node{root}}
	}

	assert.NoError(t, Validate(root, 10))

	err := Validate(root, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTreeTooDeep)
}

func TestLookup(t *testing.T) {
	payload := orderPayload()

	value, ok := Lookup(payload, "items.1.productId")
	require.True(t, ok)
	assert.Equal(t, "p2", value)

	_, ok = Lookup(payload, "items.9.productId")
	assert.False(t, ok)

	_, ok = Lookup(payload, "items.first.productId")
	assert.False(t, ok)

	_, ok = Lookup(payload, "")
	assert.False(t, ok)

	value, ok = Lookup(payload, "couponCode")
	require.True(t, ok, "explicit null is present")
	assert.Nil(t, value)

	_, ok = Lookup(payload, "orderId.sub")
	assert.False(t, ok, "cannot descend into a scalar")
}

func TestEvaluateDeterministic(t *testing.T) {
	tree := &Node{Combinator: CombinatorAnd, Children: []*Node{
		{Field: "totalAmount", Operator: OpGreaterThan, Value: 1000},
		{Field: "customer.email", Operator: OpContains, Value: strings.ToLower("@EXAMPLE.COM")},
	}}

	payload := orderPayload()
	first := Evaluate(tree, payload)

	for range 20 {
		assert.Equal(t, first, Evaluate(tree, payload))
	}
}
