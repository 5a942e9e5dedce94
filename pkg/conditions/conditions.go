// Package conditions implements the boolean condition trees that decide
// whether a workflow runs for a given trigger event. A tree is either a leaf
// comparison against a payload field or an AND/OR group of subtrees.
package conditions

import (
	"errors"
	"fmt"
)

// Operator is the comparison applied by a leaf node. The set is closed.
//
// Contains is substring match for string fields and membership for list
// fields. An empty-string needle never matches: a definition comparing
// against "" is almost always a half-filled builder form, and having it
// match every record would fire the workflow on everything.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

// Combinator joins the children of a group node.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// Node is one node of a condition tree. A node with a non-empty Combinator is
// a group and only Children applies; otherwise it is a leaf and Field,
// Operator and Value apply. Field is a dotted path into the event payload
// (list indexes are numeric segments, e.g. "items.0.quantity").
type Node struct {
	Field    string   `json:"field,omitempty"`
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`

	Combinator Combinator `json:"combinator,omitempty"`
	Children   []*Node    `json:"children,omitempty"`
}

// IsGroup reports whether the node is an AND/OR group.
func (n *Node) IsGroup() bool {
	return n != nil && n.Combinator != ""
}

// DefaultMaxDepth bounds condition tree nesting. Trees beyond this are a
// definition error, rejected at save or dispatch time, never at evaluation
// time.
const DefaultMaxDepth = 32

var (
	ErrTreeTooDeep       = errors.New("condition tree exceeds maximum depth")
	ErrUnknownOperator   = errors.New("unknown condition operator")
	ErrUnknownCombinator = errors.New("unknown condition combinator")
	ErrEmptyGroup        = errors.New("condition group has no children")
	ErrMissingField      = errors.New("condition leaf has no field path")
	ErrNilChild          = errors.New("condition group has a nil child")
)

// Validate checks structural soundness of a tree: known operators and
// combinators, non-empty groups, no nil children, depth within maxDepth
// (DefaultMaxDepth when maxDepth <= 0). A nil tree is valid and matches
// everything.
func Validate(root *Node, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	return validate(root, maxDepth, 1)
}

func validate(node *Node, maxDepth, depth int) error {
	if node == nil {
		if depth == 1 {
			return nil
		}

		return ErrNilChild
	}

	if depth > maxDepth {
		return fmt.Errorf("%w (max %d)", ErrTreeTooDeep, maxDepth)
	}

	if node.IsGroup() {
		if node.Combinator != CombinatorAnd && node.Combinator != CombinatorOr {
			return fmt.Errorf("%w: %q", ErrUnknownCombinator, node.Combinator)
		}

		if len(node.Children) == 0 {
			return ErrEmptyGroup
		}

		for _, child := range node.Children {
			if child == nil {
				return ErrNilChild
			}

			err := validate(child, maxDepth, depth+1)
			if err != nil {
				return err
			}
		}

		return nil
	}

	if node.Field == "" {
		return ErrMissingField
	}

	switch node.Operator {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan,
		OpContains, OpNotContains, OpExists, OpNotExists:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperator, node.Operator)
	}
}
