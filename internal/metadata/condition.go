package metadata

import "sort"

// Operator is the comparison applied between a condition's target value
// and the resolved snapshot attribute.
type Operator string

const (
	OpEquals    Operator = "EQUALS"
	OpNotEquals Operator = "NOT_EQUALS"
	OpGT        Operator = "GT"
	OpGTE       Operator = "GTE"
	OpLT        Operator = "LT"
	OpLTE       Operator = "LTE"
	OpIn        Operator = "IN"
	OpNotIn     Operator = "NOT_IN"
	OpExists    Operator = "EXISTS"
	OpNotExists Operator = "NOT_EXISTS"
)

var knownOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true,
	OpGT: true, OpGTE: true, OpLT: true, OpLTE: true,
	OpIn: true, OpNotIn: true,
	OpExists: true, OpNotExists: true,
}

// Valid reports whether the operator is one of the supported comparisons.
func (o Operator) Valid() bool {
	return knownOperators[o]
}

// Condition is a single field comparison. Value is always stored as text
// and coerced at evaluation time. Conditions sharing a Group id are
// AND-ed; groups are OR-ed against each other. Group defaults to 0.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
	Group    int      `json:"group"`
}

// ConditionGroup is a set of conditions that must all hold.
type ConditionGroup []Condition

// GroupConditions partitions a flat condition list into explicit groups.
// The result is ordered by ascending group id; within a group, input
// order is preserved. The structure is strictly two-level: one OR level
// over AND groups, no nesting.
func GroupConditions(conds []Condition) []ConditionGroup {
	if len(conds) == 0 {
		return nil
	}

	byID := make(map[int]ConditionGroup)
	var ids []int
	for _, c := range conds {
		if _, seen := byID[c.Group]; !seen {
			ids = append(ids, c.Group)
		}
		byID[c.Group] = append(byID[c.Group], c)
	}
	sort.Ints(ids)

	groups := make([]ConditionGroup, 0, len(ids))
	for _, id := range ids {
		groups = append(groups, byID[id])
	}
	return groups
}
