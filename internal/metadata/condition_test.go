package metadata

import "testing"

func TestGroupConditions(t *testing.T) {
	conds := []Condition{
		{Field: "a", Operator: OpEquals, Value: "1", Group: 1},
		{Field: "b", Operator: OpEquals, Value: "2", Group: 0},
		{Field: "c", Operator: OpEquals, Value: "3", Group: 1},
		{Field: "d", Operator: OpEquals, Value: "4", Group: 0},
	}

	groups := GroupConditions(conds)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	// ascending group id
	if groups[0][0].Field != "b" || groups[0][1].Field != "d" {
		t.Fatalf("group 0 should hold [b d] in input order, got %v", groups[0])
	}
	if groups[1][0].Field != "a" || groups[1][1].Field != "c" {
		t.Fatalf("group 1 should hold [a c] in input order, got %v", groups[1])
	}
}

func TestGroupConditions_Empty(t *testing.T) {
	if groups := GroupConditions(nil); groups != nil {
		t.Fatalf("expected nil for empty input, got %v", groups)
	}
}

func TestOperatorValid(t *testing.T) {
	for _, op := range []Operator{OpEquals, OpNotEquals, OpGT, OpGTE, OpLT, OpLTE, OpIn, OpNotIn, OpExists, OpNotExists} {
		if !op.Valid() {
			t.Fatalf("expected %s to be valid", op)
		}
	}
	if Operator("LIKE").Valid() {
		t.Fatal("expected LIKE to be invalid")
	}
}

func TestSortActions_StableOnEqualOrder(t *testing.T) {
	actions := []Action{
		{Type: "c", Order: 2},
		{Type: "a", Order: 1},
		{Type: "b", Order: 1},
	}
	sorted := SortActions(actions)
	if sorted[0].Type != "a" || sorted[1].Type != "b" || sorted[2].Type != "c" {
		t.Fatalf("expected [a b c], got %v", sorted)
	}
	// input untouched
	if actions[0].Type != "c" {
		t.Fatal("SortActions must not mutate its input")
	}
}
