package engine

import (
	"testing"

	"funnel-backend/internal/metadata"
)

func snap(attrs map[string]any) metadata.Snapshot {
	return metadata.Snapshot{UserID: "u-1", Attrs: attrs}
}

func cond(field string, op metadata.Operator, value string) metadata.Condition {
	return metadata.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluateCondition_NumericComparisons(t *testing.T) {
	s := snap(map[string]any{"credits": float64(15)})

	// credits_balance resolves through the accessor dictionary
	if !EvaluateCondition(cond("credits_balance", metadata.OpLT, "20"), s) {
		t.Fatal("expected credits 15 < 20 to pass")
	}
	if EvaluateCondition(cond("credits_balance", metadata.OpLT, "20"), snap(map[string]any{"credits": float64(25)})) {
		t.Fatal("expected credits 25 < 20 to fail")
	}

	if !EvaluateCondition(cond("credits_balance", metadata.OpGTE, "15"), s) {
		t.Fatal("expected credits 15 >= 15 to pass")
	}
	if EvaluateCondition(cond("credits_balance", metadata.OpGT, "15"), s) {
		t.Fatal("expected credits 15 > 15 to fail")
	}
	if !EvaluateCondition(cond("credits_balance", metadata.OpLTE, "15"), s) {
		t.Fatal("expected credits 15 <= 15 to pass")
	}
}

func TestEvaluateCondition_NonNumericOrderingIsFalse(t *testing.T) {
	// GT against a non-numeric attribute degrades to false, never errors
	s := snap(map[string]any{"plan": "premium"})
	if EvaluateCondition(cond("plan", metadata.OpGT, "10"), s) {
		t.Fatal("expected GT on non-numeric value to be false")
	}
	// non-numeric target value is also false
	s = snap(map[string]any{"credits": float64(10)})
	if EvaluateCondition(cond("credits_balance", metadata.OpGT, "lots"), s) {
		t.Fatal("expected GT with non-numeric target to be false")
	}
}

func TestEvaluateCondition_EqualsCoercion(t *testing.T) {
	// boolean literal coerces before numbers
	s := snap(map[string]any{"last_payment_failed": true})
	if !EvaluateCondition(cond("last_payment_failed", metadata.OpEquals, "true"), s) {
		t.Fatal("expected bool true to equal literal \"true\"")
	}
	if !EvaluateCondition(cond("last_payment_failed", metadata.OpNotEquals, "false"), s) {
		t.Fatal("expected bool true to not-equal literal \"false\"")
	}

	// numeric equality across int/float representations
	s = snap(map[string]any{"generations_total": int64(5)})
	if !EvaluateCondition(cond("total_generations", metadata.OpEquals, "5"), s) {
		t.Fatal("expected int64(5) to equal \"5\"")
	}

	// falls back to text comparison
	s = snap(map[string]any{"plan": "premium"})
	if !EvaluateCondition(cond("plan", metadata.OpEquals, "premium"), s) {
		t.Fatal("expected text equality to pass")
	}
	if EvaluateCondition(cond("plan", metadata.OpEquals, "free"), s) {
		t.Fatal("expected text inequality to fail")
	}
}

func TestEvaluateCondition_InAndNotIn(t *testing.T) {
	s := snap(map[string]any{"tags": []string{"vip", "newsletter"}})

	// any overlap between the tag list and the target list counts
	if !EvaluateCondition(cond("user_tags", metadata.OpIn, "vip,beta"), s) {
		t.Fatal("expected tags [vip newsletter] IN vip,beta to pass")
	}
	if EvaluateCondition(cond("user_tags", metadata.OpIn, "beta,alpha"), s) {
		t.Fatal("expected tags [vip newsletter] IN beta,alpha to fail")
	}
	if !EvaluateCondition(cond("user_tags", metadata.OpNotIn, "beta,alpha"), s) {
		t.Fatal("expected NOT_IN beta,alpha to pass")
	}

	// scalar attribute membership
	s = snap(map[string]any{"plan": "pro"})
	if !EvaluateCondition(cond("plan", metadata.OpIn, "free, pro, enterprise"), s) {
		t.Fatal("expected plan pro IN list (with spaces) to pass")
	}
}

func TestEvaluateCondition_ExistsOperators(t *testing.T) {
	s := snap(map[string]any{"credits": float64(0)})

	if !EvaluateCondition(cond("credits_balance", metadata.OpExists, ""), s) {
		t.Fatal("expected EXISTS on present attribute to pass")
	}
	if !EvaluateCondition(cond("hours_since_last_payment", metadata.OpNotExists, ""), s) {
		t.Fatal("expected NOT_EXISTS on absent attribute to pass")
	}
	if EvaluateCondition(cond("hours_since_last_payment", metadata.OpExists, ""), s) {
		t.Fatal("expected EXISTS on absent attribute to fail")
	}
}

func TestEvaluateCondition_AbsentFieldAndUnknownOperator(t *testing.T) {
	s := snap(map[string]any{})

	if EvaluateCondition(cond("credits_balance", metadata.OpEquals, "10"), s) {
		t.Fatal("expected comparison on absent field to be false")
	}
	if EvaluateCondition(cond("credits_balance", metadata.Operator("LIKE"), "10"), s) {
		t.Fatal("expected unknown operator to be false")
	}
}

func TestEvaluateCondition_RawAttributeFallback(t *testing.T) {
	// fields outside the accessor dictionary resolve as raw attributes
	s := snap(map[string]any{"campaign": "spring"})
	if !EvaluateCondition(cond("campaign", metadata.OpEquals, "spring"), s) {
		t.Fatal("expected raw attribute fallback to resolve campaign")
	}
}

func TestEvaluateGroups_EmptySetPasses(t *testing.T) {
	if !EvaluateGroups(nil, snap(map[string]any{})) {
		t.Fatal("expected empty group set to match unconditionally")
	}
}

func TestEvaluateGroups_OrOfAnds(t *testing.T) {
	// group 0: credits < 20 AND payments >= 1
	// group 1: tags IN vip
	conds := []metadata.Condition{
		{Field: "credits_balance", Operator: metadata.OpLT, Value: "20", Group: 0},
		{Field: "total_payments", Operator: metadata.OpGTE, Value: "1", Group: 0},
		{Field: "user_tags", Operator: metadata.OpIn, Value: "vip", Group: 1},
	}
	groups := metadata.GroupConditions(conds)

	// group 0 fully satisfied
	s := snap(map[string]any{"credits": float64(10), "payments_total": int64(2)})
	if !EvaluateGroups(groups, s) {
		t.Fatal("expected group 0 to satisfy the OR")
	}

	// group 0 half satisfied, group 1 satisfied
	s = snap(map[string]any{"credits": float64(10), "tags": []string{"vip"}})
	if !EvaluateGroups(groups, s) {
		t.Fatal("expected group 1 to satisfy the OR")
	}

	// neither group satisfied
	s = snap(map[string]any{"credits": float64(50), "payments_total": int64(2)})
	if EvaluateGroups(groups, s) {
		t.Fatal("expected no group to match")
	}
}
