package engine

import (
	"strconv"
	"strings"

	"funnel-backend/internal/metadata"
)

// EvaluateCondition applies a single condition against a user snapshot.
// Evaluation is total: any malformed condition, unresolvable field, or
// type mismatch yields false rather than an error, so one bad condition
// can never take down a trigger path.
func EvaluateCondition(cond metadata.Condition, snap metadata.Snapshot) bool {
	actual, present := metadata.ResolveField(cond.Field, snap)

	switch cond.Operator {
	case metadata.OpExists:
		return present
	case metadata.OpNotExists:
		return !present
	}

	if !present {
		return false
	}

	switch cond.Operator {
	case metadata.OpEquals:
		return looseEqual(actual, cond.Value)
	case metadata.OpNotEquals:
		return !looseEqual(actual, cond.Value)
	case metadata.OpGT, metadata.OpGTE, metadata.OpLT, metadata.OpLTE:
		return compareNumeric(actual, cond.Value, cond.Operator)
	case metadata.OpIn:
		return inList(actual, cond.Value)
	case metadata.OpNotIn:
		return !inList(actual, cond.Value)
	default:
		return false
	}
}

// EvaluateGroups applies OR-of-AND semantics: every condition within a
// group must hold, and at least one group must hold. An empty group set
// matches unconditionally.
func EvaluateGroups(groups []metadata.ConditionGroup, snap metadata.Snapshot) bool {
	if len(groups) == 0 {
		return true
	}
	for _, group := range groups {
		if groupPasses(group, snap) {
			return true
		}
	}
	return false
}

func groupPasses(group metadata.ConditionGroup, snap metadata.Snapshot) bool {
	for _, cond := range group {
		if !EvaluateCondition(cond, snap) {
			return false
		}
	}
	return true
}

// coerceValue interprets a stored text value as the most specific type it
// parses as: boolean literal first, then number, then raw text.
func coerceValue(raw string) any {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return n
	}
	return raw
}

// toFloat attempts a numeric view of an attribute value.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case int64:
		return val != 0, true
	case int:
		return val != 0, true
	case float64:
		return val != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	}
	return false, false
}

func toText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// looseEqual compares an attribute against a stored text value, matching
// in the most specific shared type. Booleans compare as booleans, numbers
// as numbers, everything else as text.
func looseEqual(actual any, target string) bool {
	switch expected := coerceValue(target).(type) {
	case bool:
		if b, ok := toBool(actual); ok {
			return b == expected
		}
		return false
	case float64:
		if n, ok := toFloat(actual); ok {
			return n == expected
		}
		return false
	default:
		return toText(actual) == target
	}
}

// compareNumeric handles the ordering operators. Both sides must be
// numeric; anything else is false.
func compareNumeric(actual any, target string, op metadata.Operator) bool {
	a, ok := toFloat(actual)
	if !ok {
		return false
	}
	t, ok := toFloat(target)
	if !ok {
		return false
	}
	switch op {
	case metadata.OpGT:
		return a > t
	case metadata.OpGTE:
		return a >= t
	case metadata.OpLT:
		return a < t
	case metadata.OpLTE:
		return a <= t
	}
	return false
}

// inList checks membership against a comma-separated target list. When
// the attribute is itself a list (user tags), any overlap counts.
func inList(actual any, target string) bool {
	items := splitList(target)
	if len(items) == 0 {
		return false
	}

	switch vals := actual.(type) {
	case []string:
		for _, v := range vals {
			if listContains(items, v) {
				return true
			}
		}
		return false
	case []any:
		for _, v := range vals {
			if listContains(items, toText(v)) {
				return true
			}
		}
		return false
	default:
		return listContains(items, toText(actual))
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			items = append(items, p)
		}
	}
	return items
}

func listContains(items []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}
