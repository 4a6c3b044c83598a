package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"funnel-backend/internal/store"
)

// LoadAll reads the automation configuration from the system tables and
// populates the registry. Called during startup and after admin mutations.
func LoadAll(ctx context.Context, q store.Querier, dialect store.Dialect, reg *Registry) error {
	rules, err := loadRules(ctx, q, dialect)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	reg.LoadRules(rules)

	version, states, transitions, err := loadActiveFunnel(ctx, q, dialect)
	if err != nil {
		return fmt.Errorf("load funnel: %w", err)
	}
	reg.LoadFunnel(version, states, transitions)

	for _, w := range reg.Warnings() {
		log.Printf("WARN: %s", w)
	}
	log.Printf("Loaded %d rules, funnel version %s (%d states, %d transitions) into registry",
		len(rules), versionLabel(version), len(states), len(transitions))
	return nil
}

// Reload is an alias for LoadAll, called after admin mutations.
func Reload(ctx context.Context, q store.Querier, dialect store.Dialect, reg *Registry) error {
	return LoadAll(ctx, q, dialect, reg)
}

func versionLabel(v *FunnelVersion) string {
	if v == nil {
		return "<none>"
	}
	return v.ID
}

func loadRules(ctx context.Context, q store.Querier, dialect store.Dialect) ([]*Rule, error) {
	rows, err := store.QueryRows(ctx, q,
		`SELECT id, code, "trigger", priority, active, group_name, conditions, actions, position
		 FROM _automation_rules ORDER BY position`)
	if err != nil {
		return nil, err
	}
	store.NormalizeBooleans(rows, []string{"active"}, dialect)

	var rules []*Rule
	for _, row := range rows {
		r := &Rule{
			ID:        fmt.Sprintf("%v", row["id"]),
			Code:      fmt.Sprintf("%v", row["code"]),
			Trigger:   Trigger(fmt.Sprintf("%v", row["trigger"])),
			Priority:  toInt(row["priority"]),
			Position:  toInt(row["position"]),
			GroupName: stringOrEmpty(row["group_name"]),
		}
		if b, ok := row["active"].(bool); ok {
			r.Active = b
		}
		if err := unmarshalColumn(row["conditions"], &r.Conditions); err != nil {
			log.Printf("WARN: skipping rule %s (invalid conditions JSON): %v", r.Code, err)
			continue
		}
		if err := unmarshalColumn(row["actions"], &r.Actions); err != nil {
			log.Printf("WARN: skipping rule %s (invalid actions JSON): %v", r.Code, err)
			continue
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func loadActiveFunnel(ctx context.Context, q store.Querier, dialect store.Dialect) (*FunnelVersion, []*FunnelState, []*FunnelTransition, error) {
	rows, err := store.QueryRows(ctx, q,
		`SELECT id, name, active FROM _funnel_versions WHERE active ORDER BY id LIMIT 1`)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, nil, nil
	}
	version := &FunnelVersion{
		ID:     fmt.Sprintf("%v", rows[0]["id"]),
		Name:   fmt.Sprintf("%v", rows[0]["name"]),
		Active: true,
	}

	pb := dialect.NewParamBuilder()
	stateRows, err := store.QueryRows(ctx, q,
		fmt.Sprintf(`SELECT id, version_id, name, is_initial, is_terminal
		 FROM _funnel_states WHERE version_id = %s ORDER BY id`, pb.Add(version.ID)),
		pb.Params()...)
	if err != nil {
		return nil, nil, nil, err
	}
	store.NormalizeBooleans(stateRows, []string{"is_initial", "is_terminal"}, dialect)

	var states []*FunnelState
	for _, row := range stateRows {
		s := &FunnelState{
			ID:        fmt.Sprintf("%v", row["id"]),
			VersionID: version.ID,
			Name:      fmt.Sprintf("%v", row["name"]),
		}
		s.Initial, _ = row["is_initial"].(bool)
		s.Terminal, _ = row["is_terminal"].(bool)
		states = append(states, s)
	}

	pb = dialect.NewParamBuilder()
	trRows, err := store.QueryRows(ctx, q,
		fmt.Sprintf(`SELECT id, version_id, from_state_id, to_state_id, trigger_type, trigger_event,
		 time_from, time_to, timeout_minutes, priority, conditions, actions
		 FROM _funnel_transitions WHERE version_id = %s ORDER BY id`, pb.Add(version.ID)),
		pb.Params()...)
	if err != nil {
		return nil, nil, nil, err
	}

	var transitions []*FunnelTransition
	for _, row := range trRows {
		t := &FunnelTransition{
			ID:             fmt.Sprintf("%v", row["id"]),
			VersionID:      version.ID,
			FromStateID:    fmt.Sprintf("%v", row["from_state_id"]),
			ToStateID:      fmt.Sprintf("%v", row["to_state_id"]),
			TriggerType:    TriggerType(fmt.Sprintf("%v", row["trigger_type"])),
			TriggerEvent:   stringOrEmpty(row["trigger_event"]),
			TimeFrom:       stringOrEmpty(row["time_from"]),
			TimeTo:         stringOrEmpty(row["time_to"]),
			TimeoutMinutes: toInt(row["timeout_minutes"]),
			Priority:       toInt(row["priority"]),
		}
		if err := unmarshalColumn(row["conditions"], &t.Conditions); err != nil {
			log.Printf("WARN: skipping transition %s (invalid conditions JSON): %v", t.ID, err)
			continue
		}
		if err := unmarshalColumn(row["actions"], &t.Actions); err != nil {
			log.Printf("WARN: skipping transition %s (invalid actions JSON): %v", t.ID, err)
			continue
		}
		transitions = append(transitions, t)
	}

	return version, states, transitions, nil
}

// unmarshalColumn decodes a JSONB/TEXT column that may come back as
// []byte, string, or already-decoded value depending on the driver.
func unmarshalColumn(raw any, dst any) error {
	if raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, dst)
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func stringOrEmpty(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
