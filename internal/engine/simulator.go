package engine

import (
	"context"
	"fmt"

	"funnel-backend/internal/metadata"
)

// Simulator answers "which rules would fire" without dispatching
// anything. It shares the matcher with the live path, so a simulation
// and a real firing against the same snapshot always agree.
type Simulator struct {
	registry *metadata.Registry
	provider ContextProvider
}

func NewSimulator(reg *metadata.Registry, provider ContextProvider) *Simulator {
	return &Simulator{registry: reg, provider: provider}
}

// SimulatedRule is one candidate rule in a simulation report.
type SimulatedRule struct {
	RuleID   string `json:"rule_id"`
	Code     string `json:"code"`
	Priority int    `json:"priority"`
	Matched  bool   `json:"matched"`
}

// SimulationResult reports every candidate for the trigger and whether
// it matched.
type SimulationResult struct {
	Trigger         string          `json:"trigger"`
	TotalCandidates int             `json:"total_candidates"`
	MatchedCount    int             `json:"matched_count"`
	Rules           []SimulatedRule `json:"rules"`
}

// Simulate evaluates the trigger's rules against the snapshot. No
// actions run and no state changes; repeating the call with the same
// snapshot yields the same result.
func (s *Simulator) Simulate(trigger metadata.Trigger, snap metadata.Snapshot) (*SimulationResult, error) {
	if !metadata.KnownTrigger(trigger) {
		return nil, ErrUnknownTrigger
	}

	candidates := s.registry.RulesForTrigger(trigger)
	result := &SimulationResult{
		Trigger:         string(trigger),
		TotalCandidates: len(candidates),
		Rules:           make([]SimulatedRule, 0, len(candidates)),
	}
	for _, rule := range candidates {
		matched := EvaluateGroups(rule.Groups(), snap)
		if matched {
			result.MatchedCount++
		}
		result.Rules = append(result.Rules, SimulatedRule{
			RuleID:   rule.ID,
			Code:     rule.Code,
			Priority: rule.Priority,
			Matched:  matched,
		})
	}
	return result, nil
}

// SimulateUser fetches the user's live snapshot and simulates against it.
func (s *Simulator) SimulateUser(ctx context.Context, trigger metadata.Trigger, userID string) (*SimulationResult, error) {
	snap, err := s.provider.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.Simulate(trigger, snap)
}

// SnapshotFromContext builds a snapshot from a hand-written attribute
// map, as submitted to the simulation endpoint. Attribute values must be
// scalars or lists of strings.
func SnapshotFromContext(userID string, raw map[string]any) (metadata.Snapshot, error) {
	if raw == nil {
		return metadata.Snapshot{}, ErrMalformedContext
	}
	attrs := make(map[string]any, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			// absent attribute
		case bool, float64, int, int64, string:
			attrs[key] = v
		case []any:
			tags := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return metadata.Snapshot{}, fmt.Errorf("%w: attribute %q has a non-string list element", ErrMalformedContext, key)
				}
				tags = append(tags, s)
			}
			attrs[key] = tags
		case []string:
			attrs[key] = v
		default:
			return metadata.Snapshot{}, fmt.Errorf("%w: attribute %q has unsupported type %T", ErrMalformedContext, key, value)
		}
	}
	return metadata.Snapshot{UserID: userID, Attrs: attrs}, nil
}
