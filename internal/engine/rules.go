package engine

import (
	"context"

	"funnel-backend/internal/instrument"
	"funnel-backend/internal/metadata"
)

// RulesEngine evaluates and fires automation rules for discrete triggers.
type RulesEngine struct {
	registry   *metadata.Registry
	provider   ContextProvider
	dispatcher *Dispatcher
}

func NewRulesEngine(reg *metadata.Registry, provider ContextProvider, dispatcher *Dispatcher) *RulesEngine {
	return &RulesEngine{registry: reg, provider: provider, dispatcher: dispatcher}
}

// RuleOutcome is one fired rule with its per-action results.
type RuleOutcome struct {
	RuleID  string         `json:"rule_id"`
	Code    string         `json:"code"`
	Actions []ActionResult `json:"actions"`
}

// FireResult reports everything a trigger firing did for one user.
type FireResult struct {
	Trigger string        `json:"trigger"`
	UserID  string        `json:"user_id"`
	Fired   []RuleOutcome `json:"fired"`
}

// Evaluate returns the rules that would fire for the trigger, in firing
// order, without running any action.
func (e *RulesEngine) Evaluate(ctx context.Context, trigger metadata.Trigger, userID string) ([]*metadata.Rule, error) {
	if !metadata.KnownTrigger(trigger) {
		return nil, ErrUnknownTrigger
	}
	snap, err := e.provider.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return MatchRules(e.registry, trigger, snap), nil
}

// Fire evaluates the trigger and dispatches the actions of every matched
// rule. All matches fire; a failing action in one rule never blocks the
// next rule.
func (e *RulesEngine) Fire(ctx context.Context, trigger metadata.Trigger, userID string) (*FireResult, error) {
	matched, err := e.Evaluate(ctx, trigger, userID)
	if err != nil {
		return nil, err
	}

	inst := instrument.GetInstrumenter(ctx)
	result := &FireResult{Trigger: string(trigger), UserID: userID, Fired: make([]RuleOutcome, 0, len(matched))}
	for _, rule := range matched {
		outcome := RuleOutcome{RuleID: rule.ID, Code: rule.Code}
		outcome.Actions = e.dispatcher.Dispatch(ctx, userID, rule.Actions)
		result.Fired = append(result.Fired, outcome)

		inst.EmitBusinessEvent(ctx, "rule.fired", "rule", rule.ID, map[string]any{
			"trigger": string(trigger),
			"user_id": userID,
			"code":    rule.Code,
		})
	}
	return result, nil
}
