package engine

import (
	"funnel-backend/internal/metadata"
)

// MatchRules returns every active rule for the trigger whose condition
// groups pass against the snapshot, in evaluation order (priority
// descending, creation order on ties). All matches fire; rules never
// shadow each other.
func MatchRules(reg *metadata.Registry, trigger metadata.Trigger, snap metadata.Snapshot) []*metadata.Rule {
	var matched []*metadata.Rule
	for _, rule := range reg.RulesForTrigger(trigger) {
		if EvaluateGroups(rule.Groups(), snap) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// MatchTransition picks the single winning transition among eligible
// candidates. Candidates must already be in selection order (priority
// descending, transition id ascending on ties); the first whose
// conditions pass wins. Returns nil when nothing matches.
func MatchTransition(candidates []*metadata.FunnelTransition, snap metadata.Snapshot) *metadata.FunnelTransition {
	for _, t := range candidates {
		if EvaluateGroups(t.Groups(), snap) {
			return t
		}
	}
	return nil
}
