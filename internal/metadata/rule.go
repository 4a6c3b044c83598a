package metadata

import "sort"

// Trigger identifies the discrete event that initiates rule evaluation.
type Trigger string

const (
	TriggerUserRegistered      Trigger = "USER_REGISTERED"
	TriggerPaymentCompleted    Trigger = "PAYMENT_COMPLETED"
	TriggerPaymentFailed       Trigger = "PAYMENT_FAILED"
	TriggerGenerationCompleted Trigger = "GENERATION_COMPLETED"
	TriggerLowBalance          Trigger = "LOW_BALANCE"
	TriggerSubscriptionExpired Trigger = "SUBSCRIPTION_EXPIRED"
)

var knownTriggers = map[Trigger]bool{
	TriggerUserRegistered:      true,
	TriggerPaymentCompleted:    true,
	TriggerPaymentFailed:       true,
	TriggerGenerationCompleted: true,
	TriggerLowBalance:          true,
	TriggerSubscriptionExpired: true,
}

// KnownTrigger reports whether t is a recognized trigger value.
func KnownTrigger(t Trigger) bool {
	return knownTriggers[t]
}

// Action is one side effect in a rule or transition. Config is opaque to
// the engine and interpreted by the handler registered for Type.
type Action struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
	Order  int            `json:"order"`
}

// SortActions orders actions by ascending Order, preserving input order
// for equal values.
func SortActions(actions []Action) []Action {
	sorted := make([]Action, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}

// Rule is a single automation rule from the _automation_rules table.
type Rule struct {
	ID         string      `json:"id"`
	Code       string      `json:"code"`
	Trigger    Trigger     `json:"trigger"`
	Priority   int         `json:"priority"`
	Active     bool        `json:"active"`
	GroupName  string      `json:"group_name,omitempty"` // organizational label, no evaluation semantics
	Conditions []Condition `json:"conditions"`
	Actions    []Action    `json:"actions"`

	// Position is the creation order, used as the stable tiebreak when
	// priorities are equal. Not serialized.
	Position int `json:"-"`
}

// Groups returns the rule's conditions as explicit OR-of-AND groups.
func (r *Rule) Groups() []ConditionGroup {
	return GroupConditions(r.Conditions)
}

// OrderedActions returns the rule's actions in execution order.
func (r *Rule) OrderedActions() []Action {
	return SortActions(r.Actions)
}
