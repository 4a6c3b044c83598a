package admin

import (
	"fmt"

	"funnel-backend/internal/engine"
	"funnel-backend/internal/metadata"
)

// ruleInput is the write payload for an automation rule.
type ruleInput struct {
	Code       string               `json:"code"`
	Trigger    string               `json:"trigger"`
	Priority   int                  `json:"priority"`
	Active     *bool                `json:"active,omitempty"`
	GroupName  string               `json:"group_name,omitempty"`
	Conditions []metadata.Condition `json:"conditions"`
	Actions    []metadata.Action    `json:"actions"`
}

// transitionInput is the write payload for a funnel transition.
type transitionInput struct {
	FromStateID    string               `json:"from_state_id"`
	ToStateID      string               `json:"to_state_id"`
	TriggerType    string               `json:"trigger_type"`
	TriggerEvent   string               `json:"trigger_event,omitempty"`
	TimeFrom       string               `json:"time_from,omitempty"`
	TimeTo         string               `json:"time_to,omitempty"`
	TimeoutMinutes int                  `json:"timeout_minutes,omitempty"`
	Priority       int                  `json:"priority"`
	Conditions     []metadata.Condition `json:"conditions"`
	Actions        []metadata.Action    `json:"actions"`
}

// stateInput is the write payload for a funnel state.
type stateInput struct {
	Name     string `json:"name"`
	Initial  bool   `json:"is_initial"`
	Terminal bool   `json:"is_terminal"`
}

func validateRule(in *ruleInput) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	if in.Code == "" {
		details = append(details, engine.ErrorDetail{Field: "code", Message: "code is required"})
	}
	if !metadata.KnownTrigger(metadata.Trigger(in.Trigger)) {
		details = append(details, engine.ErrorDetail{Field: "trigger", Message: fmt.Sprintf("unknown trigger %q", in.Trigger)})
	}
	details = append(details, validateConditions(in.Conditions)...)
	details = append(details, validateActions(in.Actions)...)
	return details
}

func validateTransition(in *transitionInput) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	if in.FromStateID == "" {
		details = append(details, engine.ErrorDetail{Field: "from_state_id", Message: "from_state_id is required"})
	}
	if in.ToStateID == "" {
		details = append(details, engine.ErrorDetail{Field: "to_state_id", Message: "to_state_id is required"})
	}

	switch metadata.TriggerType(in.TriggerType) {
	case metadata.TriggerTypeEvent:
		if in.TriggerEvent == "" {
			details = append(details, engine.ErrorDetail{Field: "trigger_event", Message: "trigger_event is required for EVENT transitions"})
		}
	case metadata.TriggerTypeTimeout:
		if in.TimeoutMinutes <= 0 {
			details = append(details, engine.ErrorDetail{Field: "timeout_minutes", Message: "timeout_minutes must be positive for TIMEOUT transitions"})
		}
	case metadata.TriggerTypeTime:
		if _, err := metadata.ParseTimeOfDay(in.TimeFrom); err != nil {
			details = append(details, engine.ErrorDetail{Field: "time_from", Message: err.Error()})
		}
		if in.TimeTo != "" {
			if _, err := metadata.ParseTimeOfDay(in.TimeTo); err != nil {
				details = append(details, engine.ErrorDetail{Field: "time_to", Message: err.Error()})
			}
		}
	default:
		details = append(details, engine.ErrorDetail{Field: "trigger_type", Message: fmt.Sprintf("unknown trigger type %q", in.TriggerType)})
	}

	details = append(details, validateConditions(in.Conditions)...)
	details = append(details, validateActions(in.Actions)...)
	return details
}

func validateConditions(conds []metadata.Condition) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	for i, c := range conds {
		if c.Field == "" {
			details = append(details, engine.ErrorDetail{
				Field:   fmt.Sprintf("conditions[%d].field", i),
				Message: "field is required",
			})
		}
		if !c.Operator.Valid() {
			details = append(details, engine.ErrorDetail{
				Field:   fmt.Sprintf("conditions[%d].operator", i),
				Message: fmt.Sprintf("unknown operator %q", c.Operator),
			})
		}
		if c.Group < 0 {
			details = append(details, engine.ErrorDetail{
				Field:   fmt.Sprintf("conditions[%d].group", i),
				Message: "group must not be negative",
			})
		}
	}
	return details
}

func validateActions(actions []metadata.Action) []engine.ErrorDetail {
	var details []engine.ErrorDetail
	for i, a := range actions {
		if a.Type == "" {
			details = append(details, engine.ErrorDetail{
				Field:   fmt.Sprintf("actions[%d].type", i),
				Message: "type is required",
			})
		}
	}
	return details
}
