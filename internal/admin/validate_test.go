package admin

import (
	"testing"

	"funnel-backend/internal/metadata"
)

func TestValidateRule(t *testing.T) {
	in := &ruleInput{
		Code:    "welcome",
		Trigger: "USER_REGISTERED",
		Conditions: []metadata.Condition{
			{Field: "credits_balance", Operator: metadata.OpLT, Value: "20"},
		},
		Actions: []metadata.Action{{Type: "send_message", Order: 1}},
	}
	if details := validateRule(in); len(details) != 0 {
		t.Fatalf("expected valid rule, got %v", details)
	}

	in.Code = ""
	in.Trigger = "NOT_A_TRIGGER"
	in.Conditions[0].Operator = "LIKE"
	in.Actions[0].Type = ""
	details := validateRule(in)
	if len(details) != 4 {
		t.Fatalf("expected 4 validation details, got %d: %v", len(details), details)
	}
}

func TestValidateTransition_PerTriggerType(t *testing.T) {
	base := transitionInput{FromStateID: "s-1", ToStateID: "s-2"}

	ev := base
	ev.TriggerType = "EVENT"
	if details := validateTransition(&ev); len(details) != 1 || details[0].Field != "trigger_event" {
		t.Fatalf("expected missing trigger_event detail, got %v", details)
	}
	ev.TriggerEvent = "payment_completed"
	if details := validateTransition(&ev); len(details) != 0 {
		t.Fatalf("expected valid EVENT transition, got %v", details)
	}

	to := base
	to.TriggerType = "TIMEOUT"
	if details := validateTransition(&to); len(details) != 1 || details[0].Field != "timeout_minutes" {
		t.Fatalf("expected timeout_minutes detail, got %v", details)
	}
	to.TimeoutMinutes = 60
	if details := validateTransition(&to); len(details) != 0 {
		t.Fatalf("expected valid TIMEOUT transition, got %v", details)
	}

	tm := base
	tm.TriggerType = "TIME"
	tm.TimeFrom = "25:00"
	if details := validateTransition(&tm); len(details) != 1 || details[0].Field != "time_from" {
		t.Fatalf("expected time_from detail, got %v", details)
	}
	tm.TimeFrom = "22:00"
	tm.TimeTo = "02:00"
	if details := validateTransition(&tm); len(details) != 0 {
		t.Fatalf("expected valid TIME transition, got %v", details)
	}
	// empty time_to means end of day and is valid
	tm.TimeTo = ""
	if details := validateTransition(&tm); len(details) != 0 {
		t.Fatalf("expected empty time_to to be valid, got %v", details)
	}

	bad := base
	bad.TriggerType = "CRON"
	if details := validateTransition(&bad); len(details) != 1 || details[0].Field != "trigger_type" {
		t.Fatalf("expected trigger_type detail, got %v", details)
	}
}

func TestValidateTransition_MissingStates(t *testing.T) {
	in := &transitionInput{TriggerType: "EVENT", TriggerEvent: "go"}
	details := validateTransition(in)
	if len(details) != 2 {
		t.Fatalf("expected 2 details for missing state ids, got %v", details)
	}
}
