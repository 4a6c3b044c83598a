package engine

import (
	"context"
	"testing"

	"funnel-backend/internal/metadata"
)

func TestDispatch_OrderedExecution(t *testing.T) {
	var order []string
	first := &orderedHandler{name: "first", log: &order}
	second := &orderedHandler{name: "second", log: &order}
	d := NewDispatcher(first, second)

	results := d.Dispatch(context.Background(), "u-1", []metadata.Action{
		{Type: "second", Order: 20},
		{Type: "first", Order: 10},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected execution order [first second], got %v", order)
	}
}

type orderedHandler struct {
	name string
	log  *[]string
}

func (h *orderedHandler) Type() string { return h.name }

func (h *orderedHandler) Execute(ctx context.Context, userID string, config map[string]any) error {
	*h.log = append(*h.log, h.name)
	return nil
}

func TestDispatch_FailureIsolation(t *testing.T) {
	boom := &recordHandler{name: "boom", fail: true}
	after := &recordHandler{name: "after"}
	d := NewDispatcher(boom, after)

	results := d.Dispatch(context.Background(), "u-1", []metadata.Action{
		{Type: "boom", Order: 1},
		{Type: "after", Order: 2},
	})

	if results[0].Success {
		t.Fatal("expected first action to fail")
	}
	if results[0].Error == "" {
		t.Fatal("expected failure to carry the error message")
	}
	if !results[1].Success {
		t.Fatal("expected second action to run despite the failure")
	}
	if len(after.runs) != 1 {
		t.Fatal("expected the second handler to execute")
	}
}

func TestDispatch_UnknownActionType(t *testing.T) {
	d := NewDispatcher()

	results := d.Dispatch(context.Background(), "u-1", []metadata.Action{
		{Type: "no_such_action", Order: 1},
	})

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Success {
		t.Fatal("expected unknown action type to be recorded as failed")
	}
}

func TestDispatch_EmptyActionList(t *testing.T) {
	d := NewDispatcher()
	results := d.Dispatch(context.Background(), "u-1", nil)
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}
