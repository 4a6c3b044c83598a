package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"funnel-backend/internal/metadata"
)

func simulatorFixture() *Simulator {
	reg := metadata.NewRegistry()
	reg.LoadRules([]*metadata.Rule{
		{
			ID: "r-1", Code: "low-credits", Trigger: metadata.TriggerLowBalance,
			Priority: 10, Active: true,
			Conditions: []metadata.Condition{
				{Field: "credits_balance", Operator: metadata.OpLT, Value: "20"},
			},
		},
		{
			ID: "r-2", Code: "vip-topup", Trigger: metadata.TriggerLowBalance,
			Priority: 5, Active: true,
			Conditions: []metadata.Condition{
				{Field: "user_tags", Operator: metadata.OpIn, Value: "vip"},
			},
		},
	})
	provider := &fakeProvider{snaps: map[string]metadata.Snapshot{
		"u-1": {UserID: "u-1", Attrs: map[string]any{"credits": float64(15)}},
	}}
	return NewSimulator(reg, provider)
}

func TestSimulate_ReportsAllCandidates(t *testing.T) {
	sim := simulatorFixture()

	result, err := sim.Simulate(metadata.TriggerLowBalance, snap(map[string]any{"credits": float64(15)}))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if result.TotalCandidates != 2 {
		t.Fatalf("expected 2 candidates, got %d", result.TotalCandidates)
	}
	if result.MatchedCount != 1 {
		t.Fatalf("expected 1 match, got %d", result.MatchedCount)
	}
	if !result.Rules[0].Matched || result.Rules[0].RuleID != "r-1" {
		t.Fatalf("expected r-1 to match first, got %+v", result.Rules[0])
	}
	if result.Rules[1].Matched {
		t.Fatal("expected r-2 not to match without the vip tag")
	}
}

func TestSimulate_Idempotent(t *testing.T) {
	sim := simulatorFixture()
	s := snap(map[string]any{"credits": float64(15), "tags": []string{"vip"}})

	first, err := sim.Simulate(metadata.TriggerLowBalance, s)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	second, err := sim.Simulate(metadata.TriggerLowBalance, s)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical results, got %+v vs %+v", first, second)
	}
}

func TestSimulate_UnknownTrigger(t *testing.T) {
	sim := simulatorFixture()
	if _, err := sim.Simulate(metadata.Trigger("NO_SUCH_TRIGGER"), snap(nil)); !errors.Is(err, ErrUnknownTrigger) {
		t.Fatalf("expected ErrUnknownTrigger, got %v", err)
	}
}

func TestSimulateUser_UsesLiveSnapshot(t *testing.T) {
	sim := simulatorFixture()

	result, err := sim.SimulateUser(context.Background(), metadata.TriggerLowBalance, "u-1")
	if err != nil {
		t.Fatalf("simulate user: %v", err)
	}
	if result.MatchedCount != 1 {
		t.Fatalf("expected 1 match for live user, got %d", result.MatchedCount)
	}

	if _, err := sim.SimulateUser(context.Background(), metadata.TriggerLowBalance, "u-ghost"); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestSnapshotFromContext(t *testing.T) {
	s, err := SnapshotFromContext("u-1", map[string]any{
		"credits_balance": float64(12),
		"user_tags":       []any{"vip", "beta"},
		"plan":            "pro",
	})
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}
	if !EvaluateCondition(cond("credits_balance", metadata.OpLT, "20"), s) {
		t.Fatal("expected hand-built snapshot to evaluate")
	}
	if !EvaluateCondition(cond("user_tags", metadata.OpIn, "vip"), s) {
		t.Fatal("expected list attribute from JSON to evaluate")
	}

	// nil map is malformed
	if _, err := SnapshotFromContext("u-1", nil); !errors.Is(err, ErrMalformedContext) {
		t.Fatalf("expected ErrMalformedContext for nil map, got %v", err)
	}

	// nested objects are malformed
	if _, err := SnapshotFromContext("u-1", map[string]any{"nested": map[string]any{"x": 1}}); !errors.Is(err, ErrMalformedContext) {
		t.Fatalf("expected ErrMalformedContext for nested object, got %v", err)
	}

	// non-string list elements are malformed
	if _, err := SnapshotFromContext("u-1", map[string]any{"tags": []any{"ok", 3}}); !errors.Is(err, ErrMalformedContext) {
		t.Fatalf("expected ErrMalformedContext for mixed list, got %v", err)
	}
}
