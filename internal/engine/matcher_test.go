package engine

import (
	"testing"

	"funnel-backend/internal/metadata"
)

func TestMatchRules_PriorityOrderAndAllMatchesFire(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.LoadRules([]*metadata.Rule{
		{ID: "r-low", Code: "low", Trigger: metadata.TriggerLowBalance, Priority: 5, Active: true, Position: 1},
		{ID: "r-high", Code: "high", Trigger: metadata.TriggerLowBalance, Priority: 10, Active: true, Position: 2},
		{ID: "r-off", Code: "off", Trigger: metadata.TriggerLowBalance, Priority: 99, Active: false, Position: 3},
	})

	matched := MatchRules(reg, metadata.TriggerLowBalance, snap(map[string]any{}))
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
	if matched[0].ID != "r-high" || matched[1].ID != "r-low" {
		t.Fatalf("expected order [r-high r-low], got [%s %s]", matched[0].ID, matched[1].ID)
	}
}

func TestMatchRules_EqualPriorityKeepsCreationOrder(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.LoadRules([]*metadata.Rule{
		{ID: "r-b", Code: "b", Trigger: metadata.TriggerUserRegistered, Priority: 7, Active: true, Position: 2},
		{ID: "r-a", Code: "a", Trigger: metadata.TriggerUserRegistered, Priority: 7, Active: true, Position: 1},
	})

	matched := MatchRules(reg, metadata.TriggerUserRegistered, snap(map[string]any{}))
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
	if matched[0].ID != "r-a" || matched[1].ID != "r-b" {
		t.Fatalf("expected creation order [r-a r-b], got [%s %s]", matched[0].ID, matched[1].ID)
	}
}

func TestMatchRules_ConditionsFilter(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.LoadRules([]*metadata.Rule{
		{
			ID: "r-1", Code: "needs-low-credits", Trigger: metadata.TriggerLowBalance,
			Priority: 1, Active: true,
			Conditions: []metadata.Condition{
				{Field: "credits_balance", Operator: metadata.OpLT, Value: "20"},
			},
		},
	})

	if got := MatchRules(reg, metadata.TriggerLowBalance, snap(map[string]any{"credits": float64(15)})); len(got) != 1 {
		t.Fatalf("expected match at credits 15, got %d", len(got))
	}
	if got := MatchRules(reg, metadata.TriggerLowBalance, snap(map[string]any{"credits": float64(25)})); len(got) != 0 {
		t.Fatalf("expected no match at credits 25, got %d", len(got))
	}
}

func TestMatchTransition_SingleWinnerByPriority(t *testing.T) {
	reg := metadata.NewRegistry()
	version := &metadata.FunnelVersion{ID: "v-1", Name: "main", Active: true}
	states := []*metadata.FunnelState{
		{ID: "s-a", VersionID: "v-1", Name: "a", Initial: true},
		{ID: "s-b", VersionID: "v-1", Name: "b"},
		{ID: "s-c", VersionID: "v-1", Name: "c"},
	}
	transitions := []*metadata.FunnelTransition{
		{ID: "t-1", VersionID: "v-1", FromStateID: "s-a", ToStateID: "s-b", TriggerType: metadata.TriggerTypeEvent, TriggerEvent: "go", Priority: 1},
		{ID: "t-2", VersionID: "v-1", FromStateID: "s-a", ToStateID: "s-c", TriggerType: metadata.TriggerTypeEvent, TriggerEvent: "go", Priority: 9},
	}
	reg.LoadFunnel(version, states, transitions)

	winner := MatchTransition(reg.TransitionsFrom("s-a"), snap(map[string]any{}))
	if winner == nil {
		t.Fatal("expected a winner")
	}
	if winner.ID != "t-2" {
		t.Fatalf("expected higher-priority t-2 to win, got %s", winner.ID)
	}
}

func TestMatchTransition_TieBreaksOnAscendingID(t *testing.T) {
	reg := metadata.NewRegistry()
	version := &metadata.FunnelVersion{ID: "v-1", Name: "main", Active: true}
	states := []*metadata.FunnelState{
		{ID: "s-a", VersionID: "v-1", Name: "a", Initial: true},
		{ID: "s-b", VersionID: "v-1", Name: "b"},
	}
	transitions := []*metadata.FunnelTransition{
		{ID: "t-9", VersionID: "v-1", FromStateID: "s-a", ToStateID: "s-b", TriggerType: metadata.TriggerTypeEvent, TriggerEvent: "go", Priority: 5},
		{ID: "t-1", VersionID: "v-1", FromStateID: "s-a", ToStateID: "s-b", TriggerType: metadata.TriggerTypeEvent, TriggerEvent: "go", Priority: 5},
	}

	// The winner must be the same no matter the load order
	for i := 0; i < 10; i++ {
		reg.LoadFunnel(version, states, transitions)
		winner := MatchTransition(reg.TransitionsFrom("s-a"), snap(map[string]any{}))
		if winner == nil || winner.ID != "t-1" {
			t.Fatalf("iteration %d: expected t-1 on tie, got %v", i, winner)
		}

		transitions[0], transitions[1] = transitions[1], transitions[0]
	}
}

func TestMatchTransition_ConditionsSkipToNextCandidate(t *testing.T) {
	candidates := []*metadata.FunnelTransition{
		{
			ID: "t-guarded", Priority: 9, TriggerType: metadata.TriggerTypeEvent, TriggerEvent: "go",
			Conditions: []metadata.Condition{
				{Field: "credits_balance", Operator: metadata.OpGT, Value: "100"},
			},
		},
		{ID: "t-open", Priority: 1, TriggerType: metadata.TriggerTypeEvent, TriggerEvent: "go"},
	}

	winner := MatchTransition(candidates, snap(map[string]any{"credits": float64(10)}))
	if winner == nil || winner.ID != "t-open" {
		t.Fatalf("expected guarded transition to lose to t-open, got %v", winner)
	}
}

func TestMatchTransition_NoMatchReturnsNil(t *testing.T) {
	if MatchTransition(nil, snap(map[string]any{})) != nil {
		t.Fatal("expected nil for empty candidate list")
	}
}
