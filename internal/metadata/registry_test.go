package metadata

import (
	"strings"
	"testing"
)

func TestRegistry_LoadRulesIndexesActiveOnly(t *testing.T) {
	reg := NewRegistry()
	reg.LoadRules([]*Rule{
		{ID: "r-1", Trigger: TriggerLowBalance, Priority: 1, Active: true, Position: 1},
		{ID: "r-2", Trigger: TriggerLowBalance, Priority: 2, Active: false, Position: 2},
	})

	rules := reg.RulesForTrigger(TriggerLowBalance)
	if len(rules) != 1 || rules[0].ID != "r-1" {
		t.Fatalf("expected only the active rule, got %v", rules)
	}
}

func TestRegistry_FunnelIndexes(t *testing.T) {
	reg := NewRegistry()
	version := &FunnelVersion{ID: "v-1", Name: "main", Active: true}
	states := []*FunnelState{
		{ID: "s-1", VersionID: "v-1", Name: "start", Initial: true},
		{ID: "s-2", VersionID: "v-1", Name: "end", Terminal: true},
	}
	transitions := []*FunnelTransition{
		{ID: "t-1", VersionID: "v-1", FromStateID: "s-1", ToStateID: "s-2", TriggerType: TriggerTypeEvent, TriggerEvent: "go"},
	}
	reg.LoadFunnel(version, states, transitions)

	if reg.ActiveVersion() == nil || reg.ActiveVersion().ID != "v-1" {
		t.Fatal("expected active version v-1")
	}
	if reg.InitialState() == nil || reg.InitialState().ID != "s-1" {
		t.Fatal("expected initial state s-1")
	}
	if got := reg.TransitionsFrom("s-1"); len(got) != 1 || got[0].ID != "t-1" {
		t.Fatalf("expected [t-1] from s-1, got %v", got)
	}
	if got := reg.TransitionsFrom("s-2"); len(got) != 0 {
		t.Fatalf("terminal state should have no outgoing transitions, got %v", got)
	}
	if len(reg.Warnings()) != 0 {
		t.Fatalf("expected no warnings, got %v", reg.Warnings())
	}
}

func TestRegistry_NoInitialStateWarns(t *testing.T) {
	reg := NewRegistry()
	version := &FunnelVersion{ID: "v-1", Name: "main", Active: true}
	reg.LoadFunnel(version, []*FunnelState{{ID: "s-1", VersionID: "v-1", Name: "lonely"}}, nil)

	if reg.InitialState() != nil {
		t.Fatal("expected no initial state")
	}
	warnings := reg.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "no initial state") {
		t.Fatalf("expected a no-initial-state warning, got %v", warnings)
	}
}

func TestRegistry_MultipleInitialStatesPicksLowestID(t *testing.T) {
	reg := NewRegistry()
	version := &FunnelVersion{ID: "v-1", Name: "main", Active: true}
	states := []*FunnelState{
		{ID: "s-b", VersionID: "v-1", Name: "b", Initial: true},
		{ID: "s-a", VersionID: "v-1", Name: "a", Initial: true},
	}
	reg.LoadFunnel(version, states, nil)

	if reg.InitialState() == nil || reg.InitialState().ID != "s-a" {
		t.Fatalf("expected deterministic pick s-a, got %v", reg.InitialState())
	}
	if len(reg.Warnings()) != 1 {
		t.Fatalf("expected one warning, got %v", reg.Warnings())
	}
}

func TestRegistry_TransitionSelectionOrder(t *testing.T) {
	reg := NewRegistry()
	version := &FunnelVersion{ID: "v-1", Name: "main", Active: true}
	states := []*FunnelState{{ID: "s-1", VersionID: "v-1", Name: "start", Initial: true}}
	transitions := []*FunnelTransition{
		{ID: "t-c", VersionID: "v-1", FromStateID: "s-1", ToStateID: "s-1", TriggerType: TriggerTypeEvent, Priority: 1},
		{ID: "t-b", VersionID: "v-1", FromStateID: "s-1", ToStateID: "s-1", TriggerType: TriggerTypeEvent, Priority: 5},
		{ID: "t-a", VersionID: "v-1", FromStateID: "s-1", ToStateID: "s-1", TriggerType: TriggerTypeEvent, Priority: 5},
	}
	reg.LoadFunnel(version, states, transitions)

	got := reg.TransitionsFrom("s-1")
	if got[0].ID != "t-a" || got[1].ID != "t-b" || got[2].ID != "t-c" {
		t.Fatalf("expected [t-a t-b t-c], got [%s %s %s]", got[0].ID, got[1].ID, got[2].ID)
	}
}
