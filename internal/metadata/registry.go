package metadata

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the active automation configuration in memory. It is
// replaced wholesale on startup and after admin mutations; the engine
// only ever reads from it.
type Registry struct {
	mu              sync.RWMutex
	rulesByTrigger  map[Trigger][]*Rule
	version         *FunnelVersion
	statesByID      map[string]*FunnelState
	initial         *FunnelState
	transitionsFrom map[string][]*FunnelTransition
	warnings        []string
}

func NewRegistry() *Registry {
	return &Registry{
		rulesByTrigger:  make(map[Trigger][]*Rule),
		statesByID:      make(map[string]*FunnelState),
		transitionsFrom: make(map[string][]*FunnelTransition),
	}
}

// LoadRules replaces all rules. Only active rules are indexed. Rules for
// each trigger are pre-sorted by descending priority, ties broken by
// creation order, so readers get a stable evaluation order for free.
func (r *Registry) LoadRules(rules []*Rule) {
	byTrigger := make(map[Trigger][]*Rule)
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		byTrigger[rule.Trigger] = append(byTrigger[rule.Trigger], rule)
	}
	for _, list := range byTrigger {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Priority != list[j].Priority {
				return list[i].Priority > list[j].Priority
			}
			return list[i].Position < list[j].Position
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rulesByTrigger = byTrigger
}

// LoadFunnel replaces the active funnel version and its graph.
// Transitions leaving each state are pre-sorted by descending priority,
// ties broken by ascending transition id, the documented deterministic
// tiebreak for winner selection.
func (r *Registry) LoadFunnel(version *FunnelVersion, states []*FunnelState, transitions []*FunnelTransition) {
	statesByID := make(map[string]*FunnelState, len(states))
	var initials []*FunnelState
	for _, s := range states {
		statesByID[s.ID] = s
		if s.Initial {
			initials = append(initials, s)
		}
	}
	sort.Slice(initials, func(i, j int) bool { return initials[i].ID < initials[j].ID })

	var warnings []string
	var initial *FunnelState
	switch {
	case version == nil:
		// no active version is a valid (if unusual) configuration
	case len(initials) == 0:
		warnings = append(warnings, fmt.Sprintf("funnel version %s has no initial state", version.ID))
	case len(initials) > 1:
		warnings = append(warnings, fmt.Sprintf("funnel version %s has %d initial states, using %s",
			version.ID, len(initials), initials[0].Name))
		initial = initials[0]
	default:
		initial = initials[0]
	}

	fromIndex := make(map[string][]*FunnelTransition)
	for _, t := range transitions {
		fromIndex[t.FromStateID] = append(fromIndex[t.FromStateID], t)
	}
	for _, list := range fromIndex {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Priority != list[j].Priority {
				return list[i].Priority > list[j].Priority
			}
			return list[i].ID < list[j].ID
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
	r.statesByID = statesByID
	r.initial = initial
	r.transitionsFrom = fromIndex
	r.warnings = warnings
}

// RulesForTrigger returns the active rules for a trigger in evaluation
// order (priority desc, creation order).
func (r *Registry) RulesForTrigger(t Trigger) []*Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rulesByTrigger[t]
}

// ActiveVersion returns the active funnel version, or nil.
func (r *Registry) ActiveVersion() *FunnelVersion {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// State returns a state of the active version by id, or nil.
func (r *Registry) State(id string) *FunnelState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statesByID[id]
}

// InitialState returns the entry state of the active version, or nil if
// the configuration has none.
func (r *Registry) InitialState() *FunnelState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initial
}

// TransitionsFrom returns transitions leaving the given state, in
// selection order. Terminal states simply have no entries.
func (r *Registry) TransitionsFrom(stateID string) []*FunnelTransition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transitionsFrom[stateID]
}

// Warnings returns configuration warnings collected during the last
// funnel load (missing or duplicated initial state, etc).
func (r *Registry) Warnings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.warnings
}
