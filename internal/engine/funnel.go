package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"funnel-backend/internal/metadata"
	"funnel-backend/internal/store"
)

// FunnelEngine drives users through the active funnel version. All
// collaborators are injected so tests can run it against in-memory
// fakes.
type FunnelEngine struct {
	registry   *metadata.Registry
	states     UserStateStore
	provider   ContextProvider
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewFunnelEngine(reg *metadata.Registry, states UserStateStore, provider ContextProvider, dispatcher *Dispatcher) *FunnelEngine {
	return &FunnelEngine{
		registry:   reg,
		states:     states,
		provider:   provider,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// TickResult reports what a single tick did for one user.
type TickResult struct {
	UserID       string         `json:"user_id"`
	VersionID    string         `json:"version_id"`
	Entered      bool           `json:"entered,omitempty"`
	Transitioned bool           `json:"transitioned"`
	FromStateID  string         `json:"from_state_id,omitempty"`
	ToStateID    string         `json:"to_state_id,omitempty"`
	TransitionID string         `json:"transition_id,omitempty"`
	Actions      []ActionResult `json:"actions,omitempty"`
}

// Tick evaluates one user against the active version. A non-empty event
// makes EVENT transitions with that trigger event eligible; lapsed
// TIMEOUT and in-window TIME transitions are eligible on every tick, so
// an overdue user does not have to wait for the next sweep. Users
// without a funnel row enter the initial state first. State commit
// happens before any action runs, so action failures can never leave
// the position torn.
func (e *FunnelEngine) Tick(ctx context.Context, userID, event string) (*TickResult, error) {
	version := e.registry.ActiveVersion()
	if version == nil {
		return nil, ErrNoActiveVersion
	}
	result := &TickResult{UserID: userID, VersionID: version.ID}

	ufs, err := e.states.Get(ctx, userID, version.ID)
	if errors.Is(err, store.ErrNotFound) {
		initial := e.registry.InitialState()
		if initial == nil {
			log.Printf("WARN: funnel version %s has no initial state, user %s cannot enter", version.ID, userID)
			return result, nil
		}
		enteredAt := e.now().UTC()
		if err := e.states.Enter(ctx, userID, version.ID, initial.ID, enteredAt); err != nil {
			return nil, fmt.Errorf("enter initial state: %w", err)
		}
		result.Entered = true
		ufs = &metadata.UserFunnelState{
			UserID: userID, VersionID: version.ID,
			StateID: initial.ID, EnteredAt: enteredAt,
		}
	} else if err != nil {
		return nil, fmt.Errorf("load funnel state: %w", err)
	}
	result.FromStateID = ufs.StateID

	// Terminal states are dead ends even if transition rows point out of
	// them.
	if current := e.registry.State(ufs.StateID); current != nil && current.Terminal {
		return result, nil
	}

	candidates := e.eligibleTransitions(ufs, event)
	if len(candidates) == 0 {
		return result, nil
	}

	snap, err := e.provider.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	winner := MatchTransition(candidates, snap)
	if winner == nil {
		return result, nil
	}

	if err := e.states.Commit(ctx, userID, version.ID, winner.ToStateID, e.now().UTC()); err != nil {
		return nil, fmt.Errorf("commit transition %s: %w", winner.ID, err)
	}
	result.Transitioned = true
	result.ToStateID = winner.ToStateID
	result.TransitionID = winner.ID

	if e.dispatcher != nil {
		result.Actions = e.dispatcher.Dispatch(ctx, userID, winner.Actions)
	}
	return result, nil
}

// eligibleTransitions filters the outgoing transitions of the user's
// current state by trigger type. Registry order (priority desc, id asc)
// is preserved.
func (e *FunnelEngine) eligibleTransitions(ufs *metadata.UserFunnelState, event string) []*metadata.FunnelTransition {
	all := e.registry.TransitionsFrom(ufs.StateID)
	if len(all) == 0 {
		return nil
	}

	now := e.now().UTC()
	var eligible []*metadata.FunnelTransition
	for _, t := range all {
		switch t.TriggerType {
		case metadata.TriggerTypeEvent:
			if event != "" && t.TriggerEvent == event {
				eligible = append(eligible, t)
			}
		case metadata.TriggerTypeTimeout:
			if t.TimeoutMinutes > 0 &&
				now.Sub(ufs.EnteredAt) >= time.Duration(t.TimeoutMinutes)*time.Minute {
				eligible = append(eligible, t)
			}
		case metadata.TriggerTypeTime:
			if inTimeWindow(t.TimeFrom, t.TimeTo, now) {
				eligible = append(eligible, t)
			}
		}
	}
	return eligible
}

// inTimeWindow reports whether now falls inside the daily [from, to]
// window. An empty end means the window runs to end of day; a start
// after the end means the window wraps midnight.
func inTimeWindow(from, to string, now time.Time) bool {
	start, err := metadata.ParseTimeOfDay(from)
	if err != nil {
		return false
	}
	end := 24*60 - 1
	if to != "" {
		end, err = metadata.ParseTimeOfDay(to)
		if err != nil {
			return false
		}
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute <= end
	}
	// wraps midnight
	return minute >= start || minute <= end
}
