package metadata

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TriggerType classifies how a funnel transition becomes eligible.
type TriggerType string

const (
	// TriggerTypeEvent fires when a named event arrives.
	TriggerTypeEvent TriggerType = "EVENT"
	// TriggerTypeTime fires during a recurring daily time-of-day window.
	TriggerTypeTime TriggerType = "TIME"
	// TriggerTypeTimeout fires once the state has been occupied long enough.
	TriggerTypeTimeout TriggerType = "TIMEOUT"
)

// Valid reports whether t is a recognized transition trigger type.
func (t TriggerType) Valid() bool {
	return t == TriggerTypeEvent || t == TriggerTypeTime || t == TriggerTypeTimeout
}

// FunnelVersion is an independently editable funnel graph. At most one
// version is active at a time; activation is a single atomic update.
type FunnelVersion struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// FunnelState is a named node in a funnel version.
type FunnelState struct {
	ID        string `json:"id"`
	VersionID string `json:"version_id"`
	Name      string `json:"name"`
	Initial   bool   `json:"is_initial"`
	Terminal  bool   `json:"is_terminal"`
}

// FunnelTransition is a directed edge between two states of a version.
type FunnelTransition struct {
	ID             string      `json:"id"`
	VersionID      string      `json:"version_id"`
	FromStateID    string      `json:"from_state_id"`
	ToStateID      string      `json:"to_state_id"`
	TriggerType    TriggerType `json:"trigger_type"`
	TriggerEvent   string      `json:"trigger_event,omitempty"`   // EVENT: name to match
	TimeFrom       string      `json:"time_from,omitempty"`       // TIME: "HH:MM" window start
	TimeTo         string      `json:"time_to,omitempty"`         // TIME: "HH:MM" window end, empty = end of day
	TimeoutMinutes int         `json:"timeout_minutes,omitempty"` // TIMEOUT: minimum occupancy
	Priority       int         `json:"priority"`
	Conditions     []Condition `json:"conditions"`
	Actions        []Action    `json:"actions"`
}

// Groups returns the transition's conditions as explicit OR-of-AND groups.
func (t *FunnelTransition) Groups() []ConditionGroup {
	return GroupConditions(t.Conditions)
}

// OrderedActions returns the transition's actions in execution order.
func (t *FunnelTransition) OrderedActions() []Action {
	return SortActions(t.Actions)
}

// UserFunnelState is the per-(user, version) pointer into the graph.
// EnteredAt resets on every committed transition and drives TIMEOUT
// eligibility.
type UserFunnelState struct {
	UserID    string    `json:"user_id"`
	VersionID string    `json:"version_id"`
	StateID   string    `json:"state_id"`
	EnteredAt time.Time `json:"entered_at"`
}

// ParseTimeOfDay parses an "HH:MM" string into minutes since midnight.
func ParseTimeOfDay(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day: %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
