package engine

import (
	"context"
	"fmt"
	"log"

	"funnel-backend/internal/metadata"
)

// ActionHandler executes one action type against one user.
type ActionHandler interface {
	// Type returns the action type string this handler serves.
	Type() string
	// Execute runs the action. Config comes straight from the stored
	// action definition.
	Execute(ctx context.Context, userID string, config map[string]any) error
}

// ActionResult records the outcome of one action execution.
type ActionResult struct {
	Type    string `json:"type"`
	Order   int    `json:"order"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher routes actions to registered handlers, preserving declared
// order and isolating failures: a failed action is recorded and the
// remaining actions still run.
type Dispatcher struct {
	handlers map[string]ActionHandler
}

func NewDispatcher(handlers ...ActionHandler) *Dispatcher {
	d := &Dispatcher{handlers: make(map[string]ActionHandler, len(handlers))}
	for _, h := range handlers {
		d.Register(h)
	}
	return d
}

// Register adds or replaces the handler for its action type.
func (d *Dispatcher) Register(h ActionHandler) {
	d.handlers[h.Type()] = h
}

// Dispatch executes the actions in order for a single user. It never
// returns an error; per-action outcomes are in the result slice.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, actions []metadata.Action) []ActionResult {
	ordered := metadata.SortActions(actions)
	results := make([]ActionResult, 0, len(ordered))

	for _, action := range ordered {
		result := ActionResult{Type: action.Type, Order: action.Order}

		handler, ok := d.handlers[action.Type]
		if !ok {
			result.Error = fmt.Sprintf("no handler for action type %q", action.Type)
			log.Printf("WARN: %s (user %s)", result.Error, userID)
			results = append(results, result)
			continue
		}

		if err := handler.Execute(ctx, userID, action.Config); err != nil {
			result.Error = err.Error()
			log.Printf("ERROR: action %s failed for user %s: %v", action.Type, userID, err)
		} else {
			result.Success = true
		}
		results = append(results, result)
	}
	return results
}
