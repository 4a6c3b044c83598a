package engine

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"funnel-backend/internal/metadata"
)

// Handler exposes the runtime evaluation API over HTTP.
type Handler struct {
	rules     *RulesEngine
	funnel    *FunnelEngine
	simulator *Simulator
	bulk      *BulkDispatcher
}

func NewHandler(rules *RulesEngine, funnel *FunnelEngine, simulator *Simulator, bulk *BulkDispatcher) *Handler {
	return &Handler{rules: rules, funnel: funnel, simulator: simulator, bulk: bulk}
}

// mapSentinel translates engine sentinels into API errors.
func mapSentinel(err error) error {
	switch {
	case errors.Is(err, ErrUnknownTrigger):
		return UnknownTriggerError(err.Error())
	case errors.Is(err, ErrUnknownUser):
		return NewAppError("UNKNOWN_USER", 404, "user not found")
	case errors.Is(err, ErrMalformedContext):
		return NewAppError("MALFORMED_CONTEXT", 422, err.Error())
	case errors.Is(err, ErrNoActiveVersion):
		return NewAppError("NO_ACTIVE_VERSION", 409, "no active funnel version")
	default:
		return err
	}
}

// Evaluate handles POST /api/triggers/:trigger/users/:id/evaluate.
// Returns the rules that would fire, without running actions.
func (h *Handler) Evaluate(c *fiber.Ctx) error {
	trigger := metadata.Trigger(c.Params("trigger"))
	userID := c.Params("id")

	matched, err := h.rules.Evaluate(c.UserContext(), trigger, userID)
	if err != nil {
		return mapSentinel(err)
	}

	out := make([]fiber.Map, 0, len(matched))
	for _, rule := range matched {
		out = append(out, fiber.Map{
			"rule_id":  rule.ID,
			"code":     rule.Code,
			"priority": rule.Priority,
		})
	}
	return c.JSON(fiber.Map{
		"trigger": string(trigger),
		"user_id": userID,
		"matched": out,
	})
}

// Fire handles POST /api/triggers/:trigger/users/:id/fire.
func (h *Handler) Fire(c *fiber.Ctx) error {
	trigger := metadata.Trigger(c.Params("trigger"))
	userID := c.Params("id")

	result, err := h.rules.Fire(c.UserContext(), trigger, userID)
	if err != nil {
		return mapSentinel(err)
	}
	return c.JSON(result)
}

type tickRequest struct {
	Event string `json:"event"`
}

// Tick handles POST /api/funnel/users/:id/tick. Lapsed TIMEOUT and
// in-window TIME transitions are always candidates; an empty event body
// evaluates only those, as the sweeper does.
func (h *Handler) Tick(c *fiber.Ctx) error {
	userID := c.Params("id")

	var req tickRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return NewAppError("INVALID_BODY", 400, "invalid JSON body")
		}
	}

	result, err := h.funnel.Tick(c.UserContext(), userID, req.Event)
	if err != nil {
		return mapSentinel(err)
	}
	return c.JSON(result)
}

type simulateRequest struct {
	Trigger string         `json:"trigger"`
	UserID  string         `json:"user_id,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Simulate handles POST /api/simulate. The snapshot comes either from a
// hand-written context map or from a live user's attributes.
func (h *Handler) Simulate(c *fiber.Ctx) error {
	var req simulateRequest
	if err := c.BodyParser(&req); err != nil {
		return NewAppError("INVALID_BODY", 400, "invalid JSON body")
	}
	trigger := metadata.Trigger(req.Trigger)

	var result *SimulationResult
	var err error
	switch {
	case req.Context != nil:
		var snap metadata.Snapshot
		snap, err = SnapshotFromContext(req.UserID, req.Context)
		if err == nil {
			result, err = h.simulator.Simulate(trigger, snap)
		}
	case req.UserID != "":
		result, err = h.simulator.SimulateUser(c.UserContext(), trigger, req.UserID)
	default:
		return NewAppError("INVALID_BODY", 400, "either context or user_id is required")
	}
	if err != nil {
		return mapSentinel(err)
	}
	return c.JSON(result)
}

// BulkActions handles POST /api/bulk-actions.
func (h *Handler) BulkActions(c *fiber.Ctx) error {
	var req BulkRequest
	if err := c.BodyParser(&req); err != nil {
		return NewAppError("INVALID_BODY", 400, "invalid JSON body")
	}
	if len(req.UserIDs) == 0 {
		return ValidationError([]ErrorDetail{{Field: "user_ids", Message: "at least one user id is required"}})
	}
	if len(req.Actions) == 0 {
		return ValidationError([]ErrorDetail{{Field: "actions", Message: "at least one action is required"}})
	}

	result, err := h.bulk.DispatchBulk(c.UserContext(), req)
	if err != nil {
		return mapSentinel(err)
	}
	return c.JSON(result)
}

type reimmerseRequest struct {
	UserIDs []string `json:"user_ids"`
	Offset  int      `json:"offset,omitempty"`
}

// Reimmerse handles POST /api/funnel/reimmerse.
func (h *Handler) Reimmerse(c *fiber.Ctx) error {
	var req reimmerseRequest
	if err := c.BodyParser(&req); err != nil {
		return NewAppError("INVALID_BODY", 400, "invalid JSON body")
	}
	if len(req.UserIDs) == 0 {
		return ValidationError([]ErrorDetail{{Field: "user_ids", Message: "at least one user id is required"}})
	}

	result, err := h.bulk.Reimmerse(c.UserContext(), h.funnel, req.UserIDs, req.Offset)
	if err != nil {
		return mapSentinel(err)
	}
	return c.JSON(result)
}
