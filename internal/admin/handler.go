package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	"funnel-backend/internal/engine"
	"funnel-backend/internal/metadata"
	"funnel-backend/internal/store"
)

// Handler exposes the authoring CRUD for rules and funnel graphs. Every
// successful mutation reloads the in-memory registry so the engine sees
// the change without a restart.
type Handler struct {
	store    *store.Store
	registry *metadata.Registry
}

func NewHandler(s *store.Store, reg *metadata.Registry) *Handler {
	return &Handler{store: s, registry: reg}
}

// RegisterRoutes mounts the admin API behind the given middleware.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/admin")
	for _, mw := range middleware {
		admin.Use(mw)
	}

	admin.Get("/rules", h.ListRules)
	admin.Get("/rules/:id", h.GetRule)
	admin.Post("/rules", h.CreateRule)
	admin.Put("/rules/:id", h.UpdateRule)
	admin.Delete("/rules/:id", h.DeleteRule)

	admin.Get("/funnel/versions", h.ListVersions)
	admin.Post("/funnel/versions", h.CreateVersion)
	admin.Post("/funnel/versions/:id/activate", h.ActivateVersion)
	admin.Delete("/funnel/versions/:id", h.DeleteVersion)

	admin.Get("/funnel/versions/:id/states", h.ListStates)
	admin.Post("/funnel/versions/:id/states", h.CreateState)
	admin.Put("/funnel/states/:id", h.UpdateState)
	admin.Delete("/funnel/states/:id", h.DeleteState)

	admin.Get("/funnel/versions/:id/transitions", h.ListTransitions)
	admin.Post("/funnel/versions/:id/transitions", h.CreateTransition)
	admin.Put("/funnel/transitions/:id", h.UpdateTransition)
	admin.Delete("/funnel/transitions/:id", h.DeleteTransition)
}

func (h *Handler) reload(ctx context.Context) {
	if err := metadata.Reload(ctx, h.store.DB, h.store.Dialect, h.registry); err != nil {
		log.Printf("ERROR: registry reload failed: %v", err)
	}
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil || v == nil {
		return "[]"
	}
	return string(data)
}

// --- rules ---

// ListRules handles GET /admin/rules.
func (h *Handler) ListRules(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		`SELECT id, code, "trigger", priority, active, group_name, conditions, actions, position, created_at, updated_at
		 FROM _automation_rules ORDER BY position`)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	store.NormalizeBooleans(rows, []string{"active"}, h.store.Dialect)
	return c.JSON(fiber.Map{"data": rows})
}

// GetRule handles GET /admin/rules/:id.
func (h *Handler) GetRule(c *fiber.Ctx) error {
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(c.Context(), h.store.DB,
		fmt.Sprintf(`SELECT id, code, "trigger", priority, active, group_name, conditions, actions, position, created_at, updated_at
		 FROM _automation_rules WHERE id = %s`, pb.Add(c.Params("id"))), pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return engine.NotFoundError("rule", c.Params("id"))
	}
	if err != nil {
		return fmt.Errorf("get rule: %w", err)
	}
	store.NormalizeBooleans([]map[string]any{row}, []string{"active"}, h.store.Dialect)
	return c.JSON(fiber.Map{"data": row})
}

// CreateRule handles POST /admin/rules.
func (h *Handler) CreateRule(c *fiber.Ctx) error {
	var in ruleInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := validateRule(&in); len(details) > 0 {
		return engine.ValidationError(details)
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	ctx := c.Context()
	pos, err := h.nextRulePosition(ctx)
	if err != nil {
		return fmt.Errorf("next rule position: %w", err)
	}

	id := store.GenerateUUID()
	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`INSERT INTO _automation_rules
		(id, code, "trigger", priority, active, group_name, conditions, actions, position)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(id), pb.Add(in.Code), pb.Add(in.Trigger), pb.Add(in.Priority), pb.Add(active),
		pb.Add(in.GroupName), pb.Add(marshalJSON(in.Conditions)), pb.Add(marshalJSON(in.Actions)), pb.Add(pos))
	if _, err := store.Exec(ctx, h.store.DB, query, pb.Params()...); err != nil {
		if errors.Is(h.store.Dialect.MapError(err), store.ErrUniqueViolation) {
			return engine.ValidationError([]engine.ErrorDetail{{Field: "code", Message: "code already exists"}})
		}
		return fmt.Errorf("create rule: %w", err)
	}

	h.reload(ctx)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// UpdateRule handles PUT /admin/rules/:id.
func (h *Handler) UpdateRule(c *fiber.Ctx) error {
	var in ruleInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := validateRule(&in); len(details) > 0 {
		return engine.ValidationError(details)
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`UPDATE _automation_rules
		SET code = %s, "trigger" = %s, priority = %s, active = %s, group_name = %s,
		    conditions = %s, actions = %s, updated_at = %s
		WHERE id = %s`,
		pb.Add(in.Code), pb.Add(in.Trigger), pb.Add(in.Priority), pb.Add(active), pb.Add(in.GroupName),
		pb.Add(marshalJSON(in.Conditions)), pb.Add(marshalJSON(in.Actions)),
		h.store.Dialect.NowExpr(), pb.Add(c.Params("id")))
	n, err := store.Exec(ctx, h.store.DB, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("rule", c.Params("id"))
	}

	h.reload(ctx)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id")}})
}

// DeleteRule handles DELETE /admin/rules/:id.
func (h *Handler) DeleteRule(c *fiber.Ctx) error {
	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, h.store.DB,
		fmt.Sprintf("DELETE FROM _automation_rules WHERE id = %s", pb.Add(c.Params("id"))), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("rule", c.Params("id"))
	}

	h.reload(ctx)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) nextRulePosition(ctx context.Context) (int, error) {
	row, err := store.QueryRow(ctx, h.store.DB,
		"SELECT COALESCE(MAX(position), 0) AS max_pos FROM _automation_rules")
	if err != nil {
		return 0, err
	}
	switch v := row["max_pos"].(type) {
	case int64:
		return int(v) + 1, nil
	case float64:
		return int(v) + 1, nil
	}
	return 1, nil
}

// --- funnel versions ---

// ListVersions handles GET /admin/funnel/versions.
func (h *Handler) ListVersions(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT id, name, active, created_at, updated_at FROM _funnel_versions ORDER BY created_at")
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	store.NormalizeBooleans(rows, []string{"active"}, h.store.Dialect)
	return c.JSON(fiber.Map{"data": rows})
}

// CreateVersion handles POST /admin/funnel/versions. New versions start
// inactive.
func (h *Handler) CreateVersion(c *fiber.Ctx) error {
	var in struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if in.Name == "" {
		return engine.ValidationError([]engine.ErrorDetail{{Field: "name", Message: "name is required"}})
	}

	id := store.GenerateUUID()
	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("INSERT INTO _funnel_versions (id, name, active) VALUES (%s, %s, %s)",
		pb.Add(id), pb.Add(in.Name), pb.Add(false))
	if _, err := store.Exec(c.Context(), h.store.DB, query, pb.Params()...); err != nil {
		return fmt.Errorf("create version: %w", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// ActivateVersion handles POST /admin/funnel/versions/:id/activate. One
// statement flips every row, so exactly one version is ever active and
// there is no window with zero or two active versions.
func (h *Handler) ActivateVersion(c *fiber.Ctx) error {
	ctx := c.Context()
	id := c.Params("id")

	pb := h.store.Dialect.NewParamBuilder()
	exists := fmt.Sprintf("SELECT id FROM _funnel_versions WHERE id = %s", pb.Add(id))
	if _, err := store.QueryRow(ctx, h.store.DB, exists, pb.Params()...); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.NotFoundError("funnel version", id)
		}
		return fmt.Errorf("activate version: %w", err)
	}

	pb = h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("UPDATE _funnel_versions SET active = (id = %s), updated_at = %s",
		pb.Add(id), h.store.Dialect.NowExpr())
	if _, err := store.Exec(ctx, h.store.DB, query, pb.Params()...); err != nil {
		return fmt.Errorf("activate version: %w", err)
	}

	h.reload(ctx)
	log.Printf("Funnel version %s activated", id)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "active": true}})
}

// DeleteVersion handles DELETE /admin/funnel/versions/:id. The active
// version cannot be deleted.
func (h *Handler) DeleteVersion(c *fiber.Ctx) error {
	ctx := c.Context()
	id := c.Params("id")

	if v := h.registry.ActiveVersion(); v != nil && v.ID == id {
		return engine.NewAppError("VERSION_ACTIVE", 409, "cannot delete the active version")
	}

	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, h.store.DB,
		fmt.Sprintf("DELETE FROM _funnel_versions WHERE id = %s", pb.Add(id)), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("funnel version", id)
	}

	h.reload(ctx)
	return c.SendStatus(fiber.StatusNoContent)
}

// --- funnel states ---

// ListStates handles GET /admin/funnel/versions/:id/states.
func (h *Handler) ListStates(c *fiber.Ctx) error {
	pb := h.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		fmt.Sprintf(`SELECT id, version_id, name, is_initial, is_terminal, created_at
		 FROM _funnel_states WHERE version_id = %s ORDER BY id`, pb.Add(c.Params("id"))), pb.Params()...)
	if err != nil {
		return fmt.Errorf("list states: %w", err)
	}
	store.NormalizeBooleans(rows, []string{"is_initial", "is_terminal"}, h.store.Dialect)
	return c.JSON(fiber.Map{"data": rows})
}

// CreateState handles POST /admin/funnel/versions/:id/states.
func (h *Handler) CreateState(c *fiber.Ctx) error {
	var in stateInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if in.Name == "" {
		return engine.ValidationError([]engine.ErrorDetail{{Field: "name", Message: "name is required"}})
	}

	ctx := c.Context()
	id := store.GenerateUUID()
	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`INSERT INTO _funnel_states (id, version_id, name, is_initial, is_terminal)
		VALUES (%s, %s, %s, %s, %s)`,
		pb.Add(id), pb.Add(c.Params("id")), pb.Add(in.Name), pb.Add(in.Initial), pb.Add(in.Terminal))
	if _, err := store.Exec(ctx, h.store.DB, query, pb.Params()...); err != nil {
		if errors.Is(h.store.Dialect.MapError(err), store.ErrUniqueViolation) {
			return engine.ValidationError([]engine.ErrorDetail{{Field: "name", Message: "state name already exists in this version"}})
		}
		return fmt.Errorf("create state: %w", err)
	}

	h.reload(ctx)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// UpdateState handles PUT /admin/funnel/states/:id.
func (h *Handler) UpdateState(c *fiber.Ctx) error {
	var in stateInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if in.Name == "" {
		return engine.ValidationError([]engine.ErrorDetail{{Field: "name", Message: "name is required"}})
	}

	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`UPDATE _funnel_states SET name = %s, is_initial = %s, is_terminal = %s WHERE id = %s`,
		pb.Add(in.Name), pb.Add(in.Initial), pb.Add(in.Terminal), pb.Add(c.Params("id")))
	n, err := store.Exec(ctx, h.store.DB, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("funnel state", c.Params("id"))
	}

	h.reload(ctx)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id")}})
}

// DeleteState handles DELETE /admin/funnel/states/:id.
func (h *Handler) DeleteState(c *fiber.Ctx) error {
	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, h.store.DB,
		fmt.Sprintf("DELETE FROM _funnel_states WHERE id = %s", pb.Add(c.Params("id"))), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete state: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("funnel state", c.Params("id"))
	}

	h.reload(ctx)
	return c.SendStatus(fiber.StatusNoContent)
}

// --- funnel transitions ---

// ListTransitions handles GET /admin/funnel/versions/:id/transitions.
func (h *Handler) ListTransitions(c *fiber.Ctx) error {
	pb := h.store.Dialect.NewParamBuilder()
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		fmt.Sprintf(`SELECT id, version_id, from_state_id, to_state_id, trigger_type, trigger_event,
		 time_from, time_to, timeout_minutes, priority, conditions, actions, created_at
		 FROM _funnel_transitions WHERE version_id = %s ORDER BY id`, pb.Add(c.Params("id"))), pb.Params()...)
	if err != nil {
		return fmt.Errorf("list transitions: %w", err)
	}
	return c.JSON(fiber.Map{"data": rows})
}

// CreateTransition handles POST /admin/funnel/versions/:id/transitions.
func (h *Handler) CreateTransition(c *fiber.Ctx) error {
	var in transitionInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := validateTransition(&in); len(details) > 0 {
		return engine.ValidationError(details)
	}

	ctx := c.Context()
	versionID := c.Params("id")
	if err := h.checkStatesInVersion(ctx, versionID, in.FromStateID, in.ToStateID); err != nil {
		return err
	}

	id := store.GenerateUUID()
	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`INSERT INTO _funnel_transitions
		(id, version_id, from_state_id, to_state_id, trigger_type, trigger_event,
		 time_from, time_to, timeout_minutes, priority, conditions, actions)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		pb.Add(id), pb.Add(versionID), pb.Add(in.FromStateID), pb.Add(in.ToStateID),
		pb.Add(in.TriggerType), pb.Add(in.TriggerEvent), pb.Add(in.TimeFrom), pb.Add(in.TimeTo),
		pb.Add(in.TimeoutMinutes), pb.Add(in.Priority),
		pb.Add(marshalJSON(in.Conditions)), pb.Add(marshalJSON(in.Actions)))
	if _, err := store.Exec(ctx, h.store.DB, query, pb.Params()...); err != nil {
		return fmt.Errorf("create transition: %w", err)
	}

	h.reload(ctx)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// UpdateTransition handles PUT /admin/funnel/transitions/:id.
func (h *Handler) UpdateTransition(c *fiber.Ctx) error {
	var in transitionInput
	if err := c.BodyParser(&in); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if details := validateTransition(&in); len(details) > 0 {
		return engine.ValidationError(details)
	}

	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf(`UPDATE _funnel_transitions
		SET from_state_id = %s, to_state_id = %s, trigger_type = %s, trigger_event = %s,
		    time_from = %s, time_to = %s, timeout_minutes = %s, priority = %s,
		    conditions = %s, actions = %s
		WHERE id = %s`,
		pb.Add(in.FromStateID), pb.Add(in.ToStateID), pb.Add(in.TriggerType), pb.Add(in.TriggerEvent),
		pb.Add(in.TimeFrom), pb.Add(in.TimeTo), pb.Add(in.TimeoutMinutes), pb.Add(in.Priority),
		pb.Add(marshalJSON(in.Conditions)), pb.Add(marshalJSON(in.Actions)), pb.Add(c.Params("id")))
	n, err := store.Exec(ctx, h.store.DB, query, pb.Params()...)
	if err != nil {
		return fmt.Errorf("update transition: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("funnel transition", c.Params("id"))
	}

	h.reload(ctx)
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id")}})
}

// DeleteTransition handles DELETE /admin/funnel/transitions/:id.
func (h *Handler) DeleteTransition(c *fiber.Ctx) error {
	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, h.store.DB,
		fmt.Sprintf("DELETE FROM _funnel_transitions WHERE id = %s", pb.Add(c.Params("id"))), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete transition: %w", err)
	}
	if n == 0 {
		return engine.NotFoundError("funnel transition", c.Params("id"))
	}

	h.reload(ctx)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) checkStatesInVersion(ctx context.Context, versionID string, stateIDs ...string) error {
	for _, stateID := range stateIDs {
		pb := h.store.Dialect.NewParamBuilder()
		query := fmt.Sprintf("SELECT id FROM _funnel_states WHERE id = %s AND version_id = %s",
			pb.Add(stateID), pb.Add(versionID))
		if _, err := store.QueryRow(ctx, h.store.DB, query, pb.Params()...); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return engine.ValidationError([]engine.ErrorDetail{{
					Field:   "state_id",
					Message: fmt.Sprintf("state %s does not belong to version %s", stateID, versionID),
				}})
			}
			return fmt.Errorf("check state: %w", err)
		}
	}
	return nil
}
