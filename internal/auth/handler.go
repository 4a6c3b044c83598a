package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"funnel-backend/internal/engine"
	"funnel-backend/internal/store"
)

// AuthHandler handles operator authentication.
type AuthHandler struct {
	store     *store.Store
	jwtSecret string
}

func NewAuthHandler(s *store.Store, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	op, err := h.findOperator(c.Context(), body.Email)
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	active, _ := op["active"].(bool)
	if !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := op["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	operatorID := fmt.Sprintf("%v", op["id"])
	roles := extractRoles(op["roles"])

	token, err := GenerateAccessToken(operatorID, roles, h.jwtSecret)
	if err != nil {
		return engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	return c.JSON(fiber.Map{"access_token": token})
}

// RegisterAuthRoutes registers auth routes on the given Fiber app.
func RegisterAuthRoutes(app *fiber.App, h *AuthHandler) {
	app.Post("/api/auth/login", h.Login)
}

func (h *AuthHandler) findOperator(ctx context.Context, email string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	query := fmt.Sprintf("SELECT id, email, password_hash, roles, active FROM _operators WHERE email = %s",
		pb.Add(email))
	row, err := store.QueryRow(ctx, h.store.DB, query, pb.Params()...)
	if err != nil {
		return nil, err
	}
	store.NormalizeBooleans([]map[string]any{row}, []string{"active"}, h.store.Dialect)
	return row, nil
}

// extractRoles handles both decoded arrays and raw JSON text, depending
// on the driver.
func extractRoles(v any) []string {
	switch val := v.(type) {
	case []any:
		roles := make([]string, 0, len(val))
		for _, r := range val {
			if s, ok := r.(string); ok {
				roles = append(roles, s)
			}
		}
		return roles
	case string:
		var roles []string
		if err := json.Unmarshal([]byte(val), &roles); err == nil {
			return roles
		}
	case []byte:
		var roles []string
		if err := json.Unmarshal(val, &roles); err == nil {
			return roles
		}
	}
	return nil
}
