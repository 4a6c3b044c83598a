package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"funnel-backend/internal/engine"
)

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and sets the Operator on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals("operator", &Operator{
			ID:    claims.Subject,
			Roles: claims.Roles,
		})

		return c.Next()
	}
}

// RequireAdmin checks the authenticated operator has the admin role.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		op, ok := c.Locals("operator").(*Operator)
		if !ok || op == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !op.IsAdmin() {
			return engine.ForbiddenError("Admin access required")
		}
		return c.Next()
	}
}

// GetOperator extracts the Operator from a Fiber context.
func GetOperator(c *fiber.Ctx) *Operator {
	op, _ := c.Locals("operator").(*Operator)
	return op
}
