package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the runtime evaluation API behind the given
// middleware.
func RegisterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api")
	for _, mw := range middleware {
		api.Use(mw)
	}

	api.Post("/triggers/:trigger/users/:id/evaluate", h.Evaluate)
	api.Post("/triggers/:trigger/users/:id/fire", h.Fire)
	api.Post("/funnel/users/:id/tick", h.Tick)
	api.Post("/funnel/reimmerse", h.Reimmerse)
	api.Post("/simulate", h.Simulate)
	api.Post("/bulk-actions", h.BulkActions)
}
