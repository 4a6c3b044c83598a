package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"funnel-backend/internal/admin"
	"funnel-backend/internal/auth"
	"funnel-backend/internal/config"
	"funnel-backend/internal/engine"
	"funnel-backend/internal/instrument"
	"funnel-backend/internal/metadata"
	"funnel-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Create registry and load automation config
	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, db.DB, db.Dialect, reg); err != nil {
		log.Printf("WARN: Failed to load automation config: %v", err)
	}

	// 5. Instrumentation
	var instrumenter instrument.Instrumenter = &instrument.NoopInstrumenter{}
	if cfg.Instrumentation.Enabled {
		buffer := instrument.NewEventBuffer(db, cfg.Instrumentation.BufferSize,
			time.Duration(cfg.Instrumentation.FlushIntervalMs)*time.Millisecond)
		buffer.Start()
		defer buffer.Stop()
		instrumenter = instrument.NewInstrumenter(buffer)
	}

	// 6. Engine wiring
	provider := engine.NewSQLContextProvider(db)
	stateStore := engine.NewSQLUserStateStore(db)
	webhooks := engine.NewWebhookDispatcher(db, cfg.Engine.WebhookMaxAttempts)

	dispatcher := engine.NewDispatcher(
		&engine.SendMessageHandler{Sender: engine.LogMessageSender{}},
		&engine.AddTagHandler{Store: db},
		&engine.RemoveTagHandler{Store: db},
		&engine.GrantCreditsHandler{Store: db},
		&engine.WebhookActionHandler{Dispatcher: webhooks},
		&engine.EmitEventHandler{},
	)

	rules := engine.NewRulesEngine(reg, provider, dispatcher)
	funnel := engine.NewFunnelEngine(reg, stateStore, provider, dispatcher)
	simulator := engine.NewSimulator(reg, provider)
	bulk := engine.NewBulkDispatcher(dispatcher, provider, cfg.Engine.BulkWorkers, cfg.Engine.BulkBatchSize)
	defer bulk.Stop()

	// 7. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrumentMiddleware(instrumenter))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Auth routes (before middleware, no token required)
	authHandler := auth.NewAuthHandler(db, cfg.JWTSecret)
	auth.RegisterAuthRoutes(app, authHandler)

	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()

	// 10. Admin authoring routes (auth + admin role)
	adminHandler := admin.NewHandler(db, reg)
	admin.RegisterRoutes(app, adminHandler, authMW, adminMW)

	// 11. Runtime evaluation routes (auth required)
	engineHandler := engine.NewHandler(rules, funnel, simulator, bulk)
	engine.RegisterRoutes(app, engineHandler, authMW)

	// 12. Funnel sweeper for TIMEOUT and TIME transitions
	sweeper := engine.NewSweeper(db, funnel,
		time.Duration(cfg.Engine.SweepIntervalSec)*time.Second, cfg.Engine.BulkBatchSize*4)
	sweeper.Start()
	defer sweeper.Stop()

	// 13. Webhook retry scheduler
	webhookScheduler := engine.NewWebhookScheduler(db)
	webhookScheduler.Start()
	defer webhookScheduler.Stop()

	// 14. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

// instrumentMiddleware attaches a trace id and the instrumenter to every
// request context.
func instrumentMiddleware(inst instrument.Instrumenter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		ctx = instrument.WithTraceID(ctx, uuid.New().String())
		ctx = instrument.WithInstrumenter(ctx, inst)
		c.SetUserContext(ctx)
		return c.Next()
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(engine.ErrorResponse{
		Error: &engine.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
