package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"zakaria-backend/internal/access"
	"zakaria-backend/internal/admin"
	"zakaria-backend/internal/apperr"
	"zakaria-backend/internal/audit"
	"zakaria-backend/internal/auth"
	"zakaria-backend/internal/config"
	"zakaria-backend/internal/database"
	"zakaria-backend/internal/ledger"
	"zakaria-backend/internal/logger"
	"zakaria-backend/internal/project"
	"zakaria-backend/internal/telemetry"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat).With().Str("service", cfg.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OTelEndpoint,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}

	db := database.Init(cfg, log)
	auditLog := audit.NewWriter(db)
	ledgerSvc := ledger.NewService(ledger.NewGormStore(db), auditLog, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.FiberErrorHandler(log),
		BodyLimit:    10 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.Middleware(log))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  strings.Join(cfg.AllowedOrigins(), ","),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, " + logger.RequestIDHeader,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: "Content-Disposition, " + logger.RequestIDHeader,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(db, cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler(db))

	// User management
	adminRoutes := protected.Group("/admin", access.Require(access.OpUserManage))
	adminRoutes.Post("/users", admin.CreateUserHandler(db, auditLog))
	adminRoutes.Get("/users", admin.ListUsersHandler(db))

	// Projects
	project.Routes(protected.Group("/projects"), db, auditLog)

	// EMI ledgers
	ledger.Routes(protected.Group("/emi"), ledgerSvc)

	// Audit trail
	protected.Get("/audit-logs", access.Require(access.OpAuditRead), audit.ListAuditLogsHandler(db))

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown")
		}
	}()

	log.Info().Str("port", cfg.HTTPPort).Msg("server listening")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown")
	}
}
