package main

import (
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"subledger/internal/billing"
	"subledger/internal/caching"
	"subledger/internal/config"
	"subledger/internal/handlers"
	"subledger/internal/jobs"
	"subledger/internal/jobs/background"
	"subledger/internal/repositories"
	"subledger/internal/services"
	"subledger/pkg/database"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	legacyKey, err := billing.ParsePublicKey([]byte(cfg.LegacyPublicKeyPEM))
	if err != nil {
		log.Fatalf("Invalid legacy provider public key: %v", err)
	}

	pool, err := database.NewPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Create cache service
	cacheSvc := caching.NewRedisCacheService(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	// Task queue client for downstream fan-out
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	// Create repositories
	lineItemRepo := repositories.NewLineItemRepo(pool)
	workspaceRepo := repositories.NewWorkspaceRepo(pool)
	webhookEventRepo := repositories.NewWebhookEventRepo(pool)

	// Create billing components
	planMapper := billing.NewPlanMapper(cfg.IsProduction())
	verifier := billing.NewSignatureVerifier(legacyKey)
	diffEngine := billing.NewDiffEngine(planMapper)
	fanout := jobs.NewFanout(asynqClient, cfg.FanoutBatchSize)

	// Create services
	reconciliationSvc := services.NewReconciliationService(
		lineItemRepo,
		workspaceRepo,
		webhookEventRepo,
		cacheSvc,
		planMapper,
		diffEngine,
		fanout,
	)

	// Create handlers
	webhookHandlers := handlers.NewWebhookHandlers(reconciliationSvc, verifier)

	// Background jobs
	scheduler := background.NewJobScheduler(lineItemRepo)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", handlers.HealthCheck)
	e.GET("/health/ready", func(c echo.Context) error {
		return handlers.ReadinessCheck(c, pool)
	})

	// Provider webhooks. POST only; echo answers other methods with 405.
	e.POST("/webhooks/legacy", webhookHandlers.LegacyWebhook)
	e.POST("/webhooks/modern", webhookHandlers.ModernWebhook)

	log.Printf("🚀 Subledger v%s starting on port %d (%s)", version, cfg.Port, cfg.Environment)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", cfg.Port)))
}
