package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"authhooks/internal/api"
	"authhooks/internal/api/handlers"
	"authhooks/internal/api/middleware"
	"authhooks/internal/engine/webhooks"
	"authhooks/internal/pkg/logger"
	"authhooks/internal/platform/audit"
	"authhooks/internal/platform/auth"
	"authhooks/internal/platform/config"
	"authhooks/internal/platform/database"
	"authhooks/internal/platform/repositories"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Repositories
	webhookRepo := repositories.NewWebhookRepository(db)
	deliveryRepo := repositories.NewDeliveryRepository(db)
	statsRepo := repositories.NewStatsRepository(db)

	// Delivery engine
	recorder := webhooks.NewRecorder(deliveryRepo, statsRepo, webhookRepo,
		cfg.Webhooks.RecentWindow, cfg.Webhooks.DayRetention)
	sender := webhooks.NewSender()
	policy := webhooks.Policy{Base: cfg.Webhooks.RetryBaseBackoff, Cap: cfg.Webhooks.RetryMaxBackoff}
	pool := webhooks.NewPool(webhookRepo, recorder, sender, policy,
		cfg.Webhooks.WorkerCount, cfg.Webhooks.QueueSize)
	pool.Start()
	defer pool.Stop()

	dispatcher := webhooks.NewDispatcher(webhookRepo, pool)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLogger := audit.NewLogger(db)
	auditLogger.SetNotifier(dispatcher)
	webhookSvc := webhooks.NewService(webhookRepo, auditLogger,
		cfg.Webhooks.DefaultTimeout, cfg.Webhooks.DefaultMaxRetries)
	tester := webhooks.NewTester(webhookRepo, recorder, sender)

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(webhookSvc, tester, recorder, deliveryRepo)
	healthHandler := handlers.NewHealthHandler(db)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)

	router := api.NewRouter(&api.Dependencies{
		WebhookHandler: webhookHandler,
		HealthHandler:  healthHandler,
		AuthMiddleware: authMiddleware,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Printf("Server shutdown: %v", err)
	}
}
