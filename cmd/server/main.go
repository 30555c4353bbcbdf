package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lessonsync-backend/internal/config"
	"lessonsync-backend/internal/database"
	"lessonsync-backend/internal/handlers"
	"lessonsync-backend/internal/live"
	"lessonsync-backend/internal/metrics"
	"lessonsync-backend/internal/middleware"
	"lessonsync-backend/internal/repository"
	"lessonsync-backend/internal/router"
	"lessonsync-backend/internal/services"
	"lessonsync-backend/internal/session"
)

func main() {
	log.Println("🚀 Starting LessonSync Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories & Services ────
	userRepo := repository.NewUserRepo(pool)
	banRepo := repository.NewBanRepo(redisClients.Store)
	notifier := services.NewLifecycleNotifier(redisClients.PubSub)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)

	// ──── Step 5: Metrics ────
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	liveMetrics := metrics.New(promRegistry)
	log.Println("✓ Metrics registered")

	// ──── Step 6: Session Registry & Hub ────
	registry := session.NewRegistry(session.DefaultSettings(cfg.LiveMaxParticipants))
	hub := live.NewHub(
		registry,
		jwtAuth,
		userRepo,
		banRepo,
		notifier,
		liveMetrics,
		cfg.LiveParticipantGrace,
		cfg.LiveHeartbeatInterval,
	)
	log.Println("✓ Session hub ready")

	// ──── Step 7: Liveness Sweeper ────
	sweeper := live.NewSweeper(
		hub,
		registry,
		cfg.LiveHeartbeatInterval,
		cfg.LiveSweepInterval,
		cfg.LiveSessionMaxDuration,
		cfg.LiveInactivityTimeout,
	)
	sweeper.Start()
	log.Println("✓ Liveness sweeper started")

	// ──── Step 8: Start HTTP Server ────
	liveSessionHandler := handlers.NewLiveSessionHandler(registry)
	r := router.New(jwtAuth, liveSessionHandler, hub, promRegistry, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		sweeper.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ LessonSync Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
