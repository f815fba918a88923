package main

// @title           Clipboard Service API
// @version         1.0
// @description     A RESTful API and realtime presence service for shared clipboards
// @host            localhost:8080
// @BasePath        /api/v1
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"clipboard-service/internal/adapters/kafka"
	"clipboard-service/internal/adapters/storage"
	"clipboard-service/internal/api/routes"
	"clipboard-service/internal/config"
	"clipboard-service/internal/database"
	"clipboard-service/internal/repositories/mongodb"
	"clipboard-service/internal/services"
	"clipboard-service/internal/websocket"
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting clipboard server")

	// Initialize MongoDB connection
	db, err := database.NewMongoConnection(&cfg.Mongo)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer db.Close(context.Background())

	if err := db.EnsureIndexes(context.Background()); err != nil {
		slog.Error("Failed to ensure indexes", "error", err)
		os.Exit(1)
	}

	// Initialize Redis connection. Redis is optional: without it the
	// service runs single-instance with in-memory presence only.
	var redisService *services.RedisService
	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		slog.Warn("Redis unavailable, running without cross-instance relay", "error", err)
	} else {
		defer redisClient.Close()
		redisService = services.NewRedisService(redisClient)
	}

	// Initialize MinIO client for file attachments (optional)
	var fileStorage *storage.MinIOClient
	if cfg.MinIO.Endpoint != "" {
		fileStorage, err = storage.NewMinIOClient(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket)
		if err != nil {
			slog.Warn("MinIO unavailable, file uploads disabled", "error", err)
			fileStorage = nil
		}
	}

	// Initialize Kafka producer for the activity audit trail (optional)
	var producer sarama.SyncProducer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.InitKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			slog.Warn("Kafka unavailable, audit trail disabled", "error", err)
			producer = nil
		} else {
			defer producer.Close()
		}
	}
	auditService := services.NewAuditService(producer, cfg.Kafka.Topic)

	// Initialize repositories
	clipboardRepo := mongodb.NewClipboardRepository(db.DB)
	userRepo := mongodb.NewUserRepository(db.DB)

	// Initialize WebSocket hub
	views := websocket.NewViewCounter(clipboardRepo)
	hub := websocket.NewHub(views, redisService, auditService)
	go hub.Run()

	relay := websocket.NewRelay(hub, views)

	// Initialize services
	clipboardService := services.NewClipboardService(clipboardRepo, relay, auditService, fileStorage)
	userService := services.NewUserService(userRepo, cfg.JWT.Secret, cfg.JWT.ExpirationTime)

	// Initialize router with all dependencies
	router := routes.NewRouter(
		hub,
		clipboardService,
		userService,
		redisService,
		cfg.JWT.Secret,
		cfg.Server.PublicURL,
	)
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop WebSocket hub
	hub.Stop()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped")
}
