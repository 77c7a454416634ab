package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/nexura/nexura-api/internal/api"
	"github.com/nexura/nexura-api/internal/api/handlers"
	"github.com/nexura/nexura-api/internal/auth"
	"github.com/nexura/nexura-api/internal/database"
	"github.com/nexura/nexura-api/internal/mail"
	"github.com/nexura/nexura-api/internal/metrics"
	"github.com/nexura/nexura-api/internal/store"
	"github.com/nexura/nexura-api/internal/tasks"
	"github.com/nexura/nexura-api/internal/upload"
	"github.com/nexura/nexura-api/pkg/config"
	"github.com/nexura/nexura-api/pkg/queue"
	"github.com/nexura/nexura-api/pkg/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := util.NewLogger(cfg.Server.Env, "api")
	slog.SetDefault(logger)

	logger.Info("starting Nexura API",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// Connect to Redis. Revocation checks depend on it, so the API refuses
	// to start without it.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	// Outgoing mail goes through the worker; direct delivery is the fallback
	var direct mail.Sender = mail.NewLogSender(logger)
	if cfg.SMTP.Enabled() {
		direct = mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger)
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
	}
	asynqClient := queue.NewClient(&cfg.Redis)
	mailer := tasks.NewQueuedSender(asynqClient, direct, logger)

	var uploader upload.Uploader
	if cfg.Storage.Enabled() {
		s3Uploader, err := upload.NewS3Uploader(context.Background(), &cfg.Storage)
		if err != nil {
			logger.Error("failed to create uploader", "error", err)
			os.Exit(1)
		}
		uploader = s3Uploader
	} else {
		logger.Warn("S3_BUCKET not set, organizations get placeholder logos")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize services
	st := store.New(db)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, auth.TokenTTLs{
		Access:  cfg.JWT.AccessTTL(),
		Refresh: cfg.JWT.RefreshTTL(),
		Reset:   cfg.JWT.ResetTTL(),
	})
	authService, err := auth.NewService(auth.ServiceConfig{
		Store:       st,
		Hasher:      auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Tokens:      jwtService,
		Revocations: auth.NewRedisRevocationStore(redisClient, ""),
		Invitations: auth.NewInvitationService(st, mailer, cfg.Auth.InviteTTL(), logger),
		Reconciler:  auth.NewReconciler(st, m, logger),
		Mailer:      mailer,
		Uploader:    uploader,
		Metrics:     m,
		Logger:      logger,
		ClientURL:   cfg.Server.ClientURL,
		LogoutTTL:   cfg.JWT.LogoutRevokeTTL(),
	})
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		os.Exit(1)
	}

	// Create router
	router := api.NewRouter(api.RouterConfig{
		DB:          db,
		Redis:       redisClient,
		Logger:      logger,
		AuthService: authService,
		Metrics:     m,
		Cookie: handlers.CookieConfig{
			Name:   cfg.Auth.RefreshCookieName,
			Secure: cfg.Auth.CookieSecure,
			MaxAge: cfg.JWT.RefreshTTL(),
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		TrustProxy:     cfg.Server.TrustProxy,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	router.Close()
	closeAll(logger, asynqClient, redisClient)
	database.Close(db)

	logger.Info("server stopped")
}

func closeAll(logger *slog.Logger, asynqClient *asynq.Client, redisClient *redis.Client) {
	if err := asynqClient.Close(); err != nil {
		logger.Warn("closing asynq client", "error", err)
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("closing redis", "error", err)
	}
}
