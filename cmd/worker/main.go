package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/nexura/nexura-api/internal/auth"
	"github.com/nexura/nexura-api/internal/database"
	"github.com/nexura/nexura-api/internal/mail"
	"github.com/nexura/nexura-api/internal/store"
	"github.com/nexura/nexura-api/internal/tasks"
	"github.com/nexura/nexura-api/pkg/config"
	"github.com/nexura/nexura-api/pkg/queue"
	"github.com/nexura/nexura-api/pkg/util"
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
	logger := util.NewLogger(cfg.Server.Env, "worker")
	slog.SetDefault(logger)

	logger.Info("starting Nexura worker")

	if err := util.ValidateCronExpr(cfg.Auth.InvitePurgeCron); err != nil {
		logger.Error("invalid INVITE_PURGE_CRON", "cron", cfg.Auth.InvitePurgeCron, "error", err)
		os.Exit(1)
	}

	// Connect to database
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	// The worker is the one place mail actually leaves the process
	var sender mail.Sender = mail.NewLogSender(logger)
	if cfg.SMTP.Enabled() {
		sender = mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, logger)
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
	}

	invitations := auth.NewInvitationService(store.New(db), sender, cfg.Auth.InviteTTL(), logger)

	// Create task handler and register handlers
	handler := tasks.NewHandler(sender, invitations, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	srv := queue.NewServer(&cfg.Redis, 10)

	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := scheduler.Register(cfg.Auth.InvitePurgeCron, tasks.NewPurgeInvitationsTask())
	if err != nil {
		logger.Error("failed to register purge schedule", "error", err)
		os.Exit(1)
	}
	if next, err := util.NextCronTime(cfg.Auth.InvitePurgeCron, time.Now()); err == nil {
		logger.Info("scheduled invitation purge", "entry", entryID, "cron", cfg.Auth.InvitePurgeCron, "next_run", next)
	}

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		scheduler.Shutdown()
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...")

	// Handle shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	logger.Info("worker stopped")
}
