package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/pawtrait/backend/internal/api"
	"github.com/pawtrait/backend/internal/config"
	"github.com/pawtrait/backend/internal/database"
	"github.com/pawtrait/backend/internal/generation"
	"github.com/pawtrait/backend/internal/payments"
	"github.com/pawtrait/backend/internal/provider"
	"github.com/pawtrait/backend/internal/ratelimit"
	"github.com/pawtrait/backend/internal/repository"
	"github.com/pawtrait/backend/internal/storage"
	"github.com/pawtrait/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	planRepo := repository.NewPlanRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	generationRepo := repository.NewGenerationRepository(db)

	if err := planRepo.EnsureDefaults(ctx, cfg.PaymentCurrency); err != nil {
		log.Fatalf("ensure default plans: %v", err)
	}

	archiver, err := storage.NewArchiver(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage archiver: %v", err)
	}

	providerClient := provider.NewClient(cfg, logr)
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerWindow: cfg.ProviderRequestsPerMin,
		WindowDuration:    time.Minute,
	})

	dispatcher := generation.NewDispatcher(limiter, providerClient, logr)
	poller := generation.NewPoller(generationRepo, subscriptionRepo, providerClient, archiver, logr)
	watcher := generation.NewWatcher(poller, generation.PollPolicy{
		MaxAttempts: cfg.PollMaxAttempts,
		Interval:    cfg.PollInterval,
	}, logr)
	generator := generation.NewService(subscriptionRepo, generationRepo, dispatcher, watcher, logr)

	checkout := payments.NewCheckout(cfg, planRepo, paymentRepo, logr)
	reconciler := payments.NewReconciler(cfg.PaymentWebhookSecret, paymentRepo, subscriptionRepo, planRepo, logr)

	server := api.NewServer(cfg.ListenAddr, logr, userRepo, planRepo, generationRepo, generator, poller, checkout, reconciler)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("server stopped", "err", err)
	}
}
