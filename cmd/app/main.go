// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cuenty-subscription-engine/internal/config"
	"cuenty-subscription-engine/internal/domain/ports/adapter"
	chans "cuenty-subscription-engine/internal/infra/adapters/channel"
	payAdapters "cuenty-subscription-engine/internal/infra/adapters/payment"
	pg "cuenty-subscription-engine/internal/infra/db/postgres"
	"cuenty-subscription-engine/internal/infra/logging"
	"cuenty-subscription-engine/internal/infra/metrics"
	red "cuenty-subscription-engine/internal/infra/redis"
	"cuenty-subscription-engine/internal/infra/sched"
	"cuenty-subscription-engine/internal/infra/security"
	"cuenty-subscription-engine/internal/infra/web"
	"cuenty-subscription-engine/internal/usecase"

	"flag"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop channels and charger)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, *devMode)
	if *devMode {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	snapshotCache := red.NewSnapshotCache(redisClient, cfg.Engine.SnapshotCacheTTL)

	// ---- Encryption ----
	encSvc, err := security.NewEncryptionService(cfg.Security.EncryptionKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption service init failed")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	accountRepo := pg.NewAccountRepo(pool)
	planRepo := pg.NewPlanRepo(pool)
	comboRepo := pg.NewComboRepo(pool)
	customerRepo := pg.NewCustomerRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	attemptRepo := pg.NewRenewalAttemptRepo(pool)
	eventRepo := pg.NewNotificationEventRepo(pool)

	// ---- Channels ----
	var channels []adapter.NotificationChannel
	if *devMode {
		channels = append(channels, chans.NewNoopChannel(logger))
	} else {
		if cfg.Channels.Messaging.Token != "" {
			tg, err := chans.NewTelegramChannel(cfg.Channels.Messaging.Token, logger)
			if err != nil {
				logger.Fatal().Err(err).Msg("telegram channel init failed")
			}
			channels = append(channels, tg)
		}
		if cfg.Automation.Email {
			email, err := chans.NewEmailChannel(cfg.Channels.Email, logger)
			if err != nil {
				logger.Fatal().Err(err).Msg("email channel init failed")
			}
			channels = append(channels, email)
		}
		if len(channels) == 0 {
			logger.Warn().Msg("no notification channel configured, falling back to noop")
			channels = append(channels, chans.NewNoopChannel(logger))
		}
	}

	// ---- Payment ----
	var charger adapter.PaymentCharger
	if *devMode || cfg.Payment.ChargeURL == "" {
		charger = payAdapters.NewNoopCharger(logger)
	} else {
		charger = payAdapters.NewHTTPCharger(cfg.Payment, logger)
	}

	// ---- Use cases ----
	poolUC := usecase.NewAccountPoolUseCase(accountRepo, tm, logger)
	allocUC := usecase.NewAllocatorUseCase(accountRepo, planRepo, poolUC, tm, logger)
	subUC := usecase.NewSubscriptionUseCase(
		subRepo, planRepo, attemptRepo, poolUC, allocUC, charger, tm,
		cfg.GraceWindow(), cfg.Engine.ChargeTimeout, logger,
	)
	notifUC := usecase.NewNotificationUseCase(
		eventRepo, customerRepo, accountRepo, tm, channels, encSvc,
		cfg.Engine.MaxSendAttempts, cfg.Engine.SendBackoffBase, cfg.Engine.AttemptTimeout,
		cfg.Engine.AlertListLimit, logger,
	)
	catUC := usecase.NewCatalogUseCase(planRepo, comboRepo, tm, logger)
	custUC := usecase.NewCustomerUseCase(customerRepo, subRepo, tm)
	statsUC := usecase.NewStatsUseCase(subRepo, logger)

	// ---- Workers ----
	renewalClock, err := config.ParseClock(cfg.Schedule.RenewalCheckTime)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid renewal check time")
	}
	cleanupClock, err := config.ParseClock(cfg.Schedule.LogCleanupTime)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid cleanup time")
	}
	renewalWorker := sched.NewRenewalWorker(
		renewalClock, cfg.Automation, cfg.Engine.ReminderDays,
		cfg.GraceWindow(), cfg.Engine.RunLockTTL,
		subUC, notifUC, statsUC, planRepo, locker, logger,
	)
	go func() { _ = renewalWorker.Run(ctx) }()

	if cfg.Automation.Cleanup {
		cleanupWorker := sched.NewCleanupWorker(
			cleanupClock, cfg.Retention(),
			subRepo, attemptRepo, eventRepo, tm, logger,
		)
		go func() { _ = cleanupWorker.Run(ctx) }()
	}

	// ---- Admin API ----
	server := web.NewServer(
		cfg.Admin, cfg.Automation, *devMode,
		poolUC, subUC, catUC, custUC, statsUC, notifUC,
		snapshotCache, encSvc, renewalWorker, logger,
	)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Admin.Port)
		logger.Info().Str("addr", addr).Msg("admin api listening")
		if err := server.ListenAndServe(ctx, addr); err != nil {
			logger.Error().Err(err).Msg("admin api stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
}
