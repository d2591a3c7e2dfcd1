package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/handsonproduct/coder-sms-register/internal/coder"
	"github.com/handsonproduct/coder-sms-register/internal/config"
	"github.com/handsonproduct/coder-sms-register/internal/health"
	"github.com/handsonproduct/coder-sms-register/internal/infra"
	"github.com/handsonproduct/coder-sms-register/internal/ledger"
	"github.com/handsonproduct/coder-sms-register/internal/logging"
	"github.com/handsonproduct/coder-sms-register/internal/reaper"
	"github.com/handsonproduct/coder-sms-register/internal/register"
	"github.com/handsonproduct/coder-sms-register/internal/stream"
	"github.com/handsonproduct/coder-sms-register/internal/twilio"
	"github.com/handsonproduct/coder-sms-register/internal/webhook"
)

const queueDepth = 64

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	if err := infra.Migrate(ctx, cfg.DatabaseURL); err != nil {
		logger.Error("migrate database", "error", err)
		os.Exit(1)
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}()

	accounts := ledger.NewPostgresStore(db)
	client := coder.NewClient(cfg.HTTPTimeout, logger)
	api := coder.NewAPI(client, cfg.CoderAPIURL, cfg.SessionToken, cfg.EmailDomain, logger)
	sender := twilio.NewSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.HTTPTimeout, logger)
	validator := twilio.NewSignatureValidator(cfg.TwilioAuthToken, cfg.WebhookURL)
	healthState := health.NewState()

	queue := make(chan stream.Inbound, queueDepth)
	consumer := "sms-ingestor-" + uuid.NewString()[:8]
	ingestor := stream.NewIngestor(cache, cfg.StreamKey, cfg.ConsumerGroup, consumer,
		cfg.ReadCount, cfg.BlockTimeout, queue, logger)

	if err := ingestor.EnsureGroup(ctx); err != nil {
		// The webhook keeps serving 500s until an operator intervenes;
		// nothing is silently dropped.
		logger.Error("create consumer group", "error", err)
		healthState.SetStreamFailed(err.Error())
	} else {
		healthState.SetStreamReady()
	}

	processor := register.NewProcessor(accounts, api, sender, cfg.Passphrase, cfg.EmailDomain, queue, logger)
	sweeper := reaper.New(accounts, api, cfg.AccountTTL, cfg.SweepInterval, cfg.GracePeriod, logger)

	srv := webhook.New(webhook.Deps{
		Cfg:       cfg,
		DB:        db,
		Cache:     cache,
		Health:    healthState,
		Validator: validator,
		Logger:    logger,
	})

	loopCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, run := range []func(context.Context){ingestor.Run, processor.Run, sweeper.Run} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(loopCtx)
		}(run)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	stop()
	wg.Wait()

	logger.Info("service exited cleanly")
}
