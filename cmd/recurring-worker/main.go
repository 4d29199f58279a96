package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/services"
)

func main() {
	// .env is for local development; absence is fine
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := backend.Open(cfg)
	if err != nil {
		logger.Error("Failed to open repository", log.FieldError, err)
		os.Exit(1)
	}
	defer repo.Close()

	// AMQP is optional; without it the mirror relies on the periodic sweep
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, continuing without mirror notifications", log.FieldError, err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledgerSvc, err := services.NewLedgerService(ctx, repo, amqpClient, logger)
	if err != nil {
		logger.Error("Failed to load budget state", log.FieldError, err)
		os.Exit(1)
	}
	processor := services.NewRecurringProcessor(ledgerSvc, cfg.DefaultAccountID, logger)

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"db_path", cfg.SQLiteDBPath)

	tick := func(now time.Time) {
		emitted, err := processor.Tick(ctx, core.DateOf(now))
		if err != nil {
			logger.Error("Tick failed", log.FieldError, err)
			return
		}
		logger.Info("Tick complete", "bills_emitted", emitted)
	}

	tick(time.Now())

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				tick(now)
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()
	logger.Info("Recurring-worker shutdown complete")
}
