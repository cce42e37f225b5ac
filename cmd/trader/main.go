package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paper-trade-bot-go/internal/binance"
	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/database"
	"paper-trade-bot-go/internal/ledger"
	"paper-trade-bot-go/internal/logger"
	"paper-trade-bot-go/internal/sentiment"
	"paper-trade-bot-go/internal/store"
	"paper-trade-bot-go/internal/trader"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize the order journal database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	journal := database.NewJournal(db)
	log.Info("Order journal connected and schema migrated.")

	// Initialize Binance REST client
	restClient := binance.NewRestClient(&cfg.Binance, log)
	if _, err := restClient.GetServerTime(); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}
	log.Info("Successfully connected to Binance API.")

	sentimentClient := sentiment.NewClient(cfg.Sentiment.BaseURL, log)

	// Load the persisted engine state. A corrupt snapshot halts startup:
	// silently resetting the ledger would mask financial data loss.
	snapshotStore := store.New(cfg.State.Path)
	state, err := snapshotStore.Load()
	if err != nil {
		if errors.Is(err, store.ErrCorruptState) {
			log.Fatal("State snapshot is corrupt; refusing to start with a fresh ledger. "+
				"Inspect or remove the snapshot manually.", zap.Error(err))
		}
		log.Fatal("Failed to load state snapshot", zap.Error(err))
	}

	feeRate := decimal.NewFromFloat(cfg.Trading.FeeRate)
	dust := decimal.NewFromFloat(cfg.Trading.DustThreshold)

	var led *ledger.Ledger
	var cycleCount int64
	if state != nil {
		led = ledger.Restore(state, feeRate, dust)
		cycleCount = state.CycleCount
		log.Info("Restored ledger from snapshot",
			zap.String("balance", state.Balance.String()),
			zap.Int("positions", len(state.Positions)),
			zap.Int64("cycle_count", state.CycleCount))
	} else {
		led = ledger.New(decimal.NewFromFloat(cfg.Trading.InitialBalance), feeRate, dust)
		log.Info("Starting with a fresh ledger",
			zap.Float64("initial_balance", cfg.Trading.InitialBalance))
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the trading engine
	tradeEngine, err := trader.NewEngine(log, &cfg, restClient, sentimentClient, led, snapshotStore, journal, cycleCount)
	if err != nil {
		log.Fatal("Failed to initialize engine", zap.Error(err))
	}

	apiServer := trader.NewAPIServer(tradeEngine, cfg.Server.Port, log)
	apiServer.Start()

	tradeEngine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server", zap.Error(err))
	}

	log.Info("Bot has been shut down.")
}
