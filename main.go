package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"

	"signalTrader/config"
	"signalTrader/internal/adapters/binanceclient"
	"signalTrader/internal/adapters/logger"
	"signalTrader/internal/adapters/sqlite"
	"signalTrader/internal/engine"
	"signalTrader/internal/executor"
	"signalTrader/internal/metrics"
	"signalTrader/internal/ports"
	"signalTrader/internal/risk"
	"signalTrader/internal/signal"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	var appLogger ports.Logger
	if cfg.LogFormat == "json" {
		appLogger = logger.NewZeroLogger(cfg.LogLevel)
	} else {
		appLogger = logger.NewStdLogger(cfg.LogLevel)
	}
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Initialize Signal Pipeline
	momentum := signal.NewMomentumProvider("momentum", cfg.MomentumShortWindow, cfg.MomentumLongWindow, cfg.MomentumMargin)
	sampler, err := signal.NewSampler(signal.SamplerConfig{
		Rule:   signal.Rule(cfg.SignalRule),
		Quorum: cfg.SignalQuorum,
	}, []ports.SignalProvider{momentum}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize signal sampler")
		log.Fatalf("FATAL: Failed to initialize signal sampler: %v", err)
	}
	lock := signal.NewLock(signal.LockConfig{
		ConfirmationThreshold: cfg.ConfirmationThreshold,
		Immediate:             sampler.PreConfirmed(),
	})

	// 6. Initialize Risk Guard
	guard, err := risk.NewGuard(risk.Config{
		MaxLossLimit:          cfg.MaxLossLimit,
		MaxTradeCount:         cfg.MaxTradeCount,
		MaxTradeCountEnabled:  cfg.MaxTradeCountEnabled,
		TakeProfitThreshold:   cfg.TakeProfitThreshold,
		TakeProfitEnabled:     cfg.TakeProfitEnabled,
		TakeProfitWaitNextBar: cfg.TakeProfitWaitNextBar,
		MinProfitPercent:      cfg.MinProfitPercent,
		MinProfitEnabled:      cfg.MinProfitEnabled,
		FundingPercentPerHour: cfg.FundingPercentPerHour,
		FeePercent:            cfg.FeePercent,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk guard")
		log.Fatalf("FATAL: Failed to initialize risk guard: %v", err)
	}

	// 7. Initialize Order Executor
	exec, err := executor.New(executor.Config{
		Symbol:        cfg.Symbol,
		PriceTickSize: cfg.PriceTickSize,
		PollInterval:  cfg.OrderPollInterval,
		Exchange:      binanceClient,
		Logger:        appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order executor")
		log.Fatalf("FATAL: Failed to initialize order executor: %v", err)
	}

	// 8. Initialize Trading Engine
	eng, err := engine.New(cfg, appLogger, binanceClient, repo, repo, sampler, lock, guard, exec)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading engine")
		log.Fatalf("FATAL: Failed to initialize trading engine: %v", err)
	}
	// Feed the built-in momentum provider from the engine's price reads.
	eng.OnPrice(momentum.Push)

	// 9. Optional metrics listener
	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		appLogger.Info(context.Background(), "Metrics listener started", map[string]interface{}{"addr": cfg.MetricsAddr})
		defer func() {
			if err := srv.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error(context.Background(), err, "Error closing metrics listener")
			}
		}()
	}

	// 10. Run until a shutdown signal or fatal error
	appLogger.Info(context.Background(), "Starting trading engine...")
	if err := eng.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Trading engine stopped with error")
		log.Fatalf("FATAL: Trading engine stopped with error: %v", err)
	}
	appLogger.Info(context.Background(), "Trading engine stopped gracefully")
}
