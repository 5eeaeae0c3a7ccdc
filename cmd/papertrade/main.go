package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"signalTrader/config"
	"signalTrader/internal/adapters/logger"
	"signalTrader/internal/adapters/paperexchange"
	"signalTrader/internal/adapters/sqlite"
	"signalTrader/internal/engine"
	"signalTrader/internal/executor"
	"signalTrader/internal/ports"
	"signalTrader/internal/risk"
	"signalTrader/internal/signal"
)

var (
	duration   = flag.Duration("duration", 2*time.Minute, "how long to run the paper session")
	startPrice = flag.Float64("start-price", 2500.0, "initial market price")
	drift      = flag.Float64("drift", 0.0, "per-step relative price drift")
	volatility = flag.Float64("vol", 0.0005, "per-step relative price noise")
	seed       = flag.Int64("seed", 42, "random walk seed")
	dbPath     = flag.String("db", "./data/papertrade.db", "sqlite path for the paper session")
)

func main() {
	flag.Parse()

	// 1. Load Configuration (paper sessions still read the env for risk and
	// signal knobs; exchange credentials are not required).
	cfg, err := config.LoadPaperConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	cfg.DBPath = *dbPath

	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 2. Paper exchange fed by a seeded random walk
	paper, err := paperexchange.New(paperexchange.Config{
		Symbol:          cfg.Symbol,
		FillPolls:       1,
		PartialFraction: 0.5,
		Logger:          appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize paper exchange: %v", err)
	}
	paper.SetPrice(*startPrice)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize repository: %v", err)
	}
	defer func() { _ = repo.Close() }()

	// 3. Signal pipeline: built-in momentum over the walk
	momentum := signal.NewMomentumProvider("momentum", cfg.MomentumShortWindow, cfg.MomentumLongWindow, cfg.MomentumMargin)
	sampler, err := signal.NewSampler(signal.SamplerConfig{
		Rule:   signal.Rule(cfg.SignalRule),
		Quorum: cfg.SignalQuorum,
	}, []ports.SignalProvider{momentum}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize signal sampler: %v", err)
	}
	lock := signal.NewLock(signal.LockConfig{
		ConfirmationThreshold: cfg.ConfirmationThreshold,
		Immediate:             sampler.PreConfirmed(),
	})

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
		log.Fatalf("FATAL: Failed to initialize risk guard: %v", err)
	}

	exec, err := executor.New(executor.Config{
		Symbol:        cfg.Symbol,
		PriceTickSize: cfg.PriceTickSize,
		PollInterval:  cfg.OrderPollInterval,
		Exchange:      paper,
		Logger:        appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize order executor: %v", err)
	}

	eng, err := engine.New(cfg, appLogger, paper, repo, repo, sampler, lock, guard, exec)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize trading engine: %v", err)
	}
	eng.OnPrice(momentum.Push)

	// 4. Drive the walk concurrently with the engine loop
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	go func() {
		rng := rand.New(rand.NewSource(*seed))
		price := *startPrice
		ticker := time.NewTicker(cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				step := *drift + *volatility*rng.NormFloat64()
				price *= math.Exp(step)
				paper.SetPrice(price)
			}
		}
	}()

	if err := eng.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Paper session stopped with error")
	}

	// 5. Session summary
	summaryCtx := context.Background()
	trades, err := repo.FindBySymbol(summaryCtx, cfg.Symbol, 100)
	if err != nil {
		log.Fatalf("FATAL: Failed to read trade history: %v", err)
	}
	total, err := repo.TotalPnl(summaryCtx, cfg.Symbol)
	if err != nil {
		log.Fatalf("FATAL: Failed to read total pnl: %v", err)
	}
	fmt.Printf("\n=== Paper Session Summary (%s) ===\n", cfg.Symbol)
	fmt.Printf("Trades: %d  Total PnL: %.4f\n", len(trades), total)
	for _, t := range trades {
		fmt.Printf("  %-5s entry=%.2f exit=%.2f size=%.4f pnl=%+.4f held=%s reason=%q\n",
			t.Side, t.EntryPrice, t.ExitPrice, t.Size, t.Pnl, t.Duration().Round(time.Second), t.CloseReason)
	}
}
