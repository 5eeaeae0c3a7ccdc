package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"signalTrader/config"
	"signalTrader/internal/domain"
	"signalTrader/internal/executor"
	"signalTrader/internal/metrics"
	"signalTrader/internal/ports"
	"signalTrader/internal/risk"
	sig "signalTrader/internal/signal"
)

// Engine owns the position lifecycle state machine and drives the outer tick
// loop: sample votes, advance the signal lock, apply risk guard decisions,
// and invoke the order executor for open/close actions. All order work runs
// synchronously inside the tick; the loop yields only at poll and timeout
// waits inside the executor.
type Engine struct {
	cfg        *config.Config
	logger     ports.Logger
	exchange   ports.ExchangeClient
	tradeRepo  ports.TradeRepository
	stateStore ports.StateStore
	sampler    *sig.Sampler
	lock       *sig.Lock
	guard      *risk.Guard
	exec       *executor.Executor

	// priceHooks observe every ticker price read by the tick loop (e.g. to
	// feed the built-in momentum provider).
	priceHooks []func(price float64)

	// State fields
	mu           sync.Mutex // Protects access to state fields below
	position     domain.Position
	closing      bool // re-entrant close guard: one close in flight at a time
	running      bool
	sessionStart time.Time
}

// New creates the trading engine.
func New(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	tradeRepo ports.TradeRepository,
	stateStore ports.StateStore,
	sampler *sig.Sampler,
	lock *sig.Lock,
	guard *risk.Guard,
	exec *executor.Executor,
) (*Engine, error) {
	if cfg == nil || logger == nil || exchange == nil || tradeRepo == nil || stateStore == nil ||
		sampler == nil || lock == nil || guard == nil || exec == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	if cfg.ContractsPerTrade <= 0 {
		return nil, fmt.Errorf("configuration ContractsPerTrade must be positive")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("configuration TickInterval must be positive")
	}

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		exchange:   exchange,
		tradeRepo:  tradeRepo,
		stateStore: stateStore,
		sampler:    sampler,
		lock:       lock,
		guard:      guard,
		exec:       exec,
	}
	e.position.Symbol = cfg.Symbol
	e.position.Flatten()
	return e, nil
}

// OnPrice registers a hook invoked with every ticker price the tick loop
// reads. Must be called before Start.
func (e *Engine) OnPrice(fn func(price float64)) {
	e.priceHooks = append(e.priceHooks, fn)
}

// Start recovers persisted state, reconciles against the exchange, and runs
// the tick loop until the context is cancelled or a shutdown signal arrives.
// Any open position is left working and persisted for resumption.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info(ctx, "Starting trading engine...", map[string]interface{}{"symbol": e.cfg.Symbol})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		s := <-sigCh
		e.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": s.String()})
		cancel()
	}()

	if err := e.exchange.SetServerTime(ctx); err != nil {
		e.logger.Error(ctx, err, "Failed to synchronize server time")
		return fmt.Errorf("failed to set server time: %w", err)
	}
	e.logger.Info(ctx, "Server time synchronized")

	if err := e.recover(ctx); err != nil {
		e.logger.Error(ctx, err, "State recovery failed")
		return fmt.Errorf("state recovery failed: %w", err)
	}

	e.mu.Lock()
	e.running = true
	if e.sessionStart.IsZero() {
		e.sessionStart = time.Now().UTC()
	}
	e.persistSnapshot(ctx)
	e.mu.Unlock()

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "Context cancelled, persisting state and stopping")
			e.mu.Lock()
			// Position (if any) stays working on the exchange; the snapshot
			// keeps isRunning set so the next start reconciles and resumes.
			e.persistSnapshot(context.Background())
			e.mu.Unlock()
			e.logger.Info(ctx, "Trading engine stopped.")
			return nil
		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

// tick runs one evaluation cycle: sampler -> lock -> position manager with
// risk guard interception.
func (e *Engine) tick(ctx context.Context, now time.Time) {
	metrics.TicksTotal.WithLabelValues(e.cfg.Symbol).Inc()

	price, err := e.exchange.GetTickerPrice(ctx, e.cfg.Symbol)
	if err != nil {
		e.logger.Debug(ctx, "Ticker price unavailable, skipping tick", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, hook := range e.priceHooks {
		hook(price)
	}

	dir := e.sampler.Sample(ctx)
	changed := e.lock.Observe(dir, now)
	if changed {
		metrics.LockChangesTotal.WithLabelValues(e.cfg.Symbol, string(e.lock.Direction())).Inc()
		e.logger.Info(ctx, "Signal lock changed", map[string]interface{}{"direction": e.lock.Direction(), "at": now})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Open and close decisions compare the lock STATE, never the change
	// event: the abort predicate of an in-flight open advances the lock
	// itself, so a reversal confirmed mid-fill has no event left by the time
	// the next tick runs.
	switch e.position.State {
	case domain.StateFlat:
		if dir := e.lock.Direction(); dir != domain.None {
			e.maybeOpen(ctx, dir, now)
		}
	case domain.StateOpen:
		// Guard trips take precedence over signal reversals.
		if reason, force := e.guard.CheckOpenPosition(&e.position, price); force {
			e.closePosition(ctx, reason, now)
			return
		}
		if dir := e.lock.Direction(); dir != domain.None && domain.SideForDirection(dir) != e.position.Side {
			e.closePosition(ctx, domain.CloseReasonSignalReversed, now)
		}
	case domain.StateOpening, domain.StateClosing:
		// Order actions run synchronously inside a tick; seeing these states
		// here means a prior run was interrupted mid-action and recovery did
		// not resolve it. Nothing safe to do but wait for operator attention.
		e.logger.Warn(ctx, "Position in transient state at tick boundary", map[string]interface{}{"state": e.position.State})
	}
}

// allowedDirection applies the configured long/short/both restriction.
func (e *Engine) allowedDirection(dir domain.Direction) bool {
	switch e.cfg.AllowedSides {
	case config.SidesLong:
		return dir == domain.Buy
	case config.SidesShort:
		return dir == domain.Sell
	default:
		return dir == domain.Buy || dir == domain.Sell
	}
}

// nextBarStart returns the start of the bar after the one containing now.
func (e *Engine) nextBarStart(now time.Time) time.Time {
	return now.Truncate(e.cfg.BarInterval).Add(e.cfg.BarInterval)
}
