package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"signalTrader/internal/domain"
	"signalTrader/internal/metrics"
	"signalTrader/internal/ports"
)

const (
	// sizeEpsilon guards float comparison of requested vs filled size.
	sizeEpsilon = 1e-9
	// cancelRacePolls bounds the status re-polls after a cancel race, where
	// the cancel failed because the order had already filled.
	cancelRacePolls = 5
)

var (
	// ErrAborted is returned when an open action is abandoned because the
	// locked signal reversed. The Result still carries the partial fill.
	ErrAborted = errors.New("fill aborted: signal changed")
	// ErrMaxAttempts is returned when the configured attempt bound for open
	// actions is exhausted.
	ErrMaxAttempts = errors.New("fill aborted: attempt limit reached")
)

// Executor fills a requested size at the exchange with retrying,
// partially-fillable limit orders. A single order is outstanding at a time;
// unfilled remainders are re-placed at a fresh reference price until the
// request completes or is aborted.
type Executor struct {
	exchange     ports.ExchangeClient
	logger       ports.Logger
	symbol       string
	tickSize     float64
	pollInterval time.Duration
}

// Config holds configuration for the order executor.
type Config struct {
	Symbol        string
	PriceTickSize float64       // Exchange price grid
	PollInterval  time.Duration // Order status poll period
	Exchange      ports.ExchangeClient
	Logger        ports.Logger
}

// New creates an order executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Logger == nil || cfg.Exchange == nil {
		return nil, fmt.Errorf("missing required dependencies for executor")
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if cfg.PriceTickSize <= 0 {
		return nil, fmt.Errorf("PriceTickSize must be positive")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("PollInterval must be positive")
	}
	return &Executor{
		exchange:     cfg.Exchange,
		logger:       cfg.Logger,
		symbol:       cfg.Symbol,
		tickSize:     cfg.PriceTickSize,
		pollInterval: cfg.PollInterval,
	}, nil
}

// Request describes one fill action.
type Request struct {
	Side           domain.Direction                           // Order side: Buy or Sell
	TotalSize      float64                                    // Size to fill across all attempts
	ReferencePrice func(ctx context.Context) (float64, error) // Fresh reference price per attempt
	AttemptTimeout time.Duration                              // Per attempt, before cancel-and-retry
	// Abort is consulted between attempts; nil for close actions, which are
	// guaranteed-completion and only exit on full fill or a fatal status.
	Abort func() bool
	// MaxAttempts bounds open-action attempts; 0 means unbounded.
	MaxAttempts int
}

// Result is the aggregate outcome of one fill invocation. On error it carries
// whatever was filled before the abort.
type Result struct {
	FilledSize   float64 // Sum of fills across all attempts
	AvgFillPrice float64 // Size-weighted mean of per-attempt fill prices
	Attempts     int     // Number of orders placed
}

// Fill places, polls, and retries limit orders until TotalSize is filled or
// the action is aborted. Fatal statuses abort immediately; timeouts and
// partial fills loop with the remainder.
func (e *Executor) Fill(ctx context.Context, req Request) (Result, error) {
	if req.TotalSize <= 0 {
		return Result{}, fmt.Errorf("%w: requested size must be positive", ports.ErrInvalidRequest)
	}
	if req.Side != domain.Buy && req.Side != domain.Sell {
		return Result{}, fmt.Errorf("%w: order side must be Buy or Sell", ports.ErrInvalidRequest)
	}

	var filled, weighted float64
	attempts := 0
	result := func() Result {
		r := Result{FilledSize: filled, Attempts: attempts}
		if filled > 0 {
			r.AvgFillPrice = weighted / filled
		}
		return r
	}

	for req.TotalSize-filled > sizeEpsilon {
		if err := ctx.Err(); err != nil {
			return result(), fmt.Errorf("fill interrupted: %w: %w", ports.ErrContextCanceled, err)
		}
		// Abort only ever applies to open actions, and only once at least one
		// attempt has been made: the first attempt always runs.
		if req.Abort != nil && attempts > 0 && req.Abort() {
			e.logger.Info(ctx, "Fill aborted by signal reversal", map[string]interface{}{
				"symbol": e.symbol, "filled": filled, "requested": req.TotalSize, "attempts": attempts,
			})
			return result(), ErrAborted
		}
		if req.MaxAttempts > 0 && attempts >= req.MaxAttempts {
			return result(), ErrMaxAttempts
		}

		remaining := req.TotalSize - filled

		ref, err := req.ReferencePrice(ctx)
		if err != nil {
			if ports.IsFatalOrderError(err) {
				return result(), fmt.Errorf("reference price: %w", err)
			}
			e.logger.Warn(ctx, "Reference price unavailable, retrying", map[string]interface{}{"symbol": e.symbol, "error": err.Error()})
			if err := e.wait(ctx); err != nil {
				return result(), err
			}
			continue
		}
		price := RoundToTick(ref, req.Side, e.tickSize)

		orderID, err := e.exchange.PlaceLimitOrder(ctx, e.symbol, req.Side, remaining, price)
		if err != nil {
			if ports.IsFatalOrderError(err) {
				return result(), fmt.Errorf("place limit order: %w", err)
			}
			e.logger.Warn(ctx, "Order placement failed, retrying", map[string]interface{}{"symbol": e.symbol, "error": err.Error()})
			if err := e.wait(ctx); err != nil {
				return result(), err
			}
			continue
		}
		attempts++
		metrics.OrderAttemptsTotal.WithLabelValues(e.symbol, string(req.Side)).Inc()
		e.logger.Info(ctx, "Limit order placed", map[string]interface{}{
			"symbol": e.symbol, "orderID": orderID, "side": req.Side, "size": remaining, "price": price, "attempt": attempts,
		})

		state, err := e.awaitAttempt(ctx, orderID, req.AttemptTimeout)
		if err != nil {
			return result(), err
		}

		if state.FilledSize > 0 {
			filled += state.FilledSize
			weighted += state.FilledSize * state.AvgFillPrice
			metrics.FilledSizeTotal.WithLabelValues(e.symbol, string(req.Side)).Add(state.FilledSize)
		}
		e.logger.Info(ctx, "Order attempt settled", map[string]interface{}{
			"symbol": e.symbol, "orderID": orderID, "status": state.Status,
			"attemptFill": state.FilledSize, "totalFill": filled, "requested": req.TotalSize,
		})

		// A Failed terminal status (rejected order) is fatal for the whole
		// action; cancelled/expired/partial attempts loop with the remainder.
		if state.Status == domain.OrderStatusFailed {
			return result(), fmt.Errorf("order %s rejected: %w", orderID, ports.ErrOrderPlacementFailed)
		}
	}

	return result(), nil
}

// awaitAttempt polls one order until a terminal status or the attempt timeout.
// On timeout the order is cancelled; the fill-race where the cancel loses to a
// fill is resolved by bounded status re-polls rather than trusting the cancel
// response.
func (e *Executor) awaitAttempt(ctx context.Context, orderID string, timeout time.Duration) (*ports.OrderState, error) {
	deadline := time.Now().Add(timeout)
	var last *ports.OrderState

	for time.Now().Before(deadline) {
		if err := e.wait(ctx); err != nil {
			return nil, err
		}
		state, err := e.exchange.GetOrderStatus(ctx, e.symbol, orderID)
		if err != nil {
			e.logger.Warn(ctx, "Order status poll failed", map[string]interface{}{"orderID": orderID, "error": err.Error()})
			continue
		}
		last = state
		if state.Status.IsTerminal() {
			return state, nil
		}
	}

	// Timed out with the order still open: cancel. Whether the cancel is
	// accepted or loses the race to a fill, only a terminal status read gives
	// an accurate fill figure; the cancel response alone is never trusted.
	res, err := e.exchange.CancelOrder(ctx, e.symbol, orderID)
	if err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
		e.logger.Warn(ctx, "Cancel failed, re-polling for terminal status", map[string]interface{}{"orderID": orderID, "error": err.Error()})
	} else if res != nil && !res.Success {
		e.logger.Info(ctx, "Cancel refused by exchange, likely filled", map[string]interface{}{"orderID": orderID, "reason": res.Reason})
	}
	return e.resolveFinal(ctx, orderID, last)
}

// resolveFinal re-polls an order a bounded number of times until a terminal
// status is observed.
func (e *Executor) resolveFinal(ctx context.Context, orderID string, last *ports.OrderState) (*ports.OrderState, error) {
	for i := 0; i < cancelRacePolls; i++ {
		state, err := e.exchange.GetOrderStatus(ctx, e.symbol, orderID)
		if err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) && last != nil {
				// Purged from the open-order book; the last read stands.
				return terminalOrCancelled(last), nil
			}
			e.logger.Warn(ctx, "Final status poll failed", map[string]interface{}{"orderID": orderID, "error": err.Error()})
		} else {
			last = state
			if state.Status.IsTerminal() {
				return state, nil
			}
		}
		if err := e.wait(ctx); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("order %s did not reach a terminal status after cancel: %w", orderID, ports.ErrTimeout)
}

// terminalOrCancelled coerces a non-terminal last read into a cancelled state
// so the fill loop can proceed with its (accurate) fill figures.
func terminalOrCancelled(state *ports.OrderState) *ports.OrderState {
	if state.Status.IsTerminal() {
		return state
	}
	s := *state
	s.Status = domain.OrderStatusCancelled
	return &s
}

// wait sleeps one poll interval or returns early on context cancellation.
func (e *Executor) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ports.ErrContextCanceled, ctx.Err())
	case <-time.After(e.pollInterval):
		return nil
	}
}

// RoundToTick snaps a reference price onto the exchange tick grid, rounding
// toward the side that is conservative for the requester: down for buys, up
// for sells.
func RoundToTick(price float64, side domain.Direction, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	ticks := price / tick
	if side == domain.Buy {
		return math.Floor(ticks+sizeEpsilon) * tick
	}
	return math.Ceil(ticks-sizeEpsilon) * tick
}
