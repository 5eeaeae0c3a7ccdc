package engine

import (
	"context"
	"errors"
	"time"

	"signalTrader/internal/domain"
	"signalTrader/internal/executor"
	"signalTrader/internal/metrics"
)

// maybeOpen performs the Flat -> Opening -> Open transition for a freshly
// locked direction, subject to the side restriction and the risk guard.
// Assumes e.mu is held.
func (e *Engine) maybeOpen(ctx context.Context, dir domain.Direction, now time.Time) {
	op := "openPosition"
	if !e.allowedDirection(dir) {
		e.logger.Debug(ctx, op+": locked direction not allowed by side restriction", map[string]interface{}{"direction": dir, "allowed": e.cfg.AllowedSides})
		return
	}
	if ok, reason := e.guard.CanOpen(now); !ok {
		// Re-checked every tick while the lock holds, so keep this quiet.
		e.logger.Debug(ctx, op+": risk guard blocks open", map[string]interface{}{"reason": reason})
		return
	}

	e.position.State = domain.StateOpening
	e.position.Side = domain.SideForDirection(dir)
	e.persistSnapshot(ctx)
	metrics.PositionOpen.WithLabelValues(e.cfg.Symbol).Set(1)
	e.logger.Info(ctx, op+": opening position", map[string]interface{}{"side": e.position.Side, "size": e.cfg.ContractsPerTrade})

	req := executor.Request{
		Side:      dir,
		TotalSize: e.cfg.ContractsPerTrade,
		ReferencePrice: func(ctx context.Context) (float64, error) {
			return e.exchange.GetTickerPrice(ctx, e.cfg.Symbol)
		},
		AttemptTimeout: e.cfg.AttemptTimeout,
		MaxAttempts:    e.cfg.MaxOpenAttempts,
		// While the open is in flight the tick loop is blocked, so the abort
		// predicate advances the lock from live votes itself.
		Abort: func() bool {
			d := e.sampler.Sample(ctx)
			e.lock.Observe(d, time.Now())
			return e.lock.Direction() != dir
		},
	}

	res, err := e.exec.Fill(ctx, req)
	switch {
	case err == nil:
		// Fully filled.
	case errors.Is(err, executor.ErrAborted), errors.Is(err, executor.ErrMaxAttempts):
		e.logger.Info(ctx, op+": open abandoned", map[string]interface{}{"filled": res.FilledSize, "requested": req.TotalSize, "cause": err.Error()})
	default:
		// Fatal order failure; surface it but keep whatever partial state
		// resulted rather than assuming success or failure.
		e.logger.Error(ctx, err, op+": open action failed", map[string]interface{}{"filled": res.FilledSize})
	}

	if res.FilledSize <= 0 {
		e.position.Flatten()
		e.persistSnapshot(ctx)
		metrics.PositionOpen.WithLabelValues(e.cfg.Symbol).Set(0)
		return
	}

	// A partial fill still produces a valid, smaller open position.
	e.position.State = domain.StateOpen
	e.position.EntryPrice = res.AvgFillPrice
	e.position.EntryTime = time.Now().UTC()
	e.position.Size = res.FilledSize
	e.persistSnapshot(ctx)
	e.logger.Info(ctx, op+": position open", map[string]interface{}{
		"side": e.position.Side, "size": e.position.Size, "entryPrice": e.position.EntryPrice, "attempts": res.Attempts,
	})
}

// closePosition performs the Open -> Closing -> Flat transition and emits the
// closed-trade record. Close actions are guaranteed-completion: no abort
// predicate is passed, so the fill loop only exits on full fill or a fatal
// status. Issuing a close while flat, or while another close is in flight, is
// a no-op. Assumes e.mu is held.
func (e *Engine) closePosition(ctx context.Context, reason domain.CloseReason, now time.Time) {
	op := "closePosition"
	if e.closing {
		// Second trigger (e.g. take-profit racing a signal reversal) while a
		// close is already in flight.
		e.logger.Debug(ctx, op+": close already in flight, ignoring trigger", map[string]interface{}{"reason": reason})
		return
	}
	if e.position.State != domain.StateOpen {
		e.logger.Debug(ctx, op+": no open position to close", map[string]interface{}{"state": e.position.State, "reason": reason})
		return
	}
	e.closing = true
	defer func() { e.closing = false }()

	pos := e.position // copy for pricing closures
	e.position.State = domain.StateClosing
	e.persistSnapshot(ctx)
	e.logger.Info(ctx, op+": closing position", map[string]interface{}{"side": pos.Side, "size": pos.Size, "reason": reason})

	closeSide := domain.Sell
	if pos.Side == domain.Short {
		closeSide = domain.Buy
	}

	// Profit protection applies only to opposing-signal closes; guard-forced
	// closes always exit at the market reference.
	protect := reason == domain.CloseReasonSignalReversed

	req := executor.Request{
		Side:      closeSide,
		TotalSize: pos.Size,
		ReferencePrice: func(ctx context.Context) (float64, error) {
			price, err := e.exchange.GetTickerPrice(ctx, e.cfg.Symbol)
			if err != nil {
				return 0, err
			}
			if protect {
				// Hold the limit at the minimum acceptable exit until the
				// market crosses it; the funding accrual moves the floor as
				// the close stays outstanding.
				if floor, ok := e.guard.MinAcceptableExit(&pos, time.Now()); ok {
					if pos.Side == domain.Long && price < floor {
						return floor, nil
					}
					if pos.Side == domain.Short && price > floor {
						return floor, nil
					}
				}
			}
			return price, nil
		},
		AttemptTimeout: e.cfg.AttemptTimeout,
		Abort:          nil, // guaranteed completion
	}

	res, err := e.exec.Fill(ctx, req)
	if err != nil {
		// Fatal order failure or cancellation mid-close: keep whatever
		// partial state resulted. The position stays open with the unfilled
		// remainder; nothing is assumed closed that was not confirmed filled.
		e.logger.Error(ctx, err, op+": close action did not complete", map[string]interface{}{
			"filled": res.FilledSize, "requested": pos.Size,
		})
		e.position.State = domain.StateOpen
		e.position.Size = pos.Size - res.FilledSize
		e.persistSnapshot(ctx)
		return
	}

	exitPrice := res.AvgFillPrice
	pnl := (exitPrice - pos.EntryPrice) * pos.Size
	if pos.Side == domain.Short {
		pnl = (pos.EntryPrice - exitPrice) * pos.Size
	}

	e.emitTrade(ctx, &domain.Trade{
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Size:        pos.Size,
		Pnl:         pnl,
		EntryTime:   pos.EntryTime,
		ExitTime:    time.Now().UTC(),
		CloseReason: reason,
	}, now)

	e.position.Flatten()
	e.persistSnapshot(ctx)
	metrics.PositionOpen.WithLabelValues(e.cfg.Symbol).Set(0)
	e.logger.Info(ctx, op+": position closed", map[string]interface{}{
		"exitPrice": exitPrice, "pnl": pnl, "reason": reason, "attempts": res.Attempts,
	})
}

// emitTrade appends the trade record, folds it into the risk guard, and
// updates metrics. A failed append is logged but does not roll back the
// close: the exchange-side position is already flat.
func (e *Engine) emitTrade(ctx context.Context, trade *domain.Trade, now time.Time) {
	if _, err := e.tradeRepo.CreateTrade(ctx, trade); err != nil {
		e.logger.Error(ctx, err, "Failed to record closed trade", map[string]interface{}{"pnl": trade.Pnl, "reason": trade.CloseReason})
	}
	e.guard.RecordTrade(trade.Pnl, trade.CloseReason, e.nextBarStart(now))
	metrics.TradesTotal.WithLabelValues(e.cfg.Symbol, string(trade.CloseReason)).Inc()
	metrics.CumulativePnl.WithLabelValues(e.cfg.Symbol).Set(e.guard.CumulativePnl())
}
