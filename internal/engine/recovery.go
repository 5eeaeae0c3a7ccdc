package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"signalTrader/internal/domain"
)

// recover loads the persisted snapshot and, if the previous run was active,
// reconciles the believed position against the exchange before the tick loop
// resumes. The exchange is the source of truth: local state is force-corrected
// to match it.
func (e *Engine) recover(ctx context.Context) error {
	op := "recover"
	snap, err := e.stateStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load persisted state: %w", err)
	}
	if snap == nil {
		e.logger.Info(ctx, op+": no persisted state, starting fresh")
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.lock.Restore(snap.Lock)
	e.guard.Restore(snap.Guard)
	e.sessionStart = snap.SessionStart
	e.position = snap.Position
	e.position.Symbol = e.cfg.Symbol
	e.logger.Info(ctx, op+": snapshot restored", map[string]interface{}{
		"wasRunning": snap.IsRunning, "positionState": snap.Position.State, "savedAt": snap.SavedAt,
	})

	if !snap.IsRunning {
		e.position.Flatten()
		return nil
	}

	exPos, err := e.exchange.GetOpenPosition(ctx, e.cfg.Symbol)
	if err != nil {
		return fmt.Errorf("failed to query exchange position for reconciliation: %w", err)
	}

	switch {
	case !e.position.IsFlat() && exPos == nil:
		// Believed exposure no longer exists: closed externally (manual close
		// or liquidation). Emit a synthetic trade and take no further action.
		e.logger.Warn(ctx, op+": position closed externally, reconciling", map[string]interface{}{
			"side": e.position.Side, "size": e.position.Size,
		})
		exitPrice, perr := e.exchange.GetTickerPrice(ctx, e.cfg.Symbol)
		if perr != nil {
			// Exit price unknown; record a zero-pnl trade at entry rather
			// than failing the restart.
			exitPrice = e.position.EntryPrice
		}
		pnl := (exitPrice - e.position.EntryPrice) * e.position.Size
		if e.position.Side == domain.Short {
			pnl = (e.position.EntryPrice - exitPrice) * e.position.Size
		}
		e.emitTrade(ctx, &domain.Trade{
			Symbol:      e.cfg.Symbol,
			Side:        e.position.Side,
			EntryPrice:  e.position.EntryPrice,
			ExitPrice:   exitPrice,
			Size:        e.position.Size,
			Pnl:         pnl,
			EntryTime:   e.position.EntryTime,
			ExitTime:    time.Now().UTC(),
			CloseReason: domain.CloseReasonClosedExternally,
		}, time.Now())
		e.position.Flatten()

	case exPos != nil:
		// Adopt the exchange's view wholesale. An interrupted Opening or
		// Closing collapses to Open; the normal tick loop re-evaluates exits.
		side := domain.Long
		if exPos.Size < 0 {
			side = domain.Short
		}
		entryTime := e.position.EntryTime
		if entryTime.IsZero() {
			entryTime = time.Now().UTC()
		}
		corrected := e.position.Side != side || e.position.Size != math.Abs(exPos.Size) || e.position.State != domain.StateOpen
		e.position.State = domain.StateOpen
		e.position.Side = side
		e.position.Size = math.Abs(exPos.Size)
		e.position.EntryPrice = exPos.EntryPrice
		e.position.EntryTime = entryTime
		if corrected {
			e.logger.Warn(ctx, op+": local position force-corrected to exchange state", map[string]interface{}{
				"side": side, "size": e.position.Size, "entryPrice": e.position.EntryPrice,
			})
		} else {
			e.logger.Info(ctx, op+": position matches exchange, resuming", map[string]interface{}{"side": side, "size": e.position.Size})
		}

	default:
		// Flat on both sides.
		e.position.Flatten()
	}

	e.persistSnapshot(ctx)
	return nil
}

// persistSnapshot writes the current engine state. Persist failures are
// logged, not fatal: trading state correctness does not depend on the store.
// Assumes e.mu is held.
func (e *Engine) persistSnapshot(ctx context.Context) {
	snap := &domain.Snapshot{
		IsRunning:    e.running,
		Position:     e.position,
		Lock:         e.lock.Snapshot(),
		Guard:        e.guard.Snapshot(),
		SessionStart: e.sessionStart,
		SavedAt:      time.Now().UTC(),
	}
	if err := e.stateStore.Save(ctx, snap); err != nil {
		e.logger.Error(ctx, err, "Failed to persist state snapshot")
	}
}

// StopAndFlatten closes any open position with the manual close reason and
// marks the persisted state as stopped. Intended for operator-initiated
// shutdowns where no exposure should survive the process.
func (e *Engine) StopAndFlatten(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.position.State == domain.StateOpen {
		e.closePosition(ctx, domain.CloseReasonManual, time.Now())
		if !e.position.IsFlat() {
			return fmt.Errorf("manual close did not complete; position still %s", e.position.State)
		}
	}
	e.running = false
	e.persistSnapshot(ctx)
	return nil
}
