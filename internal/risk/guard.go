package risk

import (
	"fmt"
	"time"

	"signalTrader/internal/domain"
)

// Config holds the risk guard policy parameters.
type Config struct {
	MaxLossLimit          float64 // Trip when cumulative + unrealized pnl reaches -MaxLossLimit
	MaxTradeCount         int     // Completed-trade cap
	MaxTradeCountEnabled  bool    // Whether the trade-count limiter is active
	TakeProfitThreshold   float64 // Absolute net-profit threshold for a guard close
	TakeProfitEnabled     bool    // Whether take-profit is active
	TakeProfitWaitNextBar bool    // Suppress re-entry until the next bar after a take-profit close
	MinProfitPercent      float64 // Minimum profit floor on opposing-signal closes, percent of entry
	MinProfitEnabled      bool    // Whether the minimum-profit floor is active
	FundingPercentPerHour float64 // Holding cost accrued into the minimum-profit floor
	FeePercent            float64 // Estimated exit cost percent, netted out of take-profit
}

// Guard evaluates the stateful risk policy: cumulative-loss cap, trade-count
// cap, take-profit, and the minimum-profit close floor. The tripped flags are
// monotonic; once set they block opens until Reset is called.
type Guard struct {
	cfg   Config
	state domain.GuardSnapshot
}

// NewGuard creates a risk guard.
func NewGuard(cfg Config) (*Guard, error) {
	if cfg.MaxLossLimit <= 0 {
		return nil, fmt.Errorf("MaxLossLimit must be positive")
	}
	if cfg.MaxTradeCountEnabled && cfg.MaxTradeCount <= 0 {
		return nil, fmt.Errorf("MaxTradeCount must be positive when enabled")
	}
	if cfg.TakeProfitEnabled && cfg.TakeProfitThreshold <= 0 {
		return nil, fmt.Errorf("TakeProfitThreshold must be positive when enabled")
	}
	return &Guard{cfg: cfg}, nil
}

// CanOpen reports whether a Flat -> Opening transition is currently permitted.
func (g *Guard) CanOpen(now time.Time) (bool, string) {
	if g.state.LossTripped {
		return false, "max loss guard tripped"
	}
	if g.state.CountTripped {
		return false, fmt.Sprintf("trade count limit reached (%d/%d)", g.state.CompletedTrades, g.cfg.MaxTradeCount)
	}
	if !g.state.ReentryBarEnd.IsZero() {
		if now.Before(g.state.ReentryBarEnd) {
			return false, "re-entry gated until next bar"
		}
		g.state.ReentryBarEnd = time.Time{}
	}
	return true, ""
}

// CheckOpenPosition evaluates the guard against an open position and the live
// price. It returns a close reason and true when the guard forces the
// position to Closing on this tick.
func (g *Guard) CheckOpenPosition(pos *domain.Position, price float64) (domain.CloseReason, bool) {
	unrealized := pos.UnrealizedPnl(price)

	// Max loss: realized plus live unrealized pnl against the cap.
	if g.state.CumulativePnl+unrealized <= -g.cfg.MaxLossLimit {
		g.state.LossTripped = true
		return domain.CloseReasonMaxLoss, true
	}

	if g.state.CountTripped {
		return domain.CloseReasonTradeLimit, true
	}

	if g.cfg.TakeProfitEnabled {
		exitCost := price * pos.Size * g.cfg.FeePercent / 100
		if unrealized-exitCost >= g.cfg.TakeProfitThreshold {
			return domain.CloseReasonTakeProfit, true
		}
	}

	return "", false
}

// MinAcceptableExit returns the minimum acceptable exit price (a floor for
// long positions, a ceiling for shorts) for an opposing-signal close, and
// whether the floor is active. Guard-triggered closes never use it. The floor
// is the entry price adjusted by the configured minimum profit plus the
// funding cost accrued over the holding time.
func (g *Guard) MinAcceptableExit(pos *domain.Position, now time.Time) (float64, bool) {
	if !g.cfg.MinProfitEnabled || pos.EntryPrice <= 0 {
		return 0, false
	}
	hours := now.Sub(pos.EntryTime).Hours()
	if hours < 0 {
		hours = 0
	}
	marginPct := (g.cfg.MinProfitPercent + g.cfg.FundingPercentPerHour*hours) / 100
	if pos.Side == domain.Short {
		return pos.EntryPrice * (1 - marginPct), true
	}
	return pos.EntryPrice * (1 + marginPct), true
}

// RecordTrade folds a completed trade into the guard state. The trade-count
// trip is latched here; the re-entry gate is armed for take-profit closes
// when configured.
func (g *Guard) RecordTrade(pnl float64, reason domain.CloseReason, nextBarStart time.Time) {
	g.state.CumulativePnl += pnl
	g.state.CompletedTrades++
	if g.cfg.MaxTradeCountEnabled && g.state.CompletedTrades >= g.cfg.MaxTradeCount {
		g.state.CountTripped = true
	}
	if g.state.CumulativePnl <= -g.cfg.MaxLossLimit {
		g.state.LossTripped = true
	}
	if reason == domain.CloseReasonTakeProfit && g.cfg.TakeProfitWaitNextBar {
		g.state.ReentryBarEnd = nextBarStart
	}
}

// Tripped reports whether either monotonic limiter has fired.
func (g *Guard) Tripped() bool {
	return g.state.LossTripped || g.state.CountTripped
}

// CumulativePnl returns the realized pnl accumulated this session.
func (g *Guard) CumulativePnl() float64 {
	return g.state.CumulativePnl
}

// Reset explicitly clears the tripped limiters and counters. Operator action;
// nothing in the tick loop calls this.
func (g *Guard) Reset() {
	g.state = domain.GuardSnapshot{}
}

// Snapshot exports the guard state for persistence.
func (g *Guard) Snapshot() domain.GuardSnapshot {
	return g.state
}

// Restore replaces the guard state from a persisted snapshot.
func (g *Guard) Restore(snap domain.GuardSnapshot) {
	g.state = snap
}
