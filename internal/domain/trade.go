package domain

import "time"

// Trade is an immutable record of a fully closed position, appended to the
// trade log when the position returns to flat.
type Trade struct {
	ID          int64       // Unique identifier (from DB)
	Symbol      string      // Trading symbol
	Side        Side        // Exposure side of the closed position
	EntryPrice  float64     // Size-weighted average entry price
	ExitPrice   float64     // Size-weighted average exit price
	Size        float64     // Position size in contracts
	Pnl         float64     // Realized profit and loss
	EntryTime   time.Time   // When the position opened
	ExitTime    time.Time   // When the position fully closed
	CloseReason CloseReason // Why the position was closed
}

// Duration returns how long the position was held.
func (t *Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
