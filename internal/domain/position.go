package domain

import "time"

// Position represents the single directional exposure managed for one
// instrument. At most one position with State != StateFlat exists at any time.
type Position struct {
	Symbol     string        `json:"symbol"`     // Trading symbol (e.g., "ETHUSDT")
	State      PositionState `json:"state"`      // Current lifecycle state
	Side       Side          `json:"side"`       // Long/Short; NoSide while flat
	EntryPrice float64       `json:"entryPrice"` // Size-weighted average entry price
	EntryTime  time.Time     `json:"entryTime"`  // Timestamp of the transition into Open
	Size       float64       `json:"size"`       // Open size in contracts (may be below the requested size after a partial open)
}

// IsFlat reports whether no exposure exists or is being worked.
func (p *Position) IsFlat() bool {
	return p.State == StateFlat
}

// UnrealizedPnl returns the gross unrealized profit at the given price.
// Zero while the position is not open.
func (p *Position) UnrealizedPnl(price float64) float64 {
	if p.State != StateOpen && p.State != StateClosing {
		return 0
	}
	if p.Side == Short {
		return (p.EntryPrice - price) * p.Size
	}
	return (price - p.EntryPrice) * p.Size
}

// Flatten resets the position to the flat state, clearing side and entry data.
func (p *Position) Flatten() {
	p.State = StateFlat
	p.Side = NoSide
	p.EntryPrice = 0
	p.EntryTime = time.Time{}
	p.Size = 0
}
