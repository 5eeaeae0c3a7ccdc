package domain

// Direction is a directional vote sampled from the signal collaborators.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	None Direction = "NONE"
)

// Opposite returns the opposing direction, or None for None.
func (d Direction) Opposite() Direction {
	switch d {
	case Buy:
		return Sell
	case Sell:
		return Buy
	default:
		return None
	}
}

// Side is the market exposure of an open position.
type Side string

const (
	Long   Side = "LONG"
	Short  Side = "SHORT"
	NoSide Side = "NONE"
)

// SideForDirection maps a locked signal direction to the position side it opens.
func SideForDirection(d Direction) Side {
	switch d {
	case Buy:
		return Long
	case Sell:
		return Short
	default:
		return NoSide
	}
}

// PositionState is the lifecycle state of the single managed position.
// Transitions are strictly linear: Flat -> Opening -> Open -> Closing -> Flat.
type PositionState string

const (
	StateFlat    PositionState = "flat"
	StateOpening PositionState = "opening"
	StateOpen    PositionState = "open"
	StateClosing PositionState = "closing"
)

// OrderStatus is the exchange-reported state of a single limit order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusFailed          OrderStatus = "FAILED"
)

// IsTerminal reports whether no further fills can happen for this order.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusFailed:
		return true
	}
	return false
}

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonSignalReversed   CloseReason = "signal reversed"
	CloseReasonTakeProfit       CloseReason = "take profit"
	CloseReasonMaxLoss          CloseReason = "max loss"
	CloseReasonTradeLimit       CloseReason = "trade limit"
	CloseReasonManual           CloseReason = "stopped manually"
	CloseReasonClosedExternally CloseReason = "closed externally"
)
