package ports

import (
	"context"
	"time"

	"signalTrader/internal/domain"
)

// OrderState is the exchange-reported fill state of one limit order.
type OrderState struct {
	OrderID      string             // Exchange's order ID
	Status       domain.OrderStatus // Current order status
	FilledSize   float64            // Cumulative filled size for this order
	AvgFillPrice float64            // Size-weighted average fill price for this order
	UpdatedAt    time.Time          // Time the state was reported
}

// CancelResult reports the outcome of a cancel request. Success false with a
// populated Reason covers the race where the order filled before the cancel
// reached the exchange.
type CancelResult struct {
	Success bool
	Reason  string
}

// ExchangePosition is the exchange's view of the net position for one
// instrument, used during restart reconciliation. Size is positive for long
// and negative for short exposure.
type ExchangePosition struct {
	Symbol     string
	Size       float64
	EntryPrice float64
}

// ExchangeClient defines the abstract exchange boundary for the execution
// core. This abstraction decouples the order fulfillment loop from any
// specific vendor API.
type ExchangeClient interface {
	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetTickerPrice retrieves the last traded price for a given symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// PlaceLimitOrder places a limit order and returns the exchange order ID.
	PlaceLimitOrder(ctx context.Context, symbol string, side domain.Direction, size, price float64) (string, error)

	// GetOrderStatus retrieves the current state of an order by its ID.
	GetOrderStatus(ctx context.Context, symbol, orderID string) (*OrderState, error)

	// CancelOrder cancels an open order. A failed cancel is not necessarily an
	// error: the order may already have filled (see CancelResult).
	CancelOrder(ctx context.Context, symbol, orderID string) (*CancelResult, error)

	// GetOpenPosition returns the exchange-side position for the symbol, or
	// nil when flat. Used only at process-restart reconciliation.
	GetOpenPosition(ctx context.Context, symbol string) (*ExchangePosition, error)
}
