package ports

import (
	"context"

	"signalTrader/internal/domain"
)

// TradeRepository defines the interface for the append-only closed-trade log.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
	// TotalPnl returns the sum of realized pnl across all recorded trades for a symbol.
	TotalPnl(ctx context.Context, symbol string) (float64, error)
}

// StateStore persists the engine snapshot used to resume safely after a
// process restart. Implementations may be file, embedded KV, or remote backed.
type StateStore interface {
	// Save persists the snapshot, replacing any previous one.
	Save(ctx context.Context, snap *domain.Snapshot) error
	// Load returns the last saved snapshot, or nil, nil when none exists.
	Load(ctx context.Context) (*domain.Snapshot, error)
	// Clear removes any persisted snapshot.
	Clear(ctx context.Context) error
}
