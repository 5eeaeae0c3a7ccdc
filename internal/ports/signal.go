package ports

import (
	"context"

	"signalTrader/internal/domain"
)

// SignalProvider is an external indicator collaborator producing one
// directional vote per tick. Votes are ephemeral; a provider must not assume
// it is sampled at any particular rate.
type SignalProvider interface {
	// Name identifies the provider in logs and aggregation rules.
	Name() string
	// Vote returns the current directional vote. Ambiguity is not an error;
	// providers return domain.None when they have no opinion.
	Vote(ctx context.Context) (domain.Direction, error)
}
