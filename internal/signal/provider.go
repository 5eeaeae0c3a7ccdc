package signal

import (
	"context"

	"signalTrader/internal/domain"
)

// FuncProvider adapts a plain function into a ports.SignalProvider. Useful
// for wiring externally computed votes (webhooks, shared state) and in tests.
type FuncProvider struct {
	name string
	fn   func(ctx context.Context) (domain.Direction, error)
}

// NewFuncProvider wraps fn as a named vote provider.
func NewFuncProvider(name string, fn func(ctx context.Context) (domain.Direction, error)) *FuncProvider {
	return &FuncProvider{name: name, fn: fn}
}

func (p *FuncProvider) Name() string { return p.name }

func (p *FuncProvider) Vote(ctx context.Context) (domain.Direction, error) {
	return p.fn(ctx)
}
