package signal

import (
	"context"
	"sync"

	"signalTrader/internal/domain"
)

// MomentumProvider is a minimal built-in vote source: it compares the mean of
// a short rolling price window against a long one and votes with the
// difference when it exceeds a relative margin. Real deployments are expected
// to plug richer indicator collaborators in via ports.SignalProvider; this
// keeps the default wiring self-contained.
type MomentumProvider struct {
	mu     sync.Mutex
	name   string
	shortN int
	longN  int
	margin float64 // relative, e.g. 0.001 for 0.1%
	prices []float64
}

// NewMomentumProvider creates a rolling-momentum vote provider.
func NewMomentumProvider(name string, shortN, longN int, margin float64) *MomentumProvider {
	if shortN <= 0 {
		shortN = 5
	}
	if longN <= shortN {
		longN = shortN * 4
	}
	return &MomentumProvider{
		name:   name,
		shortN: shortN,
		longN:  longN,
		margin: margin,
	}
}

func (p *MomentumProvider) Name() string { return p.name }

// Push records the latest observed price.
func (p *MomentumProvider) Push(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices = append(p.prices, price)
	if len(p.prices) > p.longN {
		p.prices = p.prices[len(p.prices)-p.longN:]
	}
}

// Vote returns None until the long window is full, then Buy/Sell when the
// short-window mean diverges from the long-window mean by more than the margin.
func (p *MomentumProvider) Vote(ctx context.Context) (domain.Direction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.prices) < p.longN {
		return domain.None, nil
	}
	shortMean := mean(p.prices[len(p.prices)-p.shortN:])
	longMean := mean(p.prices)
	if longMean == 0 {
		return domain.None, nil
	}
	diff := (shortMean - longMean) / longMean
	switch {
	case diff > p.margin:
		return domain.Buy, nil
	case diff < -p.margin:
		return domain.Sell, nil
	}
	return domain.None, nil
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
