// Package paperexchange provides an in-memory ExchangeClient for paper
// trading and tests. Orders fill against a caller-driven price with a
// configurable poll delay and partial-fill fraction, which makes timeout,
// retry and cancel-race behavior reproducible without a live venue.
package paperexchange

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

// Config holds the fill model knobs for the paper exchange.
type Config struct {
	Symbol string

	// FillPolls is the number of GetOrderStatus calls an order must be
	// observed before it becomes eligible to fill. Zero fills on the first
	// poll with a crossing price.
	FillPolls int

	// PartialFraction, when in (0,1), caps each fill event at this fraction
	// of the remaining order size. Zero or one fills the full remainder.
	PartialFraction float64

	Logger ports.Logger
}

type paperOrder struct {
	id        string
	side      domain.Direction
	size      float64
	price     float64
	filled    float64
	avgPrice  float64
	status    domain.OrderStatus
	polls     int
	createdAt time.Time
}

// PaperExchange simulates an exchange in memory. The current market price is
// set by the caller through SetPrice and read back by GetTickerPrice, so a
// simulator loop fully controls the tape.
type PaperExchange struct {
	cfg Config

	mu       sync.Mutex
	price    float64
	orders   map[string]*paperOrder
	position float64 // signed net size, positive long
	entry    float64
}

// New creates a paper exchange with the given fill model.
func New(cfg Config) (*PaperExchange, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ports.ErrConfigurationError)
	}
	if cfg.PartialFraction < 0 || cfg.PartialFraction > 1 {
		return nil, fmt.Errorf("%w: partial fraction must be within [0, 1]", ports.ErrConfigurationError)
	}
	if cfg.FillPolls < 0 {
		return nil, fmt.Errorf("%w: fill polls must not be negative", ports.ErrConfigurationError)
	}
	return &PaperExchange{
		cfg:    cfg,
		orders: make(map[string]*paperOrder),
	}, nil
}

// SetPrice sets the current market price. Open orders are not filled here;
// fills resolve lazily on GetOrderStatus against the price at poll time.
func (p *PaperExchange) SetPrice(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
}

// Position returns the simulated net position size (signed) and entry price.
func (p *PaperExchange) Position() (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.entry
}

// SetServerTime is a no-op for the paper exchange.
func (p *PaperExchange) SetServerTime(ctx context.Context) error { return nil }

// Ping is a no-op for the paper exchange.
func (p *PaperExchange) Ping(ctx context.Context) error { return nil }

// GetTickerPrice returns the price last set through SetPrice.
func (p *PaperExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if symbol != p.cfg.Symbol {
		return 0, fmt.Errorf("%w: %s", ports.ErrUnknownInstrument, symbol)
	}
	if p.price <= 0 {
		return 0, fmt.Errorf("%w: no price set", ports.ErrExchangeUnavailable)
	}
	return p.price, nil
}

// PlaceLimitOrder books a resting limit order and returns its ID.
func (p *PaperExchange) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Direction, size, price float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if symbol != p.cfg.Symbol {
		return "", fmt.Errorf("%w: %s", ports.ErrUnknownInstrument, symbol)
	}
	if size <= 0 || price <= 0 {
		return "", fmt.Errorf("%w: size and price must be positive", ports.ErrInvalidRequest)
	}
	if side != domain.Buy && side != domain.Sell {
		return "", fmt.Errorf("%w: side must be buy or sell", ports.ErrInvalidRequest)
	}
	o := &paperOrder{
		id:        uuid.NewString(),
		side:      side,
		size:      size,
		price:     price,
		status:    domain.OrderStatusOpen,
		createdAt: time.Now(),
	}
	p.orders[o.id] = o
	return o.id, nil
}

// GetOrderStatus reports the order state, advancing the fill model first.
func (p *PaperExchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (*ports.OrderState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrOrderNotFound, orderID)
	}
	p.advance(o)
	return &ports.OrderState{
		OrderID:      o.id,
		Status:       o.status,
		FilledSize:   o.filled,
		AvgFillPrice: o.avgPrice,
		UpdatedAt:    time.Now(),
	}, nil
}

// CancelOrder cancels the remaining size of an open order. The fill model is
// advanced first, so an order whose price has crossed can win the race and
// report an unsuccessful cancel.
func (p *PaperExchange) CancelOrder(ctx context.Context, symbol, orderID string) (*ports.CancelResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return &ports.CancelResult{Success: false, Reason: "unknown order"}, nil
	}
	p.advance(o)
	if o.status.IsTerminal() {
		return &ports.CancelResult{Success: false, Reason: "order already terminal"}, nil
	}
	o.status = domain.OrderStatusCancelled
	return &ports.CancelResult{Success: true}, nil
}

// GetOpenPosition returns the simulated net position, or nil when flat.
func (p *PaperExchange) GetOpenPosition(ctx context.Context, symbol string) (*ports.ExchangePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if symbol != p.cfg.Symbol {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnknownInstrument, symbol)
	}
	if math.Abs(p.position) < 1e-9 {
		return nil, nil
	}
	return &ports.ExchangePosition{
		Symbol:     p.cfg.Symbol,
		Size:       p.position,
		EntryPrice: p.entry,
	}, nil
}

// advance applies the fill model to one order. Caller holds the lock.
func (p *PaperExchange) advance(o *paperOrder) {
	if o.status.IsTerminal() || p.price <= 0 {
		return
	}
	o.polls++
	if o.polls <= p.cfg.FillPolls {
		return
	}
	crossed := (o.side == domain.Buy && p.price <= o.price) ||
		(o.side == domain.Sell && p.price >= o.price)
	if !crossed {
		return
	}

	remaining := o.size - o.filled
	fill := remaining
	if p.cfg.PartialFraction > 0 && p.cfg.PartialFraction < 1 {
		fill = o.size * p.cfg.PartialFraction
		if fill > remaining {
			fill = remaining
		}
	}

	// Limit orders fill at their limit price in this model.
	o.avgPrice = (o.avgPrice*o.filled + o.price*fill) / (o.filled + fill)
	o.filled += fill
	if o.size-o.filled < 1e-9 {
		o.status = domain.OrderStatusFilled
	} else {
		o.status = domain.OrderStatusPartiallyFilled
	}
	p.applyFill(o.side, fill, o.price)
	if p.cfg.Logger != nil {
		p.cfg.Logger.Debug(context.Background(), "Paper fill", map[string]interface{}{
			"orderID": o.id, "side": o.side, "fill": fill, "price": o.price, "status": o.status,
		})
	}
}

func (p *PaperExchange) applyFill(side domain.Direction, size, price float64) {
	signed := size
	if side == domain.Sell {
		signed = -size
	}
	next := p.position + signed
	switch {
	case math.Abs(next) < 1e-9:
		p.position = 0
		p.entry = 0
	case p.position == 0 || (p.position > 0) == (next > 0) && math.Abs(next) > math.Abs(p.position):
		// Opening or adding: blend the entry price by size.
		total := math.Abs(p.position) + size
		p.entry = (p.entry*math.Abs(p.position) + price*size) / total
		p.position = next
	default:
		// Reducing or flipping keeps (or resets) the entry.
		if (p.position > 0) != (next > 0) {
			p.entry = price
		}
		p.position = next
	}
}
