package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTrader/internal/domain"
	"signalTrader/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (noopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// scriptedAttempt scripts the lifecycle of one placed order: the status
// sequence while open (last entry repeats), the cancel response, and the
// status sequence after the cancel (last entry repeats).
type scriptedAttempt struct {
	placeErr   error
	states     []ports.OrderState
	cancelRes  *ports.CancelResult
	cancelErr  error
	postCancel []ports.OrderState
}

type orderRun struct {
	script    *scriptedAttempt
	polls     int
	cancelled bool
	postPolls int
}

// mockExchange consumes scripted attempts in placement order.
type mockExchange struct {
	attempts []*scriptedAttempt
	placed   []struct {
		side  domain.Direction
		size  float64
		price float64
	}
	orders map[string]*orderRun
}

func newMockExchange(attempts ...*scriptedAttempt) *mockExchange {
	return &mockExchange{attempts: attempts, orders: make(map[string]*orderRun)}
}

func (m *mockExchange) SetServerTime(ctx context.Context) error { return nil }
func (m *mockExchange) Ping(ctx context.Context) error          { return nil }
func (m *mockExchange) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}
func (m *mockExchange) GetOpenPosition(ctx context.Context, symbol string) (*ports.ExchangePosition, error) {
	return nil, nil
}

func (m *mockExchange) PlaceLimitOrder(ctx context.Context, symbol string, side domain.Direction, size, price float64) (string, error) {
	idx := len(m.placed)
	m.placed = append(m.placed, struct {
		side  domain.Direction
		size  float64
		price float64
	}{side, size, price})
	if idx >= len(m.attempts) {
		return "", fmt.Errorf("unexpected extra order placement %d", idx)
	}
	script := m.attempts[idx]
	if script.placeErr != nil {
		return "", script.placeErr
	}
	id := fmt.Sprintf("ord-%d", idx+1)
	m.orders[id] = &orderRun{script: script}
	return id, nil
}

func (m *mockExchange) GetOrderStatus(ctx context.Context, symbol, orderID string) (*ports.OrderState, error) {
	run, ok := m.orders[orderID]
	if !ok {
		return nil, ports.ErrOrderNotFound
	}
	seq := run.script.states
	idx := &run.polls
	if run.cancelled {
		seq = run.script.postCancel
		idx = &run.postPolls
	}
	if len(seq) == 0 {
		return &ports.OrderState{OrderID: orderID, Status: domain.OrderStatusOpen}, nil
	}
	i := *idx
	if i >= len(seq) {
		i = len(seq) - 1
	}
	*idx++
	state := seq[i]
	state.OrderID = orderID
	return &state, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, orderID string) (*ports.CancelResult, error) {
	run, ok := m.orders[orderID]
	if !ok {
		return &ports.CancelResult{Success: false, Reason: "unknown order"}, nil
	}
	run.cancelled = true
	if run.script.cancelErr != nil {
		return nil, run.script.cancelErr
	}
	if run.script.cancelRes != nil {
		return run.script.cancelRes, nil
	}
	return &ports.CancelResult{Success: true}, nil
}

func newTestExecutor(t *testing.T, ex ports.ExchangeClient) *Executor {
	t.Helper()
	e, err := New(Config{
		Symbol:        "ETHUSDT",
		PriceTickSize: 0.01,
		PollInterval:  time.Millisecond,
		Exchange:      ex,
		Logger:        noopLogger{},
	})
	require.NoError(t, err)
	return e
}

func refPrice(p float64) func(ctx context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) { return p, nil }
}

func TestFillSingleAttempt(t *testing.T) {
	ex := newMockExchange(&scriptedAttempt{
		states: []ports.OrderState{{Status: domain.OrderStatusFilled, FilledSize: 3, AvgFillPrice: 100}},
	})
	e := newTestExecutor(t, ex)

	res, err := e.Fill(context.Background(), Request{
		Side:           domain.Buy,
		TotalSize:      3,
		ReferencePrice: refPrice(100),
		AttemptTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.InDelta(t, 3.0, res.FilledSize, 1e-9)
	assert.InDelta(t, 100.0, res.AvgFillPrice, 1e-9)
	require.Len(t, ex.placed, 1)
	assert.InDelta(t, 3.0, ex.placed[0].size, 1e-9)
}

func TestFillAggregatesAcrossAttempts(t *testing.T) {
	// First attempt never goes terminal, times out partially filled, and the
	// cancel confirms 2 @ 100. The retry fills the remaining 1 @ 101.
	ex := newMockExchange(
		&scriptedAttempt{
			states:     []ports.OrderState{{Status: domain.OrderStatusPartiallyFilled, FilledSize: 2, AvgFillPrice: 100}},
			postCancel: []ports.OrderState{{Status: domain.OrderStatusCancelled, FilledSize: 2, AvgFillPrice: 100}},
		},
		&scriptedAttempt{
			states: []ports.OrderState{{Status: domain.OrderStatusFilled, FilledSize: 1, AvgFillPrice: 101}},
		},
	)
	e := newTestExecutor(t, ex)

	res, err := e.Fill(context.Background(), Request{
		Side:           domain.Buy,
		TotalSize:      3,
		ReferencePrice: refPrice(100),
		AttemptTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.InDelta(t, 3.0, res.FilledSize, 1e-9)
	assert.InDelta(t, (2*100.0+1*101.0)/3.0, res.AvgFillPrice, 1e-9)

	// The retry re-placed only the unfilled remainder.
	require.Len(t, ex.placed, 2)
	assert.InDelta(t, 1.0, ex.placed[1].size, 1e-9)
}

func TestFillFirstAttemptRunsBeforeAbort(t *testing.T) {
	// Abort reports true from the start; the first attempt must still run,
	// and its partial fill must be carried on the aborted result.
	ex := newMockExchange(&scriptedAttempt{
		states:     []ports.OrderState{{Status: domain.OrderStatusPartiallyFilled, FilledSize: 1, AvgFillPrice: 100}},
		postCancel: []ports.OrderState{{Status: domain.OrderStatusCancelled, FilledSize: 1, AvgFillPrice: 100}},
	})
	e := newTestExecutor(t, ex)

	res, err := e.Fill(context.Background(), Request{
		Side:           domain.Buy,
		TotalSize:      2,
		ReferencePrice: refPrice(100),
		AttemptTimeout: 10 * time.Millisecond,
		Abort:          func() bool { return true },
	})
	require.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, 1, res.Attempts)
	assert.InDelta(t, 1.0, res.FilledSize, 1e-9)
	assert.InDelta(t, 100.0, res.AvgFillPrice, 1e-9)
}

func TestFillMaxAttempts(t *testing.T) {
	ex := newMockExchange(&scriptedAttempt{
		postCancel: []ports.OrderState{{Status: domain.OrderStatusCancelled}},
	})
	e := newTestExecutor(t, ex)

	res, err := e.Fill(context.Background(), Request{
		Side:           domain.Sell,
		TotalSize:      1,
		ReferencePrice: refPrice(100),
		AttemptTimeout: 10 * time.Millisecond,
		MaxAttempts:    1,
	})
	require.ErrorIs(t, err, ErrMaxAttempts)
	assert.Equal(t, 1, res.Attempts)
	assert.Zero(t, res.FilledSize)
}

func TestFillCancelLosesRaceToFill(t *testing.T) {
	// The order fills between the timeout and the cancel: the exchange
	// refuses the cancel, and re-polling reveals the full fill.
	ex := newMockExchange(&scriptedAttempt{
		states:     []ports.OrderState{{Status: domain.OrderStatusOpen}},
		cancelRes:  &ports.CancelResult{Success: false, Reason: "order already terminal"},
		postCancel: []ports.OrderState{{Status: domain.OrderStatusFilled, FilledSize: 2, AvgFillPrice: 99.5}},
	})
	e := newTestExecutor(t, ex)

	res, err := e.Fill(context.Background(), Request{
		Side:           domain.Sell,
		TotalSize:      2,
		ReferencePrice: refPrice(99.5),
		AttemptTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.InDelta(t, 2.0, res.FilledSize, 1e-9)
	assert.InDelta(t, 99.5, res.AvgFillPrice, 1e-9)
}

func TestFillRejectedOrderIsFatal(t *testing.T) {
	ex := newMockExchange(&scriptedAttempt{
		states: []ports.OrderState{{Status: domain.OrderStatusFailed}},
	})
	e := newTestExecutor(t, ex)

	res, err := e.Fill(context.Background(), Request{
		Side:           domain.Buy,
		TotalSize:      1,
		ReferencePrice: refPrice(100),
		AttemptTimeout: 100 * time.Millisecond,
	})
	require.ErrorIs(t, err, ports.ErrOrderPlacementFailed)
	assert.Equal(t, 1, res.Attempts)
}

func TestFillFatalPlacementError(t *testing.T) {
	ex := newMockExchange(&scriptedAttempt{placeErr: ports.ErrInsufficientFunds})
	e := newTestExecutor(t, ex)

	_, err := e.Fill(context.Background(), Request{
		Side:           domain.Buy,
		TotalSize:      1,
		ReferencePrice: refPrice(100),
		AttemptTimeout: 100 * time.Millisecond,
	})
	require.ErrorIs(t, err, ports.ErrInsufficientFunds)
	require.Len(t, ex.placed, 1)
}

func TestFillRetryablePlacementError(t *testing.T) {
	ex := newMockExchange(
		&scriptedAttempt{placeErr: ports.ErrRateLimited},
		&scriptedAttempt{
			states: []ports.OrderState{{Status: domain.OrderStatusFilled, FilledSize: 1, AvgFillPrice: 100}},
		},
	)
	e := newTestExecutor(t, ex)

	res, err := e.Fill(context.Background(), Request{
		Side:           domain.Buy,
		TotalSize:      1,
		ReferencePrice: refPrice(100),
		AttemptTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	// The failed placement does not count as an attempt.
	assert.Equal(t, 1, res.Attempts)
	assert.InDelta(t, 1.0, res.FilledSize, 1e-9)
}

func TestFillValidation(t *testing.T) {
	e := newTestExecutor(t, newMockExchange())

	_, err := e.Fill(context.Background(), Request{Side: domain.Buy, TotalSize: 0, ReferencePrice: refPrice(100)})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = e.Fill(context.Background(), Request{Side: domain.None, TotalSize: 1, ReferencePrice: refPrice(100)})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		side  domain.Direction
		tick  float64
		want  float64
	}{
		{"buy rounds down", 100.017, domain.Buy, 0.01, 100.01},
		{"sell rounds up", 100.011, domain.Sell, 0.01, 100.02},
		{"buy on the grid stays", 100.01, domain.Buy, 0.01, 100.01},
		{"sell on the grid stays", 100.01, domain.Sell, 0.01, 100.01},
		{"coarse grid buy", 2503.9, domain.Buy, 0.5, 2503.5},
		{"coarse grid sell", 2503.1, domain.Sell, 0.5, 2503.5},
		{"zero tick passes through", 100.017, domain.Buy, 0, 100.017},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundToTick(tt.price, tt.side, tt.tick), 1e-9)
		})
	}
}
