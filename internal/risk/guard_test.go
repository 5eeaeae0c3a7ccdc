package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalTrader/internal/domain"
)

func openPosition(side domain.Side, entry, size float64, entryTime time.Time) *domain.Position {
	return &domain.Position{
		Symbol:     "ETHUSDT",
		State:      domain.StateOpen,
		Side:       side,
		EntryPrice: entry,
		EntryTime:  entryTime,
		Size:       size,
	}
}

func TestNewGuardValidation(t *testing.T) {
	_, err := NewGuard(Config{MaxLossLimit: 0})
	assert.Error(t, err, "max loss limit must be positive")

	_, err = NewGuard(Config{MaxLossLimit: 100, MaxTradeCountEnabled: true, MaxTradeCount: 0})
	assert.Error(t, err, "trade count must be positive when enabled")

	_, err = NewGuard(Config{MaxLossLimit: 100, TakeProfitEnabled: true, TakeProfitThreshold: 0})
	assert.Error(t, err, "take profit threshold must be positive when enabled")
}

func TestGuardMaxLoss(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGuard(Config{MaxLossLimit: 100})
	require.NoError(t, err)

	pos := openPosition(domain.Long, 2500, 1, now)

	// Unrealized loss of 99.99 stays under the cap.
	reason, force := g.CheckOpenPosition(pos, 2400.01)
	assert.False(t, force)
	assert.Empty(t, reason)

	// Crossing the cap trips the guard and forces a close.
	reason, force = g.CheckOpenPosition(pos, 2400)
	assert.True(t, force)
	assert.Equal(t, domain.CloseReasonMaxLoss, reason)
	assert.True(t, g.Tripped())

	// The trip is monotonic: recovering prices do not clear it.
	ok, _ := g.CanOpen(now)
	assert.False(t, ok)
	g.CheckOpenPosition(pos, 2600)
	ok, _ = g.CanOpen(now)
	assert.False(t, ok)

	// Only an explicit reset clears it.
	g.Reset()
	ok, _ = g.CanOpen(now)
	assert.True(t, ok)
}

func TestGuardMaxLossCombinesRealizedAndUnrealized(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGuard(Config{MaxLossLimit: 100})
	require.NoError(t, err)

	// Realized loss of 60 leaves 40 of headroom.
	g.RecordTrade(-60, domain.CloseReasonSignalReversed, time.Time{})
	assert.False(t, g.Tripped())

	pos := openPosition(domain.Short, 2500, 1, now)
	// Short losing 40 when price rises to 2540.
	reason, force := g.CheckOpenPosition(pos, 2540)
	assert.True(t, force)
	assert.Equal(t, domain.CloseReasonMaxLoss, reason)
}

func TestGuardRealizedLossTripsOnRecord(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGuard(Config{MaxLossLimit: 100})
	require.NoError(t, err)

	g.RecordTrade(-100, domain.CloseReasonMaxLoss, time.Time{})
	assert.True(t, g.Tripped())
	ok, why := g.CanOpen(now)
	assert.False(t, ok)
	assert.Contains(t, why, "max loss")
}

func TestGuardTradeCount(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGuard(Config{MaxLossLimit: 1000, MaxTradeCountEnabled: true, MaxTradeCount: 2})
	require.NoError(t, err)

	g.RecordTrade(5, domain.CloseReasonSignalReversed, time.Time{})
	ok, _ := g.CanOpen(now)
	assert.True(t, ok)

	g.RecordTrade(5, domain.CloseReasonSignalReversed, time.Time{})
	ok, why := g.CanOpen(now)
	assert.False(t, ok)
	assert.Contains(t, why, "trade count")

	// A position still open when the count trips is force-closed.
	pos := openPosition(domain.Long, 2500, 1, now)
	reason, force := g.CheckOpenPosition(pos, 2510)
	assert.True(t, force)
	assert.Equal(t, domain.CloseReasonTradeLimit, reason)
}

func TestGuardTakeProfitNetsExitCost(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGuard(Config{
		MaxLossLimit:        1000,
		TakeProfitEnabled:   true,
		TakeProfitThreshold: 50,
		FeePercent:          0.04,
	})
	require.NoError(t, err)

	pos := openPosition(domain.Long, 2500, 1, now)

	// Gross profit of 50 fails the threshold once the exit fee is netted out:
	// 50 - 2550*1*0.0004 = 48.98.
	reason, force := g.CheckOpenPosition(pos, 2550)
	assert.False(t, force)
	assert.Empty(t, reason)

	// 2552: 52 - 2552*0.0004 = 50.98 >= 50.
	reason, force = g.CheckOpenPosition(pos, 2552)
	assert.True(t, force)
	assert.Equal(t, domain.CloseReasonTakeProfit, reason)

	// Take profit does not trip anything; opens remain allowed.
	ok, _ := g.CanOpen(now)
	assert.True(t, ok)
}

func TestGuardReentryGateAfterTakeProfit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	barEnd := now.Add(time.Minute)
	g, err := NewGuard(Config{
		MaxLossLimit:          1000,
		TakeProfitEnabled:     true,
		TakeProfitThreshold:   50,
		TakeProfitWaitNextBar: true,
	})
	require.NoError(t, err)

	g.RecordTrade(60, domain.CloseReasonTakeProfit, barEnd)

	ok, why := g.CanOpen(now.Add(30 * time.Second))
	assert.False(t, ok)
	assert.Contains(t, why, "next bar")

	// The gate clears itself once the bar boundary passes.
	ok, _ = g.CanOpen(barEnd)
	assert.True(t, ok)
	ok, _ = g.CanOpen(now.Add(30 * time.Second))
	assert.True(t, ok, "gate is consumed once passed")
}

func TestGuardReentryGateOnlyForTakeProfit(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGuard(Config{
		MaxLossLimit:          1000,
		TakeProfitEnabled:     true,
		TakeProfitThreshold:   50,
		TakeProfitWaitNextBar: true,
	})
	require.NoError(t, err)

	g.RecordTrade(10, domain.CloseReasonSignalReversed, now.Add(time.Minute))
	ok, _ := g.CanOpen(now)
	assert.True(t, ok, "signal-reversal closes never arm the gate")
}

func TestGuardMinAcceptableExit(t *testing.T) {
	entryTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGuard(Config{
		MaxLossLimit:          1000,
		MinProfitEnabled:      true,
		MinProfitPercent:      0.2,
		FundingPercentPerHour: 0.01,
	})
	require.NoError(t, err)

	long := openPosition(domain.Long, 2000, 1, entryTime)
	short := openPosition(domain.Short, 2000, 1, entryTime)

	// At entry time the floor is entry * (1 + 0.2%).
	floor, active := g.MinAcceptableExit(long, entryTime)
	require.True(t, active)
	assert.InDelta(t, 2004.0, floor, 1e-9)

	// After 5 hours the funding accrual raises the floor: 0.2% + 5*0.01%.
	floor, active = g.MinAcceptableExit(long, entryTime.Add(5*time.Hour))
	require.True(t, active)
	assert.InDelta(t, 2000*(1+0.0025), floor, 1e-9)

	// Shorts get a ceiling below entry instead.
	ceiling, active := g.MinAcceptableExit(short, entryTime.Add(5*time.Hour))
	require.True(t, active)
	assert.InDelta(t, 2000*(1-0.0025), ceiling, 1e-9)
}

func TestGuardMinAcceptableExitDisabled(t *testing.T) {
	entryTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g, err := NewGuard(Config{MaxLossLimit: 1000})
	require.NoError(t, err)

	_, active := g.MinAcceptableExit(openPosition(domain.Long, 2000, 1, entryTime), entryTime)
	assert.False(t, active)
}

func TestGuardSnapshotRoundTrip(t *testing.T) {
	g, err := NewGuard(Config{MaxLossLimit: 100, MaxTradeCountEnabled: true, MaxTradeCount: 5})
	require.NoError(t, err)
	g.RecordTrade(-30, domain.CloseReasonSignalReversed, time.Time{})
	g.RecordTrade(12, domain.CloseReasonSignalReversed, time.Time{})

	snap := g.Snapshot()
	restored, err := NewGuard(Config{MaxLossLimit: 100, MaxTradeCountEnabled: true, MaxTradeCount: 5})
	require.NoError(t, err)
	restored.Restore(snap)

	assert.InDelta(t, -18.0, restored.CumulativePnl(), 1e-9)
	assert.Equal(t, snap, restored.Snapshot())
}
