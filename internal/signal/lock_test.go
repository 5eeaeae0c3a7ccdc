package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"signalTrader/internal/domain"
)

func TestLockConfirmation(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	threshold := 5 * time.Second

	tests := []struct {
		name    string
		samples []struct {
			dir    domain.Direction
			offset time.Duration
		}
		wantLocked  domain.Direction
		wantChanges int
	}{
		{
			name: "direction below threshold does not lock",
			samples: []struct {
				dir    domain.Direction
				offset time.Duration
			}{
				{domain.Buy, 0},
				{domain.Buy, 4*time.Second + 999*time.Millisecond},
			},
			wantLocked:  domain.None,
			wantChanges: 0,
		},
		{
			name: "direction at exactly the threshold locks",
			samples: []struct {
				dir    domain.Direction
				offset time.Duration
			}{
				{domain.Buy, 0},
				{domain.Buy, 5 * time.Second},
			},
			wantLocked:  domain.Buy,
			wantChanges: 1,
		},
		{
			name: "sustained run reports exactly one change",
			samples: []struct {
				dir    domain.Direction
				offset time.Duration
			}{
				{domain.Buy, 0},
				{domain.Buy, 5 * time.Second},
				{domain.Buy, 10 * time.Second},
				{domain.Buy, 20 * time.Second},
			},
			wantLocked:  domain.Buy,
			wantChanges: 1,
		},
		{
			name: "interruption discards pending progress",
			samples: []struct {
				dir    domain.Direction
				offset time.Duration
			}{
				{domain.Buy, 0},
				{domain.Sell, 3 * time.Second},
				{domain.Buy, 4 * time.Second},
				{domain.Buy, 8 * time.Second}, // only 4s since restart
			},
			wantLocked:  domain.None,
			wantChanges: 0,
		},
		{
			name: "signal loss interrupts pending but never unlocks",
			samples: []struct {
				dir    domain.Direction
				offset time.Duration
			}{
				{domain.Buy, 0},
				{domain.Buy, 5 * time.Second},
				{domain.None, 6 * time.Second},
				{domain.None, 60 * time.Second},
				{domain.Sell, 61 * time.Second},
				{domain.Sell, 63 * time.Second}, // 2s of Sell, below threshold
			},
			wantLocked:  domain.Buy,
			wantChanges: 1,
		},
		{
			name: "opposite direction earns its own confirmation",
			samples: []struct {
				dir    domain.Direction
				offset time.Duration
			}{
				{domain.Buy, 0},
				{domain.Buy, 5 * time.Second},
				{domain.Sell, 10 * time.Second},
				{domain.Sell, 15 * time.Second},
			},
			wantLocked:  domain.Sell,
			wantChanges: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock := NewLock(LockConfig{ConfirmationThreshold: threshold})
			changes := 0
			for _, s := range tt.samples {
				if lock.Observe(s.dir, base.Add(s.offset)) {
					changes++
				}
			}
			assert.Equal(t, tt.wantLocked, lock.Direction())
			assert.Equal(t, tt.wantChanges, changes)
		})
	}
}

func TestLockImmediateMode(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lock := NewLock(LockConfig{ConfirmationThreshold: time.Hour, Immediate: true})

	assert.True(t, lock.Observe(domain.Buy, base), "pre-confirmed source should lock on first sample")
	assert.Equal(t, domain.Buy, lock.Direction())

	// Same direction again is not a change.
	assert.False(t, lock.Observe(domain.Buy, base.Add(time.Second)))

	// Reversal locks on the very next sample regardless of the threshold.
	assert.True(t, lock.Observe(domain.Sell, base.Add(2*time.Second)))
	assert.Equal(t, domain.Sell, lock.Direction())

	// Signal loss still never unlocks.
	assert.False(t, lock.Observe(domain.None, base.Add(3*time.Second)))
	assert.Equal(t, domain.Sell, lock.Direction())
}

func TestLockReobserveLockedDirectionClearsPending(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lock := NewLock(LockConfig{ConfirmationThreshold: 5 * time.Second})

	lock.Observe(domain.Buy, base)
	lock.Observe(domain.Buy, base.Add(5*time.Second)) // locked Buy

	// Start a Sell candidate, then fall back to the locked direction.
	lock.Observe(domain.Sell, base.Add(10*time.Second))
	lock.Observe(domain.Buy, base.Add(12*time.Second))

	// A fresh Sell run must start its clock over.
	assert.False(t, lock.Observe(domain.Sell, base.Add(13*time.Second)))
	assert.False(t, lock.Observe(domain.Sell, base.Add(17*time.Second)))
	assert.Equal(t, domain.Buy, lock.Direction())
	assert.True(t, lock.Observe(domain.Sell, base.Add(18*time.Second)))
	assert.Equal(t, domain.Sell, lock.Direction())
}

func TestLockSnapshotRoundTrip(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	lock := NewLock(LockConfig{ConfirmationThreshold: 5 * time.Second})
	lock.Observe(domain.Buy, base)
	lock.Observe(domain.Buy, base.Add(5*time.Second))
	lock.Observe(domain.Sell, base.Add(10*time.Second))

	snap := lock.Snapshot()
	restored := NewLock(LockConfig{ConfirmationThreshold: 5 * time.Second})
	restored.Restore(snap)

	assert.Equal(t, domain.Buy, restored.Direction())
	// The pending Sell candidate survives the restart and completes on time.
	assert.True(t, restored.Observe(domain.Sell, base.Add(15*time.Second)))
	assert.Equal(t, domain.Sell, restored.Direction())
}
