package signal

import (
	"time"

	"signalTrader/internal/domain"
)

// Lock debounces the sampled signal. A candidate direction must persist
// uninterrupted for the confirmation threshold before it locks; the lock then
// holds until the opposite direction earns its own confirmation. Signal loss
// (None) never clears an established lock.
type Lock struct {
	threshold time.Duration
	immediate bool // source is externally pre-confirmed

	locked       domain.Direction
	pending      domain.Direction
	pendingSince time.Time
}

// LockConfig configures the debounce behaviour.
type LockConfig struct {
	ConfirmationThreshold time.Duration
	// Immediate accepts direction changes without waiting out the threshold,
	// for sources that already apply their own debounce.
	Immediate bool
}

// NewLock creates an unlocked signal lock.
func NewLock(cfg LockConfig) *Lock {
	return &Lock{
		threshold: cfg.ConfirmationThreshold,
		immediate: cfg.Immediate,
		locked:    domain.None,
		pending:   domain.None,
	}
}

// Direction returns the currently locked direction, or None while unlocked.
func (l *Lock) Direction() domain.Direction {
	return l.locked
}

// Observe feeds one sampled direction into the debounce state machine and
// reports whether the lock changed on this tick. The lock changes at most
// once per maximal run of a sustained direction, and only after that
// direction has been sampled continuously for at least the threshold. A
// direction sustained for exactly the threshold confirms; any interruption
// discards the pending progress.
func (l *Lock) Observe(dir domain.Direction, now time.Time) bool {
	if dir == domain.None {
		// Loss of signal interrupts any pending candidate but never unlocks.
		l.pending = domain.None
		return false
	}
	if dir == l.locked {
		l.pending = domain.None
		return false
	}

	if l.immediate {
		l.locked = dir
		l.pending = domain.None
		return true
	}

	if dir != l.pending {
		l.pending = dir
		l.pendingSince = now
	}
	if now.Sub(l.pendingSince) >= l.threshold {
		l.locked = dir
		l.pending = domain.None
		return true
	}
	return false
}

// Snapshot exports the lock state for persistence.
func (l *Lock) Snapshot() domain.LockSnapshot {
	return domain.LockSnapshot{
		Locked:       l.locked,
		Pending:      l.pending,
		PendingSince: l.pendingSince,
	}
}

// Restore replaces the lock state from a persisted snapshot.
func (l *Lock) Restore(snap domain.LockSnapshot) {
	l.locked = snap.Locked
	l.pending = snap.Pending
	l.pendingSince = snap.PendingSince
	if l.locked == "" {
		l.locked = domain.None
	}
	if l.pending == "" {
		l.pending = domain.None
	}
}
