package domain

import "time"

// LockSnapshot is the persisted state of the signal lock.
type LockSnapshot struct {
	Locked       Direction `json:"locked"`
	Pending      Direction `json:"pending"`
	PendingSince time.Time `json:"pendingSince"`
}

// GuardSnapshot is the persisted state of the risk guard. The tripped flags
// are monotonic and survive restarts until an explicit reset.
type GuardSnapshot struct {
	CumulativePnl   float64   `json:"cumulativePnl"`
	LossTripped     bool      `json:"lossTripped"`
	CompletedTrades int       `json:"completedTrades"`
	CountTripped    bool      `json:"countTripped"`
	ReentryBarEnd   time.Time `json:"reentryBarEnd"` // zero when no re-entry gate is pending
}

// Snapshot is the minimal state persisted across process restarts. On startup
// with IsRunning set, the engine reconciles Position against the exchange
// before resuming the tick loop.
type Snapshot struct {
	IsRunning    bool          `json:"isRunning"`
	Position     Position      `json:"position"`
	Lock         LockSnapshot  `json:"lock"`
	Guard        GuardSnapshot `json:"guard"`
	SessionStart time.Time     `json:"sessionStart"`
	SavedAt      time.Time     `json:"savedAt"`
}
