package usage

import (
	"time"
)

// Session is the single in-progress session of the watched process.
type Session struct {
	StartedAt time.Time
}

// Elapsed returns how long the session has been running at now.
func (s Session) Elapsed(now time.Time) time.Duration {
	if now.Before(s.StartedAt) {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// EndReason records why a session finished.
type EndReason string

const (
	// ReasonExited means the watched process terminated.
	ReasonExited EndReason = "exited"

	// ReasonStopped means the user stopped tracking.
	ReasonStopped EndReason = "stopped"
)
