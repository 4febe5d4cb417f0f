package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/utrack/internal/metrics"
	"github.com/goodtune/utrack/internal/storage"
	"github.com/rs/zerolog"
)

// Recorder persists finished sessions.
type Recorder interface {
	Append(ctx context.Context, rec storage.Record) error
}

// Config holds tracker configuration
type Config struct {
	// MinSessionDuration drops sessions shorter than this instead of
	// recording them. Zero records every session.
	MinSessionDuration time.Duration
}

// Tracker holds the state of the current session: Idle (no session) or
// Active. Every transition out of Active happens at most once per session,
// however many exit notifications arrive.
type Tracker struct {
	recorder           Recorder
	session            *Session
	minSessionDuration time.Duration
	logger             zerolog.Logger
	mu                 sync.RWMutex
}

// NewTracker creates a new session tracker
func NewTracker(recorder Recorder, config Config, logger zerolog.Logger) *Tracker {
	if config.MinSessionDuration < 0 {
		config.MinSessionDuration = 0
	}

	return &Tracker{
		recorder:           recorder,
		minSessionDuration: config.MinSessionDuration,
		logger:             logger.With().Str("component", "session-tracker").Logger(),
	}
}

// ProcessStarted opens a session at now. It returns false, and changes
// nothing, when a session is already active.
func (t *Tracker) ProcessStarted(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		t.logger.Debug().
			Time("started_at", t.session.StartedAt).
			Msg("Session already active, ignoring start")
		return false
	}

	t.session = &Session{StartedAt: now}
	metrics.SessionActive.Set(1)

	t.logger.Info().
		Time("started_at", now).
		Msg("Started usage session")

	return true
}

// Active returns a copy of the current session, if any.
func (t *Tracker) Active() (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.session == nil {
		return Session{}, false
	}
	return *t.session, true
}

// CurrentDuration returns the elapsed time of the active session, or zero
// when idle.
func (t *Tracker) CurrentDuration(now time.Time) time.Duration {
	session, ok := t.Active()
	if !ok {
		return 0
	}
	return session.Elapsed(now)
}

// ProcessExited closes the active session because the process terminated.
// It returns a nil record when there was no session to close.
func (t *Tracker) ProcessExited(ctx context.Context, now time.Time) (*storage.Record, error) {
	return t.finish(ctx, now, ReasonExited)
}

// Stop closes the active session on user request. A later ProcessExited for
// the same session is a no-op.
func (t *Tracker) Stop(ctx context.Context, now time.Time) (*storage.Record, error) {
	return t.finish(ctx, now, ReasonStopped)
}

// finish moves the tracker to Idle and records the session. The transition
// is made under the lock so that only one caller ever reaches the recorder.
func (t *Tracker) finish(ctx context.Context, now time.Time, reason EndReason) (*storage.Record, error) {
	t.mu.Lock()
	session := t.session
	t.session = nil
	t.mu.Unlock()

	if session == nil {
		t.logger.Debug().
			Str("reason", string(reason)).
			Msg("No active session, nothing to finish")
		return nil, nil
	}

	metrics.SessionActive.Set(0)
	rec := storage.NewRecord(session.StartedAt, now)

	if rec.Duration < t.minSessionDuration {
		t.logger.Debug().
			Dur("duration", rec.Duration).
			Dur("min_duration", t.minSessionDuration).
			Msg("Session too short, not counting")
		return nil, nil
	}

	// The record is written even when shutdown has cancelled ctx.
	if err := t.recorder.Append(context.WithoutCancel(ctx), rec); err != nil {
		metrics.LogAppendErrors.Inc()
		t.logger.Warn().
			Err(err).
			Time("started_at", rec.Start).
			Dur("duration", rec.Duration).
			Msg("Failed to record session")
		return &rec, fmt.Errorf("record session: %w", err)
	}

	metrics.SessionsTotal.WithLabelValues(string(reason)).Inc()
	metrics.UsageSecondsTotal.Add(rec.Duration.Seconds())

	t.logger.Info().
		Str("reason", string(reason)).
		Time("started_at", rec.Start).
		Time("ended_at", rec.End).
		Dur("duration", rec.Duration).
		Msg("Finished usage session")

	return &rec, nil
}
