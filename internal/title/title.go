// Package title keeps the terminal title showing the elapsed time of the
// running session.
package title

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goodtune/utrack/internal/storage"
	"github.com/goodtune/utrack/internal/usage"
	"github.com/rs/zerolog"
)

// DefaultInterval is the refresh cadence.
const DefaultInterval = time.Second

// Source reports the session being displayed.
type Source interface {
	Active() (usage.Session, bool)
	CurrentDuration(now time.Time) time.Duration
}

// Config holds title updater configuration
type Config struct {
	Interval time.Duration
	Label    string
}

// Updater renders the session duration into the terminal title about once a
// second. It runs at most once per process: after the session it was started
// for ends, Start does nothing.
type Updater struct {
	source   Source
	clock    usage.Clock
	out      io.Writer
	interval time.Duration
	label    string
	logger   zerolog.Logger

	once sync.Once
	done chan struct{}
}

// New creates an updater writing escape sequences to out.
func New(source Source, clock usage.Clock, out io.Writer, config Config, logger zerolog.Logger) *Updater {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if clock == nil {
		clock = usage.RealClock{}
	}

	return &Updater{
		source:   source,
		clock:    clock,
		out:      out,
		interval: config.Interval,
		label:    config.Label,
		logger:   logger.With().Str("component", "title").Logger(),
		done:     make(chan struct{}),
	}
}

// Start launches the refresh loop. It reports false when the loop has already
// been started once in this process.
func (u *Updater) Start(ctx context.Context) bool {
	started := false
	u.once.Do(func() {
		started = true
		go u.run(ctx)
	})
	return started
}

// Done is closed once the refresh loop has ended.
func (u *Updater) Done() <-chan struct{} {
	return u.done
}

func (u *Updater) run(ctx context.Context) {
	defer close(u.done)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	u.logger.Debug().Dur("interval", u.interval).Msg("Title updates started")

	for {
		if _, ok := u.source.Active(); !ok {
			u.logger.Debug().Msg("Session ended, title updates stopped")
			return
		}
		u.render(u.source.CurrentDuration(u.clock.Now()))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (u *Updater) render(d time.Duration) {
	if _, err := fmt.Fprintf(u.out, "\x1b]0;%s\x07", Text(u.label, d)); err != nil {
		u.logger.Debug().Err(err).Msg("Failed to write title")
	}
}

// Text is the title shown for a session that has run for d.
func Text(label string, d time.Duration) string {
	if label == "" {
		return storage.FormatClock(d)
	}
	return label + " " + storage.FormatClock(d)
}
