// Package process detects when a named process starts and exits by polling
// the OS process table.
package process

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goodtune/utrack/internal/metrics"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often the process table is checked.
const DefaultPollInterval = time.Second

// Config holds watcher configuration
type Config struct {
	PollInterval time.Duration
}

// Watcher polls a process table for a target process.
type Watcher struct {
	table    Table
	interval time.Duration
	logger   zerolog.Logger
}

// NewWatcher creates a watcher over table.
func NewWatcher(table Table, config Config, logger zerolog.Logger) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &Watcher{
		table:    table,
		interval: config.PollInterval,
		logger:   logger.With().Str("component", "process-watcher").Logger(),
	}
}

// NormalizeName folds a process name for comparison: case is ignored and a
// trailing ".exe" is dropped.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimSuffix(name, ".exe")
}

// FindTarget returns the first live process called name, or nil when none is
// running. Listed entries that Alive rejects, such as unreaped zombies, are
// passed over.
func (w *Watcher) FindTarget(ctx context.Context, name string) (*Handle, error) {
	procs, err := w.table.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	want := NormalizeName(name)
	for _, p := range procs {
		if NormalizeName(p.Name) != want {
			continue
		}
		alive, err := w.table.Alive(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("check process %d: %w", p.PID, err)
		}
		if alive {
			h := p
			return &h, nil
		}
	}

	return nil, nil
}

// AwaitStart blocks until a process called name is running. Enumeration
// failures are logged and retried on the next tick. Only ctx ends the wait.
func (w *Watcher) AwaitStart(ctx context.Context, name string) (*Handle, error) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		h, err := w.FindTarget(ctx, name)
		switch {
		case err != nil && ctx.Err() == nil:
			metrics.ProcessScanErrors.Inc()
			w.logger.Warn().Err(err).Str("process", name).Msg("Process enumeration failed, retrying")
		case h != nil:
			w.logger.Debug().
				Str("process", h.Name).
				Int32("pid", h.PID).
				Msg("Target process found")
			return h, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ExitWatch is a pending exit notification created by OnExit.
type ExitWatch struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	finished bool
}

// Cancel stops watching. It reports true when the callback had not been
// invoked; once Cancel returns the callback will not start.
func (e *ExitWatch) Cancel() bool {
	e.mu.Lock()
	pending := !e.finished
	e.finished = true
	e.mu.Unlock()

	e.cancel()
	return pending
}

// Done is closed once the watch has ended, by exit or by Cancel.
func (e *ExitWatch) Done() <-chan struct{} {
	return e.done
}

// claim marks the watch finished. Only the first caller gets true.
func (e *ExitWatch) claim() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished {
		return false
	}
	e.finished = true
	return true
}

// OnExit invokes fn once, from a background goroutine, after the process
// behind h has terminated.
func (w *Watcher) OnExit(ctx context.Context, h Handle, fn func()) *ExitWatch {
	ctx, cancel := context.WithCancel(ctx)
	ew := &ExitWatch{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(ew.done)
		defer cancel()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			alive, err := w.table.Alive(ctx, h)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.ProcessScanErrors.Inc()
				w.logger.Warn().Err(err).Int32("pid", h.PID).Msg("Process liveness check failed, retrying")
				continue
			}
			if alive {
				continue
			}

			if !ew.claim() {
				return
			}
			w.logger.Debug().
				Str("process", h.Name).
				Int32("pid", h.PID).
				Msg("Target process exited")
			fn()
			return
		}
	}()

	return ew
}
