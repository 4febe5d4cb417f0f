// Package console reads line commands from the user and answers them from the
// session tracker and the usage log.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/utrack/internal/storage"
	"github.com/goodtune/utrack/internal/usage"
	"github.com/rs/zerolog"
	"github.com/skratchdot/open-golang/open"
)

// ErrStopRequested is returned by Run after the stop command.
var ErrStopRequested = errors.New("console: stop requested")

// Tracker is the part of the session tracker the console drives.
type Tracker interface {
	Active() (usage.Session, bool)
	CurrentDuration(now time.Time) time.Duration
	Stop(ctx context.Context, now time.Time) (*storage.Record, error)
}

// Opener opens a path in the OS file browser.
type Opener func(path string) error

// DefaultOpener uses the platform's "open" mechanism (xdg-open, open, start).
var DefaultOpener Opener = open.Run

// Console dispatches commands.
type Console struct {
	tracker Tracker
	log     storage.UsageLog
	open    Opener
	clock   usage.Clock
	out     io.Writer
	logger  zerolog.Logger

	warn *color.Color
}

// New creates a console writing answers to out.
func New(tracker Tracker, log storage.UsageLog, opener Opener, clock usage.Clock, out io.Writer, logger zerolog.Logger) *Console {
	if opener == nil {
		opener = DefaultOpener
	}
	if clock == nil {
		clock = usage.RealClock{}
	}

	return &Console{
		tracker: tracker,
		log:     log,
		open:    opener,
		clock:   clock,
		out:     out,
		logger:  logger.With().Str("component", "console").Logger(),
		warn:    color.New(color.FgRed),
	}
}

// Run reads commands from in until it is exhausted, ctx is cancelled or the
// stop command is given. End of input returns nil; stop returns
// ErrStopRequested.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					return fmt.Errorf("read commands: %w", err)
				}
				return nil
			}
			if err := c.Execute(ctx, line); err != nil {
				return err
			}
		}
	}
}

// Execute runs one command line. Only stop returns an error.
func (c *Console) Execute(ctx context.Context, line string) error {
	command := strings.ToLower(strings.TrimSpace(line))
	now := c.clock.Now()

	c.logger.Debug().Str("command", command).Msg("Console command")

	switch command {
	case "":
		return nil

	case "session", "time":
		if _, ok := c.tracker.Active(); ok {
			c.printf("Current session time: %s\n", storage.FormatClock(c.tracker.CurrentDuration(now)))
		}

	case "today":
		var live time.Duration
		if session, ok := c.tracker.Active(); ok && sameDay(session.StartedAt, now) {
			live = session.Elapsed(now)
		}
		d, err := c.log.TodayDuration(ctx, now, live)
		if err != nil {
			c.warnf("Could not read the usage log: %v\n", err)
			return nil
		}
		c.printf("Today's time: %s\n", storage.FormatClock(d))

	case "total":
		d, err := c.log.TotalDuration(ctx, c.tracker.CurrentDuration(now))
		if err != nil {
			c.warnf("Could not read the usage log: %v\n", err)
			return nil
		}
		c.printf("Total time from the log file: %s\n", storage.FormatClock(d))

	case "open":
		dir := logDir(c.log.Location())
		if err := c.open(dir); err != nil {
			c.warnf("Could not open %s: %v\n", dir, err)
		}

	case "stop":
		rec, err := c.tracker.Stop(ctx, now)
		switch {
		case err != nil:
			c.warnf("Failed to write the session to the usage log: %v\n", err)
		case rec != nil:
			c.printf("Total time of usage: %s\n", storage.FormatClock(rec.Duration))
		}
		c.printf("Tracking stopped.\n")
		return ErrStopRequested

	case "help":
		PrintHelp(c.out)

	default:
		c.warnf("Invalid command.\n")
	}

	return nil
}

// PrintHelp writes the command list.
func PrintHelp(w io.Writer) {
	bold := color.New(color.Bold)
	_, _ = fmt.Fprintln(w, "Commands available:")
	for _, cmd := range [][2]string{
		{"session", "Shows the time of the current session."},
		{"today", "Shows the time used today, including the current session."},
		{"total", "Shows the total time from the log file, including the current session."},
		{"open", "Opens the log file's folder."},
		{"stop", "Stops tracking and exits the application."},
	} {
		_, _ = bold.Fprintf(w, "  '%s'", cmd[0])
		_, _ = fmt.Fprintf(w, ": %s\n", cmd[1])
	}
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) warnf(format string, args ...any) {
	_, _ = c.warn.Fprintf(c.out, format, args...)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.In(b.Location()).Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func logDir(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return filepath.Dir(path)
}
