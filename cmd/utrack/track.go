package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/utrack/internal/config"
	"github.com/goodtune/utrack/internal/console"
	"github.com/goodtune/utrack/internal/metrics"
	"github.com/goodtune/utrack/internal/process"
	"github.com/goodtune/utrack/internal/storage"
	"github.com/goodtune/utrack/internal/storage/textlog"
	"github.com/goodtune/utrack/internal/systemd"
	"github.com/goodtune/utrack/internal/title"
	"github.com/goodtune/utrack/internal/usage"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	trackProcess string
	trackRepeat  bool
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Wait for the program and track its sessions",
	Long: `Wait for the configured program to start, then record how long it runs.
Type "help" for the commands accepted on standard input.`,
	Example: `  utrack track
  utrack track --process Blender --repeat
  utrack -c ~/.config/utrack.yaml`,
	RunE: runTrack,
}

func init() {
	addTrackFlags(trackCmd)
	rootCmd.AddCommand(trackCmd)
}

func addTrackFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&trackProcess, "process", "p", "", "Process name to watch (overrides process.name)")
	cmd.Flags().BoolVar(&trackRepeat, "repeat", false, "Keep tracking later sessions after the process exits")
}

func runTrack(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if trackProcess != "" {
		cfg.Process.Name = trackProcess
	}
	if cmd.Flags().Changed("repeat") {
		cfg.Tracking.Repeat = trackRepeat
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("process", cfg.Process.Name).
		Str("log", cfg.Log.Path).
		Msg("Starting utrack")

	store, err := textlog.Open(textlog.Config{
		Path:       cfg.Log.Path,
		Label:      cfg.Log.SessionLabel,
		TimeLayout: cfg.Log.TimeLayout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open usage log: %w", err)
	}

	tracker := usage.NewTracker(store, usage.Config{
		MinSessionDuration: config.ParseDuration(cfg.Tracking.MinSessionDuration, 0),
	}, logger)

	watcher := process.NewWatcher(process.NewSystemTable(), process.Config{
		PollInterval: config.ParseDuration(cfg.Process.PollInterval, process.DefaultPollInterval),
	}, logger)

	// Initialize Metrics Server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Metrics.BindAddress, cfg.Metrics.Port)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		ln, err := systemd.MetricsListener()
		if err != nil {
			logger.Warn().Err(err).Msg("Ignoring systemd socket activation")
		} else if ln != nil {
			metricsServer.SetListener(ln)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start Metrics Server: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	clock := usage.RealClock{}

	loop := &sessionLoop{
		name:    cfg.Process.Name,
		repeat:  cfg.Tracking.Repeat,
		watcher: watcher,
		tracker: tracker,
		clock:   clock,
		out:     out,
		logger:  logger,
	}
	if cfg.Title.Enabled && isTerminal(out) {
		loop.titles = title.New(tracker, clock, out, title.Config{
			Interval: config.ParseDuration(cfg.Title.Interval, title.DefaultInterval),
			Label:    cfg.Process.Name,
		}, logger)
	}

	_, _ = color.New(color.FgCyan).Fprintf(out, "Waiting for %s to start...\n", cfg.Process.Name)
	console.PrintHelp(out)

	// The console runs for the whole process lifetime; stop cancels the run.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	con := console.New(tracker, store, nil, clock, out, logger)
	go func() {
		err := con.Run(runCtx, cmd.InOrStdin())
		switch {
		case errors.Is(err, console.ErrStopRequested):
			logger.Info().Msg("Stop requested")
			cancelRun()
		case err != nil && runCtx.Err() == nil:
			logger.Warn().Err(err).Msg("Console input failed, commands are no longer read")
		}
	}()

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	loop.run(runCtx)

	// A signal ends the session like the stop command does. After stop or a
	// natural exit this is a no-op.
	end := clock.Now()
	rec, err := tracker.Stop(context.Background(), end)
	loop.reportEnd(end, rec, err)

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping Metrics Server")
		}
	}

	logger.Info().Msg("utrack stopped")

	return nil
}

// sessionLoop drives the tracker from watcher events.
type sessionLoop struct {
	name    string
	repeat  bool
	watcher *process.Watcher
	tracker *usage.Tracker
	titles  *title.Updater
	clock   usage.Clock
	out     io.Writer
	logger  zerolog.Logger
}

// run waits for the process, tracks it until it exits and, with repeat,
// starts over. It returns when ctx is cancelled or after the first session
// without repeat.
func (l *sessionLoop) run(ctx context.Context) {
	for {
		notifyStatus(l.logger, fmt.Sprintf("Waiting for %s", l.name))

		h, err := l.watcher.AwaitStart(ctx, l.name)
		if err != nil {
			return
		}

		now := l.clock.Now()
		l.tracker.ProcessStarted(now)
		_, _ = fmt.Fprintf(l.out, "%s started at: %s\n", l.name, now.Format(time.DateTime))
		notifyStatus(l.logger, fmt.Sprintf("Tracking %s (pid %d)", l.name, h.PID))

		if l.titles != nil {
			l.titles.Start(ctx)
		}

		exited := make(chan struct{})
		watch := l.watcher.OnExit(ctx, *h, func() {
			defer close(exited)
			end := l.clock.Now()
			rec, err := l.tracker.ProcessExited(ctx, end)
			l.reportEnd(end, rec, err)
		})

		select {
		case <-exited:
			if !l.repeat {
				return
			}
		case <-ctx.Done():
			if !watch.Cancel() {
				// The exit callback already claimed the watch; let it finish.
				<-exited
			}
			return
		}
	}
}

// reportEnd prints the outcome of a finished session. A nil record with no
// error means there was nothing to finish.
func (l *sessionLoop) reportEnd(end time.Time, rec *storage.Record, err error) {
	if rec == nil && err == nil {
		return
	}

	_, _ = fmt.Fprintf(l.out, "%s exited at: %s\n", l.name, end.Format(time.DateTime))
	if rec != nil {
		_, _ = fmt.Fprintf(l.out, "Total time of usage: %s\n", storage.FormatClock(rec.Duration))
	}
	if err != nil {
		_, _ = color.New(color.FgRed).Fprintf(l.out, "Failed to write the session to the usage log: %v\n", err)
	}
}

func notifyStatus(logger zerolog.Logger, status string) {
	if err := systemd.NotifyStatus(status); err != nil {
		logger.Debug().Err(err).Msg("Failed to send systemd status")
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
