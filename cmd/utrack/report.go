package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/utrack/internal/config"
	"github.com/goodtune/utrack/internal/storage"
	"github.com/goodtune/utrack/internal/storage/textlog"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report [today|total|list]",
	Short: "Print usage aggregates from the log file",
	Long: `Print usage aggregates computed from the usage log without tracking.
With no argument both today's and the all-time total are printed.`,
	Example: `  utrack report
  utrack report today
  utrack -c utrack.yaml report list`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"today", "total", "list"},
	RunE:      runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	store, err := textlog.Open(textlog.Config{
		Path:       cfg.Log.Path,
		Label:      cfg.Log.SessionLabel,
		TimeLayout: cfg.Log.TimeLayout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open usage log: %w", err)
	}

	what := "summary"
	if len(args) == 1 {
		what = args[0]
	}

	return printReport(cmd.Context(), cmd.OutOrStdout(), store, what, time.Now())
}

func printReport(ctx context.Context, out io.Writer, log storage.UsageLog, what string, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}

	switch what {
	case "today", "summary":
		d, err := log.TodayDuration(ctx, now, 0)
		if err != nil {
			return fmt.Errorf("failed to read usage log: %w", err)
		}
		_, _ = fmt.Fprintf(out, "Today's time: %s\n", storage.FormatClock(d))
		if what == "today" {
			return nil
		}
		fallthrough

	case "total":
		d, err := log.TotalDuration(ctx, 0)
		if err != nil {
			return fmt.Errorf("failed to read usage log: %w", err)
		}
		_, _ = fmt.Fprintf(out, "Total time from the log file: %s\n", storage.FormatClock(d))
		return nil

	case "list":
		cyan := color.New(color.FgCyan, color.Bold)
		_, _ = cyan.Fprintf(out, "%-21s %-21s %s\n", "STARTED", "ENDED", "DURATION")
		count := 0
		err := log.Scan(ctx, func(e storage.Entry) error {
			count++
			_, err := fmt.Fprintf(out, "%-21s %-21s %s\n", e.StartText, e.EndText, storage.FormatClock(e.Duration))
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to read usage log: %w", err)
		}
		_, _ = fmt.Fprintf(out, "%d session(s) in %s\n", count, log.Location())
		return nil

	default:
		return fmt.Errorf("unknown report %q (want today, total or list)", what)
	}
}
