// Package textlog implements storage.UsageLog on top of a plain text file.
//
// Each session is written as a fixed three line block:
//
//	Unity session started at 2024-01-01 09:00:00 and ended at 2024-01-01 09:30:00
//	Total time of usage: 00:30:00
//	-------------------------------------------------
//
// The hour field counts total hours and is not wrapped at 24, so a session
// that ran for a day and a half reads "36:00:00". The file is only ever
// appended to. Aggregates are answered by a full scan.
package textlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/goodtune/utrack/internal/metrics"
	"github.com/goodtune/utrack/internal/storage"
	"github.com/rs/zerolog"
)

const (
	// DefaultLabel is the word that precedes "session" on a start line.
	DefaultLabel = "Unity"

	// DefaultTimeLayout renders session timestamps.
	DefaultTimeLayout = "2006-01-02 15:04:05"

	// Separator terminates every block.
	Separator = "-------------------------------------------------"

	totalPrefix = "Total time of usage: "
	endMarker   = " and ended at "

	maxLineSize = 1024 * 1024
)

// Config holds text log settings.
type Config struct {
	Path       string
	Label      string
	TimeLayout string
	Location   *time.Location
}

// Store is a text file backed usage log.
type Store struct {
	path        string
	startPrefix string
	layout      string
	dateLayout  string
	loc         *time.Location
	logger      zerolog.Logger
}

// Open creates a store for the file at cfg.Path. The file itself is created
// lazily by the first Append; a missing file reads as an empty log.
func Open(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("usage log path is required")
	}
	if cfg.Label == "" {
		cfg.Label = DefaultLabel
	}
	if cfg.TimeLayout == "" {
		cfg.TimeLayout = DefaultTimeLayout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	dateLayout, err := DateLayout(cfg.TimeLayout)
	if err != nil {
		return nil, err
	}

	return &Store{
		path:        cfg.Path,
		startPrefix: cfg.Label + " session started at ",
		layout:      cfg.TimeLayout,
		dateLayout:  dateLayout,
		loc:         cfg.Location,
		logger:      logger.With().Str("component", "usage-log").Str("path", cfg.Path).Logger(),
	}, nil
}

// DateLayout returns the date part of a timestamp layout, which is everything
// before its first space. Day bucketing only ever looks at that token.
func DateLayout(layout string) (string, error) {
	date, _, ok := strings.Cut(layout, " ")
	if !ok || date == "" {
		return "", fmt.Errorf("time layout %q must start with a date followed by a space", layout)
	}
	return date, nil
}

// Location returns the log file path.
func (s *Store) Location() string {
	return s.path
}

// Append writes one block to the end of the log.
func (s *Store) Append(ctx context.Context, rec storage.Record) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := storage.EnsureParentDir(s.path); err != nil {
		return fmt.Errorf("create usage log directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open usage log: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close usage log: %w", cerr)
		}
	}()

	if _, err := f.WriteString(s.formatBlock(rec)); err != nil {
		return fmt.Errorf("write usage log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync usage log: %w", err)
	}

	s.logger.Debug().
		Time("start", rec.Start).
		Time("end", rec.End).
		Dur("duration", rec.Duration).
		Msg("Appended session to usage log")

	return nil
}

func (s *Store) formatBlock(rec storage.Record) string {
	var b strings.Builder
	b.WriteString(s.startPrefix)
	b.WriteString(rec.Start.In(s.loc).Format(s.layout))
	b.WriteString(endMarker)
	b.WriteString(rec.End.In(s.loc).Format(s.layout))
	b.WriteByte('\n')
	b.WriteString(totalPrefix)
	b.WriteString(storage.FormatClock(rec.Duration))
	b.WriteByte('\n')
	b.WriteString(Separator)
	b.WriteByte('\n')
	return b.String()
}

// TotalDuration sums every total line in the log.
func (s *Store) TotalDuration(ctx context.Context, live time.Duration) (time.Duration, error) {
	var total time.Duration
	skipped := 0

	err := s.eachLine(ctx, func(line string) {
		rest, ok := strings.CutPrefix(line, totalPrefix)
		if !ok {
			return
		}
		d, err := parseTotal(rest)
		if err != nil {
			skipped++
			return
		}
		if total, ok = storage.AddDuration(total, d); !ok {
			skipped++
		}
	})
	if err != nil {
		return 0, err
	}

	s.reportSkipped("total", skipped)
	return withLive(total, live), nil
}

// TodayDuration sums the sessions whose start line carries ref's date. The
// total is read from the line right after the start line; a start line that
// is not followed by a valid total line is skipped.
func (s *Store) TodayDuration(ctx context.Context, ref time.Time, live time.Duration) (time.Duration, error) {
	year, month, day := ref.In(s.loc).Date()

	var total time.Duration
	skipped := 0
	afterStart := false
	matched := false

	err := s.eachLine(ctx, func(line string) {
		if afterStart {
			afterStart = false
			if matched {
				rest, ok := strings.CutPrefix(line, totalPrefix)
				d, err := parseTotal(rest)
				if !ok || err != nil {
					skipped++
				} else if total, ok = storage.AddDuration(total, d); !ok {
					skipped++
				}
			}
		}

		rest, ok := strings.CutPrefix(line, s.startPrefix)
		if !ok {
			return
		}
		afterStart = true
		date, err := s.parseDate(rest)
		if err != nil {
			matched = false
			skipped++
			return
		}
		y, m, d := date.Date()
		matched = y == year && m == month && d == day
	})
	if err != nil {
		return 0, err
	}
	if afterStart && matched {
		skipped++
	}

	s.reportSkipped("today", skipped)
	return withLive(total, live), nil
}

// Scan walks well formed start/total pairs in append order.
func (s *Store) Scan(ctx context.Context, fn func(storage.Entry) error) error {
	var (
		pending  *storage.Entry
		stopErr  error
		skipped  int
		finished bool
	)

	err := s.eachLine(ctx, func(line string) {
		if finished {
			return
		}
		if pending != nil {
			entry := *pending
			pending = nil
			rest, ok := strings.CutPrefix(line, totalPrefix)
			d, err := parseTotal(rest)
			if !ok || err != nil {
				skipped++
			} else {
				entry.Duration = d
				if err := fn(entry); err != nil {
					stopErr = err
					finished = true
					return
				}
			}
		}

		rest, ok := strings.CutPrefix(line, s.startPrefix)
		if !ok {
			return
		}
		date, err := s.parseDate(rest)
		if err != nil {
			skipped++
			return
		}
		startText, endText, _ := strings.Cut(rest, endMarker)
		pending = &storage.Entry{
			StartText: startText,
			EndText:   endText,
			StartDate: date,
		}
	})
	if err != nil {
		return err
	}
	if stopErr != nil {
		return stopErr
	}
	if pending != nil {
		skipped++
	}

	s.reportSkipped("scan", skipped)
	return nil
}

func (s *Store) parseDate(rest string) (time.Time, error) {
	token, _, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	return time.ParseInLocation(s.dateLayout, token, s.loc)
}

// eachLine feeds every line of the log to fn. A missing file has no lines.
func (s *Store) eachLine(ctx context.Context, fn func(line string)) error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open usage log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read usage log: %w", err)
	}

	return nil
}

func (s *Store) reportSkipped(query string, skipped int) {
	if skipped == 0 {
		return
	}
	metrics.LogRecordsSkipped.Add(float64(skipped))
	s.logger.Debug().
		Str("query", query).
		Int("skipped", skipped).
		Msg("Skipped malformed usage log records")
}

// withLive adds the live session to a stored total, saturating on overflow.
func withLive(total, live time.Duration) time.Duration {
	if live <= 0 {
		return total
	}
	sum, ok := storage.AddDuration(total, live)
	if !ok {
		return math.MaxInt64
	}
	return sum
}

// parseTotal reads the duration at the start of a total line remainder. Any
// text after the first space is ignored.
func parseTotal(rest string) (time.Duration, error) {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, errors.New("empty duration")
	}
	return storage.ParseClock(fields[0])
}
