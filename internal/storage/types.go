package storage

import (
	"fmt"
	"math"
	"time"
)

// Record is one completed session as persisted in the usage log.
type Record struct {
	Start    time.Time
	End      time.Time
	Duration time.Duration
}

// NewRecord builds a record for the interval [start, end]. The duration is
// rounded to whole seconds. An end before start is clamped to start.
func NewRecord(start, end time.Time) Record {
	if end.Before(start) {
		end = start
	}
	return Record{
		Start:    start,
		End:      end,
		Duration: end.Sub(start).Round(time.Second),
	}
}

// Entry is a record read back from the log. Timestamps are kept as the raw
// text found in the file; only the duration and the start date are parsed.
type Entry struct {
	StartText string
	EndText   string
	StartDate time.Time
	Duration  time.Duration
}

// FormatClock renders d as zero padded HH:MM:SS. Hours are not wrapped at 24.
// Negative durations render as 00:00:00.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Round(time.Second) / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// maxClockSeconds is the largest whole number of seconds a time.Duration holds.
const maxClockSeconds = math.MaxInt64 / int64(time.Second)

// ParseClock parses a HH:MM:SS duration as written by FormatClock. Hours may
// have any number of digits. Minutes or seconds of 60 and above are carried
// into the larger unit, so a hand-edited "00:75:00" reads as 1h15m. Values
// that do not fit a time.Duration are rejected.
func ParseClock(s string) (time.Duration, error) {
	var parts [3]int64
	field := 0
	digits := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digit := int64(c - '0')
			if parts[field] > (maxClockSeconds-digit)/10 {
				return 0, fmt.Errorf("clock value %q out of range", s)
			}
			parts[field] = parts[field]*10 + digit
			digits++
		case c == ':' && digits > 0 && field < 2:
			field++
			digits = 0
		default:
			return 0, fmt.Errorf("invalid clock value %q", s)
		}
	}
	if field != 2 || digits == 0 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}

	seconds := parts[2]
	if parts[1] > (maxClockSeconds-seconds)/60 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	seconds += parts[1] * 60
	if parts[0] > (maxClockSeconds-seconds)/3600 {
		return 0, fmt.Errorf("clock value %q out of range", s)
	}
	seconds += parts[0] * 3600

	return time.Duration(seconds) * time.Second, nil
}

// AddDuration returns a+b for non-negative durations. It reports false,
// leaving a unchanged, when the sum would overflow.
func AddDuration(a, b time.Duration) (time.Duration, bool) {
	if b > math.MaxInt64-a {
		return a, false
	}
	return a + b, true
}
