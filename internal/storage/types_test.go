package storage

import (
	"testing"
	"time"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"zero", 0, "00:00:00"},
		{"half hour", 30 * time.Minute, "00:30:00"},
		{"mixed", 1*time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{"rounds up", 59*time.Second + 600*time.Millisecond, "00:01:00"},
		{"past a day", 27*time.Hour + 5*time.Second, "27:00:05"},
		{"negative", -time.Minute, "00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatClock(tt.in); got != tt.want {
				t.Errorf("FormatClock(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"00:30:00", 30 * time.Minute, false},
		{"01:02:03", time.Hour + 2*time.Minute + 3*time.Second, false},
		{"123:00:01", 123*time.Hour + time.Second, false},
		{"0:0:0", 0, false},
		{"aa:bb:cc", 0, true},
		{"00:10", 0, true},
		{"00:60:00", time.Hour, false},
		{"00:75:00", time.Hour + 15*time.Minute, false},
		{"00:00:90", time.Minute + 30*time.Second, false},
		{"2562047:00:00", 2562047 * time.Hour, false},
		{"3000000:00:00", 0, true},
		{"2562047:47:17", 0, true},
		{"99999999999999999999:00:00", 0, true},
		{"00:99999999999999999:00", 0, true},
		{"00::00", 0, true},
		{"00:00:00:00", 0, true},
		{"", 0, true},
		{"-1:00:00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseClock(%q) expected error, got %v", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseClock(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewRecord(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	rec := NewRecord(start, start.Add(30*time.Minute+400*time.Millisecond))
	if rec.Duration != 30*time.Minute {
		t.Errorf("expected 30m, got %v", rec.Duration)
	}

	rec = NewRecord(start, start.Add(-time.Minute))
	if !rec.End.Equal(start) || rec.Duration != 0 {
		t.Errorf("expected end clamped to start, got end=%v duration=%v", rec.End, rec.Duration)
	}
}

func TestAddDuration(t *testing.T) {
	if got, ok := AddDuration(time.Hour, time.Minute); !ok || got != time.Hour+time.Minute {
		t.Errorf("AddDuration(1h, 1m) = %v, %v", got, ok)
	}

	big := 2000000 * time.Hour
	if got, ok := AddDuration(big, big); ok || got != big {
		t.Errorf("AddDuration overflow = %v, %v; want %v, false", got, ok, big)
	}
}
