package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/utrack/internal/storage"
	"github.com/rs/zerolog"
)

type fakeRecorder struct {
	mu      sync.Mutex
	records []storage.Record
	err     error
	ctxErrs []error
}

func (f *fakeRecorder) Append(ctx context.Context, rec storage.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

var baseTime = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestTracker_IdleDurationIsZero(t *testing.T) {
	tracker := NewTracker(&fakeRecorder{}, Config{}, zerolog.Nop())

	if d := tracker.CurrentDuration(baseTime); d != 0 {
		t.Errorf("expected zero duration while idle, got %v", d)
	}
	if _, ok := tracker.Active(); ok {
		t.Error("expected no active session")
	}
}

func TestTracker_Lifecycle(t *testing.T) {
	recorder := &fakeRecorder{}
	tracker := NewTracker(recorder, Config{}, zerolog.Nop())
	ctx := context.Background()

	if !tracker.ProcessStarted(baseTime) {
		t.Fatal("expected first start to open a session")
	}
	if tracker.ProcessStarted(baseTime.Add(time.Minute)) {
		t.Error("expected second start to be ignored")
	}

	if d := tracker.CurrentDuration(baseTime.Add(10 * time.Minute)); d != 10*time.Minute {
		t.Errorf("expected 10m elapsed, got %v", d)
	}

	rec, err := tracker.ProcessExited(ctx, baseTime.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ProcessExited failed: %v", err)
	}
	if rec == nil || rec.Duration != 30*time.Minute {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.Start.Equal(baseTime) {
		t.Errorf("expected start %v, got %v", baseTime, rec.Start)
	}

	if d := tracker.CurrentDuration(baseTime.Add(time.Hour)); d != 0 {
		t.Errorf("expected zero after exit, got %v", d)
	}
	if recorder.count() != 1 {
		t.Errorf("expected 1 record, got %d", recorder.count())
	}
}

func TestTracker_StopThenExitRecordsOnce(t *testing.T) {
	recorder := &fakeRecorder{}
	tracker := NewTracker(recorder, Config{}, zerolog.Nop())
	ctx := context.Background()

	tracker.ProcessStarted(baseTime)

	rec, err := tracker.Stop(ctx, baseTime.Add(5*time.Minute))
	if err != nil || rec == nil {
		t.Fatalf("Stop returned rec=%v err=%v", rec, err)
	}

	rec, err = tracker.ProcessExited(ctx, baseTime.Add(6*time.Minute))
	if err != nil {
		t.Fatalf("ProcessExited failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected no record for the second notification, got %+v", rec)
	}

	if recorder.count() != 1 {
		t.Errorf("expected exactly one record, got %d", recorder.count())
	}
}

func TestTracker_ConcurrentFinishRecordsOnce(t *testing.T) {
	recorder := &fakeRecorder{}
	tracker := NewTracker(recorder, Config{}, zerolog.Nop())
	ctx := context.Background()

	tracker.ProcessStarted(baseTime)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := baseTime.Add(time.Hour)
			if i%2 == 0 {
				_, _ = tracker.Stop(ctx, now)
			} else {
				_, _ = tracker.ProcessExited(ctx, now)
			}
		}(i)
	}
	wg.Wait()

	if recorder.count() != 1 {
		t.Errorf("expected exactly one record, got %d", recorder.count())
	}
}

func TestTracker_AppendFailureIsNotFatal(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("disk full")}
	tracker := NewTracker(recorder, Config{}, zerolog.Nop())
	ctx := context.Background()

	tracker.ProcessStarted(baseTime)
	rec, err := tracker.ProcessExited(ctx, baseTime.Add(time.Minute))
	if err == nil {
		t.Fatal("expected the append error to be reported")
	}
	if rec == nil || rec.Duration != time.Minute {
		t.Errorf("expected the lost record to be returned, got %+v", rec)
	}
	if _, ok := tracker.Active(); ok {
		t.Error("tracker should be idle after a failed append")
	}

	recorder.mu.Lock()
	recorder.err = nil
	recorder.mu.Unlock()

	if !tracker.ProcessStarted(baseTime.Add(time.Hour)) {
		t.Fatal("expected a new session to start after a failed append")
	}
	if _, err := tracker.ProcessExited(ctx, baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("ProcessExited failed: %v", err)
	}
	if recorder.count() != 1 {
		t.Errorf("expected one record, got %d", recorder.count())
	}
}

func TestTracker_MinSessionDuration(t *testing.T) {
	recorder := &fakeRecorder{}
	tracker := NewTracker(recorder, Config{MinSessionDuration: 10 * time.Second}, zerolog.Nop())
	ctx := context.Background()

	tracker.ProcessStarted(baseTime)
	rec, err := tracker.ProcessExited(ctx, baseTime.Add(5*time.Second))
	if err != nil || rec != nil {
		t.Errorf("expected short session to be dropped, got rec=%v err=%v", rec, err)
	}

	tracker.ProcessStarted(baseTime.Add(time.Minute))
	rec, _ = tracker.ProcessExited(ctx, baseTime.Add(2*time.Minute))
	if rec == nil {
		t.Error("expected long session to be recorded")
	}
	if recorder.count() != 1 {
		t.Errorf("expected one record, got %d", recorder.count())
	}
}

func TestTracker_RecordsAfterContextCancel(t *testing.T) {
	recorder := &fakeRecorder{}
	tracker := NewTracker(recorder, Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	tracker.ProcessStarted(baseTime)
	cancel()

	if _, err := tracker.Stop(ctx, baseTime.Add(time.Minute)); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if recorder.count() != 1 {
		t.Fatalf("expected one record, got %d", recorder.count())
	}
	if recorder.ctxErrs[0] != nil {
		t.Errorf("recorder received a cancelled context: %v", recorder.ctxErrs[0])
	}
}

func TestTestClock_Advance(t *testing.T) {
	clock := &TestClock{CurrentTime: baseTime}
	clock.Advance(90 * time.Second)
	if got := clock.Now(); !got.Equal(baseTime.Add(90 * time.Second)) {
		t.Errorf("unexpected time %v", got)
	}
}
