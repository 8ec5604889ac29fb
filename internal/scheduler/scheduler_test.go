package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 5 * time.Minute, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2026, 1, 1, 12, 3, 10, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)) {
		t.Fatalf("expected 12:05, got %s", got)
	}

	onBoundary := time.Date(2026, 1, 1, 12, 5, 0, 0, time.UTC)
	if got := s.nextTick(onBoundary); !got.Equal(onBoundary.Add(5 * time.Minute)) {
		t.Fatalf("a boundary instant should schedule the following bucket, got %s", got)
	}

	if got := s.bucketStart(time.Date(2026, 1, 1, 12, 7, 0, 0, time.UTC)); !got.Equal(onBoundary) {
		t.Fatalf("bucket start should truncate, got %s", got)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	now := time.Date(2026, 1, 1, 12, 3, 10, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("unaligned loop should wait one interval, got %s", got)
	}
}

func TestRunOnStartAndCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunOnStart: true}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			calls.Add(1)
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one startup tick, got %d", calls.Load())
	}
}

func TestRunSurvivesFailingTicks(t *testing.T) {
	s := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var calls atomic.Int32
	_ = s.Run(ctx, func(context.Context, time.Time) error {
		n := calls.Add(1)
		switch n {
		case 1:
			return errors.New("upstream down")
		case 2:
			panic("boom")
		default:
			cancel()
			return nil
		}
	})

	if calls.Load() < 3 {
		t.Fatalf("loop should keep ticking after errors and panics, got %d calls", calls.Load())
	}
}

func TestTickTimeoutApplied(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunOnStart: true, TickTimeout: 50 * time.Millisecond}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	var hadDeadline atomic.Bool
	_ = s.Run(ctx, func(tickCtx context.Context, _ time.Time) error {
		_, ok := tickCtx.Deadline()
		hadDeadline.Store(ok)
		cancel()
		return nil
	})

	if !hadDeadline.Load() {
		t.Fatal("tick context should carry the configured deadline")
	}
}

func TestNewRejectsZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval should panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
