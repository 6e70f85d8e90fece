package expiry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type scriptedExpirer struct {
	mu      sync.Mutex
	batches []int
	err     error
	calls   int
	after   time.Duration
}

func (s *scriptedExpirer) ExpirePending(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.after = olderThan
	if len(s.batches) == 0 {
		return 0, s.err
	}
	n := s.batches[0]
	s.batches = s.batches[1:]
	return n, nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSweepDrainsBatches(t *testing.T) {
	exp := &scriptedExpirer{batches: []int{100, 100, 7}}
	w := NewWorker(exp, quiet(), WorkerConfig{After: 45 * time.Minute})

	if got := w.Sweep(context.Background()); got != 207 {
		t.Fatalf("expected 207 expired, got %d", got)
	}
	if exp.calls != 4 {
		t.Fatalf("expected 4 calls, got %d", exp.calls)
	}
	if exp.after != 45*time.Minute {
		t.Fatalf("expected olderThan 45m, got %s", exp.after)
	}
}

func TestSweepStopsOnError(t *testing.T) {
	exp := &scriptedExpirer{err: errors.New("db down")}
	w := NewWorker(exp, quiet(), WorkerConfig{})
	if got := w.Sweep(context.Background()); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if exp.calls != 1 {
		t.Fatalf("expected a single call, got %d", exp.calls)
	}
	if exp.after != 30*time.Minute {
		t.Fatalf("expected default 30m, got %s", exp.after)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	exp := &scriptedExpirer{}
	w := NewWorker(exp, quiet(), WorkerConfig{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		exp.mu.Lock()
		calls := exp.calls
		exp.mu.Unlock()
		if calls >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker did not tick")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
