package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRunCompletesAllTasks(t *testing.T) {
	var completed int64
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (bool, error) {
			atomic.AddInt64(&completed, 1)
			return false, nil
		}
	}

	stats, err := NewPool(4).Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if completed != 20 || stats.Completed != 20 {
		t.Fatalf("completed %d tasks (stats %d), expected 20", completed, stats.Completed)
	}
	if stats.Failed != 0 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	const size = 3
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	gate := make(chan struct{})

	tasks := make([]Task, 12)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (bool, error) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			<-gate

			mu.Lock()
			running--
			mu.Unlock()
			return false, nil
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := NewPool(size).Run(context.Background(), tasks); err != nil {
			t.Errorf("Run failed: %v", err)
		}
	}()

	close(gate)
	<-done

	if peak > size {
		t.Fatalf("observed %d concurrent tasks, pool size %d", peak, size)
	}
}

func TestRunStopSkipsRemaining(t *testing.T) {
	var executed int64
	tasks := make([]Task, 10)
	for i := range tasks {
		stop := i == 0
		tasks[i] = func(ctx context.Context) (bool, error) {
			atomic.AddInt64(&executed, 1)
			return stop, nil
		}
	}

	stats, err := NewPool(1).Run(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if executed == 10 {
		t.Fatal("stop request did not prevent remaining tasks")
	}
	if stats.Completed+stats.Skipped != 10 {
		t.Fatalf("stats do not account for every task: %+v", stats)
	}
}

func TestRunReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	tasks := []Task{
		func(ctx context.Context) (bool, error) { return false, boom },
		func(ctx context.Context) (bool, error) { return false, nil },
	}

	stats, err := NewPool(1).Run(context.Background(), tasks)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if stats.Failed != 1 {
		t.Fatalf("stats.Failed = %d, expected 1", stats.Failed)
	}
}

func TestRunWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var executed int64
	tasks := []Task{
		func(ctx context.Context) (bool, error) {
			atomic.AddInt64(&executed, 1)
			return false, nil
		},
	}

	stats, err := NewPool(2).Run(ctx, tasks)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if executed != 0 {
		t.Fatal("task executed despite cancelled context")
	}
	if stats.Completed != 0 {
		t.Fatalf("stats.Completed = %d, expected 0", stats.Completed)
	}
}

func TestNewPoolDefaultsSize(t *testing.T) {
	if NewPool(0).Size() <= 0 {
		t.Fatal("default pool size must be positive")
	}
	if NewPool(-3).Size() <= 0 {
		t.Fatal("negative pool size must fall back to a positive default")
	}
	if NewPool(7).Size() != 7 {
		t.Fatalf("Size = %d, expected 7", NewPool(7).Size())
	}
}
