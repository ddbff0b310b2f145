// Package worker provides the bounded worker pool that runs interval
// verification tasks. Intervals are independent, so results merge through a
// commutative reduction and completion order is irrelevant.
package worker

import (
	"context"
	"runtime"
	"sync"
)

// Task is one unit of work. A task returning stop=true requests fail-fast:
// remaining not-yet-started tasks are cancelled, running ones finish.
type Task func(ctx context.Context) (stop bool, err error)

// Stats summarizes one pool run.
type Stats struct {
	Completed int
	Failed    int
	Skipped   int
}

// Pool executes tasks with bounded concurrency. Sizing is capped so
// recomputation memory (parameter vectors times concurrent intervals)
// stays bounded.
type Pool struct {
	size int
}

// NewPool creates a pool of the given size; size <= 0 uses GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{size: size}
}

// Size returns the worker count.
func (p *Pool) Size() int { return p.size }

// Run executes every task and blocks until all started tasks finish.
// The first task error is returned; a stop request (fail-fast) is not an
// error, it only prevents unstarted tasks from running and reports them
// as skipped.
func (p *Pool) Run(ctx context.Context, tasks []Task) (Stats, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		stats    Stats
		firstErr error
	)

	jobs := make(chan Task)
	var wg sync.WaitGroup
	for w := 0; w < p.size; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				if runCtx.Err() != nil {
					mu.Lock()
					stats.Skipped++
					mu.Unlock()
					continue
				}
				stop, err := task(runCtx)
				mu.Lock()
				if err != nil {
					stats.Failed++
					if firstErr == nil {
						firstErr = err
					}
				} else {
					stats.Completed++
				}
				mu.Unlock()
				if stop || err != nil {
					cancel()
				}
			}
		}()
	}

dispatch:
	for _, task := range tasks {
		select {
		case <-runCtx.Done():
			mu.Lock()
			stats.Skipped++
			mu.Unlock()
			continue dispatch
		case jobs <- task:
		}
	}
	close(jobs)
	wg.Wait()

	return stats, firstErr
}
