// Package worker runs independent jobs on a bounded number of goroutines.
package worker

import (
	"context"
	"sync"
)

// Job is one unit of work producing a T
type Job[T any] func(ctx context.Context) T

// Pool executes jobs with at most Workers goroutines
type Pool[T any] struct {
	workers int
}

// NewPool creates a pool; workers <= 0 means one worker
func NewPool[T any](workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	return &Pool[T]{workers: workers}
}

// Workers returns the concurrency limit
func (p *Pool[T]) Workers() int {
	return p.workers
}

// Run executes every job and returns the results in job order. Jobs not yet
// started when ctx is cancelled are skipped and leave the zero T.
func (p *Pool[T]) Run(ctx context.Context, jobs []Job[T]) []T {
	results := make([]T, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				if ctx.Err() != nil {
					continue
				}
				// each index is written by exactly one worker
				results[idx] = jobs[idx](ctx)
			}
		}()
	}

submit:
	for i := range jobs {
		select {
		case <-ctx.Done():
			break submit
		case queue <- i:
		}
	}
	close(queue)
	wg.Wait()

	return results
}
