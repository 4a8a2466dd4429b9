// Package scheduler runs the tracker's periodic passes. Each job gets its
// own ticker goroutine; a slow or panicking job never delays the others.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; defaults to the interval.
	Timeout time.Duration
	Handler func(ctx context.Context) error
}

// Scheduler owns the job goroutines.
type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	if job.Timeout == 0 {
		job.Timeout = job.Interval
	}
	s.jobs = append(s.jobs, job)
}

// Start launches every job. Each runs once immediately, then on its
// interval, until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for i := range s.jobs {
		job := s.jobs[i]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, job)
		}()
	}
	log.Printf("[scheduler] started %d jobs", len(s.jobs))
}

// Wait blocks until every job goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.run(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, job)
		}
	}
}

// run executes one job tick. Panics are contained to the tick so one bad
// pass does not take the process down.
func (s *Scheduler) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] job %q panicked: %v", job.Name, r)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	if err := job.Handler(runCtx); err != nil {
		log.Printf("[scheduler] job %q failed after %v: %v", job.Name, time.Since(start), err)
	}
}
