// Package scheduler runs background maintenance jobs on fixed intervals:
// chain export retries and any other periodic sweep the hub registers.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler drives registered jobs until its context is cancelled or Stop
// is called. Jobs run on their own goroutines; a slow job delays only its
// own next tick.
type Scheduler struct {
	logger  *slog.Logger
	entries []entry

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Add registers a job to run at the given interval. Must be called before
// Start.
func (s *Scheduler) Add(job Job, interval time.Duration) {
	s.entries = append(s.entries, entry{job: job, interval: interval})
}

// Start launches one goroutine per registered job.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()

	s.logger.Info("scheduled job started", "job", e.job.Name(), "interval", e.interval)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.job.Run(ctx); err != nil {
				s.logger.Error("scheduled job failed", "job", e.job.Name(), "error", err)
			}
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts all jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}
