package reconciler

import (
	"context"
	"fleetrent/pkg/logger"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs full reconciliation passes on a cron schedule for the
// lifetime of the process. A pass also runs once when Start is called.
type Scheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	timeout    time.Duration
	log        *logger.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduler(r Reconciler, spec string, loc *time.Location, timeout time.Duration, log *logger.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	s := &Scheduler{
		cron:       c,
		reconciler: r,
		timeout:    timeout,
		log:        log.Component("reconcile-scheduler"),
	}

	if _, err := c.AddFunc(spec, s.RunOnce); err != nil {
		return nil, fmt.Errorf("failed to register reconciliation job %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce performs one full pass and reports how many bookings it returned.
func (s *Scheduler) RunOnce() {
	s.runWithRecovery("reconcile-expired-bookings", func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.reconciler.Reconcile(ctx, AllVehicles)
	})
}

func (s *Scheduler) runWithRecovery(jobName string, jobFunc func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Job panicked", "job", jobName, "panic", r)
		}
	}()

	start := time.Now()
	s.log.Debug("Starting job", "job", jobName)
	jobFunc()
	s.log.Debug("Job completed", "job", jobName, "duration", time.Since(start))
}

// Start runs an immediate pass in the background and starts the schedule.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	s.log.Info("Starting reconciliation scheduler", "entries", len(s.cron.Entries()))
	go s.RunOnce()
	s.cron.Start()
}

// Stop waits for a pass in flight to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Reconciliation scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
