package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/nta-library/library-service/pkg/logger"
)

// DefaultDailySpec runs the daily batch at 08:00 server time.
const DefaultDailySpec = "0 8 * * *"

// Scheduler runs the daily notification batch on a cron schedule. Extra jobs
// can be registered before Start.
type Scheduler struct {
	service       *Service
	dailySpec     string
	dailyFineRate float64
	log           *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	extra   []cronJob
	running bool
}

type cronJob struct {
	name string
	spec string
	fn   func(context.Context) error
}

// NewScheduler constructs the scheduler. An empty spec falls back to
// DefaultDailySpec.
func NewScheduler(service *Service, dailySpec string, dailyFineRate float64, log *logger.Logger) *Scheduler {
	if dailySpec == "" {
		dailySpec = DefaultDailySpec
	}
	if log == nil {
		log = logger.NewDefault("notify-scheduler")
	}
	return &Scheduler{
		service:       service,
		dailySpec:     dailySpec,
		dailyFineRate: dailyFineRate,
		log:           log,
	}
}

// AddJob registers an additional cron job. Must be called before Start.
func (s *Scheduler) AddJob(name, spec string, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already started")
	}
	s.extra = append(s.extra, cronJob{name: name, spec: spec, fn: fn})
	return nil
}

// Name identifies the scheduler to the runtime manager.
func (s *Scheduler) Name() string { return "notify-scheduler" }

// Start registers the jobs and launches the cron runner.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.dailySpec, func() {
		if err := s.service.RunDaily(context.Background(), s.dailyFineRate); err != nil {
			s.log.WithError(err).Warn("daily notification batch failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule daily batch: %w", err)
	}
	for _, job := range s.extra {
		job := job
		if _, err := c.AddFunc(job.spec, func() {
			if err := job.fn(context.Background()); err != nil {
				s.log.WithError(err).Warnf("scheduled job %s failed", job.name)
			}
		}); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}

	c.Start()
	s.cron = c
	s.running = true
	s.log.WithField("daily_spec", s.dailySpec).
		WithField("extra_jobs", len(s.extra)).
		Info("notification scheduler started")
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
