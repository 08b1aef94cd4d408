package circulation

import (
	"context"
	"sync"
	"time"

	"github.com/nta-library/library-service/pkg/logger"
)

// DefaultSweepInterval is how often the sweeper scans for overdue loans.
const DefaultSweepInterval = 15 * time.Minute

// OverdueSweeper periodically transitions borrowed loans past their due date
// to overdue.
type OverdueSweeper struct {
	service  *Service
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewOverdueSweeper constructs the sweeper. A zero interval falls back to
// DefaultSweepInterval.
func NewOverdueSweeper(service *Service, interval time.Duration, log *logger.Logger) *OverdueSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = logger.NewDefault("overdue-sweeper")
	}
	return &OverdueSweeper{service: service, interval: interval, log: log}
}

// Name identifies the sweeper to the runtime manager.
func (s *OverdueSweeper) Name() string { return "circulation-overdue-sweeper" }

// Start launches the background loop.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)
	go s.loop(runCtx)
	return nil
}

// Stop terminates the background loop and waits for it to exit.
func (s *OverdueSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *OverdueSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *OverdueSweeper) sweep(ctx context.Context) {
	if _, err := s.service.SweepOverdue(ctx); err != nil {
		s.log.WithError(err).Warn("overdue sweep failed")
	}
}
