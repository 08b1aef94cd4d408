package reservations

import (
	"context"
	"sync"
	"time"

	"github.com/nta-library/library-service/pkg/logger"
)

// DefaultExpiryInterval is how often the poller sweeps lapsed reservations.
const DefaultExpiryInterval = 30 * time.Minute

// ExpiryPoller periodically expires reservations whose hold window lapsed.
type ExpiryPoller struct {
	service  *Service
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewExpiryPoller constructs the poller. A zero interval falls back to
// DefaultExpiryInterval.
func NewExpiryPoller(service *Service, interval time.Duration, log *logger.Logger) *ExpiryPoller {
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	if log == nil {
		log = logger.NewDefault("reservation-expiry")
	}
	return &ExpiryPoller{service: service, interval: interval, log: log}
}

// Name identifies the poller to the runtime manager.
func (p *ExpiryPoller) Name() string { return "reservation-expiry-poller" }

// Start launches the background loop.
func (p *ExpiryPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	go p.loop(runCtx)
	return nil
}

// Stop terminates the background loop and waits for it to exit.
func (p *ExpiryPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ExpiryPoller) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *ExpiryPoller) sweep(ctx context.Context) {
	if _, err := p.service.ExpireLapsed(ctx); err != nil {
		p.log.WithError(err).Warn("reservation expiry sweep failed")
	}
}
