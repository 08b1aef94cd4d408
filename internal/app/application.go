// Package app wires the library services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nta-library/library-service/internal/app/services/catalog"
	"github.com/nta-library/library-service/internal/app/services/circulation"
	"github.com/nta-library/library-service/internal/app/services/members"
	"github.com/nta-library/library-service/internal/app/services/notify"
	"github.com/nta-library/library-service/internal/app/services/reports"
	"github.com/nta-library/library-service/internal/app/services/reservations"
	"github.com/nta-library/library-service/internal/app/storage"
	"github.com/nta-library/library-service/internal/app/storage/memory"
	"github.com/nta-library/library-service/internal/app/system"
	"github.com/nta-library/library-service/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Books        storage.BookStore
	Members      storage.MemberStore
	Loans        storage.LoanStore
	Reservations storage.ReservationStore
	Requests     storage.RequestStore
	Messages     storage.MessageStore
}

// Config carries circulation policy and background cadence settings.
type Config struct {
	Circulation  circulation.Config
	Reservations reservations.Config
	Notify       notify.Config

	SweepInterval  time.Duration
	ExpiryInterval time.Duration
	DailySpec      string
	WeeklySpec     string

	// Sender delivers notification email. Nil suppresses email delivery.
	Sender notify.EmailSender
	// ReportsCache caches dashboard snapshots. Nil disables caching.
	ReportsCache *reports.Cache
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Catalog      *catalog.Service
	Members      *members.Service
	Circulation  *circulation.Service
	Reservations *reservations.Service
	Notify       *notify.Service
	Reports      *reports.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, cfg Config, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Books == nil {
		stores.Books = mem
	}
	if stores.Members == nil {
		stores.Members = mem
	}
	if stores.Loans == nil {
		stores.Loans = mem
	}
	if stores.Reservations == nil {
		stores.Reservations = mem
	}
	if stores.Requests == nil {
		stores.Requests = mem
	}
	if stores.Messages == nil {
		stores.Messages = mem
	}

	manager := system.NewManager()

	catalogService := catalog.New(stores.Books, log)
	memberService := members.New(stores.Members, log)
	circulationService := circulation.New(stores.Books, stores.Members, stores.Loans,
		stores.Reservations, stores.Requests, cfg.Circulation, log)
	reservationService := reservations.New(stores.Books, stores.Members, stores.Reservations,
		cfg.Reservations, log)
	notifyService := notify.New(stores.Members, stores.Books, stores.Loans,
		stores.Reservations, stores.Messages, cfg.Sender, cfg.Notify, log)
	reportService := reports.New(stores.Books, stores.Members, stores.Loans,
		stores.Reservations, cfg.ReportsCache, log)

	memberService.AttachNotifier(notifyService)
	circulationService.AttachNotifier(notifyService)

	for _, name := range []string{"catalog", "members", "reports"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	sweeper := circulation.NewOverdueSweeper(circulationService, cfg.SweepInterval, log)
	expiry := reservations.NewExpiryPoller(reservationService, cfg.ExpiryInterval, log)
	scheduler := notify.NewScheduler(notifyService, cfg.DailySpec,
		circulationService.DailyFineRate(), log)
	if cfg.WeeklySpec != "" {
		if err := scheduler.AddJob("weekly-report", cfg.WeeklySpec, notifyService.WeeklyReport); err != nil {
			return nil, fmt.Errorf("register weekly report: %w", err)
		}
	}

	for _, svc := range []system.Service{sweeper, expiry, scheduler} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:      manager,
		log:          log,
		Catalog:      catalogService,
		Members:      memberService,
		Circulation:  circulationService,
		Reservations: reservationService,
		Notify:       notifyService,
		Reports:      reportService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
