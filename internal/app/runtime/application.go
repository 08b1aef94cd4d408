// Package runtime assembles the configured application: storage, services,
// HTTP server and background workers.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	app "github.com/nta-library/library-service/internal/app"
	"github.com/nta-library/library-service/internal/app/auth"
	"github.com/nta-library/library-service/internal/app/fixtures"
	"github.com/nta-library/library-service/internal/app/httpapi"
	"github.com/nta-library/library-service/internal/app/metrics"
	"github.com/nta-library/library-service/internal/app/services/circulation"
	"github.com/nta-library/library-service/internal/app/services/notify"
	"github.com/nta-library/library-service/internal/app/services/reports"
	"github.com/nta-library/library-service/internal/app/services/reservations"
	"github.com/nta-library/library-service/internal/app/storage/postgres"
	"github.com/nta-library/library-service/internal/config"
	"github.com/nta-library/library-service/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	db         *sql.DB
	redis      *redis.Client
}

// NewApplication constructs a fully wired application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	stores := app.Stores{}
	var db *sql.DB
	if cfg.Database.DSN != "" {
		var err error
		db, err = openDatabase(cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		store := postgres.New(db)
		stores = app.Stores{
			Books:        store,
			Members:      store,
			Loans:        store,
			Reservations: store,
			Requests:     store,
			Messages:     store,
		}
	} else {
		log.Warn("DATABASE_URL not set; using in-memory storage")
	}

	var sender notify.EmailSender
	if cfg.SMTP.Host != "" {
		sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	} else {
		log.Warn("SMTP_HOST not set; notification email will be logged only")
		sender = notify.NewLogSender(log)
	}

	var redisClient *redis.Client
	var reportsCache *reports.Cache
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		reportsCache = reports.NewCache(redisClient, cfg.Redis.CacheTTL, log)
	} else {
		log.Warn("REDIS_ADDR not set; dashboard caching disabled")
	}

	application, err := app.New(stores, app.Config{
		Circulation: circulation.Config{
			LoanPeriodDays: cfg.Library.LoanPeriodDays,
			DailyFineRate:  cfg.Library.DailyFineRate,
		},
		Reservations: reservations.Config{
			HoldDays: cfg.Library.ReservationDays,
		},
		Notify: notify.Config{
			DueSoonLeadDays:    cfg.Library.DueSoonLeadDays,
			ExpiryWarnLeadDays: cfg.Library.ExpiryWarnLeadDays,
		},
		SweepInterval:  cfg.Library.SweepInterval,
		ExpiryInterval: cfg.Library.ExpiryInterval,
		DailySpec:      cfg.Library.DailyNotifySpec,
		WeeklySpec:     cfg.Library.WeeklyReportSpec,
		Sender:         sender,
		ReportsCache:   reportsCache,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}

	tokens := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	sink, err := httpapi.NewFileAuditSink(cfg.Library.AuditLogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	var auditSink httpapi.AuditSink
	if sink != nil {
		auditSink = sink
		if err := application.Attach(closerService{name: "audit-sink", close: sink.Close}); err != nil {
			return nil, fmt.Errorf("attach audit sink: %w", err)
		}
	}
	audit := httpapi.NewAuditLog(0, auditSink)

	handler := httpapi.NewHandler(application, tokens, audit)
	handler = httpapi.NewRateLimiter(cfg.Library.RateLimitPerSec, cfg.Library.RateLimitBurst).Handler(handler)
	// Audit sits inside auth so entries carry the caller's claims.
	handler = httpapi.WrapWithAudit(handler, audit)
	handler = httpapi.WrapWithAuth(handler, tokens)
	handler = httpapi.WrapWithCORS(handler)
	handler = metrics.InstrumentHandler(handler)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpServer,
		db:         db,
		redis:      redisClient,
	}, nil
}

// closerService ties a resource's Close to the managed service lifecycle.
type closerService struct {
	name  string
	close func() error
}

func (c closerService) Name() string                { return c.name }
func (c closerService) Start(context.Context) error { return nil }
func (c closerService) Stop(context.Context) error  { return c.close() }

// App exposes the wired service container.
func (a *Application) App() *app.Application { return a.app }

// Log exposes the configured logger.
func (a *Application) Log() *logger.Logger { return a.log }

// Run starts the background services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Bootstrap(ctx); err != nil {
		// A failed bootstrap must not block serving; the admin can be
		// created later through the createsuperuser verb.
		a.log.WithError(err).Warn("bootstrap administrator failed")
	}
	if a.cfg.Library.FixturesPath != "" {
		// Seed data is idempotent, so loading on every boot is safe.
		if err := a.LoadFixtures(ctx); err != nil {
			a.log.WithError(err).Warn("fixture load failed")
		}
	}
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.cfg.Server.Addr())
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// RunWorker starts only the background services, blocking until the context
// is cancelled. Used by the worker entrypoint verb.
func (a *Application) RunWorker(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	a.log.Info("worker running")
	<-ctx.Done()
	return nil
}

// Shutdown gracefully stops the HTTP server, background services and closes
// connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.WithError(err).Warn("error shutting down HTTP server")
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

// Migrate applies pending schema migrations.
func (a *Application) Migrate() error {
	if a.db == nil {
		a.log.Warn("no database configured; nothing to migrate")
		return nil
	}

	driver, err := migratepg.WithInstance(a.db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+a.cfg.Database.MigrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	a.log.Info("migrations applied")
	return nil
}

// Bootstrap creates the initial administrator if it does not exist.
func (a *Application) Bootstrap(ctx context.Context) error {
	b := a.cfg.Bootstrap
	_, created, err := a.app.Members.EnsureAdmin(ctx, b.AdminUsername, b.AdminEmail, b.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		a.log.WithField("username", b.AdminUsername).Info("administrator account created")
	}
	return nil
}

// LoadFixtures seeds the catalogue and membership from the fixtures path.
func (a *Application) LoadFixtures(ctx context.Context) error {
	return fixtures.Load(ctx, a.cfg.Library.FixturesPath, a.app.Catalog, a.app.Members, a.log)
}

// RunNotify executes the daily notification batch once and returns.
func (a *Application) RunNotify(ctx context.Context) error {
	return a.app.Notify.RunDaily(ctx, a.app.Circulation.DailyFineRate())
}

// openDatabase connects with pool settings and waits for the database to
// accept connections, which covers container start ordering.
func openDatabase(cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := waitForDatabase(db.PingContext, cfg.ConnectTimeout, 2*time.Second, log); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// waitForDatabase pings until the database answers. A zero or negative
// timeout retries forever, which suits containers started before their
// database.
func waitForDatabase(ping func(context.Context) error, timeout, interval time.Duration, log *logger.Logger) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := ping(ctx)
		cancel()
		if err == nil {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("database not reachable within %s: %w", timeout, err)
		}
		log.WithError(err).Info("waiting for database")
		time.Sleep(interval)
	}
}
