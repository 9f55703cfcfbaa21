package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

// App holds every wired component of the service.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Producer *persistence.EventProducer

	Store        repository.Store
	Objects      service.ObjectStore
	Dispatcher   events.Dispatcher
	Capabilities *auth.RoleCapabilities
	Tokens       *auth.TokenManager

	Tickets     *service.TicketService
	Activity    *service.ActivityService
	Attachments *service.AttachmentService
	Assignments *service.AssignmentService
	Policies    *service.SLAPolicyService
	Scanner     *service.BreachScanner
	Scheduler   *worker.BreachScheduler
}

// Options tweak the bootstrap for tests and tools.
type Options struct {
	// Now overrides the service clock.
	Now service.Clock
	// SkipMigrations leaves the schema untouched even when configured.
	SkipMigrations bool
}

// New connects the configured backends and builds the services. Without a
// Postgres DSN the in-memory store is used, seeded from the policy file or the
// built-in defaults; without Redis the scan lock is process local.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{
		Config:       cfg,
		Logger:       logger,
		Metrics:      observability.NewMetrics(),
		Dispatcher:   events.NewInMemoryDispatcher(),
		Capabilities: auth.NewRoleCapabilities(),
		Tokens:       auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.Postgres = pg

	if pg.Enabled() {
		if cfg.Postgres.RunMigrations && !opts.SkipMigrations {
			if _, err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				a.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		a.Store = repository.NewPostgresStore(pg.PoolHandle())
	} else {
		seeds, err := seedPolicies(cfg.SLA.PolicyFile, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Store = repository.NewMemoryStore(seeds...)
		logger.Warn("using in-memory ticket store", zap.Int("sla_policies", len(seeds)))
	}

	a.Redis = persistence.NewRedis(cfg.Redis, logger)

	if cfg.Storage.Enabled() {
		objects, err := persistence.NewMinioObjectStore(ctx, cfg.Storage, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect object store: %w", err)
		}
		a.Objects = objects
	} else {
		logger.Warn("STORAGE_ENDPOINT not provided; attachments kept in memory")
		a.Objects = persistence.NewMemoryObjectStore()
	}

	a.Producer = persistence.NewEventProducer(cfg.Kafka, logger)

	a.buildServices(opts.Now)
	return a, nil
}

func (a *App) buildServices(now service.Clock) {
	cfg := a.Config
	a.Tickets = service.NewTicketService(service.TicketDependencies{
		Store: a.Store, Capabilities: a.Capabilities, Dispatcher: a.Dispatcher, Logger: a.Logger, Now: now,
	})
	a.Activity = service.NewActivityService(service.ActivityDependencies{
		Store: a.Store, Capabilities: a.Capabilities, Dispatcher: a.Dispatcher, Logger: a.Logger, Now: now,
	})
	a.Attachments = service.NewAttachmentService(service.AttachmentDependencies{
		Store:        a.Store,
		Objects:      a.Objects,
		Capabilities: a.Capabilities,
		Dispatcher:   a.Dispatcher,
		Logger:       a.Logger,
		Now:          now,
		MaxSizeBytes: cfg.Attachments.MaxSizeBytes,
		AllowedTypes: cfg.Attachments.AllowedTypes,
	})
	a.Assignments = service.NewAssignmentService(service.AssignmentDependencies{
		Store: a.Store, Capabilities: a.Capabilities, Dispatcher: a.Dispatcher, Logger: a.Logger, Now: now,
	})
	a.Policies = service.NewSLAPolicyService(a.Store, a.Capabilities, a.Logger)
	a.Scanner = service.NewBreachScanner(service.BreachScannerDependencies{
		Store: a.Store, Dispatcher: a.Dispatcher, Logger: a.Logger, Metrics: a.Metrics, Now: now,
	})
	a.Scheduler = worker.NewBreachScheduler(worker.BreachSchedulerConfig{
		Scanner:  a.Scanner,
		Locker:   a.locker(),
		LockKey:  cfg.SLA.ScanLockKey,
		Interval: cfg.SLA.ScanInterval(),
		Cooldown: cfg.SLA.ScanCooldown(),
		Now:      now,
		Metrics:  a.Metrics,
		Logger:   a.Logger,
	})

	worker.StartEventWorkers(worker.EventWorkers{
		Dispatcher:    a.Dispatcher,
		Notifications: service.NewNotificationService(a.Dispatcher, a.Logger, cfg.Notification),
		Audit:         service.NewAuditService(a.Store, a.Dispatcher, a.Logger),
		Producer:      a.Producer,
		Logger:        a.Logger,
	})
}

func (a *App) locker() persistence.Locker {
	if a.Redis != nil {
		return a.Redis.Locker()
	}
	return persistence.NewLocalLocker(nil)
}

// HTTP builds the fiber application with every route registered.
func (a *App) HTTP() *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:   a.Config.App.Name,
		BodyLimit: int(a.Config.Attachments.MaxSizeBytes) + 1<<20,
	})
	httptransport.RegisterMiddlewares(server, a.Logger, a.Metrics, a.Config.App.RequestTimeout())
	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(a.Config.App.Name, a.Config.App.Version, a.Postgres, a.Redis, a.Metrics),
		Tickets:        handlers.NewTicketsHandler(a.Tickets, a.Assignments),
		Activity:       handlers.NewActivityHandler(a.Activity, a.Attachments),
		SLA:            handlers.NewSLAHandler(a.Policies, a.Scheduler, a.Capabilities),
		AuthMiddleware: auth.NewAuthMiddleware(a.Tokens),
	})
	return server
}

// Close releases every connection.
func (a *App) Close() {
	if err := a.Producer.Close(); err != nil {
		a.Logger.Warn("close kafka producer", zap.Error(err))
	}
	a.Redis.Close()
	a.Postgres.Close()
}

// seedPolicies loads the YAML seed file, falling back to the built-in
// defaults when the file does not exist.
func seedPolicies(path string, logger *zap.Logger) ([]domain.SLAPolicy, error) {
	if path == "" {
		return config.DefaultPolicies(), nil
	}
	policies, err := config.LoadPolicyFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("sla policy file not found; using defaults", zap.String("path", path))
		return config.DefaultPolicies(), nil
	}
	if err != nil {
		return nil, err
	}
	return policies, nil
}
