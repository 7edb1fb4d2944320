// Package app wires configuration, the record store, the HTTP surface and the
// change event queue into one runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"userdesk/internal/config"
	"userdesk/internal/handlers"
	"userdesk/internal/middleware"
	"userdesk/internal/models"
	"userdesk/internal/repositories"
	"userdesk/internal/services"
	"userdesk/internal/views"
	"userdesk/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const shutdownTimeout = 10 * time.Second

// App is the assembled server.
type App struct {
	cfg        config.Config
	log        *zap.Logger
	fiber      *fiber.App
	service    *services.UserProfileService
	dashboards *services.Dashboards
	mq         *rabbitmq.Client
	closers    []func() error
}

// OpenRepository connects the store selected by cfg.Driver. The returned
// close function releases the connection and is never nil.
func OpenRepository(cfg config.Store) (repositories.UserProfileRepository, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Driver {
	case config.DriverSupabase:
		repo, err := repositories.NewRESTUserProfileRepository(repositories.RESTConfig{
			BaseURL: cfg.SupabaseURL,
			APIKey:  cfg.SupabaseKey,
			Table:   cfg.Table,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return repo, noop, nil
	case config.DriverPostgres:
		return openGORM(postgres.Open(cfg.DatabaseDSN))
	case config.DriverSQLite:
		return openGORM(sqlite.Open(cfg.DatabaseDSN))
	case config.DriverMemory:
		return repositories.NewMockUserProfileRepository(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func openGORM(dialector gorm.Dialector) (repositories.UserProfileRepository, func() error, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.UserProfile{}); err != nil {
		return nil, nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewGORMUserProfileRepository(db), sqlDB.Close, nil
}

// New opens the configured store and, when enabled, the RabbitMQ connection.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	repo, closeRepo, err := OpenRepository(cfg.Store)
	if err != nil {
		return nil, err
	}

	var mq *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		mq, err = rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL, Logger: log})
		if err != nil {
			closeRepo()
			return nil, fmt.Errorf("failed to initialize RabbitMQ client: %w", err)
		}
	}

	a := build(cfg, log, repo, mq)
	a.closers = append(a.closers, closeRepo)
	return a, nil
}

// NewWithRepository assembles the server around repo without change events.
func NewWithRepository(cfg config.Config, log *zap.Logger, repo repositories.UserProfileRepository) *App {
	return build(cfg, log, repo, nil)
}

func build(cfg config.Config, log *zap.Logger, repo repositories.UserProfileRepository, mq *rabbitmq.Client) *App {
	opts := []services.Option{services.WithDemoFallback(cfg.DemoFallback)}
	if mq != nil {
		opts = append(opts, services.WithPublisher(mq))
	}
	service := services.NewUserProfileService(repo, log, opts...)
	validate := services.NewValidator()
	dashboards := services.NewDashboards(func() *services.Dashboard {
		return services.NewDashboard(service, validate, log)
	})
	sessions := session.New(session.Config{
		Expiration:     cfg.SessionIdleTimeout,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	})

	f := fiber.New(fiber.Config{
		Views:                 views.Engine(),
		ViewsLayout:           "layouts/main",
		DisableStartupMessage: true,
	})
	f.Use(recover.New())
	f.Use(middleware.RequestLogger(log))

	a := &App{
		cfg:        cfg,
		log:        log,
		fiber:      f,
		service:    service,
		dashboards: dashboards,
		mq:         mq,
	}

	f.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/users", fiber.StatusSeeOther)
	})
	f.Get("/health", a.handleHealth)

	apiV1 := f.Group("/api/v1", middleware.CORS(cfg.CORSAllowedOrigins))
	handlers.NewUserProfileHandler(service, validate, log).RegisterRoutes(apiV1)
	handlers.NewConsoleHandler(dashboards, sessions, log).RegisterRoutes(f)

	return a
}

func (a *App) handleHealth(c *fiber.Ctx) error {
	mq := "disabled"
	if a.mq != nil {
		mq = "connected"
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":   "healthy",
		"time":     time.Now().Format(time.RFC3339),
		"store":    a.cfg.Store.Driver,
		"rabbitmq": mq,
		"sessions": a.dashboards.Len(),
	})
}

// Fiber returns the HTTP application.
func (a *App) Fiber() *fiber.App {
	return a.fiber
}

// Service returns the record store client.
func (a *App) Service() *services.UserProfileService {
	return a.service
}

// Run serves HTTP, sweeps idle console sessions and logs change events until
// ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("starting server", zap.String("addr", a.cfg.AppPort), zap.String("store", a.cfg.Store.Driver))
		return a.fiber.Listen(a.cfg.AppPort)
	})
	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("shutting down server")
		return a.fiber.ShutdownWithTimeout(shutdownTimeout)
	})

	if idle := a.cfg.SessionIdleTimeout; idle > 0 {
		g.Go(func() error {
			return a.dashboards.RunSweeper(ctx, sweepInterval(idle), idle)
		})
	}

	if a.mq != nil {
		done, err := a.mq.ConsumeProfileEvents(a.logEvent)
		if err != nil {
			a.log.Error("failed to start RabbitMQ consumer", zap.Error(err))
		} else {
			g.Go(func() error {
				select {
				case <-ctx.Done():
				case <-done:
					a.log.Warn("profile event stream closed")
				}
				return nil
			})
		}
	}

	return g.Wait()
}

func sweepInterval(idle time.Duration) time.Duration {
	return max(idle/2, time.Second)
}

func (a *App) logEvent(event rabbitmq.ProfileEvent) error {
	a.log.Info("profile event",
		zap.String("type", event.Type),
		zap.String("id", event.ID),
		zap.String("email", event.Email),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

// Close releases the store and the RabbitMQ connection.
func (a *App) Close() error {
	var errs []error
	if a.mq != nil {
		errs = append(errs, a.mq.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
