// Package app assembles the store, cache, services and ops server from a
// Config and runs them until a shutdown signal arrives.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/tally/internal/tally/cache"
	httpapi "github.com/aussiebroadwan/tally/internal/tally/http"
	"github.com/aussiebroadwan/tally/internal/tally/metrics"
	"github.com/aussiebroadwan/tally/internal/tally/service"
	"github.com/aussiebroadwan/tally/internal/tally/store"
	"github.com/aussiebroadwan/tally/internal/tally/store/drivers/postgres"
	"github.com/aussiebroadwan/tally/internal/tally/store/drivers/sqlite"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

// BuildVersion is overridden at build time with
// -ldflags "-X github.com/aussiebroadwan/tally/internal/tally/app.BuildVersion=...".
var BuildVersion = "v0.1.0"

// Services is every domain service, wired to the same store.
type Services struct {
	Users         *service.UserService
	Organizations *service.OrganizationService
	Invitations   *service.InviteService
	Subscriptions *service.SubscriptionService
	Projects      *service.ProjectService
	Budgets       *service.BudgetService
	Expenses      *service.ExpenseService
	Timesheets    *service.TimesheetService
	Activity      *service.ActivityService
	Housekeeping  *service.HousekeepingService
}

// Application encapsulates the service and all of its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	redis   *cache.Redis // nil when no cache is configured
	metrics *metrics.Metrics

	Services Services

	server *http.Server
}

// New opens the store, applies migrations and wires every service. It does
// not start anything.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tally",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initCache(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initServices(); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Store exposes the underlying store.
func (app *Application) Store() store.Store { return app.db }

// Handler returns the ops handler, for tests that drive it directly.
func (app *Application) Handler() http.Handler { return app.server.Handler }

// Run starts housekeeping and the ops server, then blocks until a signal
// arrives, ctx is cancelled or the server fails.
func (app *Application) Run(ctx context.Context) error {
	if err := app.Services.Housekeeping.Start(ctx); err != nil {
		return fmt.Errorf("start housekeeping: %w", err)
	}

	app.logger.Info("tally starting",
		slog.String("ops_addr", app.cfg.OpsAddr),
		slog.String("driver", app.cfg.DatabaseDriver),
		slog.Bool("cache", app.redis != nil),
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case <-ctx.Done():
		app.logger.Info("context cancelled")
	}

	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Shutdown stops everything in reverse start order.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down tally...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", slog.Any("error", err))
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", slog.Any("error", err))
		}
	}

	if err := app.Services.Housekeeping.Stop(); err != nil {
		app.logger.Error("error stopping housekeeping", slog.Any("error", err))
	}

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("tally stopped")
	return nil
}

func (app *Application) closeStores() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing cache", slog.Any("error", err))
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", slog.Any("error", err))
		return err
	}
	return nil
}

// initDatabase opens the configured driver and applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseDSN)
	case DriverSQLite:
		db, err = sqlite.NewStore(app.cfg.DatabaseDSN)
	default:
		return fmt.Errorf("unknown database driver %q", app.cfg.DatabaseDriver)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", slog.String("driver", app.cfg.DatabaseDriver))
	return nil
}

func (app *Application) initCache(ctx context.Context) error {
	if app.cfg.RedisAddr == "" {
		app.logger.Info("summary cache disabled")
		return nil
	}

	r, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
		TTL:      app.cfg.RedisTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	app.redis = r
	return nil
}

func (app *Application) summaries() cache.Summaries {
	if app.redis == nil {
		return cache.Noop{}
	}
	return app.redis
}

// initServices initializes all business logic services.
func (app *Application) initServices() error {
	pepper, err := cryptox.LoadPepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	s := Services{
		Users: &service.UserService{
			Store:         app.db,
			Hasher:        cryptox.NewHasher(pepper),
			ResetTokenTTL: app.cfg.ResetTokenTTL,
		},
		Organizations: &service.OrganizationService{Store: app.db},
		Invitations: &service.InviteService{
			Store:      app.db,
			Metrics:    app.metrics,
			DefaultTTL: app.cfg.InvitationTTL,
		},
		Subscriptions: &service.SubscriptionService{Store: app.db},
		Projects:      &service.ProjectService{Store: app.db},
		Budgets: &service.BudgetService{
			Store:   app.db,
			Cache:   app.summaries(),
			Metrics: app.metrics,
		},
		Expenses: &service.ExpenseService{
			Store:   app.db,
			Cache:   app.summaries(),
			Metrics: app.metrics,
		},
		Timesheets: &service.TimesheetService{Store: app.db, Metrics: app.metrics},
		Activity:   &service.ActivityService{Store: app.db},
	}
	s.Housekeeping = service.NewHousekeepingService(
		s.Invitations,
		s.Users,
		s.Subscriptions,
		app.metrics,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	app.Services = s
	return nil
}

// initHTTP initializes the ops router and server.
func (app *Application) initHTTP() {
	var cachePinger httpapi.Pinger
	if app.redis != nil {
		cachePinger = app.redis
	}

	router := httpapi.NewRouter(BuildVersion, app.db, cachePinger, app.metrics.Handler(), app.logger)
	router.ApplyRoutes()

	app.server = &http.Server{
		Addr:              app.cfg.OpsAddr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
