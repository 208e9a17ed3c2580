// Package app wires configuration into the engine's services. Both the HTTP
// server and domainctl build their object graph through New.
package app

import (
	"context"
	"domain-lifecycle/internal/config"
	"domain-lifecycle/internal/database"
	"domain-lifecycle/internal/keylock"
	"domain-lifecycle/internal/logging"
	"domain-lifecycle/internal/registrar"
	"domain-lifecycle/internal/scheduler"
	"domain-lifecycle/internal/services"
	"fmt"
	"io"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// App holds the wired services
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Registrars *registrar.Registry
	Lifecycle  *services.LifecycleService
	Sync       *services.SyncService
	Sweep      *services.SweepService
	Auth       *services.AuthService
}

// New opens the database and builds every service from cfg. Logs go to w.
func New(cfg *config.Config, w io.Writer) (*App, error) {
	logger := logging.New(w, cfg.Log.Level, cfg.Log.Format)

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Info("database initialized", "path", cfg.Database.Path)

	registry, err := BuildRegistry(cfg)
	if err != nil {
		return nil, err
	}

	deps := &services.Deps{
		Store:      database.NewStore(db),
		Recorder:   database.NewSyncLogRecorder(db),
		Registrars: registry,
		Locks:      keylock.New(),
		Logger:     logger,
	}

	var notifier services.TransferNotifier
	if cfg.Notify.Enabled {
		webhook, err := services.NewWebhookNotifier(&cfg.Notify, logger)
		if err != nil {
			return nil, err
		}
		notifier = webhook
	}

	lifecycle := services.NewLifecycleService(deps, services.LifecycleOptions{
		RenewalYears:       cfg.Lifecycle.RenewalYears,
		ListLimit:          cfg.Lifecycle.DefaultListLimit,
		DefaultRegistrar:   cfg.Lifecycle.DefaultRegistrar,
		DefaultNameservers: cfg.Lifecycle.DefaultNameservers,
	}, notifier)
	syncService := services.NewSyncService(deps)
	sweep := services.NewSweepService(deps, syncService, cfg.Sync.Workers, Windows(&cfg.Lifecycle))

	auth, err := services.NewAuthService(database.NewUserStore(db), &cfg.Auth, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Registrars: registry,
		Lifecycle:  lifecycle,
		Sync:       syncService,
		Sweep:      sweep,
		Auth:       auth,
	}, nil
}

// BuildRegistry creates an HTTP client per configured registrar
func BuildRegistry(cfg *config.Config) (*registrar.Registry, error) {
	registry := registrar.NewRegistry(cfg.Lifecycle.DefaultRegistrar)
	for _, rc := range cfg.Registrars {
		timeout, err := rc.TimeoutDuration()
		if err != nil {
			return nil, fmt.Errorf("registrar %s: %w", rc.Name, err)
		}
		registry.Register(rc.Name, registrar.NewClient(rc.Name, rc.APIURL, rc.APIKey, timeout), timeout)
	}
	return registry, nil
}

// Windows converts the configured day counts into lifecycle windows
func Windows(cfg *config.LifecycleConfig) services.Windows {
	day := 24 * time.Hour
	return services.Windows{
		Renewal:    time.Duration(cfg.RenewalWindowDays) * day,
		Grace:      time.Duration(cfg.GracePeriodDays) * day,
		Redemption: time.Duration(cfg.RedemptionDays) * day,
	}
}

// Scheduler returns a cron scheduler driving the sweep service
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.NewScheduler(a.Logger,
		func(ctx context.Context) error {
			_, err := a.Sweep.SyncAll(ctx)
			return err
		},
		func(ctx context.Context, now time.Time) error {
			_, err := a.Sweep.AdvanceLifecycle(ctx, now)
			return err
		},
	)
}

// Close releases the database
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
