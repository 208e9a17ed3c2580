package main

import (
	"context"
	"domain-lifecycle/internal/api"
	"domain-lifecycle/internal/app"
	"domain-lifecycle/internal/config"
	"domain-lifecycle/internal/metrics"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	registry := prometheus.NewRegistry()
	if err := metrics.Init(registry); err != nil {
		return err
	}

	a, err := app.New(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	// Initialize default admin account
	if cfg.Auth.AdminPassword != "" {
		created, err := a.Auth.EnsureAdmin(context.Background(), cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
		if err != nil {
			return err
		}
		if created {
			logger.Info("admin account created", "username", cfg.Auth.AdminUsername)
		}
	} else {
		logger.Warn("auth.admin_password not set, no admin account is provisioned")
	}

	// Initialize scheduler
	sched := a.Scheduler()
	syncInterval := cfg.Sync.CheckInterval
	if !cfg.Sync.Enabled {
		syncInterval = ""
	}
	if err := sched.Start(syncInterval, cfg.Lifecycle.AdvanceInterval); err != nil {
		return err
	}
	defer sched.Stop()

	// Setup Gin
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(logger), api.RequestMetrics(), api.CORS())

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "registrars": a.Registrars.Names()})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Setup API routes
	api.SetupRoutes(r, api.NewHandler(a.Lifecycle, a.Sync, a.Sweep, a.Auth))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
