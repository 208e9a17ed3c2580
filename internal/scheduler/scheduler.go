package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler handles scheduled tasks
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	syncFn  func(ctx context.Context) error
	advance func(ctx context.Context, now time.Time) error
}

// NewScheduler creates a new scheduler. syncFn runs the registrar sweep,
// advanceFn the time-driven lifecycle transitions.
func NewScheduler(logger *slog.Logger, syncFn func(ctx context.Context) error, advanceFn func(ctx context.Context, now time.Time) error) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		syncFn:  syncFn,
		advance: advanceFn,
	}
}

// Start registers the jobs and starts the scheduler. An empty syncInterval disables the registrar sweep.
func (s *Scheduler) Start(syncInterval, advanceInterval string) error {
	if syncInterval != "" && s.syncFn != nil {
		_, err := s.cron.AddFunc(syncInterval, func() {
			s.logger.Info("starting scheduled registrar sync")
			if err := s.syncFn(s.ctx); err != nil {
				s.logger.Error("scheduled registrar sync failed", "error", err)
				return
			}
			s.logger.Info("scheduled registrar sync completed")
		})
		if err != nil {
			return err
		}
	}

	if advanceInterval != "" && s.advance != nil {
		_, err := s.cron.AddFunc(advanceInterval, func() {
			if err := s.advance(s.ctx, time.Now().UTC()); err != nil {
				s.logger.Error("scheduled lifecycle advancement failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "sync_interval", syncInterval, "advance_interval", advanceInterval)
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
