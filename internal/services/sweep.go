package services

import (
	"context"
	"domain-lifecycle/internal/errs"
	"domain-lifecycle/internal/metrics"
	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/statemachine"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Windows are the time-driven lifecycle durations
type Windows struct {
	Renewal    time.Duration
	Grace      time.Duration
	Redemption time.Duration
}

// DefaultWindows returns 30 days for each window
func DefaultWindows() Windows {
	return Windows{
		Renewal:    30 * 24 * time.Hour,
		Grace:      30 * 24 * time.Hour,
		Redemption: 30 * 24 * time.Hour,
	}
}

// SweepReport summarizes one bulk run
type SweepReport struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Changed   int           `json:"changed"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	Errors    []string      `json:"errors,omitempty"`
}

type reportBuilder struct {
	mu     sync.Mutex
	report SweepReport
}

func (b *reportBuilder) add(fn func(r *SweepReport)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.report)
}

// SweepService runs bulk synchronization and time-driven lifecycle advancement
type SweepService struct {
	deps    *Deps
	sync    *SyncService
	workers int
	windows Windows
}

// NewSweepService creates a sweep service. workers bounds concurrent registrar calls.
func NewSweepService(deps *Deps, syncService *SyncService, workers int, windows Windows) *SweepService {
	if workers <= 0 {
		workers = 1
	}
	return &SweepService{deps: deps, sync: syncService, workers: workers, windows: windows}
}

// SyncAll synchronizes every non-cancelled domain. Domains busy with another
// operation are skipped and counted; one domain's failure never stops the run.
func (s *SweepService) SyncAll(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	domains, err := s.deps.Store.ListNotInStatus(ctx, models.StatusCancelled)
	if err != nil {
		return nil, errs.Persistence(err, "failed to list domains for sync")
	}

	b := &reportBuilder{report: SweepReport{Total: len(domains)}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i := range domains {
		id := domains[i].ID
		name := domains[i].FQDN()
		g.Go(func() error {
			if gctx.Err() != nil {
				b.add(func(r *SweepReport) { r.Skipped++ })
				return nil
			}
			res, err := s.sync.Synchronize(gctx, id)
			switch {
			case err == nil:
				b.add(func(r *SweepReport) {
					r.Succeeded++
					if len(res.CorrectedFields) > 0 {
						r.Changed++
					}
				})
			case errors.Is(err, errs.ErrConflict):
				b.add(func(r *SweepReport) { r.Skipped++ })
			default:
				b.add(func(r *SweepReport) {
					r.Failed++
					r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", name, err))
				})
			}
			return nil
		})
	}
	_ = g.Wait()

	b.report.Duration = time.Since(start)
	s.deps.logger().Info("sync sweep finished",
		"total", b.report.Total,
		"succeeded", b.report.Succeeded,
		"changed", b.report.Changed,
		"failed", b.report.Failed,
		"skipped", b.report.Skipped,
		"duration", b.report.Duration)
	return &b.report, ctx.Err()
}

// AdvanceLifecycle applies time-driven transitions as of now. Each step is
// validated by the state machine and committed with its own scheduler entry.
func (s *SweepService) AdvanceLifecycle(ctx context.Context, now time.Time) (*SweepReport, error) {
	start := time.Now()
	now = now.UTC()
	domains, err := s.deps.Store.ListNotInStatus(ctx, models.StatusCancelled)
	if err != nil {
		return nil, errs.Persistence(err, "failed to list domains for lifecycle advancement")
	}

	report := &SweepReport{Total: len(domains)}
	for i := range domains {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		if next := NextAutomaticStatus(&domains[i], now, s.windows); next == "" {
			continue
		}

		steps, err := s.advanceOne(ctx, domains[i].ID, now)
		switch {
		case err == nil:
			report.Succeeded++
			if steps > 0 {
				report.Changed++
			}
		case errors.Is(err, errs.ErrConflict):
			report.Skipped++
		default:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", domains[i].FQDN(), err))
		}
	}

	report.Duration = time.Since(start)
	s.deps.logger().Info("lifecycle advancement finished",
		"total", report.Total,
		"changed", report.Changed,
		"failed", report.Failed,
		"skipped", report.Skipped)
	return report, nil
}

// advanceOne walks one domain forward as far as now allows, reloading under
// the per-domain lock so concurrent changes are respected.
func (s *SweepService) advanceOne(ctx context.Context, id string, now time.Time) (int, error) {
	unlock, err := s.deps.acquire(id, "lifecycle advancement")
	if err != nil {
		return 0, err
	}
	defer unlock()

	rec, err := s.deps.load(ctx, id)
	if err != nil {
		return 0, err
	}

	steps := 0
	for {
		next := NextAutomaticStatus(rec, now, s.windows)
		if next == "" {
			return steps, nil
		}
		if err := statemachine.ValidateTransition(rec.Status, next); err != nil {
			return steps, err
		}

		updated := rec.Clone()
		updated.Status = next
		entry := &models.SyncLogEntry{
			SyncType: models.SyncTypeStatusCheck,
			Origin:   models.OriginScheduler,
			Detail:   fmt.Sprintf("status %s -> %s (expiry %s)", rec.Status, next, formatDate(rec.ExpiryDate)),
		}
		if err := s.deps.commit(ctx, updated, entry); err != nil {
			return steps, err
		}
		metrics.RecordTransition(string(rec.Status), string(next), string(statemachine.KindStandard))
		s.deps.logger().Info("lifecycle advanced",
			"domain", rec.FQDN(),
			"from", rec.Status,
			"to", next)

		rec = updated
		steps++
	}
}

// NextAutomaticStatus returns the status rec moves to on its own at now, or
// "" when it stays put. Domains without an expiry date never move.
func NextAutomaticStatus(rec *models.DomainRecord, now time.Time, w Windows) models.Status {
	if rec.ExpiryDate == nil {
		return ""
	}
	expiry := rec.ExpiryDate.UTC()

	switch rec.Status {
	case models.StatusActive:
		if expiry.Before(now) {
			return models.StatusExpired
		}
		if !expiry.After(now.Add(w.Renewal)) {
			return models.StatusPendingRenewal
		}
	case models.StatusPendingRenewal:
		if expiry.Before(now) {
			return models.StatusExpired
		}
	case models.StatusExpired:
		return models.StatusGracePeriod
	case models.StatusGracePeriod:
		if now.After(expiry.Add(w.Grace)) {
			return models.StatusRedemption
		}
	case models.StatusRedemption:
		if now.After(expiry.Add(w.Grace + w.Redemption)) {
			return models.StatusCancelled
		}
	}
	return ""
}
