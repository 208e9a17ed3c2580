package services

import (
	"context"
	"domain-lifecycle/internal/database"
	"domain-lifecycle/internal/errs"
	"domain-lifecycle/internal/keylock"
	"domain-lifecycle/internal/metrics"
	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/registrar"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Deps are the collaborators shared by the sync, lifecycle and sweep services.
// One keylock.Registry must be shared by all of them so that every mutating
// operation on a domain id excludes every other.
type Deps struct {
	Store      *database.Store
	Recorder   *database.SyncLogRecorder
	Registrars *registrar.Registry
	Locks      *keylock.Registry
	Logger     *slog.Logger
	Now        func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

type actorKey struct{}

// WithActor tags ctx with the admin username responsible for an operation
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored in ctx, or models.SystemActor
func ActorFrom(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return models.SystemActor
}

// acquire takes the per-domain lock or fails with a ConflictError
func (d *Deps) acquire(id, operation string) (func(), error) {
	unlock, ok := d.Locks.TryLock(id)
	if !ok {
		return nil, errs.Conflict("%s refused: another operation is in flight for domain %s", operation, id)
	}
	return unlock, nil
}

// load fetches a record and maps store errors onto the taxonomy
func (d *Deps) load(ctx context.Context, id string) (*models.DomainRecord, error) {
	rec, err := d.Store.GetDomain(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, errs.NotFound("domain %s not found", id)
		}
		return nil, errs.Persistence(err, "failed to load domain %s", id)
	}
	return rec, nil
}

// callRegistrar runs fn against the record's registrar under that registrar's
// timeout. Failures come back as RegistrarUnavailable with the upstream message kept.
func (d *Deps) callRegistrar(ctx context.Context, rec *models.DomainRecord, operation string, fn func(context.Context, registrar.Registrar) error) error {
	reg, err := d.Registrars.Get(rec.RegistrarName)
	if err != nil {
		return errs.RegistrarUnavailable(err, "%s %s", operation, rec.FQDN())
	}

	callCtx, cancel := context.WithTimeout(ctx, d.Registrars.Timeout(rec.RegistrarName))
	defer cancel()

	start := time.Now()
	err = fn(callCtx, reg)
	metrics.ObserveRegistrarCall(rec.RegistrarName, operation, err, time.Since(start))
	if err != nil {
		d.logger().Warn("registrar call failed",
			"operation", operation,
			"domain", rec.FQDN(),
			"registrar", rec.RegistrarName,
			"error", err)
		return errs.RegistrarUnavailable(err, "%s %s", operation, rec.FQDN())
	}
	return nil
}

// recordFailure appends a failure entry on its own. It ignores caller
// cancellation so a cancelled operation still leaves its audit row.
func (d *Deps) recordFailure(ctx context.Context, domainID string, syncType models.SyncType, origin models.SyncOrigin, cause error) {
	msg := cause.Error()
	entry := &models.SyncLogEntry{
		DomainID:     domainID,
		SyncType:     syncType,
		Status:       models.SyncStatusFailure,
		Origin:       origin,
		Actor:        ActorFrom(ctx),
		ErrorMessage: &msg,
		CreatedAt:    d.now(),
	}
	if err := d.Recorder.Append(context.WithoutCancel(ctx), entry); err != nil {
		d.logger().Error("failed to record sync failure",
			"domain_id", domainID,
			"sync_type", syncType,
			"error", err)
	}
}

// commit writes rec and its success entry in one transaction. When the write
// fails, a failure entry is recorded instead so the operation still leaves
// exactly one audit row.
func (d *Deps) commit(ctx context.Context, rec *models.DomainRecord, entry *models.SyncLogEntry) error {
	entry.Status = models.SyncStatusSuccess
	entry.Actor = ActorFrom(ctx)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = d.now()
	}

	err := d.Store.ApplyChange(context.WithoutCancel(ctx), rec, entry)
	if err == nil {
		return nil
	}

	var wrapped error
	switch {
	case errors.Is(err, database.ErrStaleWrite):
		wrapped = errs.Conflict("domain %s changed concurrently, retry", rec.ID)
	case errors.Is(err, database.ErrNotFound):
		wrapped = errs.NotFound("domain %s not found", rec.ID)
	default:
		wrapped = errs.Persistence(err, "failed to save domain %s", rec.ID)
	}
	d.recordFailure(ctx, rec.ID, entry.SyncType, entry.Origin,
		fmt.Errorf("%s not persisted: %w", entry.Detail, wrapped))
	return wrapped
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.UTC().Format("2006-01-02")
}
