package services

import (
	"context"
	"domain-lifecycle/internal/database"
	"domain-lifecycle/internal/errs"
	"domain-lifecycle/internal/logging"
	"domain-lifecycle/internal/metrics"
	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/registrar"
	"domain-lifecycle/internal/statemachine"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	labelPattern     = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	extensionPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)
)

// LifecycleOptions holds provider rules for lifecycle operations
type LifecycleOptions struct {
	RenewalYears       []int
	ListLimit          int
	DefaultRegistrar   string
	DefaultNameservers []string
}

// LifecycleService orchestrates every mutation of a domain record. Its
// exported methods are the command/query surface offered to the presentation layer.
type LifecycleService struct {
	deps     *Deps
	opts     LifecycleOptions
	notifier TransferNotifier
}

// NewLifecycleService creates a new lifecycle service. A nil notifier disables transfer notifications.
func NewLifecycleService(deps *Deps, opts LifecycleOptions, notifier TransferNotifier) *LifecycleService {
	if len(opts.RenewalYears) == 0 {
		opts.RenewalYears = []int{1, 2, 3, 5}
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 100
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &LifecycleService{deps: deps, opts: opts, notifier: notifier}
}

// RegisterInput describes a completed registration or an incoming transfer
type RegisterInput struct {
	DomainName    string   `json:"domain_name" binding:"required"`
	Extension     string   `json:"extension"`
	Owner         string   `json:"owner" binding:"required"`
	RegistrarName string   `json:"registrar_name"`
	Nameservers   []string `json:"nameservers"`
	AutoRenew     bool     `json:"auto_renew"`
	TransferIn    bool     `json:"transfer_in"`

	// ExpiryDate is the expiry the losing registrar reported; required with TransferIn
	ExpiryDate *time.Time `json:"expiry_date"`
}

// RegisterDomain creates the record for a domain whose registration request
// completed (pending_registration) or whose incoming transfer began (transfer_in).
func (s *LifecycleService) RegisterDomain(ctx context.Context, in RegisterInput) (*models.DomainRecord, error) {
	label, ext, err := splitDomain(in.DomainName, in.Extension)
	if err != nil {
		return nil, err
	}
	owner := strings.TrimSpace(in.Owner)
	if owner == "" {
		return nil, errs.Validation("owner is required")
	}

	registrarName := strings.TrimSpace(in.RegistrarName)
	if registrarName == "" {
		registrarName = s.opts.DefaultRegistrar
	}
	if registrarName == "" {
		return nil, errs.Validation("registrar_name is required")
	}
	if !s.deps.Registrars.Has(registrarName) {
		return nil, errs.Validation("registrar %q is not configured", registrarName)
	}

	nameservers := in.Nameservers
	if len(nameservers) == 0 {
		nameservers = s.opts.DefaultNameservers
	}
	ns := make(models.Nameservers, 0, len(nameservers))
	for _, n := range nameservers {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			return nil, errs.Validation("nameservers must not contain empty entries")
		}
		ns = append(ns, n)
	}

	status := models.StatusPendingRegistration
	var (
		expiry *time.Time
		source models.ExpirySource
	)
	switch {
	case in.TransferIn:
		if in.ExpiryDate == nil || in.ExpiryDate.IsZero() {
			return nil, errs.Validation("expiry_date is required for an incoming transfer")
		}
		e := in.ExpiryDate.UTC()
		expiry, source = &e, models.ExpirySourceAdminOverride
		status = models.StatusTransferIn
	case in.ExpiryDate != nil:
		return nil, errs.Validation("expiry_date is only accepted for an incoming transfer")
	}

	rec := &models.DomainRecord{
		DomainName:       label,
		Extension:        ext,
		Owner:            owner,
		Status:           status,
		RegistrationDate: s.deps.now(),
		ExpiryDate:       expiry,
		ExpirySource:     source,
		AutoRenew:        in.AutoRenew,
		Nameservers:      ns,
		Locked:           true,
		RegistrarName:    registrarName,
	}
	if err := s.deps.Store.CreateDomain(ctx, rec); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, errs.Conflict("domain %s.%s already exists", label, ext)
		}
		return nil, errs.Persistence(err, "failed to create domain %s.%s", label, ext)
	}

	s.deps.logger().Info("domain record created", "domain", rec.FQDN(), "status", rec.Status, "id", rec.ID)
	return rec, nil
}

// GetDomain returns a single record
func (s *LifecycleService) GetDomain(ctx context.Context, id string) (*models.DomainRecord, error) {
	return s.deps.load(ctx, id)
}

// ListDomains returns records, optionally only those in one status
func (s *LifecycleService) ListDomains(ctx context.Context, statusFilter *models.Status) ([]models.DomainRecord, error) {
	if statusFilter != nil && !statusFilter.Valid() {
		return nil, errs.Validation("unknown status filter %q", *statusFilter)
	}
	domains, err := s.deps.Store.ListDomains(ctx, database.DomainFilter{Status: statusFilter})
	if err != nil {
		return nil, errs.Persistence(err, "failed to list domains")
	}
	return domains, nil
}

// ListSyncLogs returns audit entries newest first, optionally for one domain
func (s *LifecycleService) ListSyncLogs(ctx context.Context, domainID string) ([]models.SyncLogEntry, error) {
	if domainID != "" {
		if _, err := s.deps.load(ctx, domainID); err != nil {
			return nil, err
		}
	}
	entries, err := s.deps.Recorder.List(ctx, domainID, s.opts.ListLimit)
	if err != nil {
		return nil, errs.Persistence(err, "failed to list sync logs")
	}
	return entries, nil
}

// AuditReport is the outcome of verifying the sync log hash chain
type AuditReport struct {
	Intact   bool   `json:"intact"`
	Verified int64  `json:"verified"`
	Problem  string `json:"problem,omitempty"`
}

// VerifySyncLog recomputes the sync log hash chain. A broken chain is
// reported in the result, not as an error.
func (s *LifecycleService) VerifySyncLog(ctx context.Context) (*AuditReport, error) {
	n, err := s.deps.Recorder.Verify(ctx)
	switch {
	case err == nil:
		return &AuditReport{Intact: true, Verified: n}, nil
	case errors.Is(err, database.ErrChainBroken):
		s.deps.logger().Error("sync log chain broken", "verified", n, "error", err)
		return &AuditReport{Verified: n, Problem: err.Error()}, nil
	default:
		return nil, errs.Persistence(err, "failed to verify sync log")
	}
}

// RenewDomain extends the registration at the registrar and, on success,
// stores the registrar's new expiry and reactivates a lapsed domain.
func (s *LifecycleService) RenewDomain(ctx context.Context, id string, years int) (*models.DomainRecord, error) {
	if !s.yearsAllowed(years) {
		return nil, errs.Validation("renewal period must be one of %v years, got %d", s.opts.RenewalYears, years)
	}

	unlock, err := s.deps.acquire(id, "renew")
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.deps.load(ctx, id)
	if err != nil {
		return nil, err
	}

	reactivate := false
	switch rec.Status {
	case models.StatusActive:
	case models.StatusPendingRenewal, models.StatusExpired, models.StatusGracePeriod, models.StatusRedemption:
		if err := statemachine.ValidateTransition(rec.Status, models.StatusActive); err != nil {
			return nil, err
		}
		reactivate = true
	default:
		return nil, errs.Validation("domain %s cannot be renewed while %s", rec.FQDN(), rec.Status)
	}

	var result *registrar.RenewResult
	err = s.deps.callRegistrar(ctx, rec, "renew", func(ctx context.Context, reg registrar.Registrar) error {
		var callErr error
		result, callErr = reg.Renew(ctx, rec.FQDN(), years)
		return callErr
	})
	if err != nil {
		s.deps.recordFailure(ctx, rec.ID, models.SyncTypeRenew, models.OriginRegistrar, err)
		return nil, err
	}

	updated := rec.Clone()
	expiry := result.NewExpiryDate.UTC()
	updated.ExpiryDate = &expiry
	updated.ExpirySource = models.ExpirySourceRegistrar
	if reactivate {
		updated.Status = models.StatusActive
	}

	entry := &models.SyncLogEntry{
		SyncType: models.SyncTypeRenew,
		Origin:   models.OriginRegistrar,
		Detail: fmt.Sprintf("renewed %d year(s): expiry %s -> %s",
			years, formatDate(rec.ExpiryDate), formatDate(updated.ExpiryDate)),
	}
	if reactivate {
		entry.Detail += fmt.Sprintf("; status %s -> %s", rec.Status, updated.Status)
	}
	if err := s.deps.commit(ctx, updated, entry); err != nil {
		return nil, err
	}
	if reactivate {
		metrics.RecordTransition(string(rec.Status), string(updated.Status), string(statemachine.KindStandard))
	}

	s.deps.logger().Info("domain renewed",
		"domain", rec.FQDN(),
		"years", years,
		"expiry", formatDate(updated.ExpiryDate))
	return updated, nil
}

// OverrideExpiryDate sets the expiry date locally without asking the
// registrar. The change is recorded as administratively asserted.
func (s *LifecycleService) OverrideExpiryDate(ctx context.Context, id string, newExpiry time.Time, reason string) (*models.DomainRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errs.Validation("a reason is required to override the expiry date")
	}
	if newExpiry.IsZero() {
		return nil, errs.Validation("expiry date is required")
	}

	unlock, err := s.deps.acquire(id, "override expiry")
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.deps.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if statemachine.IsTerminal(rec.Status) {
		return nil, errs.Validation("domain %s is %s, its expiry date is frozen", rec.FQDN(), rec.Status)
	}

	updated := rec.Clone()
	expiry := newExpiry.UTC()
	updated.ExpiryDate = &expiry
	updated.ExpirySource = models.ExpirySourceAdminOverride

	entry := &models.SyncLogEntry{
		SyncType: models.SyncTypeExpirySync,
		Origin:   models.OriginAdminOverride,
		Detail: fmt.Sprintf("expiry overridden %s -> %s (not registrar-confirmed): %s",
			formatDate(rec.ExpiryDate), formatDate(updated.ExpiryDate), reason),
	}
	if err := s.deps.commit(ctx, updated, entry); err != nil {
		return nil, err
	}

	s.deps.logger().Warn("expiry date overridden",
		"domain", rec.FQDN(),
		"actor", ActorFrom(ctx),
		"expiry", formatDate(updated.ExpiryDate),
		"reason", reason)
	return updated, nil
}

// UpdateDomainStatus applies an administrative status change that the
// lifecycle table permits. reason may be empty but is still recorded.
func (s *LifecycleService) UpdateDomainStatus(ctx context.Context, id string, newStatus models.Status, reason string) (*models.DomainRecord, error) {
	return s.changeStatus(ctx, id, newStatus, reason, statemachine.KindStandard)
}

// ForceDomainStatus is the administrative escape hatch: any change except
// leaving a terminal state, tagged as forced and requiring a reason.
func (s *LifecycleService) ForceDomainStatus(ctx context.Context, id string, newStatus models.Status, reason string) (*models.DomainRecord, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errs.Validation("a reason is required to force a status change")
	}
	return s.changeStatus(ctx, id, newStatus, reason, statemachine.KindForced)
}

func (s *LifecycleService) changeStatus(ctx context.Context, id string, newStatus models.Status, reason string, kind statemachine.Kind) (*models.DomainRecord, error) {
	if !newStatus.Valid() {
		return nil, errs.Validation("unknown status %q", newStatus)
	}
	reason = strings.TrimSpace(reason)

	unlock, err := s.deps.acquire(id, "status change")
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.deps.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := statemachine.Validate(statemachine.Transition{From: rec.Status, To: newStatus, Kind: kind}); err != nil {
		return nil, err
	}
	if rec.ExpiryDate == nil && newStatus != models.StatusPendingRegistration && newStatus != models.StatusCancelled {
		return nil, errs.Validation("domain %s has no expiry date yet; synchronize or override it first", rec.FQDN())
	}

	updated := rec.Clone()
	updated.Status = newStatus

	detail := fmt.Sprintf("status %s -> %s", rec.Status, newStatus)
	if kind == statemachine.KindForced {
		detail += " (forced)"
	}
	if reason != "" {
		detail += ": " + reason
	}
	entry := &models.SyncLogEntry{
		SyncType: models.SyncTypeStatusCheck,
		Origin:   models.OriginAdminOverride,
		Detail:   detail,
	}
	if err := s.deps.commit(ctx, updated, entry); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(rec.Status), string(newStatus), string(kind))

	s.deps.logger().Info("domain status changed",
		"domain", rec.FQDN(),
		"from", rec.Status,
		"to", newStatus,
		"kind", kind,
		"actor", ActorFrom(ctx))
	return updated, nil
}

// GenerateAuthCode asks the registrar for a transfer authorization code.
// Only active domains may request one; the registrar unlocks the domain as it issues it.
func (s *LifecycleService) GenerateAuthCode(ctx context.Context, id string) (string, error) {
	unlock, err := s.deps.acquire(id, "auth code generation")
	if err != nil {
		return "", err
	}
	defer unlock()

	rec, err := s.deps.load(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.Status != models.StatusActive {
		return "", errs.Validation("auth code can only be generated for an active domain, %s is %s", rec.FQDN(), rec.Status)
	}

	code, err := s.unlockAtRegistrar(ctx, rec)
	if err != nil {
		return "", err
	}

	updated := rec.Clone()
	updated.AuthCode = &code
	updated.Locked = false

	entry := &models.SyncLogEntry{
		SyncType: models.SyncTypeTransfer,
		Origin:   models.OriginRegistrar,
		Detail:   "auth code issued, transfer lock removed",
	}
	if err := s.deps.commit(ctx, updated, entry); err != nil {
		return "", err
	}

	s.deps.logger().Info("auth code generated",
		"domain", rec.FQDN(),
		"actor", ActorFrom(ctx),
		logging.Secret("auth_code", code))
	return code, nil
}

// InitiateTransferOut unlocks the domain at the registrar, moves it to
// transfer_out and hands the fresh auth code to the notification collaborator.
func (s *LifecycleService) InitiateTransferOut(ctx context.Context, id string) (*models.DomainRecord, error) {
	unlock, err := s.deps.acquire(id, "transfer out")
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.deps.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := statemachine.ValidateTransition(rec.Status, models.StatusTransferOut); err != nil {
		return nil, err
	}

	code, err := s.unlockAtRegistrar(ctx, rec)
	if err != nil {
		return nil, err
	}

	updated := rec.Clone()
	updated.AuthCode = &code
	updated.Locked = false
	updated.Status = models.StatusTransferOut

	entry := &models.SyncLogEntry{
		SyncType: models.SyncTypeTransfer,
		Origin:   models.OriginRegistrar,
		Detail:   fmt.Sprintf("transfer out initiated: status %s -> %s, transfer lock removed", rec.Status, updated.Status),
	}
	if err := s.deps.commit(ctx, updated, entry); err != nil {
		return nil, err
	}
	metrics.RecordTransition(string(rec.Status), string(updated.Status), string(statemachine.KindStandard))

	// Release the domain before the webhook call
	unlock()
	if err := s.notifier.NotifyTransferOut(ctx, updated, code); err != nil {
		s.deps.logger().Error("transfer notification failed",
			"domain", updated.FQDN(),
			"owner", updated.Owner,
			"error", err)
	}

	s.deps.logger().Info("transfer out initiated", "domain", updated.FQDN(), "actor", ActorFrom(ctx))
	return updated, nil
}

// unlockAtRegistrar requests an auth code, logging a transfer failure entry when the registrar refuses
func (s *LifecycleService) unlockAtRegistrar(ctx context.Context, rec *models.DomainRecord) (string, error) {
	var result *registrar.UnlockResult
	err := s.deps.callRegistrar(ctx, rec, "unlock_for_transfer", func(ctx context.Context, reg registrar.Registrar) error {
		var callErr error
		result, callErr = reg.UnlockForTransfer(ctx, rec.FQDN())
		return callErr
	})
	if err != nil {
		s.deps.recordFailure(ctx, rec.ID, models.SyncTypeTransfer, models.OriginRegistrar, err)
		return "", err
	}
	return result.AuthCode, nil
}

// AllowedRenewalYears returns the provider's renewal periods
func (s *LifecycleService) AllowedRenewalYears() []int {
	return append([]int(nil), s.opts.RenewalYears...)
}

func (s *LifecycleService) yearsAllowed(years int) bool {
	for _, y := range s.opts.RenewalYears {
		if y == years {
			return true
		}
	}
	return false
}

// splitDomain normalizes a name/extension pair. A full name like
// "example.co.uk" with an empty extension splits at the first dot.
func splitDomain(name, extension string) (string, string, error) {
	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	extension = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(extension), "."))

	if extension == "" {
		idx := strings.Index(name, ".")
		if idx < 0 {
			return "", "", errs.Validation("domain %q has no extension", name)
		}
		name, extension = name[:idx], name[idx+1:]
	} else {
		name = strings.TrimSuffix(name, "."+extension)
	}

	if !labelPattern.MatchString(name) {
		return "", "", errs.Validation("invalid domain name %q", name)
	}
	if !extensionPattern.MatchString(extension) {
		return "", "", errs.Validation("invalid extension %q", extension)
	}
	return name, extension, nil
}
