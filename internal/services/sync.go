package services

import (
	"context"
	"domain-lifecycle/internal/errs"
	"domain-lifecycle/internal/metrics"
	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/registrar"
	"domain-lifecycle/internal/statemachine"
	"fmt"
	"strings"
)

// SyncResult is the outcome of one synchronization
type SyncResult struct {
	DomainID        string   `json:"domain_id"`
	Success         bool     `json:"success"`
	CorrectedFields []string `json:"corrected_fields,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// SyncService reconciles local records against the registrar, which is
// authoritative for status, expiry, nameservers and lock state
type SyncService struct {
	deps *Deps
}

// NewSyncService creates a new sync service
func NewSyncService(deps *Deps) *SyncService {
	return &SyncService{deps: deps}
}

// Synchronize fetches the registrar's view of a domain and applies any
// divergence to the local record. It never retries. Exactly one sync log
// entry is written per registrar interaction.
func (s *SyncService) Synchronize(ctx context.Context, id string) (*SyncResult, error) {
	unlock, err := s.deps.acquire(id, "synchronize")
	if err != nil {
		metrics.RecordSync("conflict")
		return nil, err
	}
	defer unlock()

	rec, err := s.deps.load(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{DomainID: id}

	var info *registrar.StatusInfo
	err = s.deps.callRegistrar(ctx, rec, "check_status", func(ctx context.Context, reg registrar.Registrar) error {
		var callErr error
		info, callErr = reg.CheckStatus(ctx, rec.FQDN())
		return callErr
	})
	if err != nil {
		return s.fail(ctx, result, rec, err)
	}

	updated, corrected, err := reconcile(rec, info)
	if err != nil {
		return s.fail(ctx, result, rec, err)
	}

	syncType := models.SyncTypeStatusCheck
	if containsField(corrected, "expiry_date") {
		syncType = models.SyncTypeExpirySync
	}

	if len(corrected) == 0 {
		entry := &models.SyncLogEntry{
			DomainID:  id,
			SyncType:  syncType,
			Status:    models.SyncStatusSuccess,
			Origin:    models.OriginRegistrar,
			Actor:     ActorFrom(ctx),
			Detail:    "in sync with registrar",
			CreatedAt: s.deps.now(),
		}
		if err := s.deps.Recorder.Append(context.WithoutCancel(ctx), entry); err != nil {
			return nil, errs.Persistence(err, "failed to record sync of %s", id)
		}
		metrics.RecordSync("unchanged")
		result.Success = true
		return result, nil
	}

	now := s.deps.now()
	updated.LastSyncedAt = &now
	entry := &models.SyncLogEntry{
		SyncType: syncType,
		Origin:   models.OriginRegistrar,
		Detail:   "corrected from registrar: " + describeCorrections(rec, updated, corrected),
	}
	if err := s.deps.commit(ctx, updated, entry); err != nil {
		metrics.RecordSync("failed")
		result.Error = err.Error()
		return result, err
	}
	if updated.Status != rec.Status {
		metrics.RecordTransition(string(rec.Status), string(updated.Status), string(statemachine.KindReconcile))
	}

	s.deps.logger().Info("domain reconciled with registrar",
		"domain", rec.FQDN(),
		"corrected", strings.Join(corrected, ","))
	metrics.RecordSync("corrected")
	result.Success = true
	result.CorrectedFields = corrected
	return result, nil
}

func (s *SyncService) fail(ctx context.Context, result *SyncResult, rec *models.DomainRecord, err error) (*SyncResult, error) {
	s.deps.recordFailure(ctx, rec.ID, models.SyncTypeStatusCheck, models.OriginRegistrar, err)
	metrics.RecordSync("failed")
	result.Error = err.Error()
	return result, err
}

// reconcile returns a copy of rec carrying the registrar's values and the
// names of the fields that changed. rec itself is not modified.
func reconcile(rec *models.DomainRecord, info *registrar.StatusInfo) (*models.DomainRecord, []string, error) {
	updated := rec.Clone()
	var corrected []string

	if info.Status != rec.Status {
		if err := statemachine.Validate(statemachine.Transition{
			From: rec.Status,
			To:   info.Status,
			Kind: statemachine.KindReconcile,
		}); err != nil {
			return nil, nil, err
		}
		updated.Status = info.Status
		corrected = append(corrected, "status")
	}

	if !info.ExpiryDate.IsZero() {
		expiry := info.ExpiryDate.UTC()
		if rec.ExpiryDate == nil || !rec.ExpiryDate.Equal(expiry) {
			updated.ExpiryDate = &expiry
			corrected = append(corrected, "expiry_date")
		}
		if rec.ExpirySource != models.ExpirySourceRegistrar {
			updated.ExpirySource = models.ExpirySourceRegistrar
			corrected = append(corrected, "expiry_source")
		}
	}

	// Only a pending registration (or a cancelled domain) may lack an expiry date
	if updated.ExpiryDate == nil && updated.Status != models.StatusPendingRegistration && updated.Status != models.StatusCancelled {
		return nil, nil, errs.Transition("registrar reports %s as %s but gives no expiry date", rec.FQDN(), updated.Status)
	}

	nameservers := models.Nameservers(info.Nameservers)
	if nameservers == nil {
		nameservers = models.Nameservers{}
	}
	if !rec.Nameservers.Equal(nameservers) {
		updated.Nameservers = nameservers
		corrected = append(corrected, "nameservers")
	}

	if info.Locked != rec.Locked {
		updated.Locked = info.Locked
		corrected = append(corrected, "locked")
	}
	// A locked domain never keeps an auth code
	if updated.Locked && rec.HasAuthCode() {
		updated.AuthCode = nil
		corrected = append(corrected, "auth_code")
	}

	return updated, corrected, nil
}

func describeCorrections(before, after *models.DomainRecord, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "status":
			parts = append(parts, fmt.Sprintf("status %s -> %s", before.Status, after.Status))
		case "expiry_date":
			parts = append(parts, fmt.Sprintf("expiry_date %s -> %s", formatDate(before.ExpiryDate), formatDate(after.ExpiryDate)))
		case "nameservers":
			parts = append(parts, fmt.Sprintf("nameservers [%s] -> [%s]",
				strings.Join(before.Nameservers, " "), strings.Join(after.Nameservers, " ")))
		case "locked":
			parts = append(parts, fmt.Sprintf("locked %t -> %t", before.Locked, after.Locked))
		case "auth_code":
			parts = append(parts, "auth_code cleared")
		default:
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "; ")
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
