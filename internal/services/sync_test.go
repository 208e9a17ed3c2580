package services

import (
	"context"
	"testing"
	"time"

	"domain-lifecycle/internal/errs"
	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/registrar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynchronizeCorrectsDivergence(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusActive, timePtr(date(2026, 6, 1)))
	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:      models.StatusActive,
		ExpiryDate:  date(2027, 6, 1),
		Nameservers: []string{"ns1.other.net", "ns2.other.net"},
		Locked:      true,
	})

	res, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.ElementsMatch(t, []string{"expiry_date", "nameservers"}, res.CorrectedFields)

	got := h.reload(rec.ID)
	assert.True(t, got.ExpiryDate.Equal(date(2027, 6, 1)))
	assert.Equal(t, models.Nameservers{"ns1.other.net", "ns2.other.net"}, got.Nameservers)
	assert.NotNil(t, got.LastSyncedAt)

	entries := h.entries(rec.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SyncTypeExpirySync, entries[0].SyncType)
	assert.Equal(t, models.OriginRegistrar, entries[0].Origin)
	assert.Contains(t, entries[0].Detail, "2026-06-01 -> 2027-06-01")
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusActive, timePtr(date(2026, 6, 1)))
	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:      models.StatusPendingRenewal,
		ExpiryDate:  date(2026, 3, 20),
		Nameservers: []string{"ns1.acme.net", "ns2.acme.net"},
		Locked:      true,
	})

	first, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first.CorrectedFields)
	after := h.reload(rec.ID)

	second, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Empty(t, second.CorrectedFields)

	again := h.reload(rec.ID)
	assert.Equal(t, after.Version, again.Version, "an in-sync domain is not rewritten")
	assert.Equal(t, after.Status, again.Status)
	assert.True(t, after.ExpiryDate.Equal(*again.ExpiryDate))
	assert.Equal(t, after.Nameservers, again.Nameservers)

	entries := h.entries(rec.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, "in sync with registrar", entries[0].Detail)
	assert.Equal(t, models.SyncTypeStatusCheck, entries[0].SyncType)
	assert.True(t, entries[0].Succeeded())
	assert.Equal(t, 2, h.reg.count("check_status"))
}

func TestSynchronizeAppliesRegistrarStatusOutsideTable(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusExpired, timePtr(date(2026, 2, 1)))
	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:      models.StatusRedemption,
		ExpiryDate:  date(2026, 2, 1),
		Nameservers: []string{"ns1.acme.net", "ns2.acme.net"},
		Locked:      true,
	})

	_, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRedemption, h.reload(rec.ID).Status)
}

func TestSynchronizeNeverRevivesCancelled(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusCancelled, timePtr(date(2025, 2, 1)))
	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:     models.StatusActive,
		ExpiryDate: date(2027, 2, 1),
		Locked:     true,
	})

	_, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.ErrorIs(t, err, errs.ErrTransition)

	got := h.reload(rec.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.True(t, got.ExpiryDate.Equal(date(2025, 2, 1)))

	entries := h.entries(rec.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SyncStatusFailure, entries[0].Status)
}

func TestSynchronizeClearsAuthCodeWhenRelocked(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusActive, timePtr(date(2026, 6, 1)))
	_, err := h.lifecycle.GenerateAuthCode(h.ctx, rec.ID)
	require.NoError(t, err)

	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:      models.StatusActive,
		ExpiryDate:  date(2026, 6, 1),
		Nameservers: []string{"ns1.acme.net", "ns2.acme.net"},
		Locked:      true,
	})
	res, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"locked", "auth_code"}, res.CorrectedFields)

	got := h.reload(rec.ID)
	assert.True(t, got.Locked)
	assert.False(t, got.HasAuthCode())
}

func TestSynchronizeRegistrarFailure(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusActive, timePtr(date(2026, 6, 1)))
	h.reg.setError(errUpstream)

	res, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.ErrorIs(t, err, errs.ErrRegistrarUnavailable)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "503")

	assert.Equal(t, int64(1), h.reload(rec.ID).Version)
	entries := h.entries(rec.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SyncStatusFailure, entries[0].Status)
	assert.Equal(t, models.SyncTypeStatusCheck, entries[0].SyncType)
}

func TestConcurrentSynchronizeConflicts(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusActive, timePtr(date(2026, 6, 1)))
	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:      models.StatusActive,
		ExpiryDate:  date(2026, 6, 1),
		Nameservers: []string{"ns1.acme.net", "ns2.acme.net"},
		Locked:      true,
	})

	entered := make(chan struct{})
	release := make(chan struct{})
	h.reg.setHook(func(ctx context.Context, op, _ string) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := h.sync.Synchronize(h.ctx, rec.ID)
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first synchronization never reached the registrar")
	}

	_, err := h.sync.Synchronize(h.ctx, rec.ID)
	assert.ErrorIs(t, err, errs.ErrConflict)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, h.reg.count("check_status"))
	assert.Len(t, h.entries(rec.ID), 1)
	assert.False(t, h.deps.Locks.Held(rec.ID))
}

func TestCancelledSynchronizeLogsFailureAndReleasesLock(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusActive, timePtr(date(2026, 6, 1)))

	entered := make(chan struct{})
	h.reg.setHook(func(ctx context.Context, op, _ string) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(h.ctx)
	done := make(chan error, 1)
	go func() {
		_, err := h.sync.Synchronize(ctx, rec.ID)
		done <- err
	}()

	<-entered
	cancel()
	err := <-done
	require.ErrorIs(t, err, errs.ErrRegistrarUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	assert.False(t, h.deps.Locks.Held(rec.ID))
	entries := h.entries(rec.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SyncStatusFailure, entries[0].Status)
	require.NotNil(t, entries[0].ErrorMessage)
	assert.Contains(t, *entries[0].ErrorMessage, "context canceled")
}

func TestSynchronizeUnknownDomain(t *testing.T) {
	h := newHarness(t)
	_, err := h.sync.Synchronize(h.ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Zero(t, h.reg.count("check_status"))
}

func TestSynchronizePendingRegistrationWithoutExpiry(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusPendingRegistration, nil)
	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:      models.StatusPendingRegistration,
		Nameservers: []string{"ns1.acme.net", "ns2.acme.net"},
		Locked:      true,
	})

	res, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.CorrectedFields)
	assert.Nil(t, h.reload(rec.ID).ExpiryDate)
}

func TestSynchronizeKeepsPendingUntilExpiryKnown(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("example", models.StatusPendingRegistration, nil)
	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:      models.StatusActive,
		Nameservers: []string{"ns1.acme.net", "ns2.acme.net"},
		Locked:      true,
	})

	res, err := h.sync.Synchronize(h.ctx, rec.ID)
	require.ErrorIs(t, err, errs.ErrTransition)
	assert.False(t, res.Success)

	got := h.reload(rec.ID)
	assert.Equal(t, models.StatusPendingRegistration, got.Status)
	assert.Nil(t, got.ExpiryDate)
	entries := h.entries(rec.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.SyncStatusFailure, entries[0].Status)

	h.reg.setStatus("example.com", registrar.StatusInfo{
		Status:      models.StatusActive,
		ExpiryDate:  date(2027, 3, 1),
		Nameservers: []string{"ns1.acme.net", "ns2.acme.net"},
		Locked:      true,
	})
	res, err = h.sync.Synchronize(h.ctx, rec.ID)
	require.NoError(t, err)
	assert.Contains(t, res.CorrectedFields, "status")
	assert.Equal(t, models.StatusActive, h.reload(rec.ID).Status)
}
