package services

import (
	"context"
	"testing"
	"time"

	"domain-lifecycle/internal/models"
	"domain-lifecycle/internal/registrar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextAutomaticStatus(t *testing.T) {
	t.Parallel()

	now := date(2026, 3, 1)
	w := DefaultWindows()

	tests := []struct {
		name   string
		status models.Status
		expiry *time.Time
		want   models.Status
	}{
		{"active far from expiry", models.StatusActive, timePtr(date(2026, 9, 1)), ""},
		{"active inside renewal window", models.StatusActive, timePtr(date(2026, 3, 20)), models.StatusPendingRenewal},
		{"active at window edge", models.StatusActive, timePtr(date(2026, 3, 31)), models.StatusPendingRenewal},
		{"active past expiry", models.StatusActive, timePtr(date(2026, 2, 20)), models.StatusExpired},
		{"pending renewal before expiry", models.StatusPendingRenewal, timePtr(date(2026, 3, 10)), ""},
		{"pending renewal past expiry", models.StatusPendingRenewal, timePtr(date(2026, 2, 27)), models.StatusExpired},
		{"expired", models.StatusExpired, timePtr(date(2026, 2, 27)), models.StatusGracePeriod},
		{"grace still open", models.StatusGracePeriod, timePtr(date(2026, 2, 10)), ""},
		{"grace exhausted", models.StatusGracePeriod, timePtr(date(2026, 1, 10)), models.StatusRedemption},
		{"redemption still open", models.StatusRedemption, timePtr(date(2026, 1, 10)), ""},
		{"redemption exhausted", models.StatusRedemption, timePtr(date(2025, 12, 1)), models.StatusCancelled},
		{"no expiry", models.StatusActive, nil, ""},
		{"transfer out is left alone", models.StatusTransferOut, timePtr(date(2025, 1, 1)), ""},
		{"cancelled", models.StatusCancelled, timePtr(date(2024, 1, 1)), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.DomainRecord{Status: tt.status, ExpiryDate: tt.expiry}
			assert.Equal(t, tt.want, NextAutomaticStatus(rec, now, w))
		})
	}
}

func TestAdvanceLifecycle(t *testing.T) {
	h := newHarness(t)
	now := date(2026, 3, 1)

	renewing := h.seed("renewing", models.StatusActive, timePtr(date(2026, 3, 15)))
	lapsed := h.seed("lapsed", models.StatusActive, timePtr(date(2026, 2, 25)))
	redeem := h.seed("redeem", models.StatusGracePeriod, timePtr(date(2026, 1, 5)))
	dropped := h.seed("dropped", models.StatusRedemption, timePtr(date(2025, 11, 1)))
	healthy := h.seed("healthy", models.StatusActive, timePtr(date(2027, 1, 1)))

	report, err := h.sweep.AdvanceLifecycle(h.ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Total)
	assert.Equal(t, 4, report.Changed)
	assert.Zero(t, report.Failed)

	assert.Equal(t, models.StatusPendingRenewal, h.reload(renewing.ID).Status)
	assert.Equal(t, models.StatusGracePeriod, h.reload(lapsed.ID).Status)
	assert.Equal(t, models.StatusRedemption, h.reload(redeem.ID).Status)
	assert.Equal(t, models.StatusCancelled, h.reload(dropped.ID).Status)
	assert.Equal(t, models.StatusActive, h.reload(healthy.ID).Status)

	steps := h.entries(lapsed.ID)
	require.Len(t, steps, 2, "one entry per transition")
	assert.Contains(t, steps[1].Detail, "active -> expired")
	assert.Contains(t, steps[0].Detail, "expired -> grace_period")
	for _, e := range steps {
		assert.Equal(t, models.OriginScheduler, e.Origin)
		assert.Equal(t, models.SyncTypeStatusCheck, e.SyncType)
		assert.Equal(t, models.SystemActor, e.Actor)
	}
	assert.Empty(t, h.entries(healthy.ID))

	again, err := h.sweep.AdvanceLifecycle(h.ctx, now)
	require.NoError(t, err)
	assert.Zero(t, again.Changed, "a second run at the same instant is a no-op")
	assert.Equal(t, 4, again.Total, "cancelled domains are no longer considered")
}

func TestAdvanceLifecycleSkipsBusyDomain(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("busy", models.StatusActive, timePtr(date(2026, 2, 1)))

	unlock, ok := h.deps.Locks.TryLock(rec.ID)
	require.True(t, ok)
	report, err := h.sweep.AdvanceLifecycle(h.ctx, date(2026, 3, 1))
	unlock()

	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, models.StatusActive, h.reload(rec.ID).Status)
}

func TestSyncAll(t *testing.T) {
	h := newHarness(t)
	ok := h.seed("ok", models.StatusActive, timePtr(date(2026, 9, 1)))
	moved := h.seed("moved", models.StatusActive, timePtr(date(2026, 9, 1)))
	broken := h.seed("broken", models.StatusActive, timePtr(date(2026, 9, 1)))
	gone := h.seed("gone", models.StatusCancelled, timePtr(date(2024, 9, 1)))

	ns := []string{"ns1.acme.net", "ns2.acme.net"}
	h.reg.setStatus("ok.com", registrar.StatusInfo{Status: models.StatusActive, ExpiryDate: date(2026, 9, 1), Nameservers: ns, Locked: true})
	h.reg.setStatus("moved.com", registrar.StatusInfo{Status: models.StatusActive, ExpiryDate: date(2027, 9, 1), Nameservers: ns, Locked: true})

	report, err := h.sweep.SyncAll(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Changed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "broken.com")

	assert.True(t, h.reload(moved.ID).ExpiryDate.Equal(date(2027, 9, 1)))
	assert.Len(t, h.entries(ok.ID), 1)
	assert.Len(t, h.entries(broken.ID), 1)
	assert.Empty(t, h.entries(gone.ID))
	assert.Equal(t, 3, h.reg.count("check_status"))
	assert.Zero(t, h.deps.Locks.Len())
}

func TestSyncAllSkipsBusyDomain(t *testing.T) {
	h := newHarness(t)
	rec := h.seed("busy", models.StatusActive, timePtr(date(2026, 9, 1)))

	unlock, ok := h.deps.Locks.TryLock(rec.ID)
	require.True(t, ok)
	defer unlock()

	report, err := h.sweep.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, h.reg.count("check_status"))
}
