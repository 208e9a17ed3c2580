package statemachine

import (
	"testing"

	"domain-lifecycle/internal/errs"
	"domain-lifecycle/internal/models"

	"github.com/stretchr/testify/assert"
)

type pair struct{ from, to models.Status }

var table = map[pair]bool{
	{models.StatusPendingRegistration, models.StatusActive}: true,
	{models.StatusActive, models.StatusPendingRenewal}:      true,
	{models.StatusPendingRenewal, models.StatusActive}:      true,
	{models.StatusActive, models.StatusExpired}:             true,
	{models.StatusPendingRenewal, models.StatusExpired}:     true,
	{models.StatusExpired, models.StatusGracePeriod}:        true,
	{models.StatusGracePeriod, models.StatusRedemption}:     true,
	{models.StatusRedemption, models.StatusCancelled}:       true,
	{models.StatusExpired, models.StatusActive}:             true,
	{models.StatusGracePeriod, models.StatusActive}:         true,
	{models.StatusRedemption, models.StatusActive}:          true,
	{models.StatusActive, models.StatusTransferOut}:         true,
	{models.StatusTransferOut, models.StatusActive}:         true,
	{models.StatusTransferOut, models.StatusCancelled}:      true,
	{models.StatusTransferIn, models.StatusActive}:          true,
}

func TestValidateTransitionExhaustive(t *testing.T) {
	t.Parallel()

	for _, from := range models.AllStatuses {
		for _, to := range models.AllStatuses {
			err := ValidateTransition(from, to)
			if table[pair{from, to}] {
				assert.NoError(t, err, "%s -> %s should be legal", from, to)
			} else {
				assert.ErrorIs(t, err, errs.ErrTransition, "%s -> %s should be rejected", from, to)
			}
		}
	}
}

func TestValidateTransitionUnknownStatus(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, ValidateTransition("parked", models.StatusActive), errs.ErrTransition)
	assert.ErrorIs(t, ValidateTransition(models.StatusActive, "parked"), errs.ErrTransition)
}

func TestValidateKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tr      Transition
		wantErr bool
	}{
		{"standard legal", Transition{models.StatusActive, models.StatusExpired, KindStandard}, false},
		{"standard illegal", Transition{models.StatusActive, models.StatusCancelled, KindStandard}, true},
		{"empty kind is standard", Transition{models.StatusActive, models.StatusCancelled, ""}, true},
		{"forced skips table", Transition{models.StatusActive, models.StatusCancelled, KindForced}, false},
		{"reconcile skips table", Transition{models.StatusPendingRegistration, models.StatusExpired, KindReconcile}, false},
		{"forced cannot leave cancelled", Transition{models.StatusCancelled, models.StatusActive, KindForced}, true},
		{"reconcile cannot leave cancelled", Transition{models.StatusCancelled, models.StatusActive, KindReconcile}, true},
		{"forced self transition", Transition{models.StatusActive, models.StatusActive, KindForced}, true},
		{"forced unknown target", Transition{models.StatusActive, "parked", KindForced}, true},
		{"unknown kind", Transition{models.StatusActive, models.StatusExpired, "sneaky"}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.tr)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllowedReturnsCopy(t *testing.T) {
	t.Parallel()

	next := Allowed(models.StatusActive)
	assert.ElementsMatch(t, []models.Status{models.StatusPendingRenewal, models.StatusExpired, models.StatusTransferOut}, next)

	next[0] = models.StatusCancelled
	assert.NotContains(t, Allowed(models.StatusActive), models.StatusCancelled)
	assert.Empty(t, Allowed(models.StatusCancelled))
	assert.True(t, IsTerminal(models.StatusCancelled))
	assert.False(t, IsTerminal(models.StatusRedemption))
}
