// Package statemachine decides which domain status changes are legal.
package statemachine

import (
	"domain-lifecycle/internal/errs"
	"domain-lifecycle/internal/models"
)

// Kind tags how a transition was requested
type Kind string

const (
	// KindStandard is an ordinary lifecycle transition, checked against the table
	KindStandard Kind = "standard"
	// KindForced is an administrative escape hatch; it requires a reason upstream
	KindForced Kind = "forced"
	// KindReconcile applies the registrar's authoritative status during sync
	KindReconcile Kind = "reconcile"
)

// Transition is a requested status change
type Transition struct {
	From models.Status
	To   models.Status
	Kind Kind
}

var legal = map[models.Status][]models.Status{
	models.StatusPendingRegistration: {models.StatusActive},
	models.StatusActive:              {models.StatusPendingRenewal, models.StatusExpired, models.StatusTransferOut},
	models.StatusPendingRenewal:      {models.StatusActive, models.StatusExpired},
	models.StatusExpired:             {models.StatusGracePeriod, models.StatusActive},
	models.StatusGracePeriod:         {models.StatusRedemption, models.StatusActive},
	models.StatusRedemption:          {models.StatusCancelled, models.StatusActive},
	models.StatusTransferOut:         {models.StatusActive, models.StatusCancelled},
	models.StatusTransferIn:          {models.StatusActive},
}

// IsTerminal reports whether no transition may leave s
func IsTerminal(s models.Status) bool {
	return s == models.StatusCancelled
}

// Allowed lists the standard successors of from
func Allowed(from models.Status) []models.Status {
	return append([]models.Status(nil), legal[from]...)
}

// ValidateTransition checks a standard transition against the lifecycle table.
func ValidateTransition(from, to models.Status) error {
	if err := checkKnown(from, to); err != nil {
		return err
	}
	for _, next := range legal[from] {
		if next == to {
			return nil
		}
	}
	return errs.Transition("%s -> %s is not a permitted transition", from, to)
}

// Validate checks t according to its kind. Forced and reconcile transitions may
// jump between any two distinct known states but can never leave a terminal state.
func Validate(t Transition) error {
	switch t.Kind {
	case KindStandard, "":
		return ValidateTransition(t.From, t.To)
	case KindForced, KindReconcile:
		if err := checkKnown(t.From, t.To); err != nil {
			return err
		}
		if IsTerminal(t.From) {
			return errs.Transition("%s is terminal, %s transition to %s refused", t.From, t.Kind, t.To)
		}
		return nil
	default:
		return errs.Transition("unknown transition kind %q", t.Kind)
	}
}

func checkKnown(from, to models.Status) error {
	if !from.Valid() {
		return errs.Transition("unknown source status %q", from)
	}
	if !to.Valid() {
		return errs.Transition("unknown target status %q", to)
	}
	if from == to {
		return errs.Transition("domain is already %s", from)
	}
	return nil
}
