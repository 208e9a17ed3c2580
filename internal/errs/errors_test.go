package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"validation", Validation("bad years %d", 4), ErrValidation, KindValidation},
		{"transition", Transition("active -> cancelled"), ErrTransition, KindTransition},
		{"registrar", RegistrarUnavailable(errors.New("timeout"), "renew"), ErrRegistrarUnavailable, KindRegistrarUnavailable},
		{"conflict", Conflict("busy"), ErrConflict, KindConflict},
		{"not found", NotFound("domain %s", "abc"), ErrNotFound, KindNotFound},
		{"persistence", Persistence(errors.New("disk full"), "save"), ErrPersistence, KindPersistence},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(tt.err))

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.kind, KindOf(wrapped))
		})
	}
}

func TestDifferentKindsDoNotMatch(t *testing.T) {
	t.Parallel()

	err := Validation("empty reason")
	assert.NotErrorIs(t, err, ErrTransition)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestRegistrarMessagePreserved(t *testing.T) {
	t.Parallel()

	cause := errors.New("registrar returned status 503")
	err := RegistrarUnavailable(cause, "renew example.com")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "registrar returned status 503")
	assert.Contains(t, err.Error(), "renew example.com")
}

func TestKindOfPlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}
