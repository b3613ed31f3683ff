package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_KindMatching(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		sentinel  error
		kind      Kind
		retryable bool
		transient bool
	}{
		{
			name:     "validation",
			err:      FieldInvalid("email", "not an address: %q", "nope"),
			sentinel: ErrValidation,
			kind:     KindValidation,
		},
		{
			name:     "not found",
			err:      NotFound("contact"),
			sentinel: ErrNotFound,
			kind:     KindNotFound,
		},
		{
			name:      "conflict",
			err:       Conflict("stale version"),
			sentinel:  ErrConflict,
			kind:      KindConflict,
			retryable: true,
		},
		{
			name:     "duplicate",
			err:      Duplicate("already registered"),
			sentinel: ErrConflict,
			kind:     KindConflict,
		},
		{
			name:      "pool exhausted",
			err:       ResourceExhausted("no connection available", context.DeadlineExceeded),
			sentinel:  ErrResourceExhausted,
			kind:      KindResourceExhausted,
			retryable: true,
		},
		{
			name:      "transient storage",
			err:       Storage("deadlock detected", true, errors.New("40P01")),
			sentinel:  ErrStorage,
			kind:      KindStorage,
			retryable: true,
			transient: true,
		},
		{
			name:     "permanent storage",
			err:      Storage("disk full", false, nil),
			sentinel: ErrStorage,
			kind:     KindStorage,
		},
		{
			name:     "invalid state",
			err:      InvalidState("unit of work already finished"),
			sentinel: ErrInvalidState,
			kind:     KindInvalidState,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("failed to do thing: %w", tt.err)

			require.ErrorIs(t, wrapped, tt.sentinel)
			require.Equal(t, tt.kind, KindOf(wrapped))
			require.True(t, IsKind(wrapped, tt.kind))
			require.Equal(t, tt.retryable, IsRetryable(wrapped))
			require.Equal(t, tt.transient, IsTransient(wrapped))
		})
	}
}

func TestError_KindsDoNotCrossMatch(t *testing.T) {
	err := NotFound("contact")
	require.NotErrorIs(t, err, ErrConflict)
	require.NotErrorIs(t, err, ErrValidation)
	require.Empty(t, KindOf(errors.New("plain")))
	require.False(t, IsRetryable(errors.New("plain")))
}

func TestError_MessageHidesCause(t *testing.T) {
	cause := errors.New(`relation "contacts" violates constraint contacts_pkey`)
	err := Storage("write failed", false, cause)

	require.Equal(t, "storage: write failed", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestError_FieldsInMessage(t *testing.T) {
	err := Validation("invalid payload",
		FieldError{Field: "first_name", Message: "required"},
		FieldError{Field: "email", Message: "not an address"},
	)
	require.Equal(t, "validation: invalid payload (first_name: required; email: not an address)", err.Error())
	require.Len(t, err.Fields, 2)
}
