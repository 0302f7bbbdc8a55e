package taxonomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := New(NotFound, "entity not found")
		assert.Equal(t, "not_found: entity not found", err.Error())
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(BackendUnavailable, "dialing graph backend", cause)
		assert.Contains(t, err.Error(), "backend_unavailable")
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestError_Is(t *testing.T) {
	err := New(Duplicate, "entity already exists")
	assert.True(t, errors.Is(err, New(Duplicate, "")))
	assert.False(t, errors.Is(err, New(NotFound, "")))
}

func TestOf(t *testing.T) {
	err := New(GovernanceBlocked, "missing required field")
	assert.True(t, Of(err, GovernanceBlocked))
	assert.False(t, Of(err, Internal))
	assert.False(t, Of(errors.New("plain error"), Internal))
}

func TestKindOf(t *testing.T) {
	t.Run("taxonomy error", func(t *testing.T) {
		err := New(Timeout, "deadline exceeded")
		assert.Equal(t, Timeout, KindOf(err))
	})

	t.Run("unrecognized error defaults to internal", func(t *testing.T) {
		assert.Equal(t, Internal, KindOf(errors.New("boom")))
	})
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Timeout))
	assert.False(t, Retryable(NotFound))
	assert.False(t, Retryable(Duplicate))
	assert.False(t, Retryable(GovernanceBlocked))
}

func TestWithDetails(t *testing.T) {
	err := New(InvalidInput, "bad field").WithDetails(map[string]string{"field": "id"})
	require.NotNil(t, err.Details)
	details, ok := err.Details.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "id", details["field"])
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(BackendUnavailable, "connecting", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}
