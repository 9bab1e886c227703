package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesSentinel(t *testing.T) {
	err := Wrap(ErrSubmissionFailed, "posting order")
	assert.True(t, Is(err, ErrSubmissionFailed))
	assert.Contains(t, err.Error(), "posting order")

	err = Wrapf(ErrNotFound, "customer %s", "5511999")
	assert.True(t, Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "5511999")

	assert.Nil(t, Wrap(nil, "nothing"))
	assert.Nil(t, Wrapf(nil, "nothing %d", 1))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("name", "Preciso do seu nome completo.", "Maria")

	var verr *ValidationError
	require.True(t, As(error(err), &verr))
	assert.Equal(t, "name", verr.Field)
	assert.Equal(t, "Preciso do seu nome completo.", verr.Message)
	assert.Contains(t, err.Error(), "name")
	assert.Contains(t, err.Error(), "Maria")

	// Wrapped validation errors still unwrap to the typed value
	wrapped := Wrap(err, "collecting name")
	verr = nil
	require.True(t, As(wrapped, &verr))
	assert.Equal(t, "name", verr.Field)
}
