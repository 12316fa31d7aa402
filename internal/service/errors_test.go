package service

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError(
		FieldError{Field: "people_count", Message: "must be greater than 0"},
		FieldError{Field: "volunteers", Message: "this field is required"},
	)
	assert.Equal(t, "people_count: must be greater than 0; volunteers: this field is required", err.Error())
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.True(t, IsValidation(errors.Wrap(err, "create batch")))
	assert.Equal(t, "invalid input", NewValidationError().Error())
}

func TestInfrastructureError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := error(&InfrastructureError{Op: "get status", Err: cause})
	assert.Equal(t, "get status: dial tcp: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsInfrastructure(err))
	assert.False(t, IsValidation(err))
}

func TestFieldPath(t *testing.T) {
	assert.Equal(t, "volunteers[0].name", fieldPath("BatchExitInput.volunteers[0].name"))
	assert.Equal(t, "lobby_name", fieldPath("lobby_name"))
}
