package service

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/iliyamo/campus-gate/internal/repository"
)

// ErrLobbyNotFound is returned when an operation names a lobby that was
// never seeded.
var ErrLobbyNotFound = repository.ErrLobbyNotFound

// ErrInvalidInput is the cause of every ValidationError.
var ErrInvalidInput = errors.New("invalid input")

// FieldError is used to indicate an error with a specific request field.
// Field uses the JSON name, with list indexes for nested entries
// (e.g. volunteers[0].name).
type FieldError struct {
	Field   string
	Message string
}

// ValidationError reports malformed input.  It is always returned before
// any storage access, so no state has changed when a caller sees it.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(flds ...FieldError) error {
	return &ValidationError{Err: ErrInvalidInput, Fields: flds}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Err.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// InfrastructureError wraps a storage failure.  Callers should treat it as
// retryable and must not show Err to clients.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InfrastructureError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsInfrastructure reports whether err is an InfrastructureError.
func IsInfrastructure(err error) bool {
	var i *InfrastructureError
	return errors.As(err, &i)
}
