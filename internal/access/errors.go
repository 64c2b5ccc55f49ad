package access

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("access: not found")
	ErrConflict     = errors.New("access: conflict")
	ErrForbidden    = errors.New("access: forbidden")
	ErrInvalidInput = errors.New("access: invalid input")
)

// ValidationError lists every violated constraint found while checking an
// input, so callers see all problems at once instead of the first one.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "access: invalid input: " + strings.Join(e.Violations, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func newValidationError(violations []string) error {
	if len(violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: violations}
}
