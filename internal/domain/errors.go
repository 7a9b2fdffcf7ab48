package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds surfaced to callers. Anything else is an unclassified failure.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Invalid wraps ErrInvalidInput with a detail message.
func Invalid(format string, args ...any) error {
	return errors.WithMessage(ErrInvalidInput, fmt.Sprintf(format, args...))
}
