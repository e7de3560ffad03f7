package board

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a mutation targets a feature, team, sprint
	// or dependency that is not on the board.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateDependency is returned when a dependency would connect a pair
	// of features that is already connected in either direction.
	ErrDuplicateDependency = errors.New("dependency already exists between these features")
)

// ValidationError reports a mutation whose input is structurally invalid.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, a ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, a...)}
}

// IsNotFound reports whether err signals a missing mutation target.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
