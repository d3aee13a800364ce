package pipeline

import (
	"errors"
	"fmt"
)

// ErrStagePanic wraps a panic recovered while running a stage.
var ErrStagePanic = errors.New("pipeline stage panicked")

// ValidationError is the expected, user-triggered rejection of an event.
// It halts the chain without any state change.
type ValidationError struct {
	Kind    Kind
	Message string
}

func (e *ValidationError) Error() string {
	if e.Kind == KindUnknown {
		return e.Message
	}
	return e.Kind.String() + ": " + e.Message
}

// Reject builds a ValidationError with a formatted message.
func Reject(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
