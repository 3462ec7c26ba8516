package dispatch

import (
	"errors"
	"fmt"

	"github.com/roach88/campuscloset/internal/concept"
)

// StructuralError reports that the requested concept or action does not
// exist. No concept logic ran.
type StructuralError struct {
	Concept string
	Action  string
	Err     error // concept.ErrConceptNotFound or concept.ErrActionNotFound
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if errors.Is(e.Err, concept.ErrConceptNotFound) {
		return fmt.Sprintf("Concept %s not found", e.Concept)
	}
	return fmt.Sprintf("Action %s not found", e.Action)
}

func (e *StructuralError) Unwrap() error { return e.Err }

// ActionError reports that the primary action ran and failed. Its
// message is the action's own error text.
type ActionError struct {
	Concept string
	Action  string
	Err     error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.Err == nil {
		return "action failed"
	}
	return e.Err.Error()
}

func (e *ActionError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a StructuralError.
func IsNotFound(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}
