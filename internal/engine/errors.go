package engine

import (
	"errors"
	"fmt"
)

// EffectErrorCode categorizes why a sync effect did not complete.
type EffectErrorCode string

const (
	// ErrCodeConceptMissing indicates the effect's concept is not registered.
	ErrCodeConceptMissing EffectErrorCode = "EFFECT_CONCEPT_MISSING"

	// ErrCodeActionMissing indicates the concept has no such action.
	ErrCodeActionMissing EffectErrorCode = "EFFECT_ACTION_MISSING"

	// ErrCodeMappingFailed indicates the mapper returned an error or panicked.
	ErrCodeMappingFailed EffectErrorCode = "EFFECT_MAPPING_FAILED"

	// ErrCodeEffectFailed indicates the effect action itself failed.
	ErrCodeEffectFailed EffectErrorCode = "EFFECT_FAILED"

	// ErrCodeTimeout indicates the effect did not finish within the
	// configured effect timeout.
	ErrCodeTimeout EffectErrorCode = "EFFECT_TIMEOUT"
)

// EffectError describes one failed sync effect. It is recorded in the
// report and logged; it never reaches the caller of the triggering action.
type EffectError struct {
	Code    EffectErrorCode
	Rule    string
	Concept string
	Action  string
	Err     error
}

// Error implements the error interface.
func (e *EffectError) Error() string {
	msg := fmt.Sprintf("%s: %s.%s (sync=%s)", e.Code, e.Concept, e.Action, e.Rule)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EffectError) Unwrap() error {
	return e.Err
}

// IsEffectError reports whether err is an EffectError with the given code.
// Uses errors.As to handle wrapped errors.
func IsEffectError(err error, code EffectErrorCode) bool {
	var ee *EffectError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}
