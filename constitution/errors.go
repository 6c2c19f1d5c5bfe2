package constitution

import (
	"github.com/macterra/go-authority-kernel/core/result/failure"
)

// Reason codes for constitution validation failures. Stable across replay.
const (
	CodeSchemaInvalid    = "SCHEMA_INVALID"
	CodeCardinality      = "CARDINALITY_VIOLATION"
	CodeWildcard         = "WILDCARD_FORBIDDEN"
	CodeDensityBound     = "DENSITY_BOUND_INVALID"
	CodeRatchetViolation = "RATCHET_VIOLATION"
)

type constitutionError struct {
	failure.NamedWithStackTrace
	code    string
	message string
}

func (e constitutionError) Name() string {
	return e.code
}

func (e constitutionError) Code() string {
	return e.code
}

func (e constitutionError) Error() string {
	return e.message
}

func NewSchemaInvalidError(message string) error {
	return constitutionError{failure.NamedWithCurrentStackTrace(CodeSchemaInvalid), CodeSchemaInvalid, message}
}

func NewCardinalityError(message string) error {
	return constitutionError{failure.NamedWithCurrentStackTrace(CodeCardinality), CodeCardinality, message}
}

func NewWildcardError(message string) error {
	return constitutionError{failure.NamedWithCurrentStackTrace(CodeWildcard), CodeWildcard, message}
}

func NewDensityBoundError(message string) error {
	return constitutionError{failure.NamedWithCurrentStackTrace(CodeDensityBound), CodeDensityBound, message}
}

func NewRatchetViolationError(message string) error {
	return constitutionError{failure.NamedWithCurrentStackTrace(CodeRatchetViolation), CodeRatchetViolation, message}
}
