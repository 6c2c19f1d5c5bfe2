package ledger

import (
	"github.com/macterra/go-authority-kernel/core/result/failure"
)

// Reason codes for ledger admissions. Stable across replay: the same
// artifact against the same prior state always yields the same code.
const (
	CodeDuplicate          = "DUPLICATE_ARTIFACT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeRedelegation       = "REDELEGATION"
	CodeDelegationCycle    = "DELEGATION_CYCLE"
	CodeVocabularyExceeded = "VOCABULARY_EXCEEDED"
	CodeScopeExceeded      = "SCOPE_EXCEEDED"
	CodeTemporalInvalid    = "TEMPORAL_INVALID"
	CodeTemporalExpired    = "TEMPORAL_EXPIRED"
	CodeTemporalNotActive  = "TEMPORAL_NOT_ACTIVE"
	CodeDensityBreach      = "DENSITY_BREACH"
	CodeGrantNotFound      = "GRANT_NOT_FOUND"
	CodeGrantNotActive     = "GRANT_NOT_ACTIVE"
	CodeBadSignature       = "BAD_SIGNATURE"
	CodePolicyInvalid      = "POLICY_INVALID"
	CodePolicyMismatch     = "POLICY_MISMATCH"
)

// AdmissionError is a typed, named rejection of a single artifact. It never
// aborts the cycle; it becomes a decision record.
type AdmissionError struct {
	failure.NamedWithStackTrace
	code    string
	message string
}

func (e AdmissionError) Name() string {
	return e.code
}

func (e AdmissionError) Code() string {
	return e.code
}

func (e AdmissionError) Error() string {
	return e.message
}

func NewAdmissionError(code, message string) AdmissionError {
	return AdmissionError{failure.NamedWithCurrentStackTrace(code), code, message}
}
