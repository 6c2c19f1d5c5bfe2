package amendment

import (
	"github.com/macterra/go-authority-kernel/core/result/failure"
)

const (
	CodeDuplicate         = "DUPLICATE_ARTIFACT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeBadSignature      = "BAD_SIGNATURE"
	CodeProposalNotFound  = "PROPOSAL_NOT_FOUND"
	CodeProposalClosed    = "PROPOSAL_CLOSED"
	CodeThresholdNotMet   = "THRESHOLD_NOT_MET"
	CodePriorHashMismatch = "PRIOR_HASH_MISMATCH"
)

// AmendmentError is a stable-coded rejection from the amendment engine.
type AmendmentError struct {
	failure.NamedWithStackTrace
	code    string
	message string
}

func NewAmendmentError(code string, message string) AmendmentError {
	return AmendmentError{failure.NamedWithCurrentStackTrace(code), code, message}
}

func (e AmendmentError) Code() string {
	return e.code
}

func (e AmendmentError) Error() string {
	return e.message
}
