package principal

import (
	"github.com/macterra/go-authority-kernel/did"
	"github.com/macterra/go-authority-kernel/principal/signature"
)

// Principal is an entity identified by a DID. Grantors, grantees and the
// kernel authority are all principals.
type Principal interface {
	DID() did.DID
}

// Signer produces verifiable signatures over canonical artifact payloads.
type Signer interface {
	Principal
	Sign(payload []byte) signature.SignatureView
	Code() uint64
	Verifier() Verifier
	Encode() []byte
}

// Verifier checks signatures produced by the corresponding signer.
type Verifier interface {
	Principal
	Code() uint64
	Verify(payload []byte, sig signature.Signature) bool
	Encode() []byte
}
