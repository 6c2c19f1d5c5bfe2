package verifier

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/macterra/go-authority-kernel/did"
	"github.com/macterra/go-authority-kernel/principal"
	"github.com/macterra/go-authority-kernel/principal/signature"
	"github.com/multiformats/go-varint"
)

const Code = 0xed
const Name = "Ed25519"

const SignatureCode = signature.EdDSA
const SignatureAlgorithm = "EdDSA"

var publicTagSize = varint.UvarintSize(Code)

const keySize = 32

var size = publicTagSize + keySize

// Parse converts a did:key string into an ed25519 verifier.
func Parse(str string) (principal.Verifier, error) {
	id, err := did.Parse(str)
	if err != nil {
		return nil, fmt.Errorf("parsing DID: %w", err)
	}
	return Decode(id.Bytes())
}

func Decode(b []byte) (principal.Verifier, error) {
	if len(b) != size {
		return nil, fmt.Errorf("invalid length: %d wanted: %d", len(b), size)
	}

	puc, err := varint.ReadUvarint(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("reading public key codec: %w", err)
	}
	if puc != Code {
		return nil, fmt.Errorf("invalid public key codec: %d", puc)
	}

	v := make(Ed25519Verifier, size)
	copy(v, b)

	return v, nil
}

type Ed25519Verifier []byte

func (v Ed25519Verifier) Code() uint64 {
	return Code
}

func (v Ed25519Verifier) Verify(payload []byte, sig signature.Signature) bool {
	if sig.Code() != signature.EdDSA {
		return false
	}
	key := ed25519.PublicKey(v[publicTagSize:])
	return ed25519.Verify(key, payload, sig.Raw())
}

func (v Ed25519Verifier) DID() did.DID {
	id, _ := did.Decode(v)
	return id
}

func (v Ed25519Verifier) Encode() []byte {
	return v
}
