package did

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
)

const Prefix = "did:"
const KeyPrefix = Prefix + "key:"

// multicodec code for a DID that is not a did:key.
const MethodCode = 0x0d1d

// multicodec code for an ed25519 public key, the only key type the kernel
// issues or verifies.
const Ed25519Code = 0xed

var methodTagSize = varint.UvarintSize(MethodCode)

// Undef can be used to represent a nil or undefined DID, using DID{}
// directly is also acceptable.
var Undef = DID{}

// DID is a decentralized identifier. It identifies every principal the
// kernel deals with: sovereign authorities, grantees and the kernel itself.
// The zero value is undefined. DIDs are comparable with ==.
type DID struct {
	str string
}

func (d DID) Defined() bool {
	return d.str != ""
}

// Bytes returns the multiformat byte representation: a tagged public key for
// did:key, or a method tag followed by the method specific string otherwise.
func (d DID) Bytes() []byte {
	return []byte(d.str)
}

func (d DID) DID() DID {
	return d
}

func (d DID) String() string {
	if d.str == "" {
		return ""
	}
	b := []byte(d.str)
	code, err := varint.ReadUvarint(bytes.NewReader(b))
	if err == nil && code == MethodCode {
		return Prefix + string(b[methodTagSize:])
	}
	key, _ := multibase.Encode(multibase.Base58BTC, b)
	return KeyPrefix + key
}

func (d DID) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DID) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	if str == "" {
		*d = Undef
		return nil
	}
	id, err := Parse(str)
	if err != nil {
		return err
	}
	*d = id
	return nil
}

// Parse converts a DID string into a DID value. did:key identifiers must be
// multibase encoded tagged public keys, any other method is carried opaquely.
func Parse(str string) (DID, error) {
	if !strings.HasPrefix(str, Prefix) {
		return Undef, fmt.Errorf("must start with 'did:'")
	}
	if strings.HasPrefix(str, KeyPrefix) {
		enc, b, err := multibase.Decode(str[len(KeyPrefix):])
		if err != nil {
			return Undef, fmt.Errorf("decoding multibase: %w", err)
		}
		if enc != multibase.Base58BTC {
			return Undef, fmt.Errorf("not base58btc encoded")
		}
		if _, err := varint.ReadUvarint(bytes.NewReader(b)); err != nil {
			return Undef, fmt.Errorf("reading key codec: %w", err)
		}
		return DID{string(b)}, nil
	}
	method := str[len(Prefix):]
	tag := varint.ToUvarint(MethodCode)
	return DID{string(append(tag, method...))}, nil
}

// Decode converts the multiformat bytes back into a DID.
func Decode(b []byte) (DID, error) {
	code, err := varint.ReadUvarint(bytes.NewReader(b))
	if err != nil {
		return Undef, fmt.Errorf("reading DID tag: %w", err)
	}
	switch code {
	case MethodCode, Ed25519Code:
		return DID{string(b)}, nil
	}
	return Undef, fmt.Errorf("unsupported DID tag: 0x%x", code)
}
