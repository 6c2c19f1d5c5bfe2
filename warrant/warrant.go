// Package warrant issues and redeems single-use execution warrants. A
// warrant exists only because an action passed admission; holding one is the
// sole way to execute, and redeeming it spends it.
package warrant

import (
	"fmt"

	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/ipld/block"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/cbor"
	ihash "github.com/macterra/go-authority-kernel/core/ipld/hash/sha256"
	"github.com/macterra/go-authority-kernel/core/result/failure"
	"github.com/macterra/go-authority-kernel/principal"
	"github.com/macterra/go-authority-kernel/principal/signature"
	wdm "github.com/macterra/go-authority-kernel/warrant/datamodel"
)

const (
	CodeWarrantNotFound = "WARRANT_NOT_FOUND"
	CodeWarrantUsed     = "WARRANT_USED"
	CodeWarrantExpired  = "WARRANT_EXPIRED"
	CodeBadSignature    = "BAD_SIGNATURE"
)

// RedemptionError is a stable-coded refusal to honor a warrant.
type RedemptionError struct {
	failure.NamedWithStackTrace
	code    string
	message string
}

func NewRedemptionError(code, message string) RedemptionError {
	return RedemptionError{failure.NamedWithCurrentStackTrace(code), code, message}
}

func (e RedemptionError) Code() string {
	return e.code
}

func (e RedemptionError) Error() string {
	return e.message
}

// Warrant is one issued execution right. Immutable; use is tracked by the
// issuer, not on the warrant.
type Warrant struct {
	model wdm.WarrantModel
	blk   ipld.Block
}

// ID is the CID of the signed canonical encoding.
func (w *Warrant) ID() ipld.Link {
	return w.blk.Link()
}

func (w *Warrant) Block() ipld.Block {
	return w.blk
}

// Request is the admitted action artifact this warrant executes.
func (w *Warrant) Request() ipld.Link {
	return w.model.Request
}

func (w *Warrant) Scope() string {
	return w.model.Scope
}

func (w *Warrant) Issued() uint64 {
	return uint64(w.model.Issued)
}

func (w *Warrant) Expires() uint64 {
	return uint64(w.model.Expires)
}

func (w *Warrant) Authority() string {
	return w.model.Authority
}

// Verify checks the issuing authority's signature.
func (w *Warrant) Verify(verifier principal.Verifier) bool {
	payload, err := signPayload(w.model)
	if err != nil {
		return false
	}
	return verifier.Verify(payload, signature.Decode(w.model.Signature))
}

func signPayload(m wdm.WarrantModel) ([]byte, error) {
	m.Signature = []byte{}
	return cbor.Encode(&m, wdm.Type())
}

// Issuer mints warrants under the kernel's authority key and enforces
// single use.
type Issuer struct {
	signer principal.Signer
	issued map[string]*Warrant
	used   map[string]struct{}
}

func NewIssuer(signer principal.Signer) *Issuer {
	return &Issuer{
		signer: signer,
		issued: map[string]*Warrant{},
		used:   map[string]struct{}{},
	}
}

// Issue mints a warrant for an admitted request. Expiry is issue cycle plus
// the constitution's warrant validity.
func (i *Issuer) Issue(request ipld.Link, scope string, cycle, validity uint64) (*Warrant, error) {
	m := wdm.WarrantModel{
		Authority: i.signer.DID().String(),
		Request:   request,
		Scope:     scope,
		Issued:    int64(cycle),
		Expires:   int64(cycle + validity),
	}
	payload, err := signPayload(m)
	if err != nil {
		return nil, fmt.Errorf("encoding warrant payload: %w", err)
	}
	m.Signature = i.signer.Sign(payload).Bytes()
	blk, err := block.Encode(&m, wdm.Type(), cbor.Codec, ihash.Hasher)
	if err != nil {
		return nil, fmt.Errorf("encoding warrant: %w", err)
	}
	w := &Warrant{model: m, blk: blk}
	i.issued[w.ID().String()] = w
	return w, nil
}

// Warrant looks up an issued warrant by id.
func (i *Issuer) Warrant(id ipld.Link) (*Warrant, bool) {
	w, ok := i.issued[id.String()]
	return w, ok
}

// Used reports whether a warrant has been redeemed.
func (i *Issuer) Used(id ipld.Link) bool {
	_, used := i.used[id.String()]
	return used
}

// Redeem spends a warrant. A second redemption, or a redemption at or past
// expiry, fails and the warrant stays in whatever state it was.
func (i *Issuer) Redeem(id ipld.Link, cycle uint64) (*Warrant, error) {
	w, ok := i.issued[id.String()]
	if !ok {
		return nil, NewRedemptionError(CodeWarrantNotFound, fmt.Sprintf("warrant %s was never issued", id))
	}
	if _, used := i.used[id.String()]; used {
		return nil, NewRedemptionError(CodeWarrantUsed, fmt.Sprintf("warrant %s already redeemed", id))
	}
	if cycle >= w.Expires() {
		return nil, NewRedemptionError(CodeWarrantExpired,
			fmt.Sprintf("warrant %s expired at cycle %d, current cycle is %d", id, w.Expires(), cycle))
	}
	i.used[id.String()] = struct{}{}
	return w, nil
}
