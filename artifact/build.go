package artifact

import (
	"fmt"

	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	cdm "github.com/macterra/go-authority-kernel/constitution/datamodel"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/cbor"
	"github.com/macterra/go-authority-kernel/did"
	"github.com/macterra/go-authority-kernel/principal"
	"github.com/macterra/go-authority-kernel/principal/ed25519/verifier"
	"github.com/macterra/go-authority-kernel/principal/signature"
)

func sigFromBytes(b []byte) signature.Signature {
	return signature.Decode(b)
}

// SignPayload produces the canonical bytes a principal signs: the artifact
// with its signature field emptied, DAG-CBOR encoded. Verifiers recompute
// exactly this.
func SignPayload(model *adm.ArtifactModel) ([]byte, error) {
	clone := *model
	switch {
	case clone.Grant != nil:
		g := *clone.Grant
		g.Signature = []byte{}
		clone.Grant = &g
	case clone.Revocation != nil:
		r := *clone.Revocation
		r.Signature = []byte{}
		clone.Revocation = &r
	case clone.Action != nil:
		a := *clone.Action
		a.Signature = []byte{}
		clone.Action = &a
	case clone.Proposal != nil:
		p := *clone.Proposal
		p.Signature = []byte{}
		clone.Proposal = &p
	case clone.Endorsement != nil:
		e := *clone.Endorsement
		e.Signature = []byte{}
		clone.Endorsement = &e
	case clone.Withdrawal != nil:
		w := *clone.Withdrawal
		w.Signature = []byte{}
		clone.Withdrawal = &w
	default:
		return nil, fmt.Errorf("artifact has no member set")
	}
	return cbor.Encode(&clone, adm.Type())
}

func sign(signer principal.Signer, model *adm.ArtifactModel) ([]byte, error) {
	normalize(model)
	payload, err := SignPayload(model)
	if err != nil {
		return nil, fmt.Errorf("encoding signature payload: %w", err)
	}
	return signer.Sign(payload).Bytes(), nil
}

// GrantOption configures an issued grant.
type GrantOption func(*adm.GrantModel)

// WithPolicy attaches structural parameter constraints to the grant.
func WithPolicy(statements ...adm.PolicyStatementModel) GrantOption {
	return func(g *adm.GrantModel) {
		g.Policy = statements
	}
}

// NewGrant issues a signed treaty grant artifact. The grantor delegates the
// listed actions within scope to the grantee from cycle for duration cycles.
func NewGrant(grantor principal.Signer, grantee did.DID, actions []string, scope string, cycle, duration uint64, opts ...GrantOption) (Artifact, error) {
	g := &adm.GrantModel{
		Grantor:  grantor.DID().String(),
		Grantee:  grantee.String(),
		Actions:  actions,
		Scope:    scope,
		Cycle:    int64(cycle),
		Duration: int64(duration),
	}
	for _, opt := range opts {
		opt(g)
	}
	model := &adm.ArtifactModel{Grant: g}
	sig, err := sign(grantor, model)
	if err != nil {
		return Artifact{}, err
	}
	g.Signature = sig
	return FromModel(model)
}

// NewRevocation revokes a single grant by link.
func NewRevocation(revoker principal.Signer, grant ipld.Link) (Artifact, error) {
	r := &adm.RevocationModel{
		Revoker: revoker.DID().String(),
		Grant:   grant,
	}
	model := &adm.ArtifactModel{Revocation: r}
	sig, err := sign(revoker, model)
	if err != nil {
		return Artifact{}, err
	}
	r.Signature = sig
	return FromModel(model)
}

// ActionOption configures an action request.
type ActionOption func(*adm.ActionModel)

// WithGrant cites the grant a delegated request exercises.
func WithGrant(grant ipld.Link) ActionOption {
	return func(a *adm.ActionModel) {
		a.Grant = grant
	}
}

// WithParams attaches structural parameters to the request.
func WithParams(params map[string]string) ActionOption {
	return func(a *adm.ActionModel) {
		a.Params = a.Params[:0]
		for k, v := range params {
			a.Params = append(a.Params, adm.ParamModel{Key: k, Value: v})
		}
	}
}

// WithNonce distinguishes otherwise identical requests. Without it two
// identical requests canonicalize to the same artifact and are de-duplicated.
func WithNonce(nonce string) ActionOption {
	return func(a *adm.ActionModel) {
		a.Nonce = &nonce
	}
}

// NewAction issues a signed action request.
func NewAction(issuer principal.Signer, action, scope string, opts ...ActionOption) (Artifact, error) {
	a := &adm.ActionModel{
		Issuer: issuer.DID().String(),
		Action: action,
		Scope:  scope,
	}
	for _, opt := range opts {
		opt(a)
	}
	model := &adm.ArtifactModel{Action: a}
	sig, err := sign(issuer, model)
	if err != nil {
		return Artifact{}, err
	}
	a.Signature = sig
	return FromModel(model)
}

// NewProposal issues an amendment proposal carrying a full replacement
// constitution and the hash of the constitution it amends.
func NewProposal(proposer principal.Signer, prior ipld.Link, replacement cdm.ConstitutionModel, scope, justification string) (Artifact, error) {
	p := &adm.ProposalModel{
		Proposer:      proposer.DID().String(),
		Prior:         prior,
		Constitution:  replacement,
		Scope:         scope,
		Justification: justification,
	}
	model := &adm.ArtifactModel{Proposal: p}
	sig, err := sign(proposer, model)
	if err != nil {
		return Artifact{}, err
	}
	p.Signature = sig
	return FromModel(model)
}

// NewEndorsement endorses a cooling proposal.
func NewEndorsement(endorser principal.Signer, proposal ipld.Link) (Artifact, error) {
	e := &adm.EndorsementModel{
		Endorser: endorser.DID().String(),
		Proposal: proposal,
	}
	model := &adm.ArtifactModel{Endorsement: e}
	sig, err := sign(endorser, model)
	if err != nil {
		return Artifact{}, err
	}
	e.Signature = sig
	return FromModel(model)
}

// NewWithdrawal withdraws a cooling proposal. Only the proposer may.
func NewWithdrawal(proposer principal.Signer, proposal ipld.Link) (Artifact, error) {
	w := &adm.WithdrawalModel{
		Proposer: proposer.DID().String(),
		Proposal: proposal,
	}
	model := &adm.ArtifactModel{Withdrawal: w}
	sig, err := sign(proposer, model)
	if err != nil {
		return Artifact{}, err
	}
	w.Signature = sig
	return FromModel(model)
}

// VerifyIssuer checks the artifact's signature against the key embedded in
// its issuer's did:key identifier.
func VerifyIssuer(a Artifact) (bool, error) {
	id, err := did.Parse(a.Issuer())
	if err != nil {
		return false, fmt.Errorf("parsing issuer DID: %w", err)
	}
	vfr, err := verifier.Decode(id.Bytes())
	if err != nil {
		return false, fmt.Errorf("decoding issuer key: %w", err)
	}
	return VerifySignature(a, vfr)
}

// VerifySignature checks the artifact's signature against the verifier of
// the principal named in its issuer position.
func VerifySignature(a Artifact, verifier principal.Verifier) (bool, error) {
	payload, err := SignPayload(a.Model())
	if err != nil {
		return false, fmt.Errorf("encoding signature payload: %w", err)
	}
	var sig []byte
	switch {
	case a.Grant() != nil:
		sig = a.Grant().Signature
	case a.Revocation() != nil:
		sig = a.Revocation().Signature
	case a.Action() != nil:
		sig = a.Action().Signature
	case a.Proposal() != nil:
		sig = a.Proposal().Signature
	case a.Endorsement() != nil:
		sig = a.Endorsement().Signature
	case a.Withdrawal() != nil:
		sig = a.Withdrawal().Signature
	}
	return verifier.Verify(payload, sigFromBytes(sig)), nil
}
