package artifact

import (
	"sort"

	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/core/ipld"
)

// Kind discriminates the closed set of artifact types the kernel admits.
type Kind string

const (
	KindGrant       Kind = "grant"
	KindRevocation  Kind = "revocation"
	KindAction      Kind = "action"
	KindProposal    Kind = "proposal"
	KindEndorsement Kind = "endorsement"
	KindWithdrawal  Kind = "withdrawal"
)

// GateOrder returns the fixed position of a kind in per-cycle processing.
// Lower is earlier. This ordering is structural, not configurable.
func (k Kind) GateOrder() int {
	switch k {
	case KindProposal, KindEndorsement, KindWithdrawal:
		return 0
	case KindGrant:
		return 1
	case KindRevocation:
		return 2
	case KindAction:
		return 3
	}
	return 4
}

// Artifact is a canonical, typed, content-addressed value. Its link (the CID
// of the canonical DAG-CBOR block) is its identity for every downstream
// comparison, decision and replay.
type Artifact struct {
	kind  Kind
	model *adm.ArtifactModel
	blk   ipld.Block
}

func (a Artifact) Kind() Kind {
	return a.kind
}

func (a Artifact) Link() ipld.Link {
	return a.blk.Link()
}

func (a Artifact) Block() ipld.Block {
	return a.blk
}

func (a Artifact) Model() *adm.ArtifactModel {
	return a.model
}

// Grant returns the grant member or nil if this artifact is not a grant.
func (a Artifact) Grant() *adm.GrantModel {
	return a.model.Grant
}

func (a Artifact) Revocation() *adm.RevocationModel {
	return a.model.Revocation
}

func (a Artifact) Action() *adm.ActionModel {
	return a.model.Action
}

func (a Artifact) Proposal() *adm.ProposalModel {
	return a.model.Proposal
}

func (a Artifact) Endorsement() *adm.EndorsementModel {
	return a.model.Endorsement
}

func (a Artifact) Withdrawal() *adm.WithdrawalModel {
	return a.model.Withdrawal
}

// Issuer returns the DID in the artifact's signer position: the grantor of
// a grant, the revoker of a revocation, and so on.
func (a Artifact) Issuer() string {
	switch {
	case a.model.Grant != nil:
		return a.model.Grant.Grantor
	case a.model.Revocation != nil:
		return a.model.Revocation.Revoker
	case a.model.Action != nil:
		return a.model.Action.Issuer
	case a.model.Proposal != nil:
		return a.model.Proposal.Proposer
	case a.model.Endorsement != nil:
		return a.model.Endorsement.Endorser
	case a.model.Withdrawal != nil:
		return a.model.Withdrawal.Proposer
	}
	return ""
}

func kindOf(m *adm.ArtifactModel) (Kind, bool) {
	set := 0
	var k Kind
	if m.Grant != nil {
		set++
		k = KindGrant
	}
	if m.Revocation != nil {
		set++
		k = KindRevocation
	}
	if m.Action != nil {
		set++
		k = KindAction
	}
	if m.Proposal != nil {
		set++
		k = KindProposal
	}
	if m.Endorsement != nil {
		set++
		k = KindEndorsement
	}
	if m.Withdrawal != nil {
		set++
		k = KindWithdrawal
	}
	return k, set == 1
}

// normalize applies the syntactic canonicalizations the codec is allowed to
// perform: list ordering and de-duplication. Never value repair.
func normalize(m *adm.ArtifactModel) {
	if m.Grant != nil {
		m.Grant.Actions = sortUnique(m.Grant.Actions)
		sort.SliceStable(m.Grant.Policy, func(i, j int) bool {
			return m.Grant.Policy[i].Selector < m.Grant.Policy[j].Selector
		})
	}
	if m.Action != nil {
		sort.SliceStable(m.Action.Params, func(i, j int) bool {
			return m.Action.Params[i].Key < m.Action.Params[j].Key
		})
	}
	if m.Proposal != nil {
		c := &m.Proposal.Constitution
		c.Vocabulary = sortUnique(c.Vocabulary)
		sort.SliceStable(c.Authorities, func(i, j int) bool {
			return c.Authorities[i].Did < c.Authorities[j].Did
		})
		for i := range c.Authorities {
			c.Authorities[i].Actions = sortUnique(c.Authorities[i].Actions)
		}
	}
}

func sortUnique(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := append([]string{}, in...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}
