package datamodel

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/schema"
	cdm "github.com/macterra/go-authority-kernel/constitution/datamodel"
)

//go:embed artifact.ipldsch
var artifactsch []byte

var (
	once sync.Once
	ts   *schema.TypeSystem
	err  error
)

func mustLoadSchema() *schema.TypeSystem {
	once.Do(func() {
		sch := append(append([]byte{}, artifactsch...), cdm.Schema()...)
		ts, err = ipld.LoadSchemaBytes(sch)
	})
	if err != nil {
		panic(fmt.Errorf("failed to load IPLD schema: %s", err))
	}
	return ts
}

func Type() schema.Type {
	return mustLoadSchema().TypeByName("Artifact")
}

func GrantType() schema.Type {
	return mustLoadSchema().TypeByName("Grant")
}

func ActionType() schema.Type {
	return mustLoadSchema().TypeByName("Action")
}

// ArtifactModel is a keyed union: exactly one member is set. Binding input
// with more than one member key, or any unknown key, fails; the closed
// field set is enforced by the schema, not by hand written checks.
type ArtifactModel struct {
	Grant       *GrantModel
	Revocation  *RevocationModel
	Action      *ActionModel
	Proposal    *ProposalModel
	Endorsement *EndorsementModel
	Withdrawal  *WithdrawalModel
}

// GrantModel is a treaty grant: a time-bounded delegation of a subset of the
// grantor's authority to the grantee. Immutable once admitted.
type GrantModel struct {
	Grantor   string
	Grantee   string
	Actions   []string
	Scope     string
	Cycle     int64
	Duration  int64
	Policy    []PolicyStatementModel
	Signature []byte
}

// PolicyStatementModel is one structural constraint on the parameters of
// actions exercised under a grant. Only closed-enum operators, matched
// structurally; the kernel never interprets values.
type PolicyStatementModel struct {
	Op       string
	Selector string
	Value    string
}

type RevocationModel struct {
	Revoker   string
	Grant     datamodel.Link
	Signature []byte
}

// ActionModel is a request to perform one action from the closed vocabulary.
// Delegated requests cite the grant they exercise; sovereign requests carry
// no grant link.
type ActionModel struct {
	Issuer    string
	Action    string
	Scope     string
	Params    []ParamModel
	Grant     datamodel.Link
	Nonce     *string
	Signature []byte
}

type ParamModel struct {
	Key   string
	Value string
}

// ProposalModel carries a full replacement constitution. Partial edits do
// not exist: adoption swaps the whole value under the ratchet rules.
type ProposalModel struct {
	Proposer      string
	Prior         datamodel.Link
	Constitution  cdm.ConstitutionModel
	Scope         string
	Justification string
	Signature     []byte
}

type EndorsementModel struct {
	Endorser  string
	Proposal  datamodel.Link
	Signature []byte
}

type WithdrawalModel struct {
	Proposer  string
	Proposal  datamodel.Link
	Signature []byte
}
