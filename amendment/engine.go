// Package amendment runs the constitutional amendment procedure: proposals
// cool, accumulate sovereign endorsements, and are adopted or rejected under
// the monotonic ratchet. Structural checks run twice, at proposal intake and
// again at adoption, because ledger and constitution state may drift during
// cooling.
package amendment

import (
	"fmt"
	"sort"

	"github.com/macterra/go-authority-kernel/artifact"
	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/constitution"
	"github.com/macterra/go-authority-kernel/core/ipld"
)

// State of one proposal in the amendment state machine. Proposals enter
// cooling on admission; every other state is terminal.
type State string

const (
	StateCooling   State = "cooling"
	StateAdopted   State = "adopted"
	StateRejected  State = "rejected"
	StateWithdrawn State = "withdrawn"
)

// Proposal tracks one admitted amendment proposal through its lifecycle.
type Proposal struct {
	art   artifact.Artifact
	model *adm.ProposalModel

	cycle     uint64
	state     State
	reason    string
	endorsers map[string]struct{}
}

func (p *Proposal) Link() ipld.Link {
	return p.art.Link()
}

func (p *Proposal) Artifact() artifact.Artifact {
	return p.art
}

func (p *Proposal) Proposer() string {
	return p.model.Proposer
}

// Prior is the hash of the constitution this proposal claims to amend.
func (p *Proposal) Prior() ipld.Link {
	return p.model.Prior
}

func (p *Proposal) Cycle() uint64 {
	return p.cycle
}

func (p *Proposal) State() State {
	return p.state
}

// Reason carries the rejection code once the state is rejected.
func (p *Proposal) Reason() string {
	return p.reason
}

// Endorsements counts distinct sovereign endorsers.
func (p *Proposal) Endorsements() int {
	return len(p.endorsers)
}

// Endorsers lists the distinct endorser DIDs in sorted order.
func (p *Proposal) Endorsers() []string {
	out := make([]string, 0, len(p.endorsers))
	for d := range p.endorsers {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (p *Proposal) reject(code, message string) error {
	p.state = StateRejected
	p.reason = code
	return NewAmendmentError(code, message)
}

// Engine holds every proposal ever admitted and drives state transitions.
// It never mutates the constitution store except through Adopt.
type Engine struct {
	proposals map[string]*Proposal
	order     []*Proposal
}

func NewEngine() *Engine {
	return &Engine{proposals: map[string]*Proposal{}}
}

// Proposal looks up a proposal by artifact link.
func (e *Engine) Proposal(link ipld.Link) (*Proposal, bool) {
	p, ok := e.proposals[link.String()]
	return p, ok
}

// Proposals returns every proposal in admission order.
func (e *Engine) Proposals() []*Proposal {
	return e.order
}

// Submit admits a proposal into cooling. The proposer must hold
// constitutional authority and the replacement constitution must already
// pass structural validation; a proposal that cannot possibly adopt is
// refused at the door. Prior-hash agreement is deferred to adoption, since
// the active constitution may legitimately churn during cooling.
func (e *Engine) Submit(a artifact.Artifact, cycle uint64, c *constitution.Constitution) (*Proposal, error) {
	m := a.Proposal()
	if m == nil {
		return nil, NewAmendmentError(CodeUnauthorized, "artifact is not a proposal")
	}
	if _, dup := e.proposals[a.Link().String()]; dup {
		return nil, NewAmendmentError(CodeDuplicate, fmt.Sprintf("proposal %s already admitted", a.Link()))
	}
	if _, sovereign := c.Authority(m.Proposer); !sovereign {
		return nil, NewAmendmentError(CodeUnauthorized,
			fmt.Sprintf("proposer %s holds no constitutional authority", m.Proposer))
	}
	if err := verifySigner(a, m.Proposer); err != nil {
		return nil, err
	}
	if _, err := constitution.FromModel(m.Constitution); err != nil {
		return nil, err
	}

	p := &Proposal{
		art:       a,
		model:     m,
		cycle:     cycle,
		state:     StateCooling,
		endorsers: map[string]struct{}{},
	}
	e.proposals[a.Link().String()] = p
	e.order = append(e.order, p)
	return p, nil
}

// Endorse records a sovereign endorsement of a cooling proposal. Each
// distinct endorser counts once regardless of how often they endorse.
func (e *Engine) Endorse(a artifact.Artifact, c *constitution.Constitution) (*Proposal, error) {
	m := a.Endorsement()
	if m == nil {
		return nil, NewAmendmentError(CodeUnauthorized, "artifact is not an endorsement")
	}
	p, ok := e.proposals[m.Proposal.String()]
	if !ok {
		return nil, NewAmendmentError(CodeProposalNotFound,
			fmt.Sprintf("proposal %s is not before the engine", m.Proposal))
	}
	if p.state != StateCooling {
		return nil, NewAmendmentError(CodeProposalClosed,
			fmt.Sprintf("proposal %s is %s, endorsement requires cooling", m.Proposal, p.state))
	}
	if _, sovereign := c.Authority(m.Endorser); !sovereign {
		return nil, NewAmendmentError(CodeUnauthorized,
			fmt.Sprintf("endorser %s holds no constitutional authority", m.Endorser))
	}
	if err := verifySigner(a, m.Endorser); err != nil {
		return nil, err
	}
	p.endorsers[m.Endorser] = struct{}{}
	return p, nil
}

// Withdraw closes a cooling proposal. Only the proposer may withdraw.
func (e *Engine) Withdraw(a artifact.Artifact) (*Proposal, error) {
	m := a.Withdrawal()
	if m == nil {
		return nil, NewAmendmentError(CodeUnauthorized, "artifact is not a withdrawal")
	}
	p, ok := e.proposals[m.Proposal.String()]
	if !ok {
		return nil, NewAmendmentError(CodeProposalNotFound,
			fmt.Sprintf("proposal %s is not before the engine", m.Proposal))
	}
	if p.state != StateCooling {
		return nil, NewAmendmentError(CodeProposalClosed,
			fmt.Sprintf("proposal %s is %s, withdrawal requires cooling", m.Proposal, p.state))
	}
	if m.Proposer != p.Proposer() {
		return nil, NewAmendmentError(CodeUnauthorized,
			fmt.Sprintf("only proposer %s may withdraw, got %s", p.Proposer(), m.Proposer))
	}
	if err := verifySigner(a, m.Proposer); err != nil {
		return nil, err
	}
	p.state = StateWithdrawn
	return p, nil
}

// Due returns the cooling proposals whose cooling period has elapsed at
// cycle, in admission order.
func (e *Engine) Due(cycle uint64, cooling uint64) []*Proposal {
	var due []*Proposal
	for _, p := range e.order {
		if p.state == StateCooling && cycle >= p.cycle+cooling {
			due = append(due, p)
		}
	}
	return due
}

// Adopt attempts the terminal transition of a due proposal. Every structural
// constraint is re-checked against the state as it stands now, not as it
// stood at proposal time. Failure on any check rejects the proposal for
// good; the returned error carries the reason code.
func (e *Engine) Adopt(p *Proposal, store *constitution.Store) (*constitution.Constitution, error) {
	if p.state != StateCooling {
		return nil, NewAmendmentError(CodeProposalClosed,
			fmt.Sprintf("proposal %s is %s, adoption requires cooling", p.Link(), p.state))
	}
	prior := store.Active()
	if p.model.Prior.String() != prior.Hash().String() {
		return nil, p.reject(CodePriorHashMismatch, fmt.Sprintf(
			"proposal amends %s, active constitution is %s", p.model.Prior, prior.Hash()))
	}
	if p.Endorsements() < prior.Threshold() {
		return nil, p.reject(CodeThresholdNotMet, fmt.Sprintf(
			"%d endorsements, threshold is %d", p.Endorsements(), prior.Threshold()))
	}
	next, err := constitution.FromModel(p.model.Constitution)
	if err != nil {
		p.state = StateRejected
		p.reason = reasonOf(err)
		return nil, err
	}
	adopted, err := store.Adopt(next)
	if err != nil {
		p.state = StateRejected
		p.reason = reasonOf(err)
		return nil, err
	}
	p.state = StateAdopted
	return adopted, nil
}

func verifySigner(a artifact.Artifact, signer string) error {
	ok, err := artifact.VerifyIssuer(a)
	if err != nil {
		return NewAmendmentError(CodeBadSignature, err.Error())
	}
	if !ok {
		return NewAmendmentError(CodeBadSignature,
			fmt.Sprintf("signature does not verify against %s", signer))
	}
	return nil
}

func reasonOf(err error) string {
	if named, ok := err.(interface{ Name() string }); ok {
		return named.Name()
	}
	return err.Error()
}
