package amendment

import (
	"testing"

	"github.com/macterra/go-authority-kernel/artifact"
	"github.com/macterra/go-authority-kernel/constitution"
	cdm "github.com/macterra/go-authority-kernel/constitution/datamodel"
	"github.com/macterra/go-authority-kernel/testing/fixtures"
	"github.com/stretchr/testify/require"
)

func baseModel() cdm.ConstitutionModel {
	return cdm.ConstitutionModel{
		Version: 1,
		Authorities: []cdm.AuthorityModel{
			{Did: fixtures.Alice.DID().String(), Scope: "org", Actions: []string{"read", "write"}},
			{Did: fixtures.Bob.DID().String(), Scope: "infra", Actions: []string{"read"}},
		},
		Vocabulary:      []string{"read", "write", "archive"},
		MaxDensity:      cdm.RationalModel{Num: 1, Den: 2},
		Cooling:         2,
		Threshold:       1,
		WarrantValidity: 3,
	}
}

func amended() cdm.ConstitutionModel {
	m := baseModel()
	m.Version = 2
	m.Vocabulary = []string{"read", "write"}
	return m
}

func amendCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	coded, ok := err.(interface{ Code() string })
	require.True(t, ok, "error %v carries no code", err)
	return coded.Code()
}

func setup(t *testing.T) (*Engine, *constitution.Store, *constitution.Constitution) {
	t.Helper()
	c, err := constitution.FromModel(baseModel())
	require.NoError(t, err)
	return NewEngine(), constitution.NewStore(c), c
}

func propose(t *testing.T, c *constitution.Constitution, next cdm.ConstitutionModel) artifact.Artifact {
	t.Helper()
	a, err := artifact.NewProposal(fixtures.Alice, c.Hash(), next, "org", "tighten the vocabulary")
	require.NoError(t, err)
	return a
}

func TestSubmit(t *testing.T) {
	e, _, c := setup(t)
	a := propose(t, c, amended())

	p, err := e.Submit(a, 1, c)
	require.NoError(t, err)
	require.Equal(t, StateCooling, p.State())
	require.Equal(t, uint64(1), p.Cycle())
	require.Equal(t, fixtures.Alice.DID().String(), p.Proposer())

	_, err = e.Submit(a, 1, c)
	require.Equal(t, CodeDuplicate, amendCode(t, err))
}

func TestSubmitRejectsNonSovereign(t *testing.T) {
	e, _, c := setup(t)
	a, err := artifact.NewProposal(fixtures.Mallory, c.Hash(), amended(), "org", "")
	require.NoError(t, err)
	_, err = e.Submit(a, 1, c)
	require.Equal(t, CodeUnauthorized, amendCode(t, err))
}

func TestSubmitRejectsStructurallyInvalidReplacement(t *testing.T) {
	e, _, c := setup(t)
	bad := amended()
	bad.Vocabulary = nil
	bad.Authorities[0].Actions = nil
	bad.Authorities[1].Actions = nil
	a := propose(t, c, bad)
	_, err := e.Submit(a, 1, c)
	require.Equal(t, constitution.CodeCardinality, amendCode(t, err))
}

func TestEndorse(t *testing.T) {
	e, _, c := setup(t)
	a := propose(t, c, amended())
	p, err := e.Submit(a, 1, c)
	require.NoError(t, err)

	end, err := artifact.NewEndorsement(fixtures.Bob, a.Link())
	require.NoError(t, err)
	_, err = e.Endorse(end, c)
	require.NoError(t, err)
	require.Equal(t, 1, p.Endorsements())

	// Re-endorsing by the same sovereign does not double count.
	again, err := artifact.NewEndorsement(fixtures.Bob, a.Link())
	require.NoError(t, err)
	_, err = e.Endorse(again, c)
	require.NoError(t, err)
	require.Equal(t, 1, p.Endorsements())
	require.Equal(t, []string{fixtures.Bob.DID().String()}, p.Endorsers())

	outsider, err := artifact.NewEndorsement(fixtures.Mallory, a.Link())
	require.NoError(t, err)
	_, err = e.Endorse(outsider, c)
	require.Equal(t, CodeUnauthorized, amendCode(t, err))

	other := propose(t, c, amended())
	stray, err := artifact.NewEndorsement(fixtures.Bob, other.Link())
	require.NoError(t, err)
	_, err = e.Endorse(stray, c)
	require.Equal(t, CodeProposalNotFound, amendCode(t, err))
}

func TestWithdraw(t *testing.T) {
	e, _, c := setup(t)
	a := propose(t, c, amended())
	p, err := e.Submit(a, 1, c)
	require.NoError(t, err)

	imposter, err := artifact.NewWithdrawal(fixtures.Bob, a.Link())
	require.NoError(t, err)
	_, err = e.Withdraw(imposter)
	require.Equal(t, CodeUnauthorized, amendCode(t, err))

	w, err := artifact.NewWithdrawal(fixtures.Alice, a.Link())
	require.NoError(t, err)
	_, err = e.Withdraw(w)
	require.NoError(t, err)
	require.Equal(t, StateWithdrawn, p.State())

	// Withdrawn is terminal. Endorsement and re-withdrawal are both refused.
	end, err := artifact.NewEndorsement(fixtures.Bob, a.Link())
	require.NoError(t, err)
	_, err = e.Endorse(end, c)
	require.Equal(t, CodeProposalClosed, amendCode(t, err))
	w2, err := artifact.NewWithdrawal(fixtures.Alice, a.Link())
	require.NoError(t, err)
	_, err = e.Withdraw(w2)
	require.Equal(t, CodeProposalClosed, amendCode(t, err))
}

func TestDue(t *testing.T) {
	e, _, c := setup(t)
	a := propose(t, c, amended())
	_, err := e.Submit(a, 1, c)
	require.NoError(t, err)

	require.Empty(t, e.Due(2, c.Cooling()))
	due := e.Due(3, c.Cooling())
	require.Len(t, due, 1)
	require.Equal(t, a.Link().String(), due[0].Link().String())
}

func TestAdopt(t *testing.T) {
	e, store, c := setup(t)
	a := propose(t, c, amended())
	p, err := e.Submit(a, 1, c)
	require.NoError(t, err)
	end, err := artifact.NewEndorsement(fixtures.Bob, a.Link())
	require.NoError(t, err)
	_, err = e.Endorse(end, c)
	require.NoError(t, err)

	adopted, err := e.Adopt(p, store)
	require.NoError(t, err)
	require.Equal(t, StateAdopted, p.State())
	require.Equal(t, int64(2), adopted.Version())
	require.Equal(t, adopted, store.Active())
}

func TestAdoptRejectsBelowThreshold(t *testing.T) {
	e, store, c := setup(t)
	a := propose(t, c, amended())
	p, err := e.Submit(a, 1, c)
	require.NoError(t, err)

	_, err = e.Adopt(p, store)
	require.Equal(t, CodeThresholdNotMet, amendCode(t, err))
	require.Equal(t, StateRejected, p.State())
	require.Equal(t, CodeThresholdNotMet, p.Reason())
	require.Equal(t, c, store.Active())
}

func TestAdoptRejectsStalePrior(t *testing.T) {
	e, store, c := setup(t)

	// Two competing proposals both cite version 1. Whichever adopts first
	// wins; the other fails the prior-hash check when its turn comes.
	first := propose(t, c, amended())
	p1, err := e.Submit(first, 1, c)
	require.NoError(t, err)
	rival := amended()
	rival.Vocabulary = []string{"read", "archive"}
	rival.Authorities[0].Actions = []string{"read"}
	second, err := artifact.NewProposal(fixtures.Bob, c.Hash(), rival, "infra", "")
	require.NoError(t, err)
	p2, err := e.Submit(second, 1, c)
	require.NoError(t, err)

	for _, prop := range []artifact.Artifact{first, second} {
		end, err := artifact.NewEndorsement(fixtures.Bob, prop.Link())
		require.NoError(t, err)
		_, err = e.Endorse(end, c)
		require.NoError(t, err)
	}

	_, err = e.Adopt(p1, store)
	require.NoError(t, err)
	_, err = e.Adopt(p2, store)
	require.Equal(t, CodePriorHashMismatch, amendCode(t, err))
	require.Equal(t, StateRejected, p2.State())
}

func TestAdoptRejectsRatchetViolation(t *testing.T) {
	e, store, c := setup(t)
	loosened := baseModel()
	loosened.Version = 2
	loosened.Cooling = 0
	a := propose(t, c, loosened)
	p, err := e.Submit(a, 1, c)
	require.NoError(t, err)
	end, err := artifact.NewEndorsement(fixtures.Bob, a.Link())
	require.NoError(t, err)
	_, err = e.Endorse(end, c)
	require.NoError(t, err)

	_, err = e.Adopt(p, store)
	require.Error(t, err)
	require.Equal(t, StateRejected, p.State())
	require.Equal(t, constitution.CodeRatchetViolation, p.Reason())
	require.Equal(t, c, store.Active())
}
