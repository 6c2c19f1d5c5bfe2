package ledger

import (
	"testing"

	"github.com/macterra/go-authority-kernel/artifact"
	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/constitution"
	cdm "github.com/macterra/go-authority-kernel/constitution/datamodel"
	"github.com/macterra/go-authority-kernel/testing/fixtures"
	"github.com/stretchr/testify/require"
)

func testConstitution(t *testing.T, mutate ...func(*cdm.ConstitutionModel)) *constitution.Constitution {
	t.Helper()
	m := cdm.ConstitutionModel{
		Version: 1,
		Authorities: []cdm.AuthorityModel{
			{Did: fixtures.Alice.DID().String(), Scope: "org", Actions: []string{"read", "write"}},
		},
		Vocabulary:      []string{"read", "write", "archive", "delete"},
		MaxDensity:      cdm.RationalModel{Num: 1, Den: 2},
		Cooling:         1,
		Threshold:       0,
		WarrantValidity: 3,
	}
	for _, f := range mutate {
		f(&m)
	}
	c, err := constitution.FromModel(m)
	require.NoError(t, err)
	return c
}

func grant(t *testing.T, actions []string, scope string, cycle, duration uint64, opts ...artifact.GrantOption) artifact.Artifact {
	t.Helper()
	a, err := artifact.NewGrant(fixtures.Alice, fixtures.Bob.DID(), actions, scope, cycle, duration, opts...)
	require.NoError(t, err)
	return a
}

func rejectionCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	var adErr AdmissionError
	require.ErrorAs(t, err, &adErr)
	return adErr.Code()
}

func TestAdmitGrant(t *testing.T) {
	l := New()
	c := testConstitution(t)
	a := grant(t, []string{"read"}, "org/data", 1, 5)

	g, err := l.AdmitGrant(a, 1, c)
	require.NoError(t, err)
	require.Equal(t, a.Link().String(), g.Link().String())
	require.Equal(t, StatusActive, g.Status(1))
	require.Equal(t, uint64(6), g.ExpiresAt())

	events := l.Events()
	require.Len(t, events, 1)
	require.Equal(t, EventAdmitted, events[0].Type)
	require.Equal(t, a.Link(), events[0].Grant)
}

func TestAdmitGrantRejectsDuplicate(t *testing.T) {
	l := New()
	c := testConstitution(t)
	a := grant(t, []string{"read"}, "org/data", 1, 5)

	_, err := l.AdmitGrant(a, 1, c)
	require.NoError(t, err)
	_, err = l.AdmitGrant(a, 1, c)
	require.Equal(t, CodeDuplicate, rejectionCode(t, err))
}

func TestAdmitGrantRejectsSelfGrant(t *testing.T) {
	l := New()
	c := testConstitution(t)
	a, err := artifact.NewGrant(fixtures.Alice, fixtures.Alice.DID(), []string{"read"}, "org", 1, 5)
	require.NoError(t, err)
	_, err = l.AdmitGrant(a, 1, c)
	require.Equal(t, CodeDelegationCycle, rejectionCode(t, err))
}

func TestAdmitGrantRejectsNonAuthority(t *testing.T) {
	l := New()
	c := testConstitution(t)
	a, err := artifact.NewGrant(fixtures.Mallory, fixtures.Bob.DID(), []string{"read"}, "org", 1, 5)
	require.NoError(t, err)
	_, err = l.AdmitGrant(a, 1, c)
	require.Equal(t, CodeUnauthorized, rejectionCode(t, err))
}

func TestAdmitGrantRejectsRedelegation(t *testing.T) {
	l := New()
	c := testConstitution(t, func(m *cdm.ConstitutionModel) {
		m.Authorities = append(m.Authorities, cdm.AuthorityModel{
			Did: fixtures.Bob.DID().String(), Scope: "org/bob", Actions: []string{"read"},
		})
	})
	_, err := l.AdmitGrant(grant(t, []string{"read"}, "org/data", 1, 5), 1, c)
	require.NoError(t, err)

	// Bob holds authority of his own, but while he is a live grantee he may
	// not issue grants.
	a, err := artifact.NewGrant(fixtures.Bob, fixtures.Mallory.DID(), []string{"read"}, "org/bob", 1, 5)
	require.NoError(t, err)
	_, err = l.AdmitGrant(a, 1, c)
	require.Equal(t, CodeRedelegation, rejectionCode(t, err))
}

func TestAdmitGrantRejectsRedelegationReversedOrder(t *testing.T) {
	l := New()
	c := testConstitution(t, func(m *cdm.ConstitutionModel) {
		m.Authorities = append(m.Authorities, cdm.AuthorityModel{
			Did: fixtures.Bob.DID().String(), Scope: "org/bob", Actions: []string{"read"},
		})
	})

	// Bob grants first, before holding anything himself.
	a, err := artifact.NewGrant(fixtures.Bob, fixtures.Mallory.DID(), []string{"read"}, "org/bob", 1, 5)
	require.NoError(t, err)
	_, err = l.AdmitGrant(a, 1, c)
	require.NoError(t, err)

	// Making Bob a grantee now would chain Alice through him to Mallory.
	_, err = l.AdmitGrant(grant(t, []string{"read"}, "org/data", 1, 5), 1, c)
	require.Equal(t, CodeRedelegation, rejectionCode(t, err))
	require.Len(t, l.ActiveSet(1), 1)
}

func TestAdmitGrantRejectsForgedSignature(t *testing.T) {
	l := New()
	c := testConstitution(t)

	g := &adm.GrantModel{
		Grantor:  fixtures.Alice.DID().String(),
		Grantee:  fixtures.Bob.DID().String(),
		Actions:  []string{"read"},
		Scope:    "org/data",
		Cycle:    1,
		Duration: 5,
	}
	model := &adm.ArtifactModel{Grant: g}
	payload, err := artifact.SignPayload(model)
	require.NoError(t, err)
	g.Signature = fixtures.Mallory.Sign(payload).Bytes()
	a, err := artifact.FromModel(model)
	require.NoError(t, err)

	_, err = l.AdmitGrant(a, 1, c)
	require.Equal(t, CodeBadSignature, rejectionCode(t, err))
}

func TestAdmitGrantRejectsVocabulary(t *testing.T) {
	l := New()
	c := testConstitution(t)

	_, err := l.AdmitGrant(grant(t, nil, "org/data", 1, 5), 1, c)
	require.Equal(t, CodeVocabularyExceeded, rejectionCode(t, err))

	_, err = l.AdmitGrant(grant(t, []string{"transmute"}, "org/data", 1, 5), 1, c)
	require.Equal(t, CodeVocabularyExceeded, rejectionCode(t, err))
}

func TestAdmitGrantRejectsScope(t *testing.T) {
	l := New()
	c := testConstitution(t)

	// delete is in the vocabulary but outside Alice's permitted actions.
	_, err := l.AdmitGrant(grant(t, []string{"delete"}, "org/data", 1, 5), 1, c)
	require.Equal(t, CodeScopeExceeded, rejectionCode(t, err))

	_, err = l.AdmitGrant(grant(t, []string{"read"}, "infra/data", 1, 5), 1, c)
	require.Equal(t, CodeScopeExceeded, rejectionCode(t, err))
}

func TestAdmitGrantRejectsTemporal(t *testing.T) {
	l := New()
	c := testConstitution(t)

	_, err := l.AdmitGrant(grant(t, []string{"read"}, "org/data", 1, 0), 1, c)
	require.Equal(t, CodeTemporalInvalid, rejectionCode(t, err))

	// Cycle 1, duration 5: authorizes through cycle 5, expired from cycle 6.
	_, err = l.AdmitGrant(grant(t, []string{"read"}, "org/data", 1, 5), 6, c)
	require.Equal(t, CodeTemporalExpired, rejectionCode(t, err))
}

func TestAdmitGrantRejectsMalformedPolicy(t *testing.T) {
	l := New()
	c := testConstitution(t)

	a := grant(t, []string{"read"}, "org/data", 1, 5,
		artifact.WithPolicy(adm.PolicyStatementModel{Op: "!=", Selector: ".region", Value: "eu"}))
	_, err := l.AdmitGrant(a, 1, c)
	require.Equal(t, CodePolicyInvalid, rejectionCode(t, err))

	a = grant(t, []string{"read"}, "org/data", 1, 5,
		artifact.WithPolicy(adm.PolicyStatementModel{Op: "==", Selector: "not a selector", Value: "eu"}))
	_, err = l.AdmitGrant(a, 1, c)
	require.Equal(t, CodePolicyInvalid, rejectionCode(t, err))
}

func TestAdmitGrantRejectsDensityBreach(t *testing.T) {
	l := New()
	c := testConstitution(t)

	_, err := l.AdmitGrant(grant(t, []string{"read"}, "org/data", 1, 9), 1, c)
	require.NoError(t, err)
	a2, err := artifact.NewGrant(fixtures.Alice, fixtures.Mallory.DID(), []string{"read", "write"}, "org/data", 1, 9)
	require.NoError(t, err)
	_, err = l.AdmitGrant(a2, 1, c)
	require.NoError(t, err)

	// A second grant to Bob raises density to 4/(2*4), reaching the 1/2
	// bound. The candidate is refused whole and the active set is untouched.
	_, err = l.AdmitGrant(grant(t, []string{"write"}, "org/data", 1, 9), 1, c)
	require.Equal(t, CodeDensityBreach, rejectionCode(t, err))
	require.Len(t, l.ActiveSet(1), 2)
	require.Len(t, l.Events(), 2)
}

func TestGrantStatusLifecycle(t *testing.T) {
	l := New()
	c := testConstitution(t)
	g, err := l.AdmitGrant(grant(t, []string{"read"}, "org/data", 3, 2), 1, c)
	require.NoError(t, err)

	require.Equal(t, StatusSuspended, g.Status(1))
	require.Equal(t, StatusActive, g.Status(3))
	require.Equal(t, StatusActive, g.Status(4))
	require.Equal(t, StatusExpired, g.Status(5))

	require.False(t, g.Authorizes(1, "read", "org/data"))
	require.True(t, g.Authorizes(3, "read", "org/data/reports"))
	require.False(t, g.Authorizes(3, "write", "org/data"))
	require.False(t, g.Authorizes(3, "read", "org"))
	require.False(t, g.Authorizes(5, "read", "org/data"))
}

func TestAuthorizing(t *testing.T) {
	l := New()
	c := testConstitution(t)
	a := grant(t, []string{"read"}, "org/data", 1, 5)
	_, err := l.AdmitGrant(a, 1, c)
	require.NoError(t, err)

	bob := fixtures.Bob.DID().String()
	require.Len(t, l.Authorizing(3, bob, "read", "org/data/x"), 1)
	require.Empty(t, l.Authorizing(3, bob, "write", "org/data/x"))
	require.Empty(t, l.Authorizing(6, bob, "read", "org/data/x"))
	require.Empty(t, l.Authorizing(3, fixtures.Mallory.DID().String(), "read", "org/data/x"))
}

func TestAdmitRevocation(t *testing.T) {
	l := New()
	c := testConstitution(t)
	a := grant(t, []string{"read"}, "org/data", 1, 5)
	g, err := l.AdmitGrant(a, 1, c)
	require.NoError(t, err)

	r, err := artifact.NewRevocation(fixtures.Alice, a.Link())
	require.NoError(t, err)
	revoked, err := l.AdmitRevocation(r, 2, c)
	require.NoError(t, err)
	require.Equal(t, g, revoked)
	require.Equal(t, StatusRevoked, g.Status(2))
	require.Equal(t, StatusActive, g.Status(1))
	require.Empty(t, l.ActiveSet(2))

	events := l.Events()
	require.Len(t, events, 2)
	require.Equal(t, EventRevoked, events[1].Type)
	require.Equal(t, r.Link(), events[1].Ref)
}

func TestAdmitRevocationRejections(t *testing.T) {
	l := New()
	c := testConstitution(t)
	a := grant(t, []string{"read"}, "org/data", 1, 5)
	_, err := l.AdmitGrant(a, 1, c)
	require.NoError(t, err)

	stranger, err := artifact.NewGrant(fixtures.Alice, fixtures.Mallory.DID(), []string{"read"}, "org", 1, 5)
	require.NoError(t, err)
	r, err := artifact.NewRevocation(fixtures.Alice, stranger.Link())
	require.NoError(t, err)
	_, err = l.AdmitRevocation(r, 2, c)
	require.Equal(t, CodeGrantNotFound, rejectionCode(t, err))

	r, err = artifact.NewRevocation(fixtures.Mallory, a.Link())
	require.NoError(t, err)
	_, err = l.AdmitRevocation(r, 2, c)
	require.Equal(t, CodeUnauthorized, rejectionCode(t, err))

	r, err = artifact.NewRevocation(fixtures.Alice, a.Link())
	require.NoError(t, err)
	_, err = l.AdmitRevocation(r, 2, c)
	require.NoError(t, err)
	r2, err := artifact.NewRevocation(fixtures.Alice, a.Link())
	require.NoError(t, err)
	_, err = l.AdmitRevocation(r2, 3, c)
	require.Equal(t, CodeGrantNotActive, rejectionCode(t, err))
}

func TestRevalidateInvalidatesFailingGrants(t *testing.T) {
	l := New()
	c := testConstitution(t)
	a := grant(t, []string{"read"}, "org/data", 1, 9)
	g, err := l.AdmitGrant(a, 1, c)
	require.NoError(t, err)

	// The amended constitution drops "read" from the vocabulary. The grant
	// no longer passes as a whole and becomes invalidated, not trimmed.
	next := testConstitution(t, func(m *cdm.ConstitutionModel) {
		m.Version = 2
		m.Vocabulary = []string{"write", "archive", "delete"}
		m.Authorities[0].Actions = []string{"write"}
	})
	report := l.Revalidate(next, 2)
	require.Equal(t, 1, report.Checked)
	require.Len(t, report.Invalidated, 1)
	require.Equal(t, a.Link(), report.Invalidated[0])
	require.Empty(t, report.Repaired)

	require.Equal(t, StatusInvalidated, g.Status(2))
	last := l.Events()[len(l.Events())-1]
	require.Equal(t, EventInvalidated, last.Type)
	require.Equal(t, CauseRevalidation, last.Cause)
}

func TestRepairDensityPrunesNewestFirst(t *testing.T) {
	l := New()
	c := testConstitution(t, func(m *cdm.ConstitutionModel) {
		m.MaxDensity = cdm.RationalModel{Num: 3, Den: 4}
	})
	a1 := grant(t, []string{"read"}, "org/data", 1, 9)
	_, err := l.AdmitGrant(a1, 1, c)
	require.NoError(t, err)
	a2 := grant(t, []string{"write"}, "org/data", 1, 9)
	_, err = l.AdmitGrant(a2, 1, c)
	require.NoError(t, err)

	// Tightening the bound to 1/2 makes the pair breach; repair invalidates
	// the newer grant only.
	tightened := testConstitution(t, func(m *cdm.ConstitutionModel) {
		m.Version = 2
	})
	report := l.Revalidate(tightened, 2)
	require.Equal(t, 2, report.Checked)
	require.Empty(t, report.Invalidated)
	require.Len(t, report.Repaired, 1)
	require.Equal(t, a2.Link(), report.Repaired[0])

	g1, _ := l.Grant(a1.Link())
	g2, _ := l.Grant(a2.Link())
	require.Equal(t, StatusActive, g1.Status(2))
	require.Equal(t, StatusInvalidated, g2.Status(2))
	last := l.Events()[len(l.Events())-1]
	require.Equal(t, CauseDensityRepair, last.Cause)
}

func TestDensityCountsNeverRiseOnRevocationOrExpiry(t *testing.T) {
	l := New()
	c := testConstitution(t)

	short := grant(t, []string{"read"}, "org/data", 1, 2)
	_, err := l.AdmitGrant(short, 1, c)
	require.NoError(t, err)
	long, err := artifact.NewGrant(fixtures.Alice, fixtures.Mallory.DID(), []string{"write"}, "org/data", 1, 9)
	require.NoError(t, err)
	_, err = l.AdmitGrant(long, 1, c)
	require.NoError(t, err)

	pairCounts := func(cycle uint64) map[string]int {
		counts := map[string]int{}
		for _, g := range l.ActiveSet(cycle) {
			counts[g.Grantee()] += len(g.Actions())
		}
		return counts
	}

	before := l.Density(2, c)
	beforePairs := pairCounts(2)
	require.Equal(t, DensityReport{A: 2, B: 4, M: 2}, before)

	rev, err := artifact.NewRevocation(fixtures.Alice, long.Link())
	require.NoError(t, err)
	_, err = l.AdmitRevocation(rev, 2, c)
	require.NoError(t, err)

	afterRevoke := l.Density(2, c)
	require.Equal(t, DensityReport{A: 1, B: 4, M: 1}, afterRevoke)
	require.LessOrEqual(t, afterRevoke.M, before.M)
	require.LessOrEqual(t, afterRevoke.A, before.A)
	for grantee, n := range pairCounts(2) {
		require.LessOrEqual(t, n, beforePairs[grantee])
	}

	// The short grant expires at cycle 3.
	afterExpiry := l.Density(3, c)
	require.Equal(t, DensityReport{A: 0, B: 4, M: 0}, afterExpiry)
	require.LessOrEqual(t, afterExpiry.M, afterRevoke.M)
	require.LessOrEqual(t, afterExpiry.A, afterRevoke.A)
	require.Empty(t, pairCounts(3))
}

func TestDensityExceedsIsExact(t *testing.T) {
	bound := cdm.RationalModel{Num: 1, Den: 2}
	require.False(t, DensityReport{A: 0, B: 4, M: 0}.Exceeds(bound))
	require.False(t, DensityReport{A: 1, B: 4, M: 1}.Exceeds(bound))
	require.True(t, DensityReport{A: 1, B: 4, M: 2}.Exceeds(bound))
	require.True(t, DensityReport{A: 2, B: 4, M: 5}.Exceeds(bound))
	require.Equal(t, 0.25, DensityReport{A: 1, B: 4, M: 1}.Value())
	require.Equal(t, float64(0), DensityReport{A: 0, B: 4, M: 0}.Value())
}
