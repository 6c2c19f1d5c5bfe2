package ledger

import (
	cdm "github.com/macterra/go-authority-kernel/constitution/datamodel"
)

// DensityReport captures the delegation density metric at a cycle boundary.
// A is the count of distinct delegated authorities with at least one
// currently authorizing grant, B the size of the closed action vocabulary,
// M the count of distinct (authority, action) pairs currently authorized.
// Density is M/(A*B), defined as 0 when A is 0. Constitutional authority is
// excluded: the metric measures delegation sprawl only.
type DensityReport struct {
	A int
	B int
	M int
}

// Value returns the density as a float for reporting. Admission decisions
// never compare floats; see Exceeds.
func (d DensityReport) Value() float64 {
	if d.A == 0 {
		return 0
	}
	return float64(d.M) / (float64(d.A) * float64(d.B))
}

// Exceeds reports whether density reaches or passes the bound. Exact
// integer cross-multiplication: M/(A*B) >= num/den iff M*den >= A*B*num.
func (d DensityReport) Exceeds(bound cdm.RationalModel) bool {
	if d.A == 0 {
		return false
	}
	return int64(d.M)*bound.Den >= int64(d.A)*int64(d.B)*bound.Num
}

type pair struct {
	authority string
	action    string
}

// measure computes A and M over the given set of (grantee, actions) tuples.
func measure(grants []*Grant, vocabSize int) DensityReport {
	grantees := map[string]struct{}{}
	pairs := map[pair]struct{}{}
	for _, g := range grants {
		grantees[g.Grantee()] = struct{}{}
		for _, a := range g.Actions() {
			pairs[pair{g.Grantee(), a}] = struct{}{}
		}
	}
	return DensityReport{A: len(grantees), B: vocabSize, M: len(pairs)}
}
