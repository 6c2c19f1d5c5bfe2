package ledger

import (
	"fmt"
	"sort"

	"github.com/macterra/go-authority-kernel/artifact"
	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/constitution"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/ucan-wg/go-ucan/capability/policy/selector"
)

// Grant is the ledger's materialized view of an admitted treaty grant. The
// underlying artifact is immutable; status is derived per cycle from the
// event history.
type Grant struct {
	art   artifact.Artifact
	model *adm.GrantModel

	seq           int
	revokedAt     *uint64
	invalidatedAt *uint64
	cause         string
}

func (g *Grant) Link() ipld.Link {
	return g.art.Link()
}

func (g *Grant) Artifact() artifact.Artifact {
	return g.art
}

func (g *Grant) Grantor() string {
	return g.model.Grantor
}

func (g *Grant) Grantee() string {
	return g.model.Grantee
}

func (g *Grant) Actions() []string {
	return g.model.Actions
}

func (g *Grant) Scope() string {
	return g.model.Scope
}

func (g *Grant) Cycle() uint64 {
	return uint64(g.model.Cycle)
}

func (g *Grant) Duration() uint64 {
	return uint64(g.model.Duration)
}

func (g *Grant) Policy() []adm.PolicyStatementModel {
	return g.model.Policy
}

// Grants authorize while current_cycle < grant_cycle + duration; they expire
// automatically, with no discretionary renewal.
func (g *Grant) ExpiresAt() uint64 {
	return g.Cycle() + g.Duration()
}

// Status derives the activation status at a cycle. Terminal statuses
// (revoked, invalidated) shadow temporal ones.
func (g *Grant) Status(cycle uint64) Status {
	if g.invalidatedAt != nil && cycle >= *g.invalidatedAt {
		return StatusInvalidated
	}
	if g.revokedAt != nil && cycle >= *g.revokedAt {
		return StatusRevoked
	}
	if cycle < g.Cycle() {
		return StatusSuspended
	}
	if cycle >= g.ExpiresAt() {
		return StatusExpired
	}
	return StatusActive
}

func (g *Grant) Authorizes(cycle uint64, action, scope string) bool {
	if g.Status(cycle) != StatusActive {
		return false
	}
	has := false
	for _, a := range g.Actions() {
		if a == action {
			has = true
			break
		}
	}
	return has && constitution.ScopeCovers(g.Scope(), scope)
}

// Ledger maintains the immutable grant history and its append-only event
// log. The active treaty set is a projection recomputed from history, never
// a cache that bypasses reconstruction.
type Ledger struct {
	grants map[string]*Grant
	order  []*Grant
	events []Event
}

func New() *Ledger {
	return &Ledger{grants: map[string]*Grant{}}
}

// Events returns the full append-only event history.
func (l *Ledger) Events() []Event {
	return l.events
}

// EventCount supports capturing a cycle's slice of events for audit.
func (l *Ledger) EventCount() int {
	return len(l.events)
}

// EventsSince returns events appended at or after index n.
func (l *Ledger) EventsSince(n int) []Event {
	return l.events[n:]
}

// Grant looks up an admitted grant by link.
func (l *Ledger) Grant(link ipld.Link) (*Grant, bool) {
	g, ok := l.grants[link.String()]
	return g, ok
}

// ActiveSet recomputes the live projection: every grant whose derived
// status at the cycle is active.
func (l *Ledger) ActiveSet(cycle uint64) []*Grant {
	var live []*Grant
	for _, g := range l.order {
		if g.Status(cycle) == StatusActive {
			live = append(live, g)
		}
	}
	return live
}

// live is the set counted for chain and cycle checks: any non-terminal
// grant, including suspended ones; a future-dated grant still shapes the
// delegation graph.
func (l *Ledger) live(cycle uint64) []*Grant {
	var out []*Grant
	for _, g := range l.order {
		if !g.Status(cycle).Terminal() {
			out = append(out, g)
		}
	}
	return out
}

// Authorizing returns the grants under which issuer may perform action at
// scope this cycle, in admission order.
func (l *Ledger) Authorizing(cycle uint64, issuer, action, scope string) []*Grant {
	var out []*Grant
	for _, g := range l.order {
		if g.Grantee() == issuer && g.Authorizes(cycle, action, scope) {
			out = append(out, g)
		}
	}
	return out
}

// Density measures delegation sprawl over the active treaty set.
func (l *Ledger) Density(cycle uint64, c *constitution.Constitution) DensityReport {
	return measure(l.ActiveSet(cycle), c.VocabularySize())
}

// AdmitGrant validates and admits a grant artifact, or rejects it whole;
// there is no partial acceptance. The density check runs before admission
// with the candidate included; a breaching grant is refused, never admitted
// and pruned after the fact.
func (l *Ledger) AdmitGrant(a artifact.Artifact, cycle uint64, c *constitution.Constitution) (*Grant, error) {
	m := a.Grant()
	if m == nil {
		return nil, NewAdmissionError(CodeUnauthorized, "artifact is not a grant")
	}
	if _, dup := l.grants[a.Link().String()]; dup {
		return nil, NewAdmissionError(CodeDuplicate, fmt.Sprintf("grant %s already admitted", a.Link()))
	}

	if m.Grantor == m.Grantee {
		return nil, NewAdmissionError(CodeDelegationCycle, "grantor and grantee are the same principal")
	}

	auth, sovereign := c.Authority(m.Grantor)
	if !sovereign {
		return nil, NewAdmissionError(CodeUnauthorized,
			fmt.Sprintf("grantor %s holds no constitutional authority", m.Grantor))
	}

	// Re-delegation is barred in both directions: a principal holding
	// delegated authority may not issue grants of its own, and a principal
	// with live grants outstanding may not take delegated authority. Either
	// edge would form a chain, whichever end arrives first.
	live := l.live(cycle)
	for _, g := range live {
		if g.Grantee() == m.Grantor {
			return nil, NewAdmissionError(CodeRedelegation,
				fmt.Sprintf("grantor %s is a grantee of %s", m.Grantor, g.Link()))
		}
		if g.Grantor() == m.Grantee {
			return nil, NewAdmissionError(CodeRedelegation,
				fmt.Sprintf("grantee %s is the grantor of %s", m.Grantee, g.Link()))
		}
	}
	if wouldCycle(live, m.Grantor, m.Grantee) {
		return nil, NewAdmissionError(CodeDelegationCycle,
			"grant would create a cycle in the grantor/grantee relation")
	}

	if err := verifyArtifactSignature(a, m.Grantor); err != nil {
		return nil, err
	}

	if len(m.Actions) == 0 {
		return nil, NewAdmissionError(CodeVocabularyExceeded, "grant delegates no actions")
	}
	for _, act := range m.Actions {
		if !c.HasAction(act) {
			return nil, NewAdmissionError(CodeVocabularyExceeded,
				fmt.Sprintf("action %q is not in the closed vocabulary", act))
		}
		if !contains(auth.Actions, act) {
			return nil, NewAdmissionError(CodeScopeExceeded,
				fmt.Sprintf("grantor %s may not bind action %q", m.Grantor, act))
		}
	}
	if !constitution.ScopeCovers(auth.Scope, m.Scope) {
		return nil, NewAdmissionError(CodeScopeExceeded,
			fmt.Sprintf("scope %q exceeds grantor scope %q", m.Scope, auth.Scope))
	}

	if m.Duration < 1 {
		return nil, NewAdmissionError(CodeTemporalInvalid, "grant duration must be >= 1 cycle")
	}
	if m.Cycle < 0 {
		return nil, NewAdmissionError(CodeTemporalInvalid, "grant cycle must be >= 0")
	}
	candidate := &Grant{art: a, model: m, seq: len(l.order)}
	if cycle >= candidate.ExpiresAt() {
		return nil, NewAdmissionError(CodeTemporalExpired,
			fmt.Sprintf("grant expired at cycle %d, current cycle is %d", candidate.ExpiresAt(), cycle))
	}

	if err := validatePolicy(m.Policy); err != nil {
		return nil, err
	}

	// Density is checked with the candidate included, before admission.
	projected := append(l.ActiveSet(cycle), candidate)
	if report := measure(projected, c.VocabularySize()); report.Exceeds(c.MaxDensity()) {
		return nil, NewAdmissionError(CodeDensityBreach,
			fmt.Sprintf("admission would raise density to %d/(%d*%d), bound is %d/%d",
				report.M, report.A, report.B, c.MaxDensity().Num, c.MaxDensity().Den))
	}

	l.grants[a.Link().String()] = candidate
	l.order = append(l.order, candidate)
	l.events = append(l.events, Event{Type: EventAdmitted, Grant: a.Link(), Cycle: cycle, Ref: a.Link()})
	return candidate, nil
}

// AdmitRevocation validates and applies a revocation. It takes effect for
// the same cycle, before any action evaluation; the pipeline's gate order
// guarantees an action in the same batch cannot preempt it.
func (l *Ledger) AdmitRevocation(a artifact.Artifact, cycle uint64, c *constitution.Constitution) (*Grant, error) {
	m := a.Revocation()
	if m == nil {
		return nil, NewAdmissionError(CodeUnauthorized, "artifact is not a revocation")
	}
	target, ok := l.grants[m.Grant.String()]
	if !ok {
		return nil, NewAdmissionError(CodeGrantNotFound, fmt.Sprintf("grant %s is not in the ledger", m.Grant))
	}
	if st := target.Status(cycle); st != StatusActive {
		return nil, NewAdmissionError(CodeGrantNotActive,
			fmt.Sprintf("grant %s is %s, only active grants can be revoked", m.Grant, st))
	}
	_, sovereign := c.Authority(m.Revoker)
	if m.Revoker != target.Grantor() && !sovereign {
		return nil, NewAdmissionError(CodeUnauthorized,
			fmt.Sprintf("revoker %s is neither the grantor nor a constitutional authority", m.Revoker))
	}
	if err := verifyArtifactSignature(a, m.Revoker); err != nil {
		return nil, err
	}

	at := cycle
	target.revokedAt = &at
	l.events = append(l.events, Event{Type: EventRevoked, Grant: target.Link(), Cycle: cycle, Ref: a.Link()})
	return target, nil
}

// RevalidationReport records what a constitutional change cost the ledger.
type RevalidationReport struct {
	Checked     int
	Invalidated []ipld.Link
	Repaired    []ipld.Link
	Density     DensityReport
}

// Revalidate re-checks every live grant against a newly adopted
// constitution. Grants that no longer pass become invalidated, a terminal
// status distinct from revoked; history is retained for audit. If density
// still exceeds the (possibly tightened) bound afterwards, a second,
// separately reported repair pass invalidates grants newest-first until the
// bound holds or no grants remain.
func (l *Ledger) Revalidate(c *constitution.Constitution, cycle uint64) RevalidationReport {
	report := RevalidationReport{}
	for _, g := range l.order {
		if g.Status(cycle).Terminal() {
			continue
		}
		report.Checked++
		if reason := l.recheck(g, c); reason != "" {
			l.invalidate(g, cycle, CauseRevalidation)
			report.Invalidated = append(report.Invalidated, g.Link())
		}
	}
	report.Repaired = l.RepairDensity(c, cycle)
	report.Density = l.Density(cycle, c)
	return report
}

// recheck is the narrow per-grant test: actions still permitted, scope rule
// still holds. Density is aggregate and handled by the repair pass.
func (l *Ledger) recheck(g *Grant, c *constitution.Constitution) string {
	auth, ok := c.Authority(g.Grantor())
	if !ok {
		return "grantor no longer holds constitutional authority"
	}
	for _, act := range g.Actions() {
		if !c.HasAction(act) {
			return fmt.Sprintf("action %q no longer in vocabulary", act)
		}
		if !contains(auth.Actions, act) {
			return fmt.Sprintf("grantor may no longer bind action %q", act)
		}
	}
	if !constitution.ScopeCovers(auth.Scope, g.Scope()) {
		return "scope no longer covered by grantor scope"
	}
	return ""
}

// RepairDensity invalidates grants in strict newest-first admission order
// until density complies or the active set is empty (density is 0 by
// construction then). Termination is guaranteed: the set is finite and
// monotonically shrinks.
func (l *Ledger) RepairDensity(c *constitution.Constitution, cycle uint64) []ipld.Link {
	var repaired []ipld.Link
	for {
		live := l.ActiveSet(cycle)
		if len(live) == 0 {
			break
		}
		if !measure(live, c.VocabularySize()).Exceeds(c.MaxDensity()) {
			break
		}
		newest := live[0]
		for _, g := range live[1:] {
			if g.seq > newest.seq {
				newest = g
			}
		}
		l.invalidate(newest, cycle, CauseDensityRepair)
		repaired = append(repaired, newest.Link())
	}
	return repaired
}

// invalidate appends a terminal invalidation event. Never deletes: the
// grant history is audit evidence.
func (l *Ledger) invalidate(g *Grant, cycle uint64, cause string) {
	at := cycle
	g.invalidatedAt = &at
	g.cause = cause
	l.events = append(l.events, Event{Type: EventInvalidated, Grant: g.Link(), Cycle: cycle, Cause: cause})
}

// wouldCycle walks the grantor→grantee relation of live grants plus the
// candidate edge, looking for a path from grantee back to grantor.
func wouldCycle(live []*Grant, grantor, grantee string) bool {
	edges := map[string][]string{}
	for _, g := range live {
		edges[g.Grantor()] = append(edges[g.Grantor()], g.Grantee())
	}
	edges[grantor] = append(edges[grantor], grantee)

	visited := map[string]struct{}{}
	var stack []string
	stack = append(stack, grantee)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == grantor {
			return true
		}
		if _, seen := visited[n]; seen {
			continue
		}
		visited[n] = struct{}{}
		stack = append(stack, edges[n]...)
	}
	return false
}

// validatePolicy checks grant policy statements are well formed: the closed
// operator set and parseable selectors. Matching happens at action
// admission; malformed policy is caught here so it can never make gate
// outcomes unstable later.
func validatePolicy(statements []adm.PolicyStatementModel) error {
	for _, st := range statements {
		if st.Op != "==" {
			return NewAdmissionError(CodePolicyInvalid, fmt.Sprintf("unsupported policy operator %q", st.Op))
		}
		if _, err := selector.Parse(st.Selector); err != nil {
			return NewAdmissionError(CodePolicyInvalid, fmt.Sprintf("parsing selector %q: %s", st.Selector, err))
		}
	}
	return nil
}

// verifyArtifactSignature checks the artifact was signed by the named
// principal. Only did:key ed25519 principals sign artifacts.
func verifyArtifactSignature(a artifact.Artifact, signer string) error {
	ok, err := artifact.VerifyIssuer(a)
	if err != nil {
		return NewAdmissionError(CodeBadSignature, err.Error())
	}
	if !ok {
		return NewAdmissionError(CodeBadSignature, fmt.Sprintf("signature does not verify against %s", signer))
	}
	return nil
}

func contains(list []string, v string) bool {
	i := sort.SearchStrings(list, v)
	return i < len(list) && list[i] == v
}
