// Package kernel is the single-writer admission pipeline: it buffers
// artifacts, runs them through the fixed gate sequence once per cycle,
// issues warrants for admitted actions and commits one audit record per
// cycle onto the state hash chain.
package kernel

import (
	"fmt"
	"sync"

	"github.com/macterra/go-authority-kernel/amendment"
	"github.com/macterra/go-authority-kernel/artifact"
	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/audit"
	auditdm "github.com/macterra/go-authority-kernel/audit/datamodel"
	"github.com/macterra/go-authority-kernel/audit/store"
	"github.com/macterra/go-authority-kernel/audit/store/memory"
	"github.com/macterra/go-authority-kernel/constitution"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/ledger"
	"github.com/macterra/go-authority-kernel/principal"
	"github.com/macterra/go-authority-kernel/warrant"
)

// Option configures a kernel at construction.
type Option func(*config)

type config struct {
	store     store.Store
	metrics   *Metrics
	cacheSize int
}

// WithStore persists the audit log somewhere other than process memory.
func WithStore(s store.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithMetrics enables prometheus observation.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithCodecCacheSize overrides the decode memoization cache size.
func WithCodecCacheSize(n int) Option {
	return func(c *config) {
		c.cacheSize = n
	}
}

// Kernel owns the ledger/constitution pair. All mutation happens on the
// single goroutine holding the mutex; a cycle is atomic from the outside.
type Kernel struct {
	mu sync.Mutex

	signer  principal.Signer
	codec   *artifact.Codec
	store   *constitution.Store
	ledger  *ledger.Ledger
	engine  *amendment.Engine
	issuer  *warrant.Issuer
	log     *audit.Log
	metrics *Metrics

	cycle       uint64
	pending     map[string]artifact.Artifact
	completions []auditdm.CompletionModel
	blocks      map[string]ipld.Block
	halted      error
}

// New builds a kernel over an initial constitution. The signer is the
// kernel's warrant-issuing authority; replaying a log to identical warrant
// ids requires the same signer.
func New(signer principal.Signer, initial *constitution.Constitution, opts ...Option) (*Kernel, error) {
	cfg := config{cacheSize: artifact.DefaultCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = memory.NewStore()
	}
	codec, err := artifact.NewCodec(cfg.cacheSize)
	if err != nil {
		return nil, err
	}
	log, err := audit.NewLog(initial.Hash(), cfg.store)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	k := &Kernel{
		signer:  signer,
		codec:   codec,
		store:   constitution.NewStore(initial),
		ledger:  ledger.New(),
		engine:  amendment.NewEngine(),
		issuer:  warrant.NewIssuer(signer),
		log:     log,
		metrics: cfg.metrics,
		cycle:   log.NextCycle(),
		pending: map[string]artifact.Artifact{},
		blocks:  map[string]ipld.Block{initial.Hash().String(): initial.Block()},
	}
	return k, nil
}

// Cycle is the number the next RunCycle will commit.
func (k *Kernel) Cycle() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cycle
}

// Constitution is the currently active rule set.
func (k *Kernel) Constitution() *constitution.Constitution {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.Active()
}

// Ledger exposes the treaty ledger for inspection. Callers must not mutate.
func (k *Kernel) Ledger() *ledger.Ledger {
	return k.ledger
}

// Log is the audit log the kernel appends to.
func (k *Kernel) Log() *audit.Log {
	return k.log
}

// Issuer is the warrant issuer; executors redeem against it.
func (k *Kernel) Issuer() *warrant.Issuer {
	return k.issuer
}

// Density reports the delegation density as the active constitution and
// pending cycle see it.
func (k *Kernel) Density() ledger.DensityReport {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ledger.Density(k.cycle, k.store.Active())
}

// Block returns an artifact or constitution block the kernel has seen.
func (k *Kernel) Block(link ipld.Link) (ipld.Block, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.blocks[link.String()]
	return b, ok
}

// Blocks snapshots every known block, for archival.
func (k *Kernel) Blocks() []ipld.Block {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]ipld.Block, 0, len(k.blocks))
	for _, b := range k.blocks {
		out = append(out, b)
	}
	return out
}

// Submit canonicalizes untrusted input and buffers the artifact for the next
// cycle. Rejection here is a codec rejection; it never reaches a gate.
func (k *Kernel) Submit(input []byte) (artifact.Artifact, error) {
	a, rerr := k.codec.Decode(input)
	if rerr != nil {
		return artifact.Artifact{}, rerr
	}
	return k.SubmitArtifact(a)
}

// SubmitArtifact buffers an already canonical artifact. Duplicates by CID
// collapse silently; identity is content, not arrival.
func (k *Kernel) SubmitArtifact(a artifact.Artifact) (artifact.Artifact, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.halted != nil {
		return artifact.Artifact{}, k.halted
	}
	k.pending[a.Link().String()] = a
	k.blocks[a.Link().String()] = a.Block()
	return a, nil
}

// ReportCompletion records an executor's report for an issued warrant. It is
// audit information only and has no authorization effect.
func (k *Kernel) ReportCompletion(id ipld.Link, ok bool, note string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, issued := k.issuer.Warrant(id); !issued {
		return fmt.Errorf("warrant %s was never issued", id)
	}
	k.completions = append(k.completions, auditdm.CompletionModel{Warrant: id, Ok: ok, Note: note})
	return nil
}

// RunCycle drains the buffer through the gate sequence and commits one audit
// record. The buffer empties whatever happens to its contents; rejected
// artifacts become decision records, not retries.
func (k *Kernel) RunCycle() (*audit.Record, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.halted != nil {
		return nil, k.halted
	}

	cycle := k.cycle
	startHash := k.log.Head()
	inputs := orderInputs(k.pending)
	k.pending = map[string]artifact.Artifact{}
	eventMark := k.ledger.EventCount()

	var decisions []Decision
	var warrants []*warrant.Warrant
	decide := func(a artifact.Artifact, gate Gate, err error) {
		d := Decision{Artifact: a, Gate: gate, Admitted: err == nil}
		if err != nil {
			d.Reason = reasonCode(err)
		}
		decisions = append(decisions, d)
	}

	// Gate 1: amendment intake, then adoption of due proposals.
	adopted := false
	for _, a := range inputs {
		switch a.Kind() {
		case artifact.KindProposal:
			_, err := k.engine.Submit(a, cycle, k.store.Active())
			decide(a, GateAmendment, err)
		case artifact.KindEndorsement:
			_, err := k.engine.Endorse(a, k.store.Active())
			decide(a, GateAmendment, err)
		case artifact.KindWithdrawal:
			_, err := k.engine.Withdraw(a)
			decide(a, GateAmendment, err)
		}
	}
	for _, p := range k.engine.Due(cycle, k.store.Active().Cooling()) {
		_, err := k.engine.Adopt(p, k.store)
		decide(p.Artifact(), GateAdoption, err)
		if err == nil {
			adopted = true
			next := k.store.Active()
			k.blocks[next.Hash().String()] = next.Block()
		}
	}

	// Gate 2: revalidation, only when the constitution changed.
	if adopted {
		k.ledger.Revalidate(k.store.Active(), cycle)
	}

	// Gates 3 and 4: grants, then revocations. Revocation lands before any
	// action gate runs, so a same-cycle action under a revoked grant fails.
	for _, a := range inputs {
		if a.Kind() == artifact.KindGrant {
			_, err := k.ledger.AdmitGrant(a, cycle, k.store.Active())
			decide(a, GateGrant, err)
		}
	}
	for _, a := range inputs {
		if a.Kind() == artifact.KindRevocation {
			_, err := k.ledger.AdmitRevocation(a, cycle, k.store.Active())
			decide(a, GateRevocation, err)
		}
	}

	// Gate 5: aggregate density enforcement. Admission pre-checks density,
	// so this bites when revalidation shrank the bound or a revocation
	// shrank A faster than M.
	k.ledger.RepairDensity(k.store.Active(), cycle)

	// Gates 6 and 7: sovereign then delegated actions.
	for _, a := range inputs {
		if a.Kind() != artifact.KindAction {
			continue
		}
		m := a.Action()
		var gate Gate
		var err error
		if m.Grant == nil {
			gate = GateSovereign
			err = k.admitSovereign(a, m, cycle)
		} else {
			gate = GateDelegated
			err = k.admitDelegated(a, m, cycle)
		}
		if err == nil {
			w, werr := k.issuer.Issue(a.Link(), m.Scope, cycle, k.store.Active().WarrantValidity())
			if werr != nil {
				k.halted = fmt.Errorf("issuing warrant: %w", werr)
				return nil, k.halted
			}
			warrants = append(warrants, w)
		}
		decide(a, gate, err)
	}

	record, err := k.commit(cycle, startHash, decisions, warrants, eventMark)
	if err != nil {
		k.halted = err
		return nil, err
	}
	k.cycle++
	k.metrics.observeCycle(decisions, len(warrants), k.ledger.Density(k.cycle, k.store.Active()).Value())
	return record, nil
}

func (k *Kernel) admitSovereign(a artifact.Artifact, m *adm.ActionModel, cycle uint64) error {
	auth, ok := k.store.Active().Authority(m.Issuer)
	if !ok {
		return ledger.NewAdmissionError(ledger.CodeUnauthorized,
			fmt.Sprintf("issuer %s holds no constitutional authority", m.Issuer))
	}
	if !k.store.Active().HasAction(m.Action) {
		return ledger.NewAdmissionError(ledger.CodeVocabularyExceeded,
			fmt.Sprintf("action %q is not in the closed vocabulary", m.Action))
	}
	if !contains(auth.Actions, m.Action) {
		return ledger.NewAdmissionError(ledger.CodeScopeExceeded,
			fmt.Sprintf("authority %s may not perform %q", m.Issuer, m.Action))
	}
	if !constitution.ScopeCovers(auth.Scope, m.Scope) {
		return ledger.NewAdmissionError(ledger.CodeScopeExceeded,
			fmt.Sprintf("scope %q exceeds authority scope %q", m.Scope, auth.Scope))
	}
	return verifyIssuer(a, m.Issuer)
}

func (k *Kernel) admitDelegated(a artifact.Artifact, m *adm.ActionModel, cycle uint64) error {
	g, ok := k.ledger.Grant(m.Grant)
	if !ok {
		return ledger.NewAdmissionError(ledger.CodeGrantNotFound,
			fmt.Sprintf("grant %s is not in the ledger", m.Grant))
	}
	if g.Grantee() != m.Issuer {
		return ledger.NewAdmissionError(ledger.CodeUnauthorized,
			fmt.Sprintf("issuer %s is not the grantee of %s", m.Issuer, m.Grant))
	}
	switch st := g.Status(cycle); st {
	case ledger.StatusActive:
	case ledger.StatusSuspended:
		return ledger.NewAdmissionError(ledger.CodeTemporalNotActive,
			fmt.Sprintf("grant %s does not activate until cycle %d", m.Grant, g.Cycle()))
	case ledger.StatusExpired:
		return ledger.NewAdmissionError(ledger.CodeTemporalExpired,
			fmt.Sprintf("grant %s expired at cycle %d", m.Grant, g.ExpiresAt()))
	default:
		return ledger.NewAdmissionError(ledger.CodeGrantNotActive,
			fmt.Sprintf("grant %s is %s", m.Grant, st))
	}
	if err := verifyIssuer(a, m.Issuer); err != nil {
		return err
	}
	if !contains(g.Actions(), m.Action) {
		return ledger.NewAdmissionError(ledger.CodeScopeExceeded,
			fmt.Sprintf("grant %s does not delegate %q", m.Grant, m.Action))
	}
	if !constitution.ScopeCovers(g.Scope(), m.Scope) {
		return ledger.NewAdmissionError(ledger.CodeScopeExceeded,
			fmt.Sprintf("scope %q exceeds grant scope %q", m.Scope, g.Scope()))
	}
	matched, err := matchPolicy(g.Policy(), m.Params)
	if err != nil {
		return ledger.NewAdmissionError(ledger.CodePolicyInvalid, err.Error())
	}
	if !matched {
		return ledger.NewAdmissionError(ledger.CodePolicyMismatch,
			fmt.Sprintf("parameters do not satisfy the policy of grant %s", m.Grant))
	}
	return nil
}

// commit assembles the cycle record, extends the hash chain and appends. An
// append failure halts the kernel: the in-memory state may be ahead of the
// log and nothing downstream may trust it.
func (k *Kernel) commit(cycle uint64, startHash ipld.Link, decisions []Decision, warrants []*warrant.Warrant, eventMark int) (*audit.Record, error) {
	decisionModels := make([]auditdm.DecisionModel, 0, len(decisions))
	for _, d := range decisions {
		decisionModels = append(decisionModels, auditdm.DecisionModel{
			Artifact: d.Artifact.Link(),
			Gate:     string(d.Gate),
			Reason:   d.Reason,
			Admitted: d.Admitted,
		})
	}
	eventModels := make([]auditdm.EventRecordModel, 0)
	for _, e := range k.ledger.EventsSince(eventMark) {
		em := auditdm.EventRecordModel{
			Type:  string(e.Type),
			Grant: e.Grant,
			Cycle: int64(e.Cycle),
			Ref:   e.Ref,
		}
		if e.Cause != "" {
			cause := e.Cause
			em.Cause = &cause
		}
		eventModels = append(eventModels, em)
	}
	warrantLinks := make([]ipld.Link, 0, len(warrants))
	for _, w := range warrants {
		warrantLinks = append(warrantLinks, w.ID())
		k.blocks[w.ID().String()] = w.Block()
	}

	endHash, err := audit.StateHash(startHash, k.store.Active().Hash(), decisionModels, eventModels, warrantLinks)
	if err != nil {
		return nil, fmt.Errorf("computing state hash: %w", err)
	}
	record, err := audit.FromModel(auditdm.CycleRecordModel{
		Cycle:          int64(cycle),
		Constitution:   k.store.Active().Hash(),
		StateHashStart: startHash,
		StateHashEnd:   endHash,
		Decisions:      decisionModels,
		Events:         eventModels,
		Warrants:       warrantLinks,
		Completions:    drainCompletions(&k.completions),
	})
	if err != nil {
		return nil, err
	}
	if err := k.log.Append(record); err != nil {
		return nil, err
	}
	return record, nil
}

func drainCompletions(buf *[]auditdm.CompletionModel) []auditdm.CompletionModel {
	out := *buf
	if out == nil {
		out = []auditdm.CompletionModel{}
	}
	*buf = nil
	return out
}

func verifyIssuer(a artifact.Artifact, issuer string) error {
	ok, err := artifact.VerifyIssuer(a)
	if err != nil {
		return ledger.NewAdmissionError(ledger.CodeBadSignature, err.Error())
	}
	if !ok {
		return ledger.NewAdmissionError(ledger.CodeBadSignature,
			fmt.Sprintf("signature does not verify against %s", issuer))
	}
	return nil
}

// reasonCode extracts the stable code from a typed rejection. Untyped errors
// would break gate stability, so they are a defect; surface them verbatim.
func reasonCode(err error) string {
	if coded, ok := err.(interface{ Code() string }); ok {
		return coded.Code()
	}
	if named, ok := err.(interface{ Name() string }); ok {
		return named.Name()
	}
	return err.Error()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
