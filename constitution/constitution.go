package constitution

import (
	"fmt"
	"sort"
	"strings"

	cdm "github.com/macterra/go-authority-kernel/constitution/datamodel"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/ipld/block"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/cbor"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/json"
	ihash "github.com/macterra/go-authority-kernel/core/ipld/hash/sha256"
)

// Constitution is one immutable, content-hashed version of the rule set the
// kernel interprets: the authority model, the closed action vocabulary, the
// density ceiling and the amendment procedure. Superseded only by adoption
// of an amendment referencing its hash.
type Constitution struct {
	model cdm.ConstitutionModel
	blk   ipld.Block

	actions     map[string]struct{}
	authorities map[string]cdm.AuthorityModel
}

// FromModel normalizes, structurally validates and content-hashes a
// constitution value. Validation order is fixed: schema binding happens
// before this is callable; then cardinality, wildcard, density.
func FromModel(m cdm.ConstitutionModel) (*Constitution, error) {
	normalize(&m)
	if err := validate(&m); err != nil {
		return nil, err
	}
	blk, err := block.Encode(&m, cdm.Type(), cbor.Codec, ihash.Hasher)
	if err != nil {
		return nil, fmt.Errorf("encoding constitution: %w", err)
	}
	c := &Constitution{
		model:       m,
		blk:         blk,
		actions:     map[string]struct{}{},
		authorities: map[string]cdm.AuthorityModel{},
	}
	for _, a := range m.Vocabulary {
		c.actions[a] = struct{}{}
	}
	for _, a := range m.Authorities {
		c.authorities[a.Did] = a
	}
	return c, nil
}

// Load reads a DAG-JSON constitution file. Schema validation is mandatory
// before any semantic check.
func Load(b []byte) (*Constitution, error) {
	var m cdm.ConstitutionModel
	if err := json.Decode(b, &m, cdm.Type()); err != nil {
		return nil, NewSchemaInvalidError(fmt.Sprintf("binding constitution: %s", err))
	}
	return FromModel(m)
}

func (c *Constitution) Model() cdm.ConstitutionModel {
	return c.model
}

// Hash is the CID of the canonical DAG-CBOR encoding. Amendment proposals
// cite it; the genesis state hash is derived from it.
func (c *Constitution) Hash() ipld.Link {
	return c.blk.Link()
}

func (c *Constitution) Block() ipld.Block {
	return c.blk
}

func (c *Constitution) Version() int64 {
	return c.model.Version
}

func (c *Constitution) Vocabulary() []string {
	return c.model.Vocabulary
}

func (c *Constitution) VocabularySize() int {
	return len(c.model.Vocabulary)
}

func (c *Constitution) HasAction(action string) bool {
	_, ok := c.actions[action]
	return ok
}

// Authority returns the sovereign authority record for a DID, if the
// constitution names one.
func (c *Constitution) Authority(did string) (cdm.AuthorityModel, bool) {
	a, ok := c.authorities[did]
	return a, ok
}

func (c *Constitution) MaxDensity() cdm.RationalModel {
	return c.model.MaxDensity
}

func (c *Constitution) Cooling() uint64 {
	return uint64(c.model.Cooling)
}

func (c *Constitution) Threshold() int {
	return int(c.model.Threshold)
}

func (c *Constitution) WarrantValidity() uint64 {
	return uint64(c.model.WarrantValidity)
}

// EncodeJSON renders the constitution in its file form.
func (c *Constitution) EncodeJSON() ([]byte, error) {
	m := c.model
	return json.Encode(&m, cdm.Type())
}

// ScopeCovers reports whether parent structurally covers child in the
// '/'-partitioned scope space. Purely syntactic: equal, or child is inside
// the parent partition.
func ScopeCovers(parent, child string) bool {
	if parent == "" || child == "" {
		return false
	}
	return parent == child || strings.HasPrefix(child, parent+"/")
}

func normalize(m *cdm.ConstitutionModel) {
	m.Vocabulary = sortUnique(m.Vocabulary)
	sort.SliceStable(m.Authorities, func(i, j int) bool {
		return m.Authorities[i].Did < m.Authorities[j].Did
	})
	for i := range m.Authorities {
		m.Authorities[i].Actions = sortUnique(m.Authorities[i].Actions)
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

// validate performs the semantic checks in their fixed order: cardinality,
// wildcard, density. Ratchet is relative to a prior version and lives in
// Ratchet.
func validate(m *cdm.ConstitutionModel) error {
	// cardinality
	if m.Version < 1 {
		return NewCardinalityError("version must be >= 1")
	}
	if len(m.Vocabulary) == 0 {
		return NewCardinalityError("vocabulary must not be empty")
	}
	if len(m.Authorities) == 0 {
		return NewCardinalityError("at least one sovereign authority is required")
	}
	if m.Cooling < 0 || m.Threshold < 0 {
		return NewCardinalityError("cooling and threshold must be non-negative")
	}
	if m.WarrantValidity < 1 {
		return NewCardinalityError("warrant validity must be >= 1")
	}
	vocab := map[string]struct{}{}
	for _, a := range m.Vocabulary {
		vocab[a] = struct{}{}
	}
	seen := map[string]struct{}{}
	for _, a := range m.Authorities {
		if _, dup := seen[a.Did]; dup {
			return NewCardinalityError(fmt.Sprintf("duplicate authority: %s", a.Did))
		}
		seen[a.Did] = struct{}{}
		if a.Scope == "" {
			return NewCardinalityError(fmt.Sprintf("authority %s has empty scope", a.Did))
		}
		for _, act := range a.Actions {
			if _, ok := vocab[act]; !ok {
				return NewCardinalityError(fmt.Sprintf("authority %s action %q not in vocabulary", a.Did, act))
			}
		}
	}
	// wildcard
	for _, a := range m.Vocabulary {
		if strings.Contains(a, "*") {
			return NewWildcardError(fmt.Sprintf("vocabulary action %q contains a wildcard", a))
		}
	}
	for _, a := range m.Authorities {
		if strings.Contains(a.Scope, "*") {
			return NewWildcardError(fmt.Sprintf("authority %s scope contains a wildcard", a.Did))
		}
	}
	// density
	if m.MaxDensity.Num < 1 || m.MaxDensity.Den < 1 {
		return NewDensityBoundError("density bound must be a positive rational")
	}
	if m.MaxDensity.Num > m.MaxDensity.Den {
		return NewDensityBoundError("density bound must not exceed 1")
	}
	return nil
}

// Ratchet checks that next only tightens the amendment procedure relative to
// prior. Cooling and threshold may stay equal or increase, never decrease.
func Ratchet(prior, next *Constitution) error {
	if next.model.Cooling < prior.model.Cooling {
		return NewRatchetViolationError(fmt.Sprintf(
			"cooling period loosened: %d -> %d", prior.model.Cooling, next.model.Cooling))
	}
	if next.model.Threshold < prior.model.Threshold {
		return NewRatchetViolationError(fmt.Sprintf(
			"authorization threshold loosened: %d -> %d", prior.model.Threshold, next.model.Threshold))
	}
	if next.model.Version <= prior.model.Version {
		return NewRatchetViolationError(fmt.Sprintf(
			"version must increase: %d -> %d", prior.model.Version, next.model.Version))
	}
	return nil
}
