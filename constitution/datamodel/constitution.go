package datamodel

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/schema"
)

//go:embed constitution.ipldsch
var constitutionsch []byte

// Schema is the IPLD schema source for the constitution types. The artifact
// schema embeds it so amendment proposals can carry a full replacement.
func Schema() []byte {
	return constitutionsch
}

var (
	once sync.Once
	ts   *schema.TypeSystem
	err  error
)

func mustLoadSchema() *schema.TypeSystem {
	once.Do(func() {
		ts, err = ipld.LoadSchemaBytes(constitutionsch)
	})
	if err != nil {
		panic(fmt.Errorf("failed to load IPLD schema: %s", err))
	}
	return ts
}

func Type() schema.Type {
	return mustLoadSchema().TypeByName("Constitution")
}

// ConstitutionModel is the versioned rule set the kernel interprets. It is
// configuration data, never code: the kernel is rule-set agnostic.
type ConstitutionModel struct {
	Version         int64
	Authorities     []AuthorityModel
	Vocabulary      []string
	MaxDensity      RationalModel
	Cooling         int64
	Threshold       int64
	WarrantValidity int64
}

// AuthorityModel names a sovereign (non-delegated) authority, the scope
// partition it may bind and the actions it may take or delegate.
type AuthorityModel struct {
	Did     string
	Scope   string
	Actions []string
}

// RationalModel is an exact ratio. Density comparisons cross-multiply with
// integers so replay never depends on floating point behaviour.
type RationalModel struct {
	Num int64
	Den int64
}
