package datamodel

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/schema"
)

//go:embed warrant.ipldsch
var warrantsch []byte

var (
	once sync.Once
	ts   *schema.TypeSystem
	err  error
)

func mustLoadSchema() *schema.TypeSystem {
	once.Do(func() {
		ts, err = ipld.LoadSchemaBytes(warrantsch)
	})
	if err != nil {
		panic(fmt.Errorf("failed to load IPLD schema: %s", err))
	}
	return ts
}

func Type() schema.Type {
	return mustLoadSchema().TypeByName("Warrant")
}

// WarrantModel binds an admitted request to a single execution right. The
// warrant id is the CID of the canonical encoding of this value, signature
// included.
type WarrantModel struct {
	Authority string
	Request   datamodel.Link
	Scope     string
	Issued    int64
	Expires   int64
	Signature []byte
}
