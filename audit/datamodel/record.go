package datamodel

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/ipld/go-ipld-prime"
	"github.com/ipld/go-ipld-prime/datamodel"
	"github.com/ipld/go-ipld-prime/schema"
)

//go:embed record.ipldsch
var recordsch []byte

var (
	once sync.Once
	ts   *schema.TypeSystem
	err  error
)

func mustLoadSchema() *schema.TypeSystem {
	once.Do(func() {
		ts, err = ipld.LoadSchemaBytes(recordsch)
	})
	if err != nil {
		panic(fmt.Errorf("failed to load IPLD schema: %s", err))
	}
	return ts
}

func RecordType() schema.Type {
	return mustLoadSchema().TypeByName("CycleRecord")
}

func SummaryType() schema.Type {
	return mustLoadSchema().TypeByName("StateSummary")
}

// DecisionModel is one (artifact, gate, reason) outcome. The triple must be
// byte-stable across replay.
type DecisionModel struct {
	Artifact datamodel.Link
	Gate     string
	Reason   string
	Admitted bool
}

// EventRecordModel mirrors one ledger event into the audit log.
type EventRecordModel struct {
	Type  string
	Grant datamodel.Link
	Cycle int64
	Ref   datamodel.Link
	Cause *string
}

// CompletionModel is an executor's report that a warrant was exercised.
// Informational only, never an authorization input, excluded from the state
// hash.
type CompletionModel struct {
	Warrant datamodel.Link
	Ok      bool
	Note    string
}

// StateSummaryModel is the value whose canonical CID is the post-cycle
// state hash. It chains on the previous hash.
type StateSummaryModel struct {
	Prev         datamodel.Link
	Constitution datamodel.Link
	Decisions    []DecisionModel
	Events       []EventRecordModel
	Warrants     []datamodel.Link
}

// CycleRecordModel is one append-only audit log entry covering a full cycle.
type CycleRecordModel struct {
	Cycle          int64
	Constitution   datamodel.Link
	StateHashStart datamodel.Link
	StateHashEnd   datamodel.Link
	Decisions      []DecisionModel
	Events         []EventRecordModel
	Warrants       []datamodel.Link
	Completions    []CompletionModel
}
