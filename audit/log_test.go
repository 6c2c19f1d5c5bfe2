package audit_test

import (
	"testing"

	"github.com/macterra/go-authority-kernel/audit"
	auditdm "github.com/macterra/go-authority-kernel/audit/datamodel"
	"github.com/macterra/go-authority-kernel/audit/store/memory"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/testing/helpers"
	"github.com/stretchr/testify/require"
)

func emptyRecord(t *testing.T, cycle uint64, prev, constitution ipld.Link) *audit.Record {
	t.Helper()
	end, err := audit.StateHash(prev, constitution, nil, nil, nil)
	require.NoError(t, err)
	r, err := audit.FromModel(auditdm.CycleRecordModel{
		Cycle:          int64(cycle),
		Constitution:   constitution,
		StateHashStart: prev,
		StateHashEnd:   end,
		Decisions:      []auditdm.DecisionModel{},
		Events:         []auditdm.EventRecordModel{},
		Warrants:       []ipld.Link{},
		Completions:    []auditdm.CompletionModel{},
	})
	require.NoError(t, err)
	return r
}

func TestStateHashDeterministic(t *testing.T) {
	prev := helpers.RandomCID()
	constitution := helpers.RandomCID()
	decisions := []auditdm.DecisionModel{
		{Artifact: helpers.RandomCID(), Gate: "grant", Reason: "", Admitted: true},
	}

	h1, err := audit.StateHash(prev, constitution, decisions, nil, nil)
	require.NoError(t, err)
	h2, err := audit.StateHash(prev, constitution, decisions, nil, nil)
	require.NoError(t, err)
	require.Equal(t, h1.String(), h2.String())

	// Nil and empty inputs hash identically, so an idle cycle is stable
	// whichever way the caller builds it.
	h3, err := audit.StateHash(prev, constitution, []auditdm.DecisionModel{}, []auditdm.EventRecordModel{}, []ipld.Link{})
	require.NoError(t, err)
	h4, err := audit.StateHash(prev, constitution, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, h3.String(), h4.String())

	h5, err := audit.StateHash(helpers.RandomCID(), constitution, decisions, nil, nil)
	require.NoError(t, err)
	require.NotEqual(t, h1.String(), h5.String())
}

func TestLogAppend(t *testing.T) {
	genesis := helpers.RandomCID()
	constitution := helpers.RandomCID()
	log, err := audit.NewLog(genesis, memory.NewStore())
	require.NoError(t, err)
	require.Equal(t, genesis, log.Head())
	require.Equal(t, uint64(0), log.NextCycle())

	r0 := emptyRecord(t, 0, genesis, constitution)
	require.NoError(t, log.Append(r0))
	require.Equal(t, r0.StateHashEnd().String(), log.Head().String())
	require.Equal(t, uint64(1), log.NextCycle())

	// A record that does not chain on the head is refused.
	require.Error(t, log.Append(emptyRecord(t, 1, helpers.RandomCID(), constitution)))
	// As is one with the wrong cycle number.
	require.Error(t, log.Append(emptyRecord(t, 2, log.Head(), constitution)))

	r1 := emptyRecord(t, 1, log.Head(), constitution)
	require.NoError(t, log.Append(r1))
	require.Equal(t, uint64(2), log.NextCycle())
}

func TestNewLogRestoresChain(t *testing.T) {
	genesis := helpers.RandomCID()
	constitution := helpers.RandomCID()
	s := memory.NewStore()
	log, err := audit.NewLog(genesis, s)
	require.NoError(t, err)
	require.NoError(t, log.Append(emptyRecord(t, 0, genesis, constitution)))
	require.NoError(t, log.Append(emptyRecord(t, 1, log.Head(), constitution)))
	head := log.Head()

	reopened, err := audit.NewLog(genesis, s)
	require.NoError(t, err)
	require.Equal(t, head.String(), reopened.Head().String())
	require.Equal(t, uint64(2), reopened.NextCycle())

	records, err := iterateAll(reopened)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, uint64(0), records[0].Cycle())
	require.Equal(t, uint64(1), records[1].Cycle())
}

func TestNewLogRejectsBrokenChain(t *testing.T) {
	genesis := helpers.RandomCID()
	constitution := helpers.RandomCID()
	s := memory.NewStore()
	r := emptyRecord(t, 0, helpers.RandomCID(), constitution)
	require.NoError(t, s.Append(0, r.Block().Bytes()))

	_, err := audit.NewLog(genesis, s)
	require.Error(t, err)
}

func TestDecodeRecordRoundtrip(t *testing.T) {
	r := emptyRecord(t, 0, helpers.RandomCID(), helpers.RandomCID())
	decoded, err := audit.DecodeRecord(r.Block().Bytes())
	require.NoError(t, err)
	require.Equal(t, r.Block().Link().String(), decoded.Block().Link().String())
	require.Equal(t, r.Cycle(), decoded.Cycle())
}

func iterateAll(log *audit.Log) ([]*audit.Record, error) {
	it, err := log.Iterate()
	if err != nil {
		return nil, err
	}
	var out []*audit.Record
	for {
		r, err := it.Next()
		if err != nil {
			break
		}
		out = append(out, r)
	}
	return out, nil
}
