// Package audit records every cycle's decisions, events and warrants as an
// append-only hash chain. The chain, not the live process, is the system of
// record: anyone holding the initial constitution and the log can recompute
// every state hash.
package audit

import (
	"fmt"
	"io"

	auditdm "github.com/macterra/go-authority-kernel/audit/datamodel"
	"github.com/macterra/go-authority-kernel/audit/store"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/ipld/block"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/cbor"
	ihash "github.com/macterra/go-authority-kernel/core/ipld/hash/sha256"
	"github.com/macterra/go-authority-kernel/core/iterable"
)

// Record is one cycle's audit entry in canonical block form.
type Record struct {
	model auditdm.CycleRecordModel
	blk   ipld.Block
}

// FromModel canonically encodes a cycle record.
func FromModel(m auditdm.CycleRecordModel) (*Record, error) {
	blk, err := block.Encode(&m, auditdm.RecordType(), cbor.Codec, ihash.Hasher)
	if err != nil {
		return nil, fmt.Errorf("encoding cycle record: %w", err)
	}
	return &Record{model: m, blk: blk}, nil
}

// DecodeRecord rebinds a stored entry.
func DecodeRecord(data []byte) (*Record, error) {
	var m auditdm.CycleRecordModel
	if err := cbor.Decode(data, &m, auditdm.RecordType()); err != nil {
		return nil, fmt.Errorf("decoding cycle record: %w", err)
	}
	return FromModel(m)
}

func (r *Record) Model() auditdm.CycleRecordModel {
	return r.model
}

func (r *Record) Block() ipld.Block {
	return r.blk
}

func (r *Record) Cycle() uint64 {
	return uint64(r.model.Cycle)
}

func (r *Record) StateHashStart() ipld.Link {
	return r.model.StateHashStart
}

func (r *Record) StateHashEnd() ipld.Link {
	return r.model.StateHashEnd
}

func (r *Record) Decisions() []auditdm.DecisionModel {
	return r.model.Decisions
}

// StateHash computes the post-cycle state hash: the CID of the canonical
// encoding of the summary chained on prev. The genesis hash is the CID of
// the initial constitution, so the chain is anchored in content, not clock.
func StateHash(prev, constitution ipld.Link, decisions []auditdm.DecisionModel, events []auditdm.EventRecordModel, warrants []ipld.Link) (ipld.Link, error) {
	m := auditdm.StateSummaryModel{
		Prev:         prev,
		Constitution: constitution,
		Decisions:    decisions,
		Events:       events,
		Warrants:     warrants,
	}
	if m.Decisions == nil {
		m.Decisions = []auditdm.DecisionModel{}
	}
	if m.Events == nil {
		m.Events = []auditdm.EventRecordModel{}
	}
	if m.Warrants == nil {
		m.Warrants = []ipld.Link{}
	}
	blk, err := block.Encode(&m, auditdm.SummaryType(), cbor.Codec, ihash.Hasher)
	if err != nil {
		return nil, fmt.Errorf("encoding state summary: %w", err)
	}
	return blk.Link(), nil
}

// Log is the hash-chained audit log over a backing store.
type Log struct {
	store store.Store
	head  ipld.Link
	next  uint64
}

// NewLog opens a log whose chain is anchored at genesis. If the store
// already holds records the chain is verified and the head restored; a
// broken chain is unusable, not repairable.
func NewLog(genesis ipld.Link, s store.Store) (*Log, error) {
	l := &Log{store: s, head: genesis}
	it, err := s.Iterate()
	if err != nil {
		return nil, err
	}
	for {
		e, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		r, err := DecodeRecord(e.Data)
		if err != nil {
			return nil, fmt.Errorf("cycle %d: %w", e.Cycle, err)
		}
		if err := l.check(r); err != nil {
			return nil, err
		}
		l.head = r.StateHashEnd()
		l.next = r.Cycle() + 1
	}
	return l, nil
}

func (l *Log) check(r *Record) error {
	if r.Cycle() != l.next {
		return fmt.Errorf("audit chain gap: expected cycle %d, got %d", l.next, r.Cycle())
	}
	if r.StateHashStart().String() != l.head.String() {
		return fmt.Errorf("audit chain break at cycle %d: starts at %s, head is %s",
			r.Cycle(), r.StateHashStart(), l.head)
	}
	return nil
}

// Head is the state hash after the last appended cycle, or the genesis hash
// for an empty log.
func (l *Log) Head() ipld.Link {
	return l.head
}

// NextCycle is the cycle number the next record must carry.
func (l *Log) NextCycle() uint64 {
	return l.next
}

// Append links a record onto the chain. Chain violations fail before the
// store is touched; a store failure after validation is fatal to the caller,
// the cycle must not be considered committed.
func (l *Log) Append(r *Record) error {
	if err := l.check(r); err != nil {
		return err
	}
	if err := l.store.Append(r.Cycle(), r.Block().Bytes()); err != nil {
		return fmt.Errorf("appending cycle %d: %w", r.Cycle(), err)
	}
	l.head = r.StateHashEnd()
	l.next = r.Cycle() + 1
	return nil
}

// Iterate replays the stored records oldest first.
func (l *Log) Iterate() (iterable.Iterator[*Record], error) {
	it, err := l.store.Iterate()
	if err != nil {
		return nil, err
	}
	return iterable.NewIterator(func() (*Record, error) {
		e, err := it.Next()
		if err != nil {
			return nil, err
		}
		return DecodeRecord(e.Data)
	}), nil
}
