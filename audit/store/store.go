// Package store abstracts durable, append-only storage of audit log
// entries. Keys are cycle numbers; entries are opaque canonical blocks.
package store

import (
	"github.com/macterra/go-authority-kernel/core/iterable"
)

// Entry is one stored cycle record in its encoded form.
type Entry struct {
	Cycle uint64
	Data  []byte
}

// Store is an append-only map from cycle number to encoded record.
// Implementations must iterate in strictly ascending cycle order.
type Store interface {
	Append(cycle uint64, data []byte) error
	Get(cycle uint64) ([]byte, bool, error)
	Iterate() (iterable.Iterator[Entry], error)
	Close() error
}
