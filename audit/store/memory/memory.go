// Package memory is the in-process audit store used by tests and replay.
package memory

import (
	"fmt"
	"sync"

	"github.com/macterra/go-authority-kernel/audit/store"
	"github.com/macterra/go-authority-kernel/core/iterable"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []store.Entry
}

func NewStore() store.Store {
	return &memoryStore{}
}

func (s *memoryStore) Append(cycle uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.entries); n > 0 && cycle <= s.entries[n-1].Cycle {
		return fmt.Errorf("out of order append: cycle %d after %d", cycle, s.entries[n-1].Cycle)
	}
	cp := append([]byte{}, data...)
	s.entries = append(s.entries, store.Entry{Cycle: cycle, Data: cp})
	return nil
}

func (s *memoryStore) Get(cycle uint64) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Cycle == cycle {
			return e.Data, true, nil
		}
	}
	return nil, false, nil
}

func (s *memoryStore) Iterate() (iterable.Iterator[store.Entry], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := append([]store.Entry{}, s.entries...)
	return iterable.From(snapshot), nil
}

func (s *memoryStore) Close() error {
	return nil
}
