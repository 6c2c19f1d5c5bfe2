// Package badger persists the audit log in a BadgerDB keyspace. Keys are
// big-endian cycle numbers so the natural key order is the cycle order.
package badger

import (
	"encoding/binary"
	"fmt"
	"io"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/macterra/go-authority-kernel/audit/store"
	"github.com/macterra/go-authority-kernel/core/iterable"
)

var prefix = []byte("audit/cycle/")

type badgerStore struct {
	db *badgerdb.DB
}

// NewStore opens (or creates) a store at path.
func NewStore(path string) (store.Store, error) {
	opts := badgerdb.DefaultOptions(path)
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	return &badgerStore{db: db}, nil
}

// Wrap adapts an already open database, sharing it with other keyspaces.
func Wrap(db *badgerdb.DB) store.Store {
	return &badgerStore{db: db}
}

func key(cycle uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], cycle)
	return k
}

func (s *badgerStore) Append(cycle uint64, data []byte) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		k := key(cycle)
		if _, err := txn.Get(k); err == nil {
			return fmt.Errorf("cycle %d already recorded", cycle)
		} else if err != badgerdb.ErrKeyNotFound {
			return err
		}
		return txn.Set(k, data)
	})
}

func (s *badgerStore) Get(cycle uint64) ([]byte, bool, error) {
	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(cycle))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badgerdb.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Iterate snapshots the whole keyspace up front. Audit logs are read far
// less often than written; replay wants a stable view anyway.
func (s *badgerStore) Iterate() (iterable.Iterator[store.Entry], error) {
	var entries []store.Entry
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.Key()
			if len(k) != len(prefix)+8 {
				return fmt.Errorf("malformed audit key %x", k)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, store.Entry{
				Cycle: binary.BigEndian.Uint64(k[len(prefix):]),
				Data:  data,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	i := 0
	return iterable.NewIterator(func() (store.Entry, error) {
		if i >= len(entries) {
			return store.Entry{}, io.EOF
		}
		e := entries[i]
		i++
		return e, nil
	}), nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
