package main

import (
	"fmt"
	"path/filepath"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ipfs/go-cid"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/ipld/block"
)

var blockPrefix = []byte("blocks/")

func openDB() (*badgerdb.DB, error) {
	opts := badgerdb.DefaultOptions(filepath.Join(dataDir, "db"))
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening kernel database: %w", err)
	}
	return db, nil
}

func blockKey(l ipld.Link) []byte {
	return append(append([]byte{}, blockPrefix...), []byte(l.Binary())...)
}

// persistBlocks writes the kernel's block set so restarts and exports can
// resolve artifacts by CID.
func persistBlocks(db *badgerdb.DB, blocks []ipld.Block) error {
	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, b := range blocks {
		if err := wb.Set(blockKey(b.Link()), b.Bytes()); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func getBlock(db *badgerdb.DB, l ipld.Link) (ipld.Block, bool) {
	var data []byte
	err := db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(blockKey(l))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false
	}
	return block.NewBlock(l, data), true
}

func allBlocks(db *badgerdb.DB) ([]ipld.Block, error) {
	var out []ipld.Block
	err := db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = blockPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(blockPrefix); it.ValidForPrefix(blockPrefix); it.Next() {
			item := it.Item()
			c, err := cid.Cast(item.Key()[len(blockPrefix):])
			if err != nil {
				return fmt.Errorf("malformed block key: %w", err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, block.NewBlock(cidlink.Link{Cid: c}, data))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
