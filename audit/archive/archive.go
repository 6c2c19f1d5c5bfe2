// Package archive moves audit logs across trust boundaries as CARv1 files:
// the cycle records are the roots, the artifact and constitution blocks ride
// along so the archive is replayable on its own.
package archive

import (
	"fmt"
	"io"
	"sort"

	"github.com/macterra/go-authority-kernel/audit"
	"github.com/macterra/go-authority-kernel/core/car"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/iterable"
)

// Export streams the log and the supplied supporting blocks as a CAR. The
// roots are the record CIDs in cycle order.
func Export(log *audit.Log, blocks iterable.Iterator[ipld.Block]) (io.Reader, error) {
	it, err := log.Iterate()
	if err != nil {
		return nil, err
	}
	records, err := iterable.Collect(it)
	if err != nil {
		return nil, err
	}
	roots := make([]ipld.Link, 0, len(records))
	recordBlocks := make([]ipld.Block, 0, len(records))
	for _, r := range records {
		roots = append(roots, r.Block().Link())
		recordBlocks = append(recordBlocks, r.Block())
	}
	return car.Encode(roots, iterable.Concat(iterable.From(recordBlocks), blocks)), nil
}

// Import reads a CAR archive back into cycle records plus the block map of
// everything else it carried. Every block digest is verified during decode;
// a root that is not a well formed cycle record fails the import.
func Import(reader io.Reader) ([]*audit.Record, map[string]ipld.Block, error) {
	roots, it, err := car.Decode(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading archive: %w", err)
	}
	blocks := map[string]ipld.Block{}
	for {
		blk, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("reading archive block: %w", err)
		}
		blocks[blk.Link().String()] = blk
	}

	var records []*audit.Record
	for _, root := range roots {
		blk, ok := blocks[root.String()]
		if !ok {
			return nil, nil, fmt.Errorf("archive root %s has no block", root)
		}
		r, err := audit.DecodeRecord(blk.Bytes())
		if err != nil {
			return nil, nil, fmt.Errorf("decoding record %s: %w", root, err)
		}
		records = append(records, r)
		delete(blocks, root.String())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Cycle() < records[j].Cycle()
	})
	return records, blocks, nil
}
