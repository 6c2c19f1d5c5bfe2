package car

import (
	"bufio"
	"fmt"
	"io"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	ipldcar "github.com/ipld/go-car"
	"github.com/ipld/go-car/util"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/ipld/block"
	"github.com/macterra/go-authority-kernel/core/iterable"
)

// ContentType is the value the HTTP Content-Type header should have for CARs.
// See https://www.iana.org/assignments/media-types/application/vnd.ipld.car
const ContentType = "application/vnd.ipld.car"

// Encode writes the roots and blocks as a CARv1 stream. Audit archives are
// exported in this format.
func Encode(roots []ipld.Link, blocks iterable.Iterator[ipld.Block]) io.Reader {
	reader, writer := io.Pipe()
	go func() {
		cids := make([]cid.Cid, 0, len(roots))
		for _, r := range roots {
			_, c, err := cid.CidFromBytes([]byte(r.Binary()))
			if err != nil {
				writer.CloseWithError(fmt.Errorf("encoding CAR root: %s: %w", r, err))
				return
			}
			cids = append(cids, c)
		}
		h := ipldcar.CarHeader{Roots: cids, Version: 1}
		hb, err := cbor.DumpObject(h)
		if err != nil {
			writer.CloseWithError(fmt.Errorf("encoding CAR header: %w", err))
			return
		}
		if err := util.LdWrite(writer, hb); err != nil {
			writer.CloseWithError(fmt.Errorf("writing CAR header: %w", err))
			return
		}
		for {
			blk, err := blocks.Next()
			if err != nil {
				if err == io.EOF {
					break
				}
				writer.CloseWithError(fmt.Errorf("writing CAR blocks: %w", err))
				return
			}
			if err := util.LdWrite(writer, []byte(blk.Link().Binary()), blk.Bytes()); err != nil {
				writer.CloseWithError(fmt.Errorf("writing CAR block: %w", err))
				return
			}
		}
		writer.Close()
	}()
	return reader
}

// Decode reads a CARv1 stream, verifying the digest of every block against
// its CID. A mismatched block fails the whole read; archives are evidence
// and partial trust defeats them.
func Decode(reader io.Reader) ([]ipld.Link, iterable.Iterator[ipld.Block], error) {
	br := bufio.NewReader(reader)

	hb, err := util.LdRead(br)
	if err != nil {
		return nil, nil, err
	}

	var ch ipldcar.CarHeader
	if err := cbor.DecodeInto(hb, &ch); err != nil {
		return nil, nil, fmt.Errorf("invalid header: %v", err)
	}

	if ch.Version != 1 {
		return nil, nil, fmt.Errorf("invalid car version: %d", ch.Version)
	}

	roots := make([]ipld.Link, 0, len(ch.Roots))
	for _, r := range ch.Roots {
		roots = append(roots, cidlink.Link{Cid: r})
	}

	return roots, iterable.NewIterator(func() (ipld.Block, error) {
		cid, bytes, err := util.ReadNode(br)
		if err != nil {
			if err == io.EOF {
				br = nil
			}
			return nil, err
		}

		hashed, err := cid.Prefix().Sum(bytes)
		if err != nil {
			return nil, err
		}

		if !hashed.Equals(cid) {
			return nil, fmt.Errorf("content integrity mismatch, name: %s, data: %s", cid, hashed)
		}

		return block.NewBlock(cidlink.Link{Cid: cid}, bytes), nil
	}), nil
}
