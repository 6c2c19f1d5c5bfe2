package block

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/ipld/go-ipld-prime"
	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/ipld/go-ipld-prime/node/bindnode"
	"github.com/ipld/go-ipld-prime/schema"
	"github.com/macterra/go-authority-kernel/core/ipld/codec"
	"github.com/macterra/go-authority-kernel/core/ipld/hash"
)

type Block interface {
	Link() ipld.Link
	Bytes() []byte
}

type block struct {
	link  ipld.Link
	bytes []byte
}

func (b *block) Link() ipld.Link {
	return b.link
}

func (b *block) Bytes() []byte {
	return b.bytes
}

func NewBlock(link ipld.Link, bytes []byte) Block {
	return &block{link, bytes}
}

// Encode marshals the value with the given codec, hashes the bytes and
// returns a block whose link is a CIDv1 derived from both. The resulting
// link is the value's identity everywhere in the kernel.
func Encode(value any, typ schema.Type, codec codec.Encoder, hasher hash.Hasher, opts ...bindnode.Option) (Block, error) {
	b, err := codec.Encode(value, typ, opts...)
	if err != nil {
		return nil, fmt.Errorf("encoding block: %w", err)
	}
	return NewBlockFromBytes(b, codec.Code(), hasher)
}

// NewBlockFromBytes hashes pre-encoded bytes and constructs the block.
func NewBlockFromBytes(b []byte, code uint64, hasher hash.Hasher) (Block, error) {
	d, err := hasher.Sum(b)
	if err != nil {
		return nil, fmt.Errorf("hashing block bytes: %w", err)
	}
	c := cid.NewCidV1(code, d.Bytes())
	return &block{cidlink.Link{Cid: c}, b}, nil
}

// Decode unmarshals block bytes into the bound Go value, verifying nothing;
// callers that need digest verification should re-encode and compare links.
func Decode(b Block, bind any, typ schema.Type, codec codec.Decoder, opts ...bindnode.Option) error {
	return codec.Decode(b.Bytes(), bind, typ, opts...)
}
