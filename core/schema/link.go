package schema

import (
	"bytes"
	"fmt"

	cidlink "github.com/ipld/go-ipld-prime/linking/cid"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/result/failure"
	"github.com/multiformats/go-base32"
	mh "github.com/multiformats/go-multihash"
)

type linkReader struct {
	lc *linkCfg
}

func (lr linkReader) Read(input any) (ipld.Link, failure.Failure) {
	link, asLink := input.(ipld.Link)
	if !asLink {
		node, asNode := input.(ipld.Node)
		if !asNode {
			return nil, NewSchemaError("unexpected input: not an IPLD node or link")
		}
		var err error
		link, err = node.AsLink()
		if err != nil {
			return nil, NewSchemaError(err.Error())
		}
	}

	cidLink, ok := link.(cidlink.Link)
	if !ok {
		return nil, NewSchemaError("unsupported link type")
	}
	cid := cidLink.Cid
	if lr.lc.codec != nil && cid.Prefix().Codec != *lr.lc.codec {
		return nil, NewSchemaError(fmt.Sprintf("expected link to be CID with %X codec", *lr.lc.codec))
	}

	if lr.lc.version != nil && cid.Prefix().Version != *lr.lc.version {
		return nil, NewSchemaError(fmt.Sprintf(
			"expected link to be CID version %d instead of %d", *lr.lc.version, cid.Prefix().Version))
	}

	if lr.lc.multihash != nil {
		multihash := lr.lc.multihash
		if multihash.code != nil && cid.Prefix().MhType != *multihash.code {
			return nil, NewSchemaError(fmt.Sprintf("expected link to be CID with %X hashing algorithm", *multihash.code))
		}
		if multihash.digest != nil {
			decoded, err := mh.Decode(cid.Hash())
			if err != nil {
				return nil, NewSchemaError(err.Error())
			}
			if !bytes.Equal(decoded.Digest, *multihash.digest) {
				return nil, NewSchemaError(fmt.Sprintf(
					"expected link with %s hash digest instead of %s",
					base32.StdEncoding.EncodeToString(*multihash.digest),
					base32.StdEncoding.EncodeToString(decoded.Digest)))
			}
		}
	}
	return link, nil
}

type multihashConfig struct {
	code   *uint64
	digest *[]byte
}

type MultihashOption func(*multihashConfig)

func WithAlg(code uint64) MultihashOption {
	return func(mc *multihashConfig) {
		mc.code = &code
	}
}

func WithDigest(digest []byte) MultihashOption {
	return func(mc *multihashConfig) {
		mc.digest = &digest
	}
}

type linkCfg struct {
	version   *uint64
	codec     *uint64
	multihash *multihashConfig
}

type LinkOption func(*linkCfg)

func WithVersion(version uint64) LinkOption {
	return func(lc *linkCfg) {
		lc.version = &version
	}
}

func WithCodec(codec uint64) LinkOption {
	return func(lc *linkCfg) {
		lc.codec = &codec
	}
}

func WithMultihashConfig(opts ...MultihashOption) LinkOption {
	return func(lc *linkCfg) {
		mc := &multihashConfig{}
		for _, opt := range opts {
			opt(mc)
		}
		lc.multihash = mc
	}
}

// Link reads and validates an IPLD link, optionally constraining CID
// version, codec and multihash. Revocations, endorsements and proposals all
// cite links; the kernel only accepts the canonical form it emits itself.
func Link(opts ...LinkOption) Reader[any, ipld.Link] {
	lc := &linkCfg{}
	for _, opt := range opts {
		opt(lc)
	}
	return linkReader{lc}
}
