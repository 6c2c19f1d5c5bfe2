package hash

type Hasher interface {
	Sum(bytes []byte) (Digest, error)
}

type Digest interface {
	Code() uint64
	Size() uint64
	// Digest is the raw hash sum.
	Digest() []byte
	// Bytes is the multihash encoded sum.
	Bytes() []byte
}

type digest struct {
	code  uint64
	size  uint64
	sum   []byte
	bytes []byte
}

func (d *digest) Code() uint64 {
	return d.code
}

func (d *digest) Size() uint64 {
	return d.size
}

func (d *digest) Digest() []byte {
	return d.sum
}

func (d *digest) Bytes() []byte {
	return d.bytes
}

func NewDigest(code uint64, size uint64, sum []byte, bytes []byte) Digest {
	return &digest{code, size, sum, bytes}
}
