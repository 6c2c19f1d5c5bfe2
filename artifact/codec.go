package artifact

import (
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/core/ipld"
	"github.com/macterra/go-authority-kernel/core/ipld/block"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/cbor"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/json"
	ihash "github.com/macterra/go-authority-kernel/core/ipld/hash/sha256"
)

// Rejection codes. Stable: they appear verbatim in audit records and must be
// identical between a live run and its replay.
const (
	NoStructure         = "NO_STRUCTURE"
	AmbiguousMultiBlock = "AMBIGUOUS_MULTI_BLOCK"
	SchemaInvalid       = "SCHEMA_INVALID"
)

// RejectionError is a typed refusal to canonicalize untrusted input.
type RejectionError struct {
	code    string
	message string
}

func (e *RejectionError) Name() string {
	return e.code
}

func (e *RejectionError) Code() string {
	return e.code
}

func (e *RejectionError) Error() string {
	return e.message
}

func newRejection(code, message string) *RejectionError {
	return &RejectionError{code, message}
}

type decoded struct {
	art Artifact
	rej *RejectionError
}

// Codec turns untrusted structured text into exactly one canonical typed
// artifact, or a typed rejection. It is total, deterministic and side effect
// free; the LRU is pure memoization keyed by a digest of the input.
type Codec struct {
	cache *lru.Cache[[32]byte, decoded]
}

var DefaultCacheSize = 1024

func NewCodec(size int) (*Codec, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[[32]byte, decoded](size)
	if err != nil {
		return nil, fmt.Errorf("creating artifact decode LRU: %w", err)
	}
	return &Codec{cache}, nil
}

// Decode extracts a single DAG-JSON object from the input, tolerating
// surrounding prose (syntactic extraction only, never repair), binds it
// against the artifact schema and re-encodes it canonically. The canonical
// block's CID is the artifact's identity.
func (c *Codec) Decode(input []byte) (Artifact, *RejectionError) {
	key := sha256.Sum256(input)
	if d, ok := c.cache.Get(key); ok {
		return d.art, d.rej
	}
	art, rej := decodeInput(input)
	c.cache.Add(key, decoded{art, rej})
	return art, rej
}

func decodeInput(input []byte) (Artifact, *RejectionError) {
	spans := scanObjects(input)
	if len(spans) == 0 {
		return Artifact{}, newRejection(NoStructure, "no structured block found in input")
	}
	if len(spans) > 1 {
		return Artifact{}, newRejection(AmbiguousMultiBlock,
			fmt.Sprintf("%d structured blocks found in input, expected exactly 1", len(spans)))
	}

	var model adm.ArtifactModel
	if err := json.Decode(spans[0], &model, adm.Type()); err != nil {
		return Artifact{}, newRejection(SchemaInvalid, fmt.Sprintf("binding artifact: %s", err))
	}

	art, err := FromModel(&model)
	if err != nil {
		return Artifact{}, newRejection(SchemaInvalid, err.Error())
	}
	return art, nil
}

// FromModel normalizes and canonically encodes a typed artifact model.
func FromModel(model *adm.ArtifactModel) (Artifact, error) {
	kind, ok := kindOf(model)
	if !ok {
		return Artifact{}, fmt.Errorf("artifact must have exactly one member set")
	}
	if err := validateRefs(model); err != nil {
		return Artifact{}, err
	}
	normalize(model)
	blk, err := block.Encode(model, adm.Type(), cbor.Codec, ihash.Hasher)
	if err != nil {
		return Artifact{}, fmt.Errorf("encoding canonical artifact: %w", err)
	}
	return Artifact{kind, model, blk}, nil
}

// DecodeBlock rebuilds an artifact from its canonical block, verifying the
// bytes really are canonical by re-encoding and comparing links. Replay uses
// this; a non-canonical block in a log is tampering, not input error.
func DecodeBlock(blk ipld.Block) (Artifact, error) {
	var model adm.ArtifactModel
	if err := cbor.Decode(blk.Bytes(), &model, adm.Type()); err != nil {
		return Artifact{}, fmt.Errorf("decoding artifact block: %w", err)
	}
	art, err := FromModel(&model)
	if err != nil {
		return Artifact{}, err
	}
	if art.Link() != blk.Link() {
		return Artifact{}, fmt.Errorf("block %s is not canonical (canonical form is %s)", blk.Link(), art.Link())
	}
	return art, nil
}

// scanObjects finds top-level balanced JSON objects, skipping string
// literals. Nested objects do not count; two top-level objects do.
func scanObjects(input []byte) [][]byte {
	var spans [][]byte
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, b := range input {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					spans = append(spans, input[start:i+1])
				}
			}
		}
	}
	return spans
}
