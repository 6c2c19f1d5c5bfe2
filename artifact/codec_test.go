package artifact

import (
	"fmt"
	"testing"

	adm "github.com/macterra/go-authority-kernel/artifact/datamodel"
	"github.com/macterra/go-authority-kernel/core/ipld/block"
	"github.com/macterra/go-authority-kernel/core/ipld/codec/json"
	ihash "github.com/macterra/go-authority-kernel/core/ipld/hash/sha256"
	"github.com/macterra/go-authority-kernel/testing/fixtures"
	"github.com/macterra/go-authority-kernel/testing/helpers"
	"github.com/stretchr/testify/require"
)

func testGrant(t *testing.T) Artifact {
	t.Helper()
	a, err := NewGrant(fixtures.Alice, fixtures.Bob.DID(), []string{"read", "write"}, "org/data", 1, 5)
	require.NoError(t, err)
	return a
}

func TestDecodeRejectsProse(t *testing.T) {
	codec := helpers.Must(NewCodec(0))
	_, rej := codec.Decode([]byte("I believe a grant should be issued to Bob."))
	require.NotNil(t, rej)
	require.Equal(t, NoStructure, rej.Code())
}

func TestDecodeRejectsMultipleObjects(t *testing.T) {
	codec := helpers.Must(NewCodec(0))
	_, rej := codec.Decode([]byte(`{"a":1} and also {"b":2}`))
	require.NotNil(t, rej)
	require.Equal(t, AmbiguousMultiBlock, rej.Code())
}

func TestDecodeRejectsUnknownShape(t *testing.T) {
	codec := helpers.Must(NewCodec(0))
	_, rej := codec.Decode([]byte(`{"note":"not an artifact"}`))
	require.NotNil(t, rej)
	require.Equal(t, SchemaInvalid, rej.Code())
}

func TestDecodeRejectsTwoMembers(t *testing.T) {
	g := testGrant(t)
	r := helpers.Must(NewRevocation(fixtures.Alice, g.Link()))
	gb := helpers.Must(json.Encode(g.Model(), adm.Type()))
	rb := helpers.Must(json.Encode(r.Model(), adm.Type()))
	spliced := fmt.Sprintf("%s,%s", gb[:len(gb)-1], rb[1:])

	codec := helpers.Must(NewCodec(0))
	_, rej := codec.Decode([]byte(spliced))
	require.NotNil(t, rej)
	require.Equal(t, SchemaInvalid, rej.Code())
}

func TestDecodeExtractsFromProse(t *testing.T) {
	a := testGrant(t)
	jb, err := json.Encode(a.Model(), adm.Type())
	require.NoError(t, err)

	codec := helpers.Must(NewCodec(0))
	input := fmt.Sprintf("Proposed treaty follows.\n%s\nEnd of proposal.", jb)
	got, rej := codec.Decode([]byte(input))
	require.Nil(t, rej)
	require.Equal(t, KindGrant, got.Kind())
	require.Equal(t, a.Link().String(), got.Link().String())

	// A different prose wrapper around the same object is the same artifact.
	again, rej := codec.Decode([]byte("completely different framing " + string(jb)))
	require.Nil(t, rej)
	require.Equal(t, got.Link().String(), again.Link().String())
}

func TestDecodeNormalizesActionOrder(t *testing.T) {
	a := helpers.Must(NewGrant(fixtures.Alice, fixtures.Bob.DID(), []string{"write", "read", "read"}, "org/data", 1, 5))
	require.Equal(t, []string{"read", "write"}, a.Grant().Actions)
}

func TestDecodeRejectsBadDID(t *testing.T) {
	codec := helpers.Must(NewCodec(0))
	input := `{"grant":{"grantor":"alice","grantee":"bob","actions":["read"],"scope":"org","cycle":1,"duration":5,"signature":{"/":{"bytes":""}}}}`
	_, rej := codec.Decode([]byte(input))
	require.NotNil(t, rej)
	require.Equal(t, SchemaInvalid, rej.Code())
}

func TestVerifyIssuer(t *testing.T) {
	a := testGrant(t)
	ok, err := VerifyIssuer(a)
	require.NoError(t, err)
	require.True(t, ok)

	// Tampering with any signed field breaks verification.
	m := *a.Model()
	g := *m.Grant
	g.Scope = "org/everything"
	m.Grant = &g
	tampered, err := FromModel(&m)
	require.NoError(t, err)
	ok, err = VerifyIssuer(tampered)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeBlockRejectsNonCanonical(t *testing.T) {
	a := testGrant(t)
	other := helpers.Must(NewRevocation(fixtures.Alice, a.Link()))

	// Valid artifact bytes behind the wrong CID are tampering.
	forged, err := block.NewBlockFromBytes(other.Block().Bytes(), 0x71, ihash.Hasher)
	require.NoError(t, err)
	_, err = DecodeBlock(forged)
	require.NoError(t, err)

	mismatched := block.NewBlock(a.Link(), other.Block().Bytes())
	_, err = DecodeBlock(mismatched)
	require.Error(t, err)
}

func TestScanObjectsSkipsStrings(t *testing.T) {
	spans := scanObjects([]byte(`prose {"a":"b{c}d"} trailing`))
	require.Len(t, spans, 1)
	require.Equal(t, `{"a":"b{c}d"}`, string(spans[0]))

	spans = scanObjects([]byte(`{"a":{"nested":true}}`))
	require.Len(t, spans, 1)
}
