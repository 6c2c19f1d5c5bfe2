package did

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

const alice = "did:key:z6Mkod5Jr3yd5SC7UDueqK4dAAw5xYJYjksy722tA9Boxc4z"

func TestParseKey(t *testing.T) {
	d, err := Parse(alice)
	require.NoError(t, err)
	require.Equal(t, alice, d.String())
	require.True(t, d.Defined())
}

func TestParseRejectsNonDID(t *testing.T) {
	_, err := Parse("key:z6Mkod5Jr3yd5SC7UDueqK4dAAw5xYJYjksy722tA9Boxc4z")
	require.Error(t, err)
}

func TestDecodeRoundtrip(t *testing.T) {
	d0, err := Parse(alice)
	require.NoError(t, err)
	d1, err := Decode(d0.Bytes())
	require.NoError(t, err)
	require.Equal(t, alice, d1.String())
}

func TestOtherMethodsCarriedOpaquely(t *testing.T) {
	str := "did:web:authority.example"
	d0, err := Parse(str)
	require.NoError(t, err)
	require.Equal(t, str, d0.String())
	d1, err := Decode(d0.Bytes())
	require.NoError(t, err)
	require.Equal(t, str, d1.String())
}

func TestEquivalence(t *testing.T) {
	require.Equal(t, DID{}, Undef)
	d0, err := Parse(alice)
	require.NoError(t, err)
	d1, err := Parse(alice)
	require.NoError(t, err)
	require.True(t, d0 == d1)
}

func TestRoundtripJSON(t *testing.T) {
	id, err := Parse(alice)
	require.NoError(t, err)

	type object struct {
		ID       DID  `json:"id"`
		UndefID  DID  `json:"undef_id"`
		Optional *DID `json:"optional,omitempty"`
	}
	obj := object{ID: id, UndefID: Undef, Optional: &id}

	data, err := json.Marshal(obj)
	require.NoError(t, err)

	var out object
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, obj.ID, out.ID)
	require.Equal(t, obj.UndefID, out.UndefID)
	require.Equal(t, id.String(), out.Optional.String())
}
