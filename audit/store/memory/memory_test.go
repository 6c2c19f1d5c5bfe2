package memory

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndGet(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(0, []byte("a")))
	require.NoError(t, s.Append(1, []byte("b")))

	data, ok, err := s.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("b"), data)

	_, ok, err = s.Get(7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(3, []byte("a")))
	require.Error(t, s.Append(3, []byte("b")))
	require.Error(t, s.Append(2, []byte("c")))
	require.NoError(t, s.Append(4, []byte("d")))
}

func TestIterateSnapshot(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(0, []byte("a")))
	it, err := s.Iterate()
	require.NoError(t, err)

	// An append after Iterate must not show up in the running iteration.
	require.NoError(t, s.Append(1, []byte("b")))

	e, err := it.Next()
	require.NoError(t, err)
	require.Equal(t, uint64(0), e.Cycle)
	_, err = it.Next()
	require.Equal(t, io.EOF, err)
	require.NoError(t, s.Close())
}
