package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIteratorPushNext(t *testing.T) {
	it := NewIterator()
	p := NewPrefix(2)
	p[0] = 7
	p.SetRound(1)
	p.SetCount(1)
	it.Push(p)

	// The iterator owns a copy; mutating the source is invisible.
	p[0] = 9
	got := it.Next()
	require.NotNil(t, got)
	require.Equal(t, 7, int(got[0]))
	require.Nil(t, it.Next())

	it.Reset()
	require.NotNil(t, it.Next())
}

func TestIteratorClearKeepsStorage(t *testing.T) {
	it := NewIterator()
	p := NewPrefix(1)
	for i := 0; i < 4; i++ {
		p[0] = 1
		it.Push(p)
	}
	require.Equal(t, 4, it.Len())

	it.Clear()
	require.Equal(t, 0, it.Len())
	require.Nil(t, it.Next())

	p[0] = 5
	it.Push(p)
	require.Equal(t, 1, it.Len())
	require.Equal(t, 5, int(it.At(0)[0]))
}

func TestPrefixRoundCount(t *testing.T) {
	p := NewPrefix(3)
	p.SetRound(4)
	p.SetCount(-2)
	require.Equal(t, 4, p.Round())
	require.Equal(t, -2, p.Count())
	require.Len(t, p.Registers(), 3)

	c := p.Copy()
	c.SetCount(9)
	require.Equal(t, -2, p.Count())
}
