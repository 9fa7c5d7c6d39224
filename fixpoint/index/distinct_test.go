package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(d *DistinctIndex, key Key, round, count int) []RoundDelta {
	var out []RoundDelta
	d.Distinct(key, round, count, func(r, delta int) {
		out = append(out, RoundDelta{Round: r, Count: delta})
	})
	return out
}

func TestDistinctFirstAppearance(t *testing.T) {
	d := NewDistinctIndex()
	key := Key{1, 2, 3, 4}

	require.Equal(t, []RoundDelta{{Round: 0, Count: 1}}, collect(d, key, 0, 1))

	// Re-sending the identical change emits nothing new.
	require.Nil(t, collect(d, key, 0, 1))
	require.Nil(t, collect(d, key, 0, 5))
}

func TestDistinctRetractsAtFirstRound(t *testing.T) {
	d := NewDistinctIndex()
	key := Key{1, 2, 3, 4}

	collect(d, key, 2, 1)
	collect(d, key, 5, 1)

	// Dropping the round-5 support changes nothing: the fact appeared at
	// round 2 and still holds.
	require.Nil(t, collect(d, key, 5, -1))

	// Dropping the round-2 support retracts exactly round 2.
	require.Equal(t, []RoundDelta{{Round: 2, Count: -1}}, collect(d, key, 2, -1))
}

func TestDistinctNegativeThenPositive(t *testing.T) {
	d := NewDistinctIndex()
	key := Key{9, 9, 9, 9}

	// A retraction arriving before any support keeps the key absent.
	require.Nil(t, collect(d, key, 1, -1))

	// One support at round 0 is cancelled from round 1 onward.
	got := collect(d, key, 0, 1)
	require.Equal(t, []RoundDelta{{Round: 0, Count: 1}, {Round: 1, Count: -1}}, got)
}

func TestRoundCountsTransitions(t *testing.T) {
	var rc RoundCounts
	rc = rc.Add(1, 1)
	rc = rc.Add(3, -1)
	require.Equal(t, []int{2, -4}, rc.Transitions())

	rc = RoundCounts{}
	rc = rc.Add(0, 2)
	require.Equal(t, []int{1}, rc.Transitions())
}
