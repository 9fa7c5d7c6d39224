package index

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

const (
	e1 fixpoint.ID = 10
	e2 fixpoint.ID = 11
	a1 fixpoint.ID = 20
	v1 fixpoint.ID = 30
	v2 fixpoint.ID = 31
	n1 fixpoint.ID = 40
)

func change(e, a, v, n fixpoint.ID, txn, round, count int) fixpoint.Change {
	return fixpoint.NewChange(e, a, v, n, txn, round, count)
}

func TestTripleIndexCheck(t *testing.T) {
	ix := NewTripleIndex()
	ix.Insert(change(e1, a1, v1, n1, 1, 0, 1))

	require.True(t, ix.Check(e1, a1, v1, n1, 1, 0))
	require.True(t, ix.Check(e1, a1, v1, fixpoint.IGNORE, 1, 0))
	require.False(t, ix.Check(e1, a1, v2, fixpoint.IGNORE, 1, 0))

	// Visible to later transactions at any round.
	require.True(t, ix.Check(e1, a1, v1, n1, 2, 0))

	// A retraction at a later round flips the check beyond that round.
	ix.Insert(change(e1, a1, v1, n1, 1, 3, -1))
	require.True(t, ix.Check(e1, a1, v1, n1, 1, 2))
	require.False(t, ix.Check(e1, a1, v1, n1, 1, 3))
}

func TestTripleIndexCheckWildcards(t *testing.T) {
	ix := NewTripleIndex()
	ix.Insert(change(e1, a1, v1, n1, 1, 0, 1))

	// e bound, a and v wildcards
	require.True(t, ix.Check(e1, fixpoint.IGNORE, fixpoint.IGNORE, fixpoint.IGNORE, 1, 0))
	// value must still match when bound
	require.False(t, ix.Check(e1, fixpoint.IGNORE, v2, fixpoint.IGNORE, 1, 0))
	require.True(t, ix.Check(e1, fixpoint.IGNORE, v1, fixpoint.IGNORE, 1, 0))
}

func TestTripleIndexDiffs(t *testing.T) {
	ix := NewTripleIndex()
	ix.Insert(change(e1, a1, v1, n1, 2, 1, 1))
	ix.Insert(change(e1, a1, v1, n1, 2, 4, -1))

	// Appears at round 1 (+2 encoded), disappears at round 4 (-5 encoded).
	require.Equal(t, []int{2, -5}, ix.Diffs(e1, a1, v1, n1, 2))

	// From a later transaction the pair nets to nothing.
	require.Nil(t, ix.Diffs(e1, a1, v1, n1, 3))
}

func TestTripleIndexDiffsEarlierTransaction(t *testing.T) {
	ix := NewTripleIndex()
	ix.Insert(change(e1, a1, v1, n1, 1, 5, 1))

	// A fact from an earlier transaction is present from round 0.
	require.Equal(t, []int{1}, ix.Diffs(e1, a1, v1, n1, 2))
}

func TestTripleIndexProposeCheapest(t *testing.T) {
	ix := NewTripleIndex()
	ix.Insert(change(e1, a1, v1, n1, 1, 0, 1))
	ix.Insert(change(e1, a1, v2, n1, 1, 0, 1))
	ix.Insert(change(e2, a1, v1, n1, 1, 0, 1))

	// e bound, a bound, v to enumerate: two values under (e1, a1).
	prop := ix.Propose(Pattern{E: e1, A: a1, V: fixpoint.Unassigned, N: fixpoint.IGNORE})
	require.False(t, prop.Skip)
	require.Equal(t, SlotV, prop.Slot)
	require.Equal(t, 2, prop.Cardinality)

	ids := ix.ResolveProposal(Pattern{E: e1, A: a1, V: fixpoint.Unassigned, N: fixpoint.IGNORE}, prop)
	require.ElementsMatch(t, []fixpoint.ID{v1, v2}, ids)

	// a and v bound, e to enumerate.
	prop = ix.Propose(Pattern{E: fixpoint.Unassigned, A: a1, V: v1, N: fixpoint.IGNORE})
	require.Equal(t, SlotE, prop.Slot)
	require.Equal(t, 2, prop.Cardinality)

	// Everything bound or ignored: nothing to enumerate.
	prop = ix.Propose(Pattern{E: e1, A: a1, V: v1, N: fixpoint.IGNORE})
	require.True(t, prop.Skip)
}

func TestTripleIndexCurrentValues(t *testing.T) {
	ix := NewTripleIndex()
	ix.Insert(change(e1, a1, v1, n1, 1, 0, 1))
	ix.Insert(change(e1, a1, v2, n1, 1, 0, 1))
	ix.Insert(change(e1, a1, v2, n1, 2, 0, -1))

	vals := ix.CurrentValues(e1, a1, 3, 0)
	require.Equal(t, []fixpoint.ID{v1}, vals)

	attrs := ix.CurrentAttributes(e1, 3, 0)
	require.Equal(t, [][2]fixpoint.ID{{a1, v1}}, attrs)
}
