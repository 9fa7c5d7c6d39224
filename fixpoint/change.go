package fixpoint

import (
	"fmt"
	"math"
)

// Infinity is the saturated multiplicity used when commits are promoted to
// the next frame. Count arithmetic clamps here instead of overflowing.
const Infinity = int(math.MaxInt32)

// AddCounts adds two multiplicities with saturation at +/-Infinity.
// Opposite infinities cancel: a saturated commit retracted by a saturated
// removal nets to absent.
func AddCounts(a, b int) int {
	ainf := a == Infinity || a == -Infinity
	binf := b == Infinity || b == -Infinity
	if ainf || binf {
		if ainf && binf && a != b {
			return 0
		}
		if a == Infinity || b == Infinity {
			return Infinity
		}
		return -Infinity
	}
	sum := a + b
	if sum > Infinity {
		return Infinity
	}
	if sum < -Infinity {
		return -Infinity
	}
	return sum
}

// MulCounts multiplies two multiplicities with saturation at +/-Infinity.
func MulCounts(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a == Infinity || a == -Infinity || b == Infinity || b == -Infinity {
		if (a > 0) == (b > 0) {
			return Infinity
		}
		return -Infinity
	}
	prod := a * b
	if prod > Infinity {
		return Infinity
	}
	if prod < -Infinity {
		return -Infinity
	}
	return prod
}

// ChangeKind distinguishes plain deltas from the widened remove forms,
// which carry IGNORE slots and expand against the index later.
type ChangeKind uint8

const (
	// ChangeNormal is a fully-specified (e,a,v) delta.
	ChangeNormal ChangeKind = iota
	// ChangeRemoveVs retracts every value for a bound (e,a).
	ChangeRemoveVs
	// ChangeRemoveAVs retracts every attribute and value for a bound e.
	ChangeRemoveAVs
)

// Change is the unit of flow through the engine: an interned triple plus
// its provenance node, positioned at (transaction, round) with a signed
// multiplicity.
type Change struct {
	E, A, V, N  ID
	Transaction int
	Round       int
	Count       int
	Kind        ChangeKind
}

// NewChange builds a fully-specified delta.
func NewChange(e, a, v, n ID, transaction, round, count int) Change {
	return Change{E: e, A: a, V: v, N: n, Transaction: transaction, Round: round, Count: count}
}

// BlockSignal identifies the synthetic block add/remove inputs.
func (c Change) BlockSignal() bool {
	return c.A == BlockAddID || c.A == BlockRemoveID
}

// SameTriple reports whether two changes describe the same (e,a,v,n) key.
func (c Change) SameTriple(o Change) bool {
	return c.E == o.E && c.A == o.A && c.V == o.V && c.N == o.N
}

// Reverse returns the change with its count negated.
func (c Change) Reverse() Change {
	c.Count = -c.Count
	return c
}

// WithRound returns a copy positioned at the given round.
func (c Change) WithRound(round int) Change {
	c.Round = round
	return c
}

func (c Change) String() string {
	return fmt.Sprintf("[%d %d %d %d | t%d r%d x%d]", c.E, c.A, c.V, c.N, c.Transaction, c.Round, c.Count)
}

// NewBlockAddChange builds the synthetic input that forces a block to
// compute all of its contributions against the current store.
func NewBlockAddChange(transaction int) Change {
	return Change{E: BlockAddID, A: BlockAddID, V: BlockAddID, N: BlockAddID,
		Transaction: transaction, Round: 0, Count: 1}
}

// NewBlockRemoveChange builds the synthetic input that forces a block to
// compute and retract all of its contributions.
func NewBlockRemoveChange(transaction int) Change {
	return Change{E: BlockRemoveID, A: BlockRemoveID, V: BlockRemoveID, N: BlockRemoveID,
		Transaction: transaction, Round: 0, Count: -1}
}

// RawChange is a triple delta before interning, as submitted by the driver.
type RawChange struct {
	E, A, V, N  Value
	Transaction int
	Round       int
	Count       int
}

// Intern converts a raw change into an engine change, interning each slot.
func (rc RawChange) Intern(in *Interner) Change {
	return Change{
		E:           in.Intern(rc.E),
		A:           in.Intern(rc.A),
		V:           in.Intern(rc.V),
		N:           in.Intern(rc.N),
		Transaction: rc.Transaction,
		Round:       rc.Round,
		Count:       rc.Count,
	}
}

// Raw maps a change back to raw values for export.
func (c Change) Raw(in *Interner) RawChange {
	return RawChange{
		E:           in.Reverse(c.E),
		A:           in.Reverse(c.A),
		V:           in.Reverse(c.V),
		N:           in.Reverse(c.N),
		Transaction: c.Transaction,
		Round:       c.Round,
		Count:       c.Count,
	}
}
