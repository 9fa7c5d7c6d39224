// Package index holds the in-memory storage structures of the evaluation
// core: the multi-permutation triple index and the distinct index that
// reduces bag multiplicities to set semantics round by round.
package index

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// RoundCounts is a per-round tally of signed multiplicities. Index i holds
// the net count contributed at round i.
type RoundCounts []int

// Add accumulates a count at a round, growing the slice as needed.
func (rc RoundCounts) Add(round, count int) RoundCounts {
	for len(rc) <= round {
		rc = append(rc, 0)
	}
	rc[round] = fixpoint.AddCounts(rc[round], count)
	return rc
}

// Presence returns the 0/1 profile of the running total: presence[i] is 1
// when the sum of counts through round i is positive.
func (rc RoundCounts) Presence() []int {
	presence := make([]int, len(rc))
	total := 0
	for i, c := range rc {
		total = fixpoint.AddCounts(total, c)
		if total > 0 {
			presence[i] = 1
		}
	}
	return presence
}

// Transitions returns the derivative of the presence profile: one entry per
// round where the running total crosses between zero and positive. Each
// entry is sign * (round + 1), so round 0 keeps its sign.
func (rc RoundCounts) Transitions() []int {
	var out []int
	total := 0
	prev := 0
	for round, c := range rc {
		total = fixpoint.AddCounts(total, c)
		cur := 0
		if total > 0 {
			cur = 1
		}
		switch {
		case cur > prev:
			out = append(out, round+1)
		case cur < prev:
			out = append(out, -(round + 1))
		}
		prev = cur
	}
	return out
}

// TransitionDeltas compares two presence profiles and returns the rounds at
// which their derivatives differ, with the signed difference. This is the
// primitive behind the distinct index and the antijoin's zeroing pass.
// Presence is cumulative, so a profile shorter than the other keeps its last
// value past its end.
func TransitionDeltas(before, after []int) []RoundDelta {
	n := len(before)
	if len(after) > n {
		n = len(after)
	}
	var out []RoundDelta
	prevB, prevA := 0, 0
	for i := 0; i < n; i++ {
		b, a := 0, 0
		if i < len(before) {
			b = before[i]
		} else if len(before) > 0 {
			b = before[len(before)-1]
		}
		if i < len(after) {
			a = after[i]
		} else if len(after) > 0 {
			a = after[len(after)-1]
		}
		db := b - prevB
		da := a - prevA
		if da != db {
			out = append(out, RoundDelta{Round: i, Count: da - db})
		}
		prevB, prevA = b, a
	}
	return out
}

// RoundDelta is a signed multiplicity positioned at a round.
type RoundDelta struct {
	Round int
	Count int
}
