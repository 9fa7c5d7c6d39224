package index

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// Key identifies a triple for distinct tracking.
type Key [4]fixpoint.ID

// ChangeKey builds a distinct key from a change.
func ChangeKey(c fixpoint.Change) Key {
	return Key{c.E, c.A, c.V, c.N}
}

// DistinctIndex converts a bag stream into a set-semantics stream: per key
// and per round it tracks the running count and emits +1 on the round where
// the total transitions 0 -> positive and -1 where it transitions back.
// Duplicate derivations therefore do not amplify, and a retraction lands on
// exactly the round where the fact had first appeared.
type DistinctIndex struct {
	counts map[Key]RoundCounts
}

// NewDistinctIndex creates an empty distinct index.
func NewDistinctIndex() *DistinctIndex {
	return &DistinctIndex{counts: make(map[Key]RoundCounts)}
}

// Distinct folds a delta into the running counts for key and calls emit for
// every round whose set-semantics output changes.
func (d *DistinctIndex) Distinct(key Key, round, count int, emit func(round, delta int)) {
	rc := d.counts[key]
	before := rc.Presence()
	rc = rc.Add(round, count)
	d.counts[key] = rc
	after := rc.Presence()
	for _, delta := range TransitionDeltas(before, after) {
		emit(delta.Round, delta.Count)
	}
}

// Sum returns the running bag total for a key across all rounds.
func (d *DistinctIndex) Sum(key Key) int {
	total := 0
	for _, c := range d.counts[key] {
		total = fixpoint.AddCounts(total, c)
	}
	return total
}

// Clear resets the index. Round profiles normally persist across
// transactions so retractions land on the round where a fact first
// appeared; Clear exists for tests and context teardown.
func (d *DistinctIndex) Clear() {
	d.counts = make(map[Key]RoundCounts)
}
