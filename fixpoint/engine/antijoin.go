package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
	"github.com/wbrown/janus-fixpoint/fixpoint/index"
)

// antiJoinCore holds the shared state of the antijoin family: a keyed index
// of full left prefixes and a count-only index for the right side. A left
// prefix is emitted while no right prefix with the same key dominates its
// round; a right arrival retroactively negates matching lefts on the
// rounds where the right side transitions between empty and non-empty.
// The count-only right index is the zeroing pass: only those transitions
// are ever reported.
type antiJoinCore struct {
	keyRegisters []int
	leftIndex    *KeyedIndex
	rightCounts  *KeyedCountIndex
}

func newAntiJoinCore(keyRegisters []int) *antiJoinCore {
	return &antiJoinCore{
		keyRegisters: keyRegisters,
		leftIndex:    NewKeyedIndex(),
		rightCounts:  NewKeyedCountIndex(),
	}
}

// onLeft stores a left arrival and emits its net visibility against the
// right side's current presence profile.
func (a *antiJoinCore) onLeft(lp Prefix, results *Iterator) {
	key := HashRegisters(lp, a.keyRegisters)
	a.leftIndex.Insert(key, lp, lp.Round(), lp.Count())

	terms := []index.RoundDelta{{Round: lp.Round(), Count: lp.Count()}}
	for _, t := range a.rightCounts.Transitions(key) {
		round := t.Round
		if lp.Round() > round {
			round = lp.Round()
		}
		terms = append(terms, index.RoundDelta{Round: round, Count: fixpoint.MulCounts(-lp.Count(), t.Count)})
	}
	emitConsolidated(lp, terms, results)
}

// onRight folds a right delta into the presence profile and, for each
// transition, negates the stored lefts under the same key.
func (a *antiJoinCore) onRight(key uint64, round, count int, results *Iterator) {
	deltas := a.rightCounts.Add(key, round, count)
	if len(deltas) == 0 {
		return
	}
	for _, entry := range a.leftIndex.Get(key) {
		for lr, lc := range entry.rounds {
			if lc == 0 {
				continue
			}
			var terms []index.RoundDelta
			for _, d := range deltas {
				r := d.Round
				if lr > r {
					r = lr
				}
				terms = append(terms, index.RoundDelta{Round: r, Count: fixpoint.MulCounts(-lc, d.Count)})
			}
			emitConsolidated(entry.prefix, terms, results)
		}
	}
}

// emitConsolidated sums terms per round and pushes the nonzero results.
func emitConsolidated(p Prefix, terms []index.RoundDelta, results *Iterator) {
	byRound := make(map[int]int, len(terms))
	var rounds []int
	for _, t := range terms {
		if _, ok := byRound[t.Round]; !ok {
			rounds = append(rounds, t.Round)
		}
		byRound[t.Round] = fixpoint.AddCounts(byRound[t.Round], t.Count)
	}
	for _, r := range rounds {
		c := byRound[r]
		if c == 0 {
			continue
		}
		out := p.Copy()
		out.SetRound(r)
		out.SetCount(c)
		results.Push(out)
	}
}

// AntiJoinNode emits left prefixes that have no matching right prefix at
// their round, retracting them retroactively when a match appears.
type AntiJoinNode struct {
	Left, Right Node

	core         *antiJoinCore
	leftResults  *Iterator
	rightResults *Iterator
}

// NewAntiJoin builds an antijoin of two nodes on the key registers.
func NewAntiJoin(left, right Node, keyRegisters []int) *AntiJoinNode {
	return &AntiJoinNode{
		Left:         left,
		Right:        right,
		core:         newAntiJoinCore(keyRegisters),
		leftResults:  NewIterator(),
		rightResults: NewIterator(),
	}
}

func (n *AntiJoinNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	n.leftResults.Clear()
	if !n.Left.Exec(ctx, input, prefix, txn, round, n.leftResults, changes) {
		return false
	}
	n.rightResults.Clear()
	if !n.Right.Exec(ctx, input, prefix, txn, round, n.rightResults, changes) {
		return false
	}

	// Rights first: a left arriving in the same execution as its match is
	// suppressed outright instead of being emitted and retracted.
	n.rightResults.Reset()
	for rp := n.rightResults.Next(); rp != nil; rp = n.rightResults.Next() {
		key := HashRegisters(rp, n.core.keyRegisters)
		n.core.onRight(key, rp.Round(), rp.Count(), results)
	}
	n.leftResults.Reset()
	for lp := n.leftResults.Next(); lp != nil; lp = n.leftResults.Next() {
		n.core.onLeft(lp, results)
	}
	return true
}

// AntiJoinPresolvedRightNode is the antijoin variant used when a preceding
// operator already exposed the right stream in this node's local results:
// the right prefixes are read from a shared iterator instead of a node.
type AntiJoinPresolvedRightNode struct {
	Left  Node
	Right *Iterator

	core        *antiJoinCore
	leftResults *Iterator
}

// NewAntiJoinPresolvedRight builds the presolved-right variant.
func NewAntiJoinPresolvedRight(left Node, right *Iterator, keyRegisters []int) *AntiJoinPresolvedRightNode {
	return &AntiJoinPresolvedRightNode{
		Left:        left,
		Right:       right,
		core:        newAntiJoinCore(keyRegisters),
		leftResults: NewIterator(),
	}
}

func (n *AntiJoinPresolvedRightNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	n.Right.Reset()
	for rp := n.Right.Next(); rp != nil; rp = n.Right.Next() {
		key := HashRegisters(rp, n.core.keyRegisters)
		n.core.onRight(key, rp.Round(), rp.Count(), results)
	}
	n.leftResults.Clear()
	if !n.Left.Exec(ctx, input, prefix, txn, round, n.leftResults, changes) {
		return false
	}
	n.leftResults.Reset()
	for lp := n.leftResults.Next(); lp != nil; lp = n.leftResults.Next() {
		n.core.onLeft(lp, results)
	}
	return true
}
