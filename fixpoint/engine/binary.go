package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// mergePrefixes combines two bindings of the same register space into out,
// starting from left. It fails when a register is bound to different
// values on the two sides.
func mergePrefixes(left, right Prefix) (Prefix, bool) {
	out := left.Copy()
	regs := right.Registers()
	for i, rv := range regs {
		if rv == fixpoint.Unassigned {
			continue
		}
		switch out[i] {
		case fixpoint.Unassigned:
			out[i] = rv
		case rv:
		default:
			return nil, false
		}
	}
	return out, true
}

// BinaryJoinNode joins two upstream flows on a key of registers. Both
// sides keep a keyed index of the prefixes they have produced, with
// per-round counts; an arrival on one side probes the other and emits the
// merged prefix at the max of the two rounds with the product of the two
// counts.
type BinaryJoinNode struct {
	Left, Right  Node
	KeyRegisters []int

	leftIndex    *KeyedIndex
	rightIndex   *KeyedIndex
	leftResults  *Iterator
	rightResults *Iterator
}

// NewBinaryJoin builds a binary join of two nodes on the key registers.
func NewBinaryJoin(left, right Node, keyRegisters []int) *BinaryJoinNode {
	return &BinaryJoinNode{
		Left:         left,
		Right:        right,
		KeyRegisters: keyRegisters,
		leftIndex:    NewKeyedIndex(),
		rightIndex:   NewKeyedIndex(),
		leftResults:  NewIterator(),
		rightResults: NewIterator(),
	}
}

func (n *BinaryJoinNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	n.leftResults.Clear()
	if !n.Left.Exec(ctx, input, prefix, txn, round, n.leftResults, changes) {
		return false
	}
	n.rightResults.Clear()
	if !n.Right.Exec(ctx, input, prefix, txn, round, n.rightResults, changes) {
		return false
	}

	// New lefts probe the rights seen so far; new rights then probe a left
	// index that already includes this execution's lefts, so a same-round
	// pair is counted exactly once.
	n.leftResults.Reset()
	for lp := n.leftResults.Next(); lp != nil; lp = n.leftResults.Next() {
		n.onLeft(lp, results)
	}
	n.rightResults.Reset()
	for rp := n.rightResults.Next(); rp != nil; rp = n.rightResults.Next() {
		n.onRight(rp, results)
	}
	return true
}

func (n *BinaryJoinNode) onLeft(lp Prefix, results *Iterator) {
	key := HashRegisters(lp, n.KeyRegisters)
	n.leftIndex.Insert(key, lp, lp.Round(), lp.Count())
	for _, entry := range n.rightIndex.Get(key) {
		n.emitMerged(lp, lp.Round(), lp.Count(), entry, results)
	}
}

func (n *BinaryJoinNode) onRight(rp Prefix, results *Iterator) {
	key := HashRegisters(rp, n.KeyRegisters)
	n.rightIndex.Insert(key, rp, rp.Round(), rp.Count())
	for _, entry := range n.leftIndex.Get(key) {
		for r, c := range entry.rounds {
			if c == 0 {
				continue
			}
			n.emitPair(entry.prefix, r, c, rp, rp.Round(), rp.Count(), results)
		}
	}
}

func (n *BinaryJoinNode) emitMerged(lp Prefix, lround, lcount int, entry *keyedEntry, results *Iterator) {
	for r, c := range entry.rounds {
		if c == 0 {
			continue
		}
		n.emitPair(lp, lround, lcount, entry.prefix, r, c, results)
	}
}

func (n *BinaryJoinNode) emitPair(lp Prefix, lround, lcount int, rp Prefix, rround, rcount int, results *Iterator) {
	merged, ok := mergePrefixes(lp, rp)
	if !ok {
		return
	}
	round := lround
	if rround > round {
		round = rround
	}
	merged.SetRound(round)
	merged.SetCount(fixpoint.MulCounts(lcount, rcount))
	if merged.Count() == 0 {
		return
	}
	results.Push(merged)
}
