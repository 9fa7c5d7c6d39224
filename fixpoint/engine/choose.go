package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// ChooseNode is a union with exclusivity: each branch after the first is
// antijoined against the union of the earlier branches' matches, so a
// tuple is attributed to the first branch whose body matches — and moves
// to a later branch when that body retracts. The antijoin key is the union
// of every branch's key registers.
type ChooseNode struct {
	Left         Node
	Branches     []*BinaryJoinNode
	KeyRegisters []int

	// antis[i-1] guards branch i against branches 0..i-1. Each antijoin
	// holds a reference back into this node's state; the branches and
	// guards are plain slices with stable indices, evaluated top-down.
	antis []*antiJoinCore

	leftResults   *Iterator
	branchResults *Iterator
}

// NewChoose builds a choose. branchKeys[i] holds branch i's key registers;
// keyRegisters is the union used for exclusivity.
func NewChoose(left Node, branches []Node, branchKeys [][]int, keyRegisters []int) *ChooseNode {
	c := &ChooseNode{
		Left:          left,
		KeyRegisters:  keyRegisters,
		leftResults:   NewIterator(),
		branchResults: NewIterator(),
	}
	for i, body := range branches {
		c.Branches = append(c.Branches,
			NewBinaryJoin(&presolvedNode{src: c.leftResults}, body, branchKeys[i]))
		if i > 0 {
			c.antis = append(c.antis, newAntiJoinCore(keyRegisters))
		}
	}
	return c
}

func (n *ChooseNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	n.leftResults.Clear()
	if !n.Left.Exec(ctx, input, prefix, txn, round, n.leftResults, changes) {
		return false
	}
	for i, branch := range n.Branches {
		n.branchResults.Clear()
		if !branch.Exec(ctx, input, prefix, txn, round, n.branchResults, changes) {
			return false
		}
		n.branchResults.Reset()
		for bp := n.branchResults.Next(); bp != nil; bp = n.branchResults.Next() {
			if i == 0 {
				results.Push(bp)
			} else {
				n.antis[i-1].onLeft(bp, results)
			}
			// A branch's raw matches suppress (or retroactively retract)
			// every later branch's output under the same key.
			key := HashRegisters(bp, n.KeyRegisters)
			for k := i + 1; k < len(n.Branches); k++ {
				n.antis[k-1].onRight(key, bp.Round(), bp.Count(), results)
			}
		}
	}
	return true
}
