package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// presolvedNode replays an already-produced result stream as a node. The
// union and choose operators run their left node once per input and hand
// each branch a replay of the buffered left prefixes, so a branch consumes
// them exactly once and the left node itself never runs twice.
type presolvedNode struct {
	src *Iterator
}

func (p *presolvedNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	p.src.Reset()
	for pre := p.src.Next(); pre != nil; pre = p.src.Next() {
		results.Push(pre)
	}
	return true
}

// UnionNode merges a left (outer) flow with a set of branches. Each branch
// is wrapped as a binary join of the branch body against the left on the
// branch's key registers plus any extra outer joins.
type UnionNode struct {
	Left     Node
	Branches []*BinaryJoinNode

	leftResults *Iterator
}

// NewUnion builds a union. branchKeys[i] holds branch i's key registers
// (including any extra outer-join registers).
func NewUnion(left Node, branches []Node, branchKeys [][]int) *UnionNode {
	u := &UnionNode{Left: left, leftResults: NewIterator()}
	for i, body := range branches {
		u.Branches = append(u.Branches,
			NewBinaryJoin(&presolvedNode{src: u.leftResults}, body, branchKeys[i]))
	}
	return u
}

func (n *UnionNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	n.leftResults.Clear()
	if !n.Left.Exec(ctx, input, prefix, txn, round, n.leftResults, changes) {
		return false
	}
	for _, branch := range n.Branches {
		if !branch.Exec(ctx, input, prefix, txn, round, results, changes) {
			return false
		}
	}
	return true
}
