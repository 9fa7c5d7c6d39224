package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// Block is a compiled rule: an ordered sequence of nodes over a block-local
// register space, executed once per input change. The first node is the
// head (a join or flow driven by the input); each later node consumes the
// prefixes its predecessor produced.
type Block struct {
	Name      string
	ID        int
	Registers int
	Nodes     []Node

	cur, next *Iterator
}

// NewBlock builds a block with the given total register count.
func NewBlock(name string, registers int, nodes []Node) *Block {
	return &Block{
		Name:      name,
		Registers: registers,
		Nodes:     nodes,
		cur:       NewIterator(),
		next:      NewIterator(),
	}
}

// Exec runs the block's nodes in dataflow order for one input change.
// Output changes land in the change buffer; the caller dispatches them.
func (b *Block) Exec(ctx *Context, input fixpoint.Change, txn int, changes *ChangeBuffer) bool {
	initial := NewPrefix(b.Registers)
	initial.SetRound(input.Round)

	b.cur.Clear()
	b.cur.Push(initial)

	for _, node := range b.Nodes {
		b.next.Clear()
		b.cur.Reset()
		for p := b.cur.Next(); p != nil; p = b.cur.Next() {
			if !node.Exec(ctx, input, p, txn, input.Round, b.next, changes) {
				return false
			}
		}
		b.cur, b.next = b.next, b.cur
	}
	return true
}
