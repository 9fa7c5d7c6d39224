// Package engine implements the incremental dataflow runtime: constraints,
// the Generic Join node, the flow operator family, output nodes, blocks,
// and the transaction loop that iterates a program to fixpoint.
package engine

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// Prefix is the evolving state of a join: one slot per block register plus
// two trailing slots for the change's round and count. Register slots hold
// interned IDs; Unassigned marks a register not bound yet.
//
// Prefixes are mutable scratch during resolution; a copy is taken before a
// prefix is pushed to a result iterator.
type Prefix []fixpoint.ID

// NewPrefix allocates a prefix for a block with the given register count.
func NewPrefix(registers int) Prefix {
	return make(Prefix, registers+2)
}

func (p Prefix) Round() int { return int(p[len(p)-2]) }

func (p Prefix) Count() int { return int(p[len(p)-1]) }

func (p Prefix) SetRound(round int) { p[len(p)-2] = fixpoint.ID(round) }
func (p Prefix) SetCount(count int) { p[len(p)-1] = fixpoint.ID(count) }

// Registers returns the register portion of the prefix.
func (p Prefix) Registers() []fixpoint.ID { return p[:len(p)-2] }

// Copy returns an independent copy of the prefix.
func (p Prefix) Copy() Prefix {
	out := make(Prefix, len(p))
	copy(out, p)
	return out
}

func (p Prefix) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, id := range p.Registers() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%d", id)
	}
	fmt.Fprintf(&b, " | r%d x%d)", p.Round(), p.Count())
	return b.String()
}
