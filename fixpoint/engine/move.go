package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// MoveConstraint is an equality bridge from a source (register or static)
// to a destination register. It proposes exactly when the source is known
// and the destination is not; otherwise it acts as an equality check.
type MoveConstraint struct {
	From Field
	To   int

	registers []int
}

// NewMove builds a move constraint.
func NewMove(from Field, to int) *MoveConstraint {
	m := &MoveConstraint{From: from, To: to}
	if from.Kind == FieldRegister {
		m.registers = append(m.registers, from.Register)
	}
	m.registers = append(m.registers, to)
	return m
}

// Static reports whether the source is a static ID. A join made only of
// static moves runs once and goes dormant.
func (m *MoveConstraint) Static() bool { return m.From.Kind == FieldStatic }

func (m *MoveConstraint) Registers() []int { return m.registers }

func (m *MoveConstraint) IsAffected(fixpoint.Change) bool { return false }

func (m *MoveConstraint) ApplyInput(fixpoint.Change, Prefix) bool { return true }

func (m *MoveConstraint) Propose(ctx *Context, prefix Prefix) Proposal {
	src := m.From.Resolve(prefix)
	if src == fixpoint.Unassigned || prefix[m.To] != fixpoint.Unassigned {
		return Proposal{Skip: true}
	}
	return Proposal{Cardinality: 1, ForRegisters: []int{m.To}}
}

func (m *MoveConstraint) ResolveProposal(ctx *Context, prefix Prefix, prop Proposal) [][]fixpoint.ID {
	return [][]fixpoint.ID{{m.From.Resolve(prefix)}}
}

func (m *MoveConstraint) Accept(ctx *Context, prefix Prefix, txn int, solvingFor []int) bool {
	if !registersIntersect(solvingFor, m.registers) {
		return true
	}
	src := m.From.Resolve(prefix)
	dst := prefix[m.To]
	if src == fixpoint.Unassigned || dst == fixpoint.Unassigned {
		return true
	}
	return src == dst
}

func (m *MoveConstraint) Diffs(*Context, Prefix, int) []int { return nil }
