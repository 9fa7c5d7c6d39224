package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
	"github.com/wbrown/janus-fixpoint/fixpoint/index"
)

// FieldKind tags one slot of a constraint.
type FieldKind uint8

const (
	// FieldStatic is a fixed interned ID.
	FieldStatic FieldKind = iota
	// FieldRegister is a block-local register offset.
	FieldRegister
	// FieldIgnore leaves the slot unconstrained.
	FieldIgnore
)

// Field is one slot of a scan or function constraint: a static ID, a
// register, or IGNORE.
type Field struct {
	Kind     FieldKind
	ID       fixpoint.ID
	Register int
}

// StaticField builds a field holding a fixed ID.
func StaticField(id fixpoint.ID) Field { return Field{Kind: FieldStatic, ID: id} }

// RegisterField builds a field referencing a block register.
func RegisterField(offset int) Field { return Field{Kind: FieldRegister, Register: offset} }

// IgnoreField builds an unconstrained field.
func IgnoreField() Field { return Field{Kind: FieldIgnore} }

// Resolve maps a field to its current ID under a prefix: the static ID, the
// register's binding (Unassigned when unbound), or IGNORE.
func (f Field) Resolve(p Prefix) fixpoint.ID {
	switch f.Kind {
	case FieldStatic:
		return f.ID
	case FieldRegister:
		return p[f.Register]
	default:
		return fixpoint.IGNORE
	}
}

// Proposal is a constraint's offer to enumerate values for a set of
// unbound registers, with an estimated cardinality.
type Proposal struct {
	Cardinality  int
	ForRegisters []int
	Skip         bool

	// scan internals, carried so ResolveProposal need not re-derive them
	pattern index.Pattern
	indexed index.Proposal
}

// Constraint is the polymorphic relational primitive a join runs over.
// Variants: scan (triple pattern), function (pure computation), move
// (equality bridge).
type Constraint interface {
	// Registers returns the block registers this constraint touches.
	Registers() []int

	// IsAffected reports whether an input change structurally matches this
	// constraint. Only scans are ever affected.
	IsAffected(input fixpoint.Change) bool

	// ApplyInput writes the input change's values into the prefix registers
	// this constraint binds. It fails when a register is already bound to a
	// different value.
	ApplyInput(input fixpoint.Change, prefix Prefix) bool

	// Propose offers the cheapest enumeration this constraint can make
	// under the prefix's current bindings.
	Propose(ctx *Context, prefix Prefix) Proposal

	// ResolveProposal enumerates the actual values; each row binds the
	// proposal's ForRegisters in order.
	ResolveProposal(ctx *Context, prefix Prefix, prop Proposal) [][]fixpoint.ID

	// Accept checks a candidate prefix. Constraints short-circuit to true
	// when none of the registers being solved intersect their own.
	Accept(ctx *Context, prefix Prefix, txn int, solvingFor []int) bool

	// Diffs returns the signed round transitions of the fully-resolved
	// pattern, or nil for constraints that do not consult the store.
	Diffs(ctx *Context, prefix Prefix, txn int) []int
}

func registersIntersect(a, b []int) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
