package engine

import (
	"math"

	"github.com/wbrown/janus-fixpoint/fixpoint"
	"github.com/wbrown/janus-fixpoint/fixpoint/index"
)

// ScanConstraint is a triple pattern over (e,a,v,n). Each field is a static
// ID, a register, or IGNORE.
type ScanConstraint struct {
	E, A, V, N Field
	registers  []int
}

// NewScan builds a scan constraint over the four fields.
func NewScan(e, a, v, n Field) *ScanConstraint {
	s := &ScanConstraint{E: e, A: a, V: v, N: n}
	for _, f := range s.fields() {
		if f.Kind == FieldRegister {
			s.registers = append(s.registers, f.Register)
		}
	}
	return s
}

func (s *ScanConstraint) fields() [4]Field {
	return [4]Field{s.E, s.A, s.V, s.N}
}

func (s *ScanConstraint) Registers() []int { return s.registers }

// IsAffected rejects when any static field mismatches the change. Block
// signals never affect scans.
func (s *ScanConstraint) IsAffected(input fixpoint.Change) bool {
	if input.BlockSignal() {
		return false
	}
	values := [4]fixpoint.ID{input.E, input.A, input.V, input.N}
	for i, f := range s.fields() {
		if f.Kind == FieldStatic && f.ID != values[i] {
			return false
		}
	}
	return true
}

// ApplyInput writes the change's values into the register fields, failing
// when a register is already bound to a different value.
func (s *ScanConstraint) ApplyInput(input fixpoint.Change, prefix Prefix) bool {
	values := [4]fixpoint.ID{input.E, input.A, input.V, input.N}
	for i, f := range s.fields() {
		if f.Kind != FieldRegister {
			continue
		}
		cur := prefix[f.Register]
		if cur != fixpoint.Unassigned && cur != values[i] {
			return false
		}
		prefix[f.Register] = values[i]
	}
	return true
}

func (s *ScanConstraint) pattern(prefix Prefix) index.Pattern {
	return index.Pattern{
		E: s.E.Resolve(prefix),
		A: s.A.Resolve(prefix),
		V: s.V.Resolve(prefix),
		N: s.N.Resolve(prefix),
	}
}

// Propose delegates to the index after resolving bound registers.
func (s *ScanConstraint) Propose(ctx *Context, prefix Prefix) Proposal {
	pat := s.pattern(prefix)
	ip := ctx.Index.Propose(pat)
	if ip.Skip {
		return Proposal{Skip: true}
	}
	reg := s.slotRegister(ip.Slot)
	if reg < 0 {
		return Proposal{Skip: true}
	}
	return Proposal{
		Cardinality:  ip.Cardinality,
		ForRegisters: []int{reg},
		pattern:      pat,
		indexed:      ip,
	}
}

func (s *ScanConstraint) slotRegister(slot index.Slot) int {
	f := s.fields()[slot]
	if f.Kind != FieldRegister {
		return -1
	}
	return f.Register
}

// ResolveProposal enumerates the candidate IDs for the proposed field.
func (s *ScanConstraint) ResolveProposal(ctx *Context, prefix Prefix, prop Proposal) [][]fixpoint.ID {
	ids := ctx.Index.ResolveProposal(prop.pattern, prop.indexed)
	rows := make([][]fixpoint.ID, len(ids))
	for i, id := range ids {
		rows[i] = []fixpoint.ID{id}
	}
	return rows
}

// Accept is a point check through the index. It short-circuits when none of
// the solvingFor registers intersect this scan's registers. When the pattern
// is still partially unbound, unbound fields act as wildcards and any
// matching triple that holds passes.
func (s *ScanConstraint) Accept(ctx *Context, prefix Prefix, txn int, solvingFor []int) bool {
	if !registersIntersect(solvingFor, s.registers) {
		return true
	}
	pat := s.pattern(prefix)
	if pat.E > 0 && pat.A > 0 && pat.V > 0 {
		return len(ctx.Index.Diffs(pat.E, pat.A, pat.V, pat.N, txn)) > 0
	}
	return ctx.Index.Check(pat.E, pat.A, pat.V, pat.N, txn, math.MaxInt)
}

// Diffs returns the round transitions for the fully-resolved pattern.
func (s *ScanConstraint) Diffs(ctx *Context, prefix Prefix, txn int) []int {
	pat := s.pattern(prefix)
	return ctx.Index.Diffs(pat.E, pat.A, pat.V, pat.N, txn)
}
