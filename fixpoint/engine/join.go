package engine

import (
	"math"

	"github.com/wbrown/janus-fixpoint/fixpoint"
	"github.com/wbrown/janus-fixpoint/fixpoint/index"
)

// JoinNode runs Generic Join over a set of constraints sharing the block's
// register space.
//
// For a raw input change it first identifies the affected constraints, then
// enumerates every non-empty subset of them: a single input change may
// match more than one pattern in a rule, and each combination of
// head-matches is a distinct derivation. The registers a combination leaves
// unbound are solved variable-by-variable, each step enumerating through
// the constraint proposing the lowest cardinality.
type JoinNode struct {
	Constraints []Constraint

	registers []int
	hasScans  bool
	static    bool
	dormant   bool
}

// NewJoinNode builds a join over the given constraints.
func NewJoinNode(constraints []Constraint) *JoinNode {
	n := &JoinNode{Constraints: constraints}
	seen := make(map[int]bool)
	static := len(constraints) > 0
	for _, c := range constraints {
		for _, reg := range c.Registers() {
			if !seen[reg] {
				seen[reg] = true
				n.registers = append(n.registers, reg)
			}
		}
		if _, ok := c.(*ScanConstraint); ok {
			n.hasScans = true
		}
		if m, ok := c.(*MoveConstraint); !ok || !m.Static() {
			static = false
		}
	}
	n.static = static
	return n
}

func (n *JoinNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	if prefix.Count() != 0 {
		// Downstream form: the incoming prefix is already a live stream;
		// solve the remaining registers against the current store.
		p := prefix.Copy()
		n.genericJoin(ctx, p, txn, nil, prefix.Round(), prefix.Count(), results)
		return true
	}

	if input.BlockSignal() {
		if input.A == fixpoint.BlockRemoveID {
			n.dormant = false
		}
		if n.dormant {
			return true
		}
		p := prefix.Copy()
		n.genericJoin(ctx, p, txn, nil, input.Round, input.Count, results)
		if n.static && input.A == fixpoint.BlockAddID {
			n.dormant = true
		}
		return true
	}

	if n.dormant || !n.hasScans {
		return true
	}

	var affected []Constraint
	for _, c := range n.Constraints {
		if c.IsAffected(input) {
			affected = append(affected, c)
		}
	}
	if len(affected) == 0 {
		return true
	}

	applied := make(map[Constraint]bool, len(affected))
	for mask := 1; mask < 1<<len(affected); mask++ {
		p := prefix.Copy()
		for c := range applied {
			delete(applied, c)
		}
		ok := true
		for i, c := range affected {
			if mask&(1<<i) == 0 {
				continue
			}
			if !c.ApplyInput(input, p) {
				ok = false
				break
			}
			applied[c] = true
		}
		if !ok {
			continue
		}
		n.genericJoin(ctx, p, txn, applied, input.Round, input.Count, results)
	}
	return true
}

// genericJoin solves the join's unbound registers, then composes the
// multiplicity of each fully-bound prefix from the unapplied constraints'
// diffs.
func (n *JoinNode) genericJoin(ctx *Context, prefix Prefix, txn int, applied map[Constraint]bool, baseRound, baseCount int, results *Iterator) {
	if n.fullyBound(prefix) {
		n.emit(ctx, prefix, txn, applied, baseRound, baseCount, results)
		return
	}

	var proposer Constraint
	best := Proposal{Skip: true, Cardinality: math.MaxInt}
	for _, c := range n.Constraints {
		prop := c.Propose(ctx, prefix)
		if prop.Skip {
			continue
		}
		if best.Skip || prop.Cardinality < best.Cardinality {
			best = prop
			proposer = c
		}
	}
	if proposer == nil {
		return
	}

	rows := proposer.ResolveProposal(ctx, prefix, best)
rows:
	for _, row := range rows {
		for i, reg := range best.ForRegisters {
			prefix[reg] = row[i]
		}
		for _, c := range n.Constraints {
			if c == proposer || applied[c] {
				continue
			}
			if !c.Accept(ctx, prefix, txn, best.ForRegisters) {
				for _, reg := range best.ForRegisters {
					prefix[reg] = fixpoint.Unassigned
				}
				continue rows
			}
		}
		n.genericJoin(ctx, prefix, txn, applied, baseRound, baseCount, results)
		for _, reg := range best.ForRegisters {
			prefix[reg] = fixpoint.Unassigned
		}
	}
}

func (n *JoinNode) fullyBound(prefix Prefix) bool {
	for _, reg := range n.registers {
		if prefix[reg] == fixpoint.Unassigned {
			return false
		}
	}
	return true
}

// emit composes the final multiplicities: the product of the input's count
// with the sign of every unapplied scan's diffs, accumulated across
// rounds. The output round of each term is the max of the input round and
// |diffRound|-1, attributing each derivation to the earliest round where
// all its premises held.
func (n *JoinNode) emit(ctx *Context, prefix Prefix, txn int, applied map[Constraint]bool, baseRound, baseCount int, results *Iterator) {
	terms := []index.RoundDelta{{Round: baseRound, Count: baseCount}}
	for _, c := range n.Constraints {
		if applied[c] {
			continue
		}
		diffs := c.Diffs(ctx, prefix, txn)
		if diffs == nil {
			if _, ok := c.(*ScanConstraint); !ok {
				continue
			}
			return
		}
		next := make([]index.RoundDelta, 0, len(terms)*len(diffs))
		for _, t := range terms {
			for _, d := range diffs {
				round := d
				if round < 0 {
					round = -round
				}
				round--
				if t.Round > round {
					round = t.Round
				}
				count := t.Count
				if d < 0 {
					count = -count
				}
				next = append(next, index.RoundDelta{Round: round, Count: count})
			}
		}
		terms = next
		if len(terms) == 0 {
			return
		}
	}

	// Collapse terms landing on the same round.
	byRound := make(map[int]int, len(terms))
	var rounds []int
	for _, t := range terms {
		if _, ok := byRound[t.Round]; !ok {
			rounds = append(rounds, t.Round)
		}
		byRound[t.Round] = fixpoint.AddCounts(byRound[t.Round], t.Count)
	}
	for _, round := range rounds {
		count := byRound[round]
		if count == 0 {
			continue
		}
		out := prefix.Copy()
		out.SetRound(round)
		out.SetCount(count)
		results.Push(out)
	}
}
