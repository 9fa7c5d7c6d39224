package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-fixpoint/fixpoint"
	"github.com/wbrown/janus-fixpoint/fixpoint/index"
)

// AggregateState is the rolling state of one group at one round. Result
// reports false while the state has no contributions; such a group emits
// nothing.
type AggregateState interface {
	Add(args []fixpoint.Value)
	Remove(args []fixpoint.Value)
	Result() (fixpoint.Value, bool)
}

// AggregateNode groups incoming prefixes by the group key, dedups
// contributions per projection key with per-round counts, and maintains a
// per-round rolling state. When a contribution toggles a projection's
// presence, the node re-derives the result profile and emits a retract of
// the stale result and an insert of the new one for every round from the
// change's round forward.
type AggregateNode struct {
	GroupRegisters   []int
	ProjectRegisters []int
	InputRegisters   []int
	OutputRegister   int
	NewState         func() AggregateState

	groups map[uint64]*aggregateGroup
}

type aggregateGroup struct {
	groupValues []fixpoint.ID
	projections map[uint64]*aggregateProjection
	states      []AggregateState
	prefixLen   int
}

type aggregateProjection struct {
	args   []fixpoint.Value
	rounds index.RoundCounts
}

// NewAggregate builds an aggregate node.
func NewAggregate(groupRegs, projectRegs, inputRegs []int, outputReg int, newState func() AggregateState) *AggregateNode {
	return &AggregateNode{
		GroupRegisters:   groupRegs,
		ProjectRegisters: projectRegs,
		InputRegisters:   inputRegs,
		OutputRegister:   outputReg,
		NewState:         newState,
		groups:           make(map[uint64]*aggregateGroup),
	}
}

// NewAggregateOuterLookup builds an aggregate whose group key is extended
// with the enclosing scope's key registers. Inside a choose branch this
// guard keeps the aggregate from counting globally: only tuples that join
// with the outer scope share a group.
func NewAggregateOuterLookup(outerRegs, groupRegs, projectRegs, inputRegs []int, outputReg int, newState func() AggregateState) *AggregateNode {
	extended := append(append([]int{}, outerRegs...), groupRegs...)
	return NewAggregate(extended, projectRegs, inputRegs, outputReg, newState)
}

func presenceAt(rc index.RoundCounts, round int) int {
	return presenceAtProfile(rc.Presence(), round)
}

// presenceAtProfile reads a presence profile at a round; past the end of
// the profile the last value persists (presence is cumulative).
func presenceAtProfile(p []int, round int) int {
	if len(p) == 0 {
		return 0
	}
	if round >= len(p) {
		round = len(p) - 1
	}
	return p[round]
}

func (n *AggregateNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	if prefix.Count() == 0 {
		return true
	}

	gkey := HashRegisters(prefix, n.GroupRegisters)
	g := n.groups[gkey]
	if g == nil {
		g = &aggregateGroup{
			projections: make(map[uint64]*aggregateProjection),
			prefixLen:   len(prefix),
		}
		for _, reg := range n.GroupRegisters {
			g.groupValues = append(g.groupValues, prefix[reg])
		}
		n.groups[gkey] = g
	}

	pkey := HashRegisters(prefix, n.ProjectRegisters)
	proj := g.projections[pkey]
	if proj == nil {
		args := make([]fixpoint.Value, len(n.InputRegisters))
		for i, reg := range n.InputRegisters {
			args[i] = ctx.Interner.Reverse(prefix[reg])
		}
		proj = &aggregateProjection{args: args}
		g.projections[pkey] = proj
	}

	before := proj.rounds.Presence()
	proj.rounds = proj.rounds.Add(prefix.Round(), prefix.Count())
	total := 0
	for _, c := range proj.rounds {
		total = fixpoint.AddCounts(total, c)
	}
	if total < 0 {
		changes.Fail(errors.AssertionFailedf("aggregate projection count went negative (%d)", total))
		return false
	}
	deltas := index.TransitionDeltas(before, proj.rounds.Presence())
	if len(deltas) == 0 {
		return true
	}

	// Snapshot the result profile, fold the presence toggles into the
	// per-round states, and emit the difference between the two profiles.
	maxRound := len(g.states) - 1
	for _, d := range deltas {
		if d.Round > maxRound {
			maxRound = d.Round
		}
	}
	if len(proj.rounds)-1 > maxRound {
		maxRound = len(proj.rounds) - 1
	}
	n.ensureStates(g, maxRound, pkey, before)

	oldResults := n.resultProfile(g)
	for _, d := range deltas {
		for i := d.Round; i < len(g.states); i++ {
			if d.Count > 0 {
				g.states[i].Add(proj.args)
			} else {
				g.states[i].Remove(proj.args)
			}
		}
	}
	newResults := n.resultProfile(g)

	n.emitProfileDiff(ctx, g, oldResults, newResults, results)
	return true
}

// ensureStates extends the group's per-round states through maxRound,
// replaying the projections present at each new round. The projection
// currently being folded in replays from its pre-change profile; the fold
// itself applies the change to every state afterwards.
func (n *AggregateNode) ensureStates(g *aggregateGroup, maxRound int, current uint64, currentBefore []int) {
	for len(g.states) <= maxRound {
		round := len(g.states)
		st := n.NewState()
		for pkey, proj := range g.projections {
			if pkey == current {
				if presenceAtProfile(currentBefore, round) > 0 {
					st.Add(proj.args)
				}
				continue
			}
			if presenceAt(proj.rounds, round) > 0 {
				st.Add(proj.args)
			}
		}
		g.states = append(g.states, st)
	}
}

type aggregateResult struct {
	value fixpoint.Value
	ok    bool
}

func (n *AggregateNode) resultProfile(g *aggregateGroup) []aggregateResult {
	out := make([]aggregateResult, len(g.states))
	for i, st := range g.states {
		v, ok := st.Result()
		out[i] = aggregateResult{value: v, ok: ok}
	}
	return out
}

func (n *AggregateNode) emitProfileDiff(ctx *Context, g *aggregateGroup, oldResults, newResults []aggregateResult, results *Iterator) {
	// Per distinct result value, diff the rounds where it was the group's
	// result before and after, and emit the derivative differences.
	values := make(map[fixpoint.Value]bool)
	for _, r := range oldResults {
		if r.ok {
			values[r.value] = true
		}
	}
	for _, r := range newResults {
		if r.ok {
			values[r.value] = true
		}
	}
	maxLen := len(oldResults)
	if len(newResults) > maxLen {
		maxLen = len(newResults)
	}
	profile := func(rs []aggregateResult, v fixpoint.Value) []int {
		p := make([]int, maxLen)
		for i := 0; i < maxLen; i++ {
			r := aggregateResult{}
			if i < len(rs) {
				r = rs[i]
			} else if len(rs) > 0 {
				r = rs[len(rs)-1]
			}
			if r.ok && r.value == v {
				p[i] = 1
			}
		}
		return p
	}
	for v := range values {
		for _, d := range index.TransitionDeltas(profile(oldResults, v), profile(newResults, v)) {
			out := n.resultPrefix(ctx, g, v)
			out.SetRound(d.Round)
			out.SetCount(d.Count)
			results.Push(out)
		}
	}
}

func (n *AggregateNode) resultPrefix(ctx *Context, g *aggregateGroup, v fixpoint.Value) Prefix {
	p := make(Prefix, g.prefixLen)
	for i, reg := range n.GroupRegisters {
		p[reg] = g.groupValues[i]
	}
	p[n.OutputRegister] = ctx.Interner.InternArena(v, fixpoint.FunctionOutputArena)
	return p
}
