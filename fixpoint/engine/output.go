package engine

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// OutputNode emits derived changes from fully-bound prefixes. Inserts emit
// with multiplier +1 and live for the surrounding transaction; removes emit
// with multiplier -1, widening to value-less or entity-level removal when
// the v (or a and v) field is IGNORE. Commit variants route to the commit
// buffer for promotion at the next frame.
//
// The prefix passes through to downstream nodes, so a block can stack
// several outputs behind one join.
type OutputNode struct {
	E, A, V    Field
	Provenance fixpoint.ID
	Commit     bool
	Multiplier int
}

// NewInsert builds a bind-insert output.
func NewInsert(e, a, v Field, provenance fixpoint.ID) *OutputNode {
	return &OutputNode{E: e, A: a, V: v, Provenance: provenance, Multiplier: 1}
}

// NewCommitInsert builds a commit-insert output.
func NewCommitInsert(e, a, v Field, provenance fixpoint.ID) *OutputNode {
	return &OutputNode{E: e, A: a, V: v, Provenance: provenance, Multiplier: 1, Commit: true}
}

// NewRemove builds a bind-remove output. Pass IgnoreField for v to retract
// every value of (e,a); pass it for a and v to retract the whole entity.
func NewRemove(e, a, v Field, provenance fixpoint.ID) *OutputNode {
	return &OutputNode{E: e, A: a, V: v, Provenance: provenance, Multiplier: -1}
}

// NewCommitRemove builds a commit-remove output.
func NewCommitRemove(e, a, v Field, provenance fixpoint.ID) *OutputNode {
	return &OutputNode{E: e, A: a, V: v, Provenance: provenance, Multiplier: -1, Commit: true}
}

func (n *OutputNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	if prefix.Count() == 0 {
		return true
	}

	c := fixpoint.Change{
		N:           n.Provenance,
		Transaction: txn,
		Round:       prefix.Round(),
		Count:       fixpoint.MulCounts(prefix.Count(), n.Multiplier),
	}

	c.E = n.E.Resolve(prefix)
	c.A = n.A.Resolve(prefix)
	c.V = n.V.Resolve(prefix)
	switch {
	case n.Multiplier < 0 && c.A == fixpoint.IGNORE && c.V == fixpoint.IGNORE:
		c.Kind = fixpoint.ChangeRemoveAVs
		c.A, c.V = fixpoint.Unassigned, fixpoint.Unassigned
	case n.Multiplier < 0 && c.V == fixpoint.IGNORE:
		c.Kind = fixpoint.ChangeRemoveVs
		c.V = fixpoint.Unassigned
	}

	if c.E <= 0 ||
		(c.Kind == fixpoint.ChangeNormal && (c.A <= 0 || c.V <= 0)) ||
		(c.Kind == fixpoint.ChangeRemoveVs && c.A <= 0) ||
		c.N <= 0 {
		changes.Fail(errors.AssertionFailedf("output change has an undefined slot: %s", c))
		return false
	}

	if n.Commit {
		changes.Commit(c)
	} else {
		changes.Bind(c)
	}
	results.Push(prefix)
	return true
}

// WatchHandler receives a watch node's exports for one transaction. An
// error propagates out of the transaction.
type WatchHandler func(blockID int, changes []fixpoint.Change) error

// WatchNode is a bind-like output that exports changes to an external
// handler instead of the store, bucketed per source block.
type WatchNode struct {
	E, A, V    Field
	Provenance fixpoint.ID

	blockID int
}

// NewWatch builds a watch output.
func NewWatch(e, a, v Field, provenance fixpoint.ID) *WatchNode {
	return &WatchNode{E: e, A: a, V: v, Provenance: provenance}
}

func (n *WatchNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	if prefix.Count() == 0 {
		return true
	}
	c := fixpoint.Change{
		E:           n.E.Resolve(prefix),
		A:           n.A.Resolve(prefix),
		V:           n.V.Resolve(prefix),
		N:           n.Provenance,
		Transaction: txn,
		Round:       prefix.Round(),
		Count:       prefix.Count(),
	}
	if c.E <= 0 || c.A <= 0 || c.V <= 0 {
		changes.Fail(errors.AssertionFailedf("watch change has an undefined slot: %s", c))
		return false
	}
	ctx.watchChange(n.blockID, c)
	results.Push(prefix)
	return true
}
