package engine

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-fixpoint/fixpoint"
	"github.com/wbrown/janus-fixpoint/fixpoint/annotations"
	"github.com/wbrown/janus-fixpoint/fixpoint/index"
)

const (
	// MaxIterations bounds the derivation steps of one transaction; a
	// program that diverges halts with a loop diagnostic instead of
	// spinning.
	MaxIterations = 10000
	// MaxFrames bounds the commit-collapse sub-epochs of one transaction.
	MaxFrames = 10
)

// ErrIterationLimit reports a fixpoint that did not converge.
var ErrIterationLimit = errors.New("fixpoint exceeded the iteration limit")

// ErrFrameLimit reports a transaction exceeding the commit-frame limit.
var ErrFrameLimit = errors.New("transaction exceeded the commit-frame limit")

// Exports maps a source block ID to its collapsed exported changes.
type Exports map[int][]fixpoint.Change

// queuedChange is one pending change with its source block (0 for raw
// inputs) and, for synthetic block signals, a restricted block scope.
type queuedChange struct {
	change fixpoint.Change
	block  int
	scope  []*Block
}

// Transaction drives one atomic input batch to fixpoint: it distributes
// each change across the blocks, applies distinct to the derived output,
// queues changes round by round, collapses and promotes commits into new
// frames, and collapses the export multiplicities.
type Transaction struct {
	ctx   *Context
	id    int
	round int
	frame int
	steps int

	queues  map[int][]queuedChange
	commits []queuedChange

	// exportDeltas stages this transaction's movement of the context's
	// running export counts; it folds in only on success.
	exportDeltas map[exportKey]int
	exports      Exports

	applied     []fixpoint.Change
	distinctLog []distinctEntry

	buffer *ChangeBuffer
}

type exportKey struct {
	block   int
	e, a, v fixpoint.ID
}

type distinctEntry struct {
	key   index.Key
	round int
	count int
}

func newTransaction(ctx *Context, id int) *Transaction {
	return &Transaction{
		ctx:          ctx,
		id:           id,
		queues:       make(map[int][]queuedChange),
		exportDeltas: make(map[exportKey]int),
		exports:      make(Exports),
		buffer:       NewChangeBuffer(),
	}
}

// exec runs the transaction. Raw inputs (and synthetic block signals) are
// queued at round 0; block signals only run against the given scope, while
// everything derived flows through every attached block.
func (t *Transaction) exec(inputs []fixpoint.Change, scope []*Block) (Exports, error) {
	start := time.Now()
	t.ctx.collector.Add(annotations.Event{
		Name:  annotations.TransactionBegin,
		Start: start,
		Data:  map[string]interface{}{"transaction": t.id, "inputs": len(inputs)},
	})

	for _, in := range inputs {
		t.enqueue(queuedChange{change: in, scope: scope})
	}

	if err := t.run(); err != nil {
		t.rollback()
		t.ctx.collector.AddTiming(annotations.TransactionFailed, start, map[string]interface{}{
			"transaction": t.id, "error": err.Error(),
		})
		t.ctx.logger.Warn("transaction aborted", "transaction", t.id, "err", err)
		return nil, err
	}

	for key, delta := range t.exportDeltas {
		t.ctx.exportCounts[key] = fixpoint.AddCounts(t.ctx.exportCounts[key], delta)
	}
	if err := t.ctx.flushWatches(); err != nil {
		// Export failures unwind the trace frame and rethrow.
		t.ctx.collector.AddTiming(annotations.TransactionFailed, start, map[string]interface{}{
			"transaction": t.id, "error": err.Error(),
		})
		return nil, err
	}
	t.ctx.collector.AddTiming(annotations.TransactionComplete, start, map[string]interface{}{
		"transaction": t.id,
		"frames":      t.frame + 1,
		"steps":       t.steps,
		"exports":     len(t.exports),
	})
	return t.exports, nil
}

func (t *Transaction) run() error {
	t.round = 0
	for {
		qc, ok := t.dequeue()
		if !ok {
			if len(t.commits) > 0 {
				if t.frame+1 >= MaxFrames {
					return errors.Wrapf(ErrFrameLimit, "transaction %d", t.id)
				}
				t.round = 0
				t.collapseCommits()
				t.frame++
				continue
			}
			return nil
		}

		t.steps++
		if t.steps > MaxIterations {
			return errors.Wrapf(ErrIterationLimit, "transaction %d after %d steps", t.id, t.steps)
		}

		blocks := qc.scope
		if blocks == nil {
			blocks = t.ctx.Blocks
		}
		for _, b := range blocks {
			t.buffer.Reset()
			if !b.Exec(t.ctx, qc.change, t.id, t.buffer) || t.buffer.Err() != nil {
				err := t.buffer.Err()
				if err == nil {
					err = errors.AssertionFailedf("block %q failed without an error", b.Name)
				}
				return errors.Wrapf(err, "block %q", b.Name)
			}
			for _, bind := range t.buffer.Binds() {
				t.handleBind(b, bind)
			}
			for _, commit := range t.buffer.Commits() {
				t.commits = append(t.commits, queuedChange{change: commit, block: b.ID})
			}
		}

		// The index is only updated after a change is fully processed, so
		// scans see strictly-earlier state and the input accounts for
		// itself exactly once through head-match enumeration.
		if !qc.change.BlockSignal() {
			t.ctx.Index.Insert(qc.change)
			t.applied = append(t.applied, qc.change)
		}
	}
}

// handleBind expands widened removes, reduces the bag delta to set
// semantics, and queues what survives.
func (t *Transaction) handleBind(b *Block, bind fixpoint.Change) {
	switch bind.Kind {
	case fixpoint.ChangeRemoveVs:
		for _, v := range t.ctx.Index.CurrentValues(bind.E, bind.A, t.id, bind.Round) {
			c := bind
			c.Kind = fixpoint.ChangeNormal
			c.V = v
			t.distinctAndQueue(b, c)
		}
	case fixpoint.ChangeRemoveAVs:
		for _, av := range t.ctx.Index.CurrentAttributes(bind.E, t.id, bind.Round) {
			c := bind
			c.Kind = fixpoint.ChangeNormal
			c.A, c.V = av[0], av[1]
			t.distinctAndQueue(b, c)
		}
	default:
		t.distinctAndQueue(b, bind)
	}
}

func (t *Transaction) distinctAndQueue(b *Block, c fixpoint.Change) {
	key := index.ChangeKey(c)
	t.distinctLog = append(t.distinctLog, distinctEntry{key: key, round: c.Round, count: c.Count})
	t.ctx.Distinct.Distinct(key, c.Round, c.Count, func(round, delta int) {
		out := c.WithRound(round)
		out.Count = delta
		t.enqueue(queuedChange{change: out, block: b.ID})
		t.exportCollapse(b.ID, out)
	})
}

func (t *Transaction) enqueue(qc queuedChange) {
	// Rounds advance monotonically; the rare retroactive negation below
	// the open round re-enters at the open round instead of reopening a
	// drained queue.
	if qc.change.Round < t.round {
		qc.change.Round = t.round
	}
	t.queues[qc.change.Round] = append(t.queues[qc.change.Round], qc)
}

// dequeue pops FIFO from the current round, advancing to the next highest
// non-empty round when the current one drains.
func (t *Transaction) dequeue() (queuedChange, bool) {
	for {
		q := t.queues[t.round]
		if len(q) > 0 {
			qc := q[0]
			t.queues[t.round] = q[1:]
			return qc, true
		}
		next := -1
		for round, q := range t.queues {
			if len(q) == 0 || round <= t.round {
				continue
			}
			if next == -1 || round < next {
				next = round
			}
		}
		if next == -1 {
			return queuedChange{}, false
		}
		t.ctx.collector.Add(annotations.Event{
			Name:  annotations.RoundOpen,
			Start: time.Now(),
			Data:  map[string]interface{}{"transaction": t.id, "round": next},
		})
		t.round = next
	}
}

// collapseCommits folds the pending commits per (e,a,v,n), expands widened
// removes against the store, and promotes every net-nonzero result into
// the next frame as a round-0 input with a saturated count.
func (t *Transaction) collapseCommits() {
	start := time.Now()
	type commitKey struct {
		e, a, v, n fixpoint.ID
	}
	nets := make(map[commitKey]int)
	blockOf := make(map[commitKey]int)
	order := make([]commitKey, 0, len(t.commits))
	fold := func(block int, c fixpoint.Change) {
		key := commitKey{c.E, c.A, c.V, c.N}
		if _, ok := nets[key]; !ok {
			order = append(order, key)
			blockOf[key] = block
		}
		nets[key] = fixpoint.AddCounts(nets[key], c.Count)
	}
	for _, qc := range t.commits {
		c := qc.change
		switch c.Kind {
		case fixpoint.ChangeRemoveVs:
			for _, v := range t.ctx.Index.CurrentValues(c.E, c.A, t.id, c.Round) {
				e := c
				e.Kind = fixpoint.ChangeNormal
				e.V = v
				fold(qc.block, e)
			}
		case fixpoint.ChangeRemoveAVs:
			for _, av := range t.ctx.Index.CurrentAttributes(c.E, t.id, c.Round) {
				e := c
				e.Kind = fixpoint.ChangeNormal
				e.A, e.V = av[0], av[1]
				fold(qc.block, e)
			}
		default:
			fold(qc.block, c)
		}
	}
	t.commits = t.commits[:0]

	promoted := 0
	for _, key := range order {
		net := nets[key]
		if net == 0 {
			continue
		}
		count := fixpoint.Infinity
		if net < 0 {
			count = -fixpoint.Infinity
		}
		c := fixpoint.NewChange(key.e, key.a, key.v, key.n, t.id, 0, count)
		t.enqueue(queuedChange{change: c, block: blockOf[key]})
		t.exportCollapse(blockOf[key], c)
		promoted++
	}
	t.ctx.collector.AddTiming(annotations.CommitCollapse, start, map[string]interface{}{
		"transaction": t.id, "frame": t.frame, "promoted": promoted,
	})
}

// exportCollapse tracks the running export count per (block, e, a, v),
// emitting +1 on the transition 0 -> positive and -1 on positive -> 0.
// Negative running totals stay suppressed: once a key goes negative it
// does not re-emit on recovery.
func (t *Transaction) exportCollapse(block int, c fixpoint.Change) {
	key := exportKey{block: block, e: c.E, a: c.A, v: c.V}
	sign := 1
	if c.Count < 0 {
		sign = -1
	}
	old := fixpoint.AddCounts(t.ctx.exportCounts[key], t.exportDeltas[key])
	cur := fixpoint.AddCounts(old, sign)
	t.exportDeltas[key] = fixpoint.AddCounts(t.exportDeltas[key], sign)
	switch {
	case old == 0 && cur > 0:
		out := c
		out.Count = 1
		t.exports[block] = append(t.exports[block], out)
	case old > 0 && cur <= 0:
		out := c
		out.Count = -1
		t.exports[block] = append(t.exports[block], out)
	}
}

// rollback reverses this transaction's index writes and distinct deltas,
// restoring the store to its pre-transaction state.
func (t *Transaction) rollback() {
	for i := len(t.applied) - 1; i >= 0; i-- {
		t.ctx.Index.Insert(t.applied[i].Reverse())
	}
	t.applied = nil
	for i := len(t.distinctLog) - 1; i >= 0; i-- {
		entry := t.distinctLog[i]
		t.ctx.Distinct.Distinct(entry.key, entry.round, -entry.count, func(int, int) {})
	}
	t.distinctLog = nil
}
