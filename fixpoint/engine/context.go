package engine

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-fixpoint/fixpoint"
	"github.com/wbrown/janus-fixpoint/fixpoint/annotations"
	"github.com/wbrown/janus-fixpoint/fixpoint/index"
)

// Context is the shared evaluation state: the interner, the triple and
// distinct indexes, the attached blocks, the function registry, the export
// and watch plumbing, and the tracer. Transactions borrow it one at a
// time; two transactions must never run against the same context
// concurrently.
type Context struct {
	Interner  *fixpoint.Interner
	Index     *index.TripleIndex
	Distinct  *index.DistinctIndex
	Functions *FunctionRegistry
	Blocks    []*Block

	logger    *slog.Logger
	collector *annotations.Collector

	watchers     map[int]WatchHandler
	watchBuckets map[int][]fixpoint.Change

	// exportCounts is the running export multiplicity per (block, e, a, v)
	// across the context's whole lifetime: a fact exported in one
	// transaction and retracted three transactions later still crosses
	// positive -> zero exactly once.
	exportCounts map[exportKey]int

	nextBlockID int
	txnCounter  int
}

// NewContext creates an evaluation context. A nil logger uses
// slog.Default(); a nil handler disables tracing.
func NewContext(logger *slog.Logger, handler annotations.Handler) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		Interner:     fixpoint.NewInterner(),
		Index:        index.NewTripleIndex(),
		Distinct:     index.NewDistinctIndex(),
		Functions:    NewFunctionRegistry(),
		logger:       logger,
		collector:    annotations.NewCollector(handler),
		watchers:     make(map[int]WatchHandler),
		watchBuckets: make(map[int][]fixpoint.Change),
		exportCounts: make(map[exportKey]int),
	}
}

// Collector returns the context's annotation collector.
func (ctx *Context) Collector() *annotations.Collector { return ctx.collector }

// AttachBlocks wires new blocks into the context and runs the synthetic
// BLOCK_ADD transaction through them, computing their contributions
// against the current store. Derived changes flow through every attached
// block.
func (ctx *Context) AttachBlocks(blocks []*Block) (Exports, error) {
	for _, b := range blocks {
		ctx.nextBlockID++
		b.ID = ctx.nextBlockID
		for _, node := range b.Nodes {
			if w, ok := node.(*WatchNode); ok {
				w.blockID = b.ID
			}
		}
		ctx.Blocks = append(ctx.Blocks, b)
	}
	ctx.logger.Debug("attaching blocks", "count", len(blocks))
	ctx.txnCounter++
	t := newTransaction(ctx, ctx.txnCounter)
	return t.exec([]fixpoint.Change{fixpoint.NewBlockAddChange(ctx.txnCounter)}, blocks)
}

// DetachBlocks runs the synthetic BLOCK_REMOVE transaction through the
// named blocks, forcing them to compute and retract every contribution,
// then unwires them.
func (ctx *Context) DetachBlocks(blocks []*Block) (Exports, error) {
	ctx.logger.Debug("detaching blocks", "count", len(blocks))
	ctx.txnCounter++
	t := newTransaction(ctx, ctx.txnCounter)
	exports, err := t.exec([]fixpoint.Change{fixpoint.NewBlockRemoveChange(ctx.txnCounter)}, blocks)
	remove := make(map[*Block]bool, len(blocks))
	for _, b := range blocks {
		remove[b] = true
	}
	kept := ctx.Blocks[:0]
	for _, b := range ctx.Blocks {
		if !remove[b] {
			kept = append(kept, b)
		}
	}
	ctx.Blocks = kept
	return exports, err
}

// Input interns a batch of raw changes and runs them to fixpoint as one
// transaction.
func (ctx *Context) Input(raws []fixpoint.RawChange) (Exports, error) {
	changes := make([]fixpoint.Change, len(raws))
	ctx.txnCounter++
	for i, raw := range raws {
		raw.Transaction = ctx.txnCounter
		changes[i] = raw.Intern(ctx.Interner)
	}
	t := newTransaction(ctx, ctx.txnCounter)
	return t.exec(changes, nil)
}

// RegisterWatcher subscribes a handler to a block's watch exports.
func (ctx *Context) RegisterWatcher(b *Block, handler WatchHandler) {
	ctx.watchers[b.ID] = handler
}

func (ctx *Context) watchChange(blockID int, c fixpoint.Change) {
	ctx.watchBuckets[blockID] = append(ctx.watchBuckets[blockID], c)
}

func (ctx *Context) flushWatches() error {
	for id, changes := range ctx.watchBuckets {
		handler := ctx.watchers[id]
		delete(ctx.watchBuckets, id)
		if handler == nil || len(changes) == 0 {
			continue
		}
		if err := handler(id, changes); err != nil {
			return errors.Wrapf(err, "watch handler for block %d", id)
		}
	}
	return nil
}
