package engine

import (
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// Node is one step of a block's dataflow. Exec consumes a single incoming
// prefix (plus the transaction's raw input change, which head nodes match
// against), pushes derived prefixes into results, and appends output
// changes to the block's change buffer.
//
// Exec returns false only on a fatal invariant violation recorded on the
// change buffer; local candidate failures are pruned silently.
type Node interface {
	Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool
}

// ChangeBuffer batches the output changes of one block execution, keeping
// binds apart from commits so the transaction can tell them apart when it
// dispatches them.
type ChangeBuffer struct {
	binds   []fixpoint.Change
	commits []fixpoint.Change
	err     error
}

// NewChangeBuffer creates an empty buffer.
func NewChangeBuffer() *ChangeBuffer {
	return &ChangeBuffer{}
}

// Bind appends a transient derivation.
func (b *ChangeBuffer) Bind(c fixpoint.Change) { b.binds = append(b.binds, c) }

// Commit appends a change to be promoted at the next frame.
func (b *ChangeBuffer) Commit(c fixpoint.Change) { b.commits = append(b.commits, c) }

// Fail records a fatal error; the transaction aborts when it drains the
// buffer.
func (b *ChangeBuffer) Fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Binds returns the buffered transient derivations.
func (b *ChangeBuffer) Binds() []fixpoint.Change { return b.binds }

// Commits returns the buffered commits.
func (b *ChangeBuffer) Commits() []fixpoint.Change { return b.commits }

// Err returns the first fatal error recorded, if any.
func (b *ChangeBuffer) Err() error { return b.err }

// Reset empties the buffer for the next block execution.
func (b *ChangeBuffer) Reset() {
	b.binds = b.binds[:0]
	b.commits = b.commits[:0]
	b.err = nil
}
