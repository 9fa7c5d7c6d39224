package engine

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// netExports sums a transaction's collapsed exports per (e,a,v) raw triple.
func netExports(ctx *Context, exports Exports) map[[3]fixpoint.Value]int {
	out := make(map[[3]fixpoint.Value]int)
	for _, changes := range exports {
		for _, c := range changes {
			key := [3]fixpoint.Value{
				ctx.Interner.Reverse(c.E),
				ctx.Interner.Reverse(c.A),
				ctx.Interner.Reverse(c.V),
			}
			out[key] += c.Count
		}
	}
	for key, count := range out {
		if count == 0 {
			delete(out, key)
		}
	}
	return out
}

func checkFact(ctx *Context, e, a, v fixpoint.Value) bool {
	eid, ok1 := ctx.Interner.Get(e)
	aid, ok2 := ctx.Interner.Get(a)
	vid, ok3 := ctx.Interner.Get(v)
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	return ctx.Index.Check(eid, aid, vid, fixpoint.IGNORE, ctx.txnCounter+1, 0)
}

// transitiveBlock compiles edge(x,y) & edge(y,z) => edge(x,z).
func transitiveBlock(ctx *Context, name string) *Block {
	edge := ctx.Interner.Intern("edge")
	prov := ctx.Interner.Intern(name + "/insert")
	join := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(edge), RegisterField(1), IgnoreField()),
		NewScan(RegisterField(1), StaticField(edge), RegisterField(2), IgnoreField()),
	})
	insert := NewInsert(RegisterField(0), StaticField(edge), RegisterField(2), prov)
	return NewBlock(name, 3, []Node{join, insert})
}

func TestTransitiveClosure(t *testing.T) {
	ctx := NewContext(nil, nil)
	_, err := ctx.AttachBlocks([]*Block{transitiveBlock(ctx, "tc")})
	require.NoError(t, err)

	exports, err := ctx.Input([]fixpoint.RawChange{
		{E: "n1", A: "edge", V: "n2", N: "input", Count: 1},
		{E: "n2", A: "edge", V: "n3", N: "input", Count: 1},
	})
	require.NoError(t, err)

	net := netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"n1", "edge", "n3"}])
	require.True(t, checkFact(ctx, "n1", "edge", "n3"))

	// Removing edge(n2,n3) removes the derived edge(n1,n3).
	exports, err = ctx.Input([]fixpoint.RawChange{
		{E: "n2", A: "edge", V: "n3", N: "input", Count: -1},
	})
	require.NoError(t, err)

	net = netExports(ctx, exports)
	require.Equal(t, -1, net[[3]fixpoint.Value{"n1", "edge", "n3"}])
	require.False(t, checkFact(ctx, "n1", "edge", "n3"))
	require.True(t, checkFact(ctx, "n1", "edge", "n2"))
}

func TestTransitiveClosureDeepChain(t *testing.T) {
	ctx := NewContext(nil, nil)
	_, err := ctx.AttachBlocks([]*Block{transitiveBlock(ctx, "tc")})
	require.NoError(t, err)

	_, err = ctx.Input([]fixpoint.RawChange{
		{E: "a", A: "edge", V: "b", N: "input", Count: 1},
		{E: "b", A: "edge", V: "c", N: "input", Count: 1},
		{E: "c", A: "edge", V: "d", N: "input", Count: 1},
	})
	require.NoError(t, err)

	// The full closure holds, including the two-hop recursive derivation.
	for _, pair := range [][2]string{{"a", "c"}, {"b", "d"}, {"a", "d"}} {
		require.True(t, checkFact(ctx, pair[0], "edge", pair[1]), "missing edge(%s,%s)", pair[0], pair[1])
	}
}

func TestCountAggregateByTag(t *testing.T) {
	ctx := NewContext(nil, nil)
	tag := ctx.Interner.Intern("tag")
	count := ctx.Interner.Intern("count")
	prov := ctx.Interner.Intern("tag-count/insert")

	join := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(tag), RegisterField(1), IgnoreField()),
	})
	agg := NewAggregate([]int{1}, []int{0}, []int{0}, 2, NewCountState)
	insert := NewInsert(RegisterField(1), StaticField(count), RegisterField(2), prov)
	_, err := ctx.AttachBlocks([]*Block{NewBlock("tag-count", 3, []Node{join, agg, insert})})
	require.NoError(t, err)

	exports, err := ctx.Input([]fixpoint.RawChange{
		{E: "a", A: "tag", V: "x", N: "input", Count: 1},
		{E: "b", A: "tag", V: "x", N: "input", Count: 1},
		{E: "c", A: "tag", V: "y", N: "input", Count: 1},
	})
	require.NoError(t, err)

	net := netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"x", "count", float64(2)}])
	require.Equal(t, 1, net[[3]fixpoint.Value{"y", "count", float64(1)}])
	require.Zero(t, net[[3]fixpoint.Value{"x", "count", float64(1)}])

	// Retracting one contributor moves the group from 2 to 1 and retracts
	// the stale result in the same transaction.
	exports, err = ctx.Input([]fixpoint.RawChange{
		{E: "b", A: "tag", V: "x", N: "input", Count: -1},
	})
	require.NoError(t, err)

	net = netExports(ctx, exports)
	require.Equal(t, -1, net[[3]fixpoint.Value{"x", "count", float64(2)}])
	require.Equal(t, 1, net[[3]fixpoint.Value{"x", "count", float64(1)}])
	require.True(t, checkFact(ctx, "x", "count", float64(1)))
	require.False(t, checkFact(ctx, "x", "count", float64(2)))
}

func TestChooseFirstBranchWins(t *testing.T) {
	ctx := NewContext(nil, nil)
	typeA := ctx.Interner.Intern("type")
	name := ctx.Interner.Intern("name")
	nick := ctx.Interner.Intern("nick")
	display := ctx.Interner.Intern("display")
	prov := ctx.Interner.Intern("display/insert")

	left := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(typeA), IgnoreField(), IgnoreField()),
	})
	branch1 := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(name), RegisterField(1), IgnoreField()),
	})
	branch2 := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(nick), RegisterField(1), IgnoreField()),
	})
	choose := NewChoose(left, []Node{branch1, branch2}, [][]int{{0}, {0}}, []int{0})
	insert := NewInsert(RegisterField(0), StaticField(display), RegisterField(1), prov)
	_, err := ctx.AttachBlocks([]*Block{NewBlock("display", 2, []Node{choose, insert})})
	require.NoError(t, err)

	// Both branches could match; only the first one produces a tuple.
	exports, err := ctx.Input([]fixpoint.RawChange{
		{E: "r1", A: "type", V: "person", N: "input", Count: 1},
		{E: "r1", A: "name", V: "Ada", N: "input", Count: 1},
		{E: "r1", A: "nick", V: "addy", N: "input", Count: 1},
	})
	require.NoError(t, err)

	net := netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"r1", "display", "Ada"}])
	require.Zero(t, net[[3]fixpoint.Value{"r1", "display", "addy"}])

	// When the second branch fires first, the first branch's later match
	// retracts it, still leaving exactly one tuple.
	exports, err = ctx.Input([]fixpoint.RawChange{
		{E: "r2", A: "type", V: "person", N: "input", Count: 1},
		{E: "r2", A: "nick", V: "grim", N: "input", Count: 1},
	})
	require.NoError(t, err)
	net = netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"r2", "display", "grim"}])

	exports, err = ctx.Input([]fixpoint.RawChange{
		{E: "r2", A: "name", V: "Grace", N: "input", Count: 1},
	})
	require.NoError(t, err)
	net = netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"r2", "display", "Grace"}])
	require.Equal(t, -1, net[[3]fixpoint.Value{"r2", "display", "grim"}])
	require.False(t, checkFact(ctx, "r2", "display", "grim"))
	require.True(t, checkFact(ctx, "r2", "display", "Grace"))
}

func TestSortDescendingWithTies(t *testing.T) {
	ctx := NewContext(nil, nil)
	score := ctx.Interner.Intern("score")
	rank := ctx.Interner.Intern("rank")
	prov := ctx.Interner.Intern("rank/insert")

	join := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(score), RegisterField(1), IgnoreField()),
	})
	sortNode := NewSort(nil, []int{1}, []SortDirection{SortDown}, 2)
	insert := NewInsert(RegisterField(0), StaticField(rank), RegisterField(2), prov)
	_, err := ctx.AttachBlocks([]*Block{NewBlock("ranking", 3, []Node{join, sortNode, insert})})
	require.NoError(t, err)

	_, err = ctx.Input([]fixpoint.RawChange{
		{E: "a", A: "score", V: float64(10), N: "input", Count: 1},
		{E: "b", A: "score", V: float64(8), N: "input", Count: 1},
		{E: "c", A: "score", V: float64(8), N: "input", Count: 1},
	})
	require.NoError(t, err)

	require.True(t, checkFact(ctx, "a", "rank", float64(1)))
	require.True(t, checkFact(ctx, "b", "rank", float64(2)))
	require.True(t, checkFact(ctx, "c", "rank", float64(3)))

	// A new maximum shifts every existing element down one rank: each gets
	// one retract and one insert.
	exports, err := ctx.Input([]fixpoint.RawChange{
		{E: "d", A: "score", V: float64(12), N: "input", Count: 1},
	})
	require.NoError(t, err)

	net := netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"d", "rank", float64(1)}])
	require.Equal(t, 1, net[[3]fixpoint.Value{"a", "rank", float64(2)}])
	require.Equal(t, -1, net[[3]fixpoint.Value{"a", "rank", float64(1)}])
	require.Equal(t, 1, net[[3]fixpoint.Value{"b", "rank", float64(3)}])
	require.Equal(t, -1, net[[3]fixpoint.Value{"b", "rank", float64(2)}])
	require.Equal(t, 1, net[[3]fixpoint.Value{"c", "rank", float64(4)}])
	require.Equal(t, -1, net[[3]fixpoint.Value{"c", "rank", float64(3)}])
}

func TestCommitCancelsWithinTransaction(t *testing.T) {
	ctx := NewContext(nil, nil)
	trigger := ctx.Interner.Intern("trigger")
	counter := ctx.Interner.Intern("counter")
	one := ctx.Interner.Intern(float64(1))
	prov := ctx.Interner.Intern("counter/commit")

	join := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(trigger), RegisterField(1), IgnoreField()),
	})
	up := NewCommitInsert(RegisterField(0), StaticField(counter), StaticField(one), prov)
	down := NewCommitRemove(RegisterField(0), StaticField(counter), StaticField(one), prov)
	_, err := ctx.AttachBlocks([]*Block{NewBlock("inc-dec", 2, []Node{join, up, down})})
	require.NoError(t, err)

	exports, err := ctx.Input([]fixpoint.RawChange{
		{E: "e", A: "trigger", V: "go", N: "input", Count: 1},
	})
	require.NoError(t, err)

	// The commit and its exact retraction collapse to nothing.
	net := netExports(ctx, exports)
	require.Zero(t, net[[3]fixpoint.Value{"e", "counter", float64(1)}])
	require.False(t, checkFact(ctx, "e", "counter", float64(1)))
}

func TestIterationLimitDiagnostic(t *testing.T) {
	ctx := NewContext(nil, nil)
	next := ctx.Interner.Intern("next")
	one := ctx.Interner.Intern(float64(1))
	prov := ctx.Interner.Intern("runaway/insert")
	plus, err := ctx.Functions.Lookup("math/+")
	require.NoError(t, err)

	// [r, next, v] => [v, next, v+1]: no termination condition.
	join := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(next), RegisterField(1), IgnoreField()),
		NewFunctionConstraint(plus, []Field{RegisterField(1), StaticField(one)}, []int{2}),
	})
	insert := NewInsert(RegisterField(1), StaticField(next), RegisterField(2), prov)
	_, err = ctx.AttachBlocks([]*Block{NewBlock("runaway", 3, []Node{join, insert})})
	require.NoError(t, err)

	_, err = ctx.Input([]fixpoint.RawChange{
		{E: "r", A: "next", V: float64(2), N: "input", Count: 1},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrIterationLimit))

	// The store is exactly what it was before the transaction.
	require.False(t, checkFact(ctx, "r", "next", float64(2)))
}

func TestBlockRemoveRetractsContributions(t *testing.T) {
	ctx := NewContext(nil, nil)
	block := transitiveBlock(ctx, "tc")
	_, err := ctx.AttachBlocks([]*Block{block})
	require.NoError(t, err)

	_, err = ctx.Input([]fixpoint.RawChange{
		{E: "n1", A: "edge", V: "n2", N: "input", Count: 1},
		{E: "n2", A: "edge", V: "n3", N: "input", Count: 1},
	})
	require.NoError(t, err)
	require.True(t, checkFact(ctx, "n1", "edge", "n3"))

	exports, err := ctx.DetachBlocks([]*Block{block})
	require.NoError(t, err)
	net := netExports(ctx, exports)
	require.Equal(t, -1, net[[3]fixpoint.Value{"n1", "edge", "n3"}])
	require.False(t, checkFact(ctx, "n1", "edge", "n3"))
	require.True(t, checkFact(ctx, "n1", "edge", "n2"))

	// Adding the block back restores the derived state: remove-then-add is
	// a no-op on the exported facts.
	exports, err = ctx.AttachBlocks([]*Block{transitiveBlock(ctx, "tc")})
	require.NoError(t, err)
	net = netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"n1", "edge", "n3"}])
	require.True(t, checkFact(ctx, "n1", "edge", "n3"))
}

func TestBlockAddComputesAgainstExistingStore(t *testing.T) {
	ctx := NewContext(nil, nil)
	_, err := ctx.Input([]fixpoint.RawChange{
		{E: "n1", A: "edge", V: "n2", N: "input", Count: 1},
		{E: "n2", A: "edge", V: "n3", N: "input", Count: 1},
	})
	require.NoError(t, err)

	// Attaching after the facts exist derives the closure immediately.
	exports, err := ctx.AttachBlocks([]*Block{transitiveBlock(ctx, "tc")})
	require.NoError(t, err)
	net := netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"n1", "edge", "n3"}])
}

func TestStaticJoinRunsOnce(t *testing.T) {
	ctx := NewContext(nil, nil)
	root := ctx.Interner.Intern("root")
	label := ctx.Interner.Intern("label")
	home := ctx.Interner.Intern("home")
	prov := ctx.Interner.Intern("static/insert")

	join := NewJoinNode([]Constraint{
		NewMove(StaticField(root), 0),
		NewMove(StaticField(home), 1),
	})
	insert := NewInsert(RegisterField(0), StaticField(label), RegisterField(1), prov)
	_, err := ctx.AttachBlocks([]*Block{NewBlock("static", 2, []Node{join, insert})})
	require.NoError(t, err)
	require.True(t, checkFact(ctx, "root", "label", "home"))

	// Unrelated input does not re-derive the static fact.
	exports, err := ctx.Input([]fixpoint.RawChange{
		{E: "x", A: "noise", V: "y", N: "input", Count: 1},
	})
	require.NoError(t, err)
	require.Zero(t, len(netExports(ctx, exports)))
}

func TestAntiJoinRetractsOnMatch(t *testing.T) {
	ctx := NewContext(nil, nil)
	person := ctx.Interner.Intern("person")
	banned := ctx.Interner.Intern("banned")
	allowed := ctx.Interner.Intern("allowed")
	yes := ctx.Interner.Intern("true")
	prov := ctx.Interner.Intern("allowed/insert")

	anti := NewAntiJoin(
		NewJoinNode([]Constraint{
			NewScan(RegisterField(0), StaticField(person), IgnoreField(), IgnoreField()),
		}),
		NewJoinNode([]Constraint{
			NewScan(RegisterField(0), StaticField(banned), IgnoreField(), IgnoreField()),
		}),
		[]int{0},
	)
	insert := NewInsert(RegisterField(0), StaticField(allowed), StaticField(yes), prov)
	_, err := ctx.AttachBlocks([]*Block{NewBlock("allowed", 1, []Node{anti, insert})})
	require.NoError(t, err)

	_, err = ctx.Input([]fixpoint.RawChange{
		{E: "p1", A: "person", V: "yes", N: "input", Count: 1},
		{E: "p2", A: "person", V: "yes", N: "input", Count: 1},
	})
	require.NoError(t, err)
	require.True(t, checkFact(ctx, "p1", "allowed", "true"))
	require.True(t, checkFact(ctx, "p2", "allowed", "true"))

	exports, err := ctx.Input([]fixpoint.RawChange{
		{E: "p1", A: "banned", V: "yes", N: "input", Count: 1},
	})
	require.NoError(t, err)
	net := netExports(ctx, exports)
	require.Equal(t, -1, net[[3]fixpoint.Value{"p1", "allowed", "true"}])
	require.False(t, checkFact(ctx, "p1", "allowed", "true"))
	require.True(t, checkFact(ctx, "p2", "allowed", "true"))
}

func TestCommitPromotesToNextFrame(t *testing.T) {
	ctx := NewContext(nil, nil)
	trigger := ctx.Interner.Intern("trigger")
	total := ctx.Interner.Intern("total")
	seenA := ctx.Interner.Intern("seen")
	one := ctx.Interner.Intern(float64(1))
	commitProv := ctx.Interner.Intern("totals/commit")
	seenProv := ctx.Interner.Intern("seen/insert")

	committer := NewBlock("committer", 2, []Node{
		NewJoinNode([]Constraint{
			NewScan(RegisterField(0), StaticField(trigger), RegisterField(1), IgnoreField()),
		}),
		NewCommitInsert(RegisterField(0), StaticField(total), StaticField(one), commitProv),
	})
	// The observer only matches committed facts, which exist from the next
	// frame of the same transaction onward.
	observer := NewBlock("observer", 2, []Node{
		NewJoinNode([]Constraint{
			NewScan(RegisterField(0), StaticField(total), RegisterField(1), IgnoreField()),
		}),
		NewInsert(RegisterField(0), StaticField(seenA), RegisterField(1), seenProv),
	})
	_, err := ctx.AttachBlocks([]*Block{committer, observer})
	require.NoError(t, err)

	exports, err := ctx.Input([]fixpoint.RawChange{
		{E: "e", A: "trigger", V: "go", N: "input", Count: 1},
	})
	require.NoError(t, err)

	net := netExports(ctx, exports)
	require.Equal(t, 1, net[[3]fixpoint.Value{"e", "total", float64(1)}])
	require.Equal(t, 1, net[[3]fixpoint.Value{"e", "seen", float64(1)}])
	require.True(t, checkFact(ctx, "e", "total", float64(1)))
	require.True(t, checkFact(ctx, "e", "seen", float64(1)))
}

func TestWatchHandlerErrorPropagates(t *testing.T) {
	ctx := NewContext(nil, nil)
	alert := ctx.Interner.Intern("alert")
	prov := ctx.Interner.Intern("watcher/node")

	block := NewBlock("watcher", 2, []Node{
		NewJoinNode([]Constraint{
			NewScan(RegisterField(0), StaticField(alert), RegisterField(1), IgnoreField()),
		}),
		NewWatch(RegisterField(0), StaticField(alert), RegisterField(1), prov),
	})
	_, err := ctx.AttachBlocks([]*Block{block})
	require.NoError(t, err)

	boom := errors.New("handler refused")
	ctx.RegisterWatcher(block, func(int, []fixpoint.Change) error { return boom })

	_, err = ctx.Input([]fixpoint.RawChange{
		{E: "sys", A: "alert", V: "overload", N: "input", Count: 1},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, boom))
}

func TestWatchNodeExports(t *testing.T) {
	ctx := NewContext(nil, nil)
	alert := ctx.Interner.Intern("alert")
	prov := ctx.Interner.Intern("watcher/node")

	join := NewJoinNode([]Constraint{
		NewScan(RegisterField(0), StaticField(alert), RegisterField(1), IgnoreField()),
	})
	watch := NewWatch(RegisterField(0), StaticField(alert), RegisterField(1), prov)
	block := NewBlock("watcher", 2, []Node{join, watch})
	_, err := ctx.AttachBlocks([]*Block{block})
	require.NoError(t, err)

	var seen []fixpoint.Change
	ctx.RegisterWatcher(block, func(blockID int, changes []fixpoint.Change) error {
		require.Equal(t, block.ID, blockID)
		seen = append(seen, changes...)
		return nil
	})

	_, err = ctx.Input([]fixpoint.RawChange{
		{E: "sys", A: "alert", V: "overload", N: "input", Count: 1},
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	require.Equal(t, "overload", ctx.Interner.Reverse(seen[0].V))
}
