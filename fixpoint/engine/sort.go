package engine

import (
	"github.com/google/btree"
	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// SortDirection orders one sort register.
type SortDirection uint8

const (
	SortUp SortDirection = iota
	SortDown
)

// SortNode is a positional aggregate: it groups prefixes by a key,
// maintains the group's projected tuples in sorted order, and assigns each
// tuple its rank. An arrival or departure emits a retract+insert pair for
// every element whose rank changed.
//
// Directions are per sort register; trailing registers inherit the last
// direction given.
type SortNode struct {
	GroupRegisters []int
	SortRegisters  []int
	Directions     []SortDirection
	OutputRegister int

	groups map[uint64]*sortGroup
}

type sortGroup struct {
	tree      *btree.BTreeG[*sortItem]
	items     map[uint64]*sortItem
	lastRanks map[uint64]int
	prefixLen int
}

type sortItem struct {
	key    uint64
	regs   []fixpoint.ID
	sortBy []fixpoint.Value
	total  int
}

// NewSort builds a sort node.
func NewSort(groupRegs, sortRegs []int, directions []SortDirection, outputReg int) *SortNode {
	dirs := make([]SortDirection, len(sortRegs))
	last := SortUp
	for i := range sortRegs {
		if i < len(directions) {
			last = directions[i]
		}
		dirs[i] = last
	}
	return &SortNode{
		GroupRegisters: groupRegs,
		SortRegisters:  sortRegs,
		Directions:     dirs,
		OutputRegister: outputReg,
		groups:         make(map[uint64]*sortGroup),
	}
}

func (n *SortNode) less(a, b *sortItem) bool {
	for i := range n.SortRegisters {
		cmp := compareValues(a.sortBy[i], b.sortBy[i])
		if n.Directions[i] == SortDown {
			cmp = -cmp
		}
		if cmp != 0 {
			return cmp < 0
		}
	}
	// Duplicate sort values keep a stable relative order over the full
	// register snapshot, so distinct tuples never collapse in the tree.
	for i := range a.regs {
		if a.regs[i] != b.regs[i] {
			return a.regs[i] < b.regs[i]
		}
	}
	return false
}

func compareValues(a, b fixpoint.Value) int {
	an, aNum := fixpoint.NumberValue(a)
	bn, bNum := fixpoint.NumberValue(b)
	switch {
	case aNum && bNum:
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	as, _ := fixpoint.StringValue(a)
	bs, _ := fixpoint.StringValue(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func (n *SortNode) Exec(ctx *Context, input fixpoint.Change, prefix Prefix, txn, round int, results *Iterator, changes *ChangeBuffer) bool {
	if prefix.Count() == 0 {
		return true
	}

	gkey := HashRegisters(prefix, n.GroupRegisters)
	g := n.groups[gkey]
	if g == nil {
		g = &sortGroup{
			tree:      btree.NewG(8, n.less),
			items:     make(map[uint64]*sortItem),
			lastRanks: make(map[uint64]int),
			prefixLen: len(prefix),
		}
		n.groups[gkey] = g
	}

	// Item identity is the full register snapshot: two entities with the
	// same sort value are distinct elements with adjacent ranks.
	allRegs := make([]int, len(prefix.Registers()))
	for i := range allRegs {
		allRegs[i] = i
	}
	ikey := HashRegisters(prefix, allRegs)
	item := g.items[ikey]
	if item == nil {
		item = &sortItem{key: ikey, regs: append([]fixpoint.ID{}, prefix.Registers()...)}
		for _, reg := range n.SortRegisters {
			item.sortBy = append(item.sortBy, ctx.Interner.Reverse(prefix[reg]))
		}
		g.items[ikey] = item
	}

	present := item.total > 0
	item.total = fixpoint.AddCounts(item.total, prefix.Count())
	nowPresent := item.total > 0
	if present == nowPresent {
		return true
	}
	if nowPresent {
		g.tree.ReplaceOrInsert(item)
	} else {
		g.tree.Delete(item)
	}

	n.emitRankChanges(ctx, g, prefix.Round(), results)
	if !nowPresent {
		delete(g.items, ikey)
	}
	return true
}

// emitRankChanges walks the group in order and emits a retract of the old
// rank plus an insert of the new one for every element whose rank moved.
func (n *SortNode) emitRankChanges(ctx *Context, g *sortGroup, round int, results *Iterator) {
	seen := make(map[uint64]bool, g.tree.Len())
	rank := 0
	g.tree.Ascend(func(item *sortItem) bool {
		rank++
		seen[item.key] = true
		if old, ok := g.lastRanks[item.key]; ok && old == rank {
			return true
		}
		if old, ok := g.lastRanks[item.key]; ok {
			results.Push(n.rankPrefix(ctx, g, item, old, round, -1))
		}
		results.Push(n.rankPrefix(ctx, g, item, rank, round, 1))
		g.lastRanks[item.key] = rank
		return true
	})
	for key, old := range g.lastRanks {
		if !seen[key] {
			if item, ok := g.items[key]; ok {
				results.Push(n.rankPrefix(ctx, g, item, old, round, -1))
			}
			delete(g.lastRanks, key)
		}
	}
}

func (n *SortNode) rankPrefix(ctx *Context, g *sortGroup, item *sortItem, rank, round, count int) Prefix {
	p := make(Prefix, g.prefixLen)
	copy(p, item.regs)
	p[n.OutputRegister] = ctx.Interner.InternArena(float64(rank), fixpoint.FunctionOutputArena)
	p.SetRound(round)
	p.SetCount(count)
	return p
}
