package index

import (
	"math"

	"github.com/wbrown/janus-fixpoint/fixpoint"
)

// Slot names one of the four fields of a triple pattern.
type Slot uint8

const (
	SlotE Slot = iota
	SlotA
	SlotV
	SlotN
)

// Pattern is a triple pattern after register resolution: each field is a
// bound ID, IGNORE (unconstrained), or Unassigned (to be enumerated).
type Pattern struct {
	E, A, V, N fixpoint.ID
}

func bound(id fixpoint.ID) bool { return id > 0 }

// Proposal is the index's offer to enumerate one unbound field.
type Proposal struct {
	Slot        Slot
	Cardinality int
	Skip        bool
}

// treeNode is one level of a permutation tree. size counts the distinct
// full keys beneath this node and serves as the cardinality estimate for
// flattened enumerations.
type treeNode struct {
	children map[fixpoint.ID]*treeNode
	size     int
}

func newTreeNode() *treeNode {
	return &treeNode{children: make(map[fixpoint.ID]*treeNode)}
}

func (t *treeNode) child(id fixpoint.ID) *treeNode {
	return t.children[id]
}

func (t *treeNode) ensure(id fixpoint.ID) *treeNode {
	c := t.children[id]
	if c == nil {
		c = newTreeNode()
		t.children[id] = c
	}
	return c
}

// countEntry is one cumulative insertion point for a triple key.
type countEntry struct {
	txn   int
	round int
	count int
}

// tripleLeaf holds the per-provenance-node count history of one (e,a,v).
type tripleLeaf struct {
	byNode map[fixpoint.ID][]countEntry
}

type tripleKey struct {
	e, a, v fixpoint.ID
}

// TripleIndex is the multi-indexed store of changes. It keeps the EAV, AVE
// and AEV permutations for prefix enumeration plus a primary leaf table
// holding the cumulative count per (e,a,v,n) per (transaction, round).
type TripleIndex struct {
	triples map[tripleKey]*tripleLeaf
	eav     *treeNode
	ave     *treeNode
	aev     *treeNode
}

// NewTripleIndex creates an empty index.
func NewTripleIndex() *TripleIndex {
	return &TripleIndex{
		triples: make(map[tripleKey]*tripleLeaf),
		eav:     newTreeNode(),
		ave:     newTreeNode(),
		aev:     newTreeNode(),
	}
}

// Insert adds a delta. The stored value is cumulative: inserting the same
// (e,a,v,n) at the same (transaction, round) folds the counts together.
func (ix *TripleIndex) Insert(c fixpoint.Change) {
	key := tripleKey{c.E, c.A, c.V}
	lf := ix.triples[key]
	if lf == nil {
		lf = &tripleLeaf{byNode: make(map[fixpoint.ID][]countEntry)}
		ix.triples[key] = lf
		ix.addPath(ix.eav, c.E, c.A, c.V)
		ix.addPath(ix.ave, c.A, c.V, c.E)
		ix.addPath(ix.aev, c.A, c.E, c.V)
	}
	entries := lf.byNode[c.N]
	// Entries stay sorted by (txn, round); rounds mostly arrive in order,
	// so scan from the tail.
	i := len(entries)
	for i > 0 {
		prev := entries[i-1]
		if prev.txn < c.Transaction || (prev.txn == c.Transaction && prev.round <= c.Round) {
			break
		}
		i--
	}
	if i > 0 && entries[i-1].txn == c.Transaction && entries[i-1].round == c.Round {
		entries[i-1].count = fixpoint.AddCounts(entries[i-1].count, c.Count)
	} else {
		entries = append(entries, countEntry{})
		copy(entries[i+1:], entries[i:])
		entries[i] = countEntry{txn: c.Transaction, round: c.Round, count: c.Count}
	}
	lf.byNode[c.N] = entries
}

func (ix *TripleIndex) addPath(root *treeNode, a, b, c fixpoint.ID) {
	root.size++
	n1 := root.ensure(a)
	n1.size++
	n2 := n1.ensure(b)
	n2.size++
	n3 := n2.ensure(c)
	n3.size++
}

// Check reports whether a triple holds net-positive at or before
// (txn, round). IGNORE fields are unconstrained; the check passes when any
// matching triple holds.
func (ix *TripleIndex) Check(e, a, v, n fixpoint.ID, txn, round int) bool {
	if bound(e) && bound(a) && bound(v) {
		lf := ix.triples[tripleKey{e, a, v}]
		return lf != nil && lf.net(n, txn, round) > 0
	}
	for _, key := range ix.matchKeys(e, a, v) {
		if lf := ix.triples[key]; lf != nil && lf.net(n, txn, round) > 0 {
			return true
		}
	}
	return false
}

// net sums the counts visible at or before (txn, round). An IGNORE node
// sums across all provenance nodes.
func (lf *tripleLeaf) net(n fixpoint.ID, txn, round int) int {
	total := 0
	if bound(n) {
		for _, e := range lf.byNode[n] {
			if e.visible(txn, round) {
				total = fixpoint.AddCounts(total, e.count)
			}
		}
		return total
	}
	for _, entries := range lf.byNode {
		for _, e := range entries {
			if e.visible(txn, round) {
				total = fixpoint.AddCounts(total, e.count)
			}
		}
	}
	return total
}

func (e countEntry) visible(txn, round int) bool {
	return e.txn < txn || (e.txn == txn && e.round <= round)
}

// Diffs returns the signed rounds at which the triple's net count crossed
// between zero and nonzero, as seen from the given transaction. Changes
// from earlier transactions count at round 0. Each entry is
// sign * (round + 1). Unbound fields are wildcards: the counts of every
// matching triple fold into one profile.
func (ix *TripleIndex) Diffs(e, a, v, n fixpoint.ID, txn int) []int {
	var rc RoundCounts
	collect := func(entries []countEntry) {
		for _, en := range entries {
			switch {
			case en.txn < txn:
				rc = rc.Add(0, en.count)
			case en.txn == txn:
				rc = rc.Add(en.round, en.count)
			}
		}
	}
	collectLeaf := func(lf *tripleLeaf) {
		if bound(n) {
			collect(lf.byNode[n])
			return
		}
		for _, entries := range lf.byNode {
			collect(entries)
		}
	}
	if bound(e) && bound(a) && bound(v) {
		lf := ix.triples[tripleKey{e, a, v}]
		if lf == nil {
			return nil
		}
		collectLeaf(lf)
	} else {
		for _, key := range ix.matchKeys(e, a, v) {
			if lf := ix.triples[key]; lf != nil {
				collectLeaf(lf)
			}
		}
	}
	return rc.Transitions()
}

// Propose returns the cheapest unbound field to enumerate and its
// estimated cardinality. Skip is set when nothing can be enumerated
// (all fields bound or ignored).
func (ix *TripleIndex) Propose(p Pattern) Proposal {
	best := Proposal{Skip: true, Cardinality: math.MaxInt}
	consider := func(slot Slot, card int) {
		if card < best.Cardinality {
			best = Proposal{Slot: slot, Cardinality: card}
		}
	}
	if p.E == fixpoint.Unassigned {
		consider(SlotE, ix.cardinalityE(p))
	}
	if p.A == fixpoint.Unassigned {
		consider(SlotA, ix.cardinalityA(p))
	}
	if p.V == fixpoint.Unassigned {
		consider(SlotV, ix.cardinalityV(p))
	}
	if p.N == fixpoint.Unassigned {
		consider(SlotN, ix.cardinalityN(p))
	}
	return best
}

func (ix *TripleIndex) cardinalityE(p Pattern) int {
	if bound(p.A) && bound(p.V) {
		if n := descend(ix.ave, p.A, p.V); n != nil {
			return len(n.children)
		}
		return 0
	}
	if bound(p.A) {
		if n := ix.aev.child(p.A); n != nil {
			return len(n.children)
		}
		return 0
	}
	return len(ix.eav.children)
}

func (ix *TripleIndex) cardinalityA(p Pattern) int {
	if bound(p.E) {
		if n := ix.eav.child(p.E); n != nil {
			return len(n.children)
		}
		return 0
	}
	return len(ix.ave.children)
}

func (ix *TripleIndex) cardinalityV(p Pattern) int {
	if bound(p.E) && bound(p.A) {
		if n := descend(ix.eav, p.E, p.A); n != nil {
			return len(n.children)
		}
		return 0
	}
	if bound(p.A) {
		if n := ix.ave.child(p.A); n != nil {
			return len(n.children)
		}
		return 0
	}
	if bound(p.E) {
		if n := ix.eav.child(p.E); n != nil {
			return n.size
		}
		return 0
	}
	return ix.ave.size
}

func (ix *TripleIndex) cardinalityN(p Pattern) int {
	if bound(p.E) && bound(p.A) && bound(p.V) {
		if lf := ix.triples[tripleKey{p.E, p.A, p.V}]; lf != nil {
			return len(lf.byNode)
		}
		return 0
	}
	// Enumerating provenance before the triple is bound is never cheapest.
	return math.MaxInt / 2
}

func descend(root *treeNode, ids ...fixpoint.ID) *treeNode {
	n := root
	for _, id := range ids {
		if n = n.child(id); n == nil {
			return nil
		}
	}
	return n
}

// ResolveProposal enumerates the candidate IDs for the proposed field under
// the pattern's bindings. Candidates are every ID ever inserted on a
// matching path; callers filter with Check.
func (ix *TripleIndex) ResolveProposal(p Pattern, prop Proposal) []fixpoint.ID {
	switch prop.Slot {
	case SlotE:
		if bound(p.A) && bound(p.V) {
			return childIDs(descend(ix.ave, p.A, p.V))
		}
		if bound(p.A) {
			return childIDs(ix.aev.child(p.A))
		}
		return childIDs(ix.eav)
	case SlotA:
		if bound(p.E) {
			return childIDs(ix.eav.child(p.E))
		}
		return childIDs(ix.ave)
	case SlotV:
		if bound(p.E) && bound(p.A) {
			return childIDs(descend(ix.eav, p.E, p.A))
		}
		if bound(p.A) {
			return childIDs(ix.ave.child(p.A))
		}
		if bound(p.E) {
			return grandchildIDs(ix.eav.child(p.E))
		}
		return grandchildIDs(ix.ave)
	case SlotN:
		if lf := ix.triples[tripleKey{p.E, p.A, p.V}]; lf != nil {
			ids := make([]fixpoint.ID, 0, len(lf.byNode))
			for n := range lf.byNode {
				ids = append(ids, n)
			}
			return ids
		}
	}
	return nil
}

func childIDs(n *treeNode) []fixpoint.ID {
	if n == nil {
		return nil
	}
	ids := make([]fixpoint.ID, 0, len(n.children))
	for id := range n.children {
		ids = append(ids, id)
	}
	return ids
}

func grandchildIDs(n *treeNode) []fixpoint.ID {
	if n == nil {
		return nil
	}
	seen := make(map[fixpoint.ID]struct{})
	var ids []fixpoint.ID
	for _, c := range n.children {
		for id := range c.children {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// matchKeys enumerates the concrete (e,a,v) keys matching a pattern whose
// unbound fields are wildcards.
func (ix *TripleIndex) matchKeys(e, a, v fixpoint.ID) []tripleKey {
	var keys []tripleKey
	switch {
	case bound(e) && bound(a):
		for _, vv := range childIDs(descend(ix.eav, e, a)) {
			keys = append(keys, tripleKey{e, a, vv})
		}
	case bound(e):
		if en := ix.eav.child(e); en != nil {
			for aa, an := range en.children {
				for vv := range an.children {
					if bound(v) && vv != v {
						continue
					}
					keys = append(keys, tripleKey{e, aa, vv})
				}
			}
		}
	case bound(a) && bound(v):
		for _, ee := range childIDs(descend(ix.ave, a, v)) {
			keys = append(keys, tripleKey{ee, a, v})
		}
	case bound(a):
		if an := ix.ave.child(a); an != nil {
			for vv, vn := range an.children {
				for ee := range vn.children {
					keys = append(keys, tripleKey{ee, a, vv})
				}
			}
		}
	default:
		for key := range ix.triples {
			if (!bound(v) || key.v == v) && (!bound(e) || key.e == e) {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// CurrentValues returns the values net-positive for (e,a) at (txn, round).
// Used to expand attribute-less removals.
func (ix *TripleIndex) CurrentValues(e, a fixpoint.ID, txn, round int) []fixpoint.ID {
	var out []fixpoint.ID
	for _, v := range childIDs(descend(ix.eav, e, a)) {
		if lf := ix.triples[tripleKey{e, a, v}]; lf != nil && lf.net(fixpoint.IGNORE, txn, round) > 0 {
			out = append(out, v)
		}
	}
	return out
}

// CurrentAttributes returns the (a,v) pairs net-positive for e at
// (txn, round). Used to expand entity-level removals.
func (ix *TripleIndex) CurrentAttributes(e fixpoint.ID, txn, round int) [][2]fixpoint.ID {
	var out [][2]fixpoint.ID
	en := ix.eav.child(e)
	if en == nil {
		return nil
	}
	for a, an := range en.children {
		for v := range an.children {
			if lf := ix.triples[tripleKey{e, a, v}]; lf != nil && lf.net(fixpoint.IGNORE, txn, round) > 0 {
				out = append(out, [2]fixpoint.ID{a, v})
			}
		}
	}
	return out
}
