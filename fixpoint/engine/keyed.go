package engine

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/wbrown/janus-fixpoint/fixpoint/index"
)

// HashRegisters hashes the values of the chosen registers into a keyed
// index key. Only the payload side compares full registers (KeyedIndex folds
// entries by register equality, and the binary join's merge rejects
// conflicting bindings); the count-only index and the aggregate and sort
// groups treat equal hashes as equal keys.
func HashRegisters(p Prefix, regs []int) uint64 {
	var h xxhash.Digest
	h.Reset()
	var buf [4]byte
	for _, r := range regs {
		binary.LittleEndian.PutUint32(buf[:], uint32(p[r]))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// keyedEntry is one payload prefix with its per-round counts.
type keyedEntry struct {
	prefix Prefix
	rounds index.RoundCounts
}

// KeyedIndex maps a register-tuple key to the prefixes seen under it, with
// per-round counts. It backs the payload sides of the binary join family.
type KeyedIndex struct {
	entries map[uint64][]*keyedEntry
}

// NewKeyedIndex creates an empty keyed index.
func NewKeyedIndex() *KeyedIndex {
	return &KeyedIndex{entries: make(map[uint64][]*keyedEntry)}
}

// Insert records a prefix under key at (round, count). Payloads with equal
// registers fold into one entry.
func (kx *KeyedIndex) Insert(key uint64, p Prefix, round, count int) {
	for _, e := range kx.entries[key] {
		if samePayload(e.prefix, p) {
			e.rounds = e.rounds.Add(round, count)
			return
		}
	}
	e := &keyedEntry{prefix: p.Copy(), rounds: index.RoundCounts{}.Add(round, count)}
	kx.entries[key] = append(kx.entries[key], e)
}

// Get returns the entries stored under key.
func (kx *KeyedIndex) Get(key uint64) []*keyedEntry {
	return kx.entries[key]
}

func samePayload(a, b Prefix) bool {
	ra, rb := a.Registers(), b.Registers()
	if len(ra) != len(rb) {
		return false
	}
	for i := range ra {
		if ra[i] != rb[i] {
			return false
		}
	}
	return true
}

// KeyedCountIndex stores only per-round count sums per key, with no
// payload. It is the right side of an antijoin and the prior-branch state
// of a choose: what matters is only when a key transitions between empty
// and non-empty.
type KeyedCountIndex struct {
	counts map[uint64]index.RoundCounts
}

// NewKeyedCountIndex creates an empty count index.
func NewKeyedCountIndex() *KeyedCountIndex {
	return &KeyedCountIndex{counts: make(map[uint64]index.RoundCounts)}
}

// Add folds a delta into the key's counts and returns the rounds at which
// the key's presence profile changed. This is the zeroing pass: only
// empty/non-empty transitions are reported.
func (kx *KeyedCountIndex) Add(key uint64, round, count int) []index.RoundDelta {
	rc := kx.counts[key]
	before := rc.Presence()
	rc = rc.Add(round, count)
	kx.counts[key] = rc
	return index.TransitionDeltas(before, rc.Presence())
}

// Transitions returns the key's current presence-profile derivative: one
// signed entry per round where the key flips between empty and non-empty.
func (kx *KeyedCountIndex) Transitions(key uint64) []index.RoundDelta {
	rc := kx.counts[key]
	var out []index.RoundDelta
	prev := 0
	for round, p := range rc.Presence() {
		if p != prev {
			out = append(out, index.RoundDelta{Round: round, Count: p - prev})
		}
		prev = p
	}
	return out
}
