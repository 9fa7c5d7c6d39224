package fixpoint

import (
	"github.com/cockroachdb/errors"
)

// ID is a dense positive integer handle for an interned value.
// Zero is never a valid ID; negative values are sentinels.
type ID int32

// IGNORE marks a triple field that should not be constrained.
const IGNORE ID = -1

// Unassigned is the zero ID: a register slot that has not been bound yet.
const Unassigned ID = 0

// IDs reserved at interner creation for the synthetic block signals.
// NewInterner interns them first, so the assignments are stable.
const (
	BlockAddID    ID = 1
	BlockRemoveID ID = 2
)

const (
	blockAddTag    = "tag/block-add"
	blockRemoveTag = "tag/block-remove"
)

// FunctionOutputArena is always present; function constraints intern their
// outputs through it. See the arena notes in DESIGN.md: the engine never
// releases this arena because intermediate indexes may retain its IDs.
const FunctionOutputArena = "functionOutput"

// Interner is the value dictionary: it maps raw values to dense IDs and
// back, reference-counting each ID. Strings and numbers live in physically
// separate dictionaries so the two value spaces can never collide.
//
// Arenas name a deferred batch release: IDs interned through an arena are
// additionally recorded under the arena's name and can be released together.
type Interner struct {
	strings map[string]ID
	numbers map[float64]ID
	values  []Value // ID -> raw value; index 0 unused
	refs    []int32 // ID -> reference count
	free    []ID    // reclaimed IDs available for reuse
	arenas  map[string][]ID
}

// NewInterner creates an interner with the reserved block-signal tags and
// the functionOutput arena already present.
func NewInterner() *Interner {
	in := &Interner{
		strings: make(map[string]ID),
		numbers: make(map[float64]ID),
		values:  make([]Value, 1), // slot 0 is never assigned
		refs:    make([]int32, 1),
		arenas:  map[string][]ID{FunctionOutputArena: nil},
	}
	in.Intern(blockAddTag)
	in.Intern(blockRemoveTag)
	return in
}

// Intern returns the ID for a raw value, allocating one if the value is not
// yet present. The ID's reference count is bumped either way.
func (in *Interner) Intern(v Value) ID {
	switch val := v.(type) {
	case string:
		if id, ok := in.strings[val]; ok {
			in.refs[id]++
			return id
		}
		id := in.allocate(val)
		in.strings[val] = id
		return id
	default:
		n, ok := NumberValue(v)
		if !ok {
			panic(errors.AssertionFailedf("interner: unsupported value type %T", v))
		}
		if id, ok := in.numbers[n]; ok {
			in.refs[id]++
			return id
		}
		id := in.allocate(n)
		in.numbers[n] = id
		return id
	}
}

// InternArena interns a value and records the ID under the named arena so
// the reference can later be released as a batch.
func (in *Interner) InternArena(v Value, arena string) ID {
	id := in.Intern(v)
	in.arenas[arena] = append(in.arenas[arena], id)
	return id
}

// Get is a lookup-only intern: it returns the existing ID for a value
// without touching reference counts. The second return is false when the
// value has never been interned.
func (in *Interner) Get(v Value) (ID, bool) {
	switch val := v.(type) {
	case string:
		id, ok := in.strings[val]
		return id, ok
	default:
		n, ok := NumberValue(v)
		if !ok {
			return 0, false
		}
		id, ok := in.numbers[n]
		return id, ok
	}
}

// Reverse maps an ID back to its raw value.
func (in *Interner) Reverse(id ID) Value {
	if id <= 0 || int(id) >= len(in.values) {
		return nil
	}
	return in.values[id]
}

// Reference bumps an ID's reference count without a dictionary lookup.
func (in *Interner) Reference(id ID) {
	if id > 0 && int(id) < len(in.refs) {
		in.refs[id]++
	}
}

// Release decrements an ID's reference count. At zero the ID is reclaimed:
// the reverse mapping is cleared and the ID returns to the free list.
func (in *Interner) Release(id ID) {
	if id <= 0 || int(id) >= len(in.refs) || in.refs[id] == 0 {
		return
	}
	in.refs[id]--
	if in.refs[id] > 0 {
		return
	}
	switch val := in.values[id].(type) {
	case string:
		delete(in.strings, val)
	case float64:
		delete(in.numbers, val)
	}
	in.values[id] = nil
	in.free = append(in.free, id)
}

// ReleaseArena releases every reference recorded under the named arena and
// clears it. The arena itself remains registered.
func (in *Interner) ReleaseArena(name string) {
	for _, id := range in.arenas[name] {
		in.Release(id)
	}
	in.arenas[name] = nil
}

func (in *Interner) allocate(v Value) ID {
	var id ID
	if n := len(in.free); n > 0 {
		id = in.free[n-1]
		in.free = in.free[:n-1]
		in.values[id] = v
		in.refs[id] = 1
		return id
	}
	id = ID(len(in.values))
	in.values = append(in.values, v)
	in.refs = append(in.refs, 1)
	return id
}
