package fixpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternRoundTrip(t *testing.T) {
	in := NewInterner()

	values := []Value{"widget", "another string", float64(42), float64(-1.5), float64(0)}
	ids := make([]ID, len(values))
	for i, v := range values {
		ids[i] = in.Intern(v)
		if ids[i] <= 0 {
			t.Fatalf("interned %v to non-positive ID %d", v, ids[i])
		}
	}

	for i, v := range values {
		if got := in.Reverse(ids[i]); got != v {
			t.Errorf("reverse(intern(%v)) = %v", v, got)
		}
	}

	// Same value, same ID.
	for i, v := range values {
		if again := in.Intern(v); again != ids[i] {
			t.Errorf("intern(%v) returned %d, then %d", v, ids[i], again)
		}
	}
}

func TestInternStringNumberDisjoint(t *testing.T) {
	in := NewInterner()

	sid := in.Intern("42")
	nid := in.Intern(float64(42))
	if sid == nid {
		t.Fatalf("string %q and number 42 share ID %d", "42", sid)
	}
	require.Equal(t, "42", in.Reverse(sid))
	require.Equal(t, float64(42), in.Reverse(nid))
}

func TestInternReleaseReclaims(t *testing.T) {
	in := NewInterner()

	id := in.Intern("transient")
	in.Intern("transient") // refcount 2
	in.Release(id)
	if in.Reverse(id) != "transient" {
		t.Fatal("released below refcount, value should survive")
	}
	in.Release(id)
	if in.Reverse(id) != nil {
		t.Fatal("value should be reclaimed at refcount zero")
	}
	if _, ok := in.Get("transient"); ok {
		t.Fatal("reclaimed value still resolvable")
	}

	// The freed ID is reused for the next allocation.
	next := in.Intern("replacement")
	require.Equal(t, id, next)
}

func TestInternArenaRelease(t *testing.T) {
	in := NewInterner()

	a := in.InternArena("scratch", "scratchpad")
	b := in.InternArena(float64(7), "scratchpad")
	in.ReleaseArena("scratchpad")

	if in.Reverse(a) != nil || in.Reverse(b) != nil {
		t.Fatal("arena release should reclaim single-reference IDs")
	}

	// An ID with an outside reference survives the arena.
	keep := in.Intern("kept")
	in.InternArena("kept", "scratchpad")
	in.ReleaseArena("scratchpad")
	require.Equal(t, "kept", in.Reverse(keep))
}

func TestInternGetDoesNotBumpRefcount(t *testing.T) {
	in := NewInterner()

	id := in.Intern("once")
	got, ok := in.Get("once")
	require.True(t, ok)
	require.Equal(t, id, got)

	in.Release(id)
	if in.Reverse(id) != nil {
		t.Fatal("Get must not add a reference")
	}
}

func TestReservedBlockTags(t *testing.T) {
	in := NewInterner()
	require.Equal(t, BlockAddID, ID(1))
	require.Equal(t, BlockRemoveID, ID(2))
	if in.Reverse(BlockAddID) == nil || in.Reverse(BlockRemoveID) == nil {
		t.Fatal("block tags must be interned at creation")
	}
}
