package correlate

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tracehound/ketrace/decode"
)

type fakeTarget struct {
	sw *StackWalk
	setTwice bool
}

func (t *fakeTarget) SetStackWalk(sw *StackWalk) bool {
	if t.sw != nil {
		t.setTwice = true
		return false
	}
	t.sw = sw
	return true
}

func TestResolveExactKeyMovesToCooled(t *testing.T) {
	c := New(nil)
	target := &fakeTarget{}
	c.Insert(44876, decode.FileTime(133644663686383541), target, "synthetic")
	require.True(t, c.Pending(Key{44876, decode.FileTime(133644663686383541)}))

	sw := &StackWalk{Frames: []Frame{{Address: 1}, {Address: 2}, {Address: 3}}}
	c.Resolve(44876, decode.FileTime(133644663686383541), sw)

	require.NotNil(t, target.sw)
	require.Len(t, target.sw.Frames, 3)
	require.False(t, c.Pending(Key{44876, decode.FileTime(133644663686383541)}))
	require.True(t, c.Cooled(Key{44876, decode.FileTime(133644663686383541)}))
}

func TestResolveWildcardThreadMatches(t *testing.T) {
	c := New(nil)
	target := &fakeTarget{}
	c.Insert(AnyThread, decode.FileTime(100), target, "wildcard")

	c.Resolve(999, decode.FileTime(100), &StackWalk{})
	require.NotNil(t, target.sw)
}

func TestResolveDuplicateIsLoggedAndDiscarded(t *testing.T) {
	c := New(nil)
	target := &fakeTarget{}
	c.Insert(1, decode.FileTime(100), target, "x")
	c.Resolve(1, decode.FileTime(100), &StackWalk{})
	require.True(t, c.Cooled(Key{1, decode.FileTime(100)}))

	// Second stack-walk for the same key: found in cooled, logged and
	// discarded, not attached a second time.
	c.Resolve(1, decode.FileTime(100), &StackWalk{Frames: []Frame{{Address: 9}}})
	require.Len(t, target.sw.Frames, 0)
}

func TestEvictionAfterAgeWindow(t *testing.T) {
	c := New(nil)
	c.SetEvictionParams(15, 10)
	target := &fakeTarget{}
	c.Insert(1, decode.FileTime(0), target, "old")
	require.Equal(t, 1, c.PendingLen())

	// Inserting a second event more than 15s later triggers eviction of
	// the first (never resolved) front entry.
	later := decode.FileTime(16 * 10_000_000)
	c.Insert(2, later, &fakeTarget{}, "new")

	require.False(t, c.Pending(Key{1, decode.FileTime(0)}))
}

func TestEvictionBoundedByMaxPops(t *testing.T) {
	c := New(nil)
	c.SetEvictionParams(15, 2)
	for i := uint32(0); i < 5; i++ {
		c.Insert(i, decode.FileTime(0), &fakeTarget{}, "old")
	}
	later := decode.FileTime(16 * 10_000_000)
	c.Insert(99, later, &fakeTarget{}, "trigger")

	// Only 2 of the 5 aged entries are evicted on this call.
	require.Equal(t, 3+1, c.PendingLen()) // 3 remaining old + the new trigger entry
}
