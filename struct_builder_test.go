package capnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Struct upgrade: requesting a larger shape than what's on the wire
// reallocates and copies, preserving existing content and leaving the
// parent pointer rewritten to the new location (§4.4).
func TestStructFieldUpgradePreservesContent(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	small, err := root.NewStructField(0, ObjectSize{DataSize: 8})
	require.NoError(t, err)
	small.SetUint64(0, 0xCAFEBABE)

	bigger, err := root.StructField(0, ObjectSize{DataSize: 16, PointerCount: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(0xCAFEBABE), bigger.ToReader().Uint64(0))
	assert.Equal(t, uint32(0), bigger.ToReader().Uint32(8))

	// A second request for the same-or-smaller shape returns the
	// already-upgraded struct without reallocating again.
	again, err := root.StructField(0, ObjectSize{DataSize: 8})
	require.NoError(t, err)
	assert.Equal(t, uint64(0xCAFEBABE), again.ToReader().Uint64(0))
	assert.Equal(t, ObjectSize{DataSize: 16, PointerCount: 1}, again.Size())
}

// Upgrading a struct that itself has pointer fields re-homes those
// pointer slots without disturbing what they point to.
func TestStructFieldUpgradeCarriesPointers(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	small, err := root.NewStructField(0, ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	child, err := small.NewStructField(0, ObjectSize{DataSize: 8})
	require.NoError(t, err)
	child.SetUint64(0, 7)

	bigger, err := root.StructField(0, ObjectSize{DataSize: 8, PointerCount: 2})
	require.NoError(t, err)
	grandchild := bigger.ToReader().StructField(0, StructReader{})
	require.True(t, grandchild.IsValid())
	assert.Equal(t, uint64(7), grandchild.Uint64(0))
}

// Masked defaults round-trip: writing the default value back out produces
// all-zero wire bytes, and reading zero wire bytes yields the default
// (§4.8, §8 invariant 2).
func TestMaskedDefaultRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{DataSize: 8})
	require.NoError(t, err)

	const mask = uint32(0xFFFFFFFF)
	root.SetUint32Masked(0, mask, mask) // writing the default...
	assert.Equal(t, uint32(0), root.ToReader().Uint32(0))

	assert.Equal(t, mask, root.ToReader().Uint32Masked(0, mask)) // ...reads back as the default
}

// E9 — two structs holding the same single populated field but declared
// with different schema sizes canonicalize to byte-identical output.
func TestCanonicalizeIsSizeInvariant(t *testing.T) {
	_, seg1 := NewSingleSegmentMessage(nil)
	s1, err := NewRootStruct(seg1, ObjectSize{DataSize: 16, PointerCount: 2})
	require.NoError(t, err)
	s1.SetUint32(0, 99)

	_, seg2 := NewSingleSegmentMessage(nil)
	s2, err := NewRootStruct(seg2, ObjectSize{DataSize: 8, PointerCount: 1})
	require.NoError(t, err)
	s2.SetUint32(0, 99)

	out1, err := Canonicalize(s1.ToReader())
	require.NoError(t, err)
	out2, err := Canonicalize(s2.ToReader())
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

// Canonicalizing a struct with a populated list field recurses into the
// list and copies it into the canonical output.
func TestCanonicalizeRecursesIntoLists(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	lb, err := root.NewListField(0, SizeFourBytes, 2, ObjectSize{})
	require.NoError(t, err)
	lb.SetUint32(0, 1)
	lb.SetUint32(1, 2)

	out, err := Canonicalize(root.ToReader())
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}
