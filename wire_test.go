package capnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// E1 — empty root struct: every field read degrades to its zero value.
// A zero-size struct placed right after its pointer encodes as the
// all-zero word, which reads back as null, i.e. the empty struct.
func TestEmptyRootStruct(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	_, err := NewRootStruct(seg, ObjectSize{})
	require.NoError(t, err)

	root := ReadRootStruct(seg, 64)
	require.False(t, root.IsValid())
	assert.Equal(t, uint32(0), root.Uint32(0))
	assert.False(t, root.Bit(0))
	assert.False(t, root.StructField(0, StructReader{}).IsValid())
}

// E2 — int32 field read/write, with out-of-range offsets degrading to zero.
func TestInt32Field(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{DataSize: 8})
	require.NoError(t, err)
	root.SetInt32(0, 0x12345678)

	r := root.ToReader()
	assert.Equal(t, int32(0x12345678), r.Int32(0))
	assert.Equal(t, uint32(0), r.Uint32(8)) // beyond the declared data section
}

// E3 — bool field with a non-zero schema default, represented on the wire
// as the XOR mask.
func TestBoolDefaultMasked(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{DataSize: 8})
	require.NoError(t, err)

	const mask = uint8(1)
	root.SetBitMasked(0, false, mask)
	assert.Equal(t, uint8(1), root.seg.readUint8(root.off))

	r := root.ToReader()
	assert.False(t, r.BitMasked(0, mask))
}

// E4 — list of 3 uint16 values, with an out-of-range element degrading to
// zero.
func TestUint16List(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	lb, err := root.NewListField(0, SizeTwoBytes, 3, ObjectSize{})
	require.NoError(t, err)
	lb.SetUint16(0, 1)
	lb.SetUint16(1, 2)
	lb.SetUint16(2, 3)

	l := root.ToReader().ListField(0, SizeTwoBytes, ListReader{})
	require.EqualValues(t, 3, l.Len())
	assert.Equal(t, uint16(1), l.Uint16(0))
	assert.Equal(t, uint16(2), l.Uint16(1))
	assert.Equal(t, uint16(3), l.Uint16(2))
	assert.Equal(t, uint16(0), l.Uint16(3))
}

// E5 — primitive-to-struct list upgrade: a list of uint32 is reinterpreted
// as a list of structs whose first data word holds the original value,
// with the original values intact afterward.
func TestPrimitiveToStructListUpgrade(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	lb, err := root.NewListField(0, SizeFourBytes, 2, ObjectSize{})
	require.NoError(t, err)
	lb.SetUint32(0, 10)
	lb.SetUint32(1, 20)

	upgraded, err := root.ListField(0, SizeInlineComposite, ObjectSize{DataSize: 8, PointerCount: 1})
	require.NoError(t, err)
	require.EqualValues(t, 2, upgraded.Len())
	assert.Equal(t, uint32(10), upgraded.Struct(0).ToReader().Uint32(0))
	assert.Equal(t, uint32(20), upgraded.Struct(1).ToReader().Uint32(0))

	// Re-reading via the parent pointer sees the upgraded shape, not the
	// original primitive list.
	reread := root.ToReader().ListField(0, SizeInlineComposite, ListReader{})
	assert.Equal(t, uint32(10), reread.Struct(0).Uint32(0))
	assert.Equal(t, uint32(20), reread.Struct(1).Uint32(0))
}

// E6 — depth-bomb defense: a struct whose pointer field points back to
// itself must not cause unbounded recursion, and must degrade to an
// empty struct once the nesting limit is exhausted.
func TestDepthBombDefense(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	require.NoError(t, writePointerGeneric(seg, root.pointerAddress(0), seg, root.off, newStructPointer(0, root.size)))

	r := ReadRootStruct(seg, 64)
	depth := 0
	cur := r
	for cur.IsValid() {
		depth++
		cur = cur.StructField(0, StructReader{})
	}
	assert.Equal(t, 64, depth)
}

// E7 — double-far round trip: a struct in a third segment, reached via a
// double-far pointer through a landing pad in a second segment, reads
// back identically to a direct reference.
func TestDoubleFarRoundTrip(t *testing.T) {
	// Each buffer's capacity holds exactly one of the allocations below,
	// so every allocation lands in a segment of its own.
	msg := &Message{Arena: MultiSegment([][]byte{make([]byte, 0, 8), make([]byte, 0, 8), make([]byte, 0, 16)})}
	seg0, _, err := msg.alloc(wordSize, nil)
	require.NoError(t, err)
	require.Zero(t, seg0.id)

	// Allocate the struct we'll reach via double-far in a dedicated
	// segment, and give it a recognizable value.
	targetSeg, targetAddr, err := msg.alloc(wordSize, nil)
	require.NoError(t, err)
	payload := StructBuilder{seg: targetSeg, off: targetAddr, size: ObjectSize{DataSize: 8}}
	payload.SetUint64(0, 0xBADC0FFEE0DDF00D)

	// Landing pad: two words, first a far pointer at the payload's
	// segment/offset, second a zero-offset tag carrying the struct's
	// shape.
	padSeg, padAddr, err := msg.alloc(wordSize*2, nil)
	require.NoError(t, err)
	far := newFarPointer(false, targetSeg.id, int32(targetAddr/Address(wordSize)))
	tag := newStructPointer(0, payload.size)
	padSeg.writeRawPointer(padAddr, far)
	tagAddr, _ := padAddr.addSize(wordSize)
	padSeg.writeRawPointer(tagAddr, tag)

	// The actual pointer slot: a double-far pointing at the landing pad.
	doubleFar := newFarPointer(true, padSeg.id, int32(padAddr/Address(wordSize)))
	seg0.writeRawPointer(0, doubleFar)

	r := ReadRootStruct(seg0, 64)
	require.True(t, r.IsValid())
	assert.Equal(t, uint64(0xBADC0FFEE0DDF00D), r.Uint64(0))
}

// E8 — list of 3 one-bit structs packed into a single byte; bit0Offset
// 0, 1, 2 project the correct bit.
func TestOneBitStructList(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	lb, err := root.NewListField(0, SizeBit, 3, ObjectSize{})
	require.NoError(t, err)
	lb.Struct(0).SetBit(0, true)
	lb.Struct(1).SetBit(0, false)
	lb.Struct(2).SetBit(0, true)

	l := root.ToReader().ListField(0, SizeBit, ListReader{})
	assert.True(t, l.Struct(0).Bit(0))
	assert.False(t, l.Struct(1).Bit(0))
	assert.True(t, l.Struct(2).Bit(0))
}

// A BIT list can never be reinterpreted as a struct list, or vice versa
// (§4.6 rule 5).
func TestBitListIncompatibleWithStructList(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	_, err = root.NewListField(0, SizeBit, 4, ObjectSize{})
	require.NoError(t, err)

	_, err = root.ListField(0, SizeInlineComposite, ObjectSize{DataSize: 8})
	assert.ErrorIs(t, err, errBitListUpgrade)

	asList := root.ToReader().ListField(0, SizeInlineComposite, ListReader{})
	assert.False(t, asList.IsValid())
}
