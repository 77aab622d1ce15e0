package capnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// §8 invariant 6: the read limiter bounds total traversed bytes, not just
// a single object's size.
func TestReadLimiterExhaustion(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{DataSize: 8})
	require.NoError(t, err)
	root.SetUint64(0, 42)

	seg.msg.ResetReadLimit(4) // smaller than the 8-byte struct body
	r := ReadRootStruct(seg, 64)
	assert.False(t, r.IsValid())
}

func TestReadLimiterAllowsWithinBudget(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{DataSize: 8})
	require.NoError(t, err)
	root.SetUint64(0, 42)

	seg.msg.ResetReadLimit(64)
	r := ReadRootStruct(seg, 64)
	require.True(t, r.IsValid())
	assert.Equal(t, uint64(42), r.Uint64(0))
}

// A null pointer read twice degrades to the same empty value both times
// (§7.1): reading is idempotent and never mutates the message.
func TestNullPointerIdempotent(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)

	r := root.ToReader()
	first := r.StructField(0, StructReader{})
	second := r.StructField(0, StructReader{})
	assert.Equal(t, first.IsValid(), second.IsValid())
	assert.False(t, first.IsValid())
}

// A multi-segment arena grows by appending new segments once the first is
// full, rather than reallocating the existing one (§4.1).
func TestMultiSegmentArenaGrows(t *testing.T) {
	msg, seg0, err := NewMessage(MultiSegment(nil))
	require.NoError(t, err)
	require.EqualValues(t, 0, seg0.ID())

	// Force a second segment by requesting more than fits in the
	// default minimum segment allocation.
	_, _, err = msg.alloc(Size(2048), seg0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, msg.NumSegments(), int64(2))
}

// A builder holding a *Segment obtained before an arena grew into a new
// segment must still see its writes after the growth: appending a new
// segment must never invalidate a previously returned *Segment (§4.1).
func TestMultiSegmentBuilderSurvivesGrowth(t *testing.T) {
	msg, seg0, err := NewMessage(MultiSegment(nil))
	require.NoError(t, err)

	root, err := NewRootStruct(seg0, ObjectSize{DataSize: 8, PointerCount: 1})
	require.NoError(t, err)
	root.SetUint64(0, 0x1122334455667788)

	// Force the arena to allocate a new segment well beyond the first.
	_, _, err = msg.alloc(Size(4096), nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, msg.NumSegments(), int64(2))

	// seg0 (captured before the growth) must still be writable and must
	// still reflect what was written to it beforehand.
	assert.Equal(t, uint64(0x1122334455667788), root.ToReader().Uint64(0))
	child, err := root.NewStructField(0, ObjectSize{DataSize: 8})
	require.NoError(t, err)
	child.SetUint64(0, 0xAABBCCDD)
	assert.Equal(t, uint64(0xAABBCCDD), root.ToReader().StructField(0, StructReader{}).Uint64(0))
}

// Round trip: writing every primitive field type and reading it back
// through the checked reader path yields the original values (§8
// invariant 1).
func TestRoundTripAllPrimitiveKinds(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{DataSize: 32})
	require.NoError(t, err)

	root.SetUint8(0, 0xAB)
	root.SetInt16(2, -1234)
	root.SetUint32(4, 0xDEADBEEF)
	root.SetInt64(8, -9000000000000)
	root.SetFloat32(16, 3.5)
	root.SetFloat64(24, 2.718281828)
	root.SetBit(160, true) // byte 20, untouched by any field above

	r := root.ToReader()
	assert.True(t, r.Bit(160))
	assert.Equal(t, uint8(0xAB), r.Uint8(0))
	assert.Equal(t, int16(-1234), r.Int16(2))
	assert.Equal(t, uint32(0xDEADBEEF), r.Uint32(4))
	assert.Equal(t, int64(-9000000000000), r.Int64(8))
	assert.Equal(t, float32(3.5), r.Float32(16))
	assert.Equal(t, 2.718281828, r.Float64(24))
}
