package capnp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextBlobRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	require.NoError(t, root.NewTextField(0, "hello, wire"))

	l := root.ToReader().ListField(0, SizeByte, ListReader{})
	assert.Equal(t, "hello, wire", l.Text())
	// The stored length includes the reserved trailing NUL.
	assert.EqualValues(t, len("hello, wire")+1, l.Len())
}

func TestDataBlobRoundTrip(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	want := []byte{0x00, 0x01, 0xFF, 0x10}
	require.NoError(t, root.NewDataField(0, want))

	l := root.ToReader().ListField(0, SizeByte, ListReader{})
	assert.Equal(t, want, l.Data())
}

// Forward compatibility: a reader expecting a larger struct shape than
// what's actually on the wire gets zeros for the fields beyond what's
// there, rather than an error (§4.6 rule 4).
func TestListElementForwardCompatibility(t *testing.T) {
	_, seg := NewSingleSegmentMessage(nil)
	root, err := NewRootStruct(seg, ObjectSize{PointerCount: 1})
	require.NoError(t, err)
	lb, err := root.NewListField(0, SizeInlineComposite, 2, ObjectSize{DataSize: 8})
	require.NoError(t, err)
	lb.Struct(0).SetUint32(0, 111)
	lb.Struct(1).SetUint32(0, 222)

	// A caller that expects a bigger element shape (as if the schema had
	// since gained more fields) sees the old elements zero-extended.
	l := root.ToReader().ListField(0, SizeInlineComposite, ListReader{})
	elem := l.Struct(0)
	assert.Equal(t, uint32(111), elem.Uint32(0))
	assert.Equal(t, uint32(0), elem.Uint32(8))
	assert.False(t, elem.StructField(0, StructReader{}).IsValid())
}
