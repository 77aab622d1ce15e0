package capnp

// ObjectSize records the shape of a struct, or the per-element shape of a
// composite list: a data section size (in bytes, always a multiple of
// wordSize) and a pointer section length.
type ObjectSize struct {
	DataSize     Size
	PointerCount uint16
}

// totalSize returns the number of bytes the struct (or one composite list
// element) occupies, data section plus pointer section.
func (sz ObjectSize) totalSize() Size {
	return sz.DataSize + Size(sz.PointerCount)*wordSize
}

// isZero reports whether sz describes an empty struct.
func (sz ObjectSize) isZero() bool {
	return sz.DataSize == 0 && sz.PointerCount == 0
}

// isValid reports whether sz can be represented on the wire: the data
// section's word count must fit in 16 bits (at most 0xffff words), as the
// pointer count already does by its type, per
// the struct pointer word layout (§6.1).
func (sz ObjectSize) isValid() bool {
	return sz.DataSize/wordSize <= 0xffff
}

// maxSize returns the element-wise maximum of sz and other, used when
// upgrading a struct or composite list element to accommodate a larger
// caller-requested shape (§4.4 struct upgrade rule).
func maxSize(sz, other ObjectSize) ObjectSize {
	out := sz
	if other.DataSize > out.DataSize {
		out.DataSize = other.DataSize
	}
	if other.PointerCount > out.PointerCount {
		out.PointerCount = other.PointerCount
	}
	return out
}
