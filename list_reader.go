package capnp

// A ListReader is a read-only, offset-based view over a list's elements
// (§3.4, §4.5). Every list — whatever its physical FieldSize — also
// knows how to project its i'th element as a StructReader, which is the
// substrate the forward-compatibility and upgrade rules of §4.6 run on:
// a caller that expects a bigger struct shape than what's on the wire
// simply gets zeros for the fields that don't exist, because
// StructReader's own bounds check already degrades out-of-range field
// reads to zero.
type ListReader struct {
	seg        *Segment
	off        Address
	length     int32
	fs         FieldSize
	elemSize   ObjectSize // meaningful only when fs == SizeInlineComposite
	depthLimit uint
}

// IsValid reports whether l refers to an actual list.
func (l ListReader) IsValid() bool {
	return l.seg != nil
}

// Len returns the number of elements in the list.
func (l ListReader) Len() int32 {
	return l.length
}

// wireCount returns the value a list pointer's count field must carry to
// describe l: the element count for every FieldSize except
// INLINE_COMPOSITE, whose count field instead holds the body's total
// word length (§6.1).
func (l ListReader) wireCount() int32 {
	if l.fs != SizeInlineComposite {
		return l.length
	}
	words := int64(l.elemSize.totalSize()/wordSize) * int64(l.length)
	return int32(words)
}

// derefAsList follows the pointer word at off within seg, requiring it
// to be a list pointer compatible with expectedSize, and returns the
// list it names (§4.3 getListField, §4.6).
func derefAsList(seg *Segment, off Address, depthLimit uint, expectedSize FieldSize) (ListReader, bool) {
	val := seg.readRawPointer(off)
	if val.isZero() {
		return ListReader{}, false
	}
	fseg, faddr, fval, ok := followFarReader(seg, off, val)
	if !ok || fval.isZero() {
		return ListReader{}, false
	}
	if depthLimit == 0 {
		return ListReader{}, false
	}
	if fval.kind() != listPointer {
		return ListReader{}, false
	}
	s, addr, fs, count, elemSize, ok2 := resolveListPointer(fseg, faddr, fval)
	if !ok2 {
		return ListReader{}, false
	}
	if !s.msg.canRead(listReadSize(fs, count, elemSize)) {
		return ListReader{}, false
	}
	// Rule 5 (§4.6): a BIT list is only compatible with an expected BIT
	// size, and an expected BIT size only with a BIT list; any other
	// combination is handled uniformly by the struct projection in
	// Struct, so it's accepted here.
	if (fs == SizeBit) != (expectedSize == SizeBit) {
		return ListReader{}, false
	}
	return ListReader{seg: s, off: addr, length: count, fs: fs, elemSize: elemSize, depthLimit: depthLimit - 1}, true
}

// readRootList decodes the word at address 0 of seg as a list pointer
// compatible with expectedSize.
func readRootList(seg *Segment, nestingLimit uint, expectedSize FieldSize) ListReader {
	l, ok := derefAsList(seg, 0, nestingLimit, expectedSize)
	if !ok {
		return ListReader{}
	}
	return l
}

// Struct projects the i'th element as a StructReader, regardless of the
// list's physical encoding (§4.5's structDataBits/structPointerCount
// table). Out-of-range i returns the empty struct.
func (l ListReader) Struct(i int32) StructReader {
	if l.seg == nil || i < 0 || i >= l.length {
		return StructReader{}
	}
	switch l.fs {
	case SizeVoid:
		return StructReader{seg: l.seg, off: l.off, depthLimit: l.depthLimit}
	case SizeBit:
		byteAddr, ok := l.off.addSize(Size(i / 8))
		if !ok {
			return StructReader{}
		}
		return StructReader{
			seg:         l.seg,
			off:         byteAddr,
			depthLimit:  l.depthLimit,
			bit0Offset:  uint8(i % 8),
			oneBitField: true,
		}
	case SizeInlineComposite:
		addr, ok := l.off.element(i, l.elemSize.totalSize())
		if !ok {
			return StructReader{}
		}
		return StructReader{seg: l.seg, off: addr, size: l.elemSize, depthLimit: l.depthLimit}
	default:
		bits := l.fs.bits()
		stride := Size((bits + 7) / 8)
		addr, ok := l.off.element(i, stride)
		if !ok {
			return StructReader{}
		}
		sz := ObjectSize{
			DataSize:     Size(l.fs.dataBitsAsStruct()) / 8,
			PointerCount: l.fs.pointerCountAsStruct(),
		}
		return StructReader{seg: l.seg, off: addr, size: sz, depthLimit: l.depthLimit}
	}
}

// Bit returns element i of a BIT list (or of a list-of-one-bit-struct,
// which shares the identical physical layout).
func (l ListReader) Bit(i int32) bool {
	return l.Struct(i).Bit(0)
}

func (l ListReader) Uint8(i int32) uint8   { return l.Struct(i).Uint8(0) }
func (l ListReader) Uint16(i int32) uint16 { return l.Struct(i).Uint16(0) }
func (l ListReader) Uint32(i int32) uint32 { return l.Struct(i).Uint32(0) }
func (l ListReader) Uint64(i int32) uint64 { return l.Struct(i).Uint64(0) }
func (l ListReader) Int8(i int32) int8     { return l.Struct(i).Int8(0) }
func (l ListReader) Int16(i int32) int16   { return l.Struct(i).Int16(0) }
func (l ListReader) Int32(i int32) int32   { return l.Struct(i).Int32(0) }
func (l ListReader) Int64(i int32) int64   { return l.Struct(i).Int64(0) }
func (l ListReader) Float32(i int32) float32 { return l.Struct(i).Float32(0) }
func (l ListReader) Float64(i int32) float64 { return l.Struct(i).Float64(0) }

// Ptr returns element i of a POINTER list as a generic object view.
func (l ListReader) Ptr(i int32) Ptr {
	return l.Struct(i).Ptr(0)
}

// rawBytes returns the raw bytes backing a BYTE list. It is the
// substrate Text/Data readers use; it does not copy.
func (l ListReader) rawBytes() []byte {
	if l.seg == nil || l.fs != SizeByte {
		return nil
	}
	end, ok := l.off.addSize(Size(l.length))
	if !ok || !l.seg.regionInBounds(l.off, Size(l.length)) {
		return nil
	}
	return l.seg.data[l.off:end]
}

// Data returns the raw bytes of a Data blob — the full physical content
// of the underlying BYTE list, with no reinterpretation (§6.1).
func (l ListReader) Data() []byte {
	return l.rawBytes()
}

// Text returns the contents of a Text blob. Text is stored as a BYTE
// list with one extra trailing NUL byte that is included in the stored
// length but excluded from the reported string (§6.1): a caller that
// reads a Text field as a Data blob would see that NUL, but Text strips
// it.
func (l ListReader) Text() string {
	b := l.rawBytes()
	if len(b) == 0 {
		return ""
	}
	if b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}
