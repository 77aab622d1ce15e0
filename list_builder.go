package capnp

// A ListBuilder is a mutable, offset-based view over a list's elements
// (§3.4, §4.5), the builder-side counterpart to ListReader. off always
// points at the first element's body — for an INLINE_COMPOSITE list,
// past the composite tag word that precedes it on the wire.
type ListBuilder struct {
	seg      *Segment
	off      Address
	length   int32
	fs       FieldSize
	elemSize ObjectSize // meaningful only when fs == SizeInlineComposite
}

// IsValid reports whether l refers to an actual list.
func (l ListBuilder) IsValid() bool {
	return l.seg != nil
}

// Len returns the number of elements in the list.
func (l ListBuilder) Len() int32 {
	return l.length
}

// ToReader returns a read-only view of the same bytes l builds.
func (l ListBuilder) ToReader() ListReader {
	if l.seg == nil {
		return ListReader{}
	}
	return ListReader{seg: l.seg, off: l.off, length: l.length, fs: l.fs, elemSize: l.elemSize, depthLimit: maxDepth}
}

// wireCount returns the value the list pointer's count field must carry:
// the element count for every FieldSize except INLINE_COMPOSITE, whose
// count field instead holds the body's total word length (§6.1).
func (l ListBuilder) wireCount() int32 {
	if l.fs != SizeInlineComposite {
		return l.length
	}
	words := int64(l.elemSize.totalSize()/wordSize) * int64(l.length)
	return int32(words)
}

// allocList allocates a new list of count elements of the given physical
// shape, zero-filled. For SizeInlineComposite it also writes the
// composite tag word that must precede the element body.
func allocList(pref *Segment, fs FieldSize, count int32, elemSize ObjectSize) (ListBuilder, error) {
	if count < 0 {
		return ListBuilder{}, errOverflow
	}
	if fs != SizeInlineComposite {
		bits := fs.bits()
		totalBits, ok := mulOverflowCheck(int64(bits), int64(count))
		if !ok {
			return ListBuilder{}, errOverflow
		}
		totalBytes := Size((totalBits + 7) / 8)
		seg, addr, err := alloc(pref, totalBytes)
		if err != nil {
			return ListBuilder{}, err
		}
		return ListBuilder{seg: seg, off: addr, length: count, fs: fs}, nil
	}

	if !elemSize.isValid() {
		return ListBuilder{}, errAllocTooLarge
	}
	elemTotal, ok := elemSize.totalSize().times(Size(count))
	if !ok {
		return ListBuilder{}, errOverflow
	}
	seg, addr, err := alloc(pref, wordSize+elemTotal)
	if err != nil {
		return ListBuilder{}, err
	}
	seg.writeRawPointer(addr, newCompositeTag(count, elemSize))
	bodyAddr, _ := addr.addSize(wordSize)
	return ListBuilder{seg: seg, off: bodyAddr, length: count, fs: SizeInlineComposite, elemSize: elemSize}, nil
}

// Struct projects the i'th element as a StructBuilder, regardless of the
// list's physical encoding — the builder-side mirror of
// ListReader.Struct, and the substrate StructBuilder.ListField's
// primitive-to-struct upgrade copies through.
func (l ListBuilder) Struct(i int32) StructBuilder {
	switch l.fs {
	case SizeVoid:
		return StructBuilder{seg: l.seg, off: l.off}
	case SizeBit:
		byteAddr, _ := l.off.addSize(Size(i / 8))
		return StructBuilder{seg: l.seg, off: byteAddr, bit0Offset: uint8(i % 8), oneBitField: true}
	case SizeInlineComposite:
		addr, _ := l.off.element(i, l.elemSize.totalSize())
		return StructBuilder{seg: l.seg, off: addr, size: l.elemSize}
	default:
		bits := l.fs.bits()
		stride := Size((bits + 7) / 8)
		addr, _ := l.off.element(i, stride)
		sz := ObjectSize{
			DataSize:     Size(l.fs.dataBitsAsStruct()) / 8,
			PointerCount: l.fs.pointerCountAsStruct(),
		}
		return StructBuilder{seg: l.seg, off: addr, size: sz}
	}
}

func (l ListBuilder) SetBit(i int32, v bool)       { l.Struct(i).SetBit(0, v) }
func (l ListBuilder) SetUint8(i int32, v uint8)    { l.Struct(i).SetUint8(0, v) }
func (l ListBuilder) SetUint16(i int32, v uint16)  { l.Struct(i).SetUint16(0, v) }
func (l ListBuilder) SetUint32(i int32, v uint32)  { l.Struct(i).SetUint32(0, v) }
func (l ListBuilder) SetUint64(i int32, v uint64)  { l.Struct(i).SetUint64(0, v) }
func (l ListBuilder) SetInt8(i int32, v int8)      { l.Struct(i).SetInt8(0, v) }
func (l ListBuilder) SetInt16(i int32, v int16)    { l.Struct(i).SetInt16(0, v) }
func (l ListBuilder) SetInt32(i int32, v int32)    { l.Struct(i).SetInt32(0, v) }
func (l ListBuilder) SetInt64(i int32, v int64)    { l.Struct(i).SetInt64(0, v) }
func (l ListBuilder) SetFloat32(i int32, v float32) { l.Struct(i).SetFloat32(0, v) }
func (l ListBuilder) SetFloat64(i int32, v float64) { l.Struct(i).SetFloat64(0, v) }

// SetPointer sets element i of a POINTER list from a generic object
// view.
func (l ListBuilder) SetPointer(i int32, src Ptr) error {
	return l.Struct(i).SetPointer(0, src)
}

// rawBytes returns the raw bytes backing a BYTE list.
func (l ListBuilder) rawBytes() []byte {
	if l.seg == nil || l.fs != SizeByte {
		return nil
	}
	end, _ := l.off.addSize(Size(l.length))
	return l.seg.data[l.off:end]
}

// Data returns the raw bytes of a Data blob, for in-place mutation.
func (l ListBuilder) Data() []byte {
	return l.rawBytes()
}

// Text returns the contents of a Text blob, stripping the trailing NUL
// byte reserved for it (§6.1).
func (l ListBuilder) Text() string {
	b := l.rawBytes()
	if len(b) == 0 {
		return ""
	}
	if b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b)
}
