package capnp

import "math"

// A StructBuilder is a mutable, offset-based view over a struct's data
// section and pointer section (§3.4, §4.4). Unlike StructReader, a
// StructBuilder never degrades silently: an operation that can't
// complete — allocation failure, an address that overflows the wire's
// address space — returns an error, because a builder is manipulating
// data the program itself is constructing (§7.2).
type StructBuilder struct {
	seg  *Segment
	off  Address
	size ObjectSize

	// bit0Offset/oneBitField mirror StructReader's bit-0 offset hack
	// (§3.4, §9): set when this struct is the element of a list packed
	// as a physical BIT list because its only field is a single bit.
	bit0Offset  uint8
	oneBitField bool
}

// IsValid reports whether p refers to an actual struct.
func (p StructBuilder) IsValid() bool {
	return p.seg != nil
}

// Segment returns the segment p's data section lives in.
func (p StructBuilder) Segment() *Segment {
	return p.seg
}

// Size returns p's current data/pointer section shape.
func (p StructBuilder) Size() ObjectSize {
	return p.size
}

// ToReader returns a read-only view of the same bytes p builds, letting
// a writer immediately read back what it just wrote.
func (p StructBuilder) ToReader() StructReader {
	if p.seg == nil {
		return StructReader{}
	}
	return StructReader{
		seg: p.seg, off: p.off, size: p.size, depthLimit: maxDepth,
		bit0Offset: p.bit0Offset, oneBitField: p.oneBitField,
	}
}

// allocStruct allocates sz zero-filled bytes for a new struct's data and
// pointer sections, preferring pref.
func allocStruct(pref *Segment, sz ObjectSize) (StructBuilder, error) {
	if !sz.isValid() {
		return StructBuilder{}, errAllocTooLarge
	}
	seg, addr, err := alloc(pref, sz.totalSize())
	if err != nil {
		return StructBuilder{}, err
	}
	return StructBuilder{seg: seg, off: addr, size: sz}, nil
}

// NewRootStruct allocates a struct of shape sz and sets it as the root
// of seg's message, by writing a struct pointer into the root pointer
// slot at address 0 of seg (§6.2 AllocateAsRoot).
func NewRootStruct(seg *Segment, sz ObjectSize) (StructBuilder, error) {
	sb, err := allocStruct(seg, sz)
	if err != nil {
		return StructBuilder{}, err
	}
	if err := writePointerGeneric(seg, 0, sb.seg, sb.off, newStructPointer(0, sb.size)); err != nil {
		return StructBuilder{}, err
	}
	return sb, nil
}

// dataAddress returns the address of a sz-byte field at byte offset off
// within p's data section, growing nothing — callers are expected to
// have sized p to include off already (StructBuilder never silently
// truncates a write the way StructReader silently zeros an
// out-of-range read).
func (p StructBuilder) dataAddress(off DataOffset, sz Size) Address {
	addr, _ := p.off.addOffset(off)
	return addr
}

func (p StructBuilder) SetUint8(off DataOffset, v uint8) {
	p.seg.writeUint8(p.dataAddress(off, 1), v)
}

func (p StructBuilder) SetUint8Masked(off DataOffset, v, mask uint8) {
	p.SetUint8(off, maskUint8(v, mask))
}

func (p StructBuilder) SetUint16(off DataOffset, v uint16) {
	p.seg.writeUint16(p.dataAddress(off, 2), v)
}

func (p StructBuilder) SetUint16Masked(off DataOffset, v, mask uint16) {
	p.SetUint16(off, maskUint16(v, mask))
}

func (p StructBuilder) SetUint32(off DataOffset, v uint32) {
	p.seg.writeUint32(p.dataAddress(off, 4), v)
}

func (p StructBuilder) SetUint32Masked(off DataOffset, v, mask uint32) {
	p.SetUint32(off, maskUint32(v, mask))
}

func (p StructBuilder) SetUint64(off DataOffset, v uint64) {
	p.seg.writeUint64(p.dataAddress(off, 8), v)
}

func (p StructBuilder) SetUint64Masked(off DataOffset, v, mask uint64) {
	p.SetUint64(off, maskUint64(v, mask))
}

func (p StructBuilder) SetInt8(off DataOffset, v int8)   { p.SetUint8(off, uint8(v)) }
func (p StructBuilder) SetInt16(off DataOffset, v int16) { p.SetUint16(off, uint16(v)) }
func (p StructBuilder) SetInt32(off DataOffset, v int32) { p.SetUint32(off, uint32(v)) }
func (p StructBuilder) SetInt64(off DataOffset, v int64) { p.SetUint64(off, uint64(v)) }

func (p StructBuilder) SetFloat32(off DataOffset, v float32) {
	p.SetUint32(off, math.Float32bits(v))
}

func (p StructBuilder) SetFloat32Masked(off DataOffset, v float32, mask uint32) {
	p.SetUint32(off, maskUint32(math.Float32bits(v), mask))
}

func (p StructBuilder) SetFloat64(off DataOffset, v float64) {
	p.SetUint64(off, math.Float64bits(v))
}

func (p StructBuilder) SetFloat64Masked(off DataOffset, v float64, mask uint64) {
	p.SetUint64(off, maskUint64(math.Float64bits(v), mask))
}

func (p StructBuilder) SetBit(n BitOffset, v bool) {
	var addr Address
	var mask uint8
	if p.oneBitField {
		addr = p.off
		mask = 1 << p.bit0Offset
	} else {
		addr, _ = p.off.addOffset(n.offset())
		mask = n.mask()
	}
	b := p.seg.readUint8(addr)
	if v {
		b |= mask
	} else {
		b &^= mask
	}
	p.seg.writeUint8(addr, b)
}

func (p StructBuilder) SetBitMasked(n BitOffset, v bool, mask uint8) {
	p.SetBit(n, maskBool(v, mask))
}

// Bit returns the bit that is n bits from the start of p's data section,
// or, for a one-bit struct list element, its sole field.
func (p StructBuilder) Bit(n BitOffset) bool {
	if p.oneBitField {
		return p.seg.readUint8(p.off)&(1<<p.bit0Offset) != 0
	}
	addr, _ := p.off.addOffset(n.offset())
	return p.seg.readUint8(addr)&n.mask() != 0
}

// pointerAddress returns the address of the i'th pointer slot.
func (p StructBuilder) pointerAddress(i uint16) Address {
	addr, _ := p.off.addSize(p.size.DataSize)
	addr, _ = addr.element(int32(i), wordSize)
	return addr
}

// HasPointer reports whether the i'th pointer field is non-null.
func (p StructBuilder) HasPointer(i uint16) bool {
	return !p.seg.readRawPointer(p.pointerAddress(i)).isZero()
}

// NewStructField discards whatever the i'th pointer field currently
// holds and allocates a fresh struct of shape sz in its place.
func (p StructBuilder) NewStructField(i uint16, sz ObjectSize) (StructBuilder, error) {
	sb, err := allocStruct(p.seg, sz)
	if err != nil {
		return StructBuilder{}, err
	}
	addr := p.pointerAddress(i)
	if err := writePointerGeneric(p.seg, addr, sb.seg, sb.off, newStructPointer(0, sb.size)); err != nil {
		return StructBuilder{}, err
	}
	return sb, nil
}

// StructField returns the i'th pointer field as a struct of at least
// shape sz, allocating it if the slot is null and upgrading it in place
// if what's there is smaller than sz (§4.4 struct upgrade). Existing
// content is preserved; the region the struct previously occupied is
// abandoned, not reclaimed (§4.4).
func (p StructBuilder) StructField(i uint16, sz ObjectSize) (StructBuilder, error) {
	addr := p.pointerAddress(i)
	val := p.seg.readRawPointer(addr)
	if val.isZero() {
		return p.NewStructField(i, sz)
	}
	fseg, faddr, fval, err := followFarBuilder(p.seg, addr, val)
	if err != nil {
		return StructBuilder{}, err
	}
	if fval.kind() != structPointer {
		return StructBuilder{}, errBadTag
	}
	oldSeg, oldAddr, oldSize, ok := resolveStructPointer(fseg, faddr, fval)
	if !ok {
		return StructBuilder{}, errPointerAddress
	}
	if oldSize.DataSize >= sz.DataSize && oldSize.PointerCount >= sz.PointerCount {
		return StructBuilder{seg: oldSeg, off: oldAddr, size: oldSize}, nil
	}

	newSize := maxSize(oldSize, sz)
	newSB, err := allocStruct(p.seg, newSize)
	if err != nil {
		return StructBuilder{}, err
	}
	if err := copyStructContent(newSB, StructBuilder{seg: oldSeg, off: oldAddr, size: oldSize}); err != nil {
		return StructBuilder{}, err
	}
	if err := writePointerGeneric(p.seg, addr, newSB.seg, newSB.off, newStructPointer(0, newSB.size)); err != nil {
		return StructBuilder{}, err
	}
	return newSB, nil
}

// copyStructContent copies src's data section and pointer slots into
// dst, which must be at least as large as src, zero-filling whatever of
// dst's data section src doesn't cover (§4.4, grounded on the teacher's
// version-aware struct copy).
func copyStructContent(dst, src StructBuilder) error {
	copy(dst.seg.slice(dst.off, dst.size.DataSize), src.seg.slice(src.off, src.size.DataSize))
	for i := uint16(0); i < src.size.PointerCount; i++ {
		if err := copyPointerSlot(dst.seg, dst.pointerAddress(i), src.seg, src.pointerAddress(i)); err != nil {
			return err
		}
	}
	return nil
}

// NewListField discards whatever the i'th pointer field currently holds
// and allocates a fresh list of the given shape in its place.
func (p StructBuilder) NewListField(i uint16, fs FieldSize, count int32, elemSize ObjectSize) (ListBuilder, error) {
	lb, err := allocList(p.seg, fs, count, elemSize)
	if err != nil {
		return ListBuilder{}, err
	}
	addr := p.pointerAddress(i)
	ptrAddr := lb.off
	if fs == SizeInlineComposite {
		ptrAddr -= Address(wordSize)
	}
	if err := writePointerGeneric(p.seg, addr, lb.seg, ptrAddr, newListPointer(0, fs, lb.wireCount())); err != nil {
		return ListBuilder{}, err
	}
	return lb, nil
}

// ListField returns the i'th pointer field as a list, allocating an
// empty list of the requested shape if the slot is null. If what's
// there is a primitive list and expectedSize names a struct-shaped
// element, the list is upgraded in place: each primitive element is
// promoted to a one-field struct element holding the old value (§4.6
// rule 3, builder-only).
func (p StructBuilder) ListField(i uint16, fs FieldSize, elemSize ObjectSize) (ListBuilder, error) {
	addr := p.pointerAddress(i)
	val := p.seg.readRawPointer(addr)
	if val.isZero() {
		return p.NewListField(i, fs, 0, elemSize)
	}
	fseg, faddr, fval, err := followFarBuilder(p.seg, addr, val)
	if err != nil {
		return ListBuilder{}, err
	}
	if fval.kind() != listPointer {
		return ListBuilder{}, errBadTag
	}
	oldSeg, oldAddr, oldFS, oldCount, oldElemSize, ok := resolveListPointer(fseg, faddr, fval)
	if !ok {
		return ListBuilder{}, errPointerAddress
	}
	if (oldFS == SizeBit) != (fs == SizeBit) {
		return ListBuilder{}, errBitListUpgrade
	}
	if oldFS == fs && (fs != SizeInlineComposite || oldElemSize == elemSize) {
		return ListBuilder{seg: oldSeg, off: oldAddr, length: oldCount, fs: oldFS, elemSize: oldElemSize}, nil
	}
	if fs != SizeInlineComposite {
		// Caller wants a non-composite shape other than what's there;
		// the existing list is returned unchanged, with no conversion.
		return ListBuilder{seg: oldSeg, off: oldAddr, length: oldCount, fs: oldFS, elemSize: oldElemSize}, nil
	}

	// Primitive-to-struct upgrade: reallocate as INLINE_COMPOSITE with
	// room for at least elemSize per element, copying each old primitive
	// value into field 0 of its new struct element.
	newElemSize := elemSize
	if oldFS == SizePointer {
		newElemSize = maxSize(ObjectSize{PointerCount: 1}, elemSize)
	} else if oldFS == SizeInlineComposite {
		newElemSize = maxSize(oldElemSize, elemSize)
	} else {
		newElemSize = maxSize(ObjectSize{DataSize: Size((oldFS.dataBitsAsStruct() + 7) / 8).padToWord()}, elemSize)
	}
	newLB, err := allocList(p.seg, SizeInlineComposite, oldCount, newElemSize)
	if err != nil {
		return ListBuilder{}, err
	}
	oldView := ListBuilder{seg: oldSeg, off: oldAddr, length: oldCount, fs: oldFS, elemSize: oldElemSize}
	for idx := int32(0); idx < oldCount; idx++ {
		if err := copyStructContent(newLB.Struct(idx), oldView.Struct(idx)); err != nil {
			return ListBuilder{}, err
		}
	}
	if err := writePointerGeneric(p.seg, addr, newLB.seg, newLB.off-Address(wordSize), newListPointer(0, SizeInlineComposite, newLB.wireCount())); err != nil {
		return ListBuilder{}, err
	}
	return newLB, nil
}

// NewTextField allocates a Text blob holding s and sets it as the i'th
// pointer field. Text is a BYTE list with one extra trailing NUL byte,
// stored but not counted in the reported length (§6.1).
func (p StructBuilder) NewTextField(i uint16, s string) error {
	lb, err := p.NewListField(i, SizeByte, int32(len(s))+1, ObjectSize{})
	if err != nil {
		return err
	}
	copy(lb.seg.slice(lb.off, Size(len(s))), s)
	return nil
}

// NewDataField allocates a Data blob holding b and sets it as the i'th
// pointer field.
func (p StructBuilder) NewDataField(i uint16, b []byte) error {
	lb, err := p.NewListField(i, SizeByte, int32(len(b)), ObjectSize{})
	if err != nil {
		return err
	}
	copy(lb.seg.slice(lb.off, Size(len(b))), b)
	return nil
}

// SetPointer copies src's pointer (not its content, which stays put) into
// the i'th pointer field.
func (p StructBuilder) SetPointer(i uint16, src Ptr) error {
	addr := p.pointerAddress(i)
	switch src.kind {
	case KindNull:
		p.seg.writeRawPointer(addr, 0)
		return nil
	case KindStruct:
		return writePointerGeneric(p.seg, addr, src.s.seg, src.s.off, newStructPointer(0, src.s.size))
	case KindList:
		ptrAddr := src.l.off
		if src.l.fs == SizeInlineComposite {
			ptrAddr -= Address(wordSize)
		}
		return writePointerGeneric(p.seg, addr, src.l.seg, ptrAddr, newListPointer(0, src.l.fs, src.l.wireCount()))
	default:
		return errOtherPointer
	}
}
