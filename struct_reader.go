package capnp

import "math"

// A StructReader is a read-only, offset-based view over a struct's data
// section and pointer section (§3.4). The zero StructReader is the
// "empty struct": every accessor on it degrades to the type's zero
// value, which is exactly the behavior required when a pointer slot is
// null or a default has no message to fall back on (§4.3, §7.1).
type StructReader struct {
	seg        *Segment
	off        Address
	size       ObjectSize
	depthLimit uint

	// bit0Offset and oneBitField together implement the bit-0 offset
	// hack (§3.4, §9): when a struct is the element of a list that was
	// packed as a physical BIT list because its only field is a single
	// bit, oneBitField is true and bit0Offset names which bit of the
	// byte at off is this element's field 0. Ordinary structs (reached
	// via a struct pointer) never set either.
	bit0Offset  uint8
	oneBitField bool
}

// IsValid reports whether p refers to an actual struct, as opposed to
// being the zero StructReader returned for null or degraded reads.
func (p StructReader) IsValid() bool {
	return p.seg != nil
}

// initRootReader decodes the word at address 0 of seg as a struct
// pointer and returns the struct it describes, applying the same bounds
// and limit checks as any other struct pointer dereference. Malformed
// input yields the empty struct (§6.3 readRoot, checked path).
func initRootReader(seg *Segment, nestingLimit uint) StructReader {
	r, ok := derefAsStruct(seg, 0, nestingLimit)
	if !ok {
		return StructReader{}
	}
	return r
}

// initRootReaderTrusted decodes the word at address 0 of seg as a struct
// pointer without any bounds or limit checks (§6.3 readRootTrusted). It
// must only be used on buffers the caller already vouches for, such as a
// compiled-in schema default.
func initRootReaderTrusted(seg *Segment) StructReader {
	val := seg.readRawPointer(0)
	if val.isZero() || val.kind() != structPointer {
		return StructReader{}
	}
	addr, ok := Address(0).resolveOffset(val.offset())
	if !ok {
		return StructReader{}
	}
	return StructReader{seg: seg, off: addr, size: val.structSize(), depthLimit: maxDepth}
}

// derefAsStruct follows the pointer word at off within seg, requiring it
// to be a struct pointer (or null/degraded), and returns the struct it
// names.
func derefAsStruct(seg *Segment, off Address, depthLimit uint) (StructReader, bool) {
	val := seg.readRawPointer(off)
	if val.isZero() {
		return StructReader{}, false
	}
	fseg, faddr, fval, ok := followFarReader(seg, off, val)
	if !ok || fval.isZero() {
		return StructReader{}, false
	}
	if depthLimit == 0 {
		return StructReader{}, false
	}
	if fval.kind() != structPointer {
		return StructReader{}, false
	}
	s, addr, sz, ok2 := resolveStructPointer(fseg, faddr, fval)
	if !ok2 {
		return StructReader{}, false
	}
	if !s.msg.canRead(sz.readSize()) {
		return StructReader{}, false
	}
	return StructReader{seg: s, off: addr, size: sz, depthLimit: depthLimit - 1}, true
}

// dataAddress returns the address of a sz-byte field at byte offset off
// within p's data section, reporting false (never a panic or error) if
// the field lies beyond the struct's declared data section — the forward
// -compatibility contract in §4.3.
func (p StructReader) dataAddress(off DataOffset, sz Size) (Address, bool) {
	if p.seg == nil || Size(off)+sz > p.size.DataSize {
		return 0, false
	}
	addr, ok := p.off.addOffset(off)
	return addr, ok
}

func (p StructReader) Uint8(off DataOffset) uint8 {
	addr, ok := p.dataAddress(off, 1)
	if !ok {
		return 0
	}
	return p.seg.readUint8(addr)
}

func (p StructReader) Uint8Masked(off DataOffset, mask uint8) uint8 {
	return maskUint8(p.Uint8(off), mask)
}

func (p StructReader) Uint16(off DataOffset) uint16 {
	addr, ok := p.dataAddress(off, 2)
	if !ok {
		return 0
	}
	return p.seg.readUint16(addr)
}

func (p StructReader) Uint16Masked(off DataOffset, mask uint16) uint16 {
	return maskUint16(p.Uint16(off), mask)
}

func (p StructReader) Uint32(off DataOffset) uint32 {
	addr, ok := p.dataAddress(off, 4)
	if !ok {
		return 0
	}
	return p.seg.readUint32(addr)
}

func (p StructReader) Uint32Masked(off DataOffset, mask uint32) uint32 {
	return maskUint32(p.Uint32(off), mask)
}

func (p StructReader) Uint64(off DataOffset) uint64 {
	addr, ok := p.dataAddress(off, 8)
	if !ok {
		return 0
	}
	return p.seg.readUint64(addr)
}

func (p StructReader) Uint64Masked(off DataOffset, mask uint64) uint64 {
	return maskUint64(p.Uint64(off), mask)
}

func (p StructReader) Int8(off DataOffset) int8   { return int8(p.Uint8(off)) }
func (p StructReader) Int16(off DataOffset) int16 { return int16(p.Uint16(off)) }
func (p StructReader) Int32(off DataOffset) int32 { return int32(p.Uint32(off)) }
func (p StructReader) Int64(off DataOffset) int64 { return int64(p.Uint64(off)) }

func (p StructReader) Float32(off DataOffset) float32 {
	return math.Float32frombits(p.Uint32(off))
}

func (p StructReader) Float32Masked(off DataOffset, mask uint32) float32 {
	return maskFloat32(p.Float32(off), mask)
}

func (p StructReader) Float64(off DataOffset) float64 {
	return math.Float64frombits(p.Uint64(off))
}

func (p StructReader) Float64Masked(off DataOffset, mask uint64) float64 {
	return maskFloat64(p.Float64(off), mask)
}

// Bit returns the bit that is n bits from the start of p's data section,
// accounting for bit0Offset when p is itself an element of a list-of-
// struct-of-one-bit (§3.4, §9).
func (p StructReader) Bit(n BitOffset) bool {
	if p.seg == nil {
		return false
	}
	if p.oneBitField {
		if n != 0 {
			return false
		}
		return p.seg.readUint8(p.off)&(1<<p.bit0Offset) != 0
	}
	if n >= BitOffset(p.size.DataSize)*8 {
		return false
	}
	addr, ok := p.off.addOffset(n.offset())
	if !ok {
		return false
	}
	return p.seg.readUint8(addr)&n.mask() != 0
}

func (p StructReader) BitMasked(n BitOffset, mask uint8) bool {
	v := p.Bit(n)
	return maskBool(v, mask)
}

// pointerAddress returns the address of the i'th pointer slot, reporting
// false if i is beyond the struct's declared pointer section.
func (p StructReader) pointerAddress(i uint16) (Address, bool) {
	if p.seg == nil || i >= p.size.PointerCount {
		return 0, false
	}
	base, ok := p.off.addSize(p.size.DataSize)
	if !ok {
		return 0, false
	}
	return base.element(int32(i), wordSize)
}

// StructField returns the i'th pointer field interpreted as a struct. If
// the slot is out of range, null, or malformed, it returns def — the
// decoded form of the schema's default message, or the empty struct if
// def is itself empty (§4.3 getStructField).
func (p StructReader) StructField(i uint16, def StructReader) StructReader {
	addr, ok := p.pointerAddress(i)
	if !ok {
		return def
	}
	s, ok := derefAsStruct(p.seg, addr, p.depthLimit)
	if !ok {
		return def
	}
	return s
}

// ListField returns the i'th pointer field interpreted as a list whose
// elements are expectedSize, applying the compatibility and forward-
// projection rules of §4.6. If the slot is out of range, null, or
// malformed, it returns def.
func (p StructReader) ListField(i uint16, expectedSize FieldSize, def ListReader) ListReader {
	addr, ok := p.pointerAddress(i)
	if !ok {
		return def
	}
	l, ok := derefAsList(p.seg, addr, p.depthLimit, expectedSize)
	if !ok {
		return def
	}
	return l
}

// HasPointer reports whether the i'th pointer field is non-null, without
// following it — useful for distinguishing "explicitly set to the
// default value" from "never set" when that distinction matters to a
// caller (e.g. canonicalization).
func (p StructReader) HasPointer(i uint16) bool {
	addr, ok := p.pointerAddress(i)
	if !ok {
		return false
	}
	return !p.seg.readRawPointer(addr).isZero()
}

// Ptr returns the i'th pointer field as a generic object view (§4.7).
func (p StructReader) Ptr(i uint16) Ptr {
	addr, ok := p.pointerAddress(i)
	if !ok {
		return Ptr{}
	}
	return readPtrAt(p.seg, addr, p.depthLimit)
}
