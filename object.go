package capnp

// PtrKind discriminates the tagged union Ptr represents (§4.7).
type PtrKind uint8

const (
	KindNull PtrKind = iota
	KindStruct
	KindList
)

// Ptr is a uniform, read-only view over a pointer field whose kind isn't
// statically known — the substrate for dynamic introspection (§4.7).
// Generated, schema-aware code almost never needs this; it goes straight
// to StructField/ListField with the element size its schema already
// pins down. Ptr exists for callers that must branch on what's actually
// on the wire.
type Ptr struct {
	kind PtrKind
	s    StructReader
	l    ListReader
}

// IsValid reports whether p is non-null.
func (p Ptr) IsValid() bool {
	return p.kind != KindNull
}

// Kind returns which alternative p holds.
func (p Ptr) Kind() PtrKind {
	return p.kind
}

// StructReader returns p's struct view, or the empty struct if p does
// not hold a struct (§4.7 asStruct: "mismatched kinds return empty on
// the reader path").
func (p Ptr) StructReader() StructReader {
	if p.kind != KindStruct {
		return StructReader{}
	}
	return p.s
}

// ListReader returns p's list view, or the empty list if p does not hold
// a list, or holds a list incompatible with expectedSize (§4.7 asList).
func (p Ptr) ListReader(expectedSize FieldSize) ListReader {
	if p.kind != KindList {
		return ListReader{}
	}
	if (p.l.fs == SizeBit) != (expectedSize == SizeBit) {
		return ListReader{}
	}
	return p.l
}

// readPtrAt follows the pointer word at off within seg and returns it as
// a generic object view, applying full bounds, depth, and read-limit
// checks (§6.3 readRoot, checked path).
func readPtrAt(seg *Segment, off Address, depthLimit uint) Ptr {
	val := seg.readRawPointer(off)
	if val.isZero() {
		return Ptr{}
	}
	fseg, faddr, fval, ok := followFarReader(seg, off, val)
	if !ok || fval.isZero() {
		return Ptr{}
	}
	if depthLimit == 0 {
		return Ptr{}
	}
	switch fval.kind() {
	case structPointer:
		s, addr, sz, ok2 := resolveStructPointer(fseg, faddr, fval)
		if !ok2 || !s.msg.canRead(sz.readSize()) {
			return Ptr{}
		}
		return Ptr{kind: KindStruct, s: StructReader{seg: s, off: addr, size: sz, depthLimit: depthLimit - 1}}
	case listPointer:
		s, addr, fs, count, elemSize, ok2 := resolveListPointer(fseg, faddr, fval)
		if !ok2 || !s.msg.canRead(listReadSize(fs, count, elemSize)) {
			return Ptr{}
		}
		return Ptr{kind: KindList, l: ListReader{seg: s, off: addr, length: count, fs: fs, elemSize: elemSize, depthLimit: depthLimit - 1}}
	default:
		return Ptr{}
	}
}

// ReadRootPtr decodes the word at address 0 of seg as the message's root
// object, applying bounds, depth, and read-limit checks (§6.2, §6.3
// readRoot).
func ReadRootPtr(seg *Segment, nestingLimit uint) Ptr {
	return readPtrAt(seg, 0, nestingLimit)
}

// ReadRootStruct is ReadRootPtr followed by StructReader, for the common
// case where the root is known to be a struct.
func ReadRootStruct(seg *Segment, nestingLimit uint) StructReader {
	return initRootReader(seg, nestingLimit)
}

// ReadRootTrusted decodes the word at address 0 of seg as the message's
// root object without any bounds, depth, or read-limit checks (§6.3
// readRootTrusted). It must only be used on buffers the caller already
// vouches for, such as a compiled-in schema default — never on untrusted
// input.
func ReadRootTrusted(seg *Segment) Ptr {
	val := seg.readRawPointer(0)
	if val.isZero() {
		return Ptr{}
	}
	addr, ok := Address(0).resolveOffset(val.offset())
	if !ok {
		return Ptr{}
	}
	switch val.kind() {
	case structPointer:
		return Ptr{kind: KindStruct, s: StructReader{seg: seg, off: addr, size: val.structSize(), depthLimit: maxDepth}}
	case listPointer:
		fs := val.listFieldSize()
		count := val.listCount()
		var elemSize ObjectSize
		if fs == SizeInlineComposite {
			tag := seg.readRawPointer(addr)
			elemSize = tag.structSize()
			count = tag.offset()
			addr, _ = addr.addSize(wordSize)
		}
		return Ptr{kind: KindList, l: ListReader{seg: seg, off: addr, length: count, fs: fs, elemSize: elemSize, depthLimit: maxDepth}}
	default:
		return Ptr{}
	}
}

// ReadRootTrustedStruct is ReadRootTrusted followed by StructReader, the
// common entry point for decoding a compiled-in default message (§6.3).
func ReadRootTrustedStruct(seg *Segment) StructReader {
	return initRootReaderTrusted(seg)
}
