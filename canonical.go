package capnp

import (
	"github.com/brineproto/capnp/internal/exc"
	"github.com/brineproto/capnp/internal/str"
)

// Canonicalize encodes a struct into its canonical form: a single-
// segment message with every trailing all-zero data word and every
// trailing null pointer trimmed from each struct and composite list
// element. The result is identical for equivalent structs even as a
// schema gains fields, which makes it suitable for hashing or signing
// (§9).
func Canonicalize(s StructReader) ([]byte, error) {
	_, seg := NewSingleSegmentMessage(nil)
	if !s.IsValid() {
		if _, err := NewRootStruct(seg, ObjectSize{}); err != nil {
			return nil, exc.WrapError("canonicalize", err)
		}
		return seg.Data(), nil
	}
	root, err := NewRootStruct(seg, canonicalStructSize(s))
	if err != nil {
		return nil, exc.WrapError("canonicalize", err)
	}
	if err := fillCanonicalStruct(root, s); err != nil {
		return nil, exc.WrapError("canonicalize", err)
	}
	return seg.Data(), nil
}

// canonicalPtr copies whatever p refers to into dst in canonical form.
func canonicalPtr(dst *Segment, p Ptr) (Ptr, error) {
	if !p.IsValid() {
		return Ptr{}, nil
	}
	switch p.kind {
	case KindStruct:
		ss, err := allocStruct(dst, canonicalStructSize(p.s))
		if err != nil {
			return Ptr{}, exc.WrapError("struct", err)
		}
		if err := fillCanonicalStruct(ss, p.s); err != nil {
			return Ptr{}, err
		}
		return Ptr{kind: KindStruct, s: ss.ToReader()}, nil
	case KindList:
		ll, err := canonicalList(dst, p.l)
		if err != nil {
			return Ptr{}, err
		}
		return Ptr{kind: KindList, l: ll}, nil
	default:
		return Ptr{}, errOtherPointer
	}
}

// fillCanonicalStruct copies s's data section and every pointer field,
// recursively canonicalized, into dst.
func fillCanonicalStruct(dst StructBuilder, s StructReader) error {
	copy(dst.seg.slice(dst.off, dst.size.DataSize), s.seg.slice(s.off, s.size.DataSize))
	for i := uint16(0); i < dst.size.PointerCount; i++ {
		p := s.Ptr(i)
		cp, err := canonicalPtr(dst.seg, p)
		if err != nil {
			return exc.WrapError("struct pointer "+str.Utod(i), err)
		}
		if err := dst.SetPointer(i, cp); err != nil {
			return exc.WrapError("struct pointer "+str.Utod(i), err)
		}
	}
	return nil
}

// canonicalStructSize returns the smallest ObjectSize that still holds
// every non-zero data word and non-null pointer of s: the shape s would
// have if its schema had never gained the fields that happen to be at
// their zero/default value right now (§9).
func canonicalStructSize(s StructReader) ObjectSize {
	if !s.IsValid() {
		return ObjectSize{}
	}
	var sz ObjectSize
	for off := int32(s.size.DataSize) - int32(wordSize); off >= 0; off -= int32(wordSize) {
		if s.Uint64(DataOffset(off)) != 0 {
			sz.DataSize = Size(off) + wordSize
			break
		}
	}
	for i := int32(s.size.PointerCount) - 1; i >= 0; i-- {
		if s.HasPointer(uint16(i)) {
			sz.PointerCount = uint16(i + 1)
			break
		}
	}
	return sz
}

// canonicalList copies l into dst in canonical form, recursively
// canonicalizing any struct or pointer elements.
func canonicalList(dst *Segment, l ListReader) (ListReader, error) {
	if !l.IsValid() {
		return ListReader{}, nil
	}
	if l.fs != SizePointer && l.fs != SizeInlineComposite {
		// Data-only primitive list (including BIT lists): byte-identical
		// copy, nothing to canonicalize inside an element.
		sz := listReadSize(l.fs, l.length, ObjectSize{})
		_, newAddr, err := alloc(dst, sz)
		if err != nil {
			return ListReader{}, exc.WrapError("list", err)
		}
		end, _ := l.off.addSize(sz)
		copy(dst.data[newAddr:], l.seg.data[l.off:end])
		return ListReader{seg: dst, off: newAddr, length: l.length, fs: l.fs, depthLimit: maxDepth}, nil
	}

	if l.fs == SizePointer {
		cl, err := allocList(dst, SizePointer, l.length, ObjectSize{})
		if err != nil {
			return ListReader{}, exc.WrapError("list", err)
		}
		for i := int32(0); i < l.length; i++ {
			cp, err := canonicalPtr(dst, l.Ptr(i))
			if err != nil {
				return ListReader{}, exc.WrapError("list element "+str.Itod(int(i)), err)
			}
			if err := cl.SetPointer(i, cp); err != nil {
				return ListReader{}, exc.WrapError("list element "+str.Itod(int(i)), err)
			}
		}
		return cl.ToReader(), nil
	}

	// Composite (struct) list: every element shrinks to the union of
	// what's actually non-zero across all of them.
	var elemSize ObjectSize
	for i := int32(0); i < l.length; i++ {
		elemSize = maxSize(elemSize, canonicalStructSize(l.Struct(i)))
	}
	cl, err := allocList(dst, SizeInlineComposite, l.length, elemSize)
	if err != nil {
		return ListReader{}, exc.WrapError("list", err)
	}
	for i := int32(0); i < l.length; i++ {
		if err := fillCanonicalStruct(cl.Struct(i), l.Struct(i)); err != nil {
			return ListReader{}, exc.WrapError("list element "+str.Itod(int(i)), err)
		}
	}
	return cl.ToReader(), nil
}
