package capnp

import "errors"

// This file holds the "wire helpers" layer (§2, §4.2): far-pointer
// resolution shared by the reader and builder dereference paths, plus
// the pointer-writing and pointer re-homing helpers that StructBuilder's
// upgrade paths use. It never decides default substitution (that's the
// Reader accessors) and allocates nothing except far-pointer landing
// pads (the objects themselves are allocated by the Builder accessors);
// it only resolves, points at, or re-homes pointers to what's already on
// the wire.

var (
	errPointerAddress = errors.New("capnp: invalid pointer address")
	errBadLandingPad  = errors.New("capnp: invalid far pointer landing pad")
	errBadTag         = errors.New("capnp: invalid composite list tag")
	errOtherPointer   = errors.New("capnp: unsupported pointer kind")
	errOverflow       = errors.New("capnp: address or size overflow")
	errElementSize    = errors.New("capnp: mismatched list element size")
	errBitListUpgrade = errors.New("capnp: cannot reinterpret a bit list as a struct list")
	errAllocTooLarge  = errors.New("capnp: allocation exceeds maximum object size")
)

const maxAllocSize Size = 1<<32 - 8

// landingPadNearPointer reconstructs the synthetic "near" pointer a
// double-far indirection resolves to: tag's kind and size bits, with its
// offset field replaced so that resolving it against address 0 lands
// exactly on far's target word (§4.2, §9 double-far payload bounds).
func landingPadNearPointer(far, tag rawPointer) rawPointer {
	return tag.withOffset(far.farOffset() - 1)
}

// followFarReader resolves val (read from segment seg at off) through
// zero, one, or two far-pointer indirections, charging the message's
// read limiter for every landing pad word touched along the way (§9 open
// question: the limiter must be consulted for landing pad words, not
// just the final target). It returns ok=false — never an error — on any
// malformed pointer or exhausted budget, so callers degrade silently per
// §7.1.
func followFarReader(seg *Segment, off Address, val rawPointer) (rseg *Segment, raddr Address, rval rawPointer, ok bool) {
	switch val.kind() {
	case farPointer:
		if val.isDoubleFar() {
			pad, err := seg.lookupSegment(val.farSegmentID())
			if err != nil {
				return nil, 0, 0, false
			}
			padAddr := Address(val.farOffset()) * Address(wordSize)
			if !pad.regionInBounds(padAddr, wordSize*2) {
				return nil, 0, 0, false
			}
			if !pad.msg.canRead(wordSize * 2) {
				return nil, 0, 0, false
			}
			far := pad.readRawPointer(padAddr)
			tagAddr, ok2 := padAddr.addSize(wordSize)
			if !ok2 {
				return nil, 0, 0, false
			}
			tag := pad.readRawPointer(tagAddr)
			if far.kind() != farPointer || far.isDoubleFar() || tag.offset() != 0 {
				return nil, 0, 0, false
			}
			target, err := seg.lookupSegment(far.farSegmentID())
			if err != nil {
				return nil, 0, 0, false
			}
			return target, 0, landingPadNearPointer(far, tag), true
		}
		pad, err := seg.lookupSegment(val.farSegmentID())
		if err != nil {
			return nil, 0, 0, false
		}
		padAddr := Address(val.farOffset()) * Address(wordSize)
		if !pad.regionInBounds(padAddr, wordSize) {
			return nil, 0, 0, false
		}
		if !pad.msg.canRead(wordSize) {
			return nil, 0, 0, false
		}
		return pad, padAddr, pad.readRawPointer(padAddr), true
	default:
		return seg, off, val, true
	}
}

// followFarBuilder is the builder-side analog of followFarReader: it
// performs the same indirection but never charges a limiter (builders
// don't have one) and reports malformed pointers as errors, since a
// builder encountering corrupt data it wrote itself is a programmer
// error, not untrusted input (§7.2).
func followFarBuilder(seg *Segment, off Address, val rawPointer) (rseg *Segment, raddr Address, rval rawPointer, err error) {
	switch val.kind() {
	case farPointer:
		if val.isDoubleFar() {
			pad, err := seg.lookupSegment(val.farSegmentID())
			if err != nil {
				return nil, 0, 0, err
			}
			padAddr := Address(val.farOffset()) * Address(wordSize)
			if !pad.regionInBounds(padAddr, wordSize*2) {
				return nil, 0, 0, errPointerAddress
			}
			far := pad.readRawPointer(padAddr)
			tagAddr, ok := padAddr.addSize(wordSize)
			if !ok {
				return nil, 0, 0, errOverflow
			}
			tag := pad.readRawPointer(tagAddr)
			if far.kind() != farPointer || far.isDoubleFar() || tag.offset() != 0 {
				return nil, 0, 0, errBadLandingPad
			}
			target, err := seg.lookupSegment(far.farSegmentID())
			if err != nil {
				return nil, 0, 0, err
			}
			return target, 0, landingPadNearPointer(far, tag), nil
		}
		pad, err := seg.lookupSegment(val.farSegmentID())
		if err != nil {
			return nil, 0, 0, err
		}
		padAddr := Address(val.farOffset()) * Address(wordSize)
		if !pad.regionInBounds(padAddr, wordSize) {
			return nil, 0, 0, errPointerAddress
		}
		return pad, padAddr, pad.readRawPointer(padAddr), nil
	default:
		return seg, off, val, nil
	}
}

// resolveStructPointer validates and returns the struct view that val
// (a struct pointer word located at off) describes.
func resolveStructPointer(seg *Segment, off Address, val rawPointer) (s *Segment, addr Address, sz ObjectSize, ok bool) {
	addr, ok = off.resolveOffset(val.offset())
	if !ok {
		return nil, 0, ObjectSize{}, false
	}
	sz = val.structSize()
	if !seg.regionInBounds(addr, sz.totalSize()) {
		return nil, 0, ObjectSize{}, false
	}
	return seg, addr, sz, true
}

// resolveListPointer validates and returns the list view that val (a
// list pointer word located at off) describes, unpacking the composite
// tag word when the element size is INLINE_COMPOSITE.
func resolveListPointer(seg *Segment, off Address, val rawPointer) (s *Segment, addr Address, fs FieldSize, count int32, elemSize ObjectSize, ok bool) {
	addr, ok = off.resolveOffset(val.offset())
	if !ok {
		return nil, 0, 0, 0, ObjectSize{}, false
	}
	fs = val.listFieldSize()
	count = val.listCount()
	if fs != SizeInlineComposite {
		bits := fs.bits()
		totalBits, mulOK := mulOverflowCheck(int64(bits), int64(count))
		if !mulOK {
			return nil, 0, 0, 0, ObjectSize{}, false
		}
		totalBytes := Size((totalBits + 7) / 8)
		if !seg.regionInBounds(addr, totalBytes) {
			return nil, 0, 0, 0, ObjectSize{}, false
		}
		return seg, addr, fs, count, ObjectSize{}, true
	}

	// INLINE_COMPOSITE: count is actually a word count of the body; the
	// tag word immediately preceding the body carries the true element
	// count and per-element shape.
	if !seg.regionInBounds(addr, wordSize) {
		return nil, 0, 0, 0, ObjectSize{}, false
	}
	tag := seg.readRawPointer(addr)
	bodyAddr, ok2 := addr.addSize(wordSize)
	if !ok2 {
		return nil, 0, 0, 0, ObjectSize{}, false
	}
	if tag.kind() != structPointer {
		return nil, 0, 0, 0, ObjectSize{}, false
	}
	elemSize = tag.structSize()
	n := tag.offset()
	if n < 0 {
		return nil, 0, 0, 0, ObjectSize{}, false
	}
	elemTotal, ok3 := mulOverflowCheckSize(elemSize.totalSize(), Size(n))
	if !ok3 || !seg.regionInBounds(bodyAddr, elemTotal) {
		return nil, 0, 0, 0, ObjectSize{}, false
	}
	return seg, bodyAddr, SizeInlineComposite, n, elemSize, true
}

func mulOverflowCheck(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	v := a * b
	return v, v/a == b
}

func mulOverflowCheckSize(sz Size, n Size) (Size, bool) {
	return sz.times(n)
}

// readSize returns the number of bytes a struct view occupies, for read
// limiter accounting.
func (sz ObjectSize) readSize() Size {
	return sz.totalSize()
}

// listReadSize returns the number of bytes a list view occupies.
func listReadSize(fs FieldSize, count int32, elemSize ObjectSize) Size {
	if fs == SizeInlineComposite {
		total, _ := elemSize.totalSize().times(Size(count))
		return total + wordSize // tag word
	}
	bits := fs.bits()
	totalBits := int64(bits) * int64(count)
	return Size((totalBits + 7) / 8)
}

// writePointerGeneric writes a pointer at (atSeg, at) that resolves to
// (targetSeg, targetAddr), carrying near's kind and size bits. When at
// and the target share a segment this is a plain near pointer; otherwise
// it allocates a far-pointer landing pad, falling back to a double-far
// pad when no room exists alongside the target (§4.2).
func writePointerGeneric(atSeg *Segment, at Address, targetSeg *Segment, targetAddr Address, near rawPointer) error {
	if atSeg == targetSeg {
		off, ok := at.offsetTo(targetAddr)
		if !ok {
			return errOverflow
		}
		atSeg.writeRawPointer(at, near.withOffset(off))
		return nil
	}

	padSeg, padAddr, err := alloc(targetSeg, wordSize)
	if err == nil && padSeg == targetSeg {
		off, ok := padAddr.offsetTo(targetAddr)
		if ok {
			padSeg.writeRawPointer(padAddr, near.withOffset(off))
			atSeg.writeRawPointer(at, newFarPointer(false, padSeg.id, int32(padAddr/Address(wordSize))))
			return nil
		}
	}

	// Single far wasn't possible — the target's segment had no room for
	// a landing pad next to it. Fall back to a double-far: a two-word
	// pad, placed anywhere, whose first word points directly at the
	// target's segment and absolute word offset, and whose second word
	// carries the kind/size bits with an offset of zero (§4.2, §9).
	padSeg, padAddr, err = alloc(atSeg, wordSize*2)
	if err != nil {
		return err
	}
	tagAddr, ok := padAddr.addSize(wordSize)
	if !ok {
		return errOverflow
	}
	far := newFarPointer(false, targetSeg.id, int32(targetAddr/Address(wordSize)))
	padSeg.writeRawPointer(padAddr, far)
	padSeg.writeRawPointer(tagAddr, near.withOffset(0))
	atSeg.writeRawPointer(at, newFarPointer(true, padSeg.id, int32(padAddr/Address(wordSize))))
	return nil
}

// copyPointerSlot re-homes the pointer at (srcSeg, srcAddr) into the slot
// at (dstSeg, dstAddr), without touching or moving whatever it points to
// (§4.4 struct upgrade: old content stays where it is; only the struct's
// own data and pointer words move).
func copyPointerSlot(dstSeg *Segment, dstAddr Address, srcSeg *Segment, srcAddr Address) error {
	val := srcSeg.readRawPointer(srcAddr)
	if val.isZero() {
		dstSeg.writeRawPointer(dstAddr, 0)
		return nil
	}
	fseg, faddr, fval, err := followFarBuilder(srcSeg, srcAddr, val)
	if err != nil {
		return err
	}
	switch fval.kind() {
	case structPointer:
		_, addr, sz, ok := resolveStructPointer(fseg, faddr, fval)
		if !ok {
			return errPointerAddress
		}
		return writePointerGeneric(dstSeg, dstAddr, fseg, addr, newStructPointer(0, sz))
	case listPointer:
		s, addr, fs, count, elemSize, ok := resolveListPointer(fseg, faddr, fval)
		if !ok {
			return errPointerAddress
		}
		wireCount := count
		if fs == SizeInlineComposite {
			addr -= Address(wordSize) // point at the tag word, not the body
			wireCount = int32(int64(elemSize.totalSize()/wordSize) * int64(count))
		}
		return writePointerGeneric(dstSeg, dstAddr, s, addr, newListPointer(0, fs, wireCount))
	default:
		return errOtherPointer
	}
}
