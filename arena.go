package capnp

import "errors"

// An Arena is the set of segments belonging to one message (§3.2). A
// Message's Arena is supplied by the caller; this package provides two
// concrete implementations (SingleSegment, MultiSegment) covering the
// common cases, but the interface is the extension point the spec calls
// out as an external collaborator for heap-allocation policy.
type Arena interface {
	// NumSegments returns the number of segments in the arena.
	NumSegments() int64

	// Segment returns the segment with the given id, or nil if it
	// does not exist.
	Segment(id SegmentID) *Segment

	// Allocate reserves sz bytes at the tail of a segment, preferring
	// pref if it has room, and returns that segment and the address of
	// the reserved bytes. msg is the message requesting the
	// allocation; the implementations in this package do not record
	// it (Message.alloc sets the segment's owner). Allocate never
	// shrinks or rewrites existing data.
	Allocate(sz Size, msg *Message, pref *Segment) (*Segment, Address, error)

	// Release relinquishes the arena's segments. The arena must not
	// be used afterward.
	Release()
}

var errArenaFull = errors.New("capnp: arena out of space")

// growSize picks the capacity for a new segment given the total bytes
// already allocated in the message, per the "grow(currentTotal)" rule in
// spec.md §4.1: segments roughly double the message's total size so that
// the number of segments stays logarithmic in message size, bounded
// below by minAlloc so tiny messages don't thrash.
func growSize(currentTotal, minAlloc Size) Size {
	want := currentTotal
	if want < minAlloc {
		want = minAlloc
	}
	return want
}

const minSegmentAlloc Size = 1024

// SingleSegment returns an Arena that stores a message in a single
// growable segment, backed by the provided slice (which may be nil, or
// may contain already-read data when used for reading).
func SingleSegment(b []byte) Arena {
	return &roSegmentArena{data: b}
}

// roSegmentArena is the single-segment arena. It grows segment 0's slice
// in place (within its capacity) or reallocates a bigger backing array,
// copying old content — analogous to append's amortized growth.
type roSegmentArena struct {
	seg  Segment
	data []byte
	init bool
}

func (a *roSegmentArena) NumSegments() int64 {
	if !a.init {
		return 0
	}
	return 1
}

func (a *roSegmentArena) Segment(id SegmentID) *Segment {
	if id != 0 {
		return nil
	}
	if !a.init {
		a.seg = Segment{id: 0, data: a.data}
		a.init = true
	}
	return &a.seg
}

func (a *roSegmentArena) Allocate(sz Size, msg *Message, pref *Segment) (*Segment, Address, error) {
	seg := a.Segment(0)
	if hasCapacity(seg.data, sz) {
		addr := Address(len(seg.data))
		seg.data = seg.data[:len(seg.data)+int(sz)]
		return seg, addr, nil
	}
	total := Size(len(seg.data))
	newCap := total + growSize(total, minSegmentAlloc)
	if newCap < total+sz {
		newCap = total + sz
	}
	newData := make([]byte, len(seg.data), int(newCap))
	copy(newData, seg.data)
	addr := Address(len(newData))
	newData = newData[:len(newData)+int(sz)]
	seg.data = newData
	a.data = newData
	return seg, addr, nil
}

func (a *roSegmentArena) Release() {
	*a = roSegmentArena{}
}

func hasCapacity(data []byte, sz Size) bool {
	return Size(cap(data)-len(data)) >= sz
}

// MultiSegment returns an Arena that allocates new segments instead of
// growing existing ones once they run out of capacity, starting from the
// provided segment buffers (which may be nil). The provided slice itself
// is not appended to.
func MultiSegment(bufs [][]byte) Arena {
	return &multiSegmentArena{bufs: bufs}
}

// multiSegmentArena stores segments as stable *Segment pointers, not
// Segment values, because every StructBuilder/ListBuilder caches the
// *Segment it was handed: an append that reallocates the backing array
// would invalidate every pointer handed out so far, corrupting any
// cross-segment build already in progress.
type multiSegmentArena struct {
	segs []*Segment
	bufs [][]byte
}

func (a *multiSegmentArena) ensure() {
	if a.segs != nil {
		return
	}
	a.segs = make([]*Segment, len(a.bufs))
	for i, b := range a.bufs {
		a.segs[i] = &Segment{id: SegmentID(i), data: b}
	}
}

func (a *multiSegmentArena) NumSegments() int64 {
	a.ensure()
	return int64(len(a.segs))
}

func (a *multiSegmentArena) Segment(id SegmentID) *Segment {
	a.ensure()
	if int(id) >= len(a.segs) {
		return nil
	}
	return a.segs[id]
}

func (a *multiSegmentArena) Allocate(sz Size, msg *Message, pref *Segment) (*Segment, Address, error) {
	a.ensure()
	if pref != nil && hasCapacity(pref.data, sz) {
		addr := Address(len(pref.data))
		pref.data = pref.data[:len(pref.data)+int(sz)]
		return pref, addr, nil
	}
	for i := range a.segs {
		if hasCapacity(a.segs[i].data, sz) {
			addr := Address(len(a.segs[i].data))
			a.segs[i].data = a.segs[i].data[:len(a.segs[i].data)+int(sz)]
			return a.segs[i], addr, nil
		}
	}
	var total Size
	for i := range a.segs {
		total += Size(len(a.segs[i].data))
	}
	newCap := growSize(total, minSegmentAlloc)
	if newCap < sz {
		newCap = sz
	}
	id := SegmentID(len(a.segs))
	seg := &Segment{id: id, data: make([]byte, sz, int(newCap))}
	a.segs = append(a.segs, seg)
	return seg, 0, nil
}

func (a *multiSegmentArena) Release() {
	*a = multiSegmentArena{}
}
