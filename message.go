package capnp

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/brineproto/capnp/internal/exc"
	"github.com/brineproto/capnp/internal/str"
)

// Security limits, matching the reference C++ implementation's defaults.
const (
	defaultTraverseLimit = 64 << 20 // 64 MiB
	defaultDepthLimit    = 64
)

// A Message is a tree of Cap'n Proto objects split across one or more
// segments of a single Arena (§3.2). The zero Message is not usable;
// construct one with NewMessage.
//
// A Message backed by a read-only Arena is safe to traverse concurrently
// from multiple goroutines, provided the read limiter's atomic counter is
// allowed to do its job (§5). A Message backed by a growable Arena is
// single-writer: the engine does not lock or detect concurrent mutation.
type Message struct {
	// rlimit must be first so that it is 64-bit aligned on 32-bit
	// platforms; see sync/atomic's bug docs.
	rlimit     atomic.Uint64
	rlimitInit sync.Once

	Arena Arena

	// TraverseLimit caps the total bytes traversed while reading
	// (§4.1, §7). Zero means defaultTraverseLimit.
	TraverseLimit uint64

	// DepthLimit caps how deeply nested a message may be read (§3.4,
	// §4.3). Zero means defaultDepthLimit.
	DepthLimit uint
}

// NewMessage creates a message with a new, empty root and returns the
// first segment. It is an error to call NewMessage with an arena that
// already has data in it.
func NewMessage(arena Arena) (*Message, *Segment, error) {
	var msg Message
	first, err := msg.Reset(arena)
	return &msg, first, err
}

// NewSingleSegmentMessage is equivalent to NewMessage(SingleSegment(b)),
// except that it panics instead of returning an error. This can only
// happen if b is non-empty, so the caller is responsible for passing a
// zero-length slice (or nil).
func NewSingleSegmentMessage(b []byte) (msg *Message, first *Segment) {
	msg, first, err := NewMessage(SingleSegment(b))
	if err != nil {
		panic(err)
	}
	return msg, first
}

// Reset reconfigures the message to use a different arena, invalidating
// any existing pointers derived from it. Reset requires the new arena to
// be empty: an arena with more than one segment, or with a non-empty
// first segment, is rejected, since Reset must allocate room for the
// root pointer.
func (m *Message) Reset(arena Arena) (first *Segment, err error) {
	if m.Arena != nil {
		m.Arena.Release()
	}
	*m = Message{
		Arena:         arena,
		TraverseLimit: m.TraverseLimit,
		DepthLimit:    m.DepthLimit,
	}

	if arena.NumSegments() > 1 {
		return nil, exc.WrapError("reset", errors.New("capnp: reset: arena already has multiple segments allocated"))
	}

	first = arena.Segment(0)
	if first != nil {
		if len(first.data) != 0 {
			return nil, exc.WrapError("reset", errors.New("capnp: reset: arena not empty"))
		}
		first.msg = m
	}

	if first == nil || len(first.data) < int(wordSize) {
		first, _, err = m.alloc(wordSize, nil)
		if err != nil {
			return nil, err
		}
	}
	return first, nil
}

func (m *Message) initReadLimit() {
	if m.TraverseLimit == 0 {
		m.rlimit.Store(defaultTraverseLimit)
		return
	}
	m.rlimit.Store(m.TraverseLimit)
}

// canRead consumes sz bytes from the message-wide read limiter,
// reporting whether the budget allows it (§4.1, §7.1 invariant 6). The
// check-then-subtract loop uses CompareAndSwap so concurrent readers
// sharing one Message don't need an external lock.
func (m *Message) canRead(sz Size) bool {
	m.rlimitInit.Do(m.initReadLimit)
	for {
		curr := m.rlimit.Load()
		if uint64(sz) > curr {
			return false
		}
		next := curr - uint64(sz)
		if m.rlimit.CompareAndSwap(curr, next) {
			return true
		}
	}
}

// ResetReadLimit sets the number of bytes still allowed to be traversed
// while reading this message.
func (m *Message) ResetReadLimit(limit uint64) {
	m.rlimitInit.Do(func() {})
	m.rlimit.Store(limit)
}

func (m *Message) depthLimit() uint {
	if m.DepthLimit != 0 {
		return m.DepthLimit
	}
	return defaultDepthLimit
}

// NumSegments returns the number of segments in the message's arena.
func (m *Message) NumSegments() int64 {
	return m.Arena.NumSegments()
}

// Segment returns the segment with the given id, enforcing that it
// belongs to this message.
func (m *Message) Segment(id SegmentID) (*Segment, error) {
	seg := m.Arena.Segment(id)
	if seg == nil {
		return nil, exc.WrapError("segment", errors.New("capnp: segment "+str.Utod(id)+": out of bounds"))
	}
	if seg.msg == nil {
		seg.msg = m
	}
	if seg.msg != m {
		return nil, exc.WrapError("segment", errors.New("capnp: segment "+str.Utod(id)+": associated with a different message"))
	}
	return seg, nil
}

// alloc allocates sz zero-filled, word-aligned bytes, preferring pref
// when it has room (§4.1 arena allocate operation).
func (m *Message) alloc(sz Size, pref *Segment) (*Segment, Address, error) {
	if sz > maxAllocSize {
		return nil, 0, exc.WrapError("alloc", errors.New("capnp: alloc: size too large"))
	}
	sz = sz.padToWord()
	seg, addr, err := m.Arena.Allocate(sz, m, pref)
	if err != nil {
		return nil, 0, exc.WrapError("alloc", err)
	}
	if seg == nil {
		return nil, 0, exc.WrapError("alloc", errors.New("capnp: alloc: arena returned a nil segment"))
	}
	if seg.msg != nil && seg.msg != m {
		return nil, 0, exc.WrapError("alloc", errors.New("capnp: alloc: arena returned a segment owned by another message"))
	}
	seg.msg = m
	return seg, addr, nil
}

// alloc allocates sz zero-filled bytes, preferring segment s.
func alloc(s *Segment, sz Size) (*Segment, Address, error) {
	return s.msg.alloc(sz, s)
}
