package segment

import (
	"sort"

	"github.com/mrexodia/libriscv/fault"
)

// Set holds a collection of execute segments keyed by their non-overlapping
// [Begin, End) ranges, kept sorted by Begin for binary-search lookup.
type Set struct {
	segments []*Segment
}

// NewSet returns an empty segment set.
func NewSet() *Set {
	return &Set{}
}

// Add inserts seg, rejecting it with fault.InvalidProgram if it overlaps an
// already-registered segment.
func (s *Set) Add(seg *Segment) error {
	i := sort.Search(len(s.segments), func(i int) bool { return s.segments[i].Begin >= seg.Begin })
	if i > 0 && s.segments[i-1].End > seg.Begin {
		return &fault.InvalidProgram{Reason: "execute segment overlaps an existing one"}
	}
	if i < len(s.segments) && seg.End > s.segments[i].Begin {
		return &fault.InvalidProgram{Reason: "execute segment overlaps an existing one"}
	}
	s.segments = append(s.segments, nil)
	copy(s.segments[i+1:], s.segments[i:])
	s.segments[i] = seg
	return nil
}

// Lookup returns the segment containing pc, if any.
func (s *Set) Lookup(pc uint64) (*Segment, bool) {
	i := sort.Search(len(s.segments), func(i int) bool { return s.segments[i].End > pc })
	if i < len(s.segments) && s.segments[i].Contains(pc) {
		return s.segments[i], true
	}
	return nil, false
}

// Remove drops every segment overlapping [begin, end), used when the host
// rewrites previously-executable pages.
func (s *Set) Remove(begin, end uint64) {
	kept := s.segments[:0]
	for _, seg := range s.segments {
		if seg.End <= begin || seg.Begin >= end {
			kept = append(kept, seg)
		}
	}
	s.segments = kept
}

// Clone returns a Set with its own independent segments slice, sharing the
// underlying *Segment values (which are immutable once built). Used by
// Machine.Fork so a child registering or dropping segments of its own never
// mutates the parent's set, and vice versa.
func (s *Set) Clone() *Set {
	segments := make([]*Segment, len(s.segments))
	copy(segments, s.segments)
	return &Set{segments: segments}
}
