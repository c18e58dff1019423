package memory

// Arena is an optional contiguous fast path covering [0, End) of the guest
// address space. When enabled it replaces page-store lookups for every
// address it covers with direct slice indexing, at the cost of committing
// the full range up front and losing per-page CoW sharing across Fork.
type Arena struct {
	Bytes []byte
	attrs []Attrs // one entry per page, len(Bytes)/PageSize
	End   uint64
}

// NewArena allocates an arena of size bytes, rounded up to a whole number
// of pages, with every page initially readable and writable but not
// executable.
func NewArena(size uint64) *Arena {
	pages := (size + PageSize - 1) / PageSize
	a := &Arena{
		Bytes: make([]byte, pages*PageSize),
		attrs: make([]Attrs, pages),
		End:   pages * PageSize,
	}
	for i := range a.attrs {
		a.attrs[i] = Attrs{Read: true, Write: true}
	}
	return a
}

// Covers reports whether addr falls inside the arena's range.
func (a *Arena) Covers(addr uint64) bool {
	return a != nil && addr < a.End
}

// AttrsAt returns the attributes governing the page containing addr.
// Caller must have already checked Covers.
func (a *Arena) AttrsAt(addr uint64) Attrs {
	return a.attrs[addr/PageSize]
}

// SetAttrs updates the attributes of every whole page overlapping
// [begin, end).
func (a *Arena) SetAttrs(begin, end uint64, attrs Attrs) {
	for p := begin / PageSize; p*PageSize < end; p++ {
		if p < uint64(len(a.attrs)) {
			a.attrs[p] = attrs
		}
	}
}

// Clone returns a deep copy of the arena, used by Machine.Fork since the
// arena fast path has no CoW sharing of its own.
func (a *Arena) Clone() *Arena {
	if a == nil {
		return nil
	}
	cp := &Arena{
		Bytes: make([]byte, len(a.Bytes)),
		attrs: make([]Attrs, len(a.attrs)),
		End:   a.End,
	}
	copy(cp.Bytes, a.Bytes)
	copy(cp.attrs, a.attrs)
	return cp
}
