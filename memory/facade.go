package memory

import (
	"encoding/binary"

	"github.com/mrexodia/libriscv/fault"
)

// tlbEntries is the size of the direct-mapped page cache in front of the
// page store. Small on purpose: the working set of a tight loop is usually
// one or two pages, and a direct-mapped cache this size costs nothing to
// probe.
const tlbEntries = 4

type tlbEntry struct {
	valid     bool
	pageIndex uint64
	page      *Page
}

// Facade is the single address-space view a Machine reads and writes
// through. It combines the sparse PageStore with an optional contiguous
// Arena fast path and a small TLB in front of page-store lookups.
type Facade struct {
	Store *PageStore
	Arena *Arena
	tlb   [tlbEntries]tlbEntry
}

// NewFacade builds a Facade over store, optionally backed by arena for the
// low end of the address space. arena may be nil.
func NewFacade(store *PageStore, arena *Arena) *Facade {
	return &Facade{Store: store, Arena: arena}
}

// InvalidateTLB drops every cached page-store lookup. Called by CopyIn and
// SetAttrs, and by the dispatch loop when it switches execute segments. A
// copy-on-write write refreshes the affected entry in place instead, and a
// forked Machine starts with a new Facade whose TLB is empty.
func (f *Facade) InvalidateTLB() {
	for i := range f.tlb {
		f.tlb[i] = tlbEntry{}
	}
}

func (f *Facade) tlbLookup(pageIndex uint64) (*Page, bool) {
	slot := &f.tlb[pageIndex%tlbEntries]
	if slot.valid && slot.pageIndex == pageIndex {
		return slot.page, true
	}
	return nil, false
}

func (f *Facade) tlbFill(pageIndex uint64, p *Page) {
	f.tlb[pageIndex%tlbEntries] = tlbEntry{valid: true, pageIndex: pageIndex, page: p}
}

func attrsAllow(have, need Attrs) (fault.ProtectionKind, bool) {
	if need.Read && !have.Read {
		return fault.Read, false
	}
	if need.Write && !have.Write {
		return fault.Write, false
	}
	if need.Exec && !have.Exec {
		return fault.Exec, false
	}
	return 0, true
}

// chunk resolves the backing bytes for addr, returning a slice that extends
// at most to the end of the page or arena containing it. When write is set,
// the page-store path triggers copy-on-write before returning.
func (f *Facade) chunk(addr uint64, need Attrs, write bool, pc uint64) ([]byte, error) {
	if f.Arena.Covers(addr) {
		have := f.Arena.AttrsAt(addr)
		if kind, ok := attrsAllow(have, need); !ok {
			return nil, &fault.ProtectionFault{Addr: addr, Kind: kind, PC: pc}
		}
		pageEnd := (addr/PageSize + 1) * PageSize
		if pageEnd > f.Arena.End {
			pageEnd = f.Arena.End
		}
		return f.Arena.Bytes[addr:pageEnd], nil
	}

	pageIndex := addr / PageSize
	page, ok := f.tlbLookup(pageIndex)
	if !ok {
		page, ok = f.Store.Lookup(pageIndex)
		if !ok {
			return nil, &fault.MissingPage{Addr: addr, PC: pc}
		}
		f.tlbFill(pageIndex, page)
	}
	if kind, ok := attrsAllow(page.Attrs, need); !ok {
		return nil, &fault.ProtectionFault{Addr: addr, Kind: kind, PC: pc}
	}
	if write {
		page = f.Store.CopyOnWrite(pageIndex)
		f.tlbFill(pageIndex, page)
	}
	offset := addr % PageSize
	return page.bytes[offset:PageSize], nil
}

func (f *Facade) readRange(addr uint64, n int, pc uint64) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		buf, err := f.chunk(addr+uint64(len(out)), Attrs{Read: true}, false, pc)
		if err != nil {
			return nil, err
		}
		take := n - len(out)
		if take > len(buf) {
			take = len(buf)
		}
		out = append(out, buf[:take]...)
	}
	return out, nil
}

func (f *Facade) writeRange(addr uint64, data []byte, pc uint64) error {
	written := 0
	for written < len(data) {
		buf, err := f.chunk(addr+uint64(written), Attrs{Write: true}, true, pc)
		if err != nil {
			return err
		}
		take := len(data) - written
		if take > len(buf) {
			take = len(buf)
		}
		copy(buf[:take], data[written:written+take])
		written += take
	}
	return nil
}

// ReadU8 through ReadU64 perform little-endian loads, splitting across page
// boundaries transparently.
func (f *Facade) ReadU8(addr, pc uint64) (uint8, error) {
	b, err := f.readRange(addr, 1, pc)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (f *Facade) ReadU16(addr, pc uint64) (uint16, error) {
	b, err := f.readRange(addr, 2, pc)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (f *Facade) ReadU32(addr, pc uint64) (uint32, error) {
	b, err := f.readRange(addr, 4, pc)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (f *Facade) ReadU64(addr, pc uint64) (uint64, error) {
	b, err := f.readRange(addr, 8, pc)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// WriteU8 through WriteU64 perform little-endian stores, triggering
// copy-on-write and splitting across page boundaries transparently.
func (f *Facade) WriteU8(addr uint64, v uint8, pc uint64) error {
	return f.writeRange(addr, []byte{v}, pc)
}

func (f *Facade) WriteU16(addr uint64, v uint16, pc uint64) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return f.writeRange(addr, b[:], pc)
}

func (f *Facade) WriteU32(addr uint64, v uint32, pc uint64) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return f.writeRange(addr, b[:], pc)
}

func (f *Facade) WriteU64(addr uint64, v uint64, pc uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return f.writeRange(addr, b[:], pc)
}

// FetchWord reads one 32-bit instruction word for the decoder, requiring
// the execute attribute rather than read.
func (f *Facade) FetchWord(pc uint64) (uint32, error) {
	if pc%4 != 0 {
		return 0, &fault.MisalignedInstruction{PC: pc}
	}
	out := make([]byte, 0, 4)
	for len(out) < 4 {
		addr := pc + uint64(len(out))
		var buf []byte
		if f.Arena.Covers(addr) {
			have := f.Arena.AttrsAt(addr)
			if kind, ok := attrsAllow(have, Attrs{Exec: true}); !ok {
				return 0, &fault.ProtectionFault{Addr: addr, Kind: kind, PC: pc}
			}
			pageEnd := (addr/PageSize + 1) * PageSize
			if pageEnd > f.Arena.End {
				pageEnd = f.Arena.End
			}
			buf = f.Arena.Bytes[addr:pageEnd]
		} else {
			pageIndex := addr / PageSize
			page, ok := f.tlbLookup(pageIndex)
			if !ok {
				page, ok = f.Store.Lookup(pageIndex)
				if !ok {
					return 0, &fault.MissingPage{Addr: addr, PC: pc}
				}
				f.tlbFill(pageIndex, page)
			}
			if kind, ok := attrsAllow(page.Attrs, Attrs{Exec: true}); !ok {
				return 0, &fault.ProtectionFault{Addr: addr, Kind: kind, PC: pc}
			}
			offset := addr % PageSize
			buf = page.bytes[offset:PageSize]
		}
		take := 4 - len(out)
		if take > len(buf) {
			take = len(buf)
		}
		out = append(out, buf[:take]...)
	}
	return binary.LittleEndian.Uint32(out), nil
}

// ReadBytes reads n bytes starting at addr, requiring the Read attribute
// and splitting across page/arena boundaries transparently. Used by the
// on-demand execute-segment builder to materialize a byte view of
// already-mapped guest memory.
func (f *Facade) ReadBytes(addr uint64, n int, pc uint64) ([]byte, error) {
	return f.readRange(addr, n, pc)
}

// HasExec reports whether the page covering addr is currently mapped and
// executable. It never faults: a missing page simply reports false.
func (f *Facade) HasExec(addr uint64) bool {
	if f.Arena.Covers(addr) {
		return f.Arena.AttrsAt(addr).Exec
	}
	pageIndex := addr / PageSize
	if p, ok := f.tlbLookup(pageIndex); ok {
		return p.Attrs.Exec
	}
	p, ok := f.Store.Lookup(pageIndex)
	if !ok {
		return false
	}
	return p.Attrs.Exec
}

// CopyIn writes data into the guest address space starting at addr,
// allocating backing pages with Read|Write attributes as needed. Used by
// the loader to install the initial image and stack.
func (f *Facade) CopyIn(addr uint64, data []byte) {
	written := 0
	for written < len(data) {
		cur := addr + uint64(written)
		if f.Arena.Covers(cur) {
			pageEnd := (cur/PageSize + 1) * PageSize
			if pageEnd > f.Arena.End {
				pageEnd = f.Arena.End
			}
			n := copy(f.Arena.Bytes[cur:pageEnd], data[written:])
			written += n
			continue
		}
		pageIndex := cur / PageSize
		page, _ := f.Store.EnsurePage(pageIndex, Attrs{Read: true, Write: true})
		offset := cur % PageSize
		n := copy(page.bytes[offset:PageSize], data[written:])
		f.InvalidateTLB()
		written += n
	}
}

// SetAttrs applies attrs to every page (or arena page) overlapping
// [begin, end), allocating missing page-store pages as zero-filled.
func (f *Facade) SetAttrs(begin, end uint64, attrs Attrs) {
	if f.Arena != nil {
		arenaEnd := end
		if arenaEnd > f.Arena.End {
			arenaEnd = f.Arena.End
		}
		if begin < arenaEnd {
			f.Arena.SetAttrs(begin, arenaEnd, attrs)
		}
		if begin < f.Arena.End {
			begin = f.Arena.End
		}
	}
	for addr := begin &^ (PageSize - 1); addr < end; addr += PageSize {
		pageIndex := addr / PageSize
		f.Store.SetAttrs(pageIndex, attrs)
	}
	f.InvalidateTLB()
}
