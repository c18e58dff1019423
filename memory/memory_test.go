package memory

import "testing"

func TestReadWriteRoundTrip(t *testing.T) {
	store := NewPageStore(0)
	f := NewFacade(store, nil)
	f.CopyIn(0x1000, []byte{1, 2, 3, 4})

	v, err := f.ReadU32(0x1000, 0)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if v != 0x04030201 {
		t.Fatalf("ReadU32 = 0x%x, want 0x04030201", v)
	}

	if err := f.WriteU16(0x1002, 0xbeef, 0); err != nil {
		t.Fatalf("WriteU16: %v", err)
	}
	v, err = f.ReadU32(0x1000, 0)
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	if v != 0xbeef0201 {
		t.Fatalf("ReadU32 after write = 0x%x, want 0xbeef0201", v)
	}
}

func TestCrossPageBoundary(t *testing.T) {
	store := NewPageStore(0)
	f := NewFacade(store, nil)
	// Place bytes so a u64 straddles the page boundary at 0x2000.
	addr := uint64(PageSize - 4)
	f.CopyIn(addr, []byte{0, 0, 0, 0, 0, 0, 0, 0})
	if err := f.WriteU64(addr, 0x1122334455667788, 0); err != nil {
		t.Fatalf("WriteU64 across boundary: %v", err)
	}
	got, err := f.ReadU64(addr, 0)
	if err != nil {
		t.Fatalf("ReadU64 across boundary: %v", err)
	}
	if got != 0x1122334455667788 {
		t.Fatalf("got 0x%x, want 0x1122334455667788", got)
	}
}

func TestMissingPageFault(t *testing.T) {
	store := NewPageStore(0)
	f := NewFacade(store, nil)
	_, err := f.ReadU32(0x9000, 0x1004)
	if err == nil {
		t.Fatal("expected a missing-page fault, got nil")
	}
}

func TestProtectionFaultOnWriteToReadOnlyPage(t *testing.T) {
	store := NewPageStore(0)
	f := NewFacade(store, nil)
	f.CopyIn(0x1000, []byte{0, 0, 0, 0})
	f.SetAttrs(0x1000, 0x1000+PageSize, Attrs{Read: true})

	if err := f.WriteU8(0x1000, 1, 0); err == nil {
		t.Fatal("expected a protection fault writing to a read-only page")
	}
}

func TestCopyOnWriteAfterFork(t *testing.T) {
	store := NewPageStore(0)
	f := NewFacade(store, nil)
	f.CopyIn(0x1000, []byte{1, 2, 3, 4})

	child := store.Fork()
	fc := NewFacade(child, nil)

	if err := fc.WriteU8(0x1000, 0xff, 0); err != nil {
		t.Fatalf("write into forked store: %v", err)
	}

	parentVal, _ := f.ReadU8(0x1000, 0)
	childVal, _ := fc.ReadU8(0x1000, 0)
	if parentVal != 1 {
		t.Fatalf("parent page mutated by child write: got %d, want 1", parentVal)
	}
	if childVal != 0xff {
		t.Fatalf("child page = %d, want 0xff", childVal)
	}
}

func TestTLBSurvivesRepeatedAccess(t *testing.T) {
	store := NewPageStore(0)
	f := NewFacade(store, nil)
	f.CopyIn(0x1000, []byte{9})
	for i := 0; i < 3; i++ {
		v, err := f.ReadU8(0x1000, 0)
		if err != nil || v != 9 {
			t.Fatalf("iteration %d: got (%d, %v), want (9, nil)", i, v, err)
		}
	}
}

func TestArenaFastPath(t *testing.T) {
	arena := NewArena(PageSize * 2)
	store := NewPageStore(0)
	f := NewFacade(store, arena)

	if err := f.WriteU32(0x10, 0xcafef00d, 0); err != nil {
		t.Fatalf("WriteU32 into arena: %v", err)
	}
	v, err := f.ReadU32(0x10, 0)
	if err != nil {
		t.Fatalf("ReadU32 from arena: %v", err)
	}
	if v != 0xcafef00d {
		t.Fatalf("got 0x%x, want 0xcafef00d", v)
	}
}
