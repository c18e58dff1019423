package machine

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/mrexodia/libriscv/fault"
	"github.com/mrexodia/libriscv/segment"
)

func encodeI(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func encodeJAL(rd uint32, imm int32) uint32 {
	imm20 := uint32(imm>>20) & 1
	imm10_1 := uint32(imm>>1) & 0x3ff
	imm11 := uint32(imm>>11) & 1
	imm19_12 := uint32(imm>>12) & 0xff
	return imm20<<31 | imm19_12<<12 | imm11<<20 | imm10_1<<21 | rd<<7 | 0x6f
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine(Options{XLEN: 64})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func newTestMachine32(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine(Options{XLEN: 32})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func encodeR(opcode, funct3, funct7, rd, rs1, rs2 uint32) uint32 {
	return funct7<<25 | rs2<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

// li a0, 666 ; li a7, 93 ; jal x0, 0 (self-jump: an infinite loop at the
// jal's own address, the classic way to pin down an exact instruction count).
func loopProgram() []byte {
	var out []byte
	out = append(out, le32(encodeI(0x13, 0, A0, 0, 666))...)
	out = append(out, le32(encodeI(0x13, 0, A7, 0, 93))...)
	out = append(out, le32(encodeJAL(0, 0))...)
	return out
}

func TestSimulateCountsExactly(t *testing.T) {
	m := newTestMachine(t)
	if err := m.LoadFlat(0x1000, loopProgram()); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}

	if err := m.Simulate(3); err != nil {
		t.Fatalf("Simulate(3): %v", err)
	}
	if got := m.Executed(); got != 3 {
		t.Fatalf("Executed() = %d, want 3", got)
	}
	if m.Regs.PC != 0x1008 {
		t.Fatalf("PC = 0x%x, want 0x1008 (parked on the jal)", m.Regs.PC)
	}
	if v := m.Regs.Get(A0); v != 666 {
		t.Fatalf("a0 = %d, want 666", v)
	}

	if err := m.Simulate(2); err != nil {
		t.Fatalf("Simulate(2): %v", err)
	}
	if got := m.Executed(); got != 5 {
		t.Fatalf("Executed() after second call = %d, want 5", got)
	}
	if m.Regs.PC != 0x1008 {
		t.Fatalf("PC = 0x%x, want 0x1008", m.Regs.PC)
	}
}

func TestSimulateTruncatedBudget(t *testing.T) {
	m := newTestMachine(t)
	if err := m.LoadFlat(0x1000, loopProgram()); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	if err := m.Simulate(1); err != nil {
		t.Fatalf("Simulate(1): %v", err)
	}
	if got := m.Executed(); got != 1 {
		t.Fatalf("Executed() = %d, want 1", got)
	}
	if v := m.Regs.Get(A0); v != 666 {
		t.Fatalf("a0 = %d, want 666 after the first instruction alone", v)
	}
	if v := m.Regs.Get(A7); v != 0 {
		t.Fatalf("a7 = %d, want 0 (second li not yet executed)", v)
	}
}

func TestSimulateFaultsOnMissingPage(t *testing.T) {
	m := newTestMachine(t)
	// lw a0, 0(a0), with a0 pointing at an address with no mapped page.
	prog := le32(encodeI(0x03, 2, A0, A0, 0))
	if err := m.LoadFlat(0x1000, prog); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	m.Regs.Set(A0, 0x9000)

	err := m.Simulate(1)
	if err == nil {
		t.Fatal("expected a missing-page fault")
	}
	var mp *fault.MissingPage
	if !errors.As(err, &mp) {
		t.Fatalf("error = %v (%T), want *fault.MissingPage", err, err)
	}
	if mp.Addr != 0x9000 {
		t.Fatalf("fault addr = 0x%x, want 0x9000", mp.Addr)
	}
	if m.Regs.PC != 0x1000 {
		t.Fatalf("PC after fault = 0x%x, want 0x1000 (left at the faulting instruction)", m.Regs.PC)
	}
}

func TestSimulateCrossSegmentJump(t *testing.T) {
	m := newTestMachine(t)
	// First region: jal straight into the second, disjoint region.
	jump := le32(encodeJAL(0, 0x4000-0x1000))
	if err := m.LoadFlat(0x1000, jump); err != nil {
		t.Fatalf("LoadFlat first region: %v", err)
	}

	landing := le32(encodeI(0x13, 0, A0, 0, 42))
	if err := loadFlatAt(m, 0x4000, landing); err != nil {
		t.Fatalf("LoadFlat second region: %v", err)
	}
	m.Regs.PC = 0x1000

	if err := m.Simulate(2); err != nil {
		t.Fatalf("Simulate(2): %v", err)
	}
	if v := m.Regs.Get(A0); v != 42 {
		t.Fatalf("a0 = %d, want 42 (landed in the second segment)", v)
	}
}

func TestSimulateFiresOnSegmentChange(t *testing.T) {
	m := newTestMachine(t)
	jump := le32(encodeJAL(0, 0x4000-0x1000))
	if err := m.LoadFlat(0x1000, jump); err != nil {
		t.Fatalf("LoadFlat first region: %v", err)
	}
	landing := le32(encodeI(0x13, 0, A0, 0, 42))
	if err := loadFlatAt(m, 0x4000, landing); err != nil {
		t.Fatalf("LoadFlat second region: %v", err)
	}
	m.Regs.PC = 0x1000

	var oldBegin, newBegin uint64
	calls := 0
	m.OnSegmentChange = func(old, newSeg *segment.Segment) uint64 {
		calls++
		oldBegin, newBegin = old.Begin, newSeg.Begin
		return m.Regs.PC
	}

	if err := m.Simulate(2); err != nil {
		t.Fatalf("Simulate(2): %v", err)
	}
	if calls != 1 {
		t.Fatalf("OnSegmentChange called %d times, want 1", calls)
	}
	if oldBegin != 0x1000 {
		t.Fatalf("old segment begin = 0x%x, want 0x1000", oldBegin)
	}
	if newBegin != 0x4000 {
		t.Fatalf("new segment begin = 0x%x, want 0x4000", newBegin)
	}
	if v := m.Regs.Get(A0); v != 42 {
		t.Fatalf("a0 = %d, want 42", v)
	}
}

func TestSimulateOnSegmentChangeCanRewritePC(t *testing.T) {
	m := newTestMachine(t)
	jump := le32(encodeJAL(0, 0x4000-0x1000))
	if err := m.LoadFlat(0x1000, jump); err != nil {
		t.Fatalf("LoadFlat first region: %v", err)
	}
	// The jal's declared landing pad, but the host redirects elsewhere
	// once it sees the transition land here.
	landing := le32(encodeI(0x13, 0, A0, 0, 7))
	if err := loadFlatAt(m, 0x4000, landing); err != nil {
		t.Fatalf("LoadFlat landing region: %v", err)
	}
	redirected := le32(encodeI(0x13, 0, A0, 0, 99))
	if err := loadFlatAt(m, 0x9000, redirected); err != nil {
		t.Fatalf("LoadFlat redirected region: %v", err)
	}
	m.Regs.PC = 0x1000

	m.OnSegmentChange = func(old, newSeg *segment.Segment) uint64 {
		if newSeg.Begin == 0x4000 {
			return 0x9000
		}
		return m.Regs.PC
	}

	if err := m.Simulate(2); err != nil {
		t.Fatalf("Simulate(2): %v", err)
	}
	if v := m.Regs.Get(A0); v != 99 {
		t.Fatalf("a0 = %d, want 99 (redirected landing)", v)
	}
	if m.Regs.PC != 0x9004 {
		t.Fatalf("PC = 0x%x, want 0x9004", m.Regs.PC)
	}
}

// loadFlatAt installs bytes at addr without disturbing the machine's
// existing PC (LoadFlat always repositions PC to the new image's base,
// which is wrong when a second, non-entry region is being mapped).
func loadFlatAt(m *Machine, addr uint64, image []byte) error {
	savedPC := m.Regs.PC
	err := m.LoadFlat(addr, image)
	m.Regs.PC = savedPC
	return err
}

func TestSimulateHaltViaSyscall(t *testing.T) {
	m := newTestMachine(t)
	prog := append(append([]byte{}, le32(encodeI(0x13, 0, A7, 0, 93))...), le32(uint32(0x73))...)
	if err := m.LoadFlat(0x1000, prog); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	m.SyscallTable[93] = func(m *Machine) error {
		m.Halt("exit")
		return nil
	}

	if err := m.Simulate(100); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if !m.Stopped {
		t.Fatal("expected the machine to be halted")
	}
	if got := m.Executed(); got != 2 {
		t.Fatalf("Executed() = %d, want 2", got)
	}
}

func TestDivisionEdgeCases(t *testing.T) {
	m := newTestMachine(t)
	prog := []byte{}
	prog = append(prog, le32(encodeI(0x13, 0, 10, 0, 7))...) // li x10, 7
	prog = append(prog, le32(encodeI(0x13, 0, 11, 0, 0))...) // li x11, 0
	// div x12, x10, x11  (opcode OP=0x33, funct3=4, funct7=0x01)
	prog = append(prog, le32(0x01<<25|11<<20|10<<15|4<<12|12<<7|0x33)...)
	if err := m.LoadFlat(0x1000, prog); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	if err := m.Simulate(3); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if v := int64(m.Regs.Get(12)); v != -1 {
		t.Fatalf("division by zero result = %d, want -1 (all-ones)", v)
	}
}

func TestRemainderByZeroReturnsDividend(t *testing.T) {
	m := newTestMachine(t)
	prog := []byte{}
	prog = append(prog, le32(encodeI(0x13, 0, 10, 0, 7))...) // li x10, 7
	prog = append(prog, le32(encodeI(0x13, 0, 11, 0, 0))...) // li x11, 0
	// rem x12, x10, x11  (opcode OP=0x33, funct3=6, funct7=0x01)
	prog = append(prog, le32(0x01<<25|11<<20|10<<15|6<<12|12<<7|0x33)...)
	if err := m.LoadFlat(0x1000, prog); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	if err := m.Simulate(3); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if v := int64(m.Regs.Get(12)); v != 7 {
		t.Fatalf("remainder by zero result = %d, want 7 (the dividend)", v)
	}
}

func TestRV32TruncatesArithmeticToWordWidth(t *testing.T) {
	m := newTestMachine32(t)
	prog := []byte{}
	prog = append(prog, le32(encodeI(0x13, 0, 10, 0, 1))...)   // li x10, 1
	prog = append(prog, le32(encodeI(0x13, 1, 10, 10, 31))...) // slli x10, x10, 31
	if err := m.LoadFlat(0x1000, prog); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	if err := m.Simulate(2); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if v := int64(m.Regs.Get(10)); v != -2147483648 {
		t.Fatalf("x10 = %d, want -2147483648 (1<<31 sign-extended from 32 bits, not from 64)", v)
	}
}

func TestRV32LogicalShiftRightUsesWordWidth(t *testing.T) {
	m := newTestMachine32(t)
	prog := []byte{}
	prog = append(prog, le32(encodeI(0x13, 0, 10, 0, 1))...)   // li x10, 1
	prog = append(prog, le32(encodeI(0x13, 1, 10, 10, 31))...) // slli x10, x10, 31 -> 0x80000000
	prog = append(prog, le32(encodeI(0x13, 5, 11, 10, 1))...)  // srli x11, x10, 1
	if err := m.LoadFlat(0x1000, prog); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	if err := m.Simulate(3); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if v := m.Regs.Get(11); v != 0x40000000 {
		t.Fatalf("x11 = 0x%x, want 0x40000000 (zero-filled from bit 31, not sign-extended from the 64-bit store)", v)
	}
}

func TestRV32UnsignedCompareUsesWordWidth(t *testing.T) {
	m := newTestMachine32(t)
	prog := []byte{}
	prog = append(prog, le32(encodeI(0x13, 0, 10, 0, 1))...)         // li x10, 1
	prog = append(prog, le32(encodeI(0x13, 1, 10, 10, 31))...)       // slli x10, x10, 31 -> 0x80000000
	prog = append(prog, le32(encodeI(0x13, 0, 11, 0, 1))...)         // li x11, 1
	prog = append(prog, le32(encodeR(0x33, 3, 0x00, 12, 10, 11))...) // sltu x12, x10, x11
	prog = append(prog, le32(encodeR(0x33, 3, 0x00, 13, 11, 10))...) // sltu x13, x11, x10
	if err := m.LoadFlat(0x1000, prog); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	if err := m.Simulate(5); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if v := m.Regs.Get(12); v != 0 {
		t.Fatalf("x12 (0x80000000 < 1, unsigned) = %d, want 0", v)
	}
	if v := m.Regs.Get(13); v != 1 {
		t.Fatalf("x13 (1 < 0x80000000, unsigned) = %d, want 1", v)
	}
}

func TestRV32WordOpsAreRejected(t *testing.T) {
	m := newTestMachine32(t)
	// addiw x10, x0, 1 (opcode 0x1b, RV64-only)
	prog := le32(encodeI(0x1b, 0, 10, 0, 1))
	if err := m.LoadFlat(0x1000, prog); err != nil {
		t.Fatalf("LoadFlat: %v", err)
	}
	err := m.Simulate(1)
	if err == nil {
		t.Fatal("expected addiw to fault on an RV32 machine")
	}
	var unk *fault.UnknownInstruction
	if !errors.As(err, &unk) {
		t.Fatalf("error = %v (%T), want *fault.UnknownInstruction", err, err)
	}
}
