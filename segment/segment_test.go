package segment

import (
	"encoding/binary"
	"testing"

	"github.com/mrexodia/libriscv/decoder"
)

func word(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func encodeI(opcode, funct3, rd, rs1 uint32, imm int32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | funct3<<12 | rd<<7 | opcode
}

func TestBuildSplitsBlocksOnBranch(t *testing.T) {
	var bytes []byte
	bytes = append(bytes, word(encodeI(0x13, 0, 10, 0, 1))...) // addi a0, x0, 1 (LI)
	bytes = append(bytes, word(encodeI(0x13, 0, 11, 0, 2))...) // addi a1, x0, 2 (LI)
	bytes = append(bytes, word(0x00000063)...)                 // beq x0, x0, 0

	seg, err := Build(bytes, 0x1000, decoder.Options{}, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(seg.Cache) != 3 {
		t.Fatalf("len(Cache) = %d, want 3", len(seg.Cache))
	}
	if seg.Cache[0].IdxEnd != 2 || seg.Cache[1].IdxEnd != 1 || seg.Cache[2].IdxEnd != 0 {
		t.Fatalf("IdxEnd chain = %d,%d,%d want 2,1,0",
			seg.Cache[0].IdxEnd, seg.Cache[1].IdxEnd, seg.Cache[2].IdxEnd)
	}
}

func TestSlotForBoundsAndAlignment(t *testing.T) {
	bytes := word(encodeI(0x13, 0, 10, 0, 1))
	seg, err := Build(bytes, 0x2000, decoder.Options{}, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := seg.SlotFor(0x1000); ok {
		t.Fatal("SlotFor should reject an address outside the segment")
	}
	if _, ok := seg.SlotFor(0x2001); ok {
		t.Fatal("SlotFor should reject a misaligned address")
	}
	if _, ok := seg.SlotFor(0x2000); !ok {
		t.Fatal("SlotFor should accept the segment's first address")
	}
}

func TestSetRejectsOverlap(t *testing.T) {
	set := NewSet()
	a, _ := Build(make([]byte, 16), 0x1000, decoder.Options{}, 0)
	b, _ := Build(make([]byte, 16), 0x1008, decoder.Options{}, 0)
	if err := set.Add(a); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := set.Add(b); err == nil {
		t.Fatal("expected overlap rejection")
	}
}

func TestSetLookupAcrossDisjointRanges(t *testing.T) {
	set := NewSet()
	a, _ := Build(make([]byte, 0x100), 0x1000, decoder.Options{}, 0)
	b, _ := Build(make([]byte, 0x100), 0x4000, decoder.Options{}, 0)
	if err := set.Add(a); err != nil {
		t.Fatalf("Add a: %v", err)
	}
	if err := set.Add(b); err != nil {
		t.Fatalf("Add b: %v", err)
	}
	if got, ok := set.Lookup(0x1050); !ok || got != a {
		t.Fatalf("Lookup(0x1050) = %v,%v, want a", got, ok)
	}
	if got, ok := set.Lookup(0x4050); !ok || got != b {
		t.Fatalf("Lookup(0x4050) = %v,%v, want b", got, ok)
	}
	if _, ok := set.Lookup(0x2000); ok {
		t.Fatal("Lookup(0x2000) should miss, gap between segments")
	}
}
