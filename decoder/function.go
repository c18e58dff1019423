package decoder

import (
	"github.com/mrexodia/libriscv/fault"
	"github.com/mrexodia/libriscv/memory"
	"github.com/mrexodia/libriscv/registers"
)

// The FUNCTION bytecode is the generic escape hatch for anything the dense
// table doesn't specialize: RV64I's word-width immediate/register ops
// (opcodes 0x1b/0x3b), the floating-point fused multiply-add family, AMO,
// and the vector extension. Handlers for the RV64I *W ops are implemented
// here since they are still in scope (RV32/RV64 integer); the rest are
// decoded but intentionally left unimplemented, matching the non-goal list.

func unsupportedHandler(word uint32) HandlerFunc {
	return func(regs *registers.File, mem *memory.Facade, pc uint64) error {
		return &fault.UnknownInstruction{PC: pc, Word: word}
	}
}

func invalidFloatHandler(word uint32) HandlerFunc {
	return unsupportedHandler(word)
}

// opImm32Handler covers ADDIW/SLLIW/SRLIW/SRAIW (opcode 0x1b): RV64-only
// word-width immediate arithmetic that sign-extends its 32-bit result.
func opImm32Handler(word uint32) HandlerFunc {
	funct3 := (word >> 12) & 0x7
	rd := uint8((word >> 7) & 0x1f)
	rs1 := uint8((word >> 15) & 0x1f)
	imm := immI(word)

	return func(regs *registers.File, mem *memory.Facade, pc uint64) error {
		var result int32
		src1 := int32(uint32(regs.Get(rs1)))
		switch funct3 {
		case 0: // ADDIW
			result = src1 + int32(imm)
		case 1: // SLLIW
			result = src1 << (uint32(imm) & 0x1f)
		case 5:
			shamt := uint32(imm) & 0x1f
			if word&(1<<30) != 0 {
				result = src1 >> shamt // SRAIW, arithmetic by Go int32 rule
			} else {
				result = int32(uint32(src1) >> shamt) // SRLIW
			}
		default:
			return &fault.UnknownInstruction{PC: pc, Word: word}
		}
		regs.Set(rd, uint64(int64(result)))
		return nil
	}
}

// op32Handler covers ADDW/SUBW/SLLW/SRLW/SRAW/MULW/DIVW/DIVUW/REMW/REMUW
// (opcode 0x3b): RV64-only word-width register arithmetic.
func op32Handler(word uint32) HandlerFunc {
	funct3 := (word >> 12) & 0x7
	funct7 := (word >> 25) & 0x7f
	rd := uint8((word >> 7) & 0x1f)
	rs1 := uint8((word >> 15) & 0x1f)
	rs2 := uint8((word >> 20) & 0x1f)

	return func(regs *registers.File, mem *memory.Facade, pc uint64) error {
		a := int32(uint32(regs.Get(rs1)))
		b := int32(uint32(regs.Get(rs2)))
		var result int32
		switch {
		case funct7 == 0x00 && funct3 == 0: // ADDW
			result = a + b
		case funct7 == 0x20 && funct3 == 0: // SUBW
			result = a - b
		case funct7 == 0x00 && funct3 == 1: // SLLW
			result = a << (uint32(b) & 0x1f)
		case funct7 == 0x00 && funct3 == 5: // SRLW
			result = int32(uint32(a) >> (uint32(b) & 0x1f))
		case funct7 == 0x20 && funct3 == 5: // SRAW
			result = a >> (uint32(b) & 0x1f)
		case funct7 == 0x01 && funct3 == 0: // MULW
			result = a * b
		case funct7 == 0x01 && funct3 == 4: // DIVW
			if b == 0 {
				regs.Set(rd, ^uint64(0))
				return nil
			}
			if a == -2147483648 && b == -1 {
				result = a
			} else {
				result = a / b
			}
		case funct7 == 0x01 && funct3 == 5: // DIVUW
			ua, ub := uint32(a), uint32(b)
			if ub == 0 {
				regs.Set(rd, ^uint64(0))
				return nil
			}
			result = int32(ua / ub)
		case funct7 == 0x01 && funct3 == 6: // REMW
			if b == 0 {
				regs.Set(rd, uint64(int64(a)))
				return nil
			}
			if a == -2147483648 && b == -1 {
				result = 0
			} else {
				result = a % b
			}
		case funct7 == 0x01 && funct3 == 7: // REMUW
			ua, ub := uint32(a), uint32(b)
			if ub == 0 {
				regs.Set(rd, uint64(int64(int32(ua))))
				return nil
			}
			result = int32(ua % ub)
		default:
			return &fault.UnknownInstruction{PC: pc, Word: word}
		}
		regs.Set(rd, uint64(int64(result)))
		return nil
	}
}
