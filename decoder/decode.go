package decoder

import (
	"github.com/mrexodia/libriscv/fault"
	"github.com/mrexodia/libriscv/memory"
	"github.com/mrexodia/libriscv/registers"
)

// Opcode field values (bits [6:0]).
const (
	opLoad    = 0x03
	opLoadFP  = 0x07
	opMiscMem = 0x0f
	opImm     = 0x13
	opAUIPC   = 0x17
	opImm32   = 0x1b
	opStore   = 0x23
	opStoreFP = 0x27
	opAMO     = 0x2f
	opOp      = 0x33
	opLUI     = 0x37
	opOp32    = 0x3b
	opFMADD   = 0x43
	opFMSUB   = 0x47
	opFNMSUB  = 0x4b
	opFNMADD  = 0x4f
	opOpFP    = 0x53
	opVector  = 0x57
	opBranch  = 0x63
	opJALR    = 0x67
	opJAL     = 0x6f
	opSystem  = 0x73
)

// FastOperand is the packed, rewrite-friendly operand view. Decode fills it
// for every instruction it specializes, whether or not
// Options.DecoderRewriterEnabled is set; the option does not change
// decoding. One shape serves both the fast I-type and fast J-type cases.
type FastOperand struct {
	RS1 uint8
	RS2 uint8
	RD  uint8
	Imm int64
}

// HandlerFunc is the fallback body for FUNCTION and INVALID slots: anything
// the dense bytecode table does not specialize.
type HandlerFunc func(regs *registers.File, mem *memory.Facade, pc uint64) error

// Slot is one decoded instruction word.
type Slot struct {
	Bytecode Bytecode
	Raw      uint32
	Fast     FastOperand
	IdxEnd   uint32
	Handler  HandlerFunc
}

// Options configures the handful of decode-time choices that depend on the
// machine's configuration rather than the instruction word alone.
type Options struct {
	FloatEnabled           bool
	DecoderRewriterEnabled bool
	XLEN                   int
}

func bits(word uint32, hi, lo uint) uint32 {
	return (word >> lo) & ((1 << (hi - lo + 1)) - 1)
}

func signExtend(v uint32, bit uint) int64 {
	shift := 31 - bit
	return int64(int32(v<<shift)) >> shift
}

func immI(word uint32) int64 {
	return signExtend(word>>20, 11)
}

func immS(word uint32) int64 {
	v := (bits(word, 31, 25) << 5) | bits(word, 11, 7)
	return signExtend(v, 11)
}

func immB(word uint32) int64 {
	v := (bits(word, 31, 31) << 12) | (bits(word, 7, 7) << 11) |
		(bits(word, 30, 25) << 5) | (bits(word, 11, 8) << 1)
	return signExtend(v, 12)
}

func immU(word uint32) int64 {
	return int64(int32(word & 0xfffff000))
}

func immJ(word uint32) int64 {
	v := (bits(word, 31, 31) << 20) | (bits(word, 19, 12) << 12) |
		(bits(word, 20, 20) << 11) | (bits(word, 30, 21) << 1)
	return signExtend(v, 20)
}

// Decode translates one raw instruction word into a Slot. IdxEnd is left
// zero; the segment builder fills it in once the block boundary is known.
func Decode(word uint32, opts Options) Slot {
	opcode := word & 0x7f
	funct3 := (word >> 12) & 0x7
	funct7 := (word >> 25) & 0x7f
	rd := uint8((word >> 7) & 0x1f)
	rs1 := uint8((word >> 15) & 0x1f)
	rs2 := uint8((word >> 20) & 0x1f)

	slot := Slot{Raw: word}

	switch opcode {
	case opImm:
		imm := immI(word)
		switch funct3 {
		case 0:
			if rs1 == 0 {
				slot.Bytecode = LI
			} else {
				slot.Bytecode = ADDI
			}
		case 1:
			slot.Bytecode = SLLI
		case 2:
			slot.Bytecode = SLTI
		case 3:
			slot.Bytecode = SLTIU
		case 4:
			slot.Bytecode = XORI
		case 5:
			if word&(1<<30) != 0 {
				slot.Bytecode = SRAI
			} else {
				slot.Bytecode = SRLI
			}
		case 6:
			slot.Bytecode = ORI
		case 7:
			slot.Bytecode = ANDI
		}
		if rd == 0 {
			slot.Bytecode = NOP
		}
		slot.Fast = FastOperand{RS1: rs1, RD: rd, Imm: imm}

	case opOp:
		key := (funct7 << 3) | funct3
		switch key {
		case 0x00<<3 | 0:
			slot.Bytecode = ADD
		case 0x20<<3 | 0:
			slot.Bytecode = SUB
		case 0x00<<3 | 1:
			slot.Bytecode = SLL
		case 0x00<<3 | 2:
			slot.Bytecode = SLT
		case 0x00<<3 | 3:
			slot.Bytecode = SLTU
		case 0x00<<3 | 4:
			slot.Bytecode = XOR
		case 0x00<<3 | 5:
			slot.Bytecode = SRL
		case 0x20<<3 | 5:
			slot.Bytecode = SRA
		case 0x00<<3 | 6:
			slot.Bytecode = OR
		case 0x00<<3 | 7:
			slot.Bytecode = AND
		case 0x01<<3 | 0:
			slot.Bytecode = MUL
		case 0x01<<3 | 1:
			slot.Bytecode = MULH
		case 0x01<<3 | 2:
			slot.Bytecode = MULHSU
		case 0x01<<3 | 3:
			slot.Bytecode = MULHU
		case 0x01<<3 | 4:
			slot.Bytecode = DIV
		case 0x01<<3 | 5:
			slot.Bytecode = DIVU
		case 0x01<<3 | 6:
			slot.Bytecode = REM
		case 0x01<<3 | 7:
			slot.Bytecode = REMU
		case 0x10<<3 | 2:
			slot.Bytecode = SH1ADD
		case 0x10<<3 | 4:
			slot.Bytecode = SH2ADD
		case 0x10<<3 | 6:
			slot.Bytecode = SH3ADD
		default:
			slot.Bytecode = INVALID
		}
		if rd == 0 && slot.Bytecode != INVALID {
			slot.Bytecode = NOP
		}
		slot.Fast = FastOperand{RS1: rs1, RS2: rs2, RD: rd}

	case opLUI:
		if rd == 0 {
			slot.Bytecode = NOP
		} else {
			slot.Bytecode = LUI
		}
		slot.Fast = FastOperand{RD: rd, Imm: immU(word)}

	case opAUIPC:
		slot.Bytecode = AUIPC
		slot.Fast = FastOperand{RD: rd, Imm: immU(word)}

	case opLoad:
		imm := immI(word)
		switch funct3 {
		case 0:
			slot.Bytecode = LB
		case 1:
			slot.Bytecode = LH
		case 2:
			slot.Bytecode = LW
		case 3:
			slot.Bytecode = LD
		case 4:
			slot.Bytecode = LBU
		case 5:
			slot.Bytecode = LHU
		case 6:
			slot.Bytecode = LWU
		default:
			slot.Bytecode = INVALID
		}
		if rd == 0 && slot.Bytecode != INVALID {
			slot.Bytecode = NOP
		}
		slot.Fast = FastOperand{RS1: rs1, RD: rd, Imm: imm}

	case opStore:
		imm := immS(word)
		switch funct3 {
		case 0:
			slot.Bytecode = SB
		case 1:
			slot.Bytecode = SH
		case 2:
			slot.Bytecode = SW
		case 3:
			slot.Bytecode = SD
		default:
			slot.Bytecode = INVALID
		}
		slot.Fast = FastOperand{RS1: rs1, RS2: rs2, Imm: imm}

	case opBranch:
		imm := immB(word)
		switch funct3 {
		case 0:
			slot.Bytecode = BEQ
		case 1:
			slot.Bytecode = BNE
		case 4:
			slot.Bytecode = BLT
		case 5:
			slot.Bytecode = BGE
		case 6:
			slot.Bytecode = BLTU
		case 7:
			slot.Bytecode = BGEU
		default:
			slot.Bytecode = INVALID
		}
		slot.Fast = FastOperand{RS1: rs1, RS2: rs2, Imm: imm}

	case opJAL:
		slot.Bytecode = JAL
		slot.Fast = FastOperand{RD: rd, Imm: immJ(word)}

	case opJALR:
		if funct3 != 0 {
			slot.Bytecode = INVALID
		} else {
			slot.Bytecode = JALR
		}
		slot.Fast = FastOperand{RS1: rs1, RD: rd, Imm: immI(word)}

	case opSystem:
		if funct3 == 0 {
			imm := word >> 20
			if imm == 0 {
				slot.Bytecode = SYSCALL
			} else {
				slot.Bytecode = SYSTEM
			}
		} else {
			slot.Bytecode = SYSTEM
		}

	case opMiscMem:
		slot.Bytecode = NOP

	case opLoadFP:
		if opts.FloatEnabled {
			switch funct3 {
			case 2:
				slot.Bytecode = FLW
			case 3:
				slot.Bytecode = FLD
			default:
				slot.Bytecode = INVALID
			}
			slot.Fast = FastOperand{RS1: rs1, RD: rd, Imm: immI(word)}
		} else {
			slot.Bytecode = FUNCTION
			slot.Handler = invalidFloatHandler(word)
		}

	case opStoreFP:
		if opts.FloatEnabled {
			switch funct3 {
			case 2:
				slot.Bytecode = FSW
			case 3:
				slot.Bytecode = FSD
			default:
				slot.Bytecode = INVALID
			}
			slot.Fast = FastOperand{RS1: rs1, RS2: rs2, Imm: immS(word)}
		} else {
			slot.Bytecode = FUNCTION
			slot.Handler = invalidFloatHandler(word)
		}

	case opOpFP:
		funct5 := funct7 >> 2
		if opts.FloatEnabled && funct5 <= 0x03 && funct7&0x3 <= 1 {
			switch funct5 {
			case 0x00:
				slot.Bytecode = FADD
			case 0x01:
				slot.Bytecode = FSUB
			case 0x02:
				slot.Bytecode = FMUL
			case 0x03:
				slot.Bytecode = FDIV
			}
			slot.Fast = FastOperand{RS1: rs1, RS2: rs2, RD: rd}
		} else {
			slot.Bytecode = FUNCTION
			slot.Handler = invalidFloatHandler(word)
		}

	case opImm32:
		slot.Bytecode = FUNCTION
		if opts.XLEN == 64 {
			slot.Handler = opImm32Handler(word)
		} else {
			slot.Handler = unsupportedHandler(word)
		}

	case opOp32:
		slot.Bytecode = FUNCTION
		if opts.XLEN == 64 {
			slot.Handler = op32Handler(word)
		} else {
			slot.Handler = unsupportedHandler(word)
		}

	case opAMO, opVector:
		slot.Bytecode = FUNCTION
		slot.Handler = unsupportedHandler(word)

	case opFMADD, opFMSUB, opFNMSUB, opFNMADD:
		slot.Bytecode = FUNCTION
		slot.Handler = invalidFloatHandler(word)

	default:
		slot.Bytecode = INVALID
	}

	if slot.Bytecode == INVALID && slot.Handler == nil {
		slot.Handler = func(regs *registers.File, mem *memory.Facade, pc uint64) error {
			return &fault.UnknownInstruction{PC: pc, Word: word}
		}
	}

	return slot
}
