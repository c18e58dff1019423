/*
   decoder: raw instruction word to bytecode id translation.

   Copyright (c) 2024, libriscv contributors

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL
   THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING
   FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER
   DEALINGS IN THE SOFTWARE.
*/

// Package decoder turns a raw 32-bit RISC-V instruction word into a
// bytecode id and a pre-decoded operand view, once per word per execute
// segment. Decoding is a pure function of the word (and a few machine
// options); it never touches guest memory or register state.
package decoder

// Bytecode identifies the dispatch-loop handler for one decoded slot.
type Bytecode uint8

const (
	INVALID Bytecode = iota
	NOP

	// Integer immediate arithmetic.
	LI // addi rd, x0, imm
	ADDI
	SLTI
	SLTIU
	XORI
	ORI
	ANDI
	SLLI
	SRLI
	SRAI

	// Integer register arithmetic.
	ADD
	SUB
	SLL
	SLT
	SLTU
	XOR
	SRL
	SRA
	OR
	AND
	MUL
	MULH
	MULHSU
	MULHU
	DIV
	DIVU
	REM
	REMU
	SH1ADD
	SH2ADD
	SH3ADD

	LUI
	AUIPC

	// Loads/stores.
	LB
	LBU
	LH
	LHU
	LW
	LWU
	LD
	SB
	SH
	SW
	SD

	// Control flow.
	BEQ
	BNE
	BLT
	BGE
	BLTU
	BGEU
	JAL
	JALR

	SYSCALL
	SYSTEM

	// Float (only emitted when Options.FloatEnabled).
	FLW
	FLD
	FSW
	FSD
	FADD
	FSUB
	FMUL
	FDIV

	// Generic fallback: RV64I *W ops, AMO, FMA, vector, anything decoded
	// but not specialized.
	FUNCTION
)

func (b Bytecode) String() string {
	switch b {
	case INVALID:
		return "INVALID"
	case NOP:
		return "NOP"
	case LI:
		return "LI"
	case ADDI:
		return "ADDI"
	case SLTI:
		return "SLTI"
	case SLTIU:
		return "SLTIU"
	case XORI:
		return "XORI"
	case ORI:
		return "ORI"
	case ANDI:
		return "ANDI"
	case SLLI:
		return "SLLI"
	case SRLI:
		return "SRLI"
	case SRAI:
		return "SRAI"
	case ADD:
		return "ADD"
	case SUB:
		return "SUB"
	case SLL:
		return "SLL"
	case SLT:
		return "SLT"
	case SLTU:
		return "SLTU"
	case XOR:
		return "XOR"
	case SRL:
		return "SRL"
	case SRA:
		return "SRA"
	case OR:
		return "OR"
	case AND:
		return "AND"
	case MUL:
		return "MUL"
	case MULH:
		return "MULH"
	case MULHSU:
		return "MULHSU"
	case MULHU:
		return "MULHU"
	case DIV:
		return "DIV"
	case DIVU:
		return "DIVU"
	case REM:
		return "REM"
	case REMU:
		return "REMU"
	case SH1ADD:
		return "SH1ADD"
	case SH2ADD:
		return "SH2ADD"
	case SH3ADD:
		return "SH3ADD"
	case LUI:
		return "LUI"
	case AUIPC:
		return "AUIPC"
	case LB:
		return "LB"
	case LBU:
		return "LBU"
	case LH:
		return "LH"
	case LHU:
		return "LHU"
	case LW:
		return "LW"
	case LWU:
		return "LWU"
	case LD:
		return "LD"
	case SB:
		return "SB"
	case SH:
		return "SH"
	case SW:
		return "SW"
	case SD:
		return "SD"
	case BEQ:
		return "BEQ"
	case BNE:
		return "BNE"
	case BLT:
		return "BLT"
	case BGE:
		return "BGE"
	case BLTU:
		return "BLTU"
	case BGEU:
		return "BGEU"
	case JAL:
		return "JAL"
	case JALR:
		return "JALR"
	case SYSCALL:
		return "SYSCALL"
	case SYSTEM:
		return "SYSTEM"
	case FLW:
		return "FLW"
	case FLD:
		return "FLD"
	case FSW:
		return "FSW"
	case FSD:
		return "FSD"
	case FADD:
		return "FADD"
	case FSUB:
		return "FSUB"
	case FMUL:
		return "FMUL"
	case FDIV:
		return "FDIV"
	case FUNCTION:
		return "FUNCTION"
	default:
		return "UNKNOWN"
	}
}

// IsTerminator reports whether a slot carrying this bytecode ends its
// basic block, per the block-building rules: any branch, any unconditional
// jump, a syscall, the generic SYSTEM escape, or an invalid encoding.
func (b Bytecode) IsTerminator() bool {
	switch b {
	case BEQ, BNE, BLT, BGE, BLTU, BGEU, JAL, JALR, SYSCALL, SYSTEM, INVALID:
		return true
	default:
		return false
	}
}
