package machine

import (
	"log/slog"
	"math/bits"

	"github.com/mrexodia/libriscv/decoder"
	"github.com/mrexodia/libriscv/fault"
)

// stepOutcome is what one decoded slot's execution tells the dispatch
// loop: either "keep going to the next slot in this block" or "control
// flow left the straight-line sequence, resume at nextPC".
type stepOutcome struct {
	jumped bool
	nextPC uint64
}

// Simulate executes at most maxInstructions guest instructions (fewer if
// the guest halts or faults first) and returns. A returned error is a
// guest-visible fault with PC already written back to Regs.PC; a nil
// return means the budget was exhausted or the guest halted, with Regs.PC
// positioned at the next instruction to execute.
func (m *Machine) Simulate(maxInstructions uint64) error {
	m.Counter.beginWindow(maxInstructions)
	m.Stopped = false
	pc := m.Regs.PC

	seg, err := m.segmentFor(pc)
	if err != nil {
		m.Regs.PC = pc
		m.Counter.Flush()
		return err
	}

	for {
		for {
			slot, ok := seg.SlotFor(pc)
			if !ok {
				break
			}

			// A full block costs one counter update for all of its
			// instructions. When the remaining budget can't cover the
			// whole block, only as many instructions as the budget
			// allows are run, falling out of the block early without
			// crossing into per-instruction bookkeeping for the blocks
			// before or after it.
			fullRun := uint64(slot.IdxEnd) + 1
			toRun := fullRun
			if remaining := m.Counter.Remaining(); remaining < toRun {
				toRun = remaining
			}
			if toRun == 0 {
				m.Regs.PC = pc
				m.Counter.Flush()
				return nil
			}
			m.Counter.Add(toRun)

			cur := pc
			var nextPC uint64
			for ran := uint64(0); ; {
				idx := (cur - seg.Begin) / 4
				s := &seg.Cache[idx]
				if m.Options.VerboseInstructions {
					m.logger.Log(nil, slog.LevelInfo, "step", "pc", cur, "bytecode", s.Bytecode.String())
				}

				outcome, err := m.execute(s, cur)
				if err != nil {
					m.Regs.PC = cur
					m.Counter.Flush()
					return err
				}
				ran++
				if outcome.jumped {
					nextPC = outcome.nextPC
					break
				}
				if ran == toRun {
					nextPC = cur + 4
					break
				}
				cur += 4
			}
			pc = nextPC

			if m.Counter.Overflowed() || m.Stopped {
				m.Regs.PC = pc
				m.Counter.Flush()
				return nil
			}
			if !seg.Contains(pc) {
				break
			}
		}

		// pc fell outside the segment just executed, or never lined up
		// with a decoded slot inside it (a misaligned target, which
		// faults here). This is the execute-segment transition suspension
		// point: flush the live PC and counter, resolve the segment now
		// covering pc, and give the host a chance to rewrite pc before
		// resuming.
		m.Regs.PC = pc
		m.Counter.Flush()
		if pc%4 != 0 {
			return &fault.MisalignedInstruction{PC: pc}
		}

		newSeg, err := m.segmentFor(pc)
		if err != nil {
			return err
		}
		if m.OnSegmentChange != nil && newSeg != seg {
			if rewritten := m.OnSegmentChange(seg, newSeg); rewritten != pc {
				pc = rewritten
				m.Regs.PC = pc
				newSeg, err = m.segmentFor(pc)
				if err != nil {
					return err
				}
			}
		}
		if newSeg != seg {
			m.Mem.InvalidateTLB()
		}
		seg = newSeg
	}
}

func signExtendXLEN(v uint64, xlen int) uint64 {
	if xlen >= 64 {
		return v
	}
	shift := uint(64 - xlen)
	return uint64(int64(v<<shift) >> shift)
}

func (m *Machine) shiftMask() uint32 {
	if m.Options.XLEN == 32 {
		return 0x1f
	}
	return 0x3f
}

// setInt canonicalizes v to the configured register width and writes it to
// rd. Every GPR-producing handler below a register is always expected to
// hold a value sign-extended from its low XLEN bits (RV32 registers are
// implemented as 64-bit storage, but the upper half is never significant),
// so a result computed with ordinary 64-bit Go arithmetic is only correct
// once it passes through here.
func (m *Machine) setInt(rd uint8, v uint64) {
	m.Regs.Set(rd, signExtendXLEN(v, m.Options.XLEN))
}

// unsigned returns the zero-extended XLEN-width view of v: v itself on
// RV64, or just its low 32 bits on RV32. DIVU/REMU/SLTU/SLTIU and the
// logical right shifts need this rather than the raw sign-extended
// register value, since treating a negative 32-bit pattern's sign-extended
// storage as a plain 64-bit unsigned number would compare or divide against
// the wrong magnitude entirely.
func (m *Machine) unsigned(v uint64) uint64 {
	if m.Options.XLEN == 32 {
		return uint64(uint32(v))
	}
	return v
}

// execute runs one decoded slot and reports whether control flow left the
// straight-line sequence. pc is this slot's true address (the inner
// dispatch loop tracks it per instruction for simplicity; only the block
// terminator's address and the counter are the values amortized into the
// machine's persisted state).
func (m *Machine) execute(s *decoder.Slot, pc uint64) (stepOutcome, error) {
	regs := &m.Regs
	f := s.Fast

	switch s.Bytecode {
	case decoder.NOP:
		// no-op

	case decoder.LI:
		m.setInt(f.RD, uint64(f.Imm))

	case decoder.ADDI:
		m.setInt(f.RD, regs.Get(f.RS1)+uint64(f.Imm))
	case decoder.SLTI:
		v := int64(0)
		if int64(regs.Get(f.RS1)) < f.Imm {
			v = 1
		}
		regs.Set(f.RD, uint64(v))
	case decoder.SLTIU:
		v := uint64(0)
		if m.unsigned(regs.Get(f.RS1)) < m.unsigned(uint64(f.Imm)) {
			v = 1
		}
		regs.Set(f.RD, v)
	case decoder.XORI:
		m.setInt(f.RD, regs.Get(f.RS1)^uint64(f.Imm))
	case decoder.ORI:
		m.setInt(f.RD, regs.Get(f.RS1)|uint64(f.Imm))
	case decoder.ANDI:
		m.setInt(f.RD, regs.Get(f.RS1)&uint64(f.Imm))
	case decoder.SLLI:
		shamt := uint32(f.Imm) & m.shiftMask()
		m.setInt(f.RD, regs.Get(f.RS1)<<shamt)
	case decoder.SRLI:
		shamt := uint32(f.Imm) & m.shiftMask()
		m.setInt(f.RD, m.unsigned(regs.Get(f.RS1))>>shamt)
	case decoder.SRAI:
		shamt := uint32(f.Imm) & m.shiftMask()
		m.setInt(f.RD, uint64(int64(regs.Get(f.RS1))>>shamt))

	case decoder.ADD:
		m.setInt(f.RD, regs.Get(f.RS1)+regs.Get(f.RS2))
	case decoder.SUB:
		m.setInt(f.RD, regs.Get(f.RS1)-regs.Get(f.RS2))
	case decoder.SLL:
		shamt := uint32(regs.Get(f.RS2)) & m.shiftMask()
		m.setInt(f.RD, regs.Get(f.RS1)<<shamt)
	case decoder.SLT:
		v := uint64(0)
		if int64(regs.Get(f.RS1)) < int64(regs.Get(f.RS2)) {
			v = 1
		}
		regs.Set(f.RD, v)
	case decoder.SLTU:
		v := uint64(0)
		if m.unsigned(regs.Get(f.RS1)) < m.unsigned(regs.Get(f.RS2)) {
			v = 1
		}
		regs.Set(f.RD, v)
	case decoder.XOR:
		m.setInt(f.RD, regs.Get(f.RS1)^regs.Get(f.RS2))
	case decoder.SRL:
		shamt := uint32(regs.Get(f.RS2)) & m.shiftMask()
		m.setInt(f.RD, m.unsigned(regs.Get(f.RS1))>>shamt)
	case decoder.SRA:
		shamt := uint32(regs.Get(f.RS2)) & m.shiftMask()
		m.setInt(f.RD, uint64(int64(regs.Get(f.RS1))>>shamt))
	case decoder.OR:
		m.setInt(f.RD, regs.Get(f.RS1)|regs.Get(f.RS2))
	case decoder.AND:
		m.setInt(f.RD, regs.Get(f.RS1)&regs.Get(f.RS2))
	case decoder.MUL:
		m.setInt(f.RD, regs.Get(f.RS1)*regs.Get(f.RS2))
	case decoder.MULH:
		m.setInt(f.RD, m.mulh(regs.Get(f.RS1), regs.Get(f.RS2), true, true))
	case decoder.MULHSU:
		m.setInt(f.RD, m.mulh(regs.Get(f.RS1), regs.Get(f.RS2), true, false))
	case decoder.MULHU:
		m.setInt(f.RD, m.mulh(regs.Get(f.RS1), regs.Get(f.RS2), false, false))
	case decoder.DIV:
		a, b := int64(regs.Get(f.RS1)), int64(regs.Get(f.RS2))
		if b == 0 {
			regs.Set(f.RD, ^uint64(0))
		} else if a == minInt64(m.Options.XLEN) && b == -1 {
			m.setInt(f.RD, uint64(a))
		} else {
			m.setInt(f.RD, uint64(a/b))
		}
	case decoder.DIVU:
		a, b := m.unsigned(regs.Get(f.RS1)), m.unsigned(regs.Get(f.RS2))
		if b == 0 {
			regs.Set(f.RD, ^uint64(0))
		} else {
			m.setInt(f.RD, a/b)
		}
	case decoder.REM:
		a, b := int64(regs.Get(f.RS1)), int64(regs.Get(f.RS2))
		if b == 0 {
			m.setInt(f.RD, uint64(a)) // remainder of division by zero is the dividend
		} else if a == minInt64(m.Options.XLEN) && b == -1 {
			regs.Set(f.RD, 0)
		} else {
			m.setInt(f.RD, uint64(a%b))
		}
	case decoder.REMU:
		a, b := m.unsigned(regs.Get(f.RS1)), m.unsigned(regs.Get(f.RS2))
		if b == 0 {
			m.setInt(f.RD, a)
		} else {
			m.setInt(f.RD, a%b)
		}
	case decoder.SH1ADD:
		m.setInt(f.RD, (regs.Get(f.RS1)<<1)+regs.Get(f.RS2))
	case decoder.SH2ADD:
		m.setInt(f.RD, (regs.Get(f.RS1)<<2)+regs.Get(f.RS2))
	case decoder.SH3ADD:
		m.setInt(f.RD, (regs.Get(f.RS1)<<3)+regs.Get(f.RS2))

	case decoder.LUI:
		m.setInt(f.RD, uint64(f.Imm))
	case decoder.AUIPC:
		m.setInt(f.RD, pc+uint64(f.Imm))

	case decoder.LB, decoder.LBU, decoder.LH, decoder.LHU, decoder.LW, decoder.LWU, decoder.LD:
		if err := m.execLoad(s, pc); err != nil {
			return stepOutcome{}, err
		}
	case decoder.SB, decoder.SH, decoder.SW, decoder.SD:
		if err := m.execStore(s, pc); err != nil {
			return stepOutcome{}, err
		}

	case decoder.BEQ, decoder.BNE, decoder.BLT, decoder.BGE, decoder.BLTU, decoder.BGEU:
		taken := m.evalBranch(s.Bytecode, f)
		if taken {
			target := uint64(int64(pc) + f.Imm)
			if target%4 != 0 {
				return stepOutcome{}, &fault.MisalignedInstruction{PC: target}
			}
			return stepOutcome{jumped: true, nextPC: target}, nil
		}
		return stepOutcome{jumped: true, nextPC: pc + 4}, nil

	case decoder.JAL:
		if f.RD != 0 {
			regs.Set(f.RD, pc+4)
		}
		target := uint64(int64(pc) + f.Imm)
		if target%4 != 0 {
			return stepOutcome{}, &fault.MisalignedInstruction{PC: target}
		}
		return stepOutcome{jumped: true, nextPC: target}, nil

	case decoder.JALR:
		link := pc + 4
		target := (regs.Get(f.RS1) + uint64(f.Imm)) &^ 1
		if f.RD != 0 {
			regs.Set(f.RD, link)
		}
		if target%4 != 0 {
			return stepOutcome{}, &fault.MisalignedInstruction{PC: target}
		}
		return stepOutcome{jumped: true, nextPC: target}, nil

	case decoder.SYSCALL, decoder.SYSTEM:
		next, err := m.execSyscall(pc)
		if err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{jumped: true, nextPC: next}, nil

	case decoder.FLW, decoder.FLD:
		if err := m.execFloatLoad(s, pc); err != nil {
			return stepOutcome{}, err
		}
	case decoder.FSW, decoder.FSD:
		if err := m.execFloatStore(s, pc); err != nil {
			return stepOutcome{}, err
		}
	case decoder.FADD, decoder.FSUB, decoder.FMUL, decoder.FDIV:
		m.execFloatArith(s)

	case decoder.FUNCTION, decoder.INVALID:
		if s.Handler == nil {
			return stepOutcome{}, &fault.UnknownInstruction{PC: pc, Word: s.Raw}
		}
		if err := s.Handler(regs, m.Mem, pc); err != nil {
			return stepOutcome{}, err
		}
		if s.Bytecode == decoder.INVALID {
			return stepOutcome{jumped: true, nextPC: pc + 4}, nil
		}
	}

	return stepOutcome{}, nil
}

func minInt64(xlen int) int64 {
	if xlen == 32 {
		return int64(int32(-2147483648))
	}
	return -9223372036854775808
}

// mulh computes the high half of an XLEN x XLEN product: the high 32 bits
// of a 32x32 multiply on RV32, the high 64 bits of a 64x64 multiply on
// RV64. signedA/signedB select, per operand, whether it is the sign- or
// zero-extended view of the register's low XLEN bits, matching MULH (both
// signed), MULHSU (first signed), and MULHU (both unsigned).
func (m *Machine) mulh(a, b uint64, signedA, signedB bool) uint64 {
	if m.Options.XLEN == 32 {
		av, bv := int64(uint32(a)), int64(uint32(b))
		if signedA {
			av = int64(int32(uint32(a)))
		}
		if signedB {
			bv = int64(int32(uint32(b)))
		}
		// A 32x32 product always fits in 64 bits. For two large unsigned
		// operands it exceeds int64 and the multiply below wraps, but the
		// wrapped value has the same low 64 bits, and only bits 32..63 are
		// kept.
		product := av * bv
		return uint64(uint32(product >> 32))
	}

	hi, _ := bits.Mul64(a, b)
	return mulhSignCorrect(hi, a, b, signedA, signedB)
}

// mulhSignCorrect adjusts the unsigned-multiply high word for signed
// operands, per the standard two's-complement MULH correction.
func mulhSignCorrect(hi uint64, a, b uint64, signedA, signedB bool) uint64 {
	if signedA && int64(a) < 0 {
		hi -= b
	}
	if signedB && int64(b) < 0 {
		hi -= a
	}
	return hi
}

func (m *Machine) evalBranch(bc decoder.Bytecode, f decoder.FastOperand) bool {
	a, b := m.Regs.Get(f.RS1), m.Regs.Get(f.RS2)
	switch bc {
	case decoder.BEQ:
		return a == b
	case decoder.BNE:
		return a != b
	case decoder.BLT:
		return int64(a) < int64(b)
	case decoder.BGE:
		return int64(a) >= int64(b)
	case decoder.BLTU:
		return a < b
	case decoder.BGEU:
		return a >= b
	}
	return false
}

func (m *Machine) execLoad(s *decoder.Slot, pc uint64) error {
	f := s.Fast
	addr := m.Regs.Get(f.RS1) + uint64(f.Imm)
	switch s.Bytecode {
	case decoder.LB:
		v, err := m.Mem.ReadU8(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.Set(f.RD, uint64(int64(int8(v))))
	case decoder.LBU:
		v, err := m.Mem.ReadU8(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.Set(f.RD, uint64(v))
	case decoder.LH:
		v, err := m.Mem.ReadU16(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.Set(f.RD, uint64(int64(int16(v))))
	case decoder.LHU:
		v, err := m.Mem.ReadU16(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.Set(f.RD, uint64(v))
	case decoder.LW:
		v, err := m.Mem.ReadU32(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.Set(f.RD, uint64(int64(int32(v))))
	case decoder.LWU:
		if m.Options.XLEN != 64 {
			return &fault.UnknownInstruction{PC: pc, Word: s.Raw}
		}
		v, err := m.Mem.ReadU32(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.Set(f.RD, uint64(v))
	case decoder.LD:
		if m.Options.XLEN != 64 {
			return &fault.UnknownInstruction{PC: pc, Word: s.Raw}
		}
		v, err := m.Mem.ReadU64(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.Set(f.RD, v)
	}
	return nil
}

func (m *Machine) execStore(s *decoder.Slot, pc uint64) error {
	f := s.Fast
	addr := m.Regs.Get(f.RS1) + uint64(f.Imm)
	val := m.Regs.Get(f.RS2)
	switch s.Bytecode {
	case decoder.SB:
		return m.Mem.WriteU8(addr, uint8(val), pc)
	case decoder.SH:
		return m.Mem.WriteU16(addr, uint16(val), pc)
	case decoder.SW:
		return m.Mem.WriteU32(addr, uint32(val), pc)
	case decoder.SD:
		if m.Options.XLEN != 64 {
			return &fault.UnknownInstruction{PC: pc, Word: s.Raw}
		}
		return m.Mem.WriteU64(addr, val, pc)
	}
	return nil
}

func (m *Machine) execSyscall(pc uint64) (uint64, error) {
	m.Regs.PC = pc
	m.Counter.Flush()

	number := m.Regs.Get(A7)
	handler, ok := m.SyscallTable[number]
	var err error
	if ok {
		err = handler(m)
	} else if m.OnUnhandledSyscall != nil {
		err = m.OnUnhandledSyscall(m, number)
	} else {
		err = defaultUnhandledSyscall(m, number)
	}
	if err != nil {
		return 0, err
	}

	if m.Regs.PC != pc {
		return m.Regs.PC, nil
	}
	return pc + 4, nil
}
