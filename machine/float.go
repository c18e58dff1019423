package machine

import "github.com/mrexodia/libriscv/decoder"

// fpFormatDouble reports whether the fmt field (bits 26:25 of the OP-FP
// encoding) selects double precision. Single is fmt==0, double is fmt==1;
// the other two encodings (quad, half) are out of scope and never route
// here since the decoder only emits FADD/FSUB/FMUL/FDIV for fmt 0 and 1.
func fpFormatDouble(raw uint32) bool {
	return (raw>>25)&0x3 == 1
}

func (m *Machine) execFloatLoad(s *decoder.Slot, pc uint64) error {
	f := s.Fast
	addr := m.Regs.Get(f.RS1) + uint64(f.Imm)
	switch s.Bytecode {
	case decoder.FLW:
		v, err := m.Mem.ReadU32(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.SetFloatRaw32(f.RD, v)
	case decoder.FLD:
		v, err := m.Mem.ReadU64(addr, pc)
		if err != nil {
			return err
		}
		m.Regs.SetFloatRaw64(f.RD, v)
	}
	return nil
}

func (m *Machine) execFloatStore(s *decoder.Slot, pc uint64) error {
	f := s.Fast
	addr := m.Regs.Get(f.RS1) + uint64(f.Imm)
	switch s.Bytecode {
	case decoder.FSW:
		return m.Mem.WriteU32(addr, m.Regs.GetFloatRaw32(f.RS2), pc)
	case decoder.FSD:
		return m.Mem.WriteU64(addr, m.Regs.GetFloatRaw64(f.RS2), pc)
	}
	return nil
}

func (m *Machine) execFloatArith(s *decoder.Slot) {
	f := s.Fast
	double := fpFormatDouble(s.Raw)

	if double {
		a, b := m.Regs.GetFloat64(f.RS1), m.Regs.GetFloat64(f.RS2)
		var r float64
		switch s.Bytecode {
		case decoder.FADD:
			r = a + b
		case decoder.FSUB:
			r = a - b
		case decoder.FMUL:
			r = a * b
		case decoder.FDIV:
			r = a / b
		}
		m.Regs.SetFloat64(f.RD, r)
		return
	}

	a, b := m.Regs.GetFloat32(f.RS1), m.Regs.GetFloat32(f.RS2)
	var r float32
	switch s.Bytecode {
	case decoder.FADD:
		r = a + b
	case decoder.FSUB:
		r = a - b
	case decoder.FMUL:
		r = a * b
	case decoder.FDIV:
		r = a / b
	}
	m.Regs.SetFloat32(f.RD, r)
}
