package machine

import "github.com/mrexodia/libriscv/fault"

// SyscallHandler services one guest system call. It reads arguments from
// m.Regs (a0..a6, i.e. x10..x16) and writes its return value to a0; it may
// call m.Halt to stop the guest or m.SetMaxInstructions for cooperative
// cancellation.
type SyscallHandler func(m *Machine) error

// SyscallTable maps a7 (the syscall number) to its handler.
type SyscallTable map[uint64]SyscallHandler

func defaultUnhandledSyscall(m *Machine, number uint64) error {
	return &fault.SystemCallFailed{Number: number, PC: m.Regs.PC}
}

// A0 through A7 are the integer register indices carrying syscall
// arguments and the call number, per the standard RISC-V calling
// convention.
const (
	A0 = 10
	A1 = 11
	A2 = 12
	A3 = 13
	A4 = 14
	A5 = 15
	A6 = 16
	A7 = 17
)
