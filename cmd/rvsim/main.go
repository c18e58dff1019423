/*
   rvsim: a minimal flag-driven harness for the machine package.

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

// Command rvsim loads a flat RISC-V binary at a fixed address and runs it
// to completion or to its instruction budget, whichever comes first. It
// exists to exercise the machine package end to end; it does not parse
// ELF, has no debugger, and understands exactly one syscall (exit).
package main

import (
	"fmt"
	"os"

	"github.com/pborman/getopt/v2"

	"github.com/mrexodia/libriscv/machine"
)

func main() {
	var (
		loadAddr  = getopt.Uint64Long("addr", 'a', 0x1000, "guest address to load the flat binary at")
		maxInstrs = getopt.Uint64Long("max-instructions", 'n', 1_000_000, "instruction budget")
		memoryMax = getopt.Uint64Long("memory-max", 'm', 64<<20, "guest memory cap in bytes")
		xlen      = getopt.IntLong("xlen", 'x', 64, "register width: 32 or 64")
		verbose   = getopt.BoolLong("verbose", 'v', "trace every retired instruction")
		useArena  = getopt.BoolLong("arena", 0, "use the contiguous memory arena fast path")
	)
	getopt.SetParameters("<flat-binary>")
	getopt.Parse()

	args := getopt.Args()
	if len(args) != 1 {
		getopt.Usage()
		os.Exit(2)
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvsim:", err)
		os.Exit(1)
	}

	m, err := machine.NewMachine(machine.Options{
		MemoryMax:           *memoryMax,
		UseMemoryArena:      *useArena,
		XLEN:                *xlen,
		VerboseInstructions: *verbose,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rvsim:", err)
		os.Exit(1)
	}

	m.SyscallTable[93] = func(m *machine.Machine) error {
		code := m.Regs.Get(machine.A0)
		m.Halt(fmt.Sprintf("exit(%d)", code))
		return nil
	}

	if err := m.LoadFlat(*loadAddr, image); err != nil {
		fmt.Fprintln(os.Stderr, "rvsim:", err)
		os.Exit(1)
	}

	if err := m.Simulate(*maxInstrs); err != nil {
		fmt.Fprintln(os.Stderr, "rvsim: fault:", err)
		os.Exit(1)
	}

	if m.Stopped {
		fmt.Printf("rvsim: halted (%s) after %d instructions\n", m.StopReason, m.Executed())
	} else {
		fmt.Printf("rvsim: instruction budget exhausted after %d instructions, pc=0x%x\n",
			m.Executed(), m.Regs.PC)
	}
}
