/*
   fault: structured guest-visible errors surfaced to the host.

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

// Package fault defines the uniform set of guest-visible faults that unwind
// the dispatch loop back to the host. Each kind is its own struct
// implementing error, so a caller can errors.As into the concrete type
// instead of string-matching.
package fault

import "fmt"

// ProtectionKind identifies which attribute was missing on a page access.
type ProtectionKind int

const (
	Read ProtectionKind = iota
	Write
	Exec
)

func (k ProtectionKind) String() string {
	switch k {
	case Read:
		return "read"
	case Write:
		return "write"
	case Exec:
		return "exec"
	default:
		return "unknown"
	}
}

// ProtectionFault is raised when a guest access hits a mapped page lacking
// the attribute the access requires.
type ProtectionFault struct {
	Addr uint64
	Kind ProtectionKind
	PC   uint64
}

func (f *ProtectionFault) Error() string {
	return fmt.Sprintf("protection fault: %s access to 0x%x at pc=0x%x", f.Kind, f.Addr, f.PC)
}

// MissingPage is raised when a guest access targets an address with no page
// mapped at all.
type MissingPage struct {
	Addr uint64
	PC   uint64
}

func (f *MissingPage) Error() string {
	return fmt.Sprintf("missing page at 0x%x (pc=0x%x)", f.Addr, f.PC)
}

// MisalignedInstruction is raised when control flow lands on a PC not
// aligned to the instruction stride (4 bytes; 2 when compressed encodings
// are supported, which this port does not implement).
type MisalignedInstruction struct {
	PC uint64
}

func (f *MisalignedInstruction) Error() string {
	return fmt.Sprintf("misaligned instruction fetch at pc=0x%x", f.PC)
}

// UnknownInstruction is raised by the default INVALID handler.
type UnknownInstruction struct {
	PC   uint64
	Word uint32
}

func (f *UnknownInstruction) Error() string {
	return fmt.Sprintf("unknown instruction 0x%08x at pc=0x%x", f.Word, f.PC)
}

// ExecutionSpaceProtected is raised when control flow lands on a PC with no
// executable mapping and no execute segment can be built for it.
type ExecutionSpaceProtected struct {
	PC uint64
}

func (f *ExecutionSpaceProtected) Error() string {
	return fmt.Sprintf("execution space protected at pc=0x%x", f.PC)
}

// DeepRecursion is raised by collaborators (e.g. a decoder-cache builder
// walking a pathologically long block) that want to bail out rather than
// blow the host stack. The core engine does not recurse, but the fault kind
// is kept stable for callers that build on top of it.
type DeepRecursion struct {
	PC uint64
}

func (f *DeepRecursion) Error() string {
	return fmt.Sprintf("deep recursion detected at pc=0x%x", f.PC)
}

// OutOfMemory is raised when a page allocation would exceed Options.MemoryMax.
type OutOfMemory struct {
	Requested uint64
	Max       uint64
}

func (f *OutOfMemory) Error() string {
	return fmt.Sprintf("out of memory: requested 0x%x exceeds max 0x%x", f.Requested, f.Max)
}

// InvalidProgram is raised for static configuration errors: an
// unsupported XLEN, a page asked to be both writable and executable when
// Options.AllowWriteExecSegment is false, or a malformed image.
type InvalidProgram struct {
	Reason string
}

func (f *InvalidProgram) Error() string {
	return "invalid program: " + f.Reason
}

// SystemCallFailed is raised by the default OnUnhandledSyscall when the
// host has not registered a handler for the requested call number.
type SystemCallFailed struct {
	Number uint64
	PC     uint64
}

func (f *SystemCallFailed) Error() string {
	return fmt.Sprintf("unhandled syscall %d at pc=0x%x", f.Number, f.PC)
}
