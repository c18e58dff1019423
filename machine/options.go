/*
   machine: threaded-dispatch interpreter over a decoded execute segment.

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

// Package machine ties the register file, memory facade and execute
// segments together into a runnable guest CPU.
package machine

import (
	"github.com/mrexodia/libriscv/fault"
	"github.com/mrexodia/libriscv/segment"
)

// Options configures a Machine at construction time. The zero value is
// usable: RV64, no float, no memory arena, a 128-slot block cap.
type Options struct {
	// MemoryMax caps total resident guest bytes across the page store and
	// arena combined; 0 means unbounded.
	MemoryMax uint64
	// UseMemoryArena enables the contiguous fast-path allocation for the
	// low end of the address space.
	UseMemoryArena bool
	// ArenaSize sizes the arena when UseMemoryArena is set. 0 selects a
	// 4 MiB default.
	ArenaSize uint64
	// AllowWriteExecSegment permits a page to carry both Write and Exec.
	// Off by default: SetPageAttrs rejects the combination.
	AllowWriteExecSegment bool
	// VerboseInstructions enables per-instruction slog tracing.
	VerboseInstructions bool
	// DecoderRewriterEnabled is passed to the decoder but has no effect:
	// the packed fast operand view is always populated and always used.
	DecoderRewriterEnabled bool
	// FloatEnabled decodes F/D load/store/basic-arithmetic to direct
	// bytecodes instead of the generic fallback.
	FloatEnabled bool
	// XLEN is 32 or 64. 0 defaults to 64.
	XLEN int
	// MaxBlockLength caps a basic block's slot count. 0 selects
	// segment.DefaultMaxBlockLength.
	MaxBlockLength int
}

// Validate fills in defaults and rejects unsupported configuration.
func (o *Options) Validate() error {
	if o.XLEN == 0 {
		o.XLEN = 64
	}
	if o.XLEN != 32 && o.XLEN != 64 {
		return &fault.InvalidProgram{Reason: "unsupported XLEN (only 32 and 64 are implemented)"}
	}
	if o.MaxBlockLength == 0 {
		o.MaxBlockLength = segment.DefaultMaxBlockLength
	}
	if o.ArenaSize == 0 {
		o.ArenaSize = 4 << 20
	}
	return nil
}
