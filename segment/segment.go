/*
   segment: immutable views of guest-executable memory paired with their
   decoder caches.

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

// Package segment builds and holds the one-time decoder cache for a
// contiguous range of guest-executable memory: an execute segment.
package segment

import (
	"encoding/binary"

	"github.com/mrexodia/libriscv/decoder"
	"github.com/mrexodia/libriscv/fault"
)

// DefaultMaxBlockLength bounds a basic block's slot count when nothing else
// terminates it first, keeping the per-block O(1) bookkeeping step cheap.
const DefaultMaxBlockLength = 128

// Segment is an immutable (bytes, begin, end) triple plus its decoder
// cache, indexed by (pc-Begin)/4.
type Segment struct {
	Bytes []byte
	Begin uint64
	End   uint64
	Cache []decoder.Slot
}

// Build decodes every word in bytes once, grouping slots into basic blocks
// terminated by a branch, jump, syscall, generic SYSTEM, invalid encoding,
// or maxBlockLength slots, whichever comes first. bytes must be a multiple
// of 4 in length and begin must be 4-byte aligned.
func Build(bytes []byte, begin uint64, opts decoder.Options, maxBlockLength int) (*Segment, error) {
	if begin%4 != 0 {
		return nil, &fault.InvalidProgram{Reason: "execute segment base is not 4-byte aligned"}
	}
	if len(bytes)%4 != 0 {
		return nil, &fault.InvalidProgram{Reason: "execute segment length is not a multiple of 4"}
	}
	if maxBlockLength <= 0 {
		maxBlockLength = DefaultMaxBlockLength
	}

	n := len(bytes) / 4
	cache := make([]decoder.Slot, n)
	blockStart := 0
	for i := 0; i < n; i++ {
		word := binary.LittleEndian.Uint32(bytes[i*4 : i*4+4])
		cache[i] = decoder.Decode(word, opts)

		blockLen := i - blockStart + 1
		atEnd := i == n-1
		if cache[i].Bytecode.IsTerminator() || blockLen >= maxBlockLength || atEnd {
			for j := blockStart; j <= i; j++ {
				cache[j].IdxEnd = uint32(i - j)
			}
			blockStart = i + 1
		}
	}

	return &Segment{
		Bytes: bytes,
		Begin: begin,
		End:   begin + uint64(len(bytes)),
		Cache: cache,
	}, nil
}

// SlotFor returns the decoded slot at pc, if pc falls within this segment
// and is 4-byte aligned.
func (s *Segment) SlotFor(pc uint64) (*decoder.Slot, bool) {
	if pc < s.Begin || pc >= s.End || pc%4 != 0 {
		return nil, false
	}
	idx := (pc - s.Begin) / 4
	return &s.Cache[idx], true
}

// Contains reports whether pc falls within [Begin, End), independent of
// alignment.
func (s *Segment) Contains(pc uint64) bool {
	return pc >= s.Begin && pc < s.End
}
