/*
   registers: per-CPU integer, float and PC state.

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

// Package registers holds one guest CPU's architectural state: the integer
// register file, the float register file with its NaN-boxed union views,
// and the program counter. A File is owned exclusively by one machine.Machine
// and is not safe for concurrent use.
package registers

import "math"

// NumInt and NumFloat are the RISC-V register file sizes (RV32I/E share the
// encoding; this port only targets the 32-register I variant).
const (
	NumInt   = 32
	NumFloat = 32
)

// File is the complete architectural register state of one guest CPU.
type File struct {
	X  [NumInt]uint64   // integer registers, x0..x31
	F  [NumFloat]uint64 // float registers, raw 64-bit storage (NaN-boxed for f32)
	PC uint64
}

// Get reads integer register i. x0 always reads as zero.
func (f *File) Get(i uint8) uint64 {
	if i == 0 {
		return 0
	}
	return f.X[i]
}

// Set writes integer register i. Writes to x0 are silently discarded.
func (f *File) Set(i uint8, v uint64) {
	if i == 0 {
		return
	}
	f.X[i] = v
}

// GetFloat32 returns the lower 32 bits of float register i reinterpreted as
// a float32.
func (f *File) GetFloat32(i uint8) float32 {
	return math.Float32frombits(uint32(f.F[i]))
}

// GetFloat64 returns float register i reinterpreted as a float64.
func (f *File) GetFloat64(i uint8) float64 {
	return math.Float64frombits(f.F[i])
}

// SetFloat32 writes the 32-bit view of float register i and NaN-boxes the
// upper 32 bits (sets them to all ones), per the RISC-V F extension.
func (f *File) SetFloat32(i uint8, v float32) {
	f.F[i] = uint64(math.Float32bits(v)) | 0xffffffff00000000
}

// SetFloat64 writes the full 64-bit view of float register i.
func (f *File) SetFloat64(i uint8, v float64) {
	f.F[i] = math.Float64bits(v)
}

// GetFloatRaw32 returns the lower 32 bits of float register i, unconverted.
func (f *File) GetFloatRaw32(i uint8) uint32 {
	return uint32(f.F[i])
}

// SetFloatRaw32 writes the lower 32 bits of float register i as a raw
// bit pattern (e.g. loaded from memory) and NaN-boxes the upper half.
func (f *File) SetFloatRaw32(i uint8, bits uint32) {
	f.F[i] = uint64(bits) | 0xffffffff00000000
}

// SetFloatRaw64 writes float register i as a raw 64-bit bit pattern.
func (f *File) SetFloatRaw64(i uint8, bits uint64) {
	f.F[i] = bits
}

// GetFloatRaw64 returns float register i as a raw 64-bit bit pattern.
func (f *File) GetFloatRaw64(i uint8) uint64 {
	return f.F[i]
}

// Reset clears all registers and PC to zero.
func (f *File) Reset() {
	*f = File{}
}
