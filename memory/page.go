/*
   memory: sparse, page-granular guest address space.

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

package memory

import "sync/atomic"

// PageSize is the fixed granularity of guest memory protection and CoW.
const PageSize = 4096

// Attrs are the permission bits carried by a page.
type Attrs struct {
	Read  bool
	Write bool
	Exec  bool
}

// Page is one 4096-byte unit of guest memory. Bytes are held behind a
// pointer so multiple Page values (e.g. across a fork) can share the same
// backing array until one of them writes through it.
type Page struct {
	bytes    *[PageSize]byte
	refcount *atomic.Int32
	Attrs    Attrs
}

func newPage(attrs Attrs) *Page {
	rc := &atomic.Int32{}
	rc.Store(1)
	return &Page{
		bytes:    &[PageSize]byte{},
		refcount: rc,
		Attrs:    attrs,
	}
}

// shared reports whether this page's backing bytes are referenced by more
// than one Page (i.e. a fork has not yet been written through).
func (p *Page) shared() bool {
	return p.refcount.Load() > 1
}

// clone returns a new, uniquely-owned Page with a private copy of the bytes
// and the same attributes, decrementing this page's refcount.
func (p *Page) clone() *Page {
	cp := newPage(p.Attrs)
	*cp.bytes = *p.bytes
	p.refcount.Add(-1)
	return cp
}

// share returns a Page referencing the same backing bytes with the
// refcount incremented, for use by Machine.Fork.
func (p *Page) share() *Page {
	p.refcount.Add(1)
	return &Page{bytes: p.bytes, refcount: p.refcount, Attrs: p.Attrs}
}
