// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyinspect

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/debug/internal/core"
)

// maxDepth is the hard recursion cap on object printing.
const maxDepth = 10000

// maxObjectSize is the clamp on a variable-length object's declared
// size: ob_size negative or over this is refused, not read.
const maxObjectSize = 65536

// indentPool is a fixed-length whitespace pool sliced to produce
// indentation without recomputing strings per level.
var indentPool = strings.Repeat(" ", 4*maxDepthIndentLevels)

const maxDepthIndentLevels = 256 // deeper levels just reuse the full pool

// Printer is one inspection run's mutable print state: its output
// sink, the registry of type printers, the set of addresses already
// visited (for dedup-on-cycle types), and the current indentation
// depth. Inspect uses a single Printer for every interpreter and thread
// it walks, so the visited set spans the whole run; it is discarded
// afterwards and never escapes it.
type Printer struct {
	w        io.Writer
	mem      core.AddressSpace
	layout   Layout
	reg      *Registry
	showArgs bool

	visited map[core.Address]bool
	depth   int
}

// NewPrinter creates a Printer bound to mem for the duration of one
// inspection run.
func NewPrinter(w io.Writer, mem core.AddressSpace, layout Layout, reg *Registry, showArgs bool) *Printer {
	return &Printer{w: w, mem: mem, layout: layout, reg: reg, showArgs: showArgs, visited: map[core.Address]bool{}}
}

func (pr *Printer) prefix() string {
	n := 4 * pr.depth
	if n > len(indentPool) {
		n = len(indentPool)
	}
	return indentPool[:n]
}

// Print implements the recursive object printer.
func (pr *Printer) Print(addr core.Address) {
	if pr.depth > maxDepth {
		fmt.Fprint(pr.w, "too deep")
		return
	}
	pr.depth++
	defer func() { pr.depth-- }()

	for addr != 0 {
		hdr, err := pr.readHeader(addr)
		if err != nil {
			fmt.Fprint(pr.w, "(print failed)")
			return
		}
		if hdr.refcnt == 0 {
			fmt.Fprint(pr.w, "(dead object)")
			return
		}

		entry, known := pr.reg.lookup(hdr.typeAddr)
		tpName := ""
		if !known {
			var err error
			tpName, err = pr.readTypeName(hdr.typeAddr)
			if err != nil {
				fmt.Fprint(pr.w, "(print failed)")
				return
			}
			if tpName == "NoneType" {
				fmt.Fprint(pr.w, "None")
				return
			}
			heapFlags, err := pr.readTypeFlags(hdr.typeAddr)
			if err == nil && heapFlags&pr.layout.HeapTypeFlag != 0 {
				entry = pr.reg.heap
				known = true
			}
		}
		if !known {
			fmt.Fprintf(pr.w, "%s unprintable-type-%s@%s", addr, tpName, hdr.typeAddr)
			return
		}

		if entry.dedup {
			if pr.visited[addr] {
				fmt.Fprint(pr.w, "(already seen)")
				return
			}
			pr.visited[addr] = true
		}

		basic, item, err := pr.readSizes(hdr.typeAddr)
		if err != nil {
			fmt.Fprint(pr.w, "(print failed)")
			return
		}
		var full int64
		if item != 0 {
			if hdr.size > maxObjectSize || hdr.size < 0 {
				fmt.Fprintf(pr.w, "(skip massive object %d)", hdr.size)
				return
			}
			full = basic + item*hdr.size
		} else {
			full = basic
		}
		if full < 0 || full > maxObjectSize {
			fmt.Fprintf(pr.w, "(skip massive object %d)", full)
			return
		}

		buf := make([]byte, full)
		if _, err := pr.mem.ReadAt(buf, addr); err != nil {
			fmt.Fprint(pr.w, "(print failed)")
			return
		}

		next := entry.fn(pr, buf, hdr.typeAddr, addr)
		if next == 0 {
			return
		}
		addr = next // tail iteration at step 6, not increased depth
	}
}

type objHeader struct {
	refcnt   int64
	typeAddr core.Address
	size     int64 // ob_size, meaningful only for variable-length objects
}

func (pr *Printer) readHeader(addr core.Address) (objHeader, error) {
	l := pr.layout
	var h objHeader
	refcnt, err := pr.readWord(addr.Add(l.ObRefcnt))
	if err != nil {
		return h, err
	}
	typ, err := pr.readWord(addr.Add(l.ObType))
	if err != nil {
		return h, err
	}
	sz, err := pr.readWord(addr.Add(l.ObSize))
	if err != nil {
		return h, err
	}
	h.refcnt = int64(refcnt)
	h.typeAddr = core.Address(typ)
	h.size = int64(sz)
	return h, nil
}

func (pr *Printer) readWord(addr core.Address) (uint64, error) {
	if pr.layout.PtrSize == 4 {
		v, err := pr.mem.ReadUint32(addr)
		return uint64(v), err
	}
	return pr.mem.ReadUint64(addr)
}

func (pr *Printer) readTypeName(typeAddr core.Address) (string, error) {
	nameAddr, err := pr.readWord(typeAddr.Add(pr.layout.TpName))
	if err != nil {
		return "", err
	}
	return pr.mem.ReadCString(core.Address(nameAddr), 256)
}

func (pr *Printer) readTypeFlags(typeAddr core.Address) (uint64, error) {
	return pr.readWord(typeAddr.Add(pr.layout.TpFlags))
}

func (pr *Printer) readSizes(typeAddr core.Address) (basic, item int64, err error) {
	b, err := pr.readWord(typeAddr.Add(pr.layout.TpBasicsize))
	if err != nil {
		return 0, 0, err
	}
	i, err := pr.readWord(typeAddr.Add(pr.layout.TpItemsize))
	if err != nil {
		return 0, 0, err
	}
	return int64(b), int64(i), nil
}

// readString reads a PyStringObject's contents given its object address.
func (pr *Printer) readString(addr core.Address, size int64) (string, error) {
	buf := make([]byte, size)
	if _, err := pr.mem.ReadAt(buf, addr); err != nil {
		return "", err
	}
	return string(buf), nil
}
