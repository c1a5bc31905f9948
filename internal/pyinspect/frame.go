// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyinspect

import (
	"fmt"

	"golang.org/x/debug/internal/core"
)

// framePrint reads the frame's code object, computes the source line via
// the line-number table, emits "<func> in <file>:<line>", optionally
// decodes fastlocals/cells/freevars, and returns f_back so the top-level
// walk iterates outward without recursing.
func framePrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	l := pr.layout
	codeAddr := addrAt(buf, l.FrameCode, l.PtrSize)
	fLasti := i64At(buf, l.FrameLasti, l.PtrSize)

	if codeAddr != 0 {
		code, err := readCode(pr, codeAddr)
		if err == nil {
			line := lineForLasti(pr, code.lnotab, code.lnotabLen, code.firstline, fLasti)
			funcName, _ := pr.mem.ReadCString(code.name.Add(pr.layout.StringSval), 256)
			fileName, _ := pr.mem.ReadCString(code.filename.Add(pr.layout.StringSval), 4096)
			fmt.Fprintf(pr.w, "%s%s in %s:%d\n", pr.prefix(), funcName, fileName, line)

			if pr.showArgs {
				pr.depth++
				flocals := objAddr.Add(l.FrameLocalsplus)
				printTupleVars(pr, code.varnames, flocals, "fastlocals", code.nlocals)
				flocals = flocals.Add(code.nlocals * l.PtrSize)

				cellCount := tupleLen(pr, code.cellvars)
				printTupleVars(pr, code.cellvars, flocals, "cells", cellCount)
				flocals = flocals.Add(cellCount * l.PtrSize)

				freeCount := tupleLen(pr, code.freevars)
				printTupleVars(pr, code.freevars, flocals, "freevars", freeCount)
				pr.depth--
			}
		}
	}

	fLocals := addrAt(buf, l.FrameLocals, l.PtrSize)
	if pr.showArgs && fLocals != 0 {
		pr.depth++
		fmt.Fprintf(pr.w, "%slocals:\n", pr.prefix())
		pr.Print(fLocals)
		pr.depth--
	}

	return addrAt(buf, l.FrameBack, l.PtrSize)
}

type codeObj struct {
	filename, name            core.Address
	firstline                 int64
	lnotab                    core.Address
	lnotabLen                 int64
	varnames, cellvars, freevars core.Address
	nlocals                   int64
}

func readCode(pr *Printer, addr core.Address) (codeObj, error) {
	l := pr.layout
	var c codeObj
	var err error
	get := func(off int64) core.Address {
		v, e := pr.readWord(addr.Add(off))
		if e != nil {
			err = e
		}
		return core.Address(v)
	}
	c.filename = get(l.CodeFilename)
	c.name = get(l.CodeName)
	c.varnames = get(l.CodeVarnames)
	c.cellvars = get(l.CodeCellvars)
	c.freevars = get(l.CodeFreevars)
	c.lnotab = get(l.CodeLnotab)
	fl, e := pr.readWord(addr.Add(l.CodeFirstline))
	if e != nil {
		err = e
	}
	c.firstline = int64(int32(fl))
	nl, e := pr.readWord(addr.Add(l.CodeNlocals))
	if e != nil {
		err = e
	}
	c.nlocals = int64(int32(nl))
	if err != nil {
		return codeObj{}, err
	}
	// lnotab is itself a PyStringObject; its length is ob_size.
	sz, err := pr.readWord(c.lnotab.Add(l.ObSize))
	if err != nil {
		return codeObj{}, err
	}
	c.lnotabLen = int64(int32(sz))
	return c, nil
}

// lineForLasti reimplements PyCode_Addr2Line's loop exactly: initialize
// line=firstlineno, addr=0; walk byte pairs (delta-addr, delta-line)
// from lnotab, adding delta-addr first and stopping as soon as addr
// exceeds lasti, only then adding the paired delta-line. When lasti is
// less than the first table entry, firstlineno is returned unchanged.
func lineForLasti(pr *Printer, lnotab core.Address, lnotabLen int64, firstline int64, lasti int64) int64 {
	if lnotabLen <= 0 {
		return firstline
	}
	data := make([]byte, lnotabLen)
	if _, err := pr.mem.ReadAt(data, lnotab.Add(pr.layout.StringSval)); err != nil {
		return firstline
	}
	line := firstline
	var addr int64
	for i := 0; i+1 < len(data); i += 2 {
		addr += int64(data[i])
		if addr > lasti {
			break
		}
		line += int64(data[i+1])
	}
	return line
}

// tupleLen reads a PyTupleObject's ob_size (used for cellvars/freevars
// counts, which the frame doesn't otherwise carry).
func tupleLen(pr *Printer, tupleAddr core.Address) int64 {
	if tupleAddr == 0 {
		return 0
	}
	v, err := pr.readWord(tupleAddr.Add(pr.layout.ObSize))
	if err != nil {
		return 0
	}
	return int64(int32(v))
}

// printTupleVars decodes one of co_varnames/co_cellvars/co_freevars
// (namesAddr, a PyTupleObject) paired with the frame's local-value slots
// starting at valuesAddr, emitting "name=value" pairs under a
// "<type>:" header. maxVars caps the pairs read from the names tuple;
// per DESIGN.md's open-question decision this is tightened to maxDepth
// rather than left effectively unbounded.
func printTupleVars(pr *Printer, namesAddr, valuesAddr core.Address, kind string, maxVars int64) int64 {
	if namesAddr == 0 || maxVars <= 0 {
		return 0
	}
	if maxVars > maxDepth {
		maxVars = maxDepth
	}
	n := tupleLen(pr, namesAddr)
	if n > maxVars {
		n = maxVars
	}
	if n <= 0 {
		return 0
	}

	fmt.Fprintf(pr.w, "%s%s:\n", pr.prefix(), kind)
	pr.depth++
	for i := int64(0); i < n; i++ {
		nameAddr, err := pr.readWord(namesAddr.Add(pr.layout.TupleItem + i*pr.layout.PtrSize))
		if err != nil {
			break
		}
		valAddr, err := pr.readWord(valuesAddr.Add(i * pr.layout.PtrSize))
		if err != nil {
			break
		}
		fmt.Fprint(pr.w, pr.prefix())
		pr.Print(core.Address(nameAddr))
		fmt.Fprint(pr.w, "=")
		pr.Print(core.Address(valAddr))
		fmt.Fprint(pr.w, "\n")
	}
	pr.depth--
	return n
}
