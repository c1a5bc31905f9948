// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyinspect

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/debug/internal/core"
)

// The per-type printer contracts below format one object kind each.
// Each reads only from buf (the object's already-fetched bytes) plus
// whatever extra remote reads its contract requires (strings, nested
// objects); none of them re-read the object header, since Printer.Print
// already validated it.

func wordAt(buf []byte, off int64, ptrSize int64) uint64 {
	if off < 0 || off+ptrSize > int64(len(buf)) {
		return 0
	}
	if ptrSize == 4 {
		return uint64(binary.LittleEndian.Uint32(buf[off:]))
	}
	return binary.LittleEndian.Uint64(buf[off:])
}

func addrAt(buf []byte, off int64, ptrSize int64) core.Address {
	return core.Address(wordAt(buf, off, ptrSize))
}

func i64At(buf []byte, off int64, ptrSize int64) int64 {
	return int64(wordAt(buf, off, ptrSize))
}

// stringPrint emits a PyStringObject's contents within quotes.
func stringPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	size := i64At(buf, pr.layout.ObSize, pr.layout.PtrSize)
	s, err := pr.readString(objAddr.Add(pr.layout.StringSval), size)
	if err != nil {
		fmt.Fprint(pr.w, "(print failed)")
		return 0
	}
	fmt.Fprintf(pr.w, "\"%s\"", s)
	return 0
}

// floatPrint emits a PyFloatObject's numeric value.
func floatPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	bits := wordAt(buf, pr.layout.FloatOb_fval, 8)
	fmt.Fprint(pr.w, math.Float64frombits(bits))
	return 0
}

// intPrint emits a PyIntObject's signed value.
func intPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	fmt.Fprint(pr.w, i64At(buf, pr.layout.IntOb_ival, pr.layout.PtrSize))
	return 0
}

// boolPrint emits "True"/"False".
func boolPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	if i64At(buf, pr.layout.IntOb_ival, pr.layout.PtrSize) != 0 {
		fmt.Fprint(pr.w, "True")
	} else {
		fmt.Fprint(pr.w, "False")
	}
	return 0
}

// longPrint emits sum(digit[i] << (shift*i)) for i in [0, ob_size).
func longPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	n := i64At(buf, pr.layout.ObSize, pr.layout.PtrSize)
	var value int64
	for i := int64(0); i < n; i++ {
		// Digits are 32-bit regardless of pointer size in CPython's long repr.
		off := pr.layout.LongDigit + i*4
		if off+4 > int64(len(buf)) {
			break
		}
		digit := int64(binary.LittleEndian.Uint32(buf[off:]))
		value += digit << (pr.layout.LongShift * uint(i))
	}
	fmt.Fprint(pr.w, value)
	return 0
}

// modulePrint emits the fixed "<python module>" marker.
func modulePrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	fmt.Fprint(pr.w, "<python module>")
	return 0
}

// classPrint emits "<class" + recursed class name + ">".
func classPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	fmt.Fprint(pr.w, "<class")
	nameAddr := addrAt(buf, pr.layout.ClassName, pr.layout.PtrSize)
	pr.Print(nameAddr)
	fmt.Fprint(pr.w, ">")
	return 0
}

// listPrint emits up to 100 elements, one per line, each recursed at
// increased indent.
func listPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	n := i64At(buf, pr.layout.ListSize, pr.layout.PtrSize)
	if n > 100 {
		n = 100
	}
	fmt.Fprintf(pr.w, "%slist:\n", pr.prefix())
	pr.depth++
	for i := int64(0); i < n; i++ {
		off := pr.layout.ListItem + i*pr.layout.PtrSize
		elem := addrAt(buf, off, pr.layout.PtrSize)
		fmt.Fprint(pr.w, pr.prefix())
		pr.Print(elem)
		fmt.Fprint(pr.w, "\n")
	}
	pr.depth--
	return 0
}

// instancePrint emits the class (recursed) then the instance dict
// (recursed), matching PyInstanceObject's layout.
func instancePrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	fmt.Fprintf(pr.w, "%sclass:\n", pr.prefix())
	classAddr := addrAt(buf, pr.layout.InstanceClass, pr.layout.PtrSize)
	pr.Print(classAddr)
	fmt.Fprint(pr.w, "\n")
	fmt.Fprintf(pr.w, "%sdict:\n", pr.prefix())
	dictAddr := addrAt(buf, pr.layout.InstanceDict, pr.layout.PtrSize)
	pr.depth++
	pr.Print(dictAddr)
	pr.depth--
	return 0
}

// dictPrint emits up to 50 non-empty slots "key: value", each recursed.
func dictPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	mask := i64At(buf, pr.layout.DictMask, pr.layout.PtrSize)
	tableAddr := addrAt(buf, pr.layout.DictTable, pr.layout.PtrSize)

	limit := mask + 1
	if limit > 50 {
		limit = 50
	}
	entrySize := pr.layout.DictEntrySize
	entryBuf := make([]byte, entrySize)
	for i := int64(0); i < limit; i++ {
		addr := tableAddr.Add(i * entrySize)
		if _, err := pr.mem.ReadAt(entryBuf, addr); err != nil {
			continue
		}
		key := addrAt(entryBuf, pr.layout.DictEntryKey, pr.layout.PtrSize)
		if key == 0 {
			continue
		}
		val := addrAt(entryBuf, pr.layout.DictEntryValue, pr.layout.PtrSize)
		fmt.Fprint(pr.w, pr.prefix())
		pr.Print(key)
		fmt.Fprint(pr.w, ": ")
		pr.Print(val)
		fmt.Fprint(pr.w, "\n")
	}
	return 0
}

// typePrint emits `type :"<name>"`.
func typePrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	nameAddr := addrAt(buf, pr.layout.TpName, pr.layout.PtrSize)
	name, err := pr.mem.ReadCString(nameAddr, 256)
	if err != nil {
		fmt.Fprint(pr.w, "(print failed)")
		return 0
	}
	fmt.Fprintf(pr.w, "type :\"%s\"", name)
	return 0
}

// heapPrint is the fallback for heap-allocated (Py_TPFLAGS_HEAPTYPE)
// types: emits the type name, and if the type carries instance-dict
// storage, recurses into the dict at tp_dictoffset. Returning 0 here
// even after recursing is intentional: the top-level loop only chains
// on a non-zero address.
func heapPrint(pr *Printer, buf []byte, typeAddr, objAddr core.Address) core.Address {
	name, err := pr.readTypeName(typeAddr)
	if err != nil {
		fmt.Fprint(pr.w, "(print failed)")
		return 0
	}
	fmt.Fprint(pr.w, name)

	dictOff, err := pr.readWord(typeAddr.Add(pr.layout.TpDictoffset))
	if err == nil && int64(dictOff) > 0 {
		fmt.Fprint(pr.w, "\n")
		pr.depth++
		dictAddr, err := pr.readWord(objAddr.Add(int64(dictOff)))
		if err == nil {
			pr.Print(core.Address(dictAddr))
		}
		pr.depth--
		fmt.Fprint(pr.w, "\n")
	}
	return 0
}
