// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyinspect

import "golang.org/x/debug/internal/core"

// printerFunc renders the object whose raw bytes are buf (basicsize +
// any variable-length tail already read) and may return a non-zero
// continuation address, used only by the frame printer to chain to the
// caller's frame without increasing recursion depth.
type printerFunc func(pr *Printer, buf []byte, typeAddr core.Address, objAddr core.Address) (next core.Address)

// printerEntry pairs a printer with its dedup-on-cycle flag. We use a Go
// map + function values rather than an interface hierarchy, since each
// variant's rendering logic really is just a distinct func.
type printerEntry struct {
	fn    printerFunc
	dedup bool
}

// Registry resolves a target type-descriptor address to its printer,
// built once per interpreter-inspector run during initialization.
type Registry struct {
	byType  map[core.Address]printerEntry
	heap    printerEntry
}

// builtinTypeNames is the fixed set of interpreter type descriptors
// whose target addresses the registry resolves at initialization.
// Each is looked up by symbol name in the interpreter image.
var builtinTypeNames = map[string]printerEntry{
	"PyString_Type": {fn: stringPrint, dedup: false},
	"PyDict_Type":   {fn: dictPrint, dedup: true},
	"PyLong_Type":   {fn: longPrint, dedup: false},
	"PyFrame_Type":  {fn: framePrint, dedup: true},
	"PyInt_Type":    {fn: intPrint, dedup: false},
	"PyType_Type":   {fn: typePrint, dedup: false},
	"PyBool_Type":   {fn: boolPrint, dedup: false},
	"PyInstance_Type": {fn: instancePrint, dedup: true},
	"PyModule_Type": {fn: modulePrint, dedup: false},
	"PyClass_Type":  {fn: classPrint, dedup: false},
	"PyList_Type":   {fn: listPrint, dedup: true},
	"PyFloat_Type":  {fn: floatPrint, dedup: false},
}

// buildRegistry resolves each builtin type descriptor's target address
// via sym (the interpreter image's symbol table) and associates it with
// its printer and dedup flag.
func buildRegistry(sym func(name string) (core.Address, bool)) *Registry {
	reg := &Registry{byType: map[core.Address]printerEntry{}, heap: printerEntry{fn: heapPrint, dedup: true}}
	for name, entry := range builtinTypeNames {
		if addr, ok := sym(name); ok {
			reg.byType[addr] = entry
		}
	}
	return reg
}

func (r *Registry) lookup(typeAddr core.Address) (printerEntry, bool) {
	e, ok := r.byType[typeAddr]
	return e, ok
}
