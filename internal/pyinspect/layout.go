// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pyinspect implements the interpreter inspector: it locates
// an embedded CPython interpreter's global state inside a target,
// walks the interpreter and thread chains, and recursively decodes the
// interpreter's own object model to render interpreted-level frames,
// and optionally their local variables, from the outside.
//
// Everything here operates on core.Address values; the tool never
// dereferences a target pointer locally.
package pyinspect

// Layout is the set of struct field offsets this package needs to
// decode a CPython process's object model. It is a data table, not
// code, so that another interpreter object-model version can be added
// as a further table. The values below are the 64-bit pre-3.x layout,
// the only one defined; see Select.
type Layout struct {
	PtrSize int64

	// PyObject / PyVarObject header.
	ObRefcnt int64
	ObType   int64 // offset of ob_type within PyObject
	ObSize   int64 // offset of ob_size within PyVarObject (absent for fixed-size objects)

	// PyTypeObject.
	TpName       int64
	TpBasicsize  int64
	TpItemsize   int64
	TpFlags      int64
	TpDictoffset int64

	// PyStringObject.
	StringSval int64

	// PyFloatObject.
	FloatOb_fval int64

	// PyIntObject / PyBoolObject share a layout: a single machine word.
	IntOb_ival int64

	// PyLongObject.
	LongDigit int64
	LongShift uint

	// PyListObject.
	ListItem int64
	ListSize int64 // same slot as ObSize; named separately for clarity at call sites

	// PyDictObject.
	DictMask int64
	DictTable int64
	DictEntrySize int64
	DictEntryKey  int64
	DictEntryValue int64

	// PyModuleObject has no extra fields we read: handled as "<python module>".

	// Classic class / classic instance (pre-3.x only).
	ClassName     int64 // PyClassObject.cl_name
	InstanceClass int64 // PyInstanceObject.in_class
	InstanceDict  int64 // PyInstanceObject.in_dict

	// PyTypeObject (the "type" builtin printer reads tp_name again,
	// named separately here for clarity at call sites).

	// PyCodeObject.
	CodeFilename   int64
	CodeName       int64
	CodeFirstline  int64
	CodeLnotab     int64
	CodeVarnames   int64
	CodeCellvars   int64
	CodeFreevars   int64
	CodeNlocals    int64
	CodeArgcount   int64

	// PyFrameObject.
	FrameCode       int64
	FrameBack       int64
	FrameLasti      int64
	FrameLocals     int64
	FrameLocalsplus int64

	// PyThreadState.
	ThreadNext     int64
	ThreadID       int64
	ThreadFrame    int64

	// PyInterpreterState.
	InterpNext       int64
	InterpTstateHead int64

	// PyTupleObject (used only to decode co_varnames/co_cellvars/co_freevars).
	TupleItem int64

	// tp_flags bit for heap-allocated types.
	HeapTypeFlag uint64
}

// Layout64 is the 64-bit pre-3.x CPython layout, the only version
// shipped initially.
var Layout64 = Layout{
	PtrSize: 8,

	ObRefcnt: 0,
	ObType:   8,
	ObSize:   16,

	TpName:       24,
	TpBasicsize:  32,
	TpItemsize:   40,
	TpFlags:      48,
	TpDictoffset: 56,

	StringSval: 24, // offsetof(PyStringObject, ob_sval)

	FloatOb_fval: 16,

	IntOb_ival: 16,

	LongDigit: 24,
	LongShift: 15,

	ListItem: 24,
	ListSize: 16,

	DictMask:       16,
	DictTable:      24,
	DictEntrySize:  24,
	DictEntryKey:   8,
	DictEntryValue: 16,

	ClassName:     8,
	InstanceClass: 16,
	InstanceDict:  24,

	CodeFilename:  88,
	CodeName:      96,
	CodeFirstline: 104,
	CodeLnotab:    112,
	CodeVarnames:  48,
	CodeCellvars:  64,
	CodeFreevars:  72,
	CodeNlocals:   36,
	CodeArgcount:  28,

	FrameCode:       24,
	FrameBack:       16,
	FrameLasti:      56,
	FrameLocals:     32,
	FrameLocalsplus: 376,

	ThreadNext:  8,
	ThreadID:    152,
	ThreadFrame: 24,

	InterpNext:       0,
	InterpTstateHead: 8,

	TupleItem: 24,

	HeapTypeFlag: 1 << 9, // Py_TPFLAGS_HEAPTYPE
}

// Select returns the layout to decode a target with. Only Layout64
// exists, so Select returns it for every ptrSize and version; it does
// not detect the interpreter version, and Inspect passes an empty one.
func Select(ptrSize int64, version string) Layout {
	return Layout64
}
