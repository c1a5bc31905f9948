// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyinspect

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/debug/internal/core"
)

func testRegistry() *Registry {
	return &Registry{
		byType: map[core.Address]printerEntry{
			dictTypeAddr:   {fn: dictPrint, dedup: true},
			stringTypeAddr: {fn: stringPrint, dedup: false},
			listTypeAddr:   {fn: listPrint, dedup: true},
			intTypeAddr:    {fn: intPrint, dedup: false},
		},
		heap: printerEntry{fn: heapPrint, dedup: true},
	}
}

const (
	dictTypeAddr   core.Address = 0x2000
	stringTypeAddr core.Address = 0x2100
	listTypeAddr   core.Address = 0x2200
	intTypeAddr    core.Address = 0x2300
	noneTypeAddr   core.Address = 0x2400
)

func putPyObjectHeader(b []byte, refcnt int64, typ core.Address, obSize int64, l Layout) {
	putWord(b, l.ObRefcnt, uint64(refcnt), l.PtrSize)
	putWord(b, l.ObType, uint64(typ), l.PtrSize)
	putWord(b, l.ObSize, uint64(obSize), l.PtrSize)
}

func putTypeObject(b []byte, name core.Address, basicsize, itemsize, flags, dictoffset int64, l Layout) {
	putWord(b, l.TpName, uint64(name), l.PtrSize)
	putWord(b, l.TpBasicsize, uint64(basicsize), l.PtrSize)
	putWord(b, l.TpItemsize, uint64(itemsize), l.PtrSize)
	putWord(b, l.TpFlags, uint64(flags), l.PtrSize)
	putWord(b, l.TpDictoffset, uint64(dictoffset), l.PtrSize)
}

func putString(mem *fakeMem, addr core.Address, typeAddr core.Address, s string, l Layout) {
	buf := make([]byte, l.StringSval+int64(len(s)))
	putPyObjectHeader(buf, 1, typeAddr, int64(len(s)), l)
	copy(buf[l.StringSval:], s)
	mem.put(addr, buf)
}

func TestDictPrint_CycleDedup(t *testing.T) {
	l := Layout64
	mem := newFakeMem()

	// Type objects.
	mem.put(dictTypeAddr, func() []byte {
		b := make([]byte, 64)
		putTypeObject(b, 0, 32, 0, 0, 0, l)
		return b
	}())
	mem.put(stringTypeAddr, func() []byte {
		b := make([]byte, 64)
		putTypeObject(b, 0, l.StringSval, 1, 0, 0, l)
		return b
	}())

	const dictAddr core.Address = 0x1000
	const tableAddr core.Address = 0x3000
	const keyAddr core.Address = 0x4000

	putString(mem, keyAddr, stringTypeAddr, "self", l)

	// Dict object: header + mask(offset16) + table ptr(offset24).
	dictBuf := make([]byte, 32)
	putPyObjectHeader(dictBuf, 1, dictTypeAddr, 0, l)
	putWord(dictBuf, l.DictMask, 0, l.PtrSize) // mask=0 -> 1 slot
	putWord(dictBuf, l.DictTable, uint64(tableAddr), l.PtrSize)
	mem.put(dictAddr, dictBuf)

	// One entry: key="self", value=dictAddr (the cycle).
	entry := make([]byte, l.DictEntrySize)
	putWord(entry, l.DictEntryKey, uint64(keyAddr), l.PtrSize)
	putWord(entry, l.DictEntryValue, uint64(dictAddr), l.PtrSize)
	mem.put(tableAddr, entry)

	var out bytes.Buffer
	pr := NewPrinter(&out, mem, l, testRegistry(), false)
	pr.Print(dictAddr)

	got := out.String()
	require.Contains(t, got, "\"self\": (already seen)")
}

func TestListPrint_TruncatesAt100(t *testing.T) {
	l := Layout64
	mem := newFakeMem()

	mem.put(listTypeAddr, func() []byte {
		b := make([]byte, 64)
		putTypeObject(b, 0, l.ListItem, l.PtrSize, 0, 0, l)
		return b
	}())
	mem.put(intTypeAddr, func() []byte {
		b := make([]byte, 64)
		putTypeObject(b, 0, l.IntOb_ival+8, 0, 0, 0, l)
		return b
	}())

	const listAddr core.Address = 0x5000
	const n = 150
	items := make([]core.Address, n)
	for i := range items {
		addr := core.Address(0x6000 + i*32)
		items[i] = addr
		b := make([]byte, l.IntOb_ival+8)
		putPyObjectHeader(b, 1, intTypeAddr, 0, l)
		putWord(b, l.IntOb_ival, uint64(i), l.PtrSize)
		mem.put(addr, b)
	}

	listBuf := make([]byte, l.ListItem+int64(n)*l.PtrSize)
	putPyObjectHeader(listBuf, 1, listTypeAddr, n, l)
	for i, addr := range items {
		putWord(listBuf, l.ListItem+int64(i)*l.PtrSize, uint64(addr), l.PtrSize)
	}
	mem.put(listAddr, listBuf)

	var out bytes.Buffer
	pr := NewPrinter(&out, mem, l, testRegistry(), false)
	pr.Print(listAddr)

	got := out.String()
	// One "list:" header line, then one line per printed element.
	count := strings.Count(got, "\n") - 1
	require.LessOrEqual(t, count, 100)
	require.Contains(t, got, "0\n")
	require.NotContains(t, got, "149\n") // truncated away, never visited
}

func TestPrint_DeadObject(t *testing.T) {
	l := Layout64
	mem := newFakeMem()
	const addr core.Address = 0x7000
	b := make([]byte, 32)
	putPyObjectHeader(b, 0, dictTypeAddr, 0, l) // refcnt 0
	mem.put(addr, b)

	var out bytes.Buffer
	pr := NewPrinter(&out, mem, l, testRegistry(), false)
	pr.Print(addr)
	require.Equal(t, "(dead object)", out.String())
}

func TestPrint_NoneType(t *testing.T) {
	l := Layout64
	mem := newFakeMem()
	const nameAddr core.Address = 0x8100
	mem.put(nameAddr, []byte("NoneType\x00"))

	typeBuf := make([]byte, 64)
	putTypeObject(typeBuf, nameAddr, 16, 0, 0, 0, l)
	mem.put(noneTypeAddr, typeBuf)

	const objAddr core.Address = 0x8000
	objBuf := make([]byte, 24)
	putPyObjectHeader(objBuf, 1, noneTypeAddr, 0, l)
	mem.put(objAddr, objBuf)

	var out bytes.Buffer
	pr := NewPrinter(&out, mem, l, testRegistry(), false)
	pr.Print(objAddr)
	require.Equal(t, "None", out.String())
}

func TestLineForLasti_BeforeFirstEntry(t *testing.T) {
	l := Layout64
	mem := newFakeMem()
	const lnotabAddr core.Address = 0x9000
	// lnotab bytes: addr+=6, line+=1; so first table entry is at instruction 6.
	mem.put(lnotabAddr.Add(l.StringSval), []byte{6, 1})

	pr := NewPrinter(nil, mem, l, testRegistry(), false)
	got := lineForLasti(pr, lnotabAddr, 2, 10, 0) // f_lasti=0 < 6
	require.Equal(t, int64(10), got)
}
