// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildNote appends one ELF note (Linux's NT_* convention: name padded
// to 4 bytes, desc padded to 4 bytes) to buf.
func buildNote(buf *bytes.Buffer, order binary.ByteOrder, name string, typ elf.NType, desc []byte) {
	nameBytes := append([]byte(name), 0)
	namesz := uint32(len(nameBytes))
	descsz := uint32(len(desc))

	binary.Write(buf, order, namesz)
	binary.Write(buf, order, descsz)
	binary.Write(buf, order, uint32(typ))

	buf.Write(nameBytes)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	buf.Write(desc)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

func buildPRStatusDesc(order binary.ByteOrder, pid uint32, rip, rsp, rbp uint64) []byte {
	desc := make([]byte, 112+216)
	order.PutUint32(desc[32:36], pid)
	reg := desc[112 : 112+216]
	order.PutUint64(reg[4*8:], rbp)  // word 4
	order.PutUint64(reg[16*8:], rip) // word 16
	order.PutUint64(reg[19*8:], rsp) // word 19
	return desc
}

func buildAuxvDesc(order binary.ByteOrder, entry uint64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, order, uint64(9)) // AT_ENTRY
	binary.Write(&buf, order, entry)
	binary.Write(&buf, order, uint64(0)) // AT_NULL terminator
	binary.Write(&buf, order, uint64(0))
	return buf.Bytes()
}

func buildNTFileDesc(order binary.ByteOrder, pagesize uint64, ranges []ntFileRange) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, order, uint64(len(ranges)))
	binary.Write(&buf, order, pagesize)
	for _, r := range ranges {
		binary.Write(&buf, order, uint64(r.min))
		binary.Write(&buf, order, uint64(r.max))
		binary.Write(&buf, order, uint64(r.off)/pagesize)
	}
	for _, r := range ranges {
		buf.WriteString(r.name)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func TestReadNotes_PRStatusAuxvFile(t *testing.T) {
	order := binary.LittleEndian
	var buf bytes.Buffer
	buildNote(&buf, order, "CORE", elf.NT_PRSTATUS, buildPRStatusDesc(order, 4242, 0x401000, 0x7fff0000, 0x7fff1000))
	buildNote(&buf, order, "CORE", 0x6 /* NT_AUXV */, buildAuxvDesc(order, 0x401000))
	buildNote(&buf, order, "CORE", 0x46494c45 /* NT_FILE */, buildNTFileDesc(order, 0x1000, []ntFileRange{
		{min: 0x400000, max: 0x401000, off: 0, name: "/bin/target"},
	}))

	p := &Process{threads: map[LWPID]*ThreadRecord{}}
	ranges, entry, err := readNotes(p, buf.Bytes(), order)
	require.NoError(t, err)
	require.Equal(t, Address(0x401000), entry)
	require.Len(t, ranges, 1)
	require.Equal(t, "/bin/target", ranges[0].name)
	require.Equal(t, Address(0x400000), ranges[0].min)

	require.Len(t, p.threads, 1)
	rec := p.threads[LWPID(4242)]
	require.NotNil(t, rec)
	require.Equal(t, Address(0x401000), rec.Regs.PC)
	require.Equal(t, Address(0x7fff0000), rec.Regs.SP)
	require.Equal(t, Address(0x7fff1000), rec.Regs.FP)
}

func TestReadNotes_IgnoresNonCoreOwner(t *testing.T) {
	order := binary.LittleEndian
	var buf bytes.Buffer
	buildNote(&buf, order, "LINUX", elf.NT_PRSTATUS, buildPRStatusDesc(order, 1, 0, 0, 0))

	p := &Process{threads: map[LWPID]*ThreadRecord{}}
	_, _, err := readNotes(p, buf.Bytes(), order)
	require.NoError(t, err)
	require.Empty(t, p.threads)
}

func TestParseNTFile_MultipleEntries(t *testing.T) {
	order := binary.LittleEndian
	desc := buildNTFileDesc(order, 0x1000, []ntFileRange{
		{min: 0x1000, max: 0x2000, off: 0, name: "/lib/a.so"},
		{min: 0x2000, max: 0x3000, off: 0x1000, name: "/lib/b.so"},
	})
	ranges, err := parseNTFile(desc, order)
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	require.Equal(t, "/lib/a.so", ranges[0].name)
	require.Equal(t, "/lib/b.so", ranges[1].name)
	require.Equal(t, int64(0x1000), ranges[1].off)
}

func TestParseNTFile_ShortDescriptor(t *testing.T) {
	_, err := parseNTFile([]byte{1, 2, 3}, binary.LittleEndian)
	require.Error(t, err)
}

func TestFindEntryPoint(t *testing.T) {
	order := binary.LittleEndian
	desc := buildAuxvDesc(order, 0x555000)
	entry, ok := findEntryPoint(desc, order)
	require.True(t, ok)
	require.Equal(t, Address(0x555000), entry)
}

func TestFindEntryPoint_NoEntryTag(t *testing.T) {
	order := binary.LittleEndian
	var buf bytes.Buffer
	binary.Write(&buf, order, uint64(11)) // AT_UID, irrelevant tag
	binary.Write(&buf, order, uint64(1000))
	binary.Write(&buf, order, uint64(0)) // AT_NULL
	binary.Write(&buf, order, uint64(0))
	_, ok := findEntryPoint(buf.Bytes(), order)
	require.False(t, ok)
}

func TestReadLoad_SplitsFileAndAnonPortions(t *testing.T) {
	mem := &coreMemory{}
	prog := &elf.Prog{ProgHeader: elf.ProgHeader{
		Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_W,
		Vaddr: 0x10000, Off: 0x1000, Filesz: 0x1000, Memsz: 0x2000,
	}}
	readLoad(mem, nil, prog)
	require.Len(t, mem.mappings, 2)
	require.Equal(t, Address(0x10000), mem.mappings[0].min)
	require.Equal(t, Address(0x11000), mem.mappings[0].max)
	require.Equal(t, Address(0x11000), mem.mappings[1].min)
	require.Equal(t, Address(0x12000), mem.mappings[1].max)
	require.Nil(t, mem.mappings[1].f)
}

func TestReadLoad_NoPermsSkipped(t *testing.T) {
	mem := &coreMemory{}
	prog := &elf.Prog{ProgHeader: elf.ProgHeader{
		Type: elf.PT_LOAD, Flags: 0,
		Vaddr: 0x10000, Off: 0, Filesz: 0x1000, Memsz: 0x1000,
	}}
	readLoad(mem, nil, prog)
	require.Empty(t, mem.mappings)
}
