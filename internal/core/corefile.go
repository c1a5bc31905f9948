// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"golang.org/x/debug/arch"
	"golang.org/x/debug/internal/imagecache"
)

// Core opens coreFile and builds the Process it describes. exePath, if
// non-empty, overrides which executable image supplies symbols and
// debug info (`pstack ./a.out ./core.42`).
func Core(coreFile, exePath string, cache *imagecache.Cache, log zerolog.Logger) (*Process, error) {
	f, err := os.Open(coreFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
	}
	defer f.Close()

	e, err := elf.NewFile(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
	}
	if e.Type != elf.ET_CORE {
		return nil, fmt.Errorf("%s is not a core file", coreFile)
	}

	p := &Process{kind: KindCore, cache: cache, threads: map[LWPID]*ThreadRecord{}, log: log, arch: arch.Lookup(e.Machine)}
	mem := &coreMemory{}
	p.mem = mem

	var order binary.ByteOrder = e.ByteOrder

	var entryPoint Address
	mainExecName := ""
	nameToFile := map[string]*os.File{}

	for _, prog := range e.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		readLoad(mem, f, prog)
	}

	var fileRanges []ntFileRange
	for _, prog := range e.Progs {
		if prog.Type != elf.PT_NOTE {
			continue
		}
		b := make([]byte, prog.Filesz)
		if _, err := f.ReadAt(b, int64(prog.Off)); err != nil {
			return nil, err
		}
		ranges, entry, err := readNotes(p, b, order)
		if err != nil {
			return nil, err
		}
		fileRanges = append(fileRanges, ranges...)
		if entry != 0 {
			entryPoint = entry
		}
	}

	sort.Slice(mem.mappings, func(i, j int) bool { return mem.mappings[i].min < mem.mappings[j].min })

	// Resolve each NT_FILE range to a backing file, opening each mapped
	// path at most once.
	for _, r := range fileRanges {
		backing := nameToFile[r.name]
		if backing == nil && r.name != "" {
			backing, _ = os.Open(r.name)
			nameToFile[r.name] = backing
		}
		isMainExe := mainExecName == "" && entryPoint != 0 && r.min <= entryPoint && entryPoint < r.max
		if isMainExe {
			mainExecName = r.name
			if exePath != "" {
				if bin, err := os.Open(exePath); err == nil {
					backing = bin
				}
			}
		}
		for _, m := range mem.mappings {
			if m.max <= r.min || m.min >= r.max || m.f != nil {
				continue
			}
			m.f = backing
			m.off = r.off + m.min.Sub(r.min)
		}
	}
	if exePath != "" && mainExecName == "" {
		mainExecName = exePath
	}

	// Load mapped file contents into mapping.contents.
	for _, m := range mem.mappings {
		if m.f == nil {
			m.contents = make([]byte, m.Size())
			continue
		}
		buf := make([]byte, m.Size())
		if _, err := m.f.ReadAt(buf, m.off); err != nil {
			p.warnings = append(p.warnings, fmt.Sprintf("missing data at [%s %s]: %v", m.min, m.max, err))
		}
		m.contents = buf
	}

	// Register the main executable (and any other ELF-shaped mapped
	// file) as a MappedObject, lowest load address per path.
	seen := map[string]Address{}
	for name, f := range nameToFile {
		if f == nil {
			continue
		}
		load, ok := seen[name]
		if !ok {
			load = lowestLoad(mem, name, nameToFile)
			seen[name] = load
		}
		img, err := cache.Open(name)
		if err != nil {
			p.warnings = append(p.warnings, fmt.Sprintf("can't open %s: %v", name, err))
			continue
		}
		p.objects = append(p.objects, &MappedObject{Load: load, Path: name, Image: img})
	}

	if exePath != "" {
		img, err := cache.Open(exePath)
		if err == nil {
			p.objects = append(p.objects, &MappedObject{Load: 0, Path: exePath, Image: img})
		}
	}

	return p, nil
}

type ntFileRange struct {
	min, max Address
	off      int64
	name     string
}

func lowestLoad(mem *coreMemory, name string, files map[string]*os.File) Address {
	var min Address = ^Address(0)
	found := false
	for _, m := range mem.mappings {
		if m.f == files[name] {
			if !found || m.min < min {
				min, found = m.min, true
			}
		}
	}
	if !found {
		return 0
	}
	return min
}

func readLoad(mem *coreMemory, f *os.File, prog *elf.Prog) {
	min := Address(prog.Vaddr)
	max := min.Add(int64(prog.Memsz))
	var perm Perm
	if prog.Flags&elf.PF_R != 0 {
		perm |= Read
	}
	if prog.Flags&elf.PF_W != 0 {
		perm |= Write
	}
	if prog.Flags&elf.PF_X != 0 {
		perm |= Exec
	}
	if perm == 0 {
		return
	}
	if prog.Filesz > 0 {
		mem.add(&Mapping{min: min, max: min.Add(int64(prog.Filesz)), perm: perm, f: f, off: int64(prog.Off)})
	}
	if prog.Filesz < prog.Memsz {
		mem.add(&Mapping{min: min.Add(int64(prog.Filesz)), max: max, perm: perm})
	}
}

// readNotes parses a PT_NOTE segment, recording threads (NT_PRSTATUS),
// the entry point (NT_AUXV), and NT_FILE mapped-file ranges.
func readNotes(p *Process, b []byte, order binary.ByteOrder) ([]ntFileRange, Address, error) {
	const ntFile elf.NType = 0x46494c45
	const ntAuxv elf.NType = 0x6

	var ranges []ntFileRange
	var entry Address

	for len(b) >= 12 {
		namesz := order.Uint32(b)
		b = b[4:]
		descsz := order.Uint32(b)
		b = b[4:]
		typ := elf.NType(order.Uint32(b))
		b = b[4:]
		if int(namesz) > len(b) {
			break
		}
		name := string(bytes.TrimRight(b[:namesz], "\x00"))
		b = b[(namesz+3)/4*4:]
		if int(descsz) > len(b) {
			break
		}
		desc := b[:descsz]
		b = b[(descsz+3)/4*4:]

		if name != "CORE" {
			continue
		}
		switch typ {
		case ntFile:
			r, err := parseNTFile(desc, order)
			if err != nil {
				return nil, 0, fmt.Errorf("reading NT_FILE: %w", err)
			}
			ranges = append(ranges, r...)
		case elf.NT_PRSTATUS:
			readPRStatus(p, desc, order)
		case ntAuxv:
			if e, ok := findEntryPoint(desc, order); ok {
				entry = e
			}
		}
	}
	return ranges, entry, nil
}

func parseNTFile(desc []byte, order binary.ByteOrder) ([]ntFileRange, error) {
	if len(desc) < 16 {
		return nil, fmt.Errorf("short NT_FILE descriptor")
	}
	count := order.Uint64(desc)
	desc = desc[8:]
	pagesize := order.Uint64(desc)
	desc = desc[8:]

	if uint64(len(desc)) < 3*8*count {
		return nil, fmt.Errorf("short NT_FILE entry table")
	}
	filenames := string(desc[3*8*count:])
	desc = desc[:3*8*count]

	var out []ntFileRange
	for i := uint64(0); i < count; i++ {
		min := Address(order.Uint64(desc))
		desc = desc[8:]
		max := Address(order.Uint64(desc))
		desc = desc[8:]
		off := int64(order.Uint64(desc) * pagesize)
		desc = desc[8:]

		var name string
		if j := strings.IndexByte(filenames, 0); j >= 0 {
			name, filenames = filenames[:j], filenames[j+1:]
		} else {
			name, filenames = filenames, ""
		}
		out = append(out, ntFileRange{min: min, max: max, off: off, name: name})
	}
	return out, nil
}

func findEntryPoint(desc []byte, order binary.ByteOrder) (Address, bool) {
	const atEntry = 9
	r := bytes.NewReader(desc)
	for {
		var tag, val uint64
		if err := binary.Read(r, order, &tag); err != nil {
			return 0, false
		}
		if err := binary.Read(r, order, &val); err != nil {
			return 0, false
		}
		if tag == 0 {
			return 0, false
		}
		if tag == atEntry {
			return Address(val), true
		}
	}
}

func readPRStatus(p *Process, desc []byte, order binary.ByteOrder) {
	if len(desc) < 112+216 {
		return
	}
	pid := LWPID(order.Uint32(desc[32 : 32+4]))
	reg := desc[112 : 112+216]
	var raw []uint64
	for i := 0; i < len(reg); i += 8 {
		raw = append(raw, order.Uint64(reg[i:]))
	}
	t := &ThreadRecord{LWP: pid}
	t.Regs = decodeAMD64Regs(raw)
	p.threads[pid] = t
}
