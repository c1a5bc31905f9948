// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"golang.org/x/debug/arch"
	"golang.org/x/debug/internal/imagecache"
)

// liveTarget is the live half of a Process: the pid, its ptrace runner,
// and the memory file used for bulk reads.
type liveTarget struct {
	pid    int
	runner *ptraceRunner
	memF   *os.File // /proc/<pid>/mem, opened once and reused across reads
}

// liveMemory implements AddressSpace over /proc/<pid>/mem for bulk
// reads. It falls back to nothing special for single words; ptrace
// PEEKTEXT is only needed on platforms without /proc/<pid>/mem, which
// amd64 Linux is not, so we don't implement that fallback here.
type liveMemory struct {
	f *os.File
}

func (lm *liveMemory) ReadAt(buf []byte, a Address) (int, error) {
	n, err := lm.f.ReadAt(buf, int64(a))
	if n == len(buf) {
		return n, nil
	}
	if err == nil {
		err = ErrShortRead
	} else {
		err = fmt.Errorf("%w: %v", ErrUnmapped, err)
	}
	return n, err
}

func (lm *liveMemory) ReadUint64(a Address) (uint64, error) {
	var b [8]byte
	if _, err := lm.ReadAt(b[:], a); err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b[:]), nil
}

func (lm *liveMemory) ReadUint32(a Address) (uint32, error) {
	var b [4]byte
	if _, err := lm.ReadAt(b[:], a); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b[:]), nil
}

func (lm *liveMemory) ReadCString(a Address, max int) (string, error) {
	var buf []byte
	for len(buf) < max {
		var b [64]byte
		n := len(b)
		if max-len(buf) < n {
			n = max - len(buf)
		}
		if _, err := lm.ReadAt(b[:n], a); err != nil {
			if len(buf) == 0 {
				return "", err
			}
			break
		}
		if i := indexByte(b[:n], 0); i >= 0 {
			return string(append(buf, b[:i]...)), nil
		}
		buf = append(buf, b[:n]...)
		a = a.Add(int64(n))
	}
	return "", ErrNoTerminator
}

// Live attaches to the running process identified by pid and builds the
// Process handle that describes it. The target is not stopped by Live;
// callers acquire a StopScope before reading registers or unwinding.
func Live(pid int, exePath string, cache *imagecache.Cache, log zerolog.Logger) (*Process, error) {
	exe := exePath
	if exe == "" {
		exe = fmt.Sprintf("/proc/%d/exe", pid)
	}
	real, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
	}

	memF, err := os.Open(fmt.Sprintf("/proc/%d/mem", pid))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
	}

	lt := &liveTarget{pid: pid, runner: newPtraceRunner(), memF: memF}
	p := &Process{
		kind:    KindLive,
		cache:   cache,
		threads: map[LWPID]*ThreadRecord{},
		mem:     &liveMemory{f: memF},
		live:    lt,
		log:     log,
	}

	img, err := cache.Open(real)
	if err != nil {
		return nil, err
	}
	p.arch = arch.AMD64
	if ef := img.ELF(); ef != nil {
		p.arch = arch.Lookup(ef.Machine)
	}
	load, err := mainLoadAddress(pid, real)
	if err != nil {
		p.warnings = append(p.warnings, err.Error())
	}
	p.objects = append(p.objects, &MappedObject{Load: load, Path: real, Image: img})

	if err := loadMappedLibraries(p, pid, cache); err != nil {
		p.warnings = append(p.warnings, err.Error())
	}

	if err := refreshLWPs(p); err != nil {
		return nil, err
	}
	return p, nil
}

// mainLoadAddress reads /proc/<pid>/maps for the first mapping backed by
// path, which is the executable's load bias for PIE binaries (0 for
// non-PIE executables since their p_vaddr is absolute).
func mainLoadAddress(pid int, path string) (Address, error) {
	entries, err := readMaps(pid)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.path == path {
			return e.min, nil
		}
	}
	return 0, fmt.Errorf("no mapping found for %s", path)
}

func loadMappedLibraries(p *Process, pid int, cache *imagecache.Cache) error {
	entries, err := readMaps(pid)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, e := range entries {
		if e.path == "" || e.path[0] == '[' || seen[e.path] {
			continue
		}
		seen[e.path] = true
		if e.path == p.objects[0].Path {
			continue
		}
		img, err := cache.Open(e.path)
		if err != nil {
			continue
		}
		p.objects = append(p.objects, &MappedObject{Load: e.min, Path: e.path, Image: img})
	}
	return nil
}

type mapEntry struct {
	min, max Address
	path     string
}

func readMaps(pid int) ([]mapEntry, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	var out []mapEntry
	for _, line := range splitLines(data) {
		fields := splitFields(line)
		if len(fields) < 1 {
			continue
		}
		lo, hi, ok := splitRange(fields[0])
		if !ok {
			continue
		}
		path := ""
		if len(fields) >= 6 {
			path = fields[5]
		}
		out = append(out, mapEntry{min: lo, max: hi, path: path})
	}
	return out, nil
}

func splitRange(s string) (Address, Address, bool) {
	i := indexByte([]byte(s), '-')
	if i < 0 {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseUint(s[:i], 16, 64)
	hi, err2 := strconv.ParseUint(s[i+1:], 16, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return Address(lo), Address(hi), true
}

func splitLines(b []byte) []string {
	var out []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			out = append(out, string(b[start:i]))
			start = i + 1
		}
	}
	return out
}

func splitFields(s string) []string {
	var out []string
	cur := ""
	for _, c := range s {
		if c == ' ' || c == '\t' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(c)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// refreshLWPs enumerates the kernel-visible threads of a live target by
// listing /proc/<pid>/task. It runs once, when Live builds the handle;
// Stop freezes exactly the threads listed then, and the list is not
// refreshed afterwards.
func refreshLWPs(p *Process) error {
	if p.live == nil {
		return nil
	}
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", p.live.pid))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTargetUnavailable, err)
	}
	for _, e := range entries {
		id, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		lwp := LWPID(id)
		if _, ok := p.threads[lwp]; !ok {
			p.threads[lwp] = &ThreadRecord{LWP: lwp}
		}
	}
	return nil
}
