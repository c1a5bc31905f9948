// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"os"
	"strings"
)

// A Mapping represents a contiguous subset of the target's address space,
// as seen in a core file's program headers.
type Mapping struct {
	min  Address
	max  Address
	perm Perm

	f   *os.File // file backing this region (core file or a mapped shared object)
	off int64    // offset of start of this mapping in f

	// For regions originally backed by a file but now present verbatim in
	// the core file (typically because they became copy-on-write), this is
	// the stale original data source, kept only for reporting.
	origF   *os.File
	origOff int64

	contents []byte // contents of f at offset off, length max-min
}

func (m *Mapping) Min() Address  { return m.min }
func (m *Mapping) Max() Address  { return m.max }
func (m *Mapping) Size() int64   { return m.max.Sub(m.min) }
func (m *Mapping) Perm() Perm    { return m.perm }

func (m *Mapping) Source() (string, int64) {
	if m.f == nil {
		return "", 0
	}
	return m.f.Name(), m.off
}

func (m *Mapping) CopyOnWrite() bool {
	return m.origF != nil
}

func (m *Mapping) OrigSource() (string, int64) {
	if m.origF == nil {
		return "", 0
	}
	return m.origF.Name(), m.origOff
}

// A Perm represents the permissions allowed for a Mapping.
type Perm uint8

const (
	Read Perm = 1 << iota
	Write
	Exec
)

func (p Perm) String() string {
	var a [3]string
	b := a[:0]
	if p&Read != 0 {
		b = append(b, "Read")
	}
	if p&Write != 0 {
		b = append(b, "Write")
	}
	if p&Exec != 0 {
		b = append(b, "Exec")
	}
	if len(b) == 0 {
		b = append(b, "None")
	}
	return strings.Join(b, "|")
}

// We assume that OS pages are at least 4K. Every mapping starts and ends
// on a 4K boundary, so a 5-level radix tree over the remaining 52 bits
// gives O(1) address->mapping lookup without a single giant array.
type pageTable0 [1 << 10]*Mapping
type pageTable1 [1 << 10]*pageTable0
type pageTable2 [1 << 10]*pageTable1
type pageTable3 [1 << 10]*pageTable2
type pageTable4 [1 << 12]*pageTable3

// coreMemory is the AddressSpace implementation backed by a core file's
// loadable segments.
type coreMemory struct {
	mappings  []*Mapping
	pageTable pageTable4
}

func (cm *coreMemory) find(a Address) *Mapping {
	t3 := cm.pageTable[a>>52]
	if t3 == nil {
		return nil
	}
	t2 := t3[a>>42%(1<<10)]
	if t2 == nil {
		return nil
	}
	t1 := t2[a>>32%(1<<10)]
	if t1 == nil {
		return nil
	}
	t0 := t1[a>>22%(1<<10)]
	if t0 == nil {
		return nil
	}
	return t0[a>>12%(1<<10)]
}

func (cm *coreMemory) index(m *Mapping) {
	for a := m.min; a < m.max; a += 1 << 12 {
		i3 := a >> 52
		t3 := cm.pageTable[i3]
		if t3 == nil {
			t3 = new(pageTable3)
			cm.pageTable[i3] = t3
		}
		i2 := a >> 42 % (1 << 10)
		t2 := t3[i2]
		if t2 == nil {
			t2 = new(pageTable2)
			t3[i2] = t2
		}
		i1 := a >> 32 % (1 << 10)
		t1 := t2[i1]
		if t1 == nil {
			t1 = new(pageTable1)
			t2[i1] = t1
		}
		i0 := a >> 22 % (1 << 10)
		t0 := t1[i0]
		if t0 == nil {
			t0 = new(pageTable0)
			t1[i0] = t0
		}
		t0[a>>12%(1<<10)] = m
	}
}

// add appends m to the mapping list and indexes it for lookup. Overlapping
// mappings added later win, matching the "most recent load wins" tie-break.
func (cm *coreMemory) add(m *Mapping) {
	cm.mappings = append(cm.mappings, m)
	cm.index(m)
}

func (cm *coreMemory) ReadAt(buf []byte, a Address) (int, error) {
	n := 0
	for len(buf) > 0 {
		m := cm.find(a)
		// find works at page granularity, so a mapping that starts or ends
		// inside a page is also returned for addresses just outside it.
		if m == nil || m.perm&Read == 0 || a < m.min || a >= m.max {
			if n > 0 {
				return n, ErrShortRead
			}
			return 0, ErrUnmapped
		}
		c := m.max.Sub(a)
		k := int64(len(buf))
		if k > c {
			k = c
		}
		copy(buf[:k], m.contents[a.Sub(m.min):a.Sub(m.min)+k])
		buf = buf[k:]
		a = a.Add(k)
		n += int(k)
	}
	return n, nil
}

func (cm *coreMemory) ReadUint64(a Address) (uint64, error) {
	var b [8]byte
	if _, err := cm.ReadAt(b[:], a); err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b[:]), nil
}

func (cm *coreMemory) ReadUint32(a Address) (uint32, error) {
	var b [4]byte
	if _, err := cm.ReadAt(b[:], a); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b[:]), nil
}

func (cm *coreMemory) ReadCString(a Address, max int) (string, error) {
	var buf []byte
	for len(buf) < max {
		var b [64]byte
		n := len(b)
		if max-len(buf) < n {
			n = max - len(buf)
		}
		if _, err := cm.ReadAt(b[:n], a); err != nil {
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

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
