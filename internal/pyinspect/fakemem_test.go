// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyinspect

import (
	"encoding/binary"

	"golang.org/x/debug/internal/core"
)

// fakeMem is a byte-addressable scratch AddressSpace for exercising the
// recursive printer without a real target.
type fakeMem struct {
	mem map[core.Address][]byte // one entry per object, starting at its address
}

func newFakeMem() *fakeMem {
	return &fakeMem{mem: map[core.Address][]byte{}}
}

func (f *fakeMem) put(addr core.Address, b []byte) {
	f.mem[addr] = b
}

func (f *fakeMem) ReadAt(buf []byte, a core.Address) (int, error) {
	for base, b := range f.mem {
		if a >= base && int(a-base)+len(buf) <= len(b) {
			off := int(a - base)
			copy(buf, b[off:off+len(buf)])
			return len(buf), nil
		}
	}
	return 0, core.ErrUnmapped
}

func (f *fakeMem) ReadUint64(a core.Address) (uint64, error) {
	var b [8]byte
	if _, err := f.ReadAt(b[:], a); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (f *fakeMem) ReadUint32(a core.Address) (uint32, error) {
	var b [4]byte
	if _, err := f.ReadAt(b[:], a); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (f *fakeMem) ReadCString(a core.Address, max int) (string, error) {
	for i := 0; i < max; i++ {
		var b [1]byte
		if _, err := f.ReadAt(b[:], a.Add(int64(i))); err != nil {
			return "", err
		}
		if b[0] == 0 {
			var out [256]byte
			n, _ := f.ReadAt(out[:i], a)
			return string(out[:n]), nil
		}
	}
	return "", core.ErrNoTerminator
}

func putWord(b []byte, off int64, v uint64, ptrSize int64) {
	if ptrSize == 4 {
		binary.LittleEndian.PutUint32(b[off:], uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(b[off:], v)
}
