// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package core provides the target-memory I/O, process attach/stop, and
// thread enumeration primitives shared by the live and post-mortem
// inspection pipelines. There's nothing interpreter-specific here; see
// ../pyinspect for the layer that walks a hosted interpreter's object
// model on top of this one.
package core

import (
	"encoding/binary"
	"errors"

	"github.com/rs/zerolog"

	"golang.org/x/debug/arch"
	"golang.org/x/debug/internal/imagecache"
)

var byteOrder binary.ByteOrder = binary.LittleEndian

// Error kinds returned by AddressSpace implementations and the higher
// level process pipeline.
var (
	ErrUnmapped        = errors.New("unmapped read")
	ErrShortRead       = errors.New("short read")
	ErrNoTerminator     = errors.New("string not terminated within bound")
	ErrTargetUnavailable = errors.New("target unavailable")
)

// AddressSpace is a read-only view of a target's memory. Implementations
// must never return a short read silently: a read that cannot be
// completed in full returns an error.
type AddressSpace interface {
	ReadAt(buf []byte, a Address) (int, error)
	ReadUint64(a Address) (uint64, error)
	ReadUint32(a Address) (uint32, error)
	ReadCString(a Address, max int) (string, error)
}

// ReadStruct decodes a fixed-size record at address a field by field,
// through explicit offsets rather than a host-struct cast, since the
// target's ABI layout need not match the host's. T's decode is supplied
// by dec, which is handed the raw bytes read from the target.
func ReadStruct[T any](as AddressSpace, a Address, size int, dec func([]byte) T) (T, error) {
	buf := make([]byte, size)
	if _, err := as.ReadAt(buf, a); err != nil {
		var zero T
		return zero, err
	}
	return dec(buf), nil
}

// Kind distinguishes a live, ptrace-attached target from a post-mortem
// core file.
type Kind int

const (
	KindLive Kind = iota
	KindCore
)

// A Process is the immutable-after-construction handle to an inspected
// target: a target-memory view, the set of mapped objects found in
// it, and the threads discovered in it. Process is not safe for
// concurrent use by multiple inspections, but concurrent read-only
// AddressSpace access is.
type Process struct {
	kind Kind
	mem  AddressSpace
	arch arch.Architecture

	objects []*MappedObject
	cache   *imagecache.Cache

	threads map[LWPID]*ThreadRecord

	live *liveTarget // nil for KindCore

	warnings []string
	log      zerolog.Logger
}

// A MappedObject is an executable or shared-library image loaded into the
// target at some load address.
type MappedObject struct {
	Load  Address
	Path  string
	Image *imagecache.Image

	debug    *imagecache.DebugInfo
	debugErr error
	debugSet bool
}

// DebugInfo lazily loads (and caches on the Process's image cache) the
// debug information for m.
func (p *Process) DebugInfo(m *MappedObject) (*imagecache.DebugInfo, error) {
	if m.debugSet {
		return m.debug, m.debugErr
	}
	m.debug, m.debugErr = p.cache.DebugInfo(m.Image)
	m.debugSet = true
	return m.debug, m.debugErr
}

func (p *Process) Kind() Kind               { return p.kind }
func (p *Process) Objects() []*MappedObject { return p.objects }
func (p *Process) Warnings() []string       { return p.warnings }
func (p *Process) Mem() AddressSpace        { return p.mem }
func (p *Process) Arch() arch.Architecture  { return p.arch }

// ObjectAt returns the mapped object covering address a, preferring the
// most recently appended (most recently loaded) object when more than
// one covers the same address.
func (p *Process) ObjectAt(a Address) *MappedObject {
	var found *MappedObject
	for _, m := range p.objects {
		size := m.Image.Size()
		if a >= m.Load && a < m.Load.Add(size) {
			found = m // later entries overwrite earlier ones
		}
	}
	return found
}
