// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions used when
// decoding mapped memory and registers for a target.
package arch

import (
	"debug/elf"
	"encoding/binary"
)

// Architecture describes the word sizes and byte order of a target
// machine, the handful of facts the rest of the tool needs in order to
// decode that target's memory without assuming it matches the host.
type Architecture struct {
	Name string
	// IntSize is the size of a word-sized integer (C long on LP64
	// targets), in bytes.
	IntSize int
	// PointerSize is the size of a pointer, in bytes.
	PointerSize int
	// ByteOrder is the byte order for ints and pointers.
	ByteOrder binary.ByteOrder
}

var AMD64 = Architecture{
	Name:        "amd64",
	IntSize:     8,
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

// Lookup maps an ELF e_machine value to the Architecture a target built
// for that machine uses, for pointer-size and byte-order purposes.
// Register and thread decoding elsewhere in the tool is amd64-only, so
// Lookup has nothing to switch on yet; it takes the machine value to
// keep that call site stable if another architecture is ever wired in.
func Lookup(m elf.Machine) Architecture {
	return AMD64
}
