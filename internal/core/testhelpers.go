// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import "golang.org/x/debug/arch"

// NewTestProcess builds a Process directly from mem and objs, with no
// live or core-file backing. It exists so sibling packages (unwind,
// pyinspect) can exercise their own logic against a minimal
// AddressSpace without synthesizing a full core file or attaching to a
// real pid.
func NewTestProcess(mem AddressSpace, objs []*MappedObject) *Process {
	return &Process{
		kind:    KindCore,
		mem:     mem,
		arch:    arch.AMD64,
		objects: objs,
		threads: map[LWPID]*ThreadRecord{},
	}
}
