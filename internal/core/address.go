// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import "fmt"

// An Address is a location in the inferior's virtual address space.
type Address uint64

func (a Address) Add(x int64) Address {
	return Address(int64(a) + x)
}

func (a Address) Sub(b Address) int64 {
	return int64(a) - int64(b)
}

func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// A LWPID identifies a kernel-visible thread (light-weight process).
// It is distinct from any higher-level thread-library handle.
type LWPID uint64
