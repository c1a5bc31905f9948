// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pstack inspects a live process or a post-mortem core file and
// prints the native (and, with -p, interpreted Python) call stack of
// each of its threads.
package main

import "os"

// Exit codes, BSD sysexits values; defined here rather than imported
// from a sysexits package since nothing in the dependency set provides
// one.
const (
	exUsage    = 64
	exSoftware = 70
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
