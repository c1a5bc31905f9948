// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyinspect

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/debug/internal/core"
)

// Inspect runs the interpreter pipeline end to end: discover the
// interpreter root, walk interp -> thread -> frame chains, and print
// each thread's Python-level stack to w. It bypasses the native
// unwinder entirely.
func Inspect(w io.Writer, p *core.Process, showArgs bool) error {
	root, err := discover(p)
	if err != nil {
		return err
	}

	layout := Select(int64(p.Arch().PointerSize), "")
	reg := buildRegistry(symbolResolver(p))
	pr := NewPrinter(w, p.Mem(), layout, reg, showArgs)

	tidOff, haveTidOff := pthreadTidOffset(p)

	for interp := root; interp != 0; {
		fmt.Fprintf(w, "---- interpreter @%s ----\n", interp)
		next, err := pr.readWord(interp.Add(layout.InterpNext))
		if err != nil {
			return fmt.Errorf("reading interpreter state: %w", err)
		}
		headVal, err := pr.readWord(interp.Add(layout.InterpTstateHead))
		if err != nil {
			return fmt.Errorf("reading tstate_head: %w", err)
		}

		for t := core.Address(headVal); t != 0; {
			nt, err := printThread(pr, p, t, tidOff, haveTidOff, w)
			if err != nil {
				break
			}
			fmt.Fprintln(w)
			t = nt
		}
		interp = core.Address(next)
	}
	return nil
}

// printThread renders one PyThreadState's header (pthread handle and,
// when resolvable, lwp id) and its frame chain, returning the address of
// the next thread on the interpreter's list.
func printThread(pr *Printer, p *core.Process, addr core.Address, tidOff int64, haveTidOff bool, w io.Writer) (core.Address, error) {
	l := pr.layout
	pthread, err := pr.readWord(addr.Add(l.ThreadID))
	if err != nil {
		return 0, err
	}
	frame, err := pr.readWord(addr.Add(l.ThreadFrame))
	if err != nil {
		return 0, err
	}
	next, err := pr.readWord(addr.Add(l.ThreadNext))
	if err != nil {
		return 0, err
	}

	if pthread != 0 && haveTidOff {
		lwp, err := p.Mem().ReadUint32(core.Address(pthread).Add(tidOff))
		if err == nil {
			fmt.Fprintf(w, "pthread: %#x, lwp %d\n", pthread, lwp)
		} else {
			fmt.Fprintf(w, "pthread: %#x, lwp anonymous\n", pthread)
		}
	} else {
		fmt.Fprint(w, "anonymous thread\n")
	}

	pr.Print(core.Address(frame))
	return core.Address(next), nil
}

// pthreadTidOffsetSymbol is the well-known symbol recording the
// platform-specific byte offset of the tid field inside a pthread
// structure, exported by the interpreter's thread library.
const pthreadTidOffsetSymbol = "_thread_db_pthread_tid"

type tidOffsetResult struct {
	off   int64
	found bool
}

var (
	tidOffsetMu    sync.Mutex
	tidOffsetCache = map[*core.Process]tidOffsetResult{}
)

// pthreadTidOffset reads the three-uint32 descriptor at
// _thread_db_pthread_tid and returns its third element, the tid offset,
// caching the result per Process (batch mode can inspect several
// distinct targets in one run), including caching a failed lookup so we
// don't retry on every thread.
func pthreadTidOffset(p *core.Process) (int64, bool) {
	tidOffsetMu.Lock()
	if r, ok := tidOffsetCache[p]; ok {
		tidOffsetMu.Unlock()
		return r.off, r.found
	}
	tidOffsetMu.Unlock()

	result := findTidOffset(p)
	tidOffsetMu.Lock()
	tidOffsetCache[p] = result
	tidOffsetMu.Unlock()
	return result.off, result.found
}

func findTidOffset(p *core.Process) tidOffsetResult {
	for _, obj := range p.Objects() {
		syms, err := obj.Image.Symbols()
		if err != nil {
			continue
		}
		for _, s := range syms {
			if s.Name != pthreadTidOffsetSymbol {
				continue
			}
			addr := obj.Load.Add(int64(s.Value))
			var desc [3]uint32
			for i := range desc {
				v, err := p.Mem().ReadUint32(addr.Add(int64(i) * 4))
				if err != nil {
					return tidOffsetResult{}
				}
				desc[i] = v
			}
			return tidOffsetResult{off: int64(desc[2]), found: true}
		}
	}
	return tidOffsetResult{}
}

func symbolResolver(p *core.Process) func(name string) (core.Address, bool) {
	return func(name string) (core.Address, bool) {
		for _, obj := range p.Objects() {
			syms, err := obj.Image.Symbols()
			if err != nil {
				continue
			}
			for _, s := range syms {
				if s.Name == name {
					return obj.Load.Add(int64(s.Value)), true
				}
			}
		}
		return 0, false
	}
}
