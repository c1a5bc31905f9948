// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"github.com/rs/zerolog"

	"golang.org/x/debug/internal/pstacklog"
)

// ThreadDB is the higher-level thread-database collaborator: typically
// a wrapper around libthread_db, or a language-runtime-aware
// substitute. -t disables it entirely.
type ThreadDB interface {
	Threads(p *Process) ([]ThreadHandle, error)
}

// ThreadHandle is one thread as reported by a ThreadDB implementation.
type ThreadHandle interface {
	LWP() (LWPID, error)
	Regs() (Regs, error)
	Info() (ThreadInfo, error)
}

// EnumerateThreads asks db (when non-nil) for its view of the threads
// first, then fills in any kernel-visible LWP it didn't cover from p's
// own thread list. The result is a set: callers must not rely on its
// order, and a given LWP never appears twice even if both sources
// report it.
func EnumerateThreads(p *Process, db ThreadDB, log zerolog.Logger) ([]*ThreadRecord, error) {
	covered := map[LWPID]bool{}
	var out []*ThreadRecord

	if db != nil {
		handles, err := db.Threads(p)
		if err != nil {
			pid := 0
			if p.live != nil {
				pid = p.live.pid
			}
			pstacklog.ThreadDBUnavailable(log, pid, err)
		} else {
			for _, h := range handles {
				lwp, err := h.LWP()
				if err != nil {
					continue
				}
				regs, err := h.Regs()
				if err != nil {
					// If register retrieval fails, skip the thread entirely rather
					// than recording it with no registers.
					continue
				}
				rec := &ThreadRecord{LWP: lwp, Regs: regs}
				if info, err := h.Info(); err == nil {
					rec.Info = &info
				}
				out = append(out, rec)
				covered[lwp] = true
			}
		}
	}

	for lwp, rec := range p.threads {
		if covered[lwp] {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
