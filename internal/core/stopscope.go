// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/debug/internal/pstacklog"
)

// A StopScope is a scoped freeze: while it is held, every thread of a
// live target is frozen, so registers and memory observed through the
// Process are coherent with one instant. For a core target,
// Stop and Release are no-ops, since the target is already frozen
// forever.
//
// Release must run on every exit path, including delivery of a
// termination signal to pstack itself; callers should defer it
// immediately after a successful Stop.
type StopScope struct {
	proc        *Process
	stopped     []LWPID
	sigC        chan os.Signal
	done        chan struct{}
	releaseOnce sync.Once
}

// Stop freezes every known thread of p. If any thread fails to stop,
// Stop rolls back the threads it did manage to freeze before returning
// the error, so a failed Stop never leaves the target partially frozen.
func (p *Process) Stop() (*StopScope, error) {
	if p.kind == KindCore {
		return &StopScope{proc: p}, nil
	}
	s := &StopScope{proc: p, sigC: make(chan os.Signal, 1), done: make(chan struct{})}

	for lwp := range p.threads {
		if err := p.live.runner.attach(lwp); err != nil {
			s.rollback()
			return nil, fmt.Errorf("scope-violation: attach %d: %w", lwp, err)
		}
		// Record lwp as soon as it is attached, so a later failure for it
		// detaches it along with the others.
		s.stopped = append(s.stopped, lwp)
		if err := p.live.runner.wait(lwp); err != nil {
			s.rollback()
			return nil, fmt.Errorf("scope-violation: wait %d: %w", lwp, err)
		}
		regs, err := p.live.runner.getRegs(lwp)
		if err != nil {
			s.rollback()
			return nil, fmt.Errorf("scope-violation: getregs %d: %w", lwp, err)
		}
		p.threads[lwp].Regs = regs
	}

	signal.Notify(s.sigC, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-s.sigC:
			s.Release()
			os.Exit(1)
		case <-s.done:
		}
	}()
	return s, nil
}

// Release resumes every thread this scope stopped. It is idempotent and
// safe to call from both a deferred call and the signal-driven fallback
// goroutine started by Stop.
func (s *StopScope) Release() error {
	if s.proc == nil || s.proc.kind == KindCore {
		return nil
	}

	var firstErr error
	s.releaseOnce.Do(func() {
		close(s.done)
		signal.Stop(s.sigC)

		for _, lwp := range s.stopped {
			if err := s.proc.live.runner.detach(lwp); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				pid := 0
				if s.proc.live != nil {
					pid = s.proc.live.pid
				}
				pstacklog.ScopeViolation(s.proc.log, pid, fmt.Errorf("lwp %d: %w", lwp, err))
			}
		}
		s.proc.live.runner.close()
	})
	return firstErr
}

func (s *StopScope) rollback() {
	for _, lwp := range s.stopped {
		_ = s.proc.live.runner.detach(lwp)
	}
	s.stopped = nil
}
