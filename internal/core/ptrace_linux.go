// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package core

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// ptraceRun executes all closures sent on fc on a single, dedicated OS
// thread and reports their errors on ec. Every ptrace(2) call for a
// given tracee must come from the thread that attached to it, so all of
// our ptrace traffic for one target is funneled through one goroutine
// locked to one OS thread.
type ptraceRunner struct {
	fc chan func() error
	ec chan error
}

func newPtraceRunner() *ptraceRunner {
	r := &ptraceRunner{fc: make(chan func() error), ec: make(chan error)}
	go r.loop()
	return r
}

func (r *ptraceRunner) loop() {
	runtime.LockOSThread()
	for f := range r.fc {
		r.ec <- f()
	}
}

func (r *ptraceRunner) do(f func() error) error {
	r.fc <- f
	return <-r.ec
}

func (r *ptraceRunner) attach(lwp LWPID) error {
	return r.do(func() error { return unix.PtraceAttach(int(lwp)) })
}

func (r *ptraceRunner) detach(lwp LWPID) error {
	return r.do(func() error { return unix.PtraceDetach(int(lwp)) })
}

func (r *ptraceRunner) wait(lwp LWPID) error {
	return r.do(func() error {
		var status unix.WaitStatus
		_, err := unix.Wait4(int(lwp), &status, 0, nil)
		if err == nil && !status.Stopped() {
			return fmt.Errorf("lwp %d did not stop (status %v)", lwp, status)
		}
		return err
	})
}

func (r *ptraceRunner) getRegs(lwp LWPID) (Regs, error) {
	var out unix.PtraceRegs
	err := r.do(func() error { return unix.PtraceGetRegs(int(lwp), &out) })
	if err != nil {
		return Regs{}, err
	}
	return Regs{PC: Address(out.Rip), SP: Address(out.Rsp), FP: Address(out.Rbp)}, nil
}

func (r *ptraceRunner) close() {
	close(r.fc)
}
