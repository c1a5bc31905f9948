// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

// Regs is a thread's recovered general-purpose register set. For a core
// target Raw holds the NT_PRSTATUS register words in struct
// user_regs_struct order (see decodeAMD64Regs), not DWARF register
// numbering; registers read from a live target leave Raw nil. PC, SP,
// and FP are pulled out because nearly every consumer wants them without
// knowing the numbering.
type Regs struct {
	PC, SP, FP Address
	Raw        []uint64
}

// ThreadInfo is the higher-level thread identity the thread-database
// collaborator can supply, when available.
type ThreadInfo struct {
	Pthread   Address
	StackBase Address
}

// ThreadRecord is the light-weight-thread identifier, optional higher
// level identity, and recovered registers for one thread.
type ThreadRecord struct {
	LWP  LWPID
	Info *ThreadInfo
	Regs Regs
}

func (p *Process) Threads() []*ThreadRecord {
	out := make([]*ThreadRecord, 0, len(p.threads))
	for _, t := range p.threads {
		out = append(out, t)
	}
	return out
}

func (p *Process) ThreadByLWP(id LWPID) *ThreadRecord {
	return p.threads[id]
}

// decodeAMD64Regs decodes the 27-word elf_gregset_t laid out by Linux's
// struct user_regs_struct, matching NT_PRSTATUS's pr_reg layout.
//
//	 0: r15   1: r14   2: r13   3: r12   4: rbp   5: rbx
//	 6: r11   7: r10   8: r9    9: r8   10: rax  11: rcx
//	12: rdx  13: rsi  14: rdi  15: orig_rax 16: rip 17: cs
//	18: eflags 19: rsp 20: ss  21: fs_base 22: gs_base
//	23: ds   24: es   25: fs   26: gs
func decodeAMD64Regs(raw []uint64) Regs {
	r := Regs{Raw: raw}
	if len(raw) > 19 {
		r.SP = Address(raw[19])
	}
	if len(raw) > 16 {
		r.PC = Address(raw[16])
	}
	if len(raw) > 4 {
		r.FP = Address(raw[4])
	}
	return r
}
