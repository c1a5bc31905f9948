// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package unwind implements the native unwinder: given a register set,
// it walks the call stack outward using the call-frame information
// (FDE/CIE) recorded in each image's debug info, annotating each
// recovered frame with a resolved symbol and source coordinate when
// the image + debug-info cache can supply one.
package unwind

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"

	delveframe "github.com/go-delve/delve/pkg/dwarf/frame"

	"golang.org/x/debug/internal/core"
)

// DefaultMaxDepth bounds runaway unwinds (corrupted frame pointers,
// cyclic return addresses) the same way the interpreter inspector bounds
// recursive object printing.
const DefaultMaxDepth = 4096

// Frames unwinds starting at regs, innermost frame first. Where no CFI
// rule applies at the current PC it follows the frame-pointer chain
// instead (see step). It stops when neither yields a caller, the
// recovered return address is zero or outside every mapped object, or
// maxDepth is reached.
func Frames(p *core.Process, regs core.Regs, maxDepth int) ([]core.Frame, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var frames []core.Frame
	pc, sp, fp := regs.PC, regs.SP, regs.FP

	for i := 0; i < maxDepth; i++ {
		obj := p.ObjectAt(pc)
		frame := core.Frame{PC: pc, SP: sp, FP: fp}
		annotate(p, obj, &frame)
		frames = append(frames, frame)

		ret, newSP, newFP, ok := step(p, obj, pc, sp, fp)
		if !ok {
			break
		}
		if ret == 0 || p.ObjectAt(ret) == nil {
			break
		}
		pc, sp, fp = ret, newSP, newFP
	}
	return frames, nil
}

// step recovers the caller's PC/SP/FP from the callee's, by evaluating
// the CFI rule covering pc in obj's .debug_frame/.eh_frame, falling back
// to the classic frame-pointer chain when no CFI table is present, e.g.
// for a frameless leaf function.
func step(p *core.Process, obj *core.MappedObject, pc, sp, fp core.Address) (ret, newSP, newFP core.Address, ok bool) {
	if obj == nil {
		return fpChain(p, fp)
	}
	fde, err := frameDescriptionEntry(p, obj, pc)
	if err != nil || fde == nil {
		return fpChain(p, fp)
	}
	pcRel := uint64(pc.Sub(obj.Load))
	fc := fde.EstablishFrame(pcRel)

	cfa := uint64(sp)
	switch fc.CFA.Rule {
	case delveframe.RuleCFA:
		// CFA = register + offset; we only track SP/FP, so approximate
		// with whichever one the rule names.
		if fc.CFA.Reg == regFP {
			cfa = uint64(fp) + uint64(fc.CFA.Offset)
		} else {
			cfa = uint64(sp) + uint64(fc.CFA.Offset)
		}
	}

	retRule, okRule := fc.Regs[retAddrReg]
	if !okRule {
		return fpChain(p, fp)
	}
	retAddr := core.Address(cfa + uint64(retRule.Offset))
	retVal, err := p.Mem().ReadUint64(retAddr)
	if err != nil {
		return 0, 0, 0, false
	}

	newFPRule, hasFP := fc.Regs[regFP]
	newFPVal := fp
	if hasFP {
		fpAddr := core.Address(cfa + uint64(newFPRule.Offset))
		if v, err := p.Mem().ReadUint64(fpAddr); err == nil {
			newFPVal = core.Address(v)
		}
	}

	return core.Address(retVal), core.Address(cfa), newFPVal, true
}

// fpChain treats *fp as the saved caller FP and fp+8 as the return
// address, the classic amd64 frame-pointer convention, used when no CFI
// table covers the current PC (stripped .eh_frame, or a leaf that never
// pushed one).
func fpChain(p *core.Process, fp core.Address) (ret, newSP, newFP core.Address, ok bool) {
	if fp == 0 {
		return 0, 0, 0, false
	}
	savedFP, err := p.Mem().ReadUint64(fp)
	if err != nil {
		return 0, 0, 0, false
	}
	retAddr, err := p.Mem().ReadUint64(fp.Add(8))
	if err != nil {
		return 0, 0, 0, false
	}
	return core.Address(retAddr), fp.Add(16), core.Address(savedFP), true
}

const (
	regFP       = 6 // DWARF amd64 rbp
	retAddrReg  = 16
)

func frameDescriptionEntry(p *core.Process, obj *core.MappedObject, pc core.Address) (*delveframe.FrameDescriptionEntry, error) {
	di, err := p.DebugInfo(obj)
	if err != nil || di == nil {
		return nil, err
	}
	tab, err := debugFrameTable(obj)
	if err != nil {
		return nil, err
	}
	pcRel := uint64(pc.Sub(obj.Load))
	return tab.FDEForPC(pcRel)
}

// debugFrameTable parses obj's .eh_frame (or, failing that,
// .debug_frame) section on every call; the result is not cached.
func debugFrameTable(obj *core.MappedObject) (delveframe.FrameDescriptionEntries, error) {
	sec := obj.Image.ELF().Section(".eh_frame")
	if sec == nil {
		sec = obj.Image.ELF().Section(".debug_frame")
	}
	if sec == nil {
		return nil, fmt.Errorf("no frame info section in %s", obj.Path)
	}
	data, err := sec.Data()
	if err != nil {
		return nil, err
	}
	return delveframe.Parse(data, obj.Image.ELF().ByteOrder, 0, ptrSizeOf(obj), sec.Addr)
}

func ptrSizeOf(obj *core.MappedObject) int {
	if obj.Image.ELF().Class.String() == "ELFCLASS32" {
		return 4
	}
	return 8
}

// annotate fills in frame.Symbol and frame.Source by consulting obj's
// symbol table and DWARF line table. Absence of debug info for obj is
// non-fatal: the frame is left with a raw PC only.
func annotate(p *core.Process, obj *core.MappedObject, frame *core.Frame) {
	if obj == nil {
		return
	}
	syms, err := obj.Image.Symbols()
	if err == nil {
		if sym, off := nearestSymbol(syms, uint64(frame.PC.Sub(obj.Load))); sym != "" {
			frame.Symbol = &core.Symbol{Object: obj, Name: sym, Offset: off}
		}
	}

	di, err := p.DebugInfo(obj)
	if err != nil || di == nil {
		return
	}
	if loc := lineForPC(di.Data, uint64(frame.PC.Sub(obj.Load))); loc != nil {
		frame.Source = loc
	}
}

func nearestSymbol(syms []elf.Symbol, pcRel uint64) (string, uint64) {
	best := ""
	var bestAddr, off uint64
	for _, s := range syms {
		if s.Value <= pcRel && s.Value >= bestAddr {
			bestAddr = s.Value
			best = s.Name
			off = pcRel - s.Value
		}
	}
	return best, off
}

func lineForPC(d *dwarf.Data, pcRel uint64) *core.SourceLoc {
	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			return nil
		}
		if e.Tag != dwarf.TagCompileUnit {
			continue
		}
		lr, err := d.LineReader(e)
		if err != nil || lr == nil {
			continue
		}
		var entry dwarf.LineEntry
		var best *dwarf.LineEntry
		for {
			if err := lr.Next(&entry); err != nil {
				break
			}
			if entry.Address <= pcRel {
				cpy := entry
				best = &cpy
			} else if best != nil {
				break
			}
		}
		if best != nil {
			return &core.SourceLoc{File: best.File.Name, Line: best.Line}
		}
	}
}
