// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pyinspect

import (
	"debug/dwarf"
	"errors"
	"strings"

	delveop "github.com/go-delve/delve/pkg/dwarf/op"

	"golang.org/x/debug/internal/core"
)

// ErrNoInterpreter means interpreter mode was requested but no matching
// library and global variable was found. It is fatal to the
// interpreter pipeline for this target, but not to the rest of the
// invocation.
var ErrNoInterpreter = errors.New("No libpython found")

// rootVarName is the compilation-unit-scope variable naming the head of
// CPython's linked list of interpreter states. It has had different
// names across CPython versions; this is the pre-3.x name this
// inspector's layout targets (see layout.go).
const rootVarName = "interp_head"

// discover scans obj for one whose path fragment names the interpreter
// and whose debug info defines
// rootVarName as a compilation-unit-scope variable, then evaluate its
// location expression against a zero frame base and the object's load
// address to get its target address.
func discover(p *core.Process) (core.Address, error) {
	for _, obj := range p.Objects() {
		if !strings.Contains(obj.Path, "libpython") && !strings.Contains(obj.Path, "python") {
			continue
		}
		di, err := p.DebugInfo(obj)
		if err != nil || di == nil {
			continue
		}
		if addr, ok := findCUVariable(di.Data, rootVarName, obj.Load); ok {
			return addr, nil
		}
	}
	return 0, ErrNoInterpreter
}

// findCUVariable looks for a top-level (compilation-unit-scope) DW_TAG_variable
// named name and evaluates its DW_AT_location against a zero frame base,
// adding load as the addend applied to addresses embedded in the image.
func findCUVariable(d *dwarf.Data, name string, load core.Address) (core.Address, bool) {
	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil || e == nil {
			return 0, false
		}
		if e.Tag != dwarf.TagCompileUnit {
			continue
		}
		for {
			ce, err := r.Next()
			if err != nil || ce == nil {
				break
			}
			if ce.Tag == 0 {
				break // end of this CU's children
			}
			if ce.Tag != dwarf.TagVariable {
				r.SkipChildren()
				continue
			}
			n, _ := ce.Val(dwarf.AttrName).(string)
			if n != name {
				continue
			}
			loc, ok := ce.Val(dwarf.AttrLocation).([]byte)
			if !ok {
				continue
			}
			addr, err := evalStaticLocation(loc)
			if err != nil {
				continue
			}
			return load.Add(int64(addr)), true
		}
	}
}

// evalStaticLocation evaluates a DWARF location expression for a static
// (non-stack-relative) variable: typically a single DW_OP_addr. We reuse
// delve's stack-machine evaluator rather than hand-rolling one, since
// full generality (DW_OP_addrx, GNU extensions) is exactly the kind of
// detail a DWARF collaborator should own.
func evalStaticLocation(loc []byte) (uint64, error) {
	addr, _, err := delveop.ExecuteStackProgram(delveop.DwarfRegisters{}, loc, 8, nil)
	if err != nil {
		return 0, err
	}
	return uint64(addr), nil
}
