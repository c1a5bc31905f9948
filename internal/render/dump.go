// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/debug/internal/imagecache"
)

// DumpImage implements the -d/-D dump mode: a narrower report of an
// image's parsed ELF structure (and, when withDWARF is set, its DWARF
// compile units), bypassing the full process-inspection pipeline
// entirely.
func DumpImage(w io.Writer, mode Mode, img *imagecache.Image, withDWARF bool) error {
	ef := img.ELF()
	d := imageDump{Path: img.Path, BuildID: img.BuildID, Machine: ef.Machine.String(), Type: ef.Type.String()}
	for _, s := range ef.Sections {
		d.Sections = append(d.Sections, sectionDump{Name: s.Name, Addr: s.Addr, Size: s.Size})
	}
	syms, err := img.Symbols()
	if err == nil {
		for _, s := range syms {
			d.Symbols = append(d.Symbols, symbolDump{Name: s.Name, Value: s.Value, Size: s.Size})
		}
	}
	if withDWARF {
		data, err := ef.DWARF()
		if err == nil {
			r := data.Reader()
			for {
				e, err := r.Next()
				if err != nil || e == nil {
					break
				}
				if e.Tag.String() == "" {
					continue
				}
				d.CompileUnits = append(d.CompileUnits, e.Tag.String())
			}
		}
	}

	if mode == Structured {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}
	fmt.Fprintf(w, "%s: %s %s, build-id %s\n", d.Path, d.Machine, d.Type, d.BuildID)
	fmt.Fprintf(w, "%d sections, %d symbols\n", len(d.Sections), len(d.Symbols))
	for _, s := range d.Sections {
		fmt.Fprintf(w, "  %-20s addr=%#x size=%d\n", s.Name, s.Addr, s.Size)
	}
	if withDWARF {
		fmt.Fprintf(w, "%d DWARF entries\n", len(d.CompileUnits))
	}
	return nil
}

type imageDump struct {
	Path         string         `json:"path"`
	BuildID      string         `json:"buildId,omitempty"`
	Machine      string         `json:"machine"`
	Type         string         `json:"type"`
	Sections     []sectionDump  `json:"sections"`
	Symbols      []symbolDump   `json:"symbols,omitempty"`
	CompileUnits []string       `json:"dwarfEntries,omitempty"`
}

type sectionDump struct {
	Name string `json:"name"`
	Addr uint64 `json:"addr"`
	Size uint64 `json:"size"`
}

type symbolDump struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
	Size  uint64 `json:"size"`
}
