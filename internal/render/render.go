// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package render turns recovered thread stacks into the tool's two
// output forms: a human-readable text report built with plain
// fmt.Fprintf calls, and a structured JSON document for machine
// consumers.
package render

import (
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/debug/internal/core"
)

// Mode selects which of the two output forms Render produces.
type Mode int

const (
	Text Mode = iota
	Structured
)

// Render writes stacks for proc to w in the requested mode. verbose
// only affects Structured mode, where it switches between compact and
// indented JSON.
func Render(w io.Writer, mode Mode, proc string, stacks []core.ThreadStack, verbose bool) error {
	switch mode {
	case Structured:
		return renderStructured(w, proc, stacks, verbose)
	default:
		return renderText(w, proc, stacks)
	}
}

func renderText(w io.Writer, proc string, stacks []core.ThreadStack) error {
	fmt.Fprintf(w, "process: %s\n", proc)
	for _, s := range stacks {
		fmt.Fprintf(w, "---- thread %d", s.Thread.LWP)
		if s.Thread.Info != nil {
			fmt.Fprintf(w, " pthread %s", s.Thread.Info.Pthread)
		}
		fmt.Fprintln(w, " ----")
		for _, f := range s.Frames {
			fmt.Fprintf(w, "  %s  sp=%s", f.PC, f.SP)
			if f.Symbol != nil {
				fmt.Fprintf(w, "  %s+%#x", f.Symbol.Name, f.Symbol.Offset)
				if f.Symbol.Object != nil {
					fmt.Fprintf(w, " (%s)", f.Symbol.Object.Path)
				}
			}
			if f.Source != nil {
				fmt.Fprintf(w, "  %s:%d", f.Source.File, f.Source.Line)
			}
			fmt.Fprintln(w)
			for k, v := range f.Args {
				fmt.Fprintf(w, "      %s=%s\n", k, v)
			}
		}
	}
	return nil
}

// document and its nested types mirror the structured-output schema
// field for field, with omitempty implementing the optional fields.
type document struct {
	Process string         `json:"process"`
	Threads []threadDoc    `json:"threads"`
}

type threadDoc struct {
	ID     uint64        `json:"id"`
	Info   *threadInfoDoc `json:"info,omitempty"`
	Frames []frameDoc     `json:"frames"`
}

type threadInfoDoc struct {
	Pthread string `json:"pthread"`
}

type frameDoc struct {
	IP       string       `json:"ip"`
	SP       string       `json:"sp"`
	Function string       `json:"function,omitempty"`
	Image    string       `json:"image,omitempty"`
	Offset   *uint64      `json:"offset,omitempty"`
	Source   *sourceDoc   `json:"source,omitempty"`
	Args     map[string]string `json:"args,omitempty"`
}

type sourceDoc struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func renderStructured(w io.Writer, proc string, stacks []core.ThreadStack, verbose bool) error {
	doc := document{Process: proc}
	for _, s := range stacks {
		td := threadDoc{ID: uint64(s.Thread.LWP)}
		if s.Thread.Info != nil {
			td.Info = &threadInfoDoc{Pthread: s.Thread.Info.Pthread.String()}
		}
		for _, f := range s.Frames {
			fd := frameDoc{IP: f.PC.String(), SP: f.SP.String(), Args: f.Args}
			if f.Symbol != nil {
				fd.Function = f.Symbol.Name
				off := f.Symbol.Offset
				fd.Offset = &off
				if f.Symbol.Object != nil {
					fd.Image = f.Symbol.Object.Path
				}
			}
			if f.Source != nil {
				fd.Source = &sourceDoc{File: f.Source.File, Line: f.Source.Line}
			}
			td.Frames = append(td.Frames, fd)
		}
		doc.Threads = append(doc.Threads, td)
	}

	enc := json.NewEncoder(w)
	if verbose {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(doc)
}
