// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"golang.org/x/debug/internal/core"
)

func sampleStacks() []core.ThreadStack {
	off := uint64(0x20)
	return []core.ThreadStack{
		{
			Thread: core.ThreadRecord{
				LWP:  1234,
				Info: &core.ThreadInfo{Pthread: 0x7f0000},
			},
			Frames: []core.Frame{
				{
					PC: 0x401020, SP: 0x7ffe0000,
					Symbol: &core.Symbol{
						Name:   "main.run",
						Offset: off,
						Object: &core.MappedObject{Path: "/bin/target"},
					},
					Source: &core.SourceLoc{File: "main.go", Line: 42},
					Args:   map[string]string{"ctx": "0xdead"},
				},
				{PC: 0x7f9999, SP: 0x7ffe0040},
			},
		},
		{
			Thread: core.ThreadRecord{LWP: 5678},
			Frames: nil,
		},
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Text, "/bin/target", sampleStacks(), false)
	require.NoError(t, err)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "process: /bin/target\n"))
	require.Contains(t, out, "---- thread 1234 pthread 0x7f0000 ----")
	require.Contains(t, out, "main.run+0x20 (/bin/target)")
	require.Contains(t, out, "main.go:42")
	require.Contains(t, out, "ctx=0xdead")
	require.Contains(t, out, "thread 5678")
}

func TestRenderStructured_Compact(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Structured, "/bin/target", sampleStacks(), false)
	require.NoError(t, err)
	require.False(t, strings.Contains(buf.String(), "\n  "))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, "/bin/target", doc["process"])
	threads := doc["threads"].([]any)
	require.Len(t, threads, 2)

	t0 := threads[0].(map[string]any)
	require.Equal(t, float64(1234), t0["id"])
	info := t0["info"].(map[string]any)
	require.Equal(t, "0x7f0000", info["pthread"])

	frames := t0["frames"].([]any)
	require.Len(t, frames, 2)
	f0 := frames[0].(map[string]any)
	require.Equal(t, "main.run", f0["function"])
	require.Equal(t, "/bin/target", f0["image"])
	source := f0["source"].(map[string]any)
	require.Equal(t, "main.go", source["file"])
}

func TestRenderStructured_Verbose_Indents(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Structured, "/bin/target", sampleStacks(), true)
	require.NoError(t, err)
	require.True(t, strings.Contains(buf.String(), "\n  "))
}

func TestRenderStructured_NoSymbolOmitsOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	stacks := []core.ThreadStack{{
		Thread: core.ThreadRecord{LWP: 1},
		Frames: []core.Frame{{PC: 0x1, SP: 0x2}},
	}}
	err := Render(&buf, Structured, "p", stacks, false)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	threads := doc["threads"].([]any)
	t0 := threads[0].(map[string]any)
	require.Nil(t, t0["info"])
	frame := t0["frames"].([]any)[0].(map[string]any)
	require.Nil(t, frame["function"])
	require.Nil(t, frame["source"])
	require.Nil(t, frame["args"])
}
