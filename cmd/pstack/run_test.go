// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"-V"}, &out, &errOut)
	require.Equal(t, 0, code)
	require.Contains(t, out.String(), "pstack")
}

func TestRun_NoPositionalArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{}, &out, &errOut)
	require.Equal(t, exUsage, code)
	require.Contains(t, errOut.String(), "no process id or path")
}

func TestRun_UnknownFlag(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"--not-a-real-flag"}, &out, &errOut)
	require.Equal(t, exUsage, code)
}

func TestRun_BadToken(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"/no/such/path/at/all"}, &out, &errOut)
	require.Equal(t, exUsage, code)
	require.True(t, strings.Contains(errOut.String(), "not a process id"))
}

func TestRun_DumpMissingFile(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"-d", "/no/such/file"}, &out, &errOut)
	require.Equal(t, exSoftware, code)
}
