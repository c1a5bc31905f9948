// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitRange(t *testing.T) {
	lo, hi, ok := splitRange("7f1234500000-7f1234600000")
	require.True(t, ok)
	require.Equal(t, Address(0x7f1234500000), lo)
	require.Equal(t, Address(0x7f1234600000), hi)

	_, _, ok = splitRange("not-a-range-at-all-nope")
	require.False(t, ok)

	_, _, ok = splitRange("nodash")
	require.False(t, ok)
}

func TestSplitFields(t *testing.T) {
	fields := splitFields("7f0000-7f1000 r-xp 00000000 08:01 123  /lib/libc.so")
	require.Equal(t, []string{"7f0000-7f1000", "r-xp", "00000000", "08:01", "123", "/lib/libc.so"}, fields)
}

func TestSplitLines(t *testing.T) {
	lines := splitLines([]byte("a\nb\nc\n"))
	require.Equal(t, []string{"a", "b", "c"}, lines)
}

