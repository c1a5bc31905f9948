// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package core_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"golang.org/x/debug/internal/core"
	"golang.org/x/debug/internal/imagecache"
	"golang.org/x/debug/internal/testenv"
)

// helperCrashEnv re-execs this test binary as a helper process that
// crashes itself under a coredump_filter permissive enough to include
// anonymous mappings, producing a core file Core can parse end to end.
const helperCrashEnv = "PSTACK_TEST_CRASH_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(helperCrashEnv) == "1" {
		testenv.RunThenCrash("0x3f", func() any { return nil })
		return // unreachable: RunThenCrash never returns
	}
	os.Exit(m.Run())
}

// TestCoreFromCrashedProcess spawns a helper process that dereferences a
// nil pointer, locates the core file the kernel writes for it, and
// checks that Core can parse the result into a Process with at least
// one mapped object and one recorded thread. It only runs when asked
// to, since it depends on a host core_pattern that actually writes
// core files in the current directory (most CI images redirect cores
// elsewhere, e.g. to a crash collector, and this test has no way to
// find a core file it didn't write itself).
func TestCoreFromCrashedProcess(t *testing.T) {
	if os.Getenv("PSTACK_RUN_CRASH_TEST") == "" {
		t.Skip("requires a core_pattern that writes 'core' in the cwd; set PSTACK_RUN_CRASH_TEST=1 to run")
	}
	dir := t.TempDir()

	self, err := os.Executable()
	require.NoError(t, err)

	cmd := exec.Command(self, "-test.run=TestMain")
	cmd.Dir = dir
	// GOTRACEBACK=crash makes the runtime abort with a core dump on the
	// nil dereference instead of exiting with a plain panic.
	cmd.Env = append(os.Environ(), helperCrashEnv+"=1", "GOTRACEBACK=crash")
	_ = cmd.Run() // expected to die from SIGSEGV

	corePath := filepath.Join(dir, "core")
	if _, err := os.Stat(corePath); err != nil {
		t.Skipf("helper process did not leave a core file at %s: %v", corePath, err)
	}

	cache := imagecache.New(nil)
	log := zerolog.Nop()
	p, err := core.Core(corePath, self, cache, log)
	require.NoError(t, err)
	require.NotEmpty(t, p.Objects())
	require.NotEmpty(t, p.Threads())
}
