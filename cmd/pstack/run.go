// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"golang.org/x/debug/internal/config"
	"golang.org/x/debug/internal/core"
	"golang.org/x/debug/internal/imagecache"
	"golang.org/x/debug/internal/pstacklog"
	"golang.org/x/debug/internal/pyinspect"
	"golang.org/x/debug/internal/render"
	"golang.org/x/debug/internal/unwind"
)

// buildVersion is the string -V prints; a real build would stamp this
// via -ldflags rather than hardcoding it, but that's orthogonal to
// this package.
const buildVersion = "pstack development build"

// run parses args, executes the single pstack command against them,
// and returns the process exit code: 0, EX_USAGE, or EX_SOFTWARE.
func run(args []string, stdout, stderr io.Writer) int {
	cfg := &config.Config{}
	var showVersion bool
	var verbosity int
	var dumpDwarfFile string

	cmd := &cobra.Command{
		Use:           "pstack [pid|path]...",
		Short:         "print the native (and, with -p, interpreted) call stack of a process or core file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, posArgs []string) error {
			cfg.Args = posArgs
			return nil
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.CountVarP(&verbosity, "verbose", "v", "increase verbosity")
	flags.BoolVarP(&showVersion, "version", "V", false, "print build tag and exit")
	flags.BoolVarP(&cfg.Structured, "json", "j", false, "emit structured-document output")
	flags.BoolVarP(&cfg.NoSource, "no-source", "s", false, "suppress source-line information")
	flags.BoolVarP(&cfg.ShowArgs, "args", "a", false, "render argument values where recoverable")
	flags.StringArrayVarP(&cfg.DebugDirs, "debug-dir", "g", nil, "append to global debug-file search path")
	flags.BoolVarP(&cfg.NoThreadDB, "no-thread-db", "t", false, "do not use the thread-database collaborator")
	flags.BoolVarP(&cfg.Interpreter, "interpreter", "p", false, "interpreter mode")
	flags.IntVarP(&cfg.BatchSeconds, "batch", "b", 0, "batch: repeat every n seconds")
	flags.StringVarP(&cfg.DumpFile, "dump", "d", "", "dump parsed ELF structure of file, then exit")
	flags.StringVarP(&dumpDwarfFile, "dump-dwarf", "D", "", "like -d but also dump DWARF structure")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(stderr, err)
		return exUsage
	}
	if help := flags.Lookup("help"); help != nil && help.Changed {
		return 0
	}
	if showVersion {
		fmt.Fprintln(stdout, buildVersion)
		return 0
	}
	cfg.Verbosity = verbosity
	if dumpDwarfFile != "" {
		cfg.DumpFile = dumpDwarfFile
		cfg.DumpDWARF = true
	}

	log := pstacklog.New(stderr, cfg.Verbosity)
	cache := imagecache.New(cfg.DebugDirs)

	if cfg.Dump() {
		return runDump(cfg, cache, stdout)
	}
	return runInspect(cfg, cache, stdout, stderr, log)
}

// runDump implements -d/-D: a narrower report bypassing the process
// pipeline entirely.
func runDump(cfg *config.Config, cache *imagecache.Cache, stdout io.Writer) int {
	img, err := cache.Open(cfg.DumpFile)
	if err != nil {
		fmt.Fprintf(stdout, "%s: %v\n", cfg.DumpFile, err)
		return exSoftware
	}
	mode := render.Text
	if cfg.Structured {
		mode = render.Structured
	}
	if err := render.DumpImage(stdout, mode, img, cfg.DumpDWARF); err != nil {
		fmt.Fprintf(stdout, "%s: %v\n", cfg.DumpFile, err)
		return exSoftware
	}
	return 0
}

// runInspect implements the positional-argument grammar and batch-mode
// loop: `for { inspect each token; sleep }`, not a ticker goroutine,
// since there is no concurrency in inspection itself.
func runInspect(cfg *config.Config, cache *imagecache.Cache, stdout, stderr io.Writer, log zerolog.Logger) int {
	if len(cfg.Args) == 0 {
		fmt.Fprintln(stderr, "pstack: no process id or path given")
		return exUsage
	}

	code := 0
	for {
		exeOverride := ""
		for _, tok := range cfg.Args {
			c := inspectToken(cfg, cache, tok, &exeOverride, stdout, stderr, log)
			if c > code {
				code = c
			}
		}
		if !cfg.Batch() {
			break
		}
		time.Sleep(time.Duration(cfg.BatchSeconds) * time.Second)
	}
	return code
}

// inspectToken handles one positional token: a decimal pid naming a
// live process, a non-core ELF file (which sets *exeOverride for
// subsequent core files on this line), or a core ELF file (which
// triggers inspection using the current override).
func inspectToken(cfg *config.Config, cache *imagecache.Cache, tok string, exeOverride *string, stdout, stderr io.Writer, log zerolog.Logger) int {
	if pid, err := strconv.Atoi(tok); err == nil {
		if _, statErr := os.Stat(fmt.Sprintf("/proc/%d", pid)); statErr == nil {
			return inspectLive(cfg, cache, pid, *exeOverride, stdout, stderr, log)
		}
		fmt.Fprintf(stderr, "pstack: no such process %d\n", pid)
		return exSoftware
	}

	f, err := elf.Open(tok)
	if err != nil {
		fmt.Fprintf(stderr, "pstack: %s: not a process id or a readable ELF file: %v\n", tok, err)
		return exUsage
	}
	typ := f.Type
	f.Close()

	if typ == elf.ET_CORE {
		return inspectCore(cfg, cache, tok, *exeOverride, stdout, stderr, log)
	}
	*exeOverride = tok
	return 0
}

func inspectLive(cfg *config.Config, cache *imagecache.Cache, pid int, exeOverride string, stdout, stderr io.Writer, log zerolog.Logger) int {
	p, err := core.Live(pid, exeOverride, cache, log)
	if err != nil {
		fmt.Fprintf(stderr, "pstack: pid %d: %v\n", pid, err)
		return exSoftware
	}
	return renderProcess(cfg, p, fmt.Sprintf("pid %d", pid), stdout, stderr, log)
}

func inspectCore(cfg *config.Config, cache *imagecache.Cache, coreFile, exeOverride string, stdout, stderr io.Writer, log zerolog.Logger) int {
	p, err := core.Core(coreFile, exeOverride, cache, log)
	if err != nil {
		fmt.Fprintf(stderr, "pstack: %s: %v\n", coreFile, err)
		return exSoftware
	}
	return renderProcess(cfg, p, coreFile, stdout, stderr, log)
}

// renderProcess freezes p for the duration of inspection, recovers each
// thread's native stack, and renders the result — or, in interpreter
// mode, bypasses the native unwinder entirely and walks the hosted
// interpreter's own state instead.
func renderProcess(cfg *config.Config, p *core.Process, label string, stdout, stderr io.Writer, log zerolog.Logger) int {
	scope, err := p.Stop()
	if err != nil {
		fmt.Fprintf(stderr, "pstack: %s: %v\n", label, err)
		return exSoftware
	}
	defer scope.Release()

	if cfg.Interpreter {
		if err := pyinspect.Inspect(stdout, p, cfg.ShowArgs); err != nil {
			fmt.Fprintf(stderr, "pstack: %s: %v\n", label, err)
			return exSoftware
		}
		return 0
	}

	// No in-tree ThreadDB binding exists; passing nil here already
	// matches -t's requested behavior regardless of cfg.NoThreadDB's
	// value.
	records, err := core.EnumerateThreads(p, nil, log)
	if err != nil {
		fmt.Fprintf(stderr, "pstack: %s: %v\n", label, err)
		return exSoftware
	}

	var stacks []core.ThreadStack
	for _, t := range records {
		frames, err := unwind.Frames(p, t.Regs, unwind.DefaultMaxDepth)
		if err != nil {
			continue
		}
		if cfg.NoSource {
			for i := range frames {
				frames[i].Source = nil
			}
		}
		stacks = append(stacks, core.ThreadStack{Thread: *t, Frames: frames})
	}

	mode := render.Text
	if cfg.Structured {
		mode = render.Structured
	}
	if err := render.Render(stdout, mode, label, stacks, cfg.Verbosity > 0); err != nil {
		fmt.Fprintf(stderr, "pstack: %s: %v\n", label, err)
		return exSoftware
	}
	for _, w := range p.Warnings() {
		fmt.Fprintf(stderr, "pstack: %s: %s\n", label, w)
	}
	return 0
}
