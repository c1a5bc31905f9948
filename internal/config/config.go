// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the typed configuration derived from the
// command line's flags, kept separate from cmd/pstack so the
// inspection pipeline never depends on cobra or pflag directly.
package config

// Config is the resolved set of options for one invocation, after flag
// parsing and validation.
type Config struct {
	Verbosity int // number of -v occurrences

	Structured  bool // -j
	NoSource    bool // -s
	ShowArgs    bool // -a
	NoThreadDB  bool // -t
	Interpreter bool // -p

	DebugDirs []string // -g, repeatable

	BatchSeconds int // -b; 0 means run once

	DumpFile  string // -d or -D target; empty means not a dump invocation
	DumpDWARF bool   // set when -D was used rather than -d

	// Args are the positional tokens: process ids and paths, in the
	// order given.
	Args []string
}

// Batch reports whether the tool should repeat inspection on an
// interval rather than running once.
func (c *Config) Batch() bool {
	return c.BatchSeconds > 0
}

// Dump reports whether this invocation is a -d/-D dump rather than a
// full process inspection.
func (c *Config) Dump() bool {
	return c.DumpFile != ""
}
