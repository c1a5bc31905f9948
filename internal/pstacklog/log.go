// Copyright 2017 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pstacklog provides the tool's ambient structured logger.
// Verbosity is driven by the -v flag's count rather than a named level
// string.
package pstacklog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds the logger used for the lifetime of one invocation.
// verbosity 0 logs Warn and above (the default "only tell me what's
// wrong" posture appropriate for a post-mortem tool); each additional
// -v lowers the threshold by one level, down to Trace.
func New(w io.Writer, verbosity int) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.WarnLevel - zerolog.Level(verbosity)
	if level < zerolog.TraceLevel {
		level = zerolog.TraceLevel
	}
	console := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}

// ThreadDBUnavailable logs the thread-db-unavailable condition: the
// higher-level thread-database collaborator could not attach, so
// enumeration degrades to kernel-only. Never fatal.
func ThreadDBUnavailable(log zerolog.Logger, pid int, err error) {
	log.Warn().Int("pid", pid).Err(err).Msg("thread-db-unavailable")
}

// ScopeViolation logs a failed scope release at Error, "loudly",
// since a resume failure may leave the target stopped.
func ScopeViolation(log zerolog.Logger, pid int, err error) {
	log.Error().Int("pid", pid).Err(err).Msg("scope-violation: failed to resume target")
}
