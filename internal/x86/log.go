// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"io"

	"github.com/rs/zerolog"
)

// NewLogger builds the structured logger the CLI driver
// and this package's diagnostics write to. Output is
// human-readable console form when pretty is set and
// newline JSON otherwise, filtered at the level passed in
// by --log-level.
func NewLogger(w io.Writer, level zerolog.Level, pretty bool) zerolog.Logger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// LogStats emits the post-compile diagnostic line the
// reference generator prints (table byte size plus a
// per-kind node histogram), as a structured log event
// rather than a bare print statement.
func LogStats(log zerolog.Logger, out *Output) {
	ev := log.Info().Int("bytes", out.ByteSize)
	for kind, count := range out.KindCounts {
		ev = ev.Int(kind.String(), count)
	}
	ev.Msg("compiled decode table")
}
