// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"bufio"
	"io"
	"strings"
)

// ParseSpecFile reads a line-oriented instruction table
// file: one opcode-string/descriptor-string pair per line,
// separated by whitespace, with the descriptor free to
// contain further whitespace-separated fields. Blank lines
// and lines starting with '#' are skipped. UNDOC-flagged
// entries are dropped unless withUndoc is set. See spec
// §4.1/§4.2 and original_source/parseinstrs.py's __main__
// read loop.
func ParseSpecFile(r io.Reader, withUndoc bool) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		idx := strings.IndexAny(line, " \t")
		if idx < 0 {
			return nil, parseErrorf(line, "line %d: missing descriptor field", lineNo)
		}
		opcodeStr := line[:idx]
		descStr := strings.TrimLeft(line[idx:], " \t")

		opcode, err := ParseOpcode(opcodeStr)
		if err != nil {
			return nil, err
		}

		desc, err := ParseInstrDesc(descStr)
		if err != nil {
			return nil, err
		}

		if desc.Flags["UNDOC"] && !withUndoc {
			continue
		}

		entries = append(entries, Entry{Opcode: opcode, Desc: desc})
	}

	if err := scanner.Err(); err != nil {
		return nil, parseErrorf("", "reading spec file: %w", err)
	}

	return entries, nil
}
