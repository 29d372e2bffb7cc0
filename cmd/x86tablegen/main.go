// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Command x86tablegen reads a line-oriented x86/x86-64
// instruction table and emits the four C source fragments
// a decoder/encoder pair compiles against: decode
// mnemonics, the decode trie, encode mnemonics, and the
// encode table.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aengelke/libx86decode/internal/x86"
)

// modeFlag is a pflag.Value that appends its fixed mode
// number to a shared slice each time it is set, so that
// --32/--64 populate modes in the order they actually
// appear on the command line. This mirrors the reference
// generator's argparse `action="append_const"` flags: the
// decode trie's root count and root order (spec §6) follow
// CLI order, not a hardcoded 32-then-64 preference, so
// e.g. "--64 --32" places the 64-bit tree at root 0.
type modeFlag struct {
	modes *[]int
	value int
}

func (f *modeFlag) String() string {
	if f.modes == nil {
		return "false"
	}
	for _, m := range *f.modes {
		if m == f.value {
			return "true"
		}
	}
	return "false"
}

func (f *modeFlag) Set(s string) error {
	set, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if set {
		*f.modes = append(*f.modes, f.value)
	}
	return nil
}

func (f *modeFlag) Type() string { return "bool" }

func main() {
	var (
		modes     []int
		withUndoc bool
		legacy    bool
		logLevel  string
		quiet     bool
	)

	rootCmd := &cobra.Command{
		Use:   "x86tablegen <table> <decode-mnems> <decode-table> <encode-mnems> <encode-table>",
		Short: "Generate x86/x86-64 decode and encode tables from an instruction spec file",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			log := x86.NewLogger(os.Stderr, level, !quiet)

			if len(modes) == 0 {
				return fmt.Errorf("at least one of --32 or --64 must be given")
			}

			layout := x86.LayoutCurrent
			if legacy {
				layout = x86.LayoutLegacy
			}

			return run(log, args, modes, withUndoc, layout)
		},
	}

	rootCmd.Flags().Var(&modeFlag{modes: &modes, value: 32}, "32", "build a 32-bit mode decode root")
	rootCmd.Flags().Var(&modeFlag{modes: &modes, value: 64}, "64", "build a 64-bit mode decode root")
	rootCmd.Flags().Lookup("32").NoOptDefVal = "true"
	rootCmd.Flags().Lookup("64").NoOptDefVal = "true"
	rootCmd.Flags().BoolVar(&withUndoc, "with-undoc", false, "include UNDOC-flagged instructions")
	rootCmd.Flags().BoolVar(&legacy, "legacy-layout", false, "emit the legacy packed-descriptor layout (not implemented)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().BoolVarP(&quiet, "json-log", "j", false, "emit newline-JSON logs instead of console form")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(log zerolog.Logger, args []string, modes []int, withUndoc bool, layout x86.Layout) error {
	tableFile, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer tableFile.Close()

	entries, err := x86.ParseSpecFile(tableFile, withUndoc)
	if err != nil {
		return err
	}
	log.Info().Int("entries", len(entries)).Msg("parsed instruction table")

	out, err := x86.Generate(entries, x86.Options{Modes: modes, WithUndoc: withUndoc, Layout: layout})
	if err != nil {
		return err
	}
	x86.LogStats(log, out)

	writes := []struct {
		path string
		data string
	}{
		{args[1], out.DecodeMnemonics},
		{args[2], out.DecodeTable},
		{args[3], out.EncodeMnemonics},
		{args[4], out.EncodeTable},
	}

	// Write all four outputs to temporary files first and
	// rename them into place only once every write has
	// succeeded, so a failed write never leaves a new decode
	// table paired with a stale encode table or vice versa
	// (spec §7). The renames run one by one: if a later
	// rename fails, outputs renamed before it stay replaced.
	var tmpPaths []string
	cleanup := func() {
		for _, p := range tmpPaths {
			os.Remove(p)
		}
	}

	for _, w := range writes {
		tmp := w.path + ".tmp"
		if err := os.WriteFile(tmp, []byte(w.data), 0o644); err != nil {
			cleanup()
			return fmt.Errorf("writing %s: %w", w.path, err)
		}
		tmpPaths = append(tmpPaths, tmp)
	}

	for i, w := range writes {
		if err := os.Rename(tmpPaths[i], w.path); err != nil {
			cleanup()
			return fmt.Errorf("finalizing %s: %w", w.path, err)
		}
	}

	log.Info().Strs("wrote", []string{args[1], args[2], args[3], args[4]}).Msg("generation complete")
	return nil
}
