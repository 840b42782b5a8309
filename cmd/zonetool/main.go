// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "zonetool [command] (flags)",
	Short: "zonestore introspection tool",
	Long: `
zonetool exercises a zonestore table held in memory. The table is described
by a TOML file (--config); without one, a built-in table of events grouped by
tenant and hourly timestamp buckets is used.
`,
	SilenceUsage: true,
}

func init() {
	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(
		demoCmd,
		benchCmd,
		decideCmd,
		optionsCmd,
	)
	rootCmd.PersistentFlags().StringVar(
		&configPath, "config", "", "TOML file describing the table")
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "log degradations and legacy scans")
}

func main() {
	log.SetFlags(0)
	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
