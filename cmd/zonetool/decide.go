// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/cockroachdb/zonestore/internal/base"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var decideConfig struct {
	where []string
	order []string
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "explain which zone index serves a scan",
	Long: `
Lists the zone indexes of the table and the one a scan with the given order
keys and predicates would use.
`,
	Args: cobra.NoArgs,
	RunE: runDecide,
}

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "print the effective options of the table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		t, err := loadTable()
		if err != nil {
			return err
		}
		tbl, err := t.open(base.NoopLogger)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), tbl.Options().String())
		return nil
	},
}

func init() {
	decideCmd.Flags().StringArrayVarP(
		&decideConfig.where, "where", "w", nil, `predicate "column op value" (repeatable)`)
	decideCmd.Flags().StringSliceVar(
		&decideConfig.order, "order", nil, "order keys the scan asks for")
}

func runDecide(cmd *cobra.Command, _ []string) error {
	t, err := loadTable()
	if err != nil {
		return err
	}
	tbl, err := t.open(base.NoopLogger)
	if err != nil {
		return err
	}
	preds, err := t.parsePredicates(decideConfig.where)
	if err != nil {
		return err
	}
	cfg := &tableConfig{Name: t.name}
	order, err := cfg.columns(t.schema, decideConfig.order)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	d, ok := tbl.Catalog().DecideIndex(order, preds)
	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"", "Index", "Kind", "Key"})
	for i, def := range tbl.Catalog().Definitions() {
		chosen := ""
		if ok && i == d.Index {
			chosen = "*"
		}
		var key string
		for j, k := range def.Keys {
			if j > 0 {
				key += ", "
			}
			key += t.schema[k.Col].Name + "_" + k.Role.String()
		}
		tw.Append([]string{chosen, def.Name, def.Kind.String(), key})
	}
	tw.Render()
	if !ok {
		fmt.Fprintln(out, "no zone index serves the scan; it reads the whole catalog")
		return nil
	}
	fmt.Fprintf(out, "scan order: %v\n", d.Order)
	return nil
}
