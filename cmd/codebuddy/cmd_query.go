// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LunarLaurus/codebuddy/services/codemap/search"
	"github.com/LunarLaurus/codebuddy/services/codemap/symtab"
	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

func newFindCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "find <query>",
		Short: "Find symbols by name (exact, prefix, substring, fuzzy)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := buildMap(cmd, cfg)
			if err != nil {
				return err
			}

			matches := search.Find(result.Table, args[0], limit)
			if flagJSON {
				return printJSON(cmd, matches)
			}
			if len(matches) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No symbols match %q.\n", args[0])
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", m.MatchType, describeSymbol(m.Symbol))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}

func newCallersCmd() *cobra.Command {
	return newRelationCmd("callers", "Show the functions that call the named function",
		func(p *views.Projector, name string) ([]*symtab.Symbol, error) {
			return p.CallersOf(name)
		})
}

func newCalleesCmd() *cobra.Command {
	return newRelationCmd("callees", "Show the functions the named function calls",
		func(p *views.Projector, name string) ([]*symtab.Symbol, error) {
			return p.CalleesOf(name)
		})
}

func newRelationCmd(use, short string, relation func(*views.Projector, string) ([]*symtab.Symbol, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <function>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := buildMap(cmd, cfg)
			if err != nil {
				return err
			}

			symbols, err := relation(result.Projector, args[0])
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd, symbols)
			}
			if len(symbols) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s has no %s in the mapped files.\n", args[0], use)
				return nil
			}
			for _, s := range symbols {
				fmt.Fprintln(cmd.OutOrStdout(), describeSymbol(s))
			}
			return nil
		},
	}
}

func describeSymbol(s *symtab.Symbol) string {
	if s.IsExternal() {
		return fmt.Sprintf("%s (external)", s.Name)
	}
	suffix := ""
	if !s.HasDefinition {
		suffix = " (prototype only)"
	} else if s.Ambiguous {
		suffix = " (ambiguous)"
	}
	return fmt.Sprintf("%s  %s:%d%s", s.Name, s.File, s.Line, suffix)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
