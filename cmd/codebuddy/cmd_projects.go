// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LunarLaurus/codebuddy/services/codemap/project"
)

func newProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage the registry of known projects",
	}
	cmd.AddCommand(
		newProjectsListCmd(),
		newProjectsAddCmd(),
		newProjectsRemoveCmd(),
		newProjectsSelectCmd(),
	)
	return cmd
}

func loadRegistry() (*project.Registry, error) {
	path, err := project.DefaultPath()
	if err != nil {
		return nil, err
	}
	return project.Load(path)
}

func newProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			projects := reg.List()
			if flagJSON {
				return printJSON(cmd, projects)
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects registered. Add one with `codebuddy projects add <name> <root>`.")
				return nil
			}
			current, _ := reg.CurrentProject()
			for _, p := range projects {
				marker := " "
				if p.Name == current.Name {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-20s %s\n", marker, p.Name, p.Root)
			}
			return nil
		},
	}
}

func newProjectsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <root>",
		Short: "Register a project root under a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			if err := reg.Add(args[0], args[1]); err != nil {
				return err
			}
			if err := reg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added project %s\n", args[0])
			return nil
		},
	}
}

func newProjectsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a project from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			if err := reg.Remove(args[0]); err != nil {
				return err
			}
			if err := reg.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed project %s\n", args[0])
			return nil
		},
	}
}

func newProjectsSelectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select [name]",
		Short: "Make a project the default for all commands",
		Long: "select sets the registry's current project. Without a name it opens\n" +
			"an interactive picker.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				if err := reg.Select(args[0]); err != nil {
					return err
				}
			} else {
				if _, err := reg.Pick(); err != nil {
					return err
				}
			}
			if err := reg.Save(); err != nil {
				return err
			}

			current, _ := reg.CurrentProject()
			fmt.Fprintf(cmd.OutOrStdout(), "Selected %s (%s)\n", current.Name, current.Root)
			return nil
		},
	}
}
