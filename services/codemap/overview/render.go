// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package overview

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Styles used when stdout is a terminal.
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	countStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)

// Render formats the report for a terminal or a pipe.
//
// Styled output only when stdout is a TTY; redirected output gets the
// same text without escape codes.
func (r *Report) Render() string {
	styled := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return r.render(styled)
}

func (r *Report) render(styled bool) string {
	style := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", style(titleStyle, "Code map: "+r.ProjectRoot))
	fmt.Fprintf(&b, "%s\n\n", style(dimStyle, "run "+r.RunID))

	fmt.Fprintf(&b, "%s\n", style(sectionStyle, "Corpus"))
	fmt.Fprintf(&b, "  files walked   %s", style(countStyle, fmt.Sprintf("%d", r.Files)))
	if r.FilesFailed > 0 {
		fmt.Fprintf(&b, "  (%s)", style(warnStyle, fmt.Sprintf("%d failed", r.FilesFailed)))
	}
	b.WriteString("\n")
	if len(r.Classes) > 0 {
		classes := make([]string, 0, len(r.Classes))
		for class := range r.Classes {
			classes = append(classes, class)
		}
		sort.Strings(classes)
		parts := make([]string, 0, len(classes))
		for _, class := range classes {
			parts = append(parts, fmt.Sprintf("%s=%d", class, r.Classes[class]))
		}
		fmt.Fprintf(&b, "  classes        %s\n", strings.Join(parts, " "))
	}

	fmt.Fprintf(&b, "\n%s\n", style(sectionStyle, "Symbols"))
	fmt.Fprintf(&b, "  total          %s\n", style(countStyle, fmt.Sprintf("%d", r.Symbols)))
	fmt.Fprintf(&b, "  functions      %d (%d defined, %d prototype-only)\n",
		r.Functions, r.Defined, r.PrototypeOnly)
	fmt.Fprintf(&b, "  externals      %d\n", r.Externals)
	fmt.Fprintf(&b, "  call edges     %d", r.Edges)
	if r.SelfLoops > 0 {
		fmt.Fprintf(&b, " (%d recursive)", r.SelfLoops)
	}
	b.WriteString("\n")

	if len(r.TopCallees) > 0 {
		fmt.Fprintf(&b, "\n%s\n", style(sectionStyle, "Most called"))
		for _, h := range r.TopCallees {
			fmt.Fprintf(&b, "  %4d  %s  %s\n", h.Degree, h.Name, style(dimStyle, h.File))
		}
	}
	if len(r.TopCallers) > 0 {
		fmt.Fprintf(&b, "\n%s\n", style(sectionStyle, "Widest callers"))
		for _, h := range r.TopCallers {
			fmt.Fprintf(&b, "  %4d  %s  %s\n", h.Degree, h.Name, style(dimStyle, h.File))
		}
	}

	if len(r.Ambiguous) > 0 {
		fmt.Fprintf(&b, "\n%s\n", style(sectionStyle, "Ambiguous symbols"))
		for _, a := range r.Ambiguous {
			locs := make([]string, 0, len(a.Locations))
			for _, l := range a.Locations {
				locs = append(locs, fmt.Sprintf("%s:%d", l.File, l.Line))
			}
			fmt.Fprintf(&b, "  %s  %s (%s)\n",
				style(warnStyle, a.Name), a.Kind, strings.Join(locs, ", "))
		}
	}

	if len(r.ExternalFamilies) > 0 {
		fmt.Fprintf(&b, "\n%s\n", style(sectionStyle, "External calls"))
		families := make([]string, 0, len(r.ExternalFamilies))
		for f := range r.ExternalFamilies {
			families = append(families, f)
		}
		sort.Strings(families)
		for _, f := range families {
			names := r.ExternalFamilies[f]
			fmt.Fprintf(&b, "  %-11s %d  %s\n", f, len(names),
				style(dimStyle, previewNames(names, 6)))
		}
	}

	if len(r.DiagnosticCounts) > 0 {
		fmt.Fprintf(&b, "\n%s\n", style(sectionStyle, "Diagnostics"))
		codes := make([]string, 0, len(r.DiagnosticCounts))
		for code := range r.DiagnosticCounts {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			fmt.Fprintf(&b, "  %-22s %d\n", code, r.DiagnosticCounts[code])
		}
	}
	return b.String()
}

func previewNames(names []string, n int) string {
	if len(names) <= n {
		return strings.Join(names, ", ")
	}
	return strings.Join(names[:n], ", ") + ", ..."
}
