// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/LunarLaurus/codebuddy/services/codemap/views"
)

func newBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse the call graph interactively",
		Long: "browse builds the map and opens a terminal browser over every\n" +
			"function: arrow keys to move, enter to show callers and callees,\n" +
			"/ to filter, q to quit.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := buildMap(cmd, cfg)
			if err != nil {
				return err
			}

			model := newBrowseModel(result.Projector, cfg.Root)
			_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
			return err
		},
	}
}

// functionItem adapts a function view for the bubbles list.
type functionItem struct {
	view views.FunctionView
}

func (i functionItem) Title() string { return i.view.Name }

func (i functionItem) Description() string {
	switch {
	case i.view.External:
		return "external"
	case !i.view.HasDefinition:
		return fmt.Sprintf("prototype only  %s:%d", i.view.File, i.view.Line)
	default:
		desc := fmt.Sprintf("%s:%d  %d callers, %d callees",
			i.view.File, i.view.Line, len(i.view.Callers), len(i.view.Callees))
		if i.view.Ambiguous {
			desc += "  (ambiguous)"
		}
		return desc
	}
}

func (i functionItem) FilterValue() string { return i.view.Name }

var (
	browseTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	browseDetailStyle = lipgloss.NewStyle().PaddingLeft(2)
	browseDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// browseModel is the bubbletea model: a filterable function list with a
// detail pane for the selected function's call relations.
type browseModel struct {
	list     list.Model
	selected *views.FunctionView
}

func newBrowseModel(projector *views.Projector, root string) browseModel {
	allViews := projector.AllFunctionViews()
	items := make([]list.Item, 0, len(allViews))
	for _, v := range allViews {
		items = append(items, functionItem{view: v})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Functions in " + root
	l.Styles.Title = browseTitleStyle
	return browseModel{list: l}
}

func (m browseModel) Init() tea.Cmd {
	return nil
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-1)
		return m, nil

	case tea.KeyMsg:
		// Don't intercept keys while the filter input is active.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(functionItem); ok {
				v := item.view
				m.selected = &v
			}
			return m, nil
		case "esc":
			if m.selected != nil {
				m.selected = nil
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m browseModel) View() string {
	if m.selected != nil {
		return m.detailView(*m.selected)
	}
	return m.list.View()
}

func (m browseModel) detailView(v views.FunctionView) string {
	var b strings.Builder
	b.WriteString(browseTitleStyle.Render(v.Name) + "\n\n")

	switch {
	case v.External:
		b.WriteString(browseDetailStyle.Render("external (no definition in the mapped files)") + "\n")
	case !v.HasDefinition:
		b.WriteString(browseDetailStyle.Render(fmt.Sprintf("prototype only, declared at %s:%d", v.File, v.Line)) + "\n")
	default:
		b.WriteString(browseDetailStyle.Render(fmt.Sprintf("defined at %s:%d", v.File, v.Line)) + "\n")
	}
	if v.Ambiguous {
		b.WriteString(browseDetailStyle.Render("multiple conflicting definitions, first kept") + "\n")
	}

	b.WriteString("\n" + browseDetailStyle.Render(fmt.Sprintf("called by (%d):", len(v.Callers))) + "\n")
	for _, name := range v.Callers {
		b.WriteString(browseDetailStyle.Render("  "+name) + "\n")
	}
	b.WriteString("\n" + browseDetailStyle.Render(fmt.Sprintf("calls (%d):", len(v.Callees))) + "\n")
	for _, name := range v.Callees {
		b.WriteString(browseDetailStyle.Render("  "+name) + "\n")
	}

	b.WriteString("\n" + browseDimStyle.Render("esc to go back, q to quit") + "\n")
	return b.String()
}
