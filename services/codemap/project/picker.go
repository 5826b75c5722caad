// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package project

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Pick prompts the user to choose a registered project interactively
// and returns the chosen project. The selection is recorded on the
// registry but not saved; the caller decides whether to persist it.
func (r *Registry) Pick() (Project, error) {
	projects := r.List()
	if len(projects) == 0 {
		return Project{}, ErrNoProjects
	}

	options := make([]huh.Option[string], 0, len(projects))
	for _, p := range projects {
		label := fmt.Sprintf("%s  (%s)", p.Name, p.Root)
		options = append(options, huh.NewOption(label, p.Name))
	}

	choice := r.Current
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Select a project").
			Options(options...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return Project{}, fmt.Errorf("project picker: %w", err)
	}
	if err := r.Select(choice); err != nil {
		return Project{}, err
	}
	return r.Get(choice)
}
