// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package project keeps the named project registry: a small yaml file
// under the user's home directory mapping project names to roots, so
// CLI invocations can say "codebuddy map -p kernel" instead of
// repeating paths.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const registryFileName = "projects.yaml"

// Registry state violations.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectExists   = errors.New("project already registered")
	ErrNoProjects      = errors.New("no projects registered")
)

// Project is one registered project.
type Project struct {
	Name          string `yaml:"name"`
	Root          string `yaml:"root"`
	AddedAtMilli  int64  `yaml:"added_at"`
	LastUsedMilli int64  `yaml:"last_used,omitempty"`
}

// Registry is the on-disk project list plus the current selection.
//
// Thread Safety: not safe for concurrent use; the CLI is the only
// writer and operates single-threaded.
type Registry struct {
	path     string
	Projects []Project `yaml:"projects"`
	Current  string    `yaml:"current,omitempty"`
}

// DefaultPath returns ~/.codebuddy/projects.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".codebuddy", registryFileName), nil
}

// Load reads the registry at path. A missing file yields an empty
// registry, not an error; first use creates it on Save.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project registry: %w", err)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse project registry %s: %w", path, err)
	}
	return r, nil
}

// Save writes the registry back, creating the directory if needed.
func (r *Registry) Save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode project registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write project registry: %w", err)
	}
	return nil
}

// Add registers a new project. The root must be an existing
// directory; it is stored absolute.
func (r *Registry) Add(name, root string) error {
	if name == "" {
		return fmt.Errorf("project name must not be empty")
	}
	if _, err := r.Get(name); err == nil {
		return fmt.Errorf("%w: %s", ErrProjectExists, name)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve project root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("project root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("project root %s is not a directory", abs)
	}
	r.Projects = append(r.Projects, Project{
		Name:         name,
		Root:         abs,
		AddedAtMilli: time.Now().UnixMilli(),
	})
	sort.Slice(r.Projects, func(i, j int) bool { return r.Projects[i].Name < r.Projects[j].Name })
	return nil
}

// Remove unregisters a project. Removing the current selection
// clears it.
func (r *Registry) Remove(name string) error {
	for i, p := range r.Projects {
		if p.Name == name {
			r.Projects = append(r.Projects[:i], r.Projects[i+1:]...)
			if r.Current == name {
				r.Current = ""
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
}

// Get returns the named project.
func (r *Registry) Get(name string) (Project, error) {
	for _, p := range r.Projects {
		if p.Name == name {
			return p, nil
		}
	}
	return Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
}

// Select makes the named project current and stamps its last use.
func (r *Registry) Select(name string) error {
	for i, p := range r.Projects {
		if p.Name == name {
			r.Projects[i].LastUsedMilli = time.Now().UnixMilli()
			r.Current = name
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrProjectNotFound, name)
}

// CurrentProject returns the selected project, if any.
func (r *Registry) CurrentProject() (Project, bool) {
	if r.Current == "" {
		return Project{}, false
	}
	p, err := r.Get(r.Current)
	if err != nil {
		return Project{}, false
	}
	return p, true
}

// List returns the registered projects, sorted by name.
func (r *Registry) List() []Project {
	out := make([]Project, len(r.Projects))
	copy(out, r.Projects)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
