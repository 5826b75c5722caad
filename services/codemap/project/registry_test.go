// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.yaml")
	r, err := Load(path)
	require.NoError(t, err)
	return r, dir
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	r, _ := newTestRegistry(t)
	assert.Empty(t, r.List())
	_, ok := r.CurrentProject()
	assert.False(t, ok)
}

func TestAddSaveReload(t *testing.T) {
	r, dir := newTestRegistry(t)
	require.NoError(t, r.Add("kernel", dir))
	require.NoError(t, r.Select("kernel"))
	require.NoError(t, r.Save())

	again, err := Load(r.path)
	require.NoError(t, err)
	projects := again.List()
	require.Len(t, projects, 1)
	assert.Equal(t, "kernel", projects[0].Name)
	assert.Equal(t, dir, projects[0].Root)
	assert.NotZero(t, projects[0].AddedAtMilli)

	current, ok := again.CurrentProject()
	require.True(t, ok)
	assert.Equal(t, "kernel", current.Name)
}

func TestAdd_Validation(t *testing.T) {
	r, dir := newTestRegistry(t)

	require.NoError(t, r.Add("proj", dir))
	err := r.Add("proj", dir)
	assert.ErrorIs(t, err, ErrProjectExists)

	assert.Error(t, r.Add("", dir), "empty name")
	assert.Error(t, r.Add("ghost", filepath.Join(dir, "nope")), "missing root")
}

func TestRemove(t *testing.T) {
	r, dir := newTestRegistry(t)
	require.NoError(t, r.Add("a", dir))
	require.NoError(t, r.Add("b", dir))
	require.NoError(t, r.Select("a"))

	require.NoError(t, r.Remove("a"))
	assert.Len(t, r.List(), 1)
	_, ok := r.CurrentProject()
	assert.False(t, ok, "removing the current project clears the selection")

	assert.ErrorIs(t, r.Remove("a"), ErrProjectNotFound)
}

func TestList_Sorted(t *testing.T) {
	r, dir := newTestRegistry(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Add(name, dir))
	}
	got := r.List()
	require.Len(t, got, 3)
	assert.Equal(t, "alpha", got[0].Name)
	assert.Equal(t, "mid", got[1].Name)
	assert.Equal(t, "zeta", got[2].Name)
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "projects.yaml")
	require.NoError(t, os.WriteFile(path, []byte("projects: [not: valid: yaml"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestPick_EmptyRegistry(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Pick()
	assert.True(t, errors.Is(err, ErrNoProjects))
}
