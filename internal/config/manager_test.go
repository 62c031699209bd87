// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Load_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orch-config.yaml")
	m := NewManager(path, nil)

	err := m.Load()
	require.NoError(t, err)
	assert.Empty(t, m.ListProjects())
	assert.Equal(t, DefaultGlobalConfig(), m.Global())
}

func TestManager_Load_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orch-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: [["), 0644))

	m := NewManager(path, nil)
	err := m.Load()

	require.NoError(t, err, "a corrupt file must not prevent startup")
	assert.Empty(t, m.ListProjects())
}

func TestManager_SaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orch-config.yaml")
	projectDir := t.TempDir()

	m := NewManager(path, nil)
	require.NoError(t, m.Load())

	rec, err := m.RegisterProject("alpha", projectDir, RegisterOptions{
		Priority:       PriorityHigh,
		ResourceLimits: DefaultResourceLimits(),
	})
	require.NoError(t, err)
	assert.Equal(t, StatusInitializing, rec.Status)

	m2 := NewManager(path, nil)
	require.NoError(t, m2.Load())

	loaded, ok := m2.GetProject("alpha")
	require.True(t, ok)
	assert.Equal(t, PriorityHigh, loaded.Priority)
	assert.Equal(t, rec.Path, loaded.Path)
}

func TestManager_Save_RotatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orch-config.yaml")
	m := NewManager(path, nil)
	require.NoError(t, m.Load())
	require.NoError(t, m.Save())

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".backup")
	assert.True(t, os.IsNotExist(err), "no backup should exist before a second save")

	require.NoError(t, m.Save())
	_, err = os.Stat(path + ".backup")
	assert.NoError(t, err, "second save should rotate the prior file to .backup")
}

func TestManager_RegisterProject_RejectsUnknownPath(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "orch-config.yaml"), nil)
	require.NoError(t, m.Load())

	_, err := m.RegisterProject("alpha", filepath.Join(t.TempDir(), "does-not-exist"), DefaultRegisterOptions())
	assert.ErrorIs(t, err, ErrPathMissing)
}

func TestManager_RegisterProject_RejectsDuplicateName(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "orch-config.yaml"), nil)
	require.NoError(t, m.Load())

	dir1, dir2 := t.TempDir(), t.TempDir()
	_, err := m.RegisterProject("alpha", dir1, DefaultRegisterOptions())
	require.NoError(t, err)

	_, err = m.RegisterProject("alpha", dir2, DefaultRegisterOptions())
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestManager_RegisterProject_RejectsDuplicatePath(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "orch-config.yaml"), nil)
	require.NoError(t, m.Load())

	dir := t.TempDir()
	_, err := m.RegisterProject("alpha", dir, DefaultRegisterOptions())
	require.NoError(t, err)

	_, err = m.RegisterProject("beta", dir, DefaultRegisterOptions())
	assert.ErrorIs(t, err, ErrPathDuplicate)
}

func TestManager_RemoveProject(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "orch-config.yaml"), nil)
	require.NoError(t, m.Load())

	dir := t.TempDir()
	_, err := m.RegisterProject("alpha", dir, DefaultRegisterOptions())
	require.NoError(t, err)

	assert.True(t, m.RemoveProject("alpha"))
	assert.False(t, m.RemoveProject("alpha"), "second removal of the same project is a no-op")
	_, ok := m.GetProject("alpha")
	assert.False(t, ok)
}

func TestManager_UpdateProjectStatus(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "orch-config.yaml"), nil)
	require.NoError(t, m.Load())

	dir := t.TempDir()
	_, err := m.RegisterProject("alpha", dir, DefaultRegisterOptions())
	require.NoError(t, err)

	require.NoError(t, m.UpdateProjectStatus("alpha", StatusActive))
	rec, _ := m.GetProject("alpha")
	assert.Equal(t, StatusActive, rec.Status)
	require.NotNil(t, rec.LastActivity)

	err = m.UpdateProjectStatus("unknown", StatusActive)
	assert.ErrorIs(t, err, ErrUnknownProject)

	err = m.UpdateProjectStatus("alpha", Status("bogus"))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestManager_GetActiveProjects(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "orch-config.yaml"), nil)
	require.NoError(t, m.Load())

	for _, name := range []string{"alpha", "beta"} {
		_, err := m.RegisterProject(name, t.TempDir(), DefaultRegisterOptions())
		require.NoError(t, err)
	}
	require.NoError(t, m.UpdateProjectStatus("alpha", StatusActive))

	active := m.GetActiveProjects()
	require.Len(t, active, 1)
	assert.Equal(t, "alpha", active[0].Name)
}
