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

func TestDiscover_ClassifiesByMarker(t *testing.T) {
	root := t.TempDir()

	orchExisting := filepath.Join(root, "already-orchestrated")
	require.NoError(t, os.MkdirAll(filepath.Join(orchExisting, ".orch-state"), 0755))

	gitRepo := filepath.Join(root, "git-project")
	require.NoError(t, os.MkdirAll(filepath.Join(gitRepo, ".git"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(gitRepo, "package.json"), []byte("{}"), 0644))

	plain := filepath.Join(root, "plain-dir")
	require.NoError(t, os.MkdirAll(plain, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(plain, "go.mod"), []byte("module x\n"), 0644))

	m := newTestManager(t)
	found, err := m.Discover(root)
	require.NoError(t, err)
	require.Len(t, found, 3)

	byName := make(map[string]DiscoveredProject, len(found))
	for _, p := range found {
		byName[p.Name] = p
	}

	assert.Equal(t, RepoOrchExisting, byName["already-orchestrated"].Kind)
	assert.Equal(t, RepoGit, byName["git-project"].Kind)
	assert.Equal(t, Language("nodejs"), byName["git-project"].Language)
	assert.Equal(t, RepoUnknown, byName["plain-dir"].Kind)
	assert.Equal(t, LanguageGo, byName["plain-dir"].Language)
}

func TestDiscover_SkipsAlreadyRegisteredPaths(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "registered")
	require.NoError(t, os.MkdirAll(sub, 0755))

	m := newTestManager(t)
	_, err := m.RegisterProject("registered", sub, DefaultRegisterOptions())
	require.NoError(t, err)

	found, err := m.Discover(root)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestDiscover_SkipsHiddenDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".hidden"), 0755))

	m := newTestManager(t)
	found, err := m.Discover(root)
	require.NoError(t, err)
	assert.Empty(t, found)
}
