// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(filepath.Join(t.TempDir(), "orch-config.yaml"), nil)
	require.NoError(t, m.Load())
	return m
}

func registerN(t *testing.T, m *Manager, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := m.RegisterProject(name, t.TempDir(), DefaultRegisterOptions())
		require.NoError(t, err)
	}
}

func TestAddProjectDependency_Simple(t *testing.T) {
	m := newTestManager(t)
	registerN(t, m, "alpha", "beta")

	err := m.AddProjectDependency("alpha", "beta", DependencyBlocks, "high")
	require.NoError(t, err)

	deps := m.GetProjectDependencies("alpha")
	require.Len(t, deps, 1)
	assert.Equal(t, "beta", deps[0].TargetProject)

	dependents := m.GetDependentProjects("beta")
	assert.Equal(t, []string{"alpha"}, dependents)
}

func TestAddProjectDependency_RejectsUnknownProjects(t *testing.T) {
	m := newTestManager(t)
	registerN(t, m, "alpha")

	err := m.AddProjectDependency("alpha", "ghost", DependencyBlocks, "high")
	assert.ErrorIs(t, err, ErrUnknownProject)

	err = m.AddProjectDependency("ghost", "alpha", DependencyBlocks, "high")
	assert.ErrorIs(t, err, ErrUnknownProject)
}

func TestAddProjectDependency_RejectsSelfCycle(t *testing.T) {
	m := newTestManager(t)
	registerN(t, m, "alpha")

	err := m.AddProjectDependency("alpha", "alpha", DependencyBlocks, "high")
	assert.ErrorIs(t, err, ErrWouldCycle)
}

func TestAddProjectDependency_RejectsTransitiveCycle(t *testing.T) {
	m := newTestManager(t)
	registerN(t, m, "alpha", "beta", "gamma")

	require.NoError(t, m.AddProjectDependency("alpha", "beta", DependencyBlocks, "high"))
	require.NoError(t, m.AddProjectDependency("beta", "gamma", DependencyBlocks, "high"))

	err := m.AddProjectDependency("gamma", "alpha", DependencyBlocks, "high")
	assert.ErrorIs(t, err, ErrWouldCycle)
}

func TestValidateConfiguration_FlagsDependencyCycleFromDisk(t *testing.T) {
	// A cycle can only exist in a loaded registry if it was written by an
	// older version of the tool, or edited by hand; ValidateConfiguration
	// must still catch it even though AddProjectDependency itself refuses
	// to create one.
	m := newTestManager(t)
	registerN(t, m, "alpha", "beta")

	rec, _ := m.GetProject("alpha")
	rec.Dependencies = append(rec.Dependencies, Dependency{TargetProject: "beta", Kind: DependencyBlocks})
	other, _ := m.GetProject("beta")
	other.Dependencies = append(other.Dependencies, Dependency{TargetProject: "alpha", Kind: DependencyBlocks})

	issues := m.ValidateConfiguration()
	var foundCycle bool
	for _, issue := range issues {
		if issue.Code == "dependency_cycle" {
			foundCycle = true
		}
	}
	assert.True(t, foundCycle)
}

func TestValidateConfiguration_FlagsUnknownDependencyTarget(t *testing.T) {
	m := newTestManager(t)
	registerN(t, m, "alpha")

	rec, _ := m.GetProject("alpha")
	rec.Dependencies = append(rec.Dependencies, Dependency{TargetProject: "ghost", Kind: DependencyBlocks})

	issues := m.ValidateConfiguration()
	require.Len(t, issues, 1)
	assert.Equal(t, "unknown_dependency_target", issues[0].Code)
}

func TestValidateConfiguration_Clean(t *testing.T) {
	m := newTestManager(t)
	registerN(t, m, "alpha", "beta")
	require.NoError(t, m.AddProjectDependency("alpha", "beta", DependencyBlocks, "high"))

	assert.Empty(t, m.ValidateConfiguration())
}
