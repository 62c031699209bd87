// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// RegisterOptions carries the caller-supplied fields for RegisterProject.
// Validated with go-playground/validator before any registry mutation is
// attempted, so a malformed request never partially applies.
type RegisterOptions struct {
	Priority       Priority       `validate:"required"`
	ResourceLimits ResourceLimits `validate:"required"`
	ChatChannel    string
}

// DefaultRegisterOptions returns options suitable for a project discovered
// with no further operator input: NORMAL priority, default resource caps.
func DefaultRegisterOptions() RegisterOptions {
	return RegisterOptions{
		Priority:       PriorityNormal,
		ResourceLimits: DefaultResourceLimits(),
	}
}

// RegisterProject canonicalises path, creates the project's per-project
// state directory and marker file, and persists the updated registry.
//
// Fails with ErrAlreadyExists if name is taken, ErrPathMissing if path does
// not exist, ErrPathDuplicate if another project already owns path.
func (m *Manager) RegisterProject(name, path string, opts RegisterOptions) (*ProjectRecord, error) {
	if !opts.Priority.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPriority, opts.Priority)
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("config: invalid register options: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPathMissing, absPath)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.registry.Projects[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	for other, rec := range m.registry.Projects {
		if rec.Path == absPath {
			return nil, fmt.Errorf("%w: %s already registered at %s", ErrPathDuplicate, other, absPath)
		}
	}

	stateDir := filepath.Join(absPath, ".orch-state")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("config: create project state dir: %w", err)
	}

	rec := &ProjectRecord{
		Name:           name,
		Path:           absPath,
		Priority:       opts.Priority,
		Status:         StatusInitializing,
		ResourceLimits: opts.ResourceLimits,
		CreatedAt:      now(),
		ChatChannel:    opts.ChatChannel,
	}

	if err := writeProjectMarker(stateDir, rec); err != nil {
		return nil, fmt.Errorf("config: write project marker: %w", err)
	}

	m.registry.Projects[name] = rec
	if err := m.saveLocked(); err != nil {
		delete(m.registry.Projects, name)
		return nil, err
	}
	return rec, nil
}

// RemoveProject deletes the project's record and persists the registry.
// Idempotent: removing an unknown project returns false, not an error.
func (m *Manager) RemoveProject(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Projects[name]; !ok {
		return false
	}
	delete(m.registry.Projects, name)
	_ = m.saveLocked()
	return true
}

// UpdateProjectStatus sets status and bumps last_activity, then persists.
func (m *Manager) UpdateProjectStatus(name string, status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	m.mu.Lock()
	rec, ok := m.registry.Projects[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProject, name)
	}
	rec.Status = status
	t := now()
	rec.LastActivity = &t
	m.mu.Unlock()

	return m.Save()
}

// AddProjectDependency records a dependency edge after confirming both
// projects exist and that the prospective graph (current graph plus this
// edge) remains acyclic.
func (m *Manager) AddProjectDependency(src, dst string, kind DependencyKind, criticality string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	srcRec, ok := m.registry.Projects[src]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProject, src)
	}
	if _, ok := m.registry.Projects[dst]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProject, dst)
	}

	if m.wouldCycleLocked(src, dst) {
		return fmt.Errorf("%w: %s -> %s", ErrWouldCycle, src, dst)
	}

	srcRec.Dependencies = append(srcRec.Dependencies, Dependency{
		TargetProject: dst,
		Kind:          kind,
		Criticality:   criticality,
	})
	return m.saveLocked()
}

// ListProjects returns every registered project.
func (m *Manager) ListProjects() []*ProjectRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ProjectRecord, 0, len(m.registry.Projects))
	for _, rec := range m.registry.Projects {
		out = append(out, rec)
	}
	return out
}

// GetProject returns the named project, if registered.
func (m *Manager) GetProject(name string) (*ProjectRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.registry.Projects[name]
	return rec, ok
}

// GetActiveProjects returns every project whose status is ACTIVE.
func (m *Manager) GetActiveProjects() []*ProjectRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ProjectRecord, 0)
	for _, rec := range m.registry.Projects {
		if rec.Status == StatusActive {
			out = append(out, rec)
		}
	}
	return out
}

// GetProjectDependencies returns name's recorded dependency edges.
func (m *Manager) GetProjectDependencies(name string) []Dependency {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.registry.Projects[name]
	if !ok {
		return nil
	}
	out := make([]Dependency, len(rec.Dependencies))
	copy(out, rec.Dependencies)
	return out
}

// GetDependentProjects returns the names of every project that depends on
// name (i.e. name appears as a dependency target).
func (m *Manager) GetDependentProjects(name string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for candidate, rec := range m.registry.Projects {
		for _, dep := range rec.Dependencies {
			if dep.TargetProject == name {
				out = append(out, candidate)
				break
			}
		}
	}
	return out
}

// wouldCycleLocked checks whether adding the edge src->dst to the current
// graph creates a cycle, using a standard DFS with a visiting set starting
// from dst: if dst can already reach src, the new edge closes a loop.
// mu must be held by the caller.
func (m *Manager) wouldCycleLocked(src, dst string) bool {
	if src == dst {
		return true
	}
	visiting := make(map[string]bool)
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == src {
			return true
		}
		if visiting[node] {
			return false
		}
		visiting[node] = true
		rec, ok := m.registry.Projects[node]
		if !ok {
			return false
		}
		for _, dep := range rec.Dependencies {
			if dfs(dep.TargetProject) {
				return true
			}
		}
		return false
	}
	return dfs(dst)
}

// ValidateConfiguration returns every invariant violation currently
// present in the registry. It never mutates state or returns an error;
// callers inspect the issue list.
func (m *Manager) ValidateConfiguration() []Issue {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var issues []Issue

	if m.registry.Global.MaxConcurrentProjects > m.registry.Global.MaxTotalAgents {
		issues = append(issues, Issue{
			Code:    "max_concurrent_exceeds_total_agents",
			Message: "max_concurrent_projects must not exceed max_total_agents",
		})
	}

	seenPaths := make(map[string]string)
	for name, rec := range m.registry.Projects {
		if other, ok := seenPaths[rec.Path]; ok {
			issues = append(issues, Issue{
				Code:    "duplicate_path",
				Message: fmt.Sprintf("projects %s and %s share path %s", other, name, rec.Path),
			})
		} else {
			seenPaths[rec.Path] = name
		}

		if _, err := os.Stat(rec.Path); err != nil {
			issues = append(issues, Issue{
				Code:    "path_missing",
				Message: fmt.Sprintf("project %s path does not exist: %s", name, rec.Path),
			})
		}

		for _, dep := range rec.Dependencies {
			if _, ok := m.registry.Projects[dep.TargetProject]; !ok {
				issues = append(issues, Issue{
					Code:    "unknown_dependency_target",
					Message: fmt.Sprintf("project %s depends on unknown project %s", name, dep.TargetProject),
				})
			}
		}
	}

	for name := range m.registry.Projects {
		visiting := make(map[string]bool)
		if m.hasCycleFrom(name, visiting) {
			issues = append(issues, Issue{
				Code:    "dependency_cycle",
				Message: fmt.Sprintf("dependency cycle reachable from %s", name),
			})
			break
		}
	}

	return issues
}

func (m *Manager) hasCycleFrom(node string, visiting map[string]bool) bool {
	if visiting[node] {
		return true
	}
	visiting[node] = true
	defer delete(visiting, node)

	rec, ok := m.registry.Projects[node]
	if !ok {
		return false
	}
	for _, dep := range rec.Dependencies {
		if m.hasCycleFrom(dep.TargetProject, visiting) {
			return true
		}
	}
	return false
}

// saveLocked persists the registry; mu must already be held (for writing)
// by the caller. It calls persist directly rather than Save, which would
// otherwise deadlock trying to re-acquire mu.
func (m *Manager) saveLocked() error {
	return m.persist(m.registry)
}

type projectMarker struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

func writeProjectMarker(stateDir string, rec *ProjectRecord) error {
	markerPath := filepath.Join(stateDir, "project-config.json")
	data, err := json.Marshal(projectMarker{
		Name:      rec.Name,
		Path:      rec.Path,
		Priority:  rec.Priority,
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("config: marshal project marker: %w", err)
	}
	return os.WriteFile(markerPath, data, 0644)
}
