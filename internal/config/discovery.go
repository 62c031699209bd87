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
)

// RepoKind classifies how a discovered directory relates to orchestration
// and version control.
type RepoKind string

const (
	RepoOrchExisting RepoKind = "orch_existing"
	RepoGit          RepoKind = "git"
	RepoUnknown      RepoKind = "unknown"
)

// Language identifies the primary toolchain a discovered project appears
// to use, inferred from a single marker file found at its root.
type Language string

const (
	LanguageNode    Language = "nodejs"
	LanguagePython  Language = "python"
	LanguageRust    Language = "rust"
	LanguageJava    Language = "java"
	LanguageGo      Language = "go"
	LanguageUnknown Language = "unknown"
)

var languageMarkers = []struct {
	file string
	lang Language
}{
	{"package.json", LanguageNode},
	{"requirements.txt", LanguagePython},
	{"pyproject.toml", LanguagePython},
	{"Cargo.toml", LanguageRust},
	{"pom.xml", LanguageJava},
	{"go.mod", LanguageGo},
}

// DiscoveredProject is a candidate found by Discover, not yet registered.
type DiscoveredProject struct {
	Name     string
	Path     string
	Kind     RepoKind
	Language Language
}

// Discover walks root one level deep, classifying each subdirectory as a
// candidate project. A directory already registered under root (by path)
// is skipped, since re-registering it would trip ErrPathDuplicate anyway.
//
// Classification order mirrors the supervisor's own precedence: a
// directory carrying .orch-state/ is already under orchestration and takes
// priority over the fact that it might also be a git repo.
func (m *Manager) Discover(root string) ([]DiscoveredProject, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	registeredPaths := make(map[string]bool, len(m.registry.Projects))
	for _, rec := range m.registry.Projects {
		registeredPaths[rec.Path] = true
	}
	m.mu.RUnlock()

	var out []DiscoveredProject
	for _, entry := range entries {
		if !entry.IsDir() || filepath.Base(entry.Name())[0] == '.' {
			continue
		}
		path, err := filepath.Abs(filepath.Join(root, entry.Name()))
		if err != nil {
			continue
		}
		if registeredPaths[path] {
			continue
		}
		out = append(out, DiscoveredProject{
			Name:     entry.Name(),
			Path:     path,
			Kind:     classifyKind(path),
			Language: classifyLanguage(path),
		})
	}
	return out, nil
}

func classifyKind(path string) RepoKind {
	if dirExists(filepath.Join(path, ".orch-state")) {
		return RepoOrchExisting
	}
	if dirExists(filepath.Join(path, ".git")) {
		return RepoGit
	}
	return RepoUnknown
}

func classifyLanguage(path string) Language {
	for _, marker := range languageMarkers {
		if fileExists(filepath.Join(path, marker.file)) {
			return marker.lang
		}
	}
	return LanguageUnknown
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
