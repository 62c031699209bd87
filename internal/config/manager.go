// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/multi-project-orchestrator/internal/cloudbackup"
	"github.com/AleutianAI/multi-project-orchestrator/pkg/logging"
)

// Manager is CM: the persistent project registry. It exposes pure queries
// to the scheduler and supervisor and validates every mutation before
// committing it.
//
// # Thread Safety
//
// Manager is safe for concurrent use; all registry access is serialized by
// mu, matching the "mutations serialise through CM.save" shared-resource
// policy.
type Manager struct {
	mu       sync.RWMutex
	path     string
	registry *Registry
	logger   *logging.Logger

	// backup optionally mirrors each .backup file off-host. Nil disables
	// the feature entirely; its absence must never fail a save.
	backup *cloudbackup.Uploader

	watcher      *fsnotify.Watcher
	watcherOnce  sync.Once
	externalEdit func(path string)
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithCloudBackup mirrors every configuration backup to the given uploader.
func WithCloudBackup(u *cloudbackup.Uploader) Option {
	return func(m *Manager) { m.backup = u }
}

// WithExternalEditHook registers a callback invoked when the watcher
// detects a write or create of the config file on disk. Writes made by
// this Manager's own Save are not told apart and also invoke it.
func WithExternalEditHook(fn func(path string)) Option {
	return func(m *Manager) { m.externalEdit = fn }
}

// NewManager creates a Manager bound to path. It does not load; call Load.
func NewManager(path string, logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{
		path:     path,
		registry: newRegistry(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads the registry from disk. A missing file produces a defaulted
// empty registry and logs a single message (not an error) — per §4.1's
// failure semantics, load failure on startup must not prevent the
// supervisor from coming up with an empty registry.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.logger.Info("config file not found, starting with empty registry", "path", m.path)
		m.registry = newRegistry()
		return nil
	}
	if err != nil {
		m.logger.Error("failed to read config file", "path", m.path, "error", err)
		m.registry = newRegistry()
		return nil
	}

	reg := newRegistry()
	if err := yaml.Unmarshal(data, reg); err != nil {
		m.logger.Error("failed to parse config file", "path", m.path, "error", err)
		m.registry = newRegistry()
		return nil
	}
	if reg.Projects == nil {
		reg.Projects = make(map[string]*ProjectRecord)
	}
	for name, rec := range reg.Projects {
		rec.Name = name
	}
	m.registry = reg
	return nil
}

// Save persists the registry atomically: write to path+".tmp", rename the
// existing file (if any) to path+".backup", then rename the temp file into
// place. Save failures are reported to the caller, never swallowed.
func (m *Manager) Save() error {
	m.mu.RLock()
	reg := m.registry
	m.mu.RUnlock()
	return m.persist(reg)
}

// persist writes reg to disk without touching m.mu; callers already holding
// m.mu (for either reading or writing) call this directly instead of Save,
// which would otherwise try to re-acquire the lock.
func (m *Manager) persist(reg *Registry) error {
	data, err := yaml.Marshal(reg)
	if err != nil {
		return fmt.Errorf("config: marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil && filepath.Dir(m.path) != "." {
		return fmt.Errorf("config: create config dir: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}

	backupPath := m.path + ".backup"
	if _, err := os.Stat(m.path); err == nil {
		if err := os.Rename(m.path, backupPath); err != nil {
			return fmt.Errorf("config: rotate backup: %w", err)
		}
		if m.backup != nil {
			go m.backup.Upload(backupPath)
		}
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// WatchExternalChanges starts an fsnotify watch on the config file's
// directory, invoking the registered external-edit hook (if any) whenever
// the file is written or created. The watcher does not distinguish this
// Manager's own Save from edits by other processes. This is a
// diagnostic aid only: CM's own state stays authoritative in memory until
// the next explicit Load.
func (m *Manager) WatchExternalChanges() error {
	var err error
	m.watcherOnce.Do(func() {
		m.watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return
		}
		dir := filepath.Dir(m.path)
		if werr := m.watcher.Add(dir); werr != nil {
			err = werr
			return
		}
		go m.watchLoop()
	})
	return err
}

func (m *Manager) watchLoop() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(m.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				m.logger.Warn("config file changed externally", "path", m.path, "op", event.Op.String())
				if m.externalEdit != nil {
					m.externalEdit(m.path)
				}
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "error", err)
		}
	}
}

// Close stops the external-change watcher, if running.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

// Global returns a copy of the current global tuning record.
func (m *Manager) Global() GlobalConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Global
}

// SetGlobal replaces the global tuning record and persists it.
func (m *Manager) SetGlobal(g GlobalConfig) error {
	m.mu.Lock()
	m.registry.Global = g
	m.mu.Unlock()
	return m.Save()
}

func now() time.Time { return time.Now() }
