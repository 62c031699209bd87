// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// SupervisorLocker guards against a second supervisor instance starting
// against the same global state directory.
//
// # Description
//
// start() must guard against double-start (§4.3): two supervisor processes
// racing to manage the same set of child orchestrators would double-spawn
// every active project. SupervisorLocker makes that race impossible by
// taking an exclusive advisory lock before the four background loops spin
// up.
//
// # Thread Safety
//
// Implementations are not safe for concurrent use from multiple goroutines;
// acquire once from start() before spawning any loop.
type SupervisorLocker interface {
	// Acquire attempts to get an exclusive lock. Returns nil if acquired.
	Acquire() error

	// Release releases the lock if held. Safe to call multiple times.
	Release() error

	// IsHeld returns true if this instance currently holds the lock.
	IsHeld() bool

	// HolderPID returns the PID of the process holding the lock, or 0 if
	// unknown.
	HolderPID() int
}

// LockConfig configures where the supervisor's lock files live.
type LockConfig struct {
	// LockDir is the directory for lock files. Empty means os.TempDir();
	// DefaultLockConfig sets it to the global state dir.
	LockDir string
	// LockName is the base name for lock files. Default: "orchestrator".
	LockName string
}

// DefaultLockConfig returns a lock rooted at the given global state
// directory (the same directory start() creates per §4.3).
func DefaultLockConfig(globalStateDir string) LockConfig {
	return LockConfig{
		LockDir:  globalStateDir,
		LockName: "orchestrator",
	}
}

// SupervisorLock implements SupervisorLocker using flock(2).
//
// # How It Works
//
//  1. Creates a lock file at {LockDir}/{LockName}.lock
//  2. Attempts a non-blocking exclusive flock on the file
//  3. Writes the PID to {LockDir}/{LockName}.pid for diagnostics
//  4. On release, removes the PID file and releases the flock
//
// # Limitations
//
//   - Advisory lock only; a process that doesn't check it can still run
//   - NFS and some network filesystems don't support flock properly
//   - The flock is released by the OS if the process crashes without
//     calling Release, so a stale PID file can persist; HolderPID exists
//     for that diagnosis, not for aliveness verification.
type SupervisorLock struct {
	config   LockConfig
	lockPath string
	pidPath  string
	lockFile *os.File
	held     bool
}

// NewSupervisorLock creates a lock configured to use config's directory and
// name. Does not acquire the lock.
func NewSupervisorLock(config LockConfig) *SupervisorLock {
	if config.LockDir == "" {
		config.LockDir = os.TempDir()
	}
	if config.LockName == "" {
		config.LockName = "orchestrator"
	}

	return &SupervisorLock{
		config:   config,
		lockPath: filepath.Join(config.LockDir, config.LockName+".lock"),
		pidPath:  filepath.Join(config.LockDir, config.LockName+".pid"),
	}
}

// Acquire attempts a non-blocking exclusive flock, returning *ErrLockHeld
// with the holder's pid (when discoverable) if another supervisor already
// holds it.
func (p *SupervisorLock) Acquire() error {
	if p.held {
		return nil
	}

	if err := os.MkdirAll(p.config.LockDir, 0755); err != nil {
		return fmt.Errorf("process: create lock dir %s: %w", p.config.LockDir, err)
	}

	f, err := os.OpenFile(p.lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("process: create lock file %s: %w", p.lockPath, err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return &ErrLockHeld{HolderPID: p.readHolderPID(), LockPath: p.lockPath}
		}
		return fmt.Errorf("process: acquire lock: %w", err)
	}

	p.lockFile = f
	p.held = true
	_ = p.writePID()
	return nil
}

// Release releases the lock if held. Safe to call multiple times.
func (p *SupervisorLock) Release() error {
	if !p.held || p.lockFile == nil {
		return nil
	}

	os.Remove(p.pidPath)
	err := syscall.Flock(int(p.lockFile.Fd()), syscall.LOCK_UN)
	p.lockFile.Close()
	p.lockFile = nil
	p.held = false

	if err != nil {
		return fmt.Errorf("process: release lock: %w", err)
	}
	return nil
}

// IsHeld reports local lock-held state (not a re-check of the OS flock).
func (p *SupervisorLock) IsHeld() bool {
	return p.held
}

// HolderPID reads the diagnostic PID file; returns 0 if absent or unparsable.
func (p *SupervisorLock) HolderPID() int {
	return p.readHolderPID()
}

func (p *SupervisorLock) writePID() error {
	return os.WriteFile(p.pidPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

func (p *SupervisorLock) readHolderPID() int {
	data, err := os.ReadFile(p.pidPath)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// ErrLockHeld is returned when the supervisor lock is held by another
// process.
type ErrLockHeld struct {
	HolderPID int
	LockPath  string
}

func (e *ErrLockHeld) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("process: another supervisor instance is running (pid %d)", e.HolderPID)
	}
	return fmt.Sprintf("process: another supervisor instance is running (check: lsof %s)", e.LockPath)
}

var _ SupervisorLocker = (*SupervisorLock)(nil)
