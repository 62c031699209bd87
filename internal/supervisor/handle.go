// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package supervisor implements the Global Orchestrator (GO): it maps every
ACTIVE project in the configuration registry to a running child process,
drives each through its lifecycle, and keeps it healthy via four
cooperative background loops.
*/
package supervisor

import (
	"sync"
	"time"
)

// HandleStatus is a child handle's lifecycle state.
type HandleStatus string

const (
	StatusStopped  HandleStatus = "stopped"
	StatusStarting HandleStatus = "starting"
	StatusRunning  HandleStatus = "running"
	StatusPausing  HandleStatus = "pausing"
	StatusPaused   HandleStatus = "paused"
	StatusStopping HandleStatus = "stopping"
	StatusError    HandleStatus = "error"
	StatusCrashed  HandleStatus = "crashed"
)

// validTransitions enumerates the state machine's allowed edges (§4.3).
// Anomalous edges to CRASHED (from RUNNING/STARTING) and ERROR (from every
// other state) are listed explicitly rather than treated as implicit wildcards,
// so an invariant check can walk this table directly.
// Pausing->Running is the abort edge taken when the pause signal itself
// fails to send; the handle never visibly rests in PAUSING outside of
// pause_project's own critical section.
var validTransitions = map[HandleStatus]map[HandleStatus]bool{
	StatusStopped:  {StatusStarting: true, StatusError: true},
	StatusStarting: {StatusRunning: true, StatusCrashed: true, StatusError: true},
	StatusRunning:  {StatusPausing: true, StatusStopping: true, StatusCrashed: true, StatusError: true},
	StatusPausing:  {StatusPaused: true, StatusError: true, StatusRunning: true},
	StatusPaused:   {StatusRunning: true, StatusError: true},
	StatusStopping: {StatusStopped: true, StatusError: true},
	StatusError:    {StatusStarting: true},
	StatusCrashed:  {StatusStarting: true, StatusError: true},
}

// CanTransition reports whether moving from to is a valid edge in the
// child-process state machine.
func CanTransition(from, to HandleStatus) bool {
	return validTransitions[from][to]
}

// maxRestarts bounds automatic restarts per handle lifetime (§7); the
// counter is never decremented, a deliberate choice recorded in DESIGN.md.
const maxRestarts = 3

// heartbeatStaleAfter is how long a RUNNING handle may go without a
// heartbeat before the health loop emits a warning.
const heartbeatStaleAfter = 5 * time.Minute

// gracefulStopTimeout is how long stop_project waits for a graceful exit
// before escalating to a forced kill.
const gracefulStopTimeout = 30 * time.Second

// ChildHandle is GO's in-memory record of one project's child process.
//
// # Thread Safety
//
// Each handle carries its own mutex: lifecycle operations and the
// background loops are each a potential writer, so "single writer per
// handle" (§5) is enforced per-handle rather than by a single table-wide
// lock, letting operations against different projects proceed
// concurrently.
type ChildHandle struct {
	mu sync.Mutex

	ProjectName   string
	ProjectPath   string
	Pid           int
	Status        HandleStatus
	StartTime     time.Time
	LastHeartbeat time.Time
	CPUUsage      float64
	MemoryMB      int
	ActiveAgents  int
	ErrorCount    int
	RestartCount  int
}

// transition moves h to next if the edge is valid, returning false (and
// leaving h unchanged) otherwise.
func (h *ChildHandle) transition(next HandleStatus) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !CanTransition(h.Status, next) {
		return false
	}
	h.Status = next
	return true
}

// status returns h's current status under lock.
func (h *ChildHandle) status() HandleStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Status
}

// markStarted records a freshly spawned child's pid and start time, and
// seeds its heartbeat so the health loop does not immediately flag it as
// stale.
func (h *ChildHandle) markStarted(pid int, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Pid = pid
	h.StartTime = at
	h.LastHeartbeat = at
}

// snapshot returns a value copy safe to hand to a caller outside the lock.
// The embedded mutex is intentionally left zero-valued in the copy.
func (h *ChildHandle) snapshot() ChildHandle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ChildHandle{
		ProjectName:   h.ProjectName,
		ProjectPath:   h.ProjectPath,
		Pid:           h.Pid,
		Status:        h.Status,
		StartTime:     h.StartTime,
		LastHeartbeat: h.LastHeartbeat,
		CPUUsage:      h.CPUUsage,
		MemoryMB:      h.MemoryMB,
		ActiveAgents:  h.ActiveAgents,
		ErrorCount:    h.ErrorCount,
		RestartCount:  h.RestartCount,
	}
}

// handleTable is the mutex-guarded collection of every known handle,
// keyed by project name — GO's "Handle map" shared resource (§5).
type handleTable struct {
	mu      sync.RWMutex
	handles map[string]*ChildHandle
}

func newHandleTable() *handleTable {
	return &handleTable{handles: make(map[string]*ChildHandle)}
}

func (t *handleTable) get(name string) (*ChildHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handles[name]
	return h, ok
}

func (t *handleTable) set(name string, h *ChildHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles[name] = h
}

func (t *handleTable) delete(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handles, name)
}

// snapshotAll returns a consistent, per-handle copy of every tracked
// handle, satisfying get_global_status's "at least per-handle-consistent"
// read contract (§5).
func (t *handleTable) snapshotAll() map[string]ChildHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]ChildHandle, len(t.handles))
	for name, h := range t.handles {
		out[name] = h.snapshot()
	}
	return out
}

// snapshotHandles returns the live handle pointers keyed by project name,
// for callers (the background loops) that need to lock and mutate a
// handle in place rather than read an immutable copy.
func (t *handleTable) snapshotHandles() map[string]*ChildHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]*ChildHandle, len(t.handles))
	for name, h := range t.handles {
		out[name] = h
	}
	return out
}

// withLock runs fn with the table's write lock held, for callers that need
// to read-then-mutate a single handle atomically (lifecycle operations).
func (t *handleTable) withLock(fn func(handles map[string]*ChildHandle)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.handles)
}
