// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package process

import (
	"context"
	"sync"
	"time"
)

// MockRuntime is a test double for Runtime.
//
// Configure behavior by setting the *Func fields before use; an unset func
// field falls back to a permissive default (see each method). All calls are
// recorded in Calls for assertion.
//
// # Example
//
//	mock := process.NewMockRuntime()
//	mock.SpawnFunc = func(ctx context.Context, spec process.Spec) (int, error) {
//	    return 4242, nil
//	}
type MockRuntime struct {
	SpawnFunc     func(ctx context.Context, spec Spec) (int, error)
	PollFunc      func(pid int) (bool, error)
	TerminateFunc func(pid int) error
	KillFunc      func(pid int) error
	PauseFunc     func(pid int) error
	ResumeFunc    func(pid int) error
	WaitFunc      func(pid int, timeout time.Duration) (bool, error)

	mu    sync.Mutex
	Calls []RuntimeCall
}

// RuntimeCall records one method invocation against the mock.
type RuntimeCall struct {
	Method string
	Pid    int
	Spec   Spec
}

// NewMockRuntime creates a MockRuntime whose unset methods are no-ops that
// report success; this keeps unit tests that only care about one lifecycle
// transition from needing to stub every method.
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{}
}

func (m *MockRuntime) record(call RuntimeCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// Spawn delegates to SpawnFunc, defaulting to pid 1 on success.
func (m *MockRuntime) Spawn(ctx context.Context, spec Spec) (int, error) {
	m.record(RuntimeCall{Method: "Spawn", Spec: spec})
	if m.SpawnFunc != nil {
		return m.SpawnFunc(ctx, spec)
	}
	return 1, nil
}

// Poll delegates to PollFunc, defaulting to "still alive".
func (m *MockRuntime) Poll(pid int) (bool, error) {
	m.record(RuntimeCall{Method: "Poll", Pid: pid})
	if m.PollFunc != nil {
		return m.PollFunc(pid)
	}
	return true, nil
}

// Terminate delegates to TerminateFunc, defaulting to success.
func (m *MockRuntime) Terminate(pid int) error {
	m.record(RuntimeCall{Method: "Terminate", Pid: pid})
	if m.TerminateFunc != nil {
		return m.TerminateFunc(pid)
	}
	return nil
}

// Kill delegates to KillFunc, defaulting to success.
func (m *MockRuntime) Kill(pid int) error {
	m.record(RuntimeCall{Method: "Kill", Pid: pid})
	if m.KillFunc != nil {
		return m.KillFunc(pid)
	}
	return nil
}

// Pause delegates to PauseFunc, defaulting to success.
func (m *MockRuntime) Pause(pid int) error {
	m.record(RuntimeCall{Method: "Pause", Pid: pid})
	if m.PauseFunc != nil {
		return m.PauseFunc(pid)
	}
	return nil
}

// Resume delegates to ResumeFunc, defaulting to success.
func (m *MockRuntime) Resume(pid int) error {
	m.record(RuntimeCall{Method: "Resume", Pid: pid})
	if m.ResumeFunc != nil {
		return m.ResumeFunc(pid)
	}
	return nil
}

// Wait delegates to WaitFunc, defaulting to "already exited".
func (m *MockRuntime) Wait(pid int, timeout time.Duration) (bool, error) {
	m.record(RuntimeCall{Method: "Wait", Pid: pid})
	if m.WaitFunc != nil {
		return m.WaitFunc(pid, timeout)
	}
	return true, nil
}

// Reset clears all recorded calls.
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// GetCalls returns a copy of all recorded calls.
func (m *MockRuntime) GetCalls() []RuntimeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]RuntimeCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

var _ Runtime = (*MockRuntime)(nil)
