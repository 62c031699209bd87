// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
	"github.com/AleutianAI/multi-project-orchestrator/internal/process"
)

func newTestSupervisor(t *testing.T, runtime process.Runtime) (*Supervisor, *config.Manager) {
	t.Helper()
	cm := config.NewManager(t.TempDir()+"/registry.json", nil)
	sup := New(cm, runtime, nil, t.TempDir(),
		WithIntervals(time.Hour, time.Hour, time.Hour))
	return sup, cm
}

func registerProject(t *testing.T, cm *config.Manager, name string) {
	t.Helper()
	_, err := cm.RegisterProject(name, t.TempDir(), config.DefaultRegisterOptions())
	require.NoError(t, err)
}

func TestStartProject_IsIdempotent(t *testing.T) {
	mock := process.NewMockRuntime()
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")

	require.True(t, sup.StartProject("alpha"))
	require.True(t, sup.StartProject("alpha"), "starting a RUNNING project is a no-op success")

	spawns := 0
	for _, c := range mock.GetCalls() {
		if c.Method == "Spawn" {
			spawns++
		}
	}
	assert.Equal(t, 1, spawns, "second start must not spawn again")
}

func TestStartProject_UnknownProject_Fails(t *testing.T) {
	mock := process.NewMockRuntime()
	sup, _ := newTestSupervisor(t, mock)
	assert.False(t, sup.StartProject("ghost"))
}

func TestStartProject_DeadOnArrival_MarksCrashed(t *testing.T) {
	mock := process.NewMockRuntime()
	mock.PollFunc = func(pid int) (bool, error) { return false, nil }
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")

	assert.False(t, sup.StartProject("alpha"))
	h, ok := sup.handles.get("alpha")
	require.True(t, ok)
	assert.Equal(t, StatusCrashed, h.status())
}

func TestStopProject_GracefulExit(t *testing.T) {
	mock := process.NewMockRuntime()
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")

	require.True(t, sup.StartProject("alpha"))
	assert.True(t, sup.StopProject("alpha"))

	h, ok := sup.handles.get("alpha")
	require.True(t, ok)
	assert.Equal(t, StatusStopped, h.status())
}

func TestStopProject_EscalatesToKillWhenNotExited(t *testing.T) {
	mock := process.NewMockRuntime()
	firstWait := true
	mock.WaitFunc = func(pid int, timeout time.Duration) (bool, error) {
		if firstWait {
			firstWait = false
			return false, nil
		}
		return true, nil
	}
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")

	require.True(t, sup.StartProject("alpha"))
	assert.True(t, sup.StopProject("alpha"))

	var killed bool
	for _, c := range mock.GetCalls() {
		if c.Method == "Kill" {
			killed = true
		}
	}
	assert.True(t, killed, "a child that does not exit within the grace window must be force-killed")
}

func TestPauseThenResume_RoundTrips(t *testing.T) {
	mock := process.NewMockRuntime()
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")
	require.True(t, sup.StartProject("alpha"))

	require.True(t, sup.PauseProject("alpha"))
	h, _ := sup.handles.get("alpha")
	assert.Equal(t, StatusPaused, h.status())

	require.True(t, sup.ResumeProject("alpha"))
	assert.Equal(t, StatusRunning, h.status())
}

func TestPauseProject_SignalFailure_AbortsBackToRunning(t *testing.T) {
	mock := process.NewMockRuntime()
	mock.PauseFunc = func(pid int) error { return assert.AnError }
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")
	require.True(t, sup.StartProject("alpha"))

	assert.False(t, sup.PauseProject("alpha"))
	h, _ := sup.handles.get("alpha")
	assert.Equal(t, StatusRunning, h.status(), "a failed pause signal must leave the handle RUNNING, not stuck PAUSING")
}

func TestPauseProject_RequiresRunning(t *testing.T) {
	mock := process.NewMockRuntime()
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")
	assert.False(t, sup.PauseProject("alpha"), "a never-started project cannot be paused")
}

func TestCanTransition_RejectsInvalidEdges(t *testing.T) {
	assert.False(t, CanTransition(StatusStopped, StatusRunning))
	assert.True(t, CanTransition(StatusStopped, StatusStarting))
	assert.True(t, CanTransition(StatusCrashed, StatusStarting))
	assert.False(t, CanTransition(StatusPaused, StatusStopping))
}

func TestGetGlobalStatus_AggregatesHandles(t *testing.T) {
	mock := process.NewMockRuntime()
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")
	registerProject(t, cm, "beta")

	require.True(t, sup.StartProject("alpha"))
	require.True(t, sup.StartProject("beta"))

	status := sup.GetGlobalStatus()
	assert.Equal(t, 2, status.TotalProjects)
	assert.Equal(t, 2, status.ActiveProjects)
}

func TestRestartProject_IncrementsRestartCountAndNeverDecrements(t *testing.T) {
	mock := process.NewMockRuntime()
	sup, cm := newTestSupervisor(t, mock)
	registerProject(t, cm, "alpha")
	require.True(t, sup.StartProject("alpha"))

	h, _ := sup.handles.get("alpha")
	h.transition(StatusCrashed)

	sup.restartProject("alpha", h)
	assert.Equal(t, 1, h.RestartCount)

	h.transition(StatusCrashed)
	sup.restartProject("alpha", h)
	assert.Equal(t, 2, h.RestartCount)
}
