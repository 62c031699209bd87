// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supervisor

import (
	"context"
	"time"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
	"github.com/AleutianAI/multi-project-orchestrator/internal/scheduler"
)

// livenessProbeDelay is how long start_project waits before its first
// liveness poll (§4.3 step 7).
const livenessProbeDelay = 2 * time.Second

// restartBackoff is how long the health loop waits between stopping and
// restarting a crashed handle (§4.3 item 4).
const restartBackoff = 5 * time.Second

// StartProject starts name's child process, or returns true immediately if
// it is already RUNNING or STARTING (idempotent per §8's round-trip law).
func (s *Supervisor) StartProject(name string) bool {
	rec, ok := s.cm.GetProject(name)
	if !ok {
		return false
	}

	handle, existed := s.handles.get(name)
	if existed {
		if st := handle.status(); st == StatusRunning || st == StatusStarting {
			return true
		}
	} else {
		handle = &ChildHandle{ProjectName: name, ProjectPath: rec.Path, Status: StatusStopped}
		s.handles.set(name, handle)
	}

	quota := s.quotaFor(rec)
	spec := buildLaunchSpec(rec, quota, s.enableDiscord)

	if !handle.transition(StatusStarting) {
		return false
	}

	pid, err := s.runtime.Spawn(context.Background(), spec)
	if err != nil {
		s.logger.Error("failed to spawn child process", "project", name, "error", err)
		handle.transition(StatusError)
		return false
	}

	handle.markStarted(pid, time.Now())

	time.Sleep(livenessProbeDelay)

	alive, _ := s.runtime.Poll(pid)
	if !alive {
		handle.transition(StatusCrashed)
		return false
	}

	handle.transition(StatusRunning)
	_ = s.cm.UpdateProjectStatus(name, config.StatusActive)
	return true
}

// StopProject issues a graceful stop, escalating to a forced kill if the
// child does not exit within gracefulStopTimeout (§4.3).
func (s *Supervisor) StopProject(name string) bool {
	handle, ok := s.handles.get(name)
	if !ok {
		return false
	}

	if !handle.transition(StatusStopping) {
		return false
	}

	if err := s.runtime.Terminate(handle.Pid); err != nil {
		handle.transition(StatusError)
		return false
	}

	exited, err := s.runtime.Wait(handle.Pid, gracefulStopTimeout)
	if err != nil {
		handle.transition(StatusError)
		return false
	}
	if !exited {
		if err := s.runtime.Kill(handle.Pid); err != nil {
			handle.transition(StatusError)
			return false
		}
		if _, err := s.runtime.Wait(handle.Pid, gracefulStopTimeout); err != nil {
			handle.transition(StatusError)
			return false
		}
	}

	if s.rs != nil {
		s.rs.UnregisterProject(name)
	}

	handle.transition(StatusStopped)
	return true
}

// PauseProject sends the job-control stop signal to a RUNNING child.
// Signal-send failures are non-fatal and leave the handle untouched.
func (s *Supervisor) PauseProject(name string) bool {
	handle, ok := s.handles.get(name)
	if !ok || handle.status() != StatusRunning {
		return false
	}
	if !handle.transition(StatusPausing) {
		return false
	}
	if err := s.runtime.Pause(handle.Pid); err != nil {
		s.logger.Warn("pause signal failed", "project", name, "error", err)
		handle.transition(StatusRunning)
		return false
	}
	return handle.transition(StatusPaused)
}

// ResumeProject sends the job-control continue signal to a PAUSED child.
func (s *Supervisor) ResumeProject(name string) bool {
	handle, ok := s.handles.get(name)
	if !ok || handle.status() != StatusPaused {
		return false
	}
	if err := s.runtime.Resume(handle.Pid); err != nil {
		s.logger.Warn("resume signal failed", "project", name, "error", err)
		return false
	}
	return handle.transition(StatusRunning)
}

// quotaFor queries RS for name's quota, registering it first if RS has not
// seen it yet, falling back to a local §4.2.1 computation when RS is
// absent entirely.
func (s *Supervisor) quotaFor(rec *config.ProjectRecord) scheduler.Quota {
	if s.rs == nil {
		return scheduler.ComputeStandaloneQuota(rec)
	}
	if q, ok := s.rs.GetProjectAllocation(rec.Name); ok {
		return q
	}
	s.rs.RegisterProject(rec)
	if q, ok := s.rs.GetProjectAllocation(rec.Name); ok {
		return q
	}
	return scheduler.ComputeStandaloneQuota(rec)
}
