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

	"github.com/AleutianAI/multi-project-orchestrator/internal/scheduler"
)

// monitoringLoop polls every RUNNING handle's liveness each schedulingInterval,
// flags unexpected exits as CRASHED, and (when a ResourceProbe is wired)
// refreshes each handle's cpu/memory/heartbeat fields (§4.3 item 1).
func (s *Supervisor) monitoringLoop(ctx context.Context) {
	s.loop(ctx, "monitoring", s.schedulingInterval, s.pollHandles)
}

func (s *Supervisor) pollHandles() {
	for name, handle := range s.handles.snapshotHandles() {
		if handle.status() != StatusRunning {
			continue
		}

		alive, _ := s.runtime.Poll(handle.Pid)
		if !alive {
			handle.transition(StatusCrashed)
			handle.mu.Lock()
			handle.ErrorCount++
			handle.mu.Unlock()
			s.metrics.IncCrash(name)
			s.logger.Warn("child process exited unexpectedly", "project", name)
			continue
		}

		if s.probe == nil {
			continue
		}
		cpuPercent, rssMB, ok := s.probe.Probe(handle.Pid)
		if !ok {
			continue
		}
		handle.mu.Lock()
		handle.CPUUsage = cpuPercent
		handle.MemoryMB = rssMB
		handle.LastHeartbeat = time.Now()
		handle.mu.Unlock()

		if s.rs != nil {
			s.rs.UpdateResourceUsage(name, resourceUsageFromHandle(handle))
		}
	}
}

// schedulingLoop is a seam preserved for a future admission policy at GO's
// level (§4.3 item 2); GO itself has no admission decision to make today
// since RS owns task scheduling, so each tick is a no-op.
func (s *Supervisor) schedulingLoop(ctx context.Context) {
	s.loop(ctx, "scheduling", s.schedulingInterval, func() {})
}

// resourceBalancingLoop asks RS to recompute allocations every
// rebalanceInterval; it is a no-op when RS was never wired in.
func (s *Supervisor) resourceBalancingLoop(ctx context.Context) {
	s.loop(ctx, "resource_balancing", s.rebalanceInterval, func() {
		if s.rs == nil {
			return
		}
		s.rs.OptimiseAllocation()
	})
}

// healthCheckLoop warns on stale heartbeats and attempts one bounded
// restart per crashed handle, per §4.3 item 4 and §7's restart policy.
func (s *Supervisor) healthCheckLoop(ctx context.Context) {
	s.loop(ctx, "health_check", s.healthCheckInterval, s.checkHandleHealth)
}

func (s *Supervisor) checkHandleHealth() {
	now := time.Now()
	for name, handle := range s.handles.snapshotHandles() {
		switch handle.status() {
		case StatusRunning:
			handle.mu.Lock()
			stale := now.Sub(handle.LastHeartbeat) > heartbeatStaleAfter
			handle.mu.Unlock()
			if stale {
				s.logger.Warn("heartbeat stale", "project", name)
			}
		case StatusCrashed:
			handle.mu.Lock()
			restarts := handle.RestartCount
			handle.mu.Unlock()
			if restarts >= maxRestarts {
				continue
			}
			s.restartProject(name, handle)
		}
	}
}

// restartProject attempts to bring a crashed handle back up, incrementing
// its restart counter first so a panic mid-restart still counts against
// the bound (§7: the counter is never decremented).
func (s *Supervisor) restartProject(name string, handle *ChildHandle) {
	handle.mu.Lock()
	handle.RestartCount++
	handle.mu.Unlock()
	s.metrics.IncRestart(name)

	s.logger.Info("restarting crashed project", "project", name)
	s.StopProject(name)
	time.Sleep(restartBackoff)
	if !s.StartProject(name) {
		s.logger.Error("restart attempt failed", "project", name)
	}
}

// loop is GO's copy of the cooperative ticker pattern every background
// worker in this package follows: tick on interval, recover from panics,
// exit on cancellation.
func (s *Supervisor) loop(ctx context.Context, name string, interval time.Duration, tick func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun(name, tick)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) safeRun(name string, tick func()) {
	defer func() {
		if r := recover(); r != nil {
			s.recordLoopError(name, panicError{r})
			s.metrics.ObserveLoopError(name)
			s.logger.Error("supervisor loop panicked", "loop", name, "panic", r)
			return
		}
		s.recordLoopError(name, nil)
	}()
	tick()
}

// panicError adapts a recovered panic value to error so recordLoopError
// (which logs err.Error()) has a message to report.
type panicError struct{ v any }

func (p panicError) Error() string {
	if err, ok := p.v.(error); ok {
		return "panic: " + err.Error()
	}
	if s, ok := p.v.(string); ok {
		return "panic: " + s
	}
	return "panic: non-error panic value"
}

func resourceUsageFromHandle(h *ChildHandle) scheduler.ResourceUsage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return scheduler.ResourceUsage{
		CPUUsage:     h.CPUUsage,
		MemoryMB:     h.MemoryMB,
		ActiveAgents: h.ActiveAgents,
		Timestamp:    h.LastHeartbeat,
	}
}
