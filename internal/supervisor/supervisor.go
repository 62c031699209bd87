// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
	"github.com/AleutianAI/multi-project-orchestrator/internal/process"
	"github.com/AleutianAI/multi-project-orchestrator/internal/scheduler"
	"github.com/AleutianAI/multi-project-orchestrator/pkg/logging"
	"github.com/AleutianAI/multi-project-orchestrator/pkg/metrics"
)

// ResourceProbe is the optional collaborator the monitoring loop consults
// for live per-child resource usage (§6). Its absence must never produce
// an error; Supervisor treats a nil ResourceProbe as "skip sampling".
type ResourceProbe interface {
	Probe(pid int) (cpuPercent float64, rssMB int, ok bool)
}

// GlobalStatus is the public snapshot returned by get_global_status.
type GlobalStatus struct {
	TotalProjects     int
	ActiveProjects    int
	TotalAgents       int
	TotalMemoryMB     int
	TotalCPUPercent   float64
	Projects          map[string]ChildHandle
	LoopErrors        map[string]string
}

// Supervisor is GO: it maps every ACTIVE project to a running child
// process and drives it through its lifecycle.
//
// # Thread Safety
//
// The handle map is guarded internally by handleTable; loopErrors has its
// own mutex since the background loops write to it far less often than
// lifecycle operations touch handles.
type Supervisor struct {
	cm      *config.Manager
	rs      *scheduler.Scheduler
	runtime process.Runtime
	probe   ResourceProbe
	logger  *logging.Logger
	lock    *process.SupervisorLock
	metrics metrics.Recorder

	globalStateDir     string
	schedulingInterval time.Duration
	healthCheckInterval time.Duration
	rebalanceInterval  time.Duration

	skipLock       bool
	skipMonitoring bool
	enableDiscord  bool

	handles *handleTable

	startMu sync.Mutex
	started bool

	loopErrMu sync.Mutex
	loopErr   map[string]string

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Option configures a Supervisor at construction time.
type Option func(*Supervisor)

// WithScheduler wires RS in; without it, start_project computes quotas
// locally using the same §4.2.1 formula and the resource-balancing loop
// becomes a no-op, per §4.3's "no-op if RS absent" contract.
func WithScheduler(rs *scheduler.Scheduler) Option {
	return func(s *Supervisor) { s.rs = rs }
}

// WithResourceProbe wires an optional live-usage sampler into the
// monitoring loop.
func WithResourceProbe(p ResourceProbe) Option {
	return func(s *Supervisor) { s.probe = p }
}

// WithIntervals overrides the three loop intervals driven by CM's global
// tuning record; zero values fall back to the package defaults.
func WithIntervals(scheduling, healthCheck, rebalance time.Duration) Option {
	return func(s *Supervisor) {
		if scheduling > 0 {
			s.schedulingInterval = scheduling
		}
		if healthCheck > 0 {
			s.healthCheckInterval = healthCheck
		}
		if rebalance > 0 {
			s.rebalanceInterval = rebalance
		}
	}
}

// WithoutSecurity disables the single-instance flock guard. Debugging only:
// running two supervisors against the same state directory races on every
// handle they both track.
func WithoutSecurity() Option {
	return func(s *Supervisor) { s.skipLock = true }
}

// WithoutMonitoring disables the monitoring and health-check loops, leaving
// only scheduling and resource-balancing running.
func WithoutMonitoring() Option {
	return func(s *Supervisor) { s.skipMonitoring = true }
}

// WithDiscord controls whether buildLaunchSpec propagates a project's
// chat_channel as DISCORD_CHANNEL to its child process.
func WithDiscord(enabled bool) Option {
	return func(s *Supervisor) { s.enableDiscord = enabled }
}

// WithMetrics wires a Recorder that observes handle transitions and loop
// health; without it the supervisor records nothing.
func WithMetrics(m metrics.Recorder) Option {
	return func(s *Supervisor) { s.metrics = m }
}

// New creates a Supervisor wired to cm and runtime. globalStateDir is
// where supervisor-local artefacts (and the double-start lock) live.
func New(cm *config.Manager, runtime process.Runtime, logger *logging.Logger, globalStateDir string, opts ...Option) *Supervisor {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Supervisor{
		cm:                  cm,
		runtime:             runtime,
		logger:              logger,
		globalStateDir:      globalStateDir,
		schedulingInterval:  10 * time.Second,
		healthCheckInterval: 60 * time.Second,
		rebalanceInterval:   300 * time.Second,
		handles:             newHandleTable(),
		loopErr:             make(map[string]string),
		lock:                process.NewSupervisorLock(process.DefaultLockConfig(globalStateDir)),
		metrics:             metrics.NopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start guards against double-start, creates the global state directory,
// launches the four background loops, and starts every ACTIVE project
// known to CM. Start returns an error when it was already started, when
// the single-instance lock cannot be acquired, or when the state directory
// cannot be created; every other failure is per-project and does not
// abort Start.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startMu.Lock()
	if s.started {
		s.startMu.Unlock()
		return ErrAlreadyStarted
	}
	s.startMu.Unlock()

	if !s.skipLock {
		if err := s.lock.Acquire(); err != nil {
			return fmt.Errorf("supervisor: acquire single-instance lock: %w", err)
		}
	}

	if err := os.MkdirAll(s.globalStateDir, 0755); err != nil {
		if !s.skipLock {
			_ = s.lock.Release()
		}
		return fmt.Errorf("%w: %v", ErrGlobalStateDirFailed, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.startMu.Lock()
	s.started = true
	s.startMu.Unlock()

	s.wg.Add(2)
	go s.schedulingLoop(loopCtx)
	go s.resourceBalancingLoop(loopCtx)
	if !s.skipMonitoring {
		s.wg.Add(2)
		go s.monitoringLoop(loopCtx)
		go s.healthCheckLoop(loopCtx)
	}

	for _, rec := range s.cm.GetActiveProjects() {
		if !s.StartProject(rec.Name) {
			s.logger.Warn("failed to start active project during supervisor startup", "project", rec.Name)
		}
	}
	return nil
}

// Stop issues stop_project to every handle concurrently, cancels the
// background loops, and releases the single-instance lock.
func (s *Supervisor) Stop() {
	s.startMu.Lock()
	if !s.started {
		s.startMu.Unlock()
		return
	}
	s.started = false
	s.startMu.Unlock()

	s.stopAllProjects()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	if !s.skipLock {
		_ = s.lock.Release()
	}
}

// stopAllProjects fans out stop requests concurrently and waits for all,
// per §4.3's "stop_all_projects fans out ... and waits for all".
func (s *Supervisor) stopAllProjects() {
	names := make([]string, 0)
	for name := range s.handles.snapshotAll() {
		names = append(names, name)
	}

	var g errgroup.Group
	for _, name := range names {
		name := name
		g.Go(func() error {
			s.StopProject(name)
			return nil
		})
	}
	_ = g.Wait()
}

// GetGlobalStatus returns a per-handle-consistent snapshot of every
// tracked project plus aggregate metrics.
func (s *Supervisor) GetGlobalStatus() GlobalStatus {
	handles := s.handles.snapshotAll()

	status := GlobalStatus{
		TotalProjects: len(handles),
		Projects:      handles,
		LoopErrors:    s.loopErrorsSnapshot(),
	}
	for _, h := range handles {
		if h.Status == StatusRunning {
			status.ActiveProjects++
		}
		status.TotalAgents += h.ActiveAgents
		status.TotalMemoryMB += h.MemoryMB
		status.TotalCPUPercent += h.CPUUsage
	}
	s.metrics.SetActiveProjects(status.ActiveProjects)
	s.metrics.SetTotalAgents(status.TotalAgents)
	return status
}

// Optimise triggers an on-demand resource-balancing pass, the same call the
// resource-balancing loop makes on its own interval. It returns the zero
// OptimisationResult when RS was never wired in.
func (s *Supervisor) Optimise() scheduler.OptimisationResult {
	if s.rs == nil {
		return scheduler.OptimisationResult{}
	}
	return s.rs.OptimiseAllocation()
}

func (s *Supervisor) loopErrorsSnapshot() map[string]string {
	s.loopErrMu.Lock()
	defer s.loopErrMu.Unlock()
	out := make(map[string]string, len(s.loopErr))
	for k, v := range s.loopErr {
		out[k] = v
	}
	return out
}

func (s *Supervisor) recordLoopError(loop string, err error) {
	s.loopErrMu.Lock()
	defer s.loopErrMu.Unlock()
	if err == nil {
		delete(s.loopErr, loop)
		return
	}
	s.loopErr[loop] = err.Error()
}
