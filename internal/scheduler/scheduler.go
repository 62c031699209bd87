// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
	"github.com/AleutianAI/multi-project-orchestrator/pkg/logging"
)

const (
	schedulingLoopInterval  = 10 * time.Second
	monitoringLoopInterval  = 60 * time.Second
	defaultRebalanceInterval = 300 * time.Second
)

// SystemUtilisation reports per-dimension utilisation plus derived
// aggregate metrics (§4.2.4's monitoring loop output).
type SystemUtilisation struct {
	CPUUtilisation    float64
	MemoryUtilisation float64
	AgentUtilisation  float64
	MeanEfficiency    float64
	Fragmentation     float64
	ComputedAt        time.Time
}

// SchedulingStatus is the public snapshot returned by get_scheduling_status.
type SchedulingStatus struct {
	RegisteredProjects int
	PendingTasks       int
	RunningTasks       int
	Strategy           config.AllocationStrategy
	Utilisation        SystemUtilisation
}

// OptimisationResult reports what OptimiseAllocation changed.
type OptimisationResult struct {
	OptimisationTime    time.Time
	Changes             []string
	ImprovementMetrics  map[string]float64
	StrategyUsed        config.AllocationStrategy
}

// Scheduler is RS: the quota allocator and task admission controller.
//
// # Thread Safety
//
// The allocation table and task heap each take their own lock per the
// shared-resource policy (§5): readers of allocations take a read lock,
// writers (register/unregister/optimise) take a write lock; the task heap
// is guarded by its own mutex since it is mutated far more often than
// allocations are recomputed.
type Scheduler struct {
	logger *logging.Logger

	allocMu sync.RWMutex
	pool    Quota
	poolCap poolTotals
	quotas  map[string]Quota
	records map[string]*config.ProjectRecord
	usage   map[string]*usageTracker

	taskMu  sync.Mutex
	tasks   taskHeap
	running map[string][]*ScheduledTask

	strategy Strategy

	rebalanceInterval time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Scheduler with the given host-wide pool and strategy.
func New(logger *logging.Logger, pool Quota, poolCap poolTotals, strategy config.AllocationStrategy, rebalanceInterval time.Duration) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if rebalanceInterval <= 0 {
		rebalanceInterval = defaultRebalanceInterval
	}
	return &Scheduler{
		logger:            logger,
		pool:              pool,
		poolCap:           poolCap,
		quotas:            make(map[string]Quota),
		records:           make(map[string]*config.ProjectRecord),
		usage:             make(map[string]*usageTracker),
		running:           make(map[string][]*ScheduledTask),
		strategy:          StrategyFor(strategy),
		rebalanceInterval: rebalanceInterval,
		stopCh:            make(chan struct{}),
	}
}

// NewPoolTotals constructs the host-wide totals a fair_share/priority_based
// computation divides among active projects, from CM's global tuning
// record.
func NewPoolTotals(global config.GlobalConfig) poolTotals {
	return poolTotals{
		TotalAgents:   global.MaxTotalAgents,
		TotalMemoryMB: int(global.GlobalMemoryLimitGB * 1024),
		TotalCPUCores: global.GlobalCPUCores,
	}
}

// RegisterProject computes P's initial quota under the configured strategy,
// clamped to its caps, and reduces the available pool by the allocation.
// When the strategy yields a share for P, the other projects' recomputed
// shares are installed as well, so the pool is re-split across all of them.
// When it yields none (P not ACTIVE, or a strategy that only adjusts
// existing quotas), or the share is not positive, P receives floorQuota.
// The result is not clamped to the pool's remainder. Returns false only if
// P is already registered.
func (s *Scheduler) RegisterProject(rec *config.ProjectRecord) bool {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	if _, exists := s.records[rec.Name]; exists {
		return false
	}

	s.records[rec.Name] = rec
	s.usage[rec.Name] = newUsageTracker()

	inputs := s.activeInputsLocked()
	changes := s.strategy.Compute(inputs, s.poolCap, s.pool)

	var computed Quota
	found := false
	for _, c := range changes {
		if c.ProjectName == rec.Name {
			computed = c.Quota
			found = true
			break
		}
	}
	if !found {
		computed = floorQuota
	}
	if err := computed.validate(); err != nil {
		computed = floorQuota
	}
	if found {
		for _, c := range changes {
			if prior, ok := s.quotas[c.ProjectName]; ok && c.ProjectName != rec.Name {
				s.pool = s.pool.Add(prior).Sub(c.Quota)
				s.quotas[c.ProjectName] = c.Quota
			}
		}
	}

	s.quotas[rec.Name] = computed
	s.pool = s.pool.Sub(computed)
	return true
}

// UnregisterProject purges the project's allocation and every pending or
// running task belonging to it, restoring its quota to the available pool.
func (s *Scheduler) UnregisterProject(name string) bool {
	s.allocMu.Lock()
	q, ok := s.quotas[name]
	if !ok {
		s.allocMu.Unlock()
		return false
	}
	delete(s.quotas, name)
	delete(s.records, name)
	delete(s.usage, name)
	s.pool = s.pool.Add(q)
	s.allocMu.Unlock()

	s.taskMu.Lock()
	s.tasks.removeProject(name)
	delete(s.running, name)
	s.taskMu.Unlock()
	return true
}

// SubmitTask inserts t into the global admission heap, rejecting it if its
// project is not registered.
func (s *Scheduler) SubmitTask(t *ScheduledTask) bool {
	s.allocMu.RLock()
	_, ok := s.records[t.ProjectName]
	s.allocMu.RUnlock()
	if !ok {
		return false
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}

	s.taskMu.Lock()
	heap.Push(&s.tasks, t)
	s.taskMu.Unlock()
	return true
}

// UpdateResourceUsage appends sample to name's history and refreshes its
// smoothed utilisation against its current quota.
func (s *Scheduler) UpdateResourceUsage(name string, sample ResourceUsage) {
	s.allocMu.Lock()
	tracker, ok := s.usage[name]
	quota := s.quotas[name]
	s.allocMu.Unlock()
	if !ok {
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	tracker.record(sample, quota)
}

// GetProjectAllocation returns name's current quota, if registered.
func (s *Scheduler) GetProjectAllocation(name string) (Quota, bool) {
	s.allocMu.RLock()
	defer s.allocMu.RUnlock()
	q, ok := s.quotas[name]
	return q, ok
}

// GetSystemUtilisation computes the monitoring loop's aggregate metrics on
// demand (the background loop also calls this every 60s and simply logs
// the result).
func (s *Scheduler) GetSystemUtilisation() SystemUtilisation {
	s.allocMu.RLock()
	defer s.allocMu.RUnlock()
	return s.systemUtilisationLocked()
}

func (s *Scheduler) systemUtilisationLocked() SystemUtilisation {
	if len(s.quotas) == 0 {
		return SystemUtilisation{ComputedAt: time.Now()}
	}

	var allocAgents, allocMemory int
	var allocCPU float64
	var efficiencySum float64
	for name, q := range s.quotas {
		allocAgents += q.MaxAgents
		allocMemory += q.MemoryMB
		allocCPU += q.CPUCores
		if tracker, ok := s.usage[name]; ok {
			efficiencySum += efficiencyScore(tracker.smoothedU)
		}
	}

	n := float64(len(s.quotas))
	agentUtil := fracOf(float64(allocAgents), float64(maxInt(s.poolCap.TotalAgents, 1)))
	memUtil := fracOf(float64(allocMemory), float64(maxInt(s.poolCap.TotalMemoryMB, 1)))
	cpuUtil := fracOf(allocCPU, maxFloat(s.poolCap.TotalCPUCores, 0.001))

	fragmentation := s.fragmentationLocked()

	return SystemUtilisation{
		CPUUtilisation:    cpuUtil,
		MemoryUtilisation: memUtil,
		AgentUtilisation:  agentUtil,
		MeanEfficiency:    efficiencySum / n,
		Fragmentation:     fragmentation,
		ComputedAt:        time.Now(),
	}
}

// fragmentationLocked computes the mean squared ratio of available to
// total across the three tracked dimensions (cpu, memory, agents).
func (s *Scheduler) fragmentationLocked() float64 {
	dims := []struct{ available, total float64 }{
		{s.pool.CPUCores, maxFloat(s.poolCap.TotalCPUCores, 0.001)},
		{float64(s.pool.MemoryMB), float64(maxInt(s.poolCap.TotalMemoryMB, 1))},
		{float64(s.pool.MaxAgents), float64(maxInt(s.poolCap.TotalAgents, 1))},
	}
	var sumSq float64
	for _, d := range dims {
		ratio := fracOf(d.available, d.total)
		sumSq += ratio * ratio
	}
	return sumSq / float64(len(dims))
}

// GetSchedulingStatus returns a point-in-time snapshot of RS's state.
func (s *Scheduler) GetSchedulingStatus() SchedulingStatus {
	s.allocMu.RLock()
	registered := len(s.records)
	util := s.systemUtilisationLocked()
	strategyName := s.strategy.Name()
	s.allocMu.RUnlock()

	s.taskMu.Lock()
	pending := len(s.tasks)
	var running int
	for _, ts := range s.running {
		running += len(ts)
	}
	s.taskMu.Unlock()

	return SchedulingStatus{
		RegisteredProjects: registered,
		PendingTasks:       pending,
		RunningTasks:       running,
		Strategy:           strategyName,
		Utilisation:        util,
	}
}

// OptimiseAllocation applies the configured strategy across every
// registered project and installs the resulting quotas.
func (s *Scheduler) OptimiseAllocation() OptimisationResult {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	inputs := s.activeInputsLocked()
	changes := s.strategy.Compute(inputs, s.poolCap, s.pool)

	var changed []string
	for _, c := range changes {
		if !c.Changed {
			continue
		}
		prior := s.quotas[c.ProjectName]
		s.pool = s.pool.Add(prior)
		s.quotas[c.ProjectName] = c.Quota
		s.pool = s.pool.Sub(c.Quota)
		changed = append(changed, c.ProjectName)
	}

	util := s.systemUtilisationLocked()
	return OptimisationResult{
		OptimisationTime: time.Now(),
		Changes:          changed,
		ImprovementMetrics: map[string]float64{
			"mean_efficiency": util.MeanEfficiency,
			"fragmentation":   util.Fragmentation,
		},
		StrategyUsed: s.strategy.Name(),
	}
}

func (s *Scheduler) activeInputsLocked() []projectInput {
	inputs := make([]projectInput, 0, len(s.records))
	for name, rec := range s.records {
		if rec.Status != config.StatusActive {
			continue
		}
		tracker := s.usage[name]
		quota, hasQuota := s.quotas[name]
		inputs = append(inputs, projectInput{
			Record:          rec,
			SmoothedUtil:    tracker.smoothedU,
			CurrentQuota:    quota,
			HasCurrentQuota: hasQuota,
		})
	}
	return inputs
}

// admitReadyTasks is the scheduling loop's admission pass: it pops tasks
// off the heap only when they are ready and fit the project's remaining
// quota headroom, leaving everything else in place for the next tick.
func (s *Scheduler) admitReadyTasks() {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()

	completed := make(map[string]bool)
	for _, ts := range s.running {
		for _, t := range ts {
			if t.CompletedAt != nil {
				completed[t.TaskID] = true
			}
		}
	}

	var deferred []*ScheduledTask
	for s.tasks.Len() > 0 {
		t := heap.Pop(&s.tasks).(*ScheduledTask)
		if !t.ready(completed) {
			deferred = append(deferred, t)
			continue
		}
		if !s.fitsCurrentUsage(t) {
			deferred = append(deferred, t)
			continue
		}
		now := time.Now()
		t.StartedAt = &now
		s.running[t.ProjectName] = append(s.running[t.ProjectName], t)
	}
	for _, t := range deferred {
		heap.Push(&s.tasks, t)
	}
}

func (s *Scheduler) fitsCurrentUsage(t *ScheduledTask) bool {
	s.allocMu.RLock()
	quota, ok := s.quotas[t.ProjectName]
	tracker := s.usage[t.ProjectName]
	s.allocMu.RUnlock()
	if !ok {
		return false
	}

	var currentAgents int
	var currentCPU float64
	var currentMemory int
	if latest, ok := tracker.history.Latest(); ok {
		currentAgents = latest.ActiveAgents
		currentCPU = latest.CPUUsage / 100.0
		currentMemory = latest.MemoryMB
	}

	projected := Quota{
		CPUCores:  currentCPU + t.Requirements.CPUCores,
		MemoryMB:  currentMemory + t.Requirements.MemoryMB,
		MaxAgents: currentAgents + t.Requirements.MaxAgents,
	}
	return projected.CPUCores <= quota.CPUCores &&
		projected.MemoryMB <= quota.MemoryMB &&
		projected.MaxAgents <= quota.MaxAgents
}

// Start launches the scheduling and monitoring/rebalancing background
// loops. Each loop catches its own panics via safeRun and backs off at
// least one interval before its next tick, per §4.2's failure semantics.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(3)
	go s.loop(ctx, "scheduling", schedulingLoopInterval, s.admitReadyTasks)
	go s.loop(ctx, "rebalancing", s.rebalanceInterval, func() { s.OptimiseAllocation() })
	go s.loop(ctx, "monitoring", monitoringLoopInterval, s.logMonitoringSnapshot)
}

// Stop cancels all background loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) logMonitoringSnapshot() {
	util := s.GetSystemUtilisation()
	s.logger.Info("scheduler utilisation snapshot",
		"cpu", util.CPUUtilisation, "memory", util.MemoryUtilisation,
		"agents", util.AgentUtilisation, "mean_efficiency", util.MeanEfficiency,
		"fragmentation", util.Fragmentation)
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, tick func()) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun(name, tick)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// safeRun recovers from a panic inside tick, logs it, and lets the caller's
// ticker enforce the ≥ one-interval back-off before the next attempt.
func (s *Scheduler) safeRun(name string, tick func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler loop panicked", "loop", name, "panic", r)
		}
	}()
	tick()
}
