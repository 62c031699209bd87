// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
)

func testRecord(name string, priority config.Priority, maxAgents, maxMemoryMB int) *config.ProjectRecord {
	return &config.ProjectRecord{
		Name:     name,
		Path:     "/tmp/" + name,
		Priority: priority,
		Status:   config.StatusActive,
		ResourceLimits: config.ResourceLimits{
			MaxParallelAgents: maxAgents,
			MaxMemoryMB:       maxMemoryMB,
			MaxDiskMB:         5120,
			CPUPriority:       1.0,
		},
	}
}

// TestScenario_S1_FairShareAllocation covers four equal-priority projects
// splitting the pool evenly.
func TestScenario_S1_FairShareAllocation(t *testing.T) {
	pool := Quota{CPUCores: 8, MemoryMB: 8 * 1024, MaxAgents: 12, DiskMB: 1 << 20, NetworkMbps: 1000}
	totals := poolTotals{TotalAgents: 12, TotalMemoryMB: 8 * 1024, TotalCPUCores: 8}

	s := New(nil, pool, totals, config.StrategyFairShare, time.Minute)
	for i := 0; i < 4; i++ {
		name := string(rune('A' + i))
		rec := testRecord(name, config.PriorityNormal, 3, 1024)
		require.True(t, s.RegisterProject(rec))
	}

	for i := 0; i < 4; i++ {
		name := string(rune('A' + i))
		q, ok := s.GetProjectAllocation(name)
		require.True(t, ok)
		assert.Equal(t, 3, q.MaxAgents)
		assert.Equal(t, 1024, q.MemoryMB)
		assert.GreaterOrEqual(t, q.CPUCores, 0.1)
	}

	util := s.GetSystemUtilisation()
	assert.InDelta(t, 1.0, util.AgentUtilisation, 0.001)
}

// TestScenario_S2_PriorityWeighting covers mixed-priority projects getting
// shares proportional to their priority weight.
func TestScenario_S2_PriorityWeighting(t *testing.T) {
	pool := Quota{CPUCores: 8, MemoryMB: 8 * 1024, MaxAgents: 10, DiskMB: 1 << 20, NetworkMbps: 1000}
	totals := poolTotals{TotalAgents: 10, TotalMemoryMB: 8 * 1024, TotalCPUCores: 8}

	s := New(nil, pool, totals, config.StrategyPriorityBased, time.Minute)
	require.True(t, s.RegisterProject(testRecord("A", config.PriorityCritical, 10, 8192)))
	require.True(t, s.RegisterProject(testRecord("B", config.PriorityNormal, 10, 8192)))

	qa, _ := s.GetProjectAllocation("A")
	qb, _ := s.GetProjectAllocation("B")

	assert.GreaterOrEqual(t, qa.MaxAgents, qb.MaxAgents)
	if qb.MaxAgents > 0 {
		ratio := float64(qa.MaxAgents) / float64(qb.MaxAgents)
		assert.InDelta(t, 2.0, ratio, 0.6)
	}
}

func TestRegisterProject_RejectsDuplicate(t *testing.T) {
	s := New(nil, Quota{CPUCores: 4, MemoryMB: 4096, MaxAgents: 8, DiskMB: 1 << 20, NetworkMbps: 100},
		poolTotals{TotalAgents: 8, TotalMemoryMB: 4096, TotalCPUCores: 4}, config.StrategyFairShare, time.Minute)

	rec := testRecord("A", config.PriorityNormal, 4, 2048)
	assert.True(t, s.RegisterProject(rec))
	assert.False(t, s.RegisterProject(rec))
}

func TestUnregisterProject_RestoresPoolAndPurgesTasks(t *testing.T) {
	s := New(nil, Quota{CPUCores: 4, MemoryMB: 4096, MaxAgents: 8, DiskMB: 1 << 20, NetworkMbps: 100},
		poolTotals{TotalAgents: 8, TotalMemoryMB: 4096, TotalCPUCores: 4}, config.StrategyFairShare, time.Minute)

	require.True(t, s.RegisterProject(testRecord("A", config.PriorityNormal, 4, 2048)))
	require.True(t, s.SubmitTask(&ScheduledTask{TaskID: "t1", ProjectName: "A", Priority: TaskPriorityNormal}))

	assert.True(t, s.UnregisterProject("A"))
	assert.False(t, s.UnregisterProject("A"), "second unregister is a no-op")

	s.taskMu.Lock()
	remaining := s.tasks.Len()
	s.taskMu.Unlock()
	assert.Zero(t, remaining)
}

func TestSubmitTask_RejectsUnknownProject(t *testing.T) {
	s := New(nil, Quota{CPUCores: 4, MemoryMB: 4096, MaxAgents: 8, DiskMB: 1 << 20, NetworkMbps: 100},
		poolTotals{TotalAgents: 8, TotalMemoryMB: 4096, TotalCPUCores: 4}, config.StrategyFairShare, time.Minute)

	assert.False(t, s.SubmitTask(&ScheduledTask{TaskID: "t1", ProjectName: "ghost"}))
}

func TestTaskHeap_OrdersByPriorityThenFIFO(t *testing.T) {
	s := New(nil, Quota{CPUCores: 4, MemoryMB: 4096, MaxAgents: 8, DiskMB: 1 << 20, NetworkMbps: 100},
		poolTotals{TotalAgents: 8, TotalMemoryMB: 4096, TotalCPUCores: 4}, config.StrategyFairShare, time.Minute)
	require.True(t, s.RegisterProject(testRecord("A", config.PriorityNormal, 8, 4096)))

	base := time.Now()
	require.True(t, s.SubmitTask(&ScheduledTask{TaskID: "low", ProjectName: "A", Priority: TaskPriorityLow, CreatedAt: base}))
	require.True(t, s.SubmitTask(&ScheduledTask{TaskID: "crit-later", ProjectName: "A", Priority: TaskPriorityCritical, CreatedAt: base.Add(time.Second)}))
	require.True(t, s.SubmitTask(&ScheduledTask{TaskID: "crit-earlier", ProjectName: "A", Priority: TaskPriorityCritical, CreatedAt: base}))

	s.taskMu.Lock()
	first := s.tasks[0]
	s.taskMu.Unlock()
	assert.Equal(t, "crit-earlier", first.TaskID, "equal priority ties break FIFO by created_at")
}

func TestFairShare_ZeroActiveProjects_DoesNotDivideByZero(t *testing.T) {
	s := New(nil, Quota{CPUCores: 4, MemoryMB: 4096, MaxAgents: 8, DiskMB: 1 << 20, NetworkMbps: 100},
		poolTotals{TotalAgents: 8, TotalMemoryMB: 4096, TotalCPUCores: 4}, config.StrategyFairShare, time.Minute)

	result := s.OptimiseAllocation()
	assert.Empty(t, result.Changes)
}

func TestPriorityBased_ZeroWeightSum_ReturnsNoChanges(t *testing.T) {
	changes := priorityBasedStrategy{}.Compute(nil, poolTotals{TotalAgents: 8, TotalMemoryMB: 4096, TotalCPUCores: 4}, Quota{})
	assert.Empty(t, changes)
}

func TestEfficiencyScore_PeaksInPlateau(t *testing.T) {
	assert.Equal(t, 1.0, efficiencyScore(0.7))
	assert.Equal(t, 1.0, efficiencyScore(0.75))
	assert.Equal(t, 1.0, efficiencyScore(0.8))
	assert.InDelta(t, 0, efficiencyScore(1.0), 0.001)
	assert.InDelta(t, 0, efficiencyScore(0), 0.001)
}

func TestDynamicStrategy_ShrinksUnderused(t *testing.T) {
	current := Quota{CPUCores: 2, MemoryMB: 2048, MaxAgents: 4, DiskMB: 1000, NetworkMbps: 10}
	rec := testRecord("A", config.PriorityNormal, 10, 4096)
	inputs := []projectInput{{Record: rec, SmoothedUtil: 0.1, CurrentQuota: current, HasCurrentQuota: true}}

	changes := dynamicStrategy{}.Compute(inputs, poolTotals{}, Quota{CPUCores: 100, MemoryMB: 100000, MaxAgents: 100})
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Changed)
	assert.Less(t, changes[0].Quota.MaxAgents, current.MaxAgents)
}

func TestDynamicStrategy_GrowsOverusedWhenPoolAllows(t *testing.T) {
	current := Quota{CPUCores: 2, MemoryMB: 2048, MaxAgents: 5, DiskMB: 1000, NetworkMbps: 10}
	rec := testRecord("A", config.PriorityNormal, 10, 4096)
	inputs := []projectInput{{Record: rec, SmoothedUtil: 0.95, CurrentQuota: current, HasCurrentQuota: true}}

	changes := dynamicStrategy{}.Compute(inputs, poolTotals{}, Quota{CPUCores: 100, MemoryMB: 100000, MaxAgents: 100, DiskMB: 100000, NetworkMbps: 1000})
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Changed)
	assert.Greater(t, changes[0].Quota.MaxAgents, current.MaxAgents)
}

func TestDynamicStrategy_LeavesUnchangedWhenGrowDoesNotFit(t *testing.T) {
	current := Quota{CPUCores: 2, MemoryMB: 2048, MaxAgents: 99, DiskMB: 1000, NetworkMbps: 10}
	rec := testRecord("A", config.PriorityNormal, 100, 4096)
	inputs := []projectInput{{Record: rec, SmoothedUtil: 0.95, CurrentQuota: current, HasCurrentQuota: true}}

	changes := dynamicStrategy{}.Compute(inputs, poolTotals{}, Quota{CPUCores: 100, MemoryMB: 100000, MaxAgents: 100})
	require.Len(t, changes, 1)
	assert.False(t, changes[0].Changed)
	assert.Equal(t, current, changes[0].Quota)
}

func TestQuota_NewQuota_RejectsNonPositive(t *testing.T) {
	_, err := NewQuota(0, 1024, 1, 1, 1)
	assert.ErrorIs(t, err, ErrNonPositiveQuota)
}
