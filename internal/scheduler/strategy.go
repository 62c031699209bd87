// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
)

// projectInput is the per-project data an allocation Strategy needs:
// its identity/caps from CM and (for strategies that react to load) its
// current smoothed utilisation.
type projectInput struct {
	Record          *config.ProjectRecord
	SmoothedUtil    float64
	CurrentQuota    Quota
	HasCurrentQuota bool
}

// poolTotals is the host-wide resource budget a strategy divides up.
type poolTotals struct {
	TotalAgents   int
	TotalMemoryMB int
	TotalCPUCores float64
}

// allocationChange records one project's quota adjustment for
// OptimiseAllocation's reporting contract.
type allocationChange struct {
	ProjectName string
	Quota       Quota
	Changed     bool
}

// Strategy holds one allocation algorithm as a value; the scheduler calls
// Compute on it directly rather than branching on a strategy tag at each
// call site (see DESIGN.md).
type Strategy interface {
	Name() config.AllocationStrategy
	Compute(inputs []projectInput, totals poolTotals, pool Quota) []allocationChange
}

// StrategyFor converts CM's wire-level strategy tag into the concrete
// Strategy value the scheduler dispatches on. Unknown tags fall back to
// fair_share, matching the "never abort the process" failure posture (§7).
func StrategyFor(tag config.AllocationStrategy) Strategy {
	switch tag {
	case config.StrategyPriorityBased:
		return priorityBasedStrategy{}
	case config.StrategyDynamic:
		return dynamicStrategy{}
	case config.StrategyEfficiencyOptimized:
		return efficiencyOptimizedStrategy{}
	case config.StrategyDeadlineAware:
		return deadlineAwareStrategy{}
	default:
		return fairShareStrategy{}
	}
}

// --- fair_share --------------------------------------------------------

type fairShareStrategy struct{}

func (fairShareStrategy) Name() config.AllocationStrategy { return config.StrategyFairShare }

func (fairShareStrategy) Compute(inputs []projectInput, totals poolTotals, _ Quota) []allocationChange {
	active := len(inputs)
	denom := maxInt(active, 1)

	baseAgents := totals.TotalAgents / denom
	baseMemory := totals.TotalMemoryMB / denom
	baseCPUPercent := 100.0 / float64(denom)

	out := make([]allocationChange, 0, len(inputs))
	for _, in := range inputs {
		q := clampToProjectCaps(in.Record, baseAgents, baseMemory, baseCPUPercent)
		out = append(out, allocationChange{ProjectName: in.Record.Name, Quota: q, Changed: true})
	}
	return out
}

// --- priority_based ------------------------------------------------------

type priorityBasedStrategy struct{}

func (priorityBasedStrategy) Name() config.AllocationStrategy { return config.StrategyPriorityBased }

func (priorityBasedStrategy) Compute(inputs []projectInput, totals poolTotals, _ Quota) []allocationChange {
	var totalWeight float64
	for _, in := range inputs {
		totalWeight += in.Record.Priority.Weight()
	}

	out := make([]allocationChange, 0, len(inputs))
	for _, in := range inputs {
		var share float64
		if totalWeight > 0 {
			share = in.Record.Priority.Weight() / totalWeight
		}
		baseAgents := int(float64(totals.TotalAgents) * share)
		baseMemory := int(float64(totals.TotalMemoryMB) * share)
		baseCPUPercent := 100.0 * share
		q := clampToProjectCaps(in.Record, baseAgents, baseMemory, baseCPUPercent)
		out = append(out, allocationChange{ProjectName: in.Record.Name, Quota: q, Changed: true})
	}
	return out
}

// --- dynamic -------------------------------------------------------------

const (
	dynamicShrinkThreshold = 0.3
	dynamicShrinkFactor    = 0.8
	dynamicGrowThreshold   = 0.9
	dynamicGrowFactor      = 1.2
)

type dynamicStrategy struct{}

func (dynamicStrategy) Name() config.AllocationStrategy { return config.StrategyDynamic }

// Compute reacts to each project's own smoothed utilisation rather than
// recomputing shares from scratch: under 0.3 it shrinks by 20%, over 0.9 it
// grows by 20% if the grown quota still fits the remaining pool, otherwise
// it leaves the project's current quota untouched.
func (dynamicStrategy) Compute(inputs []projectInput, _ poolTotals, pool Quota) []allocationChange {
	out := make([]allocationChange, 0, len(inputs))
	for _, in := range inputs {
		if !in.HasCurrentQuota {
			continue
		}
		switch {
		case in.SmoothedUtil < dynamicShrinkThreshold:
			shrunk := in.CurrentQuota.Scale(dynamicShrinkFactor).ClampToFloor()
			out = append(out, allocationChange{ProjectName: in.Record.Name, Quota: shrunk, Changed: true})
		case in.SmoothedUtil > dynamicGrowThreshold:
			grown := in.CurrentQuota.Scale(dynamicGrowFactor)
			if grown.FitsWithin(pool) {
				out = append(out, allocationChange{ProjectName: in.Record.Name, Quota: grown.ClampToFloor(), Changed: true})
			} else {
				out = append(out, allocationChange{ProjectName: in.Record.Name, Quota: in.CurrentQuota, Changed: false})
			}
		default:
			out = append(out, allocationChange{ProjectName: in.Record.Name, Quota: in.CurrentQuota, Changed: false})
		}
	}
	return out
}

// --- stubs -----------------------------------------------------------------

// efficiencyOptimizedStrategy and deadlineAwareStrategy are specified
// (§4.2.2) as no-op stubs: the scheduler dispatches to them like any other
// strategy, but they report zero changes until a future iteration defines
// their optimisation rule.
type efficiencyOptimizedStrategy struct{}

func (efficiencyOptimizedStrategy) Name() config.AllocationStrategy {
	return config.StrategyEfficiencyOptimized
}

func (efficiencyOptimizedStrategy) Compute([]projectInput, poolTotals, Quota) []allocationChange {
	return nil
}

type deadlineAwareStrategy struct{}

func (deadlineAwareStrategy) Name() config.AllocationStrategy { return config.StrategyDeadlineAware }

func (deadlineAwareStrategy) Compute([]projectInput, poolTotals, Quota) []allocationChange {
	return nil
}

// ComputeStandaloneQuota derives a quota for rec as if it were the sole
// active project under fair_share, for callers (GO, when RS is absent)
// that must compute an initial allocation without a live Scheduler. This
// reuses the exact §4.2.1 clamp-and-floor path rather than duplicating it.
func ComputeStandaloneQuota(rec *config.ProjectRecord) Quota {
	return clampToProjectCaps(rec, rec.ResourceLimits.MaxParallelAgents, rec.ResourceLimits.MaxMemoryMB, 100.0)
}

// clampToProjectCaps clamps a computed base allocation to the project's
// registered resource caps, applies its cpu_priority multiplier, and
// raises the result to the validated floor (§4.2.1).
func clampToProjectCaps(rec *config.ProjectRecord, baseAgents, baseMemoryMB int, baseCPUPercent float64) Quota {
	agents := minInt(baseAgents, rec.ResourceLimits.MaxParallelAgents)
	memory := minInt(baseMemoryMB, rec.ResourceLimits.MaxMemoryMB)
	cpuPercent := baseCPUPercent * rec.ResourceLimits.CPUPriority
	cpuCores := cpuPercent / 100.0

	q := Quota{
		CPUCores:    cpuCores,
		MemoryMB:    memory,
		MaxAgents:   agents,
		DiskMB:      rec.ResourceLimits.MaxDiskMB,
		NetworkMbps: 10.0,
	}
	return q.ClampToFloor()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
