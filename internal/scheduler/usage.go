// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"time"

	"github.com/AleutianAI/multi-project-orchestrator/internal/ringbuffer"
)

// usageHistoryCapacity bounds how many resource-usage samples are retained
// per project, regardless of how frequently the monitoring loop samples.
const usageHistoryCapacity = 512

// smoothingAlpha is the exponential-smoothing coefficient for a project's
// running utilisation average.
const smoothingAlpha = 0.1

// ResourceUsage is one observed sample of a project's resource consumption.
type ResourceUsage struct {
	CPUUsage     float64
	MemoryMB     int
	ActiveAgents int
	DiskMB       int
	NetworkMbps  float64
	Timestamp    time.Time
}

// usageTracker holds one project's bounded sample history plus its
// exponentially smoothed utilisation, kept separate from the history
// buffer because the smoothed value must survive across history
// truncation (the ring buffer drops old samples; the average does not).
type usageTracker struct {
	history    *ringbuffer.RingBuffer[ResourceUsage]
	smoothedU  float64
	hasSampled bool
}

func newUsageTracker() *usageTracker {
	return &usageTracker{history: ringbuffer.New[ResourceUsage](usageHistoryCapacity)}
}

// record appends sample and updates the smoothed utilisation against quota.
// utilisation() averages the fraction used across cpu, memory, and agents —
// the three dimensions the child process launch contract actually caps.
func (t *usageTracker) record(sample ResourceUsage, quota Quota) {
	t.history.Push(sample)
	u := utilisation(sample, quota)
	if !t.hasSampled {
		t.smoothedU = u
		t.hasSampled = true
		return
	}
	t.smoothedU = smoothingAlpha*u + (1-smoothingAlpha)*t.smoothedU
}

// utilisation averages the fraction of quota consumed across cpu, memory,
// and agent-slot dimensions. It is not capped at 1, since a sample can
// transiently exceed its quota before the next rebalance reins it in.
func utilisation(sample ResourceUsage, quota Quota) float64 {
	cpuFrac := fracOf(sample.CPUUsage, quota.CPUCores*100.0)
	memFrac := fracOf(float64(sample.MemoryMB), float64(quota.MemoryMB))
	agentFrac := fracOf(float64(sample.ActiveAgents), float64(quota.MaxAgents))
	return (cpuFrac + memFrac + agentFrac) / 3.0
}

func fracOf(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return used / total
}

// efficiencyScore derives a project's efficiency from its smoothed
// utilisation u: peaks at 1.0 for u in [0.7, 0.8], rises linearly from 0 at
// u = 0, and falls with slope 5 above 0.8 to reach 0 at u = 1.0.
func efficiencyScore(u float64) float64 {
	switch {
	case u < 0:
		return 0
	case u <= 0.7:
		return u / 0.7
	case u <= 0.8:
		return 1.0
	case u <= 1.0:
		return maxFloat(0, 1.0-5.0*(u-0.8))
	default:
		return 0
	}
}
