// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package config implements the Multi-Project Configuration Manager (CM): the
authoritative project registry consumed by the scheduler and the supervisor.

CM owns project records, priorities, per-project resource caps and
dependencies, persists them to disk, and validates every mutation (duplicate
paths, missing dependency targets, cycles) before it is allowed to stick.
*/
package config

import "time"

// Priority classifies a project's importance for scheduling purposes.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Weight returns the priority-weighted multiplier used by the scheduler's
// priority_based allocation strategy (CRITICAL=2.0, HIGH=1.5, NORMAL=1.0,
// LOW=0.5). This is the single canonical weight table for the whole
// module.
func (p Priority) Weight() float64 {
	switch p {
	case PriorityCritical:
		return 2.0
	case PriorityHigh:
		return 1.5
	case PriorityNormal:
		return 1.0
	case PriorityLow:
		return 0.5
	default:
		return 1.0
	}
}

// IsValid reports whether p is one of the four defined priorities.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Status is a project's lifecycle classification in the registry.
type Status string

const (
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusMaintenance  Status = "maintenance"
	StatusArchived     Status = "archived"
	StatusInitializing Status = "initializing"
)

// IsValid reports whether s is one of the five defined statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusMaintenance, StatusArchived, StatusInitializing:
		return true
	}
	return false
}

// DependencyKind classifies the relationship a dependency edge represents.
type DependencyKind string

const (
	DependencyBlocks        DependencyKind = "blocks"
	DependencyEnhances      DependencyKind = "enhances"
	DependencyIntegratesWith DependencyKind = "integrates_with"
)

// Dependency is one edge in a project's dependency list.
type Dependency struct {
	TargetProject string         `yaml:"target_project" json:"target_project"`
	Kind          DependencyKind `yaml:"dependency_type" json:"dependency_type"`
	Description   string         `yaml:"description,omitempty" json:"description,omitempty"`
	Criticality   string         `yaml:"criticality,omitempty" json:"criticality,omitempty"`
}

// ResourceLimits are the hard upper bounds the scheduler must not exceed
// for a given project.
type ResourceLimits struct {
	MaxParallelAgents int     `yaml:"max_parallel_agents" json:"max_parallel_agents" validate:"min=1"`
	MaxParallelCycles int     `yaml:"max_parallel_cycles,omitempty" json:"max_parallel_cycles,omitempty"`
	MaxMemoryMB       int     `yaml:"max_memory_mb" json:"max_memory_mb" validate:"min=1"`
	MaxDiskMB         int     `yaml:"max_disk_mb" json:"max_disk_mb" validate:"min=1"`
	CPUPriority       float64 `yaml:"cpu_priority" json:"cpu_priority" validate:"min=0.1,max=2.0"`
}

// DefaultResourceLimits returns a conservative, always-valid set of limits
// used when a caller registers a project without specifying its own.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxParallelAgents: 3,
		MaxMemoryMB:       2048,
		MaxDiskMB:         5120,
		CPUPriority:       1.0,
	}
}

// ProjectRecord is CM's persisted record for one registered project.
//
// Identity fields (Name, Path) are immutable once registered. Mutable
// fields (Status, LastActivity, Dependencies) are changed only through
// Manager operations, never by direct field assignment, so every mutation
// passes through validation and persistence.
type ProjectRecord struct {
	Name           string         `yaml:"-" json:"name"`
	Path           string         `yaml:"path" json:"path"`
	Priority       Priority       `yaml:"priority" json:"priority"`
	Status         Status         `yaml:"status" json:"status"`
	ResourceLimits ResourceLimits `yaml:"resource_limits" json:"resource_limits"`
	Dependencies   []Dependency   `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	CreatedAt      time.Time      `yaml:"created_at" json:"created_at"`
	LastActivity   *time.Time     `yaml:"last_activity,omitempty" json:"last_activity,omitempty"`
	ChatChannel    string         `yaml:"chat_channel,omitempty" json:"chat_channel,omitempty"`
}

// AllocationStrategy names the scheduler strategy tag carried in the
// global tuning record. The scheduler package turns this tag into the
// concrete Strategy sum type it dispatches on (see scheduler.StrategyFor).
type AllocationStrategy string

const (
	StrategyFairShare          AllocationStrategy = "fair_share"
	StrategyPriorityBased      AllocationStrategy = "priority_based"
	StrategyDynamic            AllocationStrategy = "dynamic"
	StrategyEfficiencyOptimized AllocationStrategy = "efficiency_optimized"
	StrategyDeadlineAware      AllocationStrategy = "deadline_aware"
)

// GlobalConfig is the one-per-process global tuning record.
type GlobalConfig struct {
	MaxTotalAgents                   int                `yaml:"max_total_agents" json:"max_total_agents"`
	MaxConcurrentProjects            int                `yaml:"max_concurrent_projects" json:"max_concurrent_projects"`
	ResourceAllocationStrategy       AllocationStrategy `yaml:"resource_allocation_strategy" json:"resource_allocation_strategy"`
	GlobalMemoryLimitGB              float64            `yaml:"global_memory_limit_gb" json:"global_memory_limit_gb"`
	GlobalCPUCores                   float64            `yaml:"global_cpu_cores" json:"global_cpu_cores"`
	GlobalDiskLimitGB                float64            `yaml:"global_disk_limit_gb" json:"global_disk_limit_gb"`
	SchedulingIntervalSeconds        int                `yaml:"scheduling_interval_seconds" json:"scheduling_interval_seconds"`
	HealthCheckIntervalSeconds       int                `yaml:"health_check_interval_seconds" json:"health_check_interval_seconds"`
	ResourceRebalanceIntervalSeconds int                `yaml:"resource_rebalance_interval_seconds" json:"resource_rebalance_interval_seconds"`
	GlobalStatePath                  string             `yaml:"global_state_path" json:"global_state_path"`
}

// DefaultGlobalConfig mirrors the defaults a fresh orch-config.yaml is
// created with on first run.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		MaxTotalAgents:                   20,
		MaxConcurrentProjects:            10,
		ResourceAllocationStrategy:       StrategyFairShare,
		GlobalMemoryLimitGB:              16,
		GlobalCPUCores:                  8,
		GlobalDiskLimitGB:                100,
		SchedulingIntervalSeconds:        10,
		HealthCheckIntervalSeconds:       60,
		ResourceRebalanceIntervalSeconds: 300,
		GlobalStatePath:                  ".orch-global",
	}
}

// Registry is the full on-disk document: global tuning plus every
// registered project, keyed by name.
type Registry struct {
	Global   GlobalConfig              `yaml:"global" json:"global"`
	Projects map[string]*ProjectRecord `yaml:"projects" json:"projects"`
}

func newRegistry() *Registry {
	return &Registry{
		Global:   DefaultGlobalConfig(),
		Projects: make(map[string]*ProjectRecord),
	}
}

// Issue is one validation finding from ValidateConfiguration.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
