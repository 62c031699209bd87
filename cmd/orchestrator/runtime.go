// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
	"github.com/AleutianAI/multi-project-orchestrator/internal/process"
	"github.com/AleutianAI/multi-project-orchestrator/internal/scheduler"
	"github.com/AleutianAI/multi-project-orchestrator/internal/supervisor"
	"github.com/AleutianAI/multi-project-orchestrator/pkg/logging"
	"github.com/AleutianAI/multi-project-orchestrator/pkg/metrics"
)

// defaultConfigPath mirrors CM's own on-disk convention: an orch-config.yaml
// in the current working directory unless the operator overrides it.
func defaultConfigPath() string {
	return "orch-config.yaml"
}

// loadRuntimeConfig runs as the root command's PersistentPreRunE: it
// resolves --config to an absolute path so every subcommand observes the
// same file regardless of its own working-directory assumptions.
func loadRuntimeConfig(cmd *cobra.Command) error {
	abs, err := filepath.Abs(flagConfigPath)
	if err != nil {
		return err
	}
	flagConfigPath = abs
	return nil
}

// runtime bundles the handful of collaborators every subcommand needs,
// built once from the resolved flags.
type runtime struct {
	logger *logging.Logger
	cm     *config.Manager
	sup    *supervisor.Supervisor
}

func newRuntime() (*runtime, error) {
	level := logging.LevelInfo
	if flagDebug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, Service: "orchestrator"})

	cm := config.NewManager(flagConfigPath, logger)
	if err := cm.Load(); err != nil {
		return nil, err
	}

	global := cm.Global()
	pool := scheduler.NewPoolTotals(global)
	rs := scheduler.New(logger, scheduler.Quota{
		CPUCores:    global.GlobalCPUCores,
		MemoryMB:    int(global.GlobalMemoryLimitGB * 1024),
		MaxAgents:   global.MaxTotalAgents,
		DiskMB:      int(global.GlobalDiskLimitGB * 1024),
		NetworkMbps: 1000,
	}, pool, global.ResourceAllocationStrategy, time.Duration(global.ResourceRebalanceIntervalSeconds)*time.Second)

	opts := []supervisor.Option{
		supervisor.WithIntervals(
			time.Duration(global.SchedulingIntervalSeconds)*time.Second,
			time.Duration(global.HealthCheckIntervalSeconds)*time.Second,
			time.Duration(global.ResourceRebalanceIntervalSeconds)*time.Second,
		),
	}
	if !flagNoIntelligence {
		opts = append(opts, supervisor.WithScheduler(rs))
	}
	if flagNoSecurity {
		opts = append(opts, supervisor.WithoutSecurity())
	}
	if flagNoMonitoring {
		opts = append(opts, supervisor.WithoutMonitoring())
	}
	opts = append(opts, supervisor.WithDiscord(flagEnableDiscord))
	opts = append(opts, supervisor.WithMetrics(metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)))

	sup := supervisor.New(cm, process.NewDefaultRuntime(), logger, resolveStateDir(cm), opts...)
	return &runtime{logger: logger, cm: cm, sup: sup}, nil
}

// resolveStateDir anchors CM's (possibly relative) global_state_path to the
// resolved --config file's directory, so every subcommand agrees on the
// same on-disk location regardless of its own working directory.
func resolveStateDir(cm *config.Manager) string {
	stateDir := cm.Global().GlobalStatePath
	if filepath.IsAbs(stateDir) {
		return stateDir
	}
	return filepath.Join(filepath.Dir(flagConfigPath), stateDir)
}

func (r *runtime) close() {
	_ = r.cm.Close()
	_ = r.logger.Close()
}

// isInteractiveStdout reports whether stdout is a terminal, the same
// signal the interactive shell uses to decide whether to launch.
func isInteractiveStdout() bool {
	return isTerminal(os.Stdout)
}
