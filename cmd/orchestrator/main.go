// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command orchestrator is the CLI front end for the multi-project
// supervisor: it registers and discovers projects in the configuration
// registry, starts and stops the Global Orchestrator, and reports status,
// either as a one-shot command, an interactive shell, or an unattended
// daemon.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Supervises multiple project orchestrator instances on one host",
	Long: `orchestrator is the CLI for the Global Orchestrator: it tracks every
registered project's child process, enforces per-project resource quotas
via the Resource Scheduler, and persists project configuration via the
Configuration Manager.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadRuntimeConfig(cmd)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfigPath, "config", defaultConfigPath(), "path to the configuration registry file")
	flags.BoolVar(&flagNoSecurity, "no-security", false, "disable the single-instance lock (debugging only)")
	flags.BoolVar(&flagNoMonitoring, "no-monitoring", false, "disable the monitoring and health-check background loops")
	flags.BoolVar(&flagNoIntelligence, "no-intelligence", false, "disable the resource-balancing loop (skip reallocation wiring)")
	flags.BoolVar(&flagEnableDiscord, "enable-discord", false, "propagate each project's chat_channel as DISCORD_CHANNEL")
	flags.BoolVar(&flagDaemon, "daemon", false, "run unattended: start every active project and block until signalled")
	flags.BoolVar(&flagInteractive, "interactive", false, "force the interactive shell even when stdout is not a terminal")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug-level logging")

	rootCmd.AddCommand(discoverCmd, registerCmd, statusCmd, startCmd, stopCmd, shellCmd)
}

var (
	flagConfigPath     string
	flagNoSecurity     bool
	flagNoMonitoring   bool
	flagNoIntelligence bool
	flagEnableDiscord  bool
	flagDaemon         bool
	flagInteractive    bool
	flagDebug          bool
)
