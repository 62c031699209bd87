// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
	"github.com/AleutianAI/multi-project-orchestrator/internal/process"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [root]",
	Short: "Scan a directory tree for unregistered project candidates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		found, err := rt.cm.Discover(root)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			fmt.Println("no unregistered projects found")
			return nil
		}
		for _, d := range found {
			fmt.Printf("%-24s %-8s %-7s %s\n", d.Name, d.Kind, d.Language, d.Path)
		}
		return nil
	},
}

var registerPriority string

var registerCmd = &cobra.Command{
	Use:   "register [name] [path]",
	Short: "Register a project with the configuration manager",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		name, path, err := resolveRegisterArgs(args)
		if err != nil {
			return err
		}

		opts := config.DefaultRegisterOptions()
		if registerPriority != "" {
			p := config.Priority(registerPriority)
			if !p.IsValid() {
				return fmt.Errorf("invalid --priority %q", registerPriority)
			}
			opts.Priority = p
		}

		rec, err := rt.cm.RegisterProject(name, path, opts)
		if err != nil {
			return err
		}
		fmt.Printf("registered %s at %s (priority=%s)\n", rec.Name, rec.Path, rec.Priority)
		return nil
	},
}

// resolveRegisterArgs fills in a missing name/path pair with an interactive
// huh prompt when stdout is a terminal, falling back to requiring both
// positional arguments otherwise (e.g. when piped or scripted).
func resolveRegisterArgs(args []string) (name, path string, err error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	if !isInteractiveStdout() {
		return "", "", fmt.Errorf("register requires <name> and <path> when stdout is not a terminal")
	}

	if len(args) == 1 {
		name = args[0]
	}

	fields := []huh.Field{}
	if name == "" {
		fields = append(fields, huh.NewInput().Title("Project name").Value(&name))
	}
	fields = append(fields, huh.NewInput().Title("Project path").Placeholder(".").Value(&path))

	form := huh.NewForm(huh.NewGroup(fields...))
	if err := form.Run(); err != nil {
		return "", "", err
	}
	if name == "" || path == "" {
		return "", "", fmt.Errorf("register requires both a name and a path")
	}
	return name, path, nil
}

func init() {
	registerCmd.Flags().StringVar(&registerPriority, "priority", "", "project priority: critical, high, normal, low")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the global orchestrator status and any configuration issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		for _, issue := range rt.cm.ValidateConfiguration() {
			fmt.Printf("[%s] %s\n", issue.Code, issue.Message)
		}

		status := rt.sup.GetGlobalStatus()
		fmt.Printf("projects: %d total, %d active\n", status.TotalProjects, status.ActiveProjects)
		fmt.Printf("agents: %d  memory: %dMB  cpu: %.1f%%\n", status.TotalAgents, status.TotalMemoryMB, status.TotalCPUPercent)
		for name, h := range status.Projects {
			fmt.Printf("  %-24s %-10s pid=%d restarts=%d errors=%d\n", name, h.Status, h.Pid, h.RestartCount, h.ErrorCount)
		}
		for loop, msg := range status.LoopErrors {
			fmt.Printf("  loop %s: %s\n", loop, msg)
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Global Orchestrator and every active project",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := rt.sup.Start(ctx); err != nil {
			return err
		}
		rt.logger.Info("global orchestrator started", "config", flagConfigPath)

		if !flagDaemon {
			return nil
		}
		return blockUntilSignalled(rt)
	},
}

// blockUntilSignalled runs the daemon's main wait loop: it blocks until
// SIGINT/SIGTERM, then drives a graceful stop_all_projects shutdown.
func blockUntilSignalled(rt *runtime) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	rt.logger.Info("shutdown signal received, stopping all projects")
	rt.sup.Stop()
	return nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running --daemon instance to shut down gracefully",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		stateDir := resolveStateDir(rt.cm)
		lock := process.NewSupervisorLock(process.DefaultLockConfig(stateDir))
		pid := lock.HolderPID()
		if pid == 0 {
			return fmt.Errorf("no running instance found (no pid file under %s)", stateDir)
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal pid %d: %w", pid, err)
		}
		fmt.Printf("sent SIGTERM to pid %d\n", pid)
		return nil
	},
}
