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
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive command shell for the running orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		if !flagInteractive && !isInteractiveStdout() {
			return blockUntilSignalled(rt)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		if err := rt.sup.Start(ctx); err != nil {
			return err
		}
		defer rt.sup.Stop()

		m := newShellModel(rt)
		p := tea.NewProgram(m)
		_, err = p.Run()
		return err
	},
}

var (
	shellPromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	shellErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	shellMutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// shellModel is a single-pane bubbletea REPL: a scrolling output viewport
// above a one-line command input, dispatching each submitted line as one
// of the shell's named commands.
type shellModel struct {
	rt       *runtime
	input    textinput.Model
	output   viewport.Model
	history  []string
	quitting bool
}

func newShellModel(rt *runtime) shellModel {
	ti := textinput.New()
	ti.Placeholder = "help"
	ti.Focus()
	ti.Prompt = "orchestrator> "

	vp := viewport.New(80, 20)
	m := shellModel{rt: rt, input: ti, output: vp}
	m.println(shellMutedStyle.Render("type 'help' for a list of commands"))
	return m
}

func (m shellModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m shellModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.output.Width = msg.Width
		m.output.Height = msg.Height - 3
		m.input.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			m.println(shellPromptStyle.Render("> ") + line)
			if m.dispatch(line) {
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m shellModel) View() string {
	if m.quitting {
		return ""
	}
	return m.output.View() + "\n" + m.input.View()
}

func (m *shellModel) println(s string) {
	m.history = append(m.history, s)
	m.output.SetContent(strings.Join(m.history, "\n"))
	m.output.GotoBottom()
}

func (m *shellModel) printf(format string, args ...any) {
	m.println(fmt.Sprintf(format, args...))
}

// dispatch runs one shell command line, returning true if the shell should
// exit.
func (m *shellModel) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "exit", "quit":
		return true
	case "help":
		m.println(shellHelp)
	case "status":
		m.cmdStatus()
	case "projects":
		m.cmdProjects()
	case "discover":
		m.cmdDiscover(rest)
	case "register":
		m.cmdRegister(rest)
	case "start":
		m.cmdStart(rest)
	case "stop":
		m.cmdStop(rest)
	case "optimize":
		m.cmdOptimize()
	case "insights":
		m.cmdInsights()
	default:
		m.printf(shellErrorStyle.Render("unknown command: %s (try 'help')"), cmd)
	}
	return false
}

const shellHelp = `commands:
  help                      show this message
  status                    global status and configuration issues
  projects                  list every registered project
  discover [root]           scan root for unregistered project candidates
  register <name> <path>    register a project at normal priority
  start <name>              start one project's child process
  stop <name>               gracefully stop one project's child process
  optimize                  force one resource-balancing pass
  insights                  scheduling status and utilisation snapshot
  exit                      leave the shell`

func (m *shellModel) cmdStatus() {
	for _, issue := range m.rt.cm.ValidateConfiguration() {
		m.printf("[%s] %s", issue.Code, issue.Message)
	}
	status := m.rt.sup.GetGlobalStatus()
	m.printf("projects: %d total, %d active", status.TotalProjects, status.ActiveProjects)
	for name, h := range status.Projects {
		m.printf("  %-24s %-10s pid=%d", name, h.Status, h.Pid)
	}
}

func (m *shellModel) cmdProjects() {
	for _, rec := range m.rt.cm.ListProjects() {
		m.printf("%-24s %-8s %-12s agents<=%d mem<=%dMB", rec.Name, rec.Priority, rec.Status,
			rec.ResourceLimits.MaxParallelAgents, rec.ResourceLimits.MaxMemoryMB)
	}
}

func (m *shellModel) cmdDiscover(args []string) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	found, err := m.rt.cm.Discover(root)
	if err != nil {
		m.printf(shellErrorStyle.Render("discover: %v"), err)
		return
	}
	for _, d := range found {
		m.printf("%-24s %-8s %-7s %s", d.Name, d.Kind, d.Language, d.Path)
	}
}

func (m *shellModel) cmdRegister(args []string) {
	if len(args) != 2 {
		m.println(shellErrorStyle.Render("usage: register <name> <path>"))
		return
	}
	rec, err := m.rt.cm.RegisterProject(args[0], args[1], config.DefaultRegisterOptions())
	if err != nil {
		m.printf(shellErrorStyle.Render("register: %v"), err)
		return
	}
	m.printf("registered %s at %s", rec.Name, rec.Path)
}

func (m *shellModel) cmdStart(args []string) {
	if len(args) != 1 {
		m.println(shellErrorStyle.Render("usage: start <name>"))
		return
	}
	if !m.rt.sup.StartProject(args[0]) {
		m.printf(shellErrorStyle.Render("failed to start %s"), args[0])
		return
	}
	m.printf("started %s", args[0])
}

func (m *shellModel) cmdStop(args []string) {
	if len(args) != 1 {
		m.println(shellErrorStyle.Render("usage: stop <name>"))
		return
	}
	if !m.rt.sup.StopProject(args[0]) {
		m.printf(shellErrorStyle.Render("failed to stop %s"), args[0])
		return
	}
	m.printf("stopped %s", args[0])
}

func (m *shellModel) cmdOptimize() {
	result := m.rt.sup.Optimise()
	if len(result.Changes) == 0 {
		m.println(shellMutedStyle.Render("resource-balancing pass complete: no changes (RS not wired or already balanced)"))
		return
	}
	m.printf("resource-balancing pass complete: strategy=%s", result.StrategyUsed)
	for _, change := range result.Changes {
		m.printf("  %s", change)
	}
	for metric, value := range result.ImprovementMetrics {
		m.printf("  %s=%.3f", metric, value)
	}
}

func (m *shellModel) cmdInsights() {
	status := m.rt.sup.GetGlobalStatus()
	m.printf("active=%d agents=%d memoryMB=%d cpu%%=%.1f",
		status.ActiveProjects, status.TotalAgents, status.TotalMemoryMB, status.TotalCPUPercent)
}
