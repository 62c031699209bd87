// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package supervisor

import (
	"fmt"

	"github.com/AleutianAI/multi-project-orchestrator/internal/config"
	"github.com/AleutianAI/multi-project-orchestrator/internal/process"
	"github.com/AleutianAI/multi-project-orchestrator/internal/scheduler"
)

// buildLaunchSpec constructs the child-process launch contract (§6): the
// command line is an opaque token list parameterised by the quota, and the
// environment carries the project's identity and resource caps alongside
// the supervisor's own environment (appended by the Runtime, not here).
func buildLaunchSpec(rec *config.ProjectRecord, quota scheduler.Quota, enableDiscord bool) process.Spec {
	cmd := []string{
		"python3", "scripts/orchestrator.py",
		"--project-mode",
		"--max-agents", fmt.Sprintf("%d", quota.MaxAgents),
		"--memory-limit", fmt.Sprintf("%d", quota.MemoryMB),
		"--project-name", rec.Name,
	}

	env := []string{
		"ORCH_PROJECT_NAME=" + rec.Name,
		"ORCH_PROJECT_PATH=" + rec.Path,
		fmt.Sprintf("ORCH_MAX_AGENTS=%d", quota.MaxAgents),
		fmt.Sprintf("ORCH_MEMORY_LIMIT=%d", quota.MemoryMB),
		fmt.Sprintf("ORCH_CPU_LIMIT=%.2f", quota.CPUCores*100.0),
		"ORCH_GLOBAL_MODE=true",
	}
	if enableDiscord && rec.ChatChannel != "" {
		env = append(env, "DISCORD_CHANNEL="+rec.ChatChannel)
	}

	return process.Spec{Command: cmd, Dir: rec.Path, Env: env}
}
