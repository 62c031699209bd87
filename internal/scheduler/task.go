// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scheduler

import (
	"container/heap"
	"time"
)

// TaskPriority orders tasks within the global admission queue; lower value
// runs first.
type TaskPriority int

const (
	TaskPriorityCritical   TaskPriority = 1
	TaskPriorityHigh       TaskPriority = 2
	TaskPriorityNormal     TaskPriority = 3
	TaskPriorityLow        TaskPriority = 4
	TaskPriorityBackground TaskPriority = 5
)

// ScheduledTask is one unit of admission-controlled work submitted against
// a registered project.
type ScheduledTask struct {
	TaskID             string
	ProjectName        string
	Priority           TaskPriority
	EstimatedDuration  time.Duration
	Requirements       Quota
	Dependencies       []string
	Deadline           *time.Time
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// ready reports whether every dependency id of t is present in completed.
func (t *ScheduledTask) ready(completed map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// taskHeap is a min-heap over (priority.value, created_at). Ties on
// priority break FIFO by created_at, so CreatedAt must be set before
// pushing (see DESIGN.md).
type taskHeap []*ScheduledTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].CreatedAt.Before(h[j].CreatedAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*ScheduledTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*taskHeap)(nil)

// removeProject strips every task belonging to projectName from h,
// restoring the heap property by rebuilding from the filtered slice. The
// contract (§9) is only that no task with this project_name remains
// afterward; a filter-then-heapify pass is the simplest implementation
// that satisfies it.
func (h *taskHeap) removeProject(projectName string) []*ScheduledTask {
	var removed []*ScheduledTask
	kept := (*h)[:0]
	for _, t := range *h {
		if t.ProjectName == projectName {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	*h = kept
	heap.Init(h)
	return removed
}
