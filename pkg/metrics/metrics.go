// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics exports supervisor-level gauges and counters: handle
// status transitions, restart attempts, and background-loop health. The
// observability pipeline proper (cross-project pattern mining, dashboards)
// lives outside this module; this package only emits the raw series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "orchestrator"
	subsystem = "supervisor"
)

// Recorder is the metrics surface the supervisor writes to. NopRecorder is
// the default so the core never depends on a live Prometheus registry; Wire
// PrometheusRecorder in when one is available.
type Recorder interface {
	SetActiveProjects(n int)
	SetTotalAgents(n int)
	IncRestart(project string)
	IncCrash(project string)
	ObserveLoopError(loop string)
}

// NopRecorder discards every observation.
type NopRecorder struct{}

func (NopRecorder) SetActiveProjects(int)       {}
func (NopRecorder) SetTotalAgents(int)          {}
func (NopRecorder) IncRestart(string)           {}
func (NopRecorder) IncCrash(string)             {}
func (NopRecorder) ObserveLoopError(string)     {}

var _ Recorder = NopRecorder{}

// PrometheusRecorder registers its series on construction; callers expose
// them by registering reg with an HTTP handler themselves.
type PrometheusRecorder struct {
	activeProjects prometheus.Gauge
	totalAgents    prometheus.Gauge
	restartsTotal  *prometheus.CounterVec
	crashesTotal   *prometheus.CounterVec
	loopErrors     *prometheus.CounterVec
}

// NewPrometheusRecorder creates and registers the supervisor's metric
// series against reg.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		activeProjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "active_projects", Help: "Number of projects currently RUNNING.",
		}),
		totalAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "total_agents", Help: "Sum of active_agents across all handles.",
		}),
		restartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "restarts_total", Help: "Automatic restarts attempted by the health loop.",
		}, []string{"project"}),
		crashesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "crashes_total", Help: "Unexpected child exits observed by the monitoring loop.",
		}, []string{"project"}),
		loopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "loop_errors_total", Help: "Panics recovered from a background loop tick.",
		}, []string{"loop"}),
	}
	reg.MustRegister(r.activeProjects, r.totalAgents, r.restartsTotal, r.crashesTotal, r.loopErrors)
	return r
}

func (r *PrometheusRecorder) SetActiveProjects(n int) { r.activeProjects.Set(float64(n)) }
func (r *PrometheusRecorder) SetTotalAgents(n int)     { r.totalAgents.Set(float64(n)) }
func (r *PrometheusRecorder) IncRestart(project string) { r.restartsTotal.WithLabelValues(project).Inc() }
func (r *PrometheusRecorder) IncCrash(project string)   { r.crashesTotal.WithLabelValues(project).Inc() }
func (r *PrometheusRecorder) ObserveLoopError(loop string) { r.loopErrors.WithLabelValues(loop).Inc() }

var _ Recorder = (*PrometheusRecorder)(nil)
