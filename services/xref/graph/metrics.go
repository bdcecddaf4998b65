// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("pyxref.graph")

// =============================================================================
// Prometheus Metrics for the Analysis Pipeline
// =============================================================================

var (
	// analysisRunsTotal counts pipeline runs by outcome.
	// Labels: status (success, failed)
	analysisRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "analysis",
		Name:      "runs_total",
		Help:      "Total analysis runs by status",
	}, []string{"status"})

	// modulesAnalyzedTotal counts modules that went through every stage.
	modulesAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "analysis",
		Name:      "modules_analyzed_total",
		Help:      "Total modules parsed, extracted, resolved and inferred",
	})

	// importEdgesTotal counts resolved import edges.
	// Labels: kind (script, class, function, fallback)
	importEdgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "imports",
		Name:      "edges_total",
		Help:      "Resolved import edges by kind",
	}, []string{"kind"})

	// unresolvedImportsTotal counts imports outside the scanned corpus.
	unresolvedImportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "imports",
		Name:      "unresolved_total",
		Help:      "Imports whose target is not in the scanned corpus",
	})

	// callTargetsTotal counts inferred call targets.
	callTargetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "calls",
		Name:      "targets_total",
		Help:      "Inferred call targets across all functions",
	})

	// fileErrorsTotal counts non-fatal file errors by stage.
	// Labels: stage (walk, read, parse, extract)
	fileErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "analysis",
		Name:      "file_errors_total",
		Help:      "Non-fatal file errors by pipeline stage",
	}, []string{"stage"})

	// stageDurationSeconds measures each pipeline stage.
	// Labels: stage (hierarchy, extract, resolve, infer)
	stageDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "xref",
		Subsystem: "analysis",
		Name:      "stage_duration_seconds",
		Help:      "Duration of each analysis stage",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"stage"})
)

// recordRunMetrics publishes the counters of a finished run.
func recordRunMetrics(stats Stats, errs []FileError) {
	analysisRunsTotal.WithLabelValues("success").Inc()
	modulesAnalyzedTotal.Add(float64(stats.ModulesAnalyzed))
	importEdgesTotal.WithLabelValues("script").Add(float64(stats.ScriptEdges))
	importEdgesTotal.WithLabelValues("class").Add(float64(stats.ClassEdges))
	importEdgesTotal.WithLabelValues("function").Add(float64(stats.FunctionEdges))
	importEdgesTotal.WithLabelValues("fallback").Add(float64(stats.FallbackEdges))
	unresolvedImportsTotal.Add(float64(stats.UnresolvedImports))
	callTargetsTotal.Add(float64(stats.CallTargets))
	for _, e := range errs {
		fileErrorsTotal.WithLabelValues(string(e.Stage)).Inc()
	}
}

// recordRunFailed counts a run that returned an error.
func recordRunFailed() {
	analysisRunsTotal.WithLabelValues("failed").Inc()
}
