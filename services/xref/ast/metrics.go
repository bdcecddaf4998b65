// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("pyxref.ast")
	meter  = otel.Meter("pyxref.ast")
)

var (
	parseLatency metric.Float64Histogram
	parseTotal   metric.Int64Counter
	parseErrors  metric.Int64Counter
	definitions  metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use. Safe to call repeatedly.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"xref_ast_parse_duration_seconds",
			metric.WithDescription("Duration of module parse operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"xref_ast_parse_total",
			metric.WithDescription("Total number of module parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"xref_ast_parse_errors_total",
			metric.WithDescription("Total number of failed module parses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		definitions, err = meter.Int64Histogram(
			"xref_ast_definitions_extracted",
			metric.WithDescription("Top-level classes and functions extracted per module"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordParseMetrics records one parse outcome. Metric failures are ignored.
func recordParseMetrics(ctx context.Context, language string, duration time.Duration, definitionCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)
	parseLatency.Record(ctx, duration.Seconds(), attrs)
	parseTotal.Add(ctx, 1, attrs)

	lang := metric.WithAttributes(attribute.String("language", language))
	if success {
		definitions.Record(ctx, int64(definitionCount), lang)
	} else {
		parseErrors.Add(ctx, 1, lang)
	}
}

// startParseSpan starts the span covering a single Parse call. The caller
// must end it.
func startParseSpan(ctx context.Context, language, filePath string, contentSize int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Parser.Parse",
		trace.WithAttributes(
			attribute.String("ast.language", language),
			attribute.String("ast.file", filePath),
			attribute.Int("ast.content_size", contentSize),
		),
	)
}

// setParseSpanResult annotates the parse span with what was extracted.
func setParseSpanResult(span trace.Span, mod *Module) {
	span.SetAttributes(
		attribute.Int("ast.import_count", len(mod.Imports)),
		attribute.Int("ast.class_count", len(mod.Classes)),
		attribute.Int("ast.function_count", len(mod.Functions)),
	)
}
