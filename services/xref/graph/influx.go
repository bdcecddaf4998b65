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
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// InfluxOptions locates the InfluxDB bucket that receives run stats.
type InfluxOptions struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// InfluxSink writes one point per watch-mode run to InfluxDB, measurement
// "xref_runs".
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxSink creates a sink. The client connects lazily on first write.
func NewInfluxSink(opts InfluxOptions) (*InfluxSink, error) {
	if opts.URL == "" || opts.Org == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("influx url, org and bucket are required")
	}
	client := influxdb2.NewClient(opts.URL, opts.Token)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(opts.Org, opts.Bucket),
	}, nil
}

// RecordRun writes the run's stats.
func (s *InfluxSink) RecordRun(ctx context.Context, ev RunEvent) error {
	if err := s.write.WritePoint(ctx, runPoint(ev)); err != nil {
		return fmt.Errorf("writing run %s to influx: %w", ev.RunID, err)
	}
	return nil
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func runPoint(ev RunEvent) *write.Point {
	p := influxdb2.NewPointWithMeasurement("xref_runs").
		AddTag("root", ev.RootDir).
		AddTag("run_id", ev.RunID).
		AddField("modules", ev.Stats.Modules).
		AddField("modules_analyzed", ev.Stats.ModulesAnalyzed).
		AddField("classes", ev.Stats.Classes).
		AddField("functions", ev.Stats.Functions).
		AddField("methods", ev.Stats.Methods).
		AddField("script_edges", ev.Stats.ScriptEdges).
		AddField("class_edges", ev.Stats.ClassEdges).
		AddField("function_edges", ev.Stats.FunctionEdges).
		AddField("call_targets", ev.Stats.CallTargets).
		AddField("file_errors", ev.Stats.FileErrors).
		AddField("changed_files", len(ev.Changed)).
		AddField("duration_ms", ev.Duration.Milliseconds()).
		SetTime(ev.At)
	if ev.Diff != nil {
		p.AddField("total_changes", ev.Diff.Summary.TotalChanges)
	}
	return p
}
