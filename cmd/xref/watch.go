// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pyxref/services/xref/graph"
)

func newWatchCmd(g *globalOptions) *cobra.Command {
	var (
		af           analysisFlags
		save         bool
		snapshotsDir string
		debounce     time.Duration
		influx       graph.InfluxOptions
	)
	cmd := &cobra.Command{
		Use:   "watch ROOT",
		Short: "Re-analyze ROOT whenever its sources change",
		Long: `watch runs an initial analysis, then re-runs it after each debounced
batch of source changes and prints a one-line diff summary per run. With
--save every run is stored as a snapshot; with an InfluxDB URL (flag or
config) run statistics are written to the xref_runs measurement.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			cfg, err := g.loadConfig(root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sinks := []graph.RunSink{graph.RunSinkFunc(func(_ context.Context, ev graph.RunEvent) error {
				changes := 0
				if ev.Diff != nil {
					changes = ev.Diff.Summary.TotalChanges
				}
				_, err := fmt.Fprintf(out, "%s run %s: %d modules, %d call targets, %d changes, %d file errors (%s)\n",
					ev.At.Format(time.TimeOnly), ev.RunID, ev.Stats.Modules, ev.Stats.CallTargets,
					changes, ev.Stats.FileErrors, ev.Duration.Round(time.Millisecond))
				return err
			})}

			if save {
				mgr, closeDB, err := openSnapshots(cfg, root, snapshotsDir, g.logger)
				if err != nil {
					return err
				}
				defer closeDB()
				sinks = append(sinks, mgr)
			}

			opts := cfg.Influx
			fs := cmd.Flags()
			if fs.Changed("influx-url") {
				opts.URL = influx.URL
			}
			if fs.Changed("influx-token") {
				opts.Token = influx.Token
			}
			if fs.Changed("influx-org") {
				opts.Org = influx.Org
			}
			if fs.Changed("influx-bucket") {
				opts.Bucket = influx.Bucket
			}
			if opts.URL != "" {
				sink, err := graph.NewInfluxSink(opts)
				if err != nil {
					return err
				}
				defer sink.Close()
				sinks = append(sinks, sink)
				g.logger.Info("writing run stats to influxdb", slog.String("url", opts.URL), slog.String("bucket", opts.Bucket))
			}

			wopts := graph.DefaultFileWatcherOptions()
			// filled from the analyzer's extensions and ignores
			wopts.Extensions = nil
			wopts.IgnorePatterns = nil
			if debounce > 0 {
				wopts.DebounceWindow = debounce
			}
			session := graph.NewWatchSession(af.analyzer(cmd, cfg, g.logger), root, graph.WatchOptions{
				Watcher: wopts,
				Sinks:   sinks,
				Logger:  g.logger,
			})
			return session.Run(cmd.Context())
		},
	}
	af.register(cmd)
	fs := cmd.Flags()
	fs.BoolVar(&save, "save", false, "Save every run as a snapshot")
	fs.StringVar(&snapshotsDir, "snapshots-dir", "", "Snapshot database directory (default: config or <root>/.xref/snapshots)")
	fs.DurationVar(&debounce, "debounce", 0, "Quiet period before re-analyzing (default 300ms)")
	fs.StringVar(&influx.URL, "influx-url", "", "InfluxDB URL for run statistics")
	fs.StringVar(&influx.Token, "influx-token", "", "InfluxDB token")
	fs.StringVar(&influx.Org, "influx-org", "", "InfluxDB organization")
	fs.StringVar(&influx.Bucket, "influx-bucket", "", "InfluxDB bucket")
	return cmd
}
