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
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pyxref/services/xref/filetree"
	"github.com/AleutianAI/pyxref/services/xref/graph"
)

func newAnalyzeCmd(g *globalOptions) *cobra.Command {
	var (
		af           analysisFlags
		format       string
		outPath      string
		save         bool
		label        string
		snapshotsDir string
	)
	cmd := &cobra.Command{
		Use:   "analyze ROOT",
		Short: "Analyze a Python tree and print the cross-module report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			cfg, err := g.loadConfig(root)
			if err != nil {
				return err
			}

			res, err := af.analyzer(cmd, cfg, g.logger).Analyze(cmd.Context(), root)
			if err != nil {
				return err
			}
			rep := res.ToReport()

			if save {
				mgr, closeDB, err := openSnapshots(cfg, root, snapshotsDir, g.logger)
				if err != nil {
					return err
				}
				defer closeDB()
				meta, err := mgr.Save(cmd.Context(), rep, label)
				if err != nil {
					return err
				}
				g.logger.Info("snapshot saved", slog.String("snapshot_id", meta.SnapshotID))
			}

			if outPath == "" {
				return writeReport(cmd.OutOrStdout(), rep, format)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("create %s: %w", outPath, err)
			}
			if err := writeReport(f, rep, format); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", outPath, err)
			}
			return nil
		},
	}
	af.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or text")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&save, "save", false, "Save the report as a snapshot")
	cmd.Flags().StringVar(&label, "label", "", "Snapshot label")
	cmd.Flags().StringVar(&snapshotsDir, "snapshots-dir", "", "Snapshot database directory (default: config or <root>/.xref/snapshots)")
	return cmd
}

func newCallsCmd(g *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "calls ROOT MODULE",
		Short: "Print the inferred call targets of one module",
		Long: `calls parses a single module (relative to ROOT) and prints one
"caller -> callee" line per inferred call target. Methods are keyed
Class.method.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(args[0])
			if err != nil {
				return err
			}
			opts := append(cfg.AnalyzerOptions(), graph.WithLogger(g.logger))
			targets, err := graph.NewAnalyzer(opts...).AnalyzeCalls(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			resolved, err := resolveFormat(format, out)
			if err != nil {
				return err
			}
			if resolved == formatJSON {
				return writeJSON(out, targets)
			}
			return renderCalls(out, targets)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: auto, json or text")
	return cmd
}

func newTreeCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree ROOT",
		Short: "Print the folder/file visualization graph as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(args[0])
			if err != nil {
				return err
			}
			tree, err := filetree.Build(cmd.Context(), args[0], &filetree.Options{
				IgnorePatterns: cfg.Ignore,
				Logger:         g.logger,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), tree)
		},
	}
}
