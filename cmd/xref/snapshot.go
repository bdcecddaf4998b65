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
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pyxref/services/xref/export"
	"github.com/AleutianAI/pyxref/services/xref/graph"
)

// snapshotFlags locate the snapshot database for every snapshot subcommand.
type snapshotFlags struct {
	root string
	dir  string
}

func newSnapshotCmd(g *globalOptions) *cobra.Command {
	sf := &snapshotFlags{}
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save, list, show, diff and delete report snapshots",
	}
	cmd.PersistentFlags().StringVar(&sf.root, "root", ".", "Analysis root the snapshots belong to")
	cmd.PersistentFlags().StringVar(&sf.dir, "snapshots-dir", "", "Snapshot database directory (default: config or <root>/.xref/snapshots)")

	cmd.AddCommand(
		newSnapshotSaveCmd(g, sf),
		newSnapshotListCmd(g, sf),
		newSnapshotShowCmd(g, sf),
		newSnapshotDiffCmd(g, sf),
		newSnapshotDeleteCmd(g, sf),
	)
	return cmd
}

// withSnapshots opens the database for the duration of fn.
func (sf *snapshotFlags) withSnapshots(g *globalOptions, fn func(*graph.SnapshotManager) error) error {
	cfg, err := g.loadConfig(sf.root)
	if err != nil {
		return err
	}
	mgr, closeDB, err := openSnapshots(cfg, sf.root, sf.dir, g.logger)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(mgr)
}

func newSnapshotSaveCmd(g *globalOptions, sf *snapshotFlags) *cobra.Command {
	var (
		af    analysisFlags
		label string
	)
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Analyze --root and save the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(sf.root)
			if err != nil {
				return err
			}
			res, err := af.analyzer(cmd, cfg, g.logger).Analyze(cmd.Context(), sf.root)
			if err != nil {
				return err
			}
			return sf.withSnapshots(g, func(mgr *graph.SnapshotManager) error {
				meta, err := mgr.Save(cmd.Context(), res.ToReport(), label)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), meta.SnapshotID)
				return err
			})
		},
	}
	af.register(cmd)
	cmd.Flags().StringVar(&label, "label", "", "Snapshot label")
	return cmd
}

func newSnapshotListCmd(g *globalOptions, sf *snapshotFlags) *cobra.Command {
	var (
		limit  int
		format string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots of --root, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sf.withSnapshots(g, func(mgr *graph.SnapshotManager) error {
				metas, err := mgr.List(cmd.Context(), sf.root, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				resolved, err := resolveFormat(format, out)
				if err != nil {
					return err
				}
				if resolved == formatJSON {
					if metas == nil {
						metas = []*graph.SnapshotMetadata{}
					}
					return writeJSON(out, metas)
				}
				return renderSnapshots(out, metas, newStyles(isTerminal(out)))
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum snapshots to list")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: auto, json or text")
	return cmd
}

func newSnapshotShowCmd(g *globalOptions, sf *snapshotFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show [ID]",
		Short: "Print a snapshot's report (default: the latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sf.withSnapshots(g, func(mgr *graph.SnapshotManager) error {
				rep, err := loadReport(cmd, mgr, sf.root, args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				resolved, err := resolveFormat(format, out)
				if err != nil {
					return err
				}
				if resolved == formatJSON {
					return writeJSON(out, rep)
				}
				return renderReport(out, rep, newStyles(isTerminal(out)))
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatAuto, "Output format: auto, json or text")
	return cmd
}

func newSnapshotDiffCmd(g *globalOptions, sf *snapshotFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "diff BASE [TARGET]",
		Short: "Compare two snapshots (TARGET defaults to the latest)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sf.withSnapshots(g, func(mgr *graph.SnapshotManager) error {
				ctx := cmd.Context()
				base, _, err := mgr.Load(ctx, args[0])
				if err != nil {
					return err
				}
				var (
					target *graph.Report
					meta   *graph.SnapshotMetadata
				)
				if len(args) == 2 {
					target, meta, err = mgr.Load(ctx, args[1])
				} else {
					target, meta, err = mgr.LoadLatest(ctx, sf.root)
				}
				if err != nil {
					return err
				}
				diff, err := graph.DiffReports(base, target, args[0], meta.SnapshotID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				resolved, err := resolveFormat(format, out)
				if err != nil {
					return err
				}
				if resolved == formatJSON {
					return writeJSON(out, diff)
				}
				return renderDiff(out, diff, newStyles(isTerminal(out)))
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: auto, json or text")
	return cmd
}

func newSnapshotDeleteCmd(g *globalOptions, sf *snapshotFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sf.withSnapshots(g, func(mgr *graph.SnapshotManager) error {
				return mgr.Delete(cmd.Context(), args[0])
			})
		},
	}
}

func newExportCmd(g *globalOptions) *cobra.Command {
	var (
		af           analysisFlags
		to           string
		credentials  string
		snapshotID   string
		snapshotsDir string
	)
	cmd := &cobra.Command{
		Use:   "export ROOT",
		Short: "Write a report to a file or a gs://bucket/object",
		Long: `export analyzes ROOT (or loads --snapshot) and writes the JSON report to
--to, which is a local path or gs://bucket/object. Cloud Storage uploads
use --credentials or application default credentials.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			dest, err := export.ParseDestination(to)
			if err != nil {
				return err
			}
			cfg, err := g.loadConfig(root)
			if err != nil {
				return err
			}

			var rep *graph.Report
			if snapshotID != "" {
				mgr, closeDB, err := openSnapshots(cfg, root, snapshotsDir, g.logger)
				if err != nil {
					return err
				}
				defer closeDB()
				if rep, _, err = mgr.Load(cmd.Context(), snapshotID); err != nil {
					return err
				}
			} else {
				res, err := af.analyzer(cmd, cfg, g.logger).Analyze(cmd.Context(), root)
				if err != nil {
					return err
				}
				rep = res.ToReport()
			}

			data, err := json.MarshalIndent(rep, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal report: %w", err)
			}
			if err := export.Write(cmd.Context(), data, dest, export.Options{CredentialsFile: credentials}); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported report %s to %s\n", rep.RunID, dest)
			return err
		},
	}
	af.register(cmd)
	cmd.Flags().StringVar(&to, "to", "", "Destination path or gs://bucket/object")
	cmd.Flags().StringVar(&credentials, "credentials", "", "Service account key file for Cloud Storage")
	cmd.Flags().StringVar(&snapshotID, "snapshot", "", "Export a saved snapshot instead of analyzing")
	cmd.Flags().StringVar(&snapshotsDir, "snapshots-dir", "", "Snapshot database directory (default: config or <root>/.xref/snapshots)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func loadReport(cmd *cobra.Command, mgr *graph.SnapshotManager, root string, args []string) (*graph.Report, error) {
	if len(args) == 1 {
		rep, _, err := mgr.Load(cmd.Context(), args[0])
		return rep, err
	}
	rep, _, err := mgr.LoadLatest(cmd.Context(), root)
	return rep, err
}

func formatMilli(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
