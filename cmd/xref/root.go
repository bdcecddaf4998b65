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
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pyxref/services/xref/config"
	"github.com/AleutianAI/pyxref/services/xref/graph"
	badgerstore "github.com/AleutianAI/pyxref/services/xref/storage/badger"
	"github.com/AleutianAI/pyxref/services/xref/telemetry"
)

// globalOptions holds the persistent flags and what they set up.
type globalOptions struct {
	logLevel     string
	logFormat    string
	configPath   string
	otelStdout   bool
	otlpEndpoint string

	logger   *slog.Logger
	shutdown telemetry.ShutdownFunc
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "xref",
		Short: "Static cross-module code intelligence for Python trees",
		Long: `xref builds the folder/module/class/function hierarchy of a Python
tree, resolves imports between modules and infers call targets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return g.teardown(cmd.Context())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&g.configPath, "config", "", "Config file (default <root>/"+config.FileName+")")
	pf.BoolVar(&g.otelStdout, "otel-stdout", false, "Export traces and metrics to stderr")
	pf.StringVar(&g.otlpEndpoint, "otlp-endpoint", "", "Export traces to an OTLP gRPC collector at host:port")

	cmd.AddCommand(
		newAnalyzeCmd(g),
		newCallsCmd(g),
		newTreeCmd(g),
		newServeCmd(g),
		newWatchCmd(g),
		newSnapshotCmd(g),
		newExportCmd(g),
	)
	return cmd
}

func (g *globalOptions) setup(cmd *cobra.Command) error {
	logger, err := newLogger(cmd.ErrOrStderr(), g.logLevel, g.logFormat)
	if err != nil {
		return err
	}
	g.logger = logger
	slog.SetDefault(logger)

	tcfg := telemetry.DefaultConfig()
	tcfg.TraceExporter = telemetry.ExporterNone
	tcfg.MetricExporter = telemetry.ExporterNone
	switch {
	case g.otlpEndpoint != "":
		tcfg.TraceExporter = telemetry.ExporterOTLP
		tcfg.OTLPEndpoint = g.otlpEndpoint
	case g.otelStdout:
		tcfg.TraceExporter = telemetry.ExporterStdout
	}
	if g.otelStdout {
		tcfg.MetricExporter = telemetry.ExporterStdout
	}
	shutdown, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return err
	}
	g.shutdown = shutdown
	return nil
}

func (g *globalOptions) teardown(ctx context.Context) error {
	if g.shutdown == nil {
		return nil
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	return g.shutdown(ctx)
}

// newLogger builds the slog handler selected by the flags.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q, want text or json", format)
	}
}

// loadConfig reads --config or <root>/xref.config.yaml.
func (g *globalOptions) loadConfig(root string) (config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.Load(root)
}

// analysisFlags are shared by every command that runs the analyzer.
type analysisFlags struct {
	queryDir        string
	workers         int
	tolerant        bool
	fallbackAliases bool
	extensions      []string
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.queryDir, "query-dir", "", "Only extract and infer modules under this folder")
	fs.IntVar(&f.workers, "workers", 0, "Worker count (default: config or number of CPUs)")
	fs.BoolVar(&f.tolerant, "tolerant", false, "Analyze files with syntax errors instead of skipping them")
	fs.BoolVar(&f.fallbackAliases, "fallback-aliases", false, "Record aliases for imports that fall back to a module dependency")
	fs.StringSliceVar(&f.extensions, "ext", nil, "Source extensions (default: config or .py)")
}

// analyzer builds an Analyzer from config with explicitly set flags on top.
func (f *analysisFlags) analyzer(cmd *cobra.Command, cfg config.Config, logger *slog.Logger) *graph.Analyzer {
	opts := cfg.AnalyzerOptions()
	fs := cmd.Flags()
	if fs.Changed("query-dir") {
		opts = append(opts, graph.WithQueryDir(f.queryDir))
	}
	if fs.Changed("workers") {
		opts = append(opts, graph.WithWorkers(f.workers))
	}
	if fs.Changed("tolerant") {
		opts = append(opts, graph.WithStrictSyntax(!f.tolerant))
	}
	if fs.Changed("fallback-aliases") {
		opts = append(opts, graph.WithFallbackAliases(f.fallbackAliases))
	}
	if fs.Changed("ext") {
		opts = append(opts, graph.WithExtensions(f.extensions...))
	}
	opts = append(opts, graph.WithLogger(logger))
	return graph.NewAnalyzer(opts...)
}

// openSnapshots opens the snapshot database for root. dir overrides the
// configured location.
func openSnapshots(cfg config.Config, root, dir string, logger *slog.Logger) (*graph.SnapshotManager, func(), error) {
	if dir == "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, nil, err
		}
		dir = cfg.SnapshotDir(abs)
	}

	bcfg := badgerstore.DefaultConfig(dir)
	bcfg.Logger = logger
	db, err := badgerstore.Open(bcfg)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := graph.NewSnapshotManager(db.DB, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(); err != nil {
			logger.Warn("closing snapshot database", slog.String("error", err.Error()))
		}
	}
	return mgr, closeFn, nil
}
