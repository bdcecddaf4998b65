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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/pyxref/services/xref"
	"github.com/AleutianAI/pyxref/services/xref/graph"
	"github.com/AleutianAI/pyxref/services/xref/telemetry"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var (
		addr         string
		allowRoots   []string
		snapshotsDir string
		noSnapshots  bool
		watchRoot    string
		debug        bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Long: `serve exposes analysis, call inference, the visualization tree and
snapshots under /v1/xref, Prometheus metrics at /metrics and a websocket
stream of analysis runs at /v1/xref/events. With --watch the stream also
carries re-analyses of a watched tree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig(".")
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			if !g.otelStdout {
				mcfg := telemetry.DefaultConfig()
				mcfg.TraceExporter = telemetry.ExporterNone
				mcfg.MetricExporter = telemetry.ExporterPrometheus
				shutdown, err := telemetry.Init(ctx, mcfg)
				if err != nil {
					return err
				}
				defer func() { _ = shutdown(context.Background()) }()
			}

			svc := xref.NewService(xref.ServiceConfig{
				Config:       cfg,
				AllowedRoots: allowRoots,
				Logger:       g.logger,
			})
			if !noSnapshots {
				mgr, closeDB, err := openSnapshots(cfg, ".", snapshotsDir, g.logger)
				if err != nil {
					return err
				}
				defer closeDB()
				svc.WithSnapshots(mgr)
			}

			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			router := xref.NewRouter(xref.NewHandlers(svc), xref.RouterOptions{
				RateLimit: cfg.Server.RateLimit,
				Burst:     cfg.Server.Burst,
				AccessLog: debug,
			})
			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				g.logger.Info("starting xref server", slog.String("address", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				g.logger.Info("shutting down xref server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if watchRoot != "" {
				eg.Go(func() error {
					session := graph.NewWatchSession(
						graph.NewAnalyzer(append(cfg.AnalyzerOptions(), graph.WithLogger(g.logger))...),
						watchRoot,
						graph.WatchOptions{Sinks: []graph.RunSink{svc.Events()}, Logger: g.logger},
					)
					return session.Run(ctx)
				})
			}
			return eg.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")
	cmd.Flags().StringSliceVar(&allowRoots, "allow-root", nil, "Restrict analysis to these directories (repeatable)")
	cmd.Flags().StringVar(&snapshotsDir, "snapshots-dir", "", "Snapshot database directory (default: config or ./.xref/snapshots)")
	cmd.Flags().BoolVar(&noSnapshots, "no-snapshots", false, "Disable snapshot endpoints")
	cmd.Flags().StringVar(&watchRoot, "watch", "", "Watch this tree and stream its re-analyses")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable gin debug mode and access logs")
	return cmd
}
