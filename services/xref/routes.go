// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package xref

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all /v1/xref routes.
//
// Endpoints:
//
//	GET    /v1/xref/health          - Health check
//	POST   /v1/xref/analyze         - Analyze a tree, optionally save a snapshot
//	POST   /v1/xref/calls           - Call targets of one module
//	GET    /v1/xref/tree            - Folder/file visualization tree
//	GET    /v1/xref/snapshots       - List snapshots
//	GET    /v1/xref/snapshots/diff  - Diff two snapshots
//	GET    /v1/xref/snapshots/:id   - Load a snapshot
//	DELETE /v1/xref/snapshots/:id   - Delete a snapshot
//	GET    /v1/xref/events          - Websocket stream of analysis runs
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	xref := rg.Group("/xref")
	{
		xref.GET("/health", handlers.HandleHealth)
		xref.POST("/analyze", handlers.HandleAnalyze)
		xref.POST("/calls", handlers.HandleCalls)
		xref.GET("/tree", handlers.HandleTree)

		// diff must be registered before the :id wildcard
		xref.GET("/snapshots/diff", handlers.HandleDiffSnapshots)
		xref.GET("/snapshots", handlers.HandleListSnapshots)
		xref.GET("/snapshots/:id", handlers.HandleGetSnapshot)
		xref.DELETE("/snapshots/:id", handlers.HandleDeleteSnapshot)

		xref.GET("/events", handlers.HandleEvents)
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// ServiceName names the otelgin server spans. Default: "pyxref"
	ServiceName string

	// RateLimit is requests per second per client. 0 disables limiting.
	RateLimit float64

	// Burst is the limiter bucket size.
	Burst int

	// AccessLog enables gin's request logger.
	AccessLog bool
}

// NewRouter builds the gin engine with middleware, /metrics and the
// /v1/xref routes.
func NewRouter(handlers *Handlers, opts RouterOptions) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "pyxref"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(RequestIDMiddleware())
	if opts.AccessLog {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	if opts.RateLimit > 0 {
		v1.Use(NewRateLimiter(opts.RateLimit, opts.Burst).Middleware())
	}
	RegisterRoutes(v1, handlers)
	return router
}
