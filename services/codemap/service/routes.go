// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package service

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all code map routes with the router group.
//
// Description:
//
//	Registers the /v1/map/* endpoints. The group should already carry
//	any shared middleware (recovery, otelgin).
//
// Endpoints:
//
//	GET    /v1/map/health - Health check
//	POST   /v1/map/build - Run a full rebuild
//	GET    /v1/map/overview - Aggregated report
//	GET    /v1/map/symbols?q= - Fuzzy symbol search
//	GET    /v1/map/symbols/:name - Symbol by name or id
//	GET    /v1/map/functions/:name - Function view
//	GET    /v1/map/functions/:name/callers - Upstream calls
//	GET    /v1/map/functions/:name/callees - Downstream calls
//	GET    /v1/map/diagnostics?code= - Build diagnostics
//	GET    /v1/map/tools - Tool definitions
//	POST   /v1/map/tools/:name - Execute a tool
//	GET    /v1/map/watch - Websocket stream of rebuild events
//
// Snapshot endpoints (diff before :id, gin matches in order):
//
//	POST   /v1/map/snapshots - Save the current build
//	GET    /v1/map/snapshots - List snapshots for this project
//	GET    /v1/map/snapshots/diff?old=&new= - Diff two snapshots
//	GET    /v1/map/snapshots/:id - Load a snapshot
//	DELETE /v1/map/snapshots/:id - Delete a snapshot
//
// Debug endpoints:
//
//	GET    /v1/map/debug/stats - Build and store counters
//	GET    /v1/map/debug/dump - Full serialized payload
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	m := rg.Group("/map")
	{
		m.GET("/health", handlers.HandleHealth)
		m.POST("/build", handlers.HandleBuild)
		m.GET("/overview", handlers.HandleOverview)

		m.GET("/symbols", handlers.HandleFindSymbols)
		m.GET("/symbols/:name", handlers.HandleSymbol)
		m.GET("/functions/:name", handlers.HandleFunction)
		m.GET("/functions/:name/callers", handlers.HandleCallers)
		m.GET("/functions/:name/callees", handlers.HandleCallees)

		m.GET("/diagnostics", handlers.HandleDiagnostics)

		m.GET("/tools", handlers.HandleListTools)
		m.POST("/tools/:name", handlers.HandleRunTool)

		m.GET("/watch", handlers.HandleWatch)

		snapshots := m.Group("/snapshots")
		{
			snapshots.POST("", handlers.HandleSaveSnapshot)
			snapshots.GET("", handlers.HandleListSnapshots)
			snapshots.GET("/diff", handlers.HandleDiffSnapshots)
			snapshots.GET("/:id", handlers.HandleGetSnapshot)
			snapshots.DELETE("/:id", handlers.HandleDeleteSnapshot)
		}

		debug := m.Group("/debug")
		{
			debug.GET("/stats", handlers.HandleDebugStats)
			debug.GET("/dump", handlers.HandleDebugDump)
		}
	}
}
