// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command codemap starts the code map API server.
//
// The server builds a cross-file symbol table and call graph for one C
// project and serves queries, snapshots, and a websocket stream of
// rebuild events over HTTP.
//
// Usage:
//
//	go run ./cmd/codemap -root /path/to/project
//	go run ./cmd/codemap -root . -addr localhost:9090 -watch
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8844/v1/map/health
//
//	# Build the map (required before queries)
//	curl -X POST http://localhost:8844/v1/map/build
//
//	# Who calls parse_header?
//	curl http://localhost:8844/v1/map/functions/parse_header/callers
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/LunarLaurus/codebuddy/services/codemap/ast"
	"github.com/LunarLaurus/codebuddy/services/codemap/config"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/service"
	"github.com/LunarLaurus/codebuddy/services/codemap/store"
	"github.com/LunarLaurus/codebuddy/services/codemap/telemetry"
)

const serviceName = "codebuddy-codemap"

func main() {
	root := flag.String("root", ".", "project root to map")
	addr := flag.String("addr", "", "listen address (overrides config)")
	debug := flag.Bool("debug", false, "enable debug mode")
	watch := flag.Bool("watch", false, "rebuild automatically when the tree changes")
	flag.Parse()

	if err := run(*root, *addr, *debug, *watch); err != nil {
		slog.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(root, addr string, debug, watch bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := config.Load(root, logger)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.ListenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Trace context flows in from W3C traceparent headers via otelgin.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, serviceName, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	db, err := badger.Open(badger.DefaultOptions(cfg.SnapshotDir).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("open snapshot store %s: %w", cfg.SnapshotDir, err)
	}
	defer db.Close()
	snapshots, err := store.NewSnapshotManager(db, logger)
	if err != nil {
		return err
	}

	p, err := pipeline.New(ast.NewCParser(),
		pipeline.WithRoot(cfg.Root),
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithCacheSize(cfg.CacheSize),
		pipeline.WithExcludePrefixes(cfg.ExcludePrefixes...),
		pipeline.WithIncludeTests(cfg.IncludeTests),
		pipeline.WithIncludeVendor(cfg.IncludeVendor),
	)
	if err != nil {
		return err
	}

	svc := service.NewService(cfg, p, snapshots, logger)
	handlers := service.NewHandlers(svc, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	if debug {
		router.Use(gin.Logger())
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	service.RegisterRoutes(v1, handlers)

	// Build history sink is optional; the server runs fine without it.
	var history *telemetry.BuildHistorySink
	if cfg.Telemetry.InfluxURL != "" {
		history, err = telemetry.NewBuildHistorySink(cfg.Telemetry.InfluxURL,
			cfg.Telemetry.InfluxOrg, cfg.Telemetry.InfluxBucket, logger)
		if err != nil {
			logger.Warn("Build history disabled", slog.String("error", err.Error()))
		} else {
			defer history.Close()
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if watch {
		watcher := pipeline.NewWatcher(p)
		watcher.SetDebounce(time.Duration(cfg.DebounceMillis) * time.Millisecond)
		results := watcher.Subscribe()

		g.Go(func() error {
			err := watcher.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case result := <-results:
					if err := svc.Publish(result); err != nil {
						logger.Error("Publish rebuild failed", slog.String("error", err.Error()))
						continue
					}
					recordBuild(ctx, history, cfg.Root, result.Stats, logger)
				}
			}
		})
	} else {
		// No watcher: run the initial build up front so the server comes
		// up queryable.
		stats, err := svc.Build(ctx)
		if err != nil {
			return fmt.Errorf("initial build: %w", err)
		}
		recordBuild(ctx, history, cfg.Root, stats, logger)
	}

	server := &http.Server{Addr: addr, Handler: router}
	g.Go(func() error {
		logger.Info("Starting code map server",
			slog.String("address", addr),
			slog.String("root", cfg.Root),
			slog.Bool("watch", watch))
		printBanner(addr, cfg.Root)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down code map server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// recordBuild ships one build's stats to the history sink, if any.
func recordBuild(ctx context.Context, history *telemetry.BuildHistorySink, root string, stats pipeline.BuildStats, logger *slog.Logger) {
	if history == nil {
		return
	}
	if err := history.RecordBuild(ctx, root, stats); err != nil {
		logger.Warn("Record build history failed", slog.String("error", err.Error()))
	}
}

func printBanner(addr, root string) {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                  CODEBUDDY CODE MAP                   ║
╠═══════════════════════════════════════════════════════╣
║  Cross-file symbol table + call graph for C projects  ║
║                                                       ║
║  # Health check                                       ║
║  curl http://%s/v1/map/health                ║
║                                                       ║
║  # Build the map (required before queries)            ║
║  curl -X POST http://%s/v1/map/build         ║
║                                                       ║
║  Press Ctrl+C to stop                                 ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, addr, addr)
	fmt.Println("Mapping:", root)
}
