// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package service exposes the code map over HTTP: build, query,
// snapshot, diagnostics, and a websocket stream of rebuild events.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/LunarLaurus/codebuddy/services/codemap/cli/tools"
	"github.com/LunarLaurus/codebuddy/services/codemap/config"
	"github.com/LunarLaurus/codebuddy/services/codemap/overview"
	"github.com/LunarLaurus/codebuddy/services/codemap/pipeline"
	"github.com/LunarLaurus/codebuddy/services/codemap/store"
)

// ErrNoBuild is returned when a query arrives before the first build.
var ErrNoBuild = errors.New("no build available")

// Service owns the current build and serves queries over it.
//
// Thread Safety: the current build is guarded by an RWMutex. Queries
// take the read lock; Build swaps the result under the write lock, so
// readers always see a complete, frozen build.
type Service struct {
	cfg       *config.Config
	pipeline  *pipeline.Pipeline
	snapshots *store.SnapshotManager
	hub       *Hub
	logger    *slog.Logger

	mu       sync.RWMutex
	current  *pipeline.Result
	report   *overview.Report
	registry *tools.Registry
}

// NewService creates the service.
//
// Inputs:
//   - cfg: Validated service configuration.
//   - p: The build pipeline for cfg.Root.
//   - snapshots: Snapshot manager; nil disables snapshot endpoints.
func NewService(cfg *config.Config, p *pipeline.Pipeline, snapshots *store.SnapshotManager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:       cfg,
		pipeline:  p,
		snapshots: snapshots,
		hub:       NewHub(logger),
		logger:    logger,
	}
}

// Build runs a full rebuild and publishes it.
//
// Description:
//
//	The pipeline serializes concurrent builds internally; this method
//	swaps in the finished result, refreshes the overview report and
//	tool registry, and broadcasts a build event to watch subscribers.
func (s *Service) Build(ctx context.Context) (pipeline.BuildStats, error) {
	result, err := s.pipeline.Build(ctx)
	if err != nil {
		return pipeline.BuildStats{}, err
	}
	if err := s.Publish(result); err != nil {
		return pipeline.BuildStats{}, err
	}
	return result.Stats, nil
}

// Publish installs a finished build as current. Used by Build and by
// the watch loop, whose rebuilds arrive on a subscription channel.
func (s *Service) Publish(result *pipeline.Result) error {
	report, err := overview.Build(result, s.cfg.Root)
	if err != nil {
		return fmt.Errorf("build overview: %w", err)
	}
	registry, err := tools.NewRegistry(
		tools.NewFindCallersTool(result.Projector),
		tools.NewFindCalleesTool(result.Projector),
		tools.NewFunctionViewTool(result.Projector),
		tools.NewFindSymbolTool(result.Table),
	)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	s.mu.Lock()
	s.current = result
	s.report = report
	s.registry = registry
	s.mu.Unlock()

	s.hub.Broadcast(BuildEvent{
		Type:    "build_complete",
		Stats:   result.Stats,
		AtMilli: time.Now().UnixMilli(),
	})
	return nil
}

// Current returns the current build.
func (s *Service) Current() (*pipeline.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoBuild
	}
	return s.current, nil
}

// Report returns the current overview report.
func (s *Service) Report() (*overview.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return nil, ErrNoBuild
	}
	return s.report, nil
}

// Tools returns the current tool registry.
func (s *Service) Tools() (*tools.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registry == nil {
		return nil, ErrNoBuild
	}
	return s.registry, nil
}

// Payload serializes the current build for snapshots and exports.
func (s *Service) Payload() (*store.Payload, error) {
	result, err := s.Current()
	if err != nil {
		return nil, err
	}
	return store.NewPayload(result, s.cfg.Root)
}

// Snapshots returns the snapshot manager, if configured.
func (s *Service) Snapshots() (*store.SnapshotManager, error) {
	if s.snapshots == nil {
		return nil, fmt.Errorf("snapshot store not configured")
	}
	return s.snapshots, nil
}

// Root returns the project root the service maps.
func (s *Service) Root() string {
	return s.cfg.Root
}
