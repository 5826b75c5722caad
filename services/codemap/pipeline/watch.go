// Copyright (C) 2026 Lunar Laurus
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last
// filesystem event before rebuilding. Editors write files in bursts.
const DefaultDebounce = 500 * time.Millisecond

// Watcher rebuilds the code map when the source tree changes.
//
// Changes are debounced into full rebuilds: the merge phase is cheap
// next to extraction, and the parse cache already skips unchanged
// files, so patching structures in place buys nothing but bugs.
//
// Thread Safety: Subscribe and Run may be called from different
// goroutines. Each subscriber gets every completed rebuild.
type Watcher struct {
	pipeline *Pipeline
	debounce time.Duration

	mu   sync.Mutex
	subs []chan *Result
}

// NewWatcher creates a watcher over the pipeline's project root.
func NewWatcher(p *Pipeline) *Watcher {
	return &Watcher{
		pipeline: p,
		debounce: DefaultDebounce,
	}
}

// SetDebounce overrides the rebuild debounce window. Non-positive
// values are ignored. Call before Run.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// Subscribe registers a channel that receives every completed rebuild.
// The channel is buffered by one; a slow subscriber drops rebuilds
// rather than stalling the watch loop.
func (w *Watcher) Subscribe() <-chan *Result {
	ch := make(chan *Result, 1)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Run watches the tree and rebuilds until the context is cancelled.
//
// Description:
//
//	Runs an initial build, then installs recursive fsnotify watches
//	and rebuilds after each debounced burst of relevant events. A
//	rebuild failure is logged and watching continues; only context
//	cancellation or a watcher setup failure ends the loop.
//
// Outputs:
//   - error: Context cancellation cause, or a watcher setup failure.
func (w *Watcher) Run(ctx context.Context) error {
	result, err := w.pipeline.Build(ctx)
	if err != nil {
		return fmt.Errorf("initial build: %w", err)
	}
	w.notify(result)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addWatchesRecursive(fsw, w.pipeline.opts.Root); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// A new directory must be watched before anything inside
			// it changes. addWatchesRecursive is a no-op on files.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addWatchesRecursive(fsw, event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Filesystem watcher error", slog.String("error", err.Error()))

		case <-timerC:
			timer = nil
			timerC = nil
			rebuildsTotal.Inc()
			result, err := w.pipeline.Build(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("Watch rebuild failed", slog.String("error", err.Error()))
				continue
			}
			w.notify(result)
		}
	}
}

// relevant reports whether an event should trigger a rebuild.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	// Directory events carry no extension; take them so new
	// directories get watched and deleted ones trigger a rebuild.
	return ext == ".c" || ext == ".h" || ext == ""
}

// addWatchesRecursive installs watches on root and every non-hidden
// subdirectory. fsnotify does not recurse on its own.
func (w *Watcher) addWatchesRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if name := d.Name(); strings.HasPrefix(name, ".") && path != root {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			slog.Warn("Could not watch directory",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})
}

// notify fans a completed rebuild out to subscribers without blocking.
func (w *Watcher) notify(result *Result) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- result:
		default:
			slog.Debug("Dropping rebuild notification for slow subscriber")
		}
	}
}
