// Copyright 2025 The toolmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher monitors the fleet configuration file and invokes a callback
// with the reloaded configuration when it changes. Invalid edits are logged
// and skipped; the callback only sees configurations that validate.
type ConfigWatcher struct {
	fsWatcher *fsnotify.Watcher
	logger    *slog.Logger
	path      string
	onChange  func(*Config)

	// debounceDelay coalesces the event bursts editors produce on save.
	debounceDelay time.Duration

	mu      sync.Mutex
	pending *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConfigWatcherOptions configures a config watcher.
type ConfigWatcherOptions struct {
	// Path is the configuration file to watch.
	Path string

	// OnChange receives every successfully reloaded configuration.
	OnChange func(*Config)

	// Logger is used for structured logging (optional).
	Logger *slog.Logger

	// DebounceDelay is the quiet period before reloading (defaults to 200ms).
	DebounceDelay time.Duration
}

// NewConfigWatcher starts watching the configuration file.
func NewConfigWatcher(opts ConfigWatcherOptions) (*ConfigWatcher, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if opts.OnChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounceDelay := opts.DebounceDelay
	if debounceDelay == 0 {
		debounceDelay = 200 * time.Millisecond
	}

	absPath, err := filepath.Abs(opts.Path)
	if err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to resolve path %s: %w", opts.Path, err)
	}

	// Watch the parent directory: editors replace files by rename, which
	// drops a watch placed on the file itself.
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(absPath), err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &ConfigWatcher{
		fsWatcher:     fsWatcher,
		logger:        logger,
		path:          absPath,
		onChange:      opts.OnChange,
		debounceDelay: debounceDelay,
		ctx:           ctx,
		cancel:        cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// processEvents processes filesystem events and schedules debounced reloads.
func (w *ConfigWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *ConfigWatcher) matches(eventPath string) bool {
	abs, err := filepath.Abs(eventPath)
	if err != nil {
		return false
	}
	return abs == w.path
}

// scheduleReload arms (or re-arms) the debounce timer.
func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDelay, w.reload)
}

// reload loads and validates the configuration, then invokes the callback.
func (w *ConfigWatcher) reload() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("failed to reload config", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("reloaded config is invalid, keeping previous", "path", w.path, "error", err)
		return
	}

	w.logger.Info("config reloaded", "path", w.path, "servers", len(cfg.Servers))
	w.onChange(cfg)
}

// Close shuts down the watcher.
func (w *ConfigWatcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	w.wg.Wait()
	return w.fsWatcher.Close()
}
