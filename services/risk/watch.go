// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package risk

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce collapses the burst of events an editor produces
// when saving.
const DefaultReloadDebounce = 200 * time.Millisecond

// ErrNoConfigPath is returned by Watch when the engine runs on built-in
// defaults.
var ErrNoConfigPath = errors.New("risk engine has no config file to watch")

// Watch reloads the configuration whenever its file changes.
//
// Description:
//
//	The parent directory is watched rather than the file so that
//	atomic-rename saves are seen. Events for the config file are debounced
//	and trigger one Reload each. Blocks until ctx is done.
//
// Inputs:
//
//	ctx - Stops watching when cancelled.
//	debounce - Quiet period before reloading; <= 0 uses DefaultReloadDebounce.
//	onReload - Optional callback after every reload with its error.
//
// Outputs:
//
//	error - Setup failure, or nil once ctx is done.
func (e *Engine) Watch(ctx context.Context, debounce time.Duration, onReload func(error)) error {
	if e.path == "" {
		return ErrNoConfigPath
	}
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}

	target, err := filepath.Abs(e.path)
	if err != nil {
		return fmt.Errorf("resolve scoring config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	e.logger.Info("watching risk scoring config", "path", target)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			err := e.Reload()
			if onReload != nil {
				onReload(err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("config watcher error", "error", err)
		}
	}
}
