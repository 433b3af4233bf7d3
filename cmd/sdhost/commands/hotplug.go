// Copyright (C) 2026 RW Labs. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"runtime"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// Device nodes show up before udev has fixed their permissions.
	hotplugSettle = 500 * time.Millisecond
	hotplugPoll   = 2 * time.Second
)

// portWatcher reports when new serial port nodes may have appeared.
type portWatcher struct {
	watcher *fsnotify.Watcher
	settle  time.Duration
}

func devDir() string {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "openbsd":
		return "/dev"
	}
	return ""
}

// newPortWatcher watches dir for new entries. With an empty dir, or if the
// directory cannot be watched, the returned watcher falls back to polling.
func newPortWatcher(dir string) *portWatcher {
	w := &portWatcher{settle: hotplugSettle}
	if dir == "" {
		return w
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return w
	}
	w.watcher = fw
	return w
}

func (w *portWatcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}

// Next blocks until a new entry was created, or until the poll interval
// passed when no watcher is available. It returns the created name, if
// known.
func (w *portWatcher) Next(ctx context.Context) (string, error) {
	if w.watcher == nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(hotplugPoll):
			return "", nil
		}
	}
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return "", context.Canceled
			}
			if event.Op&fsnotify.Create != fsnotify.Create {
				continue
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(w.settle):
			}
			return event.Name, nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return "", context.Canceled
			}
			return "", err
		}
	}
}
