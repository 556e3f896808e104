// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package firmware

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn with the path of a watched firmware file each time it
// is written or re-created, until ctx is done.
//
// The parent directories are watched, so that files replaced by a
// rename are still tracked.
func Watch(ctx context.Context, files []string, fn func(fname string)) error {
	if len(files) == 0 {
		return fmt.Errorf("firmware: no file to watch")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("firmware: could not create watcher: %w", err)
	}
	defer w.Close()

	var (
		watched = make(map[string]bool, len(files))
		dirs    = make(map[string]bool)
	)
	for _, fname := range files {
		fname, err := filepath.Abs(fname)
		if err != nil {
			return fmt.Errorf("firmware: could not resolve %q: %w", fname, err)
		}
		watched[fname] = true
		dir := filepath.Dir(fname)
		if dirs[dir] {
			continue
		}
		err = w.Add(dir)
		if err != nil {
			return fmt.Errorf("firmware: could not watch %q: %w", dir, err)
		}
		dirs[dir] = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			fname, err := filepath.Abs(ev.Name)
			if err != nil || !watched[fname] {
				continue
			}
			fn(fname)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("firmware: watch error: %w", err)
		}
	}
}
