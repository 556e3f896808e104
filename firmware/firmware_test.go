// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package firmware

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	var (
		updates = t.TempDir()
		base    = t.TempDir()
	)

	for _, tc := range []struct {
		dir  string
		name string
		data string
	}{
		{base, "fmc/svec-init.bin", "base-init"},
		{updates, "fmc/svec-init.bin", "updated-init"},
		{base, "fmc/svec-golden.bin", "golden"},
		{base, "fmc/empty.bin", ""},
	} {
		fname := filepath.Join(tc.dir, tc.name)
		err := os.MkdirAll(filepath.Dir(fname), 0755)
		if err != nil {
			t.Fatalf("could not create firmware dir: %+v", err)
		}
		err = os.WriteFile(fname, []byte(tc.data), 0644)
		if err != nil {
			t.Fatalf("could not create firmware file: %+v", err)
		}
	}

	for _, tc := range []struct {
		name string
		want string
		err  bool
	}{
		{name: "fmc/svec-init.bin", want: "updated-init"},
		{name: "fmc/svec-golden.bin", want: "golden"},
		{name: filepath.Join(base, "fmc/svec-init.bin"), want: "base-init"},
		{name: "fmc/empty.bin", err: true},
		{name: "fmc/missing.bin", err: true},
		{name: "fmc", err: true},
		{name: "", err: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := Load(tc.name, updates, base)
			switch {
			case err != nil && !tc.err:
				t.Fatalf("could not load firmware: %+v", err)
			case err == nil && tc.err:
				t.Fatalf("expected an error, got %q", raw)
			case err != nil:
				return
			}
			if got, want := string(raw), tc.want; got != want {
				t.Fatalf("invalid firmware content: got=%q, want=%q", got, want)
			}
		})
	}

	_, err := Find("fmc/missing.bin", base)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestDefaultDirs(t *testing.T) {
	dirs := DefaultDirs()
	if got, want := len(dirs), 2; got != want {
		t.Fatalf("invalid number of dirs: got=%d, want=%d", got, want)
	}
	dirs[0] = "/tmp"
	if got, want := DefaultDirs()[0], "/lib/firmware/updates"; got != want {
		t.Fatalf("default search path modified: got=%q, want=%q", got, want)
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "svec-init.bin")
	err := os.WriteFile(fname, []byte("v1"), 0644)
	if err != nil {
		t.Fatalf("could not create firmware file: %+v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		evts = make(chan string, 16)
		errc = make(chan error, 1)
	)
	go func() {
		errc <- Watch(ctx, []string{fname}, func(name string) {
			select {
			case evts <- name:
			default:
			}
		})
	}()

	// the watcher is set up asynchronously: keep touching the other
	// file and the watched one until an event shows up.
	timeout := time.NewTimer(10 * time.Second)
	defer timeout.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

loop:
	for {
		select {
		case name := <-evts:
			if got, want := name, fname; got != want {
				t.Fatalf("invalid event: got=%q, want=%q", got, want)
			}
			break loop
		case <-tick.C:
			err := os.WriteFile(filepath.Join(dir, "other.bin"), []byte("x"), 0644)
			if err != nil {
				t.Fatalf("could not write other file: %+v", err)
			}
			err = os.WriteFile(fname, []byte("v2"), 0644)
			if err != nil {
				t.Fatalf("could not update firmware file: %+v", err)
			}
		case <-timeout.C:
			t.Fatalf("no event for %q", fname)
		}
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("could not watch firmware: %+v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop")
	}
}

func TestWatchInvalid(t *testing.T) {
	ctx := context.Background()
	err := Watch(ctx, nil, func(string) {})
	if err == nil {
		t.Fatalf("expected an error")
	}

	err = Watch(ctx, []string{filepath.Join(t.TempDir(), "missing", "fw.bin")}, func(string) {})
	if err == nil {
		t.Fatalf("expected an error")
	}
}
