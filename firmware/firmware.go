// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package firmware locates and reads FPGA bitstream images.
package firmware // import "github.com/go-lpc/svec/firmware"

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Default is the name of the firmware loaded on a carrier board when
// none is configured.
const Default = "fmc/svec-init.bin"

var defaultDirs = []string{
	"/lib/firmware/updates",
	"/lib/firmware",
}

// DefaultDirs returns the default firmware search path.
func DefaultDirs() []string {
	return append([]string(nil), defaultDirs...)
}

// Find returns the path of the named firmware.
// Absolute names are used as is, relative names are looked up in dirs,
// in order. The default search path is used when dirs is empty.
func Find(name string, dirs ...string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("firmware: empty firmware name")
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	if len(dirs) == 0 {
		dirs = defaultDirs
	}

	for _, dir := range dirs {
		fname := filepath.Join(dir, name)
		fi, err := os.Stat(fname)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("firmware: could not stat %q: %w", fname, err)
		}
		if fi.IsDir() {
			continue
		}
		return fname, nil
	}

	return "", fmt.Errorf("firmware: could not find %q in %q: %w", name, dirs, fs.ErrNotExist)
}

// Load reads the named firmware from the search path dirs.
// Empty images are rejected.
func Load(name string, dirs ...string) ([]byte, error) {
	fname, err := Find(name, dirs...)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("firmware: could not read %q: %w", fname, err)
	}

	if len(raw) == 0 {
		return nil, fmt.Errorf("firmware: empty firmware file %q", fname)
	}

	return raw, nil
}
