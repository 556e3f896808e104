// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package vme

import (
	"fmt"
	"runtime"
)

// DefaultDevice is the first master window of the vme_user driver.
const DefaultDevice = "/dev/bus/vme/m0"

// Map is only available on Linux.
func Map(dev string, m Mapping) (*Window, error) {
	return nil, fmt.Errorf("vme: vme_user master windows not supported on %s", runtime.GOOS)
}
