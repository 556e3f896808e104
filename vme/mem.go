// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vme

import (
	"fmt"

	"github.com/go-lpc/svec/internal/mmap"
)

// MapMem maps the window m through a memory device (e.g. /dev/mem) on
// which the bus bridge exposes the VME address space of m.AM, starting at
// the physical address base.
// VME address a is thus found at offset base+a of devmem.
func MapMem(devmem string, base int64, m Mapping) (*Window, error) {
	err := m.validate()
	if err != nil {
		return nil, err
	}

	h, err := mmap.Open(devmem, base+int64(m.Addr), m.Size)
	if err != nil {
		return nil, fmt.Errorf("vme: could not map %v: %w", m, err)
	}

	return newWindow(m, h), nil
}
