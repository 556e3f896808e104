// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vme gives access to windows of the VME bus address space.
package vme // import "github.com/go-lpc/svec/vme"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// AddrModifier is a VME address modifier code, qualifying the address
// space, privilege and cycle type of a bus transaction.
type AddrModifier uint8

const (
	A32UserMBLT    AddrModifier = 0x08
	A32UserDataSCT AddrModifier = 0x09
	A32UserProgSCT AddrModifier = 0x0a
	A32UserBLT     AddrModifier = 0x0b
	A32SupMBLT     AddrModifier = 0x0c
	A32SupDataSCT  AddrModifier = 0x0d
	A32SupProgSCT  AddrModifier = 0x0e
	A32SupBLT      AddrModifier = 0x0f
	A16User        AddrModifier = 0x29
	A16Sup         AddrModifier = 0x2d
	CRCSR          AddrModifier = 0x2f
	A24UserMBLT    AddrModifier = 0x38
	A24UserDataSCT AddrModifier = 0x39
	A24UserProgSCT AddrModifier = 0x3a
	A24UserBLT     AddrModifier = 0x3b
	A24SupMBLT     AddrModifier = 0x3c
	A24SupDataSCT  AddrModifier = 0x3d
	A24SupProgSCT  AddrModifier = 0x3e
	A24SupBLT      AddrModifier = 0x3f
)

type amInfo struct {
	name   string
	aspace uint32
	cycle  uint32
}

var amTable = map[AddrModifier]amInfo{
	A32UserMBLT:    {"A32-user-MBLT", asA32, cyUser | cyData | cyMBLT},
	A32UserDataSCT: {"A32-user-data-SCT", asA32, cyUser | cyData | cySCT},
	A32UserProgSCT: {"A32-user-prog-SCT", asA32, cyUser | cyProg | cySCT},
	A32UserBLT:     {"A32-user-BLT", asA32, cyUser | cyData | cyBLT},
	A32SupMBLT:     {"A32-sup-MBLT", asA32, cySuper | cyData | cyMBLT},
	A32SupDataSCT:  {"A32-sup-data-SCT", asA32, cySuper | cyData | cySCT},
	A32SupProgSCT:  {"A32-sup-prog-SCT", asA32, cySuper | cyProg | cySCT},
	A32SupBLT:      {"A32-sup-BLT", asA32, cySuper | cyData | cyBLT},
	A16User:        {"A16-user", asA16, cyUser | cyData | cySCT},
	A16Sup:         {"A16-sup", asA16, cySuper | cyData | cySCT},
	CRCSR:          {"CR/CSR", asCRCSR, cySCT},
	A24UserMBLT:    {"A24-user-MBLT", asA24, cyUser | cyData | cyMBLT},
	A24UserDataSCT: {"A24-user-data-SCT", asA24, cyUser | cyData | cySCT},
	A24UserProgSCT: {"A24-user-prog-SCT", asA24, cyUser | cyProg | cySCT},
	A24UserBLT:     {"A24-user-BLT", asA24, cyUser | cyData | cyBLT},
	A24SupMBLT:     {"A24-sup-MBLT", asA24, cySuper | cyData | cyMBLT},
	A24SupDataSCT:  {"A24-sup-data-SCT", asA24, cySuper | cyData | cySCT},
	A24SupProgSCT:  {"A24-sup-prog-SCT", asA24, cySuper | cyProg | cySCT},
	A24SupBLT:      {"A24-sup-BLT", asA24, cySuper | cyData | cyBLT},
}

func (am AddrModifier) String() string {
	if v, ok := amTable[am]; ok {
		return v.name
	}
	return fmt.Sprintf("AM(0x%02x)", uint8(am))
}

// Valid reports whether am is a known address modifier.
func (am AddrModifier) Valid() bool {
	_, ok := amTable[am]
	return ok
}

// DataWidth is the maximum data width of a bus cycle, in bits.
type DataWidth uint8

const (
	D8  DataWidth = 8
	D16 DataWidth = 16
	D32 DataWidth = 32
	D64 DataWidth = 64
)

func (dw DataWidth) String() string {
	return fmt.Sprintf("D%d", uint8(dw))
}

func (dw DataWidth) valid() bool {
	switch dw {
	case D8, D16, D32, D64:
		return true
	}
	return false
}

// Mapping describes a window onto the VME bus.
type Mapping struct {
	Addr  uint32       // VME start address of the window
	AM    AddrModifier // address modifier of the bus cycles
	Width DataWidth    // data width of the bus cycles
	Size  int          // size of the window, in bytes
}

func (m Mapping) String() string {
	return fmt.Sprintf("vme[0x%08x+0x%x %v %v]", m.Addr, m.Size, m.AM, m.Width)
}

func (m Mapping) validate() error {
	if !m.AM.Valid() {
		return fmt.Errorf("vme: invalid address modifier 0x%02x", uint8(m.AM))
	}
	if !m.Width.valid() {
		return fmt.Errorf("vme: invalid data width %d", uint8(m.Width))
	}
	if m.Size <= 0 {
		return fmt.Errorf("vme: invalid window size %d", m.Size)
	}
	if uint64(m.Addr)+uint64(m.Size) > 1<<32 {
		return fmt.Errorf("vme: window 0x%08x+0x%x overflows the address space", m.Addr, m.Size)
	}
	return nil
}

type backend interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

var errClosed = errors.New("vme: window closed")

// Window is a mapped span of the VME bus.
// Offsets passed to ReadAt and WriteAt are relative to the start of
// the window.
type Window struct {
	mu sync.RWMutex
	m  Mapping
	rw backend
}

func newWindow(m Mapping, rw backend) *Window {
	return &Window{m: m, rw: rw}
}

// Mapping returns the description of the window.
func (w *Window) Mapping() Mapping {
	return w.m
}

// Len returns the size of the window, in bytes.
func (w *Window) Len() int {
	return w.m.Size
}

// ReadAt implements io.ReaderAt.
func (w *Window) ReadAt(p []byte, off int64) (int, error) {
	if w == nil {
		return 0, os.ErrInvalid
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.rw == nil {
		return 0, errClosed
	}
	if err := w.check(off, len(p)); err != nil {
		return 0, fmt.Errorf("vme: could not read: %w", err)
	}
	return w.rw.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (w *Window) WriteAt(p []byte, off int64) (int, error) {
	if w == nil {
		return 0, os.ErrInvalid
	}
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.rw == nil {
		return 0, errClosed
	}
	if err := w.check(off, len(p)); err != nil {
		return 0, fmt.Errorf("vme: could not write: %w", err)
	}
	return w.rw.WriteAt(p, off)
}

func (w *Window) check(off int64, n int) error {
	if off < 0 || off+int64(n) > int64(w.m.Size) {
		return fmt.Errorf("offset 0x%x (len=%d) out of window %v", off, n, w.m)
	}
	return nil
}

// Close releases the window. Closing an already closed window is a no-op.
func (w *Window) Close() error {
	if w == nil {
		return os.ErrInvalid
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.rw == nil {
		return nil
	}
	rw := w.rw
	w.rw = nil
	err := rw.Close()
	if err != nil {
		return fmt.Errorf("vme: could not release window %v: %w", w.m, err)
	}
	return nil
}

var (
	_ io.ReaderAt = (*Window)(nil)
	_ io.WriterAt = (*Window)(nil)
	_ io.Closer   = (*Window)(nil)
)
