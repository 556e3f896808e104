// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vme

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAddrModifier(t *testing.T) {
	for _, tc := range []struct {
		am    AddrModifier
		name  string
		valid bool
	}{
		{CRCSR, "CR/CSR", true},
		{A32UserDataSCT, "A32-user-data-SCT", true},
		{A24SupBLT, "A24-sup-BLT", true},
		{A16User, "A16-user", true},
		{0x01, "AM(0x01)", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got, want := tc.am.String(), tc.name; got != want {
				t.Fatalf("invalid name: got=%q, want=%q", got, want)
			}
			if got, want := tc.am.Valid(), tc.valid; got != want {
				t.Fatalf("invalid validity: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestMappingValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		m    Mapping
		ok   bool
	}{
		{
			name: "cr-csr",
			m:    Mapping{Addr: 0x80000, AM: CRCSR, Width: D32, Size: 0x80000},
			ok:   true,
		},
		{
			name: "bad-am",
			m:    Mapping{Addr: 0x80000, AM: 0x01, Width: D32, Size: 0x80000},
		},
		{
			name: "bad-width",
			m:    Mapping{Addr: 0x80000, AM: CRCSR, Width: 12, Size: 0x80000},
		},
		{
			name: "empty",
			m:    Mapping{Addr: 0x80000, AM: CRCSR, Width: D32},
		},
		{
			name: "overflow",
			m:    Mapping{Addr: 0xffff0000, AM: A32UserDataSCT, Width: D32, Size: 0x20000},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.m.validate()
			switch {
			case tc.ok && err != nil:
				t.Fatalf("unexpected error: %+v", err)
			case !tc.ok && err == nil:
				t.Fatalf("expected an error for %v", tc.m)
			}
		})
	}
}

func TestMasterFrom(t *testing.T) {
	m := masterFrom(Mapping{Addr: 0x39000000, AM: A32UserDataSCT, Width: D32, Size: 0x100000})
	want := master{
		enable: 1,
		addr:   0x39000000,
		size:   0x100000,
		aspace: asA32,
		cycle:  cyUser | cyData | cySCT,
		dwidth: dwD32,
	}
	if m != want {
		t.Fatalf("invalid vme_master:\ngot= %+v\nwant=%+v", m, want)
	}

	m = masterFrom(Mapping{Addr: 0x80000, AM: CRCSR, Width: D32, Size: 0x80000})
	if got, want := m.aspace, uint32(asCRCSR); got != want {
		t.Fatalf("invalid aspace: got=0x%x, want=0x%x", got, want)
	}
	if got, want := m.cycle, uint32(cySCT); got != want {
		t.Fatalf("invalid cycle: got=0x%x, want=0x%x", got, want)
	}
}

func newFakeDevMem(t *testing.T, size int64) string {
	t.Helper()

	fname := filepath.Join(t.TempDir(), "dev.mem")
	f, err := os.Create(fname)
	if err != nil {
		t.Fatalf("could not create fake dev-mem: %+v", err)
	}
	defer f.Close()

	_, err = f.WriteAt([]byte{1}, size)
	if err != nil {
		t.Fatalf("could not write to fake dev-mem: %+v", err)
	}
	err = f.Close()
	if err != nil {
		t.Fatalf("could not close fake dev-mem: %+v", err)
	}
	return fname
}

func TestMapMem(t *testing.T) {
	const (
		base = 0x10000
		addr = 0x80000
		size = 0x80000
	)
	devmem := newFakeDevMem(t, base+addr+size)

	w, err := MapMem(devmem, base, Mapping{Addr: addr, AM: CRCSR, Width: D32, Size: size})
	if err != nil {
		t.Fatalf("could not map window: %+v", err)
	}
	defer w.Close()

	if got, want := w.Len(), size; got != want {
		t.Fatalf("invalid window size: got=0x%x, want=0x%x", got, want)
	}
	if got, want := w.Mapping().AM, CRCSR; got != want {
		t.Fatalf("invalid AM: got=%v, want=%v", got, want)
	}

	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], 0x53564543)
	_, err = w.WriteAt(buf[:], 0x7000c)
	if err != nil {
		t.Fatalf("could not write to window: %+v", err)
	}

	_, err = w.WriteAt(buf[:], size-2)
	if err == nil {
		t.Fatalf("expected an out-of-window error")
	}
	_, err = w.ReadAt(buf[:], -4)
	if err == nil {
		t.Fatalf("expected an out-of-window error")
	}

	err = w.Close()
	if err != nil {
		t.Fatalf("could not close window: %+v", err)
	}
	err = w.Close()
	if err != nil {
		t.Fatalf("could not close window twice: %+v", err)
	}

	_, err = w.ReadAt(buf[:], 0)
	if !errors.Is(err, errClosed) {
		t.Fatalf("invalid read-after-close error: %+v", err)
	}

	raw, err := os.ReadFile(devmem)
	if err != nil {
		t.Fatalf("could not read back fake dev-mem: %+v", err)
	}
	off := base + addr + 0x7000c
	if got, want := string(raw[off:off+4]), "SVEC"; got != want {
		t.Fatalf("invalid dev-mem content: got=%q, want=%q", got, want)
	}
}

func TestMapMemInvalid(t *testing.T) {
	devmem := newFakeDevMem(t, 0x1000)
	_, err := MapMem(devmem, 0, Mapping{Addr: 0, AM: 0x01, Width: D32, Size: 0x1000})
	if err == nil {
		t.Fatalf("expected an error")
	}

	_, err = MapMem(filepath.Join(t.TempDir(), "not-there"), 0, Mapping{AM: CRCSR, Width: D32, Size: 0x1000})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestNilWindow(t *testing.T) {
	var w *Window
	_, err := w.ReadAt(nil, 0)
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("invalid error: %+v", err)
	}
	_, err = w.WriteAt(nil, 0)
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("invalid error: %+v", err)
	}
	err = w.Close()
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("invalid error: %+v", err)
	}
}
