// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vme

import (
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DefaultDevice is the first master window of the vme_user driver.
const DefaultDevice = "/dev/bus/vme/m0"

var nativeEndian binary.ByteOrder = func() binary.ByteOrder {
	v := uint16(1)
	if *(*byte)(unsafe.Pointer(&v)) == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()

func (m master) marshal() [szMaster]byte {
	var buf [szMaster]byte
	nativeEndian.PutUint32(buf[0:], m.enable)
	nativeEndian.PutUint64(buf[4:], m.addr)
	nativeEndian.PutUint64(buf[12:], m.size)
	nativeEndian.PutUint32(buf[20:], m.aspace)
	nativeEndian.PutUint32(buf[24:], m.cycle)
	nativeEndian.PutUint32(buf[28:], m.dwidth)
	return buf
}

// userWindow is a master window of the Linux vme_user driver.
// Bus cycles are issued by pread/pwrite on the device node.
type userWindow struct {
	f *os.File
	m master
}

// Map configures the vme_user master window device dev (e.g.
// /dev/bus/vme/m0) for the mapping m and returns the corresponding
// window.
func Map(dev string, m Mapping) (*Window, error) {
	err := m.validate()
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(dev, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("vme: could not open %q: %w", dev, err)
	}

	uw := &userWindow{f: f, m: masterFrom(m)}
	err = uw.setMaster(uw.m)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("vme: could not map %v on %q: %w", m, dev, err)
	}

	return newWindow(m, uw), nil
}

func (uw *userWindow) setMaster(m master) error {
	buf := m.marshal()
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL, uw.f.Fd(),
		uintptr(ioctlSetMaster), uintptr(unsafe.Pointer(&buf[0])),
	)
	if errno != 0 {
		return fmt.Errorf("ioctl VME_SET_MASTER: %w", errno)
	}
	return nil
}

func (uw *userWindow) ReadAt(p []byte, off int64) (int, error) {
	return uw.f.ReadAt(p, off)
}

func (uw *userWindow) WriteAt(p []byte, off int64) (int, error) {
	return uw.f.WriteAt(p, off)
}

func (uw *userWindow) Close() error {
	m := uw.m
	m.enable = 0
	errM := uw.setMaster(m)
	errF := uw.f.Close()
	if errM != nil {
		return errM
	}
	return errF
}
