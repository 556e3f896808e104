// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package carrier

import (
	"fmt"
	"time"

	"github.com/go-lpc/svec/carrier/internal/regs"
	"github.com/go-lpc/svec/vme"
)

// Function describes how function 0 of the loaded core is exposed on
// the VME bus.
type Function struct {
	Base   uint32 // VME A32 base address
	Vector uint8  // interrupt vector
	Level  uint8  // interrupt level
}

// ader returns the content of the FUN0 address decoder registers.
// DFSR and XAM are zero.
func (fn Function) ader() [4]byte {
	return [4]byte{
		byte(fn.Base >> 24),
		byte(fn.Base >> 16),
		byte(fn.Base >> 8),
		byte(vme.A32UserDataSCT&0x3f) << 2,
	}
}

// FunctionStatus is the read-back of the function 0 CSR registers.
type FunctionStatus struct {
	ADER      [4]byte
	Vector    uint8
	Level     uint8
	IntEnable uint8
	WB32      uint8
	VMECore   uint8
}

// Base returns the VME base address decoded by function 0.
func (st FunctionStatus) Base() uint32 {
	return uint32(st.ADER[0])<<24 | uint32(st.ADER[1])<<16 | uint32(st.ADER[2])<<8
}

// AM returns the address modifier decoded by function 0.
func (st FunctionStatus) AM() vme.AddrModifier {
	return vme.AddrModifier(st.ADER[3] >> 2)
}

func (st FunctionStatus) String() string {
	return fmt.Sprintf(
		"base: %02x%02x%02x%02x vector: %02x level: %02x int_enable: %02x wb32: %02x vme_core: %02x",
		st.ADER[0], st.ADER[1], st.ADER[2], st.ADER[3],
		st.Vector, st.Level, st.IntEnable, st.WB32, st.VMECore,
	)
}

// Activate configures function 0 of the loaded core and enables it:
// the core is reset and disabled, switched to 32-bit wishbone mode, given
// its interrupt vector and level and its address decoder, then enabled.
func (brd *Board) Activate(fn Function) error {
	brd.mu.Lock()
	defer brd.mu.Unlock()

	if brd.rw == nil {
		return fmt.Errorf("svec: could not activate function 0: %w", ErrPrecondition)
	}

	brd.err = nil
	csr := &brd.regs.csr

	csr.bitSet.w(regs.ResetCore)
	if brd.err == nil {
		time.Sleep(brd.cfg.reset)
	}

	csr.bitClr.w(regs.EnableCore)
	csr.wb.w(regs.WB32)
	csr.vector.w(fn.Vector)
	csr.level.w(fn.Level)

	for i, v := range fn.ader() {
		csr.ader[i].w(v)
	}

	csr.bitSet.w(regs.EnableCore)

	if brd.err != nil {
		return fmt.Errorf("svec: could not activate function 0 at 0x%08x: %w: %v", fn.Base, ErrTransfer, brd.err)
	}

	if brd.cfg.verbose {
		st := brd.readBack()
		if brd.err == nil {
			brd.msg.Printf("%v", st)
		}
	}
	return nil
}

// ReadBack reads the function 0 CSR registers.
func (brd *Board) ReadBack() (FunctionStatus, error) {
	brd.mu.Lock()
	defer brd.mu.Unlock()

	if brd.rw == nil {
		return FunctionStatus{}, fmt.Errorf("svec: could not read back function 0: %w", ErrPrecondition)
	}

	brd.err = nil
	st := brd.readBack()
	if brd.err != nil {
		return st, fmt.Errorf("svec: could not read back function 0: %w: %v", ErrTransfer, brd.err)
	}
	return st, nil
}

func (brd *Board) readBack() FunctionStatus {
	csr := &brd.regs.csr
	var st FunctionStatus
	for i := range st.ADER {
		st.ADER[i] = csr.ader[i].r()
	}
	st.Vector = csr.vector.r()
	st.Level = csr.level.r()
	st.IntEnable = csr.ienb.r()
	st.WB32 = csr.wb.r()
	st.VMECore = csr.core.r()
	return st
}
