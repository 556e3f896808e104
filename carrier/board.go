// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package carrier configures SVEC VME carrier boards: it drives the
// bootloader of the application FPGA to stream a bitstream into it and
// programs the CR/CSR registers exposing the loaded core on the bus.
package carrier // import "github.com/go-lpc/svec/carrier"

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/go-lpc/svec/carrier/internal/regs"
)

const (
	verbose = false
)

// RegisterWindow is a big-endian span of 32-bit registers, starting at
// the origin of the CR/CSR space of a board.
type RegisterWindow interface {
	io.ReaderAt
	io.WriterAt
}

// Board drives the bootloader and the CR/CSR registers of a board
// through a register window.
// Operations on a Board are serialized.
type Board struct {
	mu  sync.Mutex
	rw  RegisterWindow
	msg *log.Logger
	cfg config

	err  error // sticky I/O error of the current operation
	xbuf [4]byte

	regs struct {
		loader struct {
			csr    reg32
			btrig  reg32
			idr    reg32
			fifoR0 reg32
			fifoR1 reg32
			fifoCS reg32
		}
		csr struct {
			bitSet reg8
			bitClr reg8
			wb     reg8
			vector reg8
			level  reg8
			ienb   reg8
			core   reg8
			ader   [4]reg8
		}
	}
}

// New returns a board driven through the provided register window.
// A nil window is accepted: operations then fail with ErrPrecondition.
func New(rw RegisterWindow, opts ...Option) *Board {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newBoard(rw, cfg)
}

func newBoard(rw RegisterWindow, cfg config) *Board {
	brd := &Board{
		rw:  rw,
		msg: cfg.msg,
		cfg: cfg,
	}
	brd.bind()
	return brd
}

func (brd *Board) bind() {
	brd.regs.loader.csr = newReg32(brd, regs.LoaderCSR)
	brd.regs.loader.btrig = newReg32(brd, regs.LoaderBTrigR)
	brd.regs.loader.idr = newReg32(brd, regs.LoaderIDR)
	brd.regs.loader.fifoR0 = newReg32(brd, regs.LoaderFIFOR0)
	brd.regs.loader.fifoR1 = newReg32(brd, regs.LoaderFIFOR1)
	brd.regs.loader.fifoCS = newReg32(brd, regs.LoaderFIFOCSR)

	brd.regs.csr.bitSet = newReg8(brd, regs.BitSet)
	brd.regs.csr.bitClr = newReg8(brd, regs.BitClr)
	brd.regs.csr.wb = newReg8(brd, regs.WB32Mode)
	brd.regs.csr.vector = newReg8(brd, regs.IntVector)
	brd.regs.csr.level = newReg8(brd, regs.IntLevel)
	brd.regs.csr.ienb = newReg8(brd, regs.IntEnable)
	brd.regs.csr.core = newReg8(brd, regs.VMECore)
	for i := range brd.regs.csr.ader {
		brd.regs.csr.ader[i] = newReg8(brd, regs.Fun0ADER+4*int64(i))
	}
}

func (brd *Board) readU32(off int64) uint32 {
	if brd.err != nil {
		return 0
	}
	_, brd.err = brd.rw.ReadAt(brd.xbuf[:4], off)
	if brd.err != nil {
		brd.err = fmt.Errorf("svec: could not read register 0x%x: %w", off, brd.err)
		return 0
	}
	return binary.BigEndian.Uint32(brd.xbuf[:4])
}

func (brd *Board) writeU32(off int64, v uint32) {
	if brd.err != nil {
		return
	}
	binary.BigEndian.PutUint32(brd.xbuf[:4], v)
	_, brd.err = brd.rw.WriteAt(brd.xbuf[:4], off)
	if brd.err != nil {
		brd.err = fmt.Errorf("svec: could not write register 0x%x: %w", off, brd.err)
		return
	}
}

// readCSR reads the byte register at off of the CR/CSR space.
func (brd *Board) readCSR(off int64) byte {
	off -= off % 4
	return byte(brd.readU32(off))
}

// writeCSR writes the byte register at off of the CR/CSR space.
func (brd *Board) writeCSR(off int64, v byte) {
	off -= off % 4
	brd.writeU32(off, uint32(v))
}

type reg32 struct {
	r func() uint32
	w func(v uint32)
}

func newReg32(brd *Board, off int64) reg32 {
	return reg32{
		r: func() uint32 {
			return brd.readU32(off)
		},
		w: func(v uint32) {
			brd.writeU32(off, v)
		},
	}
}

type reg8 struct {
	r func() byte
	w func(v byte)
}

func newReg8(brd *Board, off int64) reg8 {
	return reg8{
		r: func() byte {
			return brd.readCSR(off)
		},
		w: func(v byte) {
			brd.writeCSR(off, v)
		},
	}
}
