// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package carrier

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/go-lpc/svec/carrier/internal/regs"
)

type regOp struct {
	W   bool
	Off int64
	Val uint32
}

func (op regOp) String() string {
	rw := "r"
	if op.W {
		rw = "w"
	}
	return fmt.Sprintf("%s[0x%05x]=0x%08x", rw, op.Off, op.Val)
}

type chunk struct {
	R0 uint32
	R1 uint32
}

// fakeHW models the CR/CSR space of a board, with its bootloader.
type fakeHW struct {
	mu sync.Mutex

	mem   map[int64]uint32
	trace []regOp

	locked bool // bootloader never becomes active
	active bool
	seq    int // position in the unlock sequence

	fifo      []bool // successive values of the FIFO full flag, then empty
	fifoStuck bool   // FIFO always full

	session   bool
	csrReads  int
	donePolls int  // number of CSR reads before done is raised
	doneErr   bool // done raised with error
	neverDone bool

	chunks []chunk
	r0     uint32

	failW  int64  // offset of failing writes, if non zero
	failV  uint32 // value of failing writes, if non zero
	closed bool
}

func newFakeHW() *fakeHW {
	return &fakeHW{
		mem: make(map[int64]uint32),
	}
}

func (hw *fakeHW) ReadAt(p []byte, off int64) (int, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.closed {
		return 0, fmt.Errorf("fake-hw: closed")
	}
	if len(p) != 4 || off%4 != 0 {
		return 0, fmt.Errorf("fake-hw: invalid read (len=%d, off=0x%x)", len(p), off)
	}

	var v uint32
	switch off {
	case regs.LoaderIDR:
		v = 0xffffffff
		if hw.active {
			v = regs.LoaderID
		}
	case regs.LoaderFIFOCSR:
		switch {
		case hw.fifoStuck:
			v = regs.FIFOCSRFull
		case len(hw.fifo) > 0:
			if hw.fifo[0] {
				v = regs.FIFOCSRFull
			}
			hw.fifo = hw.fifo[1:]
		default:
			v = regs.FIFOCSREmpty
		}
	case regs.LoaderCSR:
		if !hw.session {
			break
		}
		hw.csrReads++
		v = regs.CSRBusy
		if !hw.neverDone && hw.csrReads > hw.donePolls {
			v = regs.CSRDone
			if hw.doneErr {
				v |= regs.CSRError
			}
		}
	default:
		v = hw.mem[off]
	}

	binary.BigEndian.PutUint32(p, v)
	hw.trace = append(hw.trace, regOp{Off: off, Val: v})
	return len(p), nil
}

func (hw *fakeHW) WriteAt(p []byte, off int64) (int, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.closed {
		return 0, fmt.Errorf("fake-hw: closed")
	}
	if len(p) != 4 || off%4 != 0 {
		return 0, fmt.Errorf("fake-hw: invalid write (len=%d, off=0x%x)", len(p), off)
	}
	if hw.failW != 0 && off == hw.failW {
		return 0, fmt.Errorf("fake-hw: bus error at 0x%x", off)
	}

	v := binary.BigEndian.Uint32(p)
	if hw.failV != 0 && v == hw.failV {
		return 0, fmt.Errorf("fake-hw: bus error at 0x%x (0x%x)", off, v)
	}
	hw.trace = append(hw.trace, regOp{W: true, Off: off, Val: v})

	switch off {
	case regs.LoaderBTrigR:
		switch {
		case v == unlockSeq[hw.seq]:
			hw.seq++
		case v == unlockSeq[0]:
			hw.seq = 1
		default:
			hw.seq = 0
		}
		if hw.seq == len(unlockSeq) {
			hw.seq = 0
			hw.active = !hw.locked
		}
	case regs.LoaderCSR:
		switch {
		case v&regs.CSRSWRst != 0:
			hw.session = false
			hw.chunks = nil
		case v&regs.CSRStart != 0:
			hw.session = true
			hw.csrReads = 0
		case v&regs.CSRExit != 0:
			hw.session = false
			hw.active = false
		}
	case regs.LoaderFIFOR0:
		hw.r0 = v
	case regs.LoaderFIFOR1:
		hw.chunks = append(hw.chunks, chunk{R0: hw.r0, R1: v})
	default:
		hw.mem[off] = v
	}
	return len(p), nil
}

func (hw *fakeHW) Close() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.closed = true
	return nil
}

// writes returns the write accesses of the trace.
func (hw *fakeHW) writes() []regOp {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	var ops []regOp
	for _, op := range hw.trace {
		if op.W {
			ops = append(ops, op)
		}
	}
	return ops
}

// writesAt returns the values written at off.
func (hw *fakeHW) writesAt(off int64) []uint32 {
	var vs []uint32
	for _, op := range hw.writes() {
		if op.Off == off {
			vs = append(vs, op.Val)
		}
	}
	return vs
}
