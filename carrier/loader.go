// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package carrier

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-lpc/svec/carrier/internal/regs"
)

// unlockSeq is the magic sequence enabling the bootloader mode and
// disabling the application FPGA.
var unlockSeq = [8]uint32{0xde, 0xad, 0xbe, 0xef, 0xca, 0xfe, 0xba, 0xbe}

// Unlock writes the unlock sequence to the bootloader trigger register.
func (brd *Board) Unlock() error {
	brd.mu.Lock()
	defer brd.mu.Unlock()

	return brd.unlock()
}

func (brd *Board) unlock() error {
	const op = "unlock"
	if brd.rw == nil {
		return newError(op, UnlockFailed, ErrPrecondition, nil, "CR/CSR window not mapped")
	}

	brd.err = nil
	for _, v := range unlockSeq {
		brd.regs.loader.btrig.w(v)
	}
	if brd.err != nil {
		return newError(op, UnlockFailed, ErrTransfer, brd.err, "could not write unlock sequence")
	}

	if brd.cfg.verbose {
		brd.msg.Printf("wrote unlock sequence at 0x%x", regs.LoaderBTrigR)
	}
	return nil
}

// IsActive reports whether the bootloader is active, i.e. whether the
// board is unlocked.
func (brd *Board) IsActive() (bool, error) {
	brd.mu.Lock()
	defer brd.mu.Unlock()

	return brd.isActive()
}

func (brd *Board) isActive() (bool, error) {
	const op = "is-active"
	if brd.rw == nil {
		return false, newError(op, StillLocked, ErrPrecondition, nil, "CR/CSR window not mapped")
	}

	brd.err = nil
	id := brd.regs.loader.idr.r()
	if brd.err != nil {
		return false, newError(op, StillLocked, ErrTransfer, brd.err, "could not read ID code")
	}

	ok := id == regs.LoaderID
	if brd.cfg.verbose {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], id)
		brd.msg.Printf("ID code 0x%08x %q (active=%v)", id, buf[:], ok)
	}
	return ok, nil
}

// Load unlocks the bootloader and streams the bitstream image into the
// application FPGA.
//
// The image is sent in 4-byte chunks, the final one being flagged as the
// last one. Once the transfer session has started, the application FPGA
// is always given back the control of the bus, whatever the outcome.
//
// Errors are of type *Error; OutcomeOf gives the associated Outcome.
func (brd *Board) Load(ctx context.Context, image []byte) error {
	const op = "load"

	if len(image) == 0 {
		return newError(op, BitstreamRejected, ErrPrecondition, nil, "empty bitstream")
	}

	brd.mu.Lock()
	defer brd.mu.Unlock()

	if brd.rw == nil {
		return newError(op, BitstreamRejected, ErrPrecondition, nil, "CR/CSR window not mapped")
	}

	err := brd.unlock()
	if err != nil {
		return err
	}

	ok, err := brd.isActive()
	if err != nil {
		return err
	}
	if !ok {
		return newError(op, StillLocked, ErrProtocol, nil, "bootloader locked after unlock")
	}

	brd.err = nil
	brd.regs.loader.csr.w(regs.CSRSWRst)
	brd.regs.loader.csr.w(regs.CSRStart | regs.CSRMSBF)
	switch {
	case brd.err != nil:
		err = newError(op, BitstreamRejected, ErrTransfer, brd.err, "could not start session")
	default:
		err = brd.stream(ctx, image)
		if err == nil {
			err = brd.complete(ctx)
		}
	}

	// give the VME bus control back to the application FPGA.
	brd.err = nil
	brd.regs.loader.csr.w(regs.CSRExit)
	if brd.err != nil && err == nil {
		err = newError(op, BitstreamRejected, ErrTransfer, brd.err, "could not release application FPGA")
	}

	status := "OK"
	if err != nil {
		status = "ERROR"
	}
	brd.msg.Printf("bitstream loaded (%d bytes), status: %s", len(image), status)

	return err
}

// stream pushes the image into the bootloader FIFO.
func (brd *Board) stream(ctx context.Context, image []byte) error {
	const op = "load"

	var chunk [4]byte
	for i := 0; i < len(image); {
		_, err := brd.waitFor(ctx, brd.regs.loader.fifoCS, regs.FIFOCSRFull, false)
		if err != nil {
			return brd.waitError(op, err, "FIFO full at byte %d/%d", i, len(image))
		}

		n := copy(chunk[:], image[i:])
		for j := n; j < len(chunk); j++ {
			chunk[j] = 0
		}
		r0 := uint32(n - 1)
		if i+n == len(image) {
			r0 |= regs.FIFOR0XLast
		}
		r1 := binary.BigEndian.Uint32(chunk[:])
		if verbose {
			brd.msg.Printf("chunk[%d]: r0=0x%x r1=0x%08x", i, r0, r1)
		}

		brd.regs.loader.fifoR0.w(r0)
		brd.regs.loader.fifoR1.w(r1)
		if brd.err != nil {
			return newError(op, BitstreamRejected, ErrTransfer, brd.err, "could not push chunk at byte %d/%d", i, len(image))
		}
		i += n
	}
	return nil
}

// complete waits for the end of the bitstream transfer.
func (brd *Board) complete(ctx context.Context) error {
	const op = "load"

	csr, err := brd.waitFor(ctx, brd.regs.loader.csr, regs.CSRDone, true)
	if err != nil {
		return brd.waitError(op, err, "transfer not done")
	}
	if csr&regs.CSRError != 0 {
		return newError(op, BitstreamRejected, ErrTransfer, nil, "bootloader reported an error (csr=0x%08x)", csr)
	}
	return nil
}

type errPoll struct {
	timeout time.Duration
	ctx     error
}

func (e errPoll) Error() string {
	if e.ctx != nil {
		return e.ctx.Error()
	}
	return fmt.Sprintf("condition not met after %v", e.timeout)
}

func (e errPoll) Unwrap() error { return e.ctx }

func (brd *Board) waitError(op string, err error, format string, args ...interface{}) error {
	if _, ok := err.(errPoll); ok {
		return newError(op, TimedOut, ErrTimeout, err, format, args...)
	}
	return newError(op, BitstreamRejected, ErrTransfer, err, format, args...)
}

// waitFor polls the register until the bits of mask are all set (or
// all cleared), and returns the last value read.
func (brd *Board) waitFor(ctx context.Context, reg reg32, mask uint32, set bool) (uint32, error) {
	var (
		deadline time.Time
		timeout  = brd.cfg.timeout
		tick     *time.Ticker
	)
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if brd.cfg.poll > 0 {
		tick = time.NewTicker(brd.cfg.poll)
		defer tick.Stop()
	}

	for {
		v := reg.r()
		if brd.err != nil {
			return v, brd.err
		}
		ok := v&mask == mask
		if !set {
			ok = v&mask == 0
		}
		if ok {
			return v, nil
		}

		if timeout > 0 && time.Now().After(deadline) {
			return v, errPoll{timeout: timeout}
		}

		if tick == nil {
			select {
			case <-ctx.Done():
				return v, errPoll{ctx: ctx.Err()}
			default:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return v, errPoll{ctx: ctx.Err()}
		case <-tick.C:
		}
	}
}
