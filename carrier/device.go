// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package carrier

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-lpc/svec/carrier/internal/regs"
	"github.com/go-lpc/svec/firmware"
	"github.com/go-lpc/svec/vme"
)

// Status is a snapshot of the state of a carrier board.
type Status struct {
	LUN         int
	Description string
	State       string // mapped, booted, failed or closed
	Firmware    string // name of the last firmware loaded
	Size        int    // size of the last firmware loaded, in bytes
	Outcome     Outcome
	Err         error // error of the last boot, if any
	Function    FunctionStatus
	Booted      time.Time // time of the last successful boot
}

// Device is a carrier board, with its CR/CSR window mapped.
type Device struct {
	mu  sync.Mutex
	msg *log.Logger
	cfg config

	board BoardConfig
	win   Window
	brd   *Board

	st Status
}

func crcsrMapping(cfg BoardConfig) vme.Mapping {
	return vme.Mapping{
		Addr:  cfg.VMEBase1,
		AM:    vme.CRCSR,
		Width: vme.D32,
		Size:  regs.CRCSRSize,
	}
}

// NewDevice maps the CR/CSR space of the configured board.
func NewDevice(board BoardConfig, opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newDevice(board, cfg)
}

func newDevice(board BoardConfig, cfg config) (*Device, error) {
	if board.Firmware == "" {
		board.Firmware = firmware.Default
	}
	err := board.validate()
	if err != nil {
		return nil, err
	}

	dev := &Device{
		msg:   cfg.msg,
		cfg:   cfg,
		board: board,
		st: Status{
			LUN:         board.LUN,
			Description: board.Description(),
			State:       "mapped",
		},
	}

	win, err := cfg.mapWindow(crcsrMapping(board))
	if err != nil {
		return nil, fmt.Errorf("svec: could not map CR/CSR space of card lun %d: %w", board.LUN, err)
	}
	dev.win = win
	dev.brd = newBoard(win, cfg)

	dev.msg.Printf("%s", dev.st.Description)
	return dev, nil
}

// Config returns the configuration of the board.
func (dev *Device) Config() BoardConfig {
	return dev.board
}

// Board returns the register-level access to the board.
func (dev *Device) Board() *Board {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.brd
}

// Boot loads the configured firmware into the board and activates
// function 0.
func (dev *Device) Boot(ctx context.Context) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.win == nil {
		return fmt.Errorf("svec: card lun %d: %w", dev.board.LUN, ErrPrecondition)
	}

	err := dev.boot(ctx)
	dev.st.Err = err
	if err != nil {
		dev.st.State = "failed"
		dev.msg.Printf("card lun %d: boot failed: %+v", dev.board.LUN, err)
		return err
	}
	dev.st.State = "booted"
	dev.st.Booted = time.Now().UTC()
	return nil
}

func (dev *Device) boot(ctx context.Context) error {
	name := dev.board.Firmware
	dev.msg.Printf("card lun %d: loading firmware %q", dev.board.LUN, name)

	image, err := firmware.Load(name, dev.cfg.fwdirs...)
	if err != nil {
		dev.st.Outcome = BitstreamRejected
		return fmt.Errorf("svec: card lun %d: could not request firmware: %w", dev.board.LUN, err)
	}
	dev.st.Firmware = name
	dev.st.Size = len(image)
	dev.msg.Printf("card lun %d: got file %q, %d (0x%x) bytes", dev.board.LUN, name, len(image), len(image))

	err = dev.brd.Load(ctx, image)
	dev.st.Outcome = OutcomeOf(err)
	if err != nil {
		return fmt.Errorf("svec: card lun %d: could not load firmware %q: %w", dev.board.LUN, name, err)
	}

	err = dev.brd.Activate(dev.board.Function())
	if err != nil {
		return fmt.Errorf("svec: card lun %d: %w", dev.board.LUN, err)
	}

	st, err := dev.brd.ReadBack()
	if err != nil {
		return fmt.Errorf("svec: card lun %d: %w", dev.board.LUN, err)
	}
	dev.st.Function = st

	return nil
}

// Status returns the current status of the board.
func (dev *Device) Status() Status {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.st
}

// Close unmaps the CR/CSR space of the board.
// Closing an already closed device is a no-op.
func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if dev.win == nil {
		return nil
	}
	win := dev.win
	dev.win = nil
	dev.brd = newBoard(nil, dev.cfg)
	dev.st.State = "closed"

	err := win.Close()
	if err != nil {
		return fmt.Errorf("svec: could not unmap CR/CSR window of card lun %d: %w", dev.board.LUN, err)
	}
	dev.msg.Printf("card lun %d: CR/CSR window unmapped", dev.board.LUN)
	return nil
}
